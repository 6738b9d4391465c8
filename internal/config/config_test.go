package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ziadkadry99/glados/internal/bots"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Server.Port != 5000 {
		t.Errorf("expected default port 5000, got %d", cfg.Server.Port)
	}
	if cfg.Datastore.Driver != DriverSQLite {
		t.Errorf("expected default driver %q, got %q", DriverSQLite, cfg.Datastore.Driver)
	}
	if cfg.SecretKeyEnv != DefaultSecretKeyEnv {
		t.Errorf("expected secret_key_env %q, got %q", DefaultSecretKeyEnv, cfg.SecretKeyEnv)
	}
	if cfg.APITimeout != 10*time.Second {
		t.Errorf("expected api_timeout 10s, got %s", cfg.APITimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "glados.yaml")

	original := DefaultConfig()
	original.Server.Port = 8081
	original.TargetBot = "wheatley"
	original.APITimeout = 3 * time.Second
	original.Datastore = DatastoreConfig{Driver: DriverPostgres, DSN: "postgres://localhost/glados"}
	original.Followups = FollowupsConfig{Enabled: true, Interval: 30 * time.Second}

	if err := original.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Server.Port != 8081 {
		t.Errorf("port: got %d, want 8081", loaded.Server.Port)
	}
	if loaded.TargetBot != "wheatley" {
		t.Errorf("target_bot: got %q", loaded.TargetBot)
	}
	if loaded.APITimeout != 3*time.Second {
		t.Errorf("api_timeout: got %s", loaded.APITimeout)
	}
	if loaded.Datastore != original.Datastore {
		t.Errorf("datastore: got %+v, want %+v", loaded.Datastore, original.Datastore)
	}
	if loaded.Followups != original.Followups {
		t.Errorf("followups: got %+v, want %+v", loaded.Followups, original.Followups)
	}
}

func TestLoadDurationStrings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "glados.yaml")
	content := "api_timeout: 2s\nfollowups:\n  enabled: true\n  interval: 45s\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APITimeout != 2*time.Second {
		t.Errorf("api_timeout: got %s", cfg.APITimeout)
	}
	if cfg.Followups.Interval != 45*time.Second {
		t.Errorf("followups.interval: got %s", cfg.Followups.Interval)
	}
	// Untouched keys keep their defaults.
	if cfg.PluginsFolder != "plugins" {
		t.Errorf("plugins_folder: got %q", cfg.PluginsFolder)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Load should not fail for missing file: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("expected default port, got %d", cfg.Server.Port)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("GLADOS_SERVER__PORT", "9090")
	t.Setenv("GLADOS_TARGET_BOT", "glados")
	t.Setenv("GLADOS_DATASTORE__DRIVER", "none")

	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090 from env, got %d", cfg.Server.Port)
	}
	if cfg.TargetBot != "glados" {
		t.Errorf("expected target_bot from env, got %q", cfg.TargetBot)
	}
	if cfg.Datastore.Driver != DriverNone {
		t.Errorf("expected driver none from env, got %q", cfg.Datastore.Driver)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"no plugins folder", func(c *Config) { c.PluginsFolder = "" }, "plugins_folder"},
		{"no bots folder", func(c *Config) { c.BotsConfigFolder = "" }, "bots_config_folder"},
		{"bad driver", func(c *Config) { c.Datastore.Driver = "mongo" }, "datastore.driver"},
		{"no dsn", func(c *Config) { c.Datastore.DSN = "" }, "datastore.dsn"},
		{"followups without store", func(c *Config) {
			c.Datastore.Driver = DriverNone
			c.Followups.Enabled = true
		}, "datastore"},
		{"zero interval", func(c *Config) {
			c.Followups.Enabled = true
			c.Followups.Interval = 0
		}, "followups.interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateNoBotsFolderWithoutImport(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ImportBots = false
	cfg.BotsConfigFolder = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateBotName(t *testing.T) {
	for _, name := range []string{"glados", "wheatley-2", "cave_johnson"} {
		if err := ValidateBotName(name); err != nil {
			t.Errorf("%q: unexpected error %v", name, err)
		}
	}
	for _, name := range []string{"", "has space", "a/b"} {
		if err := ValidateBotName(name); err == nil {
			t.Errorf("%q: expected error", name)
		}
	}
}

func TestWriteBotImportable(t *testing.T) {
	dir := t.TempDir()
	encoded, err := bots.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	key, err := bots.DecodeKey(encoded)
	if err != nil {
		t.Fatal(err)
	}

	path, exports, err := WriteBot(dir, BotAnswers{
		Name:          "glados",
		Token:         SecretAnswer{Mode: ModeEnvVar, Value: "xoxb-1", EnvVar: "TEST_GLADOS_TOKEN"},
		SigningSecret: SecretAnswer{Mode: ModeEncEnvVar, Value: "shh", EnvVar: "TEST_GLADOS_SECRET"},
	}, key)
	if err != nil {
		t.Fatalf("WriteBot failed: %v", err)
	}
	if filepath.Base(path) != "glados.yaml" {
		t.Errorf("unexpected path %s", path)
	}
	if len(exports) != 2 {
		t.Fatalf("expected 2 exports, got %d", len(exports))
	}
	if exports[1].Value == "shh" {
		t.Error("encrypted export must not hold the plaintext")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "xoxb-1") || strings.Contains(string(data), "shh") {
		t.Errorf("bot file leaks a secret:\n%s", data)
	}

	for _, e := range exports {
		t.Setenv(e.Name, e.Value)
	}
	reg, err := bots.NewImporter(dir, func() (*[32]byte, error) { return key, nil }).Import()
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if _, err := reg.Get("glados"); err != nil {
		t.Errorf("expected bot glados to import: %v", err)
	}
}

func TestWriteBotLiteral(t *testing.T) {
	dir := t.TempDir()
	_, exports, err := WriteBot(dir, BotAnswers{
		Name:          "wheatley",
		Token:         SecretAnswer{Mode: ModeLiteral, Value: "xoxb-2"},
		SigningSecret: SecretAnswer{Mode: ModeLiteral, Value: "moron"},
	}, nil)
	if err != nil {
		t.Fatalf("WriteBot failed: %v", err)
	}
	if len(exports) != 0 {
		t.Errorf("literal credentials need no exports, got %v", exports)
	}

	reg, err := bots.NewImporter(dir, nil).Import()
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	b, err := reg.Get("wheatley")
	if err != nil {
		t.Fatalf("expected bot wheatley: %v", err)
	}
	if !b.HasToken() {
		t.Error("expected token to be set")
	}
}

func TestWriteBotErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		ans  BotAnswers
	}{
		{"bad name", BotAnswers{Name: "no spaces"}},
		{"env var missing", BotAnswers{Name: "b", Token: SecretAnswer{Mode: ModeEnvVar, Value: "x"}}},
		{"no key", BotAnswers{Name: "b", Token: SecretAnswer{Mode: ModeEncEnvVar, Value: "x", EnvVar: "X"}}},
		{"unknown mode", BotAnswers{Name: "b", Token: SecretAnswer{Mode: "vault"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := WriteBot(dir, tt.ans, nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
