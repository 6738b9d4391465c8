package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// nested keys: GLADOS_SERVER__PORT -> server.port.
const EnvPrefix = "GLADOS_"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (GLADOS_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validDrivers = map[DatastoreDriver]bool{
	DriverSQLite:   true,
	DriverPostgres: true,
	DriverNone:     true,
}

var validLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level %q: must be one of debug, info, warn, error", c.Logging.Level)
	}
	if c.Logging.Format != "" && c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid logging.format %q: must be console or json", c.Logging.Format)
	}

	if c.PluginsFolder == "" {
		return fmt.Errorf("plugins_folder is required")
	}
	if c.PluginsConfigFolder == "" {
		return fmt.Errorf("plugins_config_folder is required")
	}
	if c.ImportBots && c.BotsConfigFolder == "" {
		return fmt.Errorf("bots_config_folder is required when import_bots is set")
	}

	if c.APITimeout < 0 {
		return fmt.Errorf("api_timeout must be non-negative")
	}

	if !validDrivers[c.Datastore.Driver] {
		return fmt.Errorf("invalid datastore.driver %q: must be one of sqlite, postgres, none", c.Datastore.Driver)
	}
	if c.Datastore.Driver != DriverNone && c.Datastore.DSN == "" {
		return fmt.Errorf("datastore.dsn is required for driver %s", c.Datastore.Driver)
	}

	if c.Followups.Enabled {
		if c.Datastore.Driver == DriverNone {
			return fmt.Errorf("followups need a datastore")
		}
		if c.Followups.Interval <= 0 {
			return fmt.Errorf("followups.interval must be positive")
		}
	}

	return nil
}
