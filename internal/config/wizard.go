package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/manifoldco/promptui"

	"github.com/ziadkadry99/glados/internal/bots"
)

// Credential storage modes offered by the bot wizard.
const (
	ModeLiteral   = "literal"
	ModeEnvVar    = "env_var"
	ModeEncEnvVar = "enc_env_var"
)

var botNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// SecretAnswer is one credential as entered in the wizard. Value is the
// plaintext; EnvVar names the variable it should be read from.
type SecretAnswer struct {
	Mode   string
	Value  string
	EnvVar string
}

// BotAnswers collects everything needed to write a bot config file.
type BotAnswers struct {
	Name          string
	Token         SecretAnswer
	SigningSecret SecretAnswer
}

// Export is an environment variable the operator has to set before serving.
type Export struct {
	Name  string
	Value string
}

// ValidateBotName rejects names that cannot appear in a URL path segment.
func ValidateBotName(name string) error {
	if !botNamePattern.MatchString(name) {
		return fmt.Errorf("bot name %q must match %s", name, botNamePattern)
	}
	return nil
}

// WriteBot writes <dir>/<name>.yaml from the answers and returns the
// environment variables the bot will read. key is needed only for
// enc_env_var credentials.
func WriteBot(dir string, ans BotAnswers, key *[32]byte) (string, []Export, error) {
	if err := ValidateBotName(ans.Name); err != nil {
		return "", nil, err
	}

	var exports []Export
	token, exp, err := buildCredential(ans.Token, key)
	if err != nil {
		return "", nil, fmt.Errorf("token: %w", err)
	}
	exports = append(exports, exp...)
	secret, exp, err := buildCredential(ans.SigningSecret, key)
	if err != nil {
		return "", nil, fmt.Errorf("signing secret: %w", err)
	}
	exports = append(exports, exp...)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", nil, fmt.Errorf("creating %s: %w", dir, err)
	}
	path := filepath.Join(dir, ans.Name+".yaml")
	specs := map[string]bots.Spec{ans.Name: {Token: token, SigningSecret: secret}}
	if err := bots.WriteFile(path, specs); err != nil {
		return "", nil, err
	}
	return path, exports, nil
}

func buildCredential(ans SecretAnswer, key *[32]byte) (bots.Credential, []Export, error) {
	switch ans.Mode {
	case ModeLiteral, "":
		return bots.Credential{Value: ans.Value}, nil, nil
	case ModeEnvVar:
		if ans.EnvVar == "" {
			return bots.Credential{}, nil, errors.New("env_var needs a variable name")
		}
		return bots.Credential{EnvVar: ans.EnvVar}, []Export{{ans.EnvVar, ans.Value}}, nil
	case ModeEncEnvVar:
		if ans.EnvVar == "" {
			return bots.Credential{}, nil, errors.New("enc_env_var needs a variable name")
		}
		if key == nil {
			return bots.Credential{}, nil, errors.New("enc_env_var needs an encryption key")
		}
		sealed, err := bots.Seal(key, ans.Value)
		if err != nil {
			return bots.Credential{}, nil, err
		}
		return bots.Credential{EncEnvVar: ans.EnvVar}, []Export{{ans.EnvVar, sealed}}, nil
	default:
		return bots.Credential{}, nil, fmt.Errorf("unknown credential mode %q", ans.Mode)
	}
}

// RunWizard asks for the core settings, saves them to path and optionally
// continues with the bot wizard.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to glados! Let's configure your deployment.")
	fmt.Println()

	cfg := DefaultConfig()

	portPrompt := promptui.Prompt{
		Label:   "Server port",
		Default: strconv.Itoa(cfg.Server.Port),
		Validate: func(s string) error {
			p, err := strconv.Atoi(s)
			if err != nil || p <= 0 || p > 65535 {
				return errors.New("enter a port between 1 and 65535")
			}
			return nil
		},
	}
	portStr, err := portPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("server port: %w", err)
	}
	cfg.Server.Port, _ = strconv.Atoi(portStr)

	pluginsPrompt := promptui.Prompt{Label: "Plugins folder", Default: cfg.PluginsFolder}
	if cfg.PluginsFolder, err = pluginsPrompt.Run(); err != nil {
		return nil, fmt.Errorf("plugins folder: %w", err)
	}

	driverPrompt := promptui.Select{
		Label: "Interaction datastore",
		Items: []string{string(DriverSQLite), string(DriverPostgres), string(DriverNone)},
	}
	_, driver, err := driverPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("datastore selection: %w", err)
	}
	cfg.Datastore.Driver = DatastoreDriver(driver)
	switch cfg.Datastore.Driver {
	case DriverPostgres:
		dsnPrompt := promptui.Prompt{Label: "Postgres DSN", Default: "postgres://glados@localhost:5432/glados"}
		if cfg.Datastore.DSN, err = dsnPrompt.Run(); err != nil {
			return nil, fmt.Errorf("datastore dsn: %w", err)
		}
	case DriverNone:
		cfg.Datastore.DSN = ""
	}

	if cfg.Datastore.Driver != DriverNone {
		followPrompt := promptui.Prompt{Label: "Run the follow-up scheduler", IsConfirm: true}
		if _, err := followPrompt.Run(); err == nil {
			cfg.Followups.Enabled = true
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating config dir: %w", err)
	}
	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("\nConfiguration saved to %s\n\n", path)

	botPrompt := promptui.Prompt{Label: "Add a bot now", IsConfirm: true}
	if _, err := botPrompt.Run(); err == nil {
		if err := RunBotWizard(cfg.BotsConfigFolder, cfg.SecretKeyEnv); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// RunBotWizard prompts for a bot's credentials and writes its config file
// to dir. keyEnv names the variable holding the enc_env_var key; a new key
// is generated when it is unset.
func RunBotWizard(dir, keyEnv string) error {
	namePrompt := promptui.Prompt{Label: "Bot name", Validate: ValidateBotName}
	name, err := namePrompt.Run()
	if err != nil {
		return fmt.Errorf("bot name: %w", err)
	}

	token, err := promptSecret("Bot token (xoxb-...)", "SLACK_"+envSafe(name)+"_TOKEN")
	if err != nil {
		return err
	}
	secret, err := promptSecret("Signing secret", "SLACK_"+envSafe(name)+"_SIGNING_SECRET")
	if err != nil {
		return err
	}

	var key *[32]byte
	var newKey string
	if token.Mode == ModeEncEnvVar || secret.Mode == ModeEncEnvVar {
		if encoded := os.Getenv(keyEnv); encoded != "" {
			if key, err = bots.DecodeKey(encoded); err != nil {
				return fmt.Errorf("%s: %w", keyEnv, err)
			}
		} else {
			if newKey, err = bots.GenerateKey(); err != nil {
				return err
			}
			if key, err = bots.DecodeKey(newKey); err != nil {
				return err
			}
		}
	}

	path, exports, err := WriteBot(dir, BotAnswers{Name: name, Token: token, SigningSecret: secret}, key)
	if err != nil {
		return err
	}

	fmt.Printf("\nBot %s saved to %s\n", name, path)
	if newKey != "" {
		exports = append([]Export{{keyEnv, newKey}}, exports...)
	}
	if len(exports) > 0 {
		fmt.Println("Set these in the service environment:")
		for _, e := range exports {
			fmt.Printf("  export %s=%q\n", e.Name, e.Value)
		}
	}
	return nil
}

func promptSecret(label, defaultEnv string) (SecretAnswer, error) {
	modePrompt := promptui.Select{
		Label: label + " storage",
		Items: []string{ModeEnvVar, ModeEncEnvVar, ModeLiteral},
	}
	_, mode, err := modePrompt.Run()
	if err != nil {
		return SecretAnswer{}, fmt.Errorf("%s: %w", label, err)
	}

	valuePrompt := promptui.Prompt{Label: label, Mask: '*'}
	value, err := valuePrompt.Run()
	if err != nil {
		return SecretAnswer{}, fmt.Errorf("%s: %w", label, err)
	}

	ans := SecretAnswer{Mode: mode, Value: value}
	if mode != ModeLiteral {
		envPrompt := promptui.Prompt{Label: "Environment variable", Default: defaultEnv}
		if ans.EnvVar, err = envPrompt.Run(); err != nil {
			return SecretAnswer{}, fmt.Errorf("%s: %w", label, err)
		}
	}
	return ans, nil
}

func envSafe(name string) string {
	out := []byte(name)
	for i, c := range out {
		switch {
		case c >= 'a' && c <= 'z':
			out[i] = c - 'a' + 'A'
		case c == '-':
			out[i] = '_'
		}
	}
	return string(out)
}
