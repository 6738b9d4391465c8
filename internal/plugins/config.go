package plugins

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// BotRef names the bot a plugin is bound to.
type BotRef struct {
	Name string
}

// Config is the effective configuration of one plugin.
type Config struct {
	Name    string
	Module  string
	Enabled bool
	Bot     BotRef
	// Extra holds plugin-specific keys.
	Extra map[string]any
}

var reservedKeys = map[string]bool{"module": true, "enabled": true, "bot": true}

// String returns a plugin-specific string setting.
func (c Config) String(key, def string) string {
	if v, ok := c.Extra[key].(string); ok {
		return v
	}
	return def
}

// loadSection reads a plugin config file and returns the single top-level
// section, keyed by plugin name.
func loadSection(path string) (string, *koanf.Koanf, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return "", nil, fmt.Errorf("reading plugin config %s: %w", path, err)
	}
	raw := k.Raw()
	if len(raw) != 1 {
		return "", nil, fmt.Errorf("plugin config %s must have exactly one top-level key, found %d", path, len(raw))
	}
	var name string
	for key := range raw {
		name = key
	}
	if _, ok := raw[name].(map[string]any); !ok {
		return "", nil, fmt.Errorf("plugin config %s: %s must be a mapping", path, name)
	}
	return name, k.Cut(name), nil
}

// merge applies the user override on top of the package default. The module
// always comes from the default.
func merge(def, user *koanf.Koanf) (*koanf.Koanf, error) {
	out := koanf.New(".")
	if err := out.Merge(def); err != nil {
		return nil, err
	}
	if user != nil {
		if err := out.Merge(user); err != nil {
			return nil, err
		}
	}
	if err := out.Set("module", def.String("module")); err != nil {
		return nil, err
	}
	return out, nil
}

func toConfig(name string, k *koanf.Koanf) Config {
	cfg := Config{
		Name:    name,
		Module:  k.String("module"),
		Enabled: k.Bool("enabled"),
		Bot:     BotRef{Name: k.String("bot.name")},
		Extra:   map[string]any{},
	}
	for key, v := range k.Raw() {
		if !reservedKeys[key] {
			cfg.Extra[key] = v
		}
	}
	return cfg
}

// UserConfigPath returns where the user override for a plugin lives.
func UserConfigPath(dir, name string) string {
	return filepath.Join(dir, name+".yaml")
}

// LoadConfig merges the package default at defaultPath with the user
// override in userDir. A missing override is written from the default with
// enabled set to false.
func LoadConfig(defaultPath, userDir string) (Config, error) {
	name, def, err := loadSection(defaultPath)
	if err != nil {
		return Config{}, err
	}
	if def.String("module") == "" {
		return Config{}, fmt.Errorf("plugin config %s: module is required", defaultPath)
	}

	userPath := UserConfigPath(userDir, name)
	var user *koanf.Koanf
	switch _, err := os.Stat(userPath); {
	case err == nil:
		userName, k, err := loadSection(userPath)
		if err != nil {
			return Config{}, err
		}
		if userName != name {
			return Config{}, fmt.Errorf("user config %s is for %q, expected %q", userPath, userName, name)
		}
		user = k
	case errors.Is(err, os.ErrNotExist):
		if user, err = writeUserConfig(userPath, name, def); err != nil {
			return Config{}, err
		}
	default:
		return Config{}, fmt.Errorf("accessing user config %s: %w", userPath, err)
	}

	merged, err := merge(def, user)
	if err != nil {
		return Config{}, fmt.Errorf("merging config for %s: %w", name, err)
	}
	return toConfig(name, merged), nil
}

// writeUserConfig materializes the package default as a disabled user
// override and returns it.
func writeUserConfig(path, name string, def *koanf.Koanf) (*koanf.Koanf, error) {
	section := koanf.New(".")
	if err := section.Merge(def); err != nil {
		return nil, err
	}
	if err := section.Set("enabled", false); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating plugin config folder: %w", err)
	}
	if err := writeSection(path, name, section); err != nil {
		return nil, err
	}
	return section, nil
}

func writeSection(path, name string, section *koanf.Koanf) error {
	out := koanf.New(".")
	if err := out.Set(name, section.Raw()); err != nil {
		return err
	}
	data, err := out.Marshal(yaml.Parser())
	if err != nil {
		return fmt.Errorf("marshalling user config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing user config %s: %w", path, err)
	}
	return nil
}

// SetEnabled rewrites the enabled flag in a plugin's user override.
func SetEnabled(userDir, name string, enabled bool) error {
	path := UserConfigPath(userDir, name)
	userName, k, err := loadSection(path)
	if err != nil {
		return err
	}
	if userName != name {
		return fmt.Errorf("user config %s is for %q, expected %q", path, userName, name)
	}
	if err := k.Set("enabled", enabled); err != nil {
		return err
	}
	return writeSection(path, name, k)
}
