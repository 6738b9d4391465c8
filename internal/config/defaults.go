package config

import "time"

// DefaultPath is where glados looks for its configuration.
const DefaultPath = "config/glados.yaml"

// DefaultSecretKeyEnv holds the key used to decrypt enc_env_var credentials.
const DefaultSecretKeyEnv = "GLADOS_SECRET_KEY"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 5000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		PluginsFolder:       "plugins",
		PluginsConfigFolder: "config/plugins",
		BotsConfigFolder:    "config/bots",
		ImportBots:          true,
		SecretKeyEnv:        DefaultSecretKeyEnv,
		APITimeout:          10 * time.Second,
		Datastore: DatastoreConfig{
			Driver: DriverSQLite,
			DSN:    "glados.db",
		},
		Followups: FollowupsConfig{
			Enabled:  false,
			Interval: time.Minute,
		},
	}
}
