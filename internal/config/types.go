package config

import "time"

// DatastoreDriver selects the interaction store backend.
type DatastoreDriver string

const (
	DriverSQLite   DatastoreDriver = "sqlite"
	DriverPostgres DatastoreDriver = "postgres"
	DriverNone     DatastoreDriver = "none"
)

// Config is the top-level glados configuration, corresponding to glados.yaml.
type Config struct {
	Server              ServerConfig    `yaml:"server" koanf:"server"`
	Logging             LoggingConfig   `yaml:"logging" koanf:"logging"`
	PluginsFolder       string          `yaml:"plugins_folder" koanf:"plugins_folder"`
	PluginsConfigFolder string          `yaml:"plugins_config_folder" koanf:"plugins_config_folder"`
	BotsConfigFolder    string          `yaml:"bots_config_folder" koanf:"bots_config_folder"`
	ImportBots          bool            `yaml:"import_bots" koanf:"import_bots"`
	TargetBot           string          `yaml:"target_bot" koanf:"target_bot"`
	SecretKeyEnv        string          `yaml:"secret_key_env" koanf:"secret_key_env"`
	APITimeout          time.Duration   `yaml:"api_timeout" koanf:"api_timeout"`
	Datastore           DatastoreConfig `yaml:"datastore" koanf:"datastore"`
	Followups           FollowupsConfig `yaml:"followups" koanf:"followups"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string `yaml:"host" koanf:"host"`
	Port            int    `yaml:"port" koanf:"port"`
	AllowAllOrigins bool   `yaml:"allow_all_origins" koanf:"allow_all_origins"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level" koanf:"level"`
	Format string `yaml:"format" koanf:"format"` // console or json
}

// DatastoreConfig selects where interactions are stored. For sqlite the DSN
// is a file path.
type DatastoreConfig struct {
	Driver DatastoreDriver `yaml:"driver" koanf:"driver"`
	DSN    string          `yaml:"dsn" koanf:"dsn"`
}

// FollowupsConfig controls the follow-up scheduler.
type FollowupsConfig struct {
	Enabled  bool          `yaml:"enabled" koanf:"enabled"`
	Interval time.Duration `yaml:"interval" koanf:"interval"`
}
