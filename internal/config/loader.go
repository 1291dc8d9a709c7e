package config

import (
	"fmt"

	"github.com/rpattn/auditq/internal/db"
	"github.com/spf13/viper"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr        string
	CORSOrigins []string
}

// StorageConfig selects the log store backend.
type StorageConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string
	// SQLiteDSN is used when Driver is "sqlite".
	SQLiteDSN string
}

// TrackedType declares one audited object type and its field options.
// Lookups and writes against undeclared types are rejected, so a missing
// entry here surfaces as a startup/wiring defect rather than a silent miss.
type TrackedType struct {
	ObjectType    string   `mapstructure:"object_type"`
	IncludeFields []string `mapstructure:"include_fields"`
	ExcludeFields []string `mapstructure:"exclude_fields"`
	MaskFields    []string `mapstructure:"mask_fields"`
}

// Config aggregates the service configuration.
type Config struct {
	Database db.Config
	Server   ServerConfig
	Storage  StorageConfig
	Tracking []TrackedType
}

// Default returns the built-in configuration used when no config file or
// environment overrides are present.
func Default() Config {
	return Config{
		Database: db.DefaultConfig(),
		Server: ServerConfig{
			Addr:        ":8080",
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Storage: StorageConfig{
			Driver:    "postgres",
			SQLiteDSN: "file:auditq.sqlite",
		},
	}
}

// Load reads config.yaml from configPath and applies environment overrides
// (AUDITQ_ prefix, e.g. AUDITQ_DATABASE_HOST).
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("AUDITQ")

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("server.addr")
	v.BindEnv("storage.driver")
	v.BindEnv("storage.sqlite_dsn")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Use defaults + env.
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.cors_origins") {
		cfg.Server.CORSOrigins = v.GetStringSlice("server.cors_origins")
	}
	if v.IsSet("storage.driver") {
		cfg.Storage.Driver = v.GetString("storage.driver")
	}
	if v.IsSet("storage.sqlite_dsn") {
		cfg.Storage.SQLiteDSN = v.GetString("storage.sqlite_dsn")
	}
	if v.IsSet("tracking") {
		if err := v.UnmarshalKey("tracking", &cfg.Tracking); err != nil {
			return cfg, fmt.Errorf("failed to parse tracking config: %w", err)
		}
	}

	return cfg, nil
}
