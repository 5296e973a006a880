// Package config loads the service configuration from an optional YAML file,
// a .env file and LUCKYDRAW_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Log      LogConfig
	Lottery  LotteryConfig
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            int
	Mode            string
	ShutdownTimeout time.Duration
}

// DatabaseConfig selects and configures the entity store.
type DatabaseConfig struct {
	Driver       string
	DSN          string
	MaxOpenConns int
	Migrate      bool
}

// LogConfig configures google/logger.
type LogConfig struct {
	Verbose bool
	File    string
}

// LotteryConfig holds the draw and demo data settings.
type LotteryConfig struct {
	SeedDemo   bool
	CodeLength int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdownTimeout", 10*time.Second)
	v.SetDefault("database.driver", DriverMemory)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.maxOpenConns", 10)
	v.SetDefault("database.migrate", true)
	v.SetDefault("log.verbose", false)
	v.SetDefault("log.file", "")
	v.SetDefault("lottery.seedDemo", false)
	v.SetDefault("lottery.codeLength", 8)
}

// Load reads the configuration. path may be empty, in which case only
// defaults and the environment apply.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("LUCKYDRAW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetInt("server.port"),
			Mode:            v.GetString("server.mode"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
		},
		Database: DatabaseConfig{
			Driver:       strings.ToLower(v.GetString("database.driver")),
			DSN:          v.GetString("database.dsn"),
			MaxOpenConns: v.GetInt("database.maxOpenConns"),
			Migrate:      v.GetBool("database.migrate"),
		},
		Log: LogConfig{
			Verbose: v.GetBool("log.verbose"),
			File:    v.GetString("log.file"),
		},
		Lottery: LotteryConfig{
			SeedDemo:   v.GetBool("lottery.seedDemo"),
			CodeLength: v.GetInt("lottery.codeLength"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values Load cannot coerce.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Database.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}
	if c.Lottery.CodeLength < 6 || c.Lottery.CodeLength > 10 {
		errs = append(errs, fmt.Errorf("lottery.codeLength %d must be between 6 and 10", c.Lottery.CodeLength))
	}
	return errors.Join(errs...)
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
