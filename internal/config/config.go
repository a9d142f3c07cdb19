// Package config loads the CLI configuration.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// BackendKind selects the dispatcher implementation.
type BackendKind string

const (
	BackendFile  BackendKind = "file"
	BackendSQL   BackendKind = "sql"
	BackendRedis BackendKind = "redis"
)

// Config is the process configuration.
type Config struct {
	Backend  Backend  `mapstructure:"backend"`
	Executor Executor `mapstructure:"executor"`
	Log      Log      `mapstructure:"log"`
}

type Backend struct {
	Kind BackendKind `mapstructure:"kind"`
	// Dir is the file backend's catalog directory.
	Dir string `mapstructure:"dir"`
	// DSN is the sql backend's database path.
	DSN string `mapstructure:"dsn"`
	// RedisURL layers a Redis installed-state store over the catalog
	// backend when set.
	RedisURL string `mapstructure:"redisUrl"`
}

type Executor struct {
	// Workers bounds concurrent client executions.
	Workers int `mapstructure:"workers"`
	// ContinueOnError switches the per-client failure policy.
	ContinueOnError bool `mapstructure:"continueOnError"`
}

type Log struct {
	Level string `mapstructure:"level"`
}

// Load reads the configuration file at path, or defaults when path is
// empty. Environment variables prefixed DEPFLOW_ override file values.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("backend.kind", string(BackendFile))
	v.SetDefault("backend.dir", ".")
	v.SetDefault("executor.workers", 8)
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("DEPFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	switch cfg.Backend.Kind {
	case BackendFile, BackendSQL, BackendRedis:
	default:
		return Config{}, fmt.Errorf("unknown backend kind %q", cfg.Backend.Kind)
	}
	return cfg, nil
}
