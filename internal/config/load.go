package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config file. Environment variables take precedence over file values and
// use the DISPATCH_ prefix with underscores for nesting, e.g.
// DISPATCH_SCHEDULER_WORKER_COUNT=8. Returns a validated Config or an
// error describing what failed.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/dispatch")

	v.SetEnvPrefix("DISPATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; env vars and defaults carry it.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("scheduler.backend", "memory")
	v.SetDefault("scheduler.worker_count", 4)
	v.SetDefault("scheduler.max_queue_size", 1000)
	v.SetDefault("scheduler.poll_interval", "1s")
	v.SetDefault("scheduler.cleanup_interval", "60s")
	v.SetDefault("scheduler.retention_period", "24h")
	v.SetDefault("scheduler.shutdown_timeout", "30s")
	v.SetDefault("scheduler.backend_op_timeout", "5s")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("database.url", "")
}

// validate runs struct-tag validation plus the backend-conditional checks
// the tags cannot express.
func validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	switch cfg.Scheduler.Backend {
	case "redis":
		if cfg.Redis.Addr == "" {
			return errors.New("invalid configuration: redis.addr is required when scheduler.backend is redis")
		}
	case "postgres":
		if cfg.Database.URL == "" {
			return errors.New("invalid configuration: database.url is required when scheduler.backend is postgres")
		}
	}
	return nil
}
