// Package config defines and loads the application configuration.
package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
}

// ServerConfig contains all HTTP server settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// SchedulerConfig contains the task scheduling engine settings.
type SchedulerConfig struct {
	// Backend selects the queue store: the bounded in-process queue, or a
	// durable Redis/Postgres store shared across processes.
	Backend string `mapstructure:"backend" validate:"required,oneof=memory redis postgres"`

	WorkerCount     int           `mapstructure:"worker_count" validate:"required,gt=0,lte=256"`
	MaxQueueSize    int           `mapstructure:"max_queue_size" validate:"required,gt=0"`
	PollInterval    time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" validate:"gt=0"`
	RetentionPeriod time.Duration `mapstructure:"retention_period" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`

	// BackendOpTimeout bounds individual durable-backend calls at submit
	// and dequeue time, independent of task execution timeouts.
	BackendOpTimeout time.Duration `mapstructure:"backend_op_timeout" validate:"gt=0"`
}

// RedisConfig contains connection settings for the Redis queue backend.
// Required only when scheduler.backend is "redis"; Load enforces that.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// DatabaseConfig contains connection settings for the Postgres queue
// backend. Required only when scheduler.backend is "postgres".
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}
