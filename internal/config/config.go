package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis"    validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"     validate:"required"`
	Tasking  TaskingConfig  `mapstructure:"tasking"  validate:"required"`
}

// ServerConfig contains all HTTP server related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// RedisConfig contains the settings for the message-bus transport.
type RedisConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// AuthConfig contains all authentication settings for the management API.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
}

// TaskingConfig contains the task engine thresholds.
//
// FailureThreshold values below 1 disable the consecutive-failure guard
// entirely, matching the behavior of a missing setting.
type TaskingConfig struct {
	// ConcurrencyThreshold caps how many tasks may run simultaneously.
	ConcurrencyThreshold int `mapstructure:"concurrency_threshold" validate:"required,gte=1"`

	// FailureThreshold is the number of consecutive failures after which
	// further dispatch is blocked until an operator resets the counter.
	FailureThreshold int `mapstructure:"failure_threshold"`

	// FailurePolicy selects the counter scope: per unique key or global.
	FailurePolicy string `mapstructure:"failure_policy" validate:"required,oneof=per_key global"`

	// ScheduleThreshold is the skip-if-stale window for scheduled tasks.
	// Zero disables staleness checking.
	ScheduleThreshold time.Duration `mapstructure:"schedule_threshold" validate:"gte=0"`

	// DispatchInterval is the period of the queue's dispatch loop.
	DispatchInterval time.Duration `mapstructure:"dispatch_interval" validate:"required,gt=0"`

	// ReplyTimeout is the default watchdog deadline for remote invocations.
	ReplyTimeout time.Duration `mapstructure:"reply_timeout" validate:"required,gt=0"`
}
