// Package config loads pipeline settings from the environment.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// A .env file in the working directory is loaded if present and never
// overrides variables already set. Missing required values or invalid
// formats fail the run at startup.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigErrorType classifies configuration failures.
type ConfigErrorType string

const (
	ErrParsing    ConfigErrorType = "PARSING"
	ErrValidation ConfigErrorType = "VALIDATION"
)

// ConfigError is a diagnostic error type returned by Load.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Config holds all pipeline settings, populated from environment variables.
type Config struct {
	// Storage backend. DATABASE_URL is required for the postgres driver;
	// the sqlite driver writes to SQLITE_PATH.
	StoreDriver string `envconfig:"STORE_DRIVER" default:"sqlite" validate:"oneof=postgres sqlite memory"`
	DatabaseURL string `envconfig:"DATABASE_URL" validate:"required_if=StoreDriver postgres,omitempty,url"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"weather.db"`

	// Observation feed. The feed is enabled when KAFKA_BROKERS is set.
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"weather-observations"`

	// Pushgateway endpoint for batch-run metrics. Empty disables the push.
	// MetricsJob overrides the job label; each command defaults to its own
	// name.
	MetricsPushURL string `envconfig:"METRICS_PUSH_URL" validate:"omitempty,url"`
	MetricsJob     string `envconfig:"METRICS_JOB"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json text"`
	LogOutput string `envconfig:"LOG_OUTPUT" default:"stderr" validate:"oneof=stderr stdout"`
}

// FeedEnabled reports whether accepted observations should be published
// to Kafka.
func (c *Config) FeedEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from the environment, applying defaults where
// unset and validating the result.
func Load() (*Config, error) {
	// Does not override variables already set in the OS environment.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	return &cfg, nil
}
