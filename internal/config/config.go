// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Environment represents the deployment environment of the service.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// String returns the string representation of the environment.
func (e Environment) String() string {
	return string(e)
}

// IsProduction reports whether the environment corresponds to production.
func (e Environment) IsProduction() bool {
	return e == Production
}

// ParseEnvironment normalises the provided value into one of the known
// environments. Unknown values fall back to Development so the application
// can still start with sensible defaults.
func ParseEnvironment(v string) Environment {
	switch Environment(v) {
	case Production:
		return Production
	case Staging:
		return Staging
	case Testing:
		return Testing
	default:
		return Development
	}
}

// Settings holds the environment-driven configuration. Command line flags
// may override individual values after loading.
type Settings struct {
	Env           string `envconfig:"GUTCHECK_ENV" default:"development"`
	APIAddr       string `envconfig:"API_ADDR" default:":8080"`
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel   string `envconfig:"OPENAI_MODEL"`
	DBDSN         string `envconfig:"DATABASE_URL"`
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	DefaultRegion string `envconfig:"DEFAULT_REGION" default:"UK"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads Settings from the environment.
func Load() (Settings, error) {
	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		return Settings{}, fmt.Errorf("failed to process environment configuration: %w", err)
	}
	slog.Debug("Config.Load: environment configuration loaded",
		"env", s.Env, "api_addr", s.APIAddr,
		"openai_key_set", s.OpenAIAPIKey != "", "db_dsn_set", s.DBDSN != "",
		"redis_addr", s.RedisAddr, "default_region", s.DefaultRegion,
		"log_level", s.LogLevel)
	return s, nil
}

// Environment returns the parsed deployment environment.
func (s Settings) Environment() Environment {
	return ParseEnvironment(s.Env)
}

// SlogLevel maps the configured log level onto a slog.Level. Unknown values
// default to info.
func (s Settings) SlogLevel() slog.Level {
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
