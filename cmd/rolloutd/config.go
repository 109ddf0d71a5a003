package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Log          LogConfig          `mapstructure:"log"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Inventory    InventoryConfig    `mapstructure:"inventory"`
	Deployments  DeploymentsConfig  `mapstructure:"deployments"`
	Capabilities CapabilitiesConfig `mapstructure:"capabilities"`
	Planner      PlannerConfig      `mapstructure:"planner"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	PublicURL       string        `mapstructure:"public_url"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuthConfig holds gateway identity configuration.
type AuthConfig struct {
	// SharedSecret is an optional secret to validate X-Gateway-Secret.
	// If empty, secret validation is skipped.
	SharedSecret string `mapstructure:"shared_secret"`

	// RequireUser rejects API calls without an X-User-ID header.
	RequireUser bool `mapstructure:"require_user"`
}

// InventoryConfig holds the device count service configuration.
type InventoryConfig struct {
	URL             string        `mapstructure:"url"`
	Token           string        `mapstructure:"token"`
	Timeout         time.Duration `mapstructure:"timeout"`
	PreviewPageSize int           `mapstructure:"preview_page_size"`
}

// DeploymentsConfig holds the deployment creation service configuration.
type DeploymentsConfig struct {
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CapabilitiesConfig holds tenant plan features.
type CapabilitiesConfig struct {
	// CanRetry enables the retries field of created deployments.
	CanRetry bool `mapstructure:"can_retry"`
}

// PlannerConfig holds planning session configuration.
type PlannerConfig struct {
	// FetchTimeout bounds each device count query of a session.
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`

	// IdleTimeout closes sessions nobody has used for this long.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// ReapInterval is how often idle sessions are looked for.
	ReapInterval time.Duration `mapstructure:"reap_interval"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("database.dsn", "data/rollout.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("auth.shared_secret", "")
	v.SetDefault("auth.require_user", false)

	v.SetDefault("inventory.url", "http://localhost:8081/api/management/v1/inventory")
	v.SetDefault("inventory.token", "")
	v.SetDefault("inventory.timeout", "10s")
	v.SetDefault("inventory.preview_page_size", 10)

	// The creation call has no retries, so it gets a longer bound.
	v.SetDefault("deployments.url", "http://localhost:8082/api/management/v1/deployments")
	v.SetDefault("deployments.token", "")
	v.SetDefault("deployments.timeout", "30s")

	v.SetDefault("capabilities.can_retry", false)
	v.SetDefault("planner.fetch_timeout", "15s")
	v.SetDefault("planner.idle_timeout", "30m")
	v.SetDefault("planner.reap_interval", "1m")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// A missing file falls back to defaults; a broken one does not.
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("ROLLOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values viper cannot reject on its own.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Inventory.URL == "" {
		return fmt.Errorf("inventory.url is required")
	}
	if c.Deployments.URL == "" {
		return fmt.Errorf("deployments.url is required")
	}
	return nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
