package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env"

	"github.com/skylift-io/dispatch-go/internal/domain"
)

// Config represents the application configuration with comprehensive options
type Config struct {
	// Environment and basic settings
	Environment string `env:"ENV" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"INFO"`

	// Server configuration
	Port            int           `env:"PORT" envDefault:"6660"`
	WebSocketPort   int           `env:"WEBSOCKET_PORT" envDefault:"6661"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	ShutdownGrace   time.Duration `env:"SERVER_SHUTDOWN_GRACE" envDefault:"2s"`

	// Dispatch core configuration
	FloorTravelDuration time.Duration `env:"FLOOR_TRAVEL_DURATION" envDefault:"3s"`
	AccelerateDuration  time.Duration `env:"ACCELERATE_DURATION" envDefault:"1s"`
	DoorMoveDuration    time.Duration `env:"DOOR_MOVE_DURATION" envDefault:"1s"`
	DoorStayDuration    time.Duration `env:"DOOR_STAY_DURATION" envDefault:"3s"`
	Floors              string        `env:"FLOORS" envDefault:"-1,1,2,3"`
	DefaultFloor        string        `env:"DEFAULT_FLOOR" envDefault:"1"`
	ElevatorCount       int           `env:"ELEVATOR_COUNT" envDefault:"2"`
	Strategy            string        `env:"STRATEGY" envDefault:"optimal"`
	MaxElevators        int           `env:"MAX_ELEVATORS" envDefault:"100"`

	// Monitoring
	MetricsEnabled    bool   `env:"METRICS_ENABLED" envDefault:"true"`
	MetricsPath       string `env:"METRICS_PATH" envDefault:"/metrics"`
	HealthEnabled     bool   `env:"HEALTH_ENABLED" envDefault:"true"`
	HealthPath        string `env:"HEALTH_PATH" envDefault:"/health"`
	StructuredLogging bool   `env:"STRUCTURED_LOGGING" envDefault:"true"`
	TracingEnabled    bool   `env:"TRACING_ENABLED" envDefault:"true"`

	// WebSocket
	WebSocketEnabled           bool          `env:"WEBSOCKET_ENABLED" envDefault:"true"`
	WebSocketPath              string        `env:"WEBSOCKET_PATH" envDefault:"/ws"`
	WebSocketWriteTimeout      time.Duration `env:"WEBSOCKET_WRITE_TIMEOUT" envDefault:"5s"`
	WebSocketReadTimeout       time.Duration `env:"WEBSOCKET_READ_TIMEOUT" envDefault:"60s"`
	WebSocketPingInterval      time.Duration `env:"WEBSOCKET_PING_INTERVAL" envDefault:"30s"`
	WebSocketStatusInterval    time.Duration `env:"WEBSOCKET_STATUS_INTERVAL" envDefault:"100ms"`
	WebSocketMaxConnections    int           `env:"WEBSOCKET_MAX_CONNECTIONS" envDefault:"1000"`
	WebSocketConnectionTimeout time.Duration `env:"WEBSOCKET_CONNECTION_TIMEOUT" envDefault:"10m"`
}

// InitConfig initializes the configuration from environment variables with
// environment-specific defaults and validation.
func InitConfig() (*Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	applyEnvironmentDefaults(&cfg)

	if err := validateConfiguration(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvironmentDefaults applies environment-specific default values
func applyEnvironmentDefaults(cfg *Config) {
	switch cfg.Environment {
	case "development", "dev":
		if cfg.LogLevel == "INFO" {
			cfg.LogLevel = "DEBUG"
		}

	case "testing", "test":
		cfg.LogLevel = "WARN"

		// Very fast operations for rigorous testing
		cfg.FloorTravelDuration = 30 * time.Millisecond
		cfg.AccelerateDuration = 10 * time.Millisecond
		cfg.DoorMoveDuration = 10 * time.Millisecond
		cfg.DoorStayDuration = 30 * time.Millisecond

		cfg.MetricsEnabled = false
		cfg.TracingEnabled = false
		cfg.WebSocketEnabled = false
		cfg.MaxElevators = 5

	case "production", "prod":
		cfg.LogLevel = "WARN"

		cfg.ReadTimeout = 15 * time.Second
		cfg.WriteTimeout = 15 * time.Second
		cfg.IdleTimeout = 60 * time.Second

		cfg.WebSocketMaxConnections = 5000
		cfg.WebSocketWriteTimeout = 2 * time.Second
		cfg.WebSocketReadTimeout = 30 * time.Second
		cfg.WebSocketPingInterval = 15 * time.Second
	}
}

// validateConfiguration performs comprehensive configuration validation
func validateConfiguration(cfg *Config) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return domain.NewValidationError("port must be between 1 and 65535", nil).
			WithContext("port", cfg.Port)
	}

	if cfg.WebSocketPort <= 0 || cfg.WebSocketPort > 65535 {
		return domain.NewValidationError("websocket port must be between 1 and 65535", nil).
			WithContext("port", cfg.WebSocketPort)
	}

	if cfg.FloorTravelDuration <= 0 {
		return domain.NewValidationError("floor travel duration must be positive", nil).
			WithContext("duration", cfg.FloorTravelDuration)
	}

	if cfg.DoorMoveDuration <= 0 {
		return domain.NewValidationError("door move duration must be positive", nil).
			WithContext("duration", cfg.DoorMoveDuration)
	}

	if cfg.DoorStayDuration < 0 {
		return domain.NewValidationError("door stay duration cannot be negative", nil).
			WithContext("duration", cfg.DoorStayDuration)
	}

	if cfg.ElevatorCount < 1 || cfg.ElevatorCount > cfg.MaxElevators {
		return domain.NewValidationError("elevator count out of range", nil).
			WithContext("elevator_count", cfg.ElevatorCount).
			WithContext("max_elevators", cfg.MaxElevators)
	}

	if _, err := domain.ParseStrategy(cfg.Strategy); err != nil {
		return err
	}

	if _, err := domain.NewFloorRange(cfg.FloorLabels()); err != nil {
		return err
	}

	if _, err := domain.ParseFloor(cfg.DefaultFloor); err != nil {
		return err
	}

	return nil
}

// FloorLabels splits the configured floor list into labels.
func (c *Config) FloorLabels() []string {
	parts := strings.Split(c.Floors, ",")
	labels := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			labels = append(labels, trimmed)
		}
	}
	return labels
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// IsTesting returns true if running in testing environment
func (c *Config) IsTesting() bool {
	return c.Environment == "testing" || c.Environment == "test"
}

// GetEnvironmentInfo returns environment information for logging/debugging
func (c *Config) GetEnvironmentInfo() map[string]interface{} {
	return map[string]interface{}{
		"environment":       c.Environment,
		"log_level":         c.LogLevel,
		"port":              c.Port,
		"elevator_count":    c.ElevatorCount,
		"strategy":          c.Strategy,
		"metrics_enabled":   c.MetricsEnabled,
		"websocket_enabled": c.WebSocketEnabled,
		"tracing_enabled":   c.TracingEnabled,
	}
}
