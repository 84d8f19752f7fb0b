// Package config holds the wizard-server configuration.
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	SOAP     SOAPConfig     `mapstructure:"soap"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Session  SessionConfig  `mapstructure:"session"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Bypass   BypassConfig   `mapstructure:"test_bypass"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// IsDevelopment reports whether the development-mode localhost exception to
// the origin allow-list applies.
func (a AppConfig) IsDevelopment() bool {
	return a.Environment == "" || a.Environment == "development"
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// SOAPConfig holds the legacy PAQ web service connection settings.
type SOAPConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Timeout  int    `mapstructure:"timeout"` // milliseconds
}

// WebhookConfig holds the step-outcome notification sink settings.
// An empty URL disables delivery.
type WebhookConfig struct {
	URL     string `mapstructure:"url"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

// SessionConfig selects the view-state repository backend.
type SessionConfig struct {
	Backend    string `mapstructure:"backend"` // "memory" or "redis"
	TTLMinutes int    `mapstructure:"ttl_minutes"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BypassConfig substitutes canned responses for a designated test phone number
// and accepts a designated bypass OTP value. Deployment concern, off by default.
type BypassConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	Phone          string  `mapstructure:"phone"`
	Token          string  `mapstructure:"token"`
	ApprovedAmount float64 `mapstructure:"approved_amount"`
	RequestID      string  `mapstructure:"request_id"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 {
		return fmt.Errorf("server.port must be positive")
	}
	if cfg.SOAP.URL == "" {
		return fmt.Errorf("soap.url is required")
	}
	if cfg.Session.Backend != "memory" && cfg.Session.Backend != "redis" {
		return fmt.Errorf("session.backend must be \"memory\" or \"redis\", got %q", cfg.Session.Backend)
	}
	if cfg.Session.Backend == "redis" && cfg.Redis.Address == "" {
		return fmt.Errorf("redis.address is required when session.backend is redis")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "wizard-server"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.SOAP.Timeout == 0 {
		cfg.SOAP.Timeout = 30000
	}
	if cfg.Webhook.Timeout == 0 {
		cfg.Webhook.Timeout = 10000
	}
	if cfg.Session.Backend == "" {
		cfg.Session.Backend = "memory"
	}
	if cfg.Session.TTLMinutes == 0 {
		cfg.Session.TTLMinutes = 30
	}
	if cfg.Bypass.Phone == "" {
		cfg.Bypass.Phone = "50502180"
	}
	if cfg.Bypass.Token == "" {
		cfg.Bypass.Token = "222222"
	}
	if cfg.Bypass.ApprovedAmount == 0 {
		cfg.Bypass.ApprovedAmount = 3500
	}
	if cfg.Bypass.RequestID == "" {
		cfg.Bypass.RequestID = "TEST-001"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
