package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Terminal  TerminalConfig
	Auth      AuthConfig
	Audit     AuditConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// CORSConfig lists origins allowed for CORS and the websocket handshake.
type CORSConfig struct {
	AllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// TerminalConfig holds session settings.
type TerminalConfig struct {
	BaseDir            string        `envconfig:"TERMINAL_BASE_DIR" default:"./data/terminal"`
	Shell              string        `envconfig:"TERMINAL_SHELL"`
	IdleTimeout        time.Duration `envconfig:"TERMINAL_IDLE_TIMEOUT" default:"30m"`
	ReapInterval       time.Duration `envconfig:"TERMINAL_REAP_INTERVAL" default:"1m"`
	ExecTimeout        time.Duration `envconfig:"TERMINAL_EXEC_TIMEOUT" default:"60s"`
	MaxOutput          int64         `envconfig:"TERMINAL_MAX_OUTPUT" default:"1048576"`
	HistoryLimit       int           `envconfig:"TERMINAL_HISTORY_LIMIT" default:"1000"`
	MaxSessions        int           `envconfig:"TERMINAL_MAX_SESSIONS" default:"10"`
	PolicyFile         string        `envconfig:"TERMINAL_POLICY_FILE"`
	DisableInteractive bool          `envconfig:"TERMINAL_DISABLE_INTERACTIVE" default:"false"`
}

// AuthConfig holds caller identity settings.
type AuthConfig struct {
	// Token, when set, must accompany every authenticated request
	Token      string `envconfig:"AUTH_TOKEN"`
	UserHeader string `envconfig:"AUTH_USER_HEADER" default:"X-User-ID"`
}

// AuditConfig holds command audit settings.
type AuditConfig struct {
	Enabled       bool   `envconfig:"AUDIT_ENABLED" default:"false"`
	DBPath        string `envconfig:"AUDIT_DB_PATH" default:"./data/audit.db"`
	RetentionDays int    `envconfig:"AUDIT_RETENTION_DAYS" default:"90"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Terminal: TerminalConfig{
			BaseDir:      "./data/terminal",
			IdleTimeout:  30 * time.Minute,
			ReapInterval: time.Minute,
			ExecTimeout:  60 * time.Second,
			MaxOutput:    1 << 20,
			HistoryLimit: 1000,
			MaxSessions:  10,
		},
		Auth: AuthConfig{
			UserHeader: "X-User-ID",
		},
		Audit: AuditConfig{
			DBPath:        "./data/audit.db",
			RetentionDays: 90,
		},
	}
}
