package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/samber/lo"
)

// Config holds application configuration
type Config struct {
	// サーバー設定
	ServerPort      string        `envconfig:"SERVER_PORT" default:"8080"`
	Env             string        `envconfig:"ENV" default:"development"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	// CORS設定
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000,http://127.0.0.1:3000"`

	// メッセージ設定 (0 = unlimited)
	MaxMessages      int `envconfig:"MAX_MESSAGES" default:"0"`
	MaxContentLength int `envconfig:"MAX_CONTENT_LENGTH" default:"0"`
	SendRatePerSec   int `envconfig:"SEND_RATE_PER_SEC" default:"0"`
	SendBurst        int `envconfig:"SEND_BURST" default:"10"`

	// WebSocket設定
	SubscriberBuffer int           `envconfig:"SUBSCRIBER_BUFFER" default:"64"`
	PingInterval     time.Duration `envconfig:"WS_PING_INTERVAL" default:"30s"`
	PongWait         time.Duration `envconfig:"WS_PONG_WAIT" default:"60s"`
	WriteTimeout     time.Duration `envconfig:"WS_WRITE_TIMEOUT" default:"10s"`
	InitTimeout      time.Duration `envconfig:"WS_INIT_TIMEOUT" default:"3s"`
}

// Load loads configuration from environment variables
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.AllowedOrigins = lo.Compact(lo.Map(cfg.AllowedOrigins, func(o string, _ int) string {
		return strings.TrimSpace(o)
	}))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	switch {
	case c.MaxMessages < 0:
		return fmt.Errorf("MAX_MESSAGES must be >= 0, got %d", c.MaxMessages)
	case c.MaxContentLength < 0:
		return fmt.Errorf("MAX_CONTENT_LENGTH must be >= 0, got %d", c.MaxContentLength)
	case c.SendRatePerSec < 0:
		return fmt.Errorf("SEND_RATE_PER_SEC must be >= 0, got %d", c.SendRatePerSec)
	case c.SubscriberBuffer <= 0:
		return fmt.Errorf("SUBSCRIBER_BUFFER must be > 0, got %d", c.SubscriberBuffer)
	case c.PingInterval <= 0 || c.PongWait <= c.PingInterval:
		return fmt.Errorf("WS_PONG_WAIT (%s) must be greater than WS_PING_INTERVAL (%s)", c.PongWait, c.PingInterval)
	}
	return nil
}

// IsDevelopment reports whether the server runs with the development profile.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}
