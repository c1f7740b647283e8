// Package config loads server configuration from the environment. A .env
// file in the working directory is honored when present.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr      string `env:"WARLOCK_ADDR" envDefault:":8080"`
	LogLevel  string `env:"WARLOCK_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"WARLOCK_LOG_FORMAT" envDefault:"json"`

	// MySQLDSN enables snapshot persistence. Empty keeps snapshots in
	// memory only.
	MySQLDSN string `env:"WARLOCK_MYSQL_DSN"`

	// AMQPURL enables the end-of-game archive queue. Empty disables it.
	AMQPURL      string `env:"WARLOCK_AMQP_URL"`
	ArchiveQueue string `env:"WARLOCK_ARCHIVE_QUEUE" envDefault:"warlock.archive"`

	// SessionSecret signs reconnect session tokens.
	SessionSecret string        `env:"WARLOCK_SESSION_SECRET" envDefault:"dev-only-secret"`
	SessionTTL    time.Duration `env:"WARLOCK_SESSION_TTL" envDefault:"24h"`

	TracingEnabled bool `env:"WARLOCK_TRACING" envDefault:"false"`

	// Game pacing.
	ActionTimeout  time.Duration `env:"WARLOCK_ACTION_TIMEOUT" envDefault:"60s"`
	ReadyGrace     time.Duration `env:"WARLOCK_READY_GRACE" envDefault:"3s"`
	ReconnectGrace time.Duration `env:"WARLOCK_RECONNECT_GRACE" envDefault:"90s"`
	MinPlayers     int           `env:"WARLOCK_MIN_PLAYERS" envDefault:"4"`
	MaxPlayers     int           `env:"WARLOCK_MAX_PLAYERS" envDefault:"12"`

	// Event bus.
	HistorySize        int           `env:"WARLOCK_HISTORY_SIZE" envDefault:"1000"`
	RateLimitWindow    time.Duration `env:"WARLOCK_RATE_WINDOW" envDefault:"60s"`
	RateLimitMax       int           `env:"WARLOCK_RATE_MAX" envDefault:"100"`
	SlowEventThreshold time.Duration `env:"WARLOCK_SLOW_EVENT" envDefault:"100ms"`

	// Socket.
	InboundPerSecond float64 `env:"WARLOCK_INBOUND_PER_SECOND" envDefault:"20"`
	InboundBurst     int     `env:"WARLOCK_INBOUND_BURST" envDefault:"40"`
}

// Load reads .env (if any) and parses the environment into a Config.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.MinPlayers < 2 {
		return Config{}, fmt.Errorf("WARLOCK_MIN_PLAYERS must be at least 2, got %d", cfg.MinPlayers)
	}
	if cfg.HistorySize <= 0 {
		return Config{}, fmt.Errorf("WARLOCK_HISTORY_SIZE must be positive, got %d", cfg.HistorySize)
	}
	return cfg, nil
}
