// Package config loads process settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/DoyleJ11/esports-draft/internal/engine"
	"github.com/DoyleJ11/esports-draft/internal/session"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type Config struct {
	HTTPAddr       string   `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	Dev            bool     `env:"DEV" envDefault:"false"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	BanTimer          time.Duration `env:"BAN_TIMER" envDefault:"30s"`
	PickTimer         time.Duration `env:"PICK_TIMER" envDefault:"30s"`
	FinalizationTimer time.Duration `env:"FINALIZATION_TIMER" envDefault:"60s"`
	TimeoutPolicy     string        `env:"TIMEOUT_POLICY" envDefault:"lowest"`

	TickInterval      time.Duration `env:"TICK_INTERVAL" envDefault:"100ms"`
	BroadcastInterval time.Duration `env:"BROADCAST_INTERVAL" envDefault:"200ms"`
	ReconnectGrace    time.Duration `env:"RECONNECT_GRACE" envDefault:"30s"`
	RetentionTTL      time.Duration `env:"RETENTION_TTL" envDefault:"1h"`
	IdleTTL           time.Duration `env:"IDLE_TTL" envDefault:"2h"`
	WSPingInterval    time.Duration `env:"WS_PING_INTERVAL" envDefault:"20s"`

	AutoCreateSessions bool `env:"AUTO_CREATE_SESSIONS" envDefault:"true"`

	StoreDriver      string        `env:"STORE_DRIVER" envDefault:"memory"`
	DatabaseURL      string        `env:"DATABASE_URL"`
	RedisURL         string        `env:"REDIS_URL"`
	RedisSnapshotTTL time.Duration `env:"REDIS_SNAPSHOT_TTL" envDefault:"168h"`

	NATSURL     string `env:"NATS_URL"`
	NATSSubject string `env:"NATS_SUBJECT" envDefault:"draft.sessions"`

	ChampionPoolFile string `env:"CHAMPION_POOL_FILE"`
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
	case StoreRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch engine.TimeoutPolicy(c.TimeoutPolicy) {
	case engine.TimeoutLowest, engine.TimeoutHover:
	default:
		return fmt.Errorf("unknown TIMEOUT_POLICY %q", c.TimeoutPolicy)
	}
	if c.BanTimer <= 0 || c.PickTimer <= 0 {
		return errors.New("BAN_TIMER and PICK_TIMER must be positive")
	}
	return nil
}

// Rules are the defaults a fresh session starts with.
func (c Config) Rules() engine.Rules {
	return engine.Rules{
		BanTimerSec:          int(c.BanTimer / time.Second),
		PickTimerSec:         int(c.PickTimer / time.Second),
		FinalizationTimerSec: int(c.FinalizationTimer / time.Second),
		TimeoutPolicy:        engine.TimeoutPolicy(c.TimeoutPolicy),
	}
}

func (c Config) SessionSettings() session.Settings {
	return session.Settings{
		TickInterval:      c.TickInterval,
		BroadcastInterval: c.BroadcastInterval,
		ReconnectGrace:    c.ReconnectGrace,
		RetentionTTL:      c.RetentionTTL,
		IdleTTL:           c.IdleTTL,
		StoreTimeout:      5 * time.Second,
	}
}

// NewLogger builds the process logger. DEV switches to the console encoder.
func NewLogger(c Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	zc := zap.NewProductionConfig()
	if c.Dev {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
