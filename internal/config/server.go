package config

import (
	"errors"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type ServerConfig struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8000"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"sqlite"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"twovue.db"`
	PostgresDSN string `env:"POSTGRES_DSN"`
	RedisURL    string `env:"REDIS_URL"`
	RelayOutbox int    `env:"RELAY_OUTBOX" envDefault:"256"`

	AdminAPIKey string `env:"ADMIN_API_KEY"`

	DetectorURL       string        `env:"DETECTOR_URL"`
	DetectorTimeout   time.Duration `env:"DETECTOR_TIMEOUT" envDefault:"10s"`
	DetectorMaxLabels int           `env:"DETECTOR_MAX_LABELS" envDefault:"20"`

	GameIDAttempts     int           `env:"GAME_ID_ATTEMPTS" envDefault:"5"`
	SubscriberBuffer   int           `env:"SUBSCRIBER_BUFFER" envDefault:"16"`
	StreamPingInterval time.Duration `env:"STREAM_PING_INTERVAL" envDefault:"15s"`
}

func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, err
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	switch cfg.StoreDriver {
	case StoreDriverSQLite:
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			return cfg, errors.New("SQLITE_PATH is required for the sqlite store")
		}
	case StoreDriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return cfg, errors.New("POSTGRES_DSN is required for the postgres store")
		}
	case StoreDriverMemory:
	default:
		return cfg, errors.New("unknown STORE_DRIVER " + cfg.StoreDriver)
	}
	if cfg.GameIDAttempts < 1 {
		cfg.GameIDAttempts = 1
	}
	return cfg, nil
}
