package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	libconfig "chargeshare/backend/libs/config"
)

// Config defines settlement service configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"SETTLEMENT_HTTP_PORT"`
	} `yaml:"http"`
	Database struct {
		DSN string `yaml:"dsn" env:"SETTLEMENT_POSTGRES_DSN"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr" env:"SETTLEMENT_REDIS_ADDR"`
		Password string `yaml:"password" env:"SETTLEMENT_REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"SETTLEMENT_REDIS_DB"`
	} `yaml:"redis"`
	Stream struct {
		Group    string `yaml:"group" env:"SETTLEMENT_STREAM_GROUP"`
		Consumer string `yaml:"consumer" env:"SETTLEMENT_STREAM_CONSUMER"`
	} `yaml:"stream"`
	Payments struct {
		BaseURL       string        `yaml:"baseURL" env:"SETTLEMENT_PAYMENTS_BASE_URL"`
		APIKey        string        `yaml:"apiKey" env:"SETTLEMENT_PAYMENTS_API_KEY"`
		Timeout       time.Duration `yaml:"timeout" env:"SETTLEMENT_PAYMENTS_TIMEOUT"`
		HoldCents     int64         `yaml:"holdCents" env:"SETTLEMENT_HOLD_CENTS"`
		PlatformShare float64       `yaml:"platformShare" env:"SETTLEMENT_PLATFORM_SHARE"`
	} `yaml:"payments"`
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Port = "8081"
	cfg.Redis.Addr = "localhost:6379"
	cfg.Stream.Group = "settlement"
	cfg.Payments.Timeout = 15 * time.Second

	if err := libconfig.Load(cfg); err != nil {
		return nil, err
	}

	if cfg.Stream.Consumer == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "settlement-1"
		}
		cfg.Stream.Consumer = host
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, errors.New("config: database dsn required")
	}
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return nil, errors.New("config: redis addr required")
	}
	if strings.TrimSpace(cfg.Payments.BaseURL) == "" {
		return nil, errors.New("config: payments base url required")
	}
	if strings.TrimSpace(cfg.Payments.APIKey) == "" {
		return nil, errors.New("config: payments api key required")
	}
	return cfg, nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8081"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}
