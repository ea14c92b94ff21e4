package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "chargeshare/backend/libs/config"
)

// Config defines marketplace service configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"MARKETPLACE_HTTP_PORT"`
	} `yaml:"http"`
	Database struct {
		DSN string `yaml:"dsn" env:"MARKETPLACE_POSTGRES_DSN"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr" env:"MARKETPLACE_REDIS_ADDR"`
		Password string `yaml:"password" env:"MARKETPLACE_REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"MARKETPLACE_REDIS_DB"`
	} `yaml:"redis"`
	Auth struct {
		JWTSecret string        `yaml:"jwtSecret" env:"MARKETPLACE_JWT_SECRET"`
		TokenTTL  time.Duration `yaml:"tokenTTL" env:"MARKETPLACE_TOKEN_TTL"`
	} `yaml:"auth"`
	Sweep struct {
		Interval time.Duration `yaml:"interval" env:"MARKETPLACE_SWEEP_INTERVAL"`
	} `yaml:"sweep"`
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Port = "8080"
	cfg.Redis.Addr = "localhost:6379"
	cfg.Auth.TokenTTL = 24 * time.Hour
	cfg.Sweep.Interval = time.Minute

	if err := libconfig.Load(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, errors.New("config: database dsn required")
	}
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return nil, errors.New("config: redis addr required")
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("config: jwt secret required")
	}
	return cfg, nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}
