// Package config содержит логику чтения конфигурации сервиса маркетплейса.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса маркетплейса.
type Config struct {
	RunAddress     string        `env:"RUN_ADDRESS"`
	DatabaseURI    string        `env:"DATABASE_URI"`
	RedisAddress   string        `env:"REDIS_ADDRESS"`
	GatewayAddress string        `env:"GATEWAY_ADDRESS"`
	AuthSecret     string        `env:"AUTH_SECRET"`
	GatewayDelay   time.Duration `env:"GATEWAY_DELAY"`
	PaymentWorkers int           `env:"PAYMENT_WORKERS"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envRedisAddress := cfg.RedisAddress
	envGatewayAddress := cfg.GatewayAddress
	envAuthSecret := cfg.AuthSecret
	envGatewayDelay := cfg.GatewayDelay
	envPaymentWorkers := cfg.PaymentWorkers

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RedisAddress, "r", "localhost:6379", "redis address")
	flag.StringVar(&cfg.GatewayAddress, "g", "", "payment gateway address")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret for auth cookie signing")
	flag.DurationVar(&cfg.GatewayDelay, "delay", 2*time.Second, "mock gateway response delay")
	flag.IntVar(&cfg.PaymentWorkers, "w", 3, "payment worker count")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envRedisAddress != "" {
		cfg.RedisAddress = envRedisAddress
	}
	if envGatewayAddress != "" {
		cfg.GatewayAddress = envGatewayAddress
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}
	if envGatewayDelay != 0 {
		cfg.GatewayDelay = envGatewayDelay
	}
	if envPaymentWorkers != 0 {
		cfg.PaymentWorkers = envPaymentWorkers
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	// Шлюз по умолчанию встроен в тот же процесс.
	if cfg.GatewayAddress == "" {
		cfg.GatewayAddress = "http://" + cfg.RunAddress
	}

	return cfg, nil
}
