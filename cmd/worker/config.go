package main

import (
	"log"

	"promo-engine/internal/shared/utils"
)

// Config holds the worker's own settings.
type Config struct {
	RedisAddr     string
	RetentionDays int
	Concurrency   int
}

func loadConfig() *Config {
	cfg := &Config{
		RedisAddr:     utils.GetEnvVariable("REDIS_HOST", "localhost:6379"),
		RetentionDays: utils.GetEnvInt("AUDIT_RETENTION_DAYS", 90),
		Concurrency:   utils.GetEnvInt("WORKER_CONCURRENCY", 10),
	}

	log.Printf("[Config] Redis: %s, retention: %dd, concurrency: %d",
		cfg.RedisAddr, cfg.RetentionDays, cfg.Concurrency)

	return cfg
}
