package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is populated from environment variables at startup.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Engine   EngineConfig
	Security SecurityConfig
	Audit    AuditConfig
}

type AppConfig struct {
	Name        string
	Environment string // development, staging, production
	Port        string
	Version     string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MinConns int
}

type RedisConfig struct {
	Host     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret             string
	AccessTokenExpiry  int // minutes
	RefreshTokenExpiry int // hours
}

// EngineConfig tunes evaluation caching and the background sweeps.
type EngineConfig struct {
	CacheTTL          time.Duration
	SchedulerInterval time.Duration
	MonitorInterval   time.Duration
	ConflictCacheTTL  time.Duration
}

// SecurityConfig carries the validator thresholds. Amounts are in the
// store's minor currency unit.
type SecurityConfig struct {
	MaxItemQuantity      int
	MaxItemPrice         int64
	MaxGiftTotal         int
	MaxGiftPerItem       int
	HighValueThreshold   int64
	ManualReviewCeiling  int64
	HighValueSubtotalPct int   // max discount as percent of subtotal for high-value orders
	VelocityLimit        int64 // high-value uses per customer per window
	VelocityWindowHours  int
}

type AuditConfig struct {
	RetentionDays int
}

// Load reads config from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "Promotion Engine"),
			Environment: getEnv("APP_ENV", "development"),
			Port:        getEnv("APP_PORT", "8080"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "promo_engine"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 25),
			MinConns: getEnvInt("DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:             getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			AccessTokenExpiry:  getEnvInt("JWT_ACCESS_EXPIRY", 15),
			RefreshTokenExpiry: getEnvInt("JWT_REFRESH_EXPIRY", 72),
		},
		Engine: EngineConfig{
			CacheTTL:          time.Duration(getEnvInt("ENGINE_CACHE_TTL_SECONDS", 30)) * time.Second,
			SchedulerInterval: time.Duration(getEnvInt("SCHEDULER_INTERVAL_SECONDS", 60)) * time.Second,
			MonitorInterval:   time.Duration(getEnvInt("MONITOR_INTERVAL_SECONDS", 30)) * time.Second,
			ConflictCacheTTL:  time.Duration(getEnvInt("CONFLICT_CACHE_TTL_SECONDS", 300)) * time.Second,
		},
		Security: SecurityConfig{
			MaxItemQuantity:      getEnvInt("SEC_MAX_ITEM_QUANTITY", 1000),
			MaxItemPrice:         int64(getEnvInt("SEC_MAX_ITEM_PRICE", 100_000_000)),
			MaxGiftTotal:         getEnvInt("SEC_MAX_GIFT_TOTAL", 10),
			MaxGiftPerItem:       getEnvInt("SEC_MAX_GIFT_PER_ITEM", 5),
			HighValueThreshold:   int64(getEnvInt("SEC_HIGH_VALUE_THRESHOLD", 1_000_000)),
			ManualReviewCeiling:  int64(getEnvInt("SEC_MANUAL_REVIEW_CEILING", 5_000_000)),
			HighValueSubtotalPct: getEnvInt("SEC_HIGH_VALUE_SUBTOTAL_PCT", 80),
			VelocityLimit:        int64(getEnvInt("SEC_VELOCITY_LIMIT", 3)),
			VelocityWindowHours:  getEnvInt("SEC_VELOCITY_WINDOW_HOURS", 24),
		},
		Audit: AuditConfig{
			RetentionDays: getEnvInt("AUDIT_RETENTION_DAYS", 90),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the critical settings.
func (c *Config) Validate() error {
	if c.App.Environment == "production" {
		if c.JWT.Secret == "your-secret-key-change-in-production" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD must be set in production")
		}
	}
	if c.Engine.CacheTTL <= 0 {
		return fmt.Errorf("ENGINE_CACHE_TTL_SECONDS must be positive")
	}
	if c.Engine.SchedulerInterval <= 0 || c.Engine.MonitorInterval <= 0 {
		return fmt.Errorf("sweep intervals must be positive")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
