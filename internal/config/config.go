package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURI     string
	DBMaxConns      int32
	TelegramToken   string
	DefaultTimezone string
	GraceMinutes    int
	CheckInterval   time.Duration
	LogMode         string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	AMQPURL         string
	MetricsAddr     string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env file is optional in production
	}

	return &Config{
		DatabaseURI:     os.Getenv("DATABASE_URI"),
		DBMaxConns:      int32(getEnvInt("DB_MAX_CONNS", 10)),
		TelegramToken:   os.Getenv("TELEGRAM_TOKEN"),
		DefaultTimezone: getEnvOrDefault("DEFAULT_TIMEZONE", "UTC"),
		GraceMinutes:    getEnvInt("GRACE_MINUTES", 15),
		CheckInterval:   getEnvDuration("CHECK_INTERVAL", time.Minute),
		LogMode:         getEnvOrDefault("LOG_MODE", "development"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		AMQPURL:         os.Getenv("AMQP_URL"),
		MetricsAddr:     os.Getenv("METRICS_ADDR"),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return defaultValue
	}
	return n
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
