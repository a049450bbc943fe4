// Package config builds process configuration from environment variables so
// main stays lean. Both binaries share one schema; each reads the parts it needs.
package config

import (
	"os"
	"strconv"
	"time"
)

// Redis captures shared cache connection configuration.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Gateway captures HTTP gateway configuration.
type Gateway struct {
	Addr              string
	Environment       string
	DataDir           string
	GatewayTokenKey   string
	OperatorTokenHash string
	// FailOpen controls the trade-off between availability and strict
	// enforcement when the shared cache is unreachable. Defaults to open.
	FailOpen bool
}

// Database captures the durable store connection. The gateway uses it for
// the tenant registry; the audit worker for the audit_events table.
type Database struct {
	URL string
}

// Worker captures audit worker configuration.
type Worker struct {
	Addr               string
	QueuePopTimeout    time.Duration
	FlushInterval      time.Duration
	FailedQueueCap     int
	DeadLetterEnabled  bool
	DeadLetterInterval time.Duration
	DeadLetterBatch    int
	ReportInterval     time.Duration
}

// Config is the full process configuration.
type Config struct {
	Gateway  Gateway
	Worker   Worker
	Redis    Redis
	Database Database
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Gateway: Gateway{
			Addr:              getEnv("FILEGATE_ADDR", ":8080"),
			Environment:       getEnv("FILEGATE_ENV", "development"),
			DataDir:           getEnv("FILEGATE_DATA_DIR", "./data"),
			GatewayTokenKey:   getEnv("FILEGATE_GATEWAY_TOKEN_KEY", ""),
			OperatorTokenHash: getEnv("FILEGATE_OPERATOR_TOKEN_HASH", ""),
			FailOpen:          getBool("FILEGATE_FAIL_OPEN", true),
		},
		Worker: Worker{
			Addr:               getEnv("FILEGATE_WORKER_ADDR", ":9090"),
			QueuePopTimeout:    getDuration("FILEGATE_QUEUE_POP_TIMEOUT", time.Second),
			FlushInterval:      getDuration("FILEGATE_AUDIT_FLUSH_INTERVAL", 5*time.Second),
			FailedQueueCap:     getInt("FILEGATE_FAILED_QUEUE_CAP", 10000),
			DeadLetterEnabled:  getBool("FILEGATE_DEAD_LETTER_ENABLED", false),
			DeadLetterInterval: getDuration("FILEGATE_DEAD_LETTER_INTERVAL", time.Minute),
			DeadLetterBatch:    getInt("FILEGATE_DEAD_LETTER_BATCH", 500),
			ReportInterval:     getDuration("FILEGATE_REPORT_INTERVAL", time.Minute),
		},
		Database: Database{
			URL: getEnv("FILEGATE_DATABASE_URL", ""),
		},
		Redis: Redis{
			URL:          getEnv("FILEGATE_REDIS_URL", ""),
			PoolSize:     getInt("FILEGATE_REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("FILEGATE_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("FILEGATE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("FILEGATE_REDIS_READ_TIMEOUT", 500*time.Millisecond),
			WriteTimeout: getDuration("FILEGATE_REDIS_WRITE_TIMEOUT", 500*time.Millisecond),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
