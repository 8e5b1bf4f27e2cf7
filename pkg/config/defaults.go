// Package config provides centralized default values for the attribution engine
package config

import (
	"bufio"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var envLoaded sync.Once

func loadEnvFile() {
	envLoaded.Do(func() {
		file, err := os.Open(".env")
		if err != nil {
			return
		}
		defer file.Close()

		log.Println("Loading configuration overrides from .env file...")
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())

			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}

			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])

			if os.Getenv(key) == "" {
				os.Setenv(key, value)
			}
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseBool(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%t (default: %t)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

var (
	// Server Configuration
	Port               string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration

	// Database
	DBDriver                 string // sqlite3, libsql, or memory
	DBPath                   string
	TursoDatabaseURL         string
	TursoAuthToken           string
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeMinutes int
	SlowQueryThreshold       time.Duration

	// Processing
	QueueCapacity        int
	WorkerCount          int
	MaxIngestionAttempts int
	RetryBackoffBase     time.Duration
	RecomputeBatchSize   int

	// Model configuration
	ModelConfigPath string

	// Reporting
	SnapshotTTL time.Duration

	// Kafka ingestion source (optional)
	KafkaEnabled          bool
	KafkaBrokers          string
	KafkaTouchpointsTopic string
	KafkaConversionsTopic string
	KafkaGroupID          string

	// Admin auth
	JWTSecret         string
	AdminPasswordHash string
	AdminTokenTTL     time.Duration

	// Dead-letter alerts
	ResendAPIKey   string
	AlertEmailTo   string
	AlertEmailFrom string
)

func init() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "8080")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)

	// Database
	DBDriver = getEnvString("DB_DRIVER", "sqlite3")
	DBPath = getEnvString("DB_PATH", "convertlens.db")
	TursoDatabaseURL = getEnvString("TURSO_DATABASE_URL", "")
	TursoAuthToken = getEnvString("TURSO_AUTH_TOKEN", "")
	DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 3)
	DBConnMaxLifetimeMinutes = getEnvInt("DB_CONN_MAX_LIFETIME_MINUTES", 30)
	SlowQueryThreshold = getEnvDuration("SLOW_QUERY_THRESHOLD", 100*time.Millisecond)

	// Processing
	QueueCapacity = getEnvInt("QUEUE_CAPACITY", 1024)
	WorkerCount = getEnvInt("WORKER_COUNT", 4)
	MaxIngestionAttempts = getEnvInt("MAX_INGESTION_ATTEMPTS", 5)
	RetryBackoffBase = getEnvDuration("RETRY_BACKOFF_BASE", 250*time.Millisecond)
	RecomputeBatchSize = getEnvInt("RECOMPUTE_BATCH_SIZE", 100)

	// Model configuration
	ModelConfigPath = getEnvString("MODEL_CONFIG_PATH", "models.yaml")

	// Reporting
	SnapshotTTL = getEnvDuration("SNAPSHOT_TTL", 10*time.Minute)

	// Kafka ingestion source
	KafkaEnabled = getEnvBool("KAFKA_ENABLED", false)
	KafkaBrokers = getEnvString("KAFKA_BROKERS", "localhost:9092")
	KafkaTouchpointsTopic = getEnvString("KAFKA_TOUCHPOINTS_TOPIC", "touchpoints")
	KafkaConversionsTopic = getEnvString("KAFKA_CONVERSIONS_TOPIC", "conversions")
	KafkaGroupID = getEnvString("KAFKA_GROUP_ID", "convertlens-attribution")

	// Admin auth
	JWTSecret = getEnvString("JWT_SECRET", "")
	AdminPasswordHash = getEnvString("ADMIN_PASSWORD_HASH", "")
	AdminTokenTTL = getEnvDuration("ADMIN_TOKEN_TTL", 12*time.Hour)

	// Dead-letter alerts
	ResendAPIKey = getEnvString("RESEND_API_KEY", "")
	AlertEmailTo = getEnvString("ALERT_EMAIL_TO", "")
	AlertEmailFrom = getEnvString("ALERT_EMAIL_FROM", "alerts@convertlens.io")
}
