package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config - структура для хранения конфигурации приложения
type Config struct {
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseURL    string `env:"DATABASE_URL"`
	HTTPPort       string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`

	// Redis Config
	RedisAddr        string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass        string        `env:"REDIS_PASSWORD"`
	RedisDB          int           `env:"REDIS_DB" envDefault:"0"`
	IncidentCacheTTL time.Duration `env:"INCIDENT_CACHE_TTL" envDefault:"5m"`

	// Webhook Config
	WebhookURL        string        `env:"WEBHOOK_URL"`
	WebhookSecret     string        `env:"WEBHOOK_SECRET"`
	WebhookTimeout    time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"5s"`
	WebhookMaxRetries int           `env:"WEBHOOK_MAX_RETRIES" envDefault:"3"`
	WebhookBaseDelay  time.Duration `env:"WEBHOOK_BASE_DELAY" envDefault:"1s"`

	// NATS Config, пустой URL отключает публикацию в шину
	NATSURL     string `env:"NATS_URL"`
	NATSSubject string `env:"NATS_SUBJECT" envDefault:"dispatch.notifications"`

	// Dispatch Config
	DispatchMaxAttempts   int           `env:"DISPATCH_MAX_ATTEMPTS" envDefault:"5"`
	DispatchRetryDelay    time.Duration `env:"DISPATCH_RETRY_DELAY" envDefault:"20ms"`
	HistoryAppendAttempts int           `env:"HISTORY_APPEND_ATTEMPTS" envDefault:"3"`
	MaxResponderLoad      int           `env:"MAX_RESPONDER_LOAD" envDefault:"0"`

	// Requeue Config
	RequeueInterval      time.Duration `env:"REQUEUE_INTERVAL" envDefault:"30s"`
	RequeueBatchSize     int           `env:"REQUEUE_BATCH_SIZE" envDefault:"100"`
	RequeuePriorityFirst bool          `env:"REQUEUE_PRIORITY_FIRST" envDefault:"false"`
	SweepLockTTL         time.Duration `env:"SWEEP_LOCK_TTL" envDefault:"25s"`

	// Outbox Relay Config
	OutboxRelayInterval  time.Duration `env:"OUTBOX_RELAY_INTERVAL" envDefault:"15s"`
	OutboxRelayGrace     time.Duration `env:"OUTBOX_RELAY_GRACE" envDefault:"30s"`
	OutboxRelayBatchSize int           `env:"OUTBOX_RELAY_BATCH_SIZE" envDefault:"100"`

	// API Keys for authentication
	APIKeys []string `env:"API_KEYS"`
}

// LoadConfig загружает конфигурацию из переменных окружения и .env файла
func LoadConfig() (*Config, error) {
	// Загрузка переменных окружения из .env файла (если есть)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("ошибка загрузки файла .env: %w", err)
	}

	cfg := &Config{
		DatabaseDriver:        strings.ToLower(getEnv("DATABASE_DRIVER", DriverPostgres)),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		HTTPPort:              getEnv("HTTP_PORT", "8080"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		RedisAddr:             getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:             os.Getenv("REDIS_PASSWORD"),
		RedisDB:               getEnvAsInt("REDIS_DB", 0),
		IncidentCacheTTL:      getEnvAsDuration("INCIDENT_CACHE_TTL", 5*time.Minute),
		WebhookURL:            os.Getenv("WEBHOOK_URL"),
		WebhookSecret:         os.Getenv("WEBHOOK_SECRET"),
		WebhookTimeout:        getEnvAsDuration("WEBHOOK_TIMEOUT", 5*time.Second),
		WebhookMaxRetries:     getEnvAsInt("WEBHOOK_MAX_RETRIES", 3),
		WebhookBaseDelay:      getEnvAsDuration("WEBHOOK_BASE_DELAY", time.Second),
		NATSURL:               os.Getenv("NATS_URL"),
		NATSSubject:           getEnv("NATS_SUBJECT", "dispatch.notifications"),
		DispatchMaxAttempts:   getEnvAsInt("DISPATCH_MAX_ATTEMPTS", 5),
		DispatchRetryDelay:    getEnvAsDuration("DISPATCH_RETRY_DELAY", 20*time.Millisecond),
		HistoryAppendAttempts: getEnvAsInt("HISTORY_APPEND_ATTEMPTS", 3),
		MaxResponderLoad:      getEnvAsInt("MAX_RESPONDER_LOAD", 0),
		RequeueInterval:       getEnvAsDuration("REQUEUE_INTERVAL", 30*time.Second),
		RequeueBatchSize:      getEnvAsInt("REQUEUE_BATCH_SIZE", 100),
		RequeuePriorityFirst:  getEnvAsBool("REQUEUE_PRIORITY_FIRST", false),
		SweepLockTTL:          getEnvAsDuration("SWEEP_LOCK_TTL", 25*time.Second),
		OutboxRelayInterval:   getEnvAsDuration("OUTBOX_RELAY_INTERVAL", 15*time.Second),
		OutboxRelayGrace:      getEnvAsDuration("OUTBOX_RELAY_GRACE", 30*time.Second),
		OutboxRelayBatchSize:  getEnvAsInt("OUTBOX_RELAY_BATCH_SIZE", 100),
	}

	// Загрузка API ключей
	apiKeysStr := os.Getenv("API_KEYS")
	if apiKeysStr != "" {
		cfg.APIKeys = strings.Split(apiKeysStr, ",")
		for i, key := range cfg.APIKeys {
			cfg.APIKeys[i] = strings.TrimSpace(key)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate проверяет обязательные параметры и границы значений
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if c.DatabaseDriver != DriverPostgres && c.DatabaseDriver != DriverSQLite {
		return fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DatabaseDriver)
	}
	if c.DispatchMaxAttempts < 1 {
		return fmt.Errorf("DISPATCH_MAX_ATTEMPTS must be at least 1")
	}
	if c.HistoryAppendAttempts < 1 {
		return fmt.Errorf("HISTORY_APPEND_ATTEMPTS must be at least 1")
	}
	if c.RequeueInterval <= 0 {
		return fmt.Errorf("REQUEUE_INTERVAL must be positive")
	}
	if c.RequeueBatchSize < 1 {
		return fmt.Errorf("REQUEUE_BATCH_SIZE must be at least 1")
	}
	if c.OutboxRelayInterval <= 0 {
		return fmt.Errorf("OUTBOX_RELAY_INTERVAL must be positive")
	}
	if c.MaxResponderLoad < 0 {
		return fmt.Errorf("MAX_RESPONDER_LOAD must not be negative")
	}
	return nil
}

// getEnv возвращает значение переменной окружения или значение по умолчанию
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt возвращает значение переменной окружения как int или значение по умолчанию
func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBool возвращает значение переменной окружения как bool или значение по умолчанию
func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration возвращает значение переменной окружения как time.Duration или значение по умолчанию
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if durationValue, err := time.ParseDuration(value); err == nil {
			return durationValue
		}
	}
	return defaultValue
}
