package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Transports.
const (
	TransportSMTP    = "smtp"
	TransportWebhook = "webhook"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; what is required depends on the chosen
// store driver and transport.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Store
	StoreDriver string
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	SQLitePath  string

	// Calendar days, weekdays and stop dates are all evaluated in Location.
	Timezone string
	Location *time.Location

	// Dispatch cycle
	TickInterval      time.Duration
	DispatchWorkers   int
	DispatchQueueSize int
	ClaimTTL          time.Duration

	// Transport
	Transport        string
	TransportTimeout time.Duration
	SendRateLimit    int
	WebhookURL       string
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	SMTPHelo         string
	DefaultFrom      string

	// DKIM signing for the SMTP transport; disabled when DKIMSelector is empty.
	DKIMSelector   string
	DKIMDomain     string
	DKIMKeyPath    string
	DKIMPrivateKey string

	// Ingestion
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	IdempotencyTTL time.Duration
	MaxBatchSize   int
}

// Load reads an optional .env file (ENV_FILE, default ".env") and then the
// environment. Variables already set in the environment win over the file.
func Load() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StorePostgres)),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 2)),
		SQLitePath:  getEnv("SQLITE_PATH", "data/mailqueue.db"),

		Timezone: getEnv("TIMEZONE", "UTC"),

		TickInterval:      getDuration("TICK_INTERVAL", time.Minute),
		DispatchWorkers:   getInt("DISPATCH_WORKERS", 4),
		DispatchQueueSize: getInt("DISPATCH_QUEUE_SIZE", 5000),
		ClaimTTL:          getDuration("CLAIM_TTL", 5*time.Minute),

		Transport:        strings.ToLower(getEnv("TRANSPORT", TransportWebhook)),
		TransportTimeout: getDuration("TRANSPORT_TIMEOUT", 30*time.Second),
		SendRateLimit:    getInt("SEND_RATE_LIMIT", 10),
		WebhookURL:       os.Getenv("WEBHOOK_URL"),
		SMTPHost:         os.Getenv("SMTP_HOST"),
		SMTPPort:         getInt("SMTP_PORT", 587),
		SMTPUsername:     os.Getenv("SMTP_USERNAME"),
		SMTPPassword:     os.Getenv("SMTP_PASSWORD"),
		SMTPHelo:         getEnv("SMTP_HELO", "localhost"),
		DefaultFrom:      os.Getenv("MAIL_DEFAULT_FROM"),

		DKIMSelector:   strings.TrimSpace(os.Getenv("DKIM_SELECTOR")),
		DKIMDomain:     strings.TrimSpace(os.Getenv("DKIM_DOMAIN")),
		DKIMKeyPath:    strings.TrimSpace(os.Getenv("DKIM_KEY_PATH")),
		DKIMPrivateKey: os.Getenv("DKIM_PRIVATE_KEY"),

		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getInt("REDIS_DB", 0),
		IdempotencyTTL: getDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		MaxBatchSize:   getInt("MAX_BATCH_SIZE", 500),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements and resolves Location.
func (c *Config) Validate() error {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	c.Location = loc

	switch c.StoreDriver {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for store driver %q", c.StoreDriver)
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for store driver %q", c.StoreDriver)
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StorePostgres, StoreSQLite, c.StoreDriver)
	}

	switch c.Transport {
	case TransportWebhook:
		if c.WebhookURL == "" {
			return fmt.Errorf("WEBHOOK_URL is required for transport %q", c.Transport)
		}
	case TransportSMTP:
		if c.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required for transport %q", c.Transport)
		}
	default:
		return fmt.Errorf("TRANSPORT must be %q or %q, got %q", TransportSMTP, TransportWebhook, c.Transport)
	}

	if c.DispatchWorkers < 1 {
		return fmt.Errorf("DISPATCH_WORKERS must be at least 1, got %d", c.DispatchWorkers)
	}
	if c.DispatchQueueSize < 1 {
		return fmt.Errorf("DISPATCH_QUEUE_SIZE must be at least 1, got %d", c.DispatchQueueSize)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL must be positive, got %s", c.TickInterval)
	}
	if c.ClaimTTL <= 0 {
		return fmt.Errorf("CLAIM_TTL must be positive, got %s", c.ClaimTTL)
	}
	if c.TransportTimeout <= 0 {
		return fmt.Errorf("TRANSPORT_TIMEOUT must be positive, got %s", c.TransportTimeout)
	}
	if c.MaxBatchSize < 1 {
		return fmt.Errorf("MAX_BATCH_SIZE must be at least 1, got %d", c.MaxBatchSize)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
