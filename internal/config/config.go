// Package config reads the runtime configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/vault-ledger/internal/logger"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StoreBigQuery = "bigquery"
)

// Job transports.
const (
	JobsInMemory = "inmemory"
	JobsAMQP     = "amqp"
)

type Config struct {
	// HTTP Server
	Port string

	// Logging
	LogLevel  string
	LogFormat string

	// Persistence
	Store          string
	SQLitePath     string
	GCPProjectID   string
	BigQueryDS     string
	SeedCategories bool

	// Classifier
	GeminiModel           string
	CategorizeChunkSize   int
	CategorizeConcurrency int

	// Jobs
	JobsTransport string
	JobsBuffer    int
	AMQPURL       string
	AMQPExchange  string
	AMQPQueue     string

	// Statements
	StatementBucket string

	// Sessions
	LinkTokenTTL    time.Duration
	ConversationTTL time.Duration
	SweepInterval   time.Duration

	// Notion mirror
	NotionToken      string
	NotionDatabaseID string
}

func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8080"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		Store:          getEnv("STORE", StoreMemory),
		SQLitePath:     getEnv("SQLITE_PATH", "./data/ledger.db"),
		GCPProjectID:   getEnv("GCP_PROJECT_ID", ""),
		BigQueryDS:     getEnv("BIGQUERY_DATASET", "ledger"),
		SeedCategories: getEnvBool("SEED_CATEGORIES", true),

		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		CategorizeChunkSize:   getEnvInt("CATEGORIZE_CHUNK_SIZE", 5),
		CategorizeConcurrency: getEnvInt("CATEGORIZE_CONCURRENCY", 5),

		JobsTransport: getEnv("JOBS_TRANSPORT", JobsInMemory),
		JobsBuffer:    getEnvInt("JOBS_BUFFER", 100),
		AMQPURL:       getEnv("AMQP_URL", ""),
		AMQPExchange:  getEnv("AMQP_EXCHANGE", "vault-ledger"),
		AMQPQueue:     getEnv("AMQP_QUEUE", "import_statements"),

		StatementBucket: getEnv("STATEMENT_BUCKET", ""),

		LinkTokenTTL:    getEnvDuration("LINK_TOKEN_TTL", 15*time.Minute),
		ConversationTTL: getEnvDuration("CONVERSATION_TTL", 30*time.Minute),
		SweepInterval:   getEnvDuration("SESSION_SWEEP_INTERVAL", time.Minute),

		NotionToken:      getEnv("NOTION_TOKEN", ""),
		NotionDatabaseID: getEnv("NOTION_DATABASE_ID", ""),
	}
}

// Validate returns every configuration problem at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': %v", c.LogLevel, err))
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be json or console", c.LogFormat))
	}

	validStores := []string{StoreMemory, StoreSQLite, StoreBigQuery}
	if !slices.Contains(validStores, c.Store) {
		errors = append(errors, fmt.Sprintf("invalid store '%s': must be one of %v", c.Store, validStores))
	}
	if c.Store == StoreSQLite && c.SQLitePath == "" {
		errors = append(errors, "SQLite database path cannot be empty when using sqlite store")
	}
	if c.Store == StoreBigQuery {
		if c.GCPProjectID == "" {
			errors = append(errors, "GCP_PROJECT_ID is required when using bigquery store")
		}
		if c.BigQueryDS == "" {
			errors = append(errors, "BIGQUERY_DATASET cannot be empty when using bigquery store")
		}
	}

	if c.CategorizeChunkSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid chunk size %d: must be at least 1", c.CategorizeChunkSize))
	}
	if c.CategorizeConcurrency < 1 {
		errors = append(errors, fmt.Sprintf("invalid categorize concurrency %d: must be at least 1", c.CategorizeConcurrency))
	}

	validTransports := []string{JobsInMemory, JobsAMQP}
	if !slices.Contains(validTransports, c.JobsTransport) {
		errors = append(errors, fmt.Sprintf("invalid jobs transport '%s': must be one of %v", c.JobsTransport, validTransports))
	}
	if c.JobsBuffer < 1 {
		errors = append(errors, fmt.Sprintf("invalid jobs buffer %d: must be at least 1", c.JobsBuffer))
	}
	if c.JobsTransport == JobsAMQP && c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required when using amqp jobs transport")
	}
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" || c.AMQPQueue == "" {
			errors = append(errors, "AMQP exchange and queue names cannot be empty when AMQP URL is provided")
		}
	}

	if c.LinkTokenTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid link token TTL %v: must be at least 1 minute", c.LinkTokenTTL))
	}
	if c.ConversationTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid conversation TTL %v: must be at least 1 minute", c.ConversationTTL))
	}
	if c.SweepInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sweep interval %v: must be at least 1 second", c.SweepInterval))
	}

	if (c.NotionToken == "") != (c.NotionDatabaseID == "") {
		errors = append(errors, "NOTION_TOKEN and NOTION_DATABASE_ID must be set together")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// NotionEnabled reports whether the Notion mirror is configured.
func (c *Config) NotionEnabled() bool {
	return c.NotionToken != "" && c.NotionDatabaseID != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
