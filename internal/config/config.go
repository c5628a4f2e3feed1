package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// App server
	Port     string
	AppTitle string

	// Data service: a non-empty RemoteURL selects the remote sync endpoint,
	// otherwise records live in the local data file.
	RemoteURL string
	DataFile  string

	// Currency conversion
	BaseCurrency string
	RatesURL     string
	RateTTL      time.Duration

	// Caching
	CacheSize int

	// Sync endpoint server
	SyncPort    string
	SyncBackend string
	CORSOrigins []string

	// SQLite table store
	SQLiteDBPath string

	// Google Sheets table store
	GoogleSpreadsheetID     string
	GoogleTransactionsSheet string
	GoogleTodosSheet        string

	// AMQP mutation events (optional; empty URL disables publishing)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

func Load() *Config {
	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		AppTitle: getEnv("APP_TITLE", "Tally"),

		RemoteURL: getEnv("REMOTE_URL", ""),
		DataFile:  getEnv("DATA_FILE", "./data/tally.json"),

		BaseCurrency: getEnv("BASE_CURRENCY", "EUR"),
		RatesURL:     getEnv("RATES_URL", "https://api.frankfurter.dev/v1/latest"),
		RateTTL:      getEnvDuration("RATE_TTL", 12*time.Hour),

		CacheSize: getEnvInt("CACHE_SIZE", 128),

		SyncPort:    getEnv("SYNC_PORT", "8090"),
		SyncBackend: getEnv("SYNC_BACKEND", "sqlite"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/tally.db"),

		GoogleSpreadsheetID:     getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleTransactionsSheet: getEnv("GOOGLE_TRANSACTIONS_SHEET", "Transactions"),
		GoogleTodosSheet:        getEnv("GOOGLE_TODOS_SHEET", "Todos"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "tally"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "tally_events"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate ports
	for _, p := range []struct{ name, value string }{
		{"PORT", c.Port},
		{"SYNC_PORT", c.SyncPort},
	} {
		if port, err := strconv.Atoi(p.value); err != nil {
			errors = append(errors, fmt.Sprintf("invalid %s '%s': must be a number", p.name, p.value))
		} else if port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("invalid %s %d: must be between 1 and 65535", p.name, port))
		}
	}

	// Validate remote URL when set
	if c.RemoteURL != "" {
		if parsed, err := url.Parse(c.RemoteURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid remote URL '%s': %v", c.RemoteURL, err))
		} else if parsed.Scheme != "http" && parsed.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid remote URL scheme '%s': must be 'http' or 'https'", parsed.Scheme))
		}
	}

	// Validate data file when running local mode
	if c.RemoteURL == "" {
		if c.DataFile == "" {
			errors = append(errors, "data file path cannot be empty without a remote URL")
		} else if err := ensureDir(c.DataFile); err != nil {
			errors = append(errors, fmt.Sprintf("cannot create data file directory for '%s': %v", c.DataFile, err))
		}
	}

	// Validate currency settings
	if len(c.BaseCurrency) != 3 {
		errors = append(errors, fmt.Sprintf("invalid base currency '%s': must be a 3-letter code", c.BaseCurrency))
	}
	if c.RatesURL != "" {
		if parsed, err := url.Parse(c.RatesURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid rates URL '%s': %v", c.RatesURL, err))
		} else if parsed.Scheme != "http" && parsed.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid rates URL scheme '%s': must be 'http' or 'https'", parsed.Scheme))
		}
	}
	if c.RateTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid rate TTL %v: must be at least 1 minute", c.RateTTL))
	} else if c.RateTTL > 7*24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid rate TTL %v: must be at most 7 days", c.RateTTL))
	}

	if c.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}

	// Validate sync backend
	validBackends := []string{"memory", "sheets", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.SyncBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid sync backend '%s': must be one of %v", c.SyncBackend, validBackends))
	}

	// Validate SQLite configuration if backend is sqlite
	if c.SyncBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if err := ensureDir(c.SQLiteDBPath); err != nil {
			errors = append(errors, fmt.Sprintf("cannot create SQLite database directory for '%s': %v", c.SQLiteDBPath, err))
		}
	}

	// Validate Google Sheets configuration if backend is sheets
	if c.SyncBackend == "sheets" {
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.GoogleTransactionsSheet == "" {
			errors = append(errors, "Google transactions sheet name is required when using sheets backend")
		}
		if c.GoogleTodosSheet == "" {
			errors = append(errors, "Google todos sheet name is required when using sheets backend")
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ensureDir creates the parent directory of path when it does not exist.
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
