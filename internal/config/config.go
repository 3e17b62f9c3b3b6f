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

// Telegram update delivery modes.
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// Spreadsheet backends.
const (
	BackendMemory = "memory"
	BackendSheets = "sheets"
)

type Config struct {
	// Telegram
	TelegramToken string
	TelegramMode  string
	WebhookURL    string
	WebhookPath   string
	WebhookSecret string

	// HTTP Server
	Port string

	// Spreadsheet backend
	DataBackend         string
	MemorySeedFile      string
	GoogleSpreadsheetID string
	GoogleFinanceSheet  string
	GooglePlansSheet    string
	// Service account credentials, read by the sheets client.
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Database
	SQLiteDBPath string

	// AMQP; an empty URL disables ledger events.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Free-text extraction; an empty key disables it.
	GeminiAPIKey string
	GeminiModel  string

	// Ledger
	RetryAttempts    int
	RetryDelay       time.Duration
	RecentLimit      int
	DecimalSeparator string

	LogLevel string
}

func Load() *Config {
	return &Config{
		TelegramToken: getEnv("TELEGRAM_TOKEN", ""),
		TelegramMode:  strings.ToLower(getEnv("TELEGRAM_MODE", ModePolling)),
		WebhookURL:    getEnv("WEBHOOK_URL", ""),
		WebhookPath:   getEnv("WEBHOOK_PATH", "/telegram"),
		WebhookSecret: getEnv("WEBHOOK_SECRET", ""),

		Port: getEnv("PORT", "8081"),

		DataBackend:              strings.ToLower(getEnv("DATA_BACKEND", BackendMemory)),
		MemorySeedFile:           getEnv("MEMORY_SEED_FILE", ""),
		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleFinanceSheet:       getEnv("GOOGLE_FINANCE_SHEET", "Finance"),
		GooglePlansSheet:         getEnv("GOOGLE_PLANS_SHEET", "Plans"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/finbot.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "finbot"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_events"),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		RetryAttempts:    getEnvInt("RETRY_ATTEMPTS", 3),
		RetryDelay:       getEnvDuration("RETRY_DELAY", 500*time.Millisecond),
		RecentLimit:      getEnvInt("RECENT_LIMIT", 10),
		DecimalSeparator: getEnv("DECIMAL_SEPARATOR", "."),

		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if strings.TrimSpace(c.TelegramToken) == "" {
		errors = append(errors, "TELEGRAM_TOKEN is required")
	}

	switch c.TelegramMode {
	case ModePolling:
	case ModeWebhook:
		if c.WebhookURL == "" {
			errors = append(errors, "WEBHOOK_URL is required in webhook mode")
		} else if u, err := url.Parse(c.WebhookURL); err != nil || u.Scheme != "https" || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid webhook URL '%s': must be an absolute https URL", c.WebhookURL))
		}
		if !strings.HasPrefix(c.WebhookPath, "/") {
			errors = append(errors, fmt.Sprintf("invalid webhook path '%s': must start with '/'", c.WebhookPath))
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid telegram mode '%s': must be one of [%s %s]", c.TelegramMode, ModePolling, ModeWebhook))
	}

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.DataBackend {
	case BackendMemory:
	case BackendSheets:
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for sheets backend")
		}
		if c.GoogleServiceAccountFile != "" && c.GoogleServiceAccountJSON == "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
		if strings.TrimSpace(c.GoogleFinanceSheet) == "" || strings.TrimSpace(c.GooglePlansSheet) == "" {
			errors = append(errors, "Google sheet names cannot be empty")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of [%s %s]", c.DataBackend, BackendMemory, BackendSheets))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
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

	if c.GeminiAPIKey != "" && strings.TrimSpace(c.GeminiModel) == "" {
		errors = append(errors, "GEMINI_MODEL cannot be empty when GEMINI_API_KEY is provided")
	}

	if c.RetryAttempts < 1 || c.RetryAttempts > 10 {
		errors = append(errors, fmt.Sprintf("invalid retry attempts %d: must be between 1 and 10", c.RetryAttempts))
	}
	if c.RetryDelay < 0 || c.RetryDelay > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid retry delay %v: must be between 0 and 1 minute", c.RetryDelay))
	}
	if c.RecentLimit < 1 || c.RecentLimit > 10 {
		errors = append(errors, fmt.Sprintf("invalid recent limit %d: must be between 1 and 10", c.RecentLimit))
	}
	if c.DecimalSeparator != "." && c.DecimalSeparator != "," {
		errors = append(errors, fmt.Sprintf("invalid decimal separator '%s': must be '.' or ','", c.DecimalSeparator))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of [debug info warn error]", c.LogLevel))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateWorker checks only what the audit worker needs: a broker to
// consume from and a database to record into.
func (c *Config) ValidateWorker() error {
	var errors []string
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required by the ledger worker")
	} else if u, err := url.Parse(c.AMQPURL); err != nil || (u.Scheme != "amqp" && u.Scheme != "amqps") {
		errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': scheme must be 'amqp' or 'amqps'", c.AMQPURL))
	}
	if c.AMQPExchange == "" || c.AMQPQueue == "" {
		errors = append(errors, "AMQP exchange and queue names cannot be empty")
	}
	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	}
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port '%s'", c.Port))
	}
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// WebhookEndpoint is the public URL Telegram pushes updates to.
func (c *Config) WebhookEndpoint() string {
	return strings.TrimRight(c.WebhookURL, "/") + c.WebhookPath
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
