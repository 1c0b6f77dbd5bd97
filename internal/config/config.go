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
	// HTTP Server
	Port         string
	SecureCookie bool

	// Database
	SQLiteDBPath string

	// Sessions
	SessionTTL time.Duration

	// AMQP (optional mirror event stream)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets mirror
	SheetsSpreadsheetID   string
	SheetsSheetName       string
	SheetsOAuthClientFile string
	SheetsOAuthTokenFile  string

	// AI insight collaborator
	InsightAPIBase  string
	InsightAPIKey   string
	InsightModel    string
	InsightLookback int // days
}

func Load() *Config {
	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		SecureCookie: getEnvBool("SECURE_COOKIE", false),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/kharcha.db"),
		SessionTTL:   getEnvDuration("SESSION_TTL", 30*24*time.Hour),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "kharcha"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "expense_events"),

		SheetsSpreadsheetID:   getEnv("SHEETS_SPREADSHEET_ID", ""),
		SheetsSheetName:       getEnv("SHEETS_SHEET_NAME", "Expenses"),
		SheetsOAuthClientFile: getEnv("SHEETS_OAUTH_CLIENT_FILE", ""),
		SheetsOAuthTokenFile:  getEnv("SHEETS_OAUTH_TOKEN_FILE", ""),

		InsightAPIBase:  getEnv("INSIGHT_API_BASE", ""),
		InsightAPIKey:   getEnv("INSIGHT_API_KEY", ""),
		InsightModel:    getEnv("INSIGHT_MODEL", "gpt-4.1-mini"),
		InsightLookback: getEnvInt("INSIGHT_LOOKBACK_DAYS", 30),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
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

	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}

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

	// The sheets mirror needs a spreadsheet and OAuth material when enabled
	if c.SheetsSpreadsheetID != "" {
		if c.SheetsSheetName == "" {
			errors = append(errors, "sheet name is required when a spreadsheet ID is configured")
		}
		if c.SheetsOAuthClientFile == "" || c.SheetsOAuthTokenFile == "" {
			errors = append(errors, "SHEETS_OAUTH_CLIENT_FILE and SHEETS_OAUTH_TOKEN_FILE are required when a spreadsheet ID is configured")
		} else {
			for _, f := range []string{c.SheetsOAuthClientFile, c.SheetsOAuthTokenFile} {
				if _, err := os.Stat(f); os.IsNotExist(err) {
					errors = append(errors, fmt.Sprintf("OAuth file does not exist: %s", f))
				}
			}
		}
	}

	if c.InsightAPIBase != "" {
		if parsedURL, err := url.Parse(c.InsightAPIBase); err != nil || parsedURL.Scheme == "" {
			errors = append(errors, fmt.Sprintf("invalid insight API base URL '%s'", c.InsightAPIBase))
		}
	}
	if c.InsightLookback < 1 || c.InsightLookback > 365 {
		errors = append(errors, fmt.Sprintf("invalid insight lookback %d: must be between 1 and 365 days", c.InsightLookback))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// InsightEnabled reports whether the AI collaborator is configured.
func (c *Config) InsightEnabled() bool {
	return c.InsightAPIBase != "" && c.InsightAPIKey != ""
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
