// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Data backends accepted in DATA_BACKEND.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

type Config struct {
	// HTTP Server
	Port           string
	RateLimitRPM   int
	TrustedProxies []string

	// Database
	DataBackend  string
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Connect Earth
	ConnectEarthBaseURL string
	ConnectEarthAPIKey  string
	ConnectEarthTimeout time.Duration
	ConnectEarthRetries int
	DefaultCurrency     string
	DefaultGeo          string

	// Profile rebuilds
	MonthsBack        int
	ReloadInterval    time.Duration
	ReloadBatchSize   int
	ReloadConcurrency int
	ReloadOnStartup   bool

	// Google Sheets export, disabled when the spreadsheet ID is empty
	GoogleSpreadsheetID string
	GoogleSheetName     string

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	cfg := &Config{
		Port:           getEnv("PORT", "8081"),
		RateLimitRPM:   getEnvInt("RATE_LIMIT_RPM", 60),
		TrustedProxies: getEnvList("TRUSTED_PROXIES"),

		DataBackend:  getEnv("DATA_BACKEND", BackendSQLite),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/aetherflow.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "aetherflow"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "metrics_reload"),

		ConnectEarthBaseURL: getEnv("CONNECT_EARTH_BASE_URL", "https://api.connect.earth"),
		ConnectEarthAPIKey:  getEnv("CONNECT_EARTH_API_KEY", ""),
		ConnectEarthTimeout: getEnvDuration("CONNECT_EARTH_TIMEOUT", 10*time.Second),
		ConnectEarthRetries: getEnvInt("CONNECT_EARTH_RETRIES", 2),
		DefaultCurrency:     getEnv("DEFAULT_CURRENCY", "AUD"),
		DefaultGeo:          getEnv("DEFAULT_GEO", "AU"),

		MonthsBack:        getEnvInt("MONTHS_BACK", 12),
		ReloadInterval:    getEnvDuration("RELOAD_INTERVAL", 30*time.Second),
		ReloadBatchSize:   getEnvInt("RELOAD_BATCH_SIZE", 20),
		ReloadConcurrency: getEnvInt("RELOAD_CONCURRENCY", 4),
		ReloadOnStartup:   getEnvBool("RELOAD_ON_STARTUP", true),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	return cfg
}

// SheetsEnabled reports whether summaries are mirrored to Google Sheets.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// AMQPEnabled reports whether reload requests go through a broker.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitRPM < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitRPM))
	}

	// Validate data backend
	validBackends := []string{BackendMemory, BackendSQLite}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	// Validate SQLite configuration if backend is sqlite
	if c.DataBackend == BackendSQLite {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			// Check if directory exists or can be created
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
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

	// Validate Connect Earth
	if parsedURL, err := url.Parse(c.ConnectEarthBaseURL); err != nil || parsedURL.Host == "" {
		errors = append(errors, fmt.Sprintf("invalid Connect Earth base URL '%s'", c.ConnectEarthBaseURL))
	} else if parsedURL.Scheme != "https" && parsedURL.Scheme != "http" {
		errors = append(errors, fmt.Sprintf("invalid Connect Earth URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
	}
	if c.ConnectEarthTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid Connect Earth timeout %v: must be positive", c.ConnectEarthTimeout))
	}
	if c.ConnectEarthRetries < 0 || c.ConnectEarthRetries > 10 {
		errors = append(errors, fmt.Sprintf("invalid Connect Earth retries %d: must be between 0 and 10", c.ConnectEarthRetries))
	}
	if len(c.DefaultCurrency) != 3 {
		errors = append(errors, fmt.Sprintf("invalid default currency '%s': must be an ISO 4217 code", c.DefaultCurrency))
	}
	if len(c.DefaultGeo) != 2 {
		errors = append(errors, fmt.Sprintf("invalid default geo '%s': must be an ISO 3166 alpha-2 code", c.DefaultGeo))
	}

	// Validate rebuild configuration
	if c.MonthsBack < 1 || c.MonthsBack > 120 {
		errors = append(errors, fmt.Sprintf("invalid months back %d: must be between 1 and 120", c.MonthsBack))
	}
	if c.ReloadBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid reload batch size %d: must be at least 1", c.ReloadBatchSize))
	} else if c.ReloadBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid reload batch size %d: must be at most 1000", c.ReloadBatchSize))
	}
	if c.ReloadConcurrency < 1 {
		errors = append(errors, fmt.Sprintf("invalid reload concurrency %d: must be at least 1", c.ReloadConcurrency))
	}
	if c.ReloadInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid reload interval %v: must be at least 1 second", c.ReloadInterval))
	} else if c.ReloadInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid reload interval %v: must be at most 24 hours", c.ReloadInterval))
	}

	validLevels := []string{"debug", "info", "warn", "warning", "error"}
	if !slices.Contains(validLevels, strings.ToLower(c.LogLevel)) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLevels))
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'json' or 'text'", c.LogFormat))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
