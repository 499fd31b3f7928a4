package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"finos/internal/core"
)

const (
	TriggerHTTP = "http"
	TriggerAMQP = "amqp"
)

type Config struct {
	// HTTP Server
	Port               string
	CORSAllowedOrigins []string

	// Database
	SQLiteDBPath string

	// Ingestion backend
	IngestBaseURL      string
	IngestTimeout      time.Duration
	BreakerMaxFailures int
	BreakerOpenTimeout time.Duration

	// Active account
	Account           string
	ProfileLastSynced *time.Time
	FallbackOwner     string

	// Dashboard
	DisplayCurrency string

	// Worker
	RefreshInterval time.Duration

	// Sync trigger selection: "http" calls the ingestion backend, "amqp"
	// publishes a sync request.
	SyncTrigger string

	// AMQP
	AMQPURL         string
	AMQPExchange    string
	AMQPQueue       string
	AMQPEventsQueue string

	// Google Sheets export
	GoogleSpreadsheetID      string
	GoogleExportSheetName    string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Logging
	LogLevel  string
	LogFormat string

	// MetricsEnabled mounts the Prometheus endpoint
	MetricsEnabled bool
}

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8081"),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/finos.db"),

		IngestBaseURL:      getEnv("INGEST_BASE_URL", "http://localhost:8080"),
		IngestTimeout:      getEnvDuration("INGEST_TIMEOUT", 15*time.Second),
		BreakerMaxFailures: getEnvInt("BREAKER_MAX_FAILURES", 5),
		BreakerOpenTimeout: getEnvDuration("BREAKER_OPEN_TIMEOUT", 30*time.Second),

		Account:           strings.TrimSpace(getEnv("ACCOUNT", "")),
		ProfileLastSynced: getEnvEpoch("PROFILE_LAST_SYNCED"),
		FallbackOwner:     getEnv("FALLBACK_OWNER", ""),

		DisplayCurrency: strings.ToUpper(getEnv("DISPLAY_CURRENCY", core.DefaultCurrency)),

		RefreshInterval: getEnvDuration("REFRESH_INTERVAL", 5*time.Minute),

		SyncTrigger: strings.ToLower(getEnv("SYNC_TRIGGER", TriggerHTTP)),

		AMQPURL:         getEnv("AMQP_URL", ""),
		AMQPExchange:    getEnv("AMQP_EXCHANGE", "finos"),
		AMQPQueue:       getEnv("AMQP_QUEUE", "sync_requests"),
		AMQPEventsQueue: getEnv("AMQP_EVENTS_QUEUE", "receipts_ingested"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleExportSheetName:    getEnv("GOOGLE_EXPORT_SHEET_NAME", "Finos Export"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
	}

	return cfg
}

// Validate validates the configuration and returns an error listing every problem
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	}

	if u, err := url.Parse(c.IngestBaseURL); err != nil || c.IngestBaseURL == "" {
		errors = append(errors, fmt.Sprintf("invalid ingest base URL '%s'", c.IngestBaseURL))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid ingest base URL scheme '%s': must be 'http' or 'https'", u.Scheme))
	}
	if c.IngestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid ingest timeout %v: must be positive", c.IngestTimeout))
	}
	if c.BreakerMaxFailures < 1 {
		errors = append(errors, fmt.Sprintf("invalid breaker max failures %d: must be at least 1", c.BreakerMaxFailures))
	}
	if c.BreakerOpenTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid breaker open timeout %v: must be at least 1 second", c.BreakerOpenTimeout))
	}

	if !core.IsSupportedCurrency(c.DisplayCurrency) {
		errors = append(errors, fmt.Sprintf("unsupported display currency '%s'", c.DisplayCurrency))
	}

	if c.RefreshInterval < 10*time.Second {
		errors = append(errors, fmt.Sprintf("invalid refresh interval %v: must be at least 10 seconds", c.RefreshInterval))
	} else if c.RefreshInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid refresh interval %v: must be at most 24 hours", c.RefreshInterval))
	}

	validTriggers := []string{TriggerHTTP, TriggerAMQP}
	if !slices.Contains(validTriggers, c.SyncTrigger) {
		errors = append(errors, fmt.Sprintf("invalid sync trigger '%s': must be one of %v", c.SyncTrigger, validTriggers))
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
	} else if c.SyncTrigger == TriggerAMQP {
		errors = append(errors, "AMQP URL is required when SYNC_TRIGGER is 'amqp'")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLevels))
	}
	validFormats := []string{"text", "json"}
	if !slices.Contains(validFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validFormats))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// AMQPEnabled reports whether a broker is configured.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// ExportEnabled reports whether dashboards are exported to Google Sheets.
func (c *Config) ExportEnabled() bool {
	return c.GoogleSpreadsheetID != ""
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

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvEpoch reads epoch seconds or milliseconds. Missing, zero or invalid
// values yield nil.
func getEnvEpoch(key string) *time.Time {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil || v <= 0 {
		return nil
	}
	t := core.EpochToTime(v, time.Now())
	return &t
}
