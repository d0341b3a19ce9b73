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
	// Remote API
	APIURL      string
	HTTPTimeout time.Duration

	// Session
	ProfileTimeout time.Duration
	SafetyTimeout  time.Duration

	// Token persistence
	TokenDBPath string

	// Watch mode
	RefreshSchedule string

	// Statistics
	SeriesMonths int

	// Logging
	LogLevel string

	// AMQP refresh signals (optional)
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	// Google Sheets export (optional)
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

func Load() *Config {
	cfg := &Config{
		APIURL:      getEnv("FINBOARD_API_URL", "http://localhost:8000/api"),
		HTTPTimeout: getEnvDuration("FINBOARD_HTTP_TIMEOUT", 30*time.Second),

		ProfileTimeout: getEnvDuration("FINBOARD_PROFILE_TIMEOUT", 7*time.Second),
		SafetyTimeout:  getEnvDuration("FINBOARD_SAFETY_TIMEOUT", 8*time.Second),

		TokenDBPath: getEnv("FINBOARD_TOKEN_DB", defaultTokenDBPath()),

		RefreshSchedule: getEnv("FINBOARD_REFRESH_SCHEDULE", "@every 5m"),

		SeriesMonths: getEnvInt("FINBOARD_SERIES_MONTHS", 6),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "finboard"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "refresh_data"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Transactions"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate API URL
	if c.APIURL == "" {
		errors = append(errors, "API URL cannot be empty")
	} else if parsedURL, err := url.Parse(c.APIURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid API URL '%s': %v", c.APIURL, err))
	} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid API URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
	}

	if c.HTTPTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid HTTP timeout %v: must be positive", c.HTTPTimeout))
	}

	// The per-request profile timeout must fire before the safety timer
	if c.ProfileTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid profile timeout %v: must be positive", c.ProfileTimeout))
	}
	if c.SafetyTimeout <= c.ProfileTimeout {
		errors = append(errors, fmt.Sprintf("invalid safety timeout %v: must be longer than profile timeout %v", c.SafetyTimeout, c.ProfileTimeout))
	}

	if c.TokenDBPath == "" {
		errors = append(errors, "token database path cannot be empty")
	} else {
		// Check if directory exists or can be created
		dir := filepath.Dir(c.TokenDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o700); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create token database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if strings.TrimSpace(c.RefreshSchedule) == "" {
		errors = append(errors, "refresh schedule cannot be empty")
	}

	if c.SeriesMonths < 1 || c.SeriesMonths > 24 {
		errors = append(errors, fmt.Sprintf("invalid series months %d: must be between 1 and 24", c.SeriesMonths))
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
		if c.AMQPRoutingKey == "" {
			errors = append(errors, "AMQP routing key cannot be empty when AMQP URL is provided")
		}
	}

	// Validate Google Sheets configuration if export is enabled
	if c.GoogleSpreadsheetID != "" {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when a spreadsheet ID is set")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for sheets export")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// AMQPEnabled reports whether refresh signals should be published/consumed.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// ExportEnabled reports whether the Google Sheets export is configured.
func (c *Config) ExportEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

func defaultTokenDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "./data/finboard.db"
	}
	return filepath.Join(dir, "finboard", "finboard.db")
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
