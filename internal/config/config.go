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

	"github.com/BurntSushi/toml"
	"golang.org/x/text/language"

	"envelopes/internal/core"
)

// Backends accepted by DATA_BACKEND.
const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
)

// ConfigFileEnv names the optional TOML overlay file.
const ConfigFileEnv = "ENVELOPES_CONFIG_FILE"

type Config struct {
	// HTTP Server
	Port     string `toml:"port"`
	LogLevel string `toml:"log_level"`

	// Storage
	DataBackend  string `toml:"data_backend"`
	SQLiteDBPath string `toml:"sqlite_db_path"`

	// AMQP
	AMQPURL      string `toml:"amqp_url"`
	AMQPExchange string `toml:"amqp_exchange"`
	AMQPQueue    string `toml:"amqp_queue"`

	// Firestore remote copy
	FirestoreProjectID  string `toml:"firestore_project_id"`
	FirestoreCollection string `toml:"firestore_collection"`

	// Google Sheets ledger
	GoogleSpreadsheetID string `toml:"google_spreadsheet_id"`
	GoogleSheetName     string `toml:"google_sheet_name"`

	// Sync
	SyncDebounce  time.Duration `toml:"-"`
	SyncInterval  time.Duration `toml:"-"`
	SyncBatchSize int           `toml:"sync_batch_size"`

	// Domain defaults
	DayBoundaryTZ   string `toml:"day_boundary_tz"`
	DefaultCurrency string `toml:"default_currency"`
	DefaultLanguage string `toml:"default_language"`
}

// fileConfig mirrors Config for the TOML overlay; durations are strings.
type fileConfig struct {
	Config
	SyncDebounce string `toml:"sync_debounce"`
	SyncInterval string `toml:"sync_interval"`
}

func defaults() *Config {
	return &Config{
		Port:                "8081",
		LogLevel:            "info",
		DataBackend:         BackendMemory,
		SQLiteDBPath:        "./data/envelopes.db",
		AMQPExchange:        "envelopes",
		AMQPQueue:           "sync_challenges",
		FirestoreCollection: "savings_states",
		GoogleSheetName:     "Envelopes",
		SyncDebounce:        2 * time.Second,
		SyncInterval:        5 * time.Minute,
		SyncBatchSize:       50,
		DayBoundaryTZ:       "UTC",
		DefaultCurrency:     "RUB",
		DefaultLanguage:     "en",
	}
}

// Load builds the configuration from defaults, the optional TOML file named
// by ENVELOPES_CONFIG_FILE, and the environment, in that order.
func Load() (*Config, error) {
	cfg := defaults()
	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.DataBackend = getEnv("DATA_BACKEND", cfg.DataBackend)
	cfg.SQLiteDBPath = getEnv("SQLITE_DB_PATH", cfg.SQLiteDBPath)

	cfg.AMQPURL = getEnv("AMQP_URL", cfg.AMQPURL)
	cfg.AMQPExchange = getEnv("AMQP_EXCHANGE", cfg.AMQPExchange)
	cfg.AMQPQueue = getEnv("AMQP_QUEUE", cfg.AMQPQueue)

	cfg.FirestoreProjectID = getEnv("FIRESTORE_PROJECT_ID", cfg.FirestoreProjectID)
	cfg.FirestoreCollection = getEnv("FIRESTORE_COLLECTION", cfg.FirestoreCollection)

	cfg.GoogleSpreadsheetID = getEnv("GOOGLE_SPREADSHEET_ID", cfg.GoogleSpreadsheetID)
	cfg.GoogleSheetName = getEnv("GOOGLE_SHEET_NAME", cfg.GoogleSheetName)

	cfg.SyncDebounce = getEnvDuration("SYNC_DEBOUNCE", cfg.SyncDebounce)
	cfg.SyncInterval = getEnvDuration("SYNC_INTERVAL", cfg.SyncInterval)
	cfg.SyncBatchSize = getEnvInt("SYNC_BATCH_SIZE", cfg.SyncBatchSize)

	cfg.DayBoundaryTZ = getEnv("DAY_BOUNDARY_TZ", cfg.DayBoundaryTZ)
	cfg.DefaultCurrency = strings.ToUpper(getEnv("DEFAULT_CURRENCY", cfg.DefaultCurrency))
	cfg.DefaultLanguage = getEnv("DEFAULT_LANGUAGE", cfg.DefaultLanguage)

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	fc := fileConfig{Config: *c}
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	merged := fc.Config
	merged.SyncDebounce, merged.SyncInterval = c.SyncDebounce, c.SyncInterval
	if fc.SyncDebounce != "" {
		d, err := time.ParseDuration(fc.SyncDebounce)
		if err != nil {
			return fmt.Errorf("config file %s: sync_debounce: %w", path, err)
		}
		merged.SyncDebounce = d
	}
	if fc.SyncInterval != "" {
		d, err := time.ParseDuration(fc.SyncInterval)
		if err != nil {
			return fmt.Errorf("config file %s: sync_interval: %w", path, err)
		}
		merged.SyncInterval = d
	}
	*c = merged
	return nil
}

// Location returns the day boundary time zone. Call Validate first.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DayBoundaryTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RemoteEnabled reports whether a Firestore remote copy is configured.
func (c *Config) RemoteEnabled() bool {
	return c.FirestoreProjectID != ""
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

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	validBackends := []string{BackendMemory, BackendSQLite, BackendFirestore}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == BackendSQLite {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.DataBackend == BackendFirestore && c.FirestoreProjectID == "" {
		errors = append(errors, "Firestore project ID is required when using firestore backend")
	}
	if c.RemoteEnabled() && c.FirestoreCollection == "" {
		errors = append(errors, "Firestore collection cannot be empty when a project ID is set")
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

	if c.GoogleSpreadsheetID != "" && c.GoogleSheetName == "" {
		errors = append(errors, "Google Sheet name is required when a spreadsheet ID is set")
	}

	if c.SyncDebounce < 0 || c.SyncDebounce > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid sync debounce %v: must be between 0 and 1 minute", c.SyncDebounce))
	}
	if c.SyncBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}
	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	if _, err := time.LoadLocation(c.DayBoundaryTZ); err != nil {
		errors = append(errors, fmt.Sprintf("invalid day boundary time zone '%s': %v", c.DayBoundaryTZ, err))
	}
	if !core.ValidCurrency(c.DefaultCurrency) {
		errors = append(errors, fmt.Sprintf("invalid default currency '%s': must be an upper-case ISO 4217 code", c.DefaultCurrency))
	}
	if _, err := language.Parse(c.DefaultLanguage); err != nil {
		errors = append(errors, fmt.Sprintf("invalid default language '%s': %v", c.DefaultLanguage, err))
	}

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
