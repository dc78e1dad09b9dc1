package config

import (
	"fmt"
	"log"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Database     DatabaseConfig `yaml:"database"`
	DebugEnabled bool           `yaml:"debug"`
}

// DatabaseConfig holds the backend connection settings
type DatabaseConfig struct {
	Driver      string        `yaml:"driver"`
	DSN         string        `yaml:"dsn"`
	JournalMode string        `yaml:"journal_mode"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// Environment variables read by LoadConfig and LoadFromPath
const (
	EnvDriver      = "GOM_DRIVER"
	EnvDatabase    = "GOM_DATABASE"
	EnvDebug       = "GOM_DEBUG"
	EnvJournalMode = "GOM_JOURNAL_MODE"
	EnvBusyTimeout = "GOM_BUSY_TIMEOUT"
)

var supportedDrivers = []string{"sqlite3", "sqlite", "pgx", "postgres"}

var journalModes = []string{"DELETE", "TRUNCATE", "PERSIST", "MEMORY", "WAL", "OFF"}

// DefaultConfig returns the configuration used when nothing is set: an
// in-memory SQLite database on the cgo driver
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:      "sqlite3",
			DSN:         ":memory:",
			JournalMode: "WAL",
			BusyTimeout: 5 * time.Second,
		},
	}
}

// LoadConfig loads configuration from environment variables
// .env file is automatically loaded via autoload import
func LoadConfig() *Config {
	cfg := DefaultConfig()
	cfg.applyEnv()
	if cfg.DebugEnabled {
		log.Printf("🐛 DEBUG: SQL debug logging enabled (%s %s)", cfg.Database.Driver, cfg.Database.DSN)
	}
	return cfg
}

// LoadFromPath reads a YAML configuration file. Environment variables
// override the file, and defaults fill whatever neither sets.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig().Database
	if c.Database.Driver == "" {
		c.Database.Driver = def.Driver
	}
	if c.Database.DSN == "" {
		c.Database.DSN = def.DSN
	}
	if c.Database.JournalMode == "" {
		c.Database.JournalMode = def.JournalMode
	}
	if c.Database.BusyTimeout == 0 {
		c.Database.BusyTimeout = def.BusyTimeout
	}
}

func (c *Config) applyEnv() {
	c.Database.Driver = getEnvWithDefault(EnvDriver, c.Database.Driver)
	c.Database.DSN = getEnvWithDefault(EnvDatabase, c.Database.DSN)
	c.Database.JournalMode = getEnvWithDefault(EnvJournalMode, c.Database.JournalMode)
	c.Database.BusyTimeout = getDurationEnvWithDefault(EnvBusyTimeout, c.Database.BusyTimeout)
	c.DebugEnabled = getBoolEnvWithDefault(EnvDebug, c.DebugEnabled)
}

// Validate checks the configuration for values the adapter cannot use
func (c *Config) Validate() error {
	if !slices.Contains(supportedDrivers, c.Database.Driver) {
		return fmt.Errorf("unsupported driver %q (supported: %s)", c.Database.Driver, strings.Join(supportedDrivers, ", "))
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database dsn is required")
	}
	if c.Database.JournalMode != "" && !slices.Contains(journalModes, strings.ToUpper(c.Database.JournalMode)) {
		return fmt.Errorf("invalid journal mode %q", c.Database.JournalMode)
	}
	if c.Database.BusyTimeout < 0 {
		return fmt.Errorf("busy timeout must not be negative")
	}
	return nil
}

// getEnvWithDefault gets an environment variable with a default fallback
func getEnvWithDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnvWithDefault gets a boolean environment variable with a default fallback
func getBoolEnvWithDefault(key string, defaultValue bool) bool {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
		log.Printf("🐛 DEBUG: Invalid boolean value for %s='%s', using default %t", key, value, defaultValue)
	}
	return defaultValue
}

// getDurationEnvWithDefault accepts Go durations ("5s") or plain milliseconds
func getDurationEnvWithDefault(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	log.Printf("🐛 DEBUG: Invalid duration value for %s='%s', using default %s", key, value, defaultValue)
	return defaultValue
}
