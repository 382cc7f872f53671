// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
//	threshold := cfg.Matching.ScoreThreshold
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Matching      MatchingConfig      `yaml:"matching"`
	Decay         DecayConfig         `yaml:"decay"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// MatchingConfig holds scoring and auto-match tuning
type MatchingConfig struct {
	ScoreThreshold  int `yaml:"score_threshold"`  // minimum total score to auto-propose
	AmbiguityWindow int `yaml:"ambiguity_window"` // top-two gap that flags manual review
	DateWindowDays  int `yaml:"date_window_days"` // outer candidate fetch window
	CandidateLimit  int `yaml:"candidate_limit"`  // max candidates returned for review
}

// DecayConfig holds alias confidence decay settings
type DecayConfig struct {
	Interval      time.Duration `yaml:"interval"`       // how often the job runs
	StaleAfter    time.Duration `yaml:"stale_after"`    // alias age before decay applies
	Factor        float64       `yaml:"factor"`         // multiplier applied per run
	ConfidenceMin float64       `yaml:"confidence_min"` // decay stops at this floor
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${RECEIPT_DB_PATH})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvInt("RECEIPT_API_PORT", 8080),
		},
		Storage: StorageConfig{
			DatabasePath: getEnv("RECEIPT_DB_PATH", "receipt_match.db"),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "text"),
			},
		},
	}
	cfg.applyDefaults()
	return cfg
}

// LoadOrEnv tries config.yaml first, falling back to environment variables
func LoadOrEnv() *Config {
	for _, path := range []string{"config.yaml", "config.yml"} {
		if _, err := os.Stat(path); err == nil {
			cfg, err := Load(path)
			if err == nil {
				return cfg
			}
			fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
		}
	}
	return LoadFromEnv()
}

// applyDefaults fills in zero-valued fields with defaults
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "receipt_match.db"
	}
	if c.Matching.ScoreThreshold == 0 {
		c.Matching.ScoreThreshold = 70
	}
	if c.Matching.AmbiguityWindow == 0 {
		c.Matching.AmbiguityWindow = 5
	}
	if c.Matching.DateWindowDays == 0 {
		c.Matching.DateWindowDays = 7
	}
	if c.Matching.CandidateLimit == 0 {
		c.Matching.CandidateLimit = 10
	}
	if c.Decay.Interval == 0 {
		c.Decay.Interval = 7 * 24 * time.Hour
	}
	if c.Decay.StaleAfter == 0 {
		c.Decay.StaleAfter = 180 * 24 * time.Hour
	}
	if c.Decay.Factor == 0 {
		c.Decay.Factor = 0.9
	}
	if c.Decay.ConfidenceMin == 0 {
		c.Decay.ConfidenceMin = 0.5
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = "text"
	}
}

// getEnv returns the environment variable value or a default
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt returns the environment variable parsed as int or a default
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}
