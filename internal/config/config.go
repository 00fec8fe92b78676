// Package config defines the closed configuration surface for sitekit.
// Every field is defaulted explicitly at construction time; file and
// environment loading overlay the defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Configuration represents the complete sitekit configuration
type Configuration struct {
	ComponentName string        `yaml:"component_name"`
	Logging       LoggingConfig `yaml:"logging"`
	HTTP          HTTPConfig    `yaml:"http"`
	Cache         CacheConfig   `yaml:"cache"`
}

// LoggingConfig represents logging settings
type LoggingConfig struct {
	Level             string `yaml:"level"`
	EnableConsole     bool   `yaml:"enable_console"`
	EnablePerformance bool   `yaml:"enable_performance"`
	HistorySize       int    `yaml:"history_size"`
}

// HTTPConfig represents HTTP transport settings
type HTTPConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	Retries    int           `yaml:"retries"`
	EnableAuth bool          `yaml:"enable_auth"`
}

// CacheConfig represents cache strategy settings
type CacheConfig struct {
	Strategy  string        `yaml:"strategy"`
	TTL       time.Duration `yaml:"ttl"`
	Directory string        `yaml:"directory"`
}

// Valid cache strategies. "none" disables caching entirely.
const (
	StrategyNone        = "none"
	StrategyMemory      = "memory"
	StrategyStorage     = "storage"
	StrategyPessimistic = "pessimistic"
)

// NewDefault returns a configuration with the documented defaults
func NewDefault() *Configuration {
	return &Configuration{
		ComponentName: "App",
		Logging: LoggingConfig{
			Level:             "INFO",
			EnableConsole:     true,
			EnablePerformance: true,
			HistorySize:       500,
		},
		HTTP: HTTPConfig{
			Timeout:    30 * time.Second,
			Retries:    2,
			EnableAuth: true,
		},
		Cache: CacheConfig{
			Strategy:  StrategyNone,
			TTL:       5 * time.Minute,
			Directory: "",
		},
	}
}

// LoadFromFile loads configuration from a YAML file, overlaying the
// receiver's current values
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("SITEKIT_COMPONENT_NAME"); val != "" {
		c.ComponentName = val
	}
	if val := os.Getenv("SITEKIT_LOG_LEVEL"); val != "" {
		c.Logging.Level = val
	}
	if val := os.Getenv("SITEKIT_LOG_CONSOLE"); val != "" {
		c.Logging.EnableConsole = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("SITEKIT_LOG_PERFORMANCE"); val != "" {
		c.Logging.EnablePerformance = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("SITEKIT_HTTP_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.HTTP.Timeout = duration
		}
	}
	if val := os.Getenv("SITEKIT_HTTP_RETRIES"); val != "" {
		if retries, err := strconv.Atoi(val); err == nil {
			c.HTTP.Retries = retries
		}
	}
	if val := os.Getenv("SITEKIT_HTTP_AUTH"); val != "" {
		c.HTTP.EnableAuth = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("SITEKIT_CACHE_STRATEGY"); val != "" {
		c.Cache.Strategy = val
	}
	if val := os.Getenv("SITEKIT_CACHE_TTL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Cache.TTL = duration
		}
	}
	if val := os.Getenv("SITEKIT_CACHE_DIR"); val != "" {
		c.Cache.Directory = val
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	if c.ComponentName == "" {
		return fmt.Errorf("component_name cannot be empty")
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if strings.ToUpper(c.Logging.Level) == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return fmt.Errorf("invalid logging.level: %s (must be one of: %s)",
			c.Logging.Level, strings.Join(validLogLevels, ", "))
	}

	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be greater than 0")
	}
	if c.HTTP.Retries < 0 {
		return fmt.Errorf("http.retries cannot be negative")
	}

	switch c.Cache.Strategy {
	case StrategyNone, StrategyMemory, StrategyStorage, StrategyPessimistic:
	default:
		return fmt.Errorf("invalid cache.strategy: %s (must be one of: none, memory, storage, pessimistic)",
			c.Cache.Strategy)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be greater than 0")
	}
	if c.Cache.Strategy == StrategyStorage && c.Cache.Directory == "" {
		return fmt.Errorf("cache.directory is required for the storage strategy")
	}

	return nil
}
