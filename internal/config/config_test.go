package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	if cfg.ComponentName != "App" {
		t.Errorf("Expected ComponentName to be App, got %s", cfg.ComponentName)
	}
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected Level to be INFO, got %s", cfg.Logging.Level)
	}
	if !cfg.Logging.EnableConsole {
		t.Error("Expected EnableConsole to default to true")
	}
	if !cfg.Logging.EnablePerformance {
		t.Error("Expected EnablePerformance to default to true")
	}
	if cfg.HTTP.Timeout != 30*time.Second {
		t.Errorf("Expected HTTP timeout 30s, got %v", cfg.HTTP.Timeout)
	}
	if cfg.HTTP.Retries != 2 {
		t.Errorf("Expected 2 retries, got %d", cfg.HTTP.Retries)
	}
	if !cfg.HTTP.EnableAuth {
		t.Error("Expected EnableAuth to default to true")
	}
	if cfg.Cache.Strategy != StrategyNone {
		t.Errorf("Expected cache strategy none, got %s", cfg.Cache.Strategy)
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("Expected cache TTL 5m, got %v", cfg.Cache.TTL)
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `
component_name: Invoicing
logging:
  level: DEBUG
  enable_console: false
http:
  timeout: 10s
  retries: 4
cache:
  strategy: memory
  ttl: 1m
`
	path := filepath.Join(t.TempDir(), "sitekit.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg := NewDefault()
	if err := cfg.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.ComponentName != "Invoicing" {
		t.Errorf("Expected ComponentName Invoicing, got %s", cfg.ComponentName)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level DEBUG, got %s", cfg.Logging.Level)
	}
	if cfg.Logging.EnableConsole {
		t.Error("Expected console disabled")
	}
	if cfg.HTTP.Timeout != 10*time.Second {
		t.Errorf("Expected timeout 10s, got %v", cfg.HTTP.Timeout)
	}
	if cfg.HTTP.Retries != 4 {
		t.Errorf("Expected 4 retries, got %d", cfg.HTTP.Retries)
	}
	if cfg.Cache.Strategy != StrategyMemory {
		t.Errorf("Expected strategy memory, got %s", cfg.Cache.Strategy)
	}
	if cfg.Cache.TTL != time.Minute {
		t.Errorf("Expected TTL 1m, got %v", cfg.Cache.TTL)
	}

	// Untouched fields keep their defaults
	if !cfg.HTTP.EnableAuth {
		t.Error("Expected EnableAuth default true to survive overlay")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := NewDefault()
	if err := cfg.LoadFromFile("/nonexistent/sitekit.yaml"); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SITEKIT_LOG_LEVEL", "WARN")
	t.Setenv("SITEKIT_HTTP_TIMEOUT", "5s")
	t.Setenv("SITEKIT_HTTP_RETRIES", "0")
	t.Setenv("SITEKIT_HTTP_AUTH", "false")
	t.Setenv("SITEKIT_CACHE_STRATEGY", "storage")
	t.Setenv("SITEKIT_CACHE_DIR", "/var/cache/sitekit")

	cfg := NewDefault()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected WARN, got %s", cfg.Logging.Level)
	}
	if cfg.HTTP.Timeout != 5*time.Second {
		t.Errorf("Expected 5s, got %v", cfg.HTTP.Timeout)
	}
	if cfg.HTTP.Retries != 0 {
		t.Errorf("Expected 0 retries, got %d", cfg.HTTP.Retries)
	}
	if cfg.HTTP.EnableAuth {
		t.Error("Expected auth disabled")
	}
	if cfg.Cache.Strategy != StrategyStorage {
		t.Errorf("Expected storage, got %s", cfg.Cache.Strategy)
	}
	if cfg.Cache.Directory != "/var/cache/sitekit" {
		t.Errorf("Expected cache dir, got %s", cfg.Cache.Directory)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Configuration)
		wantErr bool
	}{
		{"defaults are valid", func(c *Configuration) {}, false},
		{"empty component name", func(c *Configuration) { c.ComponentName = "" }, true},
		{"bad log level", func(c *Configuration) { c.Logging.Level = "CHATTY" }, true},
		{"zero timeout", func(c *Configuration) { c.HTTP.Timeout = 0 }, true},
		{"negative retries", func(c *Configuration) { c.HTTP.Retries = -1 }, true},
		{"bad strategy", func(c *Configuration) { c.Cache.Strategy = "redis" }, true},
		{"zero ttl", func(c *Configuration) { c.Cache.TTL = 0 }, true},
		{"storage without directory", func(c *Configuration) { c.Cache.Strategy = StrategyStorage }, true},
		{"storage with directory", func(c *Configuration) {
			c.Cache.Strategy = StrategyStorage
			c.Cache.Directory = "/tmp/cache"
		}, false},
		{"pessimistic strategy", func(c *Configuration) { c.Cache.Strategy = StrategyPessimistic }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefault()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
