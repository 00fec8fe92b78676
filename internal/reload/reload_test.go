package reload

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sitekit/sitekit/internal/config"
	"github.com/sitekit/sitekit/pkg/logging"
)

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: logging.ERROR, Component: "test"})
}

func writeConfig(t *testing.T, path, componentName string) {
	t.Helper()
	content := "component_name: " + componentName + "\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
}

func waitForReloads(t *testing.T, w *Watcher, want int64) Stats {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		stats := w.GetStats()
		if stats.TotalReloads >= want {
			return stats
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %d reloads, stats: %+v", want, w.GetStats())
	return Stats{}
}

func TestNewWatcherValidation(t *testing.T) {
	handler := func(cfg *config.Configuration) error { return nil }

	if _, err := NewWatcher(Config{}, handler, testLogger()); err == nil {
		t.Error("Expected error for missing config file")
	}
	if _, err := NewWatcher(Config{ConfigFile: "x.yaml"}, nil, testLogger()); err == nil {
		t.Error("Expected error for missing handler")
	}
}

func TestReloadOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sitekit.yaml")
	writeConfig(t, path, "Before")

	var mu sync.Mutex
	var received []string
	handler := func(cfg *config.Configuration) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, cfg.ComponentName)
		return nil
	}

	w, err := NewWatcher(Config{ConfigFile: path, Debounce: 50 * time.Millisecond}, handler, testLogger())
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Close()

	writeConfig(t, path, "After")

	stats := waitForReloads(t, w, 1)
	if stats.SuccessfulReloads != 1 {
		t.Errorf("Expected 1 successful reload, got %+v", stats)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0] != "After" {
		t.Errorf("Handler should see the new config, got %v", received)
	}
}

func TestInvalidConfigKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sitekit.yaml")
	writeConfig(t, path, "Before")

	var calls int
	handler := func(cfg *config.Configuration) error {
		calls++
		return nil
	}

	w, err := NewWatcher(Config{ConfigFile: path, Debounce: 50 * time.Millisecond}, handler, testLogger())
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Close()

	// Not valid YAML for our schema: retries must not be negative
	if err := os.WriteFile(path, []byte("http:\n  retries: -1\n"), 0600); err != nil {
		t.Fatal(err)
	}

	stats := waitForReloads(t, w, 1)
	if stats.FailedReloads != 1 {
		t.Errorf("Expected 1 failed reload, got %+v", stats)
	}
	if calls != 0 {
		t.Errorf("Handler must not run for an invalid config, ran %d times", calls)
	}
}

func TestUnrelatedFilesIgnored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sitekit.yaml")
	writeConfig(t, path, "App")

	handler := func(cfg *config.Configuration) error { return nil }
	w, err := NewWatcher(Config{ConfigFile: path, Debounce: 50 * time.Millisecond}, handler, testLogger())
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0600); err != nil {
		t.Fatal(err)
	}

	time.Sleep(200 * time.Millisecond)
	if stats := w.GetStats(); stats.TotalReloads != 0 {
		t.Errorf("Writes to other files must not trigger a reload, got %+v", stats)
	}
}

func TestDebounceCoalescesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sitekit.yaml")
	writeConfig(t, path, "App")

	handler := func(cfg *config.Configuration) error { return nil }
	w, err := NewWatcher(Config{ConfigFile: path, Debounce: 150 * time.Millisecond}, handler, testLogger())
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Close()

	for i := 0; i < 5; i++ {
		writeConfig(t, path, "App")
		time.Sleep(10 * time.Millisecond)
	}

	stats := waitForReloads(t, w, 1)
	// Give a potential spurious second reload time to land
	time.Sleep(300 * time.Millisecond)
	stats = w.GetStats()
	if stats.TotalReloads != 1 {
		t.Errorf("Burst of writes should coalesce into one reload, got %+v", stats)
	}
}

func TestClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sitekit.yaml")
	writeConfig(t, path, "App")

	handler := func(cfg *config.Configuration) error { return nil }
	w, err := NewWatcher(Config{ConfigFile: path, Debounce: 50 * time.Millisecond}, handler, testLogger())
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	// Writes after Close must not trigger reloads
	writeConfig(t, path, "Changed")
	time.Sleep(150 * time.Millisecond)
	if stats := w.GetStats(); stats.TotalReloads != 0 {
		t.Errorf("Closed watcher must not reload, got %+v", stats)
	}
}
