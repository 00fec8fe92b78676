package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func newTestLogger(level Level, historySize int) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := New(Config{
		Level:         level,
		Component:     "test",
		CorrelationID: "corr-1",
		EnableConsole: true,
		Output:        &buf,
		HistorySize:   historySize,
	})
	return logger, &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"DEBUG", DEBUG, false},
		{"debug", DEBUG, false},
		{"INFO", INFO, false},
		{"WARN", WARN, false},
		{"warning", WARN, false},
		{"ERROR", ERROR, false},
		{"verbose", INFO, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestLevelGating(t *testing.T) {
	logger, buf := newTestLogger(WARN, 10)

	logger.Debug("not emitted")
	logger.Info("not emitted")
	logger.Warn("emitted")
	logger.Error("also emitted")

	if got := len(logger.History()); got != 2 {
		t.Errorf("Expected 2 history entries, got %d", got)
	}
	if strings.Count(buf.String(), "\n") != 2 {
		t.Errorf("Expected 2 console lines, got output: %q", buf.String())
	}
}

func TestHistoryIsBounded(t *testing.T) {
	logger, _ := newTestLogger(INFO, 5)

	for i := 0; i < 12; i++ {
		logger.Infof("entry %d", i)
	}

	history := logger.History()
	if len(history) != 5 {
		t.Fatalf("Expected history capped at 5, got %d", len(history))
	}
	// Oldest evicted first: entries 7..11 remain
	if history[0].Message != "entry 7" {
		t.Errorf("Expected oldest surviving entry to be 'entry 7', got %q", history[0].Message)
	}
	if history[4].Message != "entry 11" {
		t.Errorf("Expected newest entry to be 'entry 11', got %q", history[4].Message)
	}
}

func TestChildSharesHistoryAndCorrelation(t *testing.T) {
	logger, _ := newTestLogger(INFO, 10)
	child := logger.Child("sites")

	logger.Info("from parent")
	child.Info("from child")

	if child.CorrelationID() != "corr-1" {
		t.Errorf("Expected child to inherit correlation id, got %q", child.CorrelationID())
	}
	if child.Component() != "sites" {
		t.Errorf("Expected child component 'sites', got %q", child.Component())
	}

	history := logger.History()
	if len(history) != 2 {
		t.Fatalf("Expected shared history with 2 entries, got %d", len(history))
	}
	if history[1].Component != "sites" {
		t.Errorf("Expected child entry component 'sites', got %q", history[1].Component)
	}
	if history[1].CorrelationID != "corr-1" {
		t.Errorf("Expected child entry correlation 'corr-1', got %q", history[1].CorrelationID)
	}
}

func TestChildSharesLevelChanges(t *testing.T) {
	logger, _ := newTestLogger(INFO, 10)
	child := logger.Child("sites")

	child.Info("recorded")
	logger.SetLevel(ERROR)
	child.Info("suppressed")
	child.Error("still recorded")

	if got := child.GetLevel(); got != ERROR {
		t.Errorf("Expected child level ERROR after root SetLevel, got %v", got)
	}

	history := logger.History()
	if len(history) != 2 {
		t.Fatalf("Expected 2 history entries, got %d", len(history))
	}
	if history[1].Message != "still recorded" {
		t.Errorf("Expected last entry 'still recorded', got %q", history[1].Message)
	}

	// The sharing runs both ways
	child.SetLevel(DEBUG)
	if got := logger.GetLevel(); got != DEBUG {
		t.Errorf("Expected root level DEBUG after child SetLevel, got %v", got)
	}
}

func TestHistoryByLevel(t *testing.T) {
	logger, _ := newTestLogger(DEBUG, 10)

	logger.Info("one")
	logger.Error("two")
	logger.Error("three")

	errs := logger.HistoryByLevel(ERROR)
	if len(errs) != 2 {
		t.Fatalf("Expected 2 error entries, got %d", len(errs))
	}
}

func TestFieldsInConsoleOutput(t *testing.T) {
	logger, buf := newTestLogger(INFO, 10)

	logger.Info("request done", map[string]interface{}{"status": 200, "attempt": 1})

	out := buf.String()
	if !strings.Contains(out, "status=200") || !strings.Contains(out, "attempt=1") {
		t.Errorf("Expected fields in output, got %q", out)
	}
	if !strings.Contains(out, "correlation=corr-1") {
		t.Errorf("Expected correlation id in output, got %q", out)
	}
}

func TestStartTimer(t *testing.T) {
	logger, _ := newTestLogger(DEBUG, 10)

	stop := logger.StartTimer("fetch")
	time.Sleep(10 * time.Millisecond)
	elapsed := stop()

	if elapsed < 10*time.Millisecond {
		t.Errorf("Expected elapsed >= 10ms, got %v", elapsed)
	}
	history := logger.History()
	if len(history) != 1 || !strings.Contains(history[0].Message, "fetch completed") {
		t.Errorf("Expected timer log entry, got %+v", history)
	}
}

func TestClearHistory(t *testing.T) {
	logger, _ := newTestLogger(INFO, 10)
	logger.Info("entry")
	logger.ClearHistory()
	if len(logger.History()) != 0 {
		t.Error("Expected empty history after clear")
	}
}

func TestConsoleDisabled(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: INFO, EnableConsole: false, Output: &buf})

	logger.Info("silent")

	if buf.Len() != 0 {
		t.Errorf("Expected no console output, got %q", buf.String())
	}
	if len(logger.History()) != 1 {
		t.Error("Expected history to capture the entry even with console off")
	}
}
