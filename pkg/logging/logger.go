// Package logging provides structured, leveled logging with a bounded
// in-memory history for post-hoc diagnostics. Child loggers share the
// history, level, and correlation id of their parent while carrying their
// own component prefix.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultHistorySize bounds the in-memory log history. Oldest entries are
// evicted first once the buffer is full.
const DefaultHistorySize = 500

// Entry represents a complete log entry.
type Entry struct {
	Timestamp     time.Time              `json:"timestamp"`
	Level         string                 `json:"level"`
	Message       string                 `json:"message"`
	Fields        map[string]interface{} `json:"fields,omitempty"`
	Component     string                 `json:"component,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
}

// history is a fixed-capacity ring of log entries shared by a logger and
// all of its children.
type history struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	start    int
	count    int
}

func newHistory(capacity int) *history {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &history{
		entries:  make([]Entry, capacity),
		capacity: capacity,
	}
}

func (h *history) append(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count < h.capacity {
		h.entries[(h.start+h.count)%h.capacity] = e
		h.count++
		return
	}
	// Full: overwrite the oldest slot
	h.entries[h.start] = e
	h.start = (h.start + 1) % h.capacity
}

func (h *history) snapshot() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Entry, 0, h.count)
	for i := 0; i < h.count; i++ {
		out = append(out, h.entries[(h.start+i)%h.capacity])
	}
	return out
}

func (h *history) clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.start = 0
	h.count = 0
}

// levelVar is the mutable minimum level shared by a logger and all of its
// children, so SetLevel on any of them takes effect for the whole family.
type levelVar struct {
	mu    sync.Mutex
	level Level
}

func (v *levelVar) get() Level {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.level
}

func (v *levelVar) set(level Level) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.level = level
}

// Config holds configuration for a root logger.
type Config struct {
	Level         Level
	Component     string
	CorrelationID string
	EnableConsole bool
	Output        io.Writer
	HistorySize   int
}

// Logger provides leveled structured logging with bounded history.
type Logger struct {
	mu            sync.Mutex
	level         *levelVar
	component     string
	correlationID string
	console       bool
	output        io.Writer
	history       *history
}

// New creates a new root logger.
func New(config Config) *Logger {
	output := config.Output
	if output == nil {
		output = os.Stdout
	}
	return &Logger{
		level:         &levelVar{level: config.Level},
		component:     config.Component,
		correlationID: config.CorrelationID,
		console:       config.EnableConsole,
		output:        output,
		history:       newHistory(config.HistorySize),
	}
}

// Child returns a logger sharing this logger's level, correlation id,
// output, and history, but carrying its own component name. The level is
// shared live: SetLevel on either logger affects both.
func (l *Logger) Child(component string) *Logger {
	return &Logger{
		level:         l.level,
		component:     component,
		correlationID: l.correlationID,
		console:       l.console,
		output:        l.output,
		history:       l.history,
	}
}

// SetLevel sets the log level for this logger and every logger sharing
// its history.
func (l *Logger) SetLevel(level Level) {
	l.level.set(level)
}

// GetLevel returns the current log level.
func (l *Logger) GetLevel() Level {
	return l.level.get()
}

// Component returns the component name carried by this logger.
func (l *Logger) Component() string {
	return l.component
}

// CorrelationID returns the correlation id carried by this logger.
func (l *Logger) CorrelationID() string {
	return l.correlationID
}

// Debug logs a debug message with optional structured fields.
func (l *Logger) Debug(message string, fields ...map[string]interface{}) {
	l.log(DEBUG, message, mergeFields(fields))
}

// Info logs an info message with optional structured fields.
func (l *Logger) Info(message string, fields ...map[string]interface{}) {
	l.log(INFO, message, mergeFields(fields))
}

// Warn logs a warning message with optional structured fields.
func (l *Logger) Warn(message string, fields ...map[string]interface{}) {
	l.log(WARN, message, mergeFields(fields))
}

// Error logs an error message with optional structured fields.
func (l *Logger) Error(message string, fields ...map[string]interface{}) {
	l.log(ERROR, message, mergeFields(fields))
}

// Debugf logs a formatted debug message.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(DEBUG, fmt.Sprintf(format, args...), nil)
}

// Infof logs a formatted info message.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(INFO, fmt.Sprintf(format, args...), nil)
}

// Warnf logs a formatted warning message.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(WARN, fmt.Sprintf(format, args...), nil)
}

// Errorf logs a formatted error message.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(ERROR, fmt.Sprintf(format, args...), nil)
}

// StartTimer returns a function that, when called, logs the elapsed time
// since StartTimer at debug level and returns the duration.
func (l *Logger) StartTimer(name string) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		elapsed := time.Since(start)
		l.log(DEBUG, fmt.Sprintf("%s completed", name), map[string]interface{}{
			"duration_ms": elapsed.Milliseconds(),
		})
		return elapsed
	}
}

// History returns a copy of the buffered log entries, oldest first.
func (l *Logger) History() []Entry {
	return l.history.snapshot()
}

// HistoryByLevel returns buffered entries at the given level, oldest first.
func (l *Logger) HistoryByLevel(level Level) []Entry {
	var out []Entry
	for _, e := range l.history.snapshot() {
		if e.Level == level.String() {
			out = append(out, e)
		}
	}
	return out
}

// ClearHistory drops all buffered entries.
func (l *Logger) ClearHistory() {
	l.history.clear()
}

func (l *Logger) log(level Level, message string, fields map[string]interface{}) {
	if level < l.level.get() {
		return
	}

	entry := Entry{
		Timestamp:     time.Now(),
		Level:         level.String(),
		Message:       message,
		Fields:        fields,
		Component:     l.component,
		CorrelationID: l.correlationID,
	}
	l.history.append(entry)

	if l.console {
		l.mu.Lock()
		_, _ = l.output.Write([]byte(formatText(entry)))
		l.mu.Unlock()
	}
}

func formatText(entry Entry) string {
	var sb strings.Builder

	sb.WriteString(entry.Timestamp.Format("2006-01-02 15:04:05.000"))
	sb.WriteString(" [")
	sb.WriteString(entry.Level)
	sb.WriteString("] ")
	if entry.Component != "" {
		sb.WriteString("[")
		sb.WriteString(entry.Component)
		sb.WriteString("] ")
	}
	sb.WriteString(entry.Message)

	if len(entry.Fields) > 0 {
		keys := make([]string, 0, len(entry.Fields))
		for k := range entry.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(fmt.Sprintf("%v", entry.Fields[k]))
		}
		sb.WriteString("}")
	}
	if entry.CorrelationID != "" {
		sb.WriteString(" correlation=")
		sb.WriteString(entry.CorrelationID)
	}
	sb.WriteString("\n")

	return sb.String()
}

func mergeFields(fieldMaps []map[string]interface{}) map[string]interface{} {
	if len(fieldMaps) == 0 {
		return nil
	}
	if len(fieldMaps) == 1 {
		return fieldMaps[0]
	}
	merged := make(map[string]interface{})
	for _, m := range fieldMaps {
		for k, v := range m {
			merged[k] = v
		}
	}
	return merged
}
