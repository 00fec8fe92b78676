// Package performance tracks operation timings in a fixed-capacity ring
// buffer with aggregate queries, and exports them as Prometheus metrics.
package performance

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultCapacity bounds the metric ring buffer. Oldest entries are evicted
// first once the buffer is full.
const DefaultCapacity = 200

// Metric records one completed operation.
type Metric struct {
	Name      string        `json:"name"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Timestamp time.Time     `json:"timestamp"`
}

// Summary aggregates all recorded metrics for one operation name.
type Summary struct {
	Name        string        `json:"name"`
	Count       int           `json:"count"`
	Failures    int           `json:"failures"`
	Total       time.Duration `json:"total"`
	Average     time.Duration `json:"average"`
	Min         time.Duration `json:"min"`
	Max         time.Duration `json:"max"`
	SuccessRate float64       `json:"success_rate"`
}

// Config represents tracker configuration
type Config struct {
	Enabled   bool
	Capacity  int
	Namespace string
}

// Tracker collects operation timings. Safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	enabled  bool
	metrics  []Metric
	capacity int
	start    int
	count    int

	registry          *prometheus.Registry
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
}

// NewTracker creates a new performance tracker
func NewTracker(config Config) *Tracker {
	if config.Capacity <= 0 {
		config.Capacity = DefaultCapacity
	}
	namespace := config.Namespace
	if namespace == "" {
		namespace = "sitekit"
	}

	registry := prometheus.NewRegistry()
	operationCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Total number of tracked operations",
	}, []string{"operation", "success"})
	operationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Duration of tracked operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
	registry.MustRegister(operationCounter, operationDuration)

	return &Tracker{
		enabled:           config.Enabled,
		metrics:           make([]Metric, config.Capacity),
		capacity:          config.Capacity,
		registry:          registry,
		operationCounter:  operationCounter,
		operationDuration: operationDuration,
	}
}

// Record stores one operation timing. No-op when the tracker is disabled.
func (t *Tracker) Record(name string, duration time.Duration, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}

	m := Metric{
		Name:      name,
		Duration:  duration,
		Success:   success,
		Timestamp: time.Now(),
	}
	if t.count < t.capacity {
		t.metrics[(t.start+t.count)%t.capacity] = m
		t.count++
	} else {
		t.metrics[t.start] = m
		t.start = (t.start + 1) % t.capacity
	}

	successLabel := "true"
	if !success {
		successLabel = "false"
	}
	t.operationCounter.WithLabelValues(name, successLabel).Inc()
	t.operationDuration.WithLabelValues(name).Observe(duration.Seconds())
}

// Track runs fn, records its duration under name, and returns its error.
func (t *Tracker) Track(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	t.Record(name, time.Since(start), err == nil)
	return err
}

// All returns a copy of the buffered metrics, oldest first.
func (t *Tracker) All() []Metric {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Metric, 0, t.count)
	for i := 0; i < t.count; i++ {
		out = append(out, t.metrics[(t.start+i)%t.capacity])
	}
	return out
}

// Summarize aggregates the buffered metrics for one operation name. The
// second return is false when no metrics for the name are buffered.
func (t *Tracker) Summarize(name string) (Summary, bool) {
	summary := Summary{Name: name}
	for _, m := range t.All() {
		if m.Name != name {
			continue
		}
		if summary.Count == 0 || m.Duration < summary.Min {
			summary.Min = m.Duration
		}
		if m.Duration > summary.Max {
			summary.Max = m.Duration
		}
		summary.Count++
		summary.Total += m.Duration
		if !m.Success {
			summary.Failures++
		}
	}
	if summary.Count == 0 {
		return summary, false
	}
	summary.Average = summary.Total / time.Duration(summary.Count)
	summary.SuccessRate = float64(summary.Count-summary.Failures) / float64(summary.Count)
	return summary, true
}

// Summaries aggregates the buffered metrics for every operation name seen.
func (t *Tracker) Summaries() map[string]Summary {
	out := make(map[string]Summary)
	for _, m := range t.All() {
		if _, seen := out[m.Name]; !seen {
			if s, ok := t.Summarize(m.Name); ok {
				out[m.Name] = s
			}
		}
	}
	return out
}

// Reset drops all buffered metrics. Prometheus counters are cumulative and
// are left untouched.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.start = 0
	t.count = 0
}

// Handler returns an HTTP handler serving the Prometheus metrics.
func (t *Tracker) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for test assertions.
func (t *Tracker) Gatherer() prometheus.Gatherer {
	return t.registry
}
