// Package appcontext provides the process-wide bootstrap coordinator. One
// Initialize call wires the logger, HTTP transport, performance tracker,
// primary API client, and cache behaviors into an immutable Context that
// all other code reads synchronously, plus a module extension mechanism
// and a Reset escape hatch for test isolation and hot reload.
package appcontext

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sitekit/sitekit/internal/cache"
	"github.com/sitekit/sitekit/internal/client"
	"github.com/sitekit/sitekit/internal/config"
	"github.com/sitekit/sitekit/internal/performance"
	"github.com/sitekit/sitekit/internal/sites"
	"github.com/sitekit/sitekit/internal/transport"
	"github.com/sitekit/sitekit/pkg/errors"
	"github.com/sitekit/sitekit/pkg/logging"
	"github.com/sitekit/sitekit/pkg/types"
)

// Context is the immutable bootstrap result. All fields are populated by
// exactly one Initialize call and shared by reference afterward.
type Context struct {
	platformHandle types.PlatformHandle
	correlationID  string
	environment    Environment
	componentName  string

	clients   *client.Set
	logger    *logging.Logger
	transport *transport.Client
	tracker   *performance.Tracker
	sites     *sites.Registry
	factory   *cache.Factory
	config    *config.Configuration
}

// PlatformHandle returns the host-provided platform object. Borrowed, not
// owned.
func (c *Context) PlatformHandle() types.PlatformHandle { return c.platformHandle }

// CorrelationID returns the per-process correlation id.
func (c *Context) CorrelationID() string { return c.correlationID }

// ComponentName returns the configured application component name.
func (c *Context) ComponentName() string { return c.componentName }

// Environment returns the detected deployment environment.
func (c *Context) Environment() Environment { return c.environment }

// APIClient returns the primary uncached client handle.
func (c *Context) APIClient() *client.APIClient { return c.clients.Plain }

// APIClientCached returns the primary cached client handle.
func (c *Context) APIClientCached() *client.APIClient { return c.clients.Cached }

// APIClientPessimistic returns the primary pessimistic client handle.
func (c *Context) APIClientPessimistic() *client.APIClient { return c.clients.Pessimistic }

// Logger returns the shared root logger.
func (c *Context) Logger() *logging.Logger { return c.logger }

// Transport returns the shared HTTP transport.
func (c *Context) Transport() *transport.Client { return c.transport }

// PerformanceTracker returns the shared operation-timing tracker.
func (c *Context) PerformanceTracker() *performance.Tracker { return c.tracker }

// Sites returns the multi-site connection registry.
func (c *Context) Sites() *sites.Registry { return c.sites }

// Config returns the effective configuration the context was built from.
func (c *Context) Config() *config.Configuration { return c.config }

// Module is the extension interface: anything registered post-bootstrap via
// AddModule.
type Module interface {
	Name() string

	// Initialize is called once with the ready context. A failure is logged
	// and re-thrown to the AddModule caller.
	Initialize(ctx *Context, cfg map[string]interface{}) error
}

// CleanupModule is optionally implemented by modules that hold resources.
// Cleanup failures during Reset are logged and suppressed.
type CleanupModule interface {
	Cleanup() error
}

// Manager coordinates the one-time bootstrap. A second Initialize while one
// is in flight awaits the first's result instead of re-running bootstrap.
type Manager struct {
	mu       sync.Mutex
	current  *Context
	initErr  error
	inflight chan struct{}
	modules  []Module
}

// NewManager creates a fresh, uninitialized manager.
func NewManager() *Manager {
	return &Manager{}
}

// Initialize performs the one-time bootstrap. Idempotent: when already
// initialized it returns the existing Context, ignoring the new config.
func (m *Manager) Initialize(ctx context.Context, handle types.PlatformHandle, cfg *config.Configuration) (*Context, error) {
	m.mu.Lock()
	if m.current != nil {
		existing := m.current
		m.mu.Unlock()
		return existing, nil
	}
	if m.inflight != nil {
		// Another caller is bootstrapping: await its result
		done := m.inflight
		m.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.current != nil {
			return m.current, nil
		}
		return nil, m.initErr
	}
	done := make(chan struct{})
	m.inflight = done
	m.mu.Unlock()

	built, err := bootstrap(handle, cfg)

	m.mu.Lock()
	m.current = built
	m.initErr = err
	m.inflight = nil
	close(done)
	m.mu.Unlock()

	return built, err
}

// Current returns the ready context, failing when called before the first
// successful Initialize.
func (m *Manager) Current() (*Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, errors.NewError(errors.ErrCodeNotInitialized,
			"context requested before initialization").
			WithComponent("appcontext").WithOperation("current")
	}
	return m.current, nil
}

// Initialized reports whether a context is live.
func (m *Manager) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// AddModule registers and initializes an extension module against the ready
// context. A failing module visibly fails its caller.
func (m *Manager) AddModule(module Module, cfg map[string]interface{}) error {
	current, err := m.Current()
	if err != nil {
		return err
	}

	if err := module.Initialize(current, cfg); err != nil {
		current.logger.Error("module initialization failed", map[string]interface{}{
			"module": module.Name(),
			"error":  err.Error(),
		})
		return errors.Wrap(errors.ErrCodeModuleInitFailed,
			fmt.Sprintf("module %q failed to initialize", module.Name()), err).
			WithComponent("appcontext").WithOperation("add_module")
	}

	m.mu.Lock()
	m.modules = append(m.modules, module)
	m.mu.Unlock()

	current.logger.Info("module initialized", map[string]interface{}{
		"module": module.Name(),
	})
	return nil
}

// Reset tears down modules and clears the singleton state so a subsequent
// Initialize starts fresh. Individual cleanup failures are logged and
// suppressed so one misbehaving module cannot block teardown of the rest.
func (m *Manager) Reset() {
	m.mu.Lock()
	current := m.current
	modules := m.modules
	m.current = nil
	m.initErr = nil
	m.modules = nil
	m.mu.Unlock()

	if current == nil {
		return
	}

	for _, module := range modules {
		cleaner, ok := module.(CleanupModule)
		if !ok {
			continue
		}
		if err := cleaner.Cleanup(); err != nil {
			current.logger.Warn("module cleanup failed", map[string]interface{}{
				"module": module.Name(),
				"error":  err.Error(),
			})
		}
	}

	current.sites.RemoveAll()
	if err := current.clients.Close(); err != nil {
		current.logger.Warn("failed to close primary cache behaviors", map[string]interface{}{
			"error": err.Error(),
		})
	}
	current.logger.Info("context reset")
}

// bootstrap wires the context: environment detection, correlation id,
// logger first (the other utilities depend on it for diagnostics), then
// transport, tracker, primary client set, and the site registry.
func bootstrap(handle types.PlatformHandle, cfg *config.Configuration) (*Context, error) {
	if handle == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "platform handle is required").
			WithComponent("appcontext").WithOperation("initialize")
	}
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigValidation, "invalid configuration", err).
			WithComponent("appcontext").WithOperation("initialize")
	}

	environment := DetectEnvironment(handle.SiteURL())
	correlationID := newCorrelationID()

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigValidation, "invalid log level", err).
			WithComponent("appcontext").WithOperation("initialize")
	}
	logger := logging.New(logging.Config{
		Level:         level,
		Component:     cfg.ComponentName,
		CorrelationID: correlationID,
		EnableConsole: cfg.Logging.EnableConsole,
		HistorySize:   cfg.Logging.HistorySize,
	})

	transportClient := transport.New(transport.Config{
		PlatformBaseURL: handle.SiteURL(),
		Timeout:         cfg.HTTP.Timeout,
		Retries:         cfg.HTTP.Retries,
		EnableAuth:      cfg.HTTP.EnableAuth,
		CorrelationID:   correlationID,
		UserAgent:       "sitekit/" + cfg.ComponentName,
	}, logger.Child("transport"), nil, handle)

	tracker := performance.NewTracker(performance.Config{
		Enabled: cfg.Logging.EnablePerformance,
	})
	transportClient.SetMetrics(tracker)

	factory := &cache.Factory{Directory: cfg.Cache.Directory}
	strategy := cache.Resolve("", cfg.Cache.Strategy)
	clients, err := client.NewSet(handle.SiteURL(), transportClient, factory, strategy, cfg.Cache.TTL, logger.Child("client"))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, "failed to build primary clients", err).
			WithComponent("appcontext").WithOperation("initialize")
	}

	registry := sites.NewRegistry(transportClient, factory, cfg.Cache, logger.Child("sites"))

	logger.Info("context initialized", map[string]interface{}{
		"environment": environment.String(),
		"component":   cfg.ComponentName,
		"cache":       cfg.Cache.Strategy,
	})

	return &Context{
		platformHandle: handle,
		correlationID:  correlationID,
		environment:    environment,
		componentName:  cfg.ComponentName,
		clients:        clients,
		logger:         logger,
		transport:      transportClient,
		tracker:        tracker,
		sites:          registry,
		factory:        factory,
		config:         cfg,
	}, nil
}

// newCorrelationID builds a timestamp-plus-random id. Not cryptographically
// secure; purely for log correlation.
func newCorrelationID() string {
	return fmt.Sprintf("%s-%06x", time.Now().UTC().Format("20060102T150405"), rand.Intn(1<<24))
}

// Default process-wide manager, with a Reset escape hatch so parallel test
// suites can each get a clean instance via their own Manager.
var defaultManager = NewManager()

// Initialize bootstraps the default manager.
func Initialize(ctx context.Context, handle types.PlatformHandle, cfg *config.Configuration) (*Context, error) {
	return defaultManager.Initialize(ctx, handle, cfg)
}

// Current returns the default manager's context.
func Current() (*Context, error) {
	return defaultManager.Current()
}

// AddModule registers a module on the default manager.
func AddModule(module Module, cfg map[string]interface{}) error {
	return defaultManager.AddModule(module, cfg)
}

// Reset clears the default manager.
func Reset() {
	defaultManager.Reset()
}
