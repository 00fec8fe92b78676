// Package client binds a site base URL to the HTTP transport with an
// optional attached caching behavior. A Set carries the plain, cached,
// and pessimistic handles that callers pick between by convention; when
// no strategy is configured all three resolve to the same uncached
// handle so downstream code never branches on whether caching is enabled.
package client

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/sitekit/sitekit/internal/cache"
	"github.com/sitekit/sitekit/internal/transport"
	"github.com/sitekit/sitekit/pkg/logging"
)

// APIClient executes REST calls against one site.
type APIClient struct {
	siteURL   string
	transport *transport.Client
	behavior  cache.Behavior
	logger    *logging.Logger
}

// New creates an API client for the given site. behavior may be nil for an
// uncached client.
func New(siteURL string, t *transport.Client, behavior cache.Behavior, logger *logging.Logger) *APIClient {
	return &APIClient{
		siteURL:   strings.TrimSuffix(siteURL, "/"),
		transport: t,
		behavior:  behavior,
		logger:    logger,
	}
}

// SiteURL returns the base site URL this client is bound to.
func (c *APIClient) SiteURL() string {
	return c.siteURL
}

// Cached reports whether a caching behavior is attached.
func (c *APIClient) Cached() bool {
	return c.behavior != nil
}

// URL resolves a path relative to the client's site.
func (c *APIClient) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.siteURL + "/" + strings.TrimPrefix(path, "/")
}

// Get executes a GET against the site, consulting the attached cache first
// when one is configured. Cached responses are marked FromCache and carry
// the original status and body.
func (c *APIClient) Get(ctx context.Context, path string, opts *transport.Options) (*transport.Response, error) {
	fullURL := c.URL(path)

	var key string
	if c.behavior != nil {
		k, err := cache.NormalizeKey(fullURL)
		if err == nil {
			key = k
			if data, ok := c.behavior.Get(key); ok {
				var resp transport.Response
				if json.Unmarshal(data, &resp) == nil {
					resp.FromCache = true
					return &resp, nil
				}
				// Unreadable entry: drop it and fall through to the network
				c.behavior.Delete(key)
			}
		} else {
			c.logger.Debug("cache key normalization failed, bypassing cache", map[string]interface{}{
				"url":   fullURL,
				"error": err.Error(),
			})
		}
	}

	resp, err := c.transport.Get(ctx, fullURL, opts)
	if err != nil {
		return nil, err
	}

	if key != "" {
		if data, merr := json.Marshal(resp); merr == nil {
			c.behavior.Set(key, data)
		}
	}
	return resp, nil
}

// Post executes a POST against the site. Writes always bypass the cache.
func (c *APIClient) Post(ctx context.Context, path string, body interface{}, opts *transport.Options) (*transport.Response, error) {
	return c.transport.Post(ctx, c.URL(path), body, opts)
}

// CallFunction invokes a token-authenticated remote function endpoint.
func (c *APIClient) CallFunction(ctx context.Context, url, resource string, body interface{}) (*transport.Response, error) {
	return c.transport.CallFunction(ctx, url, resource, body)
}

// TriggerFlow invokes a webhook-style endpoint with an idempotency key.
func (c *APIClient) TriggerFlow(ctx context.Context, url string, payload interface{}, idempotencyKey string) (*transport.Response, error) {
	return c.transport.TriggerFlow(ctx, url, payload, idempotencyKey)
}

// ClearCache sweeps the attached caching behavior, if any.
func (c *APIClient) ClearCache() error {
	if c.behavior == nil {
		return nil
	}
	return c.behavior.Clear()
}

// Set is the three-tier client handle bundle. Plain is always uncached;
// Cached carries the configured strategy; Pessimistic carries a separate
// behavior instance reserved by convention for rarely-changing reference
// data, so an invalidation bug in hot-path data cannot contaminate it.
type Set struct {
	Plain       *APIClient
	Cached      *APIClient
	Pessimistic *APIClient

	behaviors []cache.Behavior
}

// NewSet builds the three-tier handles for a site. With StrategyNone all
// three fields hold the same uncached client.
func NewSet(siteURL string, t *transport.Client, factory *cache.Factory, strategy cache.Strategy, ttl time.Duration, logger *logging.Logger) (*Set, error) {
	plain := New(siteURL, t, nil, logger)

	if strategy == cache.StrategyNone {
		return &Set{Plain: plain, Cached: plain, Pessimistic: plain}, nil
	}

	cachedBehavior, err := factory.NewBehavior(strategy, ttl)
	if err != nil {
		return nil, err
	}
	pessimisticBehavior, err := factory.NewBehavior(cache.StrategyPessimistic, ttl)
	if err != nil {
		_ = cachedBehavior.Close()
		return nil, err
	}

	return &Set{
		Plain:       plain,
		Cached:      New(siteURL, t, cachedBehavior, logger),
		Pessimistic: New(siteURL, t, pessimisticBehavior, logger),
		behaviors:   []cache.Behavior{cachedBehavior, pessimisticBehavior},
	}, nil
}

// Close releases the cache behaviors owned by the set.
func (s *Set) Close() error {
	var firstErr error
	for _, b := range s.behaviors {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.behaviors = nil
	return firstErr
}
