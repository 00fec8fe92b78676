// Package sites manages connections to secondary sites beyond the primary
// one: validation, alias resolution, per-site cache and logger
// provisioning, and removal.
package sites

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sitekit/sitekit/internal/cache"
	"github.com/sitekit/sitekit/internal/client"
	"github.com/sitekit/sitekit/internal/config"
	"github.com/sitekit/sitekit/internal/transport"
	"github.com/sitekit/sitekit/pkg/errors"
	"github.com/sitekit/sitekit/pkg/logging"
)

// identityPath is the minimal read used as the fail-fast reachability and
// permission probe during connect.
const identityPath = "/_api/web?$select=Title,Id,ServerRelativeUrl"

// SiteContext is a connected secondary site's bundle of client handles and
// metadata. Metadata fields are fetched during the connect handshake and
// never mutated afterward.
type SiteContext struct {
	SiteURL string
	Alias   string

	Clients *client.Set

	WebTitle             string
	WebID                string
	WebServerRelativeURL string

	Logger *logging.Logger
}

// APIClient returns the site's uncached client handle.
func (s *SiteContext) APIClient() *client.APIClient { return s.Clients.Plain }

// APIClientCached returns the site's cached client handle.
func (s *SiteContext) APIClientCached() *client.APIClient { return s.Clients.Cached }

// APIClientPessimistic returns the site's pessimistic client handle.
func (s *SiteContext) APIClientPessimistic() *client.APIClient { return s.Clients.Pessimistic }

// AddOptions configures a site connection.
type AddOptions struct {
	// Alias is an optional secondary key, unique across all connected
	// sites. Aliases are case-insensitive.
	Alias string

	// CacheStrategy overrides the primary cache strategy for this site.
	// Empty inherits the primary configuration.
	CacheStrategy string

	// CacheTTL overrides the primary cache TTL when positive.
	CacheTTL time.Duration
}

// Registry manages secondary site connections. The presence check and slot
// reservation happen under the lock before the network probe, so two
// concurrent Add calls for the same URL cannot both succeed.
type Registry struct {
	mu             sync.Mutex
	sites          map[string]*SiteContext
	aliases        map[string]string
	pending        map[string]struct{}
	pendingAliases map[string]string

	transport    *transport.Client
	factory      *cache.Factory
	primaryCache config.CacheConfig
	logger       *logging.Logger
}

// NewRegistry creates an empty site registry sharing the primary context's
// transport (and thus its authentication material).
func NewRegistry(t *transport.Client, factory *cache.Factory, primaryCache config.CacheConfig, logger *logging.Logger) *Registry {
	return &Registry{
		sites:          make(map[string]*SiteContext),
		aliases:        make(map[string]string),
		pending:        make(map[string]struct{}),
		pendingAliases: make(map[string]string),
		transport:      t,
		factory:        factory,
		primaryCache:   primaryCache,
		logger:         logger,
	}
}

// NormalizeSiteURL canonicalizes a site URL: lowercased, trailing slash
// stripped.
func NormalizeSiteURL(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", errors.NewError(errors.ErrCodeConnectionFailed, "site URL must be absolute").
			WithDetail("url", rawURL)
	}
	return strings.ToLower(strings.TrimSuffix(trimmed, "/")), nil
}

// Add validates and registers a connection to a secondary site. A
// SiteContext is never registered for a site that failed the identity
// probe.
func (r *Registry) Add(ctx context.Context, rawURL string, opts *AddOptions) error {
	siteURL, err := NormalizeSiteURL(rawURL)
	if err != nil {
		return err
	}

	alias := ""
	if opts != nil {
		alias = strings.ToLower(strings.TrimSpace(opts.Alias))
	}

	// Check-then-reserve atomically, before the network probe. The alias is
	// reserved alongside the URL so two in-flight Adds for different sites
	// cannot both claim it.
	r.mu.Lock()
	if _, exists := r.sites[siteURL]; exists {
		r.mu.Unlock()
		return errors.NewError(errors.ErrCodeAlreadyConnected,
			fmt.Sprintf("site already connected: %s", siteURL)).
			WithComponent("sites").WithOperation("add")
	}
	if _, inFlight := r.pending[siteURL]; inFlight {
		r.mu.Unlock()
		return errors.NewError(errors.ErrCodeAlreadyConnected,
			fmt.Sprintf("connection already in progress: %s", siteURL)).
			WithComponent("sites").WithOperation("add")
	}
	if alias != "" {
		if bound, exists := r.aliases[alias]; exists && bound != siteURL {
			r.mu.Unlock()
			return errors.NewError(errors.ErrCodeAliasInUse,
				fmt.Sprintf("alias %q already bound to %s", alias, bound)).
				WithComponent("sites").WithOperation("add")
		}
		if bound, inFlight := r.pendingAliases[alias]; inFlight && bound != siteURL {
			r.mu.Unlock()
			return errors.NewError(errors.ErrCodeAliasInUse,
				fmt.Sprintf("alias %q already reserved by a connection in progress to %s", alias, bound)).
				WithComponent("sites").WithOperation("add")
		}
		r.pendingAliases[alias] = siteURL
	}
	r.pending[siteURL] = struct{}{}
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		delete(r.pending, siteURL)
		if alias != "" {
			delete(r.pendingAliases, alias)
		}
		r.mu.Unlock()
	}

	identity, err := r.probe(ctx, siteURL)
	if err != nil {
		release()
		return err
	}

	strategy, ttl := r.resolveCache(opts)
	siteLogger := r.logger.Child("sites:" + siteHint(siteURL, alias))
	clients, err := client.NewSet(siteURL, r.transport, r.factory, strategy, ttl, siteLogger)
	if err != nil {
		release()
		return errors.Wrap(errors.ErrCodeConnectionFailed, "failed to build site clients", err).
			WithComponent("sites").WithOperation("add")
	}

	site := &SiteContext{
		SiteURL:              siteURL,
		Alias:                alias,
		Clients:              clients,
		WebTitle:             identity.Title,
		WebID:                identity.ID,
		WebServerRelativeURL: identity.ServerRelativeURL,
		Logger:               siteLogger,
	}

	r.mu.Lock()
	delete(r.pending, siteURL)
	r.sites[siteURL] = site
	if alias != "" {
		delete(r.pendingAliases, alias)
		r.aliases[alias] = siteURL
	}
	r.mu.Unlock()

	r.logger.Info("site connected", map[string]interface{}{
		"site":  siteURL,
		"alias": alias,
		"title": identity.Title,
	})
	return nil
}

// Get resolves aliases first, then normalized URLs. Callers must Add before
// Get; there is no implicit connect-on-demand.
func (r *Registry) Get(urlOrAlias string) (*SiteContext, error) {
	site := r.resolve(urlOrAlias)
	if site == nil {
		return nil, errors.NewError(errors.ErrCodeNotConnected,
			fmt.Sprintf("site not connected: %s", urlOrAlias)).
			WithComponent("sites").WithOperation("get")
	}
	return site, nil
}

// Has performs the same resolution as Get but returns a boolean.
func (r *Registry) Has(urlOrAlias string) bool {
	return r.resolve(urlOrAlias) != nil
}

// List returns all registered site URLs (not aliases), sorted.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	urls := make([]string, 0, len(r.sites))
	for siteURL := range r.sites {
		urls = append(urls, siteURL)
	}
	sort.Strings(urls)
	return urls
}

// Remove disconnects a site, deleting both the URL-keyed and alias-keyed
// entries. Removing an unknown site logs a warning and returns normally so
// cleanup paths need no guard around it.
func (r *Registry) Remove(urlOrAlias string) {
	site := r.resolve(urlOrAlias)
	if site == nil {
		r.logger.Warn("remove of unknown site ignored", map[string]interface{}{
			"site": urlOrAlias,
		})
		return
	}

	r.mu.Lock()
	delete(r.sites, site.SiteURL)
	if site.Alias != "" {
		delete(r.aliases, site.Alias)
	}
	r.mu.Unlock()

	if err := site.Clients.Close(); err != nil {
		r.logger.Warn("failed to close site cache behaviors", map[string]interface{}{
			"site":  site.SiteURL,
			"error": err.Error(),
		})
	}
	r.logger.Info("site removed", map[string]interface{}{"site": site.SiteURL})
}

// RemoveAll disconnects every registered site.
func (r *Registry) RemoveAll() {
	for _, siteURL := range r.List() {
		r.Remove(siteURL)
	}
}

// Count returns the number of connected sites.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sites)
}

func (r *Registry) resolve(urlOrAlias string) *SiteContext {
	r.mu.Lock()
	defer r.mu.Unlock()

	if siteURL, ok := r.aliases[strings.ToLower(strings.TrimSpace(urlOrAlias))]; ok {
		return r.sites[siteURL]
	}
	if siteURL, err := NormalizeSiteURL(urlOrAlias); err == nil {
		return r.sites[siteURL]
	}
	return nil
}

type siteIdentity struct {
	Title             string `json:"Title"`
	ID                string `json:"Id"`
	ServerRelativeURL string `json:"ServerRelativeUrl"`
}

// probe performs the mandatory fail-fast reachability and permission check,
// classifying failures by response status.
func (r *Registry) probe(ctx context.Context, siteURL string) (*siteIdentity, error) {
	resp, err := r.transport.Get(ctx, siteURL+identityPath, nil)
	if err != nil {
		return nil, classifyProbeError(siteURL, err)
	}

	var identity siteIdentity
	if err := resp.Decode(&identity); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConnectionFailed, "site identity response malformed", err).
			WithComponent("sites").WithOperation("probe").
			WithDetail("site", siteURL)
	}
	return &identity, nil
}

func classifyProbeError(siteURL string, err error) error {
	var skErr *errors.SiteKitError
	if errors.As(err, &skErr) {
		switch {
		case skErr.HTTPStatus == 403:
			return errors.Wrap(errors.ErrCodeAccessDenied,
				fmt.Sprintf("access denied to site: %s", siteURL), err).
				WithComponent("sites").WithOperation("probe")
		case skErr.HTTPStatus == 404:
			return errors.Wrap(errors.ErrCodeSiteNotFound,
				fmt.Sprintf("site not found: %s", siteURL), err).
				WithComponent("sites").WithOperation("probe")
		case skErr.Code == errors.ErrCodeNetworkError || skErr.Code == errors.ErrCodeRequestTimeout:
			return errors.Wrap(errors.ErrCodeNetworkError,
				fmt.Sprintf("site unreachable: %s", siteURL), err).
				WithComponent("sites").WithOperation("probe")
		}
	}
	return errors.Wrap(errors.ErrCodeConnectionFailed,
		fmt.Sprintf("failed to connect to site %s: %v", siteURL, err), err).
		WithComponent("sites").WithOperation("probe")
}

func (r *Registry) resolveCache(opts *AddOptions) (cache.Strategy, time.Duration) {
	override := ""
	ttl := r.primaryCache.TTL
	if opts != nil {
		override = opts.CacheStrategy
		if opts.CacheTTL > 0 {
			ttl = opts.CacheTTL
		}
	}
	return cache.Resolve(override, r.primaryCache.Strategy), ttl
}

func siteHint(siteURL, alias string) string {
	if alias != "" {
		return alias
	}
	if idx := strings.LastIndexByte(siteURL, '/'); idx >= 0 && idx < len(siteURL)-1 {
		return siteURL[idx+1:]
	}
	return siteURL
}
