// Package offline provides best-effort offline availability for static
// assets and navigations. It intercepts outgoing GET requests, prefers the
// live network response and falls back to a versioned response cache when
// the network is down. API calls are never intercepted, so the cache can't
// mask live business data.
package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/valecashback/valecashback/internal/logger"
	"github.com/valecashback/valecashback/internal/service/notify"
)

const (
	StateInstalling int32 = iota
	StateInstalled
	StateActivating
	StateActivated
)

const (
	defaultAPIPrefix = "/api/"
	defaultShellPath = "/"
)

// NotificationDisplay shows push notifications and opens deep links
type NotificationDisplay interface {
	Show(n notify.Notification)
	Open(link string)
}

type Config struct {
	// Name of the current cache generation, a build or version tag
	Generation string

	// Origin host the controller serves; responses from other hosts
	// are never cached
	Origin string

	// Path prefix that is never intercepted, defaults to /api/
	APIPrefix string

	// Path of the cached shell document served to offline navigations
	// Defaults to /
	ShellPath string

	// Paths fetched and cached during install
	PrecachePaths []string

	// Best-effort callback fired on sync events, may be nil
	SyncFunc func(ctx context.Context) error
}

// Controller intercepts requests as an http.RoundTripper wrapping the
// real network transport.
type Controller struct {
	generation string
	origin     string
	apiPrefix  string
	shellPath  string
	precache   []string

	state atomic.Int32

	upstream http.RoundTripper
	store    *GenerationStore
	display  NotificationDisplay
	syncFunc func(ctx context.Context) error
	logger   logger.Logger

	handlers map[EventKind]Handler
}

func NewController(cfg Config, upstream http.RoundTripper, store *GenerationStore, display NotificationDisplay, l logger.Logger) (*Controller, error) {
	if cfg.Generation == "" {
		return nil, fmt.Errorf("cache generation name must not be empty")
	}
	if cfg.Origin == "" {
		return nil, fmt.Errorf("origin host must not be empty")
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = defaultAPIPrefix
	}
	if cfg.ShellPath == "" {
		cfg.ShellPath = defaultShellPath
	}
	if upstream == nil {
		upstream = http.DefaultTransport
	}
	if store == nil {
		store = NewGenerationStore()
	}

	c := &Controller{
		generation: cfg.Generation,
		origin:     cfg.Origin,
		apiPrefix:  cfg.APIPrefix,
		shellPath:  cfg.ShellPath,
		precache:   cfg.PrecachePaths,
		upstream:   upstream,
		store:      store,
		display:    display,
		syncFunc:   cfg.SyncFunc,
		logger:     l,
	}

	// Lifecycle and auxiliary events go through one dispatch table
	c.handlers = map[EventKind]Handler{
		EventInstall:           c.handleInstall,
		EventActivate:          c.handleActivate,
		EventSync:              c.handleSync,
		EventPush:              c.handlePush,
		EventNotificationClick: c.handleNotificationClick,
	}

	return c, nil
}

// State returns the current lifecycle state
func (c *Controller) State() int32 {
	return c.state.Load()
}

// Dispatch routes an event to its handler
func (c *Controller) Dispatch(ctx context.Context, ev Event) error {
	handler, ok := c.handlers[ev.Kind]
	if !ok {
		return fmt.Errorf("no handler for event %q", ev.Kind)
	}

	return handler(ctx, ev)
}

// Install precaches the shell assets into the configured generation.
// Failures are logged per path and never block the application:
// a partial cache just means less offline coverage.
func (c *Controller) Install(ctx context.Context) error {
	return c.Dispatch(ctx, Event{Kind: EventInstall})
}

// Activate deletes every generation but the current one and starts
// intercepting requests without waiting for anything to reload.
func (c *Controller) Activate(ctx context.Context) error {
	return c.Dispatch(ctx, Event{Kind: EventActivate})
}

func (c *Controller) handleInstall(ctx context.Context, _ Event) error {
	c.state.Store(StateInstalling)

	for _, path := range c.precache {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+c.origin+path, nil)
		if err != nil {
			c.logger.Warn("Precache skipped, bad path", "path", path, "error", err)
			continue
		}

		resp, err := c.upstream.RoundTrip(req)
		if err != nil {
			c.logger.Warn("Precache fetch failed", "path", path, "error", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil || resp.StatusCode != http.StatusOK {
			c.logger.Warn("Precache response not cacheable", "path", path, "status", resp.StatusCode)
			continue
		}

		c.store.Put(c.generation, cacheKey(req), CachedResponse{
			Status:   resp.StatusCode,
			Header:   resp.Header.Clone(),
			Body:     body,
			StoredAt: time.Now(),
		})
	}

	c.state.Store(StateInstalled)
	c.logger.Info("Offline cache installed", "generation", c.generation, "entries", c.store.Len(c.generation))

	return nil
}

func (c *Controller) handleActivate(_ context.Context, _ Event) error {
	c.state.Store(StateActivating)

	for _, name := range c.store.Generations() {
		if name == c.generation {
			continue
		}

		c.store.Drop(name)
		c.logger.Info("Dropped stale cache generation", "generation", name)
	}

	// Claim control: from here on every request is evaluated
	c.state.Store(StateActivated)
	c.logger.Info("Offline cache activated", "generation", c.generation)

	return nil
}

// RoundTrip implements the interception policy: network-first for eligible
// GET requests, cache fallback when the network fails.
func (c *Controller) RoundTrip(req *http.Request) (*http.Response, error) {
	// Until activation the controller does not interfere
	if c.state.Load() != StateActivated {
		return c.upstream.RoundTrip(req)
	}

	// Only GET is intercepted
	if req.Method != http.MethodGet {
		return c.upstream.RoundTrip(req)
	}

	// API requests always go straight to the network, failures included:
	// stale business data must never come out of the cache
	if strings.HasPrefix(req.URL.Path, c.apiPrefix) {
		return c.upstream.RoundTrip(req)
	}

	decision := c.decideFetch(req)

	switch decision.Kind {
	case ServeNetwork:
		if decision.Store {
			c.storeCopy(decision.Key, decision.Live)
		}
		return decision.Live, nil

	case ServeCached, ServeFallback:
		return buildResponse(req, decision.Cached), nil

	default:
		return unavailableResponse(req), nil
	}
}

// decideFetch evaluates one eligible request and returns a decision,
// it never writes to the cache itself
func (c *Controller) decideFetch(req *http.Request) Decision {
	key := cacheKey(req)

	resp, err := c.upstream.RoundTrip(req)
	if err == nil {
		return Decision{
			Kind:  ServeNetwork,
			Live:  resp,
			Store: c.cacheable(req, resp),
			Key:   key,
		}
	}

	c.logger.Debug("Network fetch failed, trying cache", "key", key, "error", err)

	if cached, ok := c.store.Get(c.generation, key); ok {
		return Decision{Kind: ServeCached, Cached: cached}
	}

	if isNavigation(req) {
		if shell, ok := c.store.Get(c.generation, c.shellPath); ok {
			return Decision{Kind: ServeFallback, Cached: shell}
		}
	}

	return Decision{Kind: ServeUnavailable}
}

// cacheable reports whether a copy of the response may be stored:
// status 200 and same origin only
func (c *Controller) cacheable(req *http.Request, resp *http.Response) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}

	host := req.URL.Host
	return host == "" || host == c.origin
}

// storeCopy reads the live body, hands a replacement reader back to the
// response and writes the copy in the background. The caller gets the live
// response regardless of how the cache write goes; write failures are
// logged, never propagated.
func (c *Controller) storeCopy(key string, resp *http.Response) {
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		c.logger.Warn("Failed to read response for caching", "key", key, "error", err)
		resp.Body = io.NopCloser(bytes.NewReader(body))
		return
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))

	entry := CachedResponse{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: time.Now(),
	}

	go func() {
		c.store.Put(c.generation, key, entry)
		c.logger.Debug("Cached response", "generation", c.generation, "key", key)
	}()
}

func (c *Controller) handleSync(ctx context.Context, _ Event) error {
	if c.syncFunc == nil {
		return nil
	}

	// Fire and forget: sync is a best-effort reconcile signal
	go func() {
		if err := c.syncFunc(ctx); err != nil {
			c.logger.Warn("Background sync failed", "error", err)
		}
	}()

	return nil
}

func (c *Controller) handlePush(_ context.Context, ev Event) error {
	var n notify.Notification
	if err := json.Unmarshal(ev.Payload, &n); err != nil {
		return fmt.Errorf("can't decode push payload. Err: %w", err)
	}

	if c.display != nil {
		c.display.Show(n)
	}

	return nil
}

func (c *Controller) handleNotificationClick(_ context.Context, ev Event) error {
	if c.display != nil {
		c.display.Open(ev.Link)
	}

	return nil
}

// cacheKey addresses one cached response within a generation
func cacheKey(req *http.Request) string {
	return req.URL.Path
}

// isNavigation reports whether the request asks for a page rather than an asset
func isNavigation(req *http.Request) bool {
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

func buildResponse(req *http.Request, cached CachedResponse) *http.Response {
	header := cached.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set("X-Served-From-Cache", "true")

	return &http.Response{
		StatusCode:    cached.Status,
		Status:        http.StatusText(cached.Status),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(cached.Body)),
		ContentLength: int64(len(cached.Body)),
		Request:       req,
	}
}

// unavailableResponse is the explicit offline answer:
// never a blank page, never a propagated transport error
func unavailableResponse(req *http.Request) *http.Response {
	body := []byte("no connection")
	header := make(http.Header)
	header.Set("Content-Type", "text/plain; charset=utf-8")

	return &http.Response{
		StatusCode:    http.StatusServiceUnavailable,
		Status:        http.StatusText(http.StatusServiceUnavailable),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
