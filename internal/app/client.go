// Package app wires the bug store, its middleware and the HTTP transport
// into one client.
package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"bugline/internal/domain"
	"bugline/internal/metric"
	"bugline/internal/middleware"
	"bugline/internal/store"
	"bugline/internal/store/bugs"
	"bugline/internal/store/entities"
	buglinesdk "bugline/sdk/go"
)

// Options configure NewClient. Transport overrides the SDK client built
// from BaseURL and Timeout.
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	CacheWindow time.Duration
	Transport   middleware.Transport
	Logger      *zap.Logger
	Metrics     *metric.Metrics
	Now         func() time.Time
}

// Client owns a store and the api middleware feeding it.
type Client struct {
	Store *store.Store[*entities.State]

	api         *middleware.API
	cacheWindow time.Duration
	now         func() time.Time
	unresolved  func(*entities.State) []domain.Bug

	mu          sync.Mutex
	toasts      []string
	diagnostics []error
}

func NewClient(ctx context.Context, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	window := opts.CacheWindow
	if window == 0 {
		window = bugs.DefaultCacheWindow
	}
	transport := opts.Transport
	if transport == nil {
		sdk := buglinesdk.New(opts.BaseURL)
		if opts.Timeout > 0 {
			sdk.Timeout = opts.Timeout
		}
		transport = sdk
	}

	c := &Client{
		cacheWindow: window,
		now:         now,
		unresolved:  entities.NewUnresolvedBugs(),
	}
	c.api = middleware.NewAPI(middleware.APIConfig{
		Context:   ctx,
		Transport: transport,
		Logger:    logger,
		Metrics:   opts.Metrics,
	})
	c.Store = store.New(entities.Reducer(now), entities.Initial(), store.Config{
		Middleware: []store.Middleware{
			middleware.Thunk{Logger: logger},
			middleware.Toast{Notify: c.addToast, Logger: logger},
			middleware.Logger{Logger: logger},
			middleware.Metrics{Metrics: opts.Metrics},
			c.api,
		},
		Logger: logger,
	})
	c.Store.OnError(func(_ store.Action, err error) {
		c.mu.Lock()
		c.diagnostics = append(c.diagnostics, err)
		c.mu.Unlock()
	})
	return c
}

func (c *Client) addToast(msg string) {
	c.mu.Lock()
	c.toasts = append(c.toasts, msg)
	c.mu.Unlock()
}

func (c *Client) LoadBugs() {
	c.Store.Dispatch(bugs.LoadBugs(bugs.LoadOptions{CacheWindow: c.cacheWindow, Now: c.now}))
}

func (c *Client) AddBug(b bugs.NewBug) {
	c.Store.Dispatch(bugs.AddBug(b))
}

func (c *Client) ResolveBug(id int64) {
	c.Store.Dispatch(bugs.ResolveBug(id))
}

func (c *Client) AssignUser(bugID, userID int64) {
	c.Store.Dispatch(bugs.AssignUser(bugID, userID))
}

func (c *Client) RemoveBug(id int64) {
	c.Store.Dispatch(bugs.RemoveBug(id))
}

// Wait blocks until every call dispatched so far has settled.
func (c *Client) Wait() {
	c.api.Wait()
}

func (c *Client) State() *entities.State {
	return c.Store.State()
}

// UnresolvedBugs is memoized per client.
func (c *Client) UnresolvedBugs() []domain.Bug {
	return c.unresolved(c.Store.State())
}

func (c *Client) ResolvedBugs() []domain.Bug {
	return entities.ResolvedBugs(c.Store.State())
}

// Toasts returns and clears the notifications shown so far.
func (c *Client) Toasts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.toasts
	c.toasts = nil
	return out
}

// Diagnostics returns and clears the errors reducers reported.
func (c *Client) Diagnostics() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.diagnostics
	c.diagnostics = nil
	return out
}
