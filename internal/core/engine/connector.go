package engine

import (
	"context"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/logging"

	"github.com/apilens/apilens/internal/core"
)

// Options configures a Connector.
type Options struct {
	Client            *http.Client
	Logger            *logging.Logger
	DefaultTimeout    time.Duration
	DefaultRetryCount int
	BackoffBase       time.Duration
	BatchConcurrency  int
	MaxResponseSize   int64
	UserAgent         string
	// LocalAccounting is applied to the rate limiter; see RateLimiter.
	LocalAccounting bool
	Clock           func() time.Time
	Sleep           func(ctx context.Context, d time.Duration) error
}

// DefaultOptions mirrors the built-in configuration defaults.
func DefaultOptions() Options {
	return Options{
		DefaultTimeout:    DefaultTimeout,
		DefaultRetryCount: DefaultRetryCount,
		BackoffBase:       DefaultBackoffBase,
		BatchConcurrency:  DefaultBatchConcurrency,
		MaxResponseSize:   DefaultMaxResponseSize,
		LocalAccounting:   true,
	}
}

// Connector wires the registry, rate limiter, executor and batch scheduler.
// Each Connector is independent; nothing is shared between instances.
type Connector struct {
	Registry *Registry
	Limiter  *RateLimiter
	Executor *Executor
	Batch    *BatchScheduler
}

// NewConnector builds a Connector from options.
func NewConnector(opts Options) *Connector {
	limiter := &RateLimiter{Clock: opts.Clock, LocalAccounting: opts.LocalAccounting}

	registry := NewRegistry(limiter)
	registry.Clock = opts.Clock
	if opts.DefaultTimeout > 0 {
		registry.DefaultTimeout = opts.DefaultTimeout
	}
	if opts.DefaultRetryCount >= 0 {
		registry.DefaultRetryCount = opts.DefaultRetryCount
	}

	executor := &Executor{
		Client:          opts.Client,
		Limiter:         limiter,
		Logger:          opts.Logger,
		BackoffBase:     opts.BackoffBase,
		MaxResponseSize: opts.MaxResponseSize,
		UserAgent:       opts.UserAgent,
		Sleep:           opts.Sleep,
		Clock:           opts.Clock,
	}

	return &Connector{
		Registry: registry,
		Limiter:  limiter,
		Executor: executor,
		Batch:    &BatchScheduler{Executor: executor, Concurrency: opts.BatchConcurrency},
	}
}

// Create registers a new connection.
func (c *Connector) Create(def core.Definition, creds core.Credentials) (*core.ConnectionConfig, error) {
	return c.Registry.Create(def, creds)
}

// Restore re-registers a persisted connection under its id.
func (c *Connector) Restore(cfg core.ConnectionConfig, creds core.Credentials) (*core.ConnectionConfig, error) {
	return c.Registry.Restore(cfg, creds)
}

// Get returns a connection by id.
func (c *Connector) Get(id string) (*core.ConnectionConfig, bool) {
	return c.Registry.Get(id)
}

// List returns all connections.
func (c *Connector) List() []*core.ConnectionConfig {
	return c.Registry.List()
}

// Remove deletes a connection and its rate limit state.
func (c *Connector) Remove(id string) bool {
	return c.Registry.Remove(id)
}

// Execute sends one request through the connection with the given id.
func (c *Connector) Execute(ctx context.Context, connectionID string, req core.APIRequest) (*core.APIResponse, error) {
	conn, ok := c.Registry.Get(connectionID)
	if !ok {
		return nil, &core.RequestError{Kind: core.ErrConnectionNotFound, ConnectionID: connectionID}
	}
	return c.Executor.Execute(ctx, conn, req)
}

// ExecuteBatch runs requests through the connection with the given id.
func (c *Connector) ExecuteBatch(ctx context.Context, connectionID string, requests []core.APIRequest) ([]*core.APIResponse, error) {
	conn, ok := c.Registry.Get(connectionID)
	if !ok {
		return nil, &core.RequestError{Kind: core.ErrConnectionNotFound, ConnectionID: connectionID}
	}
	return c.Batch.ExecuteBatch(ctx, conn, requests), nil
}

// RateLimitState returns the tracked rate limit state for a connection.
func (c *Connector) RateLimitState(connectionID string) (core.RateLimitState, bool) {
	return c.Limiter.State(connectionID)
}
