package engine

import (
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/apilens/apilens/internal/core"
)

const (
	// DefaultTimeout applies when a definition sets no timeout.
	DefaultTimeout = 30 * time.Second
	// DefaultRetryCount applies when a definition sets no retry count.
	DefaultRetryCount = 3
)

// StateForgetter drops per-connection state when a connection is removed.
type StateForgetter interface {
	Forget(connectionID string)
}

// Registry owns the set of registered connections.
type Registry struct {
	Limiter           StateForgetter
	DefaultTimeout    time.Duration
	DefaultRetryCount int
	Clock             func() time.Time
	NewID             func() string

	mu          sync.RWMutex
	connections map[string]*core.ConnectionConfig
}

// NewRegistry creates an empty registry. Removing a connection also drops
// its rate limit state from limiter.
func NewRegistry(limiter StateForgetter) *Registry {
	return &Registry{
		Limiter:           limiter,
		DefaultTimeout:    DefaultTimeout,
		DefaultRetryCount: DefaultRetryCount,
		connections:       make(map[string]*core.ConnectionConfig),
	}
}

// Create validates a definition and registers it under a fresh id. It does
// not contact the network.
func (r *Registry) Create(def core.Definition, creds core.Credentials) (*core.ConnectionConfig, error) {
	conn, err := r.build(def, creds)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensure()

	id := r.newID()
	for {
		if _, exists := r.connections[id]; !exists {
			break
		}
		id = r.newID()
	}
	conn.ID = id
	r.connections[id] = conn

	return conn.Clone(), nil
}

// Restore registers a previously created connection under its existing id.
func (r *Registry) Restore(cfg core.ConnectionConfig, creds core.Credentials) (*core.ConnectionConfig, error) {
	id := strings.TrimSpace(cfg.ID)
	if id == "" {
		return nil, &core.ValidationError{Field: "id", Message: "is required"}
	}

	retry := cfg.RetryCount
	conn, err := r.build(core.Definition{
		Name:       cfg.Name,
		Origin:     cfg.Origin,
		BaseURL:    cfg.BaseURL,
		AuthMethod: cfg.AuthMethod,
		Headers:    cfg.Headers,
		Timeout:    cfg.Timeout,
		RetryCount: &retry,
		RateLimit:  cfg.RateLimit,
	}, creds)
	if err != nil {
		return nil, err
	}
	conn.ID = id
	if !cfg.CreatedAt.IsZero() {
		conn.CreatedAt = cfg.CreatedAt
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensure()

	if _, exists := r.connections[id]; exists {
		return nil, &core.ValidationError{Field: "id", Message: "already registered: " + id}
	}
	r.connections[id] = conn

	return conn.Clone(), nil
}

// Get returns a copy of the connection with the given id.
func (r *Registry) Get(id string) (*core.ConnectionConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.connections[id]
	if !ok {
		return nil, false
	}
	return conn.Clone(), true
}

// List returns all connections ordered by creation time, then id.
func (r *Registry) List() []*core.ConnectionConfig {
	r.mu.RLock()
	list := make([]*core.ConnectionConfig, 0, len(r.connections))
	for _, conn := range r.connections {
		list = append(list, conn.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

// Remove deletes a connection and its rate limit state.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	_, ok := r.connections[id]
	delete(r.connections, id)
	r.mu.Unlock()

	if ok && r.Limiter != nil {
		r.Limiter.Forget(id)
	}
	return ok
}

func (r *Registry) build(def core.Definition, creds core.Credentials) (*core.ConnectionConfig, error) {
	baseURL := strings.TrimSpace(def.BaseURL)
	if baseURL == "" {
		return nil, &core.ValidationError{Field: "base_url", Message: "is required"}
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, &core.ValidationError{Field: "base_url", Message: err.Error()}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, &core.ValidationError{Field: "base_url", Message: "must use http or https scheme"}
	}
	if parsed.Host == "" {
		return nil, &core.ValidationError{Field: "base_url", Message: "host is required"}
	}

	method := def.AuthMethod
	if method == "" {
		method = core.AuthNone
	}
	if _, ok := core.ParseAuthMethod(string(method)); !ok {
		return nil, &core.ValidationError{Field: "auth_method", Message: "unsupported: " + string(method)}
	}
	if !core.CredentialsMatch(method, creds) {
		return nil, &core.ValidationError{Field: "credentials", Message: "do not match auth method " + string(method)}
	}

	if def.RateLimit != nil {
		if def.RateLimit.Requests <= 0 || def.RateLimit.PeriodSeconds <= 0 {
			return nil, &core.ValidationError{Field: "rate_limit", Message: "requests and period must be positive"}
		}
	}

	timeout := def.Timeout
	if timeout <= 0 {
		timeout = r.DefaultTimeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
	}

	retries := r.DefaultRetryCount
	if def.RetryCount != nil {
		retries = *def.RetryCount
	}
	if retries < 0 {
		return nil, &core.ValidationError{Field: "retry_count", Message: "must not be negative"}
	}

	origin := def.Origin
	if origin == "" {
		origin = core.OriginCustom
	}

	name := strings.TrimSpace(def.Name)
	if name == "" {
		name = parsed.Hostname()
	}

	conn := &core.ConnectionConfig{
		Name:        name,
		Origin:      origin,
		BaseURL:     strings.TrimRight(baseURL, "/"),
		AuthMethod:  method,
		Credentials: creds,
		Timeout:     timeout,
		RetryCount:  retries,
		CreatedAt:   r.now(),
	}
	if len(def.Headers) > 0 {
		conn.Headers = make(map[string]string, len(def.Headers))
		for key, value := range def.Headers {
			conn.Headers[key] = value
		}
	}
	if def.RateLimit != nil {
		limit := *def.RateLimit
		conn.RateLimit = &limit
	}

	return conn, nil
}

func (r *Registry) ensure() {
	if r.connections == nil {
		r.connections = make(map[string]*core.ConnectionConfig)
	}
}

func (r *Registry) newID() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return uuid.New().String()
}

func (r *Registry) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}
