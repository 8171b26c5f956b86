package engine

import (
	"net/http"
	"sync"
	"time"

	"github.com/apilens/apilens/internal/core"
)

// RateLimiter enforces per-connection call budgets.
//
// State is created lazily on first use of a connection that declares a
// rate limit. Provider headers are authoritative when present; the local
// ceiling is used for providers that report nothing.
type RateLimiter struct {
	Clock func() time.Time
	// LocalAccounting decrements the local budget on every allowed call.
	// When false, only provider headers reduce the remaining count.
	LocalAccounting bool

	mu     sync.Mutex
	states map[string]*core.RateLimitState
}

// NewRateLimiter returns a limiter with local accounting enabled.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{LocalAccounting: true}
}

// CheckAndConsume reports whether a request may be sent now. When refused,
// the returned duration is the time until the window resets. A refused
// check never mutates state.
func (r *RateLimiter) CheckAndConsume(conn *core.ConnectionConfig) (bool, time.Duration) {
	if r == nil || conn == nil || conn.RateLimit == nil || conn.RateLimit.Requests <= 0 {
		return true, 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	state := r.stateFor(conn, now)

	if !now.Before(state.ResetAt) {
		resetWindow(state, conn.RateLimit, now)
	}

	if state.Remaining <= 0 {
		return false, state.ResetAt.Sub(now)
	}

	if r.LocalAccounting {
		state.Remaining--
	}
	return true, 0
}

// RecordResponse refreshes state from provider rate limit headers. It is
// called for every completed HTTP exchange.
func (r *RateLimiter) RecordResponse(conn *core.ConnectionConfig, header http.Header) {
	if r == nil || conn == nil {
		return
	}

	parsed := core.ParseRateLimitHeaders(header)
	if !parsed.Present() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	state, ok := r.states[conn.ID]
	if !ok {
		if conn.RateLimit != nil && conn.RateLimit.Requests > 0 {
			state = r.stateFor(conn, now)
		} else {
			state = &core.RateLimitState{Observed: true, ResetAt: now}
			r.ensureStates()
			r.states[conn.ID] = state
		}
	}

	if parsed.Limit != nil {
		state.Limit = *parsed.Limit
	}
	if parsed.Remaining != nil {
		state.Remaining = *parsed.Remaining
	}
	if parsed.ResetAt != nil {
		state.ResetAt = *parsed.ResetAt
	}
}

// State returns a snapshot of the state for a connection.
func (r *RateLimiter) State(connectionID string) (core.RateLimitState, bool) {
	if r == nil {
		return core.RateLimitState{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.states[connectionID]
	if !ok {
		return core.RateLimitState{}, false
	}
	return *state, true
}

// Seed installs previously persisted state for a connection, replacing any
// tracked state. An already expired window is reset on the next check.
func (r *RateLimiter) Seed(connectionID string, state core.RateLimitState) {
	if r == nil || connectionID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ensureStates()
	seeded := state
	r.states[connectionID] = &seeded
}

// Forget drops state for a removed connection.
func (r *RateLimiter) Forget(connectionID string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, connectionID)
}

// Len returns the number of tracked connections.
func (r *RateLimiter) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func (r *RateLimiter) stateFor(conn *core.ConnectionConfig, now time.Time) *core.RateLimitState {
	r.ensureStates()
	state, ok := r.states[conn.ID]
	if !ok {
		state = &core.RateLimitState{}
		resetWindow(state, conn.RateLimit, now)
		r.states[conn.ID] = state
	}
	return state
}

func (r *RateLimiter) ensureStates() {
	if r.states == nil {
		r.states = make(map[string]*core.RateLimitState)
	}
}

func resetWindow(state *core.RateLimitState, spec *core.RateLimitSpec, now time.Time) {
	state.Limit = spec.Requests
	state.Remaining = spec.Requests
	state.ResetAt = now.Add(spec.Period())
	state.Observed = false
}

func (r *RateLimiter) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}
