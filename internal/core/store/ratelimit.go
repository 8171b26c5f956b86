package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apilens/apilens/internal/core"
)

// GetRateLimitState returns persisted rate limit state for a connection.
func (s *Store) GetRateLimitState(ctx context.Context, connectionID string) (*core.RateLimitState, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	connectionID = strings.TrimSpace(connectionID)
	if connectionID == "" {
		return nil, errors.New("connection id is required")
	}

	var (
		remaining int
		limit     int
		resetAt   int64
		observed  int
	)

	row := s.DB.QueryRowContext(ctx, `
		SELECT remaining, limit_value, reset_at, observed
		FROM rate_limit_state
		WHERE connection_id = ?
	`, connectionID)

	if err := row.Scan(&remaining, &limit, &resetAt, &observed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch rate limit state: %w", err)
	}

	return &core.RateLimitState{
		Remaining: remaining,
		Limit:     limit,
		ResetAt:   time.Unix(resetAt, 0).UTC(),
		Observed:  observed != 0,
	}, nil
}

// SaveRateLimitState persists rate limit state for a connection.
func (s *Store) SaveRateLimitState(ctx context.Context, connectionID string, state *core.RateLimitState) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	connectionID = strings.TrimSpace(connectionID)
	if connectionID == "" {
		return errors.New("connection id is required")
	}
	if state == nil {
		return errors.New("rate limit state is required")
	}

	observed := 0
	if state.Observed {
		observed = 1
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO rate_limit_state (connection_id, remaining, limit_value, reset_at, observed, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(connection_id) DO UPDATE SET
			remaining = excluded.remaining,
			limit_value = excluded.limit_value,
			reset_at = excluded.reset_at,
			observed = excluded.observed,
			updated_at = excluded.updated_at
	`, connectionID, state.Remaining, state.Limit, state.ResetAt.UTC().Unix(), observed, s.now().Unix())
	if err != nil {
		return fmt.Errorf("store rate limit state: %w", err)
	}

	return nil
}
