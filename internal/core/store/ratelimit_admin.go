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

type RateLimitEntry struct {
	ConnectionID   string
	ConnectionName string
	State          core.RateLimitState
	UpdatedAt      time.Time
}

type RateLimitQuery struct {
	All          bool
	ConnectionID string
	Prefix       string
}

func (q RateLimitQuery) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.ConnectionID) != "" {
		return nil
	}
	if strings.TrimSpace(q.Prefix) != "" {
		return nil
	}
	return errors.New("must specify --all, --connection, or --prefix")
}

func (q RateLimitQuery) whereClause(column string) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	if q.All {
		return "", nil, nil
	}
	if id := strings.TrimSpace(q.ConnectionID); id != "" {
		return "WHERE " + column + " = ?", []any{id}, nil
	}
	prefix := strings.TrimSpace(q.Prefix)
	if prefix == "" {
		return "", nil, errors.New("prefix is required")
	}
	return "WHERE " + column + " LIKE ?", []any{prefix + "%"}, nil
}

func (s *Store) ListRateLimits(ctx context.Context, q RateLimitQuery) ([]RateLimitEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause("r.connection_id")
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT r.connection_id, c.name, r.remaining, r.limit_value, r.reset_at, r.observed, r.updated_at
		FROM rate_limit_state r
		LEFT JOIN connections c ON c.id = r.connection_id
		%s
		ORDER BY r.connection_id
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list rate limits: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []RateLimitEntry{}
	for rows.Next() {
		var (
			connectionID string
			name         sql.NullString
			remaining    int
			limit        int
			resetAt      int64
			observed     int
			updatedAt    int64
		)
		if err := rows.Scan(&connectionID, &name, &remaining, &limit, &resetAt, &observed, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan rate limits: %w", err)
		}

		entries = append(entries, RateLimitEntry{
			ConnectionID:   connectionID,
			ConnectionName: name.String,
			State: core.RateLimitState{
				Remaining: remaining,
				Limit:     limit,
				ResetAt:   time.Unix(resetAt, 0).UTC(),
				Observed:  observed != 0,
			},
			UpdatedAt: time.Unix(updatedAt, 0).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rate limits: %w", err)
	}

	return entries, nil
}

func (s *Store) CountRateLimits(ctx context.Context, q RateLimitQuery) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause("connection_id")
	if err != nil {
		return 0, err
	}

	row := s.DB.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM rate_limit_state
		%s
	`, where), args...)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count rate limits: %w", err)
	}
	return count, nil
}

func (s *Store) ResetRateLimits(ctx context.Context, q RateLimitQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause("connection_id")
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM rate_limit_state
		%s
	`, where), args...)
	if err != nil {
		return 0, fmt.Errorf("reset rate limits: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset rate limits: %w", err)
	}
	return affected, nil
}
