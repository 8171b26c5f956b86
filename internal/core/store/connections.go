package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apilens/apilens/internal/core"
)

// ConnectionRecord is a saved connection definition. Credentials are not
// part of the record; they are supplied again when the connection is used.
type ConnectionRecord struct {
	Connection core.ConnectionConfig
	LastUsedAt *time.Time
}

const connectionColumns = `id, name, origin, base_url, auth_method, headers, timeout_ms, retry_count,
	rate_limit_requests, rate_limit_period, created_at, last_used_at`

// SaveConnection inserts or replaces a connection definition.
func (s *Store) SaveConnection(ctx context.Context, conn *core.ConnectionConfig) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if conn == nil || strings.TrimSpace(conn.ID) == "" {
		return errors.New("connection id is required")
	}

	var headers sql.NullString
	if len(conn.Headers) > 0 {
		payload, err := json.Marshal(conn.Headers)
		if err != nil {
			return fmt.Errorf("encode connection headers: %w", err)
		}
		headers = sql.NullString{String: string(payload), Valid: true}
	}

	var limitRequests, limitPeriod sql.NullInt64
	if conn.RateLimit != nil {
		limitRequests = sql.NullInt64{Int64: int64(conn.RateLimit.Requests), Valid: true}
		limitPeriod = sql.NullInt64{Int64: int64(conn.RateLimit.PeriodSeconds), Valid: true}
	}

	createdAt := conn.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO connections (id, name, origin, base_url, auth_method, headers, timeout_ms, retry_count,
			rate_limit_requests, rate_limit_period, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			origin = excluded.origin,
			base_url = excluded.base_url,
			auth_method = excluded.auth_method,
			headers = excluded.headers,
			timeout_ms = excluded.timeout_ms,
			retry_count = excluded.retry_count,
			rate_limit_requests = excluded.rate_limit_requests,
			rate_limit_period = excluded.rate_limit_period
	`, conn.ID, conn.Name, string(conn.Origin), conn.BaseURL, string(conn.AuthMethod), headers,
		conn.Timeout.Milliseconds(), conn.RetryCount, limitRequests, limitPeriod, createdAt.UTC().Unix())
	if err != nil {
		return fmt.Errorf("store connection: %w", err)
	}

	return nil
}

// GetConnection looks a connection up by id, then by name. When several
// connections share a name the most recently created wins. A miss returns
// nil, nil.
func (s *Store) GetConnection(ctx context.Context, ref string) (*ConnectionRecord, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("connection id or name is required")
	}

	row := s.DB.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM connections
		WHERE id = ? OR name = ?
		ORDER BY CASE WHEN id = ? THEN 0 ELSE 1 END, created_at DESC
		LIMIT 1
	`, connectionColumns), ref, ref, ref)

	record, err := scanConnection(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch connection: %w", err)
	}
	return record, nil
}

// ListConnections returns all saved connections ordered by creation time.
func (s *Store) ListConnections(ctx context.Context) ([]ConnectionRecord, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM connections
		ORDER BY created_at, id
	`, connectionColumns))
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	records := []ConnectionRecord{}
	for rows.Next() {
		record, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connections: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return records, nil
}

// DeleteConnection removes a connection and its persisted rate limit state.
func (s *Store) DeleteConnection(ctx context.Context, id string) (bool, error) {
	if s == nil || s.DB == nil {
		return false, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return false, errors.New("connection id is required")
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM connections WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete connection: %w", err)
	}
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM rate_limit_state WHERE connection_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete connection rate limit: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete connection: %w", err)
	}
	return affected > 0, nil
}

// TouchConnection records that a connection was just used.
func (s *Store) TouchConnection(ctx context.Context, id string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := s.DB.ExecContext(ctx, `UPDATE connections SET last_used_at = ? WHERE id = ?`, s.now().Unix(), id); err != nil {
		return fmt.Errorf("touch connection: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*ConnectionRecord, error) {
	var (
		id, name, origin, baseURL, authMethod string
		headers                               sql.NullString
		timeoutMillis                         int64
		retryCount                            int
		limitRequests, limitPeriod            sql.NullInt64
		createdAt                             int64
		lastUsedAt                            sql.NullInt64
	)

	if err := row.Scan(&id, &name, &origin, &baseURL, &authMethod, &headers, &timeoutMillis, &retryCount,
		&limitRequests, &limitPeriod, &createdAt, &lastUsedAt); err != nil {
		return nil, err
	}

	conn := core.ConnectionConfig{
		ID:         id,
		Name:       name,
		Origin:     core.Origin(origin),
		BaseURL:    baseURL,
		AuthMethod: core.AuthMethod(authMethod),
		Timeout:    time.Duration(timeoutMillis) * time.Millisecond,
		RetryCount: retryCount,
		CreatedAt:  time.Unix(createdAt, 0).UTC(),
	}

	if headers.Valid && headers.String != "" {
		if err := json.Unmarshal([]byte(headers.String), &conn.Headers); err != nil {
			return nil, fmt.Errorf("decode connection headers: %w", err)
		}
	}
	if limitRequests.Valid && limitPeriod.Valid {
		conn.RateLimit = &core.RateLimitSpec{
			Requests:      int(limitRequests.Int64),
			PeriodSeconds: int(limitPeriod.Int64),
		}
	}

	record := &ConnectionRecord{Connection: conn}
	if lastUsedAt.Valid {
		value := time.Unix(lastUsedAt.Int64, 0).UTC()
		record.LastUsedAt = &value
	}
	return record, nil
}
