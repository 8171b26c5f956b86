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

// LookupDiscovery returns a cached discovery result if it is still valid.
// Expired or missing entries return nil, nil.
func (s *Store) LookupDiscovery(ctx context.Context, baseURL string) (*core.AutoDiscoveredAPI, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	key := strings.TrimSpace(baseURL)
	if key == "" {
		return nil, errors.New("cache base url is required")
	}

	var payload string
	row := s.DB.QueryRowContext(ctx, `
		SELECT result_json
		FROM discovery_cache
		WHERE base_url = ? AND expires_at > ?
	`, key, s.now().Unix())

	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch cached discovery: %w", err)
	}

	var api core.AutoDiscoveredAPI
	if err := json.Unmarshal([]byte(payload), &api); err != nil {
		return nil, fmt.Errorf("decode cached discovery: %w", err)
	}
	return &api, nil
}

// SaveDiscovery stores a discovery result for ttl.
func (s *Store) SaveDiscovery(ctx context.Context, baseURL string, api *core.AutoDiscoveredAPI, ttl time.Duration) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	key := strings.TrimSpace(baseURL)
	if key == "" {
		return errors.New("cache base url is required")
	}
	if api == nil {
		return errors.New("discovery result is required")
	}
	if ttl <= 0 {
		return errors.New("cache ttl must be positive")
	}

	payload, err := json.Marshal(api)
	if err != nil {
		return fmt.Errorf("encode discovery result: %w", err)
	}

	now := s.now()
	expires := now.Add(ttl)

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO discovery_cache (base_url, result_json, discovered_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(base_url) DO UPDATE SET
			result_json = excluded.result_json,
			discovered_at = excluded.discovered_at,
			expires_at = excluded.expires_at
	`, key, string(payload), now.Unix(), expires.Unix())
	if err != nil {
		return fmt.Errorf("store discovery cache: %w", err)
	}

	return nil
}

// PurgeDiscovery removes expired cache entries and returns how many were
// dropped.
func (s *Store) PurgeDiscovery(ctx context.Context) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM discovery_cache WHERE expires_at <= ?`, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("purge discovery cache: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge discovery cache: %w", err)
	}
	return affected, nil
}
