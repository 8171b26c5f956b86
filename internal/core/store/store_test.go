package store

import (
	"context"
	"testing"

	"github.com/apilens/apilens/internal/config"
	"github.com/stretchr/testify/require"
)

func TestBuildLibsqlDSN(t *testing.T) {
	t.Run("URLUsesRawValue", func(t *testing.T) {
		cfg := config.StoreConfig{
			URL:       "libsql://example.turso.io",
			AuthToken: "token123",
		}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "libsql://example.turso.io?authToken=token123", dsn)
	})

	t.Run("URLWithExistingQuery", func(t *testing.T) {
		cfg := config.StoreConfig{
			URL:       "libsql://example.turso.io?foo=bar",
			AuthToken: "token123",
		}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "libsql://example.turso.io?authToken=token123&foo=bar", dsn)
	})

	t.Run("PathWithFilePrefix", func(t *testing.T) {
		cfg := config.StoreConfig{Path: "file:./apilens.db"}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "file:./apilens.db", dsn)
	})

	t.Run("PathMissing", func(t *testing.T) {
		cfg := config.StoreConfig{}

		_, err := buildLibsqlDSN(cfg)
		require.Error(t, err)
	})

	t.Run("MemoryPath", func(t *testing.T) {
		cfg := config.StoreConfig{Path: ":memory:"}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, ":memory:", dsn)
	})
}

func TestIsLocalDSN(t *testing.T) {
	require.True(t, isLocalDSN("file:/tmp/apilens.db"))
	require.False(t, isLocalDSN(":memory:"))
	require.False(t, isLocalDSN("libsql://example.turso.io"))
}

func TestRateLimitQueryValidate(t *testing.T) {
	require.Error(t, RateLimitQuery{}.Validate())
	require.NoError(t, RateLimitQuery{All: true}.Validate())
	require.NoError(t, RateLimitQuery{ConnectionID: "abc"}.Validate())
	require.NoError(t, RateLimitQuery{Prefix: "ab"}.Validate())

	where, args, err := RateLimitQuery{Prefix: "ab"}.whereClause("connection_id")
	require.NoError(t, err)
	require.Equal(t, "WHERE connection_id LIKE ?", where)
	require.Equal(t, []any{"ab%"}, args)

	where, args, err = RateLimitQuery{All: true}.whereClause("connection_id")
	require.NoError(t, err)
	require.Empty(t, where)
	require.Nil(t, args)
}

func TestNilStore(t *testing.T) {
	var s *Store
	require.NoError(t, s.Close())
	require.Empty(t, s.Driver())
	require.Error(t, s.Migrate(context.Background()))
	_, err := s.LookupDiscovery(context.Background(), "https://example.com")
	require.Error(t, err)
}
