//go:build cgo

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/apilens/apilens/internal/config"
	"github.com/apilens/apilens/internal/core"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func openTestStore(t *testing.T) (*Store, *testClock) {
	t.Helper()
	ctx := context.Background()

	store, err := Open(ctx, config.StoreConfig{
		Driver: "libsql",
		Path:   "file:" + t.TempDir() + "/apilens.db",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := &testClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	store.Clock = clock.Now

	require.NoError(t, store.Migrate(ctx))
	return store, clock
}

func TestMigrateIsIdempotent(t *testing.T) {
	store, _ := openTestStore(t)
	require.NoError(t, store.Migrate(context.Background()))
}

func TestConnectionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, clock := openTestStore(t)

	conn := &core.ConnectionConfig{
		ID:          "c-1",
		Name:        "github",
		Origin:      core.OriginPredefined,
		BaseURL:     "https://api.github.com",
		AuthMethod:  core.AuthBearer,
		Credentials: core.BearerCredentials{Token: "secret"},
		Headers:     map[string]string{"Accept": "application/vnd.github+json"},
		Timeout:     15 * time.Second,
		RetryCount:  2,
		RateLimit:   &core.RateLimitSpec{Requests: 60, PeriodSeconds: 3600},
		CreatedAt:   clock.now,
	}
	require.NoError(t, store.SaveConnection(ctx, conn))

	byID, err := store.GetConnection(ctx, "c-1")
	require.NoError(t, err)
	require.NotNil(t, byID)
	require.Equal(t, "github", byID.Connection.Name)
	require.Equal(t, core.AuthBearer, byID.Connection.AuthMethod)
	require.Equal(t, 15*time.Second, byID.Connection.Timeout)
	require.Equal(t, 2, byID.Connection.RetryCount)
	require.Equal(t, &core.RateLimitSpec{Requests: 60, PeriodSeconds: 3600}, byID.Connection.RateLimit)
	require.Equal(t, "application/vnd.github+json", byID.Connection.Headers["Accept"])
	require.True(t, clock.now.Equal(byID.Connection.CreatedAt))
	require.Nil(t, byID.Connection.Credentials)
	require.Nil(t, byID.LastUsedAt)

	byName, err := store.GetConnection(ctx, "github")
	require.NoError(t, err)
	require.NotNil(t, byName)
	require.Equal(t, "c-1", byName.Connection.ID)

	missing, err := store.GetConnection(ctx, "nope")
	require.NoError(t, err)
	require.Nil(t, missing)

	clock.now = clock.now.Add(time.Minute)
	require.NoError(t, store.TouchConnection(ctx, "c-1"))
	touched, err := store.GetConnection(ctx, "c-1")
	require.NoError(t, err)
	require.NotNil(t, touched.LastUsedAt)
	require.True(t, clock.now.Equal(*touched.LastUsedAt))
}

func TestConnectionsListAndDelete(t *testing.T) {
	ctx := context.Background()
	store, clock := openTestStore(t)

	for i, name := range []string{"first", "second"} {
		require.NoError(t, store.SaveConnection(ctx, &core.ConnectionConfig{
			ID:         name + "-id",
			Name:       name,
			Origin:     core.OriginCustom,
			BaseURL:    "https://" + name + ".example.com",
			AuthMethod: core.AuthNone,
			Timeout:    time.Second,
			CreatedAt:  clock.now.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, store.SaveRateLimitState(ctx, "first-id", &core.RateLimitState{Remaining: 1, Limit: 2, ResetAt: clock.now}))

	records, err := store.ListConnections(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "first", records[0].Connection.Name)
	require.Equal(t, "second", records[1].Connection.Name)

	removed, err := store.DeleteConnection(ctx, "first-id")
	require.NoError(t, err)
	require.True(t, removed)

	state, err := store.GetRateLimitState(ctx, "first-id")
	require.NoError(t, err)
	require.Nil(t, state)

	removed, err = store.DeleteConnection(ctx, "first-id")
	require.NoError(t, err)
	require.False(t, removed)
}

func TestDiscoveryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	store, clock := openTestStore(t)

	api := &core.AutoDiscoveredAPI{
		BaseURL:    "https://api.example.com",
		Name:       "example",
		Style:      core.StyleREST,
		Confidence: 0.95,
		Source:     "openapi:/openapi.json",
		Endpoints: []core.DiscoveredEndpoint{
			{Path: "/users", Method: "GET", Description: "List users"},
		},
	}
	require.NoError(t, store.SaveDiscovery(ctx, "https://api.example.com", api, time.Hour))

	cached, err := store.LookupDiscovery(ctx, "https://api.example.com")
	require.NoError(t, err)
	require.Equal(t, api, cached)

	clock.now = clock.now.Add(2 * time.Hour)
	expired, err := store.LookupDiscovery(ctx, "https://api.example.com")
	require.NoError(t, err)
	require.Nil(t, expired)

	purged, err := store.PurgeDiscovery(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), purged)

	require.Error(t, store.SaveDiscovery(ctx, "https://api.example.com", api, 0))
}

func TestRateLimitStateAdmin(t *testing.T) {
	ctx := context.Background()
	store, clock := openTestStore(t)

	reset := clock.now.Add(time.Minute)
	require.NoError(t, store.SaveRateLimitState(ctx, "abc-1", &core.RateLimitState{Remaining: 7, Limit: 10, ResetAt: reset}))
	require.NoError(t, store.SaveRateLimitState(ctx, "abc-2", &core.RateLimitState{Remaining: 0, Limit: 5, ResetAt: reset, Observed: true}))
	require.NoError(t, store.SaveRateLimitState(ctx, "xyz-1", &core.RateLimitState{Remaining: 3, Limit: 3, ResetAt: reset}))

	state, err := store.GetRateLimitState(ctx, "abc-2")
	require.NoError(t, err)
	require.Equal(t, &core.RateLimitState{Remaining: 0, Limit: 5, ResetAt: reset, Observed: true}, state)

	entries, err := store.ListRateLimits(ctx, RateLimitQuery{Prefix: "abc"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "abc-1", entries[0].ConnectionID)
	require.Equal(t, 7, entries[0].State.Remaining)

	count, err := store.CountRateLimits(ctx, RateLimitQuery{All: true})
	require.NoError(t, err)
	require.Equal(t, 3, count)

	removed, err := store.ResetRateLimits(ctx, RateLimitQuery{ConnectionID: "xyz-1"})
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	_, err = store.ListRateLimits(ctx, RateLimitQuery{})
	require.Error(t, err)
}
