package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/apilens/apilens/internal/core"
)

type funcExecutor func(ctx context.Context, conn *core.ConnectionConfig, req core.APIRequest) (*core.APIResponse, error)

func (f funcExecutor) Execute(ctx context.Context, conn *core.ConnectionConfig, req core.APIRequest) (*core.APIResponse, error) {
	return f(ctx, conn, req)
}

func TestExecuteBatchBoundsConcurrencyAndPreservesOrder(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			seen := maxInFlight.Load()
			if current <= seen || maxInFlight.CompareAndSwap(seen, current) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)

		if r.URL.Path == "/items/3" || r.URL.Path == "/items/9" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"path":%q}`, r.URL.Path)
	}))
	defer server.Close()

	executor, _ := newTestExecutor(t, server)
	scheduler := &BatchScheduler{Executor: executor, Concurrency: 5}

	requests := make([]core.APIRequest, 12)
	for i := range requests {
		requests[i] = core.APIRequest{Method: http.MethodGet, Endpoint: fmt.Sprintf("/items/%d", i)}
	}

	results := scheduler.ExecuteBatch(context.Background(), testConn(server.URL, 0), requests)
	require.Len(t, results, 12)
	require.LessOrEqual(t, maxInFlight.Load(), int32(5))

	for i, resp := range results {
		require.NotNil(t, resp, "result %d", i)
		if i == 3 || i == 9 {
			require.False(t, resp.Success, "result %d", i)
			require.Equal(t, http.StatusNotFound, resp.StatusCode)
			require.NotEmpty(t, resp.Error)
			continue
		}
		require.True(t, resp.Success, "result %d", i)
		body, ok := resp.Body.(map[string]any)
		require.True(t, ok)
		require.Equal(t, fmt.Sprintf("/items/%d", i), body["path"])
	}
}

func TestExecuteBatchWindowsSettleBeforeNextWindow(t *testing.T) {
	var started atomic.Int32
	var finishedFirstWindow atomic.Bool
	executor := funcExecutor(func(ctx context.Context, conn *core.ConnectionConfig, req core.APIRequest) (*core.APIResponse, error) {
		n := started.Add(1)
		if n > 2 {
			require.True(t, finishedFirstWindow.Load())
		}
		if n == 2 {
			time.Sleep(10 * time.Millisecond)
			finishedFirstWindow.Store(true)
		}
		return &core.APIResponse{Success: true, StatusCode: 200}, nil
	})

	scheduler := &BatchScheduler{Executor: executor, Concurrency: 2}
	results := scheduler.ExecuteBatch(context.Background(), &core.ConnectionConfig{ID: "c"}, make([]core.APIRequest, 4))
	require.Len(t, results, 4)
}

func TestExecuteBatchCapturesErrorsAndPanics(t *testing.T) {
	executor := funcExecutor(func(ctx context.Context, conn *core.ConnectionConfig, req core.APIRequest) (*core.APIResponse, error) {
		switch req.Endpoint {
		case "/panic":
			panic("boom")
		case "/error":
			return nil, &core.RequestError{Kind: core.ErrNetwork, Err: errors.New("connection reset")}
		case "/nil":
			return nil, nil
		default:
			return &core.APIResponse{Success: true, StatusCode: 200}, nil
		}
	})

	scheduler := &BatchScheduler{Executor: executor}
	results := scheduler.ExecuteBatch(context.Background(), &core.ConnectionConfig{ID: "c"}, []core.APIRequest{
		{Endpoint: "/ok"},
		{Endpoint: "/panic"},
		{Endpoint: "/error"},
		{Endpoint: "/nil"},
	})

	require.Len(t, results, 4)
	require.True(t, results[0].Success)
	require.False(t, results[1].Success)
	require.Contains(t, results[1].Error, "boom")
	require.False(t, results[2].Success)
	require.True(t, strings.Contains(results[2].Error, "connection reset"))
	require.False(t, results[3].Success)
}

func TestExecuteBatchCancelledContext(t *testing.T) {
	var calls atomic.Int32
	executor := funcExecutor(func(ctx context.Context, conn *core.ConnectionConfig, req core.APIRequest) (*core.APIResponse, error) {
		calls.Add(1)
		return &core.APIResponse{Success: true}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scheduler := &BatchScheduler{Executor: executor, Concurrency: 2}
	results := scheduler.ExecuteBatch(ctx, &core.ConnectionConfig{ID: "c"}, make([]core.APIRequest, 3))
	require.Len(t, results, 3)
	for _, resp := range results {
		require.False(t, resp.Success)
		require.Contains(t, resp.Error, "context canceled")
	}
	require.Zero(t, calls.Load())
}

func TestExecuteBatchEmpty(t *testing.T) {
	scheduler := &BatchScheduler{Executor: funcExecutor(nil)}
	require.Empty(t, scheduler.ExecuteBatch(context.Background(), &core.ConnectionConfig{}, nil))
}

func TestConnectorExecuteUnknownConnection(t *testing.T) {
	connector := NewConnector(DefaultOptions())

	_, err := connector.Execute(context.Background(), "missing", core.APIRequest{})
	require.ErrorIs(t, err, core.ErrConnectionNotFound)

	_, err = connector.ExecuteBatch(context.Background(), "missing", nil)
	require.ErrorIs(t, err, core.ErrConnectionNotFound)
}

func TestConnectorEndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	opts := DefaultOptions()
	opts.Client = server.Client()
	connector := NewConnector(opts)

	conn, err := connector.Create(core.Definition{
		BaseURL:   server.URL,
		RateLimit: &core.RateLimitSpec{Requests: 10, PeriodSeconds: 60},
	}, nil)
	require.NoError(t, err)
	require.Len(t, connector.List(), 1)

	resp, err := connector.Execute(context.Background(), conn.ID, core.APIRequest{Endpoint: "/ping"})
	require.NoError(t, err)
	require.True(t, resp.Success)

	results, err := connector.ExecuteBatch(context.Background(), conn.ID, []core.APIRequest{{Endpoint: "/a"}, {Endpoint: "/b"}})
	require.NoError(t, err)
	require.Len(t, results, 2)

	state, ok := connector.RateLimitState(conn.ID)
	require.True(t, ok)
	require.Equal(t, 7, state.Remaining)

	require.True(t, connector.Remove(conn.ID))
	_, ok = connector.RateLimitState(conn.ID)
	require.False(t, ok)
	_, ok = connector.Get(conn.ID)
	require.False(t, ok)
}
