package cmd

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/apilens/apilens/internal/catalog"
	"github.com/apilens/apilens/internal/config"
	"github.com/apilens/apilens/internal/core"
	"github.com/apilens/apilens/internal/core/discovery"
	"github.com/apilens/apilens/internal/core/engine"
	"github.com/apilens/apilens/internal/core/store"
	"github.com/apilens/apilens/internal/metrics"
	"github.com/apilens/apilens/internal/observability"
)

// session holds the collaborators one command invocation needs.
type session struct {
	cfg       *config.Config
	store     *store.Store
	connector *engine.Connector
}

func openSession(ctx context.Context) (*session, error) {
	cfg, err := currentConfig(ctx)
	if err != nil {
		return nil, err
	}

	db, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	return &session{
		cfg:       cfg,
		store:     db,
		connector: buildConnector(cfg),
	}, nil
}

func (s *session) Close() error {
	if s == nil {
		return nil
	}
	return s.store.Close()
}

func buildConnector(cfg *config.Config) *engine.Connector {
	opts := engine.DefaultOptions()
	opts.Client = &http.Client{}
	opts.Logger = observability.CLILogger
	opts.DefaultTimeout = cfg.Connector.DefaultTimeout
	opts.DefaultRetryCount = cfg.Connector.DefaultRetryCount
	opts.BackoffBase = cfg.Connector.BackoffBase
	opts.BatchConcurrency = cfg.Connector.BatchConcurrency
	opts.MaxResponseSize = cfg.Connector.MaxResponseSize
	opts.UserAgent = cfg.Connector.UserAgent
	opts.LocalAccounting = cfg.Connector.LocalRateAccounting
	return engine.NewConnector(opts)
}

func buildDiscoveryEngine(cfg *config.Config, cache discovery.Cache) *discovery.Engine {
	eng := discovery.NewEngine(&http.Client{})
	eng.Logger = observability.CLILogger
	eng.ProbeTimeout = cfg.Discovery.ProbeTimeout
	eng.ProbeConcurrency = cfg.Discovery.ProbeConcurrency
	eng.UserAgent = cfg.Connector.UserAgent
	eng.CacheTTL = cfg.Discovery.CacheTTL
	if cfg.Discovery.UseCache && cache != nil {
		eng.Cache = cache
	}
	return eng
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	path := ""
	if cfg != nil {
		path = cfg.Catalog.Path
	}
	return catalog.Load(path)
}

// activate registers a saved connection in the in-process connector with
// freshly supplied credentials and restores its persisted rate limit state.
func (s *session) activate(ctx context.Context, ref string, opts credentialOptions) (*core.ConnectionConfig, error) {
	record, err := s.store.GetConnection(ctx, ref)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, &core.RequestError{Kind: core.ErrConnectionNotFound, ConnectionID: ref}
	}

	creds, err := buildCredentials(record.Connection.AuthMethod, opts)
	if err != nil {
		return nil, &core.ValidationError{Field: "credentials", Message: err.Error()}
	}
	if creds == nil && record.Connection.AuthMethod != core.AuthNone {
		observability.CLILogger.Warn("No credentials supplied for authenticated connection",
			zap.String("connection_id", record.Connection.ID),
			zap.String("auth_method", string(record.Connection.AuthMethod)),
		)
	}

	conn, err := s.connector.Restore(record.Connection, creds)
	if err != nil {
		return nil, err
	}

	state, err := s.store.GetRateLimitState(ctx, conn.ID)
	if err != nil {
		return nil, err
	}
	if state != nil {
		s.connector.Limiter.Seed(conn.ID, *state)
	}

	metrics.SetActiveConnections(len(s.connector.List()))
	return conn, nil
}

// persistUsage saves the connection's rate limit state and last-used time.
// Failures are logged; they never fail the command.
func (s *session) persistUsage(ctx context.Context, connectionID string) {
	if state, ok := s.connector.RateLimitState(connectionID); ok {
		if err := s.store.SaveRateLimitState(ctx, connectionID, &state); err != nil {
			observability.CLILogger.Warn("Failed to persist rate limit state",
				zap.String("connection_id", connectionID),
				zap.Error(err),
			)
		}
	}
	if err := s.store.TouchConnection(ctx, connectionID); err != nil {
		observability.CLILogger.Warn("Failed to record connection use",
			zap.String("connection_id", connectionID),
			zap.Error(err),
		)
	}
}

func describeConnection(conn *core.ConnectionConfig) string {
	if conn == nil {
		return ""
	}
	return fmt.Sprintf("%s (%s)", conn.Name, conn.ID)
}
