package cmd

import (
	"context"
	"fmt"

	"github.com/apilens/apilens/internal/config"
	"github.com/apilens/apilens/internal/core/store"
)

func openStore(ctx context.Context) (*store.Store, error) {
	cfg, err := currentConfig(ctx)
	if err != nil {
		return nil, err
	}

	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// currentConfig returns the configuration loaded by the root command,
// loading it on demand for commands invoked outside the normal path.
func currentConfig(ctx context.Context) (*config.Config, error) {
	if cfg := config.GetConfig(); cfg != nil {
		return cfg, nil
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
