// Package store opens the configured scheduling.Store backend.
package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"interview-scheduler/internal/config"
	"interview-scheduler/internal/directory"
	"interview-scheduler/internal/scheduling"
	"interview-scheduler/internal/store/postgres"
	"interview-scheduler/internal/store/sqlite"
)

// Backend is a Store that can be migrated and closed.
type Backend interface {
	scheduling.Store
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the backend named by cfg.DBBackend. The returned
// Directory reads candidate and job names from the same database when it is
// Postgres; other backends get directory.Nop.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Backend, scheduling.Directory, error) {
	switch cfg.DBBackend {
	case config.BackendPostgres:
		s, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.StoreTxTimeout, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("store opened", zap.String("backend", cfg.DBBackend))
		return s, directory.NewPostgres(s.Pool()), nil
	case config.BackendSQLite:
		s, err := sqlite.Open(cfg.SQLitePath, cfg.StoreTxTimeout, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("store opened", zap.String("backend", cfg.DBBackend), zap.String("path", cfg.SQLitePath))
		return s, directory.Nop{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown DB_BACKEND %q", cfg.DBBackend)
	}
}
