package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/committee-extract/internal/common"
	repo "github.com/joseph-ayodele/committee-extract/internal/repository"
)

// ConnectDB opens the record store named by cfg.DSN and applies migrations.
func ConnectDB(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (repo.RecordStore, error) {
	logger.Info("connecting to database", "postgres", repo.IsPostgres(cfg.DSN))
	store, err := repo.Open(ctx, repo.ConfigFrom(cfg), logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}
	logger.Info("successfully connected to database")
	return store, nil
}

// PingDB pings the database to ensure it's responsive
func PingDB(ctx context.Context, store repo.RecordStore, logger *slog.Logger, timeout time.Duration) error {
	if err := repo.HealthCheck(ctx, store, timeout, logger); err != nil {
		logger.Error("database ping failed", "error", err)
		return err
	}
	return nil
}

// CloseDB closes the database connections gracefully
func CloseDB(store repo.RecordStore, logger *slog.Logger) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		logger.Error("failed to close record store", "error", err)
	}
	logger.Info("database connections closed")
}
