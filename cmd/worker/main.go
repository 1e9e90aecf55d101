package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/expense-tracker/internal/bootstrap"
	"github.com/dvloznov/expense-tracker/internal/config"
	"github.com/dvloznov/expense-tracker/internal/infra/postgres"
	"github.com/dvloznov/expense-tracker/internal/logger"
	"github.com/dvloznov/expense-tracker/internal/staging"
	"github.com/jackc/pgx/v5/pgxpool"
)

// The worker owns staging expiry when the API runs with several replicas
// over a shared backend.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(
		logger.WithLevel(cfg.LogLevel),
		logger.WithService("expense-worker"),
		logger.WithJSON(cfg.LogJSON),
	)

	if cfg.StagingBackend == config.StagingMemory {
		log.Warn().Msg("In-memory staging lives inside the API process, nothing to sweep here")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	var pool *pgxpool.Pool
	if cfg.StagingBackend == config.StagingPostgres {
		pool, err = postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolConfig{MaxConns: 2})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
	}

	store, closeStore, err := bootstrap.OpenStaging(ctx, cfg, pool)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open staging store")
	}
	defer closeStore()

	purger, ok := store.(staging.Purger)
	if !ok {
		log.Warn().Str("backend", cfg.StagingBackend).Msg("Staging backend expires entries on its own, nothing to sweep")
		return
	}

	sweeper, err := staging.NewSweeper(purger, cfg.SweepSpec, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule staging sweeper")
	}
	if _, err := sweeper.Sweep(ctx); err != nil {
		log.Error().Err(err).Msg("Initial staging sweep failed")
	}
	sweeper.Start()

	log.Info().Str("backend", cfg.StagingBackend).Str("schedule", cfg.SweepSpec).Msg("Staging sweeper started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down staging sweeper...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := sweeper.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Sweeper did not stop cleanly")
	}

	log.Info().Msg("Staging sweeper stopped")
}
