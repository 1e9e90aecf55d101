package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/expense-tracker/internal/api/handlers"
	"github.com/dvloznov/expense-tracker/internal/archive"
	"github.com/dvloznov/expense-tracker/internal/bootstrap"
	"github.com/dvloznov/expense-tracker/internal/commit"
	"github.com/dvloznov/expense-tracker/internal/config"
	infraBQ "github.com/dvloznov/expense-tracker/internal/infra/bigquery"
	"github.com/dvloznov/expense-tracker/internal/infra/postgres"
	"github.com/dvloznov/expense-tracker/internal/jobs"
	"github.com/dvloznov/expense-tracker/internal/jobs/inmemory"
	"github.com/dvloznov/expense-tracker/internal/logger"
	"github.com/dvloznov/expense-tracker/internal/pipeline"
	"github.com/dvloznov/expense-tracker/internal/staging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Parse command-line flags
	var (
		port   = flag.String("port", cfg.Port, "HTTP server port (or set PORT)")
		bucket = flag.String("bucket", cfg.GCSBucket, "GCS bucket for archived statements (or set GCS_BUCKET)")
	)
	flag.Parse()

	// Initialize logger
	log := logger.New(
		logger.WithLevel(cfg.LogLevel),
		logger.WithJSON(cfg.LogJSON),
		logger.WithService("expense-api"),
	)

	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}

	ctx := context.Background()

	// Relational store
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolConfig{MaxConns: cfg.DBMaxConns})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	repo := postgres.NewRepository(pool)

	// Staging store and TTL sweeper
	store, closeStore, err := bootstrap.OpenStaging(ctx, cfg, pool)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open staging store")
	}
	defer closeStore()

	if purger, ok := store.(staging.Purger); ok {
		sweeper, err := staging.NewSweeper(purger, cfg.SweepSpec, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule staging sweeper")
		}
		sweeper.Start()
		defer sweeper.Stop(context.Background())
	}

	// Commit engine with optional archive and analytics hooks
	opts := []commit.Option{commit.WithConcurrency(cfg.CommitConcurrency)}
	if *bucket != "" {
		archiver, err := archive.NewGCSArchiver(ctx, *bucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create statement archiver")
		}
		defer archiver.Close()
		opts = append(opts, commit.WithArchiver(archiver))
	} else {
		log.Warn().Msg("No GCS bucket configured - statement files are kept in the database only")
	}
	if cfg.MirrorEnabled() {
		mirror, err := infraBQ.NewMirror(ctx, cfg.BQProjectID, cfg.BQDatasetID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery mirror")
		}
		defer mirror.Close()
		opts = append(opts, commit.WithMirror(mirror))
	}
	engine := commit.NewEngine(store, repo, opts...)

	// Parse pipeline
	generator, err := pipeline.NewGeminiCompletionGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create completion generator")
	}
	parsePipeline := pipeline.NewStatementParsePipeline(pipeline.NewPDFTextExtractor(), generator, store)

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.QueueBuffer, cfg.QueueWorkers, jobStore)

	// Start workers in background to process jobs
	workerCtx, cancelWorker := context.WithCancel(logger.WithContext(ctx, log))
	defer cancelWorker()

	jobHandler := jobs.ParseStatementHandler(parsePipeline, repo)
	if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}
	log.Info().Int("workers", cfg.QueueWorkers).Msg("Started statement parse workers")

	router := handlers.NewRouter(handlers.Handlers{
		Tasks:      handlers.NewTasksHandler(store, jobQueue, jobStore, engine, repo, log),
		Statements: handlers.NewStatementsHandler(repo, engine, log),
		Expenses:   handlers.NewExpensesHandler(repo, log),
		Categories: handlers.NewCategoriesHandler(repo, log),
		Jobs:       handlers.NewJobsHandler(jobStore, log),
	}, log)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", *port).Str("staging", cfg.StagingBackend).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
