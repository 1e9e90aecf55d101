package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/expense-tracker/internal/config"
	"github.com/dvloznov/expense-tracker/internal/logger"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// target is a database the migrator can apply files to.
type target interface {
	EnsureTable(ctx context.Context) error
	Applied(ctx context.Context) ([]AppliedMigration, error)
	Apply(ctx context.Context, m Migration, appliedBy string) error
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var (
		kind          = flag.String("target", "postgres", "Migration target: postgres or bigquery")
		databaseURL   = flag.String("database-url", cfg.DatabaseURL, "PostgreSQL connection string (or set DATABASE_URL)")
		projectID     = flag.String("project", cfg.BQProjectID, "GCP project ID for -target bigquery")
		datasetID     = flag.String("dataset", cfg.BQDatasetID, "BigQuery dataset ID")
		appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
		migrationsDir = flag.String("migrations", "", "Path to migrations directory (default migrations/<target>)")
	)
	flag.Parse()

	log := logger.New(logger.WithLevel(cfg.LogLevel), logger.WithService("migrate"))
	ctx := context.Background()

	dir := *migrationsDir
	if dir == "" {
		dir = "migrations/" + *kind
	}

	var (
		t            target
		placeholders map[string]string
	)
	switch *kind {
	case "postgres":
		if *databaseURL == "" {
			log.Fatal().Msg("-database-url or DATABASE_URL is required")
		}
		conn, err := pgx.Connect(ctx, *databaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		t = &postgresTarget{conn: conn}
	case "bigquery":
		if *projectID == "" || *datasetID == "" {
			log.Fatal().Msg("-project and -dataset are required for the bigquery target")
		}
		client, err := bigquery.NewClient(ctx, *projectID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery client")
		}
		t = &bigQueryTarget{client: client, projectID: *projectID, datasetID: *datasetID}
		placeholders = map[string]string{
			"{{PROJECT_ID}}": *projectID,
			"{{DATASET_ID}}": *datasetID,
		}
	default:
		log.Fatal().Str("target", *kind).Msg("Unknown migration target")
	}
	defer t.Close()

	if err := run(ctx, t, dir, placeholders, *appliedBy, log); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
}

func run(ctx context.Context, t target, dir string, placeholders map[string]string, appliedBy string, log zerolog.Logger) error {
	if err := t.EnsureTable(ctx); err != nil {
		return fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	resolved, err := resolveDir(dir)
	if err != nil {
		return err
	}
	migrations, err := readMigrations(resolved, placeholders, log)
	if err != nil {
		return err
	}
	log.Info().Int("count", len(migrations)).Str("dir", resolved).Msg("Found migration files")

	applied, err := t.Applied(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("count", len(applied)).Msg("Found already applied migrations")

	todo := pending(migrations, applied, log)
	for _, m := range todo {
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("Applying migration")
		if err := t.Apply(ctx, m, appliedBy); err != nil {
			return fmt.Errorf("migration %04d_%s: %w", m.Version, m.Name, err)
		}
	}

	if len(todo) == 0 {
		log.Info().Msg("No new migrations to apply. Database is up to date.")
	} else {
		log.Info().Int("applied", len(todo)).Msg("Migrations applied")
	}
	return nil
}
