package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dvloznov/expense-tracker/internal/archive"
	"github.com/dvloznov/expense-tracker/internal/bootstrap"
	"github.com/dvloznov/expense-tracker/internal/commit"
	"github.com/dvloznov/expense-tracker/internal/config"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/export"
	infraBQ "github.com/dvloznov/expense-tracker/internal/infra/bigquery"
	"github.com/dvloznov/expense-tracker/internal/infra/postgres"
	"github.com/dvloznov/expense-tracker/internal/logger"
	"github.com/dvloznov/expense-tracker/internal/pipeline"
	"github.com/dvloznov/expense-tracker/internal/staging/inmemory"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(logger.WithLevel(cfg.LogLevel), logger.WithService("expense-cli"))

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "parse":
		runParse(cfg, log)
	case "parse-text":
		runParseText(log)
	case "ingest":
		runIngest(cfg, log)
	case "upload":
		runUpload(cfg, log)
	case "export":
		runExport(cfg, log)
	case "monthly":
		runMonthly(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Expense Tracker CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  parse       Read a statement PDF with the model and print the parsed result")
	fmt.Println("  parse-text  Parse a saved model completion without calling the model")
	fmt.Println("  ingest      Parse a statement PDF, stage it and commit it for a user")
	fmt.Println("  upload      Archive a PDF to GCS under a statement id")
	fmt.Println("  export      Write a committed statement to an .xlsx file")
	fmt.Println("  monthly     Print monthly totals from the BigQuery mirror")
	fmt.Println("  help        Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// parseCategories turns "Food,Transport" into ad-hoc categories numbered from 1.
func parseCategories(list string) []domain.Category {
	var cats []domain.Category
	for _, title := range strings.Split(list, ",") {
		title = strings.TrimSpace(title)
		if title == "" {
			continue
		}
		cats = append(cats, domain.Category{ID: int64(len(cats) + 1), Title: title})
	}
	return cats
}

func runParse(cfg config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to local statement PDF")
	categories := fs.String("categories", "", "Comma separated category titles offered to the model")
	raw := fs.Bool("raw", false, "Also print the raw completion")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		log.Fatal().Msg("Usage: cli parse -file PATH [-categories A,B]")
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read file")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	generator, err := pipeline.NewGeminiCompletionGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create completion generator")
	}

	store := inmemory.NewStore(cfg.StagingTTL)
	cats := parseCategories(*categories)
	state := &pipeline.PipelineState{
		UserID:     "cli",
		TaskID:     uuid.New().String(),
		FileName:   filepath.Base(*filePath),
		PDFBytes:   data,
		Categories: cats,
	}
	if err := pipeline.NewStatementParsePipeline(pipeline.NewPDFTextExtractor(), generator, store).Execute(ctx, state); err != nil {
		log.Fatal().Err(err).Msg("Parse failed")
	}

	if *raw {
		fmt.Println("=== Completion ===")
		fmt.Println(state.Completion)
	}
	parsed, _ := pipeline.ParseCompletion(state.Completion, cats)
	printStatement(os.Stdout, parsed, cats)
}

func runParseText(log zerolog.Logger) {
	fs := flag.NewFlagSet("parse-text", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to a saved completion (- for stdin)")
	categories := fs.String("categories", "", "Comma separated category titles")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		log.Fatal().Msg("Usage: cli parse-text -file PATH [-categories A,B]")
	}

	var (
		data []byte
		err  error
	)
	if *filePath == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(*filePath)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read completion")
	}

	cats := parseCategories(*categories)
	parsed, _ := pipeline.ParseCompletion(string(data), cats)
	printStatement(os.Stdout, parsed, cats)
}

func runIngest(cfg config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to local statement PDF")
	userID := fs.String("user", "", "Owner of the statement")
	fs.Parse(os.Args[2:])

	if *filePath == "" || *userID == "" {
		log.Fatal().Msg("Usage: cli ingest -file PATH -user ID")
	}
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read file")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolConfig{MaxConns: 2})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	repo := postgres.NewRepository(pool)

	store, closeStore, err := bootstrap.OpenStaging(ctx, cfg, pool)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open staging store")
	}
	defer closeStore()

	cats, err := repo.ListCategories(ctx, *userID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load categories")
	}

	generator, err := pipeline.NewGeminiCompletionGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create completion generator")
	}

	taskID := uuid.New().String()
	state := &pipeline.PipelineState{
		UserID:     *userID,
		TaskID:     taskID,
		FileName:   filepath.Base(*filePath),
		PDFBytes:   data,
		Categories: cats,
	}
	if err := pipeline.NewStatementParsePipeline(pipeline.NewPDFTextExtractor(), generator, store).Execute(ctx, state); err != nil {
		log.Fatal().Err(err).Msg("Parse failed")
	}
	log.Info().Str("task_id", taskID).Msg("Statement staged")

	engine := commit.NewEngine(store, repo, commit.WithConcurrency(1))
	res, err := engine.Commit(ctx, *userID, []string{taskID}, cats)
	if err != nil {
		log.Fatal().Err(err).Msg("Commit failed")
	}

	out, _ := res.Outcome(taskID)
	if out.Status != commit.StatusCommitted {
		log.Fatal().Str("status", string(out.Status)).Str("reason", out.Reason).Str("error", out.Error).Msg("Statement not committed")
	}
	fmt.Printf("Committed statement %d with %d expenses (%d lines dropped).\n", out.StatementID, out.ExpenseCount, out.Dropped)
}

func runUpload(cfg config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	bucketName := fs.String("bucket", cfg.GCSBucket, "GCS bucket name")
	filePath := fs.String("file", "", "Path to local PDF file")
	userID := fs.String("user", "", "Owner of the statement")
	statementID := fs.Int64("statement", 0, "Committed statement id")
	fs.Parse(os.Args[2:])

	if *bucketName == "" || *filePath == "" || *userID == "" || *statementID <= 0 {
		log.Fatal().Msg("Usage: cli upload -bucket NAME -file PATH -user ID -statement N")
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read file")
	}

	ctx := logger.WithContext(context.Background(), log)

	archiver, err := archive.NewGCSArchiver(ctx, *bucketName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create archiver")
	}
	defer archiver.Close()

	uri, err := archiver.Archive(ctx, *userID, *statementID, filepath.Base(*filePath), data)
	if err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolConfig{MaxConns: 1})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
		if err := postgres.NewRepository(pool).SetStatementFileURI(ctx, *userID, *statementID, uri); err != nil {
			log.Fatal().Err(err).Msg("Failed to record archive location")
		}
	}

	fmt.Printf("Uploaded %s to %s\n", *filePath, uri)
}

func runExport(cfg config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	userID := fs.String("user", "", "Owner of the statement")
	statementID := fs.Int64("statement", 0, "Committed statement id")
	outPath := fs.String("out", "", "Output .xlsx path (default statement-<id>.xlsx)")
	fs.Parse(os.Args[2:])

	if *userID == "" || *statementID <= 0 || cfg.DatabaseURL == "" {
		log.Fatal().Msg("Usage: cli export -user ID -statement N (DATABASE_URL must be set)")
	}
	if *outPath == "" {
		*outPath = fmt.Sprintf("statement-%d.xlsx", *statementID)
	}

	ctx := logger.WithContext(context.Background(), log)
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolConfig{MaxConns: 1})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	repo := postgres.NewRepository(pool)

	st, err := repo.GetStatement(ctx, *userID, *statementID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load statement")
	}
	expenses, err := repo.ListStatementExpenses(ctx, *userID, *statementID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load expenses")
	}

	f, err := os.Create(*outPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create output file")
	}
	defer f.Close()

	if err := export.WriteStatement(f, *st, expenses); err != nil {
		log.Fatal().Err(err).Msg("Export failed")
	}
	fmt.Printf("Wrote %d expenses to %s\n", len(expenses), *outPath)
}

func runMonthly(cfg config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("monthly", flag.ExitOnError)
	userID := fs.String("user", "", "Owner of the expenses")
	start := fs.String("start", time.Now().AddDate(-1, 0, 0).Format(time.DateOnly), "Start date (YYYY-MM-DD)")
	end := fs.String("end", time.Now().Format(time.DateOnly), "End date (YYYY-MM-DD)")
	fs.Parse(os.Args[2:])

	if *userID == "" || !cfg.MirrorEnabled() {
		log.Fatal().Msg("Usage: cli monthly -user ID (BQ_PROJECT_ID and BQ_DATASET_ID must be set)")
	}

	startDate, err := time.Parse(time.DateOnly, *start)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -start")
	}
	endDate, err := time.Parse(time.DateOnly, *end)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -end")
	}

	ctx := logger.WithContext(context.Background(), log)
	mirror, err := infraBQ.NewMirror(ctx, cfg.BQProjectID, cfg.BQDatasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer mirror.Close()

	rows, err := mirror.MonthlyTotals(ctx, *userID, startDate, endDate)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to query monthly totals")
	}
	printMonthly(os.Stdout, rows)
}
