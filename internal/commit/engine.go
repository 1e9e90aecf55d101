// Package commit turns staged parse results into persisted statements.
package commit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/logger"
	"github.com/dvloznov/expense-tracker/internal/pipeline"
	"github.com/dvloznov/expense-tracker/internal/staging"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of staged entries committed in parallel.
const DefaultConcurrency = 4

// ErrMissingUser is returned when an operation is called without a user id.
var ErrMissingUser = errors.New("commit: user id is required")

// Engine commits staged entries. It is safe for concurrent use.
type Engine struct {
	store       staging.Store
	writer      StatementWriter
	archiver    Archiver
	mirror      Mirror
	concurrency int
	now         func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithConcurrency bounds how many entries are committed at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithArchiver copies statement files to long-term storage after commit.
func WithArchiver(a Archiver) Option {
	return func(e *Engine) { e.archiver = a }
}

// WithMirror forwards committed statements to an analytics sink.
func WithMirror(m Mirror) Option {
	return func(e *Engine) { e.mirror = m }
}

// WithClock overrides the time source used for missing statement dates.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a commit engine over the given staging store and writer.
func NewEngine(store staging.Store, writer StatementWriter, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		writer:      writer,
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Commit persists the staged entries for taskIDs. Each distinct id gets one
// outcome, in request order. Only a failure to read the staging store is
// returned as an error; everything else is reported per task.
func (e *Engine) Commit(ctx context.Context, userID string, taskIDs []string, categories []domain.Category) (*Result, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}

	ids := staging.Dedupe(taskIDs)
	entries, err := e.store.GetMany(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("Commit: load staged entries: %w", err)
	}

	byTask := make(map[string]staging.Entry, len(entries))
	for _, entry := range entries {
		byTask[entry.TaskID] = entry
	}

	outcomes := make([]Outcome, len(ids))
	var g errgroup.Group
	g.SetLimit(e.concurrency)

	for i, id := range ids {
		entry, ok := byTask[id]
		if !ok {
			outcomes[i] = Outcome{TaskID: id, Status: StatusSkipped, Reason: ReasonNotStaged}
			continue
		}
		g.Go(func() error {
			outcomes[i] = e.commitEntry(ctx, userID, entry, categories)
			return nil
		})
	}
	_ = g.Wait()

	return &Result{Outcomes: outcomes}, nil
}

// commitEntry runs parse, filter, persist and clear for one staged entry.
func (e *Engine) commitEntry(ctx context.Context, userID string, entry staging.Entry, categories []domain.Category) Outcome {
	log := logger.FromContext(ctx).With().Str("user_id", userID).Str("task_id", entry.TaskID).Logger()
	out := Outcome{TaskID: entry.TaskID}

	parsed, candidates := pipeline.ParseCompletion(entry.Completion, categories)
	expenses, invalid := filterValid(candidates)
	out.Dropped = parsed.Skipped + invalid

	st := domain.NewStatement{
		Name:         entry.Name,
		Date:         e.statementDate(parsed.StatementDate),
		Bank:         parsed.Bank,
		File:         entry.File,
		SourceTaskID: entry.TaskID,
	}

	statementID, err := e.writer.CreateStatementWithExpenses(ctx, userID, st, expenses)
	if errors.Is(err, domain.ErrDuplicateStatement) {
		log.Info().Msg("Statement already committed, clearing staging entry")
		out.Status = StatusSkipped
		out.Reason = ReasonAlreadyCommitted
		if derr := e.store.DeleteMany(ctx, userID, []string{entry.TaskID}); derr != nil {
			out.Warning = fmt.Sprintf("staging entry not removed: %v", derr)
		}
		return out
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to persist statement")
		out.Status = StatusFailed
		out.Error = err.Error()
		return out
	}

	out.Status = StatusCommitted
	out.StatementID = statementID
	out.ExpenseCount = len(expenses)

	if err := e.store.DeleteMany(ctx, userID, []string{entry.TaskID}); err != nil {
		log.Warn().Err(err).Int64("statement_id", statementID).Msg("Committed but staging entry not removed")
		out.Warning = fmt.Sprintf("staging entry not removed: %v", err)
	}

	e.afterCommit(ctx, userID, statementID, st, expenses)

	log.Info().
		Int64("statement_id", statementID).
		Int("expenses", out.ExpenseCount).
		Int("dropped", out.Dropped).
		Msg("Statement committed")
	return out
}

// afterCommit runs the optional archive and mirror hooks. Their failures are
// logged and never change the outcome.
func (e *Engine) afterCommit(ctx context.Context, userID string, statementID int64, st domain.NewStatement, expenses []domain.NewExpense) {
	log := logger.FromContext(ctx)
	var fileURI string

	if e.archiver != nil && len(st.File) > 0 {
		uri, err := e.archiver.Archive(ctx, userID, statementID, st.Name, st.File)
		if err != nil {
			log.Warn().Err(err).Int64("statement_id", statementID).Msg("Failed to archive statement file")
		} else {
			fileURI = uri
			if rec, ok := e.writer.(FileURIRecorder); ok {
				if err := rec.SetStatementFileURI(ctx, userID, statementID, uri); err != nil {
					log.Warn().Err(err).Int64("statement_id", statementID).Msg("Failed to record archive location")
				}
			}
		}
	}

	if e.mirror != nil {
		mirrored := domain.Statement{
			ID:           statementID,
			Name:         st.Name,
			Date:         st.Date,
			Bank:         st.Bank,
			FileURI:      fileURI,
			UserID:       userID,
			SourceTaskID: st.SourceTaskID,
			ExpenseCount: len(expenses),
			CreatedAt:    e.now(),
		}
		if err := e.mirror.MirrorStatement(ctx, mirrored, expenses); err != nil {
			log.Warn().Err(err).Int64("statement_id", statementID).Msg("Failed to mirror statement")
		}
	}
}

func (e *Engine) statementDate(parsed *time.Time) time.Time {
	if parsed != nil {
		return *parsed
	}
	return e.now()
}

// filterValid keeps persistable candidates and reports how many were dropped.
func filterValid(candidates []domain.CandidateExpense) ([]domain.NewExpense, int) {
	expenses := make([]domain.NewExpense, 0, len(candidates))
	dropped := 0
	for _, c := range candidates {
		if !c.Valid() {
			dropped++
			continue
		}
		expenses = append(expenses, domain.NewExpense{
			Description: c.Description,
			Amount:      c.Amount,
			Date:        c.Date,
			CategoryID:  c.CategoryID,
		})
	}
	return expenses, dropped
}
