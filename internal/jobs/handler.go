package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/logger"
	"github.com/dvloznov/expense-tracker/internal/pipeline"
	"github.com/dvloznov/expense-tracker/internal/staging"
)

// CategorySource loads the categories offered to the model.
type CategorySource interface {
	ListCategories(ctx context.Context, userID string) ([]domain.Category, error)
}

// ParseStatementHandler returns a JobHandler that runs the statement parse
// pipeline for each ParseStatementJob. Failures no retry can fix, such as a
// missing file or an unusable staging key, are marked Permanent.
func ParseStatementHandler(p *pipeline.Pipeline, categories CategorySource) JobHandler {
	return func(ctx context.Context, job Job) error {
		j, ok := job.(*ParseStatementJob)
		if !ok {
			return fmt.Errorf("ParseStatementHandler: unexpected job type %s", job.GetType())
		}

		log := logger.FromContext(ctx).With().
			Str("job_id", j.JobID).
			Str("user_id", j.UserID).
			Str("task_id", j.TaskID).
			Logger()
		ctx = logger.WithContext(ctx, log)

		if len(j.File) == 0 {
			return Permanent(errors.New("ParseStatementHandler: job carries no statement file"))
		}

		cats, err := categories.ListCategories(ctx, j.UserID)
		if err != nil {
			return fmt.Errorf("ParseStatementHandler: load categories: %w", err)
		}

		state := &pipeline.PipelineState{
			UserID:     j.UserID,
			TaskID:     j.TaskID,
			FileName:   j.FileName,
			PDFBytes:   j.File,
			Categories: cats,
		}
		if err := p.Execute(ctx, state); err != nil {
			log.Error().Err(err).Int("retry", j.RetryCount).Msg("Statement parse failed")
			if errors.Is(err, staging.ErrInvalidKey) || errors.Is(err, pipeline.ErrNoInput) {
				return Permanent(err)
			}
			return err
		}

		log.Info().Int("completion_bytes", len(state.Completion)).Msg("Statement staged for review")
		return nil
	}
}
