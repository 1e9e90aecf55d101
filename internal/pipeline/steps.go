package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/logger"
	"github.com/dvloznov/expense-tracker/internal/staging"
)

// PipelineStep represents a single step in the parse pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	UserID     string
	TaskID     string
	FileName   string
	PDFBytes   []byte
	Categories []domain.Category

	Text       string
	Completion string
}

// ExtractTextStep reads the text layer of the PDF.
type ExtractTextStep struct {
	Extractor TextExtractor
}

func (s *ExtractTextStep) Execute(ctx context.Context, state *PipelineState) error {
	text, err := s.Extractor.ExtractText(ctx, state.PDFBytes)
	if err != nil {
		// Scanned or odd PDFs still go to the model as inline data.
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("task_id", state.TaskID).Msg("Text extraction failed, sending PDF inline")
		return nil
	}
	state.Text = text
	return nil
}

// GenerateCompletionStep asks the model to read the statement.
type GenerateCompletionStep struct {
	Generator CompletionGenerator
}

func (s *GenerateCompletionStep) Execute(ctx context.Context, state *PipelineState) error {
	completion, err := s.Generator.GenerateCompletion(ctx, CompletionRequest{
		PDF:        state.PDFBytes,
		Text:       state.Text,
		Categories: state.Categories,
	})
	if err != nil {
		return err
	}
	state.Completion = completion
	return nil
}

// StageEntryStep stores the raw completion until the user confirms it.
type StageEntryStep struct {
	Writer StagingWriter
}

func (s *StageEntryStep) Execute(ctx context.Context, state *PipelineState) error {
	entry := staging.Entry{
		UserID:     state.UserID,
		TaskID:     state.TaskID,
		Name:       state.FileName,
		Completion: state.Completion,
		File:       state.PDFBytes,
		CreatedAt:  time.Now(),
	}
	if err := s.Writer.Put(ctx, state.UserID, state.TaskID, entry); err != nil {
		return fmt.Errorf("StageEntryStep: %w", err)
	}
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// NewStatementParsePipeline creates the standard extract → complete → stage pipeline.
func NewStatementParsePipeline(extractor TextExtractor, generator CompletionGenerator, writer StagingWriter) *Pipeline {
	return NewPipeline(
		&ExtractTextStep{Extractor: extractor},
		&GenerateCompletionStep{Generator: generator},
		&StageEntryStep{Writer: writer},
	)
}
