package pipeline

import (
	"context"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/staging"
)

// TextExtractor pulls readable text out of a statement document.
type TextExtractor interface {
	ExtractText(ctx context.Context, pdfBytes []byte) (string, error)
}

// CompletionRequest is the input of one model call. When Text is empty the
// raw PDF is attached instead.
type CompletionRequest struct {
	PDF        []byte
	Text       string
	Categories []domain.Category
}

// CompletionGenerator provides an interface for LLM-backed statement reading.
// This interface enables mocking and testing of the model call.
type CompletionGenerator interface {
	// GenerateCompletion returns the raw line-oriented completion text.
	GenerateCompletion(ctx context.Context, req CompletionRequest) (string, error)
}

// StagingWriter is the part of the staging store the parse pipeline needs.
type StagingWriter interface {
	Put(ctx context.Context, userID, taskID string, entry staging.Entry) error
}
