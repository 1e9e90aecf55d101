package commit

import (
	"context"

	"github.com/dvloznov/expense-tracker/internal/domain"
)

// StatementWriter persists a statement and its expenses atomically.
// Implementations return domain.ErrDuplicateStatement when the statement's
// SourceTaskID was already committed for the user.
type StatementWriter interface {
	CreateStatementWithExpenses(ctx context.Context, userID string, st domain.NewStatement, expenses []domain.NewExpense) (int64, error)
}

// FileURIRecorder is implemented by writers that can store the archive
// location of a statement file.
type FileURIRecorder interface {
	SetStatementFileURI(ctx context.Context, userID string, statementID int64, uri string) error
}

// Archiver keeps a copy of the original statement file.
type Archiver interface {
	Archive(ctx context.Context, userID string, statementID int64, name string, file []byte) (string, error)
}

// Mirror receives committed statements for analytics.
type Mirror interface {
	MirrorStatement(ctx context.Context, st domain.Statement, expenses []domain.NewExpense) error
}
