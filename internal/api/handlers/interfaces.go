package handlers

import (
	"context"
	"time"

	"github.com/dvloznov/expense-tracker/internal/commit"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/infra/postgres"
)

// Committer turns staged or reviewed statements into persisted ones.
type Committer interface {
	Commit(ctx context.Context, userID string, taskIDs []string, categories []domain.Category) (*commit.Result, error)
	CommitReviewed(ctx context.Context, userID string, up commit.ReviewedUpload) (*commit.ReviewedResult, error)
}

// CategoryRepository reads and creates a user's categories and tags.
type CategoryRepository interface {
	ListCategories(ctx context.Context, userID string) ([]domain.Category, error)
	CreateCategory(ctx context.Context, userID, title, color string) (*domain.Category, error)
	ListTags(ctx context.Context, userID string) ([]domain.Tag, error)
	CreateTag(ctx context.Context, userID, title string) (*domain.Tag, error)
}

// StatementRepository reads committed statements.
type StatementRepository interface {
	ListStatements(ctx context.Context, userID string) ([]domain.Statement, error)
	GetStatement(ctx context.Context, userID string, id int64) (*domain.Statement, error)
	GetStatementFile(ctx context.Context, userID string, id int64) (string, []byte, error)
	ListStatementExpenses(ctx context.Context, userID string, statementID int64) ([]domain.Expense, error)
}

// ExpenseRepository queries and edits persisted expenses.
type ExpenseRepository interface {
	ListExpenses(ctx context.Context, userID string, f postgres.ExpenseFilter) (*postgres.ExpensePage, error)
	CreateExpense(ctx context.Context, userID string, in domain.NewExpense) (int64, error)
	UpdateExpense(ctx context.Context, userID string, id int64, in domain.NewExpense) error
	DeleteExpenses(ctx context.Context, userID string, ids []int64) (int64, error)
	CategoriseExpenses(ctx context.Context, userID string, assignments []postgres.CategoryAssignment) (int64, error)
	TagExpenses(ctx context.Context, userID string, assignments []postgres.TagAssignment) error
	AggregateByMonth(ctx context.Context, userID string, start, end time.Time, tz string) ([]postgres.MonthTotal, error)
	DistinctYears(ctx context.Context, userID string) ([]int, error)
}

var (
	_ CategoryRepository  = (*postgres.Repository)(nil)
	_ StatementRepository = (*postgres.Repository)(nil)
	_ ExpenseRepository   = (*postgres.Repository)(nil)
	_ Committer           = (*commit.Engine)(nil)
)
