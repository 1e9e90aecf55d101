package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/dvloznov/expense-tracker/internal/api/middleware"
	"github.com/dvloznov/expense-tracker/internal/commit"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/infra/postgres"
	"github.com/dvloznov/expense-tracker/internal/jobs"
	jobsmem "github.com/dvloznov/expense-tracker/internal/jobs/inmemory"
	stagingmem "github.com/dvloznov/expense-tracker/internal/staging/inmemory"
	"github.com/rs/zerolog"
)

type mockCommitter struct {
	CommitFunc         func(ctx context.Context, userID string, taskIDs []string, categories []domain.Category) (*commit.Result, error)
	CommitReviewedFunc func(ctx context.Context, userID string, up commit.ReviewedUpload) (*commit.ReviewedResult, error)
}

func (m *mockCommitter) Commit(ctx context.Context, userID string, taskIDs []string, categories []domain.Category) (*commit.Result, error) {
	return m.CommitFunc(ctx, userID, taskIDs, categories)
}

func (m *mockCommitter) CommitReviewed(ctx context.Context, userID string, up commit.ReviewedUpload) (*commit.ReviewedResult, error) {
	return m.CommitReviewedFunc(ctx, userID, up)
}

type mockCategoryRepo struct {
	categories []domain.Category
	err        error
}

func (m *mockCategoryRepo) ListCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	return m.categories, m.err
}

func (m *mockCategoryRepo) CreateCategory(ctx context.Context, userID, title, color string) (*domain.Category, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.Category{ID: 99, Title: title, Color: color, UserID: userID}, nil
}

func (m *mockCategoryRepo) ListTags(ctx context.Context, userID string) ([]domain.Tag, error) {
	return []domain.Tag{{ID: 1, Title: "trip", UserID: userID}}, m.err
}

func (m *mockCategoryRepo) CreateTag(ctx context.Context, userID, title string) (*domain.Tag, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.Tag{ID: 5, Title: title, UserID: userID}, nil
}

type mockStatementRepo struct {
	statements []domain.Statement
	expenses   []domain.Expense
	files      map[int64][]byte
}

func (m *mockStatementRepo) ListStatements(ctx context.Context, userID string) ([]domain.Statement, error) {
	return m.statements, nil
}

func (m *mockStatementRepo) GetStatement(ctx context.Context, userID string, id int64) (*domain.Statement, error) {
	for _, s := range m.statements {
		if s.ID == id && s.UserID == userID {
			return &s, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStatementRepo) GetStatementFile(ctx context.Context, userID string, id int64) (string, []byte, error) {
	st, err := m.GetStatement(ctx, userID, id)
	if err != nil {
		return "", nil, err
	}
	return st.Name, m.files[id], nil
}

func (m *mockStatementRepo) ListStatementExpenses(ctx context.Context, userID string, statementID int64) ([]domain.Expense, error) {
	return m.expenses, nil
}

type mockExpenseRepo struct {
	ListExpensesFunc     func(ctx context.Context, userID string, f postgres.ExpenseFilter) (*postgres.ExpensePage, error)
	CreateExpenseFunc    func(ctx context.Context, userID string, in domain.NewExpense) (int64, error)
	UpdateExpenseFunc    func(ctx context.Context, userID string, id int64, in domain.NewExpense) error
	AggregateByMonthFunc func(ctx context.Context, userID string, start, end time.Time, tz string) ([]postgres.MonthTotal, error)
}

func (m *mockExpenseRepo) ListExpenses(ctx context.Context, userID string, f postgres.ExpenseFilter) (*postgres.ExpensePage, error) {
	return m.ListExpensesFunc(ctx, userID, f)
}

func (m *mockExpenseRepo) CreateExpense(ctx context.Context, userID string, in domain.NewExpense) (int64, error) {
	return m.CreateExpenseFunc(ctx, userID, in)
}

func (m *mockExpenseRepo) UpdateExpense(ctx context.Context, userID string, id int64, in domain.NewExpense) error {
	return m.UpdateExpenseFunc(ctx, userID, id, in)
}

func (m *mockExpenseRepo) DeleteExpenses(ctx context.Context, userID string, ids []int64) (int64, error) {
	return int64(len(ids)), nil
}

func (m *mockExpenseRepo) CategoriseExpenses(ctx context.Context, userID string, assignments []postgres.CategoryAssignment) (int64, error) {
	return int64(len(assignments)), nil
}

func (m *mockExpenseRepo) TagExpenses(ctx context.Context, userID string, assignments []postgres.TagAssignment) error {
	return nil
}

func (m *mockExpenseRepo) AggregateByMonth(ctx context.Context, userID string, start, end time.Time, tz string) ([]postgres.MonthTotal, error) {
	return m.AggregateByMonthFunc(ctx, userID, start, end, tz)
}

func (m *mockExpenseRepo) DistinctYears(ctx context.Context, userID string) ([]int, error) {
	return []int{2024, 2023}, nil
}

type mockPublisher struct {
	published []*jobs.ParseStatementJob
	err       error
}

func (m *mockPublisher) PublishParseStatement(ctx context.Context, job *jobs.ParseStatementJob) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, job)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

// fixture wires every handler against in-memory and mock collaborators.
type fixture struct {
	staging    *stagingmem.Store
	jobStore   *jobsmem.Store
	publisher  *mockPublisher
	committer  *mockCommitter
	categories *mockCategoryRepo
	statements *mockStatementRepo
	expenses   *mockExpenseRepo
	router     http.Handler
}

func newFixture() *fixture {
	log := zerolog.Nop()
	f := &fixture{
		staging:    stagingmem.NewStore(time.Hour),
		jobStore:   jobsmem.NewStore(),
		publisher:  &mockPublisher{},
		committer:  &mockCommitter{},
		categories: &mockCategoryRepo{},
		statements: &mockStatementRepo{files: map[int64][]byte{}},
		expenses:   &mockExpenseRepo{},
	}
	f.router = NewRouter(Handlers{
		Tasks:      NewTasksHandler(f.staging, f.publisher, f.jobStore, f.committer, f.categories, log),
		Statements: NewStatementsHandler(f.statements, f.committer, log),
		Expenses:   NewExpensesHandler(f.expenses, log),
		Categories: NewCategoriesHandler(f.categories, log),
		Jobs:       NewJobsHandler(f.jobStore, log),
	}, log)
	return f
}

// do sends req as userID; an empty userID sends no identity header.
func (f *fixture) do(req *http.Request, userID string) *httptest.ResponseRecorder {
	if userID != "" {
		req.Header.Set(middleware.UserIDHeader, userID)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}
