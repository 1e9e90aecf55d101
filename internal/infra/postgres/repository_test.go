package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/dvloznov/expense-tracker/internal/commit"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var _ commit.StatementWriter = (*Repository)(nil)
var _ commit.FileURIRecorder = (*Repository)(nil)

// newTestRepository connects to TEST_DATABASE_URL, which must already carry
// the migrations from migrations/postgres. Each test uses a fresh user id.
func newTestRepository(t *testing.T) (*Repository, string) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := NewPool(ctx, dsn, PoolConfig{MaxConns: 4})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	user := "test-" + uuid.NewString()
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM expenses WHERE user_id = $1`, user)
		_, _ = pool.Exec(ctx, `DELETE FROM statements WHERE user_id = $1`, user)
		_, _ = pool.Exec(ctx, `DELETE FROM categories WHERE user_id = $1`, user)
		_, _ = pool.Exec(ctx, `DELETE FROM tags WHERE user_id = $1`, user)
		pool.Close()
	})
	return NewRepository(pool), user
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestRepository_CreateStatementWithExpenses(t *testing.T) {
	ctx := context.Background()
	repo, user := newTestRepository(t)

	food, err := repo.CreateCategory(ctx, user, "Food", "#f00")
	if err != nil {
		t.Fatal(err)
	}

	st := domain.NewStatement{Name: "jan.pdf", Date: day(2024, 1, 15), Bank: domain.BankDBS, File: []byte("%PDF"), SourceTaskID: "task-1"}
	expenses := []domain.NewExpense{
		{Description: "Coffee", Amount: decimal.RequireFromString("4.50"), Date: day(2024, 1, 10), CategoryID: &food.ID},
		{Description: "Taxi", Amount: decimal.RequireFromString("12.00"), Date: day(2024, 1, 12)},
	}

	id, err := repo.CreateStatementWithExpenses(ctx, user, st, expenses)
	if err != nil {
		t.Fatalf("CreateStatementWithExpenses() error = %v", err)
	}

	_, err = repo.CreateStatementWithExpenses(ctx, user, st, expenses)
	if !errors.Is(err, ErrDuplicateStatement) {
		t.Fatalf("second insert error = %v, want ErrDuplicateStatement", err)
	}

	got, err := repo.ListStatementExpenses(ctx, user, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d expenses, want 2", len(got))
	}
	if got[0].Amount.StringFixed(2) != "4.50" || got[0].CategoryTitle != "Food" {
		t.Errorf("first expense = %+v", got[0])
	}

	name, file, err := repo.GetStatementFile(ctx, user, id)
	if err != nil || name != "jan.pdf" || string(file) != "%PDF" {
		t.Errorf("GetStatementFile() = (%q, %q, %v)", name, file, err)
	}
	if _, _, err := repo.GetStatementFile(ctx, "someone-else", id); !errors.Is(err, ErrNotFound) {
		t.Errorf("other user's statement error = %v, want ErrNotFound", err)
	}
}

func TestRepository_CreateStatementRejectsForeignCategory(t *testing.T) {
	ctx := context.Background()
	repo, user := newTestRepository(t)
	other, otherUser := newTestRepository(t)

	foreign, err := other.CreateCategory(ctx, otherUser, "Theirs", "#000")
	if err != nil {
		t.Fatal(err)
	}
	missing := int64(-1)

	tests := []struct {
		name       string
		categoryID *int64
	}{
		{"another user's category", &foreign.ID},
		{"unknown category", &missing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := domain.NewStatement{Name: "x.pdf", Date: day(2024, 3, 1), Bank: domain.BankDBS, SourceTaskID: "cat-" + tt.name}
			expenses := []domain.NewExpense{
				{Description: "Coffee", Amount: decimal.RequireFromString("4.50"), Date: day(2024, 3, 1), CategoryID: tt.categoryID},
			}
			_, err := repo.CreateStatementWithExpenses(ctx, user, st, expenses)
			if !errors.Is(err, ErrUnknownCategory) {
				t.Fatalf("error = %v, want ErrUnknownCategory", err)
			}
		})
	}

	statements, _ := repo.ListStatements(ctx, user)
	if len(statements) != 0 {
		t.Errorf("statements persisted despite foreign categories: %+v", statements)
	}
}

func TestRepository_AtomicCommit(t *testing.T) {
	ctx := context.Background()
	repo, user := newTestRepository(t)

	st := domain.NewStatement{Name: "bad.pdf", Date: day(2024, 2, 1), Bank: domain.BankUnknown, SourceTaskID: "bad"}
	expenses := []domain.NewExpense{
		{Description: "ok", Amount: decimal.NewFromInt(1), Date: day(2024, 2, 1)},
		// Violates the description CHECK constraint.
		{Description: "  ", Amount: decimal.NewFromInt(2), Date: day(2024, 2, 1)},
	}

	if _, err := repo.CreateStatementWithExpenses(ctx, user, st, expenses); err == nil {
		t.Fatal("expected constraint failure")
	}

	statements, _ := repo.ListStatements(ctx, user)
	if len(statements) != 0 {
		t.Errorf("statement persisted without its expenses: %+v", statements)
	}
	page, _ := repo.ListExpenses(ctx, user, ExpenseFilter{})
	if page.Count != 0 {
		t.Errorf("found %d orphan expenses", page.Count)
	}
}

func TestRepository_ListCategoriseAndAggregate(t *testing.T) {
	ctx := context.Background()
	repo, user := newTestRepository(t)

	transport, _ := repo.CreateCategory(ctx, user, "Transport", "")
	st := domain.NewStatement{Name: "s.pdf", Date: day(2024, 3, 31), Bank: domain.BankUOB}
	_, err := repo.CreateStatementWithExpenses(ctx, user, st, []domain.NewExpense{
		{Description: "Grab ride", Amount: decimal.RequireFromString("15.10"), Date: day(2024, 2, 3)},
		{Description: "MRT", Amount: decimal.RequireFromString("2.20"), Date: day(2024, 3, 4)},
		{Description: "Lunch", Amount: decimal.RequireFromString("8.00"), Date: day(2024, 3, 5)},
	})
	if err != nil {
		t.Fatal(err)
	}

	page, err := repo.ListExpenses(ctx, user, ExpenseFilter{Uncategorised: true, OrderBy: "amount"})
	if err != nil {
		t.Fatalf("ListExpenses() error = %v", err)
	}
	if page.Count != 3 || page.Sum.StringFixed(2) != "25.30" {
		t.Fatalf("count=%d sum=%s, want 3 and 25.30", page.Count, page.Sum)
	}
	if page.Expenses[0].Description != "MRT" {
		t.Errorf("ascending amount order starts with %q", page.Expenses[0].Description)
	}

	var assignments []CategoryAssignment
	for _, e := range page.Expenses {
		if e.Description != "Lunch" {
			assignments = append(assignments, CategoryAssignment{ExpenseID: e.ID, CategoryID: transport.ID})
		}
	}
	n, err := repo.CategoriseExpenses(ctx, user, assignments)
	if err != nil || n != 2 {
		t.Fatalf("CategoriseExpenses() = (%d, %v), want 2", n, err)
	}

	byCat, _ := repo.ListExpenses(ctx, user, ExpenseFilter{CategoryIDs: []int64{transport.ID}, Keyword: "grab"})
	if byCat.Count != 1 {
		t.Errorf("keyword+category count = %d, want 1", byCat.Count)
	}

	totals, err := repo.AggregateByMonth(ctx, user, day(2024, 1, 1), day(2024, 12, 31), "UTC")
	if err != nil {
		t.Fatalf("AggregateByMonth() error = %v", err)
	}
	if len(totals) != 2 || totals[1].Amount.StringFixed(2) != "10.20" || totals[1].Count != 2 {
		t.Errorf("totals = %+v", totals)
	}

	years, _ := repo.DistinctYears(ctx, user)
	if len(years) != 1 || years[0] != 2024 {
		t.Errorf("DistinctYears() = %v", years)
	}
}

func TestRepository_ExpenseCRUDAndTags(t *testing.T) {
	ctx := context.Background()
	repo, user := newTestRepository(t)

	tag, _ := repo.CreateTag(ctx, user, "trip")
	id, err := repo.CreateExpense(ctx, user, domain.NewExpense{
		Description: "Hotel", Amount: decimal.RequireFromString("120.00"), Date: day(2024, 4, 1), Tags: []int64{tag.ID},
	})
	if err != nil {
		t.Fatalf("CreateExpense() error = %v", err)
	}

	page, _ := repo.ListExpenses(ctx, user, ExpenseFilter{TagIDs: []int64{tag.ID}})
	if page.Count != 1 || len(page.Expenses[0].Tags) != 1 {
		t.Fatalf("tagged expenses = %+v", page)
	}

	err = repo.UpdateExpense(ctx, user, id, domain.NewExpense{Description: "Hotel 2", Amount: decimal.NewFromInt(100), Date: day(2024, 4, 2), Note: "refund applied"})
	if err != nil {
		t.Fatalf("UpdateExpense() error = %v", err)
	}
	if err := repo.UpdateExpense(ctx, "intruder", id, domain.NewExpense{Description: "x", Date: day(2024, 1, 1)}); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign update error = %v, want ErrNotFound", err)
	}

	if err := repo.TagExpenses(ctx, user, []TagAssignment{{ExpenseID: id, TagIDs: []int64{tag.ID}}}); err != nil {
		t.Fatalf("TagExpenses() error = %v", err)
	}

	n, err := repo.DeleteExpenses(ctx, user, []int64{id, 999999999})
	if err != nil || n != 1 {
		t.Errorf("DeleteExpenses() = (%d, %v), want 1", n, err)
	}
}
