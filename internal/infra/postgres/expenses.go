package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// ExpensePage is one page of ListExpenses plus totals over the whole filter.
type ExpensePage struct {
	Expenses []domain.Expense `json:"expenses"`
	Sum      decimal.Decimal  `json:"sum"`
	Count    int64            `json:"count"`
	Page     int              `json:"page"`
	PerPage  int              `json:"perPage"`
}

// CategoryAssignment sets one expense's category.
type CategoryAssignment struct {
	ExpenseID  int64 `json:"expenseId"`
	CategoryID int64 `json:"categoryId"`
}

// TagAssignment replaces the tags of one expense.
type TagAssignment struct {
	ExpenseID int64   `json:"expenseId"`
	TagIDs    []int64 `json:"tagIds"`
}

const expenseSelect = `
	SELECT e.id, e.description, e.amount, e.date, e.note, e.category_id,
	       COALESCE(c.title, ''), COALESCE(c.color, ''),
	       e.statement_id, COALESCE(s.name, ''), e.user_id, e.created_at,
	       ARRAY(SELECT et.tag_id FROM expense_tags et WHERE et.expense_id = e.id ORDER BY et.tag_id)
	FROM expenses e
	LEFT JOIN categories c ON c.id = e.category_id
	LEFT JOIN statements s ON s.id = e.statement_id
`

// ListExpenses returns a filtered, ordered page of the user's expenses.
func (r *Repository) ListExpenses(ctx context.Context, userID string, f ExpenseFilter) (*ExpensePage, error) {
	where, args := f.whereClause(userID)
	limit, offset := f.limitOffset()

	page := &ExpensePage{PerPage: limit, Page: offset/limit + 1}

	var sum pgtype.Numeric
	if err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(e.amount), 0), COUNT(*) FROM expenses e `+where, args...,
	).Scan(&sum, &page.Count); err != nil {
		return nil, fmt.Errorf("ListExpenses: totals: %w", err)
	}
	total, err := fromNumeric(sum)
	if err != nil {
		return nil, fmt.Errorf("ListExpenses: %w", err)
	}
	page.Sum = total

	n := len(args)
	query := expenseSelect + where + " " + f.orderClause() + fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2)
	expenses, err := r.queryExpenses(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("ListExpenses: %w", err)
	}
	page.Expenses = expenses
	return page, nil
}

// ListStatementExpenses returns every expense of one statement in date order.
func (r *Repository) ListStatementExpenses(ctx context.Context, userID string, statementID int64) ([]domain.Expense, error) {
	expenses, err := r.queryExpenses(ctx,
		expenseSelect+`WHERE e.user_id = $1 AND e.statement_id = $2 ORDER BY e.date, e.id`,
		userID, statementID)
	if err != nil {
		return nil, fmt.Errorf("ListStatementExpenses: %w", err)
	}
	return expenses, nil
}

func (r *Repository) queryExpenses(ctx context.Context, query string, args ...any) ([]domain.Expense, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0)
	for rows.Next() {
		var e domain.Expense
		var amount pgtype.Numeric
		if err := rows.Scan(&e.ID, &e.Description, &amount, &e.Date, &e.Note, &e.CategoryID,
			&e.CategoryTitle, &e.CategoryColor, &e.StatementID, &e.StatementName,
			&e.UserID, &e.CreatedAt, &e.Tags); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if e.Amount, err = fromNumeric(amount); err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate: %w", err)
	}
	return expenses, nil
}

// CreateExpense inserts a manual expense with its tags.
func (r *Repository) CreateExpense(ctx context.Context, userID string, in domain.NewExpense) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("CreateExpense: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := checkCategory(ctx, tx, userID, in.CategoryID); err != nil {
		return 0, fmt.Errorf("CreateExpense: %w", err)
	}

	var id int64
	if err := tx.QueryRow(ctx, `
		INSERT INTO expenses (description, amount, date, note, category_id, user_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		in.Description, toNumeric(in.Amount), in.Date, in.Note, in.CategoryID, userID,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("CreateExpense: insert: %w", err)
	}

	if err := replaceTags(ctx, tx, userID, id, in.Tags); err != nil {
		return 0, fmt.Errorf("CreateExpense: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("CreateExpense: commit: %w", err)
	}
	return id, nil
}

// UpdateExpense overwrites an expense and replaces its tags.
func (r *Repository) UpdateExpense(ctx context.Context, userID string, id int64, in domain.NewExpense) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("UpdateExpense: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := checkCategory(ctx, tx, userID, in.CategoryID); err != nil {
		return fmt.Errorf("UpdateExpense: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE expenses
		SET description = $1, amount = $2, date = $3, note = $4, category_id = $5
		WHERE id = $6 AND user_id = $7`,
		in.Description, toNumeric(in.Amount), in.Date, in.Note, in.CategoryID, id, userID)
	if err != nil {
		return fmt.Errorf("UpdateExpense: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := replaceTags(ctx, tx, userID, id, in.Tags); err != nil {
		return fmt.Errorf("UpdateExpense: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("UpdateExpense: commit: %w", err)
	}
	return nil
}

// DeleteExpenses removes the user's expenses with the given ids.
func (r *Repository) DeleteExpenses(ctx context.Context, userID string, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM expenses WHERE user_id = $1 AND id = ANY($2)`, userID, ids)
	if err != nil {
		return 0, fmt.Errorf("DeleteExpenses: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CategoriseExpenses applies many category assignments in one parameterised
// statement. Assignments naming another user's expense or category are ignored.
func (r *Repository) CategoriseExpenses(ctx context.Context, userID string, assignments []CategoryAssignment) (int64, error) {
	if len(assignments) == 0 {
		return 0, nil
	}
	expenseIDs := make([]int64, len(assignments))
	categoryIDs := make([]int64, len(assignments))
	for i, a := range assignments {
		expenseIDs[i] = a.ExpenseID
		categoryIDs[i] = a.CategoryID
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE expenses e
		SET category_id = u.category_id
		FROM unnest($1::bigint[], $2::bigint[]) AS u(expense_id, category_id)
		JOIN categories c ON c.id = u.category_id AND c.user_id = $3
		WHERE e.id = u.expense_id AND e.user_id = $3`,
		expenseIDs, categoryIDs, userID)
	if err != nil {
		return 0, fmt.Errorf("CategoriseExpenses: %w", err)
	}
	return tag.RowsAffected(), nil
}

// TagExpenses replaces the tags of several expenses in one transaction.
func (r *Repository) TagExpenses(ctx context.Context, userID string, assignments []TagAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("TagExpenses: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, a := range assignments {
		var owned bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM expenses WHERE id = $1 AND user_id = $2)`,
			a.ExpenseID, userID).Scan(&owned); err != nil {
			return fmt.Errorf("TagExpenses: check expense %d: %w", a.ExpenseID, err)
		}
		if !owned {
			return fmt.Errorf("TagExpenses: expense %d: %w", a.ExpenseID, ErrNotFound)
		}
		if err := replaceTags(ctx, tx, userID, a.ExpenseID, a.TagIDs); err != nil {
			return fmt.Errorf("TagExpenses: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("TagExpenses: commit: %w", err)
	}
	return nil
}

// replaceTags drops an expense's tags and attaches the user's tags in tagIDs.
func replaceTags(ctx context.Context, tx pgx.Tx, userID string, expenseID int64, tagIDs []int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM expense_tags WHERE expense_id = $1`, expenseID); err != nil {
		return fmt.Errorf("clear tags: %w", err)
	}
	if len(tagIDs) == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO expense_tags (expense_id, tag_id)
		SELECT $1, t.id FROM tags t WHERE t.id = ANY($2) AND t.user_id = $3
		ON CONFLICT DO NOTHING`,
		expenseID, tagIDs, userID); err != nil {
		return fmt.Errorf("attach tags: %w", err)
	}
	return nil
}

func checkCategory(ctx context.Context, tx pgx.Tx, userID string, categoryID *int64) error {
	if categoryID == nil {
		return nil
	}
	var id int64
	err := tx.QueryRow(ctx,
		`SELECT id FROM categories WHERE id = $1 AND user_id = $2`, *categoryID, userID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("category %d: %w", *categoryID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check category: %w", err)
	}
	return nil
}
