package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/jackc/pgx/v5"
)

const sourceTaskConstraint = "statements_user_source_task_key"

var expenseCopyColumns = []string{"description", "amount", "date", "note", "category_id", "statement_id", "user_id"}

// CreateStatementWithExpenses inserts the statement and bulk-copies its
// expenses in one transaction. A statement whose SourceTaskID was already
// committed for the user yields ErrDuplicateStatement and writes nothing.
func (r *Repository) CreateStatementWithExpenses(ctx context.Context, userID string, st domain.NewStatement, expenses []domain.NewExpense) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("CreateStatementWithExpenses: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var sourceTaskID *string
	if st.SourceTaskID != "" {
		sourceTaskID = &st.SourceTaskID
	}

	var statementID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO statements (name, date, bank, file, user_id, source_task_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT ON CONSTRAINT `+sourceTaskConstraint+` DO NOTHING
		RETURNING id`,
		st.Name, st.Date, string(st.Bank), st.File, userID, sourceTaskID,
	).Scan(&statementID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrDuplicateStatement
	}
	if err != nil {
		return 0, fmt.Errorf("CreateStatementWithExpenses: insert statement: %w", err)
	}

	if err := checkCategoryOwnership(ctx, tx, userID, expenses); err != nil {
		return 0, fmt.Errorf("CreateStatementWithExpenses: %w", err)
	}

	if len(expenses) > 0 {
		rows := make([][]any, len(expenses))
		for i, e := range expenses {
			rows[i] = []any{e.Description, toNumeric(e.Amount), e.Date, e.Note, e.CategoryID, statementID, userID}
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"expenses"}, expenseCopyColumns, pgx.CopyFromRows(rows)); err != nil {
			return 0, fmt.Errorf("CreateStatementWithExpenses: copy expenses: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err, sourceTaskConstraint) {
			return 0, ErrDuplicateStatement
		}
		return 0, fmt.Errorf("CreateStatementWithExpenses: commit: %w", err)
	}
	return statementID, nil
}

// SetStatementFileURI records where the statement file was archived.
func (r *Repository) SetStatementFileURI(ctx context.Context, userID string, statementID int64, uri string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE statements SET file_uri = $1 WHERE id = $2 AND user_id = $3`,
		uri, statementID, userID)
	if err != nil {
		return fmt.Errorf("SetStatementFileURI: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListStatements returns the user's statements, newest first, with expense counts.
func (r *Repository) ListStatements(ctx context.Context, userID string) ([]domain.Statement, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.name, s.date, s.bank, s.file_uri, s.user_id,
		       COALESCE(s.source_task_id, ''), s.created_at,
		       (SELECT count(*) FROM expenses e WHERE e.statement_id = s.id)
		FROM statements s
		WHERE s.user_id = $1
		ORDER BY s.date DESC, s.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("ListStatements: query: %w", err)
	}
	defer rows.Close()

	statements := make([]domain.Statement, 0)
	for rows.Next() {
		var s domain.Statement
		var bank string
		if err := rows.Scan(&s.ID, &s.Name, &s.Date, &bank, &s.FileURI, &s.UserID, &s.SourceTaskID, &s.CreatedAt, &s.ExpenseCount); err != nil {
			return nil, fmt.Errorf("ListStatements: scan: %w", err)
		}
		s.Bank = domain.Bank(bank)
		statements = append(statements, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListStatements: iterate: %w", err)
	}
	return statements, nil
}

// GetStatement returns one statement header.
func (r *Repository) GetStatement(ctx context.Context, userID string, id int64) (*domain.Statement, error) {
	var s domain.Statement
	var bank string
	err := r.pool.QueryRow(ctx, `
		SELECT s.id, s.name, s.date, s.bank, s.file_uri, s.user_id,
		       COALESCE(s.source_task_id, ''), s.created_at,
		       (SELECT count(*) FROM expenses e WHERE e.statement_id = s.id)
		FROM statements s
		WHERE s.id = $1 AND s.user_id = $2`, id, userID,
	).Scan(&s.ID, &s.Name, &s.Date, &bank, &s.FileURI, &s.UserID, &s.SourceTaskID, &s.CreatedAt, &s.ExpenseCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetStatement: %w", err)
	}
	s.Bank = domain.Bank(bank)
	return &s, nil
}

// GetStatementFile returns the original file name and bytes.
func (r *Repository) GetStatementFile(ctx context.Context, userID string, id int64) (string, []byte, error) {
	var name string
	var file []byte
	err := r.pool.QueryRow(ctx,
		`SELECT name, file FROM statements WHERE id = $1 AND user_id = $2`, id, userID,
	).Scan(&name, &file)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil, ErrNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("GetStatementFile: %w", err)
	}
	return name, file, nil
}

// checkCategoryOwnership verifies that every category referenced by expenses
// belongs to userID.
func checkCategoryOwnership(ctx context.Context, tx pgx.Tx, userID string, expenses []domain.NewExpense) error {
	seen := make(map[int64]struct{})
	ids := make([]int64, 0)
	for _, e := range expenses {
		if e.CategoryID == nil {
			continue
		}
		if _, ok := seen[*e.CategoryID]; ok {
			continue
		}
		seen[*e.CategoryID] = struct{}{}
		ids = append(ids, *e.CategoryID)
	}
	if len(ids) == 0 {
		return nil
	}

	var owned int
	if err := tx.QueryRow(ctx,
		`SELECT count(*) FROM categories WHERE id = ANY($1) AND user_id = $2`, ids, userID,
	).Scan(&owned); err != nil {
		return fmt.Errorf("check categories: %w", err)
	}
	if owned != len(ids) {
		return fmt.Errorf("%d of %d categories: %w", len(ids)-owned, len(ids), ErrUnknownCategory)
	}
	return nil
}
