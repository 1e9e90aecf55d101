package postgres

import (
	"fmt"
	"strings"
	"time"
)

// DefaultPerPage is the page size used when a filter does not set one.
const DefaultPerPage = 50

// MaxPerPage caps the page size a caller may request.
const MaxPerPage = 500

// ExpenseFilter narrows ListExpenses. Zero values mean "no constraint".
type ExpenseFilter struct {
	StatementIDs  []int64
	CategoryIDs   []int64
	TagIDs        []int64
	Keyword       string
	Uncategorised bool
	Start         *time.Time
	End           *time.Time

	Page    int
	PerPage int

	// OrderBy is one of date, amount or description; Desc flips the direction.
	OrderBy string
	Desc    bool
}

var orderColumns = map[string]string{
	"date":        "e.date",
	"amount":      "e.amount",
	"description": "e.description",
}

// whereClause builds the WHERE clause and its arguments. Argument $1 is
// always the user id.
func (f ExpenseFilter) whereClause(userID string) (string, []any) {
	conds := []string{"e.user_id = $1"}
	args := []any{userID}

	add := func(format string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(format, len(args)))
	}

	if len(f.StatementIDs) > 0 {
		add("e.statement_id = ANY($%d)", f.StatementIDs)
	}
	if f.Uncategorised {
		conds = append(conds, "e.category_id IS NULL")
	} else if len(f.CategoryIDs) > 0 {
		add("e.category_id = ANY($%d)", f.CategoryIDs)
	}
	if len(f.TagIDs) > 0 {
		add("EXISTS (SELECT 1 FROM expense_tags et WHERE et.expense_id = e.id AND et.tag_id = ANY($%d))", f.TagIDs)
	}
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		add("e.description ILIKE $%d", "%"+escapeLike(kw)+"%")
	}
	if f.Start != nil && f.End != nil {
		add("e.date >= $%d", *f.Start)
		add("e.date <= $%d", *f.End)
	}

	return "WHERE " + strings.Join(conds, " AND "), args
}

// orderClause never interpolates caller input: unknown columns fall back to date.
func (f ExpenseFilter) orderClause() string {
	col, ok := orderColumns[f.OrderBy]
	if !ok {
		col = "e.date"
	}
	dir := "ASC"
	if f.Desc || f.OrderBy == "" {
		dir = "DESC"
	}
	return fmt.Sprintf("ORDER BY %s %s, e.id %s", col, dir, dir)
}

// limitOffset returns LIMIT and OFFSET values for the filter's page.
func (f ExpenseFilter) limitOffset() (int, int) {
	per := f.PerPage
	if per <= 0 {
		per = DefaultPerPage
	}
	if per > MaxPerPage {
		per = MaxPerPage
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	return per, (page - 1) * per
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
