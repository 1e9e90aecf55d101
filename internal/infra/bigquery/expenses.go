package bigquery

import (
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-tracker/internal/domain"
)

// ExpenseRow is one committed expense in the analytics expenses table.
type ExpenseRow struct {
	StatementID   int64               `bigquery:"statement_id"`   // REQUIRED
	StatementName string              `bigquery:"statement_name"` // NULLABLE
	StatementDate civil.Date          `bigquery:"statement_date"` // NULLABLE
	Bank          string              `bigquery:"bank"`           // NULLABLE
	UserID        string              `bigquery:"user_id"`        // REQUIRED
	SourceTaskID  bigquery.NullString `bigquery:"source_task_id"` // NULLABLE

	LineNumber  int64      `bigquery:"line_number"` // REQUIRED, 1-based
	Description string     `bigquery:"description"` // REQUIRED
	Amount      *big.Rat   `bigquery:"amount"`      // REQUIRED NUMERIC
	ExpenseDate civil.Date `bigquery:"expense_date"`

	CategoryID bigquery.NullInt64  `bigquery:"category_id"` // NULLABLE
	FileURI    bigquery.NullString `bigquery:"file_uri"`    // NULLABLE

	CommittedAt time.Time `bigquery:"committed_at"` // REQUIRED
}

// InsertID identifies the row for streaming-insert deduplication, so a
// retried mirror of the same statement does not double count.
func (r *ExpenseRow) InsertID() string {
	return fmt.Sprintf("%d-%d", r.StatementID, r.LineNumber)
}

// NewExpenseRows maps a committed statement and its expenses to table rows,
// keeping the expense order as line numbers.
func NewExpenseRows(st domain.Statement, expenses []domain.NewExpense) []*ExpenseRow {
	rows := make([]*ExpenseRow, 0, len(expenses))
	for i, e := range expenses {
		row := &ExpenseRow{
			StatementID:   st.ID,
			StatementName: st.Name,
			StatementDate: civil.DateOf(st.Date),
			Bank:          string(st.Bank),
			UserID:        st.UserID,
			SourceTaskID:  nullString(st.SourceTaskID),
			LineNumber:    int64(i + 1),
			Description:   e.Description,
			Amount:        e.Amount.Rat(),
			ExpenseDate:   civil.DateOf(e.Date),
			FileURI:       nullString(st.FileURI),
			CommittedAt:   st.CreatedAt,
		}
		if e.CategoryID != nil {
			row.CategoryID = bigquery.NullInt64{Int64: *e.CategoryID, Valid: true}
		}
		rows = append(rows, row)
	}
	return rows
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

// savers wraps rows with their insert ids for Inserter.Put.
func savers(rows []*ExpenseRow) []*bigquery.StructSaver {
	out := make([]*bigquery.StructSaver, len(rows))
	for i, r := range rows {
		out[i] = &bigquery.StructSaver{Struct: r, InsertID: r.InsertID()}
	}
	return out
}
