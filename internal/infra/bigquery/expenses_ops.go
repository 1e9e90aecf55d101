package bigquery

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"
)

const (
	expensesTable = "expenses"
	dateFormat    = "2006-01-02"
)

// MonthlyTotalRow is one month of spend read back from the analytics table.
type MonthlyTotalRow struct {
	Month  civil.Date `bigquery:"month"`
	Amount *big.Rat   `bigquery:"amount"`
	Count  int64      `bigquery:"expense_count"`
}

// InsertExpenseRowsWithClient streams rows into <project>.<dataset>.expenses
// using the provided BigQuery client.
func InsertExpenseRowsWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID string, rows []*ExpenseRow) error {
	if len(rows) == 0 {
		return nil
	}

	table := client.DatasetInProject(projectID, datasetID).Table(expensesTable)
	inserter := table.Inserter()
	if err := inserter.Put(ctx, savers(rows)); err != nil {
		return fmt.Errorf("InsertExpenseRows: inserting rows: %w", err)
	}

	return nil
}

// QueryMonthlyTotalsWithClient sums a user's mirrored expenses per month in
// the inclusive date range.
func QueryMonthlyTotalsWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID, userID string, startDate, endDate time.Time) ([]*MonthlyTotalRow, error) {
	query := fmt.Sprintf(`
		SELECT
			DATE_TRUNC(expense_date, MONTH) AS month,
			SUM(amount) AS amount,
			COUNT(*) AS expense_count
		FROM `+"`%s.%s.%s`"+`
		WHERE user_id = @user_id
		  AND expense_date >= @start_date
		  AND expense_date <= @end_date
		GROUP BY month
		ORDER BY month
	`, projectID, datasetID, expensesTable)

	q := client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "start_date", Value: startDate.Format(dateFormat)},
		{Name: "end_date", Value: endDate.Format(dateFormat)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryMonthlyTotals: query read: %w", err)
	}

	var rows []*MonthlyTotalRow
	for {
		var r MonthlyTotalRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryMonthlyTotals: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}
