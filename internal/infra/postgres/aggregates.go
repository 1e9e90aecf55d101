package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// MonthTotal is the spend of one calendar month.
type MonthTotal struct {
	Month  time.Time       `json:"month"`
	Amount decimal.Decimal `json:"amount"`
	Count  int64           `json:"count"`
}

// AggregateByMonth sums expenses between start and end per calendar month,
// with month boundaries taken in the given IANA time zone.
func (r *Repository) AggregateByMonth(ctx context.Context, userID string, start, end time.Time, tz string) ([]MonthTotal, error) {
	if tz == "" {
		tz = "UTC"
	}
	rows, err := r.pool.Query(ctx, `
		SELECT date_trunc('month', e.date AT TIME ZONE $4) AS month,
		       SUM(e.amount), COUNT(*)
		FROM expenses e
		WHERE e.user_id = $1 AND e.date BETWEEN $2 AND $3
		GROUP BY month
		ORDER BY month`,
		userID, start, end, tz)
	if err != nil {
		return nil, fmt.Errorf("AggregateByMonth: query: %w", err)
	}
	defer rows.Close()

	totals := make([]MonthTotal, 0)
	for rows.Next() {
		var mt MonthTotal
		var sum pgtype.Numeric
		if err := rows.Scan(&mt.Month, &sum, &mt.Count); err != nil {
			return nil, fmt.Errorf("AggregateByMonth: scan: %w", err)
		}
		if mt.Amount, err = fromNumeric(sum); err != nil {
			return nil, fmt.Errorf("AggregateByMonth: %w", err)
		}
		totals = append(totals, mt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("AggregateByMonth: iterate: %w", err)
	}
	return totals, nil
}

// DistinctYears lists the years the user has expenses in, newest first.
func (r *Repository) DistinctYears(ctx context.Context, userID string) ([]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT EXTRACT(YEAR FROM e.date)::int AS year
		FROM expenses e
		WHERE e.user_id = $1
		ORDER BY year DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("DistinctYears: query: %w", err)
	}
	defer rows.Close()

	years := make([]int, 0)
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, fmt.Errorf("DistinctYears: scan: %w", err)
		}
		years = append(years, y)
	}
	return years, rows.Err()
}
