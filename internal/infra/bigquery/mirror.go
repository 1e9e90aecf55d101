// Package bigquery mirrors committed expenses into a BigQuery dataset for
// reporting. The relational store stays the source of truth.
package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/expense-tracker/internal/commit"
	"github.com/dvloznov/expense-tracker/internal/domain"
)

// Mirror writes committed statements to the analytics expenses table.
// It holds a shared BigQuery client.
type Mirror struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

var _ commit.Mirror = (*Mirror)(nil)

// NewMirror creates a Mirror with its own BigQuery client.
func NewMirror(ctx context.Context, projectID, datasetID string) (*Mirror, error) {
	if projectID == "" || datasetID == "" {
		return nil, fmt.Errorf("NewMirror: project and dataset are required")
	}
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewMirror: creating client: %w", err)
	}
	return &Mirror{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
	}, nil
}

// Close closes the BigQuery client connection.
func (m *Mirror) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// MirrorStatement implements commit.Mirror.
func (m *Mirror) MirrorStatement(ctx context.Context, st domain.Statement, expenses []domain.NewExpense) error {
	return InsertExpenseRowsWithClient(ctx, m.client, m.projectID, m.datasetID, NewExpenseRows(st, expenses))
}

// MonthlyTotals delegates to QueryMonthlyTotalsWithClient with the shared client.
func (m *Mirror) MonthlyTotals(ctx context.Context, userID string, start, end time.Time) ([]*MonthlyTotalRow, error) {
	return QueryMonthlyTotalsWithClient(ctx, m.client, m.projectID, m.datasetID, userID, start, end)
}
