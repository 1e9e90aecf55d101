package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// bigQueryTarget applies migrations to a BigQuery dataset.
type bigQueryTarget struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

func (t *bigQueryTarget) table() string {
	return fmt.Sprintf("`%s.%s.schema_migrations`", t.projectID, t.datasetID)
}

func (t *bigQueryTarget) EnsureTable(ctx context.Context) error {
	return t.run(ctx, t.client.Query(`
		CREATE TABLE IF NOT EXISTS `+t.table()+` (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)
	`))
}

func (t *bigQueryTarget) Applied(ctx context.Context) ([]AppliedMigration, error) {
	query := t.client.Query(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM ` + t.table() + `
		ORDER BY version ASC
	`)
	it, err := query.Read(ctx)
	if err != nil {
		// If table doesn't exist yet, return empty list
		if strings.Contains(err.Error(), "Not found") {
			return []AppliedMigration{}, nil
		}
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64
			Name      string
			AppliedAt time.Time
			Checksum  bigquery.NullString
			AppliedBy bigquery.NullString
		}

		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating results: %w", err)
		}

		applied = append(applied, AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}

	return applied, nil
}

// Apply runs the migration and records it. BigQuery DDL is not
// transactional, so a failure between the two leaves the migration unrecorded.
func (t *bigQueryTarget) Apply(ctx context.Context, m Migration, appliedBy string) error {
	if err := t.run(ctx, t.client.Query(m.SQL)); err != nil {
		return err
	}

	record := t.client.Query(`
		INSERT INTO ` + t.table() + `
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`)
	record.Parameters = []bigquery.QueryParameter{
		{Name: "version", Value: m.Version},
		{Name: "name", Value: m.Name},
		{Name: "checksum", Value: m.Checksum},
		{Name: "applied_by", Value: appliedBy},
	}
	return t.run(ctx, record)
}

func (t *bigQueryTarget) Close() error {
	return t.client.Close()
}

func (t *bigQueryTarget) run(ctx context.Context, query *bigquery.Query) error {
	job, err := query.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}

	return nil
}
