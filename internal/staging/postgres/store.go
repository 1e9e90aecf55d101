// Package postgres keeps staging entries in the staged_tasks table.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/expense-tracker/internal/staging"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements staging.Store and staging.Purger with pgx.
type Store struct {
	pool *pgxpool.Pool
	ttl  time.Duration
	now  func() time.Time
}

// NewStore creates a store over an existing pool. A zero ttl means
// staging.DefaultTTL.
func NewStore(pool *pgxpool.Pool, ttl time.Duration) *Store {
	return &Store{pool: pool, ttl: ttl, now: time.Now}
}

// Put implements staging.Store. It upserts so a re-parse replaces the row.
func (s *Store) Put(ctx context.Context, userID, taskID string, entry staging.Entry) error {
	if err := staging.ValidateKey(userID, taskID); err != nil {
		return err
	}
	e := staging.Prepare(userID, taskID, entry, s.ttl, s.now())

	_, err := s.pool.Exec(ctx, `
		INSERT INTO staged_tasks (user_id, task_id, name, completion, file, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, task_id) DO UPDATE SET
			name = EXCLUDED.name,
			completion = EXCLUDED.completion,
			file = EXCLUDED.file,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at`,
		e.UserID, e.TaskID, e.Name, e.Completion, e.File, e.CreatedAt, e.ExpiresAt)
	if err != nil {
		return fmt.Errorf("Put: upsert %s: %w", taskID, err)
	}
	return nil
}

// GetMany implements staging.Store.
func (s *Store) GetMany(ctx context.Context, userID string, taskIDs []string) ([]staging.Entry, error) {
	if len(taskIDs) == 0 {
		return []staging.Entry{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT user_id, task_id, name, completion, file, created_at, expires_at
		FROM staged_tasks
		WHERE user_id = $1 AND task_id = ANY($2) AND expires_at > $3`,
		userID, taskIDs, s.now())
	if err != nil {
		return nil, fmt.Errorf("GetMany: query: %w", err)
	}
	found, err := collectEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("GetMany: %w", err)
	}

	byTask := make(map[string]staging.Entry, len(found))
	for _, e := range found {
		byTask[e.TaskID] = e
	}
	result := make([]staging.Entry, 0, len(found))
	for _, id := range taskIDs {
		if e, ok := byTask[id]; ok {
			result = append(result, e)
			delete(byTask, id)
		}
	}
	return result, nil
}

// DeleteMany implements staging.Store.
func (s *Store) DeleteMany(ctx context.Context, userID string, taskIDs []string) error {
	if len(taskIDs) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM staged_tasks WHERE user_id = $1 AND task_id = ANY($2)`,
		userID, taskIDs); err != nil {
		return fmt.Errorf("DeleteMany: %w", err)
	}
	return nil
}

// List implements staging.Store.
func (s *Store) List(ctx context.Context, userID string) ([]staging.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, task_id, name, completion, file, created_at, expires_at
		FROM staged_tasks
		WHERE user_id = $1 AND expires_at > $2
		ORDER BY created_at, task_id`,
		userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("List: query: %w", err)
	}
	entries, err := collectEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return entries, nil
}

// Purge implements staging.Purger.
func (s *Store) Purge(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM staged_tasks WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("Purge: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func collectEntries(rows pgx.Rows) ([]staging.Entry, error) {
	defer rows.Close()

	entries := make([]staging.Entry, 0)
	for rows.Next() {
		var e staging.Entry
		if err := rows.Scan(&e.UserID, &e.TaskID, &e.Name, &e.Completion, &e.File, &e.CreatedAt, &e.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan staged task: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate staged tasks: %w", err)
	}
	return entries, nil
}

var (
	_ staging.Store  = (*Store)(nil)
	_ staging.Purger = (*Store)(nil)
)
