package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/dvloznov/expense-tracker/internal/staging"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// newTestStore connects to TEST_DATABASE_URL, which must already carry the
// migrations from migrations/postgres.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("pgxpool.New() error = %v", err)
	}
	t.Cleanup(pool.Close)
	return NewStore(pool, time.Hour)
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	user := "test-" + uuid.NewString()
	t.Cleanup(func() { _, _ = s.pool.Exec(ctx, `DELETE FROM staged_tasks WHERE user_id = $1`, user) })

	if err := s.Put(ctx, user, "a", staging.Entry{Name: "a.pdf", Completion: "first", File: []byte("pdf")}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Put(ctx, user, "a", staging.Entry{Name: "a.pdf", Completion: "second"}); err != nil {
		t.Fatalf("Put() replace error = %v", err)
	}
	_ = s.Put(ctx, user, "b", staging.Entry{Completion: "b"})

	got, err := s.GetMany(ctx, user, []string{"b", "missing", "a"})
	if err != nil {
		t.Fatalf("GetMany() error = %v", err)
	}
	if len(got) != 2 || got[0].TaskID != "b" || got[1].TaskID != "a" {
		t.Fatalf("GetMany() = %+v, want [b a]", got)
	}
	if got[1].Completion != "second" {
		t.Errorf("Completion = %q, want replaced value", got[1].Completion)
	}

	if err := s.DeleteMany(ctx, user, []string{"a", "missing"}); err != nil {
		t.Fatalf("DeleteMany() error = %v", err)
	}
	list, err := s.List(ctx, user)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].TaskID != "b" {
		t.Errorf("List() = %+v, want [b]", list)
	}
}

func TestStore_Purge(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	user := "test-" + uuid.NewString()
	t.Cleanup(func() { _, _ = s.pool.Exec(ctx, `DELETE FROM staged_tasks WHERE user_id = $1`, user) })

	now := time.Now()
	s.now = func() time.Time { return now.Add(-2 * time.Hour) }
	_ = s.Put(ctx, user, "stale", staging.Entry{})
	s.now = func() time.Time { return now }
	_ = s.Put(ctx, user, "fresh", staging.Entry{})

	got, _ := s.GetMany(ctx, user, []string{"stale", "fresh"})
	if len(got) != 1 || got[0].TaskID != "fresh" {
		t.Fatalf("GetMany() = %+v, want only fresh", got)
	}

	n, err := s.Purge(ctx, now)
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if n < 1 {
		t.Errorf("Purge() = %d, want at least 1", n)
	}
}
