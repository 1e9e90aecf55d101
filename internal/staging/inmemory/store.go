package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/expense-tracker/internal/staging"
)

type key struct {
	userID string
	taskID string
}

// Store is an in-memory implementation of staging.Store.
// It is safe for concurrent use. Data is lost on restart; use the Redis or
// Postgres backend when pending tasks must survive a deploy.
type Store struct {
	mu      sync.RWMutex
	entries map[key]staging.Entry
	ttl     time.Duration
	now     func() time.Time
}

// NewStore creates an in-memory store. A zero ttl means staging.DefaultTTL.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		entries: make(map[key]staging.Entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Put implements staging.Store. An existing entry is replaced, never mutated.
func (s *Store) Put(ctx context.Context, userID, taskID string, entry staging.Entry) error {
	if err := staging.ValidateKey(userID, taskID); err != nil {
		return err
	}

	stored := staging.Prepare(userID, taskID, entry, s.ttl, s.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key{userID, taskID}] = stored
	return nil
}

// GetMany implements staging.Store.
func (s *Store) GetMany(ctx context.Context, userID string, taskIDs []string) ([]staging.Entry, error) {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]staging.Entry, 0, len(taskIDs))
	for _, taskID := range taskIDs {
		e, ok := s.entries[key{userID, taskID}]
		if !ok || e.Expired(now) {
			continue
		}
		result = append(result, copyEntry(e))
	}
	return result, nil
}

// DeleteMany implements staging.Store.
func (s *Store) DeleteMany(ctx context.Context, userID string, taskIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, taskID := range taskIDs {
		delete(s.entries, key{userID, taskID})
	}
	return nil
}

// List implements staging.Store.
func (s *Store) List(ctx context.Context, userID string) ([]staging.Entry, error) {
	now := s.now()

	s.mu.RLock()
	result := make([]staging.Entry, 0)
	for k, e := range s.entries {
		if k.userID != userID || e.Expired(now) {
			continue
		}
		result = append(result, copyEntry(e))
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].TaskID < result[j].TaskID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// Purge implements staging.Purger.
func (s *Store) Purge(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, e := range s.entries {
		if e.Expired(now) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed, nil
}

// copyEntry returns an entry whose file bytes are not shared with the store.
func copyEntry(e staging.Entry) staging.Entry {
	if e.File != nil {
		e.File = append([]byte(nil), e.File...)
	}
	return e
}

var (
	_ staging.Store  = (*Store)(nil)
	_ staging.Purger = (*Store)(nil)
)
