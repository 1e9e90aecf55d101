// Package staging holds parse results between upload and user confirmation.
//
// An entry is keyed by (user id, task id). Its presence is the only signal
// that a task is still pending: committing or discarding a task removes it,
// and every entry expires after a bounded TTL.
package staging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultTTL bounds how long an unconfirmed parse may linger.
const DefaultTTL = 6 * time.Hour

// ErrInvalidKey is returned when a user id or task id is empty or contains
// the key separator.
var ErrInvalidKey = errors.New("staging: user id and task id are required")

// KeySeparator joins the segments of backend keys such as done:<user>:<task>.
const KeySeparator = ":"

// Entry is a pending, uncommitted parse result.
type Entry struct {
	UserID     string    `json:"user_id"`
	TaskID     string    `json:"task_id"`
	Name       string    `json:"name"`
	Completion string    `json:"completion"`
	File       []byte    `json:"file,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the entry is past its expiry at now.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Store is a keyed, TTL-bearing store of pending entries.
type Store interface {
	// Put creates or replaces the entry for (userID, taskID).
	Put(ctx context.Context, userID, taskID string, entry Entry) error

	// GetMany returns the entries that exist, in request order. Missing or
	// expired ids are omitted, never reported as errors.
	GetMany(ctx context.Context, userID string, taskIDs []string) ([]Entry, error)

	// DeleteMany removes entries. Deleting a missing key is a no-op.
	DeleteMany(ctx context.Context, userID string, taskIDs []string) error

	// List returns every pending entry for a user, oldest first.
	List(ctx context.Context, userID string) ([]Entry, error)
}

// Purger is implemented by backends that need an explicit sweep to drop
// expired entries.
type Purger interface {
	Purge(ctx context.Context, now time.Time) (int, error)
}

// ValidateKey checks that both parts of a staging key are present and free
// of KeySeparator.
func ValidateKey(userID, taskID string) error {
	if userID == "" || taskID == "" ||
		strings.Contains(userID, KeySeparator) || strings.Contains(taskID, KeySeparator) {
		return fmt.Errorf("%w (user=%q, task=%q)", ErrInvalidKey, userID, taskID)
	}
	return nil
}

// Prepare fills the key fields and timestamps of an entry before it is stored.
// A zero ttl means DefaultTTL.
func Prepare(userID, taskID string, entry Entry, ttl time.Duration, now time.Time) Entry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	entry.UserID = userID
	entry.TaskID = taskID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.ExpiresAt = now.Add(ttl)
	if entry.File != nil {
		entry.File = append([]byte(nil), entry.File...)
	}
	return entry
}

// Dedupe drops empty and repeated task ids while keeping first-seen order.
func Dedupe(taskIDs []string) []string {
	seen := make(map[string]struct{}, len(taskIDs))
	out := make([]string, 0, len(taskIDs))
	for _, id := range taskIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
