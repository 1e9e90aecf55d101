// Package redisstore keeps staging entries in Redis under done:<user>:<task>
// keys, relying on key expiry for the TTL.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dvloznov/expense-tracker/internal/staging"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "done"

// Store implements staging.Store on top of a Redis client.
type Store struct {
	client redis.UniversalClient
	ttl    time.Duration
	now    func() time.Time
}

// NewStore wraps an existing client. A zero ttl means staging.DefaultTTL.
func NewStore(client redis.UniversalClient, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = staging.DefaultTTL
	}
	return &Store{client: client, ttl: ttl, now: time.Now}
}

// NewClient parses a redis:// URL and verifies the connection.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("NewClient: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("NewClient: ping: %w", err)
	}
	return client, nil
}

func entryKey(userID, taskID string) string {
	return keyPrefix + staging.KeySeparator + userID + staging.KeySeparator + taskID
}

// reachableKeys maps task ids to keys, dropping ids that could address
// another user's key space.
func reachableKeys(userID string, taskIDs []string) ([]string, []string) {
	ids := make([]string, 0, len(taskIDs))
	keys := make([]string, 0, len(taskIDs))
	for _, id := range taskIDs {
		if staging.ValidateKey(userID, id) != nil {
			continue
		}
		ids = append(ids, id)
		keys = append(keys, entryKey(userID, id))
	}
	return ids, keys
}

// Put implements staging.Store.
func (s *Store) Put(ctx context.Context, userID, taskID string, entry staging.Entry) error {
	if err := staging.ValidateKey(userID, taskID); err != nil {
		return err
	}

	stored := staging.Prepare(userID, taskID, entry, s.ttl, s.now())
	payload, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("Put: marshal entry: %w", err)
	}

	if err := s.client.Set(ctx, entryKey(userID, taskID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("Put: set %s: %w", taskID, err)
	}
	return nil
}

// GetMany implements staging.Store.
func (s *Store) GetMany(ctx context.Context, userID string, taskIDs []string) ([]staging.Entry, error) {
	ids, keys := reachableKeys(userID, taskIDs)
	if len(keys) == 0 {
		return []staging.Entry{}, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("GetMany: mget: %w", err)
	}

	result := make([]staging.Entry, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var e staging.Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("GetMany: decode %s: %w", ids[i], err)
		}
		if e.UserID != userID || e.TaskID != ids[i] {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

// DeleteMany implements staging.Store.
func (s *Store) DeleteMany(ctx context.Context, userID string, taskIDs []string) error {
	_, keys := reachableKeys(userID, taskIDs)
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("DeleteMany: del: %w", err)
	}
	return nil
}

// List implements staging.Store by scanning the user's key space.
func (s *Store) List(ctx context.Context, userID string) ([]staging.Entry, error) {
	if staging.ValidateKey(userID, "-") != nil {
		return []staging.Entry{}, nil
	}
	pattern := keyPrefix + staging.KeySeparator + escapePattern(userID) + staging.KeySeparator + "*"

	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("List: scan: %w", err)
	}

	prefix := keyPrefix + staging.KeySeparator + userID + staging.KeySeparator
	taskIDs := make([]string, 0, len(keys))
	for _, k := range keys {
		taskIDs = append(taskIDs, strings.TrimPrefix(k, prefix))
	}

	result, err := s.GetMany(ctx, userID, taskIDs)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].TaskID < result[j].TaskID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// escapePattern escapes glob metacharacters for SCAN MATCH.
func escapePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}

var _ staging.Store = (*Store)(nil)
