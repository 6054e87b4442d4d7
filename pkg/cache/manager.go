package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/silo-activity/pkg/activity"
)

// DefaultTTL is how long an entry lives without being confirmed.
const DefaultTTL = 24 * time.Hour

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Manager stores ETag entries in Redis.
type Manager struct {
	redis *redis.Client
	ttl   time.Duration
	now   func() time.Time
}

// NewManager creates a new cache manager with Redis backend. A ttl <= 0
// selects DefaultTTL.
func NewManager(redisClient *redis.Client, ttl time.Duration) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		redis: redisClient,
		ttl:   ttl,
		now:   time.Now,
	}
}

// TTL returns the entry lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Get retrieves an entry by key.
// Returns ErrCacheMiss if the key doesn't exist.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, error) {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	CacheHits.Inc()
	return &entry, nil
}

// Set stores an entry for the manager's TTL.
func (m *Manager) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, key.String(), data, m.ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes an entry.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Record stores the freshness state of a completed fetch. A response
// without an ETag removes the entry. A 304 answer (no items, same ETag as
// the stored entry) keeps FetchedAt and ItemCount and renews the TTL.
func (m *Manager) Record(ctx context.Context, key Key, resp *activity.Response) error {
	if resp == nil || resp.ETag == "" {
		return m.Delete(ctx, key)
	}

	now := m.now()
	existing, err := m.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		CacheErrors.WithLabelValues("record").Inc()
		return err
	}

	if existing != nil && existing.ETag == resp.ETag && len(resp.Items) == 0 {
		NotModified.Inc()
		existing.CheckedAt = now
		return m.Set(ctx, key, existing)
	}

	return m.Set(ctx, key, &Entry{
		ETag:      resp.ETag,
		FetchedAt: now,
		ItemCount: len(resp.Items),
		CheckedAt: now,
	})
}
