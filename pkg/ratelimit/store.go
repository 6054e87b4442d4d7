package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists the guard state.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
}

// MemoryStore keeps the state in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	state State
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	return nil
}

// RedisStore shares the state between processes through Redis. Keys expire
// with the backoff window, so a crashed writer never leaves a stale lock.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisStore creates a Redis-backed store. ttl should equal the guard's
// backoff window.
func NewRedisStore(redisClient *redis.Client, ttl time.Duration) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis: redisClient,
		ttl:   ttl,
	}
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context) (State, error) {
	ts, err := r.redis.Get(ctx, RedisKeyLastThrottledAt).Int64()
	if err == redis.Nil {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("get last throttled at: %w", err)
	}

	msg, err := r.redis.Get(ctx, RedisKeyLastError).Result()
	if err != nil && err != redis.Nil {
		return State{}, fmt.Errorf("get last error: %w", err)
	}

	status, err := r.redis.Get(ctx, RedisKeyLastStatus).Int()
	if err != nil && err != redis.Nil {
		return State{}, fmt.Errorf("get last status: %w", err)
	}

	state := State{LastThrottledAt: time.UnixMilli(ts), LastStatus: status}
	if msg != "" {
		state.LastError = &storedError{msg: msg, status: status}
	}
	return state, nil
}

// Save implements Store. Saving a clear state deletes the keys.
func (r *RedisStore) Save(ctx context.Context, state State) error {
	if state.IsClear() {
		if err := r.redis.Del(ctx, RedisKeyLastThrottledAt, RedisKeyLastError, RedisKeyLastStatus).Err(); err != nil {
			return fmt.Errorf("clear rate limit state in redis: %w", err)
		}
		return nil
	}

	msg := ""
	if state.LastError != nil {
		msg = state.LastError.Error()
	}

	pipe := r.redis.TxPipeline()
	pipe.Set(ctx, RedisKeyLastThrottledAt, state.LastThrottledAt.UnixMilli(), r.ttl)
	pipe.Set(ctx, RedisKeyLastError, msg, r.ttl)
	pipe.Set(ctx, RedisKeyLastStatus, state.LastStatus, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}
	return nil
}
