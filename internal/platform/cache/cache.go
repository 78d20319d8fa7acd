// Package cache holds serialized read-model snapshots (the bed board) between
// change notifications.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

var ErrMiss = errors.New("cache miss")

// Snapshots caches opaque payloads by key. InvalidateAll drops every entry
// at once; it is called for each change notification.
//
// Get also returns the generation it observed, hit or miss. Set stores a
// value only for that generation: a payload loaded before an invalidation
// is never visible after it.
type Snapshots interface {
	Get(ctx context.Context, key string) ([]byte, int64, error)
	Set(ctx context.Context, gen int64, key string, value []byte, ttl time.Duration) error
	InvalidateAll(ctx context.Context) error
}

const (
	redisPrefix  = "bedboard:snap:"
	redisGenKey  = "bedboard:snap:gen"
	memSweepSize = 256
)

// RedisSnapshots shares snapshots between instances. Invalidation bumps a
// generation counter that is part of every key, so stale entries simply
// become unreachable and expire by TTL.
type RedisSnapshots struct {
	c *redis.Client
}

func NewRedisSnapshots(c *redis.Client) *RedisSnapshots { return &RedisSnapshots{c: c} }

func (r *RedisSnapshots) generation(ctx context.Context) (int64, error) {
	gen, err := r.c.Get(ctx, redisGenKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (r *RedisSnapshots) key(gen int64, key string) string {
	return redisPrefix + strconv.FormatInt(gen, 10) + ":" + key
}

func (r *RedisSnapshots) Get(ctx context.Context, key string) ([]byte, int64, error) {
	gen, err := r.generation(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("snapshot generation: %w", err)
	}
	val, err := r.c.Get(ctx, r.key(gen, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, gen, ErrMiss
		}
		return nil, gen, err
	}
	return val, gen, nil
}

// Set writes under gen's key. If the generation has moved on the entry is
// unreachable and simply expires.
func (r *RedisSnapshots) Set(ctx context.Context, gen int64, key string, value []byte, ttl time.Duration) error {
	return r.c.Set(ctx, r.key(gen, key), value, ttl).Err()
}

func (r *RedisSnapshots) InvalidateAll(ctx context.Context) error {
	return r.c.Incr(ctx, redisGenKey).Err()
}

// Ping is used as a health check.
func (r *RedisSnapshots) Ping(ctx context.Context) error {
	return r.c.Ping(ctx).Err()
}

type memEntry struct {
	val []byte
	exp time.Time
}

// MemorySnapshots is the single-instance fallback when REDIS_URL is unset.
type MemorySnapshots struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	gen     int64
	now     func() time.Time
}

func NewMemorySnapshots() *MemorySnapshots {
	return &MemorySnapshots{entries: make(map[string]memEntry), now: time.Now}
}

func (m *MemorySnapshots) Get(_ context.Context, key string) ([]byte, int64, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	gen := m.gen
	m.mu.RUnlock()
	if !ok || (!e.exp.IsZero() && !m.now().Before(e.exp)) {
		return nil, gen, ErrMiss
	}
	out := make([]byte, len(e.val))
	copy(out, e.val)
	return out, gen, nil
}

// Set is a no-op when an invalidation happened after gen was observed.
func (m *MemorySnapshots) Set(_ context.Context, gen int64, key string, value []byte, ttl time.Duration) error {
	now := m.now()
	e := memEntry{val: append([]byte(nil), value...)}
	if ttl > 0 {
		e.exp = now.Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return nil
	}
	if len(m.entries) >= memSweepSize {
		for k, old := range m.entries {
			if !old.exp.IsZero() && !now.Before(old.exp) {
				delete(m.entries, k)
			}
		}
	}
	m.entries[key] = e
	return nil
}

func (m *MemorySnapshots) InvalidateAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memEntry)
	m.gen++
	return nil
}

func (m *MemorySnapshots) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
