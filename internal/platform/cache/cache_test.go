package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

func TestMemorySnapshots_GetSet(t *testing.T) {
	m := NewMemorySnapshots()
	ctx := context.Background()

	_, gen, err := m.Get(ctx, "board:all")
	if !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
	if err := m.Set(ctx, gen, "board:all", []byte(`[]`), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, _, err := m.Get(ctx, "board:all")
	if err != nil || string(got) != `[]` {
		t.Fatalf("unexpected get result %q %v", got, err)
	}
}

func TestMemorySnapshots_Expiry(t *testing.T) {
	m := NewMemorySnapshots()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	_ = m.Set(ctx, 0, "k", []byte("v"), 30*time.Second)
	now = now.Add(30 * time.Second)
	if _, _, err := m.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected entry to expire at ttl, got %v", err)
	}
}

func TestMemorySnapshots_InvalidateAll(t *testing.T) {
	m := NewMemorySnapshots()
	ctx := context.Background()
	_ = m.Set(ctx, 0, "a", []byte("1"), 0)
	_ = m.Set(ctx, 0, "b", []byte("2"), 0)

	if err := m.InvalidateAll(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("expected empty cache, have %d", m.Len())
	}
}

func TestMemorySnapshots_ReturnsCopy(t *testing.T) {
	m := NewMemorySnapshots()
	ctx := context.Background()
	_ = m.Set(ctx, 0, "k", []byte("abc"), 0)

	got, _, _ := m.Get(ctx, "k")
	got[0] = 'x'
	again, _, _ := m.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("cached value was mutated: %q", again)
	}
}

func TestMemorySnapshots_SetAfterInvalidateIsDropped(t *testing.T) {
	m := NewMemorySnapshots()
	ctx := context.Background()

	_, gen, _ := m.Get(ctx, "board:all")
	if err := m.InvalidateAll(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if err := m.Set(ctx, gen, "board:all", []byte("stale"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, _, err := m.Get(ctx, "board:all"); !errors.Is(err, ErrMiss) {
		t.Fatalf("value loaded before invalidation was cached: %v", err)
	}

	_, gen, _ = m.Get(ctx, "board:all")
	_ = m.Set(ctx, gen, "board:all", []byte("fresh"), time.Minute)
	got, _, err := m.Get(ctx, "board:all")
	if err != nil || string(got) != "fresh" {
		t.Fatalf("unexpected get %q %v", got, err)
	}
}

// Runs only when REDIS_TEST_URL points at a disposable Redis.
func TestRedisSnapshots(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	c := redis.NewClient(opts)
	defer c.Close()

	r := NewRedisSnapshots(c)
	ctx := context.Background()

	_, gen, _ := r.Get(ctx, "test:board")
	if err := r.Set(ctx, gen, "test:board", []byte("payload"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, _, err := r.Get(ctx, "test:board")
	if err != nil || string(got) != "payload" {
		t.Fatalf("unexpected get %q %v", got, err)
	}
	if err := r.InvalidateAll(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, _, err := r.Get(ctx, "test:board"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected miss after invalidation, got %v", err)
	}
	if err := r.Set(ctx, gen, "test:board", []byte("stale"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, _, err := r.Get(ctx, "test:board"); !errors.Is(err, ErrMiss) {
		t.Errorf("value written for an old generation is visible: %v", err)
	}
}
