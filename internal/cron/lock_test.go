package cron

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type memoryLockStore struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryLockStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryLockStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", time.Minute); err == nil {
		t.Fatalf("expected store error")
	}
	if _, err := NewRedisLock(newMemoryLockStore(), "", time.Minute); err == nil {
		t.Fatalf("expected key error")
	}
	lock, err := NewRedisLock(newMemoryLockStore(), "k", 0)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	if lock.TTL() != defaultLockTTL {
		t.Fatalf("expected default ttl, got %s", lock.TTL())
	}
}

func TestRedisLockExcludesSecondWorker(t *testing.T) {
	ctx := context.Background()
	store := newMemoryLockStore()
	first, _ := NewRedisLock(store, "mv:cron-worker:lock:test", time.Minute)
	second, _ := NewRedisLock(store, "mv:cron-worker:lock:test", time.Minute)

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if store.ttls["mv:cron-worker:lock:test"] != time.Minute {
		t.Fatalf("ttl not passed to store")
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatalf("second worker acquired a held lock")
	}
	holder, err := second.Holder(ctx)
	if err != nil || !strings.Contains(holder, ":") {
		t.Fatalf("unexpected holder %q (%v)", holder, err)
	}

	if err := second.Release(ctx); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	if _, held := store.values["mv:cron-worker:lock:test"]; !held {
		t.Fatalf("non-owner release removed the lock")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if holder, _ := first.Holder(ctx); holder != "" {
		t.Fatalf("lock still held by %q", holder)
	}
}

func TestRedisLockReleaseAfterTakeover(t *testing.T) {
	ctx := context.Background()
	store := newMemoryLockStore()
	lock, _ := NewRedisLock(store, "k", time.Minute)
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatalf("acquire failed")
	}
	// Expired and claimed by another worker.
	store.values["k"] = "other:1:x"

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.values["k"] != "other:1:x" {
		t.Fatalf("released another worker's lock")
	}
}
