package cron

import (
	"context"
	"errors"
	"testing"
	"time"
)

type memoryRedis struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryRedis) DeleteIfEquals(_ context.Context, key, expected string) (bool, error) {
	if v, ok := m.values[key]; ok && v == expected {
		delete(m.values, key)
		return true, nil
	}
	return false, nil
}

func TestRedisLockIsExclusive(t *testing.T) {
	store := newMemoryRedis()
	first, err := NewRedisLock(store, "lic:lock:cron", 0)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	second, _ := NewRedisLock(store, "lic:lock:cron", time.Minute)
	ctx := context.Background()

	ok, err := first.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, ok=%v err=%v", ok, err)
	}
	if store.ttls["lic:lock:cron"] != defaultLockTTL {
		t.Fatalf("expected default ttl, got %v", store.ttls["lic:lock:cron"])
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatalf("second worker must not acquire a held lock")
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	if _, held := store.values["lic:lock:cron"]; !held {
		t.Fatalf("non-owner release must not delete the lock")
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatalf("expected lock to be free after release")
	}
}

func TestRedisLockReleaseSkipsForeignOwner(t *testing.T) {
	store := newMemoryRedis()
	lock, _ := NewRedisLock(store, "k", time.Minute)
	ctx := context.Background()
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatalf("acquire failed")
	}

	// simulate expiry followed by another worker taking over
	store.values["k"] = "someone-else"
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.values["k"] != "someone-else" {
		t.Fatalf("foreign lock must be left in place")
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", 0); err == nil {
		t.Fatalf("expected client error")
	}
	if _, err := NewRedisLock(newMemoryRedis(), "", 0); err == nil {
		t.Fatalf("expected key error")
	}
}

type failingLockStore struct{ memoryRedis }

func (failingLockStore) DeleteIfEquals(context.Context, string, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestRedisLockReleaseReportsStoreError(t *testing.T) {
	store := &failingLockStore{memoryRedis: *newMemoryRedis()}
	lock, _ := NewRedisLock(store, "k", time.Minute)
	if ok, _ := lock.Acquire(context.Background()); !ok {
		t.Fatal("acquire failed")
	}
	if err := lock.Release(context.Background()); err == nil {
		t.Fatal("expected release error")
	}
	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("second release should be a no-op, got %v", err)
	}
}
