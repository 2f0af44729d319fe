package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestSQLiteStore_GetCached_Hit(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	entry := &CacheEntry{CacheKey: "k1", Language: "python", Operation: "format", Output: "x = 1\n"}
	if err := store.SetCached(ctx, entry); err != nil {
		t.Fatalf("SetCached() error = %v", err)
	}

	got, err := store.GetCached(ctx, "k1")
	if err != nil {
		t.Fatalf("GetCached() error = %v", err)
	}
	if got.Output != "x = 1\n" || got.Language != "python" || got.Operation != "format" {
		t.Errorf("GetCached() = %+v", got)
	}
	if got.ExpiresAtUnixMs <= got.CreatedAtUnixMs {
		t.Errorf("default expiry not applied: %+v", got)
	}

	got, _ = store.GetCached(ctx, "k1")
	if got.HitCount != 1 {
		t.Errorf("HitCount = %d, want 1", got.HitCount)
	}
}

func TestSQLiteStore_GetCached_MissAndExpired(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.GetCached(ctx, "missing"); !errors.Is(err, ErrCacheNotFound) {
		t.Errorf("GetCached(missing) error = %v, want ErrCacheNotFound", err)
	}

	past := time.Now().Add(-time.Hour).UnixMilli()
	err := store.SetCached(ctx, &CacheEntry{
		CacheKey: "old", Language: "go", Operation: "format", Output: "x",
		CreatedAtUnixMs: past - 1000, ExpiresAtUnixMs: past,
	})
	if err != nil {
		t.Fatalf("SetCached() error = %v", err)
	}
	if _, err := store.GetCached(ctx, "old"); !errors.Is(err, ErrCacheNotFound) {
		t.Errorf("GetCached(expired) error = %v, want ErrCacheNotFound", err)
	}
}

func TestSQLiteStore_SetCached_Validation(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		entry *CacheEntry
	}{
		{"nil", nil},
		{"no key", &CacheEntry{Language: "go", Operation: "format"}},
		{"no language", &CacheEntry{CacheKey: "k", Operation: "format"}},
	}
	for _, tt := range tests {
		if err := store.SetCached(ctx, tt.entry); err == nil {
			t.Errorf("%s: SetCached() expected error", tt.name)
		}
	}
	if _, err := store.GetCached(ctx, ""); err == nil {
		t.Error("GetCached(\"\") expected error")
	}
}

func TestSQLiteStore_PruneCache(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	for i := 0; i < 5; i++ {
		err := store.SetCached(ctx, &CacheEntry{
			CacheKey: fmt.Sprintf("k%d", i), Language: "go", Operation: "format", Output: "x",
			CreatedAtUnixMs: now, ExpiresAtUnixMs: now + time.Hour.Milliseconds(),
			LastAccessUnixMs: now + int64(i),
		})
		if err != nil {
			t.Fatalf("SetCached() error = %v", err)
		}
	}
	err := store.SetCached(ctx, &CacheEntry{
		CacheKey: "expired", Language: "go", Operation: "format", Output: "x",
		CreatedAtUnixMs: now - 2000, ExpiresAtUnixMs: now - 1000,
	})
	if err != nil {
		t.Fatalf("SetCached() error = %v", err)
	}

	removed, err := store.PruneCache(ctx, 3)
	if err != nil {
		t.Fatalf("PruneCache() error = %v", err)
	}
	if removed != 3 {
		t.Errorf("PruneCache() removed %d, want 3", removed)
	}

	// The two least recently accessed entries are gone.
	for _, key := range []string{"k0", "k1"} {
		if _, err := store.GetCached(ctx, key); !errors.Is(err, ErrCacheNotFound) {
			t.Errorf("%s should have been pruned, err = %v", key, err)
		}
	}
	for _, key := range []string{"k2", "k3", "k4"} {
		if _, err := store.GetCached(ctx, key); err != nil {
			t.Errorf("%s should remain, err = %v", key, err)
		}
	}
}

func TestSQLiteStore_ClearAndStats(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	_ = store.SetCached(ctx, &CacheEntry{CacheKey: "a", Language: "go", Operation: "format", Output: "x"})
	_ = store.SetCached(ctx, &CacheEntry{CacheKey: "b", Language: "go", Operation: "format", Output: "x",
		CreatedAtUnixMs: now - 2000, ExpiresAtUnixMs: now - 1000})
	_, _ = store.GetCached(ctx, "a")

	stats, err := store.GetCacheStats(ctx)
	if err != nil {
		t.Fatalf("GetCacheStats() error = %v", err)
	}
	if stats.TotalEntries != 2 || stats.ExpiredEntries != 1 || stats.TotalHits != 1 {
		t.Errorf("GetCacheStats() = %+v, want 2 entries, 1 expired, 1 hit", stats)
	}

	n, err := store.ClearCache(ctx)
	if err != nil {
		t.Fatalf("ClearCache() error = %v", err)
	}
	if n != 2 {
		t.Errorf("ClearCache() = %d, want 2", n)
	}
	stats, _ = store.GetCacheStats(ctx)
	if stats.TotalEntries != 0 {
		t.Errorf("entries after clear = %d", stats.TotalEntries)
	}
}
