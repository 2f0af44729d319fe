// Package storage provides SQLite-based persistent storage for clipfix:
// the persistent tier of the result cache and repair metrics.
package storage

import "context"

// Store defines every storage operation clipfix uses.
type Store interface {
	// Result cache
	GetCached(ctx context.Context, key string) (*CacheEntry, error)
	SetCached(ctx context.Context, entry *CacheEntry) error
	PruneCache(ctx context.Context, maxEntries int) (int64, error)
	ClearCache(ctx context.Context) (int64, error)
	GetCacheStats(ctx context.Context) (*CacheStats, error)

	// Repair metrics
	InsertRepairMetric(ctx context.Context, m *RepairMetric) error
	RepairSummary(ctx context.Context) ([]RepairSummaryRow, error)

	// Lifecycle
	Close() error
}

// CacheEntry is one persisted formatting result.
type CacheEntry struct {
	CacheKey         string
	Language         string
	Operation        string
	Output           string
	CreatedAtUnixMs  int64
	ExpiresAtUnixMs  int64
	LastAccessUnixMs int64
	HitCount         int64
}

// CacheStats summarizes the persistent cache.
type CacheStats struct {
	TotalEntries   int64
	ExpiredEntries int64
	TotalHits      int64
}

// RepairMetric records one generative repair attempt.
type RepairMetric struct {
	RunID            string
	Language         string
	Model            string
	Succeeded        bool
	DurationMs       int64
	RecordedAtUnixMs int64
}

// RepairSummaryRow aggregates repair metrics for one language.
type RepairSummaryRow struct {
	Language      string
	Attempts      int64
	Successes     int64
	AvgDurationMs float64
}
