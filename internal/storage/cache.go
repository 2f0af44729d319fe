package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrCacheNotFound is returned when a cache entry is missing or expired.
var ErrCacheNotFound = errors.New("cache entry not found")

// DefaultCacheTTL applies when an entry has no expiry.
const DefaultCacheTTL = 7 * 24 * time.Hour

// GetCached returns a live entry and bumps its hit count and access time.
func (s *SQLiteStore) GetCached(ctx context.Context, key string) (*CacheEntry, error) {
	if key == "" {
		return nil, errors.New("cache key is required")
	}

	now := time.Now().UnixMilli()
	row := s.db.QueryRowContext(ctx, `
		SELECT cache_key, language, operation, output, created_at_unix_ms,
		       expires_at_unix_ms, last_access_unix_ms, hit_count
		FROM result_cache
		WHERE cache_key = ? AND expires_at_unix_ms > ?
	`, key, now)

	var e CacheEntry
	err := row.Scan(&e.CacheKey, &e.Language, &e.Operation, &e.Output,
		&e.CreatedAtUnixMs, &e.ExpiresAtUnixMs, &e.LastAccessUnixMs, &e.HitCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCacheNotFound
		}
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	// Best effort; a lost update only skews LRU order.
	_, _ = s.db.ExecContext(ctx, `
		UPDATE result_cache SET hit_count = hit_count + 1, last_access_unix_ms = ?
		WHERE cache_key = ?
	`, now, key)

	return &e, nil
}

// SetCached stores or replaces an entry.
func (s *SQLiteStore) SetCached(ctx context.Context, entry *CacheEntry) error {
	if entry == nil {
		return errors.New("cache entry cannot be nil")
	}
	if entry.CacheKey == "" {
		return errors.New("cache_key is required")
	}
	if entry.Language == "" || entry.Operation == "" {
		return errors.New("language and operation are required")
	}

	if entry.CreatedAtUnixMs == 0 {
		entry.CreatedAtUnixMs = time.Now().UnixMilli()
	}
	if entry.ExpiresAtUnixMs == 0 {
		entry.ExpiresAtUnixMs = entry.CreatedAtUnixMs + DefaultCacheTTL.Milliseconds()
	}
	if entry.LastAccessUnixMs == 0 {
		entry.LastAccessUnixMs = entry.CreatedAtUnixMs
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO result_cache (
			cache_key, language, operation, output,
			created_at_unix_ms, expires_at_unix_ms, last_access_unix_ms, hit_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.CacheKey, entry.Language, entry.Operation, entry.Output,
		entry.CreatedAtUnixMs, entry.ExpiresAtUnixMs, entry.LastAccessUnixMs, entry.HitCount,
	)
	if err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}
	return nil
}

// PruneCache removes expired entries, then the least recently accessed
// entries beyond maxEntries (0 means no bound). It returns the number of
// rows removed.
func (s *SQLiteStore) PruneCache(ctx context.Context, maxEntries int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM result_cache WHERE expires_at_unix_ms <= ?
	`, time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune expired cache entries: %w", err)
	}
	removed, _ := res.RowsAffected()

	if maxEntries > 0 {
		res, err = s.db.ExecContext(ctx, `
			DELETE FROM result_cache WHERE cache_key IN (
				SELECT cache_key FROM result_cache
				ORDER BY last_access_unix_ms DESC
				LIMIT -1 OFFSET ?
			)
		`, maxEntries)
		if err != nil {
			return removed, fmt.Errorf("failed to prune cache to %d entries: %w", maxEntries, err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	return removed, nil
}

// ClearCache removes every entry.
func (s *SQLiteStore) ClearCache(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM result_cache`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// GetCacheStats counts entries, expired entries and hits.
func (s *SQLiteStore) GetCacheStats(ctx context.Context) (*CacheStats, error) {
	var stats CacheStats
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(hit_count), 0),
		       COALESCE(SUM(CASE WHEN expires_at_unix_ms <= ? THEN 1 ELSE 0 END), 0)
		FROM result_cache
	`, time.Now().UnixMilli())
	if err := row.Scan(&stats.TotalEntries, &stats.TotalHits, &stats.ExpiredEntries); err != nil {
		return nil, fmt.Errorf("failed to get cache stats: %w", err)
	}
	return &stats, nil
}
