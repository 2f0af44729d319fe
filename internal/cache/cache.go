// Package cache memoizes formatting results.
//
// Entries live in an in-memory LRU and, when a store is configured, in the
// SQLite result_cache table. The cache is purely an optimization: every
// failure of the persistent tier degrades to a miss.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"

	"github.com/runger/clipfix/internal/lang"
	"github.com/runger/clipfix/internal/storage"
)

const (
	// DefaultMaxEntries bounds both tiers.
	DefaultMaxEntries = 1024
	// DefaultTTL is how long an entry stays valid.
	DefaultTTL = 7 * 24 * time.Hour
)

// Op is the kind of work a cached output is the result of.
type Op string

const (
	OpFormat   Op = "format"
	OpRepaired Op = "repaired+formatted"
)

// Key identifies a cached result.
type Key struct {
	Language lang.Language
	Op       Op
	Text     string
}

// Hash returns the hex sha256 of the key. Each field is length-prefixed so
// that no two distinct keys share an encoding.
func (k Key) Hash() string {
	h := sha256.New()
	var n [8]byte
	for _, field := range []string{string(k.Language), string(k.Op), k.Text} {
		binary.BigEndian.PutUint64(n[:], uint64(len(field)))
		h.Write(n[:])
		h.Write([]byte(field))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Config configures a Cache.
type Config struct {
	MaxEntries int
	TTL        time.Duration
	// Store is the persistent tier; nil keeps the cache in memory only.
	Store  storage.Store
	Logger *slog.Logger
}

// Cache is a two-tier result cache safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	lru        *lru.Cache
	ttl        time.Duration
	maxEntries int
	store      storage.Store
	logger     *slog.Logger
	metrics    *Metrics
	now        func() time.Time
}

type entry struct {
	language  lang.Language
	op        Op
	output    string
	expiresAt time.Time
}

// New creates a cache.
func New(cfg Config) *Cache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Cache{
		lru:        lru.New(cfg.MaxEntries),
		ttl:        cfg.TTL,
		maxEntries: cfg.MaxEntries,
		store:      cfg.Store,
		logger:     cfg.Logger,
		metrics:    &Metrics{},
		now:        time.Now,
	}
}

// Get returns the cached output for k.
func (c *Cache) Get(ctx context.Context, k Key) (string, bool) {
	hash := k.Hash()

	if out, ok := c.getMemory(hash, k); ok {
		c.metrics.RecordHit(LayerMemory)
		return out, true
	}
	c.metrics.RecordMiss(LayerMemory)

	if c.store == nil {
		return "", false
	}

	e, err := c.store.GetCached(ctx, hash)
	if err != nil {
		if !errors.Is(err, storage.ErrCacheNotFound) {
			c.logger.Warn("persistent cache read failed", "error", err)
		}
		c.metrics.RecordMiss(LayerPersistent)
		return "", false
	}
	if e.Language != string(k.Language) || e.Operation != string(k.Op) {
		c.metrics.RecordMiss(LayerPersistent)
		return "", false
	}

	c.metrics.RecordHit(LayerPersistent)
	c.putMemory(hash, &entry{
		language:  k.Language,
		op:        k.Op,
		output:    e.Output,
		expiresAt: time.UnixMilli(e.ExpiresAtUnixMs),
	})
	return e.Output, true
}

func (c *Cache) getMemory(hash string, k Key) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.lru.Get(hash)
	if !ok {
		return "", false
	}
	e := v.(*entry)
	if !c.now().Before(e.expiresAt) || e.language != k.Language || e.op != k.Op {
		c.lru.Remove(hash)
		return "", false
	}
	return e.output, true
}

func (c *Cache) putMemory(hash string, e *entry) {
	c.mu.Lock()
	c.lru.Add(hash, e)
	c.mu.Unlock()
}

// Put stores output for k in both tiers.
func (c *Cache) Put(ctx context.Context, k Key, output string) {
	hash := k.Hash()
	now := c.now()
	c.putMemory(hash, &entry{
		language:  k.Language,
		op:        k.Op,
		output:    output,
		expiresAt: now.Add(c.ttl),
	})

	if c.store == nil {
		return
	}
	err := c.store.SetCached(ctx, &storage.CacheEntry{
		CacheKey:         hash,
		Language:         string(k.Language),
		Operation:        string(k.Op),
		Output:           output,
		CreatedAtUnixMs:  now.UnixMilli(),
		ExpiresAtUnixMs:  now.Add(c.ttl).UnixMilli(),
		LastAccessUnixMs: now.UnixMilli(),
	})
	if err != nil {
		c.logger.Warn("persistent cache write failed", "error", err)
	}
}

// Stats describes both tiers.
type Stats struct {
	MemoryEntries int
	Memory        LayerStats
	Persistent    LayerStats
	// Stored is nil when there is no persistent tier.
	Stored *storage.CacheStats
}

// Stats returns a snapshot of the counters and, if available, the
// persistent tier's table statistics.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	c.mu.Lock()
	n := c.lru.Len()
	c.mu.Unlock()

	snap := c.metrics.Snapshot()
	s := Stats{MemoryEntries: n, Memory: snap.Memory, Persistent: snap.Persistent}
	if c.store == nil {
		return s, nil
	}
	stored, err := c.store.GetCacheStats(ctx)
	if err != nil {
		return s, err
	}
	s.Stored = stored
	return s, nil
}

// Clear empties both tiers and returns the number of persistent rows
// removed.
func (c *Cache) Clear(ctx context.Context) (int64, error) {
	c.mu.Lock()
	c.lru.Clear()
	c.mu.Unlock()

	if c.store == nil {
		return 0, nil
	}
	return c.store.ClearCache(ctx)
}

// Prune drops expired persistent entries and trims the table to the entry
// bound, least recently accessed first.
func (c *Cache) Prune(ctx context.Context) (int64, error) {
	if c.store == nil {
		return 0, nil
	}
	return c.store.PruneCache(ctx, c.maxEntries)
}
