package cache

import "sync/atomic"

// Layer identifies which tier served a lookup.
type Layer string

const (
	LayerMemory     Layer = "memory"
	LayerPersistent Layer = "persistent"
)

// Metrics tracks hits and misses per tier with lock-free atomics.
type Metrics struct {
	memoryHits       atomic.Int64
	memoryMisses     atomic.Int64
	persistentHits   atomic.Int64
	persistentMisses atomic.Int64
}

// RecordHit increments the hit counter for layer.
func (m *Metrics) RecordHit(layer Layer) {
	switch layer {
	case LayerMemory:
		m.memoryHits.Add(1)
	case LayerPersistent:
		m.persistentHits.Add(1)
	}
}

// RecordMiss increments the miss counter for layer.
func (m *Metrics) RecordMiss(layer Layer) {
	switch layer {
	case LayerMemory:
		m.memoryMisses.Add(1)
	case LayerPersistent:
		m.persistentMisses.Add(1)
	}
}

// LayerStats holds hit/miss statistics for one tier.
type LayerStats struct {
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	HitRate  float64 `json:"hit_rate"`
	Requests int64   `json:"requests"`
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Memory     LayerStats `json:"memory"`
	Persistent LayerStats `json:"persistent"`
}

// Snapshot returns the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Memory:     layerStats(m.memoryHits.Load(), m.memoryMisses.Load()),
		Persistent: layerStats(m.persistentHits.Load(), m.persistentMisses.Load()),
	}
}

func layerStats(hits, misses int64) LayerStats {
	total := hits + misses
	var rate float64
	if total > 0 {
		rate = float64(hits) / float64(total)
	}
	return LayerStats{Hits: hits, Misses: misses, HitRate: rate, Requests: total}
}
