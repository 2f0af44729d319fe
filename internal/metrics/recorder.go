// Package metrics records repair attempts off the hot path.
//
// Record never blocks: metrics go into a bounded queue drained by a single
// writer goroutine. When the queue is full the oldest pending metric is
// dropped, so a slow or broken store can only lose history, never stall a
// repair.
package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/runger/clipfix/internal/storage"
)

// DefaultQueueSize bounds the number of unwritten metrics.
const DefaultQueueSize = 256

// DefaultWriteTimeout bounds a single write to the sink.
const DefaultWriteTimeout = 2 * time.Second

// Sink persists repair metrics. *storage.SQLiteStore satisfies it.
type Sink interface {
	InsertRepairMetric(ctx context.Context, m *storage.RepairMetric) error
}

// Config configures a Recorder.
type Config struct {
	Sink         Sink
	QueueSize    int
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Stats holds recorder counters.
type Stats struct {
	Pending  int
	Recorded int64
	Written  int64
	Dropped  int64
	Failed   int64
}

// Recorder is an asynchronous, drop-oldest metrics writer.
type Recorder struct {
	sink         Sink
	logger       *slog.Logger
	writeTimeout time.Duration
	maxSize      int

	mu      sync.Mutex
	pending []storage.RepairMetric
	wake    chan struct{}
	closed  bool
	warned  bool
	stats   Stats

	done chan struct{}
}

// NewRecorder starts a recorder. A nil sink yields a recorder that counts
// and discards.
func NewRecorder(cfg Config) *Recorder {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	r := &Recorder{
		sink:         cfg.Sink,
		logger:       cfg.Logger,
		writeTimeout: cfg.WriteTimeout,
		maxSize:      cfg.QueueSize,
		pending:      make([]storage.RepairMetric, 0, cfg.QueueSize),
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	go r.loop()
	return r
}

// Record queues m. It returns false if the recorder is closed.
func (r *Recorder) Record(m storage.RepairMetric) bool {
	if m.RecordedAtUnixMs == 0 {
		m.RecordedAtUnixMs = time.Now().UnixMilli()
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	if len(r.pending) >= r.maxSize {
		r.pending = r.pending[1:]
		r.stats.Dropped++
		if !r.warned {
			r.warned = true
			r.logger.Warn("metrics queue full, dropping oldest metric", "queue_size", r.maxSize)
		}
	}
	r.pending = append(r.pending, m)
	r.stats.Recorded++

	// wake is closed under mu, so the send must happen under it too.
	select {
	case r.wake <- struct{}{}:
	default:
	}
	r.mu.Unlock()
	return true
}

// Stats returns a snapshot of the counters.
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.Pending = len(r.pending)
	return s
}

// Close stops accepting metrics, writes everything still queued and waits
// for the writer to exit. ctx bounds the wait.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.wake)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) loop() {
	defer close(r.done)
	for range r.wake {
		r.drain()
	}
	r.drain()
}

func (r *Recorder) drain() {
	for {
		r.mu.Lock()
		if len(r.pending) == 0 {
			r.warned = false
			r.mu.Unlock()
			return
		}
		batch := r.pending
		r.pending = make([]storage.RepairMetric, 0, r.maxSize)
		r.mu.Unlock()

		for i := range batch {
			r.write(&batch[i])
		}
	}
}

func (r *Recorder) write(m *storage.RepairMetric) {
	if r.sink == nil {
		r.count(true)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()

	if err := r.sink.InsertRepairMetric(ctx, m); err != nil {
		r.logger.Warn("failed to write repair metric", "language", m.Language, "error", err)
		r.count(false)
		return
	}
	r.count(true)
}

func (r *Recorder) count(ok bool) {
	r.mu.Lock()
	if ok {
		r.stats.Written++
	} else {
		r.stats.Failed++
	}
	r.mu.Unlock()
}
