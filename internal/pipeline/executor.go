package pipeline

import (
	"context"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/runger/clipfix/internal/segment"
)

// DefaultMinSegments is the smallest batch dispatched in parallel.
const DefaultMinSegments = 3

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	// Enabled allows parallel dispatch. When false every batch runs
	// sequentially.
	Enabled     bool
	MinSegments int
	// MaxWorkers caps the pool. Zero means runtime.NumCPU().
	MaxWorkers int
	Logger     *slog.Logger
}

// Executor processes independent segments, in parallel when the batch is
// large enough, and returns outcomes in input order.
type Executor struct {
	enabled     bool
	minSegments int
	maxWorkers  int
	logger      *slog.Logger
}

// NewExecutor creates an executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.MinSegments <= 0 {
		cfg.MinSegments = DefaultMinSegments
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{
		enabled:     cfg.Enabled,
		minSegments: cfg.MinSegments,
		maxWorkers:  cfg.MaxWorkers,
		logger:      cfg.Logger,
	}
}

// Workers returns the pool size used for n segments; 1 means sequential.
func (e *Executor) Workers(n int) int {
	if !e.enabled || n < e.minSegments {
		return 1
	}
	return min(n, e.maxWorkers)
}

// ProcessFunc handles one segment. It returns an error only when ctx is
// cancelled.
type ProcessFunc func(ctx context.Context, seg segment.Segment) (Outcome, error)

// ProcessAll runs fn over segs. outcomes[i] always belongs to segs[i]. If
// ctx is cancelled, every partial result is discarded and ctx.Err() is
// returned.
func (e *Executor) ProcessAll(ctx context.Context, segs []segment.Segment, fn ProcessFunc) ([]Outcome, error) {
	outcomes := make([]Outcome, len(segs))
	workers := e.Workers(len(segs))

	if workers <= 1 {
		for i, seg := range segs {
			o, err := fn(ctx, seg)
			if err != nil {
				return nil, err
			}
			outcomes[i] = o
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return outcomes, nil
	}

	e.logger.Debug("dispatching segments in parallel", "segments", len(segs), "workers", workers)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, seg := range segs {
		g.Go(func() error {
			o, err := fn(gctx, seg)
			if err != nil {
				return err
			}
			outcomes[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}
