// Package format runs deterministic formatters over code segments.
//
// A Formatter either returns replacement text or an error wrapping one of
// the sentinel errors below. The Registry adds what every call needs
// regardless of the formatter: a hard timeout, serialization of formatters
// that are not safe to run concurrently, and output validation.
package format

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/semaphore"

	"github.com/runger/clipfix/internal/lang"
)

// DefaultTimeout bounds a single formatter invocation.
const DefaultTimeout = 10 * time.Second

var (
	// ErrUnavailable means the formatter is not installed or not registered.
	ErrUnavailable = errors.New("formatter unavailable")
	// ErrTimeout means the formatter exceeded its time budget.
	ErrTimeout = errors.New("formatter timed out")
	// ErrFailed means the formatter rejected the input.
	ErrFailed = errors.New("formatter failed")
	// ErrInvalidOutput means the formatter claimed success with unusable output.
	ErrInvalidOutput = errors.New("formatter produced invalid output")
)

// Formatter normalizes source text for one or more languages.
type Formatter interface {
	// ID is the name used in knowledge profiles, e.g. "ruff".
	ID() string
	// Available reports whether the formatter can run on this machine.
	Available() bool
	// ConcurrentSafe is false for tools that must not run in parallel.
	ConcurrentSafe() bool
	// Format returns the formatted text.
	Format(ctx context.Context, l lang.Language, text string) (string, error)
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Logger  *slog.Logger
	Timeout time.Duration
}

// Registry holds formatters by ID and runs them.
type Registry struct {
	logger     *slog.Logger
	formatters map[string]Formatter
	locks      map[string]*semaphore.Weighted
	timeout    time.Duration
	mu         sync.RWMutex
}

// NewRegistry returns an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Registry{
		logger:     cfg.Logger,
		formatters: make(map[string]Formatter),
		locks:      make(map[string]*semaphore.Weighted),
		timeout:    cfg.Timeout,
	}
}

// Register adds or replaces a formatter.
func (r *Registry) Register(f Formatter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.formatters[f.ID()] = f
	if !f.ConcurrentSafe() {
		r.locks[f.ID()] = semaphore.NewWeighted(1)
	} else {
		delete(r.locks, f.ID())
	}
}

// Get returns a formatter by ID.
func (r *Registry) Get(id string) (Formatter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.formatters[id]
	return f, ok
}

// IDs returns the registered IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.formatters))
	for id := range r.formatters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Availability maps every registered ID to whether it can run.
func (r *Registry) Availability() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]bool, len(r.formatters))
	for id, f := range r.formatters {
		out[id] = f.Available()
	}
	return out
}

// Run invokes the formatter id on text. Errors wrap ErrUnavailable,
// ErrTimeout, ErrFailed or ErrInvalidOutput; cancellation of ctx itself is
// returned as ctx.Err().
func (r *Registry) Run(ctx context.Context, id string, l lang.Language, text string) (string, error) {
	f, ok := r.Get(id)
	if !ok {
		return "", fmt.Errorf("%w: %s is not registered", ErrUnavailable, id)
	}
	if !f.Available() {
		return "", fmt.Errorf("%w: %s is not installed", ErrUnavailable, id)
	}

	r.mu.RLock()
	lock := r.locks[id]
	r.mu.RUnlock()
	if lock != nil {
		if err := lock.Acquire(ctx, 1); err != nil {
			return "", err
		}
		defer lock.Release(1)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	out, err := f.Format(callCtx, l, text)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
			err = fmt.Errorf("%w: %s after %v", ErrTimeout, id, r.timeout)
		}
		r.logger.Debug("formatter failed", "formatter", id, "language", l, "error", err)
		return "", err
	}

	if err := validateOutput(text, out); err != nil {
		return "", fmt.Errorf("%s: %w", id, err)
	}
	r.logger.Debug("formatter succeeded", "formatter", id, "language", l, "duration", time.Since(start))
	return out, nil
}

func validateOutput(in, out string) error {
	if !utf8.ValidString(out) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidOutput)
	}
	if strings.TrimSpace(out) == "" && strings.TrimSpace(in) != "" {
		return fmt.Errorf("%w: empty output", ErrInvalidOutput)
	}
	return nil
}
