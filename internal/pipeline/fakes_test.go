package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/runger/clipfix/internal/format"
	"github.com/runger/clipfix/internal/lang"
	"github.com/runger/clipfix/internal/storage"
)

// fakeRunner serves formatters from a map of functions. IDs missing from
// the map are unavailable.
type fakeRunner struct {
	funcs map[string]func(text string) (string, error)
	delay func(text string) time.Duration

	mu        sync.Mutex
	calls     []string
	active    atomic.Int32
	maxActive atomic.Int32
}

func (f *fakeRunner) Run(ctx context.Context, id string, _ lang.Language, text string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.mu.Unlock()

	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxActive.Load()
		if n <= m || f.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	if f.delay != nil {
		select {
		case <-time.After(f.delay(text)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	fn, ok := f.funcs[id]
	if !ok {
		return "", fmt.Errorf("%w: %s is not installed", format.ErrUnavailable, id)
	}
	return fn(text)
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func failing(msg string) func(string) (string, error) {
	return func(string) (string, error) {
		return "", fmt.Errorf("%w: %s", format.ErrFailed, msg)
	}
}

func identity(text string) (string, error) { return text + "\n", nil }

type fakeBackend struct {
	reply string
	err   error
	block bool
	calls atomic.Int32
}

func (b *fakeBackend) Name() string    { return "fake" }
func (b *fakeBackend) Available() bool { return true }

func (b *fakeBackend) Generate(ctx context.Context, _ string, _ int) (string, error) {
	b.calls.Add(1)
	if b.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return b.reply, b.err
}

type fakeRecorder struct {
	mu      sync.Mutex
	metrics []storage.RepairMetric
}

func (r *fakeRecorder) Record(m storage.RepairMetric) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, m)
	return true
}

func (r *fakeRecorder) all() []storage.RepairMetric {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]storage.RepairMetric(nil), r.metrics...)
}
