package provider

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// BreakerState is the state of a Breaker.
type BreakerState int

const (
	// BreakerClosed lets every call through.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects calls until the cooldown has passed.
	BreakerOpen
	// BreakerHalfOpen lets one trial call through.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// Threshold is the number of failures within Window that opens the
	// breaker. Default: 3
	Threshold int
	// Window is the failure counting window. Default: 1 minute
	Window time.Duration
	// Cooldown is how long the breaker stays open. Default: 30 seconds
	Cooldown time.Duration
	Logger   *slog.Logger
}

// Breaker stops calling a backend that keeps failing.
type Breaker struct {
	mu sync.Mutex

	threshold int
	window    time.Duration
	cooldown  time.Duration
	logger    *slog.Logger

	state    BreakerState
	failures []time.Time
	openedAt time.Time
	trial    bool
	rejected int64
}

// NewBreaker creates a Breaker. A nil config uses the defaults.
func NewBreaker(cfg *BreakerConfig) *Breaker {
	if cfg == nil {
		cfg = &BreakerConfig{}
	}
	b := &Breaker{
		threshold: cfg.Threshold,
		window:    cfg.Window,
		cooldown:  cfg.Cooldown,
		logger:    cfg.Logger,
	}
	if b.threshold <= 0 {
		b.threshold = 3
	}
	if b.window <= 0 {
		b.window = time.Minute
	}
	if b.cooldown <= 0 {
		b.cooldown = 30 * time.Second
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// AllowAt reports whether a call may start at now.
func (b *Breaker) AllowAt(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if now.Sub(b.openedAt) < b.cooldown {
			b.rejected++
			return false
		}
		b.state = BreakerHalfOpen
		b.trial = true
		return true
	case BreakerHalfOpen:
		if b.trial {
			b.rejected++
			return false
		}
		b.trial = true
		return true
	default:
		return true
	}
}

// RecordAt records the outcome of a call that AllowAt let through.
func (b *Breaker) RecordAt(now time.Time, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.state != BreakerClosed {
			b.logger.Info("backend circuit closed")
		}
		b.state = BreakerClosed
		b.failures = b.failures[:0]
		b.trial = false
		return
	}

	if b.state == BreakerHalfOpen {
		b.open(now)
		return
	}

	cutoff := now.Add(-b.window)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if !t.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = append(kept, now)
	if len(b.failures) >= b.threshold {
		b.open(now)
	}
}

func (b *Breaker) open(now time.Time) {
	b.state = BreakerOpen
	b.openedAt = now
	b.trial = false
	b.logger.Warn("backend circuit opened",
		"failures", len(b.failures),
		"threshold", b.threshold,
		"cooldown", b.cooldown,
	)
}

// abandon releases a half-open trial slot without recording an outcome.
func (b *Breaker) abandon() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerHalfOpen {
		b.trial = false
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Rejected returns the number of calls refused while open.
func (b *Breaker) Rejected() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rejected
}

// Reset closes the breaker.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = b.failures[:0]
	b.trial = false
}

// Guarded wraps a Backend with a Breaker.
type Guarded struct {
	Backend
	breaker *Breaker
	now     func() time.Time
}

// Guard returns b protected by breaker.
func Guard(b Backend, breaker *Breaker) *Guarded {
	return &Guarded{Backend: b, breaker: breaker, now: time.Now}
}

// Model forwards to the wrapped backend.
func (g *Guarded) Model() string {
	if m, ok := g.Backend.(Modeler); ok {
		return m.Model()
	}
	return ""
}

// Breaker returns the guarding breaker.
func (g *Guarded) Breaker() *Breaker { return g.breaker }

// Generate fails fast with ErrCircuitOpen while the breaker is open.
// Cancellation by the caller is not counted as a backend failure.
func (g *Guarded) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if !g.breaker.AllowAt(g.now()) {
		return "", ErrCircuitOpen
	}
	reply, err := g.Backend.Generate(ctx, prompt, maxTokens)
	if errors.Is(err, context.Canceled) {
		g.breaker.abandon()
		return reply, err
	}
	g.breaker.RecordAt(g.now(), err)
	return reply, err
}
