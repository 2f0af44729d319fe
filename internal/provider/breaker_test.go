package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_Defaults(t *testing.T) {
	b := NewBreaker(nil)
	assert.Equal(t, 3, b.threshold)
	assert.Equal(t, time.Minute, b.window)
	assert.Equal(t, 30*time.Second, b.cooldown)
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker(&BreakerConfig{Threshold: 2, Window: time.Minute, Cooldown: 10 * time.Second})
	now := time.Now()

	require.True(t, b.AllowAt(now))
	b.RecordAt(now, errBoom)
	assert.Equal(t, BreakerClosed, b.State())

	require.True(t, b.AllowAt(now))
	b.RecordAt(now, errBoom)
	assert.Equal(t, BreakerOpen, b.State())

	assert.False(t, b.AllowAt(now.Add(time.Second)))
	assert.Equal(t, int64(1), b.Rejected())
}

func TestBreaker_FailuresOutsideWindowDoNotCount(t *testing.T) {
	b := NewBreaker(&BreakerConfig{Threshold: 2, Window: time.Second})
	now := time.Now()

	b.RecordAt(now, errBoom)
	b.RecordAt(now.Add(2*time.Second), errBoom)
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_HalfOpenTrial(t *testing.T) {
	b := NewBreaker(&BreakerConfig{Threshold: 1, Cooldown: time.Second})
	now := time.Now()
	b.RecordAt(now, errBoom)
	require.Equal(t, BreakerOpen, b.State())

	later := now.Add(2 * time.Second)
	require.True(t, b.AllowAt(later))
	assert.Equal(t, BreakerHalfOpen, b.State())
	assert.False(t, b.AllowAt(later), "only one trial at a time")

	b.RecordAt(later, errBoom)
	assert.Equal(t, BreakerOpen, b.State())

	evenLater := later.Add(2 * time.Second)
	require.True(t, b.AllowAt(evenLater))
	b.RecordAt(evenLater, nil)
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBreaker(&BreakerConfig{Threshold: 1})
	b.RecordAt(time.Now(), errBoom)
	b.Reset()
	assert.Equal(t, BreakerClosed, b.State())
	assert.True(t, b.AllowAt(time.Now()))
}

func TestBreakerState_String(t *testing.T) {
	assert.Equal(t, "closed", BreakerClosed.String())
	assert.Equal(t, "open", BreakerOpen.String())
	assert.Equal(t, "half-open", BreakerHalfOpen.String())
	assert.Equal(t, "unknown", BreakerState(9).String())
}

func TestGuarded_FailsFastWhenOpen(t *testing.T) {
	fb := &fakeBackend{name: "anthropic", available: true, err: errBoom}
	g := Guard(fb, NewBreaker(&BreakerConfig{Threshold: 2, Cooldown: time.Hour}))

	for i := 0; i < 2; i++ {
		_, err := g.Generate(context.Background(), "p", 10)
		assert.ErrorIs(t, err, errBoom)
	}
	_, err := g.Generate(context.Background(), "p", 10)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), fb.calls.Load())
	assert.Equal(t, "anthropic", g.Name())
}

func TestGuarded_CancellationIsNotAFailure(t *testing.T) {
	fb := &fakeBackend{name: "openai", available: true}
	g := Guard(fb, NewBreaker(&BreakerConfig{Threshold: 1}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Generate(ctx, "p", 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, BreakerClosed, g.Breaker().State())
}
