package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/kioskbox/internal/app/resilience"
	"github.com/osa030/kioskbox/internal/app/timers/timerstest"
)

var errBoom = errors.New("boom")

func newGate(clock *timerstest.Clock, backoffPolicy string) *resilience.Gate {
	return resilience.NewGate(resilience.Config{
		Name:        "test",
		MaxAttempts: 5,
		RetryDelay:  5 * time.Second,
		Cooldown:    30 * time.Second,
		Backoff:     backoffPolicy,
	}, clock)
}

func failing(calls *int) func(context.Context) error {
	return func(context.Context) error {
		*calls++
		return errBoom
	}
}

func TestGate_OpensAfterExactlyKFailures(t *testing.T) {
	clock := timerstest.NewClock(time.Unix(0, 0))
	g := newGate(clock, resilience.BackoffConstant)
	ctx := context.Background()

	calls := 0
	for i := 0; i < 4; i++ {
		err := g.Attempt(ctx, failing(&calls))
		require.ErrorIs(t, err, errBoom)
		assert.False(t, g.Open(), "circuit must stay closed after %d failures", i+1)
	}

	err := g.Attempt(ctx, failing(&calls))
	require.ErrorIs(t, err, errBoom)
	assert.True(t, g.Open())
	assert.Equal(t, 5, calls)

	// Further attempts do not reach the network.
	err = g.Attempt(ctx, failing(&calls))
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 5, calls)
}

func TestGate_CooldownPermitsOneTrial(t *testing.T) {
	clock := timerstest.NewClock(time.Unix(0, 0))
	g := newGate(clock, resilience.BackoffConstant)
	ctx := context.Background()

	calls := 0
	for i := 0; i < 5; i++ {
		_ = g.Attempt(ctx, failing(&calls))
	}
	require.True(t, g.Open())
	assert.Equal(t, 30*time.Second, g.Remaining())

	clock.Advance(29 * time.Second)
	assert.Equal(t, time.Second, g.Remaining())
	assert.ErrorIs(t, g.Attempt(ctx, failing(&calls)), resilience.ErrCircuitOpen)
	assert.Equal(t, 5, calls)

	clock.Advance(time.Second)
	assert.False(t, g.Open())
	st := g.State()
	assert.True(t, st.HalfOpen)
	assert.Equal(t, 0, st.Attempts)

	err := g.Attempt(ctx, func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 6, calls)

	st = g.State()
	assert.False(t, st.HalfOpen)
	assert.False(t, st.CircuitOpen)
	assert.True(t, st.Connected)
	assert.Equal(t, 0, st.Attempts)
}

func TestGate_HalfOpenFailureReopensWithSameCooldown(t *testing.T) {
	clock := timerstest.NewClock(time.Unix(0, 0))
	g := newGate(clock, resilience.BackoffConstant)
	ctx := context.Background()

	calls := 0
	for i := 0; i < 5; i++ {
		_ = g.Attempt(ctx, failing(&calls))
	}
	clock.Advance(30 * time.Second)

	require.ErrorIs(t, g.Attempt(ctx, failing(&calls)), errBoom)
	assert.True(t, g.Open())
	assert.Equal(t, 30*time.Second, g.Remaining())
}

func TestGate_HalfOpenAllowsSingleConcurrentTrial(t *testing.T) {
	clock := timerstest.NewClock(time.Unix(0, 0))
	g := newGate(clock, resilience.BackoffConstant)
	ctx := context.Background()

	calls := 0
	for i := 0; i < 5; i++ {
		_ = g.Attempt(ctx, failing(&calls))
	}
	clock.Advance(30 * time.Second)

	var nested error
	err := g.Attempt(ctx, func(context.Context) error {
		nested = g.Attempt(ctx, failing(&calls))
		return nil
	})
	require.NoError(t, err)
	assert.ErrorIs(t, nested, resilience.ErrCircuitOpen)
}

func TestGate_SuccessResetsCounter(t *testing.T) {
	clock := timerstest.NewClock(time.Unix(0, 0))
	g := newGate(clock, resilience.BackoffConstant)
	ctx := context.Background()

	calls := 0
	for i := 0; i < 4; i++ {
		_ = g.Attempt(ctx, failing(&calls))
	}
	require.NoError(t, g.Attempt(ctx, func(context.Context) error { return nil }))
	assert.Equal(t, 0, g.State().Attempts)

	for i := 0; i < 4; i++ {
		_ = g.Attempt(ctx, failing(&calls))
	}
	assert.False(t, g.Open())
}

func TestGate_CancellationIsNotAFailure(t *testing.T) {
	clock := timerstest.NewClock(time.Unix(0, 0))
	g := newGate(clock, resilience.BackoffConstant)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := g.Attempt(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, g.State().Attempts)
}

func TestGate_OnChange(t *testing.T) {
	clock := timerstest.NewClock(time.Unix(0, 0))
	g := newGate(clock, resilience.BackoffConstant)
	ctx := context.Background()

	var seen []resilience.Transition
	g.OnChange(func(tr resilience.Transition, _ resilience.State) {
		seen = append(seen, tr)
	})

	calls := 0
	for i := 0; i < 5; i++ {
		_ = g.Attempt(ctx, failing(&calls))
	}
	clock.Advance(30 * time.Second)
	require.NoError(t, g.Attempt(ctx, func(context.Context) error { return nil }))

	assert.Equal(t, []resilience.Transition{
		resilience.TransitionOpened,
		resilience.TransitionHalfOpen,
		resilience.TransitionClosed,
	}, seen)
}

func TestGate_ResetCancelsCooldown(t *testing.T) {
	clock := timerstest.NewClock(time.Unix(0, 0))
	g := newGate(clock, resilience.BackoffConstant)
	ctx := context.Background()

	halfOpened := false
	g.OnChange(func(tr resilience.Transition, _ resilience.State) {
		if tr == resilience.TransitionHalfOpen {
			halfOpened = true
		}
	})

	calls := 0
	for i := 0; i < 5; i++ {
		_ = g.Attempt(ctx, failing(&calls))
	}
	g.Reset()
	clock.Advance(time.Minute)

	assert.False(t, halfOpened)
	assert.Equal(t, resilience.State{}, g.State())
}

func TestGate_RetryDelay(t *testing.T) {
	tests := []struct {
		name     string
		policy   string
		min, max []time.Duration
	}{
		{
			name:   "constant",
			policy: resilience.BackoffConstant,
			min:    []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second},
			max:    []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second},
		},
		{
			name:   "exponential with jitter",
			policy: resilience.BackoffExponential,
			min:    []time.Duration{2500 * time.Millisecond, 5 * time.Second, 10 * time.Second},
			max:    []time.Duration{7500 * time.Millisecond, 15 * time.Second, 30 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGate(timerstest.NewClock(time.Unix(0, 0)), tt.policy)
			for i := range tt.min {
				d := g.RetryDelay()
				assert.GreaterOrEqual(t, d, tt.min[i], "delay %d", i)
				assert.LessOrEqual(t, d, tt.max[i], "delay %d", i)
			}
		})
	}
}

func TestGate_ExponentialDelayCappedAtCooldown(t *testing.T) {
	g := newGate(timerstest.NewClock(time.Unix(0, 0)), resilience.BackoffExponential)
	for i := 0; i < 20; i++ {
		assert.LessOrEqual(t, g.RetryDelay(), 45*time.Second)
	}
}
