package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tolerance = float64(time.Millisecond)

func TestIntervalLimiter(t *testing.T) {
	ctx := context.Background()

	t.Run("first request is not delayed", func(t *testing.T) {
		clock := NewManualClock(time.Unix(0, 0))
		l := NewIntervalLimiter(3*time.Second, clock)

		require.NoError(t, l.Wait(ctx))
		assert.Empty(t, clock.Sleeps())
	})

	t.Run("back to back requests are spaced by interval", func(t *testing.T) {
		clock := NewManualClock(time.Unix(0, 0))
		l := NewIntervalLimiter(3*time.Second, clock)

		for i := 0; i < 4; i++ {
			require.NoError(t, l.Wait(ctx))
		}

		sleeps := clock.Sleeps()
		require.Len(t, sleeps, 3)
		for _, d := range sleeps {
			assert.InDelta(t, float64(3*time.Second), float64(d), tolerance)
		}
	})

	t.Run("elapsed time counts toward the interval", func(t *testing.T) {
		clock := NewManualClock(time.Unix(0, 0))
		l := NewIntervalLimiter(time.Second, clock)

		require.NoError(t, l.Wait(ctx))
		clock.Advance(400 * time.Millisecond)
		require.NoError(t, l.Wait(ctx))

		sleeps := clock.Sleeps()
		require.Len(t, sleeps, 1)
		assert.InDelta(t, float64(600*time.Millisecond), float64(sleeps[0]), tolerance)
	})

	t.Run("no delay after a long pause", func(t *testing.T) {
		clock := NewManualClock(time.Unix(0, 0))
		l := NewIntervalLimiter(time.Second, clock)

		require.NoError(t, l.Wait(ctx))
		clock.Advance(time.Minute)
		require.NoError(t, l.Wait(ctx))
		assert.Empty(t, clock.Sleeps())
	})

	t.Run("reset forgets previous request", func(t *testing.T) {
		clock := NewManualClock(time.Unix(0, 0))
		l := NewIntervalLimiter(time.Second, clock)

		require.NoError(t, l.Wait(ctx))
		l.Reset()
		require.NoError(t, l.Wait(ctx))
		assert.Empty(t, clock.Sleeps())
	})

	t.Run("canceled context", func(t *testing.T) {
		clock := NewManualClock(time.Unix(0, 0))
		l := NewIntervalLimiter(time.Second, clock)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := l.Wait(cctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()

	t.Run("classes do not delay each other", func(t *testing.T) {
		clock := NewManualClock(time.Unix(0, 0))
		reg := NewRegistry(clock, DefaultIntervals())

		require.NoError(t, reg.Wait(ctx, ClassSearch))
		require.NoError(t, reg.Wait(ctx, ClassTimeline))
		require.NoError(t, reg.Wait(ctx, ClassLookup))
		assert.Empty(t, clock.Sleeps())
	})

	t.Run("same class is spaced by its interval", func(t *testing.T) {
		clock := NewManualClock(time.Unix(0, 0))
		reg := NewRegistry(clock, DefaultIntervals())

		require.NoError(t, reg.Wait(ctx, ClassTimeline))
		require.NoError(t, reg.Wait(ctx, ClassTimeline))

		sleeps := clock.Sleeps()
		require.Len(t, sleeps, 1)
		assert.InDelta(t, float64(time.Second), float64(sleeps[0]), tolerance)
	})

	t.Run("unknown class uses fallback interval", func(t *testing.T) {
		clock := NewManualClock(time.Unix(0, 0))
		reg := NewRegistry(clock, nil)

		assert.Equal(t, FallbackInterval, reg.Interval(Class("other")))
		require.NoError(t, reg.Wait(ctx, Class("other")))
		require.NoError(t, reg.Wait(ctx, Class("other")))
		assert.InDelta(t, float64(FallbackInterval), float64(clock.Elapsed()), tolerance)
	})

	t.Run("observer sees wait durations", func(t *testing.T) {
		clock := NewManualClock(time.Unix(0, 0))
		reg := NewRegistry(clock, map[Class]time.Duration{ClassSearch: 2 * time.Second})

		var observed []time.Duration
		reg.SetObserver(func(c Class, d time.Duration) {
			assert.Equal(t, ClassSearch, c)
			observed = append(observed, d)
		})

		require.NoError(t, reg.Wait(ctx, ClassSearch))
		require.NoError(t, reg.Wait(ctx, ClassSearch))

		require.Len(t, observed, 2)
		assert.Zero(t, observed[0])
		assert.InDelta(t, float64(2*time.Second), float64(observed[1]), tolerance)
	})
}

func TestRealClockSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RealClock().Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}
