package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runFor(t *testing.T, s *Scheduler, d time.Duration, tick TickFunc) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	err := s.Run(ctx, tick)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSchedulerKeepsFiringAfterErrorsAndPanics(t *testing.T) {
	var calls, panics atomic.Int32
	s := New(Options{
		Interval:  20 * time.Millisecond,
		Immediate: true,
		OnPanic:   func(time.Time, any) { panics.Add(1) },
	}, zerolog.Nop())

	runFor(t, s, 210*time.Millisecond, func(ctx context.Context, at time.Time) error {
		n := calls.Add(1)
		switch n % 3 {
		case 1:
			return errors.New("venue down")
		case 2:
			panic("malformed payload")
		}
		return nil
	})

	assert.GreaterOrEqual(t, calls.Load(), int32(5))
	assert.GreaterOrEqual(t, panics.Load(), int32(1))
}

func TestSchedulerSkipsOverlappingTicks(t *testing.T) {
	var running, maxRunning, calls atomic.Int32
	var skips atomic.Int32
	s := New(Options{
		Interval:  10 * time.Millisecond,
		Immediate: true,
		OnSkip:    func(time.Time) { skips.Add(1) },
	}, zerolog.Nop())

	runFor(t, s, 200*time.Millisecond, func(ctx context.Context, at time.Time) error {
		calls.Add(1)
		cur := running.Add(1)
		for {
			prev := maxRunning.Load()
			if cur <= prev || maxRunning.CompareAndSwap(prev, cur) {
				break
			}
		}
		time.Sleep(45 * time.Millisecond)
		running.Add(-1)
		return nil
	})

	assert.Equal(t, int32(1), maxRunning.Load(), "ticks must never overlap")
	assert.Greater(t, skips.Load(), int32(0))
	assert.Equal(t, uint64(skips.Load()), s.Skipped())
	assert.Less(t, calls.Load(), int32(10))
}

func TestSchedulerWaitsForInFlightTick(t *testing.T) {
	var finished atomic.Bool
	s := New(Options{Interval: time.Hour, Immediate: true}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_ = s.Run(ctx, func(ctx context.Context, at time.Time) error {
		time.Sleep(60 * time.Millisecond)
		finished.Store(true)
		return nil
	})

	assert.True(t, finished.Load())
}

func TestNextTickAlignment(t *testing.T) {
	s := New(Options{Interval: 5 * time.Second, AlignToStart: true}, zerolog.Nop())
	now := time.Date(2026, 1, 1, 0, 0, 3, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 5, 0, time.UTC), s.nextTick(now))

	s = New(Options{Interval: 5 * time.Second}, zerolog.Nop())
	assert.Equal(t, now.Add(5*time.Second), s.nextTick(now))
}

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	assert.Panics(t, func() { New(Options{}, zerolog.Nop()) })
}
