package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every timer fire.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Name         string
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
	// Immediate fires the first tick as soon as Run starts.
	Immediate bool
	// OnSkip is called when a fire is dropped because the previous tick is
	// still in flight.
	OnSkip func(at time.Time)
	// OnPanic is called after a tick panic has been recovered.
	OnPanic func(at time.Time, v any)
}

// Scheduler fires ticks on a fixed period independent of tick duration. A
// fire that arrives while a tick is in flight is skipped, never queued.
type Scheduler struct {
	opts     Options
	logger   zerolog.Logger
	inFlight atomic.Bool
	skipped  atomic.Uint64
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	l := logger.With().Str("component", "scheduler")
	if opts.Name != "" {
		l = l.Str("instrument", opts.Name)
	}
	return &Scheduler{opts: opts, logger: l.Logger()}
}

// Skipped returns how many fires were dropped by the overlap guard.
func (s *Scheduler) Skipped() uint64 {
	return s.skipped.Load()
}

// Run blocks, firing tick every interval until ctx is cancelled, then waits
// for the in-flight tick to return.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if s.opts.Immediate {
		s.fire(ctx, &wg, tick, time.Now().UTC())
	}

	next := s.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = s.nextTick(time.Now().UTC())
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		s.fire(ctx, &wg, tick, next)
		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) fire(ctx context.Context, wg *sync.WaitGroup, tick TickFunc, at time.Time) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.logger.Warn().Time("at", at).Msg("previous tick still in flight; skipping")
		if s.opts.OnSkip != nil {
			s.opts.OnSkip(at)
		}
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer s.inFlight.Store(false)

		if err := s.runIsolated(ctx, tick, at); err != nil {
			s.logger.Error().Err(err).Time("at", at).Msg("tick execution failed")
		}
	}()
}

// runIsolated converts a tick panic into an error so the timer keeps firing.
func (s *Scheduler) runIsolated(ctx context.Context, tick TickFunc, at time.Time) (err error) {
	defer func() {
		if v := recover(); v != nil {
			s.logger.Error().Interface("panic", v).Bytes("stack", debug.Stack()).Time("at", at).Msg("tick panicked")
			if s.opts.OnPanic != nil {
				s.opts.OnPanic(at, v)
			}
			err = fmt.Errorf("tick panic: %v", v)
		}
	}()
	return tick(ctx, at)
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	bucket := now.Truncate(s.opts.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}
