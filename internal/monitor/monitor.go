// Package monitor compares a primary order book against a comparison venue
// and classifies the two directional opportunities on every tick.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"spreadwatch/internal/alerting"
	"spreadwatch/internal/metrics"
	"spreadwatch/internal/sink"
	"spreadwatch/internal/storage"
	"spreadwatch/internal/tier"
	"spreadwatch/internal/venue"
)

// ErrAbsent marks a tick where at least one venue produced no result.
var ErrAbsent = errors.New("monitor: venue result absent")

// Direction of an opportunity.
type Direction string

const (
	// Up is buying on the comparison venue and selling on the primary.
	Up Direction = "up"
	// Down is buying on the primary venue and selling on the comparison.
	Down Direction = "down"
)

// Glyph is the display marker for d.
func (d Direction) Glyph() string {
	if d == Up {
		return "▲"
	}
	return "▼"
}

// State of a monitor.
type State int32

const (
	Idle State = iota
	Polling
)

func (s State) String() string {
	if s == Polling {
		return "polling"
	}
	return "idle"
}

// AlertEvent is one classified opportunity. It lives for a single tick.
type AlertEvent struct {
	Instrument string          `json:"instrument"`
	Direction  Direction       `json:"direction"`
	Value      decimal.Decimal `json:"value"`
	Tier       tier.Tier       `json:"tier"`
	TickID     string          `json:"tick_id,omitempty"`
	At         time.Time       `json:"at"`
}

// Opportunities returns the buy (up) and sell (down) opportunity values.
func Opportunities(primary venue.PricePair, comparison venue.ComparisonRate) (buy, sell decimal.Decimal) {
	buy = primary.Bid.Sub(comparison.BuyRate)
	sell = comparison.SellRate.Sub(primary.Ask)
	return buy, sell
}

// Evaluate computes and classifies both opportunities. It has no side effects.
func Evaluate(instrument string, table *tier.Table, primary venue.PricePair, comparison venue.ComparisonRate) []AlertEvent {
	buy, sell := Opportunities(primary, comparison)
	return []AlertEvent{
		{Instrument: instrument, Direction: Up, Value: buy, Tier: table.Classify(buy)},
		{Instrument: instrument, Direction: Down, Value: sell, Tier: table.Classify(sell)},
	}
}

// Options describe one instrument.
type Options struct {
	Name  string
	Table *tier.Table
	// Precision is the number of fractional digits displayed; zero shows
	// whole numbers.
	Precision   int32
	BuyElement  string
	SellElement string
	// LockKey enables the advisory lock when non-zero and Deps.Locker is set.
	LockKey int64
}

// Deps are the monitor's collaborators. Only Primary, Comparison and Sink are
// required.
type Deps struct {
	Primary    venue.BookFetcher
	Comparison venue.RateFetcher
	Sink       sink.Sink
	Toner      *alerting.Toner
	Notifier   alerting.Notifier
	Metrics    *metrics.Metrics
	Locker     storage.AdvisoryLocker
}

// Status is a point-in-time view of a monitor.
type Status struct {
	Instrument string    `json:"instrument"`
	State      string    `json:"state"`
	LastTick   time.Time `json:"last_tick,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	Ticks      uint64    `json:"ticks"`
}

// SpreadMonitor polls one instrument.
type SpreadMonitor struct {
	opts   Options
	deps   Deps
	logger zerolog.Logger
	now    func() time.Time

	state atomic.Int32
	ticks atomic.Uint64

	notifying sync.WaitGroup

	mu       sync.Mutex
	lastTick time.Time
	lastErr  string
}

// New constructs a monitor.
func New(opts Options, deps Deps, logger zerolog.Logger) (*SpreadMonitor, error) {
	if opts.Name == "" {
		return nil, errors.New("monitor: instrument name required")
	}
	if opts.Table == nil {
		return nil, fmt.Errorf("monitor %s: threshold table required", opts.Name)
	}
	if deps.Primary == nil || deps.Comparison == nil {
		return nil, fmt.Errorf("monitor %s: primary and comparison venues required", opts.Name)
	}
	if deps.Sink == nil {
		return nil, fmt.Errorf("monitor %s: sink required", opts.Name)
	}
	if opts.Precision < 0 {
		return nil, fmt.Errorf("monitor %s: precision cannot be negative", opts.Name)
	}
	if opts.BuyElement == "" {
		opts.BuyElement = opts.Name + "-buy"
	}
	if opts.SellElement == "" {
		opts.SellElement = opts.Name + "-sell"
	}

	return &SpreadMonitor{
		opts:   opts,
		deps:   deps,
		logger: logger.With().Str("component", "monitor").Str("instrument", opts.Name).Logger(),
		now:    time.Now,
	}, nil
}

// Name returns the instrument name.
func (m *SpreadMonitor) Name() string { return m.opts.Name }

// State reports whether a tick is running.
func (m *SpreadMonitor) State() State { return State(m.state.Load()) }

// Status returns the monitor's latest tick outcome.
func (m *SpreadMonitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Instrument: m.opts.Name,
		State:      m.State().String(),
		LastTick:   m.lastTick,
		LastError:  m.lastErr,
		Ticks:      m.ticks.Load(),
	}
}

// Tick is the scheduler entry point. When an advisory lock is configured and
// held by another replica the tick is skipped.
func (m *SpreadMonitor) Tick(ctx context.Context, at time.Time) error {
	unlock, proceed, err := m.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		m.deps.Metrics.Tick(m.opts.Name, metrics.ResultLocked)
		m.logger.Debug().Time("at", at).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	_, err = m.Poll(ctx)
	return err
}

// Poll runs one fetch-compare-classify cycle and presents the result.
func (m *SpreadMonitor) Poll(ctx context.Context) ([]AlertEvent, error) {
	m.state.Store(int32(Polling))
	defer m.state.Store(int32(Idle))
	m.ticks.Add(1)

	at := m.now().UTC()
	tickID := uuid.NewString()

	primary, comparison, err := m.fetch(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Str("tick_id", tickID).Msg("venue result absent")
		m.presentError(ctx, tickID, at)
		m.deps.Metrics.Tick(m.opts.Name, metrics.ResultAbsent)
		m.record(at, err)
		return nil, fmt.Errorf("%w: %w", ErrAbsent, err)
	}

	events := Evaluate(m.opts.Name, m.opts.Table, *primary, *comparison)
	for i := range events {
		events[i].TickID = tickID
		events[i].At = at
		m.emit(ctx, events[i], *primary, *comparison)
	}

	m.deps.Metrics.Tick(m.opts.Name, metrics.ResultOK)
	m.record(at, nil)
	m.logger.Debug().
		Str("tick_id", tickID).
		Str("bid", primary.Bid.String()).
		Str("ask", primary.Ask.String()).
		Str("buy_rate", comparison.BuyRate.String()).
		Str("sell_rate", comparison.SellRate.String()).
		Msg("tick complete")
	return events, nil
}

// fetch queries both venues concurrently. Any failure voids the tick.
func (m *SpreadMonitor) fetch(ctx context.Context) (*venue.PricePair, *venue.ComparisonRate, error) {
	var (
		primary    *venue.PricePair
		comparison *venue.ComparisonRate
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		defer venue.RecoverFetch(&err, "primary")
		started := time.Now()
		p, err := m.deps.Primary.FetchBook(gctx)
		m.deps.Metrics.Fetch(m.opts.Name, "primary", time.Since(started))
		if err != nil {
			return fmt.Errorf("primary: %w", err)
		}
		if p == nil {
			return fmt.Errorf("primary: %w: empty book", venue.ErrMalformed)
		}
		primary = p
		return nil
	})
	g.Go(func() (err error) {
		defer venue.RecoverFetch(&err, "comparison")
		started := time.Now()
		c, err := m.deps.Comparison.FetchRate(gctx)
		m.deps.Metrics.Fetch(m.opts.Name, "comparison", time.Since(started))
		if err != nil {
			return fmt.Errorf("comparison: %w", err)
		}
		if c == nil {
			return fmt.Errorf("comparison: %w: empty rate", venue.ErrMalformed)
		}
		comparison = c
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return primary, comparison, nil
}

func (m *SpreadMonitor) emit(ctx context.Context, ev AlertEvent, primary venue.PricePair, comparison venue.ComparisonRate) {
	element := m.element(ev.Direction)
	display := sink.Display{
		ElementID:  element,
		Instrument: m.opts.Name,
		Direction:  string(ev.Direction),
		Text:       ev.Value.StringFixed(m.opts.Precision),
		Tier:       ev.Tier.Name,
		Glyph:      ev.Direction.Glyph(),
		TickID:     ev.TickID,
		At:         ev.At,
	}
	if err := m.deps.Sink.Present(ctx, display); err != nil {
		m.logger.Error().Err(err).Str("element", element).Msg("failed to present display")
	}

	m.deps.Metrics.Opportunity(m.opts.Name, string(ev.Direction), ev.Tier.Name, ev.Value.InexactFloat64())

	if !ev.Tier.Actionable() {
		return
	}

	if m.deps.Toner.Request(*ev.Tier.Tone) {
		m.deps.Metrics.Tone(m.opts.Name)
	}

	if m.deps.Notifier != nil {
		m.notify(ctx, alerting.Notification{
			Instrument: m.opts.Name,
			ElementID:  element,
			Direction:  string(ev.Direction),
			Value:      ev.Value,
			Tier:       ev.Tier.Name,
			Bid:        primary.Bid,
			Ask:        primary.Ask,
			BuyRate:    comparison.BuyRate,
			SellRate:   comparison.SellRate,
			At:         ev.At,
		})
	}
}

// notify dispatches note without blocking the tick.
func (m *SpreadMonitor) notify(ctx context.Context, note alerting.Notification) {
	ctx = context.WithoutCancel(ctx)
	m.notifying.Add(1)
	go func() {
		defer m.notifying.Done()
		defer func() {
			if v := recover(); v != nil {
				m.logger.Error().Interface("panic", v).Str("element", note.ElementID).Msg("notifier panicked")
			}
		}()
		if err := m.deps.Notifier.Notify(ctx, note); err != nil {
			m.logger.Error().Err(err).Str("element", note.ElementID).Msg("failed to dispatch alert")
		}
	}()
}

// Wait blocks until background notifications have been dispatched.
func (m *SpreadMonitor) Wait() {
	m.notifying.Wait()
}

func (m *SpreadMonitor) presentError(ctx context.Context, tickID string, at time.Time) {
	for _, dir := range []Direction{Up, Down} {
		display := sink.Display{
			ElementID:  m.element(dir),
			Instrument: m.opts.Name,
			Direction:  string(dir),
			Text:       sink.ErrorText,
			Tier:       sink.ErrorTier,
			Error:      true,
			TickID:     tickID,
			At:         at,
		}
		if err := m.deps.Sink.Present(ctx, display); err != nil {
			m.logger.Error().Err(err).Str("element", display.ElementID).Msg("failed to present error display")
		}
	}
}

func (m *SpreadMonitor) element(d Direction) string {
	if d == Up {
		return m.opts.BuyElement
	}
	return m.opts.SellElement
}

func (m *SpreadMonitor) record(at time.Time, err error) {
	m.mu.Lock()
	m.lastTick = at
	if err != nil {
		m.lastErr = err.Error()
	} else {
		m.lastErr = ""
	}
	m.mu.Unlock()
}

func (m *SpreadMonitor) acquireLock(ctx context.Context) (func(), bool, error) {
	if m.opts.LockKey == 0 || m.deps.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := m.deps.Locker.TryAdvisoryLock(ctx, m.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
