package app

import (
	"context"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"spreadwatch/internal/venue"
)

// SimulateInput are the venue prices fed into a simulated tick.
type SimulateInput struct {
	Instrument string
	Bid        decimal.Decimal
	Ask        decimal.Decimal
	BuyRate    decimal.Decimal
	SellRate   decimal.Decimal
}

// Simulate 使用给定价格模拟一次 tick，并通过已配置的提示音与告警通道发送。
func (a *App) Simulate(ctx context.Context, in SimulateInput, out io.Writer) error {
	inst, ok := a.Config.Instrument(in.Instrument)
	if !ok {
		return fmt.Errorf("unknown instrument %q", in.Instrument)
	}

	rt, err := a.newRuntime(ctx, false)
	if err != nil {
		return err
	}
	defer rt.close()
	// Simulations always sound, regardless of the configured default.
	rt.audio.Set(true)

	primary := &staticBook{pair: venue.PricePair{Bid: in.Bid, Ask: in.Ask}}
	comparison := &staticRate{rate: venue.ComparisonRate{BuyRate: in.BuyRate, SellRate: in.SellRate}}

	m, err := a.newMonitorWith(rt, inst, primary, comparison)
	if err != nil {
		return err
	}

	events, err := m.Poll(ctx)
	m.Wait()
	rt.toner.Wait()
	if err != nil {
		return err
	}
	return writeEvents(out, inst, events)
}

type staticBook struct {
	pair venue.PricePair
}

func (s *staticBook) FetchBook(context.Context) (*venue.PricePair, error) {
	p := s.pair
	return &p, nil
}

type staticRate struct {
	rate venue.ComparisonRate
}

func (s *staticRate) FetchRate(context.Context) (*venue.ComparisonRate, error) {
	r := s.rate
	return &r, nil
}

var (
	_ venue.BookFetcher = (*staticBook)(nil)
	_ venue.RateFetcher = (*staticRate)(nil)
)
