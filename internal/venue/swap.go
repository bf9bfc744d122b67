package venue

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// SwapOptions parameterise a quote-synthesised comparison rate.
type SwapOptions struct {
	Pair Pair
	// BuyNotional is spent in quote units to acquire base.
	BuyNotional decimal.Decimal
	// SellNotional is spent in base units to acquire quote.
	SellNotional decimal.Decimal
}

// SwapRate derives a two-sided rate from a quote API that only answers
// "how much out for this much in", by asking once per direction.
type SwapRate struct {
	opts   SwapOptions
	quoter Quoter
	logger zerolog.Logger
}

// NewSwapRate constructs a SwapRate over the given quoter.
func NewSwapRate(opts SwapOptions, quoter Quoter, logger zerolog.Logger) *SwapRate {
	return &SwapRate{
		opts:   opts,
		quoter: quoter,
		logger: logger.With().Str("component", "swap_rate").Str("pair", opts.Pair.Base.Symbol+"/"+opts.Pair.Quote.Symbol).Logger(),
	}
}

// FetchRate issues the buy and sell quotes concurrently.
func (s *SwapRate) FetchRate(ctx context.Context) (*ComparisonRate, error) {
	pair := s.opts.Pair
	buyIn := pair.Quote.ToAtoms(s.opts.BuyNotional)
	sellIn := pair.Base.ToAtoms(s.opts.SellNotional)
	if buyIn.Sign() <= 0 || sellIn.Sign() <= 0 {
		return nil, errors.New("swap notionals round to zero atoms")
	}

	var baseOut, quoteOut decimal.Decimal
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		defer RecoverFetch(&err, "buy quote")
		out, err := s.quoter.Quote(gctx, pair.Quote, pair.Base, buyIn)
		if err != nil {
			return fmt.Errorf("buy quote: %w", err)
		}
		baseOut = out
		return nil
	})
	g.Go(func() (err error) {
		defer RecoverFetch(&err, "sell quote")
		out, err := s.quoter.Quote(gctx, pair.Base, pair.Quote, sellIn)
		if err != nil {
			return fmt.Errorf("sell quote: %w", err)
		}
		quoteOut = out
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if baseOut.Sign() <= 0 {
		return nil, malformedErr("buy quote returned %s", baseOut.String())
	}
	if quoteOut.Sign() <= 0 {
		return nil, malformedErr("sell quote returned %s", quoteOut.String())
	}

	buyRate, err := pair.Price(buyIn, baseOut)
	if err != nil {
		return nil, fmt.Errorf("buy rate: %w", err)
	}
	sellRate, err := pair.Price(quoteOut, sellIn)
	if err != nil {
		return nil, fmt.Errorf("sell rate: %w", err)
	}

	s.logger.Debug().
		Str("buy_rate", buyRate.String()).
		Str("sell_rate", sellRate.String()).
		Msg("swap quotes resolved")

	return &ComparisonRate{BuyRate: buyRate, SellRate: sellRate}, nil
}

var _ RateFetcher = (*SwapRate)(nil)
