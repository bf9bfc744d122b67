package venue

import (
	"context"
	"strings"

	bybit "github.com/hirokisan/bybit/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// BybitOptions parameterise the Bybit V5 spot order-book adapter.
type BybitOptions struct {
	BaseURL string
	Symbol  string
}

// BybitBook reads top of book from Bybit's public V5 market endpoint.
type BybitBook struct {
	opts   BybitOptions
	client *bybit.Client
	logger zerolog.Logger
}

// NewBybitBook constructs a Bybit order-book adapter.
func NewBybitBook(opts BybitOptions, logger zerolog.Logger) *BybitBook {
	client := bybit.NewClient()
	if base := strings.TrimRight(opts.BaseURL, "/"); base != "" {
		client = client.WithBaseURL(base)
	}
	return &BybitBook{
		opts:   opts,
		client: client,
		logger: logger.With().Str("component", "book_fetcher").Str("venue", "bybit").Logger(),
	}
}

// FetchBook requests a depth-1 spot order book.
func (b *BybitBook) FetchBook(ctx context.Context) (*PricePair, error) {
	if b.opts.Symbol == "" {
		return nil, malformedErr("bybit: symbol not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	limit := 1
	res, err := b.client.V5().Market().GetOrderbook(bybit.V5GetOrderbookParam{
		Category: bybit.CategoryV5Spot,
		Symbol:   bybit.SymbolV5(b.opts.Symbol),
		Limit:    &limit,
	})
	if err != nil {
		return nil, fetchErr("bybit: %v", err)
	}
	if res == nil {
		return nil, malformedErr("bybit: empty response")
	}

	book := res.Result
	if len(book.Bids) == 0 {
		return nil, malformedErr("bybit: no bids levels")
	}
	if len(book.Asks) == 0 {
		return nil, malformedErr("bybit: no asks levels")
	}

	bid, err := decimal.NewFromString(book.Bids[0].Price)
	if err != nil {
		return nil, parseErr("bybit bid price", err)
	}
	ask, err := decimal.NewFromString(book.Asks[0].Price)
	if err != nil {
		return nil, parseErr("bybit ask price", err)
	}
	if bid.Sign() < 0 || ask.Sign() < 0 {
		return nil, malformedErr("bybit: negative price")
	}

	return &PricePair{Bid: bid, Ask: ask}, nil
}

var _ BookFetcher = (*BybitBook)(nil)
