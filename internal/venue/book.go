package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const symbolPlaceholder = "{symbol}"

// BookOptions parameterise a REST depth-snapshot adapter.
type BookOptions struct {
	Name string
	// URL may contain {symbol}, replaced by the escaped Symbol.
	URL    string
	Symbol string
	// Path descends into nested objects before reading the book sides,
	// e.g. ["data"] or ["result"].
	Path      []string
	BidsKey   string
	AsksKey   string
	Timeout   time.Duration
	UserAgent string
}

// RESTBook reads best bid/ask from a JSON depth endpoint whose levels are
// [price, size] arrays.
type RESTBook struct {
	opts     BookOptions
	endpoint string
	logger   zerolog.Logger
	client   *http.Client
}

// NewRESTBook constructs an order-book adapter.
func NewRESTBook(opts BookOptions, logger zerolog.Logger) *RESTBook {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if opts.BidsKey == "" {
		opts.BidsKey = "bids"
	}
	if opts.AsksKey == "" {
		opts.AsksKey = "asks"
	}

	return &RESTBook{
		opts:     opts,
		endpoint: strings.ReplaceAll(opts.URL, symbolPlaceholder, url.QueryEscape(opts.Symbol)),
		logger:   logger.With().Str("component", "book_fetcher").Str("venue", opts.Name).Logger(),
		client:   &http.Client{Timeout: timeout},
	}
}

// FetchBook requests a depth snapshot and returns the top of book.
func (b *RESTBook) FetchBook(ctx context.Context) (*PricePair, error) {
	if b.endpoint == "" {
		return nil, fmt.Errorf("%s: depth url not configured", b.opts.Name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(b.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fetchErr("%s: %v", b.opts.Name, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fetchErr("%s: read body: %v", b.opts.Name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fetchErr("%s: status %d: %s", b.opts.Name, resp.StatusCode, truncate(payload, 200))
	}

	return b.parse(payload)
}

func (b *RESTBook) parse(payload []byte) (*PricePair, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, malformedErr("%s: decode depth: %v", b.opts.Name, err)
	}

	node := root
	for _, key := range b.opts.Path {
		node = descend(node, key)
		if node == nil {
			return nil, malformedErr("%s: path %q missing", b.opts.Name, strings.Join(b.opts.Path, "."))
		}
	}

	book, ok := node.(map[string]any)
	if !ok {
		return nil, malformedErr("%s: book is not an object", b.opts.Name)
	}

	bid, err := topPrice(book, b.opts.BidsKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.opts.Name, err)
	}
	ask, err := topPrice(book, b.opts.AsksKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.opts.Name, err)
	}

	return &PricePair{Bid: bid, Ask: ask}, nil
}

// descend steps into an object key, or into the first element when the node
// is an array wrapping a single book (as OKX does with data[0]).
func descend(node any, key string) any {
	if arr, ok := node.([]any); ok {
		if len(arr) == 0 {
			return nil
		}
		node = arr[0]
	}
	obj, ok := node.(map[string]any)
	if !ok {
		return nil
	}
	return obj[key]
}

func topPrice(book map[string]any, side string) (decimal.Decimal, error) {
	levels, ok := book[side].([]any)
	if !ok || len(levels) == 0 {
		return decimal.Decimal{}, malformedErr("no %s levels", side)
	}
	level, ok := levels[0].([]any)
	if !ok || len(level) == 0 {
		return decimal.Decimal{}, malformedErr("%s level is not [price, size]", side)
	}
	price, err := numeric(level[0])
	if err != nil {
		return decimal.Decimal{}, parseErr(side+" price", err)
	}
	if price.Sign() < 0 {
		return decimal.Decimal{}, parseErr(side+" price", fmt.Errorf("negative value %s", price))
	}
	return price, nil
}

func numeric(v any) (decimal.Decimal, error) {
	switch val := v.(type) {
	case string:
		return decimal.NewFromString(strings.TrimSpace(val))
	case json.Number:
		return decimal.NewFromString(val.String())
	default:
		return decimal.Decimal{}, fmt.Errorf("unexpected type %T", v)
	}
}

func truncate(payload []byte, max int) string {
	s := strings.TrimSpace(string(payload))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// BookRate turns an order-book venue into a comparison venue: acquiring base
// costs the ask, disposing of it earns the bid.
type BookRate struct {
	book BookFetcher
}

// NewBookRate wraps an order-book adapter.
func NewBookRate(book BookFetcher) *BookRate {
	return &BookRate{book: book}
}

// FetchRate maps the book's top levels onto buy and sell rates.
func (r *BookRate) FetchRate(ctx context.Context) (*ComparisonRate, error) {
	pair, err := r.book.FetchBook(ctx)
	if err != nil {
		return nil, err
	}
	if pair == nil {
		return nil, malformedErr("empty book")
	}
	return &ComparisonRate{BuyRate: pair.Ask, SellRate: pair.Bid}, nil
}

var (
	_ BookFetcher = (*RESTBook)(nil)
	_ RateFetcher = (*BookRate)(nil)
)
