package venue

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrFetch covers transport failures and non-2xx responses.
	ErrFetch = errors.New("venue: fetch failed")
	// ErrMalformed indicates a response missing the fields an adapter expects.
	ErrMalformed = errors.New("venue: malformed response")
	// ErrParse indicates a price or amount field that is not numeric.
	ErrParse = errors.New("venue: parse failed")
)

// PricePair is the best bid and ask of an order book.
type PricePair struct {
	Bid decimal.Decimal
	Ask decimal.Decimal
}

// ComparisonRate is the effective price for acquiring (BuyRate) and disposing
// of (SellRate) one base token on a comparison venue.
type ComparisonRate struct {
	BuyRate  decimal.Decimal
	SellRate decimal.Decimal
}

// BookFetcher retrieves a best bid/ask snapshot from an order-book venue.
type BookFetcher interface {
	FetchBook(ctx context.Context) (*PricePair, error)
}

// RateFetcher retrieves buy and sell rates from a comparison venue.
type RateFetcher interface {
	FetchRate(ctx context.Context) (*ComparisonRate, error)
}

// Quoter returns the output amount, in atoms of out, obtainable by swapping
// amountIn atoms of in.
type Quoter interface {
	Quote(ctx context.Context, in, out Token, amountIn decimal.Decimal) (decimal.Decimal, error)
}

func fetchErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrFetch, fmt.Sprintf(format, args...))
}

func malformedErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

func parseErr(field string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrParse, field, err)
}

// RecoverFetch turns a panic raised by an adapter into an ErrFetch stored in
// *errp. It must be deferred directly in the goroutine making the call.
func RecoverFetch(errp *error, source string) {
	if v := recover(); v != nil {
		*errp = fmt.Errorf("%w: %s: panic: %v", ErrFetch, source, v)
	}
}
