package venue

import (
	"errors"

	"github.com/shopspring/decimal"
)

// rateDigits bounds the fractional digits kept when dividing atom amounts.
const rateDigits = 18

// Token identifies an asset on a venue together with its decimal precision.
type Token struct {
	Symbol   string
	Address  string
	Decimals int32
}

// ToAtoms converts a human amount into integer atoms, truncating dust.
func (t Token) ToAtoms(amount decimal.Decimal) decimal.Decimal {
	return amount.Shift(t.Decimals).Truncate(0)
}

// FromAtoms converts integer atoms into a human amount.
func (t Token) FromAtoms(atoms decimal.Decimal) decimal.Decimal {
	return atoms.Shift(-t.Decimals)
}

// Pair is a base/quote token pair. Prices are expressed as quote per base.
type Pair struct {
	Base  Token
	Quote Token
}

// Invert swaps base and quote.
func (p Pair) Invert() Pair {
	return Pair{Base: p.Quote, Quote: p.Base}
}

// Exponent is the decimal exponent separating quote-atoms-per-base-atom from
// quote-per-base. It is the only place the two precisions are combined.
func (p Pair) Exponent() int32 {
	return p.Base.Decimals - p.Quote.Decimals
}

// Price converts an exchange of quoteAtoms for baseAtoms into a quote-per-base price.
func (p Pair) Price(quoteAtoms, baseAtoms decimal.Decimal) (decimal.Decimal, error) {
	if baseAtoms.Sign() <= 0 {
		return decimal.Decimal{}, errors.New("base amount must be positive")
	}
	if quoteAtoms.Sign() < 0 {
		return decimal.Decimal{}, errors.New("quote amount cannot be negative")
	}
	return quoteAtoms.Shift(p.Exponent()).DivRound(baseAtoms, rateDigits), nil
}
