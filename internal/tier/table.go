// Package tier maps opportunity values onto named magnitude buckets.
package tier

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// DefaultNeutral names the tier used when no bound matches.
const DefaultNeutral = "neutral"

// Tone is an audio alert request attached to actionable tiers.
type Tone struct {
	Volume      float64 `json:"volume"`
	FrequencyHz float64 `json:"frequency_hz"`
}

// Tier is a classification result. Rank orders tiers: positive tiers rank
// 1..n by ascending bound, negative tiers -1..-m by ascending magnitude, and
// the neutral tier ranks 0.
type Tier struct {
	Name  string          `json:"name"`
	Bound decimal.Decimal `json:"bound"`
	Rank  int             `json:"rank"`
	Tone  *Tone           `json:"tone,omitempty"`
}

// Actionable reports whether the tier requests an alert tone.
func (t Tier) Actionable() bool {
	return t.Tone != nil
}

// Neutral reports whether t is the fallback tier.
func (t Tier) Neutral() bool {
	return t.Rank == 0
}

// Level is one configured row of a threshold table.
type Level struct {
	Bound decimal.Decimal
	Name  string
	Tone  *Tone
}

// Table is an immutable ordered threshold table.
type Table struct {
	positive []Tier // highest bound first
	negative []Tier // most negative first
	neutral  Tier
}

// NewTable validates levels and builds a table. Bounds must be non-zero and unique.
func NewTable(neutral string, levels []Level) (*Table, error) {
	if neutral == "" {
		neutral = DefaultNeutral
	}

	t := &Table{neutral: Tier{Name: neutral, Bound: decimal.Zero}}
	seen := make(map[string]struct{}, len(levels))
	for _, lvl := range levels {
		if lvl.Name == "" {
			return nil, errors.New("tier name required")
		}
		if lvl.Bound.IsZero() {
			return nil, fmt.Errorf("tier %q: bound must be non-zero", lvl.Name)
		}
		key := lvl.Bound.String()
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("tier %q: duplicate bound %s", lvl.Name, key)
		}
		seen[key] = struct{}{}
		if lvl.Tone != nil {
			if lvl.Tone.Volume < 0 || lvl.Tone.Volume > 1 {
				return nil, fmt.Errorf("tier %q: tone volume must be within [0,1]", lvl.Name)
			}
			if lvl.Tone.FrequencyHz <= 0 {
				return nil, fmt.Errorf("tier %q: tone frequency must be positive", lvl.Name)
			}
		}

		tier := Tier{Name: lvl.Name, Bound: lvl.Bound, Tone: lvl.Tone}
		if lvl.Bound.IsPositive() {
			t.positive = append(t.positive, tier)
		} else {
			t.negative = append(t.negative, tier)
		}
	}

	sort.Slice(t.positive, func(i, j int) bool { return t.positive[i].Bound.GreaterThan(t.positive[j].Bound) })
	sort.Slice(t.negative, func(i, j int) bool { return t.negative[i].Bound.LessThan(t.negative[j].Bound) })
	for i := range t.positive {
		t.positive[i].Rank = len(t.positive) - i
	}
	for i := range t.negative {
		t.negative[i].Rank = -(len(t.negative) - i)
	}

	return t, nil
}

// Classify returns the first tier whose bound value reaches. Positive values
// match bounds they are >= to, highest bound first; negative values match
// bounds they are <= to, most negative first.
func (t *Table) Classify(value decimal.Decimal) Tier {
	switch value.Sign() {
	case 1:
		for _, tier := range t.positive {
			if value.GreaterThanOrEqual(tier.Bound) {
				return tier
			}
		}
	case -1:
		for _, tier := range t.negative {
			if value.LessThanOrEqual(tier.Bound) {
				return tier
			}
		}
	}
	return t.neutral
}

// Classify is the functional form of Table.Classify.
func Classify(value decimal.Decimal, table *Table) Tier {
	return table.Classify(value)
}

// Neutral returns the fallback tier.
func (t *Table) Neutral() Tier {
	return t.neutral
}

// Tiers lists every tier from most negative to most positive, neutral included.
func (t *Table) Tiers() []Tier {
	out := make([]Tier, 0, len(t.positive)+len(t.negative)+1)
	out = append(out, t.negative...)
	out = append(out, t.neutral)
	for i := len(t.positive) - 1; i >= 0; i-- {
		out = append(out, t.positive[i])
	}
	return out
}
