package tier

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sampleTable(t *testing.T) *Table {
	t.Helper()
	table, err := NewTable("", []Level{
		{Bound: d("0.001"), Name: "up"},
		{Bound: d("0.01"), Name: "strong-up", Tone: &Tone{Volume: 0.5, FrequencyHz: 880}},
		{Bound: d("0.005"), Name: "mid-up"},
		{Bound: d("-0.001"), Name: "down"},
		{Bound: d("-0.01"), Name: "strong-down"},
	})
	require.NoError(t, err)
	return table
}

func TestClassifyOrdering(t *testing.T) {
	table := sampleTable(t)

	cases := []struct {
		value string
		want  string
	}{
		{"0.02", "strong-up"},
		{"0.01", "strong-up"},
		{"0.0099", "mid-up"},
		{"0.004", "up"},
		{"0.001", "up"},
		{"0.0005", DefaultNeutral},
		{"0", DefaultNeutral},
		{"-0.0005", DefaultNeutral},
		{"-0.001", "down"},
		{"-0.009", "down"},
		{"-0.01", "strong-down"},
		{"-3", "strong-down"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, table.Classify(d(tc.value)).Name, "value %s", tc.value)
	}
}

func TestClassifyZeroIsNeutralForEveryTable(t *testing.T) {
	tables := [][]Level{
		nil,
		{{Bound: d("0.3"), Name: "a"}},
		{{Bound: d("-0.0005"), Name: "b"}},
		{{Bound: d("0.0005"), Name: "c"}, {Bound: d("-0.3"), Name: "e"}},
	}
	for _, levels := range tables {
		table, err := NewTable("flat", levels)
		require.NoError(t, err)
		got := Classify(decimal.Zero, table)
		assert.Equal(t, "flat", got.Name)
		assert.True(t, got.Neutral())
	}
}

func TestClassifyScenario(t *testing.T) {
	table := sampleTable(t)
	bid, ask := d("10.00000"), d("10.00100")
	buyRate, sellRate := d("9.99000"), d("10.00500")

	buy := bid.Sub(buyRate)
	sell := sellRate.Sub(ask)

	assert.True(t, buy.Equal(d("0.01")))
	assert.True(t, sell.Equal(d("0.004")))
	assert.Equal(t, "strong-up", table.Classify(buy).Name)
	assert.True(t, table.Classify(buy).Actionable())
	assert.Equal(t, "up", table.Classify(sell).Name)
}

func TestClassifyMonotonic(t *testing.T) {
	table := sampleTable(t)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 2000; i++ {
		a := decimal.NewFromFloat(rng.Float64()*0.06 - 0.03).Round(6)
		b := decimal.NewFromFloat(rng.Float64()*0.06 - 0.03).Round(6)
		if a.LessThan(b) {
			a, b = b, a
		}
		assert.GreaterOrEqual(t, table.Classify(a).Rank, table.Classify(b).Rank, "a=%s b=%s", a, b)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	table := sampleTable(t)
	v := d("0.0071")
	first := table.Classify(v)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, table.Classify(v))
	}
}

func TestTiersOrderedByRank(t *testing.T) {
	tiers := sampleTable(t).Tiers()
	require.Len(t, tiers, 6)
	for i := 1; i < len(tiers); i++ {
		assert.Less(t, tiers[i-1].Rank, tiers[i].Rank)
	}
	assert.Equal(t, "strong-down", tiers[0].Name)
	assert.Equal(t, "strong-up", tiers[len(tiers)-1].Name)
}

func TestNewTableRejectsInvalidLevels(t *testing.T) {
	cases := map[string][]Level{
		"zero bound":     {{Bound: decimal.Zero, Name: "z"}},
		"missing name":   {{Bound: d("0.1")}},
		"duplicate":      {{Bound: d("0.1"), Name: "a"}, {Bound: d("0.1"), Name: "b"}},
		"loud tone":      {{Bound: d("0.1"), Name: "a", Tone: &Tone{Volume: 1.5, FrequencyHz: 440}}},
		"silent tone hz": {{Bound: d("0.1"), Name: "a", Tone: &Tone{Volume: 0.5}}},
	}
	for name, levels := range cases {
		_, err := NewTable("", levels)
		assert.Error(t, err, name)
	}
}
