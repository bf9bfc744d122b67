package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spreadwatch/internal/config"
	"spreadwatch/internal/tier"
	"spreadwatch/internal/venue"
)

func int32p(v int32) *int32 { return &v }

func bookServer(t *testing.T, bid, ask string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bids":[["` + bid + `","1"]],"asks":[["` + ask + `","1"]]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(primaryURL, comparisonURL string) *config.Config {
	return &config.Config{
		Audio: config.AudioConfig{Timeout: time.Second},
		Instruments: []config.InstrumentConfig{{
			Name:        "sol",
			Period:      time.Second,
			Base:        config.TokenConfig{Symbol: "SOL"},
			BuyElement:  "sol-buy",
			SellElement: "sol-sell",
			Primary:     config.VenueConfig{Kind: config.KindREST, URL: primaryURL, Symbol: "SOLUSDT", Timeout: time.Second},
			Comparison:  config.VenueConfig{Kind: config.KindREST, URL: comparisonURL, Symbol: "SOLUSDT", Timeout: time.Second},
			Thresholds: []config.ThresholdConfig{
				{Bound: decimal.RequireFromString("0.01"), Name: "strong-up", Tone: &config.ToneConfig{Volume: 0.5, FrequencyHz: 880}},
				{Bound: decimal.RequireFromString("0.003"), Name: "up"},
				{Bound: decimal.RequireFromString("-0.003"), Name: "down"},
			},
		}},
	}
}

func TestTickPrintsClassifiedOpportunities(t *testing.T) {
	primary := bookServer(t, "10.00000", "10.00100")
	// As a comparison book: BuyRate = ask, SellRate = bid.
	comparison := bookServer(t, "10.00500", "9.99000")

	a := NewApp(testConfig(primary.URL, comparison.URL), zerolog.Nop())
	var out bytes.Buffer
	require.NoError(t, a.Tick(context.Background(), "sol", &out))

	text := out.String()
	assert.Contains(t, text, "0.01000")
	assert.Contains(t, text, "strong-up")
	assert.Contains(t, text, "0.00400")
	assert.Contains(t, text, "▲ up")
	assert.Contains(t, text, "▼ down")
}

func TestTickReportsAbsentVenue(t *testing.T) {
	primary := bookServer(t, "10", "10.1")
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer broken.Close()

	a := NewApp(testConfig(primary.URL, broken.URL), zerolog.Nop())
	err := a.Tick(context.Background(), "sol", &bytes.Buffer{})
	require.Error(t, err)
	assert.ErrorIs(t, err, venue.ErrMalformed)
}

func TestTickUnknownInstrument(t *testing.T) {
	a := NewApp(testConfig("", ""), zerolog.Nop())
	assert.Error(t, a.Tick(context.Background(), "btc", &bytes.Buffer{}))
}

func TestSimulateRequestsToneOnActionableTier(t *testing.T) {
	var played atomic.Int32
	var tone tier.Tone
	audio := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&tone)
		played.Add(1)
	}))
	defer audio.Close()

	cfg := testConfig("", "")
	cfg.Audio.WebhookURL = audio.URL
	a := NewApp(cfg, zerolog.Nop())

	var out bytes.Buffer
	err := a.Simulate(context.Background(), SimulateInput{
		Instrument: "sol",
		Bid:        decimal.RequireFromString("10"),
		Ask:        decimal.RequireFromString("10.001"),
		BuyRate:    decimal.RequireFromString("9.99"),
		SellRate:   decimal.RequireFromString("10.005"),
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, int32(1), played.Load())
	assert.Equal(t, 880.0, tone.FrequencyHz)
	assert.Contains(t, out.String(), "strong-up")
}

func TestInstrumentsListsTiersAndWarnings(t *testing.T) {
	cfg := testConfig("u", "u")
	cfg.Instruments[0].Primary.Symbol = "LAYER_USDT"
	a := NewApp(cfg, zerolog.Nop())

	var out bytes.Buffer
	require.NoError(t, a.Instruments(&out))
	text := out.String()
	assert.Contains(t, text, "strong-up@0.01!")
	assert.Contains(t, text, "down@-0.003")
	assert.Contains(t, text, "rest:LAYER_USDT")
	assert.Contains(t, text, "warning:")
}

type decimalsCaller struct {
	decimals map[common.Address]uint8
}

func (c decimalsCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	v, ok := c.decimals[*msg.To]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	uint8Type, err := abi.NewType("uint8", "", nil)
	if err != nil {
		return nil, err
	}
	return abi.Arguments{{Type: uint8Type}}.Pack(v)
}

func TestCheckDecimalsFlagsMismatch(t *testing.T) {
	weth := "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	usdc := "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	cfg := testConfig("u", "u")
	cfg.Instruments[0].Base = config.TokenConfig{Symbol: "WETH", Address: weth, Decimals: int32p(18)}
	cfg.Instruments[0].Quote = config.TokenConfig{Symbol: "USDC", Address: usdc, Decimals: int32p(18)}
	a := NewApp(cfg, zerolog.Nop())

	caller := venue.StaticCaller{ContractCaller: decimalsCaller{decimals: map[common.Address]uint8{
		common.HexToAddress(weth): 18,
		common.HexToAddress(usdc): 6,
	}}}

	var out bytes.Buffer
	err := a.checkDecimals(context.Background(), caller, &out)
	assert.ErrorIs(t, err, ErrDecimalsMismatch)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "ok")
	assert.Contains(t, lines[2], "MISMATCH")
}

func TestCheckDecimalsRequiresRPC(t *testing.T) {
	a := NewApp(testConfig("u", "u"), zerolog.Nop())
	assert.Error(t, a.CheckDecimals(context.Background(), &bytes.Buffer{}))
}
