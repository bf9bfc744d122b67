package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const aggregatorQuotePath = "/quote"

// AggregatorOptions parameterise a Jupiter-style quote API.
type AggregatorOptions struct {
	BaseURL     string
	SlippageBps int
	Timeout     time.Duration
	UserAgent   string
}

// AggregatorQuoter asks a DEX aggregator for the output of an exact-in swap.
type AggregatorQuoter struct {
	opts    AggregatorOptions
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewAggregatorQuoter constructs an aggregator quoter.
func NewAggregatorQuoter(opts AggregatorOptions, logger zerolog.Logger) *AggregatorQuoter {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://quote-api.jup.ag/v6"
	}

	return &AggregatorQuoter{
		opts:    opts,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "aggregator_quoter").Logger(),
	}
}

// Quote returns output atoms for amountIn atoms of in.
func (a *AggregatorQuoter) Quote(ctx context.Context, in, out Token, amountIn decimal.Decimal) (decimal.Decimal, error) {
	if in.Address == "" || out.Address == "" {
		return decimal.Decimal{}, fmt.Errorf("aggregator: token addresses required")
	}

	query := url.Values{}
	query.Set("inputMint", in.Address)
	query.Set("outputMint", out.Address)
	query.Set("amount", amountIn.StringFixed(0))
	query.Set("swapMode", "ExactIn")
	query.Set("slippageBps", strconv.Itoa(a.opts.SlippageBps))

	endpoint := a.baseURL + aggregatorQuotePath + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(a.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, fetchErr("aggregator: %v", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, fetchErr("aggregator: read body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fetchErr("aggregator: status %d: %s", resp.StatusCode, truncate(payload, 200))
	}

	var res aggregatorQuote
	if err := json.Unmarshal(payload, &res); err != nil {
		return decimal.Decimal{}, malformedErr("aggregator: decode quote: %v", err)
	}
	if res.OutAmount == "" {
		return decimal.Decimal{}, malformedErr("aggregator: outAmount missing")
	}

	outAtoms, err := decimal.NewFromString(res.OutAmount)
	if err != nil {
		return decimal.Decimal{}, parseErr("outAmount", err)
	}

	a.logger.Debug().
		Str("in", in.Symbol).
		Str("out", out.Symbol).
		Str("amount_in", amountIn.String()).
		Str("amount_out", outAtoms.String()).
		Msg("quote received")

	return outAtoms, nil
}

type aggregatorQuote struct {
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
}

var _ Quoter = (*AggregatorQuoter)(nil)
