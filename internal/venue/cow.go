package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	cowQuotePath   = "/quote"
	zeroAddressHex = "0x0000000000000000000000000000000000000000"
)

// CowOptions parameterise the CoW Protocol quoter.
type CowOptions struct {
	BaseURL      string
	PriceQuality string
	Timeout      time.Duration
	UserAgent    string
	AppCode      string
}

// CowQuoter requests sell-kind quotes from CoW Protocol.
type CowQuoter struct {
	opts    CowOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewCowQuoter constructs a CoW Protocol quoter.
func NewCowQuoter(opts CowOptions, logger zerolog.Logger) *CowQuoter {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.cow.fi/mainnet/api/v1"
	}
	if opts.AppCode == "" {
		opts.AppCode = "spreadwatch"
	}

	return &CowQuoter{
		opts:    opts,
		logger:  logger.With().Str("component", "cow_quoter").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Quote sells amountIn atoms of in and returns the quoted buy amount in atoms of out.
func (c *CowQuoter) Quote(ctx context.Context, in, out Token, amountIn decimal.Decimal) (decimal.Decimal, error) {
	if in.Address == "" || out.Address == "" {
		return decimal.Decimal{}, fmt.Errorf("cow: sellToken and buyToken addresses required")
	}
	if amountIn.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("cow: sell amount must be positive")
	}

	reqPayload := cowQuoteRequest{
		SellToken:           in.Address,
		BuyToken:            out.Address,
		Kind:                "sell",
		From:                zeroAddressHex,
		AppData:             fmt.Sprintf(`{"version":"0.7.0","appCode":%q,"metadata":{}}`, c.opts.AppCode),
		PriceQuality:        c.opts.PriceQuality,
		SellAmountBeforeFee: amountIn.StringFixed(0),
		ValidTo:             uint64(time.Now().Add(5 * time.Minute).Unix()),
	}

	body, err := json.Marshal(reqPayload)
	if err != nil {
		return decimal.Decimal{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+cowQuotePath, bytes.NewReader(body))
	if err != nil {
		return decimal.Decimal{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "spreadwatch/1.0")
	}
	req.Header.Set("X-AppId", c.opts.AppCode)

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, fetchErr("cow: %v", err)
	}
	defer resp.Body.Close()

	payloadBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, fetchErr("cow: read body: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("%w: %v", ErrFetch, parseCowError(resp.StatusCode, payloadBytes))
	}

	var quoteRes cowQuoteResponse
	if err := json.Unmarshal(payloadBytes, &quoteRes); err != nil {
		return decimal.Decimal{}, malformedErr("cow: decode quote: %v", err)
	}
	if quoteRes.Quote.BuyAmount == "" {
		return decimal.Decimal{}, malformedErr("cow: buyAmount missing")
	}

	buyAtoms, err := decimal.NewFromString(quoteRes.Quote.BuyAmount)
	if err != nil {
		return decimal.Decimal{}, parseErr("buyAmount", err)
	}

	return buyAtoms, nil
}

type cowQuoteRequest struct {
	SellToken           string `json:"sellToken"`
	BuyToken            string `json:"buyToken"`
	Kind                string `json:"kind"`
	From                string `json:"from"`
	AppData             string `json:"appData"`
	PriceQuality        string `json:"priceQuality,omitempty"`
	SellAmountBeforeFee string `json:"sellAmountBeforeFee"`
	ValidTo             uint64 `json:"validTo"`
}

type cowQuoteResponse struct {
	Quote struct {
		SellAmount string `json:"sellAmount"`
		BuyAmount  string `json:"buyAmount"`
		FeeAmount  string `json:"feeAmount"`
	} `json:"quote"`
	PriceQuality string `json:"priceQuality"`
}

type cowErrorResponse struct {
	ErrorType   string `json:"errorType"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

func parseCowError(status int, payload []byte) error {
	var apiErr cowErrorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		switch {
		case apiErr.Description != "":
			return fmt.Errorf("cow api error (%d): %s", status, apiErr.Description)
		case apiErr.Message != "":
			return fmt.Errorf("cow api error (%d): %s", status, apiErr.Message)
		case apiErr.ErrorType != "":
			return fmt.Errorf("cow api error (%d): %s", status, apiErr.ErrorType)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("cow api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("cow api error (%d)", status)
}

var _ Quoter = (*CowQuoter)(nil)
