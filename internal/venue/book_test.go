package venue

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveJSON(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRESTBookFlatLayout(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("symbol")
		_, _ = w.Write([]byte(`{"bids":[["10.00000","3"],["9.9","1"]],"asks":[["10.00100","2"]]}`))
	}))
	defer srv.Close()

	book := NewRESTBook(BookOptions{Name: "mexc", URL: srv.URL + "/depth?symbol={symbol}", Symbol: "SOLUSDT", Timeout: time.Second}, noopLogger())
	pair, err := book.FetchBook(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "SOLUSDT", gotQuery)
	assert.True(t, pair.Bid.Equal(decimal.RequireFromString("10")))
	assert.True(t, pair.Ask.Equal(decimal.RequireFromString("10.001")))
}

func TestRESTBookNestedNumericLayout(t *testing.T) {
	srv := serveJSON(t, http.StatusOK, `{"code":"0","data":[{"bids":[[1.25,100]],"asks":[[1.26,50]]}]}`)

	book := NewRESTBook(BookOptions{Name: "okx", URL: srv.URL, Path: []string{"data"}}, noopLogger())
	pair, err := book.FetchBook(context.Background())
	require.NoError(t, err)
	assert.True(t, pair.Bid.Equal(decimal.RequireFromString("1.25")))
	assert.True(t, pair.Ask.Equal(decimal.RequireFromString("1.26")))
}

func TestRESTBookCustomKeys(t *testing.T) {
	srv := serveJSON(t, http.StatusOK, `{"result":{"b":[["0.5","1"]],"a":[["0.6","1"]]}}`)

	book := NewRESTBook(BookOptions{Name: "bybit-rest", URL: srv.URL, Path: []string{"result"}, BidsKey: "b", AsksKey: "a"}, noopLogger())
	pair, err := book.FetchBook(context.Background())
	require.NoError(t, err)
	assert.True(t, pair.Bid.Equal(decimal.RequireFromString("0.5")))
}

func TestRESTBookFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"non-2xx", http.StatusBadGateway, `{"msg":"down"}`, ErrFetch},
		{"malformed json", http.StatusOK, `{"bids":[["1","1"]`, ErrMalformed},
		{"missing asks", http.StatusOK, `{"bids":[["1","1"]],"asks":[]}`, ErrMalformed},
		{"missing bids key", http.StatusOK, `{"asks":[["1","1"]]}`, ErrMalformed},
		{"level not array", http.StatusOK, `{"bids":[{"price":"1"}],"asks":[["1","1"]]}`, ErrMalformed},
		{"non-numeric price", http.StatusOK, `{"bids":[["abc","1"]],"asks":[["1","1"]]}`, ErrParse},
		{"negative price", http.StatusOK, `{"bids":[["-1","1"]],"asks":[["1","1"]]}`, ErrParse},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := serveJSON(t, tc.status, tc.body)
			book := NewRESTBook(BookOptions{Name: "test", URL: srv.URL}, noopLogger())

			pair, err := book.FetchBook(context.Background())
			require.ErrorIs(t, err, tc.want)
			assert.Nil(t, pair, "pair must never be partially populated")
		})
	}
}

func TestRESTBookUnreachable(t *testing.T) {
	srv := serveJSON(t, http.StatusOK, `{}`)
	srv.Close()

	book := NewRESTBook(BookOptions{Name: "gone", URL: srv.URL, Timeout: 200 * time.Millisecond}, noopLogger())
	_, err := book.FetchBook(context.Background())
	require.ErrorIs(t, err, ErrFetch)
}

func TestBookRateMapsSides(t *testing.T) {
	srv := serveJSON(t, http.StatusOK, `{"bids":[["9.99","1"]],"asks":[["10.01","1"]]}`)
	rate, err := NewBookRate(NewRESTBook(BookOptions{Name: "gate", URL: srv.URL}, noopLogger())).FetchRate(context.Background())
	require.NoError(t, err)

	assert.True(t, rate.BuyRate.Equal(decimal.RequireFromString("10.01")))
	assert.True(t, rate.SellRate.Equal(decimal.RequireFromString("9.99")))
}

type emptyBook struct{}

func (emptyBook) FetchBook(context.Context) (*PricePair, error) { return nil, nil }

func TestBookRateRejectsEmptyBook(t *testing.T) {
	rate, err := NewBookRate(emptyBook{}).FetchRate(context.Background())
	assert.Nil(t, rate)
	assert.ErrorIs(t, err, ErrMalformed)
}
