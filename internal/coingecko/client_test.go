package coingecko

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoinFor(t *testing.T) {
	tests := []struct {
		sell, buy string
		want      string
		err       bool
	}{
		{"WETH", "USDC", CoinEthereum, false},
		{"usdc", "weth", CoinEthereum, false},
		{"DAI", "WETH", CoinEthereum, false},
		{"USDC", "DAI", CoinUSDC, false},
		{"DAI", "usdc", CoinUSDC, false},
		{"btc", "eth", "", true},
	}

	for _, tt := range tests {
		got, err := CoinFor(tt.sell, tt.buy)
		if tt.err {
			assert.True(t, errors.Is(err, ErrUnsupportedPair), "%s/%s: got %v", tt.sell, tt.buy, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s/%s", tt.sell, tt.buy)
	}
}

func TestHTTPClient_FetchPriceRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/ethereum/market_chart/range", r.URL.Path)
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currency"))
		assert.Equal(t, "1625097600", r.URL.Query().Get("from"))
		assert.Equal(t, "1625184000", r.URL.Query().Get("to"))
		assert.Equal(t, "demo-key", r.Header.Get("x-cg-demo-api-key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"prices": [[1625097600000, 2000.0], [1625184000999, 2100.123456789]]}`))
	}))
	defer server.Close()

	client := NewHTTPClient(WithBaseURL(server.URL), WithAPIKey("demo-key"), WithRateLimit(0))
	points, err := client.FetchPriceRange(context.Background(), 1625097600, 1625184000, "weth", "usdc")
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, int64(1625097600), points[0].BlockTimestamp)
	assert.True(t, points[0].Price.Equal(decimal.NewFromInt(2000)))
	assert.Equal(t, int64(1625184000), points[1].BlockTimestamp, "milliseconds truncated")
	assert.True(t, points[1].Price.Equal(decimal.RequireFromString("2100.12345679")), "rounded to 8 digits: %s", points[1].Price)
}

func TestHTTPClient_USDCOnlyUsesUSDCoin(t *testing.T) {
	var path atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		_, _ = w.Write([]byte(`{"prices": [[1000, 1.0001]]}`))
	}))
	defer server.Close()

	client := NewHTTPClient(WithBaseURL(server.URL), WithRateLimit(0))
	points, err := client.FetchPriceRange(context.Background(), 0, 10, "DAI", "USDC")
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "/coins/usd-coin/market_chart/range", path.Load())
	assert.Equal(t, int64(1), points[0].BlockTimestamp)
}

func TestHTTPClient_UnsupportedPairMakesNoRequest(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	client := NewHTTPClient(WithBaseURL(server.URL))
	points, err := client.FetchPriceRange(context.Background(), 1625097600, 1625184000, "btc", "eth")

	assert.Nil(t, points)
	assert.True(t, errors.Is(err, ErrUnsupportedPair))
	assert.Equal(t, int32(0), calls.Load())
}

func TestHTTPClient_EmptyPrices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"prices": []}`))
	}))
	defer server.Close()

	points, err := NewHTTPClient(WithBaseURL(server.URL)).FetchPriceRange(context.Background(), 1, 2, "WETH", "USDC")
	require.NoError(t, err)
	assert.Nil(t, points)
}

func TestHTTPClient_APIFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewHTTPClient(WithBaseURL(server.URL)).FetchPriceRange(context.Background(), 1, 2, "WETH", "USDC")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Equal(t, int32(1), calls.Load(), "no retries")
}

func TestHTTPClient_ProKeyHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pro-key", r.Header.Get("x-cg-pro-api-key"))
		assert.Empty(t, r.Header.Get("x-cg-demo-api-key"))
		_, _ = w.Write([]byte(`{"prices": [[1000, 1]]}`))
	}))
	defer server.Close()

	_, err := NewHTTPClient(WithBaseURL(server.URL), WithProAPIKey("pro-key")).FetchPriceRange(context.Background(), 1, 2, "WETH", "USDC")
	require.NoError(t, err)
}

func TestHTTPClient_ConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewHTTPClient(WithBaseURL(url)).FetchPriceRange(context.Background(), 1, 2, "WETH", "USDC")
	assert.Error(t, err)
}
