// Package coingecko fetches reference market prices from the CoinGecko API.
package coingecko

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"cowswap-improvement/internal/domain"
	"cowswap-improvement/internal/logger"
	"cowswap-improvement/internal/observability"
	"cowswap-improvement/internal/source"
)

// Default configuration values.
const (
	DefaultBaseURL           = "https://api.coingecko.com/api/v3"
	DefaultTimeout           = 30 * time.Second
	DefaultRequestsPerMinute = 30
)

// Coin ids and quote currency used for the supported pairs.
const (
	CoinEthereum = "ethereum"
	CoinUSDC     = "usd-coin"
	VsCurrency   = "usd"
)

// ErrUnsupportedPair is returned when neither side of the pair is WETH or USDC.
var ErrUnsupportedPair = errors.New("unsupported token combination")

// HTTPClient implements source.PriceSource over the CoinGecko REST API.
type HTTPClient struct {
	baseURL   string
	apiKey    string
	apiHeader string
	client    *http.Client
	limiter   *rate.Limiter
	log       *logger.Entry
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithBaseURL overrides the API root.
func WithBaseURL(u string) ClientOption {
	return func(c *HTTPClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithAPIKey sends key in the demo-plan header.
func WithAPIKey(key string) ClientOption {
	return func(c *HTTPClient) {
		c.apiKey = key
		c.apiHeader = "x-cg-demo-api-key"
	}
}

// WithProAPIKey sends key in the pro-plan header.
func WithProAPIKey(key string) ClientOption {
	return func(c *HTTPClient) {
		c.apiKey = key
		c.apiHeader = "x-cg-pro-api-key"
	}
}

// WithRateLimit caps outgoing requests per minute. Zero disables limiting.
func WithRateLimit(perMinute int) ClientOption {
	return func(c *HTTPClient) {
		if perMinute <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
}

// WithLogger sets the log entry used by the client.
func WithLogger(l *logger.Log) ClientOption {
	return func(c *HTTPClient) {
		c.log = l.WithComponent("coingecko")
	}
}

// NewHTTPClient creates a new CoinGecko client.
func NewHTTPClient(opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: DefaultTimeout},
		log:     logger.GetLogger().WithComponent("coingecko"),
	}
	WithRateLimit(DefaultRequestsPerMinute)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ source.PriceSource = (*HTTPClient)(nil)

// CoinFor maps a token pair onto the CoinGecko coin id.
// A WETH side prices ethereum, otherwise a USDC side prices usd-coin.
func CoinFor(sellToken, buyToken string) (string, error) {
	switch {
	case domain.IsToken(buyToken, domain.TokenWETH) || domain.IsToken(sellToken, domain.TokenWETH):
		return CoinEthereum, nil
	case domain.IsToken(buyToken, domain.TokenUSDC) || domain.IsToken(sellToken, domain.TokenUSDC):
		return CoinUSDC, nil
	default:
		return "", fmt.Errorf("%w: sell_token=%s, buy_token=%s", ErrUnsupportedPair, sellToken, buyToken)
	}
}

type marketChartResponse struct {
	Prices [][2]json.Number `json:"prices"`
}

// FetchPriceRange returns USD prices of the pair's coin within [from, to]
// (epoch seconds). Timestamps are truncated to seconds and prices rounded to
// domain.PriceDecimals digits. Returns (nil, nil) when no prices are returned.
func (c *HTTPClient) FetchPriceRange(ctx context.Context, from, to int64, sellToken, buyToken string) ([]*domain.PricePoint, error) {
	coin, err := CoinFor(sellToken, buyToken)
	if err != nil {
		c.log.WithError(err).Error("only WETH and USDC are supported")
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	q := url.Values{}
	q.Set("vs_currency", VsCurrency)
	q.Set("from", strconv.FormatInt(from, 10))
	q.Set("to", strconv.FormatInt(to, 10))
	endpoint := fmt.Sprintf("%s/coins/%s/market_chart/range?%s", c.baseURL, coin, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(c.apiHeader, c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		observability.RecordHTTPRequest("coingecko", 0, time.Since(start).Seconds(), err)
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err == nil && resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("failed to fetch data: http status %d", resp.StatusCode)
	}
	observability.RecordHTTPRequest("coingecko", resp.StatusCode, time.Since(start).Seconds(), err)

	c.log.WithFields(logger.Fields{
		"coin":   coin,
		"from":   from,
		"to":     to,
		"status": resp.StatusCode,
	}).Info("api request")

	if err != nil {
		return nil, err
	}

	var parsed marketChartResponse
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(parsed.Prices) == 0 {
		c.log.WithField("coin", coin).Warn("no price data found")
		return nil, nil
	}

	points := make([]*domain.PricePoint, 0, len(parsed.Prices))
	for i, pair := range parsed.Prices {
		ms, err := decimal.NewFromString(pair[0].String())
		if err != nil {
			return nil, fmt.Errorf("price %d: timestamp %q: %w", i, pair[0], err)
		}
		price, err := decimal.NewFromString(pair[1].String())
		if err != nil {
			return nil, fmt.Errorf("price %d: value %q: %w", i, pair[1], err)
		}
		points = append(points, &domain.PricePoint{
			BlockTimestamp: ms.Div(decimal.NewFromInt(1000)).IntPart(),
			Price:          price.Round(domain.PriceDecimals),
		})
	}

	return points, nil
}
