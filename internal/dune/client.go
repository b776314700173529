// Package dune reads saved-query results from the Dune Analytics API.
package dune

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"cowswap-improvement/internal/domain"
	"cowswap-improvement/internal/logger"
	"cowswap-improvement/internal/observability"
	"cowswap-improvement/internal/source"
)

// Default configuration values.
const (
	DefaultBaseURL = "https://api.dune.com"
	DefaultTimeout = 30 * time.Second
)

// Execution states reported by the results endpoint.
const (
	StateCompleted = "QUERY_STATE_COMPLETED"
	StateFailed    = "QUERY_STATE_FAILED"
	StateCancelled = "QUERY_STATE_CANCELLED"
	StateExpired   = "QUERY_STATE_EXPIRED"
)

// ErrQueryFailed is returned when the latest execution did not complete.
var ErrQueryFailed = errors.New("dune query execution failed")

// HTTPClient implements source.TradeSource over the Dune REST API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	log     *logger.Entry
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
		c.log = l.WithComponent("dune")
	}
}

// NewHTTPClient creates a new Dune client authenticated with apiKey.
func NewHTTPClient(apiKey string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: DefaultTimeout},
		limiter: rate.NewLimiter(rate.Inf, 1),
		log:     logger.GetLogger().WithComponent("dune"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ source.TradeSource = (*HTTPClient)(nil)

// resultsResponse is the body of GET /api/v1/query/{id}/results.
type resultsResponse struct {
	ExecutionID string `json:"execution_id"`
	QueryID     int    `json:"query_id"`
	State       string `json:"state"`
	Result      *struct {
		Rows []map[string]any `json:"rows"`
	} `json:"result"`
	Error any `json:"error,omitempty"`
}

// FetchLatestResult returns the rows of the latest execution of queryID.
// Returns (nil, nil) when the result holds no rows or no row has a block_time.
func (c *HTTPClient) FetchLatestResult(ctx context.Context, queryID int) ([]*domain.TradeRecord, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/query/%d/results", c.baseURL, queryID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Dune-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		observability.RecordHTTPRequest("dune", 0, time.Since(start).Seconds(), err)
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err == nil && resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("http status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	observability.RecordHTTPRequest("dune", resp.StatusCode, time.Since(start).Seconds(), err)
	if err != nil {
		return nil, err
	}

	c.log.WithFields(logger.Fields{
		"query_id": queryID,
		"status":   resp.StatusCode,
	}).Info("fetched latest query result")

	var parsed resultsResponse
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	switch parsed.State {
	case StateFailed, StateCancelled, StateExpired:
		return nil, fmt.Errorf("%w: query %d state %s", ErrQueryFailed, queryID, parsed.State)
	}

	if parsed.Result == nil || len(parsed.Result.Rows) == 0 {
		c.log.WithField("query_id", queryID).Warn("no results found or query is still running")
		return nil, nil
	}

	trades := make([]*domain.TradeRecord, 0, len(parsed.Result.Rows))
	withTime := 0
	for _, row := range parsed.Result.Rows {
		t := decodeRow(row)
		if t.BlockTime != "" {
			withTime++
		}
		trades = append(trades, t)
	}

	if withTime == 0 {
		c.log.WithField("query_id", queryID).Warn("no valid data found in query results")
		return nil, nil
	}

	return trades, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
