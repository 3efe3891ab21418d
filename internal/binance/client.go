package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"crypto-pattern-bot/internal/logging"
	"crypto-pattern-bot/internal/market"
	"crypto-pattern-bot/internal/metrics"
)

// DefaultBaseURL is the public spot REST endpoint
const DefaultBaseURL = "https://api.binance.com"

// Client reads public market data from the Binance REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	guard      *RequestGuard
	metrics    *metrics.Registry
	logger     *logging.Logger
}

// NewClient creates a REST client. A zero timeout uses ten seconds.
func NewClient(baseURL string, requestsPerSecond float64, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	guardCfg := DefaultGuardConfig()
	guardCfg.RequestsPerSecond = requestsPerSecond
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		guard:      NewRequestGuard("binance-rest", guardCfg),
		logger:     logging.WithComponent("binance"),
	}
}

// WithMetrics attaches a Prometheus registry to the client
func (c *Client) WithMetrics(m *metrics.Registry) *Client {
	c.metrics = m
	return c
}

// BreakerState returns the state of the client's circuit breaker
func (c *Client) BreakerState() string {
	return c.guard.State()
}

// GetKlines fetches candlestick data
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	limit, err := validateRequest(symbol, interval, limit)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))
	endpoint := fmt.Sprintf("%s/api/v3/klines?%s", c.baseURL, params.Encode())

	res, err := c.guard.Do(ctx, func() (interface{}, error) {
		return c.fetchKlines(ctx, endpoint)
	})
	if err != nil {
		c.metrics.RecordMarketRequest("binance", "error")
		logging.BinanceAPIContext("/api/v3/klines", map[string]interface{}{
			"symbol":   symbol,
			"interval": interval,
		}).WithError(err).Warn("Kline request failed")
		return nil, err
	}
	c.metrics.RecordMarketRequest("binance", "ok")
	return res.([]Kline), nil
}

func (c *Client) fetchKlines(ctx context.Context, endpoint string) ([]Kline, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error building request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching klines: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var rawKlines [][]interface{}
	if err := json.Unmarshal(body, &rawKlines); err != nil {
		return nil, fmt.Errorf("error parsing klines: %w", err)
	}

	klines := make([]Kline, len(rawKlines))
	for i, raw := range rawKlines {
		k, err := parseKline(raw)
		if err != nil {
			return nil, fmt.Errorf("error parsing kline %d: %w", i, err)
		}
		klines[i] = k
	}
	return klines, nil
}

// GetBars fetches klines and converts them to bars. It implements
// market.Source.
func (c *Client) GetBars(ctx context.Context, symbol, interval string, limit int) ([]market.Bar, error) {
	klines, err := c.GetKlines(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	return ToBars(klines), nil
}
