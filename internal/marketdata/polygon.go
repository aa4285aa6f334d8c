package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// PolygonConfig holds configuration for the Polygon.io history client.
type PolygonConfig struct {
	APIKey          string
	BaseURL         string
	LookbackDays    int
	RateLimitPerSec float64
	TimeoutSeconds  int
	MaxRetries      int
	BackoffBaseMs   int
}

// PolygonClient fetches daily aggregate bars from Polygon.io. Safe for
// concurrent use; the shared rate limiter keeps us under the API quota.
type PolygonClient struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	config      PolygonConfig
	logger      *logrus.Logger
}

// NewPolygonClient creates a Polygon.io daily-aggregates client.
func NewPolygonClient(config PolygonConfig, logger *logrus.Logger) (*PolygonClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("polygon API key is required")
	}

	if config.BaseURL == "" {
		config.BaseURL = "https://api.polygon.io"
	}
	if config.LookbackDays <= 0 {
		// 60 trading days of history plus weekend/holiday slack.
		config.LookbackDays = 120
	}
	if config.RateLimitPerSec <= 0 {
		config.RateLimitPerSec = 5
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = 10
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.BackoffBaseMs <= 0 {
		config.BackoffBaseMs = 500
	}

	return &PolygonClient{
		apiKey:  config.APIKey,
		baseURL: config.BaseURL,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(config.RateLimitPerSec), 1),
		config:      config,
		logger:      logger,
	}, nil
}

// PriceHistory fetches daily close bars for symbol covering the
// configured lookback window, oldest first as delivered by the API.
func (p *PolygonClient) PriceHistory(ctx context.Context, symbol string) (Series, error) {
	if symbol == "" {
		return nil, fmt.Errorf("empty symbol")
	}

	if err := p.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled for %s: %w", symbol, err)
	}

	now := time.Now().UTC()
	from := now.AddDate(0, 0, -p.config.LookbackDays)

	requestURL := fmt.Sprintf("%s/v2/aggs/ticker/%s/range/1/day/%s/%s?%s",
		p.baseURL,
		url.PathEscape(symbol),
		from.Format("2006-01-02"),
		now.Format("2006-01-02"),
		url.Values{
			"adjusted": {"true"},
			"sort":     {"asc"},
			"limit":    {"5000"},
			"apiKey":   {p.apiKey},
		}.Encode(),
	)

	var lastErr error
	for attempt := 0; attempt < p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(p.config.BackoffBaseMs*(1<<attempt)) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		series, err := p.fetchAggregates(ctx, requestURL, symbol)
		if err != nil {
			lastErr = err
			p.logger.WithError(err).WithField("symbol", symbol).Warn("Price history fetch failed")
			continue
		}
		return series, nil
	}

	return nil, lastErr
}

func (p *PolygonClient) fetchAggregates(ctx context.Context, requestURL, symbol string) (Series, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", symbol, err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price history request for %s failed: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("polygon rate limit exceeded for %s", symbol)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("polygon HTTP %d for %s: %s", resp.StatusCode, symbol, string(body))
	}

	var response struct {
		Status       string `json:"status"`
		ResultsCount int    `json:"resultsCount"`
		Results      []struct {
			T int64           `json:"t"` // bar start, ms since epoch
			C decimal.Decimal `json:"c"` // close
		} `json:"results"`
		Error string `json:"error"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to parse polygon response for %s: %w", symbol, err)
	}

	if response.Status != "OK" && response.Status != "DELAYED" {
		if response.Error != "" {
			return nil, fmt.Errorf("polygon error for %s: %s", symbol, response.Error)
		}
		return nil, fmt.Errorf("polygon non-OK status for %s: %s", symbol, response.Status)
	}

	series := make(Series, 0, len(response.Results))
	for _, r := range response.Results {
		series = append(series, Bar{
			Time:  time.UnixMilli(r.T).UTC(),
			Close: r.C,
		})
	}
	return series, nil
}
