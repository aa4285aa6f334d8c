package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// entered-time format required by the orders endpoints
const schwabTimeFormat = "2006-01-02T15:04:05.000Z"

// SchwabConfig holds configuration for the Schwab trader API client.
type SchwabConfig struct {
	BaseURL         string
	AccessToken     string
	RateLimitPerSec float64
	TimeoutSeconds  int
	MaxRetries      int
	BackoffBaseMs   int
}

// SchwabClient implements Brokerage against the Schwab trader API.
// Safe for concurrent use; all requests share one rate limiter.
type SchwabClient struct {
	config      SchwabConfig
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      *logrus.Logger
}

func NewSchwabClient(config SchwabConfig, logger *logrus.Logger) (*SchwabClient, error) {
	if config.AccessToken == "" {
		return nil, fmt.Errorf("schwab access token is required")
	}

	if config.BaseURL == "" {
		config.BaseURL = "https://api.schwabapi.com"
	}
	if config.RateLimitPerSec <= 0 {
		config.RateLimitPerSec = 2
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

	return &SchwabClient{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(config.RateLimitPerSec), 2),
		logger:      logger,
	}, nil
}

// CurrentQuotes fetches bid/ask/last for the given symbols in one call.
// Symbols absent from the response are simply absent from the result;
// the quote book decides how to treat them.
func (c *SchwabClient) CurrentQuotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	if len(symbols) == 0 {
		return map[string]Quote{}, nil
	}

	requestURL := fmt.Sprintf("%s/marketdata/v1/quotes?%s", c.config.BaseURL, url.Values{
		"symbols": {strings.Join(symbols, ",")},
		"fields":  {"quote"},
	}.Encode())

	body, _, err := c.do(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}

	var response map[string]struct {
		Realtime bool `json:"realtime"`
		Quote    struct {
			BidPrice  decimal.Decimal `json:"bidPrice"`
			AskPrice  decimal.Decimal `json:"askPrice"`
			LastPrice decimal.Decimal `json:"lastPrice"`
		} `json:"quote"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, NewProviderError("", "failed to parse quotes response", err)
	}

	quotes := make(map[string]Quote, len(response))
	for symbol, entry := range response {
		quotes[symbol] = Quote{
			Symbol:   symbol,
			Bid:      entry.Quote.BidPrice,
			Ask:      entry.Quote.AskPrice,
			Last:     entry.Quote.LastPrice,
			Realtime: entry.Realtime,
		}
	}
	return quotes, nil
}

// Orders lists orders entered in [from, to] for the account.
func (c *SchwabClient) Orders(ctx context.Context, account string, from, to time.Time) ([]OrderSummary, error) {
	requestURL := fmt.Sprintf("%s/trader/v1/accounts/%s/orders?%s",
		c.config.BaseURL, url.PathEscape(account), url.Values{
			"fromEnteredTime": {from.UTC().Format(schwabTimeFormat)},
			"toEnteredTime":   {to.UTC().Format(schwabTimeFormat)},
		}.Encode())

	body, _, err := c.do(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}

	var response []struct {
		OrderID    json.Number `json:"orderId"`
		Cancelable bool        `json:"cancelable"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, NewProviderError("", "failed to parse orders response", err)
	}

	orders := make([]OrderSummary, 0, len(response))
	for _, o := range response {
		orders = append(orders, OrderSummary{ID: o.OrderID.String(), Cancelable: o.Cancelable})
	}
	return orders, nil
}

func (c *SchwabClient) CancelOrder(ctx context.Context, account, orderID string) error {
	requestURL := fmt.Sprintf("%s/trader/v1/accounts/%s/orders/%s",
		c.config.BaseURL, url.PathEscape(account), url.PathEscape(orderID))
	_, _, err := c.do(ctx, http.MethodDelete, requestURL, nil)
	return err
}

// PlaceMarketOrder submits a whole-share day market order and returns
// the brokerage-assigned order id.
func (c *SchwabClient) PlaceMarketOrder(ctx context.Context, account, symbol string, quantity int64, side Side) (string, error) {
	if quantity <= 0 {
		return "", NewBadSymbolError(symbol, fmt.Sprintf("invalid order quantity %d", quantity))
	}

	order := map[string]any{
		"orderType":         "MARKET",
		"session":           "NORMAL",
		"duration":          "DAY",
		"orderStrategyType": "SINGLE",
		"orderLegCollection": []map[string]any{{
			"instruction": string(side),
			"quantity":    quantity,
			"instrument": map[string]any{
				"symbol":    symbol,
				"assetType": "EQUITY",
			},
		}},
	}
	payload, err := json.Marshal(order)
	if err != nil {
		return "", fmt.Errorf("marshaling order for %s: %w", symbol, err)
	}

	requestURL := fmt.Sprintf("%s/trader/v1/accounts/%s/orders", c.config.BaseURL, url.PathEscape(account))
	_, header, err := c.do(ctx, http.MethodPost, requestURL, payload)
	if err != nil {
		return "", err
	}

	// The order id is the last path segment of the Location header.
	location := header.Get("Location")
	if location == "" {
		return "", NewProviderError(symbol, "order placed but no Location header returned", nil)
	}
	parts := strings.Split(strings.TrimRight(location, "/"), "/")
	return parts[len(parts)-1], nil
}

// Order fetches the current status and execution activity of an order.
func (c *SchwabClient) Order(ctx context.Context, account, orderID string) (OrderDetail, error) {
	requestURL := fmt.Sprintf("%s/trader/v1/accounts/%s/orders/%s",
		c.config.BaseURL, url.PathEscape(account), url.PathEscape(orderID))

	body, _, err := c.do(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return OrderDetail{}, err
	}

	var response struct {
		OrderID                 json.Number     `json:"orderId"`
		Status                  string          `json:"status"`
		FilledQuantity          decimal.Decimal `json:"filledQuantity"`
		OrderActivityCollection []Activity      `json:"orderActivityCollection"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return OrderDetail{}, NewProviderError("", "failed to parse order response", err)
	}

	return OrderDetail{
		ID:             response.OrderID.String(),
		Status:         OrderStatus(response.Status),
		FilledQuantity: response.FilledQuantity,
		Activities:     response.OrderActivityCollection,
	}, nil
}

// do executes one HTTP call with rate limiting and bounded retries.
func (c *SchwabClient) do(ctx context.Context, method, requestURL string, payload []byte) ([]byte, http.Header, error) {
	var lastErr error
	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(c.config.BackoffBaseMs*(1<<attempt)) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, nil, NewNetworkError("", "rate limit wait cancelled", err)
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, requestURL, reqBody)
		if err != nil {
			return nil, nil, NewNetworkError("", "failed to create request", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = NewNetworkError("", "request failed", err)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = NewNetworkError("", "failed to read response", readErr)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = NewRateLimitError("", "API rate limit exceeded")
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = NewProviderError("", fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)), nil)
			continue
		}
		if resp.StatusCode >= 400 {
			return nil, nil, NewProviderError("", fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)), nil)
		}

		return body, resp.Header, nil
	}

	return nil, nil, lastErr
}
