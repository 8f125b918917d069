// Package coingecko implements the primary spot-price provider client.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	apperrors "github.com/viewplay/vpc-sale-service/internal/domain/errors"
)

const (
	defaultBaseURL = "https://api.coingecko.com"
	defaultTimeout = 7 * time.Second
)

// Config represents CoinGecko API configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client queries CoinGecko's simple-price endpoint
type Client struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	logger         *zap.Logger
}

// NewClient creates a new CoinGecko client
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}

	cbSettings := gobreaker.Settings{
		Name:        "CoinGeckoAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	}

	return &Client{
		config:         config,
		httpClient:     &http.Client{Timeout: config.Timeout},
		circuitBreaker: gobreaker.NewCircuitBreaker(cbSettings),
		logger:         logger,
	}
}

// SpotPrice returns the USD unit price for a CoinGecko asset id
func (c *Client) SpotPrice(ctx context.Context, assetKey string) (decimal.Decimal, error) {
	result, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return c.fetchPrice(ctx, assetKey)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return result.(decimal.Decimal), nil
}

func (c *Client) fetchPrice(ctx context.Context, assetKey string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/api/v3/simple/price?ids=%s&vs_currencies=usd",
		c.config.BaseURL, url.QueryEscape(assetKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("coingecko request failed: %w: %v", apperrors.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read coingecko response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return decimal.Zero, fmt.Errorf("coingecko HTTP 429: %w", apperrors.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("coingecko HTTP %d: %w", resp.StatusCode, apperrors.ErrProviderUnavailable)
	}

	var payload map[string]map[string]decimal.Decimal
	if err := json.Unmarshal(body, &payload); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode coingecko response: %w", err)
	}

	price, ok := payload[assetKey]["usd"]
	if !ok || !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("coingecko returned no usable price for %s: %w", assetKey, apperrors.ErrProviderUnavailable)
	}

	c.logger.Debug("CoinGecko price resolved",
		zap.String("asset", assetKey),
		zap.String("price", price.String()))

	return price, nil
}
