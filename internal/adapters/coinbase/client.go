// Package coinbase implements the secondary spot-price provider client.
package coinbase

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
	defaultBaseURL = "https://api.coinbase.com"
	defaultTimeout = 7 * time.Second
)

// spotPairs maps price-feed asset keys onto Coinbase product pairs
var spotPairs = map[string]string{
	"bitcoin":  "BTC-USD",
	"ethereum": "ETH-USD",
	"solana":   "SOL-USD",
	"tether":   "USDT-USD",
}

// Config represents Coinbase API configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client queries Coinbase's public spot-price endpoint
type Client struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	logger         *zap.Logger
}

// NewClient creates a new Coinbase client
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}

	cbSettings := gobreaker.Settings{
		Name:        "CoinbaseAPI",
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

type spotResponse struct {
	Data struct {
		Amount string `json:"amount"`
	} `json:"data"`
}

// SpotPrice returns the USD unit price for a supported asset key
func (c *Client) SpotPrice(ctx context.Context, assetKey string) (decimal.Decimal, error) {
	pair, ok := spotPairs[assetKey]
	if !ok {
		return decimal.Zero, fmt.Errorf("coinbase pair not supported for %s: %w", assetKey, apperrors.ErrProviderUnavailable)
	}

	result, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return c.fetchPrice(ctx, pair)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return result.(decimal.Decimal), nil
}

func (c *Client) fetchPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/v2/prices/%s/spot?currency=USD", c.config.BaseURL, url.PathEscape(pair))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("coinbase request failed: %w: %v", apperrors.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read coinbase response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return decimal.Zero, fmt.Errorf("coinbase HTTP 429: %w", apperrors.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("coinbase HTTP %d: %w", resp.StatusCode, apperrors.ErrProviderUnavailable)
	}

	var payload spotResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode coinbase response: %w", err)
	}

	price, err := decimal.NewFromString(payload.Data.Amount)
	if err != nil || !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("coinbase returned no usable price for %s: %w", pair, apperrors.ErrProviderUnavailable)
	}

	c.logger.Debug("Coinbase price resolved",
		zap.String("pair", pair),
		zap.String("price", price.String()))

	return price, nil
}
