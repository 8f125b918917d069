// Package trongrid implements a TronGrid client for TRC-20 transfer queries.
package trongrid

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
	defaultBaseURL = "https://api.trongrid.io"
	defaultTimeout = 15 * time.Second
)

// Transfer is one TRC-20 transfer credited to a queried address
type Transfer struct {
	TransactionID string `json:"transaction_id"`
	To            string `json:"to"`
	Value         string `json:"value"`
	TokenInfo     struct {
		Address  string `json:"address"`
		Decimals int32  `json:"decimals"`
	} `json:"token_info"`
}

// Amount converts the raw transfer value into token units
func (t Transfer) Amount() decimal.Decimal {
	raw, err := decimal.NewFromString(t.Value)
	if err != nil {
		return decimal.Zero
	}
	return raw.Shift(-t.TokenInfo.Decimals)
}

// Config represents TronGrid API configuration
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client queries TronGrid's account TRC-20 transaction endpoint
type Client struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	logger         *zap.Logger
}

// NewClient creates a new TronGrid client
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}

	cbSettings := gobreaker.Settings{
		Name:        "TronGridAPI",
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

type transfersResponse struct {
	Data    []Transfer `json:"data"`
	Success bool       `json:"success"`
}

// TRC20Transfers lists confirmed TRC-20 transfers into the given address for
// a specific token contract, newest first.
func (c *Client) TRC20Transfers(ctx context.Context, address, contract string) ([]Transfer, error) {
	result, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return c.fetchTransfers(ctx, address, contract)
	})
	if err != nil {
		return nil, err
	}
	return result.([]Transfer), nil
}

func (c *Client) fetchTransfers(ctx context.Context, address, contract string) ([]Transfer, error) {
	endpoint := fmt.Sprintf(
		"%s/v1/accounts/%s/transactions/trc20?only_to=true&only_confirmed=true&contract_address=%s&limit=50",
		c.config.BaseURL, url.PathEscape(address), url.QueryEscape(contract),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("TRON-PRO-API-KEY", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trongrid request failed: %w: %v", apperrors.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read trongrid response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("trongrid HTTP 429: %w", apperrors.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("trongrid HTTP %d: %w", resp.StatusCode, apperrors.ErrProviderUnavailable)
	}

	var payload transfersResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode trongrid response: %w", err)
	}

	c.logger.Debug("TRC-20 transfers fetched",
		zap.String("address", address),
		zap.Int("count", len(payload.Data)))

	return payload.Data, nil
}
