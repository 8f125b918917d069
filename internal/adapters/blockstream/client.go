// Package blockstream implements a Bitcoin explorer client following the
// blockstream.info/esplora API shape.
package blockstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	apperrors "github.com/viewplay/vpc-sale-service/internal/domain/errors"
)

const (
	defaultBaseURL = "https://blockstream.info/api"
	defaultTimeout = 15 * time.Second
)

// Transaction is one transaction touching a queried address
type Transaction struct {
	TxID   string `json:"txid"`
	Status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int64 `json:"block_height"`
	} `json:"status"`
	Vout []Output `json:"vout"`
}

// Output is a transaction output
type Output struct {
	ScriptPubKeyAddress string `json:"scriptpubkey_address"`
	Value               int64  `json:"value"`
}

// Config represents explorer API configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client queries a blockstream-style Bitcoin explorer
type Client struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	logger         *zap.Logger
}

// NewClient creates a new explorer client
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}

	cbSettings := gobreaker.Settings{
		Name:        "BlockstreamAPI",
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

// AddressTransactions lists transactions touching the given address,
// newest first, as the explorer returns them.
func (c *Client) AddressTransactions(ctx context.Context, address string) ([]Transaction, error) {
	result, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return c.fetchTransactions(ctx, address)
	})
	if err != nil {
		return nil, err
	}
	return result.([]Transaction), nil
}

func (c *Client) fetchTransactions(ctx context.Context, address string) ([]Transaction, error) {
	endpoint := fmt.Sprintf("%s/address/%s/txs", c.config.BaseURL, address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("btc explorer request failed: %w: %v", apperrors.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read btc explorer response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("btc explorer HTTP 429: %w", apperrors.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("btc explorer HTTP %d: %w", resp.StatusCode, apperrors.ErrProviderUnavailable)
	}

	var txs []Transaction
	if err := json.Unmarshal(body, &txs); err != nil {
		return nil, fmt.Errorf("failed to decode btc explorer response: %w", err)
	}

	c.logger.Debug("BTC address transactions fetched",
		zap.String("address", address),
		zap.Int("count", len(txs)))

	return txs, nil
}
