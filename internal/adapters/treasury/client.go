// Package treasury implements the client for the external signing service
// that executes SPL token payouts. Keys never live in this process; the
// treasury holds them and exposes a single send operation.
package treasury

import (
	"bytes"
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

const defaultTimeout = 45 * time.Second

// Config represents treasury service configuration
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client submits payout requests to the treasury signer
type Client struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	logger         *zap.Logger
}

// NewClient creates a new treasury client
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	cbSettings := gobreaker.Settings{
		Name:        "TreasuryAPI",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Treasury circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		config:         config,
		httpClient:     &http.Client{Timeout: config.Timeout},
		circuitBreaker: gobreaker.NewCircuitBreaker(cbSettings),
		logger:         logger,
	}
}

type sendRequest struct {
	Recipient string `json:"recipient"`
	Mint      string `json:"mint"`
	Amount    int64  `json:"amount"`
}

type sendResponse struct {
	Signature string `json:"signature"`
	Error     string `json:"error"`
}

// SendToken asks the treasury to transfer amount base units of mint to the
// recipient and returns the transaction signature.
func (c *Client) SendToken(ctx context.Context, recipient, mint string, amount int64) (string, error) {
	result, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return c.doSend(ctx, recipient, mint, amount)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *Client) doSend(ctx context.Context, recipient, mint string, amount int64) (string, error) {
	payload, err := json.Marshal(sendRequest{Recipient: recipient, Mint: mint, Amount: amount})
	if err != nil {
		return "", fmt.Errorf("failed to marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/send", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("treasury request failed: %w: %v", apperrors.ErrSendFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read treasury response: %w: %v", apperrors.ErrSendFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("treasury HTTP %d: %w", resp.StatusCode, apperrors.ErrSendFailed)
	}

	var sendResp sendResponse
	if err := json.Unmarshal(body, &sendResp); err != nil {
		return "", fmt.Errorf("failed to decode treasury response: %w: %v", apperrors.ErrSendFailed, err)
	}
	if sendResp.Error != "" || sendResp.Signature == "" {
		return "", fmt.Errorf("treasury rejected payout: %s: %w", sendResp.Error, apperrors.ErrSendFailed)
	}

	c.logger.Info("Treasury payout submitted",
		zap.String("recipient", recipient),
		zap.Int64("amount", amount),
		zap.String("signature", sendResp.Signature))

	return sendResp.Signature, nil
}
