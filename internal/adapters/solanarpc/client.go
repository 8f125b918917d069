// Package solanarpc implements a minimal Solana JSON-RPC client covering
// balance and signature queries for the payment watchers.
package solanarpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	apperrors "github.com/viewplay/vpc-sale-service/internal/domain/errors"
)

const (
	defaultRPCURL  = "https://api.mainnet-beta.solana.com"
	defaultTimeout = 15 * time.Second

	lamportsPerSOL = 1_000_000_000
)

// Commitment levels used by the watchers
const (
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// Config represents Solana RPC configuration
type Config struct {
	RPCURL  string
	Timeout time.Duration
}

// Client speaks JSON-RPC to a Solana node
type Client struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	logger         *zap.Logger
}

// NewClient creates a new Solana RPC client
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.RPCURL == "" {
		config.RPCURL = defaultRPCURL
	}

	cbSettings := gobreaker.Settings{
		Name:        "SolanaRPC",
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

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Balance returns the SOL balance of an address at the given commitment
func (c *Client) Balance(ctx context.Context, address, commitment string) (decimal.Decimal, error) {
	params := []interface{}{address, map[string]string{"commitment": commitment}}

	raw, err := c.call(ctx, "getBalance", params)
	if err != nil {
		return decimal.Zero, err
	}

	var result struct {
		Value int64 `json:"value"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode balance result: %w", err)
	}

	return decimal.NewFromInt(result.Value).Div(decimal.NewFromInt(lamportsPerSOL)), nil
}

// TokenBalance returns the aggregate SPL token balance held by owner for the
// given mint at the given commitment.
func (c *Client) TokenBalance(ctx context.Context, owner, mint, commitment string) (decimal.Decimal, error) {
	params := []interface{}{
		owner,
		map[string]string{"mint": mint},
		map[string]string{"encoding": "jsonParsed", "commitment": commitment},
	}

	raw, err := c.call(ctx, "getTokenAccountsByOwner", params)
	if err != nil {
		return decimal.Zero, err
	}

	var result struct {
		Value []struct {
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							TokenAmount struct {
								UIAmountString string `json:"uiAmountString"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode token accounts result: %w", err)
	}

	total := decimal.Zero
	for _, acct := range result.Value {
		amount, err := decimal.NewFromString(acct.Account.Data.Parsed.Info.TokenAmount.UIAmountString)
		if err != nil {
			continue
		}
		total = total.Add(amount)
	}

	return total, nil
}

// LatestSignature returns the most recent transaction signature touching the
// address, or empty when the address has no history yet.
func (c *Client) LatestSignature(ctx context.Context, address, commitment string) (string, error) {
	params := []interface{}{
		address,
		map[string]interface{}{"limit": 1, "commitment": commitment},
	}

	raw, err := c.call(ctx, "getSignaturesForAddress", params)
	if err != nil {
		return "", err
	}

	var result []struct {
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("failed to decode signatures result: %w", err)
	}
	if len(result) == 0 {
		return "", nil
	}

	return result[0].Signature, nil
}

func (c *Client) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	result, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return c.doCall(ctx, method, params)
	})
	if err != nil {
		return nil, err
	}
	return result.(json.RawMessage), nil
}

func (c *Client) doCall(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.RPCURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("solana rpc request failed: %w: %v", apperrors.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read solana rpc response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("solana rpc HTTP 429: %w", apperrors.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("solana rpc HTTP %d: %w", resp.StatusCode, apperrors.ErrProviderUnavailable)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode solana rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("solana rpc error %d %s: %w", rpcResp.Error.Code, rpcResp.Error.Message, apperrors.ErrProviderUnavailable)
	}

	return rpcResp.Result, nil
}
