// Package ethrpc implements a minimal Ethereum JSON-RPC client covering the
// balance queries the payment watchers need.
package ethrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	apperrors "github.com/viewplay/vpc-sale-service/internal/domain/errors"
)

const defaultTimeout = 15 * time.Second

// Block tags accepted by the balance queries
const (
	TagLatest    = "latest"
	TagFinalized = "finalized"
)

// balanceOf(address) selector
const erc20BalanceOfSelector = "0x70a08231"

// Config represents Ethereum RPC configuration
type Config struct {
	RPCURL  string
	Timeout time.Duration
}

// Client speaks JSON-RPC 2.0 to an Ethereum node
type Client struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	logger         *zap.Logger
}

// NewClient creates a new Ethereum RPC client
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	cbSettings := gobreaker.Settings{
		Name:        "EthRPC",
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

// Configured reports whether an RPC endpoint is set
func (c *Client) Configured() bool {
	return strings.HasPrefix(c.config.RPCURL, "http")
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

// NativeBalance returns the ETH balance of an address at the given block tag
func (c *Client) NativeBalance(ctx context.Context, address, blockTag string) (decimal.Decimal, error) {
	raw, err := c.call(ctx, "eth_getBalance", []interface{}{address, blockTag})
	if err != nil {
		return decimal.Zero, err
	}
	return weiToDecimal(raw, 18)
}

// TokenBalance returns the ERC-20 balance of holder on contract at the given
// block tag, scaled by the token's decimals.
func (c *Client) TokenBalance(ctx context.Context, contract, holder, blockTag string, decimals int32) (decimal.Decimal, error) {
	data := erc20BalanceOfSelector + fmt.Sprintf("%064s", strings.TrimPrefix(strings.ToLower(holder), "0x"))
	params := []interface{}{
		map[string]string{"to": contract, "data": data},
		blockTag,
	}

	raw, err := c.call(ctx, "eth_call", params)
	if err != nil {
		return decimal.Zero, err
	}
	return weiToDecimal(raw, decimals)
}

func (c *Client) call(ctx context.Context, method string, params []interface{}) (string, error) {
	result, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return c.doCall(ctx, method, params)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *Client) doCall(ctx context.Context, method string, params []interface{}) (string, error) {
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return "", fmt.Errorf("failed to marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.RPCURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("eth rpc request failed: %w: %v", apperrors.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read eth rpc response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("eth rpc HTTP 429: %w", apperrors.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("eth rpc HTTP %d: %w", resp.StatusCode, apperrors.ErrProviderUnavailable)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return "", fmt.Errorf("failed to decode eth rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return "", fmt.Errorf("eth rpc error %d %s: %w", rpcResp.Error.Code, rpcResp.Error.Message, apperrors.ErrProviderUnavailable)
	}

	var hexValue string
	if err := json.Unmarshal(rpcResp.Result, &hexValue); err != nil {
		return "", fmt.Errorf("failed to decode eth rpc result: %w", err)
	}

	return hexValue, nil
}

// weiToDecimal converts a 0x-prefixed hex quantity into a decimal scaled
// down by the given number of decimals.
func weiToDecimal(hexValue string, decimals int32) (decimal.Decimal, error) {
	trimmed := strings.TrimPrefix(hexValue, "0x")
	if trimmed == "" {
		return decimal.Zero, nil
	}

	units, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return decimal.Zero, fmt.Errorf("invalid hex quantity %q", hexValue)
	}

	return decimal.NewFromBigInt(units, -decimals), nil
}
