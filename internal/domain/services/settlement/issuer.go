// Package settlement issues the on-chain VPC payout that fulfills an order.
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/viewplay/vpc-sale-service/internal/domain/errors"
)

// Issuer executes a token payout and returns a transaction reference.
// Idempotency is the caller's responsibility: the reconciliation worker
// invokes Send at most once per order transition into PAID.
type Issuer interface {
	Send(ctx context.Context, recipient string, amount int64) (string, error)
}

// TreasuryClient is the slice of the treasury adapter the issuer needs
type TreasuryClient interface {
	SendToken(ctx context.Context, recipient, mint string, amount int64) (string, error)
}

// SolanaIssuer pays out VPC as an SPL token transfer via the treasury
// signing service. A bounded timeout wraps each call; a timed-out payout is
// treated as failed.
type SolanaIssuer struct {
	treasury TreasuryClient
	mint     string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewSolanaIssuer creates the SPL settlement issuer
func NewSolanaIssuer(treasury TreasuryClient, mint string, timeout time.Duration, logger *zap.Logger) *SolanaIssuer {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &SolanaIssuer{
		treasury: treasury,
		mint:     mint,
		timeout:  timeout,
		logger:   logger,
	}
}

// Send implements Issuer
func (i *SolanaIssuer) Send(ctx context.Context, recipient string, amount int64) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("payout amount must be positive: %w", apperrors.ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	sig, err := i.treasury.SendToken(ctx, recipient, i.mint, amount)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("payout timed out after %s: %w", i.timeout, apperrors.ErrSendFailed)
		}
		return "", fmt.Errorf("payout failed: %w", err)
	}

	return sig, nil
}

// ProratedAmount scales the full token payout by the received fraction of
// the expected payment: floor(full * min(1, received/expected)), never more
// than full and never below 1 for a payable order.
func ProratedAmount(full int64, received, expected decimal.Decimal) int64 {
	if full <= 0 {
		return 0
	}
	if !expected.IsPositive() || received.GreaterThanOrEqual(expected) {
		return full
	}

	fraction := received.Div(expected)
	amount := decimal.NewFromInt(full).Mul(fraction).Floor().IntPart()
	if amount < 1 {
		return 1
	}
	return amount
}
