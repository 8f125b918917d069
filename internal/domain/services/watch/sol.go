package watch

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/viewplay/vpc-sale-service/internal/adapters/solanarpc"
	"github.com/viewplay/vpc-sale-service/internal/domain/entities"
)

// SolRPC is the slice of the Solana client the watcher needs
type SolRPC interface {
	Balance(ctx context.Context, address, commitment string) (decimal.Decimal, error)
	TokenBalance(ctx context.Context, owner, mint, commitment string) (decimal.Decimal, error)
	LatestSignature(ctx context.Context, address, commitment string) (string, error)
}

// SolWatcher checks deposit-address balances on Solana. The "confirmed"
// commitment gates Seen; "finalized" gates Confirmed.
type SolWatcher struct {
	rpc          SolRPC
	tokenMint    string
	tolerancePct decimal.Decimal
	logger       *zap.Logger
}

// NewSolWatcher creates a watcher for native SOL payments. With a non-empty
// tokenMint it watches SPL token balances for that mint instead.
func NewSolWatcher(rpc SolRPC, tokenMint string, tolerancePct float64, logger *zap.Logger) *SolWatcher {
	return &SolWatcher{
		rpc:          rpc,
		tokenMint:    tokenMint,
		tolerancePct: decimal.NewFromFloat(tolerancePct),
		logger:       logger,
	}
}

// Check implements Watcher
func (w *SolWatcher) Check(ctx context.Context, order *entities.Order) (Result, error) {
	confirmed, err := w.balance(ctx, order.DepositAddress, solanarpc.CommitmentConfirmed)
	if err != nil {
		return Result{}, err
	}
	if !confirmed.IsPositive() {
		return Result{}, nil
	}

	sig, err := w.rpc.LatestSignature(ctx, order.DepositAddress, solanarpc.CommitmentConfirmed)
	if err != nil {
		return Result{}, err
	}

	result := Result{Seen: true, Received: confirmed, TxID: sig}
	if !matches(confirmed, order.ExpectedAmount, w.tolerancePct) {
		return result, nil
	}

	finalized, err := w.balance(ctx, order.DepositAddress, solanarpc.CommitmentFinalized)
	if err != nil {
		return Result{}, err
	}

	if matches(finalized, order.ExpectedAmount, w.tolerancePct) {
		result.Confirmed = true
		result.Received = finalized
	}

	return result, nil
}

func (w *SolWatcher) balance(ctx context.Context, address, commitment string) (decimal.Decimal, error) {
	if w.tokenMint != "" {
		return w.rpc.TokenBalance(ctx, address, w.tokenMint, commitment)
	}
	return w.rpc.Balance(ctx, address, commitment)
}
