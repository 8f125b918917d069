package watch

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/viewplay/vpc-sale-service/internal/adapters/ethrpc"
	"github.com/viewplay/vpc-sale-service/internal/domain/entities"
)

const usdtERC20Decimals = 6

// EthRPC is the slice of the Ethereum client the watcher needs
type EthRPC interface {
	Configured() bool
	NativeBalance(ctx context.Context, address, blockTag string) (decimal.Decimal, error)
	TokenBalance(ctx context.Context, contract, holder, blockTag string, decimals int32) (decimal.Decimal, error)
}

// EthWatcher checks deposit-address balances on Ethereum. The "latest"
// balance gates Seen; the "finalized" balance gates Confirmed, so a payment
// only counts as confirmed once it cannot be reorged away.
type EthWatcher struct {
	rpc           EthRPC
	tokenContract string
	tolerancePct  decimal.Decimal
	logger        *zap.Logger
}

// NewEthWatcher creates a watcher for native ETH payments. With a non-empty
// tokenContract it watches ERC-20 balances on that contract instead.
func NewEthWatcher(rpc EthRPC, tokenContract string, tolerancePct float64, logger *zap.Logger) *EthWatcher {
	return &EthWatcher{
		rpc:           rpc,
		tokenContract: tokenContract,
		tolerancePct:  decimal.NewFromFloat(tolerancePct),
		logger:        logger,
	}
}

// Check implements Watcher
func (w *EthWatcher) Check(ctx context.Context, order *entities.Order) (Result, error) {
	if !w.rpc.Configured() {
		// No RPC endpoint configured; treat as not yet seen rather than fail
		return Result{}, nil
	}

	latest, err := w.balance(ctx, order.DepositAddress, ethrpc.TagLatest)
	if err != nil {
		return Result{}, err
	}
	if !latest.IsPositive() {
		return Result{}, nil
	}

	result := Result{Seen: true, Received: latest}
	if !matches(latest, order.ExpectedAmount, w.tolerancePct) {
		return result, nil
	}

	finalized, err := w.balance(ctx, order.DepositAddress, ethrpc.TagFinalized)
	if err != nil {
		return Result{}, err
	}

	if matches(finalized, order.ExpectedAmount, w.tolerancePct) {
		result.Confirmed = true
		result.Received = finalized
	}

	return result, nil
}

func (w *EthWatcher) balance(ctx context.Context, address, blockTag string) (decimal.Decimal, error) {
	if w.tokenContract != "" {
		return w.rpc.TokenBalance(ctx, w.tokenContract, address, blockTag, usdtERC20Decimals)
	}
	return w.rpc.NativeBalance(ctx, address, blockTag)
}
