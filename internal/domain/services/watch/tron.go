package watch

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/viewplay/vpc-sale-service/internal/adapters/trongrid"
	"github.com/viewplay/vpc-sale-service/internal/domain/entities"
)

// TronAPI is the slice of the TronGrid client the watcher needs
type TronAPI interface {
	TRC20Transfers(ctx context.Context, address, contract string) ([]trongrid.Transfer, error)
}

// TronWatcher matches TRC-20 transfers against an order's deposit address.
// TronGrid only returns confirmed transfers, so a matched transfer is both
// seen and confirmed.
type TronWatcher struct {
	api          TronAPI
	contract     string
	tolerancePct decimal.Decimal
	logger       *zap.Logger
}

// NewTronWatcher creates a TRC-20 payment watcher for the given token contract
func NewTronWatcher(api TronAPI, contract string, tolerancePct float64, logger *zap.Logger) *TronWatcher {
	return &TronWatcher{
		api:          api,
		contract:     contract,
		tolerancePct: decimal.NewFromFloat(tolerancePct),
		logger:       logger,
	}
}

// Check implements Watcher
func (w *TronWatcher) Check(ctx context.Context, order *entities.Order) (Result, error) {
	transfers, err := w.api.TRC20Transfers(ctx, order.DepositAddress, w.contract)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for _, transfer := range transfers {
		amount := transfer.Amount()
		if !amount.IsPositive() {
			continue
		}

		if !result.Seen {
			result.Seen = true
			result.TxID = transfer.TransactionID
			result.Received = amount
		}

		if !matches(amount, order.ExpectedAmount, w.tolerancePct) {
			continue
		}

		return Result{
			Seen:      true,
			Confirmed: true,
			TxID:      transfer.TransactionID,
			Received:  amount,
		}, nil
	}

	return result, nil
}
