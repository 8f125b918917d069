package watch

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/viewplay/vpc-sale-service/internal/adapters/blockstream"
	"github.com/viewplay/vpc-sale-service/internal/domain/entities"
)

var satsPerBTC = decimal.NewFromInt(100_000_000)

// BTCExplorer is the slice of the blockstream client the watcher needs
type BTCExplorer interface {
	AddressTransactions(ctx context.Context, address string) ([]blockstream.Transaction, error)
}

// BTCWatcher matches explorer transactions against an order's deposit
// address. The first transaction meeting the tolerance threshold, in the
// explorer's natural order, is accepted; any positive credit sets Seen.
type BTCWatcher struct {
	explorer     BTCExplorer
	tolerancePct decimal.Decimal
	logger       *zap.Logger
}

// NewBTCWatcher creates a Bitcoin payment watcher
func NewBTCWatcher(explorer BTCExplorer, tolerancePct float64, logger *zap.Logger) *BTCWatcher {
	return &BTCWatcher{
		explorer:     explorer,
		tolerancePct: decimal.NewFromFloat(tolerancePct),
		logger:       logger,
	}
}

// Check implements Watcher
func (w *BTCWatcher) Check(ctx context.Context, order *entities.Order) (Result, error) {
	txs, err := w.explorer.AddressTransactions(ctx, order.DepositAddress)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for _, tx := range txs {
		var sats int64
		for _, vout := range tx.Vout {
			if vout.ScriptPubKeyAddress == order.DepositAddress {
				sats += vout.Value
			}
		}
		if sats <= 0 {
			continue
		}

		received := decimal.NewFromInt(sats).Div(satsPerBTC)

		if !result.Seen {
			result.Seen = true
			result.TxID = tx.TxID
			result.Received = received
		}

		if !matches(received, order.ExpectedAmount, w.tolerancePct) {
			continue
		}

		return Result{
			Seen:      true,
			Confirmed: tx.Status.Confirmed,
			TxID:      tx.TxID,
			Received:  received,
		}, nil
	}

	return result, nil
}
