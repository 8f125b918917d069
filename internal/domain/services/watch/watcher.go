// Package watch provides the payment-watcher abstraction: one uniform
// "has this deposit address received the expected payment yet" query per
// payment method, backed by third-party chain-data providers.
package watch

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/viewplay/vpc-sale-service/internal/domain/entities"
	"github.com/viewplay/vpc-sale-service/internal/domain/services/pricing"
)

// Result is the outcome of a single payment check. "No transaction yet" is a
// zero Result, never an error; errors are reserved for transport failures.
type Result struct {
	Seen      bool
	Confirmed bool
	TxID      string
	Received  decimal.Decimal
}

// Watcher checks whether an order's deposit address has received the
// expected payment on its settlement chain.
type Watcher interface {
	Check(ctx context.Context, order *entities.Order) (Result, error)
}

// Registry selects the watcher for a payment method. Methods without a
// registered watcher get a stub that reports nothing seen, so an
// unsupported chain degrades safely instead of crashing the worker.
type Registry struct {
	watchers map[entities.PaymentMethod]Watcher
}

// NewRegistry creates a registry over the given method -> watcher mapping
func NewRegistry(watchers map[entities.PaymentMethod]Watcher) *Registry {
	if watchers == nil {
		watchers = make(map[entities.PaymentMethod]Watcher)
	}
	return &Registry{watchers: watchers}
}

// Lookup returns the watcher for a method, falling back to the inert stub
func (r *Registry) Lookup(method entities.PaymentMethod) Watcher {
	if w, ok := r.watchers[method]; ok {
		return w
	}
	return stubWatcher{}
}

// stubWatcher reports no payment activity for chains without an integration
type stubWatcher struct{}

func (stubWatcher) Check(ctx context.Context, order *entities.Order) (Result, error) {
	return Result{}, nil
}

// matches reports whether a received quantity satisfies the order's expected
// quantity under the configured tolerance.
func matches(received, expected, tolerancePct decimal.Decimal) bool {
	return pricing.WithinTolerance(received, expected, tolerancePct)
}
