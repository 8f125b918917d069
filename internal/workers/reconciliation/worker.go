// Package reconciliation runs the perpetual loop that drives pending orders
// through payment detection, confirmation and settlement.
package reconciliation

import (
	"context"
	"errors"
	"time"

	"github.com/viewplay/vpc-sale-service/internal/domain/entities"
	apperrors "github.com/viewplay/vpc-sale-service/internal/domain/errors"
	"github.com/viewplay/vpc-sale-service/internal/domain/services/settlement"
	"github.com/viewplay/vpc-sale-service/internal/domain/services/watch"
	"github.com/viewplay/vpc-sale-service/pkg/logger"
	"github.com/viewplay/vpc-sale-service/pkg/metrics"
)

// OrderRepository interface for order lifecycle operations
type OrderRepository interface {
	GetByID(ctx context.Context, id string) (*entities.Order, error)
	ListPending(ctx context.Context, now time.Time, limit int) ([]*entities.Order, error)
	ListPaidWithoutSettlement(ctx context.Context) ([]*entities.Order, error)
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
	MarkPaymentSeen(ctx context.Context, id, txid string) error
	TransitionToPaid(ctx context.Context, id, txid string) (bool, error)
	TransitionToFulfilled(ctx context.Context, id, sig string) (bool, error)
	TransitionToFailed(ctx context.Context, id string) (bool, error)
}

// AddressPool interface for deposit address bookkeeping
type AddressPool interface {
	MarkInFlight(ctx context.Context, orderID string) error
	Recycle(ctx context.Context, orderID string) error
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// WatcherRegistry resolves the chain watcher for a payment method
type WatcherRegistry interface {
	Lookup(method entities.PaymentMethod) watch.Watcher
}

// Config holds worker configuration
type Config struct {
	Interval         time.Duration
	BatchSize        int
	RateLimitBackoff time.Duration
}

// DefaultConfig returns default worker configuration
func DefaultConfig() *Config {
	return &Config{
		Interval:         20 * time.Second,
		BatchSize:        100,
		RateLimitBackoff: 2 * time.Minute,
	}
}

// Worker polls chain watchers for pending orders and settles confirmed ones.
// It runs single-threaded; all cross-process coordination happens through
// conditional row updates in the repositories.
type Worker struct {
	orderRepo OrderRepository
	pool      AddressPool
	watchers  WatcherRegistry
	issuer    settlement.Issuer
	config    *Config
	logger    *logger.Logger
	stopCh    chan struct{}
	now       func() time.Time
}

// NewWorker creates a new reconciliation worker
func NewWorker(orderRepo OrderRepository, pool AddressPool, watchers WatcherRegistry, issuer settlement.Issuer, config *Config, log *logger.Logger) *Worker {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	return &Worker{
		orderRepo: orderRepo,
		pool:      pool,
		watchers:  watchers,
		issuer:    issuer,
		config:    config,
		logger:    log,
		stopCh:    make(chan struct{}),
		now:       time.Now,
	}
}

// Start begins the reconciliation loop. A pass that hit provider rate
// limiting extends the following sleep as a backoff measure.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Starting reconciliation worker",
		"interval", w.config.Interval.String(),
		"batch_size", w.config.BatchSize)

	w.warnUnsettledPayouts(ctx)

	for {
		rateLimited := w.RunOnce(ctx)

		sleep := w.config.Interval
		if rateLimited {
			sleep = w.config.RateLimitBackoff
			w.logger.Warn("Provider rate limiting detected, extending sleep",
				"sleep", sleep.String())
		}

		select {
		case <-ctx.Done():
			w.logger.Info("Reconciliation worker stopped (context cancelled)")
			return
		case <-w.stopCh:
			w.logger.Info("Reconciliation worker stopped")
			return
		case <-time.After(sleep):
		}
	}
}

// Stop stops the worker
func (w *Worker) Stop() {
	close(w.stopCh)
}

// warnUnsettledPayouts flags orders stuck in PAID with no settlement
// reference. Payout outcome for these is unknown after a crash; they need
// manual reconciliation because a blind re-send risks paying twice.
func (w *Worker) warnUnsettledPayouts(ctx context.Context) {
	orders, err := w.orderRepo.ListPaidWithoutSettlement(ctx)
	if err != nil {
		w.logger.Error("Failed to check for unsettled payouts", "error", err)
		return
	}
	for _, order := range orders {
		w.logger.Warn("Order is PAID without a settlement reference, manual reconciliation required",
			"order_id", order.ID,
			"token_amount", order.TokenAmount,
			"recipient", order.RecipientAddr)
	}
}

// RunOnce executes a single reconciliation pass and reports whether a
// provider rate limit was observed during it.
func (w *Worker) RunOnce(ctx context.Context) bool {
	now := w.now()

	expired, err := w.orderRepo.MarkExpired(ctx, now)
	if err != nil {
		w.logger.Error("Failed to expire stale orders", "error", err)
	} else if expired > 0 {
		metrics.OrderTransitions.WithLabelValues(string(entities.OrderStatusExpired)).Add(float64(expired))
		w.logger.Info("Expired stale orders", "count", expired)
	}

	swept, err := w.pool.SweepExpired(ctx, now)
	if err != nil {
		w.logger.Error("Failed to sweep expired reservations", "error", err)
	} else if swept > 0 {
		metrics.AddressesSwept.Add(float64(swept))
		w.logger.Info("Released expired address reservations", "count", swept)
	}

	orders, err := w.orderRepo.ListPending(ctx, now, w.config.BatchSize)
	if err != nil {
		w.logger.Error("Failed to list pending orders", "error", err)
		metrics.WorkerPasses.Inc()
		return false
	}

	rateLimited := false
	for _, order := range orders {
		if w.processOrder(ctx, order.ID) {
			rateLimited = true
		}
	}

	metrics.WorkerPasses.Inc()
	return rateLimited
}

// processOrder handles one order and reports whether it hit a rate limit.
// Panics are contained so one bad order cannot starve the rest of the batch.
func (w *Worker) processOrder(ctx context.Context, orderID string) (rateLimited bool) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Recovered from panic while processing order",
				"order_id", orderID,
				"panic", r)
		}
	}()

	// Re-read current state; another pass may have handled this order
	// between listing and processing.
	order, err := w.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		w.logger.Error("Failed to re-read order", "order_id", orderID, "error", err)
		return false
	}
	if order.Status != entities.OrderStatusPending || order.IsExpired(w.now()) {
		return false
	}

	watcher := w.watchers.Lookup(order.PayMethod)
	result, err := watcher.Check(ctx, order)
	if err != nil {
		metrics.ProviderErrors.WithLabelValues(string(order.PayMethod)).Inc()
		if errors.Is(err, apperrors.ErrRateLimited) {
			w.logger.Warn("Chain provider rate limited", "order_id", order.ID, "method", order.PayMethod)
			return true
		}
		w.logger.Error("Chain watcher check failed",
			"order_id", order.ID,
			"method", order.PayMethod,
			"error", err)
		return false
	}

	if result.Seen && !order.PaymentSeen {
		if err := w.orderRepo.MarkPaymentSeen(ctx, order.ID, result.TxID); err != nil {
			w.logger.Error("Failed to record payment sighting", "order_id", order.ID, "error", err)
			return false
		}
		if err := w.pool.MarkInFlight(ctx, order.ID); err != nil {
			w.logger.Error("Failed to mark address in flight", "order_id", order.ID, "error", err)
		}
		w.logger.Info("Payment seen",
			"order_id", order.ID,
			"method", order.PayMethod,
			"txid", result.TxID,
			"received", result.Received.String())
	}

	if !result.Confirmed {
		return false
	}

	w.settle(ctx, order, result)
	return false
}

// settle moves a confirmed order through PAID and issues the payout. The
// PAID write is durable before the send so a crash can never pay twice.
func (w *Worker) settle(ctx context.Context, order *entities.Order, result watch.Result) {
	ok, err := w.orderRepo.TransitionToPaid(ctx, order.ID, result.TxID)
	if err != nil {
		w.logger.Error("Failed to transition order to PAID", "order_id", order.ID, "error", err)
		return
	}
	if !ok {
		// Lost the race to another pass; that pass owns the payout.
		w.logger.Warn("Order already left PENDING, skipping settlement", "order_id", order.ID)
		return
	}
	metrics.OrderTransitions.WithLabelValues(string(entities.OrderStatusPaid)).Inc()

	amount := settlement.ProratedAmount(order.TokenAmount, result.Received, order.ExpectedAmount)
	if amount < order.TokenAmount {
		w.logger.Info("Partial payment, prorating payout",
			"order_id", order.ID,
			"received", result.Received.String(),
			"expected", order.ExpectedAmount.String(),
			"full_amount", order.TokenAmount,
			"prorated_amount", amount)
	}

	start := time.Now()
	sig, err := w.issuer.Send(ctx, order.RecipientAddr, amount)
	metrics.SettlementDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		w.logger.Error("Settlement payout failed",
			"order_id", order.ID,
			"amount", amount,
			"error", err)
		if _, ferr := w.orderRepo.TransitionToFailed(ctx, order.ID); ferr != nil {
			w.logger.Error("Failed to transition order to FAILED", "order_id", order.ID, "error", ferr)
		} else {
			metrics.OrderTransitions.WithLabelValues(string(entities.OrderStatusFailed)).Inc()
		}
		w.recycle(ctx, order.ID)
		return
	}

	if _, err := w.orderRepo.TransitionToFulfilled(ctx, order.ID, sig); err != nil {
		w.logger.Error("Payout sent but FULFILLED write failed, manual reconciliation required",
			"order_id", order.ID,
			"signature", sig,
			"error", err)
		return
	}
	metrics.OrderTransitions.WithLabelValues(string(entities.OrderStatusFulfilled)).Inc()
	w.recycle(ctx, order.ID)

	w.logger.Info("Order fulfilled",
		"order_id", order.ID,
		"amount", amount,
		"signature", sig)
}

func (w *Worker) recycle(ctx context.Context, orderID string) {
	if err := w.pool.Recycle(ctx, orderID); err != nil {
		w.logger.Error("Failed to recycle deposit address", "order_id", orderID, "error", err)
	}
}
