// Package poolsweeper schedules periodic reclamation of expired deposit
// address reservations and stale orders. The reconciliation worker also
// sweeps at the top of each pass; this schedule keeps the pool healthy even
// when the reconciliation loop is stalled on slow providers.
package poolsweeper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/viewplay/vpc-sale-service/internal/domain/entities"
	"github.com/viewplay/vpc-sale-service/pkg/metrics"
)

// OrderRepository interface for order expiry
type OrderRepository interface {
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
}

// AddressPool interface for reservation sweeping
type AddressPool interface {
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

type Worker struct {
	orderRepo OrderRepository
	pool      AddressPool
	schedule  string
	cron      *cron.Cron
	logger    *zap.Logger
}

// NewWorker creates a new pool sweeper on the given cron schedule
func NewWorker(orderRepo OrderRepository, pool AddressPool, schedule string, logger *zap.Logger) *Worker {
	if schedule == "" {
		schedule = "*/10 * * * *"
	}
	return &Worker{
		orderRepo: orderRepo,
		pool:      pool,
		schedule:  schedule,
		cron:      cron.New(),
		logger:    logger,
	}
}

func (w *Worker) Start() error {
	_, err := w.cron.AddFunc(w.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		w.Sweep(ctx)
	})
	if err != nil {
		return err
	}

	w.cron.Start()
	w.logger.Info("Pool sweeper started", zap.String("schedule", w.schedule))
	return nil
}

func (w *Worker) Stop() {
	w.cron.Stop()
	w.logger.Info("Pool sweeper stopped")
}

// Sweep expires overdue orders first so their reservations qualify for
// release in the same run.
func (w *Worker) Sweep(ctx context.Context) {
	now := time.Now()

	expired, err := w.orderRepo.MarkExpired(ctx, now)
	if err != nil {
		w.logger.Error("Failed to expire overdue orders", zap.Error(err))
	} else if expired > 0 {
		metrics.OrderTransitions.WithLabelValues(string(entities.OrderStatusExpired)).Add(float64(expired))
	}

	swept, err := w.pool.SweepExpired(ctx, now)
	if err != nil {
		w.logger.Error("Failed to sweep expired reservations", zap.Error(err))
		return
	}
	if swept > 0 {
		metrics.AddressesSwept.Add(float64(swept))
		w.logger.Info("Released expired address reservations",
			zap.Int64("orders_expired", expired),
			zap.Int64("addresses_released", swept))
	}
}
