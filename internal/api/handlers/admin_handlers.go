package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ExpirySweeper interface for the manual release-expired operation
type ExpirySweeper interface {
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
}

// ReservationSweeper interface for reclaiming expired address reservations
type ReservationSweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// AdminHandler handles operator endpoints
type AdminHandler struct {
	orders ExpirySweeper
	pool   ReservationSweeper
	logger *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(orders ExpirySweeper, pool ReservationSweeper, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{orders: orders, pool: pool, logger: logger}
}

// ReleaseExpired handles POST /api/admin/release-expired. It runs the same
// expiry and sweep steps the background loops run, on demand.
func (h *AdminHandler) ReleaseExpired(c *gin.Context) {
	now := time.Now()
	ctx := c.Request.Context()

	expired, err := h.orders.MarkExpired(ctx, now)
	if err != nil {
		h.logger.Error("Manual order expiry failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "Failed to expire orders")
		return
	}

	released, err := h.pool.SweepExpired(ctx, now)
	if err != nil {
		h.logger.Error("Manual reservation sweep failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "Failed to release reservations")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ordersExpired":     expired,
		"addressesReleased": released,
	})
}
