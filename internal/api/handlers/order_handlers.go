package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/viewplay/vpc-sale-service/internal/domain/entities"
	apperrors "github.com/viewplay/vpc-sale-service/internal/domain/errors"
	"github.com/viewplay/vpc-sale-service/pkg/metrics"
)

// OrderService interface for order intake and reads
type OrderService interface {
	Create(ctx context.Context, req *entities.CreateOrderRequest) (*entities.Order, error)
	Get(ctx context.Context, id string) (*entities.Order, error)
	RecordClientPing(ctx context.Context, id string) error
}

// OrderHandler handles order endpoints
type OrderHandler struct {
	orders OrderService
	logger *zap.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orders OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

// Create handles POST /api/order
func (h *OrderHandler) Create(c *gin.Context) {
	var req entities.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid request payload")
		return
	}

	order, err := h.orders.Create(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrInvalidInput):
			respondError(c, http.StatusBadRequest, ErrCodeValidationError, errorMessage(err, "Invalid order request"))
		case errors.Is(err, apperrors.ErrPoolExhausted):
			respondError(c, http.StatusServiceUnavailable, ErrCodePoolExhausted,
				errorMessage(err, "No deposit address available right now, try again shortly"))
		case errors.Is(err, apperrors.ErrPriceUnavailable):
			respondError(c, http.StatusServiceUnavailable, ErrCodePriceUnavailable,
				"Price feed unavailable, try again shortly")
		default:
			h.logger.Error("Order creation failed", zap.Error(err))
			respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "Failed to create order")
		}
		return
	}

	metrics.OrdersCreated.Inc()
	c.JSON(http.StatusCreated, toResponse(order))
}

// Get handles GET /api/order/:id
func (h *OrderHandler) Get(c *gin.Context) {
	order, err := h.orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			respondError(c, http.StatusNotFound, ErrCodeOrderNotFound, "Order not found")
		case errors.Is(err, apperrors.ErrInvalidInput):
			respondError(c, http.StatusBadRequest, ErrCodeValidationError, "Order id is required")
		default:
			h.logger.Error("Order lookup failed", zap.Error(err))
			respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "Failed to load order")
		}
		return
	}

	c.JSON(http.StatusOK, order)
}

// MarkPaid handles POST /api/order/:id/paid. The buyer self-reports having
// sent payment; only the chain watchers can actually confirm it.
func (h *OrderHandler) MarkPaid(c *gin.Context) {
	id := c.Param("id")
	if err := h.orders.RecordClientPing(c.Request.Context(), id); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			respondError(c, http.StatusNotFound, ErrCodeOrderNotFound, "Order not found")
			return
		}
		h.logger.Error("Client payment ping failed", zap.String("order_id", id), zap.Error(err))
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "Failed to record payment notice")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func toResponse(order *entities.Order) entities.CreateOrderResponse {
	return entities.CreateOrderResponse{
		OrderID:        order.ID,
		Status:         order.Status,
		USD:            order.USDAmount,
		DiscountRate:   order.DiscountRate,
		VPCAmount:      order.TokenAmount,
		PayMethod:      order.PayMethod,
		CurrencyLabel:  order.CurrencyLabel,
		DepositAddress: order.DepositAddress,
		ExpectedAmount: order.ExpectedAmount,
		ExpiresAt:      order.ExpiresAt,
	}
}
