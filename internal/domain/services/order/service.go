// Package order implements the intake boundary: validating a purchase
// request, pricing it, reserving a deposit address and persisting the order
// as one logical creation step.
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/viewplay/vpc-sale-service/internal/domain/entities"
	apperrors "github.com/viewplay/vpc-sale-service/internal/domain/errors"
	"github.com/viewplay/vpc-sale-service/internal/domain/services/pricing"
	"github.com/viewplay/vpc-sale-service/pkg/metrics"
	"github.com/viewplay/vpc-sale-service/pkg/solana"
)

// OrderRepository interface for order persistence
type OrderRepository interface {
	Create(ctx context.Context, order *entities.Order) error
	GetByID(ctx context.Context, id string) (*entities.Order, error)
	RecordClientPing(ctx context.Context, id string, at time.Time) error
}

// AddressPool interface for deposit address reservation
type AddressPool interface {
	Reserve(ctx context.Context, method entities.PaymentMethod, orderID string, deadline time.Time) (string, error)
}

// PriceOracle interface for asset pricing
type PriceOracle interface {
	Price(ctx context.Context, assetKey string) (decimal.Decimal, error)
}

// Service handles order creation and reads
type Service struct {
	orderRepo      OrderRepository
	pool           AddressPool
	oracle         PriceOracle
	calc           *pricing.Calculator
	minPurchaseUSD decimal.Decimal
	logger         *zap.Logger
	now            func() time.Time
	newID          func() string
}

// NewService creates the order intake service
func NewService(orderRepo OrderRepository, pool AddressPool, oracle PriceOracle, calc *pricing.Calculator, minPurchaseUSD float64, logger *zap.Logger) *Service {
	return &Service{
		orderRepo:      orderRepo,
		pool:           pool,
		oracle:         oracle,
		calc:           calc,
		minPurchaseUSD: decimal.NewFromFloat(minPurchaseUSD),
		logger:         logger,
		now:            time.Now,
		newID:          func() string { return uuid.New().String() },
	}
}

// Create validates the request, prices the purchase, reserves a deposit
// address and persists the order. A pool-capacity failure surfaces as-is so
// the caller can tell the buyer to retry later.
func (s *Service) Create(ctx context.Context, req *entities.CreateOrderRequest) (*entities.Order, error) {
	method, err := entities.ParsePaymentMethod(req.PayMethod)
	if err != nil {
		return nil, apperrors.ValidationError(fmt.Sprintf("unsupported payment method %q", req.PayMethod))
	}

	usd := decimal.NewFromFloat(req.USD)
	if usd.LessThan(s.minPurchaseUSD) {
		return nil, apperrors.ValidationError(fmt.Sprintf("minimum purchase is %s USD", s.minPurchaseUSD.String()))
	}

	recipient := strings.TrimSpace(req.SolanaAddress)
	if !solana.IsValidAddress(recipient) {
		return nil, apperrors.ValidationError("invalid Solana recipient address")
	}

	unitPrice, err := s.oracle.Price(ctx, method.AssetKey())
	if err != nil {
		return nil, fmt.Errorf("failed to price %s: %w", method.AssetKey(), err)
	}

	rate := s.calc.DiscountRate(usd, req.PromoCode)
	tokenAmount := s.calc.TokenAmount(usd, rate)
	if tokenAmount < 1 {
		return nil, apperrors.ValidationError("purchase amount is below one token")
	}
	expected := pricing.ExpectedCryptoAmount(usd, unitPrice, method.Decimals())

	now := s.now()
	order := &entities.Order{
		ID:             s.newID(),
		Status:         entities.OrderStatusPending,
		USDAmount:      usd,
		PayMethod:      method,
		RecipientAddr:  recipient,
		PromoCode:      strings.ToLower(strings.TrimSpace(req.PromoCode)),
		DiscountRate:   rate,
		TokenAmount:    tokenAmount,
		ExpectedAmount: expected,
		CurrencyLabel:  method.CurrencyLabel(),
		CreatedAt:      now,
		ExpiresAt:      now.Add(method.ExpiryWindow()),
	}

	depositAddr, err := s.pool.Reserve(ctx, method, order.ID, order.ExpiresAt)
	if err != nil {
		if errors.Is(err, apperrors.ErrPoolExhausted) {
			metrics.PoolExhausted.WithLabelValues(string(method)).Inc()
			s.logger.Warn("Deposit address pool exhausted", zap.String("method", string(method)))
		}
		return nil, err
	}
	order.DepositAddress = depositAddr

	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to persist order: %w", err)
	}

	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("method", string(method)),
		zap.String("usd", usd.String()),
		zap.String("discount_rate", rate.String()),
		zap.Int64("token_amount", tokenAmount),
		zap.String("expected_amount", expected.String()),
		zap.String("deposit_address", depositAddr))

	return order, nil
}

// Get returns an order by id
func (s *Service) Get(ctx context.Context, id string) (*entities.Order, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.ValidationError("order id is required")
	}
	return s.orderRepo.GetByID(ctx, id)
}

// RecordClientPing notes that the buyer reported sending payment. Purely
// informational; confirmation always comes from the chain watchers.
func (s *Service) RecordClientPing(ctx context.Context, id string) error {
	if _, err := s.orderRepo.GetByID(ctx, id); err != nil {
		return err
	}
	return s.orderRepo.RecordClientPing(ctx, id, s.now())
}
