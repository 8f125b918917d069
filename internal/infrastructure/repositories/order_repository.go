package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/viewplay/vpc-sale-service/internal/domain/entities"
	apperrors "github.com/viewplay/vpc-sale-service/internal/domain/errors"
)

// OrderRepository persists sale orders. Status transitions are issued as
// conditional updates so the state graph stays forward-only even when two
// worker passes race over the same order.
type OrderRepository struct {
	db *sqlx.DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `
	id, status, usd_amount, pay_method, recipient_address,
	promo_code, discount_rate, token_amount, expected_crypto_amount,
	currency_label, deposit_address, created_at, expires_at,
	payment_seen, payment_confirmed, payment_txid, settlement_tx_sig,
	client_ping_at`

// Create inserts a new PENDING order
func (r *OrderRepository) Create(ctx context.Context, order *entities.Order) error {
	query := `
		INSERT INTO orders (
			id, status, usd_amount, pay_method, recipient_address,
			promo_code, discount_rate, token_amount, expected_crypto_amount,
			currency_label, deposit_address, created_at, expires_at,
			payment_seen, payment_confirmed, payment_txid, settlement_tx_sig
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		order.ID,
		order.Status,
		order.USDAmount,
		order.PayMethod,
		order.RecipientAddr,
		order.PromoCode,
		order.DiscountRate,
		order.TokenAmount,
		order.ExpectedAmount,
		order.CurrencyLabel,
		order.DepositAddress,
		order.CreatedAt,
		order.ExpiresAt,
		order.PaymentSeen,
		order.PaymentConfirmed,
		order.PaymentTxID,
		order.SettlementTxSig,
	)

	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	return nil
}

// GetByID retrieves an order by ID
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*entities.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	var order entities.Order
	err := r.db.GetContext(ctx, &order, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("order %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	return &order, nil
}

// ListPending returns PENDING orders that are still within their payment
// window, oldest first so early buyers are never starved.
func (r *OrderRepository) ListPending(ctx context.Context, now time.Time, limit int) ([]*entities.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = $1 AND expires_at >= $2
		ORDER BY created_at ASC
		LIMIT $3
	`

	var orders []*entities.Order
	err := r.db.SelectContext(ctx, &orders, query, entities.OrderStatusPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending orders: %w", err)
	}

	return orders, nil
}

// ListPaidWithoutSettlement returns PAID orders missing a settlement
// reference. After a crash these need manual reconciliation; the payout is
// never blindly re-sent.
func (r *OrderRepository) ListPaidWithoutSettlement(ctx context.Context) ([]*entities.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = $1 AND settlement_tx_sig IS NULL
		ORDER BY created_at ASC
	`

	var orders []*entities.Order
	err := r.db.SelectContext(ctx, &orders, query, entities.OrderStatusPaid)
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck paid orders: %w", err)
	}

	return orders, nil
}

// MarkExpired transitions every PENDING order past its deadline to EXPIRED
// and returns the number of orders affected.
func (r *OrderRepository) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE orders
		SET status = $1
		WHERE status = $2 AND expires_at < $3
	`

	res, err := r.db.ExecContext(ctx, query, entities.OrderStatusExpired, entities.OrderStatusPending, now)
	if err != nil {
		return 0, fmt.Errorf("failed to mark expired orders: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count expired orders: %w", err)
	}

	return n, nil
}

// MarkPaymentSeen records that funds were observed for the order. The first
// observed transaction reference wins; later sightings never overwrite it.
func (r *OrderRepository) MarkPaymentSeen(ctx context.Context, id, txid string) error {
	query := `
		UPDATE orders
		SET payment_seen = TRUE,
			payment_txid = COALESCE(payment_txid, NULLIF($2, ''))
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, id, txid)
	if err != nil {
		return fmt.Errorf("failed to mark payment seen: %w", err)
	}

	return nil
}

// TransitionToPaid moves a PENDING order to PAID, freezing the confirmed
// transaction reference. Returns false if the order was no longer PENDING.
func (r *OrderRepository) TransitionToPaid(ctx context.Context, id, txid string) (bool, error) {
	query := `
		UPDATE orders
		SET status = $1,
			payment_seen = TRUE,
			payment_confirmed = TRUE,
			payment_txid = COALESCE(payment_txid, NULLIF($3, ''))
		WHERE id = $2 AND status = $4
	`

	res, err := r.db.ExecContext(ctx, query, entities.OrderStatusPaid, id, txid, entities.OrderStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to transition order to paid: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count paid transition: %w", err)
	}

	return n == 1, nil
}

// TransitionToFulfilled moves a PAID order to FULFILLED with the settlement
// transaction signature. Returns false if the order was not PAID.
func (r *OrderRepository) TransitionToFulfilled(ctx context.Context, id, sig string) (bool, error) {
	query := `
		UPDATE orders
		SET status = $1, settlement_tx_sig = $3
		WHERE id = $2 AND status = $4
	`

	res, err := r.db.ExecContext(ctx, query, entities.OrderStatusFulfilled, id, sig, entities.OrderStatusPaid)
	if err != nil {
		return false, fmt.Errorf("failed to transition order to fulfilled: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count fulfilled transition: %w", err)
	}

	return n == 1, nil
}

// TransitionToFailed moves a PAID order to FAILED after a payout failure.
// No settlement reference is recorded. Returns false if the order was not PAID.
func (r *OrderRepository) TransitionToFailed(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE orders
		SET status = $1
		WHERE id = $2 AND status = $3
	`

	res, err := r.db.ExecContext(ctx, query, entities.OrderStatusFailed, id, entities.OrderStatusPaid)
	if err != nil {
		return false, fmt.Errorf("failed to transition order to failed: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count failed transition: %w", err)
	}

	return n == 1, nil
}

// RecordClientPing stores the buyer's "I have paid" signal timestamp
func (r *OrderRepository) RecordClientPing(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE orders SET client_ping_at = $2 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to record client ping: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count client ping update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("order %s: %w", id, apperrors.ErrNotFound)
	}

	return nil
}
