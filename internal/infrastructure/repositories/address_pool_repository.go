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

// reserveAttempts bounds how many candidate rows a single Reserve call will
// race for before reporting the pool exhausted.
const reserveAttempts = 3

// AddressPoolRepository manages the deposit-address pool. The single-row
// conditional UPDATE is the only concurrency primitive: two callers racing
// for the same FREE row see exactly one winner, and the sweep can never
// collide with a reservation on the same row.
type AddressPoolRepository struct {
	db *sqlx.DB
}

// NewAddressPoolRepository creates a new address pool repository
func NewAddressPoolRepository(db *sqlx.DB) *AddressPoolRepository {
	return &AddressPoolRepository{db: db}
}

// Seed upserts the configured addresses for a method. Re-seeding never
// disturbs a row that already exists, bound or not.
func (r *AddressPoolRepository) Seed(ctx context.Context, method entities.PaymentMethod, addresses []string) error {
	query := `
		INSERT INTO deposit_addresses (pay_method, address, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (pay_method, address) DO NOTHING
	`

	for _, addr := range addresses {
		if _, err := r.db.ExecContext(ctx, query, method, addr, entities.AddressStatusFree); err != nil {
			return fmt.Errorf("failed to seed address %s/%s: %w", method, addr, err)
		}
	}

	return nil
}

// Reserve picks the lexicographically first FREE address for the method and
// atomically binds it to the order until the deadline. If the conditional
// update loses a race it retries against the next candidate a bounded number
// of times before returning ErrPoolExhausted.
func (r *AddressPoolRepository) Reserve(ctx context.Context, method entities.PaymentMethod, orderID string, deadline time.Time) (string, error) {
	selectQuery := `
		SELECT address
		FROM deposit_addresses
		WHERE pay_method = $1 AND status = $2
		ORDER BY address ASC
		LIMIT 1
	`
	updateQuery := `
		UPDATE deposit_addresses
		SET status = $1, order_id = $2, reserved_until = $3, last_used_at = $4
		WHERE pay_method = $5 AND address = $6 AND status = $7
	`

	for attempt := 0; attempt < reserveAttempts; attempt++ {
		var address string
		err := r.db.GetContext(ctx, &address, selectQuery, method, entities.AddressStatusFree)
		if err == sql.ErrNoRows {
			return "", apperrors.CapacityError(string(method))
		}
		if err != nil {
			return "", fmt.Errorf("failed to select free address: %w", err)
		}

		res, err := r.db.ExecContext(ctx, updateQuery,
			entities.AddressStatusReserved, orderID, deadline, time.Now().UTC(),
			method, address, entities.AddressStatusFree,
		)
		if err != nil {
			return "", fmt.Errorf("failed to reserve address: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return "", fmt.Errorf("failed to count reservation: %w", err)
		}
		if n == 1 {
			return address, nil
		}
		// Lost the race for this row; another caller reserved it first.
	}

	return "", apperrors.CapacityError(string(method))
}

// MarkInFlight transitions the order's RESERVED address to INFLIGHT once a
// payment has been observed, shielding it from the expiry sweep. Idempotent:
// a no-op when the address is already INFLIGHT or was recycled.
func (r *AddressPoolRepository) MarkInFlight(ctx context.Context, orderID string) error {
	query := `
		UPDATE deposit_addresses
		SET status = $1
		WHERE order_id = $2 AND status = $3
	`

	_, err := r.db.ExecContext(ctx, query, entities.AddressStatusInFlight, orderID, entities.AddressStatusReserved)
	if err != nil {
		return fmt.Errorf("failed to mark address in-flight: %w", err)
	}

	return nil
}

// Recycle frees the address bound to the order once the order has reached a
// terminal outcome. Idempotent.
func (r *AddressPoolRepository) Recycle(ctx context.Context, orderID string) error {
	query := `
		UPDATE deposit_addresses
		SET status = $1, order_id = NULL, reserved_until = NULL, last_used_at = $2
		WHERE order_id = $3 AND status IN ($4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		entities.AddressStatusFree, time.Now().UTC(), orderID,
		entities.AddressStatusReserved, entities.AddressStatusInFlight,
	)
	if err != nil {
		return fmt.Errorf("failed to recycle address: %w", err)
	}

	return nil
}

// SweepExpired frees RESERVED addresses whose deadline has passed and whose
// owning order never saw a payment. INFLIGHT rows are excluded by the status
// predicate, so an address carrying funds is never reclaimed here.
func (r *AddressPoolRepository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE deposit_addresses
		SET status = $1, order_id = NULL, reserved_until = NULL
		WHERE status = $2
		  AND reserved_until IS NOT NULL
		  AND reserved_until < $3
		  AND order_id IN (
			SELECT id FROM orders
			WHERE payment_seen = FALSE AND status IN ($4, $5)
		  )
	`

	res, err := r.db.ExecContext(ctx, query,
		entities.AddressStatusFree, entities.AddressStatusReserved, now,
		entities.OrderStatusPending, entities.OrderStatusExpired,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired reservations: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count swept reservations: %w", err)
	}

	return n, nil
}

// GetByOrderID returns the address currently bound to the order, if any
func (r *AddressPoolRepository) GetByOrderID(ctx context.Context, orderID string) (*entities.DepositAddress, error) {
	query := `
		SELECT pay_method, address, status, order_id, reserved_until, last_used_at
		FROM deposit_addresses
		WHERE order_id = $1
	`

	var addr entities.DepositAddress
	err := r.db.GetContext(ctx, &addr, query, orderID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("address for order %s: %w", orderID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get address by order: %w", err)
	}

	return &addr, nil
}
