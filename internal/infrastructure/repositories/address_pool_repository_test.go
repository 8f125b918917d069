package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viewplay/vpc-sale-service/internal/domain/entities"
	apperrors "github.com/viewplay/vpc-sale-service/internal/domain/errors"
)

func newPoolMock(t *testing.T) (*AddressPoolRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewAddressPoolRepository(sqlx.NewDb(db, "sqlmock")), mock
}

var poolDeadline = time.Date(2026, 3, 1, 16, 0, 0, 0, time.UTC)

func TestReserve_BindsFirstFreeAddress(t *testing.T) {
	repo, mock := newPoolMock(t)

	mock.ExpectQuery(`SELECT address`).
		WithArgs("bitcoin", "FREE").
		WillReturnRows(sqlmock.NewRows([]string{"address"}).AddRow("bc1qaddr1"))
	mock.ExpectExec(`UPDATE deposit_addresses`).
		WithArgs("RESERVED", "ord_1", poolDeadline, sqlmock.AnyArg(), "bitcoin", "bc1qaddr1", "FREE").
		WillReturnResult(sqlmock.NewResult(0, 1))

	addr, err := repo.Reserve(context.Background(), entities.MethodBTC, "ord_1", poolDeadline)

	require.NoError(t, err)
	assert.Equal(t, "bc1qaddr1", addr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserve_RetriesAfterLosingTheRowRace(t *testing.T) {
	repo, mock := newPoolMock(t)

	// First candidate is taken by a concurrent caller between the select
	// and the conditional update; the second candidate wins.
	mock.ExpectQuery(`SELECT address`).
		WithArgs("bitcoin", "FREE").
		WillReturnRows(sqlmock.NewRows([]string{"address"}).AddRow("bc1qaddr1"))
	mock.ExpectExec(`UPDATE deposit_addresses`).
		WithArgs("RESERVED", "ord_1", poolDeadline, sqlmock.AnyArg(), "bitcoin", "bc1qaddr1", "FREE").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT address`).
		WithArgs("bitcoin", "FREE").
		WillReturnRows(sqlmock.NewRows([]string{"address"}).AddRow("bc1qaddr2"))
	mock.ExpectExec(`UPDATE deposit_addresses`).
		WithArgs("RESERVED", "ord_1", poolDeadline, sqlmock.AnyArg(), "bitcoin", "bc1qaddr2", "FREE").
		WillReturnResult(sqlmock.NewResult(0, 1))

	addr, err := repo.Reserve(context.Background(), entities.MethodBTC, "ord_1", poolDeadline)

	require.NoError(t, err)
	assert.Equal(t, "bc1qaddr2", addr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserve_EmptyPoolIsCapacityError(t *testing.T) {
	repo, mock := newPoolMock(t)

	mock.ExpectQuery(`SELECT address`).
		WithArgs("solana", "FREE").
		WillReturnRows(sqlmock.NewRows([]string{"address"}))

	_, err := repo.Reserve(context.Background(), entities.MethodSOL, "ord_1", poolDeadline)

	assert.ErrorIs(t, err, apperrors.ErrPoolExhausted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserve_GivesUpAfterBoundedRetries(t *testing.T) {
	repo, mock := newPoolMock(t)

	for i := 0; i < reserveAttempts; i++ {
		mock.ExpectQuery(`SELECT address`).
			WithArgs("bitcoin", "FREE").
			WillReturnRows(sqlmock.NewRows([]string{"address"}).AddRow("bc1qcontested"))
		mock.ExpectExec(`UPDATE deposit_addresses`).
			WithArgs("RESERVED", "ord_1", poolDeadline, sqlmock.AnyArg(), "bitcoin", "bc1qcontested", "FREE").
			WillReturnResult(sqlmock.NewResult(0, 0))
	}

	_, err := repo.Reserve(context.Background(), entities.MethodBTC, "ord_1", poolDeadline)

	assert.ErrorIs(t, err, apperrors.ErrPoolExhausted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepExpired_OnlyReclaimsReservedUnpaidRows(t *testing.T) {
	repo, mock := newPoolMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// The status predicate admits only RESERVED rows, so an INFLIGHT address
	// can never be reclaimed regardless of its deadline, and the subquery
	// restricts the sweep to orders that never saw a payment.
	mock.ExpectExec(`(?s)UPDATE deposit_addresses.*WHERE status = \$2.*payment_seen = FALSE`).
		WithArgs("FREE", "RESERVED", now, "PENDING", "EXPIRED").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.SweepExpired(context.Background(), now)

	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkInFlight_OnlyMovesReservedRows(t *testing.T) {
	repo, mock := newPoolMock(t)

	mock.ExpectExec(`UPDATE deposit_addresses`).
		WithArgs("INFLIGHT", "ord_1", "RESERVED").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkInFlight(context.Background(), "ord_1"))

	// Already INFLIGHT: the conditional update matches nothing and the call
	// still succeeds.
	mock.ExpectExec(`UPDATE deposit_addresses`).
		WithArgs("INFLIGHT", "ord_1", "RESERVED").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkInFlight(context.Background(), "ord_1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecycle_IsIdempotent(t *testing.T) {
	repo, mock := newPoolMock(t)

	mock.ExpectExec(`UPDATE deposit_addresses`).
		WithArgs("FREE", sqlmock.AnyArg(), "ord_1", "RESERVED", "INFLIGHT").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE deposit_addresses`).
		WithArgs("FREE", sqlmock.AnyArg(), "ord_1", "RESERVED", "INFLIGHT").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Recycle(context.Background(), "ord_1"))
	require.NoError(t, repo.Recycle(context.Background(), "ord_1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeed_NeverDisturbsExistingRows(t *testing.T) {
	repo, mock := newPoolMock(t)

	// ON CONFLICT DO NOTHING: the second address already exists and is left
	// untouched.
	mock.ExpectExec(`(?s)INSERT INTO deposit_addresses.*ON CONFLICT \(pay_method, address\) DO NOTHING`).
		WithArgs("bitcoin", "bc1qnew", "FREE").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)INSERT INTO deposit_addresses.*ON CONFLICT \(pay_method, address\) DO NOTHING`).
		WithArgs("bitcoin", "bc1qbound", "FREE").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Seed(context.Background(), entities.MethodBTC, []string{"bc1qnew", "bc1qbound"})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
