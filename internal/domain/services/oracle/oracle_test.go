package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/viewplay/vpc-sale-service/internal/domain/errors"
)

type stubProvider struct {
	price decimal.Decimal
	err   error
	calls int
}

func (s *stubProvider) SpotPrice(ctx context.Context, assetKey string) (decimal.Decimal, error) {
	s.calls++
	if s.err != nil {
		return decimal.Zero, s.err
	}
	return s.price, nil
}

func TestPrice_PrimaryWins(t *testing.T) {
	primary := &stubProvider{price: decimal.NewFromInt(50000)}
	secondary := &stubProvider{price: decimal.NewFromInt(49000)}
	o := New(primary, secondary, zap.NewNop())

	price, err := o.Price(context.Background(), "bitcoin")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(50000)))
	assert.Equal(t, 0, secondary.calls)
}

func TestPrice_FallsBackToSecondary(t *testing.T) {
	primary := &stubProvider{err: errors.New("down")}
	secondary := &stubProvider{price: decimal.NewFromInt(49000)}
	o := New(primary, secondary, zap.NewNop())

	price, err := o.Price(context.Background(), "bitcoin")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(49000)))
	assert.Equal(t, 2, primary.calls, "primary retried before falling back")
}

func TestPrice_PeggedFallback(t *testing.T) {
	primary := &stubProvider{err: errors.New("down")}
	secondary := &stubProvider{err: errors.New("also down")}
	o := New(primary, secondary, zap.NewNop())

	price, err := o.Price(context.Background(), "tether")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(1)), "pegged asset resolves to exactly 1.0")

	// served from cache: providers are not consulted again
	primaryCalls, secondaryCalls := primary.calls, secondary.calls
	price, err = o.Price(context.Background(), "tether")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, primaryCalls, primary.calls)
	assert.Equal(t, secondaryCalls, secondary.calls)
}

func TestPrice_AllSourcesFail(t *testing.T) {
	primary := &stubProvider{err: errors.New("down")}
	secondary := &stubProvider{err: errors.New("also down")}
	o := New(primary, secondary, zap.NewNop())

	_, err := o.Price(context.Background(), "bitcoin")
	assert.ErrorIs(t, err, apperrors.ErrPriceUnavailable)
}

func TestPrice_CacheExpiry(t *testing.T) {
	now := time.Unix(1700000000, 0)
	primary := &stubProvider{price: decimal.NewFromInt(100)}
	o := New(primary, &stubProvider{err: errors.New("unused")}, zap.NewNop(),
		WithTTL(20*time.Second),
		WithClock(func() time.Time { return now }),
	)

	_, err := o.Price(context.Background(), "solana")
	require.NoError(t, err)
	assert.Equal(t, 1, primary.calls)

	// within TTL: cache hit
	now = now.Add(19 * time.Second)
	_, err = o.Price(context.Background(), "solana")
	require.NoError(t, err)
	assert.Equal(t, 1, primary.calls)

	// past TTL: provider queried again
	now = now.Add(2 * time.Second)
	_, err = o.Price(context.Background(), "solana")
	require.NoError(t, err)
	assert.Equal(t, 2, primary.calls)
}

func TestPrice_EmptyKeyRejected(t *testing.T) {
	o := New(&stubProvider{}, &stubProvider{}, zap.NewNop())

	_, err := o.Price(context.Background(), "  ")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
