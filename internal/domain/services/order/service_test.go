package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/viewplay/vpc-sale-service/internal/domain/entities"
	apperrors "github.com/viewplay/vpc-sale-service/internal/domain/errors"
	"github.com/viewplay/vpc-sale-service/internal/domain/services/pricing"
	"github.com/viewplay/vpc-sale-service/pkg/metrics"
)

// 32 ones decode to a 32-byte zero key, the system program address.
const validRecipient = "11111111111111111111111111111111"

type fakeOrderRepo struct {
	created []*entities.Order
	orders  map[string]*entities.Order
	pings   map[string]time.Time
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders: make(map[string]*entities.Order),
		pings:  make(map[string]time.Time),
	}
}

func (f *fakeOrderRepo) Create(ctx context.Context, order *entities.Order) error {
	f.created = append(f.created, order)
	f.orders[order.ID] = order
	return nil
}

func (f *fakeOrderRepo) GetByID(ctx context.Context, id string) (*entities.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return order, nil
}

func (f *fakeOrderRepo) RecordClientPing(ctx context.Context, id string, at time.Time) error {
	f.pings[id] = at
	return nil
}

// fakePool hands out a bounded set of addresses with mutual exclusion, the
// same guarantee the conditional row update provides in the real pool.
type fakePool struct {
	mu   sync.Mutex
	free []string
	err  error
}

func (f *fakePool) Reserve(ctx context.Context, method entities.PaymentMethod, orderID string, deadline time.Time) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.free) == 0 {
		return "", apperrors.CapacityError(string(method))
	}
	addr := f.free[0]
	f.free = f.free[1:]
	return addr, nil
}

type fakeOracle struct {
	price decimal.Decimal
	err   error
}

func (f *fakeOracle) Price(ctx context.Context, assetKey string) (decimal.Decimal, error) {
	return f.price, f.err
}

func newTestService(repo *fakeOrderRepo, pool *fakePool, oracle *fakeOracle) *Service {
	calc := pricing.NewCalculator(0.0019, 0.20, map[string]float64{"viewplay10": 0.10})
	s := NewService(repo, pool, oracle, calc, 20, zap.NewNop())
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestService_Create(t *testing.T) {
	t.Run("prices and reserves a bitcoin order", func(t *testing.T) {
		repo := newFakeOrderRepo()
		pool := &fakePool{free: []string{"bc1qaddr1"}}
		oracle := &fakeOracle{price: decimal.NewFromInt(50_000)}
		s := newTestService(repo, pool, oracle)

		order, err := s.Create(context.Background(), &entities.CreateOrderRequest{
			USD:           2000,
			SolanaAddress: validRecipient,
			PayMethod:     "bitcoin",
		})

		require.NoError(t, err)
		assert.Equal(t, entities.OrderStatusPending, order.Status)
		assert.Equal(t, "bc1qaddr1", order.DepositAddress)
		assert.True(t, decimal.RequireFromString("0.03").Equal(order.DiscountRate))
		// floor(2000 / (0.0019 * 0.97))
		assert.Equal(t, int64(1_085_187), order.TokenAmount)
		// 2000 / 50000 at 8 decimals.
		assert.True(t, decimal.RequireFromString("0.04").Equal(order.ExpectedAmount))
		assert.Equal(t, order.CreatedAt.Add(4*time.Hour), order.ExpiresAt)
		require.Len(t, repo.created, 1)
	})

	t.Run("applies a promo code on top of volume tiers", func(t *testing.T) {
		repo := newFakeOrderRepo()
		pool := &fakePool{free: []string{"addr1"}}
		oracle := &fakeOracle{price: decimal.NewFromInt(1)}
		s := newTestService(repo, pool, oracle)

		order, err := s.Create(context.Background(), &entities.CreateOrderRequest{
			USD:           2000,
			SolanaAddress: validRecipient,
			PayMethod:     "usdt_trc20",
			PromoCode:     "VIEWPLAY10",
		})

		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("0.13").Equal(order.DiscountRate))
		assert.Equal(t, "viewplay10", order.PromoCode)
		assert.Equal(t, order.CreatedAt.Add(30*time.Minute), order.ExpiresAt)
	})

	t.Run("rejects an unsupported payment method", func(t *testing.T) {
		s := newTestService(newFakeOrderRepo(), &fakePool{}, &fakeOracle{price: decimal.NewFromInt(1)})

		_, err := s.Create(context.Background(), &entities.CreateOrderRequest{
			USD:           100,
			SolanaAddress: validRecipient,
			PayMethod:     "dogecoin",
		})

		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("rejects purchases below the minimum", func(t *testing.T) {
		s := newTestService(newFakeOrderRepo(), &fakePool{}, &fakeOracle{price: decimal.NewFromInt(1)})

		_, err := s.Create(context.Background(), &entities.CreateOrderRequest{
			USD:           19.99,
			SolanaAddress: validRecipient,
			PayMethod:     "ethereum",
		})

		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("rejects a malformed recipient address", func(t *testing.T) {
		s := newTestService(newFakeOrderRepo(), &fakePool{}, &fakeOracle{price: decimal.NewFromInt(1)})

		_, err := s.Create(context.Background(), &entities.CreateOrderRequest{
			USD:           100,
			SolanaAddress: "0x52908400098527886E0F7030069857D2E4169EE7",
			PayMethod:     "ethereum",
		})

		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("surfaces pool exhaustion without persisting", func(t *testing.T) {
		repo := newFakeOrderRepo()
		pool := &fakePool{}
		s := newTestService(repo, pool, &fakeOracle{price: decimal.NewFromInt(1)})

		before := testutil.ToFloat64(metrics.PoolExhausted.WithLabelValues("solana"))
		_, err := s.Create(context.Background(), &entities.CreateOrderRequest{
			USD:           100,
			SolanaAddress: validRecipient,
			PayMethod:     "solana",
		})

		assert.ErrorIs(t, err, apperrors.ErrPoolExhausted)
		assert.Empty(t, repo.created)
		assert.Equal(t, before+1, testutil.ToFloat64(metrics.PoolExhausted.WithLabelValues("solana")))
	})

	t.Run("propagates price oracle failure", func(t *testing.T) {
		s := newTestService(newFakeOrderRepo(), &fakePool{free: []string{"addr1"}}, &fakeOracle{err: apperrors.ErrPriceUnavailable})

		_, err := s.Create(context.Background(), &entities.CreateOrderRequest{
			USD:           100,
			SolanaAddress: validRecipient,
			PayMethod:     "bitcoin",
		})

		assert.ErrorIs(t, err, apperrors.ErrPriceUnavailable)
	})

	t.Run("concurrent creates never share a deposit address", func(t *testing.T) {
		repo := newFakeOrderRepo()
		pool := &fakePool{free: []string{"addr1", "addr2"}}
		oracle := &fakeOracle{price: decimal.NewFromInt(1)}
		s := newTestService(repo, pool, oracle)

		const attempts = 8
		results := make(chan error, attempts)
		var wg sync.WaitGroup
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Create(context.Background(), &entities.CreateOrderRequest{
					USD:           100,
					SolanaAddress: validRecipient,
					PayMethod:     "ethereum",
				})
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		succeeded := 0
		for err := range results {
			if err == nil {
				succeeded++
			} else {
				assert.ErrorIs(t, err, apperrors.ErrPoolExhausted)
			}
		}
		assert.Equal(t, 2, succeeded)

		seen := make(map[string]bool)
		for _, order := range repo.created {
			assert.False(t, seen[order.DepositAddress], "address %s reserved twice", order.DepositAddress)
			seen[order.DepositAddress] = true
		}
	})
}

func TestService_Get(t *testing.T) {
	repo := newFakeOrderRepo()
	repo.orders["ord_1"] = &entities.Order{ID: "ord_1"}
	s := newTestService(repo, &fakePool{}, &fakeOracle{})

	order, err := s.Get(context.Background(), "ord_1")
	require.NoError(t, err)
	assert.Equal(t, "ord_1", order.ID)

	_, err = s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = s.Get(context.Background(), "  ")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestService_RecordClientPing(t *testing.T) {
	repo := newFakeOrderRepo()
	repo.orders["ord_1"] = &entities.Order{ID: "ord_1"}
	s := newTestService(repo, &fakePool{}, &fakeOracle{})

	require.NoError(t, s.RecordClientPing(context.Background(), "ord_1"))
	assert.False(t, repo.pings["ord_1"].IsZero())

	err := s.RecordClientPing(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
