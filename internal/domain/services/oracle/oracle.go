// Package oracle resolves payment-asset spot prices with caching and
// provider fallback. The cascade — cache, primary, secondary, pegged
// constant — is the resilience template the chain watchers follow too.
package oracle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/viewplay/vpc-sale-service/internal/domain/errors"
)

const (
	defaultTTL    = 20 * time.Second
	providerTries = 2
	retryBaseWait = 250 * time.Millisecond

	// peggedAssetKey resolves to exactly 1.0 USD when every provider fails
	peggedAssetKey = "tether"
)

// PriceProvider is one upstream spot-price source
type PriceProvider interface {
	SpotPrice(ctx context.Context, assetKey string) (decimal.Decimal, error)
}

type cachedPrice struct {
	price     decimal.Decimal
	fetchedAt time.Time
}

// Oracle resolves USD unit prices with a TTL cache in front of a
// primary/secondary provider cascade.
type Oracle struct {
	primary   PriceProvider
	secondary PriceProvider
	ttl       time.Duration
	logger    *zap.Logger

	mu    sync.Mutex
	cache map[string]cachedPrice
	nowFn func() time.Time
}

// Option customizes oracle construction
type Option func(*Oracle)

// WithTTL overrides the cache TTL
func WithTTL(ttl time.Duration) Option {
	return func(o *Oracle) { o.ttl = ttl }
}

// WithClock injects a clock, used by tests to control cache expiry
func WithClock(nowFn func() time.Time) Option {
	return func(o *Oracle) { o.nowFn = nowFn }
}

// New creates an oracle over a primary and a secondary price provider
func New(primary, secondary PriceProvider, logger *zap.Logger, opts ...Option) *Oracle {
	o := &Oracle{
		primary:   primary,
		secondary: secondary,
		ttl:       defaultTTL,
		logger:    logger,
		cache:     make(map[string]cachedPrice),
		nowFn:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Price returns the USD unit price for an asset key. Fails with
// ErrPriceUnavailable only when every source, including the pegged
// fallback, is inapplicable.
func (o *Oracle) Price(ctx context.Context, assetKey string) (decimal.Decimal, error) {
	key := strings.ToLower(strings.TrimSpace(assetKey))
	if key == "" {
		return decimal.Zero, apperrors.ValidationError("missing price asset key")
	}

	if price, ok := o.cached(key); ok {
		return price, nil
	}

	if price, err := o.queryWithRetry(ctx, o.primary, key); err == nil {
		o.store(key, price)
		return price, nil
	} else {
		o.logger.Warn("Primary price provider failed",
			zap.String("asset", key),
			zap.Error(err))
	}

	if price, err := o.queryWithRetry(ctx, o.secondary, key); err == nil {
		o.store(key, price)
		return price, nil
	} else {
		o.logger.Warn("Secondary price provider failed",
			zap.String("asset", key),
			zap.Error(err))
	}

	// Last resort for the fiat-pegged stable asset
	if key == peggedAssetKey {
		price := decimal.NewFromInt(1)
		o.store(key, price)
		o.logger.Info("Using pegged fallback price", zap.String("asset", key))
		return price, nil
	}

	return decimal.Zero, fmt.Errorf("all price sources failed for %s: %w", key, apperrors.ErrPriceUnavailable)
}

func (o *Oracle) queryWithRetry(ctx context.Context, provider PriceProvider, key string) (decimal.Decimal, error) {
	var lastErr error
	for attempt := 0; attempt < providerTries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return decimal.Zero, ctx.Err()
			case <-time.After(retryBaseWait * time.Duration(attempt)):
			}
		}

		price, err := provider.SpotPrice(ctx, key)
		if err == nil {
			if !price.IsPositive() {
				lastErr = fmt.Errorf("non-positive price for %s: %w", key, apperrors.ErrProviderUnavailable)
				continue
			}
			return price, nil
		}
		lastErr = err
	}
	return decimal.Zero, lastErr
}

func (o *Oracle) cached(key string) (decimal.Decimal, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	entry, ok := o.cache[key]
	if !ok || o.nowFn().Sub(entry.fetchedAt) >= o.ttl {
		return decimal.Zero, false
	}
	return entry.price, true
}

func (o *Oracle) store(key string, price decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cache[key] = cachedPrice{price: price, fetchedAt: o.nowFn()}
}
