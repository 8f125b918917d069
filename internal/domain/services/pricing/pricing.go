// Package pricing computes discount rates and token quantities for the sale.
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)

	// Volume tiers, highest threshold first. A purchase qualifies for the
	// largest tier whose threshold it meets.
	volumeTiers = []struct {
		threshold decimal.Decimal
		rate      decimal.Decimal
	}{
		{decimal.NewFromInt(10000), decimal.NewFromFloat(0.10)},
		{decimal.NewFromInt(6000), decimal.NewFromFloat(0.07)},
		{decimal.NewFromInt(3000), decimal.NewFromFloat(0.05)},
		{decimal.NewFromInt(1000), decimal.NewFromFloat(0.03)},
	}
)

// Calculator derives discount rates and token quantities from the sale terms
type Calculator struct {
	basePriceUSD decimal.Decimal
	maxRate      decimal.Decimal
	promoCodes   map[string]decimal.Decimal
}

// NewCalculator creates a calculator for the given base token price, discount
// cap and promo-code table (code -> rate).
func NewCalculator(basePriceUSD, maxRate float64, promoCodes map[string]float64) *Calculator {
	promos := make(map[string]decimal.Decimal, len(promoCodes))
	for code, rate := range promoCodes {
		promos[strings.ToLower(strings.TrimSpace(code))] = decimal.NewFromFloat(rate)
	}
	return &Calculator{
		basePriceUSD: decimal.NewFromFloat(basePriceUSD),
		maxRate:      decimal.NewFromFloat(maxRate),
		promoCodes:   promos,
	}
}

// VolumeDiscount returns the tiered volume discount for a USD amount
func VolumeDiscount(usd decimal.Decimal) decimal.Decimal {
	for _, tier := range volumeTiers {
		if usd.GreaterThanOrEqual(tier.threshold) {
			return tier.rate
		}
	}
	return decimal.Zero
}

// PromoDiscount returns the discount rate for a promo code, zero if unknown
func (c *Calculator) PromoDiscount(code string) decimal.Decimal {
	normalized := strings.ToLower(strings.TrimSpace(code))
	if normalized == "" {
		return decimal.Zero
	}
	return c.promoCodes[normalized]
}

// DiscountRate combines the volume and promo discounts, capped at the
// configured maximum and floored at zero.
func (c *Calculator) DiscountRate(usd decimal.Decimal, promoCode string) decimal.Decimal {
	rate := VolumeDiscount(usd).Add(c.PromoDiscount(promoCode))
	if rate.GreaterThan(c.maxRate) {
		return c.maxRate
	}
	if rate.IsNegative() {
		return decimal.Zero
	}
	return rate
}

// TokenAmount returns floor(usd / effectivePrice) where the effective price
// is the base token price reduced by the discount rate. Zero when the
// effective price is not positive.
func (c *Calculator) TokenAmount(usd, discountRate decimal.Decimal) int64 {
	effective := c.basePriceUSD.Mul(decimal.NewFromInt(1).Sub(discountRate))
	if !effective.IsPositive() {
		return 0
	}
	amount := usd.Div(effective).Floor().IntPart()
	if amount < 0 {
		return 0
	}
	return amount
}

// ExpectedCryptoAmount converts a USD amount into the payment asset at the
// given unit price, rounded to the method's precision.
func ExpectedCryptoAmount(usd, unitPriceUSD decimal.Decimal, decimals int32) decimal.Decimal {
	return usd.Div(unitPriceUSD).Round(decimals)
}

// WithinTolerance reports whether received satisfies the expected quantity
// allowing the configured shortfall percentage.
func WithinTolerance(received, expected, tolerancePct decimal.Decimal) bool {
	slack := expected.Mul(tolerancePct).Div(hundred)
	return received.Add(slack).GreaterThanOrEqual(expected)
}
