package entities

import (
	"fmt"
	"time"
)

// PaymentMethod identifies the chain and asset a buyer pays with
type PaymentMethod string

const (
	MethodBTC       PaymentMethod = "bitcoin"
	MethodETH       PaymentMethod = "ethereum"
	MethodSOL       PaymentMethod = "solana"
	MethodUSDTTRC20 PaymentMethod = "usdt_trc20"
	MethodUSDTERC20 PaymentMethod = "usdt_erc20"
	MethodUSDTSOL   PaymentMethod = "usdt_sol"
)

// AllPaymentMethods lists every supported payment method
var AllPaymentMethods = []PaymentMethod{
	MethodBTC,
	MethodETH,
	MethodSOL,
	MethodUSDTTRC20,
	MethodUSDTERC20,
	MethodUSDTSOL,
}

// ParsePaymentMethod validates and converts a raw string
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(s)
	for _, known := range AllPaymentMethods {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown payment method: %q", s)
}

// AssetKey returns the price-feed asset identifier for the method
func (m PaymentMethod) AssetKey() string {
	switch m {
	case MethodBTC:
		return "bitcoin"
	case MethodETH:
		return "ethereum"
	case MethodSOL:
		return "solana"
	case MethodUSDTTRC20, MethodUSDTERC20, MethodUSDTSOL:
		return "tether"
	}
	return string(m)
}

// CurrencyLabel returns the ticker shown to the buyer
func (m PaymentMethod) CurrencyLabel() string {
	switch m {
	case MethodBTC:
		return "BTC"
	case MethodETH:
		return "ETH"
	case MethodSOL:
		return "SOL"
	case MethodUSDTTRC20, MethodUSDTERC20, MethodUSDTSOL:
		return "USDT"
	}
	return string(m)
}

// Decimals returns the precision the expected payment amount is rounded to
func (m PaymentMethod) Decimals() int32 {
	if m == MethodBTC {
		return 8
	}
	return 6
}

// ExpiryWindow returns how long an order for this method stays payable.
// BTC confirmations are slow, so BTC orders get a longer window.
func (m PaymentMethod) ExpiryWindow() time.Duration {
	if m == MethodBTC {
		return 4 * time.Hour
	}
	return 30 * time.Minute
}
