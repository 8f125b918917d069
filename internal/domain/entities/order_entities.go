package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is a buyer's purchase intent: a fiat amount to be settled in VPC
// once the expected crypto payment lands on the bound deposit address.
type Order struct {
	ID               string          `db:"id" json:"orderId"`
	Status           OrderStatus     `db:"status" json:"status"`
	USDAmount        decimal.Decimal `db:"usd_amount" json:"usd"`
	PayMethod        PaymentMethod   `db:"pay_method" json:"payMethod"`
	RecipientAddr    string          `db:"recipient_address" json:"solanaAddress"`
	PromoCode        string          `db:"promo_code" json:"-"`
	DiscountRate     decimal.Decimal `db:"discount_rate" json:"discountRate"`
	TokenAmount      int64           `db:"token_amount" json:"vpcAmount"`
	ExpectedAmount   decimal.Decimal `db:"expected_crypto_amount" json:"expectedCryptoAmount"`
	CurrencyLabel    string          `db:"currency_label" json:"currencyLabel"`
	DepositAddress   string          `db:"deposit_address" json:"depositAddress"`
	CreatedAt        time.Time       `db:"created_at" json:"createdAt"`
	ExpiresAt        time.Time       `db:"expires_at" json:"expiresAt"`
	PaymentSeen      bool            `db:"payment_seen" json:"paymentSeen"`
	PaymentConfirmed bool            `db:"payment_confirmed" json:"paymentConfirmed"`
	PaymentTxID      *string         `db:"payment_txid" json:"paymentTxid"`
	SettlementTxSig  *string         `db:"settlement_tx_sig" json:"fulfillTxSignature"`
	ClientPingAt     *time.Time      `db:"client_ping_at" json:"-"`
}

// IsExpired reports whether the payment window has closed
func (o *Order) IsExpired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// CreateOrderRequest is the intake payload for a new order
type CreateOrderRequest struct {
	USD           float64 `json:"usd" binding:"required"`
	SolanaAddress string  `json:"solanaAddress" binding:"required,min=32,max=44"`
	PayMethod     string  `json:"payMethod" binding:"required"`
	PromoCode     string  `json:"promoCode"`
}

// CreateOrderResponse is returned to the buyer after a successful reservation
type CreateOrderResponse struct {
	OrderID        string          `json:"orderId"`
	Status         OrderStatus     `json:"status"`
	USD            decimal.Decimal `json:"usd"`
	DiscountRate   decimal.Decimal `json:"discountRate"`
	VPCAmount      int64           `json:"vpcAmount"`
	PayMethod      PaymentMethod   `json:"payMethod"`
	CurrencyLabel  string          `json:"currencyLabel"`
	DepositAddress string          `json:"depositAddress"`
	ExpectedAmount decimal.Decimal `json:"expectedCryptoAmount"`
	ExpiresAt      time.Time       `json:"expiresAt"`
}
