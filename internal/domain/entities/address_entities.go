package entities

import "time"

// AddressStatus represents the lifecycle state of a deposit address
type AddressStatus string

const (
	// AddressStatusFree means the address can be handed to a new order
	AddressStatusFree AddressStatus = "FREE"

	// AddressStatusReserved means an order holds the address until its deadline
	AddressStatusReserved AddressStatus = "RESERVED"

	// AddressStatusInFlight means funds were observed on the address; it must
	// never be reclaimed by the expiry sweep
	AddressStatusInFlight AddressStatus = "INFLIGHT"
)

// ValidAddressTransitions defines allowed address state transitions
var ValidAddressTransitions = map[AddressStatus][]AddressStatus{
	AddressStatusFree:     {AddressStatusReserved},
	AddressStatusReserved: {AddressStatusInFlight, AddressStatusFree},
	AddressStatusInFlight: {AddressStatusFree},
}

// CanTransitionTo checks if transition to new status is allowed
func (s AddressStatus) CanTransitionTo(next AddressStatus) bool {
	for _, allowed := range ValidAddressTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// DepositAddress is one pooled payment address for a single method.
// Addresses are seeded from configuration and never deleted; they cycle
// FREE -> RESERVED -> INFLIGHT -> FREE across orders.
type DepositAddress struct {
	PayMethod     PaymentMethod `db:"pay_method"`
	Address       string        `db:"address"`
	Status        AddressStatus `db:"status"`
	OrderID       *string       `db:"order_id"`
	ReservedUntil *time.Time    `db:"reserved_until"`
	LastUsedAt    *time.Time    `db:"last_used_at"`
}
