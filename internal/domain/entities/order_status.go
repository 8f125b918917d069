package entities

// OrderStatus represents the status of a sale order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusFulfilled OrderStatus = "FULFILLED"
	OrderStatusFailed    OrderStatus = "FAILED"
	OrderStatusExpired   OrderStatus = "EXPIRED"
)

// ValidOrderStatuses contains all valid order statuses
var ValidOrderStatuses = map[OrderStatus]bool{
	OrderStatusPending:   true,
	OrderStatusPaid:      true,
	OrderStatusFulfilled: true,
	OrderStatusFailed:    true,
	OrderStatusExpired:   true,
}

// ValidOrderTransitions defines allowed status transitions.
// The graph is forward-only; terminal states are never re-entered.
var ValidOrderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusPaid, OrderStatusExpired},
	OrderStatusPaid:      {OrderStatusFulfilled, OrderStatusFailed},
	OrderStatusFulfilled: {},
	OrderStatusFailed:    {},
	OrderStatusExpired:   {},
}

// IsValid checks if the status is a valid order status
func (s OrderStatus) IsValid() bool {
	return ValidOrderStatuses[s]
}

// CanTransitionTo checks if transition to new status is allowed
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range ValidOrderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal returns true if this is a terminal state
func (s OrderStatus) IsTerminal() bool {
	return len(ValidOrderTransitions[s]) == 0 && ValidOrderStatuses[s]
}
