package order

import "kasir-be/internal/payment"

// validNext lists the payment transitions allowed from each status.
// Paid and failed are terminal; void is tracked separately.
var validNext = map[PaymentStatus][]PaymentStatus{
	StatusPending: {StatusPaid, StatusFailed},
	StatusPaid:    {},
	StatusFailed:  {},
}

func CanTransition(from, to PaymentStatus) bool {
	for _, s := range validNext[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s PaymentStatus) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s PaymentStatus) Terminal() bool {
	return s.Valid() && len(validNext[s]) == 0
}

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodQRIS:
		return true
	}
	return false
}

// Async reports whether the method needs confirmation from the gateway.
func (m PaymentMethod) Async() bool {
	return m == MethodQRIS
}

// InitialStatus is paid for methods settled at the counter and pending
// for methods confirmed by the gateway.
func InitialStatus(m PaymentMethod) PaymentStatus {
	if m.Async() {
		return StatusPending
	}
	return StatusPaid
}

func statusFromOutcome(o payment.Outcome) PaymentStatus {
	switch o {
	case payment.OutcomePaid:
		return StatusPaid
	case payment.OutcomeFailed:
		return StatusFailed
	default:
		return StatusPending
	}
}
