package payment

import "strings"

type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomePaid    Outcome = "paid"
	OutcomeFailed  Outcome = "failed"
)

// ResolveOutcome maps the gateway status vocabulary onto the payment
// lifecycle. Unknown statuses leave the payment pending.
func ResolveOutcome(transactionStatus, fraudStatus string) Outcome {
	fraud := strings.ToLower(strings.TrimSpace(fraudStatus))

	switch strings.ToLower(strings.TrimSpace(transactionStatus)) {
	case "capture":
		if fraud == "accept" {
			return OutcomePaid
		}
		return OutcomePending
	case "settlement":
		if fraud == "accept" || fraud == "" {
			return OutcomePaid
		}
		return OutcomePending
	case "cancel", "deny", "expire", "failure":
		return OutcomeFailed
	default:
		return OutcomePending
	}
}
