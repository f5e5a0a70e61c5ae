package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveOutcome(t *testing.T) {
	tests := []struct {
		status string
		fraud  string
		want   Outcome
	}{
		{"capture", "accept", OutcomePaid},
		{"capture", "challenge", OutcomePending},
		{"settlement", "accept", OutcomePaid},
		{"settlement", "", OutcomePaid},
		{"SETTLEMENT", "ACCEPT", OutcomePaid},
		{"settlement", "deny", OutcomePending},
		{"cancel", "", OutcomeFailed},
		{"deny", "deny", OutcomeFailed},
		{"expire", "", OutcomeFailed},
		{"failure", "", OutcomeFailed},
		{"pending", "", OutcomePending},
		{"refund", "accept", OutcomePending},
	}

	for _, tt := range tests {
		t.Run(tt.status+"/"+tt.fraud, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveOutcome(tt.status, tt.fraud))
		})
	}
}

func TestNotification_EventID(t *testing.T) {
	n := Notification{TransactionID: "tx-1", TransactionStatus: "settlement"}
	assert.Equal(t, "tx-1:settlement", n.EventID())
}
