package order

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventOrderCreated       EventType = "order.created"
	EventOrderVoided        EventType = "order.voided"
	EventOrderPaid          EventType = "order.paid"
	EventOrderPaymentFailed EventType = "order.payment_failed"
)

// Event is published after the transaction that produced it commits.
type Event struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	OrderID       int64           `json:"orderId"`
	OrderCode     string          `json:"orderCode"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	PaymentStatus PaymentStatus   `json:"paymentStatus"`
	GrandTotal    decimal.Decimal `json:"grandTotal"`
	IsVoided      bool            `json:"isVoided"`
	ActorID       *int64          `json:"actorId,omitempty"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

func newEvent(t EventType, o *Order, actorID *int64, at time.Time) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          t,
		OrderID:       o.ID,
		OrderCode:     o.OrderCode,
		PaymentMethod: o.PaymentMethod,
		PaymentStatus: o.PaymentStatus,
		GrandTotal:    o.GrandTotal,
		IsVoided:      o.IsVoided,
		ActorID:       actorID,
		OccurredAt:    at,
	}
}

// Metrics receives business counters from the service.
type Metrics interface {
	OrderCreated(method string, grandTotal float64)
	OrderFailed(kind string)
	OrderVoided()
	PaymentTransition(status string)
	CodeCollision()
}

type nopMetrics struct{}

func (nopMetrics) OrderCreated(string, float64) {}
func (nopMetrics) OrderFailed(string)           {}
func (nopMetrics) OrderVoided()                 {}
func (nopMetrics) PaymentTransition(string)     {}
func (nopMetrics) CodeCollision()               {}
