package payment

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	ProviderMidtrans = "MIDTRANS"
	TypeQRIS         = "qris"
)

// Payment is the gateway-side record of an order paid asynchronously.
type Payment struct {
	ID                   int64
	OrderID              int64
	Provider             string
	GatewayOrderID       string
	GatewayTransactionID string
	PaymentType          string
	Amount               decimal.Decimal
	Status               string
	QRString             string
	QRImageURL           string
	ExpireAt             *time.Time
	RawResponse          json.RawMessage
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type ItemDetail struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

type Customer struct {
	Name  string `json:"first_name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// ChargeRequest asks the gateway to open a payment correlated by OrderID.
type ChargeRequest struct {
	OrderID     string
	GrossAmount decimal.Decimal
	Items       []ItemDetail
	Customer    Customer
}

type ChargeResponse struct {
	TransactionID     string
	OrderID           string
	TransactionStatus string
	QRString          string
	QRImageURL        string
	ExpiresAt         *time.Time
	Raw               json.RawMessage
}

// Notification is the inbound asynchronous status callback.
type Notification struct {
	TransactionID     string `json:"transaction_id"`
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	PaymentType       string `json:"payment_type"`
	TransactionTime   string `json:"transaction_time"`
	SettlementTime    string `json:"settlement_time,omitempty"`
}

// EventID identifies one delivery state of a transaction for dedupe.
func (n Notification) EventID() string {
	return n.TransactionID + ":" + n.TransactionStatus
}
