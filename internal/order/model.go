package order

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	MethodCash PaymentMethod = "cash"
	MethodCard PaymentMethod = "card"
	MethodQRIS PaymentMethod = "qris"
)

type PaymentStatus string

const (
	StatusPending PaymentStatus = "pending"
	StatusPaid    PaymentStatus = "paid"
	StatusFailed  PaymentStatus = "failed"
)

type Order struct {
	ID                   int64           `json:"id"`
	OrderCode            string          `json:"orderCode"`
	MemberID             *int64          `json:"memberId,omitempty"`
	UserID               *int64          `json:"userId,omitempty"`
	CustomerName         string          `json:"customerName"`
	CustomerPhone        string          `json:"customerPhone"`
	CustomerEmail        string          `json:"customerEmail"`
	Items                []OrderItem     `json:"items"`
	Subtotal             decimal.Decimal `json:"subtotal"`
	DiscountAmount       decimal.Decimal `json:"discountAmount"`
	TaxAmount            decimal.Decimal `json:"taxAmount"`
	GrandTotal           decimal.Decimal `json:"grandTotal"`
	PaymentMethod        PaymentMethod   `json:"paymentMethod"`
	PaymentStatus        PaymentStatus   `json:"paymentStatus"`
	PaymentReference     *string         `json:"paymentReference,omitempty"`
	PromotionID          *int64          `json:"promotionId,omitempty"`
	Note                 string          `json:"note"`
	IsVoided             bool            `json:"isVoided"`
	VoidReason           string          `json:"voidReason,omitempty"`
	VoidedAt             *time.Time      `json:"voidedAt,omitempty"`
	VoidedBy             *int64          `json:"voidedBy,omitempty"`
	GatewayOrderID       *string         `json:"gatewayOrderId,omitempty"`
	GatewayTransactionID *string         `json:"gatewayTransactionId,omitempty"`
	QRImageURL           *string         `json:"qrImageUrl,omitempty"`
	PaidAt               *time.Time      `json:"paidAt,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

// OrderItem is immutable once written.
type OrderItem struct {
	ID               int64           `json:"id"`
	OrderID          int64           `json:"orderId"`
	ProductID        int64           `json:"productId"`
	ProductName      string          `json:"productName"`
	OriginalPrice    decimal.Decimal `json:"originalPrice"`
	UnitPrice        decimal.Decimal `json:"unitPrice"`
	Quantity         int             `json:"quantity"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	DiscountAmount   decimal.Decimal `json:"discountAmount"`
	MarkupPercentage decimal.Decimal `json:"markupPercentage"`
	PromotionID      *int64          `json:"promotionId,omitempty"`
	Total            decimal.Decimal `json:"total"`
}

type ListFilter struct {
	Search    string
	StartDate *time.Time
	EndDate   *time.Time
	Status    *PaymentStatus
	Voided    *bool
	Limit     int
	Page      int
}

type ListResult struct {
	Orders []*Order `json:"orders"`
	Total  int      `json:"total"`
	Limit  int      `json:"limit"`
	Page   int      `json:"page"`
}

// StatsRange selects either a single Date or the trailing Days ending today.
type StatsRange struct {
	Date *time.Time
	Days int
}

type Stats struct {
	From       time.Time       `json:"from"`
	To         time.Time       `json:"to"`
	OrderCount int             `json:"orderCount"`
	Revenue    decimal.Decimal `json:"revenue"`
	Tax        decimal.Decimal `json:"tax"`
	Discount   decimal.Decimal `json:"discount"`
	ItemsSold  int             `json:"itemsSold"`
	Products   []ProductSales  `json:"products"`
}

type ProductSales struct {
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Revenue     decimal.Decimal `json:"revenue"`
}

// NotificationResult carries the order header after a gateway callback.
// Applied is false when the callback caused no state change.
type NotificationResult struct {
	Order   *Order `json:"order"`
	Applied bool   `json:"applied"`
}
