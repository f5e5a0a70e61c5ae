package promotion

import (
	"time"

	"github.com/shopspring/decimal"
)

type Type string

const (
	TypePercentageDiscount Type = "percentage_discount"
	TypeFixedAmount        Type = "fixed_amount"
	TypeBuyXGetY           Type = "buy_x_get_y"
	TypeBundle             Type = "bundle"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusScheduled Status = "scheduled"
	StatusExpired   Status = "expired"
)

type Promotion struct {
	ID               int64           `json:"id"`
	Name             string          `json:"name"`
	Description      *string         `json:"description,omitempty"`
	Type             Type            `json:"type"`
	Status           Status          `json:"status"`
	StartDate        time.Time       `json:"startDate"`
	EndDate          time.Time       `json:"endDate"`
	MarkupPercentage decimal.Decimal `json:"markupPercentage"`
	TargetMargin     decimal.Decimal `json:"targetMargin"`
	Rule             Rule            `json:"-"`
}

// IsActive reports whether the explicit status flag and the validity
// window both allow the promotion at now. Both bounds are inclusive; a
// zero bound leaves that side of the window open.
func (p *Promotion) IsActive(now time.Time) bool {
	if p == nil || p.Status != StatusActive {
		return false
	}
	if !p.StartDate.IsZero() && now.Before(p.StartDate) {
		return false
	}
	return p.EndDate.IsZero() || !now.After(p.EndDate)
}

// Eligibility is shared by every rule variant. An empty ProductIDs set
// covers every product.
type Eligibility struct {
	ProductIDs      []int64
	MinimumPurchase decimal.Decimal
}

func (e Eligibility) Covers(productID int64) bool {
	if len(e.ProductIDs) == 0 {
		return true
	}
	for _, id := range e.ProductIDs {
		if id == productID {
			return true
		}
	}
	return false
}

func (e Eligibility) MeetsMinimum(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(e.MinimumPurchase)
}

// Rule is the closed set of discount rules a promotion can carry.
type Rule interface {
	Eligible() Eligibility
	rule()
}

type PercentageDiscount struct {
	Eligibility
	Percentage decimal.Decimal
}

type FixedAmount struct {
	Eligibility
	Amount decimal.Decimal
}

// BuyXGetY makes GetQuantity units free for every full group of
// BuyQuantity+GetQuantity units.
type BuyXGetY struct {
	Eligibility
	BuyQuantity int
	GetQuantity int
}

// Bundle sells every full group of Quantity units for Price.
type Bundle struct {
	Eligibility
	Quantity int
	Price    decimal.Decimal
}

func (r PercentageDiscount) Eligible() Eligibility { return r.Eligibility }
func (r FixedAmount) Eligible() Eligibility        { return r.Eligibility }
func (r BuyXGetY) Eligible() Eligibility           { return r.Eligibility }
func (r Bundle) Eligible() Eligibility             { return r.Eligibility }

func (PercentageDiscount) rule() {}
func (FixedAmount) rule()        {}
func (BuyXGetY) rule()           {}
func (Bundle) rule()             {}
