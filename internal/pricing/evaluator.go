package pricing

import (
	"fmt"
	"time"

	"kasir-be/internal/money"
	"kasir-be/internal/product"
	"kasir-be/internal/promotion"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Line is one requested cart line. The pointer fields are optional
// pricing already applied by the point-of-sale client.
type Line struct {
	ProductID        int64
	Quantity         int
	UnitPrice        *decimal.Decimal
	DiscountAmount   *decimal.Decimal
	MarkupPercentage *decimal.Decimal
	PromotionID      *int64
}

type LineQuote struct {
	ProductID        int64
	ProductName      string
	OriginalPrice    decimal.Decimal
	UnitPrice        decimal.Decimal
	Quantity         int
	Subtotal         decimal.Decimal
	DiscountAmount   decimal.Decimal
	LineTotal        decimal.Decimal
	MarkupPercentage decimal.Decimal
	PromotionID      *int64
	PromotionApplied bool
	CallerPriced     bool
}

type Evaluator struct {
	now func() time.Time
}

func NewEvaluator(now func() time.Time) *Evaluator {
	if now == nil {
		now = time.Now
	}
	return &Evaluator{now: now}
}

// PriceLine prices one line against the product snapshot. When the
// promotion cannot be applied the returned quote is the base-price quote
// and the error is ErrInvalidPromotion or ErrIneligibleLine.
func (e *Evaluator) PriceLine(p product.Product, line Line, promo *promotion.Promotion) (LineQuote, error) {
	q := LineQuote{
		ProductID:        p.ID,
		ProductName:      p.Name,
		OriginalPrice:    money.Round2(p.SellingPrice),
		UnitPrice:        money.Round2(p.SellingPrice),
		Quantity:         line.Quantity,
		DiscountAmount:   money.Zero,
		MarkupPercentage: money.Zero,
	}
	if line.MarkupPercentage != nil {
		q.MarkupPercentage = *line.MarkupPercentage
	}

	if line.UnitPrice != nil {
		q.CallerPriced = true
		q.UnitPrice = money.Round2(*line.UnitPrice)
		q.Subtotal = money.Mul(q.UnitPrice, q.Quantity)
		if line.DiscountAmount != nil {
			q.DiscountAmount = money.Cap(money.Round2(*line.DiscountAmount), q.Subtotal)
		}
		q.PromotionID = line.PromotionID
		q.LineTotal = q.Subtotal.Sub(q.DiscountAmount)
		return q, nil
	}

	q.Subtotal = money.Mul(q.UnitPrice, q.Quantity)
	q.LineTotal = q.Subtotal

	if line.PromotionID == nil && promo == nil {
		return q, nil
	}
	if promo == nil || promo.Rule == nil || !promo.IsActive(e.now()) {
		return q, ErrInvalidPromotion
	}

	elig := promo.Rule.Eligible()
	if !elig.Covers(p.ID) {
		return q, fmt.Errorf("%w: product %d", ErrIneligibleLine, p.ID)
	}
	if !elig.MeetsMinimum(q.Subtotal) {
		return q, fmt.Errorf("%w: minimum purchase %s not met", ErrIneligibleLine, elig.MinimumPurchase)
	}

	applyRule(&q, promo.Rule)

	id := promo.ID
	q.PromotionID = &id
	q.PromotionApplied = true
	if line.MarkupPercentage == nil {
		q.MarkupPercentage = promo.MarkupPercentage
	}
	q.LineTotal = q.Subtotal.Sub(q.DiscountAmount)
	return q, nil
}

func applyRule(q *LineQuote, rule promotion.Rule) {
	switch r := rule.(type) {
	case promotion.PercentageDiscount:
		factor := hundred.Sub(r.Percentage).Div(hundred)
		q.UnitPrice = money.Round2(q.UnitPrice.Mul(factor))
		q.Subtotal = money.Mul(q.UnitPrice, q.Quantity)

	case promotion.FixedAmount:
		q.DiscountAmount = money.Cap(money.Round2(r.Amount), q.Subtotal)

	case promotion.BuyXGetY:
		groups := q.Quantity / (r.BuyQuantity + r.GetQuantity)
		free := money.Mul(q.UnitPrice, groups*r.GetQuantity)
		q.DiscountAmount = money.Cap(free, q.Subtotal)

	case promotion.Bundle:
		groups := q.Quantity / r.Quantity
		saving := money.Mul(q.UnitPrice, r.Quantity).Sub(r.Price)
		if saving.IsNegative() {
			saving = money.Zero
		}
		discount := money.Round2(saving.Mul(decimal.NewFromInt(int64(groups))))
		q.DiscountAmount = money.Cap(discount, q.Subtotal)
	}
}

// PriceOrder computes an order-level discount from a promotion referenced
// on the whole cart. Only percentage and fixed-amount rules apply at the
// order level. The discount never exceeds subtotal.
func (e *Evaluator) PriceOrder(subtotal decimal.Decimal, promo *promotion.Promotion) (decimal.Decimal, error) {
	if promo == nil || promo.Rule == nil || !promo.IsActive(e.now()) {
		return money.Zero, ErrInvalidPromotion
	}

	if !promo.Rule.Eligible().MeetsMinimum(subtotal) {
		return money.Zero, fmt.Errorf("%w: minimum purchase not met", ErrIneligibleLine)
	}

	switch r := promo.Rule.(type) {
	case promotion.PercentageDiscount:
		return money.Cap(money.Round2(subtotal.Mul(r.Percentage).Div(hundred)), subtotal), nil
	case promotion.FixedAmount:
		return money.Cap(money.Round2(r.Amount), subtotal), nil
	default:
		return money.Zero, fmt.Errorf("%w: %s is a line-level rule", ErrIneligibleLine, promo.Type)
	}
}
