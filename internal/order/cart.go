package order

import (
	"regexp"
	"strings"

	"kasir-be/internal/pricing"
	"kasir-be/internal/utils"

	"github.com/shopspring/decimal"
)

const (
	maxCartLines    = 200
	maxNameLength   = 100
	maxNoteLength   = 500
	maxLineQuantity = 10000
)

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phonePattern = regexp.MustCompile(`^\+[0-9]{8,15}$`)
)

type CartItemInput struct {
	ProductID        int64            `json:"productId"`
	Quantity         int              `json:"quantity"`
	UnitPrice        *decimal.Decimal `json:"unitPrice,omitempty"`
	OriginalPrice    *decimal.Decimal `json:"originalPrice,omitempty"`
	DiscountAmount   *decimal.Decimal `json:"discountAmount,omitempty"`
	MarkupPercentage *decimal.Decimal `json:"markupPercentage,omitempty"`
	PromotionID      *int64           `json:"promotionId,omitempty"`
}

// CartInput is the raw create-order payload.
type CartInput struct {
	Items            []CartItemInput  `json:"items"`
	CustomerName     string           `json:"customerName"`
	CustomerPhone    string           `json:"customerPhone"`
	CustomerEmail    string           `json:"customerEmail"`
	MemberID         *int64           `json:"memberId,omitempty"`
	PaymentMethod    string           `json:"paymentMethod"`
	PaymentReference *string          `json:"paymentReference,omitempty"`
	PromotionID      *int64           `json:"promotionId,omitempty"`
	DiscountAmount   *decimal.Decimal `json:"discountAmount,omitempty"`
	Note             string           `json:"note"`
}

// Cart is a validated CartInput.
type Cart struct {
	Lines            []pricing.Line
	CustomerName     string
	CustomerPhone    string
	CustomerEmail    string
	MemberID         *int64
	PaymentMethod    PaymentMethod
	PaymentReference *string
	PromotionID      *int64
	DiscountAmount   *decimal.Decimal
	Note             string
}

func NewCart(in CartInput) (*Cart, error) {
	const op = "validate cart"

	if len(in.Items) == 0 {
		return nil, validationError(op, "cart has no items")
	}
	if len(in.Items) > maxCartLines {
		return nil, validationError(op, "cart has more than %d lines", maxCartLines)
	}

	method := PaymentMethod(strings.ToLower(strings.TrimSpace(in.PaymentMethod)))
	if !method.Valid() {
		return nil, validationError(op, "unknown payment method %q", in.PaymentMethod)
	}

	c := &Cart{
		Lines:            make([]pricing.Line, 0, len(in.Items)),
		CustomerName:     strings.TrimSpace(in.CustomerName),
		CustomerEmail:    strings.ToLower(strings.TrimSpace(in.CustomerEmail)),
		PaymentMethod:    method,
		PaymentReference: trimmedPtr(in.PaymentReference),
		Note:             strings.TrimSpace(in.Note),
	}

	if len([]rune(c.CustomerName)) > maxNameLength {
		return nil, validationError(op, "customer name longer than %d characters", maxNameLength)
	}
	if len([]rune(c.Note)) > maxNoteLength {
		return nil, validationError(op, "note longer than %d characters", maxNoteLength)
	}
	if c.CustomerEmail != "" && !emailPattern.MatchString(c.CustomerEmail) {
		return nil, validationError(op, "invalid customer email %q", in.CustomerEmail)
	}
	if phone := strings.TrimSpace(in.CustomerPhone); phone != "" {
		c.CustomerPhone = utils.NormalizePhone(phone)
		if !phonePattern.MatchString(c.CustomerPhone) {
			return nil, validationError(op, "invalid customer phone %q", in.CustomerPhone)
		}
	}

	if in.MemberID != nil {
		if *in.MemberID <= 0 {
			return nil, validationError(op, "memberId must be positive")
		}
		c.MemberID = in.MemberID
	}
	if in.PromotionID != nil {
		if *in.PromotionID <= 0 {
			return nil, validationError(op, "promotionId must be positive")
		}
		c.PromotionID = in.PromotionID
	}
	if in.DiscountAmount != nil {
		if in.DiscountAmount.IsNegative() {
			return nil, validationError(op, "discountAmount must not be negative")
		}
		c.DiscountAmount = in.DiscountAmount
	}

	for i, it := range in.Items {
		if it.ProductID <= 0 {
			return nil, validationError(op, "items[%d].productId must be positive", i)
		}
		if it.Quantity <= 0 || it.Quantity > maxLineQuantity {
			return nil, validationError(op, "items[%d].quantity must be between 1 and %d", i, maxLineQuantity)
		}
		for name, v := range map[string]*decimal.Decimal{
			"unitPrice":        it.UnitPrice,
			"originalPrice":    it.OriginalPrice,
			"discountAmount":   it.DiscountAmount,
			"markupPercentage": it.MarkupPercentage,
		} {
			if v != nil && v.IsNegative() {
				return nil, validationError(op, "items[%d].%s must not be negative", i, name)
			}
		}
		if it.PromotionID != nil && *it.PromotionID <= 0 {
			return nil, validationError(op, "items[%d].promotionId must be positive", i)
		}
		if it.DiscountAmount != nil && it.UnitPrice == nil {
			return nil, validationError(op, "items[%d].discountAmount requires unitPrice", i)
		}

		c.Lines = append(c.Lines, pricing.Line{
			ProductID:        it.ProductID,
			Quantity:         it.Quantity,
			UnitPrice:        it.UnitPrice,
			DiscountAmount:   it.DiscountAmount,
			MarkupPercentage: it.MarkupPercentage,
			PromotionID:      it.PromotionID,
		})
	}

	return c, nil
}

// ProductIDs returns the product id of every line, duplicates included.
func (c *Cart) ProductIDs() []int64 {
	ids := make([]int64, len(c.Lines))
	for i, l := range c.Lines {
		ids[i] = l.ProductID
	}
	return ids
}

// PromotionIDs returns the distinct promotions referenced by the cart.
func (c *Cart) PromotionIDs() []int64 {
	seen := map[int64]bool{}
	var ids []int64
	add := func(id *int64) {
		if id != nil && !seen[*id] {
			seen[*id] = true
			ids = append(ids, *id)
		}
	}
	for _, l := range c.Lines {
		add(l.PromotionID)
	}
	add(c.PromotionID)
	return ids
}

func trimmedPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
