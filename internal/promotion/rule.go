package promotion

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type rulesPayload struct {
	ProductIDs      []int64          `json:"productIds"`
	MinimumPurchase *decimal.Decimal `json:"minimumPurchase"`
}

type configurationPayload struct {
	Percentage     *decimal.Decimal `json:"percentage"`
	Amount         *decimal.Decimal `json:"amount"`
	BuyQuantity    int              `json:"buyQuantity"`
	GetQuantity    int              `json:"getQuantity"`
	BundleQuantity int              `json:"bundleQuantity"`
	BundlePrice    *decimal.Decimal `json:"bundlePrice"`
}

// ParseType normalizes a stored promotion type. The legacy
// "discount_percentage" spelling maps to TypePercentageDiscount.
func ParseType(raw string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "percentage_discount", "discount_percentage", "percentage":
		return TypePercentageDiscount, nil
	case "fixed_amount", "fixed":
		return TypeFixedAmount, nil
	case "buy_x_get_y":
		return TypeBuyXGetY, nil
	case "bundle":
		return TypeBundle, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownType, raw)
	}
}

// DecodeRule turns the stored rules and configuration JSON columns into a
// typed Rule. Either column may be empty.
func DecodeRule(t Type, rules, configuration []byte) (Rule, error) {
	var rp rulesPayload
	if len(rules) > 0 && string(rules) != "null" {
		if err := json.Unmarshal(rules, &rp); err != nil {
			return nil, fmt.Errorf("%w: rules: %v", ErrInvalidRule, err)
		}
	}

	var cp configurationPayload
	if len(configuration) > 0 && string(configuration) != "null" {
		if err := json.Unmarshal(configuration, &cp); err != nil {
			return nil, fmt.Errorf("%w: configuration: %v", ErrInvalidRule, err)
		}
	}

	elig := Eligibility{ProductIDs: rp.ProductIDs, MinimumPurchase: decimal.Zero}
	if rp.MinimumPurchase != nil {
		if rp.MinimumPurchase.IsNegative() {
			return nil, fmt.Errorf("%w: negative minimum purchase", ErrInvalidRule)
		}
		elig.MinimumPurchase = *rp.MinimumPurchase
	}

	switch t {
	case TypePercentageDiscount:
		if cp.Percentage == nil {
			return nil, fmt.Errorf("%w: percentage is required", ErrInvalidRule)
		}
		if cp.Percentage.IsNegative() || cp.Percentage.GreaterThan(decimal.NewFromInt(100)) {
			return nil, fmt.Errorf("%w: percentage out of range", ErrInvalidRule)
		}
		return PercentageDiscount{Eligibility: elig, Percentage: *cp.Percentage}, nil

	case TypeFixedAmount:
		if cp.Amount == nil || cp.Amount.IsNegative() {
			return nil, fmt.Errorf("%w: amount must be non-negative", ErrInvalidRule)
		}
		return FixedAmount{Eligibility: elig, Amount: *cp.Amount}, nil

	case TypeBuyXGetY:
		if cp.BuyQuantity <= 0 || cp.GetQuantity <= 0 {
			return nil, fmt.Errorf("%w: buy and get quantities must be positive", ErrInvalidRule)
		}
		return BuyXGetY{Eligibility: elig, BuyQuantity: cp.BuyQuantity, GetQuantity: cp.GetQuantity}, nil

	case TypeBundle:
		if cp.BundleQuantity <= 0 || cp.BundlePrice == nil || cp.BundlePrice.IsNegative() {
			return nil, fmt.Errorf("%w: bundle needs a positive quantity and a price", ErrInvalidRule)
		}
		return Bundle{Eligibility: elig, Quantity: cp.BundleQuantity, Price: *cp.BundlePrice}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
}
