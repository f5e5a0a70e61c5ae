package payment

import (
	"context"
	"fmt"

	"kasir-be/internal/money"
)

type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error)
	Cancel(ctx context.Context, orderID string) error
	VerifyNotification(n Notification) error
}

// ValidateItems checks that the itemized lines sum exactly to the gross amount.
func ValidateItems(req ChargeRequest) error {
	total := money.Zero
	for _, it := range req.Items {
		total = total.Add(money.Mul(it.Price, it.Quantity))
	}
	if !money.Round2(total).Equal(money.Round2(req.GrossAmount)) {
		return fmt.Errorf("%w: items %s, gross %s", ErrItemsMismatch,
			money.Round2(total).StringFixed(2), req.GrossAmount.StringFixed(2))
	}
	return nil
}
