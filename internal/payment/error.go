package payment

import "errors"

var (
	ErrGateway          = errors.New("payment gateway error")
	ErrInvalidSignature = errors.New("invalid notification signature")
	ErrItemsMismatch    = errors.New("item details do not sum to gross amount")
	ErrPaymentNotFound  = errors.New("payment not found")
)
