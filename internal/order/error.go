package order

import (
	"errors"
	"fmt"
	"strings"

	"kasir-be/internal/inventory"
)

// Kind is the stable error category exposed to transports.
type Kind string

const (
	KindValidation            Kind = "validation"
	KindInsufficientStock     Kind = "insufficient_stock"
	KindPromotionInapplicable Kind = "promotion_inapplicable"
	KindPaymentGateway        Kind = "payment_gateway"
	KindNotFound              Kind = "not_found"
	KindAlreadyVoided         Kind = "already_voided"
	KindPersistence           Kind = "persistence"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrUnknownProduct        = inventory.ErrUnknownProduct
	ErrInsufficientStock     = inventory.ErrInsufficientStock
	ErrPromotionInapplicable = errors.New("promotion not applicable")
	ErrPaymentGateway        = errors.New("payment gateway error")
	ErrNotFound              = errors.New("order not found")
	ErrAlreadyVoided         = errors.New("order already voided")
	ErrPersistence           = errors.New("persistence error")
	ErrAmountMismatch        = errors.New("notification amount does not match order total")
)

var kindSentinels = map[Kind]error{
	KindValidation:            ErrValidation,
	KindInsufficientStock:     ErrInsufficientStock,
	KindPromotionInapplicable: ErrPromotionInapplicable,
	KindPaymentGateway:        ErrPaymentGateway,
	KindNotFound:              ErrNotFound,
	KindAlreadyVoided:         ErrAlreadyVoided,
	KindPersistence:           ErrPersistence,
}

// Error carries a stable Kind plus the ids a caller needs to render it.
type Error struct {
	Kind      Kind
	Op        string
	ProductID int64
	OrderID   int64
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString(string(e.Kind))
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// Retryable reports whether the caller may retry the same request.
func (e *Error) Retryable() bool { return e.Kind == KindPersistence }

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func validationError(op, format string, args ...any) *Error {
	return newError(KindValidation, op, fmt.Errorf(format, args...))
}

// KindOf maps any error returned by this package to its stable kind.
// Unrecognized errors are persistence failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind
	}
	switch {
	case errors.Is(err, ErrUnknownProduct), errors.Is(err, ErrAmountMismatch):
		return KindValidation
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindPersistence
}

// classify turns collaborator failures into a typed *Error.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var oe *Error
	if errors.As(err, &oe) {
		return err
	}

	var unknown *inventory.UnknownProductError
	if errors.As(err, &unknown) {
		return &Error{Kind: KindValidation, Op: op, ProductID: unknown.ProductID, Err: err}
	}

	var insufficient *inventory.InsufficientStockError
	if errors.As(err, &insufficient) {
		return &Error{Kind: KindInsufficientStock, Op: op, ProductID: insufficient.ProductID, Err: err}
	}

	if errors.Is(err, ErrNotFound) {
		return newError(KindNotFound, op, err)
	}

	return newError(KindPersistence, op, fmt.Errorf("%w: %w", ErrPersistence, err))
}
