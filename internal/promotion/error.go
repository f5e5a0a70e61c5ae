package promotion

import "errors"

var (
	ErrPromotionNotFound = errors.New("promotion not found")
	ErrUnknownType       = errors.New("unknown promotion type")
	ErrInvalidRule       = errors.New("invalid promotion rule")
)
