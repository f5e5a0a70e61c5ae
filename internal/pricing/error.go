package pricing

import "errors"

var (
	// ErrInvalidPromotion means the referenced promotion did not resolve or
	// is not active. The line is priced at base.
	ErrInvalidPromotion = errors.New("invalid promotion")
	// ErrIneligibleLine means the promotion does not cover the line.
	ErrIneligibleLine = errors.New("line not eligible for promotion")
)
