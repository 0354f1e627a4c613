package retail

import "errors"

var (
	ErrInvalidQuantity    = errors.New("quantity must not be negative")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrProductNotFound    = errors.New("product not found")

	ErrInvalidPoints  = errors.New("points must not be negative")
	ErrRewardNotFound = errors.New("reward not found")
	ErrSelfReferral   = errors.New("referrer and referee must differ")
)
