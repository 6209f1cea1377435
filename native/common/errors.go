package common

import "errors"

var (
	// ErrArithmetic signals an overflow or underflow in amount arithmetic.
	ErrArithmetic = errors.New("arithmetic error")
	// ErrBadOrigin is returned when a privileged call is dispatched by an
	// unprivileged origin.
	ErrBadOrigin = errors.New("bad origin")
	// ErrInvalidAmount flags nil, negative or otherwise malformed amounts.
	ErrInvalidAmount = errors.New("invalid amount")
)
