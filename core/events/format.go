package events

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// formatFixed renders a 1e18 fixed-point value as a plain decimal string.
func formatFixed(value *big.Int) string {
	if value == nil {
		return ""
	}
	return decimal.NewFromBigInt(value, -18).String()
}
