package common

import (
	"fmt"
	"math/big"
)

// Fixed-point values (ratios, rates, prices) carry 18 decimals.
var (
	FixedOne = mustBigInt("1000000000000000000")
	halfOne  = new(big.Int).Rsh(FixedOne, 1)
	maxU128  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// Zero returns a fresh zero value.
func Zero() *big.Int { return new(big.Int) }

// Copy returns a copy of v treating nil as zero.
func Copy(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// CopyOpt copies v preserving nil.
func CopyOpt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// FixedFromRational returns n/d in fixed point, rounded down.
func FixedFromRational(n, d int64) *big.Int {
	if d == 0 {
		panic("fixed: zero denominator")
	}
	out := new(big.Int).Mul(big.NewInt(n), FixedOne)
	return out.Quo(out, big.NewInt(d))
}

// FixedFromInt converts an integer into fixed point.
func FixedFromInt(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), FixedOne)
}

// FixedMulInt multiplies an integer amount by a fixed-point factor rounding
// down.
func FixedMulInt(factor, amount *big.Int) *big.Int {
	if factor == nil || amount == nil {
		return new(big.Int)
	}
	out := new(big.Int).Mul(factor, amount)
	return out.Quo(out, FixedOne)
}

// FixedMulIntCeil multiplies an integer amount by a fixed-point factor rounding
// up.
func FixedMulIntCeil(factor, amount *big.Int) *big.Int {
	if factor == nil || amount == nil {
		return new(big.Int)
	}
	return divCeil(new(big.Int).Mul(factor, amount), FixedOne)
}

// FixedMul multiplies two fixed-point values rounding to nearest.
func FixedMul(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return new(big.Int)
	}
	out := new(big.Int).Mul(a, b)
	out.Add(out, halfOne)
	return out.Quo(out, FixedOne)
}

// FixedDiv returns a/b in fixed point rounding down. b must be positive.
func FixedDiv(a, b *big.Int) (*big.Int, error) {
	if a == nil || b == nil || b.Sign() <= 0 {
		return nil, fmt.Errorf("%w: division by zero", ErrArithmetic)
	}
	out := new(big.Int).Mul(a, FixedOne)
	return out.Quo(out, b), nil
}

// IntDivFixed divides an integer amount by a fixed-point value rounding down,
// e.g. converting a stable value into collateral units at a price.
func IntDivFixed(amount, factor *big.Int) (*big.Int, error) {
	if amount == nil || factor == nil || factor.Sign() <= 0 {
		return nil, fmt.Errorf("%w: division by zero", ErrArithmetic)
	}
	out := new(big.Int).Mul(amount, FixedOne)
	return out.Quo(out, factor), nil
}

// IntDivFixedCeil is IntDivFixed rounding up.
func IntDivFixedCeil(amount, factor *big.Int) (*big.Int, error) {
	if amount == nil || factor == nil || factor.Sign() <= 0 {
		return nil, fmt.Errorf("%w: division by zero", ErrArithmetic)
	}
	return divCeil(new(big.Int).Mul(amount, FixedOne), factor), nil
}

// FixedPow raises a fixed-point base to an integer power by repeated squaring.
func FixedPow(base *big.Int, exp uint64) *big.Int {
	result := new(big.Int).Set(FixedOne)
	if base == nil {
		return result
	}
	b := new(big.Int).Set(base)
	for exp > 0 {
		if exp&1 == 1 {
			result = FixedMul(result, b)
		}
		exp >>= 1
		if exp > 0 {
			b = FixedMul(b, b)
		}
	}
	return result
}

// MulDiv returns a*b/c rounding down.
func MulDiv(a, b, c *big.Int) (*big.Int, error) {
	if c == nil || c.Sign() == 0 {
		return nil, fmt.Errorf("%w: division by zero", ErrArithmetic)
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, c), nil
}

func divCeil(num, den *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// CheckU128 fails with ErrArithmetic when v is negative or exceeds the u128
// range.
func CheckU128(v *big.Int) error {
	if v == nil || v.Sign() < 0 || v.Cmp(maxU128) > 0 {
		return ErrArithmetic
	}
	return nil
}

// CheckedSub returns a-b or ErrArithmetic on underflow.
func CheckedSub(a, b *big.Int) (*big.Int, error) {
	out := new(big.Int).Sub(Copy(a), Copy(b))
	if out.Sign() < 0 {
		return nil, ErrArithmetic
	}
	return out, nil
}

// CheckedAdd returns a+b or ErrArithmetic when the result leaves u128.
func CheckedAdd(a, b *big.Int) (*big.Int, error) {
	out := new(big.Int).Add(Copy(a), Copy(b))
	if err := CheckU128(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Min returns the smaller of a and b.
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// ValidateAmount accepts non-nil values in the u128 range.
func ValidateAmount(v *big.Int) error {
	if v == nil || v.Sign() < 0 {
		return ErrInvalidAmount
	}
	if v.Cmp(maxU128) > 0 {
		return ErrArithmetic
	}
	return nil
}
