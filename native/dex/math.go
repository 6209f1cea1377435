package dex

import (
	"math/big"

	"github.com/holiman/uint256"

	"cdpchain/native/common"
)

func toU256(v *big.Int) (*uint256.Int, error) {
	if v == nil || v.Sign() < 0 {
		return nil, common.ErrInvalidAmount
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, common.ErrArithmetic
	}
	return out, nil
}

func mul(x, y *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, common.ErrArithmetic
	}
	return out, nil
}

func add(x, y *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, common.ErrArithmetic
	}
	return out, nil
}

// targetAmount returns the output of selling supply into a pool holding
// supplyPool/targetPool after the input fee. Zero pools produce zero.
func targetAmount(supplyPool, targetPool, supply *big.Int, feeNum, feeDen uint64) (*big.Int, error) {
	if supply.Sign() == 0 || supplyPool.Sign() == 0 || targetPool.Sign() == 0 {
		return big.NewInt(0), nil
	}
	sp, err := toU256(supplyPool)
	if err != nil {
		return nil, err
	}
	tp, err := toU256(targetPool)
	if err != nil {
		return nil, err
	}
	s, err := toU256(supply)
	if err != nil {
		return nil, err
	}
	withFee, err := mul(s, uint256.NewInt(feeDen-feeNum))
	if err != nil {
		return nil, err
	}
	numerator, err := mul(withFee, tp)
	if err != nil {
		return nil, err
	}
	scaledPool, err := mul(sp, uint256.NewInt(feeDen))
	if err != nil {
		return nil, err
	}
	denominator, err := add(scaledPool, withFee)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Div(numerator, denominator).ToBig(), nil
}

// supplyAmount returns the input required to buy target out of a pool. It
// rounds up by one unit so the pool never loses to rounding. Targets at or
// beyond the pool's reserve produce zero.
func supplyAmount(supplyPool, targetPool, target *big.Int, feeNum, feeDen uint64) (*big.Int, error) {
	if target.Sign() == 0 || supplyPool.Sign() == 0 || targetPool.Sign() == 0 || target.Cmp(targetPool) >= 0 {
		return big.NewInt(0), nil
	}
	sp, err := toU256(supplyPool)
	if err != nil {
		return nil, err
	}
	tp, err := toU256(targetPool)
	if err != nil {
		return nil, err
	}
	tgt, err := toU256(target)
	if err != nil {
		return nil, err
	}
	numerator, err := mul(sp, tgt)
	if err != nil {
		return nil, err
	}
	numerator, err = mul(numerator, uint256.NewInt(feeDen))
	if err != nil {
		return nil, err
	}
	denominator, err := mul(new(uint256.Int).Sub(tp, tgt), uint256.NewInt(feeDen-feeNum))
	if err != nil {
		return nil, err
	}
	out := new(uint256.Int).Div(numerator, denominator)
	out.AddUint64(out, 1)
	return out.ToBig(), nil
}

// initialShares returns floor(sqrt(a*b)).
func initialShares(a, b *big.Int) (*big.Int, error) {
	x, err := toU256(a)
	if err != nil {
		return nil, err
	}
	y, err := toU256(b)
	if err != nil {
		return nil, err
	}
	product, err := mul(x, y)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Sqrt(product).ToBig(), nil
}

// mulDiv returns x*y/z rounding down using 256-bit intermediates.
func mulDiv(x, y, z *big.Int) (*big.Int, error) {
	if z.Sign() == 0 {
		return nil, common.ErrArithmetic
	}
	a, err := toU256(x)
	if err != nil {
		return nil, err
	}
	b, err := toU256(y)
	if err != nil {
		return nil, err
	}
	c, err := toU256(z)
	if err != nil {
		return nil, err
	}
	out, overflow := new(uint256.Int).MulDivOverflow(a, b, c)
	if overflow {
		return nil, common.ErrArithmetic
	}
	return out.ToBig(), nil
}
