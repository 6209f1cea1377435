package cdp

import (
	"fmt"
	"math/big"
	"sort"

	"cdpchain/core/events"
	"cdpchain/core/types"
	"cdpchain/native/common"
)

// ChangeKind selects how a ParamChange treats its field.
type ChangeKind uint8

const (
	// NoChange leaves the field untouched.
	NoChange ChangeKind = iota
	// Clear unsets the field.
	Clear
	// SetTo replaces the field with Value.
	SetTo
)

// ParamChange updates one collateral parameter.
type ParamChange struct {
	Kind  ChangeKind
	Value *big.Int
}

// Keep returns a change that leaves the field as is.
func Keep() ParamChange { return ParamChange{Kind: NoChange} }

// Unset returns a change that clears the field.
func Unset() ParamChange { return ParamChange{Kind: Clear} }

// Set returns a change that assigns v.
func Set(v *big.Int) ParamChange { return ParamChange{Kind: SetTo, Value: common.CopyOpt(v)} }

func (c ParamChange) apply(current *big.Int) (*big.Int, error) {
	switch c.Kind {
	case NoChange:
		return current, nil
	case Clear:
		return nil, nil
	case SetTo:
		if c.Value == nil || c.Value.Sign() < 0 {
			return nil, fmt.Errorf("%w: parameter must be non-negative", ErrInvalidParams)
		}
		if err := common.CheckU128(c.Value); err != nil {
			return nil, err
		}
		return new(big.Int).Set(c.Value), nil
	default:
		return nil, fmt.Errorf("%w: unknown change kind %d", ErrInvalidParams, c.Kind)
	}
}

// CollateralParams are the risk parameters of one collateral asset. A nil
// field has no value set.
type CollateralParams struct {
	InterestRatePerSec      *big.Int
	LiquidationRatio        *big.Int
	LiquidationPenalty      *big.Int
	RequiredCollateralRatio *big.Int
	MaximumTotalDebitValue  *big.Int
}

// Clone returns a deep copy.
func (p CollateralParams) Clone() CollateralParams {
	return CollateralParams{
		InterestRatePerSec:      common.CopyOpt(p.InterestRatePerSec),
		LiquidationRatio:        common.CopyOpt(p.LiquidationRatio),
		LiquidationPenalty:      common.CopyOpt(p.LiquidationPenalty),
		RequiredCollateralRatio: common.CopyOpt(p.RequiredCollateralRatio),
		MaximumTotalDebitValue:  common.CopyOpt(p.MaximumTotalDebitValue),
	}
}

// CollateralParamsChange carries one change per parameter.
type CollateralParamsChange struct {
	InterestRatePerSec      ParamChange
	LiquidationRatio        ParamChange
	LiquidationPenalty      ParamChange
	RequiredCollateralRatio ParamChange
	MaximumTotalDebitValue  ParamChange
}

const (
	presentInterest uint64 = 1 << iota
	presentLiquidationRatio
	presentPenalty
	presentRequiredRatio
	presentMaxDebit
)

// storedParams encodes unset fields through a presence mask since RLP has no
// nil big integers.
type storedParams struct {
	Present            uint64
	InterestRatePerSec *big.Int
	LiquidationRatio   *big.Int
	LiquidationPenalty *big.Int
	RequiredRatio      *big.Int
	MaxDebitValue      *big.Int
}

var collateralListKey = []byte("cdp/collaterals")

func paramsKey(asset types.AssetID) []byte {
	return []byte("cdp/params/" + string(asset))
}

func pack(mask *uint64, bit uint64, v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	*mask |= bit
	return v
}

func unpack(mask, bit uint64, v *big.Int) *big.Int {
	if mask&bit == 0 {
		return nil
	}
	return common.Copy(v)
}

// CollateralParams returns the parameters stored for asset.
func (e *Engine) CollateralParams(asset types.AssetID) (CollateralParams, error) {
	if e == nil || e.state == nil {
		return CollateralParams{}, errNilState
	}
	var stored storedParams
	ok, err := e.state.KVGet(paramsKey(types.NormalizeAsset(string(asset))), &stored)
	if err != nil {
		return CollateralParams{}, err
	}
	if !ok {
		return CollateralParams{}, nil
	}
	return CollateralParams{
		InterestRatePerSec:      unpack(stored.Present, presentInterest, stored.InterestRatePerSec),
		LiquidationRatio:        unpack(stored.Present, presentLiquidationRatio, stored.LiquidationRatio),
		LiquidationPenalty:      unpack(stored.Present, presentPenalty, stored.LiquidationPenalty),
		RequiredCollateralRatio: unpack(stored.Present, presentRequiredRatio, stored.RequiredRatio),
		MaximumTotalDebitValue:  unpack(stored.Present, presentMaxDebit, stored.MaxDebitValue),
	}, nil
}

func (e *Engine) putCollateralParams(asset types.AssetID, params CollateralParams) error {
	stored := storedParams{}
	stored.InterestRatePerSec = pack(&stored.Present, presentInterest, params.InterestRatePerSec)
	stored.LiquidationRatio = pack(&stored.Present, presentLiquidationRatio, params.LiquidationRatio)
	stored.LiquidationPenalty = pack(&stored.Present, presentPenalty, params.LiquidationPenalty)
	stored.RequiredRatio = pack(&stored.Present, presentRequiredRatio, params.RequiredCollateralRatio)
	stored.MaxDebitValue = pack(&stored.Present, presentMaxDebit, params.MaximumTotalDebitValue)
	return e.state.KVPut(paramsKey(asset), &stored)
}

// Collaterals lists every asset that has had parameters set, sorted.
func (e *Engine) Collaterals() ([]types.AssetID, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var raw [][]byte
	if err := e.state.KVGetList(collateralListKey, &raw); err != nil {
		return nil, err
	}
	out := make([]types.AssetID, 0, len(raw))
	for _, entry := range raw {
		out = append(out, types.AssetID(entry))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// IsCollateral reports whether asset has been configured as collateral.
func (e *Engine) IsCollateral(asset types.AssetID) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	return e.state.KVGet(paramsKey(types.NormalizeAsset(string(asset))), nil)
}

// SetCollateralParams applies changes to the parameters of asset. Only root
// may call it.
func (e *Engine) SetCollateralParams(origin types.Origin, asset types.AssetID, changes CollateralParamsChange) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := common.EnsureRoot(e.state, origin); err != nil {
		return err
	}
	asset = types.NormalizeAsset(string(asset))
	if asset == "" || asset == e.treasury.StableAsset() || asset.IsShare() {
		return fmt.Errorf("%w: %q cannot be collateral", ErrInvalidCollateralType, asset)
	}
	return common.Atomic(e.state, func() error {
		current, err := e.CollateralParams(asset)
		if err != nil {
			return err
		}
		next := current.Clone()
		if next.InterestRatePerSec, err = changes.InterestRatePerSec.apply(current.InterestRatePerSec); err != nil {
			return err
		}
		if next.LiquidationRatio, err = changes.LiquidationRatio.apply(current.LiquidationRatio); err != nil {
			return err
		}
		if next.LiquidationPenalty, err = changes.LiquidationPenalty.apply(current.LiquidationPenalty); err != nil {
			return err
		}
		if next.RequiredCollateralRatio, err = changes.RequiredCollateralRatio.apply(current.RequiredCollateralRatio); err != nil {
			return err
		}
		if next.MaximumTotalDebitValue, err = changes.MaximumTotalDebitValue.apply(current.MaximumTotalDebitValue); err != nil {
			return err
		}
		if err := e.putCollateralParams(asset, next); err != nil {
			return err
		}
		if err := e.state.KVAppend(collateralListKey, []byte(asset)); err != nil {
			return err
		}
		e.emitter.Emit(events.CollateralParamsUpdated{
			Asset:                   asset,
			InterestRatePerSec:      next.InterestRatePerSec,
			LiquidationRatio:        next.LiquidationRatio,
			LiquidationPenalty:      next.LiquidationPenalty,
			RequiredCollateralRatio: next.RequiredCollateralRatio,
			MaximumTotalDebitValue:  next.MaximumTotalDebitValue,
		})
		return nil
	})
}

func (e *Engine) liquidationRatio(params CollateralParams) *big.Int {
	if params.LiquidationRatio != nil {
		return params.LiquidationRatio
	}
	return e.cfg.DefaultLiquidationRatio
}

func (e *Engine) liquidationPenalty(params CollateralParams) *big.Int {
	if params.LiquidationPenalty != nil {
		return params.LiquidationPenalty
	}
	return e.cfg.DefaultLiquidationPenalty
}
