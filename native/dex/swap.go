package dex

import (
	"fmt"
	"math/big"

	"cdpchain/core/events"
	"cdpchain/core/types"
	"cdpchain/crypto"
	"cdpchain/native/common"
)

type hop struct {
	pair       types.TradingPair
	supplyIsA  bool
	supplyPool *big.Int
	targetPool *big.Int
}

func (e *Engine) validatePath(path []types.AssetID) ([]hop, error) {
	if len(path) < 2 || len(path) > e.cfg.TradingPathLimit {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTradingPathLength, len(path))
	}
	hops := make([]hop, 0, len(path)-1)
	for i := 0; i+1 < len(path); i++ {
		pair, err := e.requireEnabled(path[i], path[i+1])
		if err != nil {
			return nil, err
		}
		pool, err := e.loadPool(pair)
		if err != nil {
			return nil, err
		}
		h := hop{pair: pair, supplyIsA: types.NormalizeAsset(string(path[i])) == pair.A}
		if h.supplyIsA {
			h.supplyPool, h.targetPool = pool.ReserveA, pool.ReserveB
		} else {
			h.supplyPool, h.targetPool = pool.ReserveB, pool.ReserveA
		}
		hops = append(hops, h)
	}
	return hops, nil
}

// targetAmounts returns the amount flowing out of each position of the path
// when supply enters at the head.
func (e *Engine) targetAmounts(hops []hop, supply *big.Int) ([]*big.Int, error) {
	amounts := make([]*big.Int, len(hops)+1)
	amounts[0] = new(big.Int).Set(supply)
	for i, h := range hops {
		if h.supplyPool.Sign() == 0 || h.targetPool.Sign() == 0 {
			return nil, fmt.Errorf("%w: empty pool %s", ErrInsufficientLiquidity, h.pair)
		}
		out, err := targetAmount(h.supplyPool, h.targetPool, amounts[i], e.cfg.FeeNumerator, e.cfg.FeeDenominator)
		if err != nil {
			return nil, err
		}
		if out.Sign() == 0 || out.Cmp(h.targetPool) >= 0 {
			return nil, fmt.Errorf("%w: %s cannot fill %s", ErrInsufficientLiquidity, h.pair, amounts[i])
		}
		amounts[i+1] = out
	}
	return amounts, nil
}

// supplyAmounts walks the path backwards from the desired target.
func (e *Engine) supplyAmounts(hops []hop, target *big.Int) ([]*big.Int, error) {
	amounts := make([]*big.Int, len(hops)+1)
	amounts[len(hops)] = new(big.Int).Set(target)
	for i := len(hops) - 1; i >= 0; i-- {
		h := hops[i]
		if h.supplyPool.Sign() == 0 || h.targetPool.Sign() == 0 || amounts[i+1].Cmp(h.targetPool) >= 0 {
			return nil, fmt.Errorf("%w: %s cannot deliver %s", ErrInsufficientLiquidity, h.pair, amounts[i+1])
		}
		in, err := supplyAmount(h.supplyPool, h.targetPool, amounts[i+1], e.cfg.FeeNumerator, e.cfg.FeeDenominator)
		if err != nil {
			return nil, err
		}
		if in.Sign() == 0 {
			return nil, fmt.Errorf("%w: %s", ErrInsufficientLiquidity, h.pair)
		}
		amounts[i] = in
	}
	return amounts, nil
}

// GetSwapTargetAmount quotes the output of selling supply along path.
func (e *Engine) GetSwapTargetAmount(path []types.AssetID, supply *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.ValidateAmount(supply); err != nil {
		return nil, err
	}
	hops, err := e.validatePath(path)
	if err != nil {
		return nil, err
	}
	amounts, err := e.targetAmounts(hops, supply)
	if err != nil {
		return nil, err
	}
	return amounts[len(amounts)-1], nil
}

// GetSwapSupplyAmount quotes the input needed to buy target along path.
func (e *Engine) GetSwapSupplyAmount(path []types.AssetID, target *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.ValidateAmount(target); err != nil {
		return nil, err
	}
	hops, err := e.validatePath(path)
	if err != nil {
		return nil, err
	}
	amounts, err := e.supplyAmounts(hops, target)
	if err != nil {
		return nil, err
	}
	return amounts[0], nil
}

// Swap sells exactly supply of path[0] for at least minTarget of the last
// asset.
func (e *Engine) Swap(who crypto.Address, path []types.AssetID, supply, minTarget *big.Int) (*big.Int, error) {
	return e.SwapWithExactSupply(who, path, supply, minTarget)
}

// SwapWithExactSupply sells exactly supply and returns the amount received.
func (e *Engine) SwapWithExactSupply(who crypto.Address, path []types.AssetID, supply, minTarget *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := common.ValidateAmount(supply); err != nil {
		return nil, err
	}
	minTarget = common.Copy(minTarget)
	var received *big.Int
	err := common.Atomic(e.state, func() error {
		hops, err := e.validatePath(path)
		if err != nil {
			return err
		}
		amounts, err := e.targetAmounts(hops, supply)
		if err != nil {
			return err
		}
		received = amounts[len(amounts)-1]
		if received.Cmp(minTarget) < 0 {
			return fmt.Errorf("%w: %s < %s", ErrBelowMinimumOutput, received, minTarget)
		}
		return e.execute(who, path, hops, amounts)
	})
	if err != nil {
		return nil, err
	}
	return received, nil
}

// SwapWithExactTarget buys exactly target, spending at most maxSupply, and
// returns the amount spent.
func (e *Engine) SwapWithExactTarget(who crypto.Address, path []types.AssetID, target, maxSupply *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := common.ValidateAmount(target); err != nil {
		return nil, err
	}
	if err := common.ValidateAmount(maxSupply); err != nil {
		return nil, err
	}
	var spent *big.Int
	err := common.Atomic(e.state, func() error {
		hops, err := e.validatePath(path)
		if err != nil {
			return err
		}
		amounts, err := e.supplyAmounts(hops, target)
		if err != nil {
			return err
		}
		spent = amounts[0]
		if spent.Cmp(maxSupply) > 0 {
			return fmt.Errorf("%w: %s > %s", ErrExcessiveSupplyAmount, spent, maxSupply)
		}
		return e.execute(who, path, hops, amounts)
	})
	if err != nil {
		return nil, err
	}
	return spent, nil
}

// execute moves funds and updates every pool touched by the path. amounts[i]
// is the quantity of path[i] moving through the path.
func (e *Engine) execute(who crypto.Address, path []types.AssetID, hops []hop, amounts []*big.Int) error {
	if err := e.state.Transfer(who, e.account, path[0], amounts[0]); err != nil {
		return err
	}
	for i, h := range hops {
		pool, err := e.loadPool(h.pair)
		if err != nil {
			return err
		}
		in, out := amounts[i], amounts[i+1]
		if h.supplyIsA {
			pool.ReserveA.Add(pool.ReserveA, in)
			pool.ReserveB.Sub(pool.ReserveB, out)
		} else {
			pool.ReserveB.Add(pool.ReserveB, in)
			pool.ReserveA.Sub(pool.ReserveA, out)
		}
		if pool.ReserveA.Sign() < 0 || pool.ReserveB.Sign() < 0 {
			return ErrInsufficientLiquidity
		}
		if err := e.storePool(h.pair, pool); err != nil {
			return err
		}
	}
	last := len(amounts) - 1
	if err := e.state.Transfer(e.account, who, path[last], amounts[last]); err != nil {
		return err
	}
	normalized := make([]types.AssetID, len(path))
	for i, asset := range path {
		normalized[i] = types.NormalizeAsset(string(asset))
	}
	e.emitter.Emit(events.Swap{
		Who:          who,
		Path:         normalized,
		SupplyAmount: amounts[0],
		TargetAmount: amounts[last],
	})
	return nil
}
