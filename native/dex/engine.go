package dex

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"cdpchain/core/events"
	"cdpchain/core/state"
	"cdpchain/core/types"
	"cdpchain/crypto"
	"cdpchain/native/common"
)

const moduleName = "dex"

// Module account names.
const (
	AccountName           = "dex"
	IncentivesAccountName = "dex-incentives"
)

var (
	errNilState = errors.New("dex: state not configured")

	ErrTradingPairNotEnabled          = errors.New("dex: trading pair not enabled")
	ErrInvalidTradingPathLength       = errors.New("dex: invalid trading path length")
	ErrInvalidLiquidityIncrement      = errors.New("dex: invalid liquidity increment")
	ErrUnacceptableShareIncrement     = errors.New("dex: share increment below minimum")
	ErrUnacceptableLiquidityWithdrawn = errors.New("dex: withdrawn liquidity below minimum")
	ErrInsufficientLiquidity          = errors.New("dex: insufficient liquidity")
	ErrBelowMinimumOutput             = errors.New("dex: output below minimum")
	ErrExcessiveSupplyAmount          = errors.New("dex: supply above maximum")
	ErrInsufficientShares             = errors.New("dex: insufficient shares")
)

// engineState captures the state surface the pools need.
type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
	Balance(addr crypto.Address, asset types.AssetID) (*big.Int, error)
	Transfer(from, to crypto.Address, asset types.AssetID, amount *big.Int) error
	Mint(addr crypto.Address, asset types.AssetID, amount *big.Int) error
	Burn(addr crypto.Address, asset types.AssetID, amount *big.Int) error
	TotalIssuance(asset types.AssetID) (*big.Int, error)
	TokenExists(symbol string) bool
	RegisterToken(symbol, name string, decimals uint8) error
	HasRole(role string, addr crypto.Address) bool
	Snapshot() int
	RevertToSnapshot(int)
}

// Pool reserves, ordered like the trading pair.
type Pool struct {
	ReserveA *big.Int
	ReserveB *big.Int
}

type storedPool struct {
	ReserveA *big.Int
	ReserveB *big.Int
}

// LiquidityResult reports the amounts moved by an add or remove, in the
// order the caller named the assets.
type LiquidityResult struct {
	AmountA *big.Int
	AmountB *big.Int
	Share   *big.Int
}

var pairListKey = []byte("dex/pairs")

func poolKey(pair types.TradingPair) []byte {
	return []byte("dex/pool/" + string(pair.A) + "/" + string(pair.B))
}

func pairStatusKey(pair types.TradingPair) []byte {
	return []byte("dex/pair-enabled/" + string(pair.A) + "/" + string(pair.B))
}

func stakedKey(share types.AssetID, who crypto.Address) []byte {
	return append([]byte("dex/staked/"+string(share)+"/"), who.Bytes()...)
}

// Engine runs the constant-product pools.
type Engine struct {
	state      engineState
	cfg        Config
	account    crypto.Address
	incentives crypto.Address
	pauses     common.PauseView
	emitter    events.Emitter
	logger     *slog.Logger
}

// NewEngine constructs the pools with cfg, filling missing fields with
// defaults.
func NewEngine(state engineState, cfg Config) *Engine {
	cfg.EnsureDefaults()
	return &Engine{
		state:      state,
		cfg:        cfg,
		account:    crypto.ModuleAddress(AccountName),
		incentives: crypto.ModuleAddress(IncentivesAccountName),
		emitter:    events.NoopEmitter{},
		logger:     slog.Default(),
	}
}

// SetPauses wires the pause view.
func (e *Engine) SetPauses(p common.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetLogger overrides the default logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.logger = logger
}

// Account returns the module account holding pool reserves.
func (e *Engine) Account() crypto.Address { return e.account }

// IncentivesAccount returns the account holding staked shares.
func (e *Engine) IncentivesAccount() crypto.Address { return e.incentives }

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return nil
}

func pairOf(a, b types.AssetID) (types.TradingPair, error) {
	pair, ok := types.NewTradingPair(a, b)
	if !ok {
		return types.TradingPair{}, fmt.Errorf("%w: %s/%s", ErrTradingPairNotEnabled, a, b)
	}
	return pair, nil
}

// IsEnabled reports whether the pair accepts liquidity and swaps.
func (e *Engine) IsEnabled(a, b types.AssetID) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	pair, ok := types.NewTradingPair(a, b)
	if !ok {
		return false, nil
	}
	var enabled bool
	if _, err := e.state.KVGet(pairStatusKey(pair), &enabled); err != nil {
		return false, err
	}
	return enabled, nil
}

func (e *Engine) requireEnabled(a, b types.AssetID) (types.TradingPair, error) {
	pair, err := pairOf(a, b)
	if err != nil {
		return types.TradingPair{}, err
	}
	enabled, err := e.IsEnabled(pair.A, pair.B)
	if err != nil {
		return types.TradingPair{}, err
	}
	if !enabled {
		return types.TradingPair{}, fmt.Errorf("%w: %s", ErrTradingPairNotEnabled, pair)
	}
	return pair, nil
}

// SetTradingPairStatus enables or disables a pair. Root only.
func (e *Engine) SetTradingPairStatus(origin types.Origin, a, b types.AssetID, enabled bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := common.EnsureRoot(e.state, origin); err != nil {
		return err
	}
	pair, err := pairOf(a, b)
	if err != nil {
		return err
	}
	if !e.state.TokenExists(string(pair.A)) || !e.state.TokenExists(string(pair.B)) {
		return fmt.Errorf("dex: unknown asset in pair %s", pair)
	}
	return common.Atomic(e.state, func() error {
		if err := e.state.KVPut(pairStatusKey(pair), enabled); err != nil {
			return err
		}
		if err := e.state.KVAppend(pairListKey, []byte(string(pair.A)+"/"+string(pair.B))); err != nil {
			return err
		}
		share := pair.ShareAsset()
		if enabled && !e.state.TokenExists(string(share)) {
			if err := e.state.RegisterToken(string(share), "LP "+pair.String(), 18); err != nil {
				return err
			}
		}
		e.emitter.Emit(events.TradingPairStatus{Pair: pair, Enabled: enabled})
		return nil
	})
}

// TradingPairs lists every pair that was ever configured, enabled or not.
func (e *Engine) TradingPairs() ([]types.TradingPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var raw [][]byte
	if err := e.state.KVGetList(pairListKey, &raw); err != nil {
		return nil, err
	}
	pairs := make([]types.TradingPair, 0, len(raw))
	for _, entry := range raw {
		var a, b string
		for i := range entry {
			if entry[i] == '/' {
				a, b = string(entry[:i]), string(entry[i+1:])
				break
			}
		}
		if pair, ok := types.NewTradingPair(types.AssetID(a), types.AssetID(b)); ok {
			pairs = append(pairs, pair)
		}
	}
	return pairs, nil
}

func (e *Engine) loadPool(pair types.TradingPair) (Pool, error) {
	var stored storedPool
	if _, err := e.state.KVGet(poolKey(pair), &stored); err != nil {
		return Pool{}, fmt.Errorf("dex: load pool: %w", err)
	}
	return Pool{ReserveA: common.Copy(stored.ReserveA), ReserveB: common.Copy(stored.ReserveB)}, nil
}

func (e *Engine) storePool(pair types.TradingPair, pool Pool) error {
	if common.CheckU128(pool.ReserveA) != nil || common.CheckU128(pool.ReserveB) != nil {
		return common.ErrArithmetic
	}
	return e.state.KVPut(poolKey(pair), &storedPool{ReserveA: pool.ReserveA, ReserveB: pool.ReserveB})
}

// GetLiquidityPool returns the reserves of the (a, b) pool in the order
// requested.
func (e *Engine) GetLiquidityPool(a, b types.AssetID) (*big.Int, *big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	pair, ok := types.NewTradingPair(a, b)
	if !ok {
		return big.NewInt(0), big.NewInt(0), nil
	}
	pool, err := e.loadPool(pair)
	if err != nil {
		return nil, nil, err
	}
	if types.NormalizeAsset(string(a)) == pair.A {
		return pool.ReserveA, pool.ReserveB, nil
	}
	return pool.ReserveB, pool.ReserveA, nil
}

// StakedShares returns the LP shares who has staked for the pair.
func (e *Engine) StakedShares(who crypto.Address, a, b types.AssetID) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pair, err := pairOf(a, b)
	if err != nil {
		return nil, err
	}
	staked := new(big.Int)
	if _, err := e.state.KVGet(stakedKey(pair.ShareAsset(), who), staked); err != nil {
		return nil, err
	}
	return staked, nil
}

// AddLiquidity deposits up to maxA/maxB into the (a, b) pool. The first
// deposit mints sqrt(maxA*maxB) shares; later deposits preserve the pool
// ratio, taking the full amount on the limiting side. With stake set the
// shares are held by the incentives account on behalf of who.
func (e *Engine) AddLiquidity(who crypto.Address, a, b types.AssetID, maxA, maxB, minShare *big.Int, stake bool) (LiquidityResult, error) {
	if err := e.ready(); err != nil {
		return LiquidityResult{}, err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return LiquidityResult{}, err
	}
	if err := common.ValidateAmount(maxA); err != nil {
		return LiquidityResult{}, err
	}
	if err := common.ValidateAmount(maxB); err != nil {
		return LiquidityResult{}, err
	}
	minShare = common.Copy(minShare)
	pair, err := e.requireEnabled(a, b)
	if err != nil {
		return LiquidityResult{}, err
	}
	// Work in pair order.
	max0, max1 := maxA, maxB
	swapped := types.NormalizeAsset(string(a)) != pair.A
	if swapped {
		max0, max1 = maxB, maxA
	}
	if max0.Sign() == 0 || max1.Sign() == 0 {
		return LiquidityResult{}, ErrInvalidLiquidityIncrement
	}

	var result LiquidityResult
	err = common.Atomic(e.state, func() error {
		pool, err := e.loadPool(pair)
		if err != nil {
			return err
		}
		share := pair.ShareAsset()
		totalShares, err := e.state.TotalIssuance(share)
		if err != nil {
			return err
		}

		var amount0, amount1, shares *big.Int
		if totalShares.Sign() == 0 {
			amount0, amount1 = new(big.Int).Set(max0), new(big.Int).Set(max1)
			if shares, err = initialShares(amount0, amount1); err != nil {
				return err
			}
		} else {
			// max1/max0 <= pool1/pool0 means side 1 limits the deposit.
			lhs := new(big.Int).Mul(max1, pool.ReserveA)
			rhs := new(big.Int).Mul(pool.ReserveB, max0)
			if lhs.Cmp(rhs) <= 0 {
				amount1 = new(big.Int).Set(max1)
				if amount0, err = mulDiv(max1, pool.ReserveA, pool.ReserveB); err != nil {
					return err
				}
				if shares, err = mulDiv(amount0, totalShares, pool.ReserveA); err != nil {
					return err
				}
			} else {
				amount0 = new(big.Int).Set(max0)
				if amount1, err = mulDiv(max0, pool.ReserveB, pool.ReserveA); err != nil {
					return err
				}
				if shares, err = mulDiv(amount1, totalShares, pool.ReserveB); err != nil {
					return err
				}
			}
		}
		if amount0.Cmp(e.cfg.MinLiquidityIncrement) < 0 || amount1.Cmp(e.cfg.MinLiquidityIncrement) < 0 || shares.Sign() == 0 {
			return ErrInvalidLiquidityIncrement
		}
		if shares.Cmp(minShare) < 0 {
			return fmt.Errorf("%w: %s < %s", ErrUnacceptableShareIncrement, shares, minShare)
		}

		if err := e.transferIn(who, pair.A, amount0); err != nil {
			return err
		}
		if err := e.transferIn(who, pair.B, amount1); err != nil {
			return err
		}
		pool.ReserveA.Add(pool.ReserveA, amount0)
		pool.ReserveB.Add(pool.ReserveB, amount1)
		if err := e.storePool(pair, pool); err != nil {
			return err
		}
		if stake {
			if err := e.mintShares(e.incentives, share, shares); err != nil {
				return err
			}
			staked, err := e.StakedShares(who, pair.A, pair.B)
			if err != nil {
				return err
			}
			if err := e.state.KVPut(stakedKey(share, who), staked.Add(staked, shares)); err != nil {
				return err
			}
		} else if err := e.mintShares(who, share, shares); err != nil {
			return err
		}

		e.emitter.Emit(events.AddLiquidity{
			Who:     who,
			AssetA:  pair.A,
			AmountA: amount0,
			AssetB:  pair.B,
			AmountB: amount1,
			Share:   shares,
			Staked:  stake,
		})
		result = LiquidityResult{AmountA: amount0, AmountB: amount1, Share: shares}
		if swapped {
			result.AmountA, result.AmountB = amount1, amount0
		}
		return nil
	})
	if err != nil {
		return LiquidityResult{}, err
	}
	return result, nil
}

// RemoveLiquidity redeems share LP tokens held by who for a pro-rata slice
// of the reserves.
func (e *Engine) RemoveLiquidity(who crypto.Address, a, b types.AssetID, share, minA, minB *big.Int) (LiquidityResult, error) {
	if err := e.ready(); err != nil {
		return LiquidityResult{}, err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return LiquidityResult{}, err
	}
	if err := common.ValidateAmount(share); err != nil {
		return LiquidityResult{}, err
	}
	if share.Sign() == 0 {
		return LiquidityResult{}, ErrInvalidLiquidityIncrement
	}
	pair, err := pairOf(a, b)
	if err != nil {
		return LiquidityResult{}, err
	}
	min0, min1 := common.Copy(minA), common.Copy(minB)
	swapped := types.NormalizeAsset(string(a)) != pair.A
	if swapped {
		min0, min1 = min1, min0
	}

	var result LiquidityResult
	err = common.Atomic(e.state, func() error {
		pool, err := e.loadPool(pair)
		if err != nil {
			return err
		}
		shareAsset := pair.ShareAsset()
		totalShares, err := e.state.TotalIssuance(shareAsset)
		if err != nil {
			return err
		}
		if totalShares.Sign() == 0 {
			return ErrInsufficientLiquidity
		}
		held, err := e.state.Balance(who, shareAsset)
		if err != nil {
			return err
		}
		if held.Cmp(share) < 0 {
			return fmt.Errorf("%w: holds %s, redeeming %s", ErrInsufficientShares, held, share)
		}
		amount0, err := mulDiv(share, pool.ReserveA, totalShares)
		if err != nil {
			return err
		}
		amount1, err := mulDiv(share, pool.ReserveB, totalShares)
		if err != nil {
			return err
		}
		if amount0.Cmp(min0) < 0 || amount1.Cmp(min1) < 0 {
			return ErrUnacceptableLiquidityWithdrawn
		}
		if err := e.state.Burn(who, shareAsset, share); err != nil {
			return err
		}
		pool.ReserveA.Sub(pool.ReserveA, amount0)
		pool.ReserveB.Sub(pool.ReserveB, amount1)
		if err := e.storePool(pair, pool); err != nil {
			return err
		}
		if err := e.state.Transfer(e.account, who, pair.A, amount0); err != nil {
			return err
		}
		if err := e.state.Transfer(e.account, who, pair.B, amount1); err != nil {
			return err
		}
		e.emitter.Emit(events.RemoveLiquidity{
			Who:     who,
			AssetA:  pair.A,
			AmountA: amount0,
			AssetB:  pair.B,
			AmountB: amount1,
			Share:   share,
		})
		result = LiquidityResult{AmountA: amount0, AmountB: amount1, Share: new(big.Int).Set(share)}
		if swapped {
			result.AmountA, result.AmountB = amount1, amount0
		}
		return nil
	})
	if err != nil {
		return LiquidityResult{}, err
	}
	return result, nil
}

// UnstakeShares returns staked LP shares from the incentives account to who.
func (e *Engine) UnstakeShares(who crypto.Address, a, b types.AssetID, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := common.ValidateAmount(amount); err != nil {
		return err
	}
	pair, err := pairOf(a, b)
	if err != nil {
		return err
	}
	return common.Atomic(e.state, func() error {
		staked, err := e.StakedShares(who, pair.A, pair.B)
		if err != nil {
			return err
		}
		if staked.Cmp(amount) < 0 {
			return fmt.Errorf("%w: staked %s, unstaking %s", ErrInsufficientShares, staked, amount)
		}
		share := pair.ShareAsset()
		if err := e.state.KVPut(stakedKey(share, who), staked.Sub(staked, amount)); err != nil {
			return err
		}
		if err := e.state.Transfer(e.incentives, who, share, amount); err != nil {
			return err
		}
		e.emitter.Emit(events.SharesUnstaked{Who: who, Share: share, Amount: amount})
		return nil
	})
}

func (e *Engine) transferIn(who crypto.Address, asset types.AssetID, amount *big.Int) error {
	return e.state.Transfer(who, e.account, asset, amount)
}

func (e *Engine) mintShares(to crypto.Address, share types.AssetID, amount *big.Int) error {
	if err := e.state.Mint(to, share, amount); err != nil {
		if errors.Is(err, state.ErrBalanceOverflow) {
			return common.ErrArithmetic
		}
		return err
	}
	return nil
}
