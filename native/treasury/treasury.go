package treasury

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

// AccountName derives the treasury module account.
const AccountName = "cdp-treasury"

var (
	errNilState = errors.New("treasury: state not configured")
	errNoDEX    = errors.New("treasury: exchange not configured")
	// ErrInsufficientBalance is returned when the treasury or a caller does
	// not hold enough of an asset.
	ErrInsufficientBalance = errors.New("treasury: insufficient balance")
)

// engineState is the state surface the treasury needs: the key/value store,
// the fungible-asset ledger and snapshots.
type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	Balance(addr crypto.Address, asset types.AssetID) (*big.Int, error)
	Transfer(from, to crypto.Address, asset types.AssetID, amount *big.Int) error
	Mint(addr crypto.Address, asset types.AssetID, amount *big.Int) error
	Burn(addr crypto.Address, asset types.AssetID, amount *big.Int) error
	Snapshot() int
	RevertToSnapshot(int)
}

// Swapper sells an exact-target amount through the liquidity pools.
type Swapper interface {
	SwapWithExactTarget(who crypto.Address, path []types.AssetID, target, maxSupply *big.Int) (*big.Int, error)
	GetSwapSupplyAmount(path []types.AssetID, target *big.Int) (*big.Int, error)
}

// Custody splits the collateral held by the treasury account into the part
// the treasury owns (Free) and the part backing positions or auctions.
type Custody struct {
	Total *big.Int
	Free  *big.Int
}

// Reserved returns the collateral backing positions and auctions.
func (c Custody) Reserved() *big.Int {
	return new(big.Int).Sub(c.Total, c.Free)
}

type storedCustody struct {
	Total *big.Int
	Free  *big.Int
}

var debitPoolKey = []byte("treasury/debit-pool")

func custodyKey(asset types.AssetID) []byte {
	return []byte("treasury/collateral/" + string(asset))
}

// Treasury holds protocol surplus, unbacked debit and collateral custody.
type Treasury struct {
	state   engineState
	account crypto.Address
	stable  types.AssetID
	dex     Swapper
	emitter events.Emitter
	logger  *slog.Logger
}

// New constructs a treasury managing stable as the stablecoin.
func New(state engineState, stable types.AssetID) *Treasury {
	return &Treasury{
		state:   state,
		account: crypto.ModuleAddress(AccountName),
		stable:  types.NormalizeAsset(string(stable)),
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
	}
}

// SetDEX wires the exchange used to liquidate collateral.
func (t *Treasury) SetDEX(dex Swapper) {
	if t == nil {
		return
	}
	t.dex = dex
}

// SetEmitter configures the event emitter.
func (t *Treasury) SetEmitter(emitter events.Emitter) {
	if t == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	t.emitter = emitter
}

// SetLogger overrides the default logger.
func (t *Treasury) SetLogger(logger *slog.Logger) {
	if t == nil || logger == nil {
		return
	}
	t.logger = logger
}

// Account returns the module account holding surplus and collateral.
func (t *Treasury) Account() crypto.Address { return t.account }

// StableAsset returns the stablecoin the treasury accounts in.
func (t *Treasury) StableAsset() types.AssetID { return t.stable }

func (t *Treasury) ready() error {
	if t == nil || t.state == nil {
		return errNilState
	}
	return nil
}

// DebitPool returns the unbacked stable debt recognised by the system.
func (t *Treasury) DebitPool() (*big.Int, error) {
	if err := t.ready(); err != nil {
		return nil, err
	}
	pool := new(big.Int)
	if _, err := t.state.KVGet(debitPoolKey, pool); err != nil {
		return nil, fmt.Errorf("treasury: load debit pool: %w", err)
	}
	return pool, nil
}

func (t *Treasury) putDebitPool(value *big.Int) error {
	if err := common.CheckU128(value); err != nil {
		return err
	}
	return t.state.KVPut(debitPoolKey, value)
}

// SurplusPool returns the stable balance held by the treasury account.
func (t *Treasury) SurplusPool() (*big.Int, error) {
	if err := t.ready(); err != nil {
		return nil, err
	}
	return t.state.Balance(t.account, t.stable)
}

// Custody returns the collateral bookkeeping for asset.
func (t *Treasury) Custody(asset types.AssetID) (Custody, error) {
	if err := t.ready(); err != nil {
		return Custody{}, err
	}
	var stored storedCustody
	if _, err := t.state.KVGet(custodyKey(asset), &stored); err != nil {
		return Custody{}, fmt.Errorf("treasury: load custody: %w", err)
	}
	return Custody{Total: common.Copy(stored.Total), Free: common.Copy(stored.Free)}, nil
}

func (t *Treasury) putCustody(asset types.AssetID, custody Custody) error {
	if custody.Free.Sign() < 0 || custody.Total.Cmp(custody.Free) < 0 {
		return common.ErrArithmetic
	}
	if err := common.CheckU128(custody.Total); err != nil {
		return err
	}
	return t.state.KVPut(custodyKey(asset), &storedCustody{Total: custody.Total, Free: custody.Free})
}

// TotalCollaterals returns every unit of asset held by the treasury account.
func (t *Treasury) TotalCollaterals(asset types.AssetID) (*big.Int, error) {
	custody, err := t.Custody(asset)
	if err != nil {
		return nil, err
	}
	return custody.Total, nil
}

// FreeCollateral returns the collateral the treasury owns outright.
func (t *Treasury) FreeCollateral(asset types.AssetID) (*big.Int, error) {
	custody, err := t.Custody(asset)
	if err != nil {
		return nil, err
	}
	return custody.Free, nil
}

func mapLedgerError(err error) error {
	if errors.Is(err, state.ErrInsufficientBalance) {
		return fmt.Errorf("%w: %v", ErrInsufficientBalance, err)
	}
	if errors.Is(err, state.ErrBalanceOverflow) {
		return fmt.Errorf("%w: %v", common.ErrArithmetic, err)
	}
	return err
}

func (t *Treasury) moveCollateral(asset types.AssetID, amount *big.Int, apply func(*Custody) error, transfer func() error) error {
	if err := t.ready(); err != nil {
		return err
	}
	if err := common.ValidateAmount(amount); err != nil {
		return err
	}
	asset = types.NormalizeAsset(string(asset))
	return common.Atomic(t.state, func() error {
		custody, err := t.Custody(asset)
		if err != nil {
			return err
		}
		if err := apply(&custody); err != nil {
			return err
		}
		if transfer != nil {
			if err := transfer(); err != nil {
				return mapLedgerError(err)
			}
		}
		return t.putCustody(asset, custody)
	})
}

// DepositCollateral moves collateral from an account into the treasury's own
// holdings.
func (t *Treasury) DepositCollateral(from crypto.Address, asset types.AssetID, amount *big.Int) error {
	return t.moveCollateral(asset, amount, func(c *Custody) error {
		c.Total.Add(c.Total, amount)
		c.Free.Add(c.Free, amount)
		return nil
	}, func() error {
		return t.state.Transfer(from, t.account, asset, amount)
	})
}

// WithdrawCollateral pays treasury-owned collateral out to an account.
func (t *Treasury) WithdrawCollateral(to crypto.Address, asset types.AssetID, amount *big.Int) error {
	return t.moveCollateral(asset, amount, func(c *Custody) error {
		if c.Free.Cmp(amount) < 0 {
			return fmt.Errorf("%w: treasury holds %s %s, needs %s", ErrInsufficientBalance, c.Free, asset, amount)
		}
		c.Total.Sub(c.Total, amount)
		c.Free.Sub(c.Free, amount)
		return nil
	}, func() error {
		return t.state.Transfer(t.account, to, asset, amount)
	})
}

// PledgeCollateral takes custody of collateral backing a position.
func (t *Treasury) PledgeCollateral(from crypto.Address, asset types.AssetID, amount *big.Int) error {
	return t.moveCollateral(asset, amount, func(c *Custody) error {
		c.Total.Add(c.Total, amount)
		return nil
	}, func() error {
		return t.state.Transfer(from, t.account, asset, amount)
	})
}

// ReleaseCollateral returns reserved collateral to an account, e.g. when a
// position is reduced, an auction winner is paid, or leftovers are refunded.
func (t *Treasury) ReleaseCollateral(to crypto.Address, asset types.AssetID, amount *big.Int) error {
	return t.moveCollateral(asset, amount, func(c *Custody) error {
		if c.Reserved().Cmp(amount) < 0 {
			return fmt.Errorf("%w: reserved %s %s, needs %s", ErrInsufficientBalance, c.Reserved(), asset, amount)
		}
		c.Total.Sub(c.Total, amount)
		return nil
	}, func() error {
		return t.state.Transfer(t.account, to, asset, amount)
	})
}

// ConfiscateCollateral turns reserved collateral into treasury-owned
// collateral.
func (t *Treasury) ConfiscateCollateral(asset types.AssetID, amount *big.Int) error {
	return t.moveCollateral(asset, amount, func(c *Custody) error {
		if c.Reserved().Cmp(amount) < 0 {
			return fmt.Errorf("%w: reserved %s %s, needs %s", ErrInsufficientBalance, c.Reserved(), asset, amount)
		}
		c.Free.Add(c.Free, amount)
		return nil
	}, nil)
}

// IssueDebit mints stable to who. Unbacked issuance is recorded in the debit
// pool.
func (t *Treasury) IssueDebit(who crypto.Address, amount *big.Int, backed bool) error {
	if err := t.ready(); err != nil {
		return err
	}
	if err := common.ValidateAmount(amount); err != nil {
		return err
	}
	return common.Atomic(t.state, func() error {
		if err := t.state.Mint(who, t.stable, amount); err != nil {
			return mapLedgerError(err)
		}
		if backed {
			return nil
		}
		return t.AddDebit(amount)
	})
}

// RepayDebit burns amount of stable held by who.
func (t *Treasury) RepayDebit(who crypto.Address, amount *big.Int) error {
	if err := t.ready(); err != nil {
		return err
	}
	if err := common.ValidateAmount(amount); err != nil {
		return err
	}
	return mapLedgerError(t.state.Burn(who, t.stable, amount))
}

// BurnDebit burns amount of treasury-held stable. The burn offsets the debit
// pool first; whatever exceeds the pool is taken from surplus.
func (t *Treasury) BurnDebit(amount *big.Int) error {
	if err := t.ready(); err != nil {
		return err
	}
	if err := common.ValidateAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	return common.Atomic(t.state, func() error {
		surplus, err := t.SurplusPool()
		if err != nil {
			return err
		}
		if surplus.Cmp(amount) < 0 {
			return fmt.Errorf("%w: burn %s exceeds treasury balance %s", common.ErrArithmetic, amount, surplus)
		}
		pool, err := t.DebitPool()
		if err != nil {
			return err
		}
		offset := common.Min(pool, amount)
		if err := t.state.Burn(t.account, t.stable, amount); err != nil {
			return mapLedgerError(err)
		}
		return t.putDebitPool(pool.Sub(pool, offset))
	})
}

// AddDebit records unbacked debt, e.g. from a liquidated or settled position.
func (t *Treasury) AddDebit(amount *big.Int) error {
	if err := t.ready(); err != nil {
		return err
	}
	if err := common.ValidateAmount(amount); err != nil {
		return err
	}
	pool, err := t.DebitPool()
	if err != nil {
		return err
	}
	next, err := common.CheckedAdd(pool, amount)
	if err != nil {
		return err
	}
	return t.putDebitPool(next)
}

// AddSurplus mints stable into the treasury, e.g. accrued interest.
func (t *Treasury) AddSurplus(amount *big.Int) error {
	if err := t.ready(); err != nil {
		return err
	}
	if err := common.ValidateAmount(amount); err != nil {
		return err
	}
	return mapLedgerError(t.state.Mint(t.account, t.stable, amount))
}

// OffsetSurplusAndDebit burns min(surplus, debit pool) and returns the amount
// offset.
func (t *Treasury) OffsetSurplusAndDebit() (*big.Int, error) {
	if err := t.ready(); err != nil {
		return nil, err
	}
	surplus, err := t.SurplusPool()
	if err != nil {
		return nil, err
	}
	pool, err := t.DebitPool()
	if err != nil {
		return nil, err
	}
	offset := common.Min(surplus, pool)
	if offset.Sign() == 0 {
		return offset, nil
	}
	if err := t.BurnDebit(offset); err != nil {
		return nil, err
	}
	t.emitter.Emit(events.DebitOffset{Amount: offset})
	t.logger.Debug("treasury offset surplus against debit", slog.String("amount", offset.String()))
	return offset, nil
}

// SwapCollateralForExactStable sells at most maxSupply of reserved collateral
// for exactly target stable. Proceeds land in the surplus pool. It returns the
// collateral actually sold.
func (t *Treasury) SwapCollateralForExactStable(asset types.AssetID, maxSupply, target *big.Int) (*big.Int, error) {
	if err := t.ready(); err != nil {
		return nil, err
	}
	if t.dex == nil {
		return nil, errNoDEX
	}
	if err := common.ValidateAmount(maxSupply); err != nil {
		return nil, err
	}
	if err := common.ValidateAmount(target); err != nil {
		return nil, err
	}
	asset = types.NormalizeAsset(string(asset))
	var supplied *big.Int
	err := common.Atomic(t.state, func() error {
		custody, err := t.Custody(asset)
		if err != nil {
			return err
		}
		if custody.Reserved().Cmp(maxSupply) < 0 {
			return fmt.Errorf("%w: reserved %s %s, needs %s", ErrInsufficientBalance, custody.Reserved(), asset, maxSupply)
		}
		supplied, err = t.dex.SwapWithExactTarget(t.account, []types.AssetID{asset, t.stable}, target, maxSupply)
		if err != nil {
			return err
		}
		custody.Total.Sub(custody.Total, supplied)
		return t.putCustody(asset, custody)
	})
	if err != nil {
		return nil, err
	}
	return supplied, nil
}

// QuoteCollateralForStable returns the collateral needed to buy target stable
// through the pools.
func (t *Treasury) QuoteCollateralForStable(asset types.AssetID, target *big.Int) (*big.Int, error) {
	if t == nil || t.dex == nil {
		return nil, errNoDEX
	}
	return t.dex.GetSwapSupplyAmount([]types.AssetID{types.NormalizeAsset(string(asset)), t.stable}, target)
}
