package shutdown

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"cdpchain/core/events"
	"cdpchain/core/pricing"
	"cdpchain/core/types"
	"cdpchain/crypto"
	"cdpchain/native/common"
)

var (
	errNilState = errors.New("shutdown: state not configured")

	ErrAlreadyShutdown     = errors.New("shutdown: already shut down")
	ErrMustAfterShutdown   = errors.New("shutdown: requires emergency shutdown")
	ErrRefundAlreadyOpen   = errors.New("shutdown: collateral refund already open")
	ErrExistUnhandledDebit = errors.New("shutdown: unhandled debit remains")
	ErrExistActiveAuctions = errors.New("shutdown: active auctions remain")
	// ErrCanNotRefund is returned before refunds open or when the caller
	// asks for more than it holds.
	ErrCanNotRefund = errors.New("shutdown: cannot refund")
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	HasRole(role string, addr crypto.Address) bool
	Balance(addr crypto.Address, asset types.AssetID) (*big.Int, error)
	TotalIssuance(asset types.AssetID) (*big.Int, error)
	Snapshot() int
	RevertToSnapshot(int)
}

// Treasury pays out refunds from free collateral.
type Treasury interface {
	StableAsset() types.AssetID
	FreeCollateral(asset types.AssetID) (*big.Int, error)
	WithdrawCollateral(to crypto.Address, asset types.AssetID, amount *big.Int) error
	RepayDebit(who crypto.Address, amount *big.Int) error
}

// DebitView exposes the collateral assets and the debit outstanding in each.
type DebitView interface {
	Collaterals() ([]types.AssetID, error)
	TotalDebit(asset types.AssetID) (*big.Int, error)
}

// AuctionView exposes the number of open collateral auctions.
type AuctionView interface {
	ActiveCount() (int, error)
}

// PriceLocker freezes oracle prices.
type PriceLocker interface {
	LockPrice(asset types.AssetID) error
}

// Status is the persisted shutdown phase.
type Status struct {
	Shutdown       bool
	RefundOpen     bool
	ShutdownHeight uint64
	RefundHeight   uint64
}

var statusKey = []byte("shutdown/status")

// Manager drives the Normal -> Shutdown -> RefundOpen transitions.
type Manager struct {
	state    engineState
	treasury Treasury
	debits   DebitView
	auctions AuctionView
	prices   PriceLocker
	emitter  events.Emitter
	logger   *slog.Logger
	height   uint64
}

// NewManager wires the shutdown manager.
func NewManager(state engineState, treasury Treasury, debits DebitView, auctions AuctionView, prices PriceLocker) *Manager {
	return &Manager{
		state:    state,
		treasury: treasury,
		debits:   debits,
		auctions: auctions,
		prices:   prices,
		emitter:  events.NoopEmitter{},
		logger:   slog.Default(),
	}
}

// SetEmitter configures the event emitter.
func (m *Manager) SetEmitter(emitter events.Emitter) {
	if m == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	m.emitter = emitter
}

// SetLogger overrides the default logger.
func (m *Manager) SetLogger(logger *slog.Logger) {
	if m == nil || logger == nil {
		return
	}
	m.logger = logger
}

// SetBlockHeight records the current block height for emitted events.
func (m *Manager) SetBlockHeight(height uint64) {
	if m == nil {
		return
	}
	m.height = height
}

// Status returns the current phase.
func (m *Manager) Status() (Status, error) {
	if m == nil || m.state == nil {
		return Status{}, errNilState
	}
	var status Status
	if _, err := m.state.KVGet(statusKey, &status); err != nil {
		return Status{}, err
	}
	return status, nil
}

// IsShutdown implements common.ShutdownView.
func (m *Manager) IsShutdown() bool {
	status, err := m.Status()
	if err != nil {
		return false
	}
	return status.Shutdown
}

// IsRefundOpen reports whether collateral refunds are open.
func (m *Manager) IsRefundOpen() bool {
	status, err := m.Status()
	if err != nil {
		return false
	}
	return status.RefundOpen
}

// EmergencyShutdown halts debit issuance and freezes the price of every
// collateral. Root only; irreversible.
func (m *Manager) EmergencyShutdown(origin types.Origin) error {
	if m == nil || m.state == nil {
		return errNilState
	}
	if err := common.EnsureRoot(m.state, origin); err != nil {
		return err
	}
	return common.Atomic(m.state, func() error {
		status, err := m.Status()
		if err != nil {
			return err
		}
		if status.Shutdown {
			return ErrAlreadyShutdown
		}
		if m.debits != nil && m.prices != nil {
			assets, err := m.debits.Collaterals()
			if err != nil {
				return err
			}
			for _, asset := range assets {
				if err := m.prices.LockPrice(asset); err != nil {
					if !errors.Is(err, pricing.ErrPriceUnavailable) {
						return err
					}
					m.logger.Warn("shutdown could not lock collateral price",
						slog.String("asset", string(asset)),
						slog.Any("error", err))
				}
			}
		}
		status.Shutdown = true
		status.ShutdownHeight = m.height
		if err := m.state.KVPut(statusKey, &status); err != nil {
			return err
		}
		m.emitter.Emit(events.Shutdown{Height: m.height})
		m.logger.Warn("emergency shutdown triggered", slog.Uint64("height", m.height))
		return nil
	})
}

// OpenCollateralRefund opens pro-rata refunds once every position's debit is
// settled and no auction remains. Root only.
func (m *Manager) OpenCollateralRefund(origin types.Origin) error {
	if m == nil || m.state == nil {
		return errNilState
	}
	if err := common.EnsureRoot(m.state, origin); err != nil {
		return err
	}
	return common.Atomic(m.state, func() error {
		status, err := m.Status()
		if err != nil {
			return err
		}
		if !status.Shutdown {
			return ErrMustAfterShutdown
		}
		if status.RefundOpen {
			return ErrRefundAlreadyOpen
		}
		if m.debits != nil {
			assets, err := m.debits.Collaterals()
			if err != nil {
				return err
			}
			for _, asset := range assets {
				debit, err := m.debits.TotalDebit(asset)
				if err != nil {
					return err
				}
				if debit.Sign() != 0 {
					return fmt.Errorf("%w: %s", ErrExistUnhandledDebit, asset)
				}
			}
		}
		if m.auctions != nil {
			active, err := m.auctions.ActiveCount()
			if err != nil {
				return err
			}
			if active > 0 {
				return fmt.Errorf("%w: %d", ErrExistActiveAuctions, active)
			}
		}
		status.RefundOpen = true
		status.RefundHeight = m.height
		if err := m.state.KVPut(statusKey, &status); err != nil {
			return err
		}
		m.emitter.Emit(events.RefundOpen{Height: m.height})
		return nil
	})
}

// RefundCollaterals burns amount of who's stable and pays out every
// collateral's free treasury balance in proportion to amount over the stable
// total issuance. It returns the payouts.
func (m *Manager) RefundCollaterals(who crypto.Address, amount *big.Int) ([]events.CollateralPayout, error) {
	if m == nil || m.state == nil || m.treasury == nil {
		return nil, errNilState
	}
	if err := common.ValidateAmount(amount); err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return nil, common.ErrInvalidAmount
	}
	if !m.IsRefundOpen() {
		return nil, fmt.Errorf("%w: refunds are not open", ErrCanNotRefund)
	}
	stable := m.treasury.StableAsset()
	var payouts []events.CollateralPayout
	err := common.Atomic(m.state, func() error {
		balance, err := m.state.Balance(who, stable)
		if err != nil {
			return err
		}
		if balance.Cmp(amount) < 0 {
			return fmt.Errorf("%w: balance %s below %s", ErrCanNotRefund, balance, amount)
		}
		issuance, err := m.state.TotalIssuance(stable)
		if err != nil {
			return err
		}
		if issuance.Sign() == 0 {
			return ErrCanNotRefund
		}
		var assets []types.AssetID
		if m.debits != nil {
			if assets, err = m.debits.Collaterals(); err != nil {
				return err
			}
		}
		for _, asset := range assets {
			free, err := m.treasury.FreeCollateral(asset)
			if err != nil {
				return err
			}
			share, err := common.MulDiv(free, amount, issuance)
			if err != nil {
				return err
			}
			if share.Sign() == 0 {
				continue
			}
			if err := m.treasury.WithdrawCollateral(who, asset, share); err != nil {
				return err
			}
			payouts = append(payouts, events.CollateralPayout{Asset: asset, Amount: share})
		}
		if err := m.treasury.RepayDebit(who, amount); err != nil {
			return err
		}
		m.emitter.Emit(events.RefundCollaterals{Who: who, Amount: new(big.Int).Set(amount), Payouts: payouts})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payouts, nil
}
