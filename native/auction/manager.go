package auction

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"

	"cdpchain/core/events"
	"cdpchain/core/state"
	"cdpchain/core/types"
	"cdpchain/crypto"
	"cdpchain/native/common"
)

const moduleName = "auction"

var (
	errNilState = errors.New("auction: state not configured")

	ErrAuctionNotFound = errors.New("auction: not found")
	// ErrBidBelowAsk is returned when a bid's price limit is under the
	// current ask.
	ErrBidBelowAsk = errors.New("auction: bid below current ask")
	// ErrCancelNotAllowed guards cancellation outside emergency shutdown.
	ErrCancelNotAllowed = errors.New("auction: cancellation requires shutdown")
	// ErrInsufficientBalance is returned when a bidder cannot pay.
	ErrInsufficientBalance = errors.New("auction: insufficient balance")
	ErrInvalidAuction      = errors.New("auction: invalid parameters")
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	KVAppend(key []byte, value []byte) error
	KVRemove(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
	Transfer(from, to crypto.Address, asset types.AssetID, amount *big.Int) error
	Snapshot() int
	RevertToSnapshot(int)
	Journal(func())
}

// Treasury is the custody surface auctions settle through.
type Treasury interface {
	Account() crypto.Address
	StableAsset() types.AssetID
	ReleaseCollateral(to crypto.Address, asset types.AssetID, amount *big.Int) error
	ConfiscateCollateral(asset types.AssetID, amount *big.Int) error
	DebitPool() (*big.Int, error)
	BurnDebit(amount *big.Int) error
}

// CollateralAuction sells confiscated collateral for stable.
type CollateralAuction struct {
	ID         uint64
	Asset      types.AssetID
	Amount     *big.Int
	Target     *big.Int
	Refund     crypto.Address
	StartBlock uint64
	StartPrice *big.Int
	FloorPrice *big.Int
	Price      *big.Int
	NextStep   uint64
}

// AtFloor reports whether the ask can no longer decay.
func (a *CollateralAuction) AtFloor() bool {
	return a.Price.Cmp(a.FloorPrice) <= 0
}

// Clone returns a deep copy.
func (a *CollateralAuction) Clone() *CollateralAuction {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Amount = common.Copy(a.Amount)
	clone.Target = common.Copy(a.Target)
	clone.StartPrice = common.Copy(a.StartPrice)
	clone.FloorPrice = common.Copy(a.FloorPrice)
	clone.Price = common.Copy(a.Price)
	return &clone
}

// Deal describes a settled auction.
type Deal struct {
	Sold     *big.Int
	Payment  *big.Int
	Price    *big.Int
	Refunded *big.Int
}

type storedAuction struct {
	ID         uint64
	Asset      string
	Amount     *big.Int
	Target     *big.Int
	Refund     []byte
	StartBlock uint64
	StartPrice *big.Int
	FloorPrice *big.Int
	Price      *big.Int
	NextStep   uint64
}

var (
	nextIDKey    = []byte("auction/next-id")
	activeKey    = []byte("auction/active")
	recordPrefix = "auction/record/"
	lockedPrefix = "auction/locked/"
)

func idBytes(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return buf
}

func recordKey(id uint64) []byte {
	return append([]byte(recordPrefix), idBytes(id)...)
}

func lockedKey(asset types.AssetID) []byte {
	return []byte(lockedPrefix + string(asset))
}

// Manager runs collateral auctions.
type Manager struct {
	state    engineState
	treasury Treasury
	cfg      Config
	shutdown common.ShutdownView
	pauses   common.PauseView
	schedule *schedule
	loaded   bool
	emitter  events.Emitter
	logger   *slog.Logger
}

// NewManager constructs an auction manager.
func NewManager(state engineState, treasury Treasury, cfg Config) *Manager {
	cfg.EnsureDefaults()
	m := &Manager{
		state:    state,
		treasury: treasury,
		cfg:      cfg,
		emitter:  events.NoopEmitter{},
		logger:   slog.Default(),
	}
	if state != nil {
		m.schedule = newSchedule(state.Journal)
	} else {
		m.schedule = newSchedule(nil)
	}
	return m
}

// SetShutdownView wires the emergency shutdown status.
func (m *Manager) SetShutdownView(v common.ShutdownView) {
	if m == nil {
		return
	}
	m.shutdown = v
}

// SetPauses wires the pause view. Paused auctions reject bids but keep
// decaying.
func (m *Manager) SetPauses(p common.PauseView) {
	if m == nil {
		return
	}
	m.pauses = p
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

func (m *Manager) ready() error {
	if m == nil || m.state == nil || m.treasury == nil {
		return errNilState
	}
	if !m.loaded {
		return m.Load()
	}
	return nil
}

// Load rebuilds the in-memory schedule from persisted auctions. It runs
// lazily on first use and must be called again after the backing state is
// replaced.
func (m *Manager) Load() error {
	if m == nil || m.state == nil {
		return errNilState
	}
	m.schedule.reset()
	ids, err := m.activeIDs()
	if err != nil {
		return err
	}
	for _, id := range ids {
		auction, err := m.load(id)
		if err != nil {
			return err
		}
		if auction == nil || auction.AtFloor() {
			continue
		}
		m.schedule.tree.ReplaceOrInsert(scheduleItem{block: auction.NextStep, id: id})
	}
	m.loaded = true
	return nil
}

func (m *Manager) activeIDs() ([]uint64, error) {
	var raw [][]byte
	if err := m.state.KVGetList(activeKey, &raw); err != nil {
		return nil, fmt.Errorf("auction: load index: %w", err)
	}
	ids := make([]uint64, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 8 {
			continue
		}
		ids = append(ids, binary.BigEndian.Uint64(entry))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *Manager) load(id uint64) (*CollateralAuction, error) {
	var stored storedAuction
	ok, err := m.state.KVGet(recordKey(id), &stored)
	if err != nil {
		return nil, fmt.Errorf("auction: load %d: %w", id, err)
	}
	if !ok {
		return nil, nil
	}
	return &CollateralAuction{
		ID:         stored.ID,
		Asset:      types.AssetID(stored.Asset),
		Amount:     common.Copy(stored.Amount),
		Target:     common.Copy(stored.Target),
		Refund:     crypto.BytesToAddress(stored.Refund),
		StartBlock: stored.StartBlock,
		StartPrice: common.Copy(stored.StartPrice),
		FloorPrice: common.Copy(stored.FloorPrice),
		Price:      common.Copy(stored.Price),
		NextStep:   stored.NextStep,
	}, nil
}

func (m *Manager) store(a *CollateralAuction) error {
	return m.state.KVPut(recordKey(a.ID), &storedAuction{
		ID:         a.ID,
		Asset:      string(a.Asset),
		Amount:     a.Amount,
		Target:     a.Target,
		Refund:     a.Refund.Bytes(),
		StartBlock: a.StartBlock,
		StartPrice: a.StartPrice,
		FloorPrice: a.FloorPrice,
		Price:      a.Price,
		NextStep:   a.NextStep,
	})
}

// Auction returns the auction with id or ErrAuctionNotFound.
func (m *Manager) Auction(id uint64) (*CollateralAuction, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	auction, err := m.load(id)
	if err != nil {
		return nil, err
	}
	if auction == nil {
		return nil, fmt.Errorf("%w: %d", ErrAuctionNotFound, id)
	}
	return auction, nil
}

// Auctions lists active auctions ordered by id.
func (m *Manager) Auctions() ([]*CollateralAuction, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	ids, err := m.activeIDs()
	if err != nil {
		return nil, err
	}
	out := make([]*CollateralAuction, 0, len(ids))
	for _, id := range ids {
		auction, err := m.load(id)
		if err != nil {
			return nil, err
		}
		if auction != nil {
			out = append(out, auction)
		}
	}
	return out, nil
}

// ActiveCount returns the number of open auctions.
func (m *Manager) ActiveCount() (int, error) {
	if err := m.ready(); err != nil {
		return 0, err
	}
	ids, err := m.activeIDs()
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// TotalLocked returns the collateral of asset held by open auctions.
func (m *Manager) TotalLocked(asset types.AssetID) (*big.Int, error) {
	if m == nil || m.state == nil {
		return nil, errNilState
	}
	locked := new(big.Int)
	if _, err := m.state.KVGet(lockedKey(types.NormalizeAsset(string(asset))), locked); err != nil {
		return nil, err
	}
	return locked, nil
}

func (m *Manager) adjustLocked(asset types.AssetID, delta *big.Int) error {
	locked, err := m.TotalLocked(asset)
	if err != nil {
		return err
	}
	locked.Add(locked, delta)
	if locked.Sign() < 0 {
		return common.ErrArithmetic
	}
	if locked.Sign() == 0 {
		return m.state.KVDelete(lockedKey(asset))
	}
	return m.state.KVPut(lockedKey(asset), locked)
}

// NewCollateralAuction opens an auction selling amount of asset to raise
// target stable. The opening ask is the oracle price plus the configured
// premium. Leftover collateral is returned to refund.
func (m *Manager) NewCollateralAuction(refund crypto.Address, asset types.AssetID, amount, target, oraclePrice *big.Int, height uint64) (uint64, error) {
	if err := m.ready(); err != nil {
		return 0, err
	}
	if amount == nil || amount.Sign() <= 0 || target == nil || target.Sign() <= 0 {
		return 0, fmt.Errorf("%w: amount and target must be positive", ErrInvalidAuction)
	}
	if oraclePrice == nil || oraclePrice.Sign() <= 0 {
		return 0, fmt.Errorf("%w: missing start price", ErrInvalidAuction)
	}
	asset = types.NormalizeAsset(string(asset))
	var id uint64
	err := common.Atomic(m.state, func() error {
		if _, err := m.state.KVGet(nextIDKey, &id); err != nil {
			return err
		}
		if err := m.state.KVPut(nextIDKey, id+1); err != nil {
			return err
		}
		start := common.FixedMul(oraclePrice, new(big.Int).Add(common.FixedOne, m.cfg.StartPremium))
		floor := common.FixedMul(start, m.cfg.FloorRatio)
		if floor.Sign() == 0 {
			floor = big.NewInt(1)
		}
		auction := &CollateralAuction{
			ID:         id,
			Asset:      asset,
			Amount:     new(big.Int).Set(amount),
			Target:     new(big.Int).Set(target),
			Refund:     refund,
			StartBlock: height,
			StartPrice: start,
			FloorPrice: floor,
			Price:      new(big.Int).Set(start),
			NextStep:   height + m.cfg.DecayIntervalBlocks,
		}
		if err := m.store(auction); err != nil {
			return err
		}
		if err := m.state.KVAppend(activeKey, idBytes(id)); err != nil {
			return err
		}
		if err := m.adjustLocked(asset, amount); err != nil {
			return err
		}
		m.schedule.add(scheduleItem{block: auction.NextStep, id: id})
		m.emitter.Emit(events.NewCollateralAuction{
			ID:         id,
			Asset:      asset,
			Amount:     auction.Amount,
			Target:     auction.Target,
			Refund:     refund,
			StartPrice: start,
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	m.logger.Info("collateral auction opened",
		slog.Uint64("auctionId", id),
		slog.String("asset", string(asset)),
		slog.String("amount", amount.String()),
		slog.String("target", target.String()))
	return id, nil
}

func (m *Manager) close(auction *CollateralAuction) error {
	if err := m.state.KVDelete(recordKey(auction.ID)); err != nil {
		return err
	}
	if err := m.state.KVRemove(activeKey, idBytes(auction.ID)); err != nil {
		return err
	}
	if err := m.adjustLocked(auction.Asset, new(big.Int).Neg(auction.Amount)); err != nil {
		return err
	}
	m.schedule.remove(scheduleItem{block: auction.NextStep, id: auction.ID})
	return nil
}

// Bid buys from auction id at the current ask as long as the ask does not
// exceed maxPrice. The first qualifying bid settles the auction: the bidder
// receives enough collateral to cover the target at the ask, pays for it in
// stable, and any leftover collateral returns to the refund account. The
// payment burns against the treasury debit pool before anything is left as
// surplus.
func (m *Manager) Bid(bidder crypto.Address, id uint64, maxPrice *big.Int) (Deal, error) {
	if err := m.ready(); err != nil {
		return Deal{}, err
	}
	if err := common.Guard(m.pauses, moduleName); err != nil {
		return Deal{}, err
	}
	if maxPrice == nil || maxPrice.Sign() <= 0 {
		return Deal{}, common.ErrInvalidAmount
	}
	var deal Deal
	err := common.Atomic(m.state, func() error {
		auction, err := m.load(id)
		if err != nil {
			return err
		}
		if auction == nil {
			return fmt.Errorf("%w: %d", ErrAuctionNotFound, id)
		}
		ask := auction.Price
		if maxPrice.Cmp(ask) < 0 {
			return fmt.Errorf("%w: ask %s, bid %s", ErrBidBelowAsk, ask, maxPrice)
		}
		needed, err := common.IntDivFixedCeil(auction.Target, ask)
		if err != nil {
			return err
		}
		sold := common.Min(auction.Amount, needed)
		payment := common.Min(auction.Target, common.FixedMulIntCeil(ask, sold))
		refunded := new(big.Int).Sub(auction.Amount, sold)

		if err := m.state.Transfer(bidder, m.treasury.Account(), m.treasury.StableAsset(), payment); err != nil {
			if errors.Is(err, state.ErrInsufficientBalance) {
				return fmt.Errorf("%w: %v", ErrInsufficientBalance, err)
			}
			return err
		}
		pool, err := m.treasury.DebitPool()
		if err != nil {
			return err
		}
		// Proceeds settle bad debt immediately; only the excess stays as surplus.
		if err := m.treasury.BurnDebit(common.Min(payment, pool)); err != nil {
			return err
		}
		if err := m.treasury.ReleaseCollateral(bidder, auction.Asset, sold); err != nil {
			return err
		}
		if refunded.Sign() > 0 {
			if err := m.treasury.ReleaseCollateral(auction.Refund, auction.Asset, refunded); err != nil {
				return err
			}
		}
		if err := m.close(auction); err != nil {
			return err
		}
		deal = Deal{Sold: sold, Payment: payment, Price: new(big.Int).Set(ask), Refunded: refunded}
		m.emitter.Emit(events.AuctionDealt{
			ID:       id,
			Asset:    auction.Asset,
			Bidder:   bidder,
			Sold:     sold,
			Payment:  payment,
			Price:    ask,
			Refunded: refunded,
		})
		return nil
	})
	if err != nil {
		return Deal{}, err
	}
	return deal, nil
}

// OnBlock steps the ask of every auction due at height. It returns the
// number of auctions that decayed.
func (m *Manager) OnBlock(height uint64) (int, error) {
	if err := m.ready(); err != nil {
		return 0, err
	}
	decayed := 0
	for _, item := range m.schedule.due(height) {
		m.schedule.remove(item)
		auction, err := m.load(item.id)
		if err != nil {
			return decayed, err
		}
		if auction == nil || auction.NextStep != item.block {
			continue
		}
		next := common.FixedMul(auction.Price, m.cfg.DecayFactor)
		if next.Cmp(auction.FloorPrice) < 0 {
			next = new(big.Int).Set(auction.FloorPrice)
		}
		auction.Price = next
		auction.NextStep = height + m.cfg.DecayIntervalBlocks
		if err := m.store(auction); err != nil {
			return decayed, err
		}
		if !auction.AtFloor() {
			m.schedule.add(scheduleItem{block: auction.NextStep, id: auction.ID})
		}
		decayed++
		m.emitter.Emit(events.AuctionPriceDecayed{ID: auction.ID, Price: next, Floor: auction.AtFloor()})
	}
	return decayed, nil
}

// Cancel closes an auction during emergency shutdown and hands its
// collateral to the treasury.
func (m *Manager) Cancel(id uint64) error {
	if err := m.ready(); err != nil {
		return err
	}
	if m.shutdown == nil || !m.shutdown.IsShutdown() {
		return ErrCancelNotAllowed
	}
	return common.Atomic(m.state, func() error {
		auction, err := m.load(id)
		if err != nil {
			return err
		}
		if auction == nil {
			return fmt.Errorf("%w: %d", ErrAuctionNotFound, id)
		}
		if err := m.treasury.ConfiscateCollateral(auction.Asset, auction.Amount); err != nil {
			return err
		}
		if err := m.close(auction); err != nil {
			return err
		}
		m.emitter.Emit(events.AuctionCancelled{ID: id, Asset: auction.Asset, Amount: auction.Amount})
		return nil
	})
}
