package core

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"cdpchain/config"
	"cdpchain/core/events"
	"cdpchain/core/genesis"
	"cdpchain/core/pricing"
	"cdpchain/core/state"
	"cdpchain/core/types"
	"cdpchain/crypto"
	"cdpchain/native/auction"
	"cdpchain/native/cdp"
	"cdpchain/native/dex"
	"cdpchain/native/params"
	"cdpchain/native/shutdown"
	"cdpchain/native/treasury"
	"cdpchain/observability"
	"cdpchain/observability/metrics"
	"cdpchain/storage"
)

var (
	ErrMissingSigner     = errors.New("core: transaction signer required")
	ErrUnknownTxType     = errors.New("core: unknown transaction type")
	ErrInvalidHeight     = errors.New("core: block height out of sequence")
	ErrInvalidTimestamp  = errors.New("core: block timestamp before parent")
	ErrNotInitialized    = errors.New("core: genesis not applied")
	ErrBlockInProgress   = errors.New("core: block already open")
	ErrNoBlockInProgress = errors.New("core: no open block")
)

var headKey = []byte("chain/head")

type headRecord struct {
	Height    uint64
	Timestamp uint64
}

// Receipt records the outcome of one transaction.
type Receipt struct {
	TxHash string        `json:"txHash"`
	Type   types.TxType  `json:"type"`
	Error  string        `json:"error,omitempty"`
	Events []types.Event `json:"events"`
}

// EndBlockReport summarises the end-of-block hooks.
type EndBlockReport struct {
	AuctionsDecayed int
	Risk            cdp.BlockReport
	Offset          *big.Int
}

// BlockResult is returned by ApplyBlock.
type BlockResult struct {
	Height   uint64
	Receipts []Receipt
	EndBlock EndBlockReport
	Events   []types.Event
}

// CommitHook observes the events of every committed block.
type CommitHook func(height uint64, evts []types.Event)

// Processor owns the state manager and every risk module and executes blocks
// against them. ApplyBlock and View are safe for concurrent use; the lower
// level Begin/Apply/End/Commit calls must be serialised by the caller. Commit
// hooks run under the write lock and must not call View.
type Processor struct {
	mu sync.RWMutex

	State    *state.Manager
	Treasury *treasury.Treasury
	DEX      *dex.Engine
	Auctions *auction.Manager
	Oracle   *pricing.Oracle
	CDP      *cdp.Engine
	Shutdown *shutdown.Manager
	Params   *params.Store

	logger  *slog.Logger
	metrics *metrics.RiskMetrics
	hooks   []CommitHook

	initialized bool
	head        types.BlockContext
	current     *types.BlockContext
	started     time.Time
	lastReport  EndBlockReport
}

// NewProcessor wires the modules on top of db using cfg. A previously
// committed chain head is resumed.
func NewProcessor(db storage.Database, cfg *config.Config, logger *slog.Logger) (*Processor, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database required")
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	cdpCfg, err := cfg.CDP.EngineConfig()
	if err != nil {
		return nil, err
	}
	dexCfg, err := cfg.DEX.EngineConfig()
	if err != nil {
		return nil, err
	}
	auctionCfg, err := cfg.Auction.EngineConfig()
	if err != nil {
		return nil, err
	}
	stable := types.NormalizeAsset(cfg.Chain.StableAsset)

	mgr := state.NewManager(db)
	emitter := events.NewSinkEmitter(mgr)

	tr := treasury.New(mgr, stable)
	pools := dex.NewEngine(mgr, dexCfg)
	tr.SetDEX(pools)
	auctions := auction.NewManager(mgr, tr, auctionCfg)
	oracle := pricing.NewOracle(mgr, stable, cfg.Oracle.MaxAgeSeconds)
	engine := cdp.NewEngine(mgr, tr, auctions, oracle, cdpCfg)
	shut := shutdown.NewManager(mgr, tr, engine, auctions, oracle)
	pauses := params.NewStore(mgr)

	engine.SetPauses(pauses)
	engine.SetShutdownView(shut)
	pools.SetPauses(pauses)
	auctions.SetPauses(pauses)
	auctions.SetShutdownView(shut)

	tr.SetEmitter(emitter)
	pools.SetEmitter(emitter)
	auctions.SetEmitter(emitter)
	oracle.SetEmitter(emitter)
	engine.SetEmitter(emitter)
	shut.SetEmitter(emitter)
	pauses.SetEmitter(emitter)

	tr.SetLogger(logger.With("module", "treasury"))
	pools.SetLogger(logger.With("module", "dex"))
	auctions.SetLogger(logger.With("module", "auction"))
	engine.SetLogger(logger.With("module", "cdp"))
	shut.SetLogger(logger.With("module", "shutdown"))

	p := &Processor{
		State:    mgr,
		Treasury: tr,
		DEX:      pools,
		Auctions: auctions,
		Oracle:   oracle,
		CDP:      engine,
		Shutdown: shut,
		Params:   pauses,
		logger:   logger,
		metrics:  metrics.Risk(),
	}
	var head headRecord
	ok, err := mgr.KVGet(headKey, &head)
	if err != nil {
		return nil, fmt.Errorf("core: load head: %w", err)
	}
	if ok {
		p.initialized = true
		p.head = types.BlockContext{Height: head.Height, Timestamp: int64(head.Timestamp)}
		oracle.SetBlockTime(p.head.Timestamp)
		if err := auctions.Load(); err != nil {
			return nil, fmt.Errorf("core: load auctions: %w", err)
		}
	}
	return p, nil
}

// OnCommit registers a hook called after every commit.
func (p *Processor) OnCommit(hook CommitHook) {
	if hook == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = append(p.hooks, hook)
}

// Head returns the last committed block context.
func (p *Processor) Head() types.BlockContext {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.head
}

// Initialized reports whether genesis has been committed.
func (p *Processor) Initialized() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.initialized
}

// View runs fn under the read lock so queries observe a committed block.
func (p *Processor) View(fn func() error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return fn()
}

// InitGenesis applies and commits g. It is a no-op once a head exists.
func (p *Processor) InitGenesis(g config.Genesis) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		p.logger.Info("genesis already applied", slog.Uint64("height", p.head.Height))
		return nil
	}
	p.Oracle.SetBlockTime(g.Timestamp)
	err := genesis.Apply(g, genesis.Modules{
		State:       p.State,
		Collaterals: p.CDP,
		Pairs:       p.DEX,
		Prices:      p.Oracle,
	})
	if err != nil {
		p.State.Discard()
		p.State.DrainEvents()
		return fmt.Errorf("core: genesis: %w", err)
	}
	ctx := types.BlockContext{Height: 0, Timestamp: g.Timestamp}
	if err := p.commit(ctx); err != nil {
		return err
	}
	p.initialized = true
	return nil
}

// ApplyBlock executes every transaction of block and commits. Failed
// transactions are reverted and reported in their receipt; hook failures
// discard the whole block.
func (p *Processor) ApplyBlock(block *types.Block) (*BlockResult, error) {
	if block == nil || block.Header == nil {
		return nil, fmt.Errorf("core: block header required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx := block.Context()
	if err := p.BeginBlock(ctx); err != nil {
		p.abort()
		return nil, err
	}
	receipts := make([]Receipt, 0, len(block.Transactions))
	for _, tx := range block.Transactions {
		receipts = append(receipts, p.ApplyTransaction(tx))
	}
	report, err := p.EndBlock()
	if err != nil {
		p.abort()
		return nil, err
	}
	evts := p.State.Events()
	if err := p.Commit(); err != nil {
		p.abort()
		return nil, err
	}
	return &BlockResult{Height: ctx.Height, Receipts: receipts, EndBlock: report, Events: evts}, nil
}

func (p *Processor) abort() {
	p.State.Discard()
	p.State.DrainEvents()
	p.current = nil
}

// BeginBlock opens a block: it checks the sequence, sets the block context on
// every module and accrues stability fees up to the block timestamp.
func (p *Processor) BeginBlock(ctx types.BlockContext) error {
	if !p.initialized {
		return ErrNotInitialized
	}
	if p.current != nil {
		return ErrBlockInProgress
	}
	if ctx.Height != p.head.Height+1 {
		return fmt.Errorf("%w: want %d got %d", ErrInvalidHeight, p.head.Height+1, ctx.Height)
	}
	if ctx.Timestamp < p.head.Timestamp {
		return fmt.Errorf("%w: %d < %d", ErrInvalidTimestamp, ctx.Timestamp, p.head.Timestamp)
	}
	p.started = time.Now()
	current := ctx
	p.current = &current
	p.CDP.SetBlockContext(ctx)
	p.Oracle.SetBlockTime(ctx.Timestamp)
	p.Shutdown.SetBlockHeight(ctx.Height)
	if err := p.CDP.AccrueInterest(ctx.Timestamp); err != nil {
		return fmt.Errorf("core: accrue interest: %w", err)
	}
	return nil
}

// ApplyTransaction executes tx inside the open block. A failing transaction
// leaves no trace in state or in the event log.
func (p *Processor) ApplyTransaction(tx *types.Transaction) Receipt {
	receipt := Receipt{}
	if tx == nil {
		receipt.Error = "nil transaction"
		return receipt
	}
	receipt.Type = tx.Type
	if hash, err := tx.Hash(); err == nil {
		receipt.TxHash = "0x" + hex.EncodeToString(hash)
	}
	if p.current == nil {
		receipt.Error = ErrNoBlockInProgress.Error()
		return receipt
	}
	before := len(p.State.Events())
	snapshot := p.State.Snapshot()
	err := p.dispatch(tx)
	p.metrics.RecordTransaction(string(tx.Type), err)
	if err != nil {
		p.State.RevertToSnapshot(snapshot)
		receipt.Error = err.Error()
		p.logger.Debug("transaction failed",
			slog.String("type", string(tx.Type)),
			slog.String("signer", tx.Signer.String()),
			slog.String("error", err.Error()))
		return receipt
	}
	all := p.State.Events()
	if before <= len(all) {
		receipt.Events = all[before:]
	}
	return receipt
}

// EndBlock runs the per-block hooks: auction price decay, keeper
// liquidations or post-shutdown settlement, then the surplus/debit offset.
func (p *Processor) EndBlock() (EndBlockReport, error) {
	var report EndBlockReport
	if p.current == nil {
		return report, ErrNoBlockInProgress
	}
	decayed, err := p.Auctions.OnBlock(p.current.Height)
	if err != nil {
		return report, fmt.Errorf("core: auctions: %w", err)
	}
	report.AuctionsDecayed = decayed
	risk, err := p.CDP.OnBlock()
	if err != nil {
		return report, fmt.Errorf("core: risk scan: %w", err)
	}
	report.Risk = risk
	offset, err := p.Treasury.OffsetSurplusAndDebit()
	if err != nil {
		return report, fmt.Errorf("core: offset: %w", err)
	}
	report.Offset = offset
	p.lastReport = report
	return report, nil
}

// Commit persists the open block and notifies hooks.
func (p *Processor) Commit() error {
	if p.current == nil {
		return ErrNoBlockInProgress
	}
	ctx := *p.current
	if err := p.commit(ctx); err != nil {
		return err
	}
	p.current = nil
	p.metrics.ObserveBlock(time.Since(p.started))
	p.metrics.RecordSettlements(p.lastReport.Risk.Settled)
	p.lastReport = EndBlockReport{}
	p.logger.Info("block committed", slog.Uint64("height", ctx.Height))
	return nil
}

func (p *Processor) commit(ctx types.BlockContext) error {
	ts := uint64(0)
	if ctx.Timestamp > 0 {
		ts = uint64(ctx.Timestamp)
	}
	if err := p.State.KVPut(headKey, &headRecord{Height: ctx.Height, Timestamp: ts}); err != nil {
		return err
	}
	if err := p.State.Commit(); err != nil {
		return err
	}
	p.head = ctx
	evts := p.State.DrainEvents()
	p.recordMetrics(evts)
	for _, hook := range p.hooks {
		hook(ctx.Height, evts)
	}
	return nil
}

func (p *Processor) recordMetrics(evts []types.Event) {
	for _, evt := range evts {
		observability.Default().RecordEvent(evt.Type)
		if evt.Type == events.TypeCDPLiquidated {
			p.metrics.RecordLiquidation(evt.Attributes["strategy"])
		}
	}
	if debit, err := p.Treasury.DebitPool(); err == nil {
		surplus, _ := p.Treasury.SurplusPool()
		p.metrics.SetTreasury(debit, surplus)
	}
	if n, err := p.Auctions.ActiveCount(); err == nil {
		p.metrics.SetActiveAuctions(n)
	}
	if assets, err := p.CDP.Collaterals(); err == nil {
		for _, asset := range assets {
			if total, err := p.CDP.TotalDebit(asset); err == nil {
				p.metrics.SetTotalDebit(string(asset), total)
			}
		}
	}
	p.metrics.SetShutdown(p.Shutdown.IsShutdown())
}

func signerOf(tx *types.Transaction) (crypto.Address, types.Origin, error) {
	if tx.Signer.IsZero() {
		return crypto.Address{}, types.NoneOrigin(), ErrMissingSigner
	}
	return tx.Signer, types.SignedOrigin(tx.Signer), nil
}

func (p *Processor) dispatch(tx *types.Transaction) error {
	who, origin, signerErr := signerOf(tx)
	switch tx.Type {
	case types.TxTypeLiquidate:
		var payload types.PositionTargetPayload
		if err := tx.DecodePayload(&payload); err != nil {
			return err
		}
		_, err := p.CDP.Liquidate(origin, payload.Asset, payload.Owner)
		return err
	case types.TxTypeSettle:
		var payload types.PositionTargetPayload
		if err := tx.DecodePayload(&payload); err != nil {
			return err
		}
		_, err := p.CDP.Settle(origin, payload.Asset, payload.Owner)
		return err
	case types.TxTypeAuctionCancel:
		var payload types.AuctionCancelPayload
		if err := tx.DecodePayload(&payload); err != nil {
			return err
		}
		return p.Auctions.Cancel(payload.AuctionID)
	}
	if signerErr != nil {
		return signerErr
	}

	switch tx.Type {
	case types.TxTypeAdjustPosition:
		var payload types.AdjustPositionPayload
		if err := tx.DecodePayload(&payload); err != nil {
			return err
		}
		_, err := p.CDP.AdjustPosition(who, payload.Asset, orZero(payload.CollateralDelta), orZero(payload.DebitDelta))
		return err
	case types.TxTypeSetCollateralParams:
		var payload types.SetCollateralParamsPayload
		if err := tx.DecodePayload(&payload); err != nil {
			return err
		}
		changes, err := collateralChanges(payload)
		if err != nil {
			return err
		}
		return p.CDP.SetCollateralParams(origin, payload.Asset, changes)

	case types.TxTypeAddLiquidity:
		var payload types.AddLiquidityPayload
		if err := tx.DecodePayload(&payload); err != nil {
			return err
		}
		_, err := p.DEX.AddLiquidity(who, payload.AssetA, payload.AssetB, orZero(payload.MaxA), orZero(payload.MaxB), orZero(payload.MinShare), payload.Stake)
		return err
	case types.TxTypeRemoveLiquidity:
		var payload types.RemoveLiquidityPayload
		if err := tx.DecodePayload(&payload); err != nil {
			return err
		}
		_, err := p.DEX.RemoveLiquidity(who, payload.AssetA, payload.AssetB, orZero(payload.Share), orZero(payload.MinA), orZero(payload.MinB))
		return err
	case types.TxTypeSwapExactSupply:
		var payload types.SwapExactSupplyPayload
		if err := tx.DecodePayload(&payload); err != nil {
			return err
		}
		_, err := p.DEX.SwapWithExactSupply(who, payload.Path, orZero(payload.SupplyAmount), orZero(payload.MinTarget))
		return err
	case types.TxTypeSwapExactTarget:
		var payload types.SwapExactTargetPayload
		if err := tx.DecodePayload(&payload); err != nil {
			return err
		}
		_, err := p.DEX.SwapWithExactTarget(who, payload.Path, orZero(payload.TargetAmount), orZero(payload.MaxSupply))
		return err
	case types.TxTypeEnableTradingPair:
		var payload types.TradingPairPayload
		if err := tx.DecodePayload(&payload); err != nil {
			return err
		}
		return p.DEX.SetTradingPairStatus(origin, payload.AssetA, payload.AssetB, payload.Enabled)
	case types.TxTypeUnstakeShares:
		var payload types.UnstakeSharesPayload
		if err := tx.DecodePayload(&payload); err != nil {
			return err
		}
		return p.DEX.UnstakeShares(who, payload.AssetA, payload.AssetB, orZero(payload.Amount))

	case types.TxTypeAuctionBid:
		var payload types.AuctionBidPayload
		if err := tx.DecodePayload(&payload); err != nil {
			return err
		}
		maxPrice, err := config.ParseFixed(payload.MaxPrice)
		if err != nil {
			return fmt.Errorf("auction bid: %w", err)
		}
		_, err = p.Auctions.Bid(who, payload.AuctionID, maxPrice)
		return err

	case types.TxTypeEmergencyShutdown:
		return p.Shutdown.EmergencyShutdown(origin)
	case types.TxTypeOpenCollateralRefund:
		return p.Shutdown.OpenCollateralRefund(origin)
	case types.TxTypeRefundCollaterals:
		var payload types.RefundCollateralsPayload
		if err := tx.DecodePayload(&payload); err != nil {
			return err
		}
		_, err := p.Shutdown.RefundCollaterals(who, orZero(payload.Amount))
		return err

	case types.TxTypeFeedPrice:
		var payload types.FeedPricePayload
		if err := tx.DecodePayload(&payload); err != nil {
			return err
		}
		price, err := config.ParseFixed(payload.Price)
		if err != nil {
			return fmt.Errorf("feed price: %w", err)
		}
		return p.Oracle.FeedPrice(origin, payload.Asset, price)
	case types.TxTypeSetPauses:
		var payload types.SetPausesPayload
		if err := tx.DecodePayload(&payload); err != nil {
			return err
		}
		return p.Params.SetPauses(origin, params.Pauses(payload.Modules))
	case types.TxTypeTransfer:
		var payload types.TransferPayload
		if err := tx.DecodePayload(&payload); err != nil {
			return err
		}
		if payload.To.IsZero() {
			return fmt.Errorf("transfer: recipient required")
		}
		return p.State.Transfer(who, payload.To, payload.Asset, orZero(payload.Amount))
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTxType, tx.Type)
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func collateralChanges(payload types.SetCollateralParamsPayload) (cdp.CollateralParamsChange, error) {
	var (
		out cdp.CollateralParamsChange
		err error
	)
	if out.InterestRatePerSec, err = paramChange("interestRatePerSec", payload.InterestRatePerSec, config.ParseFixed); err != nil {
		return out, err
	}
	if out.LiquidationRatio, err = paramChange("liquidationRatio", payload.LiquidationRatio, config.ParseFixed); err != nil {
		return out, err
	}
	if out.LiquidationPenalty, err = paramChange("liquidationPenalty", payload.LiquidationPenalty, config.ParseFixed); err != nil {
		return out, err
	}
	if out.RequiredCollateralRatio, err = paramChange("requiredCollateralRatio", payload.RequiredCollateralRatio, config.ParseFixed); err != nil {
		return out, err
	}
	if out.MaximumTotalDebitValue, err = paramChange("maximumTotalDebitValue", payload.MaximumTotalDebitValue, config.ParseAmount); err != nil {
		return out, err
	}
	return out, nil
}

func paramChange(field string, change types.ParamChangePayload, parse func(string) (*big.Int, error)) (cdp.ParamChange, error) {
	switch strings.ToLower(strings.TrimSpace(change.Op)) {
	case "", "noop":
		return cdp.Keep(), nil
	case "clear":
		return cdp.Unset(), nil
	case "set":
		v, err := parse(change.Value)
		if err != nil {
			return cdp.ParamChange{}, fmt.Errorf("%w: %s: %v", cdp.ErrInvalidParams, field, err)
		}
		return cdp.Set(v), nil
	default:
		return cdp.ParamChange{}, fmt.Errorf("%w: %s: unknown op %q", cdp.ErrInvalidParams, field, change.Op)
	}
}
