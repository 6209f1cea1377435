package pricing

import (
	"errors"
	"fmt"
	"math/big"

	"cdpchain/core/events"
	"cdpchain/core/types"
	"cdpchain/crypto"
	"cdpchain/native/common"
)

// FeederRole is held by accounts allowed to publish prices.
const FeederRole = "oracle-feeder"

// PriceStatus captures the health classification assigned to an oracle quote.
type PriceStatus string

const (
	// PriceStatusOK indicates the quote is fresh.
	PriceStatusOK PriceStatus = "ok"
	// PriceStatusStale signals the quote exceeded the configured freshness window.
	PriceStatusStale PriceStatus = "stale"
	// PriceStatusLocked marks a price frozen by emergency shutdown.
	PriceStatusLocked PriceStatus = "locked"
	// PriceStatusMissing means no price was ever published.
	PriceStatusMissing PriceStatus = "missing"
)

var (
	errNilState = errors.New("pricing: state not configured")
	// ErrInvalidPrice rejects zero or negative prices.
	ErrInvalidPrice = errors.New("pricing: invalid price")
	// ErrPriceUnavailable is returned when locking an asset without a usable
	// price.
	ErrPriceUnavailable = errors.New("pricing: price unavailable")
)

// PriceFeed resolves the stable value of one unit of an asset as a 1e18
// fixed-point number. ok is false when no trustworthy price exists.
type PriceFeed interface {
	Price(asset types.AssetID) (price *big.Int, ok bool)
}

type oracleState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	HasRole(role string, addr crypto.Address) bool
}

// Quote is the stored observation for an asset.
type Quote struct {
	Price     *big.Int
	UpdatedAt int64
	Status    PriceStatus
}

type storedQuote struct {
	Price     *big.Int
	UpdatedAt uint64
}

func quoteKey(asset types.AssetID) []byte {
	return []byte("oracle/price/" + string(asset))
}

func lockedKey(asset types.AssetID) []byte {
	return []byte("oracle/locked/" + string(asset))
}

// Oracle stores prices published by feeders and serves them to the risk
// modules. The stable asset is always worth exactly one.
type Oracle struct {
	state   oracleState
	stable  types.AssetID
	maxAge  int64
	now     int64
	emitter events.Emitter
}

// NewOracle constructs an oracle. maxAgeSeconds of zero disables staleness
// checks.
func NewOracle(state oracleState, stable types.AssetID, maxAgeSeconds int64) *Oracle {
	return &Oracle{
		state:   state,
		stable:  types.NormalizeAsset(string(stable)),
		maxAge:  maxAgeSeconds,
		emitter: events.NoopEmitter{},
	}
}

// SetEmitter configures the event emitter.
func (o *Oracle) SetEmitter(emitter events.Emitter) {
	if o == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	o.emitter = emitter
}

// SetBlockTime updates the clock used for staleness checks.
func (o *Oracle) SetBlockTime(ts int64) {
	if o == nil {
		return
	}
	o.now = ts
}

// FeedPrice publishes price for asset. Only root, governance and feeder-role
// accounts may publish.
func (o *Oracle) FeedPrice(origin types.Origin, asset types.AssetID, price *big.Int) error {
	if o == nil || o.state == nil {
		return errNilState
	}
	var feeder crypto.Address
	if err := common.EnsureRoot(o.state, origin); err != nil {
		if origin.Kind != types.OriginSigned || !o.state.HasRole(FeederRole, origin.Signer) {
			return err
		}
	}
	if origin.Kind == types.OriginSigned {
		feeder = origin.Signer
	}
	if price == nil || price.Sign() <= 0 {
		return ErrInvalidPrice
	}
	asset = types.NormalizeAsset(string(asset))
	if asset == "" || asset == o.stable {
		return fmt.Errorf("pricing: cannot feed %q", asset)
	}
	ts := uint64(0)
	if o.now > 0 {
		ts = uint64(o.now)
	}
	if err := o.state.KVPut(quoteKey(asset), &storedQuote{Price: price, UpdatedAt: ts}); err != nil {
		return err
	}
	o.emitter.Emit(events.PriceFed{Asset: asset, Price: price, Feeder: feeder})
	return nil
}

// Quote returns the latest observation for asset with its status.
func (o *Oracle) Quote(asset types.AssetID) (Quote, error) {
	if o == nil || o.state == nil {
		return Quote{}, errNilState
	}
	asset = types.NormalizeAsset(string(asset))
	if asset == o.stable {
		return Quote{Price: new(big.Int).Set(common.FixedOne), UpdatedAt: o.now, Status: PriceStatusOK}, nil
	}
	var locked big.Int
	ok, err := o.state.KVGet(lockedKey(asset), &locked)
	if err != nil {
		return Quote{}, err
	}
	if ok {
		return Quote{Price: &locked, UpdatedAt: o.now, Status: PriceStatusLocked}, nil
	}
	var stored storedQuote
	ok, err = o.state.KVGet(quoteKey(asset), &stored)
	if err != nil {
		return Quote{}, err
	}
	if !ok || stored.Price == nil {
		return Quote{Status: PriceStatusMissing}, nil
	}
	quote := Quote{Price: stored.Price, UpdatedAt: int64(stored.UpdatedAt), Status: PriceStatusOK}
	if o.maxAge > 0 && o.now-quote.UpdatedAt > o.maxAge {
		quote.Status = PriceStatusStale
	}
	return quote, nil
}

// Price implements PriceFeed. Stale and missing quotes are unavailable.
func (o *Oracle) Price(asset types.AssetID) (*big.Int, bool) {
	quote, err := o.Quote(asset)
	if err != nil {
		return nil, false
	}
	switch quote.Status {
	case PriceStatusOK, PriceStatusLocked:
		return new(big.Int).Set(quote.Price), true
	default:
		return nil, false
	}
}

// LockPrice freezes the current price of asset. Locking an already locked
// asset keeps the first locked value.
func (o *Oracle) LockPrice(asset types.AssetID) error {
	if o == nil || o.state == nil {
		return errNilState
	}
	asset = types.NormalizeAsset(string(asset))
	if asset == o.stable {
		return nil
	}
	quote, err := o.Quote(asset)
	if err != nil {
		return err
	}
	switch quote.Status {
	case PriceStatusLocked:
		return nil
	case PriceStatusOK:
	default:
		return fmt.Errorf("%w: %s is %s", ErrPriceUnavailable, asset, quote.Status)
	}
	if err := o.state.KVPut(lockedKey(asset), quote.Price); err != nil {
		return err
	}
	o.emitter.Emit(events.PriceLocked{Asset: asset, Price: quote.Price})
	return nil
}

// UnlockPrice releases a locked price. Root only.
func (o *Oracle) UnlockPrice(origin types.Origin, asset types.AssetID) error {
	if o == nil || o.state == nil {
		return errNilState
	}
	if err := common.EnsureRoot(o.state, origin); err != nil {
		return err
	}
	return o.state.KVDelete(lockedKey(types.NormalizeAsset(string(asset))))
}
