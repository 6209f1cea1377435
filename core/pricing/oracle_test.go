package pricing

import (
	"errors"
	"math/big"
	"testing"

	"cdpchain/core/state"
	"cdpchain/core/types"
	"cdpchain/crypto"
	"cdpchain/native/common"
	"cdpchain/storage"
)

func newTestOracle(t *testing.T, maxAge int64) (*Oracle, *state.Manager) {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	return NewOracle(mgr, "USD", maxAge), mgr
}

func TestStableAssetIsAlwaysOne(t *testing.T) {
	oracle, _ := newTestOracle(t, 0)
	price, ok := oracle.Price("usd")
	if !ok || price.Cmp(common.FixedOne) != 0 {
		t.Fatalf("expected stable price of one, got %v ok=%v", price, ok)
	}
}

func TestFeedPriceRequiresFeeder(t *testing.T) {
	oracle, mgr := newTestOracle(t, 0)
	stranger := crypto.BytesToAddress([]byte{7})
	err := oracle.FeedPrice(types.SignedOrigin(stranger), "DOT", common.FixedFromInt(5))
	if !errors.Is(err, common.ErrBadOrigin) {
		t.Fatalf("expected bad origin, got %v", err)
	}
	if err := mgr.SetRole(FeederRole, stranger); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if err := oracle.FeedPrice(types.SignedOrigin(stranger), "DOT", common.FixedFromInt(5)); err != nil {
		t.Fatalf("feed: %v", err)
	}
	price, ok := oracle.Price("DOT")
	if !ok || price.Cmp(common.FixedFromInt(5)) != 0 {
		t.Fatalf("unexpected price %v ok=%v", price, ok)
	}
	if err := oracle.FeedPrice(types.RootOrigin(), "DOT", big.NewInt(0)); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected invalid price, got %v", err)
	}
}

func TestStalePricesAreUnavailable(t *testing.T) {
	oracle, _ := newTestOracle(t, 60)
	oracle.SetBlockTime(1_000)
	if err := oracle.FeedPrice(types.RootOrigin(), "DOT", common.FixedFromInt(5)); err != nil {
		t.Fatalf("feed: %v", err)
	}
	oracle.SetBlockTime(1_060)
	if _, ok := oracle.Price("DOT"); !ok {
		t.Fatalf("price within window must be available")
	}
	oracle.SetBlockTime(1_061)
	if _, ok := oracle.Price("DOT"); ok {
		t.Fatalf("stale price must be unavailable")
	}
	if _, ok := oracle.Price("KSM"); ok {
		t.Fatalf("missing price must be unavailable")
	}
}

func TestLockPriceFreezesValue(t *testing.T) {
	oracle, _ := newTestOracle(t, 60)
	oracle.SetBlockTime(10)
	if err := oracle.FeedPrice(types.RootOrigin(), "DOT", common.FixedFromInt(5)); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if err := oracle.LockPrice("DOT"); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := oracle.FeedPrice(types.RootOrigin(), "DOT", common.FixedFromInt(1)); err != nil {
		t.Fatalf("feed: %v", err)
	}
	oracle.SetBlockTime(10_000)
	price, ok := oracle.Price("DOT")
	if !ok || price.Cmp(common.FixedFromInt(5)) != 0 {
		t.Fatalf("expected locked price 5, got %v ok=%v", price, ok)
	}
	if err := oracle.LockPrice("KSM"); !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if err := oracle.UnlockPrice(types.RootOrigin(), "DOT"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, ok := oracle.Price("DOT"); ok {
		t.Fatalf("after unlock the stale feed must be unavailable")
	}
}
