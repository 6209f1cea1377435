package loans

import (
	"errors"
	"math/big"
	"testing"

	"cdpchain/core/state"
	"cdpchain/crypto"
	"cdpchain/storage"
)

func makeAddress(b byte) crypto.Address {
	return crypto.BytesToAddress([]byte{0xAA, b})
}

func newTestLedger(t *testing.T) (*Ledger, *state.Manager) {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	return NewLedger(mgr), mgr
}

func TestUpdateCreatesAndDeletesPosition(t *testing.T) {
	ledger, _ := newTestLedger(t)
	owner := makeAddress(1)

	pos, err := ledger.Update("DOT", owner, big.NewInt(50), big.NewInt(100))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if pos.Debit.Int64() != 50 || pos.Collateral.Int64() != 100 {
		t.Fatalf("unexpected position %+v", pos)
	}
	owners, err := ledger.Owners("DOT")
	if err != nil || len(owners) != 1 || owners[0] != owner {
		t.Fatalf("expected owner index to contain owner, got %v (%v)", owners, err)
	}

	if _, err := ledger.Update("DOT", owner, big.NewInt(-50), big.NewInt(-100)); err != nil {
		t.Fatalf("close: %v", err)
	}
	pos, err = ledger.Position("DOT", owner)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if !pos.IsEmpty() {
		t.Fatalf("expected empty position, got %+v", pos)
	}
	owners, _ = ledger.Owners("DOT")
	if len(owners) != 0 {
		t.Fatalf("expected owner to be removed from index, got %v", owners)
	}
}

func TestUpdateRejectsUnderflow(t *testing.T) {
	ledger, mgr := newTestLedger(t)
	owner := makeAddress(2)
	if _, err := ledger.Update("DOT", owner, big.NewInt(10), big.NewInt(10)); err != nil {
		t.Fatalf("update: %v", err)
	}
	before := mgr.PendingChanges()
	if _, err := ledger.Update("DOT", owner, big.NewInt(-11), nil); !errors.Is(err, ErrUnderflow) {
		t.Fatalf("expected ErrUnderflow, got %v", err)
	}
	if mgr.PendingChanges() != before {
		t.Fatalf("failed update must not write")
	}
	pos, _ := ledger.Position("DOT", owner)
	if pos.Debit.Int64() != 10 {
		t.Fatalf("position changed after failed update: %+v", pos)
	}
}

func TestTotalsTrackEveryPosition(t *testing.T) {
	ledger, _ := newTestLedger(t)
	if _, err := ledger.Update("DOT", makeAddress(1), big.NewInt(5), big.NewInt(20)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := ledger.Update("DOT", makeAddress(2), big.NewInt(7), big.NewInt(30)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := ledger.Update("KSM", makeAddress(2), big.NewInt(1), big.NewInt(1)); err != nil {
		t.Fatalf("update: %v", err)
	}
	totals, err := ledger.Totals("DOT")
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.Debit.Int64() != 12 || totals.Collateral.Int64() != 50 {
		t.Fatalf("unexpected totals %+v", totals)
	}
}
