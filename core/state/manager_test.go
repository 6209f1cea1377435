package state

import (
	"math/big"
	"testing"

	"cdpchain/core/types"
	"cdpchain/storage"
)

type record struct {
	Name  string
	Value *big.Int
}

func newTestManager(t *testing.T) (*Manager, *storage.MemDB) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return NewManager(db), db
}

func TestKVRoundTripAndDelete(t *testing.T) {
	mgr, _ := newTestManager(t)
	key := []byte("records/alpha")

	if err := mgr.KVPut(key, record{Name: "alpha", Value: big.NewInt(7)}); err != nil {
		t.Fatalf("put: %v", err)
	}
	var got record
	ok, err := mgr.KVGet(key, &got)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Name != "alpha" || got.Value.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("unexpected record %+v", got)
	}
	if err := mgr.KVDelete(key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ok, err = mgr.KVGet(key, &got)
	if err != nil || ok {
		t.Fatalf("expected key to be removed, ok=%v err=%v", ok, err)
	}
}

func TestKVListAppendRemove(t *testing.T) {
	mgr, _ := newTestManager(t)
	key := []byte("index")
	for _, v := range []string{"a", "b", "a", "c"} {
		if err := mgr.KVAppend(key, []byte(v)); err != nil {
			t.Fatalf("append %s: %v", v, err)
		}
	}
	if err := mgr.KVRemove(key, []byte("b")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	var list [][]byte
	if err := mgr.KVGetList(key, &list); err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || string(list[0]) != "a" || string(list[1]) != "c" {
		t.Fatalf("unexpected list %q", list)
	}
}

func TestSnapshotRevertRestoresStateAndEvents(t *testing.T) {
	mgr, _ := newTestManager(t)
	key := []byte("counter")
	if err := mgr.KVPut(key, uint64(1)); err != nil {
		t.Fatalf("put: %v", err)
	}
	mgr.AppendEvent(&types.Event{Type: "kept"})

	snap := mgr.Snapshot()
	if err := mgr.KVPut(key, uint64(2)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := mgr.KVPut([]byte("fresh"), uint64(3)); err != nil {
		t.Fatalf("put: %v", err)
	}
	mgr.AppendEvent(&types.Event{Type: "dropped"})
	sideEffect := true
	mgr.Journal(func() { sideEffect = false })

	mgr.RevertToSnapshot(snap)

	var value uint64
	if _, err := mgr.KVGet(key, &value); err != nil || value != 1 {
		t.Fatalf("expected counter 1 after revert, got %d (%v)", value, err)
	}
	if ok, _ := mgr.KVGet([]byte("fresh"), nil); ok {
		t.Fatalf("expected fresh key to be reverted")
	}
	if sideEffect {
		t.Fatalf("expected journaled side effect to be undone")
	}
	events := mgr.Events()
	if len(events) != 1 || events[0].Type != "kept" {
		t.Fatalf("unexpected events after revert: %+v", events)
	}
}

func TestCommitPersistsAndClearsOverlay(t *testing.T) {
	mgr, db := newTestManager(t)
	if err := mgr.KVPut([]byte("persisted"), uint64(9)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if db.Len() != 0 {
		t.Fatalf("expected nothing written before commit")
	}
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if mgr.PendingChanges() != 0 {
		t.Fatalf("expected empty overlay after commit")
	}

	reopened := NewManager(db)
	var value uint64
	ok, err := reopened.KVGet([]byte("persisted"), &value)
	if err != nil || !ok || value != 9 {
		t.Fatalf("expected persisted value, got %d ok=%v err=%v", value, ok, err)
	}

	if err := reopened.KVDelete([]byte("persisted")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	reopened.Discard()
	if ok, _ := reopened.KVGet([]byte("persisted"), nil); !ok {
		t.Fatalf("discard should restore the committed value")
	}
}
