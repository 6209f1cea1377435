package cdp

import (
	"math/big"
	"testing"

	"cdpchain/core/types"
	"cdpchain/crypto"
	"cdpchain/native/common"
)

// FuzzConservation replays a random mix of adjustments, price moves,
// liquidations and bids. After every step the treasury's reserved collateral
// must match what positions and auctions hold, and stable issuance must match
// outstanding debit plus the debit pool.
func FuzzConservation(f *testing.F) {
	f.Add([]byte{0, 100, 40, 1, 50, 20})
	f.Add([]byte{0, 120, 60, 2, 3, 0, 3, 0, 0, 4, 0, 1})
	f.Add([]byte{1, 90, 50, 0, 200, 0, 0, 0xF6, 0xF6, 2, 0, 0, 3, 1, 1})
	f.Add([]byte{0, 127, 70, 1, 127, 70, 2, 1, 0, 3, 0, 0, 3, 1, 1, 4, 1, 0, 4, 0, 1})
	f.Fuzz(func(t *testing.T, ops []byte) {
		if len(ops) > 3*64 {
			ops = ops[:3*64]
		}
		env := newTestEnv(t, DefaultConfig())
		actors := []crypto.Address{env.alice, env.bob}
		for _, who := range actors {
			if err := env.mgr.Mint(who, "DOT", big.NewInt(1_000)); err != nil {
				t.Fatalf("mint: %v", err)
			}
		}
		if err := env.engine.SetCollateralParams(types.RootOrigin(), "DOT", standardParams(big.NewInt(10_000))); err != nil {
			t.Fatalf("set params: %v", err)
		}
		env.feed(t, "DOT", common.FixedOne)

		for i := 0; i+2 < len(ops); i += 3 {
			who := actors[int(ops[i]>>4)%len(actors)]
			a, b := ops[i+1], ops[i+2]
			switch ops[i] % 5 {
			case 0, 1:
				_, _ = env.engine.AdjustPosition(who, "DOT", big.NewInt(int64(int8(a))), big.NewInt(int64(int8(b))))
			case 2:
				env.feed(t, "DOT", common.FixedFromRational(int64(a%20)+1, 10))
			case 3:
				_, _ = env.engine.LiquidateUnsafeCDP(actors[int(b)%len(actors)], "DOT")
			case 4:
				_, _ = env.auctions.Bid(who, uint64(a%8), common.FixedFromInt(100))
			}
			assertConserved(t, env, i/3)
		}
	})
}

func assertConserved(t *testing.T, env *testEnv, step int) {
	t.Helper()
	owners, err := env.engine.Ledger().Owners("DOT")
	if err != nil {
		t.Fatalf("step %d: owners: %v", step, err)
	}
	collateral, debit := new(big.Int), new(big.Int)
	for _, owner := range owners {
		pos, err := env.engine.Position("DOT", owner)
		if err != nil {
			t.Fatalf("step %d: position: %v", step, err)
		}
		collateral.Add(collateral, common.Copy(pos.Collateral))
		debit.Add(debit, common.Copy(pos.Debit))
	}
	totals, err := env.engine.Ledger().Totals("DOT")
	if err != nil {
		t.Fatalf("step %d: totals: %v", step, err)
	}
	if totals.Collateral.Cmp(collateral) != 0 || totals.Debit.Cmp(debit) != 0 {
		t.Fatalf("step %d: totals %s/%s, positions sum %s/%s", step, totals.Collateral, totals.Debit, collateral, debit)
	}

	custody, err := env.treasury.Custody("DOT")
	if err != nil {
		t.Fatalf("step %d: custody: %v", step, err)
	}
	locked, err := env.auctions.TotalLocked("DOT")
	if err != nil {
		t.Fatalf("step %d: locked: %v", step, err)
	}
	held := new(big.Int).Add(collateral, locked)
	if reserved := custody.Reserved(); reserved.Cmp(held) != 0 {
		t.Fatalf("step %d: treasury reserves %s, positions and auctions hold %s", step, reserved, held)
	}
	account, err := env.mgr.Balance(env.treasury.Account(), "DOT")
	if err != nil {
		t.Fatalf("step %d: treasury balance: %v", step, err)
	}
	if account.Cmp(custody.Total) != 0 {
		t.Fatalf("step %d: treasury account holds %s, custody total %s", step, account, custody.Total)
	}

	issuance, err := env.mgr.TotalIssuance("USD")
	if err != nil {
		t.Fatalf("step %d: issuance: %v", step, err)
	}
	pool, err := env.treasury.DebitPool()
	if err != nil {
		t.Fatalf("step %d: debit pool: %v", step, err)
	}
	owed, err := env.engine.DebitValue("DOT", debit)
	if err != nil {
		t.Fatalf("step %d: debit value: %v", step, err)
	}
	if want := new(big.Int).Add(owed, pool); issuance.Cmp(want) != 0 {
		t.Fatalf("step %d: stable issuance %s, debit %s plus debit pool %s", step, issuance, owed, pool)
	}
}
