package dex

import (
	"errors"
	"math/big"
	"testing"

	"cdpchain/core/types"
)

// FuzzSwapInvariant checks that the constant product of a pool never drops
// across a swap and that a swap whose output falls short of the caller's
// bound leaves reserves and balances untouched.
func FuzzSwapInvariant(f *testing.F) {
	f.Add(uint32(10_000_000), uint32(10_000), uint32(1_000), false, false)
	f.Add(uint32(5_000), uint32(400_000), uint32(99_999), true, false)
	f.Add(uint32(1), uint32(1), uint32(1), false, true)
	f.Add(uint32(250_000_000), uint32(300_000), uint32(123_456), true, true)
	f.Fuzz(func(t *testing.T, usd, dot, amount uint32, sellDot, exactTarget bool) {
		env := newTestEnv(t)
		usdReserve := big.NewInt(1 + int64(usd)%500_000_000)
		dotReserve := big.NewInt(1 + int64(dot)%500_000)
		if _, err := env.engine.AddLiquidity(env.alice, "USD", "DOT", usdReserve, dotReserve, nil, false); err != nil {
			t.Fatalf("seed pool: %v", err)
		}
		path := []types.AssetID{"USD", "DOT"}
		if sellDot {
			path = []types.AssetID{"DOT", "USD"}
		}
		value := big.NewInt(1 + int64(amount)%500_000)

		before := env.poolProduct(t)
		snapshot := env.snapshot(t)

		if exactTarget {
			quote, err := env.engine.GetSwapSupplyAmount(path, value)
			if err != nil {
				if _, swapErr := env.engine.SwapWithExactTarget(env.bob, path, value, big.NewInt(1_000_000)); swapErr == nil {
					t.Fatalf("swap succeeded although quote failed: %v", err)
				}
				env.requireUnchanged(t, snapshot)
				return
			}
			short := new(big.Int).Sub(quote, big.NewInt(1))
			if _, err := env.engine.SwapWithExactTarget(env.bob, path, value, short); !errors.Is(err, ErrExcessiveSupplyAmount) {
				t.Fatalf("expected excessive supply error with max %s, got %v", short, err)
			}
			env.requireUnchanged(t, snapshot)
			if _, err := env.engine.SwapWithExactTarget(env.bob, path, value, quote); err != nil {
				// bob cannot always afford the quote
				env.requireUnchanged(t, snapshot)
				return
			}
		} else {
			quote, err := env.engine.GetSwapTargetAmount(path, value)
			if err != nil {
				if _, swapErr := env.engine.SwapWithExactSupply(env.bob, path, value, nil); swapErr == nil {
					t.Fatalf("swap succeeded although quote failed: %v", err)
				}
				env.requireUnchanged(t, snapshot)
				return
			}
			short := new(big.Int).Add(quote, big.NewInt(1))
			if _, err := env.engine.SwapWithExactSupply(env.bob, path, value, short); !errors.Is(err, ErrBelowMinimumOutput) {
				t.Fatalf("expected minimum output error with min %s, got %v", short, err)
			}
			env.requireUnchanged(t, snapshot)
			got, err := env.engine.SwapWithExactSupply(env.bob, path, value, quote)
			if err != nil {
				t.Fatalf("swap %s along %v: %v", value, path, err)
			}
			if got.Cmp(quote) != 0 {
				t.Fatalf("swap returned %s, quoted %s", got, quote)
			}
		}

		if after := env.poolProduct(t); after.Cmp(before) < 0 {
			t.Fatalf("pool product fell from %s to %s", before, after)
		}
	})
}

type swapSnapshot struct {
	usdPool, dotPool *big.Int
	bobUSD, bobDOT   *big.Int
}

func (env *testEnv) poolProduct(t *testing.T) *big.Int {
	t.Helper()
	usdPool, dotPool, err := env.engine.GetLiquidityPool("USD", "DOT")
	if err != nil {
		t.Fatalf("load pool: %v", err)
	}
	return new(big.Int).Mul(usdPool, dotPool)
}

func (env *testEnv) snapshot(t *testing.T) swapSnapshot {
	t.Helper()
	usdPool, dotPool, err := env.engine.GetLiquidityPool("USD", "DOT")
	if err != nil {
		t.Fatalf("load pool: %v", err)
	}
	bobUSD, err := env.mgr.Balance(env.bob, "USD")
	if err != nil {
		t.Fatalf("load balance: %v", err)
	}
	bobDOT, err := env.mgr.Balance(env.bob, "DOT")
	if err != nil {
		t.Fatalf("load balance: %v", err)
	}
	return swapSnapshot{usdPool: usdPool, dotPool: dotPool, bobUSD: bobUSD, bobDOT: bobDOT}
}

func (env *testEnv) requireUnchanged(t *testing.T, want swapSnapshot) {
	t.Helper()
	got := env.snapshot(t)
	if got.usdPool.Cmp(want.usdPool) != 0 || got.dotPool.Cmp(want.dotPool) != 0 {
		t.Fatalf("pool moved to %s/%s from %s/%s", got.usdPool, got.dotPool, want.usdPool, want.dotPool)
	}
	if got.bobUSD.Cmp(want.bobUSD) != 0 || got.bobDOT.Cmp(want.bobDOT) != 0 {
		t.Fatalf("balances moved to %s/%s from %s/%s", got.bobUSD, got.bobDOT, want.bobUSD, want.bobDOT)
	}
}
