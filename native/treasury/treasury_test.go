package treasury

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"cdpchain/core/state"
	"cdpchain/core/types"
	"cdpchain/crypto"
	"cdpchain/native/common"
	"cdpchain/storage"
)

func makeAddress(b byte) crypto.Address {
	return crypto.BytesToAddress([]byte{0xBB, b})
}

func newTestTreasury(t *testing.T) (*Treasury, *state.Manager) {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	require.NoError(t, mgr.RegisterToken("USD", "Stable", 18))
	require.NoError(t, mgr.RegisterToken("DOT", "Collateral", 18))
	return New(mgr, "usd"), mgr
}

func TestDepositWithdrawCollateral(t *testing.T) {
	tr, mgr := newTestTreasury(t)
	alice := makeAddress(1)
	require.NoError(t, mgr.Mint(alice, "DOT", big.NewInt(1_000)))

	require.NoError(t, tr.DepositCollateral(alice, "DOT", big.NewInt(400)))
	total, err := tr.TotalCollaterals("DOT")
	require.NoError(t, err)
	require.Equal(t, int64(400), total.Int64())

	err = tr.WithdrawCollateral(alice, "DOT", big.NewInt(401))
	require.True(t, errors.Is(err, ErrInsufficientBalance))
	require.NoError(t, tr.WithdrawCollateral(alice, "DOT", big.NewInt(150)))

	free, err := tr.FreeCollateral("DOT")
	require.NoError(t, err)
	require.Equal(t, int64(250), free.Int64())
	held, err := mgr.Balance(tr.Account(), "DOT")
	require.NoError(t, err)
	require.Equal(t, int64(250), held.Int64())
}

func TestReservedCollateralIsNotWithdrawable(t *testing.T) {
	tr, mgr := newTestTreasury(t)
	alice := makeAddress(1)
	require.NoError(t, mgr.Mint(alice, "DOT", big.NewInt(100)))
	require.NoError(t, tr.PledgeCollateral(alice, "DOT", big.NewInt(100)))

	err := tr.WithdrawCollateral(alice, "DOT", big.NewInt(1))
	require.True(t, errors.Is(err, ErrInsufficientBalance))

	require.NoError(t, tr.ConfiscateCollateral("DOT", big.NewInt(30)))
	custody, err := tr.Custody("DOT")
	require.NoError(t, err)
	require.Equal(t, int64(100), custody.Total.Int64())
	require.Equal(t, int64(30), custody.Free.Int64())
	require.Equal(t, int64(70), custody.Reserved().Int64())

	err = tr.ReleaseCollateral(alice, "DOT", big.NewInt(71))
	require.True(t, errors.Is(err, ErrInsufficientBalance))
	require.NoError(t, tr.ReleaseCollateral(alice, "DOT", big.NewInt(70)))
}

func TestIssueDebitTracksUnbackedDebt(t *testing.T) {
	tr, mgr := newTestTreasury(t)
	alice := makeAddress(1)

	require.NoError(t, tr.IssueDebit(alice, big.NewInt(100), true))
	require.NoError(t, tr.IssueDebit(alice, big.NewInt(40), false))

	pool, err := tr.DebitPool()
	require.NoError(t, err)
	require.Equal(t, int64(40), pool.Int64())
	balance, err := mgr.Balance(alice, "USD")
	require.NoError(t, err)
	require.Equal(t, int64(140), balance.Int64())

	err = tr.RepayDebit(alice, big.NewInt(141))
	require.True(t, errors.Is(err, ErrInsufficientBalance))
}

func TestBurnDebitOffsetsPoolThenSurplus(t *testing.T) {
	tr, _ := newTestTreasury(t)
	require.NoError(t, tr.AddDebit(big.NewInt(100)))
	require.NoError(t, tr.AddSurplus(big.NewInt(150)))

	err := tr.BurnDebit(big.NewInt(151))
	require.True(t, errors.Is(err, common.ErrArithmetic))

	require.NoError(t, tr.BurnDebit(big.NewInt(120)))
	pool, err := tr.DebitPool()
	require.NoError(t, err)
	require.Zero(t, pool.Sign())
	surplus, err := tr.SurplusPool()
	require.NoError(t, err)
	require.Equal(t, int64(30), surplus.Int64())
}

func TestOffsetSurplusAndDebit(t *testing.T) {
	tr, _ := newTestTreasury(t)
	require.NoError(t, tr.AddDebit(big.NewInt(100)))
	require.NoError(t, tr.AddSurplus(big.NewInt(60)))

	offset, err := tr.OffsetSurplusAndDebit()
	require.NoError(t, err)
	require.Equal(t, int64(60), offset.Int64())
	pool, _ := tr.DebitPool()
	surplus, _ := tr.SurplusPool()
	require.Equal(t, int64(40), pool.Int64())
	require.Zero(t, surplus.Sign())
}

type fakeSwapper struct {
	mgr    *state.Manager
	rate   int64
	failed bool
}

func (f *fakeSwapper) GetSwapSupplyAmount(path []types.AssetID, target *big.Int) (*big.Int, error) {
	return new(big.Int).Div(target, big.NewInt(f.rate)), nil
}

func (f *fakeSwapper) SwapWithExactTarget(who crypto.Address, path []types.AssetID, target, maxSupply *big.Int) (*big.Int, error) {
	if f.failed {
		return nil, errors.New("pool unavailable")
	}
	supply := new(big.Int).Div(target, big.NewInt(f.rate))
	pool := crypto.ModuleAddress("test-pool")
	if err := f.mgr.Transfer(who, pool, path[0], supply); err != nil {
		return nil, err
	}
	if err := f.mgr.Mint(who, path[len(path)-1], target); err != nil {
		return nil, err
	}
	return supply, nil
}

func TestSwapCollateralForExactStable(t *testing.T) {
	tr, mgr := newTestTreasury(t)
	alice := makeAddress(1)
	require.NoError(t, mgr.Mint(alice, "DOT", big.NewInt(100)))
	require.NoError(t, tr.PledgeCollateral(alice, "DOT", big.NewInt(100)))

	swapper := &fakeSwapper{mgr: mgr, rate: 10}
	tr.SetDEX(swapper)

	supplied, err := tr.SwapCollateralForExactStable("DOT", big.NewInt(100), big.NewInt(600))
	require.NoError(t, err)
	require.Equal(t, int64(60), supplied.Int64())
	total, _ := tr.TotalCollaterals("DOT")
	require.Equal(t, int64(40), total.Int64())
	surplus, _ := tr.SurplusPool()
	require.Equal(t, int64(600), surplus.Int64())

	swapper.failed = true
	_, err = tr.SwapCollateralForExactStable("DOT", big.NewInt(40), big.NewInt(10))
	require.Error(t, err)
	total, _ = tr.TotalCollaterals("DOT")
	require.Equal(t, int64(40), total.Int64())
}
