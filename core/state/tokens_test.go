package state

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"cdpchain/crypto"
)

func addr(b byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[crypto.AddressLength-1] = b
	return crypto.NewAddress(raw)
}

func TestLedgerMintTransferBurn(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.RegisterToken("usd", "US Dollar", 18))
	require.True(t, mgr.TokenExists("USD"))
	require.Error(t, mgr.RegisterToken("USD", "dup", 18))

	alice, bob := addr(1), addr(2)
	require.NoError(t, mgr.Mint(alice, "USD", big.NewInt(100)))
	require.NoError(t, mgr.Transfer(alice, bob, "usd", big.NewInt(40)))
	require.NoError(t, mgr.Burn(bob, "USD", big.NewInt(10)))

	balance, err := mgr.Balance(alice, "USD")
	require.NoError(t, err)
	require.Equal(t, int64(60), balance.Int64())
	balance, err = mgr.Balance(bob, "USD")
	require.NoError(t, err)
	require.Equal(t, int64(30), balance.Int64())
	supply, err := mgr.TotalIssuance("USD")
	require.NoError(t, err)
	require.Equal(t, int64(90), supply.Int64())

	err = mgr.Transfer(bob, alice, "USD", big.NewInt(31))
	require.True(t, errors.Is(err, ErrInsufficientBalance))
	err = mgr.Mint(alice, "DOT", big.NewInt(1))
	require.True(t, errors.Is(err, ErrUnknownToken))
	err = mgr.Mint(alice, "USD", big.NewInt(-1))
	require.True(t, errors.Is(err, ErrInvalidAmount))

	symbols, err := mgr.TokenList()
	require.NoError(t, err)
	require.Equal(t, []string{"USD"}, symbols)
}

func TestLedgerRejectsU128Overflow(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.RegisterToken("USD", "US Dollar", 18))
	require.NoError(t, mgr.Mint(addr(1), "USD", maxBalance))
	err := mgr.Mint(addr(2), "USD", big.NewInt(1))
	require.True(t, errors.Is(err, ErrBalanceOverflow))
}

func TestRoles(t *testing.T) {
	mgr, _ := newTestManager(t)
	gov := addr(9)
	require.False(t, mgr.HasRole("governance", gov))
	require.NoError(t, mgr.SetRole("governance", gov))
	require.True(t, mgr.HasRole("governance", gov))
	members, err := mgr.RoleMembers("governance")
	require.NoError(t, err)
	require.Equal(t, []crypto.Address{gov}, members)
	require.NoError(t, mgr.RemoveRole("governance", gov))
	require.False(t, mgr.HasRole("governance", gov))
}
