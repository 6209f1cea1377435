package state

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"cdpchain/core/types"
	"cdpchain/crypto"
)

var (
	// ErrInsufficientBalance is returned when a debit exceeds the available
	// balance.
	ErrInsufficientBalance = errors.New("state: insufficient balance")
	// ErrUnknownToken is returned for operations on unregistered assets.
	ErrUnknownToken = errors.New("state: unknown token")
	// ErrBalanceOverflow is returned when a balance or the total issuance
	// would exceed the u128 range.
	ErrBalanceOverflow = errors.New("state: balance overflow")
	// ErrInvalidAmount flags nil or negative amounts.
	ErrInvalidAmount = errors.New("state: invalid amount")
)

var maxBalance = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// TokenMetadata describes a registered asset.
type TokenMetadata struct {
	Symbol   string
	Name     string
	Decimals uint8
}

var (
	tokenPrefix   = "token/"
	tokenListKey  = []byte("token-list")
	balancePrefix = "balance/"
	supplyPrefix  = "supply/"
)

func tokenMetadataKey(asset types.AssetID) []byte {
	return []byte(tokenPrefix + string(asset))
}

func balanceKey(addr crypto.Address, asset types.AssetID) []byte {
	return append([]byte(balancePrefix+string(asset)+"/"), addr.Bytes()...)
}

func supplyKey(asset types.AssetID) []byte {
	return []byte(supplyPrefix + string(asset))
}

// RegisterToken records metadata for a new asset. Registering an existing
// asset fails.
func (m *Manager) RegisterToken(symbol, name string, decimals uint8) error {
	asset := types.NormalizeAsset(symbol)
	if asset == "" {
		return fmt.Errorf("token symbol must not be empty")
	}
	if m.TokenExists(string(asset)) {
		return fmt.Errorf("token %s already registered", asset)
	}
	meta := TokenMetadata{Symbol: string(asset), Name: strings.TrimSpace(name), Decimals: decimals}
	if err := m.KVPut(tokenMetadataKey(asset), &meta); err != nil {
		return err
	}
	return m.KVAppend(tokenListKey, []byte(asset))
}

// Token returns the metadata for symbol or nil when it is not registered.
func (m *Manager) Token(symbol string) (*TokenMetadata, error) {
	asset := types.NormalizeAsset(symbol)
	if asset == "" {
		return nil, nil
	}
	var meta TokenMetadata
	ok, err := m.KVGet(tokenMetadataKey(asset), &meta)
	if err != nil || !ok {
		return nil, err
	}
	return &meta, nil
}

// TokenExists reports whether the provided token symbol is registered.
func (m *Manager) TokenExists(symbol string) bool {
	asset := types.NormalizeAsset(symbol)
	if asset == "" {
		return false
	}
	ok, err := m.KVGet(tokenMetadataKey(asset), nil)
	return err == nil && ok
}

// TokenList returns registered symbols in registration order.
func (m *Manager) TokenList() ([]string, error) {
	var raw [][]byte
	if err := m.KVGetList(tokenListKey, &raw); err != nil {
		return nil, err
	}
	out := make([]string, len(raw))
	for i, entry := range raw {
		out[i] = string(entry)
	}
	return out, nil
}

func (m *Manager) loadAmount(key []byte) (*big.Int, error) {
	value := new(big.Int)
	if _, err := m.KVGet(key, value); err != nil {
		return nil, err
	}
	return value, nil
}

func (m *Manager) storeAmount(key []byte, value *big.Int) error {
	if value.Sign() == 0 {
		return m.KVDelete(key)
	}
	return m.KVPut(key, value)
}

func (m *Manager) requireToken(asset types.AssetID) (types.AssetID, error) {
	normalized := types.NormalizeAsset(string(asset))
	if !m.TokenExists(string(normalized)) {
		return "", fmt.Errorf("%w: %s", ErrUnknownToken, asset)
	}
	return normalized, nil
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Balance returns the balance of addr in asset. Unknown assets have zero
// balances.
func (m *Manager) Balance(addr crypto.Address, asset types.AssetID) (*big.Int, error) {
	return m.loadAmount(balanceKey(addr, types.NormalizeAsset(string(asset))))
}

// TotalIssuance returns the total supply of asset.
func (m *Manager) TotalIssuance(asset types.AssetID) (*big.Int, error) {
	return m.loadAmount(supplyKey(types.NormalizeAsset(string(asset))))
}

// Mint credits amount of asset to addr and increases the total issuance.
func (m *Manager) Mint(addr crypto.Address, asset types.AssetID, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	asset, err := m.requireToken(asset)
	if err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	supply, err := m.TotalIssuance(asset)
	if err != nil {
		return err
	}
	supply.Add(supply, amount)
	if supply.Cmp(maxBalance) > 0 {
		return ErrBalanceOverflow
	}
	balance, err := m.Balance(addr, asset)
	if err != nil {
		return err
	}
	balance.Add(balance, amount)
	if err := m.storeAmount(balanceKey(addr, asset), balance); err != nil {
		return err
	}
	return m.storeAmount(supplyKey(asset), supply)
}

// Burn debits amount of asset from addr and decreases the total issuance.
func (m *Manager) Burn(addr crypto.Address, asset types.AssetID, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	asset, err := m.requireToken(asset)
	if err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	balance, err := m.Balance(addr, asset)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s %s, needs %s", ErrInsufficientBalance, addr, balance, asset, amount)
	}
	supply, err := m.TotalIssuance(asset)
	if err != nil {
		return err
	}
	balance.Sub(balance, amount)
	supply.Sub(supply, amount)
	if supply.Sign() < 0 {
		return ErrBalanceOverflow
	}
	if err := m.storeAmount(balanceKey(addr, asset), balance); err != nil {
		return err
	}
	return m.storeAmount(supplyKey(asset), supply)
}

// Transfer moves amount of asset from one account to another.
func (m *Manager) Transfer(from, to crypto.Address, asset types.AssetID, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	asset, err := m.requireToken(asset)
	if err != nil {
		return err
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	fromBalance, err := m.Balance(from, asset)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s %s, needs %s", ErrInsufficientBalance, from, fromBalance, asset, amount)
	}
	toBalance, err := m.Balance(to, asset)
	if err != nil {
		return err
	}
	fromBalance.Sub(fromBalance, amount)
	toBalance.Add(toBalance, amount)
	if err := m.storeAmount(balanceKey(from, asset), fromBalance); err != nil {
		return err
	}
	return m.storeAmount(balanceKey(to, asset), toBalance)
}
