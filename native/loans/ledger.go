package loans

import (
	"errors"
	"fmt"
	"math/big"

	"cdpchain/core/types"
	"cdpchain/crypto"
	"cdpchain/native/common"
)

var (
	errNilState = errors.New("loans: state not configured")
	// ErrUnderflow is returned when a delta would drive a position field
	// negative.
	ErrUnderflow = errors.New("loans: position underflow")
)

// engineState captures the key/value surface the ledger persists through.
type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	KVAppend(key []byte, value []byte) error
	KVRemove(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

// Position is the debt and collateral of one owner in one collateral asset.
// Debit is denominated in debit units; its stable value depends on the
// collateral's debit exchange rate.
type Position struct {
	Debit      *big.Int
	Collateral *big.Int
}

// IsEmpty reports whether both fields are zero.
func (p Position) IsEmpty() bool {
	return (p.Debit == nil || p.Debit.Sign() == 0) && (p.Collateral == nil || p.Collateral.Sign() == 0)
}

// Clone returns a deep copy of the position.
func (p Position) Clone() Position {
	return Position{Debit: common.Copy(p.Debit), Collateral: common.Copy(p.Collateral)}
}

// Totals aggregates every position of a collateral asset.
type Totals struct {
	Debit      *big.Int
	Collateral *big.Int
}

type storedPosition struct {
	Debit      *big.Int
	Collateral *big.Int
}

func positionKey(asset types.AssetID, owner crypto.Address) []byte {
	return append([]byte("loans/position/"+string(asset)+"/"), owner.Bytes()...)
}

func totalsKey(asset types.AssetID) []byte {
	return []byte("loans/totals/" + string(asset))
}

func ownersKey(asset types.AssetID) []byte {
	return []byte("loans/owners/" + string(asset))
}

// Ledger records positions per (collateral asset, owner).
type Ledger struct {
	state engineState
}

// NewLedger constructs a ledger bound to state.
func NewLedger(state engineState) *Ledger {
	return &Ledger{state: state}
}

// Position returns the position of owner, or a zero position.
func (l *Ledger) Position(asset types.AssetID, owner crypto.Address) (Position, error) {
	if l == nil || l.state == nil {
		return Position{}, errNilState
	}
	var stored storedPosition
	ok, err := l.state.KVGet(positionKey(asset, owner), &stored)
	if err != nil {
		return Position{}, fmt.Errorf("loans: load position: %w", err)
	}
	if !ok {
		return Position{Debit: big.NewInt(0), Collateral: big.NewInt(0)}, nil
	}
	return Position{Debit: common.Copy(stored.Debit), Collateral: common.Copy(stored.Collateral)}, nil
}

// Totals returns the aggregate debit units and collateral for asset.
func (l *Ledger) Totals(asset types.AssetID) (Totals, error) {
	if l == nil || l.state == nil {
		return Totals{}, errNilState
	}
	var stored storedPosition
	if _, err := l.state.KVGet(totalsKey(asset), &stored); err != nil {
		return Totals{}, fmt.Errorf("loans: load totals: %w", err)
	}
	return Totals{Debit: common.Copy(stored.Debit), Collateral: common.Copy(stored.Collateral)}, nil
}

// Owners lists accounts with an open position in asset, oldest first.
func (l *Ledger) Owners(asset types.AssetID) ([]crypto.Address, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	var raw [][]byte
	if err := l.state.KVGetList(ownersKey(asset), &raw); err != nil {
		return nil, fmt.Errorf("loans: load owners: %w", err)
	}
	owners := make([]crypto.Address, 0, len(raw))
	for _, entry := range raw {
		owners = append(owners, crypto.BytesToAddress(entry))
	}
	return owners, nil
}

// Update applies signed deltas to the position of owner and returns the new
// position. A position reaching zero debit and zero collateral is deleted.
// Nil deltas count as zero.
func (l *Ledger) Update(asset types.AssetID, owner crypto.Address, debitDelta, collateralDelta *big.Int) (Position, error) {
	if l == nil || l.state == nil {
		return Position{}, errNilState
	}
	if owner.IsZero() {
		return Position{}, fmt.Errorf("loans: owner must not be empty")
	}
	debitDelta = common.Copy(debitDelta)
	collateralDelta = common.Copy(collateralDelta)

	current, err := l.Position(asset, owner)
	if err != nil {
		return Position{}, err
	}
	next := Position{
		Debit:      new(big.Int).Add(current.Debit, debitDelta),
		Collateral: new(big.Int).Add(current.Collateral, collateralDelta),
	}
	if next.Debit.Sign() < 0 || next.Collateral.Sign() < 0 {
		return Position{}, ErrUnderflow
	}
	if common.CheckU128(next.Debit) != nil || common.CheckU128(next.Collateral) != nil {
		return Position{}, common.ErrArithmetic
	}

	totals, err := l.Totals(asset)
	if err != nil {
		return Position{}, err
	}
	totals.Debit.Add(totals.Debit, debitDelta)
	totals.Collateral.Add(totals.Collateral, collateralDelta)
	if totals.Debit.Sign() < 0 || totals.Collateral.Sign() < 0 {
		return Position{}, common.ErrArithmetic
	}
	if common.CheckU128(totals.Debit) != nil || common.CheckU128(totals.Collateral) != nil {
		return Position{}, common.ErrArithmetic
	}

	key := positionKey(asset, owner)
	if next.IsEmpty() {
		if err := l.state.KVDelete(key); err != nil {
			return Position{}, err
		}
		if err := l.state.KVRemove(ownersKey(asset), owner.Bytes()); err != nil {
			return Position{}, err
		}
	} else {
		if err := l.state.KVPut(key, &storedPosition{Debit: next.Debit, Collateral: next.Collateral}); err != nil {
			return Position{}, err
		}
		if current.IsEmpty() {
			if err := l.state.KVAppend(ownersKey(asset), owner.Bytes()); err != nil {
				return Position{}, err
			}
		}
	}
	if err := l.state.KVPut(totalsKey(asset), &storedPosition{Debit: totals.Debit, Collateral: totals.Collateral}); err != nil {
		return Position{}, err
	}
	return next.Clone(), nil
}
