package types

import (
	"strings"
)

// AssetID names a fungible asset tracked by the ledger ("USD", "DOT", or an LP
// share asset such as "LP:DOT-USD").
type AssetID string

// LPSharePrefix marks assets minted by the liquidity pools.
const LPSharePrefix = "LP:"

// NormalizeAsset trims and upper-cases an asset symbol.
func NormalizeAsset(symbol string) AssetID {
	trimmed := strings.TrimSpace(symbol)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToUpper(trimmed), LPSharePrefix) {
		return AssetID(LPSharePrefix + strings.ToUpper(trimmed[len(LPSharePrefix):]))
	}
	return AssetID(strings.ToUpper(trimmed))
}

func (a AssetID) String() string { return string(a) }

// IsShare reports whether the asset is an LP share token.
func (a AssetID) IsShare() bool { return strings.HasPrefix(string(a), LPSharePrefix) }

// TradingPair is an unordered pair of distinct assets stored in canonical
// (sorted) order.
type TradingPair struct {
	A AssetID
	B AssetID
}

// NewTradingPair canonicalises x and y. The boolean is false when the assets
// are identical, empty, or share tokens.
func NewTradingPair(x, y AssetID) (TradingPair, bool) {
	x, y = NormalizeAsset(string(x)), NormalizeAsset(string(y))
	if x == "" || y == "" || x == y || x.IsShare() || y.IsShare() {
		return TradingPair{}, false
	}
	if x > y {
		x, y = y, x
	}
	return TradingPair{A: x, B: y}, true
}

// ShareAsset returns the LP share asset of the pair.
func (p TradingPair) ShareAsset() AssetID {
	return AssetID(LPSharePrefix + string(p.A) + "-" + string(p.B))
}

func (p TradingPair) String() string { return string(p.A) + "/" + string(p.B) }

// Contains reports whether asset is one side of the pair.
func (p TradingPair) Contains(asset AssetID) bool {
	return asset == p.A || asset == p.B
}
