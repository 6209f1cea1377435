package events

import (
	"math/big"
	"strings"

	"cdpchain/core/types"
	"cdpchain/crypto"
)

func normalizeAsset(asset types.AssetID) string {
	trimmed := strings.TrimSpace(string(asset))
	if trimmed == "" {
		return ""
	}
	return string(types.NormalizeAsset(trimmed))
}

func formatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

func formatAddress(addr crypto.Address) string {
	if addr.IsZero() {
		return ""
	}
	return addr.String()
}

func formatPath(path []types.AssetID) string {
	parts := make([]string, 0, len(path))
	for _, asset := range path {
		parts = append(parts, normalizeAsset(asset))
	}
	return strings.Join(parts, ",")
}
