// Package sink publishes pipeline output. All sinks share one key
// normalization so the same signal never forks into two rows across
// backends.
package sink

import (
	"fmt"
	"strings"
)

// NormalizeAddress lowercases EVM-style addresses and strips a leading
// apostrophe left behind by spreadsheet text-coercion.
func NormalizeAddress(address string) string {
	address = strings.TrimPrefix(strings.TrimSpace(address), "'")
	if strings.HasPrefix(address, "0x") || strings.HasPrefix(address, "0X") {
		return strings.ToLower(address)
	}
	return address
}

// NormalizeSymbol uppercases and trims a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(symbol), "'"))
}

// FormatPrice renders a USD price at precision scaled to its magnitude:
// 12 decimals below 1e-6, 8 below 0.01, 6 otherwise. Fixed-point output
// keeps spreadsheet backends from flipping into scientific notation.
func FormatPrice(price float64) string {
	abs := price
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs > 0 && abs < 1e-6:
		return fmt.Sprintf("%.12f", price)
	case abs < 0.01:
		return fmt.Sprintf("%.8f", price)
	default:
		return fmt.Sprintf("%.6f", price)
	}
}

// CompositeKey identifies one signal across re-publishes: the normalized
// address joined with the first message that mentioned it.
func CompositeKey(address, firstMessageID string) string {
	return NormalizeAddress(address) + "|" + firstMessageID
}
