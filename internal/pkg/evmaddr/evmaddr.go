// Package evmaddr validates and normalizes EVM account/contract addresses.
package evmaddr

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Native is the pseudo-address used by wallet APIs for the chain's native
// currency (BNB on BSC). It has no contract behind it.
const Native = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"

// Valid reports whether s is a 0x-prefixed, 40 hex digit address.
func Valid(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

// Normalize lowercases and trims an address. Persisted rows are keyed by
// the normalized form.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsNative reports whether s is the native pseudo-address.
func IsNative(s string) bool {
	return Normalize(s) == Native
}

// Parse validates s and converts it to a go-ethereum address.
func Parse(s string) (common.Address, error) {
	if !Valid(s) {
		return common.Address{}, fmt.Errorf("invalid EVM address %q", s)
	}
	return common.HexToAddress(strings.TrimSpace(s)), nil
}
