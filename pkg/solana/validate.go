// Package solana provides lightweight Solana address validation.
package solana

import "github.com/btcsuite/btcd/btcutil/base58"

const (
	minAddressLen = 32
	maxAddressLen = 44
	pubkeyBytes   = 32
)

// IsValidAddress reports whether s is a plausible Solana account address:
// base58 text of 32-44 characters decoding to a 32-byte public key.
func IsValidAddress(s string) bool {
	if len(s) < minAddressLen || len(s) > maxAddressLen {
		return false
	}
	decoded := base58.Decode(s)
	return len(decoded) == pubkeyBytes
}
