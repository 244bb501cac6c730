// Package address provides the engine's canonical account/token identifier:
// a 20-byte address normalised to its EIP-55 checksummed string form.
package address

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidAddress is returned when a string is not a well-formed 20-byte
// hex address ("0x" followed by 40 hex digits). Casing is never rejected —
// Parse normalises to the EIP-55 checksum rather than requiring the caller
// to have produced it already, matching eth_utils.to_checksum_address.
var ErrInvalidAddress = errors.New("address: invalid address")

// Address is a 20-byte account/token identifier. The zero value is the
// canonical ZERO_ADDRESS used for permanently locked liquidity and burn
// destinations.
type Address = common.Address

// Zero is the canonical burn/lock destination.
var Zero = Address{}

// Parse normalises s to a checksummed Address. It accepts any casing.
func Parse(s string) (Address, error) {
	if !common.IsHexAddress(s) {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// String returns the EIP-55 checksummed string form.
func String(a Address) string {
	return a.Hex()
}

// Less reports whether a sorts before b under lexicographic comparison of
// their checksummed string forms, which is the ordering spec.md §3 requires
// for token0/token1 assignment.
func Less(a, b Address) bool {
	return a.Hex() < b.Hex()
}

// Sort returns (lesser, greater) of the two addresses under Less.
func Sort(a, b Address) (Address, Address) {
	if Less(a, b) {
		return a, b
	}
	return b, a
}

// Pair derives the deterministic pair address for two distinct tokens:
// SHA-256 of the concatenated checksummed forms of the lexicographically
// sorted pair, keeping the last 20 bytes, re-encoded as a checksummed
// address. Grounded on dapp/util.py's addresses_to_hex/get_pair_address.
func Pair(tokenA, tokenB Address) Address {
	t0, t1 := Sort(tokenA, tokenB)
	sum := sha256.Sum256([]byte(t0.Hex() + t1.Hex()))
	var raw [20]byte
	copy(raw[:], sum[len(sum)-20:])
	return Address(raw)
}
