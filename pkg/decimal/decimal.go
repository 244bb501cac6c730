// Package decimal converts between arbitrary-precision integers and the
// base-10 string encoding the store persists them as, so amounts never cap
// at 64 bits.
package decimal

import (
	"fmt"
	"math/big"
)

// Zero is the decimal string for zero, used as a default column value.
const Zero = "0"

// ToString renders n as a base-10 string. A nil n renders as "0".
func ToString(n *big.Int) string {
	if n == nil {
		return Zero
	}
	return n.String()
}

// Parse parses a base-10 string into a big.Int. An empty string parses as
// zero, matching dapp/util.py's str_to_int permissiveness for unset columns.
func Parse(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("decimal: invalid integer %q", s)
	}
	return n, nil
}

// MustParse is Parse but panics on malformed input; only safe for values
// the store itself wrote (column values are never user-supplied strings).
func MustParse(s string) *big.Int {
	n, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return n
}
