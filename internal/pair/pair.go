// Package pair implements the LP token of a two-token constant-product
// pool: a Token (its own balance kernel) plus knowledge of its two
// underlying, lexicographically-ordered reserve tokens.
package pair

import (
	"math/big"

	"github.com/streamdex/engine/internal/store"
	"github.com/streamdex/engine/internal/token"
	"github.com/streamdex/engine/pkg/address"
)

// Pair is a StreamableToken (its LP token) plus its two underlying tokens,
// token0 always sorting before token1.
type Pair struct {
	*token.Token
	Token0 address.Address
	Token1 address.Address
}

// New returns a Pair kernel for an already-registered pair address.
func New(pairAddr, token0, token1 address.Address, hook token.Hook) *Pair {
	return &Pair{
		Token:  token.New(pairAddr, hook),
		Token0: token0,
		Token1: token1,
	}
}

// Tokens returns the ordered underlying pair (token0, token1).
func (p *Pair) Tokens() (address.Address, address.Address) {
	return p.Token0, p.Token1
}

// Reserves returns the pair's balances of (token0, token1) at time at —
// the pair address's own effective balance of each underlying token, since
// reserves are just what the pair holds.
func (p *Pair) Reserves(tx *store.Tx, tok0Kernel, tok1Kernel *token.Token, at int64) (*big.Int, *big.Int, error) {
	r0, err := tok0Kernel.EffectiveBalance(tx, p.Address, at)
	if err != nil {
		return nil, nil, err
	}
	r1, err := tok1Kernel.EffectiveBalance(tx, p.Address, at)
	if err != nil {
		return nil, nil, err
	}
	return r0, r1, nil
}
