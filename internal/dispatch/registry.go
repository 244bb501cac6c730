package dispatch

import (
	"github.com/streamdex/engine/internal/pair"
	"github.com/streamdex/engine/internal/store"
	"github.com/streamdex/engine/internal/token"
	"github.com/streamdex/engine/pkg/address"
)

// registry resolves token and pair addresses to freshly-constructed kernels
// bound to the same hook, registering new tokens/pairs with Store as they
// are first referenced. It satisfies both amm.Registry and hook.Registry.
type registry struct {
	hook token.Hook
}

func newRegistry(hook token.Hook) *registry {
	return &registry{hook: hook}
}

// Token returns a balance kernel for addr, registering it as a token if
// this is its first reference.
func (r *registry) Token(tx *store.Tx, addr address.Address) (*token.Token, error) {
	if err := tx.UpsertToken(addr); err != nil {
		return nil, err
	}
	return token.New(addr, r.hook), nil
}

// Pair returns a Pair kernel for the unordered (tokenA, tokenB), deriving
// its deterministic address, registering it (and its LP token row) if this
// is its first reference, and registering both underlying tokens.
func (r *registry) Pair(tx *store.Tx, tokenA, tokenB address.Address) (*pair.Pair, error) {
	t0, t1 := address.Sort(tokenA, tokenB)
	pairAddr := address.Pair(tokenA, tokenB)

	if _, err := r.Token(tx, t0); err != nil {
		return nil, err
	}
	if _, err := r.Token(tx, t1); err != nil {
		return nil, err
	}
	if err := tx.UpsertToken(pairAddr); err != nil {
		return nil, err
	}
	if err := tx.UpsertPair(pairAddr, t0, t1); err != nil {
		return nil, err
	}

	return pair.New(pairAddr, t0, t1, r.hook), nil
}
