// Package amm implements the constant-product automated market maker:
// add_liquidity, remove_liquidity and swap_exact_tokens_for_tokens as a
// stateless façade over the pair and token kernels, all mutations going
// through one Store transaction.
package amm

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/streamdex/engine/internal/pair"
	"github.com/streamdex/engine/internal/store"
	"github.com/streamdex/engine/internal/token"
	"github.com/streamdex/engine/pkg/address"
)

// MinimumLiquidity is permanently locked to the zero address on a pair's
// first deposit, following the standard constant-product design that
// guarantees a pair's share price can never collapse to a degenerate
// fraction.
var MinimumLiquidity = big.NewInt(100000)

// UserFeesBps is the swap fee in thousandths (0 = no fee). A non-zero value
// would be threaded through GetAmountOut; dynamic fee curves are out of
// scope (spec.md §1 Non-goals), so this is a fixed constant rather than a
// per-pair configurable.
var UserFeesBps = big.NewInt(0)

var (
	// ErrInvalidArgument covers mismatched path length and below-minimum
	// amounts requested by the caller.
	ErrInvalidArgument = errors.New("amm: invalid argument")
	// ErrInvariantViolation covers a failed k-check or non-positive
	// liquidity minted/burned.
	ErrInvariantViolation = errors.New("amm: invariant violation")
)

// Registry resolves a token address to its kernel, and a pair's two
// underlying tokens to their ordered (address, address) pair address,
// registering both with Store as needed. internal/dispatch supplies the
// concrete implementation (backed by token.New and address.Pair).
type Registry interface {
	Token(tx *store.Tx, addr address.Address) (*token.Token, error)
	Pair(tx *store.Tx, tokenA, tokenB address.Address) (*pair.Pair, error)
}

// AMM is a stateless façade; all state lives in Store.
type AMM struct {
	Registry Registry
}

// New returns an AMM façade using reg to resolve token and pair kernels.
func New(reg Registry) *AMM {
	return &AMM{Registry: reg}
}

// GetAmountOut computes the constant-product output for an exact input x
// against reserves (rIn, rOut), after UserFeesBps fee: x' = x*(1000-fee),
// out = floor(x' * rOut / (rIn*1000 + x')).
func GetAmountOut(x, rIn, rOut *big.Int) (*big.Int, error) {
	if x.Sign() <= 0 {
		return nil, fmt.Errorf("%w: input amount must be positive, got %s", ErrInvalidArgument, x)
	}
	if rIn.Sign() <= 0 || rOut.Sign() <= 0 {
		return nil, fmt.Errorf("%w: reserves must be positive (rIn=%s, rOut=%s)", ErrInvalidArgument, rIn, rOut)
	}

	thousand := big.NewInt(1000)
	xPrime := new(big.Int).Mul(x, new(big.Int).Sub(thousand, UserFeesBps))
	num := new(big.Int).Mul(xPrime, rOut)
	den := new(big.Int).Add(new(big.Int).Mul(rIn, thousand), xPrime)
	return num.Div(num, den), nil
}

// Quote returns the amount of the other reserve equivalent to amountA given
// reserves (reserveA, reserveB): floor(amountA * reserveB / reserveA).
func Quote(amountA, reserveA, reserveB *big.Int) (*big.Int, error) {
	if amountA.Sign() <= 0 {
		return nil, fmt.Errorf("%w: quote amount must be positive, got %s", ErrInvalidArgument, amountA)
	}
	if reserveA.Sign() <= 0 || reserveB.Sign() <= 0 {
		return nil, fmt.Errorf("%w: reserves must be positive", ErrInvalidArgument)
	}
	num := new(big.Int).Mul(amountA, reserveB)
	return num.Div(num, reserveA), nil
}

// sqrt returns floor(sqrt(n)) for n >= 0, via big.Int's built-in integer
// square root.
func sqrt(n *big.Int) *big.Int {
	return new(big.Int).Sqrt(n)
}

// AddLiquidity deposits (up to) the desired amounts of tokenA/tokenB into
// their pair, minting LP tokens to `to`. On the pair's very first deposit,
// MinimumLiquidity is permanently locked to the zero address.
func (a *AMM) AddLiquidity(tx *store.Tx, tokenA, tokenB address.Address, aDesired, bDesired, aMin, bMin *big.Int, to, sender address.Address, now int64) (*big.Int, error) {
	p, err := a.Registry.Pair(tx, tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	tokA, err := a.Registry.Token(tx, tokenA)
	if err != nil {
		return nil, err
	}
	tokB, err := a.Registry.Token(tx, tokenB)
	if err != nil {
		return nil, err
	}

	reserveA, reserveB, err := a.orientedReserves(tx, p, tokenA, tokenB, now)
	if err != nil {
		return nil, err
	}

	amountA, amountB, err := optimalAmounts(reserveA, reserveB, aDesired, bDesired, aMin, bMin)
	if err != nil {
		return nil, err
	}

	if _, err := tokA.Transfer(tx, p.Address, amountA, 0, now, sender, now, nil); err != nil {
		return nil, err
	}
	if _, err := tokB.Transfer(tx, p.Address, amountB, 0, now, sender, now, nil); err != nil {
		return nil, err
	}

	supply, err := tx.GetTotalSupply(p.Address)
	if err != nil {
		return nil, err
	}

	var liquidity *big.Int
	if supply.Sign() == 0 {
		area := new(big.Int).Mul(amountA, amountB)
		liquidity = new(big.Int).Sub(sqrt(area), MinimumLiquidity)
		if liquidity.Sign() <= 0 {
			return nil, fmt.Errorf("%w: insufficient liquidity minted", ErrInvariantViolation)
		}
		if err := p.Mint(tx, MinimumLiquidity, address.Zero); err != nil {
			return nil, err
		}
	} else {
		fromA := new(big.Int).Mul(amountA, supply)
		fromA.Div(fromA, reserveA)
		fromB := new(big.Int).Mul(amountB, supply)
		fromB.Div(fromB, reserveB)
		if fromA.Cmp(fromB) < 0 {
			liquidity = fromA
		} else {
			liquidity = fromB
		}
	}

	if liquidity.Sign() <= 0 {
		return nil, fmt.Errorf("%w: insufficient liquidity minted", ErrInvariantViolation)
	}

	if err := p.Mint(tx, liquidity, to); err != nil {
		return nil, err
	}
	return liquidity, nil
}

// optimalAmounts implements spec.md §4.5 step 1: use the desired amounts
// outright for a fresh pair, otherwise compute the quote-optimal split.
func optimalAmounts(reserveA, reserveB, aDesired, bDesired, aMin, bMin *big.Int) (*big.Int, *big.Int, error) {
	if reserveA.Sign() == 0 && reserveB.Sign() == 0 {
		return aDesired, bDesired, nil
	}

	bOptimal, err := Quote(aDesired, reserveA, reserveB)
	if err != nil {
		return nil, nil, err
	}
	if bOptimal.Cmp(bDesired) <= 0 {
		if bOptimal.Cmp(bMin) < 0 {
			return nil, nil, fmt.Errorf("%w: insufficient B amount", ErrInvalidArgument)
		}
		return aDesired, bOptimal, nil
	}

	aOptimal, err := Quote(bDesired, reserveB, reserveA)
	if err != nil {
		return nil, nil, err
	}
	if aOptimal.Cmp(aDesired) > 0 {
		return nil, nil, fmt.Errorf("%w: insufficient A amount", ErrInvalidArgument)
	}
	if aOptimal.Cmp(aMin) < 0 {
		return nil, nil, fmt.Errorf("%w: insufficient A amount", ErrInvalidArgument)
	}
	return aOptimal, bDesired, nil
}

// RemoveLiquidity burns `liquidity` LP tokens from sender (transferred to
// the pair first, then burned from the pair, matching mint's symmetry) and
// pays out each reserve token pro-rata to `to`.
func (a *AMM) RemoveLiquidity(tx *store.Tx, tokenA, tokenB address.Address, liquidity, aMin, bMin *big.Int, to, sender address.Address, now int64) (*big.Int, *big.Int, error) {
	p, err := a.Registry.Pair(tx, tokenA, tokenB)
	if err != nil {
		return nil, nil, err
	}
	tok0, err := a.Registry.Token(tx, p.Token0)
	if err != nil {
		return nil, nil, err
	}
	tok1, err := a.Registry.Token(tx, p.Token1)
	if err != nil {
		return nil, nil, err
	}

	if _, err := p.Transfer(tx, p.Address, liquidity, 0, now, sender, now, nil); err != nil {
		return nil, nil, err
	}

	reserve0, reserve1, err := p.Reserves(tx, tok0, tok1, now)
	if err != nil {
		return nil, nil, err
	}
	supply, err := tx.GetTotalSupply(p.Address)
	if err != nil {
		return nil, nil, err
	}
	if supply.Sign() == 0 {
		return nil, nil, fmt.Errorf("%w: zero total supply", ErrInvariantViolation)
	}

	amount0 := new(big.Int).Mul(liquidity, reserve0)
	amount0.Div(amount0, supply)
	amount1 := new(big.Int).Mul(liquidity, reserve1)
	amount1.Div(amount1, supply)

	if amount0.Sign() < 0 || amount1.Sign() < 0 {
		return nil, nil, fmt.Errorf("%w: insufficient liquidity burned", ErrInvariantViolation)
	}

	if err := p.Burn(tx, liquidity, p.Address, now); err != nil {
		return nil, nil, err
	}
	if amount0.Sign() > 0 {
		if _, err := tok0.Transfer(tx, to, amount0, 0, now, p.Address, now, nil); err != nil {
			return nil, nil, err
		}
	}
	if amount1.Sign() > 0 {
		if _, err := tok1.Transfer(tx, to, amount1, 0, now, p.Address, now, nil); err != nil {
			return nil, nil, err
		}
	}

	amountA, amountB := orient(p.Token0, tokenA, amount0, amount1)
	if amountA.Cmp(aMin) < 0 {
		return nil, nil, fmt.Errorf("%w: insufficient A amount", ErrInvalidArgument)
	}
	if amountB.Cmp(bMin) < 0 {
		return nil, nil, fmt.Errorf("%w: insufficient B amount", ErrInvalidArgument)
	}
	return amountA, amountB, nil
}

// SwapExactTokensForTokens swaps an exact amount of path[0] for path[1].
// With duration 0 it settles instantly, checking the k-invariant directly.
// With duration > 0 it records the intent as two linked streams (a to-pair
// deposit and a from-pair placeholder payout); the settlement hook
// materialises the actual payout as the deposit stream accrues.
func (a *AMM) SwapExactTokensForTokens(tx *store.Tx, amountIn, amountOutMin *big.Int, path [2]address.Address, start, duration int64, to, sender address.Address, now int64) (int64, error) {
	if start == 0 {
		start = now
	}
	if start < now {
		return 0, fmt.Errorf("%w: start %d precedes now %d", ErrInvalidArgument, start, now)
	}

	p, err := a.Registry.Pair(tx, path[0], path[1])
	if err != nil {
		return 0, err
	}
	tokIn, err := a.Registry.Token(tx, path[0])
	if err != nil {
		return 0, err
	}
	tokOut, err := a.Registry.Token(tx, path[1])
	if err != nil {
		return 0, err
	}

	swapID, err := tx.CreateSwap(p.Address)
	if err != nil {
		return 0, err
	}

	if duration == 0 {
		reserveIn, reserveOut, err := a.orientedReserves(tx, p, path[0], path[1], start)
		if err != nil {
			return 0, err
		}
		amountOut, err := GetAmountOut(amountIn, reserveIn, reserveOut)
		if err != nil {
			return 0, err
		}
		if amountOut.Cmp(amountOutMin) < 0 {
			return 0, fmt.Errorf("%w: insufficient output amount", ErrInvalidArgument)
		}

		kBefore := new(big.Int).Mul(reserveIn, reserveOut)
		kAfter := new(big.Int).Mul(new(big.Int).Add(reserveIn, amountIn), new(big.Int).Sub(reserveOut, amountOut))
		if kAfter.Cmp(kBefore) < 0 {
			return 0, fmt.Errorf("%w: k check failed", ErrInvariantViolation)
		}

		id := swapID
		if _, err := tokIn.Transfer(tx, p.Address, amountIn, 0, now, sender, now, &id); err != nil {
			return 0, err
		}
		if _, err := tokOut.Transfer(tx, to, amountOut, 0, now, p.Address, now, &id); err != nil {
			return 0, err
		}
		return swapID, nil
	}

	id := swapID
	if _, err := tokIn.Transfer(tx, p.Address, amountIn, duration, start, sender, now, &id); err != nil {
		return 0, err
	}
	if _, err := tokOut.Transfer(tx, to, big.NewInt(0), 0, start, p.Address, now, &id); err != nil {
		return 0, err
	}
	return swapID, nil
}

// orientedReserves returns the pair's reserves in (tokenA, tokenB) order
// regardless of the pair's internal token0 < token1 ordering, read at time
// at.
func (a *AMM) orientedReserves(tx *store.Tx, p *pair.Pair, tokenA, tokenB address.Address, at int64) (*big.Int, *big.Int, error) {
	tok0, err := a.Registry.Token(tx, p.Token0)
	if err != nil {
		return nil, nil, err
	}
	tok1, err := a.Registry.Token(tx, p.Token1)
	if err != nil {
		return nil, nil, err
	}
	r0, r1, err := p.Reserves(tx, tok0, tok1, at)
	if err != nil {
		return nil, nil, err
	}
	rA, rB := orient(p.Token0, tokenA, r0, r1)
	return rA, rB, nil
}

// orient returns (valueA, valueB) from the pair-ordered (value0, value1),
// flipping if tokenA is the pair's token1 rather than its token0.
func orient(token0, tokenA address.Address, value0, value1 *big.Int) (*big.Int, *big.Int) {
	if tokenA == token0 {
		return value0, value1
	}
	return value1, value0
}
