// Package hook implements the settlement hook: the procedure that advances
// a liquidity pair's piecewise-constant integration from its
// last_processed_ts watermark up to a target time, extending every pending
// swap's from-pair payout stream in proportion to its share of the
// interval's realised trade.
package hook

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/streamdex/engine/internal/amm"
	"github.com/streamdex/engine/internal/store"
	"github.com/streamdex/engine/internal/token"
	"github.com/streamdex/engine/pkg/address"
)

// ErrKInvariant is returned when a settlement increment would decrease a
// pair's constant product, which should never happen for a correctly
// constructed swap and indicates a bug upstream rather than bad input.
var ErrKInvariant = errors.New("hook: k-invariant violated")

// Registry resolves a token address to its balance kernel. internal/dispatch
// supplies the concrete implementation shared with internal/amm.
type Registry interface {
	Token(tx *store.Tx, addr address.Address) (*token.Token, error)
}

// Hook implements token.Hook.
type Hook struct {
	Registry Registry
}

// New returns a settlement hook that resolves token kernels through reg.
func New(reg Registry) *Hook {
	return &Hook{Registry: reg}
}

// Settle realises the continuous-AMM payout on every swap stream flowing
// into wallet on any pair involving tok, by toTs. It is invoked as the
// first step of StreamableToken.Settle, and — reentrantly, through
// future_balance_of — from inside a savepoint.
func (h *Hook) Settle(tx *store.Tx, tok, wallet address.Address, toTs int64) error {
	pairs, err := tx.UpdatablePairs(wallet, tok, toTs)
	if err != nil {
		return err
	}
	for _, up := range pairs {
		if err := h.settlePair(tx, up.Pair, toTs); err != nil {
			return fmt.Errorf("settling pair %s: %w", address.String(up.Pair), err)
		}
	}
	return nil
}

func (h *Hook) settlePair(tx *store.Tx, pairAddr address.Address, toTs int64) error {
	p, err := tx.GetPair(pairAddr)
	if err != nil {
		return err
	}
	if toTs <= p.LastProcessedTs {
		// Idempotence: the watermark has already passed toTs, nothing to do.
		return nil
	}

	tok0, err := h.Registry.Token(tx, p.Token0)
	if err != nil {
		return err
	}
	tok1, err := h.Registry.Token(tx, p.Token1)
	if err != nil {
		return err
	}

	// Non-settling reserve reads: EffectiveBalance never calls back into
	// Settle, breaking the cyclic reference between the token kernel and
	// this hook (spec.md §9).
	rIn, err := tok0.EffectiveBalance(tx, p.Address, p.LastProcessedTs)
	if err != nil {
		return err
	}
	rOut, err := tok1.EffectiveBalance(tx, p.Address, p.LastProcessedTs)
	if err != nil {
		return err
	}

	swaps, err := tx.SwapsForPair(p.Address, toTs)
	if err != nil {
		return err
	}
	if len(swaps) == 0 {
		return tx.SetLastProcessedTs(p.Address, toTs)
	}

	updates := make(map[int64]*pendingUpdate, len(swaps))
	for _, s := range swaps {
		updates[s.FromPairStreamID] = &pendingUpdate{
			amount:   new(big.Int).Set(s.FromPairAmount),
			duration: s.FromPairDuration,
		}
	}

	breakpoints := buildBreakpoints(swaps, p.LastProcessedTs, toTs)

	prev := p.LastProcessedTs
	for _, t := range breakpoints {
		if t <= prev {
			continue
		}
		if err := applyIncrement(swaps, updates, prev, t, p.Token0, rIn, rOut); err != nil {
			return err
		}
		prev = t
	}

	batch := make([]store.StreamUpdate, 0, len(updates))
	for id, u := range updates {
		batch = append(batch, store.StreamUpdate{ID: id, Duration: u.duration, Amount: u.amount})
	}
	if err := tx.UpdateStreamAmountDurationBatch(batch); err != nil {
		return err
	}
	return tx.SetLastProcessedTs(p.Address, toTs)
}

type pendingUpdate struct {
	amount   *big.Int
	duration int64
}

// buildBreakpoints returns the sorted, deduplicated set of piecewise-constant
// interval boundaries over (lastProcessedTs, toTs]: for every swap, the
// earlier of its to-pair stream's end and its from-pair stream's current
// end, each clamped to toTs, plus toTs itself.
func buildBreakpoints(swaps []store.PairSwap, lastProcessedTs, toTs int64) []int64 {
	seen := make(map[int64]bool)
	var points []int64
	add := func(t int64) {
		if t <= lastProcessedTs || t > toTs {
			return
		}
		if !seen[t] {
			seen[t] = true
			points = append(points, t)
		}
	}

	for _, s := range swaps {
		toPairEnd := s.ToPairStartTs + s.ToPairDuration
		fromPairEnd := s.FromPairStartTs + s.FromPairDuration
		bp := toPairEnd
		if fromPairEnd < bp {
			bp = fromPairEnd
		}
		if bp > toTs {
			bp = toTs
		}
		add(bp)
	}
	add(toTs)

	sort.Slice(points, func(i, j int) bool { return points[i] < points[j] })
	return points
}

// applyIncrement processes one piecewise-constant window [prev, t): it sums
// each active swap's constant input rate into token0_in/token1_in,
// converts through the constant-product formula, asserts the k-invariant,
// distributes the opposite-direction payout pro-rata across active swaps,
// and advances rIn/rOut in place for the next increment.
func applyIncrement(swaps []store.PairSwap, updates map[int64]*pendingUpdate, prev, t int64, token0 address.Address, rIn, rOut *big.Int) error {
	length := big.NewInt(t - prev)

	var token0In, token1In big.Int
	type activeSwap struct {
		swap     *store.PairSwap
		rate     *big.Int
		amount   *big.Int
		isToken0 bool
	}
	var active []activeSwap

	for i := range swaps {
		s := &swaps[i]
		toPairEnd := s.ToPairStartTs + s.ToPairDuration
		if !(s.ToPairStartTs <= prev && toPairEnd > prev) {
			continue
		}
		rate := big.NewInt(0)
		if s.ToPairDuration > 0 {
			rate = new(big.Int).Div(s.ToPairAmount, big.NewInt(s.ToPairDuration))
		}
		amt := new(big.Int).Mul(rate, length)

		isToken0 := s.ToPairToken == token0
		if isToken0 {
			token0In.Add(&token0In, amt)
		} else {
			token1In.Add(&token1In, amt)
		}
		active = append(active, activeSwap{swap: s, rate: rate, amount: amt, isToken0: isToken0})
	}

	if len(active) == 0 {
		return nil
	}

	var out1, out0 *big.Int
	var err error
	if token0In.Sign() > 0 {
		out1, err = amm.GetAmountOut(&token0In, rIn, rOut)
		if err != nil {
			return err
		}
	} else {
		out1 = big.NewInt(0)
	}
	if token1In.Sign() > 0 {
		out0, err = amm.GetAmountOut(&token1In, rOut, rIn)
		if err != nil {
			return err
		}
	} else {
		out0 = big.NewInt(0)
	}

	kBefore := new(big.Int).Mul(rIn, rOut)
	newRIn := new(big.Int).Add(rIn, &token0In)
	newRIn.Sub(newRIn, out0)
	newROut := new(big.Int).Add(rOut, &token1In)
	newROut.Sub(newROut, out1)
	kAfter := new(big.Int).Mul(newRIn, newROut)
	if kAfter.Cmp(kBefore) < 0 {
		return fmt.Errorf("%w: pair product decreased from %s to %s", ErrKInvariant, kBefore, kAfter)
	}

	for _, as := range active {
		u, ok := updates[as.swap.FromPairStreamID]
		if !ok {
			continue
		}
		var share *big.Int
		if as.isToken0 && token0In.Sign() > 0 {
			share = proRata(as.amount, out1, &token0In)
		} else if !as.isToken0 && token1In.Sign() > 0 {
			share = proRata(as.amount, out0, &token1In)
		} else {
			share = big.NewInt(0)
		}
		u.amount.Add(u.amount, share)
		u.duration += t - prev
	}

	rIn.Set(newRIn)
	rOut.Set(newROut)
	return nil
}

// proRata computes increment_amount * out / total_in, the caller's share of
// an increment's opposite-direction payout in proportion to its own input.
func proRata(ownAmount, out, totalIn *big.Int) *big.Int {
	num := new(big.Int).Mul(ownAmount, out)
	return num.Div(num, totalIn)
}
