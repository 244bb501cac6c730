// Package token implements the engine's central kernel: a per-token balance
// accessor over a Store transaction, supporting instant and streamed
// transfers, cancellation, and settlement of matured streams into stored
// balances.
package token

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/streamdex/engine/internal/store"
	"github.com/streamdex/engine/internal/stream"
	"github.com/streamdex/engine/pkg/address"
)

// Error kinds. Every precondition failure in this package is one of these,
// wrapped with a message naming the offending argument.
var (
	ErrInvalidArgument     = errors.New("token: invalid argument")
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrUnauthorized        = errors.New("token: unauthorized")
	ErrAlreadyCompleted    = errors.New("token: already completed")
	ErrNotFound            = errors.New("token: not found")
)

// Hook realises pending AMM payouts for a wallet before the token kernel
// reads or mutates its balance. Implemented by internal/hook; injected here
// as an interface to break the cyclic reference spec.md §9 calls out
// between settle and the settlement hook (the hook itself reads reserves
// via a non-settling balance query, never through this interface).
type Hook interface {
	Settle(tx *store.Tx, token, wallet address.Address, toTs int64) error
}

// Token is a balance kernel bound to one token address. Pair embeds a Token
// for its LP-token behaviour.
type Token struct {
	Address address.Address
	Hook    Hook
}

// New returns a kernel for addr, settling through hook before every
// balance-affecting read or mutation.
func New(addr address.Address, hook Hook) *Token {
	return &Token{Address: addr, Hook: hook}
}

// Mint increases to's stored balance and the token's total supply by
// amount. amount must be strictly positive.
func (k *Token) Mint(tx *store.Tx, amount *big.Int, to address.Address) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: mint amount must be positive, got %s", ErrInvalidArgument, amount)
	}
	if err := tx.UpsertAccount(to); err != nil {
		return err
	}
	if err := tx.UpsertToken(k.Address); err != nil {
		return err
	}

	bal, err := tx.GetBalance(to, k.Address)
	if err != nil {
		return err
	}
	if err := tx.SetBalance(to, k.Address, new(big.Int).Add(bal, amount)); err != nil {
		return err
	}

	supply, err := tx.GetTotalSupply(k.Address)
	if err != nil {
		return err
	}
	return tx.SetTotalSupply(k.Address, new(big.Int).Add(supply, amount))
}

// Burn settles sender at now, then decreases sender's stored balance and
// the token's total supply by amount. amount must not exceed sender's
// current effective balance.
func (k *Token) Burn(tx *store.Tx, amount *big.Int, sender address.Address, now int64) error {
	if err := k.Settle(tx, sender, now); err != nil {
		return err
	}

	bal, err := k.EffectiveBalance(tx, sender, now)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: burn %s exceeds balance %s", ErrInsufficientBalance, amount, bal)
	}

	stored, err := tx.GetBalance(sender, k.Address)
	if err != nil {
		return err
	}
	if err := tx.SetBalance(sender, k.Address, new(big.Int).Sub(stored, amount)); err != nil {
		return err
	}

	supply, err := tx.GetTotalSupply(k.Address)
	if err != nil {
		return err
	}
	return tx.SetTotalSupply(k.Address, new(big.Int).Sub(supply, amount))
}

// EffectiveBalance is the symmetric balance_of(a, at): the stored balance
// plus every non-accrued stream's signed streamed contribution at `at`.
func (k *Token) EffectiveBalance(tx *store.Tx, a address.Address, at int64) (*big.Int, error) {
	return k.balanceAt(tx, a, at, at, true)
}

// SenderAvailableBalance is the asymmetric pre-check transfer uses before
// committing a new outgoing stream: the stored balance minus every
// non-accrued outgoing stream (the sender's existing commitments) valued
// at upTo. Incoming non-accrued streams are not counted at all, so no
// pending inflow is trusted; incomingHorizon does not affect the result.
// Splitting balance_of's two-horizon overload into a
// named operation per spec.md's design notes.
func (k *Token) SenderAvailableBalance(tx *store.Tx, a address.Address, upTo, incomingHorizon int64) (*big.Int, error) {
	return k.balanceAt(tx, a, upTo, incomingHorizon, false)
}

// balanceAt is the shared implementation behind EffectiveBalance and
// SenderAvailableBalance. outgoingAt values the sender's own outflows;
// incomingAt values inflows if countReceived is true.
func (k *Token) balanceAt(tx *store.Tx, a address.Address, outgoingAt, incomingAt int64, countReceived bool) (*big.Int, error) {
	stored, err := tx.GetBalance(a, k.Address)
	if err != nil {
		return nil, err
	}
	total := new(big.Int).Set(stored)

	amts, err := tx.WalletNonAccruedStreamedAmts(a, k.Address, outgoingAt)
	if err != nil {
		return nil, err
	}
	outgoingByID := make(map[int64]*big.Int, len(amts))
	for _, sa := range amts {
		if sa.Signed.Sign() < 0 {
			outgoingByID[sa.StreamID] = sa.Signed
		}
	}
	for _, v := range outgoingByID {
		total.Add(total, v)
	}

	if countReceived {
		incoming, err := tx.WalletNonAccruedStreamedAmts(a, k.Address, incomingAt)
		if err != nil {
			return nil, err
		}
		for _, sa := range incoming {
			if sa.Signed.Sign() > 0 {
				total.Add(total, sa.Signed)
			}
		}
	}

	return total, nil
}

// FutureBalanceOf computes a's effective balance at a future horizon by
// running the settlement hook forward inside a rolled-back savepoint: the
// hook's state advance is observed but never persisted. future defaults to
// MaxEndTsForWallet(a) when nil.
func (k *Token) FutureBalanceOf(tx *store.Tx, a address.Address, future *int64) (*big.Int, error) {
	var result *big.Int
	err := tx.Simulate(func(sim *store.Tx) error {
		horizon, err := k.resolveFutureHorizon(sim, a, future)
		if err != nil {
			return err
		}
		if err := k.Settle(sim, a, horizon); err != nil {
			return err
		}
		result, err = k.EffectiveBalance(sim, a, horizon)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (k *Token) resolveFutureHorizon(tx *store.Tx, a address.Address, future *int64) (int64, error) {
	if future != nil {
		return *future, nil
	}
	return tx.MaxEndTsForWallet(a)
}

// Transfer settles sender at now, validates the proposed stream, and
// inserts it. start_ts normalises to now when given as 0. Returns the new
// stream's id.
func (k *Token) Transfer(tx *store.Tx, to address.Address, amount *big.Int, duration, startTs int64, sender address.Address, now int64, swapID *int64) (int64, error) {
	if err := k.Settle(tx, sender, now); err != nil {
		return 0, err
	}

	if startTs == 0 {
		startTs = now
	}
	if startTs < now {
		return 0, fmt.Errorf("%w: start_ts %d precedes now %d", ErrInvalidArgument, startTs, now)
	}
	if duration < 0 {
		return 0, fmt.Errorf("%w: duration must be non-negative, got %d", ErrInvalidArgument, duration)
	}
	if sender == to {
		return 0, fmt.Errorf("%w: sender and receiver must differ", ErrInvalidArgument)
	}
	if amount.Sign() < 0 {
		return 0, fmt.Errorf("%w: amount must be non-negative, got %s", ErrInvalidArgument, amount)
	}
	if err := tx.UpsertAccount(to); err != nil {
		return 0, err
	}

	maxEnd, err := tx.MaxEndTsForWallet(sender)
	if err != nil {
		return 0, err
	}
	maxTs := startTs + duration
	if maxEnd > maxTs {
		maxTs = maxEnd
	}

	available, err := k.SenderAvailableBalance(tx, sender, maxTs, now)
	if err != nil {
		return 0, err
	}
	if available.Cmp(amount) < 0 {
		return 0, fmt.Errorf("%w: projected balance %s below transfer amount %s", ErrInsufficientBalance, available, amount)
	}

	return tx.AddStream(&store.Stream{
		From: sender, To: to, Token: k.Address,
		StartTs: startTs, Duration: duration, Amount: amount,
		Accrued: false, SwapID: swapID,
	})
}

// CancelStream settles sender at now, then truncates or deletes the
// referenced stream: deleted if it has not started yet, otherwise
// truncated in place to the amount already streamed by now.
func (k *Token) CancelStream(tx *store.Tx, id int64, sender address.Address, now int64) error {
	if err := k.Settle(tx, sender, now); err != nil {
		return err
	}

	s, err := tx.GetStream(id)
	if err != nil {
		return fmt.Errorf("%w: stream %d", ErrNotFound, id)
	}
	if s.From != sender {
		return fmt.Errorf("%w: sender is not stream %d's sender", ErrUnauthorized, id)
	}
	if s.StartTs+s.Duration < now {
		return fmt.Errorf("%w: stream %d already ended", ErrAlreadyCompleted, id)
	}

	if s.StartTs > now {
		return tx.DeleteStream(id)
	}

	truncatedDuration := now - s.StartTs
	truncatedAmount := stream.Streamed(s.StartTs, s.Duration, s.Amount, now)
	return tx.UpdateStreamAmountDuration(id, truncatedDuration, truncatedAmount)
}

// Settle is "process streams": it first invokes the settlement hook for
// (token, a, now), then folds every stream touching a that has matured by
// now into stored balances, marking each accrued.
func (k *Token) Settle(tx *store.Tx, a address.Address, now int64) error {
	if k.Hook != nil {
		if err := k.Hook.Settle(tx, k.Address, a, now); err != nil {
			return err
		}
	}

	ended, err := tx.WalletEndedStreams(a, k.Address, now)
	if err != nil {
		return err
	}

	for _, s := range ended {
		amount := stream.Streamed(s.StartTs, s.Duration, s.Amount, s.StartTs+s.Duration)

		fromBal, err := tx.GetBalance(s.From, k.Address)
		if err != nil {
			return err
		}
		if err := tx.SetBalance(s.From, k.Address, new(big.Int).Sub(fromBal, amount)); err != nil {
			return err
		}

		toBal, err := tx.GetBalance(s.To, k.Address)
		if err != nil {
			return err
		}
		if err := tx.SetBalance(s.To, k.Address, new(big.Int).Add(toBal, amount)); err != nil {
			return err
		}

		if err := tx.UpdateStreamAccrued(s.ID, true); err != nil {
			return err
		}
	}

	return nil
}
