// Package dispatch maps a decoded host action to a kernel call inside one
// Store transaction, committing on success and rolling back on any
// failure.
package dispatch

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/streamdex/engine/internal/amm"
	"github.com/streamdex/engine/internal/hook"
	"github.com/streamdex/engine/internal/store"
	"github.com/streamdex/engine/internal/token"
	"github.com/streamdex/engine/pkg/address"
	"github.com/streamdex/engine/pkg/logging"
)

// ErrUnknownMethod is returned when the dispatcher receives an action whose
// method is not one of the recognised kernel operations.
var ErrUnknownMethod = errors.New("dispatch: unknown method")

// Action is a decoded host action: the method name, its arguments, and the
// host-supplied metadata (now, and the message sender for deposit
// detection). Hex and JSON envelope decoding is the external
// collaborator's job; Args is the JSON-decoded argument map, from which
// the dispatcher itself parses addresses and decimal-string integers.
type Action struct {
	Method    string
	Args      map[string]interface{}
	Now       int64
	MsgSender address.Address
	Payload   []byte // raw bytes, used only for deposit detection and decoding
}

// Result is what a dispatched action produces: whether to accept it, a
// human-readable notice, and an optional voucher to post back to the host.
type Result struct {
	Accept  bool
	Notice  string
	Voucher *Voucher
}

// Dispatcher owns the portal address deposits are recognised against and
// wires the token/pair/AMM/hook kernels together over one Store.
type Dispatcher struct {
	Store         *store.Store
	PortalAddress address.Address
	registry      *registry
	hook          *hook.Hook
	amm           *amm.AMM
	log           *logging.Logger
}

// New wires a full kernel over st, recognising deposits from portalAddr.
func New(st *store.Store, portalAddr address.Address) *Dispatcher {
	d := &Dispatcher{
		Store:         st,
		PortalAddress: portalAddr,
		log:           logging.Default().Component("dispatch"),
	}
	reg := newRegistry(nil)
	h := hook.New(reg)
	reg.hook = h
	d.registry = reg
	d.hook = h
	d.amm = amm.New(reg)
	return d
}

// Dispatch runs one action to completion: it begins a transaction, routes
// to the appropriate kernel call, and commits or rolls back depending on
// the outcome. A correlation id (not persisted; for log tracing only) is
// attached to every log line for this action.
func (d *Dispatcher) Dispatch(a Action) Result {
	correlationID := uuid.NewString()
	log := d.log.With("action", a.Method, "correlation_id", correlationID)

	tx, err := d.Store.Begin()
	if err != nil {
		log.Error("failed to begin transaction", "error", err)
		return Result{Accept: false, Notice: err.Error()}
	}

	result, err := d.route(tx, a)
	if err != nil {
		tx.Rollback()
		log.Info("action rejected", "error", err)
		return Result{Accept: false, Notice: err.Error()}
	}

	if err := tx.Commit(); err != nil {
		log.Error("failed to commit transaction", "error", err)
		return Result{Accept: false, Notice: err.Error()}
	}

	log.Info("action accepted")
	result.Accept = true
	return result
}

func (d *Dispatcher) route(tx *store.Tx, a Action) (Result, error) {
	if d.isDeposit(a) {
		return d.handleDeposit(tx, a)
	}

	switch a.Method {
	case "stream":
		return d.handleStream(tx, a)
	case "split_stream":
		return d.handleSplitStream(tx, a)
	case "withdraw":
		return d.handleWithdraw(tx, a)
	case "cancel_stream":
		return d.handleCancelStream(tx, a)
	case "add_liquidity":
		return d.handleAddLiquidity(tx, a)
	case "remove_liquidity":
		return d.handleRemoveLiquidity(tx, a)
	case "swap":
		return d.handleSwap(tx, a)
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownMethod, a.Method)
	}
}

func (d *Dispatcher) isDeposit(a Action) bool {
	return a.MsgSender == d.PortalAddress && len(a.Payload) > 0
}

func (d *Dispatcher) handleDeposit(tx *store.Tx, a Action) (Result, error) {
	dep, err := DecodeDeposit(a.Payload)
	if err != nil {
		return Result{}, err
	}
	if !dep.Success {
		return Result{}, fmt.Errorf("%w: deposit reported failure", ErrDecodeError)
	}

	tok, err := d.registry.Token(tx, dep.Token)
	if err != nil {
		return Result{}, err
	}
	if err := tok.Mint(tx, dep.Amount, dep.From); err != nil {
		return Result{}, err
	}
	return Result{Notice: fmt.Sprintf("minted %s of %s to %s", dep.Amount, address.String(dep.Token), address.String(dep.From))}, nil
}

func (d *Dispatcher) handleStream(tx *store.Tx, a Action) (Result, error) {
	tokAddr, to, amount, duration, start, err := parseTransferArgs(a.Args)
	if err != nil {
		return Result{}, err
	}
	tok, err := d.registry.Token(tx, tokAddr)
	if err != nil {
		return Result{}, err
	}
	id, err := tok.Transfer(tx, to, amount, duration, start, a.MsgSender, a.Now, nil)
	if err != nil {
		return Result{}, err
	}
	return Result{Notice: fmt.Sprintf("stream %d created", id)}, nil
}

// handleSplitStream is the supplemented split_stream action: it divides one
// transfer into split_count equal streams, folding the integer-division
// remainder into the first stream so the total is conserved, with
// staggered durations duration, duration+1, ..., duration+split_count-1.
func (d *Dispatcher) handleSplitStream(tx *store.Tx, a Action) (Result, error) {
	tokAddr, to, amount, duration, start, err := parseTransferArgs(a.Args)
	if err != nil {
		return Result{}, err
	}
	splitCount, err := argInt(a.Args, "split_count")
	if err != nil {
		return Result{}, err
	}
	if splitCount <= 0 {
		return Result{}, fmt.Errorf("%w: split_count must be positive", token.ErrInvalidArgument)
	}

	tok, err := d.registry.Token(tx, tokAddr)
	if err != nil {
		return Result{}, err
	}

	n := big.NewInt(splitCount)
	share := new(big.Int).Div(amount, n)
	remainder := new(big.Int).Mod(amount, n)

	ids := make([]int64, 0, splitCount)
	for i := int64(0); i < splitCount; i++ {
		streamAmount := new(big.Int).Set(share)
		if i == 0 {
			streamAmount.Add(streamAmount, remainder)
		}
		id, err := tok.Transfer(tx, to, streamAmount, duration+i, start, a.MsgSender, a.Now, nil)
		if err != nil {
			return Result{}, err
		}
		ids = append(ids, id)
	}
	return Result{Notice: fmt.Sprintf("created %d split streams", len(ids))}, nil
}

func (d *Dispatcher) handleWithdraw(tx *store.Tx, a Action) (Result, error) {
	tokAddr, err := argAddress(a.Args, "token")
	if err != nil {
		return Result{}, err
	}
	amount, err := argBigInt(a.Args, "amount")
	if err != nil {
		return Result{}, err
	}

	tok, err := d.registry.Token(tx, tokAddr)
	if err != nil {
		return Result{}, err
	}
	if err := tok.Burn(tx, amount, a.MsgSender, a.Now); err != nil {
		return Result{}, err
	}

	voucher, err := EncodeTransferVoucher(tokAddr, a.MsgSender, amount)
	if err != nil {
		return Result{}, err
	}
	return Result{Notice: "withdraw accepted", Voucher: voucher}, nil
}

func (d *Dispatcher) handleCancelStream(tx *store.Tx, a Action) (Result, error) {
	tokAddr, err := argAddress(a.Args, "token")
	if err != nil {
		return Result{}, err
	}
	streamID, err := argInt(a.Args, "stream_id")
	if err != nil {
		return Result{}, err
	}

	tok, err := d.registry.Token(tx, tokAddr)
	if err != nil {
		return Result{}, err
	}
	if err := tok.CancelStream(tx, streamID, a.MsgSender, a.Now); err != nil {
		return Result{}, err
	}
	return Result{Notice: fmt.Sprintf("stream %d cancelled", streamID)}, nil
}

func (d *Dispatcher) handleAddLiquidity(tx *store.Tx, a Action) (Result, error) {
	tokenA, err := argAddress(a.Args, "token_a")
	if err != nil {
		return Result{}, err
	}
	tokenB, err := argAddress(a.Args, "token_b")
	if err != nil {
		return Result{}, err
	}
	aDesired, err := argBigInt(a.Args, "amount_a_desired")
	if err != nil {
		return Result{}, err
	}
	bDesired, err := argBigInt(a.Args, "amount_b_desired")
	if err != nil {
		return Result{}, err
	}
	aMin, err := argBigInt(a.Args, "amount_a_min")
	if err != nil {
		return Result{}, err
	}
	bMin, err := argBigInt(a.Args, "amount_b_min")
	if err != nil {
		return Result{}, err
	}
	to, err := argAddress(a.Args, "to")
	if err != nil {
		return Result{}, err
	}

	liquidity, err := d.amm.AddLiquidity(tx, tokenA, tokenB, aDesired, bDesired, aMin, bMin, to, a.MsgSender, a.Now)
	if err != nil {
		return Result{}, err
	}
	return Result{Notice: fmt.Sprintf("minted %s liquidity", liquidity)}, nil
}

func (d *Dispatcher) handleRemoveLiquidity(tx *store.Tx, a Action) (Result, error) {
	tokenA, err := argAddress(a.Args, "token_a")
	if err != nil {
		return Result{}, err
	}
	tokenB, err := argAddress(a.Args, "token_b")
	if err != nil {
		return Result{}, err
	}
	liquidity, err := argBigInt(a.Args, "liquidity")
	if err != nil {
		return Result{}, err
	}
	aMin, err := argBigInt(a.Args, "amount_a_min")
	if err != nil {
		return Result{}, err
	}
	bMin, err := argBigInt(a.Args, "amount_b_min")
	if err != nil {
		return Result{}, err
	}
	to, err := argAddress(a.Args, "to")
	if err != nil {
		return Result{}, err
	}

	amountA, amountB, err := d.amm.RemoveLiquidity(tx, tokenA, tokenB, liquidity, aMin, bMin, to, a.MsgSender, a.Now)
	if err != nil {
		return Result{}, err
	}
	return Result{Notice: fmt.Sprintf("removed liquidity: %s, %s", amountA, amountB)}, nil
}

func (d *Dispatcher) handleSwap(tx *store.Tx, a Action) (Result, error) {
	path, err := argAddressPath(a.Args, "path")
	if err != nil {
		return Result{}, err
	}
	amountIn, err := argBigInt(a.Args, "amount_in")
	if err != nil {
		return Result{}, err
	}
	amountOutMin, err := argBigInt(a.Args, "amount_out_min")
	if err != nil {
		return Result{}, err
	}
	start, err := argInt(a.Args, "start")
	if err != nil {
		return Result{}, err
	}
	duration, err := argInt(a.Args, "duration")
	if err != nil {
		return Result{}, err
	}
	to, err := argAddress(a.Args, "to")
	if err != nil {
		return Result{}, err
	}

	swapID, err := d.amm.SwapExactTokensForTokens(tx, amountIn, amountOutMin, path, start, duration, to, a.MsgSender, a.Now)
	if err != nil {
		return Result{}, err
	}
	return Result{Notice: fmt.Sprintf("swap %d created", swapID)}, nil
}
