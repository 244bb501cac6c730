package dispatch

import (
	"math/big"
	"os"
	"testing"

	"github.com/streamdex/engine/internal/store"
	"github.com/streamdex/engine/pkg/address"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, address.Address) {
	t.Helper()
	dir, err := os.MkdirTemp("", "streamdex-dispatch-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	st, err := store.New(&store.Config{DataDir: dir})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	portal := mustAddr(t, "0x9999999999999999999999999999999999999999")
	return New(st, portal), portal
}

func mustAddr(t *testing.T, s string) address.Address {
	t.Helper()
	a, err := address.Parse(s)
	if err != nil {
		t.Fatalf("failed to parse address %q: %v", s, err)
	}
	return a
}

// deposit mints by dispatching a portal deposit action whose 73-byte packed
// payload is built by hand, skipping the host's hex wrapping so tests stay
// focused on kernel semantics.
func deposit(t *testing.T, d *Dispatcher, portal, tok, to address.Address, amount int64) {
	t.Helper()
	payload := make([]byte, 73)
	payload[0] = 1
	copy(payload[1:21], tok.Bytes())
	copy(payload[21:41], to.Bytes())
	new(big.Int).SetInt64(amount).FillBytes(payload[41:73])

	res := d.Dispatch(Action{Method: "", MsgSender: portal, Payload: payload, Now: 0})
	if !res.Accept {
		t.Fatalf("deposit rejected: %s", res.Notice)
	}
}

func TestLinearStreamMidpoint(t *testing.T) {
	d, portal := newTestDispatcher(t)
	t1 := mustAddr(t, "0x1000000000000000000000000000000000000001")
	a := mustAddr(t, "0x000000000000000000000000000000000000000A")
	b := mustAddr(t, "0x000000000000000000000000000000000000000B")

	deposit(t, d, portal, t1, a, 100)

	res := d.Dispatch(Action{
		Method: "stream",
		Args: map[string]interface{}{
			"token": address.String(t1), "receiver": address.String(b),
			"amount": "100", "duration": int64(1000), "start": int64(0),
		},
		MsgSender: a, Now: 0,
	})
	if !res.Accept {
		t.Fatalf("stream rejected: %s", res.Notice)
	}

	assertBalance(t, d, t1, a, 500, 50)
	assertBalance(t, d, t1, b, 500, 50)
	assertBalance(t, d, t1, a, 1000, 0)
	assertBalance(t, d, t1, b, 1000, 100)
}

func TestOvercommitRejected(t *testing.T) {
	d, portal := newTestDispatcher(t)
	t1 := mustAddr(t, "0x1000000000000000000000000000000000000001")
	a := mustAddr(t, "0x000000000000000000000000000000000000000A")
	b := mustAddr(t, "0x000000000000000000000000000000000000000B")
	c := mustAddr(t, "0x000000000000000000000000000000000000000C")

	deposit(t, d, portal, t1, a, 100)

	res := d.Dispatch(Action{
		Method: "stream",
		Args: map[string]interface{}{
			"token": address.String(t1), "receiver": address.String(b),
			"amount": "50", "duration": int64(1000), "start": int64(0),
		},
		MsgSender: a, Now: 0,
	})
	if !res.Accept {
		t.Fatalf("initial stream rejected: %s", res.Notice)
	}

	res = d.Dispatch(Action{
		Method: "stream",
		Args: map[string]interface{}{
			"token": address.String(t1), "receiver": address.String(c),
			"amount": "51", "duration": int64(0), "start": int64(600),
		},
		MsgSender: a, Now: 500,
	})
	if res.Accept {
		t.Fatalf("expected overcommit to be rejected")
	}

	res = d.Dispatch(Action{
		Method: "stream",
		Args: map[string]interface{}{
			"token": address.String(t1), "receiver": address.String(c),
			"amount": "50", "duration": int64(0), "start": int64(600),
		},
		MsgSender: a, Now: 500,
	})
	if !res.Accept {
		t.Fatalf("expected exact-commit stream to succeed: %s", res.Notice)
	}
}

func TestCancelMidway(t *testing.T) {
	d, portal := newTestDispatcher(t)
	t1 := mustAddr(t, "0x1000000000000000000000000000000000000001")
	a := mustAddr(t, "0x000000000000000000000000000000000000000A")
	b := mustAddr(t, "0x000000000000000000000000000000000000000B")

	deposit(t, d, portal, t1, a, 100)

	res := d.Dispatch(Action{
		Method: "stream",
		Args: map[string]interface{}{
			"token": address.String(t1), "receiver": address.String(b),
			"amount": "100", "duration": int64(1000), "start": int64(0),
		},
		MsgSender: a, Now: 0,
	})
	if !res.Accept {
		t.Fatalf("stream rejected: %s", res.Notice)
	}

	res = d.Dispatch(Action{
		Method:    "cancel_stream",
		Args:      map[string]interface{}{"token": address.String(t1), "stream_id": int64(1)},
		MsgSender: a, Now: 300,
	})
	if !res.Accept {
		t.Fatalf("cancel rejected: %s", res.Notice)
	}

	assertBalance(t, d, t1, a, 100000, 70)
	assertBalance(t, d, t1, b, 100000, 30)
}

func assertBalance(t *testing.T, d *Dispatcher, tok, a address.Address, at int64, want int64) {
	t.Helper()
	tx, err := d.Store.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()

	k, err := d.registry.Token(tx, tok)
	if err != nil {
		t.Fatalf("resolve token: %v", err)
	}
	got, err := k.FutureBalanceOf(tx, a, &at)
	if err != nil {
		t.Fatalf("future balance of: %v", err)
	}
	if got.Cmp(big.NewInt(want)) != 0 {
		t.Fatalf("balance of %s at %d = %s, want %d", address.String(a), at, got, want)
	}
}
