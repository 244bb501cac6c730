package store

import (
	"math/big"
	"os"
	"testing"

	"github.com/streamdex/engine/pkg/address"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "streamdex-store-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	s, err := New(&Config{DataDir: dir})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustAddr(t *testing.T, s string) address.Address {
	t.Helper()
	a, err := address.Parse(s)
	if err != nil {
		t.Fatalf("failed to parse address %q: %v", s, err)
	}
	return a
}

func TestBalanceRoundTrip(t *testing.T) {
	s := newTestStore(t)
	tx, err := s.Begin()
	if err != nil {
		t.Fatalf("failed to begin tx: %v", err)
	}
	defer tx.Rollback()

	a := mustAddr(t, "0x1111111111111111111111111111111111111111")
	tok := mustAddr(t, "0x2222222222222222222222222222222222222222")

	got, err := tx.GetBalance(a, tok)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if got.Sign() != 0 {
		t.Fatalf("expected zero balance before any set, got %s", got)
	}

	want := big.NewInt(1000)
	if err := tx.SetBalance(a, tok, want); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}
	got, err = tx.GetBalance(a, tok)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if got.Cmp(want) != 0 {
		t.Fatalf("GetBalance = %s, want %s", got, want)
	}
}

func TestStreamCRUD(t *testing.T) {
	s := newTestStore(t)
	tx, err := s.Begin()
	if err != nil {
		t.Fatalf("failed to begin tx: %v", err)
	}
	defer tx.Rollback()

	from := mustAddr(t, "0x1111111111111111111111111111111111111111")
	to := mustAddr(t, "0x2222222222222222222222222222222222222222")
	tok := mustAddr(t, "0x3333333333333333333333333333333333333333")

	id, err := tx.AddStream(&Stream{
		From: from, To: to, Token: tok,
		StartTs: 0, Duration: 1000, Amount: big.NewInt(100),
	})
	if err != nil {
		t.Fatalf("AddStream: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive stream id, got %d", id)
	}

	got, err := tx.GetStream(id)
	if err != nil {
		t.Fatalf("GetStream: %v", err)
	}
	if got.Amount.Cmp(big.NewInt(100)) != 0 || got.Duration != 1000 {
		t.Fatalf("unexpected stream: %+v", got)
	}

	if err := tx.UpdateStreamAmountDuration(id, 300, big.NewInt(30)); err != nil {
		t.Fatalf("UpdateStreamAmountDuration: %v", err)
	}
	got, err = tx.GetStream(id)
	if err != nil {
		t.Fatalf("GetStream after update: %v", err)
	}
	if got.Duration != 300 || got.Amount.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("update did not apply: %+v", got)
	}

	if err := tx.UpdateStreamAccrued(id, true); err != nil {
		t.Fatalf("UpdateStreamAccrued: %v", err)
	}
	got, err = tx.GetStream(id)
	if err != nil {
		t.Fatalf("GetStream after accrue: %v", err)
	}
	if !got.Accrued {
		t.Fatalf("expected accrued = true")
	}

	if err := tx.DeleteStream(id); err != nil {
		t.Fatalf("DeleteStream: %v", err)
	}
	if _, err := tx.GetStream(id); err == nil {
		t.Fatalf("expected error getting deleted stream")
	}
}

func TestWalletNonAccruedStreamedAmts(t *testing.T) {
	s := newTestStore(t)
	tx, err := s.Begin()
	if err != nil {
		t.Fatalf("failed to begin tx: %v", err)
	}
	defer tx.Rollback()

	a := mustAddr(t, "0x1111111111111111111111111111111111111111")
	b := mustAddr(t, "0x2222222222222222222222222222222222222222")
	tok := mustAddr(t, "0x3333333333333333333333333333333333333333")

	if _, err := tx.AddStream(&Stream{
		From: a, To: b, Token: tok,
		StartTs: 0, Duration: 1000, Amount: big.NewInt(100),
	}); err != nil {
		t.Fatalf("AddStream: %v", err)
	}

	amts, err := tx.WalletNonAccruedStreamedAmts(a, tok, 500)
	if err != nil {
		t.Fatalf("WalletNonAccruedStreamedAmts: %v", err)
	}
	if len(amts) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(amts))
	}
	if amts[0].Signed.Cmp(big.NewInt(-50)) != 0 {
		t.Fatalf("expected sender-side amount -50, got %s", amts[0].Signed)
	}

	amts, err = tx.WalletNonAccruedStreamedAmts(b, tok, 500)
	if err != nil {
		t.Fatalf("WalletNonAccruedStreamedAmts: %v", err)
	}
	if len(amts) != 1 || amts[0].Signed.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("expected recipient-side amount 50, got %+v", amts)
	}
}

func TestSimulateAlwaysRollsBack(t *testing.T) {
	s := newTestStore(t)
	tx, err := s.Begin()
	if err != nil {
		t.Fatalf("failed to begin tx: %v", err)
	}
	defer tx.Rollback()

	a := mustAddr(t, "0x1111111111111111111111111111111111111111")
	tok := mustAddr(t, "0x2222222222222222222222222222222222222222")

	if err := tx.SetBalance(a, tok, big.NewInt(10)); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}

	err = tx.Simulate(func(sim *Tx) error {
		return sim.SetBalance(a, tok, big.NewInt(999))
	})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}

	got, err := tx.GetBalance(a, tok)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("simulated write leaked: balance = %s, want 10", got)
	}
}

func TestPairUpsertAndWatermark(t *testing.T) {
	s := newTestStore(t)
	tx, err := s.Begin()
	if err != nil {
		t.Fatalf("failed to begin tx: %v", err)
	}
	defer tx.Rollback()

	pairAddr := mustAddr(t, "0x4444444444444444444444444444444444444444")
	t0 := mustAddr(t, "0x1111111111111111111111111111111111111111")
	t1 := mustAddr(t, "0x2222222222222222222222222222222222222222")

	if err := tx.UpsertPair(pairAddr, t0, t1); err != nil {
		t.Fatalf("UpsertPair: %v", err)
	}

	p, err := tx.GetPair(pairAddr)
	if err != nil {
		t.Fatalf("GetPair: %v", err)
	}
	if p.LastProcessedTs != 0 {
		t.Fatalf("expected fresh pair watermark 0, got %d", p.LastProcessedTs)
	}

	if err := tx.SetLastProcessedTs(pairAddr, 500); err != nil {
		t.Fatalf("SetLastProcessedTs: %v", err)
	}
	p, err = tx.GetPair(pairAddr)
	if err != nil {
		t.Fatalf("GetPair: %v", err)
	}
	if p.LastProcessedTs != 500 {
		t.Fatalf("expected watermark 500, got %d", p.LastProcessedTs)
	}
}

func TestInspectQueryRejectsNonSelect(t *testing.T) {
	s := newTestStore(t)
	tx, err := s.Begin()
	if err != nil {
		t.Fatalf("failed to begin tx: %v", err)
	}
	defer tx.Rollback()

	if _, err := tx.InspectQuery("DELETE FROM balance"); err == nil {
		t.Fatalf("expected InspectQuery to reject a non-SELECT statement")
	}
}
