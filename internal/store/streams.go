package store

import (
	"database/sql"
	"fmt"
	"math/big"

	"github.com/streamdex/engine/internal/stream"
	"github.com/streamdex/engine/pkg/address"
	"github.com/streamdex/engine/pkg/decimal"
)

// Stream is the persisted row for a time-linear transfer.
type Stream struct {
	ID       int64
	From     address.Address
	To       address.Address
	Token    address.Address
	StartTs  int64
	Duration int64
	Amount   *big.Int
	Accrued  bool
	SwapID   *int64 // nil unless this stream is one leg of an AMM swap
}

// AddStream inserts a new stream and returns its assigned id. Ids are
// assigned by SQLite's AUTOINCREMENT and are therefore strictly increasing
// within the database, matching the monotone-id invariant.
func (t *Tx) AddStream(s *Stream) (int64, error) {
	result, err := t.tx.Exec(
		`INSERT INTO stream (from_account, to_account, token, start_ts, duration, amount, accrued, swap_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		address.String(s.From), address.String(s.To), address.String(s.Token),
		s.StartTs, s.Duration, decimal.ToString(s.Amount), boolToInt(s.Accrued), s.SwapID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to add stream: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read new stream id: %w", err)
	}
	return id, nil
}

// GetStream loads a stream by id.
func (t *Tx) GetStream(id int64) (*Stream, error) {
	row := t.tx.QueryRow(
		`SELECT id, from_account, to_account, token, start_ts, duration, amount, accrued, swap_id
		 FROM stream WHERE id = ?`, id,
	)
	return scanStream(row)
}

// DeleteStream removes a stream outright (used by cancel_stream when the
// stream has not started yet).
func (t *Tx) DeleteStream(id int64) error {
	result, err := t.tx.Exec(`DELETE FROM stream WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete stream: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("stream %d: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateStreamAccrued flips a stream's accrued flag. Once true it is
// immutable and no longer contributes to balance queries.
func (t *Tx) UpdateStreamAccrued(id int64, accrued bool) error {
	result, err := t.tx.Exec(`UPDATE stream SET accrued = ? WHERE id = ?`, boolToInt(accrued), id)
	if err != nil {
		return fmt.Errorf("failed to update stream accrued flag: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("stream %d: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateStreamAmountDuration rewrites a live stream's duration and amount,
// used by cancel_stream (truncate) and the settlement hook (extend).
func (t *Tx) UpdateStreamAmountDuration(id int64, duration int64, amount *big.Int) error {
	result, err := t.tx.Exec(
		`UPDATE stream SET duration = ?, amount = ? WHERE id = ?`,
		duration, decimal.ToString(amount), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update stream amount/duration: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("stream %d: %w", id, ErrNotFound)
	}
	return nil
}

// StreamUpdate is one entry of a batch amount/duration rewrite, as produced
// by the settlement hook for every from-pair stream it advances in a pass.
type StreamUpdate struct {
	ID       int64
	Duration int64
	Amount   *big.Int
}

// UpdateStreamAmountDurationBatch applies a batch of amount/duration
// rewrites atomically (within the ambient transaction). The hook uses this
// to write every updated from-pair stream at the end of a settlement pass.
func (t *Tx) UpdateStreamAmountDurationBatch(updates []StreamUpdate) error {
	stmt, err := t.tx.Prepare(`UPDATE stream SET duration = ?, amount = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch stream update: %w", err)
	}
	defer stmt.Close()

	for _, u := range updates {
		if _, err := stmt.Exec(u.Duration, decimal.ToString(u.Amount), u.ID); err != nil {
			return fmt.Errorf("failed to update stream %d: %w", u.ID, err)
		}
	}
	return nil
}

// WalletEndedStreams returns non-accrued streams touching account a, of
// token tok, whose start_ts+duration <= now — the candidates settle() folds
// into stored balances.
func (t *Tx) WalletEndedStreams(a, tok address.Address, now int64) ([]*Stream, error) {
	rows, err := t.tx.Query(
		`SELECT id, from_account, to_account, token, start_ts, duration, amount, accrued, swap_id
		 FROM stream
		 WHERE token = ? AND accrued = 0 AND (from_account = ? OR to_account = ?)
		   AND start_ts + duration <= ?`,
		address.String(tok), address.String(a), address.String(a), now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query ended streams: %w", err)
	}
	return scanStreams(rows)
}

// StreamedAmount is one non-accrued stream's signed contribution to a
// wallet's balance at a given time: positive when the wallet is the
// recipient, negative when it is the sender.
type StreamedAmount struct {
	StreamID int64
	Signed   *big.Int
}

// WalletNonAccruedStreamedAmts returns, for every non-accrued stream
// touching account a of token tok, its signed streamed amount at time
// until. Positive entries are incoming, negative are outgoing.
func (t *Tx) WalletNonAccruedStreamedAmts(a, tok address.Address, until int64) ([]StreamedAmount, error) {
	streams, err := t.streamsTouching(a, tok)
	if err != nil {
		return nil, err
	}

	out := make([]StreamedAmount, 0, len(streams))
	for _, s := range streams {
		signed := stream.Streamed(s.StartTs, s.Duration, s.Amount, until)
		if address.String(s.From) == address.String(a) {
			signed = new(big.Int).Neg(signed)
		}
		out = append(out, StreamedAmount{StreamID: s.ID, Signed: signed})
	}
	return out, nil
}

// streamsTouching returns every non-accrued stream of token tok where a is
// sender or recipient.
func (t *Tx) streamsTouching(a, tok address.Address) ([]*Stream, error) {
	rows, err := t.tx.Query(
		`SELECT id, from_account, to_account, token, start_ts, duration, amount, accrued, swap_id
		 FROM stream
		 WHERE token = ? AND accrued = 0 AND (from_account = ? OR to_account = ?)`,
		address.String(tok), address.String(a), address.String(a),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query streams touching wallet: %w", err)
	}
	return scanStreams(rows)
}

// MaxEndTsForWallet returns max(start_ts+duration) across every stream
// touching account a, or 0 if a has no streams at all.
func (t *Tx) MaxEndTsForWallet(a address.Address) (int64, error) {
	var maxEnd sql.NullInt64
	err := t.tx.QueryRow(
		`SELECT MAX(start_ts + duration) FROM stream WHERE from_account = ? OR to_account = ?`,
		address.String(a), address.String(a),
	).Scan(&maxEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to compute max end ts for wallet: %w", err)
	}
	if !maxEnd.Valid {
		return 0, nil
	}
	return maxEnd.Int64, nil
}

func scanStream(row *sql.Row) (*Stream, error) {
	var s Stream
	var from, to, tok string
	var amount string
	var accrued int
	var swapID sql.NullInt64

	err := row.Scan(&s.ID, &from, &to, &tok, &s.StartTs, &s.Duration, &amount, &accrued, &swapID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("stream: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan stream: %w", err)
	}
	return fillStream(&s, from, to, tok, amount, accrued, swapID)
}

func scanStreams(rows *sql.Rows) ([]*Stream, error) {
	defer rows.Close()

	var out []*Stream
	for rows.Next() {
		var s Stream
		var from, to, tok string
		var amount string
		var accrued int
		var swapID sql.NullInt64

		if err := rows.Scan(&s.ID, &from, &to, &tok, &s.StartTs, &s.Duration, &amount, &accrued, &swapID); err != nil {
			return nil, fmt.Errorf("failed to scan stream: %w", err)
		}
		filled, err := fillStream(&s, from, to, tok, amount, accrued, swapID)
		if err != nil {
			return nil, err
		}
		out = append(out, filled)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate streams: %w", err)
	}
	return out, nil
}

func fillStream(s *Stream, from, to, tok, amount string, accrued int, swapID sql.NullInt64) (*Stream, error) {
	var err error
	if s.From, err = address.Parse(from); err != nil {
		return nil, fmt.Errorf("failed to parse stream from address: %w", err)
	}
	if s.To, err = address.Parse(to); err != nil {
		return nil, fmt.Errorf("failed to parse stream to address: %w", err)
	}
	if s.Token, err = address.Parse(tok); err != nil {
		return nil, fmt.Errorf("failed to parse stream token address: %w", err)
	}
	if s.Amount, err = decimal.Parse(amount); err != nil {
		return nil, fmt.Errorf("failed to parse stream amount: %w", err)
	}
	s.Accrued = accrued != 0
	if swapID.Valid {
		id := swapID.Int64
		s.SwapID = &id
	}
	return s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
