package store

import (
	"database/sql"
	"fmt"

	"github.com/streamdex/engine/pkg/address"
)

// Pair is the persisted row for a liquidity pair: its two underlying tokens
// (token0 < token1 lexicographically) and the settlement hook's watermark.
type Pair struct {
	Address         address.Address
	Token0          address.Address
	Token1          address.Address
	LastProcessedTs int64
}

// UpsertPair idempotently registers a pair and its two underlying tokens,
// along with the pair address's own token row (its LP token).
// t0 and t1 must already be in token0 < token1 order; callers derive the
// pair address and ordering via pkg/address before calling this.
func (t *Tx) UpsertPair(pairAddr, t0, t1 address.Address) error {
	for _, tok := range []address.Address{pairAddr, t0, t1} {
		if err := t.UpsertToken(tok); err != nil {
			return err
		}
	}
	_, err := t.tx.Exec(
		`INSERT OR IGNORE INTO pair (address, token_0_address, token_1_address, last_processed_ts)
		 VALUES (?, ?, ?, 0)`,
		address.String(pairAddr), address.String(t0), address.String(t1),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert pair: %w", err)
	}
	return nil
}

// GetPair returns the persisted row for pairAddr.
func (t *Tx) GetPair(pairAddr address.Address) (*Pair, error) {
	var p Pair
	var t0, t1, addr string
	err := t.tx.QueryRow(
		`SELECT address, token_0_address, token_1_address, last_processed_ts FROM pair WHERE address = ?`,
		address.String(pairAddr),
	).Scan(&addr, &t0, &t1, &p.LastProcessedTs)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("pair %s: %w", address.String(pairAddr), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pair: %w", err)
	}

	p.Address, err = address.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pair address: %w", err)
	}
	p.Token0, err = address.Parse(t0)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pair token0: %w", err)
	}
	p.Token1, err = address.Parse(t1)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pair token1: %w", err)
	}
	return &p, nil
}

// SetLastProcessedTs advances pairAddr's settlement watermark.
func (t *Tx) SetLastProcessedTs(pairAddr address.Address, ts int64) error {
	result, err := t.tx.Exec(
		`UPDATE pair SET last_processed_ts = ? WHERE address = ?`,
		ts, address.String(pairAddr),
	)
	if err != nil {
		return fmt.Errorf("failed to set last_processed_ts: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("pair %s: %w", address.String(pairAddr), ErrNotFound)
	}
	return nil
}
