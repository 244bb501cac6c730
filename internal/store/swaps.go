package store

import (
	"fmt"
	"math/big"

	"github.com/streamdex/engine/pkg/address"
	"github.com/streamdex/engine/pkg/decimal"
)

// CreateSwap inserts a new swap row bound to pairAddr and returns its id.
// The two streams making up the swap (to-pair and from-pair) are inserted
// separately via AddStream, tagged with this id.
func (t *Tx) CreateSwap(pairAddr address.Address) (int64, error) {
	result, err := t.tx.Exec(`INSERT INTO swap (pair_address) VALUES (?)`, address.String(pairAddr))
	if err != nil {
		return 0, fmt.Errorf("failed to create swap: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read new swap id: %w", err)
	}
	return id, nil
}

// UpdatablePair is one row of UpdatablePairs: a pair reachable from a
// non-accrued swap stream touching the queried wallet, with its current
// settlement watermark.
type UpdatablePair struct {
	Pair            address.Address
	LastProcessedTs int64
}

// UpdatablePairs returns the distinct pairs reachable from non-accrued swap
// streams flowing into account a of token tok, with their last_processed_ts
// watermarks — the set of pairs the settlement hook must walk to realise a
// is pending AMM payouts by time until.
func (t *Tx) UpdatablePairs(a, tok address.Address, until int64) ([]UpdatablePair, error) {
	rows, err := t.tx.Query(
		`SELECT DISTINCT p.address, p.last_processed_ts
		 FROM stream s
		 JOIN swap sw ON sw.id = s.swap_id
		 JOIN pair p ON p.address = sw.pair_address
		 WHERE s.to_account = ? AND s.token = ? AND s.accrued = 0 AND s.start_ts <= ?`,
		address.String(a), address.String(tok), until,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query updatable pairs: %w", err)
	}
	defer rows.Close()

	var out []UpdatablePair
	for rows.Next() {
		var addr string
		var up UpdatablePair
		if err := rows.Scan(&addr, &up.LastProcessedTs); err != nil {
			return nil, fmt.Errorf("failed to scan updatable pair: %w", err)
		}
		if up.Pair, err = address.Parse(addr); err != nil {
			return nil, fmt.Errorf("failed to parse updatable pair address: %w", err)
		}
		out = append(out, up)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate updatable pairs: %w", err)
	}
	return out, nil
}

// PairSwap is one row of SwapsForPair: the shape the settlement hook needs
// to integrate a single swap's contribution over an increment — the to-pair
// leg's rate inputs, and the from-pair leg's current state to extend.
type PairSwap struct {
	ToPairStreamID   int64
	ToPairFrom       address.Address // the trader; the from-pair leg pays the swap's `to`, which may differ
	ToPairToken      address.Address // the input token (one of the pair's two)
	ToPairStartTs    int64
	ToPairAmount     *big.Int
	ToPairDuration   int64
	FromPairStreamID int64
	FromPairAmount   *big.Int
	FromPairStartTs  int64
	FromPairDuration int64
	FromPairToken    address.Address // the output token
}

// SwapsForPair returns, for every swap bound to pairAddr whose to-pair leg
// has started by until, the tuple the hook needs: the to-pair stream's
// id/amount/duration (to derive its input rate) and the from-pair stream's
// id/current-amount/current-duration (to extend).
func (t *Tx) SwapsForPair(pairAddr address.Address, until int64) ([]PairSwap, error) {
	rows, err := t.tx.Query(
		`SELECT
			tp.id, tp.from_account, tp.token, tp.start_ts, tp.amount, tp.duration,
			fp.id, fp.amount, fp.start_ts, fp.duration, fp.token
		 FROM swap sw
		 JOIN stream tp ON tp.swap_id = sw.id AND tp.to_account = sw.pair_address
		 JOIN stream fp ON fp.swap_id = sw.id AND fp.from_account = sw.pair_address
		 WHERE sw.pair_address = ? AND tp.start_ts <= ?`,
		address.String(pairAddr), until,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query swaps for pair: %w", err)
	}
	defer rows.Close()

	var out []PairSwap
	for rows.Next() {
		var ps PairSwap
		var fromAddr, toPairTok, fromPairTok string
		var toPairAmt, fromPairAmt string

		if err := rows.Scan(
			&ps.ToPairStreamID, &fromAddr, &toPairTok, &ps.ToPairStartTs, &toPairAmt, &ps.ToPairDuration,
			&ps.FromPairStreamID, &fromPairAmt, &ps.FromPairStartTs, &ps.FromPairDuration, &fromPairTok,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pair swap: %w", err)
		}

		if ps.ToPairFrom, err = address.Parse(fromAddr); err != nil {
			return nil, fmt.Errorf("failed to parse swap trader address: %w", err)
		}
		if ps.ToPairToken, err = address.Parse(toPairTok); err != nil {
			return nil, fmt.Errorf("failed to parse swap input token: %w", err)
		}
		if ps.FromPairToken, err = address.Parse(fromPairTok); err != nil {
			return nil, fmt.Errorf("failed to parse swap output token: %w", err)
		}
		if ps.ToPairAmount, err = decimal.Parse(toPairAmt); err != nil {
			return nil, fmt.Errorf("failed to parse swap input amount: %w", err)
		}
		if ps.FromPairAmount, err = decimal.Parse(fromPairAmt); err != nil {
			return nil, fmt.Errorf("failed to parse swap output amount: %w", err)
		}
		out = append(out, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate swaps for pair: %w", err)
	}
	return out, nil
}
