package store

import (
	"database/sql"
	"fmt"
	"math/big"

	"github.com/streamdex/engine/pkg/address"
	"github.com/streamdex/engine/pkg/decimal"
)

// GetBalance returns account a's stored balance of token t, or 0 if no
// balance row exists yet.
func (t *Tx) GetBalance(a, tok address.Address) (*big.Int, error) {
	var raw string
	err := t.tx.QueryRow(
		`SELECT amount FROM balance WHERE account = ? AND token = ?`,
		address.String(a), address.String(tok),
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return decimal.Parse(raw)
}

// SetBalance sets account a's stored balance of token t.
func (t *Tx) SetBalance(a, tok address.Address, amount *big.Int) error {
	_, err := t.tx.Exec(
		`INSERT INTO balance (account, token, amount) VALUES (?, ?, ?)
		 ON CONFLICT(account, token) DO UPDATE SET amount = excluded.amount`,
		address.String(a), address.String(tok), decimal.ToString(amount),
	)
	if err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}
	return nil
}
