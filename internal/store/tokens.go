package store

import (
	"database/sql"
	"fmt"
	"math/big"

	"github.com/streamdex/engine/pkg/address"
	"github.com/streamdex/engine/pkg/decimal"
)

// UpsertToken idempotently registers addr as a token, giving it an initial
// total_supply of 0 if it does not already exist.
func (t *Tx) UpsertToken(addr address.Address) error {
	_, err := t.tx.Exec(
		`INSERT OR IGNORE INTO token (address, total_supply) VALUES (?, ?)`,
		address.String(addr), decimal.Zero,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert token: %w", err)
	}
	return nil
}

// GetTotalSupply returns token addr's total supply, or 0 if addr has not
// been registered as a token yet.
func (t *Tx) GetTotalSupply(addr address.Address) (*big.Int, error) {
	var raw string
	err := t.tx.QueryRow(`SELECT total_supply FROM token WHERE address = ?`, address.String(addr)).Scan(&raw)
	if err == sql.ErrNoRows {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get total supply: %w", err)
	}
	return decimal.Parse(raw)
}

// SetTotalSupply sets token addr's total supply, upserting the token row if
// necessary.
func (t *Tx) SetTotalSupply(addr address.Address, amount *big.Int) error {
	_, err := t.tx.Exec(
		`INSERT INTO token (address, total_supply) VALUES (?, ?)
		 ON CONFLICT(address) DO UPDATE SET total_supply = excluded.total_supply`,
		address.String(addr), decimal.ToString(amount),
	)
	if err != nil {
		return fmt.Errorf("failed to set total supply: %w", err)
	}
	return nil
}
