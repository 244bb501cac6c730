package store

import (
	"fmt"

	"github.com/streamdex/engine/pkg/address"
)

// UpsertAccount idempotently records that addr has been referenced. Accounts
// are never deleted, so this is a plain INSERT OR IGNORE.
func (t *Tx) UpsertAccount(addr address.Address) error {
	_, err := t.tx.Exec(`INSERT OR IGNORE INTO account (address) VALUES (?)`, address.String(addr))
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}
