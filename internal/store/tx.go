package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Tx is the store's ambient transaction. Every kernel operation for one
// dispatched action runs against a single Tx; Commit or Rollback is called
// exactly once, by the dispatcher, after the action resolves.
type Tx struct {
	tx        *sql.Tx
	savepoint int
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback rolls back the transaction. Rolling back a transaction that was
// already committed or rolled back is a no-op, mirroring database/sql.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

// Simulate runs fn against a SQLite SAVEPOINT and always rolls back to it
// afterward, regardless of fn's outcome. This is the only way
// future-balance and other read-only projections are allowed to touch the
// store: they mutate freely inside fn, observe the result, and the mutation
// never leaves the savepoint. fn's own error (if any) is returned to the
// caller after the rollback has happened.
func (t *Tx) Simulate(fn func(*Tx) error) error {
	t.savepoint++
	name := fmt.Sprintf("sim_%d", t.savepoint)

	if _, err := t.tx.Exec("SAVEPOINT " + name); err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}

	fnErr := fn(t)

	if _, err := t.tx.Exec("ROLLBACK TO SAVEPOINT " + name); err != nil {
		return fmt.Errorf("failed to roll back savepoint: %w", err)
	}
	if _, err := t.tx.Exec("RELEASE SAVEPOINT " + name); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}

	return fnErr
}

// ErrQueryNotReadOnly is returned by InspectQuery when given anything other
// than a SELECT statement.
var ErrQueryNotReadOnly = errors.New("store: inspect query must be a SELECT statement")

// InspectQuery executes an arbitrary read-only SQL statement and returns its
// rows as strings, for the host's inspect-state passthrough. It always runs
// inside a savepoint that is rolled back afterward, so even a pathological
// query (a SELECT with a side-effecting virtual table, say) cannot leak
// state into the surrounding transaction.
func (t *Tx) InspectQuery(query string) ([][]string, error) {
	trimmed := strings.TrimSpace(query)
	if len(trimmed) < 6 || !strings.EqualFold(trimmed[:6], "select") {
		return nil, ErrQueryNotReadOnly
	}

	var result [][]string
	err := t.Simulate(func(t *Tx) error {
		rows, err := t.tx.Query(query)
		if err != nil {
			return fmt.Errorf("failed to run inspect query: %w", err)
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("failed to read inspect query columns: %w", err)
		}

		for rows.Next() {
			raw := make([]interface{}, len(cols))
			ptrs := make([]interface{}, len(cols))
			for i := range raw {
				ptrs[i] = &raw[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return fmt.Errorf("failed to scan inspect query row: %w", err)
			}
			row := make([]string, len(cols))
			for i, v := range raw {
				row[i] = fmt.Sprintf("%v", v)
			}
			result = append(result, row)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
