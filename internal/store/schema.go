package store

// schema bootstraps every persisted-state table. All amount columns are TEXT
// holding base-10 integers (see pkg/decimal) so balances are never capped at
// 64 bits.
const schema = `
-- Accounts are created on first reference and never deleted.
CREATE TABLE IF NOT EXISTS account (
	address TEXT PRIMARY KEY
);

-- Every pair address is also a token row (it is the LP token of that pair).
CREATE TABLE IF NOT EXISTS token (
	address      TEXT PRIMARY KEY,
	total_supply TEXT NOT NULL DEFAULT '0'
);

CREATE TABLE IF NOT EXISTS pair (
	address           TEXT PRIMARY KEY,
	token_0_address   TEXT NOT NULL,
	token_1_address   TEXT NOT NULL,
	last_processed_ts INTEGER NOT NULL DEFAULT 0,
	FOREIGN KEY (address) REFERENCES token(address)
);

CREATE TABLE IF NOT EXISTS balance (
	account TEXT NOT NULL,
	token   TEXT NOT NULL,
	amount  TEXT NOT NULL DEFAULT '0',
	PRIMARY KEY (account, token)
);

CREATE TABLE IF NOT EXISTS swap (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	pair_address TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_swap_pair ON swap(pair_address);

-- from_account/to_account rather than bare from/to: both are reserved words
-- in some SQL dialects and the original's column names invite confusion
-- with Go's own "from"/"to" identifiers used throughout the kernel.
CREATE TABLE IF NOT EXISTS stream (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	from_account TEXT NOT NULL,
	to_account   TEXT NOT NULL,
	token        TEXT NOT NULL,
	start_ts     INTEGER NOT NULL,
	duration     INTEGER NOT NULL,
	amount       TEXT NOT NULL,
	accrued      INTEGER NOT NULL DEFAULT 0,
	swap_id      INTEGER,
	FOREIGN KEY (swap_id) REFERENCES swap(id)
);

CREATE INDEX IF NOT EXISTS idx_stream_from ON stream(from_account, token, accrued);
CREATE INDEX IF NOT EXISTS idx_stream_to ON stream(to_account, token, accrued);
CREATE INDEX IF NOT EXISTS idx_stream_swap ON stream(swap_id);
CREATE INDEX IF NOT EXISTS idx_stream_end ON stream(start_ts, duration);
`

func (s *Store) initSchema() error {
	_, err := s.db.Exec(schema)
	return err
}
