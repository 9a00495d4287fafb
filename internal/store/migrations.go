package store

import (
	"fmt"
)

func (s *Store) migrate() error {
	return s.migrateV1()
}

func (s *Store) migrateV1() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tokens (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		amount INTEGER NOT NULL CHECK (amount > 0),
		signature TEXT NOT NULL,
		issuer_public_key TEXT NOT NULL,
		issued_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tokens_owner ON tokens(owner_id);
	CREATE INDEX IF NOT EXISTS idx_tokens_status_expiry ON tokens(status, expires_at);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		local_id TEXT,
		sender_id TEXT,
		receiver_id TEXT,
		amount INTEGER NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		sender_signature TEXT,
		receiver_signature TEXT,
		blockchain_tx_hash TEXT,
		error_message TEXT,
		metadata TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_tx_local_id ON transactions(local_id)
		WHERE local_id IS NOT NULL AND local_id != '';
	CREATE INDEX IF NOT EXISTS idx_tx_sender ON transactions(sender_id);
	CREATE INDEX IF NOT EXISTS idx_tx_status ON transactions(status);
	CREATE INDEX IF NOT EXISTS idx_tx_created ON transactions(created_at);

	CREATE TABLE IF NOT EXISTS transaction_tokens (
		transaction_id TEXT NOT NULL REFERENCES transactions(id),
		token_id TEXT NOT NULL,
		PRIMARY KEY (transaction_id, token_id)
	);

	CREATE INDEX IF NOT EXISTS idx_txtok_token ON transaction_tokens(token_id);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', '1');
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migration v1 failed: %w", err)
	}
	return nil
}
