package store

import (
	"context"
	"fmt"
	"time"
)

func (l *Ledger) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS withdrawals (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL,
  crypto_code TEXT NOT NULL,
  address TEXT NOT NULL,
  amount TEXT NOT NULL,
  fee TEXT NOT NULL,
  request_code TEXT NOT NULL UNIQUE,
  tx_id TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_withdrawals_account ON withdrawals(account_id, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
