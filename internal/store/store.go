// Package store keeps a local ledger of submitted withdrawals so request
// codes that had no transaction id yet can be resolved later.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// timeLayout has a fixed-width fraction so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when no withdrawal matches a request code.
var ErrNotFound = errors.New("withdrawal not found")

// Withdrawal is one submitted withdrawal.
type Withdrawal struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"account_id"`
	CryptoCode  string          `json:"crypto_code"`
	Address     string          `json:"address"`
	Amount      decimal.Decimal `json:"amount"`
	Fee         decimal.Decimal `json:"fee"`
	RequestCode string          `json:"request_code"`
	TxID        string          `json:"tx_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Ledger is a SQLite-backed withdrawal log.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the database file and its directory when missing.
func Open(path string) (*Ledger, error) {
	if path == "" {
		return nil, errors.New("ledger path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir ledger dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	l := &Ledger{db: db, now: time.Now}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

// Insert stores w, assigning an id and timestamps when unset.
func (l *Ledger) Insert(ctx context.Context, w *Withdrawal) error {
	if w.RequestCode == "" {
		return errors.New("request code is required")
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	now := l.now().UTC()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now

	_, err := l.db.ExecContext(ctx, `
INSERT INTO withdrawals (id,account_id,crypto_code,address,amount,fee,request_code,tx_id,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)
`, w.ID, w.AccountID, w.CryptoCode, w.Address, w.Amount.String(), w.Fee.String(), w.RequestCode,
		nullable(w.TxID), w.CreatedAt.UTC().Format(timeLayout), w.UpdatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert withdrawal %s: %w", w.RequestCode, err)
	}
	return nil
}

// SetTxID records the on-chain id for requestCode.
func (l *Ledger) SetTxID(ctx context.Context, requestCode, txID string) error {
	res, err := l.db.ExecContext(ctx, `
UPDATE withdrawals SET tx_id=?, updated_at=? WHERE request_code=?
`, nullable(txID), l.now().UTC().Format(timeLayout), requestCode)
	if err != nil {
		return fmt.Errorf("update withdrawal %s: %w", requestCode, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update withdrawal %s: %w", requestCode, ErrNotFound)
	}
	return nil
}

func (l *Ledger) Get(ctx context.Context, requestCode string) (*Withdrawal, error) {
	row := l.db.QueryRowContext(ctx, selectColumns+` WHERE request_code=?`, requestCode)
	w, err := scanWithdrawal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("withdrawal %s: %w", requestCode, ErrNotFound)
	}
	return w, err
}

// ListPending returns accountID's withdrawals that have no tx id yet, oldest
// first.
func (l *Ledger) ListPending(ctx context.Context, accountID string) ([]Withdrawal, error) {
	return l.query(ctx, selectColumns+`
WHERE account_id=? AND (tx_id IS NULL OR tx_id='')
ORDER BY created_at ASC`, accountID)
}

// List returns accountID's most recent withdrawals, newest first.
func (l *Ledger) List(ctx context.Context, accountID string, limit int) ([]Withdrawal, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.query(ctx, selectColumns+`
WHERE account_id=?
ORDER BY created_at DESC
LIMIT ?`, accountID, limit)
}

const selectColumns = `
SELECT id,account_id,crypto_code,address,amount,fee,request_code,tx_id,created_at,updated_at
FROM withdrawals`

type scanner interface {
	Scan(dest ...any) error
}

func scanWithdrawal(row scanner) (*Withdrawal, error) {
	var (
		w                Withdrawal
		amount, fee      string
		txID             sql.NullString
		created, updated string
	)
	if err := row.Scan(&w.ID, &w.AccountID, &w.CryptoCode, &w.Address, &amount, &fee, &w.RequestCode, &txID, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if w.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("withdrawal %s amount: %w", w.ID, err)
	}
	if w.Fee, err = decimal.NewFromString(fee); err != nil {
		return nil, fmt.Errorf("withdrawal %s fee: %w", w.ID, err)
	}
	w.TxID = txID.String
	w.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	w.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &w, nil
}

func (l *Ledger) query(ctx context.Context, q string, args ...any) ([]Withdrawal, error) {
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query withdrawals: %w", err)
	}
	defer rows.Close()

	var out []Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
