/*
Package sqlite provides a SQLite-backed implementation of recon.Store.

PURPOSE:
  Persists the transaction forest: charges/payments as roots, refunds and
  adjustments as children. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

LIFECYCLE ENFORCEMENT:
  - No DELETE on the transactions table; Reset exists only for demo/tests
  - Amounts are never UPDATEd; the single mutation is status -> 'failed'
  - The refund balance invariant is checked inside the same database
    transaction as the insert, so concurrent refunds against one parent
    serialize on the write and cannot overshoot the original amount

KEY COLUMNS:
  amount:   stored as TEXT and parsed with shopspring/decimal; SQLite's
            REAL type would reintroduce the float errors decimal avoids
  root_id:  denormalized root pointer, assigned at insert from the parent;
            lets LoadTree fetch a whole tree in one query
  parent_id: the refund/adjustment back-reference

WAL MODE:
  Opened with WAL for better concurrency: readers don't block, single
  writer at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/payments.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - recon/store.go: Interface definition and invariant contract
  - recon/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/payment-engine/recon"
)

// Store implements recon.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		tx_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		parent_id TEXT,
		root_id TEXT NOT NULL,
		customer_id TEXT,
		invoice_id TEXT,
		credit_note_id TEXT,
		estimate_id TEXT,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_parent
		ON transactions(parent_id);
	-- Tree loads are the hot path: one lookup by root_id per reconciliation
	CREATE INDEX IF NOT EXISTS idx_transactions_root
		ON transactions(root_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_status_created
		ON transactions(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_idempotency
		ON transactions(idempotency_key) WHERE idempotency_key IS NOT NULL;
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// WRITES
// =============================================================================

// Save inserts a transaction. Refunds are balance-checked against their
// parent inside the same database transaction as the insert.
func (s *Store) Save(ctx context.Context, tx recon.Transaction) (*recon.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer dbTx.Rollback()

	if tx.IdempotencyKey != "" {
		var n int
		err := dbTx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM transactions WHERE idempotency_key = ?`, tx.IdempotencyKey).Scan(&n)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, recon.ErrDuplicateIdempotencyKey
		}
	}

	rootID := tx.ID
	if tx.ParentID != "" {
		parent, err := s.getTx(ctx, dbTx, tx.ParentID)
		if err != nil {
			return nil, err
		}
		rootID = recon.TransactionID(parentRootID(ctx, dbTx, parent.ID))

		if tx.Type == recon.TxRefund {
			if !parent.IsPaymentLike() {
				return nil, recon.ErrInvalidParent
			}
			already, err := s.refundedAgainst(ctx, dbTx, parent.ID)
			if err != nil {
				return nil, err
			}
			if already.Add(tx.Amount).GreaterThan(parent.Amount) {
				return nil, &recon.RefundExceedsBalanceError{
					TransactionID:   parent.ID,
					Original:        parent.Amount,
					AlreadyRefunded: already,
					Requested:       tx.Amount,
				}
			}
		}
		if tx.Currency == "" {
			tx.Currency = parent.Currency
		}
	}

	now := time.Now().UTC()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now

	_, err = dbTx.ExecContext(ctx, `
		INSERT INTO transactions
			(id, tx_type, amount, currency, status, parent_id, root_id,
			 customer_id, invoice_id, credit_note_id, estimate_id,
			 reason, idempotency_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(tx.ID), string(tx.Type), tx.Amount.String(), tx.Currency, string(tx.Status),
		nullable(string(tx.ParentID)), string(rootID),
		nullable(tx.CustomerID), nullable(tx.Document.InvoiceID),
		nullable(tx.Document.CreditNoteID), nullable(tx.Document.EstimateID),
		nullable(tx.Reason), nullable(tx.IdempotencyKey),
		tx.CreatedAt.Format(time.RFC3339Nano), tx.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return nil, err
	}

	saved := tx
	saved.Children = nil
	return &saved, nil
}

// refundedAgainst sums the non-failed refund children of a parent.
// Amounts are TEXT; summing happens in decimal, not SQL.
func (s *Store) refundedAgainst(ctx context.Context, q querier, parentID recon.TransactionID) (decimal.Decimal, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT amount FROM transactions
		WHERE parent_id = ? AND tx_type = ? AND status != ?`,
		string(parentID), string(recon.TxRefund), string(recon.StatusFailed))
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, err
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("corrupt amount %q: %w", raw, err)
		}
		total = total.Add(amount)
	}
	return total, rows.Err()
}

func parentRootID(ctx context.Context, q querier, parentID recon.TransactionID) string {
	var rootID string
	err := q.QueryRowContext(ctx,
		`SELECT root_id FROM transactions WHERE id = ?`, string(parentID)).Scan(&rootID)
	if err != nil {
		return string(parentID)
	}
	return rootID
}

// UpdateStatus marks a transaction failed. Any other target status is
// rejected - amounts and types are immutable, and a failed transaction is
// the only terminal mutation the lifecycle allows.
func (s *Store) UpdateStatus(ctx context.Context, id recon.TransactionID, status recon.TransactionStatus) error {
	if status != recon.StatusFailed {
		return recon.ErrInvalidStatusTransition
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET status = ?, updated_at = ? WHERE id = ?`,
		string(recon.StatusFailed), time.Now().UTC().Format(time.RFC3339Nano), string(id))
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return recon.ErrTransactionNotFound
	}
	return nil
}

// Reset clears all data. Demo scenarios and tests only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM transactions`)
	return err
}

// =============================================================================
// READS
// =============================================================================

// Get returns a single transaction without children.
func (s *Store) Get(ctx context.Context, id recon.TransactionID) (*recon.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getTx(ctx, s.db, id)
}

// LoadTree returns the transaction with Children populated through all
// descendants. One query by root_id, assembled in memory.
func (s *Store) LoadTree(ctx context.Context, id recon.TransactionID) (*recon.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rootID string
	err := s.db.QueryRowContext(ctx,
		`SELECT root_id FROM transactions WHERE id = ?`, string(id)).Scan(&rootID)
	if err == sql.ErrNoRows {
		return nil, recon.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.queryTransactions(ctx, `
		SELECT id, tx_type, amount, currency, status, parent_id, customer_id,
		       invoice_id, credit_note_id, estimate_id, reason,
		       idempotency_key, created_at, updated_at
		FROM transactions
		WHERE root_id = ?
		ORDER BY created_at, id`, rootID)
	if err != nil {
		return nil, err
	}

	return recon.AssembleTree(id, rows)
}

// ListRoots returns root transactions, newest first.
func (s *Store) ListRoots(ctx context.Context, limit, offset int) ([]recon.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.queryTransactions(ctx, `
		SELECT id, tx_type, amount, currency, status, parent_id, customer_id,
		       invoice_id, credit_note_id, estimate_id, reason,
		       idempotency_key, created_at, updated_at
		FROM transactions
		WHERE parent_id IS NULL
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?`, limit, offset)
}

// StalePending returns pending transactions created before the cutoff.
func (s *Store) StalePending(ctx context.Context, cutoff time.Time) ([]recon.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryTransactions(ctx, `
		SELECT id, tx_type, amount, currency, status, parent_id, customer_id,
		       invoice_id, credit_note_id, estimate_id, reason,
		       idempotency_key, created_at, updated_at
		FROM transactions
		WHERE status = ? AND created_at < ?
		ORDER BY created_at, id`,
		string(recon.StatusPending), cutoff.UTC().Format(time.RFC3339Nano))
}

// Exists checks if an idempotency key has been used.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM transactions WHERE idempotency_key = ?`, idempotencyKey).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// =============================================================================
// ROW SCANNING
// =============================================================================

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) getTx(ctx context.Context, q querier, id recon.TransactionID) (*recon.Transaction, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, tx_type, amount, currency, status, parent_id, customer_id,
		       invoice_id, credit_note_id, estimate_id, reason,
		       idempotency_key, created_at, updated_at
		FROM transactions WHERE id = ?`, string(id))

	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, recon.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]recon.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []recon.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTransaction(row scannable) (*recon.Transaction, error) {
	var (
		id, txType, amountRaw, currency, status         string
		parentID, customerID, invoiceID                 sql.NullString
		creditNoteID, estimateID, reason, idempotency   sql.NullString
		createdRaw, updatedRaw                          string
	)
	err := row.Scan(&id, &txType, &amountRaw, &currency, &status,
		&parentID, &customerID, &invoiceID, &creditNoteID, &estimateID,
		&reason, &idempotency, &createdRaw, &updatedRaw)
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(amountRaw)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount %q on %s: %w", amountRaw, id, err)
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, createdRaw)
	updatedAt, _ := time.Parse(time.RFC3339Nano, updatedRaw)

	return &recon.Transaction{
		ID:         recon.TransactionID(id),
		Type:       recon.TransactionType(txType),
		Amount:     amount,
		Currency:   currency,
		Status:     recon.TransactionStatus(status),
		ParentID:   recon.TransactionID(parentID.String),
		CustomerID: customerID.String,
		Document: recon.DocumentRef{
			InvoiceID:    invoiceID.String,
			CreditNoteID: creditNoteID.String,
			EstimateID:   estimateID.String,
		},
		Reason:         reason.String,
		IdempotencyKey: idempotency.String,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
