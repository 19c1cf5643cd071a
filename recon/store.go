/*
store.go - Persistence interface for transaction trees

PURPOSE:
  Defines the interface between the reconciliation domain and the database.
  Different implementations can use SQLite or in-memory storage.

LIFECYCLE CONTRACT:
  Transactions are created once and never deleted. Amounts are immutable.
  The only permitted mutation is marking a transaction failed (voiding);
  everything else is corrected by appending refund/adjustment children.

WRITE-TIME INVARIANTS (enforced by Save):
  - Idempotency: a duplicate idempotency key rejects the write.
  - Parentage: refunds and adjustments must reference an existing parent;
    refunds may only hang off a charge or payment.
  - Balance: the sum of a node's non-failed refund children never exceeds
    the node's original amount. Checked atomically with the insert, because
    concurrent refund requests against the same parent must not race past
    the balance.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - recon/store/memory.go: In-memory for testing

SEE ALSO:
  - tree.go: AssembleTree, used by LoadTree implementations
*/
package recon

import (
	"context"
	"time"
)

// Store handles persistence of transactions and their parent/child links.
type Store interface {
	// Save inserts a transaction, enforcing the write-time invariants
	// documented above. Amounts are never updated after insert.
	Save(ctx context.Context, tx Transaction) (*Transaction, error)

	// Get returns a single transaction without children.
	// Returns ErrTransactionNotFound if missing.
	Get(ctx context.Context, id TransactionID) (*Transaction, error)

	// LoadTree returns the transaction with Children populated through all
	// descendants. Works on non-root ids too (returns that subtree).
	LoadTree(ctx context.Context, id TransactionID) (*Transaction, error)

	// ListRoots returns root transactions, newest first.
	ListRoots(ctx context.Context, limit, offset int) ([]Transaction, error)

	// UpdateStatus marks a transaction failed. Any other target status
	// returns ErrInvalidStatusTransition.
	UpdateStatus(ctx context.Context, id TransactionID, status TransactionStatus) error

	// StalePending returns pending transactions created before the cutoff.
	StalePending(ctx context.Context, cutoff time.Time) ([]Transaction, error)

	// Exists checks if an idempotency key has been used.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)

	// Reset clears all data. Used by demo scenario loading and tests.
	Reset(ctx context.Context) error
}
