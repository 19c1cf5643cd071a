/*
Package recon provides the payment application tree reconciliation engine.

PURPOSE:
  This package contains the domain types and algorithms for reconciling a
  tree of monetary transactions: a root charge or payment, the refunds and
  adjustments applied against it, and the per-document splits of a payment
  spread across multiple invoices. Given a fully-populated tree, the engine
  computes what was collected, what was reversed, and which splits can still
  be refunded.

KEY CONCEPTS IN THIS FILE (types.go):
  - Transaction: A monetary event (charge, payment, refund, adjustment)
  - DocumentRef: Which receivable document a transaction was applied to
  - TransactionID: Type-safe identifier

DESIGN PRINCIPLES:
  1. Purity: Reconciliation is a pure function over an in-memory tree;
     callers fetch children before calling. No I/O in this package.
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Immutability: Amounts are never edited; corrections arrive as new
     refund or adjustment transactions
  4. Auditability: Every transaction carries a reason and idempotency key

USAGE:
  root, _ := store.LoadTree(ctx, "py_123")
  result := recon.CalculateTree(root)
  // result.Net, result.AppliedTo, ...

SEE ALSO:
  - reconcile.go: CalculateTree and the classification walk
  - tree.go: Assembling trees from flat rows
  - money.go: Currency-aware rounding
  - store.go: Persistence interface
*/
package recon

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TransactionID string

// =============================================================================
// TRANSACTION - A monetary event in the application tree
// =============================================================================

type TransactionType string

const (
	TxCharge     TransactionType = "charge"     // Card/bank charge collected by the processor
	TxPayment    TransactionType = "payment"    // Recorded payment (incl. offline/manual)
	TxRefund     TransactionType = "refund"     // Reversal against a charge/payment
	TxAdjustment TransactionType = "adjustment" // Manual correction; negative amount = credit
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusSucceeded TransactionStatus = "succeeded"
	StatusFailed    TransactionStatus = "failed"
)

// DocumentRef links a transaction to the receivable document it was applied
// to. At most one of the three fields is set in the common case; a split
// payment produces one child transaction per document.
type DocumentRef struct {
	InvoiceID    string
	CreditNoteID string
	EstimateID   string
}

func (d DocumentRef) IsZero() bool {
	return d.InvoiceID == "" && d.CreditNoteID == "" && d.EstimateID == ""
}

// Transaction is one node of a payment application tree. Trees form a forest
// rooted at charges/payments; refunds and adjustments hang off the node they
// reduce via ParentID.
type Transaction struct {
	ID       TransactionID
	Type     TransactionType
	Amount   decimal.Decimal // Signed; adjustments may be negative (credits)
	Currency string          // ISO 4217 code
	Status   TransactionStatus

	// ParentID is the back-reference to the transaction this one refunds or
	// adjusts. Empty for roots. A refund is logically owned by the
	// transaction it reduces.
	ParentID TransactionID

	CustomerID string
	Document   DocumentRef

	Reason         string
	IdempotencyKey string

	CreatedAt time.Time
	UpdatedAt time.Time

	// Children is the ordered sequence of dependent transactions: refunds
	// against this node, or split counterparts of a multi-document payment.
	// Populated by Store.LoadTree; nil when loaded without expansion.
	Children []*Transaction
}

// IsPaymentLike reports whether the transaction collects money (charge or
// payment), as opposed to reversing or adjusting it.
func (t *Transaction) IsPaymentLike() bool {
	return t.Type == TxCharge || t.Type == TxPayment
}

// IsRoot reports whether the transaction has no parent.
func (t *Transaction) IsRoot() bool {
	return t.ParentID == ""
}

// =============================================================================
// RECONCILIATION RESULT - Derived, never persisted
// =============================================================================

// Split is one payment/charge leaf that still carries unrefunded balance.
type Split struct {
	TransactionID TransactionID
	MaxAmount     decimal.Decimal // Remaining refundable amount for this split
	Currency      string
	CustomerID    string
	Document      DocumentRef
	IsRoot        bool
}

// Result is the outcome of reconciling one transaction tree. It is
// recomputed on demand every time the tree is loaded and has no independent
// persistence.
type Result struct {
	Currency string

	Paid     decimal.Decimal // Total successfully collected across the tree
	Credited decimal.Decimal // Magnitude of negative-amount adjustments
	Refunded decimal.Decimal // Total reversed via succeeded refunds
	Net      decimal.Decimal // round(currency, Paid - Refunded); may be negative

	// AppliedTo lists the payment/charge leaves still eligible for refund.
	// Every entry has MaxAmount > 0.
	AppliedTo []Split

	// HasSubTransactions signals that a refund must be split per leaf rather
	// than issued as one aggregate refund (more than one payment/charge leaf).
	HasSubTransactions bool

	// OrphanedRefunds lists refund nodes whose ParentID matched nothing in
	// the loaded tree (e.g. pagination truncated the expansion). They count
	// toward Refunded but cannot mark any split as refunded.
	OrphanedRefunds []TransactionID
}
