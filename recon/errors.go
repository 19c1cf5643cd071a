/*
errors.go - Centralized error types for the reconciliation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Consumers (store implementations, the refund orchestrator, the API)
  wrap these errors with additional context.

ERROR CATEGORIES:
  1. Store errors - Persistence and lookup failures
  2. Invariant errors - Refund balance and status-transition violations

USAGE:
  Callers branch with errors.Is/As:

    var balErr *recon.RefundExceedsBalanceError
    if errors.As(err, &balErr) {
        // surface balErr.Remaining to the operator
    }

SEE ALSO:
  - store.go: Returns these from Save/UpdateStatus
  - refund/orchestrator.go: Wraps these in BatchError
*/
package recon

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrTransactionNotFound is returned when a referenced transaction
	// doesn't exist in the store.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrDuplicateIdempotencyKey is returned when a transaction with the
	// same idempotency key already exists. Expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrRefundExceedsBalance is returned when a refund would push the total
	// refunded against a transaction past its original amount. This is the
	// server-enforced balance invariant.
	ErrRefundExceedsBalance = errors.New("refund exceeds remaining balance")

	// ErrInvalidStatusTransition is returned when a status update targets
	// anything other than "failed". Transactions are never deleted and
	// amounts are never edited; failing a transaction is the only mutation.
	ErrInvalidStatusTransition = errors.New("invalid status transition")

	// ErrInvalidParent is returned when a refund or adjustment references a
	// parent that cannot own it (wrong type, or not found at write time).
	ErrInvalidParent = errors.New("invalid parent transaction")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RefundExceedsBalanceError details a balance invariant violation.
type RefundExceedsBalanceError struct {
	TransactionID   TransactionID
	Original        decimal.Decimal
	AlreadyRefunded decimal.Decimal
	Requested       decimal.Decimal
}

func (e *RefundExceedsBalanceError) Error() string {
	remaining := e.Original.Sub(e.AlreadyRefunded)
	return fmt.Sprintf("refund of %s exceeds remaining balance %s on %s (original %s, already refunded %s)",
		e.Requested, remaining, e.TransactionID, e.Original, e.AlreadyRefunded)
}

func (e *RefundExceedsBalanceError) Unwrap() error {
	return ErrRefundExceedsBalance
}

// Remaining returns the amount still refundable on the parent.
func (e *RefundExceedsBalanceError) Remaining() decimal.Decimal {
	return e.Original.Sub(e.AlreadyRefunded)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input
// rather than a server-side failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrRefundExceedsBalance) ||
		errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrInvalidStatusTransition) ||
		errors.Is(err, ErrInvalidParent)
}

// IsNotFound returns true if the error indicates a missing transaction.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTransactionNotFound)
}
