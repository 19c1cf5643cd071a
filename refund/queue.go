/*
Package refund sequences refund requests across the splits of a payment
application tree.

PURPOSE:
  Reconciliation (package recon) tells us which splits can still be
  refunded and up to how much. This package turns that answer into an
  ordered refund queue, validates operator input before any network call,
  and executes the queue strictly one request at a time.

WHY SEQUENTIAL:
  Each refund mutates server-side balance state that the next refund's
  validity depends on (total refunded must never exceed the original
  amount, enforced server-side). Concurrent refund requests against the
  same parent could race that check, so split N+1 is never issued until
  split N's response arrives. This is a correctness requirement, not a
  performance choice.

FAILURE POLICY:
  Halt on first failure. Committed refunds are NOT rolled back; the caller
  is left with a partially-refunded tree and must reload to reconcile.
  There are no automatic retries anywhere - retries are manual.

KEY CONCEPTS IN THIS FILE (queue.go):
  - QueueItem: One split awaiting refund, with its one-shot state
  - FullQueue / PartialQueue: Building queues from a ReconciliationResult

SEE ALSO:
  - orchestrator.go: Sequential execution
  - client.go: HTTP client for the transaction API
*/
package refund

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/payment-engine/recon"
)

// =============================================================================
// QUEUE ITEM - One split awaiting refund
// =============================================================================

// State tracks a queued item's one-shot transition. An aborted batch leaves
// the remaining items Pending forever; they are never resumed.
type State string

const (
	StatePending   State = "pending"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// QueueItem is one split to refund. Customer and Document are carried along
// because the refund response does not include them; the orchestrator
// re-attaches them to each committed refund.
type QueueItem struct {
	TransactionID recon.TransactionID
	Amount        decimal.Decimal // Requested refund amount
	MaxAmount     decimal.Decimal // Remaining refundable on this split
	Currency      string
	CustomerID    string
	Document      recon.DocumentRef
	State         State
}

// =============================================================================
// VALIDATION ERRORS - Surfaced before any network call
// =============================================================================

var (
	// ErrNoRefundableSplits is returned when the tree has nothing left to
	// refund (every leaf fully offset).
	ErrNoRefundableSplits = errors.New("no refundable splits")

	// ErrUnknownSplit is returned when a selected split is not among the
	// tree's refundable leaves.
	ErrUnknownSplit = errors.New("unknown split")

	// ErrNonPositiveAmount is returned for zero or negative refund amounts.
	ErrNonPositiveAmount = errors.New("refund amount must be positive")

	// ErrAmountExceedsSplit is returned when a selected amount exceeds the
	// split's remaining refundable balance.
	ErrAmountExceedsSplit = errors.New("refund amount exceeds split maximum")
)

// SplitValidationError names the offending split.
type SplitValidationError struct {
	TransactionID recon.TransactionID
	Amount        decimal.Decimal
	MaxAmount     decimal.Decimal
	Reason        error
}

func (e *SplitValidationError) Error() string {
	return fmt.Sprintf("split %s: %v (amount %s, max %s)",
		e.TransactionID, e.Reason, e.Amount, e.MaxAmount)
}

func (e *SplitValidationError) Unwrap() error { return e.Reason }

// =============================================================================
// QUEUE CONSTRUCTION
// =============================================================================

// FullQueue builds a queue refunding every eligible split in full.
//
// A single root split is refunded for the tree's net (the root is listed
// with its gross amount; its remaining balance is computed at the top
// level). Every other split is refunded for its own MaxAmount.
func FullQueue(res recon.Result) ([]QueueItem, error) {
	if len(res.AppliedTo) == 0 {
		return nil, ErrNoRefundableSplits
	}

	queue := make([]QueueItem, 0, len(res.AppliedTo))
	for _, split := range res.AppliedTo {
		amount := split.MaxAmount
		if split.IsRoot && len(res.AppliedTo) == 1 {
			amount = res.Net
		}
		queue = append(queue, newItem(split, amount))
	}
	return queue, nil
}

// PartialQueue builds a queue from operator-selected per-split amounts.
// Zero selected splits is a validation error; so is any amount that is
// non-positive, targets an unknown split, or exceeds the split's maximum.
// Queue order follows the reconciliation's AppliedTo order.
func PartialQueue(res recon.Result, amounts map[recon.TransactionID]decimal.Decimal) ([]QueueItem, error) {
	if len(res.AppliedTo) == 0 {
		return nil, ErrNoRefundableSplits
	}
	if len(amounts) == 0 {
		return nil, ErrNoRefundableSplits
	}

	byID := make(map[recon.TransactionID]recon.Split, len(res.AppliedTo))
	for _, s := range res.AppliedTo {
		byID[s.TransactionID] = s
	}

	for id, amount := range amounts {
		split, ok := byID[id]
		if !ok {
			return nil, &SplitValidationError{TransactionID: id, Amount: amount, Reason: ErrUnknownSplit}
		}
		if !amount.IsPositive() {
			return nil, &SplitValidationError{TransactionID: id, Amount: amount, MaxAmount: split.MaxAmount, Reason: ErrNonPositiveAmount}
		}
		max := split.MaxAmount
		if split.IsRoot && len(res.AppliedTo) == 1 {
			max = res.Net
		}
		if amount.GreaterThan(max) {
			return nil, &SplitValidationError{TransactionID: id, Amount: amount, MaxAmount: max, Reason: ErrAmountExceedsSplit}
		}
	}

	var queue []QueueItem
	for _, split := range res.AppliedTo {
		amount, ok := amounts[split.TransactionID]
		if !ok {
			continue
		}
		queue = append(queue, newItem(split, amount))
	}
	return queue, nil
}

func newItem(split recon.Split, amount decimal.Decimal) QueueItem {
	return QueueItem{
		TransactionID: split.TransactionID,
		Amount:        amount,
		MaxAmount:     split.MaxAmount,
		Currency:      split.Currency,
		CustomerID:    split.CustomerID,
		Document:      split.Document,
		State:         StatePending,
	}
}
