/*
orchestrator.go - Sequential refund batch execution

PURPOSE:
  Executes a refund queue strictly one request at a time, halting on the
  first failure and leaving committed refunds in place. The "halt, no
  rollback" policy is an explicit branch here, not an emergent property of
  callbacks never firing.

STATE MACHINE (per queued item):
  Pending -> (refund call) -> Succeeded | Failed
  One-shot, no retry. A failure aborts the remaining queue; untouched items
  stay Pending and are never resumed.

CANCELLATION:
  Checked only between items, never mid-call, so an in-flight refund is
  always given its full response. A cancelled batch reports like a failed
  one: committed prefix kept, remainder Pending.

SEE ALSO:
  - queue.go: Queue construction and pre-flight validation
  - client.go: HTTP implementation of Client
*/
package refund

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/payment-engine/recon"
)

// Client issues a single refund against one split. Implemented over HTTP by
// HTTPClient and in-process by the API's store adapter.
type Client interface {
	Refund(ctx context.Context, id recon.TransactionID, amount decimal.Decimal) (recon.Transaction, error)
}

// =============================================================================
// BATCH RESULT AND ERROR
// =============================================================================

// BatchResult reports the outcome of a batch. Items carries the final state
// of every queued item in order.
type BatchResult struct {
	Committed []recon.Transaction
	Items     []QueueItem
}

// BatchError identifies the item that aborted the batch. The committed
// prefix is preserved on the accompanying BatchResult - the caller must
// reload the tree to reconcile partially-refunded state.
type BatchError struct {
	Index         int
	TransactionID recon.TransactionID
	Cause         error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("refund batch aborted at item %d (%s): %v", e.Index, e.TransactionID, e.Cause)
}

func (e *BatchError) Unwrap() error { return e.Cause }

var errEmptyQueue = errors.New("empty refund queue")

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator executes refund queues.
type Orchestrator struct {
	client Client
}

func NewOrchestrator(client Client) *Orchestrator {
	return &Orchestrator{client: client}
}

// Execute processes the queue head-first. On success the refund is recorded
// with the source split's customer/document associations re-attached (the
// refund response does not include them). On failure execution halts
// immediately; dequeued successes are not rolled back.
//
// The returned BatchResult is meaningful even when err is non-nil.
func (o *Orchestrator) Execute(ctx context.Context, queue []QueueItem) (BatchResult, error) {
	result := BatchResult{Items: make([]QueueItem, len(queue))}
	copy(result.Items, queue)

	if len(queue) == 0 {
		return result, errEmptyQueue
	}

	for i := range result.Items {
		item := &result.Items[i]

		if err := ctx.Err(); err != nil {
			return result, &BatchError{Index: i, TransactionID: item.TransactionID, Cause: err}
		}
		if !item.Amount.IsPositive() {
			item.State = StateFailed
			return result, &BatchError{
				Index:         i,
				TransactionID: item.TransactionID,
				Cause:         &SplitValidationError{TransactionID: item.TransactionID, Amount: item.Amount, MaxAmount: item.MaxAmount, Reason: ErrNonPositiveAmount},
			}
		}

		tx, err := o.client.Refund(ctx, item.TransactionID, item.Amount)
		if err != nil {
			item.State = StateFailed
			return result, &BatchError{Index: i, TransactionID: item.TransactionID, Cause: err}
		}

		tx.CustomerID = item.CustomerID
		tx.Document = item.Document

		item.State = StateSucceeded
		result.Committed = append(result.Committed, tx)
	}

	return result, nil
}
