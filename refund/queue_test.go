package refund_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payment-engine/recon"
	"github.com/warp/payment-engine/refund"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func singleRootResult() recon.Result {
	return recon.Result{
		Currency: "JPY",
		Paid:     dec("1000"),
		Refunded: dec("333.4"),
		Net:      dec("667"),
		AppliedTo: []recon.Split{
			{TransactionID: "py-root", MaxAmount: dec("1000"), Currency: "JPY", IsRoot: true},
		},
	}
}

func multiSplitResult() recon.Result {
	return recon.Result{
		Currency: "USD",
		Paid:     dec("300.00"),
		Net:      dec("300.00"),
		AppliedTo: []recon.Split{
			{TransactionID: "py-a", MaxAmount: dec("100.00"), Currency: "USD", CustomerID: "cus-1",
				Document: recon.DocumentRef{InvoiceID: "inv-1"}},
			{TransactionID: "py-b", MaxAmount: dec("100.00"), Currency: "USD", CustomerID: "cus-1",
				Document: recon.DocumentRef{InvoiceID: "inv-2"}},
			{TransactionID: "py-c", MaxAmount: dec("100.00"), Currency: "USD", CustomerID: "cus-1",
				Document: recon.DocumentRef{InvoiceID: "inv-3"}},
		},
		HasSubTransactions: true,
	}
}

// =============================================================================
// FULL QUEUE
// =============================================================================

func TestFullQueue_SingleRoot_UsesNet(t *testing.T) {
	// GIVEN: A partially refunded single-split tree (gross 1000, net 667)
	// WHEN: Queueing a full refund
	// THEN: The queued amount is the remaining net, not the gross amount

	queue, err := refund.FullQueue(singleRootResult())
	require.NoError(t, err)
	require.Len(t, queue, 1)

	assert.Equal(t, recon.TransactionID("py-root"), queue[0].TransactionID)
	assert.True(t, queue[0].Amount.Equal(dec("667")), "amount should be net, got %v", queue[0].Amount)
	assert.Equal(t, refund.StatePending, queue[0].State)
}

func TestFullQueue_MultiSplit_EachAtMax(t *testing.T) {
	queue, err := refund.FullQueue(multiSplitResult())
	require.NoError(t, err)
	require.Len(t, queue, 3)

	for i, item := range queue {
		assert.True(t, item.Amount.Equal(dec("100.00")), "item %d amount %v", i, item.Amount)
	}
	// Queue order follows AppliedTo order.
	assert.Equal(t, recon.TransactionID("py-a"), queue[0].TransactionID)
	assert.Equal(t, recon.TransactionID("py-c"), queue[2].TransactionID)
}

func TestFullQueue_NothingRefundable(t *testing.T) {
	_, err := refund.FullQueue(recon.Result{Currency: "USD"})
	assert.ErrorIs(t, err, refund.ErrNoRefundableSplits)
}

// =============================================================================
// PARTIAL QUEUE
// =============================================================================

func TestPartialQueue_SelectedSplits_InAppliedToOrder(t *testing.T) {
	// GIVEN: Amounts for the third and first splits (map order is random)
	// WHEN: Building a partial queue
	// THEN: The queue follows the reconciliation's split order

	queue, err := refund.PartialQueue(multiSplitResult(), map[recon.TransactionID]decimal.Decimal{
		"py-c": dec("25.00"),
		"py-a": dec("100.00"),
	})
	require.NoError(t, err)
	require.Len(t, queue, 2)

	assert.Equal(t, recon.TransactionID("py-a"), queue[0].TransactionID)
	assert.Equal(t, recon.TransactionID("py-c"), queue[1].TransactionID)
	assert.True(t, queue[1].Amount.Equal(dec("25.00")))

	// Associations ride along for the orchestrator to re-attach.
	assert.Equal(t, "cus-1", queue[0].CustomerID)
	assert.Equal(t, "inv-1", queue[0].Document.InvoiceID)
}

func TestPartialQueue_UnknownSplit_Rejected(t *testing.T) {
	_, err := refund.PartialQueue(multiSplitResult(), map[recon.TransactionID]decimal.Decimal{
		"py-ghost": dec("10.00"),
	})

	assert.ErrorIs(t, err, refund.ErrUnknownSplit)
	var verr *refund.SplitValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, recon.TransactionID("py-ghost"), verr.TransactionID)
}

func TestPartialQueue_NonPositiveAmount_Rejected(t *testing.T) {
	_, err := refund.PartialQueue(multiSplitResult(), map[recon.TransactionID]decimal.Decimal{
		"py-a": dec("0"),
	})
	assert.ErrorIs(t, err, refund.ErrNonPositiveAmount)

	_, err = refund.PartialQueue(multiSplitResult(), map[recon.TransactionID]decimal.Decimal{
		"py-a": dec("-5.00"),
	})
	assert.ErrorIs(t, err, refund.ErrNonPositiveAmount)
}

func TestPartialQueue_AmountExceedsSplit_Rejected(t *testing.T) {
	_, err := refund.PartialQueue(multiSplitResult(), map[recon.TransactionID]decimal.Decimal{
		"py-a": dec("100.01"),
	})

	assert.ErrorIs(t, err, refund.ErrAmountExceedsSplit)
	var verr *refund.SplitValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.MaxAmount.Equal(dec("100.00")))
}

func TestPartialQueue_SingleRoot_CappedAtNet(t *testing.T) {
	// The root split is listed with its gross amount; a partial refund is
	// still capped at the remaining net.
	_, err := refund.PartialQueue(singleRootResult(), map[recon.TransactionID]decimal.Decimal{
		"py-root": dec("700"),
	})
	assert.ErrorIs(t, err, refund.ErrAmountExceedsSplit)

	queue, err := refund.PartialQueue(singleRootResult(), map[recon.TransactionID]decimal.Decimal{
		"py-root": dec("667"),
	})
	require.NoError(t, err)
	assert.True(t, queue[0].Amount.Equal(dec("667")))
}

func TestPartialQueue_EmptySelection_Rejected(t *testing.T) {
	_, err := refund.PartialQueue(multiSplitResult(), nil)
	assert.ErrorIs(t, err, refund.ErrNoRefundableSplits)
}
