package refund_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payment-engine/recon"
	"github.com/warp/payment-engine/refund"
)

// =============================================================================
// FAKE CLIENT
// =============================================================================

// fakeClient records the order of refund calls and fails the ids it is told
// to fail.
type fakeClient struct {
	calls   []recon.TransactionID
	failOn  map[recon.TransactionID]error
	pending []recon.TransactionID // ids the fake is currently executing; must never exceed 1
}

func (f *fakeClient) Refund(ctx context.Context, id recon.TransactionID, amount decimal.Decimal) (recon.Transaction, error) {
	f.pending = append(f.pending, id)
	defer func() { f.pending = f.pending[:len(f.pending)-1] }()
	if len(f.pending) > 1 {
		return recon.Transaction{}, fmt.Errorf("concurrent refund calls: %v", f.pending)
	}

	f.calls = append(f.calls, id)
	if err, ok := f.failOn[id]; ok {
		return recon.Transaction{}, err
	}
	return recon.Transaction{
		ID:       recon.TransactionID("re-" + string(id)),
		Type:     recon.TxRefund,
		Amount:   amount,
		Status:   recon.StatusSucceeded,
		ParentID: id,
	}, nil
}

func threeItemQueue() []refund.QueueItem {
	res := multiSplitResult()
	queue, err := refund.FullQueue(res)
	if err != nil {
		panic(err)
	}
	return queue
}

// =============================================================================
// SEQUENTIAL EXECUTION
// =============================================================================

func TestOrchestrator_AllSucceed(t *testing.T) {
	// GIVEN: A three-split queue and a client that always succeeds
	// WHEN: Executing
	// THEN: Three refunds commit, in queue order, one at a time

	client := &fakeClient{}
	result, err := refund.NewOrchestrator(client).Execute(context.Background(), threeItemQueue())

	require.NoError(t, err)
	require.Len(t, result.Committed, 3)
	assert.Equal(t, []recon.TransactionID{"py-a", "py-b", "py-c"}, client.calls)
	for _, item := range result.Items {
		assert.Equal(t, refund.StateSucceeded, item.State)
	}
}

func TestOrchestrator_SecondFails_HaltsWithoutRollback(t *testing.T) {
	// GIVEN: A three-split queue where the second refund is rejected
	// WHEN: Executing
	// THEN: The first refund stays committed, the third is never attempted,
	//       and the error names the second split

	remote := errors.New("card network rejected the refund")
	client := &fakeClient{failOn: map[recon.TransactionID]error{"py-b": remote}}

	result, err := refund.NewOrchestrator(client).Execute(context.Background(), threeItemQueue())

	require.Error(t, err)
	var batchErr *refund.BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, 1, batchErr.Index)
	assert.Equal(t, recon.TransactionID("py-b"), batchErr.TransactionID)
	assert.ErrorIs(t, err, remote)

	// Committed prefix preserved; no rollback.
	require.Len(t, result.Committed, 1)
	assert.Equal(t, recon.TransactionID("py-a"), result.Committed[0].ParentID)

	// Third split never reached the client.
	assert.Equal(t, []recon.TransactionID{"py-a", "py-b"}, client.calls)

	// Item states: succeeded, failed, still pending.
	assert.Equal(t, refund.StateSucceeded, result.Items[0].State)
	assert.Equal(t, refund.StateFailed, result.Items[1].State)
	assert.Equal(t, refund.StatePending, result.Items[2].State)
}

func TestOrchestrator_FirstFails_NothingCommitted(t *testing.T) {
	client := &fakeClient{failOn: map[recon.TransactionID]error{"py-a": errors.New("boom")}}

	result, err := refund.NewOrchestrator(client).Execute(context.Background(), threeItemQueue())

	require.Error(t, err)
	assert.Empty(t, result.Committed)
	assert.Equal(t, []recon.TransactionID{"py-a"}, client.calls)
}

func TestOrchestrator_ReattachesAssociations(t *testing.T) {
	// GIVEN: Queue items carrying customer/document associations
	// WHEN: Executing (the refund response carries neither)
	// THEN: Each committed refund has the source split's associations

	client := &fakeClient{}
	result, err := refund.NewOrchestrator(client).Execute(context.Background(), threeItemQueue())
	require.NoError(t, err)

	for i, tx := range result.Committed {
		assert.Equal(t, "cus-1", tx.CustomerID, "committed %d", i)
		assert.NotEmpty(t, tx.Document.InvoiceID, "committed %d", i)
	}
	assert.Equal(t, "inv-2", result.Committed[1].Document.InvoiceID)
}

func TestOrchestrator_EmptyQueue_Error(t *testing.T) {
	client := &fakeClient{}
	_, err := refund.NewOrchestrator(client).Execute(context.Background(), nil)
	assert.Error(t, err)
	assert.Empty(t, client.calls)
}

func TestOrchestrator_CancelledContext_StopsBetweenItems(t *testing.T) {
	// GIVEN: A context cancelled before execution starts
	// WHEN: Executing
	// THEN: No refund is issued and the abort names the first item

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &fakeClient{}
	result, err := refund.NewOrchestrator(client).Execute(ctx, threeItemQueue())

	var batchErr *refund.BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, 0, batchErr.Index)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, client.calls)
	assert.Empty(t, result.Committed)
}
