package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payment-engine/api"
	"github.com/warp/payment-engine/recon"
	"github.com/warp/payment-engine/recon/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) (*httptest.Server, recon.Store) {
	t.Helper()
	mem := store.NewMemory()
	handler := api.NewHandler(mem)
	server := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(server.Close)
	return server, mem
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]json.RawMessage
	json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func errorMessage(t *testing.T, body map[string]json.RawMessage) string {
	t.Helper()
	var envelope struct {
		Message string `json:"message"`
	}
	require.Contains(t, body, "data", "errors must use the {data:{message}} envelope")
	require.NoError(t, json.Unmarshal(body["data"], &envelope))
	return envelope.Message
}

func createPayment(t *testing.T, baseURL, amount, currency string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, baseURL+"/api/transactions", map[string]any{
		"type": "payment", "amount": amount, "currency": currency,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var id string
	require.NoError(t, json.Unmarshal(body["id"], &id))
	return id
}

// =============================================================================
// TRANSACTION ENDPOINTS
// =============================================================================

func TestAPI_CreateAndGetTransaction(t *testing.T) {
	server, _ := newTestServer(t)

	id := createPayment(t, server.URL, "120.00", "USD")

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/transactions/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `"payment"`, string(body["type"]))
	assert.JSONEq(t, `"succeeded"`, string(body["status"]), "status defaults to succeeded")
}

func TestAPI_CreateTransaction_Validation(t *testing.T) {
	server, _ := newTestServer(t)

	// Unknown type.
	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/transactions", map[string]any{
		"type": "chargeback", "amount": "10.00", "currency": "USD",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, errorMessage(t, body))

	// Refunds cannot be created directly.
	resp, _ = doJSON(t, http.MethodPost, server.URL+"/api/transactions", map[string]any{
		"type": "refund", "amount": "10.00", "currency": "USD",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Non-positive payment amount.
	resp, _ = doJSON(t, http.MethodPost, server.URL+"/api/transactions", map[string]any{
		"type": "payment", "amount": "-5.00", "currency": "USD",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Malformed currency.
	resp, _ = doJSON(t, http.MethodPost, server.URL+"/api/transactions", map[string]any{
		"type": "payment", "amount": "5.00", "currency": "US DOLLARS",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_GetTransaction_IncludeChildren(t *testing.T) {
	server, _ := newTestServer(t)

	id := createPayment(t, server.URL, "200.00", "USD")
	resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/transactions/"+id+"/refund", map[string]any{
		"amount": "50.00",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Without the include flag: no children on the wire.
	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/transactions/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, body, "children")

	// With include=children: the refund appears.
	resp, body = doJSON(t, http.MethodGet, server.URL+"/api/transactions/"+id+"?include=children", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var children []map[string]any
	require.NoError(t, json.Unmarshal(body["children"], &children))
	require.Len(t, children, 1)
	assert.Equal(t, "refund", children[0]["type"])
}

func TestAPI_GetTransaction_NotFound(t *testing.T) {
	server, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/transactions/py-ghost", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Transaction not found", errorMessage(t, body))
}

func TestAPI_VoidTransaction(t *testing.T) {
	server, _ := newTestServer(t)
	id := createPayment(t, server.URL, "50.00", "USD")

	// Void it.
	resp, body := doJSON(t, http.MethodPut, server.URL+"/api/transactions/"+id, map[string]any{
		"status": "failed",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `"failed"`, string(body["status"]))

	// Any other status is rejected.
	resp, _ = doJSON(t, http.MethodPut, server.URL+"/api/transactions/"+id, map[string]any{
		"status": "succeeded",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// RECONCILIATION ENDPOINT
// =============================================================================

func TestAPI_Reconciliation(t *testing.T) {
	server, _ := newTestServer(t)

	id := createPayment(t, server.URL, "1000", "JPY")
	resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/transactions/"+id+"/refund", map[string]any{
		"amount": "333.4",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/transactions/"+id+"/reconciliation", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Zero-decimal currency: net rounds to whole yen.
	assert.JSONEq(t, `"667"`, string(body["net"]))
	assert.JSONEq(t, `"333.4"`, string(body["refunded"]))
	assert.JSONEq(t, `false`, string(body["has_sub_transactions"]))

	var splits []map[string]any
	require.NoError(t, json.Unmarshal(body["applied_to"], &splits))
	require.Len(t, splits, 1)
	assert.Equal(t, id, splits[0]["transaction_id"])
}

// =============================================================================
// REFUND ENDPOINTS
// =============================================================================

func TestAPI_Refund_BalanceEnforced(t *testing.T) {
	server, _ := newTestServer(t)
	id := createPayment(t, server.URL, "100.00", "USD")

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/transactions/"+id+"/refund", map[string]any{
		"amount": "60.00",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Exceeding the remainder conflicts, with the message in the envelope.
	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/transactions/"+id+"/refund", map[string]any{
		"amount": "50.00",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, errorMessage(t, body), "exceeds remaining balance")
}

func TestAPI_Refund_RejectsNonRefundableTargets(t *testing.T) {
	server, _ := newTestServer(t)

	// An adjustment cannot be refunded.
	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/transactions", map[string]any{
		"type": "adjustment", "amount": "-20.00", "currency": "USD",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var adjID string
	require.NoError(t, json.Unmarshal(body["id"], &adjID))

	resp, _ = doJSON(t, http.MethodPost, server.URL+"/api/transactions/"+adjID+"/refund", map[string]any{
		"amount": "5.00",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Neither can a voided payment.
	payID := createPayment(t, server.URL, "50.00", "USD")
	resp, _ = doJSON(t, http.MethodPut, server.URL+"/api/transactions/"+payID, map[string]any{
		"status": "failed",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodPost, server.URL+"/api/transactions/"+payID+"/refund", map[string]any{
		"amount": "5.00",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_BatchRefund_SequentialSplits(t *testing.T) {
	// GIVEN: A payment split across two invoices
	// WHEN: Batch-refunding both splits
	// THEN: Two refunds commit and the tree's net drops accordingly

	server, mem := newTestServer(t)

	rootID := createPayment(t, server.URL, "300.00", "USD")
	var splitIDs []string
	for i := 1; i <= 2; i++ {
		resp, body := doJSON(t, http.MethodPost, server.URL+"/api/transactions", map[string]any{
			"type": "payment", "amount": "100.00", "currency": "USD",
			"parent_transaction": rootID,
			"invoice":            fmt.Sprintf("inv-%d", i),
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var id string
		require.NoError(t, json.Unmarshal(body["id"], &id))
		splitIDs = append(splitIDs, id)
	}

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/transactions/"+rootID+"/refunds", map[string]any{
		"splits": []map[string]any{
			{"transaction_id": splitIDs[0], "amount": "100.00"},
			{"transaction_id": splitIDs[1], "amount": "25.00"},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `"refunded"`, string(body["status"]))

	var committed []map[string]any
	require.NoError(t, json.Unmarshal(body["committed"], &committed))
	require.Len(t, committed, 2)
	assert.Equal(t, splitIDs[0], committed[0]["parent_transaction"])

	// Reconciliation reflects both refunds.
	tree, err := mem.LoadTree(context.Background(), recon.TransactionID(rootID))
	require.NoError(t, err)
	res := recon.CalculateTree(tree)
	assert.Equal(t, "375", res.Net.String())
}

func TestAPI_BatchRefund_ValidationRejectsWholeBatch(t *testing.T) {
	server, _ := newTestServer(t)

	rootID := createPayment(t, server.URL, "100.00", "USD")

	// Requesting more than the split's maximum fails pre-flight; nothing
	// is written.
	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/transactions/"+rootID+"/refunds", map[string]any{
		"splits": []map[string]any{
			{"transaction_id": rootID, "amount": "150.00"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, errorMessage(t, body))

	resp, body = doJSON(t, http.MethodGet, server.URL+"/api/transactions/"+rootID+"/reconciliation", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `"0"`, string(body["refunded"]))
}

func TestAPI_BatchRefund_EmptySplits(t *testing.T) {
	server, _ := newTestServer(t)
	rootID := createPayment(t, server.URL, "100.00", "USD")

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/transactions/"+rootID+"/refunds", map[string]any{
		"splits": []map[string]any{},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// SCENARIOS AND HEALTH
// =============================================================================

func TestAPI_LoadScenario_TreeReconciles(t *testing.T) {
	server, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/scenarios/load", map[string]any{
		"scenario_id": "multi-invoice-split",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/transactions/py_demo_split_root/reconciliation", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `true`, string(body["has_sub_transactions"]))

	var splits []map[string]any
	require.NoError(t, json.Unmarshal(body["applied_to"], &splits))
	assert.Len(t, splits, 2, "the refunded split is reserved")

	// Current scenario is tracked.
	resp, body = doJSON(t, http.MethodGet, server.URL+"/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `"multi-invoice-split"`, string(body["id"]))

	// Unknown scenario rejected.
	resp, _ = doJSON(t, http.MethodPost, server.URL+"/api/scenarios/load", map[string]any{
		"scenario_id": "nope",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_Healthz(t *testing.T) {
	server, _ := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, server.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `"ok"`, string(body["status"]))
}
