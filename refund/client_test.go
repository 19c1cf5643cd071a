package refund_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payment-engine/recon"
	"github.com/warp/payment-engine/refund"
)

func TestHTTPClient_Refund_PostsAmount(t *testing.T) {
	// GIVEN: A transaction service accepting refunds
	// WHEN: Refunding 50.00 against py-1
	// THEN: The request hits the refund endpoint with the decimal amount

	var gotPath string
	var gotBody map[string]json.RawMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"id": "re-99", "type": "refund", "amount": "50.00",
			"currency": "USD", "status": "succeeded", "parent_transaction": "py-1",
		})
	}))
	defer server.Close()

	client := refund.NewHTTPClient(server.URL)
	tx, err := client.Refund(context.Background(), "py-1", dec("50.00"))

	require.NoError(t, err)
	assert.Equal(t, "/api/transactions/py-1/refund", gotPath)
	assert.JSONEq(t, `"50"`, string(gotBody["amount"]))
	assert.Equal(t, recon.TransactionID("re-99"), tx.ID)
	assert.Equal(t, recon.TransactionID("py-1"), tx.ParentID)
	assert.True(t, tx.Amount.Equal(dec("50.00")))
}

func TestHTTPClient_Refund_SurfacesEnvelopeMessageVerbatim(t *testing.T) {
	// GIVEN: The service rejecting with {"data":{"message":...}}
	// WHEN: Refunding
	// THEN: The remote message is surfaced verbatim, no retry

	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]string{"message": "refund exceeds remaining balance"},
		})
	}))
	defer server.Close()

	client := refund.NewHTTPClient(server.URL)
	_, err := client.Refund(context.Background(), "py-1", dec("999.00"))

	require.Error(t, err)
	var apiErr *refund.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "refund exceeds remaining balance", apiErr.Message)
	assert.Equal(t, 1, calls, "client must not retry")
}

func TestHTTPClient_GetTransaction_IncludeChildren(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "children", r.URL.Query().Get("include"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id": "py-1", "type": "payment", "amount": "200.00",
			"currency": "USD", "status": "succeeded",
			"children": []map[string]any{
				{"id": "re-1", "type": "refund", "amount": "50.00",
					"currency": "USD", "status": "succeeded", "parent_transaction": "py-1"},
			},
		})
	}))
	defer server.Close()

	client := refund.NewHTTPClient(server.URL)
	tx, err := client.GetTransaction(context.Background(), "py-1", true)

	require.NoError(t, err)
	require.Len(t, tx.Children, 1)
	assert.Equal(t, recon.TxRefund, tx.Children[0].Type)

	// The fetched tree reconciles directly.
	res := recon.CalculateTree(tx)
	assert.True(t, res.Net.Equal(dec("150.00")))
}

func TestHTTPClient_MarkFailed_PutsStatus(t *testing.T) {
	var gotMethod string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := refund.NewHTTPClient(server.URL)
	err := client.MarkFailed(context.Background(), "py-1")

	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "failed", gotBody["status"])
}
