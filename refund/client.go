/*
client.go - HTTP client for the transaction resource API

PURPOSE:
  Implements the orchestrator's Client port over the REST interface:

    GET  /api/transactions/{id}?include=children
    POST /api/transactions/{id}/refund   {"amount": ...}
    PUT  /api/transactions/{id}          {"status": "failed"}

ERROR ENVELOPE:
  Failures arrive as {"data": {"message": "..."}}. The message is surfaced
  verbatim to the operator via APIError; nothing is rewritten or retried
  here.

SEE ALSO:
  - api/handlers.go: The server side of this wire format
  - orchestrator.go: Drives Refund sequentially
*/
package refund

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payment-engine/recon"
)

// APIError carries a remote rejection's message verbatim.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("transaction api: unexpected status %d", e.StatusCode)
}

// HTTPClient talks to a transaction service.
type HTTPClient struct {
	BaseURL string
	HTTP    *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// =============================================================================
// WIRE TYPES - Mirror api/dto.go
// =============================================================================

type transactionPayload struct {
	ID                string                `json:"id"`
	Type              string                `json:"type"`
	Amount            decimal.Decimal       `json:"amount"`
	Currency          string                `json:"currency"`
	Status            string                `json:"status"`
	ParentTransaction string                `json:"parent_transaction,omitempty"`
	Customer          string                `json:"customer,omitempty"`
	Invoice           string                `json:"invoice,omitempty"`
	CreditNote        string                `json:"credit_note,omitempty"`
	Estimate          string                `json:"estimate,omitempty"`
	Reason            string                `json:"reason,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	Children          []*transactionPayload `json:"children,omitempty"`
}

type errorEnvelope struct {
	Data struct {
		Message string `json:"message"`
	} `json:"data"`
}

func (p *transactionPayload) toDomain() *recon.Transaction {
	if p == nil {
		return nil
	}
	tx := &recon.Transaction{
		ID:         recon.TransactionID(p.ID),
		Type:       recon.TransactionType(p.Type),
		Amount:     p.Amount,
		Currency:   p.Currency,
		Status:     recon.TransactionStatus(p.Status),
		ParentID:   recon.TransactionID(p.ParentTransaction),
		CustomerID: p.Customer,
		Document: recon.DocumentRef{
			InvoiceID:    p.Invoice,
			CreditNoteID: p.CreditNote,
			EstimateID:   p.Estimate,
		},
		Reason:    p.Reason,
		CreatedAt: p.CreatedAt,
	}
	for _, child := range p.Children {
		tx.Children = append(tx.Children, child.toDomain())
	}
	return tx
}

// =============================================================================
// OPERATIONS
// =============================================================================

// GetTransaction fetches a transaction, optionally with its full tree of
// children expanded.
func (c *HTTPClient) GetTransaction(ctx context.Context, id recon.TransactionID, includeChildren bool) (*recon.Transaction, error) {
	endpoint := fmt.Sprintf("%s/api/transactions/%s", c.BaseURL, url.PathEscape(string(id)))
	if includeChildren {
		endpoint += "?include=children"
	}

	var payload transactionPayload
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &payload); err != nil {
		return nil, err
	}
	return payload.toDomain(), nil
}

// Refund issues one refund against a split. Implements Client.
func (c *HTTPClient) Refund(ctx context.Context, id recon.TransactionID, amount decimal.Decimal) (recon.Transaction, error) {
	endpoint := fmt.Sprintf("%s/api/transactions/%s/refund", c.BaseURL, url.PathEscape(string(id)))
	body := map[string]decimal.Decimal{"amount": amount}

	var payload transactionPayload
	if err := c.do(ctx, http.MethodPost, endpoint, body, &payload); err != nil {
		return recon.Transaction{}, err
	}
	return *payload.toDomain(), nil
}

// MarkFailed voids a transaction.
func (c *HTTPClient) MarkFailed(ctx context.Context, id recon.TransactionID) error {
	endpoint := fmt.Sprintf("%s/api/transactions/%s", c.BaseURL, url.PathEscape(string(id)))
	body := map[string]string{"status": string(recon.StatusFailed)}
	return c.do(ctx, http.MethodPut, endpoint, body, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope errorEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil {
			apiErr.Message = envelope.Data.Message
		}
		return apiErr
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
