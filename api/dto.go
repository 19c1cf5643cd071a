/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  Monetary fields are decimal.Decimal, which marshals as a quoted decimal
  string and unmarshals from both strings and JSON numbers. No float64
  crosses the wire.

ERROR ENVELOPE:
  Errors are returned as {"data": {"message": "..."}} so that clients of
  the transaction resource interface (refund.HTTPClient included) can
  surface the message verbatim.

VALIDATION:
  Request structs carry go-playground/validator tags; handlers run the
  shared validator before touching the store. Amount positivity is checked
  in handlers because validator tags cannot inspect decimal.Decimal.

SEE ALSO:
  - handlers.go: Uses these types
  - refund/client.go: Client-side mirror of the wire format
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payment-engine/recon"
)

// =============================================================================
// TRANSACTION TYPES
// =============================================================================

// TransactionDTO represents a transaction in API responses. Children is
// populated only when the tree was requested with include=children.
type TransactionDTO struct {
	ID                string            `json:"id"`
	Type              string            `json:"type"`
	Amount            decimal.Decimal   `json:"amount"`
	Currency          string            `json:"currency"`
	Status            string            `json:"status"`
	ParentTransaction string            `json:"parent_transaction,omitempty"`
	Customer          string            `json:"customer,omitempty"`
	Invoice           string            `json:"invoice,omitempty"`
	CreditNote        string            `json:"credit_note,omitempty"`
	Estimate          string            `json:"estimate,omitempty"`
	Reason            string            `json:"reason,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	Children          []*TransactionDTO `json:"children,omitempty"`
}

// CreateTransactionRequest records a charge, payment or adjustment.
// Refunds are created only through the refund endpoints.
type CreateTransactionRequest struct {
	Type           string          `json:"type" validate:"required,oneof=charge payment adjustment"`
	Amount         decimal.Decimal `json:"amount" validate:"required"`
	Currency       string          `json:"currency" validate:"required,len=3,alpha"`
	Status         string          `json:"status" validate:"omitempty,oneof=pending succeeded"`
	Parent         string          `json:"parent_transaction,omitempty"`
	Customer       string          `json:"customer,omitempty"`
	Invoice        string          `json:"invoice,omitempty"`
	CreditNote     string          `json:"credit_note,omitempty"`
	Estimate       string          `json:"estimate,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// UpdateTransactionRequest voids a transaction. "failed" is the only
// status a client may set; everything else in the lifecycle is append-only.
type UpdateTransactionRequest struct {
	Status string `json:"status" validate:"required,oneof=failed"`
}

// =============================================================================
// REFUND TYPES
// =============================================================================

// RefundRequest refunds a single split.
type RefundRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
	Reason string          `json:"reason,omitempty"`
}

// BatchRefundSplit selects one split and an amount within its maximum.
type BatchRefundSplit struct {
	TransactionID string          `json:"transaction_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount" validate:"required"`
}

// BatchRefundRequest refunds several splits of one tree sequentially.
// An empty split list never reaches the orchestrator.
type BatchRefundRequest struct {
	Splits []BatchRefundSplit `json:"splits" validate:"required,min=1,dive"`
	Reason string             `json:"reason,omitempty"`
}

// FailedSplitDTO names the split that aborted a batch, with the remote
// message verbatim.
type FailedSplitDTO struct {
	TransactionID string `json:"transaction_id"`
	Message       string `json:"message"`
}

// BatchRefundResponse reports a batch outcome. A partial failure still
// returns the committed prefix - nothing is rolled back; the operator
// reloads the tree to reconcile.
type BatchRefundResponse struct {
	Status    string            `json:"status"` // "refunded" or "partial_failure"
	Committed []*TransactionDTO `json:"committed"`
	Failed    *FailedSplitDTO   `json:"failed,omitempty"`
}

// =============================================================================
// RECONCILIATION TYPES
// =============================================================================

// SplitDTO is one refundable leaf of a reconciled tree.
type SplitDTO struct {
	TransactionID string          `json:"transaction_id"`
	MaxAmount     decimal.Decimal `json:"max_amount"`
	Currency      string          `json:"currency"`
	Customer      string          `json:"customer,omitempty"`
	Invoice       string          `json:"invoice,omitempty"`
	CreditNote    string          `json:"credit_note,omitempty"`
	Estimate      string          `json:"estimate,omitempty"`
	IsRoot        bool            `json:"is_root,omitempty"`
}

// ReconciliationDTO is the derived result for one tree.
type ReconciliationDTO struct {
	TransactionID      string          `json:"transaction_id"`
	Currency           string          `json:"currency"`
	Paid               decimal.Decimal `json:"paid"`
	Credited           decimal.Decimal `json:"credited"`
	Refunded           decimal.Decimal `json:"refunded"`
	Net                decimal.Decimal `json:"net"`
	AppliedTo          []SplitDTO      `json:"applied_to"`
	HasSubTransactions bool            `json:"has_sub_transactions"`
	OrphanedRefunds    []string        `json:"orphaned_refunds,omitempty"`
}

// =============================================================================
// SCENARIO TYPES
// =============================================================================

// ScenarioDTO describes one loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
}

// =============================================================================
// ERROR ENVELOPE
// =============================================================================

// ErrorBody carries the operator-facing message.
type ErrorBody struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ErrorEnvelope is the wire shape of every error response.
type ErrorEnvelope struct {
	Data ErrorBody `json:"data"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toTransactionDTO(tx *recon.Transaction, withChildren bool) *TransactionDTO {
	if tx == nil {
		return nil
	}
	dto := &TransactionDTO{
		ID:                string(tx.ID),
		Type:              string(tx.Type),
		Amount:            tx.Amount,
		Currency:          tx.Currency,
		Status:            string(tx.Status),
		ParentTransaction: string(tx.ParentID),
		Customer:          tx.CustomerID,
		Invoice:           tx.Document.InvoiceID,
		CreditNote:        tx.Document.CreditNoteID,
		Estimate:          tx.Document.EstimateID,
		Reason:            tx.Reason,
		CreatedAt:         tx.CreatedAt,
	}
	if withChildren {
		for _, child := range tx.Children {
			dto.Children = append(dto.Children, toTransactionDTO(child, true))
		}
	}
	return dto
}

func toReconciliationDTO(id recon.TransactionID, res recon.Result) ReconciliationDTO {
	dto := ReconciliationDTO{
		TransactionID:      string(id),
		Currency:           res.Currency,
		Paid:               res.Paid,
		Credited:           res.Credited,
		Refunded:           res.Refunded,
		Net:                res.Net,
		AppliedTo:          make([]SplitDTO, 0, len(res.AppliedTo)),
		HasSubTransactions: res.HasSubTransactions,
	}
	for _, split := range res.AppliedTo {
		dto.AppliedTo = append(dto.AppliedTo, SplitDTO{
			TransactionID: string(split.TransactionID),
			MaxAmount:     split.MaxAmount,
			Currency:      split.Currency,
			Customer:      split.CustomerID,
			Invoice:       split.Document.InvoiceID,
			CreditNote:    split.Document.CreditNoteID,
			Estimate:      split.Document.EstimateID,
			IsRoot:        split.IsRoot,
		})
	}
	for _, orphan := range res.OrphanedRefunds {
		dto.OrphanedRefunds = append(dto.OrphanedRefunds, string(orphan))
	}
	return dto
}
