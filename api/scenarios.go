/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	payment trees for testing and demos. Each scenario creates charges,
	payments, refunds and adjustments that demonstrate specific behaviors
	of the reconciliation engine.

AVAILABLE SCENARIOS:

	simple-payment:     One charge with a single payment, nothing refunded
	partial-refund:     Payment partially refunded, remainder refundable
	multi-invoice-split: One payment applied across three invoices
	jpy-rounding:       Zero-decimal currency with a fractional refund
	fully-refunded:     Payment refunded down to zero, tree exhausted
	credit-adjustment:  Payment with a negative adjustment (credit note)

HOW SCENARIOS WORK:
 1. Reset the store (clear all transactions)
 2. Save the scenario's transactions root-first so parents exist
 3. Clients then GET the root's reconciliation to see the derived state

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "multi-invoice-split"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, h)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Shared writeJSON/writeError helpers
  - recon/reconcile.go: What the loaded trees exercise
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/payment-engine/recon"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "simple-payment",
		Name:        "Simple Payment",
		Description: "One charge paid in full, nothing refunded",
		Category:    "payments",
	},
	{
		ID:          "partial-refund",
		Name:        "Partial Refund",
		Description: "Payment partially refunded, remainder still refundable",
		Category:    "refunds",
	},
	{
		ID:          "multi-invoice-split",
		Name:        "Multi-Invoice Split",
		Description: "One payment applied across three invoices, one split refunded",
		Category:    "refunds",
	},
	{
		ID:          "jpy-rounding",
		Name:        "Zero-Decimal Currency",
		Description: "JPY payment with a fractional refund, net rounds to whole yen",
		Category:    "currencies",
	},
	{
		ID:          "fully-refunded",
		Name:        "Fully Refunded",
		Description: "Payment refunded down to zero, no refundable splits remain",
		Category:    "refunds",
	},
	{
		ID:          "credit-adjustment",
		Name:        "Credit Adjustment",
		Description: "Payment with a credit-note adjustment reducing the balance",
		Category:    "adjustments",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	// Find the scenario details
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	// Scenario ID exists but not in list (shouldn't happen)
	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          h.currentScenario,
		Name:        h.currentScenario,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	// Reset first
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	h.currentScenario = "" // Clear current scenario on reset

	var err error
	switch req.ScenarioID {
	case "simple-payment":
		err = h.loadSimplePaymentScenario(ctx)
	case "partial-refund":
		err = h.loadPartialRefundScenario(ctx)
	case "multi-invoice-split":
		err = h.loadMultiInvoiceSplitScenario(ctx)
	case "jpy-rounding":
		err = h.loadJPYRoundingScenario(ctx)
	case "fully-refunded":
		err = h.loadFullyRefundedScenario(ctx)
	case "credit-adjustment":
		err = h.loadCreditAdjustmentScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	// Track the loaded scenario
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all transactions.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// saveAll writes transactions in order; parents must precede children so
// the store's parent checks pass.
func (h *Handler) saveAll(ctx context.Context, txs []recon.Transaction) error {
	for _, tx := range txs {
		if _, err := h.Store.Save(ctx, tx); err != nil {
			return fmt.Errorf("save %s: %w", tx.ID, err)
		}
	}
	return nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (h *Handler) loadSimplePaymentScenario(ctx context.Context) error {
	// A charge paid in full. Reconciliation: paid 120, net 120, one split.
	return h.saveAll(ctx, []recon.Transaction{
		{
			ID: "ch_demo_simple", Type: recon.TxCharge,
			Amount: dec("120.00"), Currency: "USD", Status: recon.StatusSucceeded,
			CustomerID: "cus_acme",
			Document:   recon.DocumentRef{InvoiceID: "inv_1001"},
			Reason:     "Monthly subscription",
		},
	})
}

func (h *Handler) loadPartialRefundScenario(ctx context.Context) error {
	// Payment of 200, refunded 50. Net 150 remains refundable at the root.
	return h.saveAll(ctx, []recon.Transaction{
		{
			ID: "py_demo_partial", Type: recon.TxPayment,
			Amount: dec("200.00"), Currency: "USD", Status: recon.StatusSucceeded,
			CustomerID: "cus_globex",
			Document:   recon.DocumentRef{InvoiceID: "inv_2001"},
			Reason:     "Annual license",
		},
		{
			ID: "re_demo_partial", Type: recon.TxRefund,
			Amount: dec("50.00"), Currency: "USD", Status: recon.StatusSucceeded,
			ParentID: "py_demo_partial",
			Reason:   "Seat count reduced",
		},
	})
}

func (h *Handler) loadMultiInvoiceSplitScenario(ctx context.Context) error {
	// One payment of 300 applied across three invoices of 100 each.
	// The second split is refunded in full, leaving two refundable leaves.
	return h.saveAll(ctx, []recon.Transaction{
		{
			ID: "py_demo_split_root", Type: recon.TxPayment,
			Amount: dec("300.00"), Currency: "USD", Status: recon.StatusSucceeded,
			CustomerID: "cus_initech",
			Reason:     "Bulk payment",
		},
		{
			ID: "py_demo_split_a", Type: recon.TxPayment,
			Amount: dec("100.00"), Currency: "USD", Status: recon.StatusSucceeded,
			ParentID:   "py_demo_split_root",
			CustomerID: "cus_initech",
			Document:   recon.DocumentRef{InvoiceID: "inv_3001"},
		},
		{
			ID: "py_demo_split_b", Type: recon.TxPayment,
			Amount: dec("100.00"), Currency: "USD", Status: recon.StatusSucceeded,
			ParentID:   "py_demo_split_root",
			CustomerID: "cus_initech",
			Document:   recon.DocumentRef{InvoiceID: "inv_3002"},
		},
		{
			ID: "py_demo_split_c", Type: recon.TxPayment,
			Amount: dec("100.00"), Currency: "USD", Status: recon.StatusSucceeded,
			ParentID:   "py_demo_split_root",
			CustomerID: "cus_initech",
			Document:   recon.DocumentRef{InvoiceID: "inv_3003"},
		},
		{
			ID: "re_demo_split_b", Type: recon.TxRefund,
			Amount: dec("100.00"), Currency: "USD", Status: recon.StatusSucceeded,
			ParentID: "py_demo_split_b",
			Reason:   "Invoice disputed",
		},
	})
}

func (h *Handler) loadJPYRoundingScenario(ctx context.Context) error {
	// JPY carries no minor units. The refund arrives with a fractional
	// amount from an upstream system; the net rounds to whole yen.
	return h.saveAll(ctx, []recon.Transaction{
		{
			ID: "py_demo_jpy", Type: recon.TxPayment,
			Amount: dec("1000"), Currency: "JPY", Status: recon.StatusSucceeded,
			CustomerID: "cus_nakatomi",
			Document:   recon.DocumentRef{InvoiceID: "inv_4001"},
		},
		{
			ID: "re_demo_jpy", Type: recon.TxRefund,
			Amount: dec("333.4"), Currency: "JPY", Status: recon.StatusSucceeded,
			ParentID: "py_demo_jpy",
			Reason:   "Prorated cancellation",
		},
	})
}

func (h *Handler) loadFullyRefundedScenario(ctx context.Context) error {
	// Payment refunded in two installments down to zero. Net is zero and
	// no refundable splits remain.
	return h.saveAll(ctx, []recon.Transaction{
		{
			ID: "py_demo_full", Type: recon.TxPayment,
			Amount: dec("80.00"), Currency: "EUR", Status: recon.StatusSucceeded,
			CustomerID: "cus_umbrella",
			Document:   recon.DocumentRef{InvoiceID: "inv_5001"},
		},
		{
			ID: "re_demo_full_1", Type: recon.TxRefund,
			Amount: dec("30.00"), Currency: "EUR", Status: recon.StatusSucceeded,
			ParentID: "py_demo_full",
			Reason:   "First installment",
		},
		{
			ID: "re_demo_full_2", Type: recon.TxRefund,
			Amount: dec("50.00"), Currency: "EUR", Status: recon.StatusSucceeded,
			ParentID: "py_demo_full",
			Reason:   "Remainder",
		},
	})
}

func (h *Handler) loadCreditAdjustmentScenario(ctx context.Context) error {
	// Payment with a credit-note adjustment. The credit shows up in the
	// reconciliation's credited total without touching the refund balance.
	return h.saveAll(ctx, []recon.Transaction{
		{
			ID: "py_demo_credit", Type: recon.TxPayment,
			Amount: dec("500.00"), Currency: "USD", Status: recon.StatusSucceeded,
			CustomerID: "cus_wayne",
			Document:   recon.DocumentRef{InvoiceID: "inv_6001"},
		},
		{
			ID: "adj_demo_credit", Type: recon.TxAdjustment,
			Amount: dec("-75.00"), Currency: "USD", Status: recon.StatusSucceeded,
			ParentID:   "py_demo_credit",
			CustomerID: "cus_wayne",
			Document:   recon.DocumentRef{CreditNoteID: "cn_6001"},
			Reason:     "Service credit",
		},
	})
}
