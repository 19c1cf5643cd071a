/*
handlers.go - HTTP API handlers for the payment reconciliation service

PURPOSE:
  Exposes the transaction store, the reconciliation engine and the refund
  orchestrator via REST. Handles HTTP request/response, JSON serialization,
  and delegates to domain logic.

ENDPOINTS:
  Transactions:
    GET    /api/transactions                     List root transactions
    POST   /api/transactions                     Record charge/payment/adjustment
    GET    /api/transactions/{id}                Get one (?include=children)
    PUT    /api/transactions/{id}                Void (status -> failed)

  Reconciliation:
    GET    /api/transactions/{id}/reconciliation Reconcile the tree on demand

  Refunds:
    POST   /api/transactions/{id}/refund         Refund one split
    POST   /api/transactions/{id}/refunds        Sequential multi-split batch

  Scenarios:
    GET    /api/scenarios                        List demo scenarios
    POST   /api/scenarios/load                   Load a demo scenario

ERROR HANDLING:
  Errors are returned in the {"data":{"message":...}} envelope with:
  - 400: Validation errors, invalid input
  - 404: Transaction not found
  - 409: Conflict (idempotency, refund balance exceeded)
  - 500: Internal errors
  Remote-style rejections carry the message verbatim; nothing is retried
  server-side - retries are the operator's call.

CONCURRENCY:
  Reconciliation of one tree is collapsed with singleflight: concurrent
  GETs for the same id share a single tree load and walk.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/warp/payment-engine/recon"
	"github.com/warp/payment-engine/refund"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    recon.Store
	validate *validator.Validate
	recGroup singleflight.Group

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store recon.Store) *Handler {
	return &Handler{
		Store:    store,
		validate: validator.New(),
	}
}

func newTransactionID(txType recon.TransactionType) recon.TransactionID {
	prefix := map[recon.TransactionType]string{
		recon.TxCharge:     "ch",
		recon.TxPayment:    "py",
		recon.TxRefund:     "re",
		recon.TxAdjustment: "adj",
	}[txType]
	if prefix == "" {
		prefix = "txn"
	}
	return recon.TransactionID(prefix + "_" + uuid.NewString())
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// ListTransactions returns root transactions, newest first.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 50)
	offset := intQuery(r, "offset", 0)

	roots, err := h.Store.ListRoots(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list transactions", err)
		return
	}

	dtos := make([]*TransactionDTO, 0, len(roots))
	for i := range roots {
		dtos = append(dtos, toTransactionDTO(&roots[i], false))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTransaction records a charge, payment or adjustment. Refunds go
// through the refund endpoints so the balance invariant always applies.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid transaction", err)
		return
	}

	txType := recon.TransactionType(req.Type)
	if txType != recon.TxAdjustment && !req.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "Amount must be positive", nil)
		return
	}
	if req.Amount.IsZero() {
		writeError(w, http.StatusBadRequest, "Amount must be non-zero", nil)
		return
	}

	status := recon.TransactionStatus(req.Status)
	if status == "" {
		status = recon.StatusSucceeded
	}

	tx := recon.Transaction{
		ID:         newTransactionID(txType),
		Type:       txType,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Status:     status,
		ParentID:   recon.TransactionID(req.Parent),
		CustomerID: req.Customer,
		Document: recon.DocumentRef{
			InvoiceID:    req.Invoice,
			CreditNoteID: req.CreditNote,
			EstimateID:   req.Estimate,
		},
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
	}

	saved, err := h.Store.Save(r.Context(), tx)
	if err != nil {
		writeStoreError(w, "Failed to create transaction", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(saved, false))
}

// GetTransaction returns one transaction; ?include=children expands the
// full tree. Callers reconciling client-side need the expansion.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := recon.TransactionID(chi.URLParam(r, "id"))
	includeChildren := r.URL.Query().Get("include") == "children"

	var (
		tx  *recon.Transaction
		err error
	)
	if includeChildren {
		tx, err = h.Store.LoadTree(r.Context(), id)
	} else {
		tx, err = h.Store.Get(r.Context(), id)
	}
	if err != nil {
		writeStoreError(w, "Failed to get transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx, includeChildren))
}

// UpdateTransaction voids a transaction. The only accepted body is
// {"status":"failed"}; the tree otherwise only grows.
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id := recon.TransactionID(chi.URLParam(r, "id"))

	var req UpdateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Only status \"failed\" may be set", err)
		return
	}

	if err := h.Store.UpdateStatus(r.Context(), id, recon.TransactionStatus(req.Status)); err != nil {
		writeStoreError(w, "Failed to update transaction", err)
		return
	}

	tx, err := h.Store.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, "Failed to reload transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx, false))
}

// =============================================================================
// RECONCILIATION HANDLER
// =============================================================================

// GetReconciliation loads the tree and reconciles it on demand. The result
// is derived, never persisted; concurrent requests for the same tree share
// one computation.
func (h *Handler) GetReconciliation(w http.ResponseWriter, r *http.Request) {
	id := recon.TransactionID(chi.URLParam(r, "id"))

	v, err, _ := h.recGroup.Do(string(id), func() (any, error) {
		root, err := h.Store.LoadTree(r.Context(), id)
		if err != nil {
			return nil, err
		}
		return recon.CalculateTree(root), nil
	})
	if err != nil {
		writeStoreError(w, "Failed to reconcile transaction", err)
		return
	}

	res := v.(recon.Result)
	if len(res.OrphanedRefunds) > 0 {
		log.Printf("[API] tree %s has %d orphaned refund(s): %v", id, len(res.OrphanedRefunds), res.OrphanedRefunds)
	}
	writeJSON(w, http.StatusOK, toReconciliationDTO(id, res))
}

// =============================================================================
// REFUND HANDLERS
// =============================================================================

// RefundTransaction refunds a single split: POST {"amount": ...} against
// the split's id. The store enforces the balance invariant atomically.
func (h *Handler) RefundTransaction(w http.ResponseWriter, r *http.Request) {
	id := recon.TransactionID(chi.URLParam(r, "id"))

	var req RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "Refund amount must be positive", nil)
		return
	}

	parent, err := h.Store.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, "Failed to get transaction", err)
		return
	}
	if !parent.IsPaymentLike() {
		writeError(w, http.StatusBadRequest, "Only payments and charges can be refunded", nil)
		return
	}
	if parent.Status != recon.StatusSucceeded {
		writeError(w, http.StatusBadRequest, "Only succeeded transactions can be refunded", nil)
		return
	}

	client := &storeRefundClient{store: h.Store, reason: req.Reason}
	tx, err := client.Refund(r.Context(), id, req.Amount)
	if err != nil {
		writeStoreError(w, "Failed to refund transaction", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(&tx, false))
}

// BatchRefund refunds several splits of one tree, strictly one at a time.
// Pre-flight validation rejects the batch before any write; an execution
// failure halts the queue and reports the committed prefix - successes are
// not rolled back.
func (h *Handler) BatchRefund(w http.ResponseWriter, r *http.Request) {
	id := recon.TransactionID(chi.URLParam(r, "id"))

	var req BatchRefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "At least one split is required", err)
		return
	}

	root, err := h.Store.LoadTree(r.Context(), id)
	if err != nil {
		writeStoreError(w, "Failed to load transaction tree", err)
		return
	}
	res := recon.CalculateTree(root)

	amounts := make(map[recon.TransactionID]decimal.Decimal, len(req.Splits))
	for _, split := range req.Splits {
		amounts[recon.TransactionID(split.TransactionID)] = split.Amount
	}

	queue, err := refund.PartialQueue(res, amounts)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid refund selection", err)
		return
	}

	orchestrator := refund.NewOrchestrator(&storeRefundClient{store: h.Store, reason: req.Reason})
	result, execErr := orchestrator.Execute(r.Context(), queue)

	response := BatchRefundResponse{
		Status:    "refunded",
		Committed: make([]*TransactionDTO, 0, len(result.Committed)),
	}
	for i := range result.Committed {
		response.Committed = append(response.Committed, toTransactionDTO(&result.Committed[i], false))
	}

	if execErr != nil {
		var batchErr *refund.BatchError
		if errors.As(execErr, &batchErr) {
			response.Status = "partial_failure"
			if len(result.Committed) == 0 {
				response.Status = "failed"
			}
			response.Failed = &FailedSplitDTO{
				TransactionID: string(batchErr.TransactionID),
				Message:       batchErr.Cause.Error(),
			}
			log.Printf("[API] refund batch for %s aborted at %s: %v", id, batchErr.TransactionID, batchErr.Cause)
			writeJSON(w, http.StatusOK, response)
			return
		}
		writeError(w, http.StatusBadRequest, "Refund batch rejected", execErr)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// storeRefundClient implements refund.Client directly against the store.
// The HTTP client in package refund speaks the same contract remotely.
type storeRefundClient struct {
	store  recon.Store
	reason string
}

func (c *storeRefundClient) Refund(ctx context.Context, id recon.TransactionID, amount decimal.Decimal) (recon.Transaction, error) {
	parent, err := c.store.Get(ctx, id)
	if err != nil {
		return recon.Transaction{}, err
	}

	tx := recon.Transaction{
		ID:       newTransactionID(recon.TxRefund),
		Type:     recon.TxRefund,
		Amount:   amount,
		Currency: parent.Currency,
		Status:   recon.StatusSucceeded,
		ParentID: parent.ID,
		Reason:   c.reason,
	}
	saved, err := c.store.Save(ctx, tx)
	if err != nil {
		return recon.Transaction{}, err
	}
	return *saved, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	body := ErrorBody{Message: message}
	if err != nil {
		body.Details = err.Error()
	}
	writeJSON(w, status, ErrorEnvelope{Data: body})
}

// writeStoreError maps domain errors onto HTTP statuses. Structured errors
// surface their own message so the operator sees the precise rejection.
func writeStoreError(w http.ResponseWriter, fallback string, err error) {
	switch {
	case recon.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Transaction not found", nil)
	case errors.Is(err, recon.ErrRefundExceedsBalance),
		errors.Is(err, recon.ErrDuplicateIdempotencyKey):
		writeError(w, http.StatusConflict, err.Error(), nil)
	case recon.IsClientError(err):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	default:
		log.Printf("[API] %s: %v", fallback, err)
		writeError(w, http.StatusInternalServerError, fallback, err)
	}
}

func intQuery(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}
