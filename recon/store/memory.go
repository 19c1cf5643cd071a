// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payment-engine/recon"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	transactions map[recon.TransactionID]recon.Transaction
	order        []recon.TransactionID
	idempotency  map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		transactions: make(map[recon.TransactionID]recon.Transaction),
		idempotency:  make(map[string]bool),
	}
}

// Save inserts a transaction, enforcing idempotency, parentage and the
// refund balance invariant.
func (m *Memory) Save(_ context.Context, tx recon.Transaction) (*recon.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tx.IdempotencyKey != "" && m.idempotency[tx.IdempotencyKey] {
		return nil, recon.ErrDuplicateIdempotencyKey
	}
	if _, exists := m.transactions[tx.ID]; exists {
		return nil, recon.ErrDuplicateIdempotencyKey
	}

	if tx.ParentID != "" {
		parent, ok := m.transactions[tx.ParentID]
		if !ok {
			return nil, recon.ErrTransactionNotFound
		}
		if tx.Type == recon.TxRefund {
			if !parent.IsPaymentLike() {
				return nil, recon.ErrInvalidParent
			}
			already := m.refundedAgainstLocked(tx.ParentID)
			if already.Add(tx.Amount).GreaterThan(parent.Amount) {
				return nil, &recon.RefundExceedsBalanceError{
					TransactionID:   parent.ID,
					Original:        parent.Amount,
					AlreadyRefunded: already,
					Requested:       tx.Amount,
				}
			}
		}
		if tx.Currency == "" {
			tx.Currency = parent.Currency
		}
	}

	now := time.Now().UTC()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now
	tx.Children = nil

	m.transactions[tx.ID] = tx
	m.order = append(m.order, tx.ID)
	if tx.IdempotencyKey != "" {
		m.idempotency[tx.IdempotencyKey] = true
	}

	saved := tx
	return &saved, nil
}

func (m *Memory) refundedAgainstLocked(parentID recon.TransactionID) decimal.Decimal {
	total := decimal.Zero
	for _, t := range m.transactions {
		if t.ParentID == parentID && t.Type == recon.TxRefund && t.Status != recon.StatusFailed {
			total = total.Add(t.Amount)
		}
	}
	return total
}

// Get returns a transaction without children.
func (m *Memory) Get(_ context.Context, id recon.TransactionID) (*recon.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.transactions[id]
	if !ok {
		return nil, recon.ErrTransactionNotFound
	}
	tx.Children = nil
	return &tx, nil
}

// LoadTree returns the transaction with all descendants linked.
func (m *Memory) LoadTree(_ context.Context, id recon.TransactionID) (*recon.Transaction, error) {
	m.mu.RLock()
	rows := make([]recon.Transaction, 0, len(m.order))
	for _, txID := range m.order {
		rows = append(rows, m.transactions[txID])
	}
	m.mu.RUnlock()

	return recon.AssembleTree(id, rows)
}

// ListRoots returns root transactions, newest first.
func (m *Memory) ListRoots(_ context.Context, limit, offset int) ([]recon.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var roots []recon.Transaction
	for _, id := range m.order {
		tx := m.transactions[id]
		if tx.ParentID == "" {
			roots = append(roots, tx)
		}
	}
	sort.SliceStable(roots, func(i, j int) bool {
		return roots[i].CreatedAt.After(roots[j].CreatedAt)
	})

	if offset >= len(roots) {
		return []recon.Transaction{}, nil
	}
	roots = roots[offset:]
	if limit > 0 && limit < len(roots) {
		roots = roots[:limit]
	}
	return roots, nil
}

// UpdateStatus marks a transaction failed.
func (m *Memory) UpdateStatus(_ context.Context, id recon.TransactionID, status recon.TransactionStatus) error {
	if status != recon.StatusFailed {
		return recon.ErrInvalidStatusTransition
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[id]
	if !ok {
		return recon.ErrTransactionNotFound
	}
	tx.Status = recon.StatusFailed
	tx.UpdatedAt = time.Now().UTC()
	m.transactions[id] = tx
	return nil
}

// StalePending returns pending transactions created before the cutoff.
func (m *Memory) StalePending(_ context.Context, cutoff time.Time) ([]recon.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stale []recon.Transaction
	for _, id := range m.order {
		tx := m.transactions[id]
		if tx.Status == recon.StatusPending && tx.CreatedAt.Before(cutoff) {
			stale = append(stale, tx)
		}
	}
	return stale, nil
}

// Exists checks if an idempotency key has been used.
func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

// Reset clears all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.transactions = make(map[recon.TransactionID]recon.Transaction)
	m.order = nil
	m.idempotency = make(map[string]bool)
	return nil
}
