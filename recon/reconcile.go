/*
reconcile.go - Payment application tree reconciliation

PURPOSE:
  CalculateTree answers three questions about a charge/payment and its tree
  of refunds, adjustments and splits:
    1. How much was collected, credited, and reversed?
    2. What is the net collectible amount (currency-rounded)?
    3. Which splits can still receive a refund, and up to how much?

ALGORITHM:
  1. Flatten the tree into an arena (worklist, parent-before-child).
  2. Classify every non-failed node:
       payment/charge (succeeded)        -> paid
       refund (succeeded)                -> refunded
       adjustment, negative (succeeded)  -> credited
       adjustment, positive (succeeded)  -> paid
  3. Collect refundedSplits: the ParentID of every refund node. A refund
     whose ParentID matches nothing in the tree is an orphan - it still
     counts in refunded, but marks no split.
  4. Mark payment/charge leaves: payment/charge nodes with no payment/charge
     descendants (computed in reverse arena order, so one linear pass).
  5. net = round(currency, paid - refunded). May be negative; callers treat
     negative net as "fully absorbed", not an error.
  6. appliedTo:
       - The root, when it is itself a leaf, is listed with its gross amount;
         its remaining refundable balance is the top-level net.
       - Every other succeeded leaf not marked in refundedSplits is
         reconciled as its own subtree, and listed with maxAmount = its
         subtree net when that net is positive.

INVARIANTS:
  - Every AppliedTo entry has MaxAmount > 0.
  - Reconciling the same unchanged tree twice yields identical results.
  - The sum of refund children against a node never exceeds its amount;
    that is enforced at write time by the store, not re-checked here.

SEE ALSO:
  - tree.go: Arena construction
  - money.go: Minor-unit rounding
  - refund/queue.go: Turns AppliedTo into a refund queue
*/
package recon

import "github.com/shopspring/decimal"

// CalculateTree reconciles a transaction tree. The root's Children must be
// fully populated (load with include=children); no I/O happens here.
// A nil root yields a zero Result.
func CalculateTree(root *Transaction) Result {
	if root == nil {
		return Result{}
	}

	arena := Flatten(root)
	inTree := make(map[TransactionID]int, len(arena))
	for i, n := range arena {
		inTree[n.ID] = i
	}

	res := Result{
		Currency: root.Currency,
		Paid:     decimal.Zero,
		Credited: decimal.Zero,
		Refunded: decimal.Zero,
	}

	// Classification walk. Failed nodes are invisible to reconciliation;
	// pending refunds reserve their split but have not moved money yet.
	refundedSplits := make(map[TransactionID]bool)
	for _, n := range arena {
		if n.Status == StatusFailed {
			continue
		}
		switch n.Type {
		case TxCharge, TxPayment:
			if n.Status == StatusSucceeded {
				res.Paid = res.Paid.Add(n.Amount)
			}
		case TxRefund:
			if n.Status == StatusSucceeded {
				res.Refunded = res.Refunded.Add(n.Amount)
			}
			if n.ParentID == "" {
				continue
			}
			if _, ok := inTree[n.ParentID]; ok {
				refundedSplits[n.ParentID] = true
			} else {
				res.OrphanedRefunds = append(res.OrphanedRefunds, n.ID)
			}
		case TxAdjustment:
			if n.Status != StatusSucceeded {
				continue
			}
			if n.Amount.IsNegative() {
				res.Credited = res.Credited.Add(n.Amount.Neg())
			} else {
				res.Paid = res.Paid.Add(n.Amount)
			}
		}
	}

	res.Net = Round(res.Currency, res.Paid.Sub(res.Refunded))

	// Leaf marking: a leaf is a non-failed payment/charge node with no
	// non-failed payment/charge descendants. Arena order is parent-before-
	// child, so the reverse pass sees every child before its parent.
	payLike := make([]bool, len(arena))
	hasPayDescendant := make([]bool, len(arena))
	for i, n := range arena {
		payLike[i] = n.IsPaymentLike() && n.Status != StatusFailed
	}
	for i := len(arena) - 1; i >= 0; i-- {
		for _, child := range arena[i].Children {
			ci, ok := inTree[child.ID]
			if !ok || ci == i {
				continue
			}
			if payLike[ci] || hasPayDescendant[ci] {
				hasPayDescendant[i] = true
			}
		}
	}

	leafCount := 0
	for i, n := range arena {
		if !payLike[i] || hasPayDescendant[i] {
			continue
		}
		leafCount++

		if n == root {
			// The root's refundable balance is the top-level net; it is
			// listed with its gross amount and excluded once nothing
			// remains collectible.
			if res.Net.IsPositive() {
				res.AppliedTo = append(res.AppliedTo, Split{
					TransactionID: n.ID,
					MaxAmount:     n.Amount,
					Currency:      res.Currency,
					CustomerID:    n.CustomerID,
					Document:      n.Document,
					IsRoot:        true,
				})
			}
			continue
		}

		// Splits that already received a refund (recorded as a sibling
		// pointing at them) are no longer offered for refund.
		if refundedSplits[n.ID] || n.Status != StatusSucceeded {
			continue
		}

		// Refunds recorded inside the leaf's own subtree are absorbed into
		// its individual net instead. Leaves have no payment/charge
		// descendants, so this nested call cannot descend further.
		sub := CalculateTree(n)
		if sub.Net.IsPositive() {
			res.AppliedTo = append(res.AppliedTo, Split{
				TransactionID: n.ID,
				MaxAmount:     sub.Net,
				Currency:      res.Currency,
				CustomerID:    n.CustomerID,
				Document:      n.Document,
			})
		}
	}

	res.HasSubTransactions = leafCount > 1
	return res
}
