/*
tree.go - Assembling and flattening transaction trees

PURPOSE:
  Stores hold transactions as flat rows with parent back-references; the
  reconciler wants an in-memory tree with Children populated. This file
  converts between the two. Both directions use explicit worklists with an
  arena of node indices - no recursion - so arbitrarily deep refund chains
  cannot overflow the call stack.

CYCLE SAFETY:
  Malformed data (a parent pointer loop) must not hang the walk. Flatten
  tracks visited IDs and silently drops repeat visits; AssembleTree links
  each row to at most one parent.

SEE ALSO:
  - reconcile.go: Consumes the flattened arena
  - store.go: LoadTree implementations call AssembleTree
*/
package recon

import "sort"

// AssembleTree links flat rows into a tree and returns the node with the
// requested id, its Children populated through all descendants. Rows whose
// parent is absent from the set remain detached (and unreachable from the
// returned node); the reconciliation walk reports such refunds as orphans
// when they appear inside a loaded subtree.
func AssembleTree(id TransactionID, rows []Transaction) (*Transaction, error) {
	nodes := make(map[TransactionID]*Transaction, len(rows))
	order := make([]*Transaction, 0, len(rows))
	for i := range rows {
		n := rows[i] // copy; Children rebuilt below
		n.Children = nil
		if _, dup := nodes[n.ID]; dup {
			continue
		}
		nodes[n.ID] = &n
		order = append(order, &n)
	}

	root, ok := nodes[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}

	for _, n := range order {
		if n.ParentID == "" || n.ID == id {
			continue
		}
		if parent, ok := nodes[n.ParentID]; ok && parent != n {
			parent.Children = append(parent.Children, n)
		}
	}

	// Keep child ordering deterministic regardless of row order.
	for _, n := range order {
		sortChildren(n.Children)
	}
	return root, nil
}

func sortChildren(children []*Transaction) {
	sort.SliceStable(children, func(i, j int) bool {
		if !children[i].CreatedAt.Equal(children[j].CreatedAt) {
			return children[i].CreatedAt.Before(children[j].CreatedAt)
		}
		return children[i].ID < children[j].ID
	})
}

// Flatten walks the tree breadth-first and returns the nodes parent-before-
// child. Repeat visits (cycles, shared nodes) are dropped.
func Flatten(root *Transaction) []*Transaction {
	if root == nil {
		return nil
	}
	seen := map[TransactionID]bool{root.ID: true}
	arena := []*Transaction{root}

	for next := 0; next < len(arena); next++ {
		for _, child := range arena[next].Children {
			if child == nil || seen[child.ID] {
				continue
			}
			seen[child.ID] = true
			arena = append(arena, child)
		}
	}
	return arena
}
