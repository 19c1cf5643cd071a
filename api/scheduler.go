/*
scheduler.go - Background reaper for stale pending transactions

PURPOSE:
  Periodically scans for transactions stuck in "pending" past their TTL
  and voids them. A pending refund reserves its split against the balance
  invariant; an abandoned one would hold that reservation forever.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Voids (status -> failed) pending transactions older than the TTL
  - Never deletes: voided transactions stay in the tree as audit trail

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - PendingTTL:    Age after which a pending transaction is voided
  - Enabled:       Whether the reaper is active (default: true)

USAGE:
  reaper := NewPendingReaper(store)
  reaper.Start()
  // ... later
  reaper.Stop()

SEE ALSO:
  - handlers.go: UpdateTransaction (manual void)
  - recon/store.go: StalePending contract
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/payment-engine/recon"
)

// PendingReaper voids pending transactions that outlived their TTL.
type PendingReaper struct {
	Store         recon.Store
	CheckInterval time.Duration
	PendingTTL    time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewPendingReaper creates a new reaper with default intervals.
func NewPendingReaper(store recon.Store) *PendingReaper {
	return &PendingReaper{
		Store:         store,
		CheckInterval: 1 * time.Hour,
		PendingTTL:    24 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the reaper.
func (pr *PendingReaper) Start() {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	if !pr.Enabled {
		log.Println("[Reaper] Disabled, not starting")
		return
	}

	pr.ticker = time.NewTicker(pr.CheckInterval)
	pr.wg.Add(1)

	go pr.run()

	log.Printf("[Reaper] Started with check interval: %v, pending TTL: %v", pr.CheckInterval, pr.PendingTTL)
}

// Stop stops the reaper.
func (pr *PendingReaper) Stop() {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	if pr.ticker != nil {
		pr.ticker.Stop()
		close(pr.stop)
		pr.wg.Wait()
		log.Println("[Reaper] Stopped")
	}
}

func (pr *PendingReaper) run() {
	defer pr.wg.Done()

	// Run immediately on start
	pr.checkAndVoid()

	for {
		select {
		case <-pr.ticker.C:
			pr.checkAndVoid()
		case <-pr.stop:
			return
		}
	}
}

func (pr *PendingReaper) checkAndVoid() {
	ctx := context.Background()
	cutoff := time.Now().Add(-pr.PendingTTL)

	stale, err := pr.Store.StalePending(ctx, cutoff)
	if err != nil {
		log.Printf("[Reaper] Error listing stale pending transactions: %v", err)
		return
	}
	if len(stale) == 0 {
		return
	}

	voided := 0
	for _, tx := range stale {
		if err := pr.Store.UpdateStatus(ctx, tx.ID, recon.StatusFailed); err != nil {
			log.Printf("[Reaper] Error voiding %s: %v", tx.ID, err)
			continue
		}
		voided++
	}

	log.Printf("[Reaper] Voided %d of %d stale pending transaction(s)", voided, len(stale))
}

// RunNow triggers an immediate check (for testing/admin).
func (pr *PendingReaper) RunNow() {
	pr.checkAndVoid()
}
