package jarsync

import (
	"context"
	"time"

	"github.com/budsapp/buds-sync-core/internal/store"
)

// Reaper runs two low-frequency cleanup passes: expiring stale in-process
// guard entries (backfillGuard/drainGuard, see guard.go) and pruning
// queue entries older than MaxQueueAge once a jar is unhalted (spec.md §9
// retention decision, recorded in DESIGN.md). Shaped on the teacher's
// presence Agent: a bare ticker loop with no per-tick state.
type Reaper struct {
	engine   *Engine
	interval time.Duration
}

// NewReaper builds a Reaper ticking at interval.
func NewReaper(e *Engine, interval time.Duration) *Reaper {
	return &Reaper{engine: e, interval: interval}
}

// Run blocks until ctx is canceled. Call it in a goroutine: go reaper.Run(ctx)
func (r *Reaper) Run(ctx context.Context) {
	r.engine.log.Info().Msg("jarsync: reaper started")
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.tick(ctx)
		}
	}
}

func (r *Reaper) tick(ctx context.Context) {
	r.engine.backfillGuard.reapExpired()
	r.engine.drainGuard.reapExpired()
	r.pruneAgedQueueEntries(ctx)
}

// pruneAgedQueueEntries drops queued entries older than MaxQueueAge for
// jars that are not currently halted — a halted jar's queue is left
// intact for operator inspection until it is explicitly unhalted.
func (r *Reaper) pruneAgedQueueEntries(ctx context.Context) {
	jarIDs, err := store.ListJarIDsWithQueueEntries(ctx, r.engine.store.DB())
	if err != nil {
		return
	}
	cutoff := r.engine.now() - r.engine.tuning.MaxQueueAgeMs
	for _, jarID := range jarIDs {
		st, err := store.GetOrInitSyncState(ctx, r.engine.store.DB(), jarID)
		if err != nil || st.IsHalted {
			continue
		}
		if n, err := store.DeleteQueuedOlderThan(ctx, r.engine.store.DB(), jarID, cutoff); err == nil && n > 0 {
			r.engine.log.Info().Str("jar_id", jarID).Int64("dropped", n).Msg("jarsync: pruned aged queue entries")
		}
	}
}
