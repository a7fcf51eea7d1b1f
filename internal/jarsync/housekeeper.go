package jarsync

import (
	"context"
	"time"

	"github.com/budsapp/buds-sync-core/internal/store"
)

// Housekeeper runs the Engine's periodic background work: due backfill
// retries and queue-drain sweeps for jars whose head receipt may have
// become satisfiable by a path other than a live Ingest call (e.g. a
// backfill that landed out of band). Shaped on the teacher's service
// Agent: one struct, one ticker loop, started in a goroutine and stopped
// via context cancellation.
type Housekeeper struct {
	engine   *Engine
	interval time.Duration
}

// NewHousekeeper builds a Housekeeper ticking at interval.
func NewHousekeeper(e *Engine, interval time.Duration) *Housekeeper {
	return &Housekeeper{engine: e, interval: interval}
}

// Run blocks, sweeping every interval until ctx is canceled. Call it in a
// goroutine: go housekeeper.Run(ctx)
func (h *Housekeeper) Run(ctx context.Context) {
	h.engine.log.Info().Dur("interval", h.interval).Msg("jarsync: housekeeper started")
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.engine.log.Info().Msg("jarsync: housekeeper stopping")
			return
		case <-t.C:
			h.sweep(ctx)
		}
	}
}

func (h *Housekeeper) sweep(ctx context.Context) {
	h.engine.RunDueBackfills(ctx)
	h.drainPendingQueues(ctx)
}

// drainPendingQueues retries draining every jar that currently has queued
// entries, guarded by drainGuard so an unusually slow drain on one tick
// never overlaps a second attempt on the next.
func (h *Housekeeper) drainPendingQueues(ctx context.Context) {
	jarIDs, err := store.ListJarIDsWithQueueEntries(ctx, h.engine.store.DB())
	if err != nil {
		h.engine.log.Warn().Err(err).Msg("jarsync: failed to list jars with queued receipts")
		return
	}

	ttl := time.Duration(h.engine.tuning.QueueDrainLockTTLMs) * time.Millisecond
	for _, jarID := range jarIDs {
		if !h.engine.drainGuard.tryAcquire(jarID, ttl) {
			continue
		}
		h.engine.drainQueue(ctx, jarID)
		h.engine.drainGuard.release(jarID)
	}
}
