package jarsync

import (
	"context"
	"time"

	"github.com/budsapp/buds-sync-core/internal/store"
)

// scheduleBackfillLocked records (or widens) the gap a jar needs backfilled
// and schedules the first retry attempt. Must run inside the same
// transaction as the queue insert that discovered the gap.
func (e *Engine) scheduleBackfillLocked(ctx context.Context, tx store.Querier, jarID string, from, to uint64) error {
	st, err := store.GetOrInitSyncState(ctx, tx, jarID)
	if err != nil {
		return err
	}

	attempt := 0
	if st.BackfillFrom != nil {
		attempt = st.BackfillAttempt
		if *st.BackfillFrom < from {
			from = *st.BackfillFrom
		}
		if st.BackfillTo != nil && *st.BackfillTo > to {
			to = *st.BackfillTo
		}
	}

	// The first attempt runs on the very next housekeeper sweep; the
	// backoff schedule only applies after a failed attempt (see
	// retryBackfillLater), not before the first one.
	return store.SetBackfillState(ctx, tx, jarID, attempt, e.now(), from, to)
}

// RunDueBackfills sweeps every jar with a scheduled backfill whose retry
// time has arrived and attempts to close its gap via the relay client.
// Intended to be called periodically by housekeeper.go.
func (e *Engine) RunDueBackfills(ctx context.Context) {
	if e.relay == nil {
		return
	}
	jarIDs, err := store.ListDueBackfills(ctx, e.store.DB(), e.now())
	if err != nil {
		e.log.Warn().Err(err).Msg("jarsync: failed to list due backfills")
		return
	}
	for _, jarID := range jarIDs {
		e.runBackfill(ctx, jarID)
	}
}

func (e *Engine) runBackfill(ctx context.Context, jarID string) {
	ttl := time.Duration(e.tuning.BackfillLockTTLMs) * time.Millisecond
	if !e.backfillGuard.tryAcquire(jarID, ttl) {
		return
	}
	defer e.backfillGuard.release(jarID)

	db := e.store.DB()
	st, err := store.GetOrInitSyncState(ctx, db, jarID)
	if err != nil || st.BackfillFrom == nil || st.BackfillTo == nil {
		return
	}
	from, to := *st.BackfillFrom, *st.BackfillTo

	envs, err := e.relay.FetchRange(ctx, jarID, from, to, e.tuning.FetchLimit)
	if err != nil {
		e.retryBackfillLater(ctx, jarID, st.BackfillAttempt, from, to)
		return
	}

	for _, env := range envs {
		if err := e.Ingest(ctx, env); err != nil {
			e.log.Warn().Err(err).Str("jar_id", jarID).Uint64("sequence", env.Sequence).Msg("jarsync: backfill ingest failed")
			break
		}
	}

	j, err := store.GetJar(ctx, db, jarID)
	if err != nil {
		return
	}
	if j.LastAppliedSequence >= to {
		_ = store.ClearBackfillState(ctx, db, jarID)
		return
	}
	e.retryBackfillLater(ctx, jarID, st.BackfillAttempt, j.LastAppliedSequence+1, to)
}

func (e *Engine) retryBackfillLater(ctx context.Context, jarID string, attempt int, from, to uint64) {
	nextAt := e.now() + e.tuning.backoffFor(attempt)
	attempt++
	if err := store.SetBackfillState(ctx, e.store.DB(), jarID, attempt, nextAt, from, to); err != nil {
		e.log.Warn().Err(err).Str("jar_id", jarID).Msg("jarsync: failed to reschedule backfill")
	}
}
