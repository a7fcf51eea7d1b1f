package jarsync

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/budsapp/buds-sync-core/internal/store"
)

// RelayFetcher is the subset of internal/relay's client the engine needs
// to pull a contiguous range of envelopes during backfill. Kept narrow so
// the engine can be tested against a fake without pulling in HTTP.
type RelayFetcher interface {
	FetchRange(ctx context.Context, jarID string, fromSeq, toSeq uint64, limit int) ([]Envelope, error)
}

// Engine is the Jar Sync Engine (spec.md §4.5): the single entry point
// that turns relay envelopes into durable, applied jar state, one jar at
// a time, in strict sequence order.
type Engine struct {
	store  *store.Store
	relay  RelayFetcher
	tuning Tuning
	log    zerolog.Logger

	// now is overridable in tests so queue-age and backoff math is
	// deterministic without sleeping real time.
	now func() int64

	// backfillGuard and drainGuard coalesce concurrent housekeeper sweeps
	// so two ticks never run backfill or queue-drain for the same jar at
	// once; see guard.go.
	backfillGuard *ttlGuard
	drainGuard    *ttlGuard
}

// New builds an Engine. relay may be nil for tests that never exercise
// gap backfill.
func New(s *store.Store, relay RelayFetcher, tuning Tuning, log zerolog.Logger) *Engine {
	return &Engine{
		store:         s,
		relay:         relay,
		tuning:        tuning,
		log:           log.With().Str("module", "jarsync").Logger(),
		now:           func() int64 { return time.Now().UnixMilli() },
		backfillGuard: newTTLGuard(),
		drainGuard:    newTTLGuard(),
	}
}

// Status returns the current, read-only sync state for a jar.
func (e *Engine) Status(ctx context.Context, jarID string) (Status, error) {
	tomb, err := store.IsTombstoned(ctx, e.store.DB(), jarID)
	if err != nil {
		return Status{}, err
	}
	if tomb {
		return Status{JarID: jarID, State: StateTombstoned}, nil
	}

	j, err := store.GetJar(ctx, e.store.DB(), jarID)
	if err != nil && err != store.ErrNotFound {
		return Status{}, err
	}

	st, err := store.GetOrInitSyncState(ctx, e.store.DB(), jarID)
	if err != nil {
		return Status{}, err
	}

	out := Status{JarID: jarID, LastAppliedSequence: j.LastAppliedSequence}
	switch {
	case st.IsHalted:
		out.State = StateHalted
		out.HaltReason = st.HaltReason
	case st.BackfillFrom != nil && st.BackfillTo != nil:
		out.State = StateBackfilling
		out.BackfillFrom = *st.BackfillFrom
		out.BackfillTo = *st.BackfillTo
		out.BackfillAttempt = st.BackfillAttempt
	default:
		out.State = StateHealthy
	}
	return out, nil
}
