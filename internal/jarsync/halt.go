package jarsync

import (
	"context"

	"github.com/budsapp/buds-sync-core/internal/store"
)

// Unhalt clears a jar's halted state for operator-initiated recovery. Per
// the retention decision in DESIGN.md (spec.md §9 open question), queue
// entries older than MaxQueueAge are dropped at the moment of unhalt
// rather than retried — a receipt that old is assumed superseded by
// events the member has already seen through other jars or re-invites.
// Draining resumes immediately after.
func (e *Engine) Unhalt(ctx context.Context, jarID string) error {
	cutoff := e.now() - e.tuning.MaxQueueAgeMs
	if _, err := store.DeleteQueuedOlderThan(ctx, e.store.DB(), jarID, cutoff); err != nil {
		return err
	}
	if err := store.ClearPoisonForJar(ctx, e.store.DB(), jarID); err != nil {
		return err
	}
	if err := store.Unhalt(ctx, e.store.DB(), jarID); err != nil {
		return err
	}
	e.drainQueue(ctx, jarID)
	return nil
}
