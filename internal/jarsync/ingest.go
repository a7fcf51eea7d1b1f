package jarsync

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"errors"
	"fmt"

	"github.com/budsapp/buds-sync-core/internal/codec"
	"github.com/budsapp/buds-sync-core/internal/identity"
	"github.com/budsapp/buds-sync-core/internal/store"
)

// Ingest runs the full ingest pipeline (spec.md §4.5.3) for a single
// envelope: replay/tombstone/halt short-circuits, gap detection and
// queueing, CID and signature verification, dispatch, and — once the
// envelope lands at the jar's next expected sequence — draining whatever
// was already queued behind it.
func (e *Engine) Ingest(ctx context.Context, env Envelope) error {
	applied, err := e.applyOne(ctx, env)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}
	e.drainQueue(ctx, env.JarID)
	return nil
}

// applyOne runs steps 1-8 inside a single atomic per-jar write. A
// precondition or dispatch failure rolls that write back (nothing the
// handler touched may be left half-applied), so the poison-candidate
// enqueue for that case cannot happen inside the same transaction — it is
// parked in its own write, after the pipeline transaction has already
// rolled back, via the poisonCandidate flag below.
func (e *Engine) applyOne(ctx context.Context, env Envelope) (applied bool, err error) {
	var poisonCandidate bool
	var haltReason string
	txErr := e.store.WithJarWriteTx(ctx, env.JarID, func(tx *sql.Tx) error {
		// Step 1: replay check.
		seen, err := store.ReceiptExists(ctx, tx, env.CID)
		if err != nil {
			return err
		}
		if seen {
			return nil
		}

		// Step 2: tombstone check.
		tomb, err := store.IsTombstoned(ctx, tx, env.JarID)
		if err != nil {
			return err
		}
		if tomb {
			return nil
		}

		// Step 3: halt check.
		st, err := store.GetOrInitSyncState(ctx, tx, env.JarID)
		if err != nil {
			return err
		}
		if st.IsHalted {
			return ErrHalted
		}

		// Step 4: gap analysis.
		j, err := store.GetJar(ctx, tx, env.JarID)
		var lastApplied uint64
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		} else {
			lastApplied = j.LastAppliedSequence
		}
		expected := lastApplied + 1

		if env.Sequence < expected {
			// Already applied under a different delivery path — unless this
			// is the same sequence claiming a different CID, which is a
			// corruption signal (spec.md §4.5 P9/"SequenceCidMismatch"),
			// not a harmless re-delivery.
			prevCID, found, err := store.ProcessedCIDForSequence(ctx, tx, env.JarID, env.Sequence)
			if err != nil {
				return err
			}
			if found && prevCID != env.CID {
				haltReason = fmt.Sprintf("SequenceCidMismatch: jar %s sequence %d processed as %s, received %s", env.JarID, env.Sequence, prevCID, env.CID)
				return ErrSequenceCIDMismatch
			}
			return nil
		}

		if env.Sequence > expected {
			return e.handleGap(ctx, tx, env, expected)
		}

		// Steps 5-6: CID + signature verification against the exact
		// canonical bytes the envelope carries.
		pre, _, verr := e.verify(ctx, tx, env)
		if verr != nil {
			return verr
		}

		// Step 7: dispatch-table precondition.
		if err := checkPrecondition(ctx, tx, pre.ReceiptType, env); err != nil {
			poisonCandidate = true
			return err
		}

		// Step 8: apply.
		if err := e.dispatchAndRecord(ctx, tx, env, pre); err != nil {
			poisonCandidate = true
			return err
		}

		applied = true
		return nil
	})
	if txErr != nil {
		if poisonCandidate {
			// The pipeline transaction above already rolled back; park the
			// candidate in its own committed write so the housekeeper's
			// retry/poison accounting has something to find at this
			// sequence.
			e.enqueuePoisonCandidate(ctx, e.store.DB(), env)
		}
		if haltReason != "" {
			// Same reasoning: the halt flag must survive the rollback, so
			// it's written in its own commit against the store handle.
			if err := store.SetHalted(ctx, e.store.DB(), env.JarID, haltReason, e.now()); err != nil {
				e.log.Error().Err(err).Str("jar_id", env.JarID).Msg("jarsync: failed to halt jar after sequence/CID mismatch")
			} else {
				e.log.Error().Str("jar_id", env.JarID).Uint64("sequence", env.Sequence).Msg("jarsync: jar halted: sequence/CID mismatch")
			}
		}
		return false, txErr
	}
	return applied, nil
}

// verify decodes the preimage and checks both the CID binding and the
// Ed25519 signature against the TOFU-pinned author key.
func (e *Engine) verify(ctx context.Context, tx *sql.Tx, env Envelope) (codec.Preimage, []byte, error) {
	computed := codec.ComputeCID(env.PayloadCBOR)
	if string(computed) != env.CID {
		return codec.Preimage{}, nil, ErrCIDMismatch
	}

	pre, err := codec.DecodeStrict(env.PayloadCBOR)
	if err != nil {
		return codec.Preimage{}, nil, err
	}

	authorKey, err := checkAuthorPinned(ctx, tx, pre.AuthorMemberID, pre.AuthorDeviceID)
	if err != nil {
		return codec.Preimage{}, nil, err
	}

	if err := identity.Verify(env.PayloadCBOR, env.Signature, ed25519.PublicKey(authorKey)); err != nil {
		return codec.Preimage{}, nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return pre, authorKey, nil
}

// dispatchAndRecord runs the type-specific handler and, on success, writes
// the durable receipt row, the processed-sequence index entry, and the
// jar's advanced sequence — all three in the same transaction so a crash
// between them is impossible to observe.
func (e *Engine) dispatchAndRecord(ctx context.Context, tx *sql.Tx, env Envelope, pre codec.Preimage) error {
	handler, ok := dispatchTable[pre.ReceiptType]
	if !ok {
		return ErrUnknownReceiptType
	}

	ac := applyContext{
		env:            env,
		authorMemberID: pre.AuthorMemberID,
		authorDeviceID: pre.AuthorDeviceID,
		nowMs:          e.now(),
	}
	if err := handler(ctx, tx, payload(pre.Payload), ac); err != nil {
		return err
	}

	if err := store.InsertReceipt(ctx, tx, store.ReceiptRow{
		CID:            env.CID,
		AuthorMemberID: pre.AuthorMemberID,
		AuthorDeviceID: pre.AuthorDeviceID,
		ParentCID:      pre.ParentCID,
		RootCID:        pre.RootCID,
		ReceiptType:    pre.ReceiptType,
		PayloadCBOR:    env.PayloadCBOR,
		Signature:      env.Signature,
		ReceivedAtMs:   env.ReceivedAtMs,
	}); err != nil {
		return err
	}
	if err := store.MarkProcessed(ctx, tx, env.JarID, env.Sequence, env.CID, ac.nowMs); err != nil {
		return err
	}
	return store.AdvanceJarSequence(ctx, tx, env.JarID, env.Sequence, env.CID)
}

// handleGap implements the gap queueing contract (spec.md §4.5 "Gap
// Queueing Contract"): a receipt that arrives ahead of the jar's next
// expected sequence is verified (never queue unverifiable garbage), then
// parked, and a backfill is scheduled to close the hole.
func (e *Engine) handleGap(ctx context.Context, tx *sql.Tx, env Envelope, expected uint64) error {
	if _, _, err := e.verify(ctx, tx, env); err != nil {
		return err
	}

	if err := store.EnqueueReceipt(ctx, tx, store.QueuedReceipt{
		JarID:          env.JarID,
		SequenceNumber: env.Sequence,
		CID:            env.CID,
		ParentCID:      env.ParentCID,
		PayloadCBOR:    env.PayloadCBOR,
		Signature:      env.Signature,
		SenderMemberID: env.SenderMemberID,
		QueuedAtMs:     e.now(),
	}); err != nil {
		return err
	}

	return e.scheduleBackfillLocked(ctx, tx, env.JarID, expected, env.Sequence-1)
}

// enqueuePoisonCandidate parks a verified-but-undispatchable receipt so
// the housekeeper's retry/poison accounting applies uniformly whether the
// receipt arrived live or was drained from the queue. It runs against q
// (the store handle, not the pipeline transaction, which has already
// rolled back by the time this is called) and its own failures are
// logged, not propagated — the original dispatch error is what the
// caller needs to see.
func (e *Engine) enqueuePoisonCandidate(ctx context.Context, q store.Querier, env Envelope) {
	_, already, err := store.NextQueuedForSequence(ctx, q, env.JarID, env.Sequence)
	if err == nil && already {
		return
	}
	if err := store.EnqueueReceipt(ctx, q, store.QueuedReceipt{
		JarID:          env.JarID,
		SequenceNumber: env.Sequence,
		CID:            env.CID,
		ParentCID:      env.ParentCID,
		PayloadCBOR:    env.PayloadCBOR,
		Signature:      env.Signature,
		SenderMemberID: env.SenderMemberID,
		QueuedAtMs:     e.now(),
	}); err != nil {
		e.log.Warn().Err(err).Str("jar_id", env.JarID).Msg("jarsync: failed to park undispatchable receipt")
	}
}

// DrainQueue attempts to apply whatever queue entries now form a
// contiguous run from the jar's current sequence. Ingest already calls
// this automatically after every successful apply; it is exposed so a
// caller that learns about newly available receipts through another path
// (e.g. a manual backfill trigger) can ask the engine to retry without
// fabricating a live envelope.
func (e *Engine) DrainQueue(ctx context.Context, jarID string) {
	e.drainQueue(ctx, jarID)
}

// drainQueue applies whatever queued receipts now form a contiguous run
// from the jar's current sequence, stopping at the first gap, poison
// marker, or halt. Each drained entry runs through the exact same
// verify+dispatch path as a live receipt, one jar-write transaction at a
// time.
func (e *Engine) drainQueue(ctx context.Context, jarID string) {
	for {
		j, err := store.GetJar(ctx, e.store.DB(), jarID)
		if err != nil {
			return
		}
		expected := j.LastAppliedSequence + 1

		qr, ok, err := store.NextQueuedForSequence(ctx, e.store.DB(), jarID, expected)
		if err != nil || !ok {
			return
		}
		if qr.PoisonReason != nil {
			return
		}

		env := Envelope{
			JarID:          jarID,
			Sequence:       qr.SequenceNumber,
			CID:            qr.CID,
			ParentCID:      qr.ParentCID,
			PayloadCBOR:    qr.PayloadCBOR,
			Signature:      qr.Signature,
			SenderMemberID: qr.SenderMemberID,
			ReceivedAtMs:   qr.QueuedAtMs,
		}

		applied, err := e.applyOne(ctx, env)
		if errors.Is(err, ErrHalted) {
			// A halted jar is not a processing failure of this entry.
			return
		}
		if err != nil {
			e.recordQueueFailure(ctx, jarID, qr, err)
			return
		}
		if !applied {
			// Replayed/tombstoned mid-drain: drop the stale queue entry
			// and keep going rather than loop forever on it.
			_ = store.DeleteQueued(ctx, e.store.DB(), qr.QueueID)
			continue
		}
		_ = store.DeleteQueued(ctx, e.store.DB(), qr.QueueID)
	}
}

// recordQueueFailure increments the queued entry's retry count and, past
// MaxRetries, poisons it and halts the jar (spec.md §4.5 "Poison & Halt").
func (e *Engine) recordQueueFailure(ctx context.Context, jarID string, qr store.QueuedReceipt, cause error) {
	db := e.store.DB()
	now := e.now()
	if err := store.IncrementRetry(ctx, db, qr.QueueID, now); err != nil {
		e.log.Warn().Err(err).Msg("jarsync: failed to record queue retry")
	}
	if qr.RetryCount+1 < e.tuning.MaxRetries {
		return
	}
	reason := fmt.Sprintf("poisoned after %d retries: %v", qr.RetryCount+1, cause)
	if err := store.PoisonQueued(ctx, db, qr.QueueID, reason); err != nil {
		e.log.Error().Err(err).Msg("jarsync: failed to mark queue entry poisoned")
	}
	if err := store.SetHalted(ctx, db, jarID, reason, now); err != nil {
		e.log.Error().Err(err).Msg("jarsync: failed to halt jar after poison")
	}
	e.log.Error().Str("jar_id", jarID).Uint64("sequence", qr.SequenceNumber).Str("reason", reason).Msg("jarsync: jar halted")
}
