package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// EnqueueReceipt inserts a verified-but-not-yet-applicable receipt
// (spec.md §4.5 gap queueing contract). Idempotent on (jar_id, seq).
func EnqueueReceipt(ctx context.Context, q Querier, r QueuedReceipt) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO jar_receipt_queue
			(jar_id, sequence_number, cid, parent_cid, payload_cbor, signature, sender_member_id, queued_at_ms, retry_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(jar_id, sequence_number) DO NOTHING`,
		r.JarID, r.SequenceNumber, r.CID, nullIfEmpty(r.ParentCID), r.PayloadCBOR, r.Signature, r.SenderMemberID, r.QueuedAtMs)
	if err != nil {
		return fmt.Errorf("store: enqueue receipt: %w", err)
	}
	return nil
}

// NextQueuedForSequence returns the queued entry for (jarID, seq), if any.
func NextQueuedForSequence(ctx context.Context, q Querier, jarID string, seq uint64) (QueuedReceipt, bool, error) {
	var r QueuedReceipt
	r.JarID = jarID
	var parentCID sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT queue_id, sequence_number, cid, parent_cid, payload_cbor, signature, sender_member_id, queued_at_ms, retry_count, last_retry_at_ms, poison_reason
		FROM jar_receipt_queue WHERE jar_id = ? AND sequence_number = ?`, jarID, seq).
		Scan(&r.QueueID, &r.SequenceNumber, &r.CID, &parentCID, &r.PayloadCBOR, &r.Signature, &r.SenderMemberID, &r.QueuedAtMs, &r.RetryCount, &r.LastRetryAtMs, &r.PoisonReason)
	if errors.Is(err, sql.ErrNoRows) {
		return QueuedReceipt{}, false, nil
	}
	if err != nil {
		return QueuedReceipt{}, false, fmt.Errorf("store: lookup queued receipt: %w", err)
	}
	r.ParentCID = parentCID.String
	return r, true, nil
}

// ListQueued returns all queue entries for a jar, ascending by sequence.
// The sync engine's drain reads entries one sequence at a time through
// NextQueuedForSequence instead.
func ListQueued(ctx context.Context, q Querier, jarID string) ([]QueuedReceipt, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT queue_id, sequence_number, cid, parent_cid, payload_cbor, signature, sender_member_id, queued_at_ms, retry_count, last_retry_at_ms, poison_reason
		FROM jar_receipt_queue WHERE jar_id = ? ORDER BY sequence_number ASC`, jarID)
	if err != nil {
		return nil, fmt.Errorf("store: list queued: %w", err)
	}
	defer rows.Close()

	var out []QueuedReceipt
	for rows.Next() {
		var r QueuedReceipt
		r.JarID = jarID
		var parentCID sql.NullString
		if err := rows.Scan(&r.QueueID, &r.SequenceNumber, &r.CID, &parentCID, &r.PayloadCBOR, &r.Signature, &r.SenderMemberID, &r.QueuedAtMs, &r.RetryCount, &r.LastRetryAtMs, &r.PoisonReason); err != nil {
			return nil, fmt.Errorf("store: scan queued: %w", err)
		}
		r.ParentCID = parentCID.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func DeleteQueued(ctx context.Context, q Querier, queueID int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM jar_receipt_queue WHERE queue_id = ?`, queueID)
	if err != nil {
		return fmt.Errorf("store: delete queued: %w", err)
	}
	return nil
}

func IncrementRetry(ctx context.Context, q Querier, queueID int64, atMs int64) error {
	_, err := q.ExecContext(ctx, `
		UPDATE jar_receipt_queue SET retry_count = retry_count + 1, last_retry_at_ms = ? WHERE queue_id = ?`,
		atMs, queueID)
	if err != nil {
		return fmt.Errorf("store: increment retry: %w", err)
	}
	return nil
}

func PoisonQueued(ctx context.Context, q Querier, queueID int64, reason string) error {
	_, err := q.ExecContext(ctx, `UPDATE jar_receipt_queue SET poison_reason = ? WHERE queue_id = ?`, reason, queueID)
	if err != nil {
		return fmt.Errorf("store: poison queued: %w", err)
	}
	return nil
}

// ClearPoisonForJar resets poison markers and retry counts for a jar's
// remaining queue entries — called on operator-initiated unhalt so a
// previously poisoned entry gets a fresh set of retries rather than
// being stuck at the poisoned reason forever.
func ClearPoisonForJar(ctx context.Context, q Querier, jarID string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE jar_receipt_queue SET poison_reason = NULL, retry_count = 0 WHERE jar_id = ?`, jarID)
	if err != nil {
		return fmt.Errorf("store: clear poison for jar: %w", err)
	}
	return nil
}

// ListJarIDsWithQueueEntries returns distinct jar ids that currently have
// at least one queued entry, for the housekeeper's drain and retention
// sweeps.
func ListJarIDsWithQueueEntries(ctx context.Context, q Querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT DISTINCT jar_id FROM jar_receipt_queue`)
	if err != nil {
		return nil, fmt.Errorf("store: list jars with queue entries: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var jarID string
		if err := rows.Scan(&jarID); err != nil {
			return nil, fmt.Errorf("store: scan jar with queue entries: %w", err)
		}
		out = append(out, jarID)
	}
	return out, rows.Err()
}

// DeleteQueuedOlderThan drops queue entries older than cutoffMs — the
// retention policy applied on manual unhalt (spec.md §9 open question,
// resolved in DESIGN.md).
func DeleteQueuedOlderThan(ctx context.Context, q Querier, jarID string, cutoffMs int64) (int64, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM jar_receipt_queue WHERE jar_id = ? AND queued_at_ms < ?`, jarID, cutoffMs)
	if err != nil {
		return 0, fmt.Errorf("store: prune queue: %w", err)
	}
	return res.RowsAffected()
}
