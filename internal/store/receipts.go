package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// InsertReceipt writes the durable receipt row. Called as part of the
// same atomic write as the processed_jar_receipts insert and jar mutation
// in a handler (see jarsync).
func InsertReceipt(ctx context.Context, q Querier, r ReceiptRow) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO receipts (cid, author_member_id, author_device_id, parent_cid, root_cid, receipt_type, payload_cbor, signature, received_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cid) DO NOTHING`,
		r.CID, r.AuthorMemberID, r.AuthorDeviceID, nullIfEmpty(r.ParentCID), r.RootCID, r.ReceiptType, r.PayloadCBOR, r.Signature, r.ReceivedAtMs)
	if err != nil {
		return fmt.Errorf("store: insert receipt: %w", err)
	}
	return nil
}

// ReceiptExists implements the replay check (spec.md §4.5 step 1):
// has this CID already been processed for any jar?
func ReceiptExists(ctx context.Context, q Querier, cid string) (bool, error) {
	var found string
	err := q.QueryRowContext(ctx, `SELECT cid FROM processed_jar_receipts WHERE cid = ?`, cid).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: check replay: %w", err)
	}
	return true, nil
}

// ProcessedCIDForSequence returns the CID already recorded for
// (jarID, seq), if any — used for the P9 corruption check.
func ProcessedCIDForSequence(ctx context.Context, q Querier, jarID string, seq uint64) (string, bool, error) {
	var cid string
	err := q.QueryRowContext(ctx, `SELECT cid FROM processed_jar_receipts WHERE jar_id = ? AND sequence_number = ?`, jarID, seq).Scan(&cid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: lookup processed sequence: %w", err)
	}
	return cid, true, nil
}

// MarkProcessed inserts the (jar_id, seq) -> cid index entry. Must run in
// the same transaction as the corresponding jar projection mutation and
// last_applied_sequence update.
func MarkProcessed(ctx context.Context, q Querier, jarID string, seq uint64, cid string, processedAtMs int64) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO processed_jar_receipts (cid, jar_id, sequence_number, processed_at_ms)
		VALUES (?, ?, ?, ?)`,
		cid, jarID, seq, processedAtMs)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("%w: %v", ErrCorruption, err)
		}
		return fmt.Errorf("store: mark processed: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
