package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetOrInitSyncState returns the jar's sync state, creating a fresh
// Healthy(0) row on first access.
func GetOrInitSyncState(ctx context.Context, q Querier, jarID string) (JarSyncState, error) {
	st, err := getSyncState(ctx, q, jarID)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return JarSyncState{}, err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO jar_sync_state (jar_id, is_halted, backfill_attempt) VALUES (?, 0, 0)
		ON CONFLICT(jar_id) DO NOTHING`, jarID)
	if err != nil {
		return JarSyncState{}, fmt.Errorf("store: init sync state: %w", err)
	}
	return getSyncState(ctx, q, jarID)
}

func getSyncState(ctx context.Context, q Querier, jarID string) (JarSyncState, error) {
	var st JarSyncState
	st.JarID = jarID
	var halted int
	var haltReason sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT is_halted, halt_reason, halted_at_ms, backfill_attempt, next_backfill_at_ms, backfill_from, backfill_to
		FROM jar_sync_state WHERE jar_id = ?`, jarID).
		Scan(&halted, &haltReason, &st.HaltedAtMs, &st.BackfillAttempt, &st.NextBackfillAtMs, &st.BackfillFrom, &st.BackfillTo)
	if errors.Is(err, sql.ErrNoRows) {
		return JarSyncState{}, ErrNotFound
	}
	if err != nil {
		return JarSyncState{}, fmt.Errorf("store: get sync state: %w", err)
	}
	st.IsHalted = halted != 0
	st.HaltReason = haltReason.String
	return st, nil
}

func SetHalted(ctx context.Context, q Querier, jarID, reason string, atMs int64) error {
	_, err := q.ExecContext(ctx, `
		UPDATE jar_sync_state SET is_halted = 1, halt_reason = ?, halted_at_ms = ? WHERE jar_id = ?`,
		reason, atMs, jarID)
	if err != nil {
		return fmt.Errorf("store: set halted: %w", err)
	}
	return nil
}

func Unhalt(ctx context.Context, q Querier, jarID string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE jar_sync_state SET is_halted = 0, halt_reason = NULL, halted_at_ms = NULL WHERE jar_id = ?`, jarID)
	if err != nil {
		return fmt.Errorf("store: unhalt: %w", err)
	}
	return nil
}

func SetBackfillState(ctx context.Context, q Querier, jarID string, attempt int, nextAtMs int64, from, to uint64) error {
	_, err := q.ExecContext(ctx, `
		UPDATE jar_sync_state SET backfill_attempt = ?, next_backfill_at_ms = ?, backfill_from = ?, backfill_to = ? WHERE jar_id = ?`,
		attempt, nextAtMs, from, to, jarID)
	if err != nil {
		return fmt.Errorf("store: set backfill state: %w", err)
	}
	return nil
}

// ListDueBackfills returns jar ids with a scheduled backfill whose
// next_backfill_at_ms has passed, for the housekeeper's retry sweep.
func ListDueBackfills(ctx context.Context, q Querier, nowMs int64) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT jar_id FROM jar_sync_state
		WHERE backfill_from IS NOT NULL AND is_halted = 0 AND (next_backfill_at_ms IS NULL OR next_backfill_at_ms <= ?)`, nowMs)
	if err != nil {
		return nil, fmt.Errorf("store: list due backfills: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var jarID string
		if err := rows.Scan(&jarID); err != nil {
			return nil, fmt.Errorf("store: scan due backfill: %w", err)
		}
		out = append(out, jarID)
	}
	return out, rows.Err()
}

func ClearBackfillState(ctx context.Context, q Querier, jarID string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE jar_sync_state SET backfill_attempt = 0, next_backfill_at_ms = NULL, backfill_from = NULL, backfill_to = NULL WHERE jar_id = ?`, jarID)
	if err != nil {
		return fmt.Errorf("store: clear backfill state: %w", err)
	}
	return nil
}
