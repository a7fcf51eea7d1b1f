package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetJar returns the jar projection, or ErrNotFound.
func GetJar(ctx context.Context, q Querier, jarID string) (Jar, error) {
	var j Jar
	var parentCID sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT jar_id, name, description, owner_member_id, created_at_ms, last_applied_sequence, parent_cid
		FROM jars WHERE jar_id = ?`, jarID).
		Scan(&j.JarID, &j.Name, &j.Description, &j.OwnerMemberID, &j.CreatedAtMs, &j.LastAppliedSequence, &parentCID)
	if errors.Is(err, sql.ErrNoRows) {
		return Jar{}, ErrNotFound
	}
	if err != nil {
		return Jar{}, fmt.Errorf("store: get jar: %w", err)
	}
	j.ParentCID = parentCID.String
	return j, nil
}

// InsertJar creates the jar row for jar.created/v1. A pre-existing jar_id
// is a no-op per spec.md §4.5.2's dispatch table.
func InsertJar(ctx context.Context, q Querier, j Jar) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO jars (jar_id, name, description, owner_member_id, created_at_ms, last_applied_sequence, parent_cid)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(jar_id) DO NOTHING`,
		j.JarID, j.Name, j.Description, j.OwnerMemberID, j.CreatedAtMs, j.LastAppliedSequence, nullIfEmpty(j.ParentCID))
	if err != nil {
		return fmt.Errorf("store: insert jar: %w", err)
	}
	return nil
}

// AdvanceJarSequence updates last_applied_sequence and parent_cid. Must run
// in the same transaction as the corresponding processed_jar_receipts
// insert.
func AdvanceJarSequence(ctx context.Context, q Querier, jarID string, seq uint64, newParentCID string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE jars SET last_applied_sequence = ?, parent_cid = ? WHERE jar_id = ?`,
		seq, newParentCID, jarID)
	if err != nil {
		return fmt.Errorf("store: advance jar sequence: %w", err)
	}
	return nil
}

func RenameJar(ctx context.Context, q Querier, jarID, name string) error {
	_, err := q.ExecContext(ctx, `UPDATE jars SET name = ? WHERE jar_id = ?`, name, jarID)
	if err != nil {
		return fmt.Errorf("store: rename jar: %w", err)
	}
	return nil
}

func DeleteJar(ctx context.Context, q Querier, jarID string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM jar_members WHERE jar_id = ?`, jarID); err != nil {
		return fmt.Errorf("store: delete jar members: %w", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM jars WHERE jar_id = ?`, jarID); err != nil {
		return fmt.Errorf("store: delete jar: %w", err)
	}
	return nil
}

// --- jar_members ---

func UpsertJarMember(ctx context.Context, q Querier, m JarMember) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO jar_members (jar_id, member_id, role, status, display_name, joined_at, invited_at, removed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(jar_id, member_id) DO UPDATE SET
			role = excluded.role,
			status = excluded.status,
			display_name = excluded.display_name,
			joined_at = excluded.joined_at,
			invited_at = excluded.invited_at,
			removed_at = excluded.removed_at`,
		m.JarID, m.MemberID, m.Role, m.Status, m.DisplayName, m.JoinedAt, m.InvitedAt, m.RemovedAt)
	if err != nil {
		return fmt.Errorf("store: upsert jar member: %w", err)
	}
	return nil
}

func GetJarMember(ctx context.Context, q Querier, jarID, memberID string) (JarMember, error) {
	var m JarMember
	m.JarID, m.MemberID = jarID, memberID
	err := q.QueryRowContext(ctx, `
		SELECT role, status, display_name, joined_at, invited_at, removed_at
		FROM jar_members WHERE jar_id = ? AND member_id = ?`, jarID, memberID).
		Scan(&m.Role, &m.Status, &m.DisplayName, &m.JoinedAt, &m.InvitedAt, &m.RemovedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return JarMember{}, ErrNotFound
	}
	if err != nil {
		return JarMember{}, fmt.Errorf("store: get jar member: %w", err)
	}
	return m, nil
}

func SetJarMemberStatus(ctx context.Context, q Querier, jarID, memberID, status string, at int64) error {
	col := "removed_at"
	if status == MemberStatusActive {
		col = "joined_at"
	}
	_, err := q.ExecContext(ctx, fmt.Sprintf(`
		UPDATE jar_members SET status = ?, %s = ? WHERE jar_id = ? AND member_id = ?`, col),
		status, at, jarID, memberID)
	if err != nil {
		return fmt.Errorf("store: set jar member status: %w", err)
	}
	return nil
}

// --- jar_tombstones ---

func IsTombstoned(ctx context.Context, q Querier, jarID string) (bool, error) {
	var id string
	err := q.QueryRowContext(ctx, `SELECT jar_id FROM jar_tombstones WHERE jar_id = ?`, jarID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: check tombstone: %w", err)
	}
	return true, nil
}

func InsertTombstone(ctx context.Context, q Querier, jarID, deletedBy string, deletedAtMs int64, reason string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO jar_tombstones (jar_id, deleted_by, deleted_at_ms, reason)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(jar_id) DO NOTHING`,
		jarID, deletedBy, deletedAtMs, nullIfEmpty(reason))
	if err != nil {
		return fmt.Errorf("store: insert tombstone: %w", err)
	}
	return nil
}

// --- content_items ---

func LinkContentItem(ctx context.Context, q Querier, item ContentItem) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO content_items (bud_uuid, author_member_id, jar_id, linked_at_ms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(bud_uuid) DO UPDATE SET jar_id = excluded.jar_id, linked_at_ms = excluded.linked_at_ms`,
		item.BudUUID, item.AuthorMemberID, item.JarID, item.LinkedAtMs)
	if err != nil {
		return fmt.Errorf("store: link content item: %w", err)
	}
	return nil
}

func UnlinkContentItem(ctx context.Context, q Querier, budUUID string) error {
	_, err := q.ExecContext(ctx, `UPDATE content_items SET jar_id = NULL WHERE bud_uuid = ?`, budUUID)
	if err != nil {
		return fmt.Errorf("store: unlink content item: %w", err)
	}
	return nil
}

func UnlinkContentItemsForJar(ctx context.Context, q Querier, jarID string) error {
	_, err := q.ExecContext(ctx, `UPDATE content_items SET jar_id = NULL WHERE jar_id = ?`, jarID)
	if err != nil {
		return fmt.Errorf("store: unlink jar content items: %w", err)
	}
	return nil
}

func GetContentItem(ctx context.Context, q Querier, budUUID string) (ContentItem, error) {
	var c ContentItem
	var jarID sql.NullString
	err := q.QueryRowContext(ctx, `SELECT bud_uuid, author_member_id, jar_id, linked_at_ms FROM content_items WHERE bud_uuid = ?`, budUUID).
		Scan(&c.BudUUID, &c.AuthorMemberID, &jarID, &c.LinkedAtMs)
	if errors.Is(err, sql.ErrNoRows) {
		return ContentItem{}, ErrNotFound
	}
	if err != nil {
		return ContentItem{}, fmt.Errorf("store: get content item: %w", err)
	}
	c.JarID = jarID.String
	return c, nil
}
