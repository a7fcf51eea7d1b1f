package jarsync

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/budsapp/buds-sync-core/internal/registry"
	"github.com/budsapp/buds-sync-core/internal/store"
)

// applyContext carries everything a handler needs beyond the payload
// itself: the envelope it came from, the preimage's author fields (already
// signature-verified by the time dispatch runs), and the time the engine
// observed it.
type applyContext struct {
	env            Envelope
	authorMemberID string
	authorDeviceID string
	nowMs          int64
}

type handlerFunc func(ctx context.Context, tx *sql.Tx, p payload, ac applyContext) error

var dispatchTable = map[string]handlerFunc{
	TypeJarCreated:        applyJarCreated,
	TypeMemberAdded:       applyMemberAdded,
	TypeInviteAccepted:    applyInviteAccepted,
	TypeMemberRemoved:     applyMemberRemoved,
	TypeMemberLeft:        applyMemberLeft,
	TypeMemberRoleChanged: applyMemberRoleChanged,
	TypeRenamed:           applyRenamed,
	TypeBudShared:         applyBudShared,
	TypeBudDeleted:        applyBudDeleted,
	TypeJarDeleted:        applyJarDeleted,
}

// jar.created/v1: the founding receipt. Must be sequence 1 — enforced by
// the caller before dispatch runs, since that check needs the jar's
// current (absent) state rather than the payload. Also seats the owner as
// an (owner, active) member and pins whatever devices the payload carries
// for them (spec.md §4.5.2's jar.created row: "insert owner's device pins
// carried in payload") — scenario 1 carries none, so an empty/absent
// "devices" list is not an error here, unlike jar.member_added below.
func applyJarCreated(ctx context.Context, tx *sql.Tx, p payload, ac applyContext) error {
	name, err := p.str("name")
	if err != nil {
		return err
	}
	if err := store.InsertJar(ctx, tx, store.Jar{
		JarID:         ac.env.JarID,
		Name:          name,
		Description:   p.strOpt("description"),
		OwnerMemberID: ac.authorMemberID,
		CreatedAtMs:   ac.nowMs,
	}); err != nil {
		return err
	}

	now := ac.nowMs
	if err := store.UpsertJarMember(ctx, tx, store.JarMember{
		JarID:       ac.env.JarID,
		MemberID:    ac.authorMemberID,
		Role:        store.RoleOwner,
		Status:      store.MemberStatusActive,
		DisplayName: p.strOpt("owner_display_name"),
		JoinedAt:    &now,
	}); err != nil {
		return err
	}

	devices, err := p.devices("devices")
	if err != nil {
		return err
	}
	for _, d := range devices {
		if err := registry.Pin(ctx, tx, ac.authorMemberID, d.DeviceID, d.SignPub, d.AgreePub, ac.nowMs); err != nil {
			return err
		}
	}
	return nil
}

// jar.member_added/v1: an invite. The invited member starts pending until
// jar.invite_accepted/v1 flips them active. Every device of the invitee
// carried in the payload is TOFU-pinned atomically with the member row
// (spec.md §4.4 "Key pinning trigger"); at least one device is required
// (spec.md §4.5.2 constraint), unlike jar.created's optional pin list.
func applyMemberAdded(ctx context.Context, tx *sql.Tx, p payload, ac applyContext) error {
	memberID, err := p.str("member_id")
	if err != nil {
		return err
	}
	devices, err := p.devices("devices")
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		return fmt.Errorf("%w: jar.member_added requires at least one device", ErrPreconditionFailed)
	}
	for _, d := range devices {
		if err := registry.Pin(ctx, tx, memberID, d.DeviceID, d.SignPub, d.AgreePub, ac.nowMs); err != nil {
			return err
		}
	}

	role := p.strOpt("role")
	if role == "" {
		role = store.RoleMember
	}
	now := ac.nowMs
	return store.UpsertJarMember(ctx, tx, store.JarMember{
		JarID:       ac.env.JarID,
		MemberID:    memberID,
		Role:        role,
		Status:      store.MemberStatusPending,
		DisplayName: p.strOpt("display_name"),
		InvitedAt:   &now,
	})
}

func applyInviteAccepted(ctx context.Context, tx *sql.Tx, p payload, ac applyContext) error {
	memberID, err := p.str("member_id")
	if err != nil {
		return err
	}
	if _, err := store.GetJarMember(ctx, tx, ac.env.JarID, memberID); err != nil {
		return fmt.Errorf("jarsync: invite_accepted for unknown member: %w", err)
	}
	return store.SetJarMemberStatus(ctx, tx, ac.env.JarID, memberID, store.MemberStatusActive, ac.nowMs)
}

func applyMemberRemoved(ctx context.Context, tx *sql.Tx, p payload, ac applyContext) error {
	memberID, err := p.str("member_id")
	if err != nil {
		return err
	}
	return store.SetJarMemberStatus(ctx, tx, ac.env.JarID, memberID, store.MemberStatusRemoved, ac.nowMs)
}

func applyMemberLeft(ctx context.Context, tx *sql.Tx, p payload, ac applyContext) error {
	// Self-removal: the author is the leaving member, not a payload field.
	return store.SetJarMemberStatus(ctx, tx, ac.env.JarID, ac.authorMemberID, store.MemberStatusRemoved, ac.nowMs)
}

// applyMemberRoleChanged is the SPEC_FULL.md expansion recovering the role
// transition jar.member_added/v1 alone cannot express after the fact. Only
// a member whose role is owner may author it.
func applyMemberRoleChanged(ctx context.Context, tx *sql.Tx, p payload, ac applyContext) error {
	author, err := store.GetJarMember(ctx, tx, ac.env.JarID, ac.authorMemberID)
	if err != nil || author.Role != store.RoleOwner {
		return fmt.Errorf("%w: jar.member_role_changed must be authored by an owner", ErrPreconditionFailed)
	}
	memberID, err := p.str("member_id")
	if err != nil {
		return err
	}
	role, err := p.str("role")
	if err != nil {
		return err
	}
	m, err := store.GetJarMember(ctx, tx, ac.env.JarID, memberID)
	if err != nil {
		return fmt.Errorf("jarsync: role change for unknown member: %w", err)
	}
	m.Role = role
	return store.UpsertJarMember(ctx, tx, m)
}

func applyRenamed(ctx context.Context, tx *sql.Tx, p payload, ac applyContext) error {
	name, err := p.str("name")
	if err != nil {
		return err
	}
	return store.RenameJar(ctx, tx, ac.env.JarID, name)
}

func applyBudShared(ctx context.Context, tx *sql.Tx, p payload, ac applyContext) error {
	budUUID, err := p.str("bud_uuid")
	if err != nil {
		return err
	}
	return store.LinkContentItem(ctx, tx, store.ContentItem{
		BudUUID:        budUUID,
		AuthorMemberID: ac.authorMemberID,
		JarID:          ac.env.JarID,
		LinkedAtMs:     ac.nowMs,
	})
}

func applyBudDeleted(ctx context.Context, tx *sql.Tx, p payload, ac applyContext) error {
	budUUID, err := p.str("bud_uuid")
	if err != nil {
		return err
	}
	item, err := store.GetContentItem(ctx, tx, budUUID)
	if err != nil {
		return fmt.Errorf("jarsync: bud_deleted for unknown bud: %w", err)
	}
	// Only the author may revoke their own share from this jar (spec.md
	// §4.5.2 precondition) — anyone else's bud_deleted for this bud_uuid
	// fails with ErrPreconditionFailed and is not applied.
	if item.AuthorMemberID != ac.authorMemberID {
		return fmt.Errorf("%w: bud_deleted author mismatch", ErrPreconditionFailed)
	}
	return store.UnlinkContentItem(ctx, tx, budUUID)
}

func applyJarDeleted(ctx context.Context, tx *sql.Tx, p payload, ac applyContext) error {
	if err := store.UnlinkContentItemsForJar(ctx, tx, ac.env.JarID); err != nil {
		return err
	}
	return store.InsertTombstone(ctx, tx, ac.env.JarID, ac.authorMemberID, ac.nowMs, p.strOpt("reason"))
}

// checkPrecondition runs the dispatch-table-specific check that needs the
// current projection state rather than just the payload (spec.md §4.5.2
// "Preconditions" column), before the handler itself runs.
func checkPrecondition(ctx context.Context, tx *sql.Tx, receiptType string, env Envelope) error {
	switch receiptType {
	case TypeJarCreated:
		if env.Sequence != 1 {
			return fmt.Errorf("%w: jar.created must be sequence 1, got %d", ErrPreconditionFailed, env.Sequence)
		}
	default:
		if _, err := store.GetJar(ctx, tx, env.JarID); err != nil {
			return fmt.Errorf("%w: jar does not exist", ErrPreconditionFailed)
		}
	}
	return nil
}

// checkAuthorPinned verifies the author device's signing key is pinned in
// the TOFU registry, returning it for signature verification.
func checkAuthorPinned(ctx context.Context, tx *sql.Tx, memberID, deviceID string) ([]byte, error) {
	key, err := registry.GetSignKey(ctx, tx, memberID, deviceID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, ErrUnpinnedDevice
		}
		return nil, err
	}
	return key, nil
}
