// Package jarsync implements the Jar Sync Engine (spec.md §4.5): the
// per-jar state machine that ingests relay envelopes in strict sequence
// order, queues and backfills gaps, dispatches applied receipts to
// type-specific handlers, and halts on poison rather than silently
// skipping.
package jarsync

// Envelope is a relay-assigned wrapper around a signed receipt (spec.md
// §3), already decoded from the wire JSON shape in internal/relay.
type Envelope struct {
	JarID          string
	Sequence       uint64
	CID            string
	PayloadCBOR    []byte
	Signature      []byte
	SenderMemberID string
	ReceivedAtMs   int64
	ParentCID      string
}

// State is the per-jar sync state (spec.md §4.5.1), surfaced read-only
// for the operator-facing status endpoint.
type State string

const (
	StateHealthy     State = "healthy"
	StateBackfilling State = "backfilling"
	StateHalted      State = "halted"
	StateTombstoned  State = "tombstoned"
)

// Status is the external, read-only view of a jar's sync state.
type Status struct {
	JarID               string
	State               State
	LastAppliedSequence uint64
	HaltReason          string
	BackfillFrom        uint64
	BackfillTo          uint64
	BackfillAttempt     int
}

// Receipt type tags dispatched in §4.5.2.
const (
	TypeJarCreated         = "jar.created/v1"
	TypeMemberAdded        = "jar.member_added/v1"
	TypeInviteAccepted     = "jar.invite_accepted/v1"
	TypeMemberRemoved      = "jar.member_removed/v1"
	TypeMemberLeft         = "jar.member_left/v1"
	TypeMemberRoleChanged  = "jar.member_role_changed/v1" // SPEC_FULL.md expansion
	TypeRenamed            = "jar.renamed/v1"
	TypeBudShared          = "jar.bud_shared/v1"
	TypeBudDeleted         = "jar.bud_deleted/v1"
	TypeJarDeleted         = "jar.deleted/v1"
)

// Tuning holds the operational knobs spec.md §4.5/§5 calls out as
// configurable, with the spec's own recommended defaults.
type Tuning struct {
	MaxRetries          int     // default 5
	MaxQueueAgeMs       int64   // default 7 days
	BackfillLockTTLMs   int64   // default 15s
	QueueDrainLockTTLMs int64   // default 15s
	BackfillBackoffMs   []int64 // {5s,15s,60s,5m,15m}, capped at last
	FetchLimit          int     // default 500
}

// DefaultTuning matches spec.md's recommended defaults exactly.
func DefaultTuning() Tuning {
	return Tuning{
		MaxRetries:          5,
		MaxQueueAgeMs:       7 * 24 * 3600 * 1000,
		BackfillLockTTLMs:   15_000,
		QueueDrainLockTTLMs: 15_000,
		BackfillBackoffMs:   []int64{5_000, 15_000, 60_000, 300_000, 900_000},
		FetchLimit:          500,
	}
}

func (t Tuning) backoffFor(attempt int) int64 {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(t.BackfillBackoffMs) {
		return t.BackfillBackoffMs[len(t.BackfillBackoffMs)-1]
	}
	return t.BackfillBackoffMs[attempt]
}
