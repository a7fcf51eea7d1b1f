package store

// Jar is the mutable projection derived from applied receipts (spec.md §3).
type Jar struct {
	JarID               string
	Name                string
	Description         string
	OwnerMemberID       string
	CreatedAtMs         int64
	LastAppliedSequence uint64
	ParentCID           string
}

// Role and Status enums for JarMember, as plain strings so they serialize
// directly into sqlite columns and CBOR payload maps without ceremony.
const (
	RoleOwner  = "owner"
	RoleMember = "member"

	MemberStatusPending = "pending"
	MemberStatusActive  = "active"
	MemberStatusRemoved = "removed"

	DeviceStatusActive  = "active"
	DeviceStatusRevoked = "revoked"
)

// JarMember is (jar_id, member_id) with role/status/display name/timestamps.
type JarMember struct {
	JarID       string
	MemberID    string
	Role        string
	Status      string
	DisplayName string
	JoinedAt    *int64
	InvitedAt   *int64
	RemovedAt   *int64
}

// Device is a TOFU-pinned (member_id, device_id) -> public key pair.
type Device struct {
	MemberID       string
	DeviceID       string
	PubKeySign     []byte
	PubKeyAgree    []byte
	Status         string
	RegisteredAtMs int64
}

// ReceiptRow is the durable, append-only record of one applied receipt.
type ReceiptRow struct {
	CID            string
	AuthorMemberID string
	AuthorDeviceID string
	ParentCID      string
	RootCID        string
	ReceiptType    string
	PayloadCBOR    []byte
	Signature      []byte
	ReceivedAtMs   int64
}

// QueuedReceipt is a verified-but-not-yet-applicable receipt awaiting
// dependency satisfaction (spec.md §3).
type QueuedReceipt struct {
	QueueID        int64
	JarID          string
	SequenceNumber uint64
	CID            string
	ParentCID      string
	PayloadCBOR    []byte
	Signature      []byte
	SenderMemberID string
	QueuedAtMs     int64
	RetryCount     int
	LastRetryAtMs  *int64
	PoisonReason   *string
}

// JarSyncState mirrors spec.md §3's per-jar engine state.
type JarSyncState struct {
	JarID             string
	IsHalted          bool
	HaltReason        string
	HaltedAtMs        *int64
	BackfillAttempt   int
	NextBackfillAtMs  *int64
	BackfillFrom      *uint64
	BackfillTo        *uint64
}

// ContentItem is the local linkage projection for jar.bud_shared /
// jar.bud_deleted (SPEC_FULL.md expansion; blob storage stays out of
// scope, the link metadata does not).
type ContentItem struct {
	BudUUID        string
	AuthorMemberID string
	JarID          string
	LinkedAtMs     int64
}
