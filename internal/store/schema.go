package store

// schema is applied once per Open. Table shapes follow spec.md §4.3
// exactly, plus content_items (tracked in SPEC_FULL.md as the local
// linkage projection for jar.bud_shared/jar.bud_deleted — blob storage
// itself stays out of scope, but the linkage metadata does not).
const schema = `
PRAGMA journal_mode = WAL;
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS receipts (
	cid              TEXT PRIMARY KEY,
	author_member_id TEXT NOT NULL,
	author_device_id TEXT NOT NULL,
	parent_cid       TEXT,
	root_cid         TEXT NOT NULL,
	receipt_type     TEXT NOT NULL,
	payload_cbor     BLOB NOT NULL,
	signature        BLOB NOT NULL,
	received_at_ms   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS jars (
	jar_id                TEXT PRIMARY KEY,
	name                  TEXT NOT NULL,
	description           TEXT NOT NULL DEFAULT '',
	owner_member_id       TEXT NOT NULL,
	created_at_ms         INTEGER NOT NULL,
	last_applied_sequence INTEGER NOT NULL DEFAULT 0,
	parent_cid            TEXT
);

CREATE TABLE IF NOT EXISTS jar_members (
	jar_id      TEXT NOT NULL,
	member_id   TEXT NOT NULL,
	role        TEXT NOT NULL,
	status      TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	joined_at   INTEGER,
	invited_at  INTEGER,
	removed_at  INTEGER,
	PRIMARY KEY (jar_id, member_id)
);

CREATE TABLE IF NOT EXISTS jar_tombstones (
	jar_id        TEXT PRIMARY KEY,
	deleted_by    TEXT NOT NULL,
	deleted_at_ms INTEGER NOT NULL,
	reason        TEXT
);

CREATE TABLE IF NOT EXISTS processed_jar_receipts (
	cid            TEXT PRIMARY KEY,
	jar_id         TEXT NOT NULL,
	sequence_number INTEGER NOT NULL,
	processed_at_ms INTEGER NOT NULL,
	UNIQUE (jar_id, sequence_number)
);

CREATE TABLE IF NOT EXISTS jar_receipt_queue (
	queue_id        INTEGER PRIMARY KEY AUTOINCREMENT,
	jar_id          TEXT NOT NULL,
	sequence_number INTEGER NOT NULL,
	cid             TEXT NOT NULL,
	parent_cid      TEXT,
	payload_cbor    BLOB NOT NULL,
	signature       BLOB NOT NULL,
	sender_member_id TEXT NOT NULL,
	queued_at_ms    INTEGER NOT NULL,
	retry_count     INTEGER NOT NULL DEFAULT 0,
	last_retry_at_ms INTEGER,
	poison_reason   TEXT,
	UNIQUE (jar_id, sequence_number)
);

CREATE TABLE IF NOT EXISTS jar_sync_state (
	jar_id             TEXT PRIMARY KEY,
	is_halted          INTEGER NOT NULL DEFAULT 0,
	halt_reason        TEXT,
	halted_at_ms       INTEGER,
	backfill_attempt   INTEGER NOT NULL DEFAULT 0,
	next_backfill_at_ms INTEGER,
	backfill_from      INTEGER,
	backfill_to        INTEGER
);

CREATE TABLE IF NOT EXISTS devices (
	member_id      TEXT NOT NULL,
	device_id      TEXT NOT NULL,
	pubkey_sign    BLOB NOT NULL,
	pubkey_agree   BLOB NOT NULL,
	status         TEXT NOT NULL,
	registered_at_ms INTEGER NOT NULL,
	PRIMARY KEY (member_id, device_id)
);

CREATE TABLE IF NOT EXISTS content_items (
	bud_uuid         TEXT PRIMARY KEY,
	author_member_id TEXT NOT NULL,
	jar_id           TEXT,
	linked_at_ms     INTEGER
);
`
