package store

import "errors"

var (
	// ErrCorruption signals a mismatched CID for an existing
	// (jar_id, sequence_number) pair — relay forgery or storage
	// corruption, per spec.md §4.3. Must surface as a hard error, never
	// be silently reconciled.
	ErrCorruption = errors.New("store: cid mismatch for existing (jar_id, sequence_number)")

	// ErrTombstoned names a mutation against a tombstoned jar. The
	// mutation helpers in this package do not check tombstones and never
	// return it; tombstoned jars are filtered by the sync engine's
	// tombstone check before any handler runs.
	ErrTombstoned = errors.New("store: jar is tombstoned")

	// ErrNotFound is returned by single-row lookups that find nothing.
	ErrNotFound = errors.New("store: not found")
)
