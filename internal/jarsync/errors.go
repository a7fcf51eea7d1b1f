package jarsync

import "errors"

// Sentinel errors for the Jar Sync Engine, per the error taxonomy.
var (
	ErrHalted           = errors.New("jarsync: jar is halted")
	ErrTombstonedJar     = errors.New("jarsync: jar is tombstoned")
	ErrUnpinnedDevice    = errors.New("jarsync: author device is not pinned")
	ErrCIDMismatch       = errors.New("jarsync: computed CID does not match envelope CID")
	ErrSignatureInvalid  = errors.New("jarsync: signature verification failed")
	ErrUnknownReceiptType = errors.New("jarsync: unrecognized receipt type")
	ErrMalformedPayload  = errors.New("jarsync: payload missing or has wrong-typed required field")
	ErrPreconditionFailed = errors.New("jarsync: receipt precondition not satisfied against current projection")
	ErrSequenceCIDMismatch = errors.New("jarsync: sequence already processed with a different CID")
)
