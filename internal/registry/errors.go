package registry

import "errors"

// ErrKeyMismatch is a security-critical signal: a (member_id, device_id)
// is already pinned with different keys than the caller presented. It
// MUST propagate to the user rather than be silently reconciled.
var ErrKeyMismatch = errors.New("registry: device already pinned with different keys")
