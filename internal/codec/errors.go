package codec

import "errors"

// Sentinel errors for the Canonical Encoder, per the error taxonomy.
var (
	ErrForbiddenFloat   = errors.New("codec: NaN or infinite float is forbidden in canonical encoding")
	ErrIntegerOverflow  = errors.New("codec: integer exceeds canonical CBOR representable range")
	ErrMalformed        = errors.New("codec: malformed CBOR on decode")
	ErrNotRoundTripSafe = errors.New("codec: decoded value does not re-encode byte-identically")
)
