package codec

import (
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

// multihashTag is a single fixed prefix byte identifying the digest
// function used to compute a CID. The spec calls for a "multihash-style"
// tag, not a full multicodec registry — one byte is all this core needs,
// since SHA-256 is the only digest function it ever uses.
const multihashTagSHA256 byte = 0x12

// cidPrefix makes CID strings visually distinct from other opaque ids in
// logs, matching the "did:plc:"-style prefixing other implementations use
// for content-addressed identifiers.
const cidPrefix = "cid1"

var canonicalEncMode = mustCanonicalEncMode()

func mustCanonicalEncMode() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	// Explicit per the frozen rules: no indefinite-length items, and floats
	// are never shortened — every float encodes as IEEE-754 binary64.
	// NaN/Inf are rejected before encoding (see rejectForbiddenFloats).
	opts.ShortestFloat = cbor.ShortestFloatNone
	mode, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: building canonical encode mode: %v", err))
	}
	return mode
}

var strictDecMode = mustStrictDecMode()

func mustStrictDecMode() cbor.DecMode {
	opts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}
	mode, err := opts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: building strict decode mode: %v", err))
	}
	return mode
}

// EncodeCanonical produces the frozen, deterministic CBOR encoding of a
// Preimage: map keys sorted by their encoded-byte order, shortest-form
// integers, IEEE-754 binary64 floats with NaN/Inf forbidden, and omitted
// (never explicit-null) optional fields.
func EncodeCanonical(p Preimage) ([]byte, error) {
	if err := rejectForbiddenFloats(p.Payload); err != nil {
		return nil, err
	}
	b, err := canonicalEncMode.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("codec: encode preimage: %w", err)
	}
	return b, nil
}

// DecodeStrict decodes canonical CBOR bytes back into a Preimage. It is
// strict about duplicate keys and indefinite-length items so that garbage
// or tampered input fails loudly rather than silently picking a value.
func DecodeStrict(data []byte) (Preimage, error) {
	var p Preimage
	if err := strictDecMode.Unmarshal(data, &p); err != nil {
		return Preimage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return p, nil
}

// ComputeCID computes the content identifier over already-canonical CBOR
// bytes: SHA-256 digest, prefixed with the multihash tag byte, base32
// (lowercase, unpadded) encoded for string transport.
func ComputeCID(canonicalBytes []byte) CID {
	sum := sha256.Sum256(canonicalBytes)
	tagged := make([]byte, 0, 1+len(sum))
	tagged = append(tagged, multihashTagSHA256)
	tagged = append(tagged, sum[:]...)
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	return CID(cidPrefix + toLowerASCII(enc.EncodeToString(tagged)))
}

// EncodeAndCID is the common call site: encode a preimage canonically and
// derive its CID in one step, guaranteeing the CID is always computed
// over the exact bytes that would be signed.
func EncodeAndCID(p Preimage) ([]byte, CID, error) {
	b, err := EncodeCanonical(p)
	if err != nil {
		return nil, "", err
	}
	return b, ComputeCID(b), nil
}

func rejectForbiddenFloats(v interface{}) error {
	switch t := v.(type) {
	case float32:
		if math.IsNaN(float64(t)) || math.IsInf(float64(t), 0) {
			return ErrForbiddenFloat
		}
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return ErrForbiddenFloat
		}
	case map[string]interface{}:
		for _, vv := range t {
			if err := rejectForbiddenFloats(vv); err != nil {
				return err
			}
		}
	case map[interface{}]interface{}:
		for _, vv := range t {
			if err := rejectForbiddenFloats(vv); err != nil {
				return err
			}
		}
	case []interface{}:
		for _, vv := range t {
			if err := rejectForbiddenFloats(vv); err != nil {
				return err
			}
		}
	}
	return nil
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
