// Package codec implements the canonical CBOR encoding and content
// identifier (CID) derivation that every signature and every stored
// receipt in the sync core is bound to. The rules are frozen: changing
// any of them invalidates existing signatures (see Preimage doc below).
package codec

// Preimage is the unsigned, signable portion of a receipt. Its canonical
// CBOR encoding is exactly what gets Ed25519-signed and exactly what the
// CID is computed over — never a decoded-and-re-encoded copy.
type Preimage struct {
	AuthorMemberID string                 `cbor:"author_member_id"`
	AuthorDeviceID string                 `cbor:"author_device_id"`
	ParentCID      string                 `cbor:"parent_cid,omitempty"`
	RootCID        string                 `cbor:"root_cid"`
	ReceiptType    string                 `cbor:"receipt_type"`
	Payload        map[string]interface{} `cbor:"payload"`
}

// CID is a content identifier: a tagged digest over the canonical CBOR
// bytes of a Preimage, represented as a string for wire transport.
type CID string

func (c CID) String() string { return string(c) }

// Empty reports whether c is the zero CID (used for nullable parent_cid
// fields, which are omitted from the CBOR map rather than encoded as
// explicit null per the canonical-encoding rules).
func (c CID) Empty() bool { return c == "" }
