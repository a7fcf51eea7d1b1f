package codec

import (
	"encoding/hex"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func samplePreimage() Preimage {
	return Preimage{
		AuthorMemberID: "M1",
		AuthorDeviceID: "D1",
		RootCID:        "cid1aaaa",
		ReceiptType:    "jar.created/v1",
		Payload: map[string]interface{}{
			"jar_id":         "J1",
			"name":           "Friends",
			"created_at_ms":  uint64(1700000000000),
			"owner_devices":  []interface{}{"D1"},
		},
	}
}

// P1: round-trip identity.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := samplePreimage()
	b1, err := EncodeCanonical(p)
	require.NoError(t, err)

	decoded, err := DecodeStrict(b1)
	require.NoError(t, err)

	b2, err := EncodeCanonical(decoded)
	require.NoError(t, err)
	require.Equal(t, b1, b2, "encode(decode(encode(p))) must equal encode(p) byte-for-byte")
}

func TestParentCIDOmittedWhenEmpty(t *testing.T) {
	p := samplePreimage()
	p.ParentCID = ""
	b, err := EncodeCanonical(p)
	require.NoError(t, err)

	decoded, err := DecodeStrict(b)
	require.NoError(t, err)
	require.Empty(t, decoded.ParentCID)
}

func TestForbiddenFloat(t *testing.T) {
	p := samplePreimage()
	p.Payload["bad"] = math.NaN()
	_, err := EncodeCanonical(p)
	require.ErrorIs(t, err, ErrForbiddenFloat)

	p.Payload["bad"] = math.Inf(1)
	_, err = EncodeCanonical(p)
	require.ErrorIs(t, err, ErrForbiddenFloat)
}

// P3: CID determinism for logically identical payloads.
func TestComputeCIDDeterministic(t *testing.T) {
	p1 := samplePreimage()
	p2 := samplePreimage()

	b1, cid1, err := EncodeAndCID(p1)
	require.NoError(t, err)
	b2, cid2, err := EncodeAndCID(p2)
	require.NoError(t, err)

	require.Equal(t, b1, b2)
	require.Equal(t, cid1, cid2)
	require.NotEmpty(t, cid1)
}

func TestComputeCIDChangesWithContent(t *testing.T) {
	p1 := samplePreimage()
	p2 := samplePreimage()
	p2.Payload["name"] = "Other"

	_, cid1, err := EncodeAndCID(p1)
	require.NoError(t, err)
	_, cid2, err := EncodeAndCID(p2)
	require.NoError(t, err)

	require.NotEqual(t, cid1, cid2)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := DecodeStrict([]byte{0xff, 0xff, 0xff})
	require.ErrorIs(t, err, ErrMalformed)
}

// P2 (half): altering any bit of the canonical bytes changes the CID,
// which is what signature verification is bound to.
func TestBitFlipChangesCID(t *testing.T) {
	p := samplePreimage()
	b, cid, err := EncodeAndCID(p)
	require.NoError(t, err)

	flipped := append([]byte(nil), b...)
	flipped[len(flipped)/2] ^= 0x01
	require.NotEqual(t, cid, ComputeCID(flipped))
}

// minimalReceiptCanonicalHex pins the exact byte layout of the smallest
// possible receipt: an empty payload, and parent_cid omitted entirely
// rather than encoded as null. Map keys come out sorted shortest-first
// (ties broken bytewise) because that's the sort order
// cbor.CanonicalEncOptions uses: payload(7), root_cid(8), receipt_type(12),
// author_device_id(16), author_member_id(16). A change to this constant
// means every signature ever produced over a receipt preimage is now
// invalid — that's the failure this test exists to catch.
const minimalReceiptCanonicalHex = "a5" +
	"677061796c6f6164" + "a0" + // "payload": {}
	"68726f6f745f636964" + "624a31" + // "root_cid": "J1"
	"6c726563656970745f74797065" + "6e6a61722e637265617465642f7631" + // "receipt_type": "jar.created/v1"
	"70617574686f725f6465766963655f6964" + "624431" + // "author_device_id": "D1"
	"70617574686f725f6d656d6265725f6964" + "624d31" // "author_member_id": "M1"

func TestMinimalReceiptCanonicalEncoding(t *testing.T) {
	p := Preimage{
		AuthorMemberID: "M1",
		AuthorDeviceID: "D1",
		RootCID:        "J1",
		ReceiptType:    "jar.created/v1",
		Payload:        map[string]interface{}{},
	}
	b, err := EncodeCanonical(p)
	require.NoError(t, err)

	want, err := hex.DecodeString(minimalReceiptCanonicalHex)
	require.NoError(t, err)
	require.Equal(t, want, b)
}

// fullReceiptCanonicalHex pins a receipt exercising every CBOR type this
// codec's Preimage can carry: a non-empty parent_cid, and a payload with a
// bool, an unsigned int, a text string, an IEEE-754 binary64 float (1.5,
// whose bit pattern 0x3FF8000000000000 is exact and independent of any
// shortest-float collapsing, since EncodeCanonical forbids that), a byte
// string, an array, and a nested map. Single-letter payload keys (a..g)
// keep the canonical sort order (length-tied, so plain ASCII order) easy
// to verify by inspection.
const fullReceiptCanonicalHex = "a6" +
	"677061796c6f6164" + // "payload":
	"a7" +
	"6161" + "f5" + // a: true
	"6162" + "03" + // b: 3
	"6163" + "626869" + // c: "hi"
	"6164" + "fb3ff8000000000000" + // d: 1.5
	"6165" + "420102" + // e: h'0102'
	"6166" + "816178" + // f: ["x"]
	"6167" + "a1616b6176" + // g: {"k": "v"}
	"68726f6f745f636964" + "624a31" + // "root_cid": "J1"
	"6a706172656e745f636964" + "625031" + // "parent_cid": "P1"
	"6c726563656970745f74797065" + "6e6a61722e637265617465642f7631" + // "receipt_type": "jar.created/v1"
	"70617574686f725f6465766963655f6964" + "624431" + // "author_device_id": "D1"
	"70617574686f725f6d656d6265725f6964" + "624d31" // "author_member_id": "M1"

func TestFullReceiptCanonicalEncoding(t *testing.T) {
	p := Preimage{
		AuthorMemberID: "M1",
		AuthorDeviceID: "D1",
		ParentCID:      "P1",
		RootCID:        "J1",
		ReceiptType:    "jar.created/v1",
		Payload: map[string]interface{}{
			"a": true,
			"b": uint64(3),
			"c": "hi",
			"d": 1.5,
			"e": []byte{0x01, 0x02},
			"f": []interface{}{"x"},
			"g": map[string]interface{}{"k": "v"},
		},
	}
	b, err := EncodeCanonical(p)
	require.NoError(t, err)

	want, err := hex.DecodeString(fullReceiptCanonicalHex)
	require.NoError(t, err)
	require.Equal(t, want, b)

	decoded, err := DecodeStrict(b)
	require.NoError(t, err)
	require.Equal(t, "P1", decoded.ParentCID)
}
