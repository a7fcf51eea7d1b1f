package relay

import (
	"encoding/base64"

	"github.com/budsapp/buds-sync-core/internal/jarsync"
)

// wireEnvelope is the relay's JSON wire shape (spec.md §6.3): binary
// fields are base64 rather than raw bytes since the relay surface is
// plain JSON over HTTPS, not CBOR.
type wireEnvelope struct {
	JarID          string `json:"jar_id"`
	Sequence       uint64 `json:"sequence"`
	CID            string `json:"cid"`
	PayloadCBOR    string `json:"payload_cbor"`
	Signature      string `json:"signature"`
	SenderMemberID string `json:"sender_member_id"`
	ReceivedAtMs   int64  `json:"received_at_ms"`
	ParentCID      string `json:"parent_cid,omitempty"`
}

func toWire(env jarsync.Envelope) wireEnvelope {
	return wireEnvelope{
		JarID:          env.JarID,
		Sequence:       env.Sequence,
		CID:            env.CID,
		PayloadCBOR:    base64.StdEncoding.EncodeToString(env.PayloadCBOR),
		Signature:      base64.StdEncoding.EncodeToString(env.Signature),
		SenderMemberID: env.SenderMemberID,
		ReceivedAtMs:   env.ReceivedAtMs,
		ParentCID:      env.ParentCID,
	}
}

func fromWire(w wireEnvelope) (jarsync.Envelope, error) {
	payload, err := base64.StdEncoding.DecodeString(w.PayloadCBOR)
	if err != nil {
		return jarsync.Envelope{}, &MalformedResponseError{Err: err}
	}
	sig, err := base64.StdEncoding.DecodeString(w.Signature)
	if err != nil {
		return jarsync.Envelope{}, &MalformedResponseError{Err: err}
	}
	return jarsync.Envelope{
		JarID:          w.JarID,
		Sequence:       w.Sequence,
		CID:            w.CID,
		PayloadCBOR:    payload,
		Signature:      sig,
		SenderMemberID: w.SenderMemberID,
		ReceivedAtMs:   w.ReceivedAtMs,
		ParentCID:      w.ParentCID,
	}, nil
}
