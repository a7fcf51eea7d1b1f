package jarsync_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/budsapp/buds-sync-core/internal/codec"
	"github.com/budsapp/buds-sync-core/internal/identity"
	"github.com/budsapp/buds-sync-core/internal/jarsync"
	"github.com/budsapp/buds-sync-core/internal/registry"
	"github.com/budsapp/buds-sync-core/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// device bundles identity keys with the registry identifiers tests build
// envelopes against.
type device struct {
	memberID string
	deviceID string
	keys     *identity.DeviceKeys
}

func newPinnedDevice(t *testing.T, s *store.Store, memberID, deviceID string) device {
	t.Helper()
	keys, err := identity.GenerateDeviceKeys()
	require.NoError(t, err)
	agree := keys.AgreePublicKey()
	require.NoError(t, registry.Pin(context.Background(), s.DB(), memberID, deviceID, keys.SignPublicKey(), agree[:], 1))
	return device{memberID: memberID, deviceID: deviceID, keys: keys}
}

func buildEnvelope(t *testing.T, jarID string, seq uint64, parentCID, receiptType string, author device, p map[string]interface{}) jarsync.Envelope {
	t.Helper()
	pre := codec.Preimage{
		AuthorMemberID: author.memberID,
		AuthorDeviceID: author.deviceID,
		ParentCID:      parentCID,
		RootCID:        jarID,
		ReceiptType:    receiptType,
		Payload:        p,
	}
	bytes, cid, err := codec.EncodeAndCID(pre)
	require.NoError(t, err)
	sig := author.keys.Sign(bytes)
	return jarsync.Envelope{
		JarID:          jarID,
		Sequence:       seq,
		CID:            string(cid),
		PayloadCBOR:    bytes,
		Signature:      sig,
		SenderMemberID: author.memberID,
		ReceivedAtMs:   1000,
		ParentCID:      parentCID,
	}
}

// fakeRelay serves FetchRange from a canned slice of envelopes, modeling
// internal/relay without any HTTP plumbing.
type fakeRelay struct {
	byJar map[string][]jarsync.Envelope
	err   error
}

func newFakeRelay() *fakeRelay { return &fakeRelay{byJar: make(map[string][]jarsync.Envelope)} }

func (f *fakeRelay) add(env jarsync.Envelope) {
	f.byJar[env.JarID] = append(f.byJar[env.JarID], env)
}

func (f *fakeRelay) FetchRange(_ context.Context, jarID string, fromSeq, toSeq uint64, limit int) ([]jarsync.Envelope, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []jarsync.Envelope
	for _, env := range f.byJar[jarID] {
		if env.Sequence >= fromSeq && env.Sequence <= toSeq {
			out = append(out, env)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}
