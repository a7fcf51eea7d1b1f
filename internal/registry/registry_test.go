package registry_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

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

func TestPinFirstObservation(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, registry.Pin(ctx, s.DB(), "M1", "D1", []byte("sign-key"), []byte("agree-key"), 1000))

	sk, err := registry.GetSignKey(ctx, s.DB(), "M1", "D1")
	require.NoError(t, err)
	require.Equal(t, []byte("sign-key"), sk)
}

func TestPinSameKeysIsNoOp(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, registry.Pin(ctx, s.DB(), "M1", "D1", []byte("sign-key"), []byte("agree-key"), 1000))
	require.NoError(t, registry.Pin(ctx, s.DB(), "M1", "D1", []byte("sign-key"), []byte("agree-key"), 2000))
}

// P8: TOFU write-once.
func TestPinDifferentKeysFailsWithoutMutation(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, registry.Pin(ctx, s.DB(), "M1", "D1", []byte("sign-key"), []byte("agree-key"), 1000))

	err := registry.Pin(ctx, s.DB(), "M1", "D1", []byte("other-sign-key"), []byte("agree-key"), 2000)
	require.ErrorIs(t, err, registry.ErrKeyMismatch)

	sk, err := registry.GetSignKey(ctx, s.DB(), "M1", "D1")
	require.NoError(t, err)
	require.Equal(t, []byte("sign-key"), sk, "registry must not mutate on key mismatch")
}

func TestRevokeKeepsKeyVerifiable(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, registry.Pin(ctx, s.DB(), "M1", "D1", []byte("sign-key"), []byte("agree-key"), 1000))
	require.NoError(t, registry.Revoke(ctx, s.DB(), "M1", "D1"))

	sk, err := registry.GetSignKey(ctx, s.DB(), "M1", "D1")
	require.NoError(t, err)
	require.Equal(t, []byte("sign-key"), sk)
}
