package store

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestJarCreateAndAdvanceSequence(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, InsertJar(ctx, s.DB(), Jar{JarID: "J1", Name: "Friends", OwnerMemberID: "M1", CreatedAtMs: 1}))
	j, err := GetJar(ctx, s.DB(), "J1")
	require.NoError(t, err)
	require.Equal(t, "Friends", j.Name)
	require.EqualValues(t, 0, j.LastAppliedSequence)

	require.NoError(t, AdvanceJarSequence(ctx, s.DB(), "J1", 1, "cid1AAAA"))
	j, err = GetJar(ctx, s.DB(), "J1")
	require.NoError(t, err)
	require.EqualValues(t, 1, j.LastAppliedSequence)
	require.Equal(t, "cid1AAAA", j.ParentCID)
}

// P9: a mismatched CID for an existing (jar_id, sequence_number) is a
// corruption signal.
func TestMarkProcessedDetectsCorruption(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, MarkProcessed(ctx, s.DB(), "J1", 2, "cid1AAAA", 100))
	err := MarkProcessed(ctx, s.DB(), "J1", 2, "cid1BBBB", 200)
	require.ErrorIs(t, err, ErrCorruption)
}

func TestQueueEnqueueAndDrain(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, EnqueueReceipt(ctx, s.DB(), QueuedReceipt{
		JarID: "J1", SequenceNumber: 3, CID: "cid1CCC", PayloadCBOR: []byte("x"), Signature: []byte("y"),
		SenderMemberID: "M2", QueuedAtMs: 1000,
	}))

	r, ok, err := NextQueuedForSequence(ctx, s.DB(), "J1", 3)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "cid1CCC", r.CID)

	require.NoError(t, DeleteQueued(ctx, s.DB(), r.QueueID))
	_, ok, err = NextQueuedForSequence(ctx, s.DB(), "J1", 3)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInsertTombstoneMarksJarTombstoned(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, InsertTombstone(ctx, s.DB(), "J1", "M1", 1000, "left"))
	tomb, err := IsTombstoned(ctx, s.DB(), "J1")
	require.NoError(t, err)
	require.True(t, tomb)
}

func TestSyncStateHaltAndUnhalt(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	st, err := GetOrInitSyncState(ctx, s.DB(), "J1")
	require.NoError(t, err)
	require.False(t, st.IsHalted)

	require.NoError(t, SetHalted(ctx, s.DB(), "J1", "poisoned", 5000))
	st, err = GetOrInitSyncState(ctx, s.DB(), "J1")
	require.NoError(t, err)
	require.True(t, st.IsHalted)
	require.Equal(t, "poisoned", st.HaltReason)

	require.NoError(t, Unhalt(ctx, s.DB(), "J1"))
	st, err = GetOrInitSyncState(ctx, s.DB(), "J1")
	require.NoError(t, err)
	require.False(t, st.IsHalted)
}
