// Package registry implements the TOFU (trust-on-first-use) Device
// Registry: write-once pinning of a (member_id, device_id) to its
// signing and agreement public keys (spec.md §4.4).
//
// The registry has no state of its own beyond the store's devices table —
// callers pass the same store.Querier (a *sql.DB for standalone lookups,
// or a *sql.Tx when a pin must be atomic with a jar apply, e.g.
// jar.member_added) that the rest of the sync core uses.
package registry

import (
	"bytes"
	"context"
	"fmt"

	"github.com/budsapp/buds-sync-core/internal/store"
)

// Pin pins (memberID, deviceID) to the given keys on first observation.
// If already pinned with the same keys, it is a no-op. If already pinned
// with different keys, it fails with ErrKeyMismatch and does not mutate
// the registry (P8).
func Pin(ctx context.Context, q store.Querier, memberID, deviceID string, pubKeySign, pubKeyAgree []byte, nowMs int64) error {
	inserted, err := store.InsertDeviceIfAbsent(ctx, q, store.Device{
		MemberID:       memberID,
		DeviceID:       deviceID,
		PubKeySign:     pubKeySign,
		PubKeyAgree:    pubKeyAgree,
		Status:         store.DeviceStatusActive,
		RegisteredAtMs: nowMs,
	})
	if err != nil {
		return fmt.Errorf("registry: pin: %w", err)
	}
	if inserted {
		return nil
	}

	existing, err := store.GetDevice(ctx, q, memberID, deviceID)
	if err != nil {
		return fmt.Errorf("registry: pin: re-read existing: %w", err)
	}
	if !bytes.Equal(existing.PubKeySign, pubKeySign) || !bytes.Equal(existing.PubKeyAgree, pubKeyAgree) {
		return ErrKeyMismatch
	}
	return nil
}

// GetSignKey returns the pinned signing public key, or store.ErrNotFound.
func GetSignKey(ctx context.Context, q store.Querier, memberID, deviceID string) ([]byte, error) {
	d, err := store.GetDevice(ctx, q, memberID, deviceID)
	if err != nil {
		return nil, err
	}
	return d.PubKeySign, nil
}

// GetAgreeKey returns the pinned agreement public key, or store.ErrNotFound.
func GetAgreeKey(ctx context.Context, q store.Querier, memberID, deviceID string) ([]byte, error) {
	d, err := store.GetDevice(ctx, q, memberID, deviceID)
	if err != nil {
		return nil, err
	}
	return d.PubKeyAgree, nil
}

// Revoke marks a device revoked. Receipts already pinned remain
// verifiable — revocation only affects future trust decisions made
// elsewhere (e.g. the relay/auth provider), not historical signatures.
func Revoke(ctx context.Context, q store.Querier, memberID, deviceID string) error {
	return store.RevokeDevice(ctx, q, memberID, deviceID)
}
