package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// DeviceKeys holds the two long-lived keypairs a device owns: an Ed25519
// signing keypair, bound into every receipt this device authors, and an
// X25519 agreement keypair, used only for per-recipient content-key
// wrapping. Modeled on the teacher's wallet.Keystore lifecycle (generate,
// hold in memory, wipe on Close) but for these two key types instead of
// a single secp256k1 key.
type DeviceKeys struct {
	signPriv ed25519.PrivateKey
	signPub  ed25519.PublicKey

	agreePriv [32]byte
	agreePub  [32]byte
}

// GenerateDeviceKeys creates a fresh signing and agreement keypair. Called
// once per physical installation, at first run.
func GenerateDeviceKeys() (*DeviceKeys, error) {
	signPub, signPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate signing key: %w", err)
	}

	var agreePriv [32]byte
	if _, err := rand.Read(agreePriv[:]); err != nil {
		return nil, fmt.Errorf("identity: generate agreement key: %w", err)
	}
	// Clamp per RFC 7748 so the scalar is a valid X25519 private key.
	agreePriv[0] &= 248
	agreePriv[31] &= 127
	agreePriv[31] |= 64

	var agreePub [32]byte
	pub, err := curve25519.X25519(agreePriv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("identity: derive agreement public key: %w", err)
	}
	copy(agreePub[:], pub)

	return &DeviceKeys{
		signPriv:  signPriv,
		signPub:   signPub,
		agreePriv: agreePriv,
		agreePub:  agreePub,
	}, nil
}

// SignPublicKey returns the device's Ed25519 public key, the value pinned
// by the TOFU registry.
func (k *DeviceKeys) SignPublicKey() ed25519.PublicKey { return k.signPub }

// AgreePublicKey returns the device's X25519 public key, the value pinned
// alongside the signing key by the TOFU registry.
func (k *DeviceKeys) AgreePublicKey() [32]byte { return k.agreePub }

// Sign signs the exact canonical CBOR bytes of a preimage. Callers must
// never sign a decoded-and-re-encoded copy — only the bytes the CID was
// computed over.
func (k *DeviceKeys) Sign(canonicalBytes []byte) []byte {
	return ed25519.Sign(k.signPriv, canonicalBytes)
}

// Verify checks an Ed25519 signature against a pinned public key. Callers
// are responsible for recomputing and comparing the CID separately —
// Verify only checks the signature itself.
func Verify(canonicalBytes, sig []byte, pinnedPubSign ed25519.PublicKey) error {
	if len(pinnedPubSign) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: malformed pinned key", ErrBadSignature)
	}
	if !ed25519.Verify(pinnedPubSign, canonicalBytes, sig) {
		return ErrBadSignature
	}
	return nil
}

// Close zeroes private key material. Safe to call multiple times.
func (k *DeviceKeys) Close() {
	for i := range k.signPriv {
		k.signPriv[i] = 0
	}
	for i := range k.agreePriv {
		k.agreePriv[i] = 0
	}
}
