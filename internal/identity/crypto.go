package identity

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	contentKeySize = 32 // 256-bit symmetric content key
	gcmNonceSize   = 12 // 96-bit AEAD nonce
	gcmTagSize     = 16 // 128-bit AEAD tag
	wrapInfo       = "buds.wrap.v1"
)

// ContentKey is a fresh, per-message symmetric key.
type ContentKey [contentKeySize]byte

// Seal draws a fresh content key and nonce, then seals plaintext with
// AES-256-GCM using aad as associated data (the spec binds this to the
// receipt's CID bytes). Returns the key (so it can be wrapped per
// recipient) and the opaque payload nonce||ciphertext||tag.
func Seal(plaintext, aad []byte) (ContentKey, []byte, error) {
	var key ContentKey
	if _, err := rand.Read(key[:]); err != nil {
		return ContentKey{}, nil, fmt.Errorf("identity: content key: %w", err)
	}
	sealed, err := sealWithKey(key[:], plaintext, aad)
	if err != nil {
		return ContentKey{}, nil, err
	}
	return key, sealed, nil
}

// Open is the inverse of Seal, given the unwrapped content key.
func Open(key ContentKey, sealed, aad []byte) ([]byte, error) {
	return openWithKey(key[:], sealed, aad)
}

// Wrap wraps a content key for one recipient device: X25519 agreement
// between the sender's agreement private key and the recipient's pinned
// agreement public key, HKDF-SHA256 derivation of a wrap key, then
// AES-256-GCM seal of the content key (no additional authenticated data,
// per the spec).
func (k *DeviceKeys) Wrap(recipientAgreePub [32]byte, key ContentKey) ([]byte, error) {
	return wrapKey(k.agreePriv, recipientAgreePub, key)
}

// Unwrap is the symmetric inverse, keyed with the recipient's own
// agreement secret and the sender's agreement public key. Callers MUST
// look up the sender's agreement key via the TOFU registry, never trust
// a key claimed on the wire.
func (k *DeviceKeys) Unwrap(senderAgreePub [32]byte, wrapped []byte) (ContentKey, error) {
	return unwrapKey(k.agreePriv, senderAgreePub, wrapped)
}

func wrapKey(senderAgreePriv, recipientAgreePub [32]byte, key ContentKey) ([]byte, error) {
	wrapKeyBytes, err := deriveWrapKey(senderAgreePriv, recipientAgreePub)
	if err != nil {
		return nil, err
	}
	return sealWithKey(wrapKeyBytes, key[:], nil)
}

func unwrapKey(recipientAgreePriv, senderAgreePub [32]byte, wrapped []byte) (ContentKey, error) {
	wrapKeyBytes, err := deriveWrapKey(recipientAgreePriv, senderAgreePub)
	if err != nil {
		return ContentKey{}, err
	}
	plain, err := openWithKey(wrapKeyBytes, wrapped, nil)
	if err != nil {
		return ContentKey{}, err
	}
	if len(plain) != contentKeySize {
		return ContentKey{}, fmt.Errorf("identity: unwrapped key has wrong length %d", len(plain))
	}
	var key ContentKey
	copy(key[:], plain)
	return key, nil
}

func deriveWrapKey(priv, peerPub [32]byte) ([]byte, error) {
	ss, err := curve25519.X25519(priv[:], peerPub[:])
	if err != nil {
		return nil, fmt.Errorf("identity: x25519 agreement: %w", err)
	}
	h := hkdf.New(sha256.New, ss, nil, []byte(wrapInfo))
	out := make([]byte, contentKeySize)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, fmt.Errorf("identity: hkdf derive: %w", err)
	}
	return out, nil
}

func sealWithKey(key, plaintext, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("identity: aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, gcmNonceSize)
	if err != nil {
		return nil, fmt.Errorf("identity: gcm: %w", err)
	}
	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("identity: nonce: %w", err)
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plaintext, aad)
	return out, nil
}

func openWithKey(key, sealed, aad []byte) ([]byte, error) {
	if len(sealed) < gcmNonceSize+gcmTagSize {
		return nil, ErrShortCiphertext
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("identity: aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, gcmNonceSize)
	if err != nil {
		return nil, fmt.Errorf("identity: gcm: %w", err)
	}
	nonce, ct := sealed[:gcmNonceSize], sealed[gcmNonceSize:]
	plain, err := gcm.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plain, nil
}
