// keystore.go persists DeviceKeys to disk. Adapted from the teacher's
// internal/wallet/keystore.go (generate / from-hex / save-as-keystore /
// close-and-wipe), but for an Ed25519+X25519 device identity instead of a
// secp256k1 EVM wallet — see DESIGN.md for why go-ethereum's keystore
// package itself could not be reused as-is.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/hkdf"
)

// keystoreFile is the on-disk encrypted representation. Structurally it
// plays the same role as the Web3 keystore JSON the teacher relied on:
// private key material encrypted at rest under a passphrase, with enough
// metadata to decrypt it back into a DeviceKeys.
type keystoreFile struct {
	Version  int    `json:"version"`
	SignPub  string `json:"sign_pub"`  // hex
	AgreePub string `json:"agree_pub"` // hex
	Salt     string `json:"salt"`      // hex, passphrase-KDF salt
	Sealed   string `json:"sealed"`    // hex, nonce||ciphertext||tag over the two private keys
}

const keystoreVersion = 1

// SaveToKeystore writes k's private key material to path, encrypted under
// passphrase. Useful for dev/ops persistence across process restarts; not
// required at runtime if the embedding application manages key storage
// itself (the spec treats the platform keychain as an external
// collaborator).
func (k *DeviceKeys) SaveToKeystore(path, passphrase string) error {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("identity: keystore salt: %w", err)
	}
	key, err := deriveKeystoreKey(passphrase, salt)
	if err != nil {
		return err
	}

	plain := make([]byte, 0, len(k.signPriv)+len(k.agreePriv))
	plain = append(plain, k.signPriv...)
	plain = append(plain, k.agreePriv[:]...)

	sealed, err := sealWithKey(key, plain, nil)
	if err != nil {
		return fmt.Errorf("identity: seal keystore: %w", err)
	}

	kf := keystoreFile{
		Version:  keystoreVersion,
		SignPub:  hex.EncodeToString(k.signPub),
		AgreePub: hex.EncodeToString(k.agreePub[:]),
		Salt:     hex.EncodeToString(salt),
		Sealed:   hex.EncodeToString(sealed),
	}
	b, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("identity: marshal keystore: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("identity: mkdir: %w", err)
	}
	return os.WriteFile(path, b, 0o600)
}

// LoadFromKeystore reads and decrypts a keystore file written by
// SaveToKeystore.
func LoadFromKeystore(path, passphrase string) (*DeviceKeys, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity: read keystore: %w", err)
	}
	var kf keystoreFile
	if err := json.Unmarshal(b, &kf); err != nil {
		return nil, fmt.Errorf("identity: parse keystore: %w", err)
	}
	if kf.Version != keystoreVersion {
		return nil, fmt.Errorf("identity: unsupported keystore version %d", kf.Version)
	}
	salt, err := hex.DecodeString(kf.Salt)
	if err != nil {
		return nil, fmt.Errorf("identity: bad salt: %w", err)
	}
	sealed, err := hex.DecodeString(kf.Sealed)
	if err != nil {
		return nil, fmt.Errorf("identity: bad sealed blob: %w", err)
	}
	key, err := deriveKeystoreKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	plain, err := openWithKey(key, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("identity: decrypt keystore (wrong passphrase?): %w", err)
	}
	if len(plain) != ed25519.PrivateKeySize+32 {
		return nil, errors.New("identity: keystore payload has unexpected length")
	}

	signPriv := append(ed25519.PrivateKey(nil), plain[:ed25519.PrivateKeySize]...)
	dk := &DeviceKeys{
		signPriv: signPriv,
		signPub:  publicKeyFromPrivate(signPriv),
	}
	copy(dk.agreePriv[:], plain[ed25519.PrivateKeySize:])
	pub, err := hex.DecodeString(kf.AgreePub)
	if err != nil || len(pub) != 32 {
		return nil, errors.New("identity: bad agreement public key in keystore")
	}
	copy(dk.agreePub[:], pub)
	return dk, nil
}

func publicKeyFromPrivate(priv ed25519.PrivateKey) ed25519.PublicKey {
	pub := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(pub, priv[ed25519.PublicKeySize:])
	return pub
}

// deriveKeystoreKey turns a human passphrase into a 256-bit AES key. This
// is deliberately simple (HKDF over the passphrase bytes, salted) rather
// than a full password-hashing KDF: the keystore file is a dev/ops
// convenience analogous to the teacher's SaveAsKeystore, not the primary
// defense for a compromised disk.
func deriveKeystoreKey(passphrase string, salt []byte) ([]byte, error) {
	h := hkdf.New(sha256.New, []byte(passphrase), salt, []byte("buds.keystore.v1"))
	out := make([]byte, contentKeySize)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, fmt.Errorf("identity: derive keystore key: %w", err)
	}
	return out, nil
}

// LoadOrGenerate loads a device's keys from path if present, else
// generates a fresh keypair and persists it — the equivalent of the
// teacher's LoadHexFromEnv-with-generation-fallback helper.
func LoadOrGenerate(path, passphrase string) (*DeviceKeys, error) {
	if _, err := os.Stat(path); err == nil {
		return LoadFromKeystore(path, passphrase)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("identity: stat keystore: %w", err)
	}
	dk, err := GenerateDeviceKeys()
	if err != nil {
		return nil, err
	}
	if err := dk.SaveToKeystore(path, passphrase); err != nil {
		return nil, err
	}
	return dk, nil
}
