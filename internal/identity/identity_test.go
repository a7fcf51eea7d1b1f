package identity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	dk, err := GenerateDeviceKeys()
	require.NoError(t, err)
	defer dk.Close()

	msg := []byte("canonical preimage bytes")
	sig := dk.Sign(msg)
	require.NoError(t, Verify(msg, sig, dk.SignPublicKey()))
}

// P2: altering any bit of the signed bytes or the signature invalidates
// verification.
func TestVerifyRejectsTamperedMessageOrSignature(t *testing.T) {
	dk, err := GenerateDeviceKeys()
	require.NoError(t, err)
	defer dk.Close()

	msg := []byte("canonical preimage bytes")
	sig := dk.Sign(msg)

	tamperedMsg := append([]byte(nil), msg...)
	tamperedMsg[0] ^= 0x01
	require.ErrorIs(t, Verify(tamperedMsg, sig, dk.SignPublicKey()), ErrBadSignature)

	tamperedSig := append([]byte(nil), sig...)
	tamperedSig[0] ^= 0x01
	require.ErrorIs(t, Verify(msg, tamperedSig, dk.SignPublicKey()), ErrBadSignature)
}

func TestSealOpenRoundTrip(t *testing.T) {
	plaintext := []byte("bud content bytes")
	aad := []byte("cid1exampleexample")

	key, sealed, err := Seal(plaintext, aad)
	require.NoError(t, err)

	got, err := Open(key, sealed, aad)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestOpenFailsWithWrongAAD(t *testing.T) {
	key, sealed, err := Seal([]byte("secret"), []byte("aad-a"))
	require.NoError(t, err)

	_, err = Open(key, sealed, []byte("aad-b"))
	require.ErrorIs(t, err, ErrDecryptFailed)
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	sender, err := GenerateDeviceKeys()
	require.NoError(t, err)
	defer sender.Close()

	recipient, err := GenerateDeviceKeys()
	require.NoError(t, err)
	defer recipient.Close()

	key, _, err := Seal([]byte("payload"), []byte("aad"))
	require.NoError(t, err)

	wrapped, err := sender.Wrap(recipient.AgreePublicKey(), key)
	require.NoError(t, err)

	unwrapped, err := recipient.Unwrap(sender.AgreePublicKey(), wrapped)
	require.NoError(t, err)
	require.Equal(t, key, unwrapped)
}

func TestUnwrapFailsForWrongRecipient(t *testing.T) {
	sender, err := GenerateDeviceKeys()
	require.NoError(t, err)
	defer sender.Close()

	recipient, err := GenerateDeviceKeys()
	require.NoError(t, err)
	defer recipient.Close()

	impostor, err := GenerateDeviceKeys()
	require.NoError(t, err)
	defer impostor.Close()

	key, _, err := Seal([]byte("payload"), []byte("aad"))
	require.NoError(t, err)

	wrapped, err := sender.Wrap(recipient.AgreePublicKey(), key)
	require.NoError(t, err)

	_, err = impostor.Unwrap(sender.AgreePublicKey(), wrapped)
	require.ErrorIs(t, err, ErrDecryptFailed)
}

func TestKeystoreSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/device.keystore.json"

	dk, err := GenerateDeviceKeys()
	require.NoError(t, err)
	defer dk.Close()

	require.NoError(t, dk.SaveToKeystore(path, "correct horse battery staple"))

	loaded, err := LoadFromKeystore(path, "correct horse battery staple")
	require.NoError(t, err)
	require.Equal(t, dk.SignPublicKey(), loaded.SignPublicKey())
	require.Equal(t, dk.AgreePublicKey(), loaded.AgreePublicKey())

	msg := []byte("hello")
	sig := loaded.Sign(msg)
	require.NoError(t, Verify(msg, sig, dk.SignPublicKey()))
}

func TestKeystoreWrongPassphraseFails(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/device.keystore.json"

	dk, err := GenerateDeviceKeys()
	require.NoError(t, err)
	defer dk.Close()
	require.NoError(t, dk.SaveToKeystore(path, "right-pass"))

	_, err = LoadFromKeystore(path, "wrong-pass")
	require.Error(t, err)
}
