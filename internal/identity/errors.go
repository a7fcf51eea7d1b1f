package identity

import "errors"

// Sentinel errors for the Identity & Crypto component, per the error
// taxonomy in the sync core's design.
var (
	ErrBadSignature     = errors.New("identity: signature verification failed")
	ErrDecryptFailed     = errors.New("identity: AEAD open failed")
	ErrUnknownRecipient = errors.New("identity: no pinned agreement key for recipient device")
	ErrNonceReuse       = errors.New("identity: refused to reuse a nonce")
	ErrShortCiphertext  = errors.New("identity: ciphertext shorter than nonce+tag")
)
