package crypto

import "errors"

// Sentinel errors returned by this package's operations.
var (
	ErrInvalidPublicValue  = errors.New("crypto: DH public value out of range")
	ErrInvalidPrivateValue = errors.New("crypto: DH private value invalid")
	ErrAESCTRInvalidKey    = errors.New("crypto: AES-CTR key must be 16 bytes")
	ErrAESCTRInvalidNonce  = errors.New("crypto: AES-CTR nonce must be 16 bytes")
	ErrInvalidSignature    = errors.New("crypto: signature verification failed")
	ErrInvalidKeySize      = errors.New("crypto: key has wrong size")
)
