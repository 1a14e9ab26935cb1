package crypto

import (
	"crypto/sha1"
	"crypto/sha256"
)

// SHA256LenBytes is the SHA-256 digest size.
const SHA256LenBytes = 32

// SHA1LenBytes is the SHA-1 digest size.
const SHA1LenBytes = 20

// SHA256 hashes a message with SHA-256.
func SHA256(message []byte) [SHA256LenBytes]byte {
	return sha256.Sum256(message)
}

// SHA1 hashes a message with SHA-1. The data message keys in pkg/keys
// are derived with HKDF-SHA256, not with this function.
func SHA1(message []byte) [SHA1LenBytes]byte {
	return sha1.Sum(message)
}
