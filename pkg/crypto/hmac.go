package crypto

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"hash"
)

// MACSize is the size of an HMAC-SHA1 MAC in bytes.
const MACSize = 20

// HMACSHA1 computes the HMAC-SHA1 of a message using the given key.
// Data messages authenticate with this, truncated to 160 bits; this is
// OTR's wire MAC, not a general-purpose hash.
func HMACSHA1(key, message []byte) [MACSize]byte {
	h := hmac.New(sha1.New, key)
	h.Write(message)
	var result [MACSize]byte
	copy(result[:], h.Sum(nil))
	return result
}

// HMACSHA1Slice computes the HMAC-SHA1 and returns it as a slice.
func HMACSHA1Slice(key, message []byte) []byte {
	h := hmac.New(sha1.New, key)
	h.Write(message)
	return h.Sum(nil)
}

// NewHMACSHA1 returns a new hash.Hash for computing HMAC-SHA1
// incrementally.
func NewHMACSHA1(key []byte) hash.Hash {
	return hmac.New(sha1.New, key)
}

// MACEqual compares two MACs in constant time.
func MACEqual(mac1, mac2 []byte) bool {
	return hmac.Equal(mac1, mac2)
}

// HMACSHA256Slice computes the HMAC-SHA256 of a message, the MAC used
// to authenticate the AKE transcript under m1/m2.
func HMACSHA256Slice(key, message []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(message)
	return h.Sum(nil)
}
