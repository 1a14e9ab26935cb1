// Long-term authentication keys for the AKE. The teacher authenticates
// CASE with ECDSA P-256 over a fixed transcript; this plays the same
// role with Ed25519, which needs no curve-parameter validation step.

package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
)

// LongTermKeyPair is a participant's persistent identity key, signed over
// once per AKE to bind the ephemeral DH exchange to a known identity.
type LongTermKeyPair struct {
	Public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// GenerateLongTermKeyPair creates a new Ed25519 identity key.
func GenerateLongTermKeyPair() (*LongTermKeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &LongTermKeyPair{Public: pub, private: priv}, nil
}

// LongTermKeyPairFromSeed rebuilds a key pair from a 32-byte seed, for
// hosts that persist identities across process restarts.
func LongTermKeyPairFromSeed(seed []byte) (*LongTermKeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, ErrInvalidKeySize
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &LongTermKeyPair{Public: priv.Public().(ed25519.PublicKey), private: priv}, nil
}

// Sign signs a transcript with the long-term private key.
func (kp *LongTermKeyPair) Sign(message []byte) []byte {
	return ed25519.Sign(kp.private, message)
}

// VerifySignature checks a transcript signature against a peer's known
// public key.
func VerifySignature(publicKey ed25519.PublicKey, message, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(publicKey, message, signature)
}

// Fingerprint returns the SHA-256 hash of a long-term public key, the
// short form shown to users for manual authentication.
func Fingerprint(publicKey ed25519.PublicKey) [SHA256LenBytes]byte {
	return SHA256(publicKey)
}
