package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDFSHA256 derives key material from input keying material using
// HKDF-SHA256 (RFC 5869).
func HKDFSHA256(inputKey, salt, info []byte, length int) ([]byte, error) {
	reader := hkdf.New(sha256.New, inputKey, salt, info)
	result := make([]byte, length)
	if _, err := io.ReadFull(reader, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AKESecretConstants are the six values the AKE derives from the DH
// shared secret s, each an HKDF-SHA256 expansion of s under its own
// label. c/cp key the AES-CTR encryption of the initiator's and the
// responder's signature blocks; m1/m1p key the transcript MACs that are
// signed, and m2/m2p key the MACs over the encrypted signature blocks.
type AKESecretConstants struct {
	C   [16]byte
	Cp  [16]byte
	M1  [32]byte
	M2  [32]byte
	M1p [32]byte
	M2p [32]byte
}

// DeriveAKESecrets expands a DH shared secret into the AKE's derived
// constants via HKDF-SHA256, one expansion per labeled constant.
func DeriveAKESecrets(sharedSecret []byte) (*AKESecretConstants, error) {
	labels := [][]byte{
		[]byte("otr-c"), []byte("otr-cp"),
		[]byte("otr-m1"), []byte("otr-m2"),
		[]byte("otr-m1p"), []byte("otr-m2p"),
	}
	out := make([][]byte, len(labels))
	for i, label := range labels {
		size := 32
		if i < 2 {
			size = 16
		}
		derived, err := HKDFSHA256(sharedSecret, nil, label, size)
		if err != nil {
			return nil, err
		}
		out[i] = derived
	}

	consts := &AKESecretConstants{}
	copy(consts.C[:], out[0])
	copy(consts.Cp[:], out[1])
	copy(consts.M1[:], out[2])
	copy(consts.M2[:], out[3])
	copy(consts.M1p[:], out[4])
	copy(consts.M2p[:], out[5])
	return consts, nil
}
