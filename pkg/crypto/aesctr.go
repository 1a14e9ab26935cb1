// AES-128-CTR data message cipher for the OTR data message format.
// Unlike the privacy-obfuscation cipher this is grounded on, OTR uses a
// full 16-byte big-endian counter as the initial counter block, not a
// short nonce plus length field.

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
)

// AES-CTR constants for the OTR data message cipher.
const (
	// AESCTRKeySize is the AES-128 key size in bytes.
	AESCTRKeySize = 16

	// AESCTRCounterSize is the full counter block size in bytes.
	AESCTRCounterSize = 16
)

// AESCTR is an AES-128-CTR cipher keyed for one direction of a data
// message exchange.
type AESCTR struct {
	block cipher.Block
}

// NewAESCTR creates a new AES-128-CTR cipher. The key must be exactly 16
// bytes.
func NewAESCTR(key []byte) (*AESCTR, error) {
	if len(key) != AESCTRKeySize {
		return nil, ErrAESCTRInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &AESCTR{block: block}, nil
}

// Encrypt XORs plaintext against the keystream for the given 16-byte
// counter block. Encryption and decryption are the same operation.
func (c *AESCTR) Encrypt(counterBlock, plaintext []byte) ([]byte, error) {
	if len(counterBlock) != AESCTRCounterSize {
		return nil, ErrAESCTRInvalidNonce
	}
	out := make([]byte, len(plaintext))
	stream := cipher.NewCTR(c.block, counterBlock)
	stream.XORKeyStream(out, plaintext)
	return out, nil
}

// Decrypt is an alias for Encrypt; CTR mode is an XOR of the same
// keystream.
func (c *AESCTR) Decrypt(counterBlock, ciphertext []byte) ([]byte, error) {
	return c.Encrypt(counterBlock, ciphertext)
}

// TopHalfCounter builds the initial CTR counter block from a message's
// top-half counter value as required by the data message format: the
// high 8 bytes hold the big-endian counter, the low 8 bytes are zero.
func TopHalfCounter(topHalf uint64) []byte {
	block := make([]byte, AESCTRCounterSize)
	for i := 0; i < 8; i++ {
		block[i] = byte(topHalf >> uint(56-8*i))
	}
	return block
}
