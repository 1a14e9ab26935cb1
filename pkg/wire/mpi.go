package wire

import (
	"encoding/binary"
	"math/big"
)

// EncodeMPI serializes a big.Int as a 4-byte big-endian length prefix
// followed by its big-endian magnitude, the MPI format used throughout
// the AKE and data messages.
func EncodeMPI(n *big.Int) []byte {
	data := n.Bytes()
	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(data)))
	copy(buf[4:], data)
	return buf
}

// DecodeMPI reads one MPI from the front of buf, returning the value and
// the number of bytes consumed.
func DecodeMPI(buf []byte) (*big.Int, int, error) {
	if len(buf) < 4 {
		return nil, 0, ErrTruncated
	}
	length := int(binary.BigEndian.Uint32(buf[:4]))
	if len(buf) < 4+length {
		return nil, 0, ErrTruncated
	}
	n := new(big.Int).SetBytes(buf[4 : 4+length])
	return n, 4 + length, nil
}

// EncodeData serializes an arbitrary byte string in the same
// length-prefixed form as an MPI, used for the encrypted message and
// old-MAC-keys fields of a data message.
func EncodeData(data []byte) []byte {
	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(data)))
	copy(buf[4:], data)
	return buf
}

// DecodeData reads one length-prefixed byte string from the front of
// buf.
func DecodeData(buf []byte) ([]byte, int, error) {
	if len(buf) < 4 {
		return nil, 0, ErrTruncated
	}
	length := int(binary.BigEndian.Uint32(buf[:4]))
	if len(buf) < 4+length {
		return nil, 0, ErrTruncated
	}
	out := make([]byte, length)
	copy(out, buf[4:4+length])
	return out, 4 + length, nil
}
