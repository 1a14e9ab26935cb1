package wire

import "encoding/binary"

// DataMessage is the authenticated, encrypted payload format from §6.3:
// flags, the sender/receiver key ids identifying which KeyMatrix cell
// was used, the sender's next DH public key, the top half of the
// 16-byte CTR counter, the encrypted message body, its MAC, and any
// revealed old MAC keys.
type DataMessage struct {
	Header Header

	Flags byte

	SenderKeyID   uint32
	ReceiverKeyID uint32

	NextDHPublicKeyBytes []byte // MPI-encoded g^y for the next ratchet step

	TopHalfCounter uint64

	EncryptedMessage []byte

	MAC [MACSize]byte

	OldMACKeys []byte
}

// Encode serializes the data message, including its header, into one
// buffer suitable for base64 envelope wrapping.
func (m *DataMessage) Encode() []byte {
	headerBuf := m.Header.Encode()

	body := make([]byte, 0, 64+len(m.EncryptedMessage)+len(m.OldMACKeys))
	body = append(body, m.Flags)

	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], m.SenderKeyID)
	body = append(body, u32[:]...)
	binary.BigEndian.PutUint32(u32[:], m.ReceiverKeyID)
	body = append(body, u32[:]...)

	body = append(body, EncodeData(m.NextDHPublicKeyBytes)...)

	var ctrBuf [TopHalfCounterSize]byte
	binary.BigEndian.PutUint64(ctrBuf[:], m.TopHalfCounter)
	body = append(body, ctrBuf[:]...)

	body = append(body, EncodeData(m.EncryptedMessage)...)
	body = append(body, m.MAC[:]...)
	body = append(body, EncodeData(m.OldMACKeys)...)

	return append(headerBuf, body...)
}

// AuthenticatedPrefix returns everything in the encoded message up to
// but excluding the MAC, the exact byte range the MAC authenticates.
func (m *DataMessage) AuthenticatedPrefix() []byte {
	full := m.Encode()
	return full[:len(full)-MACSize-4-len(m.OldMACKeys)]
}

// DecodeDataMessage parses a data message body following a header
// already consumed by DecodeHeader.
func DecodeDataMessage(header Header, body []byte) (*DataMessage, error) {
	if len(body) < 1+4+4 {
		return nil, ErrTruncated
	}
	m := &DataMessage{Header: header}
	m.Flags = body[0]
	off := 1
	m.SenderKeyID = binary.BigEndian.Uint32(body[off : off+4])
	off += 4
	m.ReceiverKeyID = binary.BigEndian.Uint32(body[off : off+4])
	off += 4

	dhBytes, n, err := DecodeData(body[off:])
	if err != nil {
		return nil, err
	}
	m.NextDHPublicKeyBytes = dhBytes
	off += n

	if len(body) < off+TopHalfCounterSize {
		return nil, ErrTruncated
	}
	m.TopHalfCounter = binary.BigEndian.Uint64(body[off : off+TopHalfCounterSize])
	off += TopHalfCounterSize

	enc, n, err := DecodeData(body[off:])
	if err != nil {
		return nil, err
	}
	m.EncryptedMessage = enc
	off += n

	if len(body) < off+MACSize {
		return nil, ErrTruncated
	}
	copy(m.MAC[:], body[off:off+MACSize])
	off += MACSize

	oldKeys, n, err := DecodeData(body[off:])
	if err != nil {
		return nil, err
	}
	m.OldMACKeys = oldKeys
	off += n

	return m, nil
}
