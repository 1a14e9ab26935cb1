package wire

import "encoding/binary"

// Header is the fixed portion common to every OTR protocol message:
// the protocol version, the message type byte, and — for version 3 —
// the sender and receiver instance tags from §4.9.
type Header struct {
	Version             uint16
	MessageType         byte
	SenderInstanceTag   uint32
	ReceiverInstanceTag uint32
}

// Size returns the encoded size of the header for this version.
func (h Header) Size() int {
	if h.Version == VersionThree {
		return HeaderSizeV3
	}
	return HeaderSizeV2
}

// EncodeTo writes the header into buf, which must be at least Size()
// bytes long, and returns the number of bytes written.
func (h Header) EncodeTo(buf []byte) int {
	binary.BigEndian.PutUint16(buf[0:2], h.Version)
	buf[2] = h.MessageType
	if h.Version != VersionThree {
		return HeaderSizeV2
	}
	binary.BigEndian.PutUint32(buf[3:7], h.SenderInstanceTag)
	binary.BigEndian.PutUint32(buf[7:11], h.ReceiverInstanceTag)
	return HeaderSizeV3
}

// Encode returns the header as a freshly allocated byte slice.
func (h Header) Encode() []byte {
	buf := make([]byte, h.Size())
	h.EncodeTo(buf)
	return buf
}

// DecodeHeader parses a message header from buf, returning the header
// and the number of bytes consumed. The version field alone determines
// whether instance tags follow.
func DecodeHeader(buf []byte) (Header, int, error) {
	if len(buf) < HeaderSizeV2 {
		return Header{}, 0, ErrTruncated
	}
	h := Header{
		Version:     binary.BigEndian.Uint16(buf[0:2]),
		MessageType: buf[2],
	}
	if h.Version != VersionThree {
		return h, HeaderSizeV2, nil
	}
	if len(buf) < HeaderSizeV3 {
		return Header{}, 0, ErrTruncated
	}
	h.SenderInstanceTag = binary.BigEndian.Uint32(buf[3:7])
	h.ReceiverInstanceTag = binary.BigEndian.Uint32(buf[7:11])
	return h, HeaderSizeV3, nil
}
