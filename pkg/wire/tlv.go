package wire

import "encoding/binary"

// TLV type numbers carried inside a data message's encrypted body,
// after the null-terminated plaintext, per §4.8/§6.3.
const (
	TLVTypePadding          = 0
	TLVTypeDisconnected     = 1
	TLVTypeSMP1             = 2
	TLVTypeSMP2             = 3
	TLVTypeSMP3             = 4
	TLVTypeSMP4             = 5
	TLVTypeSMPAbort         = 6
	TLVTypeSMP1WithQuestion = 7
)

// TLV is a single type-length-value record.
type TLV struct {
	Type  uint16
	Value []byte
}

func (t TLV) Encode() []byte {
	buf := make([]byte, 4+len(t.Value))
	binary.BigEndian.PutUint16(buf[0:2], t.Type)
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(t.Value)))
	copy(buf[4:], t.Value)
	return buf
}

// EncodeTLVs concatenates a sequence of TLV records.
func EncodeTLVs(tlvs []TLV) []byte {
	var buf []byte
	for _, t := range tlvs {
		buf = append(buf, t.Encode()...)
	}
	return buf
}

// DecodeTLVs parses a byte string into a sequence of TLV records,
// stopping cleanly at the end of buf.
func DecodeTLVs(buf []byte) ([]TLV, error) {
	var out []TLV
	for len(buf) > 0 {
		if len(buf) < 4 {
			return nil, ErrMalformedTLV
		}
		typ := binary.BigEndian.Uint16(buf[0:2])
		length := int(binary.BigEndian.Uint16(buf[2:4]))
		if len(buf) < 4+length {
			return nil, ErrMalformedTLV
		}
		value := make([]byte, length)
		copy(value, buf[4:4+length])
		out = append(out, TLV{Type: typ, Value: value})
		buf = buf[4+length:]
	}
	return out, nil
}
