package wire

import "encoding/binary"

// DHCommitMessage carries the AKE initiator's encrypted DH public value
// and a hash of it, per §4.1/§9.
type DHCommitMessage struct {
	Header      Header
	EncryptedGx []byte
	HashedGx    [32]byte
}

func (m *DHCommitMessage) Encode() []byte {
	buf := m.Header.Encode()
	buf = append(buf, EncodeData(m.EncryptedGx)...)
	buf = append(buf, EncodeData(m.HashedGx[:])...)
	return buf
}

func DecodeDHCommitMessage(header Header, body []byte) (*DHCommitMessage, error) {
	encGx, n, err := DecodeData(body)
	if err != nil {
		return nil, err
	}
	off := n
	hashed, n, err := DecodeData(body[off:])
	if err != nil {
		return nil, err
	}
	if len(hashed) != 32 {
		return nil, ErrTruncated
	}
	m := &DHCommitMessage{Header: header, EncryptedGx: encGx}
	copy(m.HashedGx[:], hashed)
	return m, nil
}

// DHKeyMessage carries the responder's DH public value.
type DHKeyMessage struct {
	Header Header
	GyMPI  []byte
}

func (m *DHKeyMessage) Encode() []byte {
	buf := m.Header.Encode()
	return append(buf, EncodeData(m.GyMPI)...)
}

func DecodeDHKeyMessage(header Header, body []byte) (*DHKeyMessage, error) {
	gy, _, err := DecodeData(body)
	if err != nil {
		return nil, err
	}
	return &DHKeyMessage{Header: header, GyMPI: gy}, nil
}

// RevealSignatureMessage reveals the key used to encrypt gx and carries
// the initiator's encrypted, authenticated signature.
type RevealSignatureMessage struct {
	Header       Header
	RevealedKey  []byte
	EncryptedSig []byte
	MACofSig     [20]byte
}

func (m *RevealSignatureMessage) Encode() []byte {
	buf := m.Header.Encode()
	buf = append(buf, EncodeData(m.RevealedKey)...)
	buf = append(buf, EncodeData(m.EncryptedSig)...)
	buf = append(buf, m.MACofSig[:]...)
	return buf
}

func DecodeRevealSignatureMessage(header Header, body []byte) (*RevealSignatureMessage, error) {
	key, n, err := DecodeData(body)
	if err != nil {
		return nil, err
	}
	off := n
	sig, n, err := DecodeData(body[off:])
	if err != nil {
		return nil, err
	}
	off += n
	if len(body) < off+20 {
		return nil, ErrTruncated
	}
	m := &RevealSignatureMessage{Header: header, RevealedKey: key, EncryptedSig: sig}
	copy(m.MACofSig[:], body[off:off+20])
	return m, nil
}

// SignatureMessage carries the responder's encrypted, authenticated
// signature closing the AKE.
type SignatureMessage struct {
	Header       Header
	EncryptedSig []byte
	MACofSig     [20]byte
}

func (m *SignatureMessage) Encode() []byte {
	buf := m.Header.Encode()
	buf = append(buf, EncodeData(m.EncryptedSig)...)
	buf = append(buf, m.MACofSig[:]...)
	return buf
}

func DecodeSignatureMessage(header Header, body []byte) (*SignatureMessage, error) {
	sig, n, err := DecodeData(body)
	if err != nil {
		return nil, err
	}
	off := n
	if len(body) < off+20 {
		return nil, ErrTruncated
	}
	m := &SignatureMessage{Header: header, EncryptedSig: sig}
	copy(m.MACofSig[:], body[off:off+20])
	return m, nil
}

// SignatureTranscript assembles the cleartext signed inside a
// RevealSignature/Signature message: the long-term public key, the
// signing key id, and a signature over the AKE transcript. It is
// encrypted under c/cp, and the resulting ciphertext is then MAC'd
// under m2/m2p.
type SignatureTranscript struct {
	PublicKey []byte
	KeyID     uint32
	Signature []byte
}

func (s *SignatureTranscript) Encode() []byte {
	buf := EncodeData(s.PublicKey)
	var keyID [4]byte
	binary.BigEndian.PutUint32(keyID[:], s.KeyID)
	buf = append(buf, keyID[:]...)
	buf = append(buf, EncodeData(s.Signature)...)
	return buf
}

func DecodeSignatureTranscript(buf []byte) (*SignatureTranscript, error) {
	pub, n, err := DecodeData(buf)
	if err != nil {
		return nil, err
	}
	off := n
	if len(buf) < off+4 {
		return nil, ErrTruncated
	}
	keyID := binary.BigEndian.Uint32(buf[off : off+4])
	off += 4
	sig, _, err := DecodeData(buf[off:])
	if err != nil {
		return nil, err
	}
	return &SignatureTranscript{PublicKey: pub, KeyID: keyID, Signature: sig}, nil
}
