package wire

import (
	"bytes"
	"math/big"
	"testing"
)

func TestMPIRoundTrip(t *testing.T) {
	values := []*big.Int{
		big.NewInt(0),
		big.NewInt(1),
		big.NewInt(255),
		new(big.Int).SetBytes(bytes.Repeat([]byte{0xff}, 192)),
	}
	for _, v := range values {
		encoded := EncodeMPI(v)
		decoded, n, err := DecodeMPI(encoded)
		if err != nil {
			t.Fatalf("DecodeMPI: %v", err)
		}
		if n != len(encoded) {
			t.Fatalf("consumed %d, want %d", n, len(encoded))
		}
		if decoded.Cmp(v) != 0 {
			t.Fatalf("got %v, want %v", decoded, v)
		}
	}
}

func TestHeaderRoundTripV3(t *testing.T) {
	h := Header{Version: VersionThree, MessageType: TypeDataMessage, SenderInstanceTag: 0x12345678, ReceiverInstanceTag: 0x9abcdef0}
	encoded := h.Encode()
	if len(encoded) != HeaderSizeV3 {
		t.Fatalf("encoded len = %d, want %d", len(encoded), HeaderSizeV3)
	}
	decoded, n, err := DecodeHeader(encoded)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if n != HeaderSizeV3 || decoded != h {
		t.Fatalf("got %+v (%d bytes), want %+v", decoded, n, h)
	}
}

func TestHeaderRoundTripV2(t *testing.T) {
	h := Header{Version: VersionTwo, MessageType: TypeDHKey}
	encoded := h.Encode()
	if len(encoded) != HeaderSizeV2 {
		t.Fatalf("encoded len = %d, want %d", len(encoded), HeaderSizeV2)
	}
	decoded, n, err := DecodeHeader(encoded)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if n != HeaderSizeV2 || decoded.Version != h.Version || decoded.MessageType != h.MessageType {
		t.Fatalf("got %+v, want %+v", decoded, h)
	}
}

func TestDataMessageRoundTrip(t *testing.T) {
	msg := &DataMessage{
		Header:               Header{Version: VersionThree, MessageType: TypeDataMessage, SenderInstanceTag: 1, ReceiverInstanceTag: 2},
		Flags:                0,
		SenderKeyID:          1,
		ReceiverKeyID:        1,
		NextDHPublicKeyBytes: []byte{0x01, 0x02, 0x03},
		TopHalfCounter:       7,
		EncryptedMessage:     []byte("ciphertext bytes here"),
		OldMACKeys:           nil,
	}
	for i := range msg.MAC {
		msg.MAC[i] = byte(i)
	}

	encoded := msg.Encode()
	header, n, err := DecodeHeader(encoded)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	decoded, err := DecodeDataMessage(header, encoded[n:])
	if err != nil {
		t.Fatalf("DecodeDataMessage: %v", err)
	}
	if decoded.TopHalfCounter != msg.TopHalfCounter {
		t.Fatalf("counter mismatch: got %d want %d", decoded.TopHalfCounter, msg.TopHalfCounter)
	}
	if !bytes.Equal(decoded.EncryptedMessage, msg.EncryptedMessage) {
		t.Fatalf("ciphertext mismatch")
	}
	if decoded.MAC != msg.MAC {
		t.Fatalf("MAC mismatch")
	}
}

func TestTLVRoundTrip(t *testing.T) {
	tlvs := []TLV{
		{Type: TLVTypeSMP1, Value: []byte("abc")},
		{Type: TLVTypeDisconnected, Value: nil},
	}
	encoded := EncodeTLVs(tlvs)
	decoded, err := DecodeTLVs(encoded)
	if err != nil {
		t.Fatalf("DecodeTLVs: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("got %d TLVs, want 2", len(decoded))
	}
	if decoded[0].Type != TLVTypeSMP1 || !bytes.Equal(decoded[0].Value, []byte("abc")) {
		t.Fatalf("first TLV mismatch: %+v", decoded[0])
	}
}

func TestQueryMessageRoundTrip(t *testing.T) {
	q := BuildQueryMessage([]int{VersionThree})
	versions, sawV1 := ParseQueryVersions(q)
	if sawV1 {
		t.Fatal("unexpected v1 offer")
	}
	if len(versions) != 1 || versions[0] != VersionThree {
		t.Fatalf("got %v, want [3]", versions)
	}
}

func TestParseQueryRecognizesBareV1(t *testing.T) {
	_, sawV1 := ParseQueryVersions("?OTR?")
	if !sawV1 {
		t.Fatal("expected bare ?OTR? to be recognized as a v1 offer")
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	payload := []byte("arbitrary encoded message bytes")
	wrapped := WrapEnvelope(payload)
	if !IsEnvelope(wrapped) {
		t.Fatal("IsEnvelope false for wrapped message")
	}
	unwrapped, err := UnwrapEnvelope(wrapped)
	if err != nil {
		t.Fatalf("UnwrapEnvelope: %v", err)
	}
	if !bytes.Equal(unwrapped, payload) {
		t.Fatalf("got %q, want %q", unwrapped, payload)
	}
}

func TestClassify(t *testing.T) {
	cases := map[string]Kind{
		"hello there":               KindPlaintext,
		"?OTRv3?":                   KindQuery,
		"?OTR|1,2,3,abcd,":          KindFragment,
		WrapEnvelope([]byte("abc")): KindEncoded,
	}
	for msg, want := range cases {
		if got := Classify(msg); got != want {
			t.Errorf("Classify(%q) = %v, want %v", msg, got, want)
		}
	}
}
