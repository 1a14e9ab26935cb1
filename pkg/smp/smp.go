// SmpEngine implements the mutual-secret-equality check consumed as an
// opaque collaborator by pkg/otr (§1, §4.8, §6). Real OTR SMP is a
// four-message zero-knowledge proof of discrete log equality; this is
// a DH-commitment equality test instead (see DESIGN.md): both sides
// agree on a fresh DH secret, the responder sends a MAC of its secret
// keyed under it, and the initiator compares that MAC with its own
// and sends back the outcome, so two equal secrets always match.

package smp

import (
	"bytes"
	"sync"

	"github.com/otrv3/otr/pkg/crypto"
	"github.com/otrv3/otr/pkg/wire"
)

type state int

const (
	stateNone state = iota
	stateInitiatorAwaitingSMP2
	stateResponderAwaitingSecret
	stateResponderAwaitingSMP3
	stateDone
)

// SmpEngine drives one SMP exchange over a data message's TLV channel.
type SmpEngine struct {
	mu sync.Mutex

	state state

	localDH  *crypto.DHKeyPair
	remoteA  []byte // MPI bytes, for the responder's record of the initiator's A
	question string

	localSecret []byte

	matched      bool
	matchedKnown bool
}

// NewSmpEngine creates an idle SMP engine for one conversation.
func NewSmpEngine() *SmpEngine {
	return &SmpEngine{}
}

// StartInitiator begins an SMP exchange over the given secret,
// optionally with a human-readable question for the peer, and returns
// the SMP1 TLV to embed in the next outgoing data message.
func (s *SmpEngine) StartInitiator(secret []byte, question string) (wire.TLV, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateNone {
		return wire.TLV{}, ErrAlreadyActive
	}

	dh, err := crypto.DHGenerateKeyPair()
	if err != nil {
		return wire.TLV{}, err
	}
	s.localDH = dh
	s.localSecret = append([]byte(nil), secret...)
	s.state = stateInitiatorAwaitingSMP2

	aMPI := wire.EncodeMPI(dh.DHPublicKey())
	if question == "" {
		return wire.TLV{Type: wire.TLVTypeSMP1, Value: aMPI}, nil
	}
	value := append([]byte(question+"\x00"), aMPI...)
	return wire.TLV{Type: wire.TLVTypeSMP1WithQuestion, Value: value}, nil
}

// ReceiveSMP1 parses an incoming SMP1 (or SMP1-with-question) TLV. The
// Host is expected to prompt its user for the shared secret (and show
// question, if any) and then call ContinueResponder.
func (s *SmpEngine) ReceiveSMP1(tlv wire.TLV) (question string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateNone {
		return "", ErrAlreadyActive
	}

	value := tlv.Value
	if tlv.Type == wire.TLVTypeSMP1WithQuestion {
		idx := bytes.IndexByte(value, 0)
		if idx < 0 {
			return "", ErrWrongState
		}
		question = string(value[:idx])
		value = value[idx+1:]
	}

	s.remoteA = append([]byte(nil), value...)
	s.question = question
	s.state = stateResponderAwaitingSecret
	return question, nil
}

// ContinueResponder supplies the responder's answer to the shared
// secret prompt and returns the SMP2 TLV to send back.
func (s *SmpEngine) ContinueResponder(secret []byte) (wire.TLV, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateResponderAwaitingSecret {
		return wire.TLV{}, ErrWrongState
	}

	remoteA, _, err := wire.DecodeMPI(s.remoteA)
	if err != nil {
		return wire.TLV{}, err
	}

	dh, err := crypto.DHGenerateKeyPair()
	if err != nil {
		return wire.TLV{}, err
	}
	s.localDH = dh
	s.localSecret = append([]byte(nil), secret...)

	sharedK, err := crypto.DHSharedSecret(dh, remoteA)
	if err != nil {
		return wire.TLV{}, err
	}
	tag := crypto.HMACSHA256Slice(sharedK.Bytes(), secret)

	bMPI := wire.EncodeMPI(dh.DHPublicKey())
	value := append(append([]byte(nil), bMPI...), tag...)

	s.state = stateResponderAwaitingSMP3
	return wire.TLV{Type: wire.TLVTypeSMP2, Value: value}, nil
}

// ReceiveSMP2 completes the initiator's side: it derives the shared DH
// secret, computes its own tag, compares it against the responder's
// tag, and returns the SMP3 TLV announcing the outcome.
func (s *SmpEngine) ReceiveSMP2(tlv wire.TLV) (wire.TLV, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateInitiatorAwaitingSMP2 {
		return wire.TLV{}, ErrWrongState
	}

	remoteB, n, err := wire.DecodeMPI(tlv.Value)
	if err != nil {
		return wire.TLV{}, err
	}
	remoteTag := tlv.Value[n:]

	sharedK, err := crypto.DHSharedSecret(s.localDH, remoteB)
	if err != nil {
		return wire.TLV{}, err
	}
	localTag := crypto.HMACSHA256Slice(sharedK.Bytes(), s.localSecret)

	matched := crypto.MACEqual(localTag, remoteTag)
	s.matched = matched
	s.matchedKnown = true
	s.state = stateDone

	outcome := byte(0)
	if matched {
		outcome = 1
	}
	return wire.TLV{Type: wire.TLVTypeSMP3, Value: []byte{outcome}}, nil
}

// ReceiveSMP3 records the outcome the initiator computed and reported.
func (s *SmpEngine) ReceiveSMP3(tlv wire.TLV) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateResponderAwaitingSMP3 {
		return ErrWrongState
	}
	if len(tlv.Value) != 1 {
		return ErrWrongState
	}

	s.matched = tlv.Value[0] == 1
	s.matchedKnown = true
	s.state = stateDone
	return nil
}

// Abort builds an SMP_ABORT TLV and resets the engine to idle,
// matching the Host-triggered cancellation path in §4.8.
func (s *SmpEngine) Abort() wire.TLV {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateNone
	s.matched = false
	s.matchedKnown = false
	return wire.TLV{Type: wire.TLVTypeSMPAbort}
}

// ReceiveAbort resets the engine in response to a peer-initiated abort.
func (s *SmpEngine) ReceiveAbort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateNone
	s.matched = false
	s.matchedKnown = false
}

// Result reports the outcome of a completed exchange. known is false
// until ReceiveSMP2 or ReceiveSMP3 has run.
func (s *SmpEngine) Result() (matched bool, known bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matched, s.matchedKnown
}

// InProgress reports whether an SMP exchange is currently underway,
// for the facade's isSmpInProgress operation (§4.8/§6.2).
func (s *SmpEngine) InProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != stateNone && s.state != stateDone
}

// Question returns the question text the initiator attached, if any.
func (s *SmpEngine) Question() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.question
}
