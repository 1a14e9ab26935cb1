// Core data model types from §3: session identity, status, and policy.
// Numeric constants here cite the OTR wire sections this document
// defines in SPEC_FULL.md, the way the teacher's pkg/message/errors.go
// cites Matter Specification sections for its own wire constants.

package otr

// InstanceTag identifies one client instance in a multi-client
// conversation, per §4.9. Tag 0 (InstanceTagMaster) is reserved for the
// pre-AKE state before any peer instance has been observed.
type InstanceTag uint32

// InstanceTagMaster is the reserved tag representing "no specific
// instance yet."
const InstanceTagMaster InstanceTag = 0

// InstanceRole distinguishes a master SessionCore, which owns an
// InstanceRouter and may have several slaves, from a slave, which
// represents one specific remote instance a master has discovered, per
// §3.2/§4.9.
type InstanceRole int

const (
	RoleMaster InstanceRole = iota
	RoleSlave
)

// SessionStatus is the coarse-grained conversation state a Host is
// notified about, per §3.2/§6.1.
type SessionStatus int

const (
	// StatusPlaintext is the initial state: outgoing messages are sent
	// unencrypted.
	StatusPlaintext SessionStatus = iota

	// StatusEncrypted is reached once an AKE completes; outgoing
	// messages are now encrypted data messages.
	StatusEncrypted

	// StatusFinished is reached after the peer disconnects (a TLV
	// Disconnected record); further sends are refused until a new AKE
	// starts. Ending the session locally returns to StatusPlaintext
	// instead.
	StatusFinished
)

func (s SessionStatus) String() string {
	switch s {
	case StatusPlaintext:
		return "plaintext"
	case StatusEncrypted:
		return "encrypted"
	case StatusFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// OfferStatus tracks whether this side has offered OTR to the peer,
// per §4.6, so a whitespace tag or query message is not repeated on
// every outgoing plaintext message once a session is encrypted.
type OfferStatus int

const (
	OfferNone OfferStatus = iota
	OfferSent
	OfferAccepted
	OfferRejected
)

// Policy controls what this session may do automatically, per §6.1/§9.
type Policy struct {
	// AllowV3 permits negotiating OTR version 3. Version 2 and version
	// 1 are never offered by this engine (see DESIGN.md, "Open
	// Questions resolved"); a peer's v2 offer is simply declined.
	AllowV3 bool

	// RequireEncryption refuses to send plaintext at all once a
	// conversation with this peer has started; StartAKE must complete
	// before Send succeeds.
	RequireEncryption bool

	// SendWhitespaceTag appends the whitespace tag to outgoing
	// plaintext, advertising OTR support passively.
	SendWhitespaceTag bool

	// WhitespaceStartAKE starts an AKE automatically upon receiving a
	// whitespace-tagged plaintext message from the peer.
	WhitespaceStartAKE bool

	// ErrorStartAKE starts a fresh AKE automatically after an inbound
	// OTR error notice, per §4.2/§7.
	ErrorStartAKE bool

	// MaxFragmentSize bounds the size of a single outgoing wire
	// message before fragmentation kicks in, per §4.7. Zero sets no
	// policy bound; a positive Host.MaxMessageSize still applies, and
	// the smaller of the two wins when both are set. With both zero,
	// nothing is fragmented.
	MaxFragmentSize int

	// MaxPendingFragments bounds how many concurrent partial messages
	// the Assembler will track per §5's resource-exhaustion guard.
	MaxPendingFragments int
}

// DefaultPolicy mirrors the conservative defaults a new conversation
// starts with absent host configuration.
func DefaultPolicy() Policy {
	return Policy{
		AllowV3:             true,
		RequireEncryption:   false,
		SendWhitespaceTag:   false,
		WhitespaceStartAKE:  true,
		MaxFragmentSize:     0,
		MaxPendingFragments: 8,
	}
}
