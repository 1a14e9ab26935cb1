// Host is the external interface a network/UI layer implements to drive
// a SessionCore, per §6.1. Its notification callbacks and InjectMessage
// are always invoked outside any package lock, matching §5's
// requirement that user callbacks never run under the package mutex,
// the same discipline the teacher's Callbacks struct in
// pkg/securechannel/manager.go documents. LongTermKeyPair is the
// exception: SessionCore reads it while holding its own lock.

package otr

import "github.com/otrv3/otr/pkg/crypto"

// Host is supplied once per conversation and never touched
// concurrently from more than the one goroutine driving that
// conversation's Facade calls.
type Host interface {
	// InjectMessage hands an outgoing wire string to the transport.
	// It is the engine's only network-facing call; how it reaches the
	// peer (sockets, a message queue, a test harness) is entirely the
	// Host's concern.
	InjectMessage(msg string) error

	// LongTermKeyPair returns this party's persistent identity key,
	// used to authenticate every AKE this session runs.
	LongTermKeyPair() *crypto.LongTermKeyPair

	// IsFingerprintTrusted reports whether the peer's long-term public
	// key is one the user has already verified, so the UI layer can
	// decide whether to warn about an unauthenticated peer.
	IsFingerprintTrusted(fingerprint [32]byte) bool

	// MaxMessageSize returns the transport's MTU in bytes, used to
	// decide when to fragment an outgoing message. Zero means
	// unbounded.
	MaxMessageSize() int

	// ShowError surfaces an inbound OTR error notice's text to the
	// user, per §6.1/§7.
	ShowError(text string)

	// ShowAlert surfaces an informational notice that is not an error,
	// per §6.1 — used when a peer's query offers only version 1, which
	// this engine recognizes but never opens a session for, per §9.
	ShowAlert(text string)

	// UnencryptedMessageReceived notifies the Host that plaintext
	// arrived outside of the Encrypted state worth surfacing, per
	// §4.6: a bare plaintext while the conversation expects
	// encryption, or a cleaned whitespace-tagged message delivered
	// while Encrypted or Finished.
	UnencryptedMessageReceived(text string)

	// UnreadableMessageReceived notifies the Host that an inbound data
	// message failed authentication or matched no known key cell, per
	// §4.4/§7.
	UnreadableMessageReceived()

	// GetReplyForUnreadableMessage supplies the human-readable text
	// this engine embeds in the ERROR frame it sends back after an
	// unreadable message, per §4.4 step 3.
	GetReplyForUnreadableMessage() string

	// GetFallbackMessage supplies the human-readable text appended to
	// an outgoing Query message, for clients that do not understand
	// OTR at all, per §6.1.
	GetFallbackMessage() string

	// FinishedSessionMessage notifies the Host that an outgoing send
	// was dropped because the conversation is Finished, per §4.5.
	FinishedSessionMessage()

	// RequireEncryptedMessage notifies the Host that an outgoing send
	// was held back (and an AKE started instead) because policy
	// requires encryption before anything may go out, per §4.5.
	RequireEncryptedMessage()

	// MessageFromAnotherInstance notifies the Host that an inbound v3
	// message was addressed to an instance tag other than this one and
	// was discarded, per §4.2 step 5/§7.
	MessageFromAnotherInstance()
}

// StatusListener receives conversation status change notifications.
// A Facade may register any number of listeners; each is called with
// the Facade's lock released, per §5.
type StatusListener interface {
	OnStatusChanged(instanceTag InstanceTag, status SessionStatus)
}

// SMPListener receives SMP progress notifications.
type SMPListener interface {
	// OnSMPRequested is called on the responder's side when the peer
	// starts an SMP exchange, carrying the optional question.
	OnSMPRequested(instanceTag InstanceTag, question string)

	// OnSMPComplete is called on both sides once an exchange finishes.
	OnSMPComplete(instanceTag InstanceTag, matched bool)
}

// MultiInstanceListener is notified when a master conversation
// discovers a new slave instance of its peer, per §4.9/§6.2.
type MultiInstanceListener interface {
	OnMultipleInstancesDetected(newInstance InstanceTag)
}

// OutgoingListener is notified when a master's selected outgoing
// instance changes, per §4.9/§6.2.
type OutgoingListener interface {
	OnOutgoingSessionChanged(instanceTag InstanceTag)
}
