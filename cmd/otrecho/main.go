// otrecho is a two-party OTR demo. It wires two SessionCores together
// over an in-memory loopback Host, running a full AKE, a plaintext
// round trip, and a Socialist Millionaires exchange, then prints the
// outcome of each step.
//
// Usage:
//
//	otrecho
//
// There are no flags; this is a fixed demonstration script, not a
// general-purpose client.
package main

import (
	"fmt"
	"log"

	"github.com/otrv3/otr/pkg/crypto"
	"github.com/otrv3/otr/pkg/otr"
)

// loopbackHost delivers every outgoing message straight to the other
// party's SessionCore, playing the role a real network transport
// would in a live client.
type loopbackHost struct {
	name     string
	longTerm *crypto.LongTermKeyPair
	peer     *otr.SessionCore
}

func (h *loopbackHost) InjectMessage(msg string) error {
	_, err := h.peer.Receive(msg)
	return err
}

func (h *loopbackHost) LongTermKeyPair() *crypto.LongTermKeyPair { return h.longTerm }
func (h *loopbackHost) IsFingerprintTrusted([32]byte) bool       { return false }
func (h *loopbackHost) MaxMessageSize() int                      { return 0 }

func (h *loopbackHost) ShowError(text string) {
	fmt.Printf("%s: peer reported an error: %s\n", h.name, text)
}

func (h *loopbackHost) ShowAlert(text string) {
	fmt.Printf("%s: alert: %s\n", h.name, text)
}

func (h *loopbackHost) GetFallbackMessage() string {
	return fmt.Sprintf("%s is trying to start an encrypted conversation, but your client does not support OTR.", h.name)
}

func (h *loopbackHost) UnencryptedMessageReceived(text string) {
	fmt.Printf("%s: received unencrypted: %s\n", h.name, text)
}

func (h *loopbackHost) UnreadableMessageReceived() {
	fmt.Printf("%s: received an unreadable message\n", h.name)
}

func (h *loopbackHost) GetReplyForUnreadableMessage() string {
	return "message could not be decrypted"
}

func (h *loopbackHost) FinishedSessionMessage() {
	fmt.Printf("%s: tried to send after the session finished\n", h.name)
}

func (h *loopbackHost) RequireEncryptedMessage() {
	fmt.Printf("%s: held back a message pending encryption\n", h.name)
}

func (h *loopbackHost) MessageFromAnotherInstance() {
	fmt.Printf("%s: dropped a message addressed to another instance\n", h.name)
}

// printingStatusListener logs every status transition a party's
// conversation goes through.
type printingStatusListener struct{ name string }

func (l printingStatusListener) OnStatusChanged(tag otr.InstanceTag, status otr.SessionStatus) {
	fmt.Printf("%s: status -> %s\n", l.name, status)
}

func main() {
	aliceKey, err := crypto.GenerateLongTermKeyPair()
	if err != nil {
		log.Fatalf("generating alice's key pair: %v", err)
	}
	bobKey, err := crypto.GenerateLongTermKeyPair()
	if err != nil {
		log.Fatalf("generating bob's key pair: %v", err)
	}

	aliceHost := &loopbackHost{name: "alice", longTerm: aliceKey}
	bobHost := &loopbackHost{name: "bob", longTerm: bobKey}

	alice := otr.NewSessionCore(aliceHost, otr.DefaultPolicy(), otr.InstanceTag(1))
	bob := otr.NewSessionCore(bobHost, otr.DefaultPolicy(), otr.InstanceTag(2))
	aliceHost.peer, bobHost.peer = bob, alice

	alice.AddStatusListener(printingStatusListener{name: "alice"})
	bob.AddStatusListener(printingStatusListener{name: "bob"})

	if err := alice.StartAKE(); err != nil {
		log.Fatalf("starting AKE: %v", err)
	}

	if fp, ok := alice.RemoteFingerprint(); ok {
		fmt.Printf("alice: bob's fingerprint is %x\n", fp)
	}

	if err := alice.Send("hey bob, it's alice"); err != nil {
		log.Fatalf("alice send: %v", err)
	}
	if err := bob.Send("hi alice, good to hear from you securely"); err != nil {
		log.Fatalf("bob send: %v", err)
	}

	bob.AddSMPListener(smpPrinter{name: "bob"})
	alice.AddSMPListener(smpPrinter{name: "alice"})

	secret := []byte("the answer is 42")
	if err := alice.StartSMP(secret, "what's the answer?"); err != nil {
		log.Fatalf("starting SMP: %v", err)
	}
	if err := bob.RespondSMP(secret); err != nil {
		log.Fatalf("responding to SMP: %v", err)
	}

	if err := alice.End(); err != nil {
		log.Fatalf("ending session: %v", err)
	}
}

type smpPrinter struct{ name string }

func (p smpPrinter) OnSMPRequested(tag otr.InstanceTag, question string) {
	fmt.Printf("%s: peer started SMP, question: %q\n", p.name, question)
}

func (p smpPrinter) OnSMPComplete(tag otr.InstanceTag, matched bool) {
	fmt.Printf("%s: SMP complete, matched=%v\n", p.name, matched)
}
