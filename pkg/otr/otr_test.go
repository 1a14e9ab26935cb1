package otr

import (
	"strings"
	"testing"

	"github.com/otrv3/otr/pkg/crypto"
	"github.com/otrv3/otr/pkg/wire"
)

// fakeHost is an in-memory Host that delivers InjectMessage calls
// straight into its peer's Receive, the same way the teacher's own
// package tests wire two contexts directly together rather than
// through a real transport.
type fakeHost struct {
	t        *testing.T
	longTerm *crypto.LongTermKeyPair
	peer     *SessionCore
	maxSize  int

	received            []string
	errorsShown         []string
	alertsShown         []string
	unencrypted         []string
	unreadableCount     int
	finishedCount       int
	requireEncCount     int
	fromAnotherInstance int
	lastInjected        string
}

func (h *fakeHost) InjectMessage(msg string) error {
	h.lastInjected = msg
	if h.peer == nil {
		return nil
	}
	text, err := h.peer.Receive(msg)
	if err != nil {
		return err
	}
	if text != "" {
		h.received = append(h.received, text)
	}
	return nil
}

func (h *fakeHost) LongTermKeyPair() *crypto.LongTermKeyPair { return h.longTerm }
func (h *fakeHost) IsFingerprintTrusted([32]byte) bool       { return true }
func (h *fakeHost) MaxMessageSize() int                      { return h.maxSize }
func (h *fakeHost) ShowError(text string)                    { h.errorsShown = append(h.errorsShown, text) }
func (h *fakeHost) ShowAlert(text string)                    { h.alertsShown = append(h.alertsShown, text) }
func (h *fakeHost) GetFallbackMessage() string               { return "" }
func (h *fakeHost) UnencryptedMessageReceived(text string) {
	h.unencrypted = append(h.unencrypted, text)
}
func (h *fakeHost) UnreadableMessageReceived()         { h.unreadableCount++ }
func (h *fakeHost) GetReplyForUnreadableMessage() string { return "message unreadable" }
func (h *fakeHost) FinishedSessionMessage()              { h.finishedCount++ }
func (h *fakeHost) RequireEncryptedMessage()             { h.requireEncCount++ }
func (h *fakeHost) MessageFromAnotherInstance()          { h.fromAnotherInstance++ }

// newPeerPair builds two SessionCores wired directly to each other
// through fakeHosts, each with its own instance tag.
func newPeerPair(t *testing.T, policy Policy) (aliceHost, bobHost *fakeHost, alice, bob *SessionCore) {
	t.Helper()

	aliceKey, err := crypto.GenerateLongTermKeyPair()
	if err != nil {
		t.Fatalf("GenerateLongTermKeyPair (alice): %v", err)
	}
	bobKey, err := crypto.GenerateLongTermKeyPair()
	if err != nil {
		t.Fatalf("GenerateLongTermKeyPair (bob): %v", err)
	}

	aliceHost = &fakeHost{t: t, longTerm: aliceKey}
	bobHost = &fakeHost{t: t, longTerm: bobKey}

	alice = NewSessionCore(aliceHost, policy, InstanceTag(0x100))
	bob = NewSessionCore(bobHost, policy, InstanceTag(0x200))

	aliceHost.peer = bob
	bobHost.peer = alice
	return
}

func TestCleanV3AKEAndRoundTrip(t *testing.T) {
	aliceHost, bobHost, alice, bob := newPeerPair(t, DefaultPolicy())

	if err := alice.StartAKE(); err != nil {
		t.Fatalf("StartAKE: %v", err)
	}
	if alice.Status() != StatusEncrypted {
		t.Fatalf("alice status = %v, want encrypted", alice.Status())
	}
	if bob.Status() != StatusEncrypted {
		t.Fatalf("bob status = %v, want encrypted", bob.Status())
	}

	aliceFP, ok := alice.RemoteFingerprint()
	if !ok {
		t.Fatal("alice has no remote fingerprint after AKE")
	}
	if aliceFP != crypto.Fingerprint(bobHost.longTerm.Public) {
		t.Fatal("alice's view of bob's fingerprint is wrong")
	}

	if err := alice.Send("hello bob"); err != nil {
		t.Fatalf("alice.Send: %v", err)
	}
	if len(bobHost.received) != 1 || bobHost.received[0] != "hello bob" {
		t.Fatalf("bob received %v, want one message \"hello bob\"", bobHost.received)
	}

	if err := bob.Send("hi alice"); err != nil {
		t.Fatalf("bob.Send: %v", err)
	}
	if len(aliceHost.received) != 1 || aliceHost.received[0] != "hi alice" {
		t.Fatalf("alice received %v, want one message \"hi alice\"", aliceHost.received)
	}
}

func TestFragmentationRoundTrip(t *testing.T) {
	policy := DefaultPolicy()
	policy.MaxFragmentSize = 70
	aliceHost, bobHost, alice, bob := newPeerPair(t, policy)
	_ = bob

	if err := alice.StartAKE(); err != nil {
		t.Fatalf("StartAKE: %v", err)
	}
	if alice.Status() != StatusEncrypted || bob.Status() != StatusEncrypted {
		t.Fatalf("AKE did not complete under fragmentation: alice=%v bob=%v", alice.Status(), bob.Status())
	}

	long := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 40)
	if err := alice.Send(long); err != nil {
		t.Fatalf("alice.Send: %v", err)
	}
	if len(bobHost.received) != 1 || bobHost.received[0] != long {
		t.Fatalf("bob did not reassemble the fragmented message correctly")
	}
	_ = aliceHost
}

func TestMACReplayRejected(t *testing.T) {
	aliceHost, bobHost, alice, bob := newPeerPair(t, DefaultPolicy())
	_ = bob

	if err := alice.StartAKE(); err != nil {
		t.Fatalf("StartAKE: %v", err)
	}

	if err := alice.Send("secret"); err != nil {
		t.Fatalf("alice.Send: %v", err)
	}
	if len(bobHost.received) != 1 {
		t.Fatalf("bob did not receive the first message")
	}

	replayed := aliceHost.lastInjected
	if replayed == "" {
		t.Fatal("no wire message captured to replay")
	}

	if _, err := bob.Receive(replayed); err != nil {
		t.Fatalf("Receive on replay returned an error instead of being handled as unreadable: %v", err)
	}
	if bobHost.unreadableCount != 1 {
		t.Fatalf("bob.UnreadableMessageReceived called %d times, want 1", bobHost.unreadableCount)
	}
	if len(aliceHost.errorsShown) != 1 {
		t.Fatalf("alice did not receive the OTR error frame bob sent back: %v", aliceHost.errorsShown)
	}
}

func TestDisconnectTLV(t *testing.T) {
	_, aliceHostAndBobHost, alice, bob := newPeerPair(t, DefaultPolicy())
	_ = aliceHostAndBobHost

	if err := alice.StartAKE(); err != nil {
		t.Fatalf("StartAKE: %v", err)
	}

	if err := bob.End(); err != nil {
		t.Fatalf("bob.End: %v", err)
	}
	if bob.Status() != StatusPlaintext {
		t.Fatalf("bob status after End = %v, want plaintext", bob.Status())
	}
	if alice.Status() != StatusFinished {
		t.Fatalf("alice status after receiving disconnect = %v, want finished", alice.Status())
	}

	aliceHost := alice.host.(*fakeHost)
	if err := alice.Send("are you there?"); err != nil {
		t.Fatalf("alice.Send: %v", err)
	}
	if aliceHost.finishedCount != 1 {
		t.Fatalf("alice.FinishedSessionMessage called %d times, want 1", aliceHost.finishedCount)
	}
}

// routingHost is a fakeHost for a party fielding more than one peer
// instance at once (alice, talking to two of bob's devices): outgoing
// messages are dispatched by the wire envelope's receiver instance
// tag rather than to one fixed peer, since a master SessionCore and
// each of its slaves all share this one Host.
type routingHost struct {
	fakeHost
	byReceiverTag map[InstanceTag]*SessionCore
}

func (h *routingHost) InjectMessage(msg string) error {
	h.lastInjected = msg
	if data, err := wire.UnwrapEnvelope(msg); err == nil {
		if header, _, err := wire.DecodeHeader(data); err == nil {
			if target, ok := h.byReceiverTag[InstanceTag(header.ReceiverInstanceTag)]; ok {
				text, err := target.Receive(msg)
				if err != nil {
					return err
				}
				if text != "" {
					h.received = append(h.received, text)
				}
				return nil
			}
		}
	}
	return h.fakeHost.InjectMessage(msg)
}

func TestInstanceSplitCreatesSlave(t *testing.T) {
	policy := DefaultPolicy()

	aliceKey, err := crypto.GenerateLongTermKeyPair()
	if err != nil {
		t.Fatalf("GenerateLongTermKeyPair (alice): %v", err)
	}
	bob1Key, err := crypto.GenerateLongTermKeyPair()
	if err != nil {
		t.Fatalf("GenerateLongTermKeyPair (bob1): %v", err)
	}
	bob2Key, err := crypto.GenerateLongTermKeyPair()
	if err != nil {
		t.Fatalf("GenerateLongTermKeyPair (bob2): %v", err)
	}

	aliceHost := &routingHost{fakeHost: fakeHost{t: t, longTerm: aliceKey}, byReceiverTag: map[InstanceTag]*SessionCore{}}
	alice := NewSessionCore(aliceHost, policy, InstanceTag(0x100))

	bob1Host := &fakeHost{t: t, longTerm: bob1Key, peer: alice}
	bob1 := NewSessionCore(bob1Host, policy, InstanceTag(0x200))
	aliceHost.byReceiverTag[InstanceTag(0x200)] = bob1
	// Receiver tag 0 means "no specific instance known yet"; route it
	// to bob1 as the default first conversation partner.
	aliceHost.fakeHost.peer = bob1

	if err := alice.StartAKE(); err != nil {
		t.Fatalf("StartAKE (bob1): %v", err)
	}
	if alice.Status() != StatusEncrypted || bob1.Status() != StatusEncrypted {
		t.Fatal("first AKE did not complete")
	}
	if alice.PeerInstanceTag() != 0x200 {
		t.Fatalf("alice.PeerInstanceTag() = %v, want 0x200", alice.PeerInstanceTag())
	}

	// bob2 is a second client instance of the same peer, addressed at
	// alice's own instance tag. Since alice's peerInstanceTag is
	// already pinned to bob1 (0x200), bob2's AKE (0x201) must land on
	// a freshly created slave rather than alice's bob1-bound core.
	bob2Host := &fakeHost{t: t, longTerm: bob2Key, peer: alice}
	bob2 := NewSessionCore(bob2Host, policy, InstanceTag(0x201))
	aliceHost.byReceiverTag[InstanceTag(0x201)] = bob2

	var discovered []InstanceTag
	alice.AddMultiInstanceListener(multiListenerFunc(func(tag InstanceTag) {
		discovered = append(discovered, tag)
	}))

	if err := bob2.StartAKE(); err != nil {
		t.Fatalf("bob2.StartAKE: %v", err)
	}

	instances := alice.GetInstances()
	if len(instances) != 2 {
		t.Fatalf("alice.GetInstances() has %d entries, want 2 (master + one slave)", len(instances))
	}
	if len(discovered) != 1 || discovered[0] != InstanceTag(0x201) {
		t.Fatalf("multi-instance listener saw %v, want exactly [0x201]", discovered)
	}

	var slave *SessionCore
	for _, inst := range instances {
		if inst.PeerInstanceTag() == InstanceTag(0x201) {
			slave = inst
		}
	}
	if slave == nil {
		t.Fatal("no slave bound to bob2's instance tag")
	}
	if slave.Status() != StatusEncrypted || bob2.Status() != StatusEncrypted {
		t.Fatalf("slave AKE did not complete: slave=%v bob2=%v", slave.Status(), bob2.Status())
	}
}

type multiListenerFunc func(InstanceTag)

func (f multiListenerFunc) OnMultipleInstancesDetected(tag InstanceTag) { f(tag) }

func TestSMPSuccess(t *testing.T) {
	_, _, alice, bob := newPeerPair(t, DefaultPolicy())

	if err := alice.StartAKE(); err != nil {
		t.Fatalf("StartAKE: %v", err)
	}

	var bobQuestion string
	var aliceMatched, bobMatched *bool
	alice.AddSMPListener(smpListenerFuncs{
		complete: func(tag InstanceTag, matched bool) { aliceMatched = &matched },
	})
	bob.AddSMPListener(smpListenerFuncs{
		requested: func(tag InstanceTag, question string) { bobQuestion = question },
		complete:  func(tag InstanceTag, matched bool) { bobMatched = &matched },
	})

	secret := []byte("shared secret")
	if err := alice.StartSMP(secret, "what's our secret?"); err != nil {
		t.Fatalf("alice.StartSMP: %v", err)
	}
	if bobQuestion != "what's our secret?" {
		t.Fatalf("bob's question = %q, want the question alice set", bobQuestion)
	}
	if !alice.IsSMPInProgress() {
		t.Fatal("alice.IsSMPInProgress() = false, want true while SMP is underway")
	}

	if err := bob.RespondSMP(secret); err != nil {
		t.Fatalf("bob.RespondSMP: %v", err)
	}

	if aliceMatched == nil || !*aliceMatched {
		t.Fatal("alice never learned SMP matched")
	}
	if bobMatched == nil || !*bobMatched {
		t.Fatal("bob never learned SMP matched")
	}
	if alice.IsSMPInProgress() || bob.IsSMPInProgress() {
		t.Fatal("SMP should no longer be in progress after completion")
	}
}

type smpListenerFuncs struct {
	requested func(tag InstanceTag, question string)
	complete  func(tag InstanceTag, matched bool)
}

func (f smpListenerFuncs) OnSMPRequested(tag InstanceTag, question string) {
	if f.requested != nil {
		f.requested(tag, question)
	}
}

func (f smpListenerFuncs) OnSMPComplete(tag InstanceTag, matched bool) {
	if f.complete != nil {
		f.complete(tag, matched)
	}
}
