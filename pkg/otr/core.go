// SessionCore is the state machine for one conversation with one peer
// instance, implementing transformReceiving/transformSending from
// §4.2/§4.5 and the query, data-message, and SMP dispatch from
// §4.4/§4.6/§4.8. Its locking discipline follows the teacher's
// SecureContext in pkg/session/secure.go: a single mutex guards all
// fields, and every Host notification, every InjectMessage, and every
// listener call happens after the lock is released, per §5. The one
// Host call made while the lock is held is the LongTermKeyPair
// accessor, read when a new AuthContext is built.

package otr

import (
	"bytes"
	"log"
	"sync"

	"github.com/otrv3/otr/pkg/ake"
	"github.com/otrv3/otr/pkg/crypto"
	"github.com/otrv3/otr/pkg/fragment"
	"github.com/otrv3/otr/pkg/keys"
	"github.com/otrv3/otr/pkg/smp"
	"github.com/otrv3/otr/pkg/wire"
)

// SessionCore drives one OTR conversation end to end.
type SessionCore struct {
	mu sync.Mutex

	host   Host
	policy Policy

	status            SessionStatus
	offerStatus       OfferStatus
	senderInstanceTag InstanceTag
	peerInstanceTag   InstanceTag

	role InstanceRole

	// router is non-nil only on a master; it owns the slave table
	// keyed by peer instance tag, per §3.2/§4.9.
	router *InstanceRouter

	// outgoingSlave, set only on a master, is the slave that currently
	// receives delegated Send/StartSession/End/SMP calls, per §4.9.
	outgoingSlave *SessionCore

	authCtx   *ake.AuthContext
	keyMatrix *keys.KeyMatrix
	smpEngine *smp.SmpEngine

	assembler *fragment.Assembler

	statusListeners   []StatusListener
	smpListeners      []SMPListener
	multiListeners    []MultiInstanceListener
	outgoingListeners []OutgoingListener
}

// NewSessionCore creates a fresh, unauthenticated session for one peer
// instance tag (InstanceTagMaster until a peer tag is learned).
func NewSessionCore(host Host, policy Policy, senderInstanceTag InstanceTag) *SessionCore {
	return &SessionCore{
		host:              host,
		policy:            policy,
		status:            StatusPlaintext,
		senderInstanceTag: senderInstanceTag,
		role:              RoleMaster,
		router:            newInstanceRouter(),
		assembler:         fragment.NewAssembler(maxInt(policy.MaxPendingFragments, 1)),
		smpEngine:         smp.NewSmpEngine(),
	}
}

// newSlave builds a slave SessionCore bound to a specific peer instance
// tag, sharing this master's host and policy, per §3.2. Its status
// events are re-emitted on the master's own listener set, per §9's
// "back-reference from slave to master" design note: a forwarding
// StatusListener, not an ownership pointer back to the master.
func (c *SessionCore) newSlave(peerTag InstanceTag) *SessionCore {
	c.mu.Lock()
	host := c.host
	policy := c.policy
	senderTag := c.senderInstanceTag
	c.mu.Unlock()

	slave := NewSessionCore(host, policy, senderTag)
	slave.role = RoleSlave
	slave.router = nil
	slave.peerInstanceTag = peerTag
	slave.statusListeners = append(slave.statusListeners, slaveStatusForwarder{master: c})
	return slave
}

// slaveStatusForwarder re-publishes a slave's status events on its
// master's listener set without the slave holding any reference back
// to the master beyond this one-way edge.
type slaveStatusForwarder struct {
	master *SessionCore
}

func (f slaveStatusForwarder) OnStatusChanged(instanceTag InstanceTag, status SessionStatus) {
	f.master.mu.Lock()
	listeners := append([]StatusListener(nil), f.master.statusListeners...)
	f.master.mu.Unlock()
	for _, l := range listeners {
		l.OnStatusChanged(instanceTag, status)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Status returns the current conversation status.
func (c *SessionCore) Status() SessionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// PeerInstanceTag returns the peer instance tag this core is bound to,
// InstanceTagMaster if none has been learned yet.
func (c *SessionCore) PeerInstanceTag() InstanceTag {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerInstanceTag
}

// Policy returns this instance's current policy, per §6.2's
// getSessionPolicy accessor.
func (c *SessionCore) Policy() Policy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policy
}

// AddStatusListener registers a listener for status changes.
func (c *SessionCore) AddStatusListener(l StatusListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusListeners = append(c.statusListeners, l)
}

// AddSMPListener registers a listener for SMP progress.
func (c *SessionCore) AddSMPListener(l SMPListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.smpListeners = append(c.smpListeners, l)
}

func (c *SessionCore) setStatus(s SessionStatus) {
	c.mu.Lock()
	if c.status == s {
		c.mu.Unlock()
		return
	}
	c.status = s
	listeners := append([]StatusListener(nil), c.statusListeners...)
	tag := c.peerInstanceTag
	c.mu.Unlock()

	for _, l := range listeners {
		l.OnStatusChanged(tag, s)
	}
}

func (c *SessionCore) notifySMPRequested(question string) {
	c.mu.Lock()
	listeners := append([]SMPListener(nil), c.smpListeners...)
	tag := c.peerInstanceTag
	c.mu.Unlock()
	for _, l := range listeners {
		l.OnSMPRequested(tag, question)
	}
}

func (c *SessionCore) notifySMPComplete(matched bool) {
	c.mu.Lock()
	listeners := append([]SMPListener(nil), c.smpListeners...)
	tag := c.peerInstanceTag
	c.mu.Unlock()
	for _, l := range listeners {
		l.OnSMPComplete(tag, matched)
	}
}

// AddMultiInstanceListener registers a listener for newly discovered
// peer instances. Meaningful only on a master.
func (c *SessionCore) AddMultiInstanceListener(l MultiInstanceListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.multiListeners = append(c.multiListeners, l)
}

// AddOutgoingListener registers a listener for outgoing-instance
// selection changes. Meaningful only on a master.
func (c *SessionCore) AddOutgoingListener(l OutgoingListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outgoingListeners = append(c.outgoingListeners, l)
}

func (c *SessionCore) notifyMultipleInstancesDetected(tag InstanceTag) {
	c.mu.Lock()
	listeners := append([]MultiInstanceListener(nil), c.multiListeners...)
	c.mu.Unlock()
	for _, l := range listeners {
		l.OnMultipleInstancesDetected(tag)
	}
}

func (c *SessionCore) notifyOutgoingChanged(tag InstanceTag) {
	c.mu.Lock()
	listeners := append([]OutgoingListener(nil), c.outgoingListeners...)
	c.mu.Unlock()
	for _, l := range listeners {
		l.OnOutgoingSessionChanged(tag)
	}
}

// target resolves which SessionCore a delegating public operation
// actually runs against: a master with a selected outgoing slave
// delegates to that slave; everything else (a plain master with no
// multi-instance peer, or a slave itself) runs against itself, per
// §4.5/§4.8/§4.9's invariant that delegating operations affect only
// the selected slave.
func (c *SessionCore) target() *SessionCore {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.role == RoleMaster && c.outgoingSlave != nil {
		return c.outgoingSlave
	}
	return c
}

// resolveInstance returns the slave bound to tag, falling back to c
// itself if tag is InstanceTagMaster, unrecognized, or c is not a
// master, per §4.9's getSessionStatus/getRemotePublicKey/respondSmp
// lookup-by-tag rule.
func (c *SessionCore) resolveInstance(tag InstanceTag) *SessionCore {
	c.mu.Lock()
	router := c.router
	c.mu.Unlock()
	if router == nil || tag == InstanceTagMaster {
		return c
	}
	if slave, ok := router.get(tag); ok {
		return slave
	}
	return c
}

// SetOutgoingInstance selects which instance a master's delegating
// calls run against. Selecting the master's own pinned tag deselects
// any slave. Calling this on a slave, or with a tag matching neither
// the master nor a known slave, is ignored, per §4.9/§7's "programmer
// errors...silently ignored" rule.
func (c *SessionCore) SetOutgoingInstance(tag InstanceTag) bool {
	c.mu.Lock()
	if c.role != RoleMaster {
		c.mu.Unlock()
		return false
	}
	if tag == c.peerInstanceTag {
		c.outgoingSlave = nil
		c.mu.Unlock()
		c.notifyOutgoingChanged(tag)
		return true
	}
	router := c.router
	c.mu.Unlock()

	slave, ok := router.get(tag)
	if !ok {
		return false
	}
	c.mu.Lock()
	c.outgoingSlave = slave
	c.mu.Unlock()
	c.notifyOutgoingChanged(tag)
	return true
}

// GetOutgoingInstance returns whichever SessionCore currently handles
// delegating calls: the selected slave, or this instance itself.
func (c *SessionCore) GetOutgoingInstance() *SessionCore {
	return c.target()
}

// GetInstances returns this instance and, if it is a master, every
// slave discovered so far.
func (c *SessionCore) GetInstances() []*SessionCore {
	c.mu.Lock()
	router := c.router
	c.mu.Unlock()
	if router == nil {
		return []*SessionCore{c}
	}
	return append([]*SessionCore{c}, router.all()...)
}

// GetSessionStatus returns the status of the instance bound to tag, or
// this instance's own status if tag names no known slave, per §4.9.
func (c *SessionCore) GetSessionStatus(tag InstanceTag) SessionStatus {
	return c.resolveInstance(tag).Status()
}

// GetRemotePublicKey returns the long-term key fingerprint of the
// instance bound to tag, or this instance's own, per §4.9.
func (c *SessionCore) GetRemotePublicKey(tag InstanceTag) ([32]byte, bool) {
	return c.resolveInstance(tag).RemoteFingerprint()
}

// transmitEncoded wraps an encoded protocol message in its envelope,
// fragments it if needed, and hands every piece to the Host. This is
// the engine's only path to the network.
func (c *SessionCore) transmitEncoded(encoded []byte) error {
	c.mu.Lock()
	maxFrag := c.policy.MaxFragmentSize
	sender := uint32(c.senderInstanceTag)
	receiver := uint32(c.peerInstanceTag)
	host := c.host
	c.mu.Unlock()

	// The host's live transport MTU, when it reports one, replaces the
	// policy's static fragment-size bound if the policy sets none or a
	// larger one: the smaller of the two wins, per §4.7's
	// "host-specified MTU".
	if hostMax := host.MaxMessageSize(); hostMax > 0 && (maxFrag == 0 || hostMax < maxFrag) {
		maxFrag = hostMax
	}

	wrapped := wire.WrapEnvelope(encoded)
	for _, piece := range fragment.Split(wrapped, maxFrag, sender, receiver) {
		if err := host.InjectMessage(piece); err != nil {
			return err
		}
	}
	return nil
}

// StartSession instructs this conversation to begin an AKE if it is
// not already Encrypted, per §4.1: a no-op in Encrypted, and otherwise
// gated by whether policy allows any negotiable version. A master with
// a selected outgoing slave delegates to that slave, per §8's
// delegation invariant.
func (c *SessionCore) StartSession() error {
	t := c.target()
	t.mu.Lock()
	status := t.status
	allowed := t.policy.AllowV3
	t.mu.Unlock()
	if status == StatusEncrypted || !allowed {
		return nil
	}
	return t.StartAKE()
}

// RefreshSession is startSession composed after endSession, per §4.1:
// it always returns the conversation to Plaintext first (sending a
// disconnect TLV if it was Encrypted) and then starts a fresh AKE, so
// no key material from before the refresh survives into the new
// session.
func (c *SessionCore) RefreshSession() error {
	t := c.target()
	if err := t.endSelf(); err != nil {
		return err
	}
	return t.StartSession()
}

// StartAKE begins a fresh authenticated key exchange as the initiator.
func (c *SessionCore) StartAKE() error {
	c.mu.Lock()
	ctx := ake.NewAuthContext(ake.RoleInitiator, c.host.LongTermKeyPair(), wire.VersionThree,
		uint32(c.senderInstanceTag), uint32(c.peerInstanceTag))
	c.authCtx = ctx
	c.mu.Unlock()

	commit, err := ctx.StartInitiator()
	if err != nil {
		return err
	}
	return c.transmitEncoded(commit.Encode())
}

// Send encrypts and transmits a plaintext application message, or
// transmits it unencrypted if no session is established and policy
// permits that. A master with a selected outgoing slave delegates to
// that slave, per §4.5/§8.
func (c *SessionCore) Send(plaintext string) error {
	return c.target().sendWithTLVs(plaintext, nil)
}

func (c *SessionCore) sendWithTLVs(plaintext string, tlvs []wire.TLV) error {
	c.mu.Lock()
	status := c.status
	requireEncryption := c.policy.RequireEncryption
	host := c.host
	c.mu.Unlock()

	if status == StatusFinished {
		host.FinishedSessionMessage()
		return nil
	}

	if status != StatusEncrypted {
		if requireEncryption {
			host.RequireEncryptedMessage()
			return c.StartAKE()
		}
		if tlvs != nil {
			return ErrNotEncrypted
		}
		body := plaintext
		c.mu.Lock()
		tagVersions := c.policy.SendWhitespaceTag
		offered := c.offerStatus != OfferRejected
		c.mu.Unlock()
		if tagVersions && offered {
			body = wire.BuildWhitespaceTag(body, []int{wire.VersionThree})
			c.mu.Lock()
			c.offerStatus = OfferSent
			c.mu.Unlock()
		}
		return host.InjectMessage(body)
	}

	c.mu.Lock()
	matrix := c.keyMatrix
	// The encryption cell is (Previous, Current), per §4.3: the older
	// local key id, already advertised to and usable by the peer, and
	// the newest remote key id. CurrentLocalKeyID is one step ahead of
	// that — it names the local pair AcceptRemotePublic just generated,
	// whose public half this message is only now advertising via
	// NextDHPublicKeyBytes, so the peer cannot derive that cell yet.
	localKeyID := matrix.EncryptionLocalKeyID()
	remoteKeyID := matrix.HighestRemoteKeyID()
	senderTag := uint32(c.senderInstanceTag)
	receiverTag := uint32(c.peerInstanceTag)
	c.mu.Unlock()

	cell, err := matrix.Cell(localKeyID, remoteKeyID)
	if err != nil {
		return err
	}
	counter, err := cell.NextSendCounter()
	if err != nil {
		return err
	}

	body := []byte(plaintext)
	if tlvs != nil {
		body = append(body, 0)
		body = append(body, wire.EncodeTLVs(tlvs)...)
	}

	aesCipher, err := crypto.NewAESCTR(cell.SendAESKey[:])
	if err != nil {
		return err
	}
	ciphertext, err := aesCipher.Encrypt(crypto.TopHalfCounter(counter), body)
	if err != nil {
		return err
	}

	revealed := matrix.RevealOldMACKeys()
	var oldKeys []byte
	for _, k := range revealed {
		oldKeys = append(oldKeys, k...)
	}

	msg := &wire.DataMessage{
		Header:               wire.Header{Version: wire.VersionThree, MessageType: wire.TypeDataMessage, SenderInstanceTag: senderTag, ReceiverInstanceTag: receiverTag},
		Flags:                0,
		SenderKeyID:          localKeyID,
		ReceiverKeyID:        remoteKeyID,
		NextDHPublicKeyBytes: wire.EncodeMPI(matrix.CurrentLocalPublic()),
		TopHalfCounter:       counter,
		EncryptedMessage:     ciphertext,
		OldMACKeys:           oldKeys,
	}
	mac := crypto.HMACSHA1(cell.SendMACKey[:], msg.AuthenticatedPrefix())
	msg.MAC = mac

	return c.transmitEncoded(msg.Encode())
}

// Receive feeds one raw incoming network message through the receive
// pipeline, per §4.2. It returns decrypted application text for a data
// message carrying a human-readable payload, and an empty string for
// every message the engine consumes internally (fragments, AKE
// messages, SMP TLVs with no accompanying text).
func (c *SessionCore) Receive(raw string) (string, error) {
	c.mu.Lock()
	allowed := c.policy.AllowV3
	host := c.host
	c.mu.Unlock()
	if !allowed {
		return raw, nil
	}

	switch wire.Classify(raw) {
	case wire.KindFragment:
		return c.receiveFragment(raw)
	case wire.KindError:
		host.ShowError(wire.ParseErrorMessage(raw))
		c.mu.Lock()
		errorStartAKE := c.policy.ErrorStartAKE
		c.mu.Unlock()
		if errorStartAKE {
			return "", c.sendQueryOffer()
		}
		return "", nil
	case wire.KindQuery:
		return "", c.receiveQuery(raw)
	case wire.KindEncoded:
		c.setOfferAccepted()
		return c.receiveEncoded(raw)
	default:
		return c.receivePlaintext(raw)
	}
}

// setOfferAccepted records that the peer has responded to this side's
// offer of OTR with something other than plaintext, per §4.2 step 4.
func (c *SessionCore) setOfferAccepted() {
	c.mu.Lock()
	c.offerStatus = OfferAccepted
	c.mu.Unlock()
}

// sendQueryOffer emits a Query message listing every version this
// policy allows, followed by the Host's fallback text if it supplies
// any. It is used for errorStartAKE (§4.2); a whitespace-tagged
// plaintext starts an AKE directly instead (see receivePlaintext).
func (c *SessionCore) sendQueryOffer() error {
	c.mu.Lock()
	allowV3 := c.policy.AllowV3
	host := c.host
	c.mu.Unlock()
	if !allowV3 {
		return nil
	}
	query := wire.BuildQueryMessage([]int{wire.VersionThree})
	if fallback := host.GetFallbackMessage(); fallback != "" {
		query = query + " " + fallback
	}
	return host.InjectMessage(query)
}

func (c *SessionCore) receiveFragment(raw string) (string, error) {
	piece, err := fragment.Parse(raw)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	ourTag := uint32(c.senderInstanceTag)
	assembler := c.assembler
	host := c.host
	c.mu.Unlock()

	if piece.ReceiverInstanceTag != 0 && piece.ReceiverInstanceTag != ourTag {
		host.MessageFromAnotherInstance()
		return "", nil
	}

	msg, ready, err := assembler.Accept(piece)
	if err != nil {
		return "", err
	}
	if !ready {
		return "", nil
	}
	return c.Receive(msg)
}

// receiveQuery answers a peer's Query message by starting an AKE at
// the highest mutually enabled version, per §4.6. A master resets
// every slave's AuthContext and then clones its own fresh one into
// each, per §9's second AKE-cloning call site, so an in-flight
// instance can adopt whichever handshake the master just began.
func (c *SessionCore) receiveQuery(raw string) error {
	versions, sawV1 := wire.ParseQueryVersions(raw)
	c.mu.Lock()
	allowV3 := c.policy.AllowV3
	host := c.host
	c.mu.Unlock()
	if sawV1 {
		log.Printf("otr: peer offered version 1, ignoring")
		if !containsVersion(versions, wire.VersionThree) {
			host.ShowAlert("the peer only offered OTR version 1, which is not supported")
		}
	}
	if !allowV3 || !containsVersion(versions, wire.VersionThree) {
		return nil
	}
	c.setOfferAccepted()
	if err := c.StartAKE(); err != nil {
		return err
	}

	c.mu.Lock()
	router := c.router
	ctx := c.authCtx
	c.mu.Unlock()
	if router != nil && ctx != nil {
		for _, slave := range router.all() {
			slave.mu.Lock()
			slave.authCtx = ctx.Clone()
			slave.mu.Unlock()
		}
	}
	return nil
}

// receivePlaintext handles an inbound message with no OTR envelope,
// per §4.6: a whitespace-tagged offer may trigger an AKE and is always
// stripped before delivery; a bare or whitespace-tagged message
// arriving while the conversation is Encrypted or Finished is reported
// to the Host as unexpectedly unencrypted.
func (c *SessionCore) receivePlaintext(raw string) (string, error) {
	versions, _ := wire.ParseQueryVersions(raw)
	tagged := len(versions) > 0
	cleaned := raw
	if tagged {
		cleaned = wire.StripWhitespaceTag(raw)
	}

	c.mu.Lock()
	status := c.status
	whitespaceStartAKE := c.policy.WhitespaceStartAKE
	requireEncryption := c.policy.RequireEncryption
	if c.offerStatus == OfferSent {
		c.offerStatus = OfferRejected
	}
	host := c.host
	c.mu.Unlock()

	if tagged && whitespaceStartAKE {
		if err := c.StartAKE(); err != nil {
			return cleaned, err
		}
	}

	if status == StatusEncrypted || status == StatusFinished {
		host.UnencryptedMessageReceived(cleaned)
	} else if !tagged && requireEncryption {
		host.UnencryptedMessageReceived(cleaned)
	}

	return cleaned, nil
}

func containsVersion(versions []int, v int) bool {
	for _, x := range versions {
		if x == v {
			return true
		}
	}
	return false
}

func (c *SessionCore) receiveEncoded(raw string) (string, error) {
	data, err := wire.UnwrapEnvelope(raw)
	if err != nil {
		return "", err
	}
	header, n, err := wire.DecodeHeader(data)
	if err != nil {
		return "", err
	}
	if header.Version != wire.VersionThree {
		return "", ErrV1Unsupported
	}

	c.mu.Lock()
	isMaster := c.role == RoleMaster
	c.mu.Unlock()
	if isMaster {
		slave, discard := c.routeInstance(header)
		if discard {
			return "", nil
		}
		if slave != nil {
			return slave.receiveEncoded(raw)
		}
	}

	body := data[n:]

	switch header.MessageType {
	case wire.TypeDHCommit:
		return "", c.handleDHCommit(header, body)
	case wire.TypeDHKey:
		return "", c.handleDHKey(header, body)
	case wire.TypeRevealSig:
		return "", c.handleRevealSig(header, body)
	case wire.TypeSignature:
		return "", c.handleSignature(header, body)
	case wire.TypeDataMessage:
		return c.handleDataMessage(header, body)
	default:
		return "", ErrUnexpectedMessage
	}
}

// routeInstance implements §4.2 step 5's master-only v3 instance
// routing. discard reports a message that must be dropped outright
// (misaddressed to a different sender instance tag); target is the
// slave the message should actually be dispatched to, nil meaning "handle
// here, on the master". The slave lookup and first-insertion happen
// under the router's own lock; the recursive dispatch into a newly
// created slave happens in the caller, outside any lock, per §5.
func (c *SessionCore) routeInstance(header wire.Header) (target *SessionCore, discard bool) {
	c.mu.Lock()
	ourSenderTag := uint32(c.senderInstanceTag)
	peerTag := c.peerInstanceTag
	router := c.router
	c.mu.Unlock()

	if header.ReceiverInstanceTag != ourSenderTag {
		dhCommitToZero := header.MessageType == wire.TypeDHCommit && header.ReceiverInstanceTag == 0
		if !dhCommitToZero {
			c.mu.Lock()
			host := c.host
			c.mu.Unlock()
			host.MessageFromAnotherInstance()
			return nil, true
		}
	}

	senderTag := InstanceTag(header.SenderInstanceTag)
	if senderTag != peerTag && peerTag != InstanceTagMaster {
		slave, created := router.getOrCreate(senderTag, func() *SessionCore {
			return c.newSlave(senderTag)
		})
		if created {
			if header.MessageType == wire.TypeDHKey {
				c.mu.Lock()
				masterCtx := c.authCtx
				c.mu.Unlock()
				if masterCtx != nil {
					slave.mu.Lock()
					slave.authCtx = masterCtx.Clone()
					slave.mu.Unlock()
				}
			}
			c.notifyMultipleInstancesDetected(senderTag)
		}
		return slave, false
	}
	return nil, false
}

func (c *SessionCore) handleDHCommit(header wire.Header, body []byte) error {
	msg, err := wire.DecodeDHCommitMessage(header, body)
	if err != nil {
		return err
	}

	c.mu.Lock()
	ctx := c.authCtx
	if ctx == nil {
		ctx = ake.NewAuthContext(ake.RoleResponder, c.host.LongTermKeyPair(), header.Version,
			uint32(c.senderInstanceTag), header.SenderInstanceTag)
		c.authCtx = ctx
	}
	c.mu.Unlock()

	dhKey, yielded, err := ctx.ReceiveDHCommit(msg)
	if err != nil {
		return err
	}
	if yielded {
		return nil
	}
	return c.transmitEncoded(dhKey.Encode())
}

func (c *SessionCore) handleDHKey(header wire.Header, body []byte) error {
	msg, err := wire.DecodeDHKeyMessage(header, body)
	if err != nil {
		return err
	}
	c.mu.Lock()
	ctx := c.authCtx
	c.mu.Unlock()
	if ctx == nil {
		return ErrUnexpectedMessage
	}
	ctx.AdoptPeerInstanceTag(header.SenderInstanceTag)
	reveal, err := ctx.ReceiveDHKey(msg)
	if err != nil {
		return err
	}
	return c.transmitEncoded(reveal.Encode())
}

func (c *SessionCore) handleRevealSig(header wire.Header, body []byte) error {
	msg, err := wire.DecodeRevealSignatureMessage(header, body)
	if err != nil {
		return err
	}
	c.mu.Lock()
	ctx := c.authCtx
	c.mu.Unlock()
	if ctx == nil {
		return ErrUnexpectedMessage
	}
	sigMsg, err := ctx.ReceiveRevealSignature(msg)
	if err != nil {
		return err
	}
	if err := c.transmitEncoded(sigMsg.Encode()); err != nil {
		return err
	}
	c.finishAKE(ctx, header)
	return nil
}

func (c *SessionCore) handleSignature(header wire.Header, body []byte) error {
	msg, err := wire.DecodeSignatureMessage(header, body)
	if err != nil {
		return err
	}
	c.mu.Lock()
	ctx := c.authCtx
	c.mu.Unlock()
	if ctx == nil {
		return ErrUnexpectedMessage
	}
	if err := ctx.ReceiveSignature(msg); err != nil {
		return err
	}
	c.finishAKE(ctx, header)
	return nil
}

func (c *SessionCore) finishAKE(ctx *ake.AuthContext, header wire.Header) {
	matrix := keys.NewKeyMatrix(ctx.LocalDHKeyPair())
	_ = matrix.AcceptRemotePublic(1, ctx.RemoteDHPublic())

	c.mu.Lock()
	c.keyMatrix = matrix
	c.smpEngine = smp.NewSmpEngine()
	if c.peerInstanceTag == InstanceTagMaster {
		c.peerInstanceTag = InstanceTag(header.SenderInstanceTag)
	}
	c.mu.Unlock()

	c.setStatus(StatusEncrypted)
}

// handleDataMessage implements §4.4. Any failure from the precondition
// check through MAC verification is treated identically, per §7: the
// message is unreadable, the Host is told, and an OTR ERROR frame
// carrying the Host's reply text goes back to the sender.
func (c *SessionCore) handleDataMessage(header wire.Header, body []byte) (string, error) {
	msg, err := wire.DecodeDataMessage(header, body)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	matrix := c.keyMatrix
	status := c.status
	c.mu.Unlock()
	if status != StatusEncrypted || matrix == nil {
		return "", c.rejectUnreadable()
	}

	cell, err := matrix.Cell(msg.ReceiverKeyID, msg.SenderKeyID)
	if err != nil {
		return "", c.rejectUnreadable()
	}
	if err := cell.CheckRecvCounter(msg.TopHalfCounter); err != nil {
		return "", c.rejectUnreadable()
	}

	expectedMAC := crypto.HMACSHA1(cell.RecvMACKey[:], msg.AuthenticatedPrefix())
	if !crypto.MACEqual(expectedMAC[:], msg.MAC[:]) {
		return "", c.rejectUnreadable()
	}

	aesCipher, err := crypto.NewAESCTR(cell.RecvAESKey[:])
	if err != nil {
		return "", err
	}
	plaintext, err := aesCipher.Decrypt(crypto.TopHalfCounter(msg.TopHalfCounter), msg.EncryptedMessage)
	if err != nil {
		return "", err
	}
	cell.AcceptRecvCounter(msg.TopHalfCounter)

	if len(msg.NextDHPublicKeyBytes) > 0 {
		if nextPub, _, err := wire.DecodeMPI(msg.NextDHPublicKeyBytes); err == nil {
			_ = matrix.AcceptRemotePublic(msg.SenderKeyID+1, nextPub)
		}
	}

	userText := string(plaintext)
	var tlvBytes []byte
	if idx := bytes.IndexByte(plaintext, 0); idx >= 0 {
		userText = string(plaintext[:idx])
		tlvBytes = plaintext[idx+1:]
	}
	if len(tlvBytes) > 0 {
		if c.handleTLVs(tlvBytes) {
			// A TLV (disconnect, or one SmpEngine claimed) swallowed
			// this message; no text surfaces to the application.
			return "", nil
		}
	}
	return userText, nil
}

// rejectUnreadable implements §4.4 step 3/§7: the message is marked
// unreadable, the Host is notified, and an ERROR frame carrying the
// Host's reply text is sent back.
func (c *SessionCore) rejectUnreadable() error {
	c.mu.Lock()
	host := c.host
	c.mu.Unlock()
	host.UnreadableMessageReceived()
	reply := host.GetReplyForUnreadableMessage()
	return host.InjectMessage(wire.BuildErrorMessage(reply))
}

// handleTLVs dispatches each TLV in an inbound data message's tail,
// per §4.4 step 8. It returns true if the message this TLV block
// belongs to must be swallowed (a disconnect, or a TLV the SmpEngine
// claimed) rather than surfaced as application text.
func (c *SessionCore) handleTLVs(tlvBytes []byte) bool {
	tlvs, err := wire.DecodeTLVs(tlvBytes)
	if err != nil {
		log.Printf("otr: malformed TLV block, dropping: %v", err)
		return false
	}

	c.mu.Lock()
	engine := c.smpEngine
	c.mu.Unlock()

	swallow := false
	for _, t := range tlvs {
		switch t.Type {
		case wire.TLVTypeDisconnected:
			c.setStatus(StatusFinished)
			swallow = true
		case wire.TLVTypeSMP1, wire.TLVTypeSMP1WithQuestion:
			question, err := engine.ReceiveSMP1(t)
			if err != nil {
				log.Printf("otr: bad SMP1 TLV: %v", err)
				continue
			}
			swallow = true
			c.notifySMPRequested(question)
		case wire.TLVTypeSMP2:
			reply, err := engine.ReceiveSMP2(t)
			if err != nil {
				log.Printf("otr: bad SMP2 TLV: %v", err)
				continue
			}
			swallow = true
			if err := c.sendWithTLVs("", []wire.TLV{reply}); err != nil {
				log.Printf("otr: failed to send SMP3: %v", err)
			}
			matched, _ := engine.Result()
			c.notifySMPComplete(matched)
		case wire.TLVTypeSMP3:
			if err := engine.ReceiveSMP3(t); err != nil {
				log.Printf("otr: bad SMP3 TLV: %v", err)
				continue
			}
			swallow = true
			matched, _ := engine.Result()
			c.notifySMPComplete(matched)
		case wire.TLVTypeSMPAbort:
			engine.ReceiveAbort()
			swallow = true
		}
	}
	return swallow
}

// StartSMP begins an SMP exchange proving knowledge of secret, with an
// optional question shown to the peer. Legal only in Encrypted, per
// §4.8. A master with a selected outgoing slave delegates to that
// slave.
func (c *SessionCore) StartSMP(secret []byte, question string) error {
	return c.target().startSMPSelf(secret, question)
}

func (c *SessionCore) startSMPSelf(secret []byte, question string) error {
	c.mu.Lock()
	status := c.status
	engine := c.smpEngine
	c.mu.Unlock()
	if status != StatusEncrypted {
		return ErrNotEncrypted
	}
	tlv, err := engine.StartInitiator(secret, question)
	if err != nil {
		return err
	}
	return c.sendWithTLVs("", []wire.TLV{tlv})
}

// RespondSMP answers a pending SMP request from the peer with this
// side's value for the shared secret, delegating to a master's
// selected outgoing slave if any.
func (c *SessionCore) RespondSMP(secret []byte) error {
	return c.target().respondSMPSelf(secret)
}

// RespondSMPInstance answers a pending SMP request addressed to a
// specific peer instance tag, per §4.8's "respondSmp(instanceTag, …)
// picks the slave by tag (falling back to self)".
func (c *SessionCore) RespondSMPInstance(tag InstanceTag, secret []byte) error {
	return c.resolveInstance(tag).respondSMPSelf(secret)
}

func (c *SessionCore) respondSMPSelf(secret []byte) error {
	c.mu.Lock()
	status := c.status
	engine := c.smpEngine
	c.mu.Unlock()
	if status != StatusEncrypted {
		return ErrNotEncrypted
	}
	tlv, err := engine.ContinueResponder(secret)
	if err != nil {
		return err
	}
	return c.sendWithTLVs("", []wire.TLV{tlv})
}

// AbortSMP cancels any in-progress SMP exchange, delegating to a
// master's selected outgoing slave if any.
func (c *SessionCore) AbortSMP() error {
	return c.target().abortSMPSelf()
}

func (c *SessionCore) abortSMPSelf() error {
	c.mu.Lock()
	status := c.status
	engine := c.smpEngine
	c.mu.Unlock()
	if status != StatusEncrypted {
		return ErrSMPNotActive
	}
	tlv := engine.Abort()
	return c.sendWithTLVs("", []wire.TLV{tlv})
}

// IsSMPInProgress reports whether an SMP exchange is currently
// underway, delegating to a master's selected outgoing slave if any.
func (c *SessionCore) IsSMPInProgress() bool {
	t := c.target()
	t.mu.Lock()
	engine := t.smpEngine
	t.mu.Unlock()
	return engine.InProgress()
}

// End closes the encrypted conversation, telling the peer if one is
// active, and returns to the plaintext state. A master with a selected
// outgoing slave delegates to that slave, per §4.1/§8.
func (c *SessionCore) End() error {
	return c.target().endSelf()
}

func (c *SessionCore) endSelf() error {
	c.mu.Lock()
	status := c.status
	c.mu.Unlock()

	if status != StatusEncrypted {
		c.setStatus(StatusPlaintext)
		return nil
	}
	err := c.sendWithTLVs("", []wire.TLV{{Type: wire.TLVTypeDisconnected}})
	c.setStatus(StatusPlaintext)
	return err
}

// RemoteFingerprint returns the SHA-256 fingerprint of the peer's
// long-term public key once an AKE has completed, for manual
// out-of-band authentication.
func (c *SessionCore) RemoteFingerprint() ([32]byte, bool) {
	c.mu.Lock()
	ctx := c.authCtx
	c.mu.Unlock()
	if ctx == nil {
		return [32]byte{}, false
	}
	pub := ctx.RemoteLongTermPublicKey()
	if pub == nil {
		return [32]byte{}, false
	}
	return crypto.Fingerprint(pub), true
}
