// AuthContext implements the OTR authenticated key exchange as a small
// state machine, one instance per direction of a handshake, in the
// shape of the teacher's handshakeContext/Callbacks pair in
// pkg/securechannel/manager.go: a role-tagged struct that advances one
// state transition per received wire message and hands back the next
// message to send.

package ake

import (
	"crypto/ed25519"
	crand "crypto/rand"
	"math/big"
	"sync"

	"github.com/otrv3/otr/pkg/crypto"
	"github.com/otrv3/otr/pkg/wire"
)

// Role distinguishes which side of the handshake this context drives.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

type state int

const (
	stateNone state = iota
	stateAwaitingDHKey
	stateAwaitingRevealSig
	stateAwaitingSig
	stateDone
)

// AuthContext drives one AKE from DH-Commit through Signature.
type AuthContext struct {
	mu sync.Mutex

	role  Role
	state state

	version                                uint16
	senderInstanceTag, receiverInstanceTag uint32

	localLongTerm *crypto.LongTermKeyPair

	localDH *crypto.DHKeyPair
	r       [16]byte

	encryptedGx []byte
	hashedGx    [32]byte

	remoteEncryptedGx []byte
	remoteHashedGx    [32]byte

	gx, gy *big.Int

	secrets *crypto.AKESecretConstants

	remoteLongTermPublic ed25519.PublicKey
}

// NewAuthContext creates a fresh AKE driver. version must be
// wire.VersionThree; instance tags are only meaningful for that
// version and are echoed into every message this context builds.
func NewAuthContext(role Role, localLongTerm *crypto.LongTermKeyPair, version uint16, senderInstanceTag, receiverInstanceTag uint32) *AuthContext {
	return &AuthContext{
		role:                role,
		state:               stateNone,
		version:             version,
		senderInstanceTag:   senderInstanceTag,
		receiverInstanceTag: receiverInstanceTag,
		localLongTerm:       localLongTerm,
	}
}

func (c *AuthContext) header(msgType byte) wire.Header {
	return wire.Header{
		Version:             c.version,
		MessageType:         msgType,
		SenderInstanceTag:   c.senderInstanceTag,
		ReceiverInstanceTag: c.receiverInstanceTag,
	}
}

// StartInitiator generates the initiator's ephemeral DH key pair and
// returns the DH-Commit message to send.
func (c *AuthContext) StartInitiator() (*wire.DHCommitMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dh, err := crypto.DHGenerateKeyPair()
	if err != nil {
		return nil, err
	}
	c.localDH = dh
	c.gx = dh.DHPublicKey()

	gxBytes := wire.EncodeMPI(c.gx)
	hashed := crypto.SHA256(gxBytes)
	c.hashedGx = hashed

	if _, err := crand.Read(c.r[:]); err != nil {
		return nil, err
	}

	aesr, err := crypto.NewAESCTR(c.r[:])
	if err != nil {
		return nil, err
	}
	encrypted, err := aesr.Encrypt(crypto.TopHalfCounter(0), gxBytes)
	if err != nil {
		return nil, err
	}
	c.encryptedGx = encrypted

	c.state = stateAwaitingDHKey
	return &wire.DHCommitMessage{
		Header:      c.header(wire.TypeDHCommit),
		EncryptedGx: encrypted,
		HashedGx:    hashed,
	}, nil
}

// ReceiveDHCommit handles an incoming DH-Commit. If this context is
// itself waiting for a DH-Key (both sides started as initiator), the
// two hashedGx values are compared. If ours is the lower hash, this
// context drops its own commit, switches to responder, and returns a
// DH-Key with yielded=false. If ours is the higher hash, the incoming
// commit is ignored: no DH-Key is returned, yielded is true, and this
// context keeps waiting for the peer's DH-Key to its own commit.
func (c *AuthContext) ReceiveDHCommit(msg *wire.DHCommitMessage) (dhKey *wire.DHKeyMessage, yielded bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateAwaitingDHKey {
		if lessHash(c.hashedGx, msg.HashedGx) {
			// Our commit loses the race; become the responder.
			c.role = RoleResponder
		} else {
			// Our commit wins; the peer is expected to yield and
			// resend their own DH-Key against our commit instead.
			return nil, true, nil
		}
	}

	dh, err := crypto.DHGenerateKeyPair()
	if err != nil {
		return nil, false, err
	}
	c.localDH = dh
	c.gy = dh.DHPublicKey()
	c.remoteEncryptedGx = msg.EncryptedGx
	c.remoteHashedGx = msg.HashedGx

	c.state = stateAwaitingRevealSig
	return &wire.DHKeyMessage{
		Header: c.header(wire.TypeDHKey),
		GyMPI:  wire.EncodeMPI(c.gy),
	}, false, nil
}

// ReceiveDHKey completes the initiator's view of the DH exchange and
// returns the Reveal-Signature message.
func (c *AuthContext) ReceiveDHKey(msg *wire.DHKeyMessage) (*wire.RevealSignatureMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateAwaitingDHKey {
		return nil, ErrWrongState
	}

	gy, _, err := wire.DecodeMPI(msg.GyMPI)
	if err != nil {
		return nil, err
	}
	if err := crypto.DHValidatePublicValue(gy); err != nil {
		return nil, err
	}
	c.gy = gy

	secret, err := crypto.DHSharedSecret(c.localDH, gy)
	if err != nil {
		return nil, err
	}
	secrets, err := crypto.DeriveAKESecrets(secret.Bytes())
	if err != nil {
		return nil, err
	}
	c.secrets = secrets

	transcriptBytes := transcriptPayload(c.gx, c.gy)
	mac := crypto.HMACSHA256Slice(secrets.M1[:], transcriptBytes)
	sig := c.localLongTerm.Sign(mac)

	sigTranscript := &wire.SignatureTranscript{
		PublicKey: c.localLongTerm.Public,
		KeyID:     1,
		Signature: sig,
	}
	plaintext := sigTranscript.Encode()

	aesC, err := crypto.NewAESCTR(secrets.C[:])
	if err != nil {
		return nil, err
	}
	encrypted, err := aesC.Encrypt(crypto.TopHalfCounter(0), plaintext)
	if err != nil {
		return nil, err
	}
	macOfSig := crypto.HMACSHA256Slice(secrets.M2[:], encrypted)

	c.state = stateAwaitingSig
	out := &wire.RevealSignatureMessage{
		Header:       c.header(wire.TypeRevealSig),
		RevealedKey:  append([]byte(nil), c.r[:]...),
		EncryptedSig: encrypted,
	}
	copy(out.MACofSig[:], macOfSig[:20])
	return out, nil
}

// ReceiveRevealSignature completes the responder's side: it recovers
// gx using the revealed AES key, verifies it against the committed
// hash, derives the shared secrets, authenticates and decrypts the
// initiator's signature, and returns the closing Signature message.
func (c *AuthContext) ReceiveRevealSignature(msg *wire.RevealSignatureMessage) (*wire.SignatureMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateAwaitingRevealSig {
		return nil, ErrWrongState
	}

	aesr, err := crypto.NewAESCTR(msg.RevealedKey)
	if err != nil {
		return nil, err
	}
	gxBytes, err := aesr.Decrypt(crypto.TopHalfCounter(0), c.remoteEncryptedGx)
	if err != nil {
		return nil, err
	}
	if crypto.SHA256(gxBytes) != c.remoteHashedGx {
		return nil, ErrHashMismatch
	}
	gx, _, err := wire.DecodeMPI(gxBytes)
	if err != nil {
		return nil, err
	}
	if err := crypto.DHValidatePublicValue(gx); err != nil {
		return nil, err
	}
	c.gx = gx

	secret, err := crypto.DHSharedSecret(c.localDH, gx)
	if err != nil {
		return nil, err
	}
	secrets, err := crypto.DeriveAKESecrets(secret.Bytes())
	if err != nil {
		return nil, err
	}
	c.secrets = secrets

	expectedMAC := crypto.HMACSHA256Slice(secrets.M2[:], msg.EncryptedSig)
	if !crypto.MACEqual(expectedMAC[:20], msg.MACofSig[:]) {
		return nil, ErrBadMAC
	}

	aesC, err := crypto.NewAESCTR(secrets.C[:])
	if err != nil {
		return nil, err
	}
	plaintext, err := aesC.Decrypt(crypto.TopHalfCounter(0), msg.EncryptedSig)
	if err != nil {
		return nil, err
	}
	transcript, err := wire.DecodeSignatureTranscript(plaintext)
	if err != nil {
		return nil, err
	}
	if len(transcript.PublicKey) != ed25519.PublicKeySize {
		return nil, ErrBadSignature
	}

	transcriptBytes := transcriptPayload(c.gx, c.gy)
	mac := crypto.HMACSHA256Slice(secrets.M1[:], transcriptBytes)
	if !crypto.VerifySignature(ed25519.PublicKey(transcript.PublicKey), mac, transcript.Signature) {
		return nil, ErrBadSignature
	}
	c.remoteLongTermPublic = ed25519.PublicKey(transcript.PublicKey)

	ourSigTranscript := &wire.SignatureTranscript{
		PublicKey: c.localLongTerm.Public,
		KeyID:     1,
		Signature: c.localLongTerm.Sign(crypto.HMACSHA256Slice(secrets.M1p[:], transcriptPayload(c.gx, c.gy))),
	}
	ourPlaintext := ourSigTranscript.Encode()

	aesCp, err := crypto.NewAESCTR(secrets.Cp[:])
	if err != nil {
		return nil, err
	}
	ourEncrypted, err := aesCp.Encrypt(crypto.TopHalfCounter(0), ourPlaintext)
	if err != nil {
		return nil, err
	}
	ourMAC := crypto.HMACSHA256Slice(secrets.M2p[:], ourEncrypted)

	c.state = stateDone
	out := &wire.SignatureMessage{
		Header:       c.header(wire.TypeSignature),
		EncryptedSig: ourEncrypted,
	}
	copy(out.MACofSig[:], ourMAC[:20])
	return out, nil
}

// ReceiveSignature completes the initiator's side, authenticating and
// decrypting the responder's closing signature message.
func (c *AuthContext) ReceiveSignature(msg *wire.SignatureMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateAwaitingSig {
		return ErrWrongState
	}

	expectedMAC := crypto.HMACSHA256Slice(c.secrets.M2p[:], msg.EncryptedSig)
	if !crypto.MACEqual(expectedMAC[:20], msg.MACofSig[:]) {
		return ErrBadMAC
	}

	aesCp, err := crypto.NewAESCTR(c.secrets.Cp[:])
	if err != nil {
		return err
	}
	plaintext, err := aesCp.Decrypt(crypto.TopHalfCounter(0), msg.EncryptedSig)
	if err != nil {
		return err
	}
	transcript, err := wire.DecodeSignatureTranscript(plaintext)
	if err != nil {
		return err
	}
	if len(transcript.PublicKey) != ed25519.PublicKeySize {
		return ErrBadSignature
	}

	mac := crypto.HMACSHA256Slice(c.secrets.M1p[:], transcriptPayload(c.gx, c.gy))
	if !crypto.VerifySignature(ed25519.PublicKey(transcript.PublicKey), mac, transcript.Signature) {
		return ErrBadSignature
	}
	c.remoteLongTermPublic = ed25519.PublicKey(transcript.PublicKey)
	c.state = stateDone
	return nil
}

// AdoptPeerInstanceTag records the peer's real v3 instance tag once it
// becomes known from an incoming message, if this context was started
// without one (the initiator broadcasts its first DH-Commit to
// receiver tag 0 before any peer instance has been observed). Already
// knowing a peer tag is left untouched.
func (c *AuthContext) AdoptPeerInstanceTag(tag uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.receiverInstanceTag == 0 {
		c.receiverInstanceTag = tag
	}
}

// Clone returns an independent copy of this context's current state, for
// a master conversation handing an in-flight AKE off to a freshly
// discovered slave instance, per §9's "AKE cloning across slaves". The
// two contexts share no mutable state afterward; each advances its own
// copy of the handshake independently from the clone point.
func (c *AuthContext) Clone() *AuthContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &AuthContext{
		role:                c.role,
		state:               c.state,
		version:             c.version,
		senderInstanceTag:   c.senderInstanceTag,
		receiverInstanceTag: c.receiverInstanceTag,
		localLongTerm:       c.localLongTerm,
		localDH:             c.localDH,
		r:                   c.r,
		encryptedGx:         append([]byte(nil), c.encryptedGx...),
		hashedGx:            c.hashedGx,
		remoteEncryptedGx:   append([]byte(nil), c.remoteEncryptedGx...),
		remoteHashedGx:      c.remoteHashedGx,
		gx:                  c.gx,
		gy:                  c.gy,
		secrets:             c.secrets,
		remoteLongTermPublic: append(ed25519.PublicKey(nil), c.remoteLongTermPublic...),
	}
}

// IsDone reports whether this context's AKE has completed.
func (c *AuthContext) IsDone() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateDone
}

// LocalDHKeyPair returns the ephemeral DH key pair generated for this
// handshake, seeding the KeyMatrix.
func (c *AuthContext) LocalDHKeyPair() *crypto.DHKeyPair {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localDH
}

// RemoteDHPublic returns the peer's DH public value once known.
func (c *AuthContext) RemoteDHPublic() *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.role == RoleInitiator {
		return c.gy
	}
	return c.gx
}

// RemoteLongTermPublicKey returns the peer's identity key once the AKE
// has completed, for the Host to check against a known fingerprint.
func (c *AuthContext) RemoteLongTermPublicKey() ed25519.PublicKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteLongTermPublic
}

func transcriptPayload(gx, gy *big.Int) []byte {
	var buf []byte
	buf = append(buf, wire.EncodeMPI(gx)...)
	buf = append(buf, wire.EncodeMPI(gy)...)
	return buf
}

func lessHash(a, b [32]byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

