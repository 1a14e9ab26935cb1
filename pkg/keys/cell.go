// One SessionKeys cell of the KeyMatrix, per §3.1/§4.3: the derived
// AES/MAC key pairs for one (localKeyID, remoteKeyID) ratchet step plus
// the counters that guard replay in each direction.

package keys

import (
	"math/big"

	"github.com/otrv3/otr/pkg/crypto"
)

const sessionKeySize = 16

// Cell holds the four derived keys and counters for one point in the
// ratchet. "Sending" and "receiving" are from the local party's point
// of view.
type Cell struct {
	LocalKeyID  uint32
	RemoteKeyID uint32

	SendAESKey [sessionKeySize]byte
	RecvAESKey [sessionKeySize]byte
	SendMACKey [crypto.SHA1LenBytes]byte
	RecvMACKey [crypto.SHA1LenBytes]byte

	sendCounter        uint64
	highestRecvCounter uint64
	recvCounterSet     bool

	revealed bool
}

// deriveCell computes a fresh cell from a local DH key pair and a
// remote public value. The two ends of an exchange agree on the same
// shared secret but must derive complementary (not identical) key
// pairs; this is decided by comparing the two public values: the side
// with the higher public value sends under the "high" label and
// receives under the "low" one, and the other side does the reverse.
func deriveCell(localKeyID uint32, local *crypto.DHKeyPair, remoteKeyID uint32, remotePublic *big.Int) (*Cell, error) {
	secret, err := crypto.DHSharedSecret(local, remotePublic)
	if err != nil {
		return nil, err
	}
	secretBytes := secret.Bytes()

	weAreHigh := local.DHPublicKey().Cmp(remotePublic) > 0

	sendLabel, recvLabel := "otr-keys-low", "otr-keys-high"
	if weAreHigh {
		sendLabel, recvLabel = "otr-keys-high", "otr-keys-low"
	}

	sendMaterial, err := crypto.HKDFSHA256(secretBytes, nil, []byte(sendLabel), sessionKeySize+crypto.SHA1LenBytes)
	if err != nil {
		return nil, err
	}
	recvMaterial, err := crypto.HKDFSHA256(secretBytes, nil, []byte(recvLabel), sessionKeySize+crypto.SHA1LenBytes)
	if err != nil {
		return nil, err
	}

	c := &Cell{LocalKeyID: localKeyID, RemoteKeyID: remoteKeyID}
	copy(c.SendAESKey[:], sendMaterial[:sessionKeySize])
	copy(c.SendMACKey[:], sendMaterial[sessionKeySize:])
	copy(c.RecvAESKey[:], recvMaterial[:sessionKeySize])
	copy(c.RecvMACKey[:], recvMaterial[sessionKeySize:])
	return c, nil
}

// NextSendCounter returns the next top-half counter value to use for an
// outgoing message on this cell and advances it.
func (c *Cell) NextSendCounter() (uint64, error) {
	if c.sendCounter == ^uint64(0) {
		return 0, ErrCounterExhausted
	}
	c.sendCounter++
	return c.sendCounter, nil
}

// CheckRecvCounter enforces §8's monotonicity invariant: the receiving
// counter on a given cell must strictly increase across accepted
// messages.
func (c *Cell) CheckRecvCounter(counter uint64) error {
	if c.recvCounterSet && counter <= c.highestRecvCounter {
		return ErrReplayedCounter
	}
	return nil
}

// AcceptRecvCounter records counter as the new high-water mark after a
// message using it has been authenticated and decrypted, and marks
// this cell's receiving MAC key as used, per §3.1's
// isUsedReceivingMacKey flag.
func (c *Cell) AcceptRecvCounter(counter uint64) {
	c.highestRecvCounter = counter
	c.recvCounterSet = true
	c.revealed = true
}

// UsedReceivingMAC reports whether this cell has ever authenticated an
// inbound message, per §4.3's rule that only a used receiving MAC key
// is queued for disclosure when the cell is ratcheted out.
func (c *Cell) UsedReceivingMAC() bool {
	return c.revealed
}
