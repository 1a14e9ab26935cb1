// KeyMatrix implements the 2x2 ring of SessionKeys cells from §3.1/§4.3:
// at any time only the current and previous local DH key id, crossed
// with the current and previous remote DH key id, have live derived
// keys. Ratcheting forward retires the oldest row or column and queues
// its receiving MAC key for disclosure, as the teacher's pkg/session
// retires whole SecureContext entries from its Table when a fabric is
// removed.

package keys

import (
	"math/big"
	"sync"

	"github.com/otrv3/otr/pkg/crypto"
)

type cellKey struct {
	local, remote uint32
}

// KeyMatrix owns the local DH key pairs, the remote public values seen
// so far, and the derived cells for every (local, remote) pair still in
// the live 2x2 window.
type KeyMatrix struct {
	mu sync.RWMutex

	localPairs    map[uint32]*crypto.DHKeyPair
	remotePublics map[uint32]*big.Int
	cells         map[cellKey]*Cell

	currentLocalKeyID  uint32
	highestRemoteKeyID uint32

	oldMACPool [][]byte
}

// NewKeyMatrix starts a matrix from the local DH key pair generated
// during the AKE, with no remote public value yet known.
func NewKeyMatrix(initialLocal *crypto.DHKeyPair) *KeyMatrix {
	return &KeyMatrix{
		localPairs:        map[uint32]*crypto.DHKeyPair{1: initialLocal},
		remotePublics:     make(map[uint32]*big.Int),
		cells:             make(map[cellKey]*Cell),
		currentLocalKeyID: 1,
	}
}

// CurrentLocalKeyID returns the highest local DH key id generated so
// far.
func (m *KeyMatrix) CurrentLocalKeyID() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentLocalKeyID
}

// CurrentLocalPublic returns the public value for the current local key
// id, to advertise in outgoing data messages so the peer can ratchet
// forward.
func (m *KeyMatrix) CurrentLocalPublic() *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.localPairs[m.currentLocalKeyID].DHPublicKey()
}

// HighestRemoteKeyID returns the highest remote DH key id accepted so
// far.
func (m *KeyMatrix) HighestRemoteKeyID() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.highestRemoteKeyID
}

// EncryptionLocalKeyID returns the local key id an outgoing data
// message must encrypt under, per §4.3: "Encryption session keys are
// (Previous, Current) — use the older local key and newer remote key."
// CurrentLocalKeyID names the local pair most recently generated as a
// side effect of learning the peer's newest remote key; its public half
// is only now being advertised (in the very message being built) and so
// the peer cannot yet derive a cell for it. The previous id, one less,
// is the one the peer already has the matching public value for.
func (m *KeyMatrix) EncryptionLocalKeyID() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.currentLocalKeyID <= 1 {
		return 1
	}
	return m.currentLocalKeyID - 1
}

// AcceptRemotePublic records a remote DH public value. Re-advertising
// the current highest key id is a no-op; advertising the next one
// ratchets the matrix forward, retiring the oldest row and column and
// generating a fresh local key pair. Any other key id is rejected as
// stale or out of sequence.
func (m *KeyMatrix) AcceptRemotePublic(remoteKeyID uint32, remotePublic *big.Int) error {
	if err := crypto.DHValidatePublicValue(remotePublic); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if remoteKeyID == m.highestRemoteKeyID && remoteKeyID != 0 {
		return nil
	}
	if remoteKeyID != m.highestRemoteKeyID+1 {
		return ErrStaleRemoteKeyID
	}

	m.remotePublics[remoteKeyID] = remotePublic
	m.highestRemoteKeyID = remoteKeyID

	newLocal, err := crypto.DHGenerateKeyPair()
	if err != nil {
		return err
	}
	newLocalKeyID := m.currentLocalKeyID + 1
	m.localPairs[newLocalKeyID] = newLocal
	m.currentLocalKeyID = newLocalKeyID

	m.evictOutsideWindowLocked()
	return nil
}

// Cell returns the derived keys for a (localKeyID, remoteKeyID) pair,
// deriving and caching them on first use.
func (m *KeyMatrix) Cell(localKeyID, remoteKeyID uint32) (*Cell, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := cellKey{localKeyID, remoteKeyID}
	if c, ok := m.cells[key]; ok {
		return c, nil
	}

	local, ok := m.localPairs[localKeyID]
	if !ok {
		return nil, ErrNoSuchCell
	}
	remote, ok := m.remotePublics[remoteKeyID]
	if !ok {
		return nil, ErrNoSuchCell
	}

	c, err := deriveCell(localKeyID, local, remoteKeyID, remote)
	if err != nil {
		return nil, err
	}
	m.cells[key] = c
	return c, nil
}

// RevealOldMACKeys drains and returns the MAC keys queued for
// disclosure since the last call, to be embedded in the next outgoing
// data message's old-MAC-keys field.
func (m *KeyMatrix) RevealOldMACKeys() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.oldMACPool
	m.oldMACPool = nil
	return out
}

// evictOutsideWindowLocked drops cells, local key pairs, and remote
// public values that have fallen out of the live 2x2 window, queuing
// each evicted cell's receiving MAC key for disclosure first. Caller
// must hold m.mu.
func (m *KeyMatrix) evictOutsideWindowLocked() {
	liveLocal := map[uint32]bool{m.currentLocalKeyID: true}
	if m.currentLocalKeyID > 1 {
		liveLocal[m.currentLocalKeyID-1] = true
	}
	liveRemote := map[uint32]bool{m.highestRemoteKeyID: true}
	if m.highestRemoteKeyID > 1 {
		liveRemote[m.highestRemoteKeyID-1] = true
	}

	for key, c := range m.cells {
		if !liveLocal[key.local] || !liveRemote[key.remote] {
			if c.UsedReceivingMAC() {
				m.oldMACPool = append(m.oldMACPool, append([]byte(nil), c.RecvMACKey[:]...))
			}
			delete(m.cells, key)
		}
	}
	for id := range m.localPairs {
		if !liveLocal[id] {
			delete(m.localPairs, id)
		}
	}
	for id := range m.remotePublics {
		if !liveRemote[id] {
			delete(m.remotePublics, id)
		}
	}
}
