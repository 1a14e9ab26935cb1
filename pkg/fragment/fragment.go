// Fragmentation and reassembly of oversized OTR messages, per §4.7. The
// wire form is a comma-separated ASCII header the transport can forward
// unchanged: "?OTR|sender|receiver,k,n,piece," for v3, or
// "?OTR,k,n,piece," for v2 where there is no instance tag to key on.

package fragment

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

const v3Prefix = "?OTR|"
const v2Prefix = "?OTR,"

// Piece is one parsed fragment.
type Piece struct {
	SenderInstanceTag   uint32
	ReceiverInstanceTag uint32
	K, N                int
	Payload             string
}

// Split breaks an encoded OTR message into a sequence of fragments no
// larger than maxFragmentSize bytes each, including the fragment
// header. If the whole message already fits, Split returns it
// unfragmented as the sole element. When maxFragmentSize leaves no
// room for payload after the header, each fragment carries one byte of
// payload and is larger than maxFragmentSize.
func Split(encoded string, maxFragmentSize int, senderInstanceTag, receiverInstanceTag uint32) []string {
	if maxFragmentSize <= 0 || len(encoded) <= maxFragmentSize {
		return []string{encoded}
	}

	headerOverhead := len(fmt.Sprintf("%s%x|%x,%d,%d,,", v3Prefix, senderInstanceTag, receiverInstanceTag, 9999, 9999))
	chunkSize := maxFragmentSize - headerOverhead
	if chunkSize <= 0 {
		chunkSize = 1
	}

	total := (len(encoded) + chunkSize - 1) / chunkSize
	pieces := make([]string, 0, total)
	for k := 1; k <= total; k++ {
		start := (k - 1) * chunkSize
		end := start + chunkSize
		if end > len(encoded) {
			end = len(encoded)
		}
		pieces = append(pieces, fmt.Sprintf("%s%x|%x,%d,%d,%s,",
			v3Prefix, senderInstanceTag, receiverInstanceTag, k, total, encoded[start:end]))
	}
	return pieces
}

// Parse decodes a single fragment wire string into its fields.
func Parse(fragmentMsg string) (Piece, error) {
	switch {
	case strings.HasPrefix(fragmentMsg, v3Prefix):
		return parseV3(fragmentMsg)
	case strings.HasPrefix(fragmentMsg, v2Prefix):
		return parseV2(fragmentMsg)
	default:
		return Piece{}, ErrMalformedFragment
	}
}

func parseV3(fragmentMsg string) (Piece, error) {
	body := strings.TrimPrefix(fragmentMsg, v3Prefix)
	parts := strings.SplitN(body, ",", 4)
	if len(parts) != 4 {
		return Piece{}, ErrMalformedFragment
	}
	tags := strings.SplitN(parts[0], "|", 2)
	if len(tags) != 2 {
		return Piece{}, ErrMalformedFragment
	}
	sender, err := strconv.ParseUint(tags[0], 16, 32)
	if err != nil {
		return Piece{}, ErrMalformedFragment
	}
	receiver, err := strconv.ParseUint(tags[1], 16, 32)
	if err != nil {
		return Piece{}, ErrMalformedFragment
	}
	k, err := strconv.Atoi(parts[1])
	if err != nil {
		return Piece{}, ErrMalformedFragment
	}
	n, err := strconv.Atoi(parts[2])
	if err != nil {
		return Piece{}, ErrMalformedFragment
	}
	payload := strings.TrimSuffix(parts[3], ",")
	return Piece{
		SenderInstanceTag:   uint32(sender),
		ReceiverInstanceTag: uint32(receiver),
		K:                   k,
		N:                   n,
		Payload:             payload,
	}, nil
}

func parseV2(fragmentMsg string) (Piece, error) {
	body := strings.TrimPrefix(fragmentMsg, v2Prefix)
	parts := strings.SplitN(body, ",", 3)
	if len(parts) != 3 {
		return Piece{}, ErrMalformedFragment
	}
	k, err := strconv.Atoi(parts[0])
	if err != nil {
		return Piece{}, ErrMalformedFragment
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		return Piece{}, ErrMalformedFragment
	}
	payload := strings.TrimSuffix(parts[2], ",")
	return Piece{K: k, N: n, Payload: payload}, nil
}

type pendingAssembly struct {
	total int
	next  int
	parts []string
}

// Assembler reassembles a run of fragments that must arrive strictly in
// index order, keyed by sender instance tag so concurrent fragmented
// messages from different instances never interleave, per §4.7. A
// fragment that arrives out of sequence — including two disjoint runs
// from the same sender interleaved, or an index repeated or skipped —
// raises ErrFragmentOutOfOrder and abandons whatever was pending for
// that sender.
type Assembler struct {
	mu         sync.Mutex
	bySender   map[uint32]*pendingAssembly
	maxPending int
}

// NewAssembler creates an Assembler that tracks at most maxPending
// concurrent partial messages, bounding memory from a misbehaving or
// malicious peer per §5.
func NewAssembler(maxPending int) *Assembler {
	return &Assembler{
		bySender:   make(map[uint32]*pendingAssembly),
		maxPending: maxPending,
	}
}

// Accept feeds one fragment into the assembler. It returns the
// reassembled message and ready=true once the final piece arrives in
// sequence. Per §4.7/§8 scenario 2, a fragment is rejected with
// ErrFragmentOutOfOrder whenever its index is not exactly one past the
// last index accepted for its sender tag's current run — this covers
// permuted delivery, a repeated index, a skipped index, and a run that
// restarts with a k other than 1 before the previous one finished.
func (a *Assembler) Accept(p Piece) (message string, ready bool, err error) {
	if p.K < 1 || p.N < 1 || p.K > p.N {
		return "", false, ErrFragmentOutOfOrder
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	pend, ok := a.bySender[p.SenderInstanceTag]
	if !ok || pend.total != p.N {
		if p.K != 1 {
			delete(a.bySender, p.SenderInstanceTag)
			return "", false, ErrFragmentOutOfOrder
		}
		if !ok && len(a.bySender) >= a.maxPending {
			return "", false, ErrTooManyPending
		}
		pend = &pendingAssembly{total: p.N}
		a.bySender[p.SenderInstanceTag] = pend
	}

	if p.K != pend.next+1 {
		delete(a.bySender, p.SenderInstanceTag)
		return "", false, ErrFragmentOutOfOrder
	}

	pend.parts = append(pend.parts, p.Payload)
	pend.next = p.K

	if pend.next < pend.total {
		return "", false, nil
	}

	delete(a.bySender, p.SenderInstanceTag)
	return strings.Join(pend.parts, ""), true, nil
}

// Forget discards any in-progress assembly for a sender, used when a
// session instance is torn down.
func (a *Assembler) Forget(senderInstanceTag uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.bySender, senderInstanceTag)
}
