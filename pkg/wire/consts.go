// Wire constants for the OTR v2/v3 message format this document defines
// in §6.3, named the way the teacher names its Matter wire constants in
// pkg/message/errors.go ("format constants from Matter Specification").

package wire

const (
	// VersionTwo and VersionThree are the two protocol versions the
	// wire format recognizes. The session engine in pkg/otr offers and
	// accepts only version 3; a version 2 offer is parsed but never
	// answered. Version 1 is parsed only far enough to be rejected; see
	// §9.
	VersionTwo   = 2
	VersionThree = 3

	// HeaderSizeV2 is the size of the fixed message header for version
	// 2: protocol version (2 bytes) + message type (1 byte).
	HeaderSizeV2 = 3

	// HeaderSizeV3 adds the sender and receiver instance tags (4 bytes
	// each) to the v2 header.
	HeaderSizeV3 = HeaderSizeV2 + 8

	// Message type bytes, per §6.3.
	TypeDHCommit     = 0x02
	TypeDataMessage  = 0x03
	TypeDHKey        = 0x0a
	TypeRevealSig    = 0x11
	TypeSignature    = 0x12

	// MACSize is the size of a data message's authenticator, HMAC-SHA1
	// per §4.4/§6.3.
	MACSize = 20

	// TopHalfCounterSize is the size of the counter value carried in a
	// data message header.
	TopHalfCounterSize = 8

	// EnvelopePrefix and EnvelopeSuffix wrap the base64 body of any
	// OTR-encoded message on the wire.
	EnvelopePrefix = "?OTR:"
	EnvelopeSuffix = "."

	// QueryPrefix marks a query message.
	QueryPrefix = "?OTR"
)
