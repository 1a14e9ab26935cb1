package otr

import "errors"

// Sentinel errors returned by this package's operations.
var (
	ErrNotEncrypted       = errors.New("otr: session is not in the encrypted state")
	ErrUnexpectedMessage  = errors.New("otr: message type not valid for the current state")
	ErrPolicyForbids      = errors.New("otr: policy forbids this operation")
	ErrUnknownInstanceTag = errors.New("otr: message addressed to an unknown instance tag")
	ErrSMPNotActive       = errors.New("otr: no SMP exchange is in progress")
	ErrMessageTooLarge    = errors.New("otr: plaintext exceeds the host's maximum message size")
	ErrV1Unsupported      = errors.New("otr: OTR version 1 is recognized but never negotiated")
)
