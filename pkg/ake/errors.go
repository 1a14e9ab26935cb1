package ake

import "errors"

// Sentinel errors returned by this package's operations.
var (
	ErrWrongState       = errors.New("ake: message received in the wrong state")
	ErrHashMismatch     = errors.New("ake: revealed key does not match committed hash")
	ErrBadSignature     = errors.New("ake: signature verification failed")
	ErrBadMAC           = errors.New("ake: MAC verification failed")
	ErrAlreadyAuthed    = errors.New("ake: context has already completed authentication")
	ErrMissingPeerIdentity = errors.New("ake: no peer long-term public key supplied")
)
