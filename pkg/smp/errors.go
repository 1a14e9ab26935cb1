package smp

import "errors"

// Sentinel errors returned by this package's operations.
var (
	ErrWrongState    = errors.New("smp: message received in the wrong state")
	ErrNotMatched    = errors.New("smp: secrets do not match")
	ErrAlreadyActive = errors.New("smp: an SMP exchange is already in progress")
)
