package fragment

import "errors"

// Sentinel errors returned by this package's operations.
var (
	ErrMalformedFragment  = errors.New("fragment: malformed fragment header")
	ErrFragmentOutOfOrder = errors.New("fragment: piece index out of range")
	ErrAssemblyMismatch   = errors.New("fragment: piece count changed mid-assembly")
	ErrTooManyPending     = errors.New("fragment: too many pending assemblies")
)
