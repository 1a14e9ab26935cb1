package keys

import "errors"

// Sentinel errors returned by this package's operations.
var (
	ErrNoSuchCell       = errors.New("keys: no session keys cell for that key id pair")
	ErrStaleRemoteKeyID = errors.New("keys: remote key id is not newer than the current one")
	ErrReplayedCounter  = errors.New("keys: receiving counter did not increase")
	ErrCounterExhausted = errors.New("keys: sending counter exhausted")
)
