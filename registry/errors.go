package registry

import "errors"

// Registry errors
var (
	ErrReplayedSequence = errors.New("replayed sequence")
	ErrUnknownRecord    = errors.New("no record for party")
	ErrNoAuditLog       = errors.New("no audit log configured")
	ErrNoSigner         = errors.New("no snapshot signer configured")
	ErrAlreadyStarted   = errors.New("sweeper already started")
	ErrNotStarted       = errors.New("sweeper not started")
)
