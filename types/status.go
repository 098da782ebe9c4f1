package types

// LivenessStatus classifies a party by recency of accepted heartbeats
type LivenessStatus int8

const (
	StatusUnknown LivenessStatus = iota
	StatusAlive
	StatusSuspected
	StatusDead
)

// String returns the human-readable status name
func (s LivenessStatus) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusAlive:
		return "alive"
	case StatusSuspected:
		return "suspected"
	case StatusDead:
		return "dead"
	default:
		return "invalid"
	}
}

// RejectReason is carried on a rejecting Ack. RejectNone means accepted.
type RejectReason uint8

const (
	RejectNone RejectReason = iota
	RejectMalformedMessage
	RejectEpochMismatch
	RejectUnknownParty
	RejectBadSignature
	RejectReplayedSequence
)

// String returns the wire-stable reason name
func (r RejectReason) String() string {
	switch r {
	case RejectNone:
		return "none"
	case RejectMalformedMessage:
		return "malformed_message"
	case RejectEpochMismatch:
		return "epoch_mismatch"
	case RejectUnknownParty:
		return "unknown_party"
	case RejectBadSignature:
		return "bad_signature"
	case RejectReplayedSequence:
		return "replayed_sequence"
	default:
		return "invalid"
	}
}

// LivenessSummary counts parties by status for the active epoch.
// Unknown parties (provisioned but never heard from) are not counted.
type LivenessSummary struct {
	Alive     uint32
	Suspected uint32
	Dead      uint32
}

// Ack is the watchtower's response to a single heartbeat
type Ack struct {
	Epoch    Epoch
	Accepted bool
	Reason   RejectReason
	Summary  LivenessSummary
}
