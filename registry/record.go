package registry

import (
	"sync"
	"time"

	"github.com/blockberries/watchberry/types"
)

// PartyRecord tracks one party's liveness for the active epoch. It is
// owned exclusively by the registry; all access goes through its mutex,
// giving each record a single exclusive writer per update.
type PartyRecord struct {
	mu sync.Mutex

	id           types.PartyID
	pubKey       types.PublicKey
	lastSeen     time.Time
	lastSequence uint64
	status       types.LivenessStatus
}

// RecordView is an immutable copy of a record's current state
type RecordView struct {
	PartyID      types.PartyID
	PubKey       types.PublicKey
	LastSeen     time.Time
	LastSequence uint64
	Status       types.LivenessStatus
}

// newPartyRecord provisions a record in status Unknown. The record stays
// Unknown until its first accepted heartbeat.
func newPartyRecord(id types.PartyID, pubKey types.PublicKey) *PartyRecord {
	return &PartyRecord{
		id:     id,
		pubKey: pubKey,
		status: types.StatusUnknown,
	}
}

// apply accepts a verified heartbeat sequence against this record.
// A sequence at or below the stored last sequence is rejected with
// ErrReplayedSequence and leaves the record untouched. Acceptance
// updates last seen, last sequence and unconditionally resets the
// status to Alive.
func (pr *PartyRecord) apply(sequence uint64, now time.Time) error {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	if sequence <= pr.lastSequence {
		return ErrReplayedSequence
	}

	pr.lastSequence = sequence
	pr.lastSeen = now
	pr.status = types.StatusAlive
	return nil
}

// sweep applies the recency rules to this record. Both transitions may
// fire in one pass when the record is far past the dead threshold;
// status only ever moves forward here.
func (pr *PartyRecord) sweep(now time.Time, suspectAfter, deadAfter time.Duration) (types.LivenessStatus, bool) {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	before := pr.status
	elapsed := now.Sub(pr.lastSeen)

	if pr.status == types.StatusAlive && elapsed > suspectAfter {
		pr.status = types.StatusSuspected
	}
	if pr.status == types.StatusSuspected && elapsed > deadAfter {
		pr.status = types.StatusDead
	}

	return pr.status, pr.status != before
}

// View returns a consistent copy of the record
func (pr *PartyRecord) View() RecordView {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	return RecordView{
		PartyID:      pr.id,
		PubKey:       pr.pubKey,
		LastSeen:     pr.lastSeen,
		LastSequence: pr.lastSequence,
		Status:       pr.status,
	}
}
