package registry

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/blockberries/watchberry/internal/telemetry"
	"github.com/blockberries/watchberry/keystore"
	"github.com/blockberries/watchberry/types"
	"github.com/blockberries/watchberry/wire"
	"github.com/blockberries/watchberry/wtdb"
)

// Config carries the registry's policy and collaborators
type Config struct {
	// Epoch is the only epoch this registry accepts heartbeats for
	Epoch types.Epoch

	// SuspectAfter and DeadAfter are the recency thresholds for the
	// sweep. DeadAfter must exceed SuspectAfter.
	SuspectAfter time.Duration
	DeadAfter    time.Duration

	// SweepInterval is how often the background sweep runs.
	// Defaults to half of SuspectAfter.
	SweepInterval time.Duration

	// AllowProvisioning lets a party whose key the roster resolves but
	// which has no record yet self-provision on first valid contact.
	// When false, only pre-registered parties ever get a record.
	AllowProvisioning bool

	// Roster supplies the registered public keys
	Roster *keystore.Roster

	// AuditLog, when set, receives every accepted heartbeat
	AuditLog *wtdb.Log

	// Signer, when set, signs liveness snapshots with the watchtower key
	Signer *keystore.Identity

	// Logger defaults to a nop logger
	Logger *zap.Logger

	// Now defaults to time.Now; injectable for tests
	Now func() time.Time
}

// ValidateBasic checks the config for structural problems
func (cfg *Config) ValidateBasic() error {
	if cfg.Roster == nil {
		return errors.New("registry config: roster is required")
	}
	if cfg.SuspectAfter <= 0 {
		return errors.New("registry config: suspect threshold must be positive")
	}
	if cfg.DeadAfter <= cfg.SuspectAfter {
		return errors.New("registry config: dead threshold must exceed suspect threshold")
	}
	return nil
}

// Registry is the watchtower's liveness authority for one epoch
type Registry struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	mu      sync.RWMutex
	parties map[types.PartyID]*PartyRecord

	offenses *offenseBook

	sweepMu   sync.Mutex
	sweepQuit chan struct{}
	sweepWg   sync.WaitGroup
}

// New creates a registry. With provisioning disabled (the default
// policy) a record is created up front for every roster member, in
// status Unknown, and no record is ever created afterwards.
func New(cfg Config) (*Registry, error) {
	if err := cfg.ValidateBasic(); err != nil {
		return nil, err
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = cfg.SuspectAfter / 2
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	r := &Registry{
		cfg:      cfg,
		logger:   cfg.Logger,
		now:      cfg.Now,
		parties:  make(map[types.PartyID]*PartyRecord),
		offenses: newOffenseBook(),
	}

	if !cfg.AllowProvisioning {
		for _, id := range cfg.Roster.PartyIDs() {
			pk, err := cfg.Roster.Lookup(id)
			if err != nil {
				return nil, err
			}
			r.parties[id] = newPartyRecord(id, pk)
		}
	}

	return r, nil
}

// Epoch returns the epoch this registry serves
func (r *Registry) Epoch() types.Epoch {
	return r.cfg.Epoch
}

// HandleHeartbeat processes one raw heartbeat payload. The returned Ack
// is always suitable to send back to the sender; err is non-nil exactly
// when the heartbeat was rejected, and no record is mutated in that
// case.
func (r *Registry) HandleHeartbeat(payload []byte) (types.Ack, error) {
	hb, err := wire.ParseAndVerifyHeartbeat(payload, r.cfg.Epoch, r.cfg.Roster.Lookup)
	if err != nil {
		return r.reject(payload, err)
	}

	record, err := r.recordFor(hb)
	if err != nil {
		return r.reject(payload, err)
	}

	if err := record.apply(hb.Sequence, r.now()); err != nil {
		return r.reject(payload, err)
	}

	telemetry.HeartbeatsAccepted.WithLabelValues(partyLabel(hb.PartyID)).Inc()

	if r.cfg.AuditLog != nil {
		if _, err := r.cfg.AuditLog.Append(hb); err != nil {
			// The heartbeat is already accepted; losing an audit entry
			// is an operational problem, not a protocol rejection.
			r.logger.Error("audit log append failed",
				zap.Uint64("party", uint64(hb.PartyID)), zap.Error(err))
		}
	}

	summary := r.Summary()
	r.logger.Debug("heartbeat accepted",
		zap.Uint64("party", uint64(hb.PartyID)),
		zap.Uint64("sequence", hb.Sequence))

	return types.Ack{
		Epoch:    r.cfg.Epoch,
		Accepted: true,
		Reason:   types.RejectNone,
		Summary:  summary,
	}, nil
}

// recordFor finds or provisions the record for a verified heartbeat
func (r *Registry) recordFor(hb *types.Heartbeat) (*PartyRecord, error) {
	r.mu.RLock()
	record, ok := r.parties[hb.PartyID]
	r.mu.RUnlock()
	if ok {
		return record, nil
	}

	if !r.cfg.AllowProvisioning {
		return nil, fmt.Errorf("%w: party %d", wire.ErrUnknownParty, hb.PartyID)
	}

	pk, err := r.cfg.Roster.Lookup(hb.PartyID)
	if err != nil {
		return nil, fmt.Errorf("%w: party %d", wire.ErrUnknownParty, hb.PartyID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if record, ok := r.parties[hb.PartyID]; ok {
		return record, nil
	}
	record = newPartyRecord(hb.PartyID, pk)
	r.parties[hb.PartyID] = record
	r.logger.Info("provisioned party record", zap.Uint64("party", uint64(hb.PartyID)))
	return record, nil
}

// reject builds a rejecting ack, attributing the offense when the
// payload parses far enough to name a party.
func (r *Registry) reject(payload []byte, cause error) (types.Ack, error) {
	reason := ReasonFor(cause)

	label := "unparsed"
	if hb, perr := wire.ParseHeartbeat(payload); perr == nil {
		label = partyLabel(hb.PartyID)
		r.offenses.record(hb.PartyID, reason)
	}
	telemetry.HeartbeatsRejected.WithLabelValues(label, reason.String()).Inc()

	r.logger.Warn("heartbeat rejected",
		zap.String("party", label),
		zap.String("reason", reason.String()),
		zap.Error(cause))

	return types.Ack{
		Epoch:    r.cfg.Epoch,
		Accepted: false,
		Reason:   reason,
		Summary:  r.Summary(),
	}, cause
}

// ReasonFor maps a rejection error to its wire reason
func ReasonFor(err error) types.RejectReason {
	switch {
	case errors.Is(err, wire.ErrEpochMismatch):
		return types.RejectEpochMismatch
	case errors.Is(err, wire.ErrUnknownParty):
		return types.RejectUnknownParty
	case errors.Is(err, wire.ErrBadSignature):
		return types.RejectBadSignature
	case errors.Is(err, ErrReplayedSequence):
		return types.RejectReplayedSequence
	default:
		return types.RejectMalformedMessage
	}
}

// Summary counts parties by status. Unknown parties are not counted.
func (r *Registry) Summary() types.LivenessSummary {
	r.mu.RLock()
	records := make([]*PartyRecord, 0, len(r.parties))
	for _, record := range r.parties {
		records = append(records, record)
	}
	r.mu.RUnlock()

	var sum types.LivenessSummary
	for _, record := range records {
		switch record.View().Status {
		case types.StatusAlive:
			sum.Alive++
		case types.StatusSuspected:
			sum.Suspected++
		case types.StatusDead:
			sum.Dead++
		}
	}
	return sum
}

// Record returns a view of one party's record
func (r *Registry) Record(id types.PartyID) (RecordView, error) {
	r.mu.RLock()
	record, ok := r.parties[id]
	r.mu.RUnlock()
	if !ok {
		return RecordView{}, fmt.Errorf("%w: party %d", ErrUnknownRecord, id)
	}
	return record.View(), nil
}

// Records returns views of all records
func (r *Registry) Records() []RecordView {
	r.mu.RLock()
	records := make([]*PartyRecord, 0, len(r.parties))
	for _, record := range r.parties {
		records = append(records, record)
	}
	r.mu.RUnlock()

	views := make([]RecordView, 0, len(records))
	for _, record := range records {
		views = append(views, record.View())
	}
	return views
}

// Offenses returns a party's rejection tallies by reason
func (r *Registry) Offenses(id types.PartyID) map[types.RejectReason]uint64 {
	return r.offenses.forParty(id)
}

// Snapshot signs a commitment to the accepted-heartbeat log: the log
// length and Merkle root for this epoch.
func (r *Registry) Snapshot() (types.SignedSnapshot, error) {
	if r.cfg.Signer == nil {
		return types.SignedSnapshot{}, ErrNoSigner
	}

	var leaves []types.Hash
	if r.cfg.AuditLog != nil {
		var err error
		leaves, err = r.cfg.AuditLog.LeafHashes()
		if err != nil {
			return types.SignedSnapshot{}, fmt.Errorf("failed to read audit log: %w", err)
		}
	}

	msg := types.SnapshotMessage{
		Epoch:      r.cfg.Epoch,
		LogLen:     uint64(len(leaves)),
		MerkleRoot: types.MerkleRoot(leaves),
	}
	return types.SignSnapshot(r.cfg.Signer.PrivKey(), &msg)
}

// Entries returns accepted heartbeats [from..to] from the audit log
func (r *Registry) Entries(from, to uint64) ([]*types.Heartbeat, error) {
	if r.cfg.AuditLog == nil {
		return nil, ErrNoAuditLog
	}
	return r.cfg.AuditLog.Entries(from, to)
}

// partyLabel formats a party id for metric labels
func partyLabel(id types.PartyID) string {
	return strconv.FormatUint(uint64(id), 10)
}
