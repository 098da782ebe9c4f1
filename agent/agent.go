package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/blockberries/watchberry/keystore"
	"github.com/blockberries/watchberry/state"
	"github.com/blockberries/watchberry/types"
	"github.com/blockberries/watchberry/wire"
)

// Phase is the agent's position in the liveness loop
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseSending
	PhaseAwaitingAck
)

// String returns the phase name
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseSending:
		return "sending"
	case PhaseAwaitingAck:
		return "awaiting_ack"
	default:
		return "invalid"
	}
}

// Errors
var (
	ErrStaleEpoch   = errors.New("persisted state epoch differs from configured epoch")
	ErrStatePersist = errors.New("failed to persist acknowledged progress")
)

// Config carries the agent's identity and collaborators
type Config struct {
	// WatchtowerAddr is the watchtower's TCP address
	WatchtowerAddr string

	// Epoch this agent participates in
	Epoch types.Epoch

	// PartyID is this party's id within the epoch
	PartyID types.PartyID

	// Interval between heartbeat attempts. A failed attempt waits the
	// same interval before retrying; there is no exponential backoff.
	Interval time.Duration

	// Timeout bounds one complete connect/send/await-ack attempt
	Timeout time.Duration

	// Identity signs outgoing heartbeats
	Identity *keystore.Identity

	// Store persists acknowledged progress
	Store *state.Store

	// Logger defaults to a nop logger
	Logger *zap.Logger

	// Now defaults to time.Now; injectable for tests
	Now func() time.Time
}

// ValidateBasic checks the config for structural problems
func (cfg *Config) ValidateBasic() error {
	if cfg.WatchtowerAddr == "" {
		return errors.New("agent config: watchtower address is required")
	}
	if cfg.Interval <= 0 {
		return errors.New("agent config: heartbeat interval must be positive")
	}
	if cfg.Timeout <= 0 {
		return errors.New("agent config: attempt timeout must be positive")
	}
	if cfg.Identity == nil {
		return errors.New("agent config: identity is required")
	}
	if cfg.Store == nil {
		return errors.New("agent config: state store is required")
	}
	return nil
}

// Agent runs the liveness loop for one party
type Agent struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	phase int32 // atomic Phase

	// st mirrors the durable state; only the loop goroutine writes it
	st state.State
}

// New creates an agent and reconciles configuration with persisted
// state. On first run (no state file) the agent starts at sequence 0
// for the configured epoch, so its first heartbeat carries sequence 1.
// A persisted epoch that differs from the configured epoch is a fatal
// configuration error: the operator must reconcile epochs explicitly.
func New(cfg Config) (*Agent, error) {
	if err := cfg.ValidateBasic(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	st, found, err := cfg.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load persistent state: %w", err)
	}
	if found && st.Epoch != cfg.Epoch {
		return nil, fmt.Errorf("%w: persisted=%d configured=%d",
			ErrStaleEpoch, st.Epoch, cfg.Epoch)
	}
	if !found {
		st = state.State{Epoch: cfg.Epoch}
	}

	return &Agent{
		cfg:    cfg,
		logger: cfg.Logger.With(zap.Uint64("party", uint64(cfg.PartyID))),
		now:    cfg.Now,
		st:     st,
	}, nil
}

// Phase returns the loop's current phase
func (a *Agent) Phase() Phase {
	return Phase(atomic.LoadInt32(&a.phase))
}

func (a *Agent) setPhase(p Phase) {
	atomic.StoreInt32(&a.phase, int32(p))
}

// NextSequence returns the sequence the next heartbeat will carry
func (a *Agent) NextSequence() uint64 {
	return a.st.LastAckedSequence + 1
}

// Run drives the liveness loop until ctx is cancelled. It returns nil
// on cancellation and an error only for fatal conditions: a failure to
// persist acknowledged progress must halt the agent rather than risk
// reusing an acknowledged sequence.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("agent starting",
		zap.Uint64("epoch", uint64(a.cfg.Epoch)),
		zap.Uint64("next_sequence", a.NextSequence()),
		zap.Duration("interval", a.cfg.Interval))

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	// First attempt immediately; ticks pace the rest.
	if err := a.attempt(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("agent stopping")
			return nil
		case <-ticker.C:
			if err := a.attempt(ctx); err != nil {
				return err
			}
		}
	}
}

// attempt performs one bounded heartbeat exchange. Transport failures
// and protocol rejections are logged and absorbed — the same sequence is
// retried on the next tick. Only a persistence failure is returned.
func (a *Agent) attempt(ctx context.Context) error {
	defer a.setPhase(PhaseIdle)

	sequence := a.NextSequence()
	payload, err := wire.BuildHeartbeat(
		a.cfg.PartyID, a.cfg.Epoch, sequence,
		uint64(a.now().UnixMilli()), a.cfg.Identity.PrivKey())
	if err != nil {
		return fmt.Errorf("failed to build heartbeat: %w", err)
	}

	a.setPhase(PhaseConnecting)
	dialer := net.Dialer{Timeout: a.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", a.cfg.WatchtowerAddr)
	if err != nil {
		a.logger.Warn("connect failed, will retry with same sequence",
			zap.Uint64("sequence", sequence), zap.Error(err))
		return nil
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(a.cfg.Timeout)); err != nil {
		a.logger.Warn("failed to set deadline", zap.Error(err))
		return nil
	}

	a.setPhase(PhaseSending)
	if err := wire.WriteFrame(conn, payload); err != nil {
		a.logger.Warn("send failed, will retry with same sequence",
			zap.Uint64("sequence", sequence), zap.Error(err))
		return nil
	}

	a.setPhase(PhaseAwaitingAck)
	response, err := wire.ReadFrame(conn)
	if err != nil {
		a.logger.Warn("no acknowledgment, will retry with same sequence",
			zap.Uint64("sequence", sequence), zap.Error(err))
		return nil
	}

	ack, err := wire.DecodeAck(response)
	if err != nil {
		a.logger.Warn("bad acknowledgment, will retry with same sequence",
			zap.Uint64("sequence", sequence), zap.Error(err))
		return nil
	}

	if !ack.Accepted {
		a.logger.Warn("heartbeat rejected",
			zap.Uint64("sequence", sequence),
			zap.String("reason", ack.Reason.String()))
		return nil
	}

	// Commit before the sequence is ever considered consumed. A crash
	// before this point retries the same sequence; a crash after it
	// starts from the acknowledged one.
	committed := state.State{
		Epoch:             a.cfg.Epoch,
		LastAckedSequence: sequence,
		LastAckTimestamp:  uint64(a.now().UnixMilli()),
	}
	if err := a.cfg.Store.Save(committed); err != nil {
		return fmt.Errorf("%w: %v", ErrStatePersist, err)
	}
	a.st = committed

	a.logger.Info("heartbeat acknowledged",
		zap.Uint64("sequence", sequence),
		zap.Uint32("alive", ack.Summary.Alive),
		zap.Uint32("suspected", ack.Summary.Suspected),
		zap.Uint32("dead", ack.Summary.Dead))
	return nil
}
