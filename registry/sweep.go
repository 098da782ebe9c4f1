package registry

import (
	"time"

	"go.uber.org/zap"

	"github.com/blockberries/watchberry/internal/telemetry"
	"github.com/blockberries/watchberry/types"
)

// StartSweeper launches the background sweep. It runs until StopSweeper
// is called, independently of any heartbeat traffic.
func (r *Registry) StartSweeper() error {
	r.sweepMu.Lock()
	defer r.sweepMu.Unlock()

	if r.sweepQuit != nil {
		return ErrAlreadyStarted
	}
	r.sweepQuit = make(chan struct{})

	r.sweepWg.Add(1)
	go r.sweepLoop(r.sweepQuit)
	return nil
}

// StopSweeper stops the background sweep and waits for it to exit
func (r *Registry) StopSweeper() error {
	r.sweepMu.Lock()
	if r.sweepQuit == nil {
		r.sweepMu.Unlock()
		return ErrNotStarted
	}
	quit := r.sweepQuit
	r.sweepQuit = nil
	r.sweepMu.Unlock()

	close(quit)
	r.sweepWg.Wait()
	return nil
}

func (r *Registry) sweepLoop(quit chan struct{}) {
	defer r.sweepWg.Done()

	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			r.SweepOnce(r.now())
		}
	}
}

// SweepOnce runs a single sweep pass against every record, applying the
// suspect and dead thresholds. Exposed so tests and operators can drive
// the sweep with a controlled clock.
func (r *Registry) SweepOnce(now time.Time) {
	start := time.Now()

	r.mu.RLock()
	records := make([]*PartyRecord, 0, len(r.parties))
	for _, record := range r.parties {
		records = append(records, record)
	}
	r.mu.RUnlock()

	for _, record := range records {
		status, changed := record.sweep(now, r.cfg.SuspectAfter, r.cfg.DeadAfter)
		if changed {
			r.logger.Info("liveness status changed",
				zap.Uint64("party", uint64(record.id)),
				zap.String("status", status.String()))
		}
	}

	r.publishStatusMetrics()
	telemetry.SweepDuration.Observe(time.Since(start).Seconds())
}

// publishStatusMetrics refreshes the per-status party gauges
func (r *Registry) publishStatusMetrics() {
	var unknown, alive, suspected, dead float64
	for _, view := range r.Records() {
		switch view.Status {
		case types.StatusAlive:
			alive++
		case types.StatusSuspected:
			suspected++
		case types.StatusDead:
			dead++
		default:
			unknown++
		}
	}
	telemetry.PartiesByStatus.WithLabelValues(types.StatusUnknown.String()).Set(unknown)
	telemetry.PartiesByStatus.WithLabelValues(types.StatusAlive.String()).Set(alive)
	telemetry.PartiesByStatus.WithLabelValues(types.StatusSuspected.String()).Set(suspected)
	telemetry.PartiesByStatus.WithLabelValues(types.StatusDead.String()).Set(dead)
}
