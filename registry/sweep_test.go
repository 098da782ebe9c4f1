package registry

import (
	"testing"
	"time"

	"github.com/blockberries/watchberry/types"
)

func status(t *testing.T, h *testHarness, id types.PartyID) types.LivenessStatus {
	t.Helper()
	view, err := h.reg.Record(id)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	return view.Status
}

func TestSweepAliveToSuspected(t *testing.T) {
	h := newHarness(t, 1, nil) // suspect 10s, dead 20s

	if _, err := h.send(t, 1, testEpoch, 1); err != nil {
		t.Fatalf("heartbeat failed: %v", err)
	}

	// Within the suspect threshold nothing changes
	h.clock.advance(9 * time.Second)
	h.reg.SweepOnce(h.clock.Now())
	if got := status(t, h, 1); got != types.StatusAlive {
		t.Fatalf("expected alive at 9s, got %v", got)
	}

	// Past it the party is suspected
	h.clock.advance(2 * time.Second)
	h.reg.SweepOnce(h.clock.Now())
	if got := status(t, h, 1); got != types.StatusSuspected {
		t.Fatalf("expected suspected at 11s, got %v", got)
	}
}

func TestSweepSuspectedToDead(t *testing.T) {
	h := newHarness(t, 1, nil)

	if _, err := h.send(t, 1, testEpoch, 1); err != nil {
		t.Fatalf("heartbeat failed: %v", err)
	}

	h.clock.advance(11 * time.Second)
	h.reg.SweepOnce(h.clock.Now())
	if got := status(t, h, 1); got != types.StatusSuspected {
		t.Fatalf("expected suspected, got %v", got)
	}

	h.clock.advance(10 * time.Second)
	h.reg.SweepOnce(h.clock.Now())
	if got := status(t, h, 1); got != types.StatusDead {
		t.Fatalf("expected dead at 21s, got %v", got)
	}
}

func TestSweepAliveToDeadInOnePass(t *testing.T) {
	h := newHarness(t, 1, nil)

	if _, err := h.send(t, 1, testEpoch, 1); err != nil {
		t.Fatalf("heartbeat failed: %v", err)
	}

	// Far past the dead threshold both transitions fire in one sweep
	h.clock.advance(time.Minute)
	h.reg.SweepOnce(h.clock.Now())
	if got := status(t, h, 1); got != types.StatusDead {
		t.Fatalf("expected dead after long silence, got %v", got)
	}
}

func TestSweepLeavesUnknownAlone(t *testing.T) {
	h := newHarness(t, 1, nil)

	// Never heard from: the sweep must not invent a status
	h.clock.advance(time.Hour)
	h.reg.SweepOnce(h.clock.Now())
	if got := status(t, h, 1); got != types.StatusUnknown {
		t.Fatalf("expected unknown, got %v", got)
	}
}

func TestHeartbeatRevivesParty(t *testing.T) {
	h := newHarness(t, 1, nil)

	if _, err := h.send(t, 1, testEpoch, 1); err != nil {
		t.Fatalf("heartbeat failed: %v", err)
	}

	h.clock.advance(time.Minute)
	h.reg.SweepOnce(h.clock.Now())
	if got := status(t, h, 1); got != types.StatusDead {
		t.Fatalf("expected dead, got %v", got)
	}

	// A fresh accepted heartbeat brings even a dead party back
	if _, err := h.send(t, 1, testEpoch, 2); err != nil {
		t.Fatalf("revival heartbeat failed: %v", err)
	}
	if got := status(t, h, 1); got != types.StatusAlive {
		t.Fatalf("expected alive after revival, got %v", got)
	}
}

func TestSweepIndependentParties(t *testing.T) {
	h := newHarness(t, 3, nil)

	if _, err := h.send(t, 1, testEpoch, 1); err != nil {
		t.Fatalf("heartbeat failed: %v", err)
	}
	if _, err := h.send(t, 2, testEpoch, 1); err != nil {
		t.Fatalf("heartbeat failed: %v", err)
	}

	// Party 1 keeps beating; party 2 goes silent; party 3 never spoke
	h.clock.advance(11 * time.Second)
	if _, err := h.send(t, 1, testEpoch, 2); err != nil {
		t.Fatalf("heartbeat failed: %v", err)
	}
	h.reg.SweepOnce(h.clock.Now())

	if got := status(t, h, 1); got != types.StatusAlive {
		t.Errorf("party 1: expected alive, got %v", got)
	}
	if got := status(t, h, 2); got != types.StatusSuspected {
		t.Errorf("party 2: expected suspected, got %v", got)
	}
	if got := status(t, h, 3); got != types.StatusUnknown {
		t.Errorf("party 3: expected unknown, got %v", got)
	}

	sum := h.reg.Summary()
	if sum.Alive != 1 || sum.Suspected != 1 || sum.Dead != 0 {
		t.Errorf("unexpected summary: %+v", sum)
	}
}

func TestSweeperStartStop(t *testing.T) {
	h := newHarness(t, 1, nil)

	if err := h.reg.StartSweeper(); err != nil {
		t.Fatalf("StartSweeper failed: %v", err)
	}
	if err := h.reg.StartSweeper(); err != ErrAlreadyStarted {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}

	if err := h.reg.StopSweeper(); err != nil {
		t.Fatalf("StopSweeper failed: %v", err)
	}
	if err := h.reg.StopSweeper(); err != ErrNotStarted {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}

	// Restart after stop is allowed
	if err := h.reg.StartSweeper(); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if err := h.reg.StopSweeper(); err != nil {
		t.Fatalf("stop after restart failed: %v", err)
	}
}
