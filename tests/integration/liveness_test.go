package integration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/blockberries/watchberry/agent"
	"github.com/blockberries/watchberry/keystore"
	"github.com/blockberries/watchberry/registry"
	"github.com/blockberries/watchberry/state"
	"github.com/blockberries/watchberry/types"
	"github.com/blockberries/watchberry/watchtower"
	"github.com/blockberries/watchberry/wtdb"
)

const testEpoch = types.Epoch(7)

// testCluster is a watchtower plus the identities of its roster parties
type testCluster struct {
	server     *watchtower.Server
	registry   *registry.Registry
	clock      *manualClock
	identities map[types.PartyID]*keystore.Identity
	dir        string
}

// manualClock drives the sweep deterministically
type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time          { return c.now }
func (c *manualClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func setupCluster(t *testing.T, parties int) *testCluster {
	t.Helper()
	dir := t.TempDir()

	identities := make(map[types.PartyID]*keystore.Identity)
	roster := make(map[types.PartyID]types.PublicKey)
	for i := 1; i <= parties; i++ {
		id := types.PartyID(i)
		identity, err := keystore.GenerateIdentity(filepath.Join(dir, "party_keys", partyName(id)+".json"))
		if err != nil {
			t.Fatalf("failed to generate party key: %v", err)
		}
		identities[id] = identity
		roster[id] = identity.PubKey()
	}

	signer, err := keystore.GenerateIdentity(filepath.Join(dir, "wt_key.json"))
	if err != nil {
		t.Fatalf("failed to generate watchtower key: %v", err)
	}

	auditLog, err := wtdb.Open(filepath.Join(dir, "heartbeats.db"), testEpoch)
	if err != nil {
		t.Fatalf("failed to open audit log: %v", err)
	}
	t.Cleanup(func() { auditLog.Close() })

	clock := &manualClock{now: time.Unix(1700000000, 0)}
	reg, err := registry.New(registry.Config{
		Epoch:        testEpoch,
		SuspectAfter: 10 * time.Second,
		DeadAfter:    20 * time.Second,
		Roster:       keystore.NewRoster(roster),
		AuditLog:     auditLog,
		Signer:       signer,
		Now:          clock.Now,
	})
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}

	server, err := watchtower.New(watchtower.Config{
		BindAddr: "127.0.0.1:0",
		Registry: reg,
	})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	if err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })

	return &testCluster{
		server:     server,
		registry:   reg,
		clock:      clock,
		identities: identities,
		dir:        dir,
	}
}

func partyName(id types.PartyID) string {
	return "party" + string(rune('0'+id))
}

func (c *testCluster) startAgent(t *testing.T, id types.PartyID, interval time.Duration) (*agent.Agent, *state.Store) {
	t.Helper()

	store := state.NewStore(filepath.Join(c.dir, "state", partyName(id)+".json"))
	a, err := agent.New(agent.Config{
		WatchtowerAddr: c.server.Addr().String(),
		Epoch:          testEpoch,
		PartyID:        id,
		Interval:       interval,
		Timeout:        2 * time.Second,
		Identity:       c.identities[id],
		Store:          store,
	})
	if err != nil {
		t.Fatalf("failed to create agent %d: %v", id, err)
	}
	return a, store
}

// waitForSequence polls a store until the persisted sequence reaches n
func waitForSequence(t *testing.T, store *state.Store, n uint64) state.State {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		st, found, err := store.Load()
		if err != nil {
			t.Fatalf("failed to load state: %v", err)
		}
		if found && st.LastAckedSequence >= n {
			return st
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for sequence %d", n)
	return state.State{}
}

func TestHeartbeatsDriveLiveness(t *testing.T) {
	cluster := setupCluster(t, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a1, store1 := cluster.startAgent(t, 1, 50*time.Millisecond)
	a2, store2 := cluster.startAgent(t, 2, 50*time.Millisecond)
	go a1.Run(ctx)
	go a2.Run(ctx)

	waitForSequence(t, store1, 3)
	waitForSequence(t, store2, 3)
	cancel()

	// Both parties are alive; heartbeats are in the audit log
	sum := cluster.registry.Summary()
	if sum.Alive != 2 {
		t.Errorf("expected 2 alive parties, got %+v", sum)
	}

	v1, err := cluster.registry.Record(1)
	if err != nil {
		t.Fatalf("failed to read record: %v", err)
	}
	if v1.LastSequence < 3 {
		t.Errorf("expected party 1 sequence >= 3, got %d", v1.LastSequence)
	}
}

func TestAgentResumesAfterRestart(t *testing.T) {
	cluster := setupCluster(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	a1, store1 := cluster.startAgent(t, 1, 50*time.Millisecond)
	go a1.Run(ctx)

	st := waitForSequence(t, store1, 2)
	cancel()
	lastAcked := st.LastAckedSequence

	// A restarted agent picks up after the last acknowledged sequence
	// and the watchtower accepts its next heartbeat.
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	restarted, _ := cluster.startAgent(t, 1, 50*time.Millisecond)
	if restarted.NextSequence() != lastAcked+1 {
		t.Fatalf("expected restart at sequence %d, got %d", lastAcked+1, restarted.NextSequence())
	}
	go restarted.Run(ctx2)

	waitForSequence(t, store1, lastAcked+1)
}

func TestSilentPartySweptToDead(t *testing.T) {
	cluster := setupCluster(t, 2)

	ctx, cancel := context.WithCancel(context.Background())
	a1, store1 := cluster.startAgent(t, 1, 50*time.Millisecond)
	go a1.Run(ctx)
	waitForSequence(t, store1, 1)
	cancel()

	// Silence past the suspect threshold
	cluster.clock.advance(11 * time.Second)
	cluster.registry.SweepOnce(cluster.clock.Now())
	v, err := cluster.registry.Record(1)
	if err != nil {
		t.Fatalf("failed to read record: %v", err)
	}
	if v.Status != types.StatusSuspected {
		t.Fatalf("expected suspected, got %v", v.Status)
	}

	// And past the dead threshold
	cluster.clock.advance(10 * time.Second)
	cluster.registry.SweepOnce(cluster.clock.Now())
	v, err = cluster.registry.Record(1)
	if err != nil {
		t.Fatalf("failed to read record: %v", err)
	}
	if v.Status != types.StatusDead {
		t.Fatalf("expected dead, got %v", v.Status)
	}

	// Party 2 never contacted the watchtower and stays unknown
	v2, err := cluster.registry.Record(2)
	if err != nil {
		t.Fatalf("failed to read record: %v", err)
	}
	if v2.Status != types.StatusUnknown {
		t.Errorf("expected unknown for silent party, got %v", v2.Status)
	}
}

func TestAuditPathEndToEnd(t *testing.T) {
	cluster := setupCluster(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	a1, store1 := cluster.startAgent(t, 1, 50*time.Millisecond)
	go a1.Run(ctx)
	waitForSequence(t, store1, 3)
	cancel()

	// Fetch the signed commitment and the full log over the wire, then
	// verify them against each other with only public material.
	client := agent.NewClient(cluster.server.Addr().String(), 2*time.Second)
	snap, err := client.FetchSnapshot(testEpoch)
	if err != nil {
		t.Fatalf("FetchSnapshot failed: %v", err)
	}
	if snap.Msg.LogLen < 3 {
		t.Fatalf("expected at least 3 log entries, got %d", snap.Msg.LogLen)
	}

	entries, err := client.FetchEntries(testEpoch, 1, snap.Msg.LogLen)
	if err != nil {
		t.Fatalf("FetchEntries failed: %v", err)
	}

	roster := keystore.NewRoster(map[types.PartyID]types.PublicKey{
		1: cluster.identities[1].PubKey(),
	})
	signerPub := snapshotSignerKey(t, cluster)
	if err := agent.VerifySnapshotAndLog(signerPub, snap, entries, testEpoch, roster.Lookup); err != nil {
		t.Errorf("audit verification failed: %v", err)
	}
}

// snapshotSignerKey loads the watchtower's public key from its key file
func snapshotSignerKey(t *testing.T, cluster *testCluster) types.PublicKey {
	t.Helper()
	signer, err := keystore.LoadIdentity(filepath.Join(cluster.dir, "wt_key.json"))
	if err != nil {
		t.Fatalf("failed to load watchtower key: %v", err)
	}
	return signer.PubKey()
}
