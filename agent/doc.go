// Package agent drives the periodic liveness loop for one monitored
// party.
//
// The loop is a single goroutine with at most one heartbeat attempt in
// flight: Idle -> Connecting -> Sending -> AwaitingAck -> Idle. Every
// failure path routes back to Idle and the next timer tick retries with
// the same sequence number — safe, because a sequence is only consumed
// once the watchtower has acknowledged it and the new state has been
// durably persisted. The persist happens before the loop leaves
// AwaitingAck, so a crash at any point never reuses an acknowledged
// sequence and never records an unacknowledged one.
//
// A Client is also provided for the audit path: fetching the
// watchtower's signed snapshot and log entries and verifying them
// against each other.
package agent
