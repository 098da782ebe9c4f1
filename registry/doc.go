// Package registry implements the watchtower's central liveness
// authority for one epoch.
//
// The registry owns every PartyRecord. Connection handlers feed raw
// heartbeat payloads to HandleHeartbeat, which authenticates the message
// through the wire codec, enforces strictly-increasing sequence numbers
// per party, and answers with an Ack carrying the current liveness
// summary. Rejections never mutate any record and never affect other
// parties; they are tallied per offending party for operational
// visibility.
//
// A background sweep derives liveness status from recency: a party whose
// last accepted heartbeat is older than the suspect threshold moves
// Alive to Suspected, and older than the dead threshold Suspected to
// Dead. Transitions only move forward within a pass; any freshly
// accepted heartbeat resets the party to Alive.
//
// Mutations are serialized per record: the party map is guarded by a
// read-write mutex and each record carries its own mutex, so two
// heartbeats for different parties update concurrently while the sweep
// interleaves safely.
package registry
