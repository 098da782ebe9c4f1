// Package types defines the core data model of the liveness protocol.
//
// A Heartbeat is a signed, sequenced liveness attestation sent by a party
// to the watchtower. The watchtower answers every heartbeat with an Ack
// carrying either acceptance and a liveness summary, or a rejection reason.
//
// # Signing
//
// All signatures are Ed25519 over the SHA-256 hash of the canonical
// encoding of the message. The canonical encoding is a fixed big-endian
// field order defined by HeartbeatSignBytes and SnapshotSignBytes; there is
// no field tagging or length ambiguity, so two implementations that agree
// on the field values agree on the bytes.
//
// # Fixed-size wrappers
//
// Signature and PublicKey wrap raw bytes with size-validated constructors.
// NewSignature/NewPublicKey return an error and are for untrusted input
// (network, files); the MustNew variants panic and are for trusted internal
// data such as crypto library output.
package types
