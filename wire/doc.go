// Package wire implements the framed binary protocol spoken between
// parties and the watchtower.
//
// Every request/response exchange carries exactly one frame each way. A
// frame is a big-endian uint32 length, the payload, and a CRC32 (IEEE)
// checksum of the payload. The payload starts with a one-byte message
// type followed by fixed-order big-endian fields; signatures are appended
// last and are always exactly 64 bytes.
//
// ParseAndVerifyHeartbeat performs its checks cheapest-first: structural
// parse, then epoch equality, then key lookup, then Ed25519 verification,
// so malformed or epoch-stale traffic never reaches the signature check.
package wire
