package types

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
)

// PartyID identifies a monitored participant within an epoch
type PartyID uint64

// Epoch identifies the logical era the watchtower and all parties must
// agree on before any heartbeat is accepted
type Epoch uint64

// HeartbeatFieldsSize is the size of the canonical heartbeat encoding
// without the signature: party id, epoch, sequence and timestamp, each
// 8 bytes big-endian.
const HeartbeatFieldsSize = 32

// Errors
var (
	ErrInvalidHeartbeat = errors.New("invalid heartbeat")
	ErrNoSignature      = errors.New("heartbeat has no signature")
	ErrBadSignature     = errors.New("invalid heartbeat signature")
)

// Heartbeat is a signed, sequenced liveness attestation. Sequence is
// strictly increasing per (party, epoch); Timestamp is Unix milliseconds
// as reported by the sender.
type Heartbeat struct {
	PartyID   PartyID
	Epoch     Epoch
	Sequence  uint64
	Timestamp uint64
	Signature Signature
}

// HeartbeatSignBytes returns the canonical bytes covered by the heartbeat
// signature: party id, epoch, sequence, timestamp, big-endian, in that
// order. The signature itself is never part of the signed payload.
func HeartbeatSignBytes(hb *Heartbeat) []byte {
	buf := make([]byte, HeartbeatFieldsSize)
	binary.BigEndian.PutUint64(buf[0:8], uint64(hb.PartyID))
	binary.BigEndian.PutUint64(buf[8:16], uint64(hb.Epoch))
	binary.BigEndian.PutUint64(buf[16:24], hb.Sequence)
	binary.BigEndian.PutUint64(buf[24:32], hb.Timestamp)
	return buf
}

// SignHeartbeat signs the canonical encoding and fills in the signature.
// The signature is Ed25519 over the SHA-256 of the sign bytes.
func SignHeartbeat(priv ed25519.PrivateKey, hb *Heartbeat) error {
	if len(priv) != ed25519.PrivateKeySize {
		return errors.New("invalid private key size")
	}
	digest := HashBytes(HeartbeatSignBytes(hb))
	sig := ed25519.Sign(priv, digest.Data)
	hb.Signature = MustNewSignature(sig)
	return nil
}

// VerifyHeartbeatSignature verifies the signature on a heartbeat
func VerifyHeartbeatSignature(hb *Heartbeat, pubKey PublicKey) error {
	if hb == nil {
		return ErrInvalidHeartbeat
	}
	if len(hb.Signature.Data) == 0 {
		return ErrNoSignature
	}
	if len(pubKey.Data) != ed25519.PublicKeySize {
		return errors.New("invalid public key size")
	}

	digest := HashBytes(HeartbeatSignBytes(hb))
	if !ed25519.Verify(pubKey.Data, digest.Data, hb.Signature.Data) {
		return ErrBadSignature
	}
	return nil
}
