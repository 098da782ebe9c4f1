package types

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
)

// SnapshotFieldsSize is the size of the canonical snapshot encoding
// without the signature: epoch and log length (8 bytes big-endian each)
// followed by the Merkle root.
const SnapshotFieldsSize = 16 + HashSize

// Errors
var (
	ErrInvalidSnapshot      = errors.New("invalid snapshot")
	ErrBadSnapshotSignature = errors.New("invalid snapshot signature")
)

// SnapshotMessage commits the watchtower to its accepted-heartbeat log:
// the log length and the Merkle root over entries [1..LogLen] for Epoch.
type SnapshotMessage struct {
	Epoch      Epoch
	LogLen     uint64
	MerkleRoot Hash
}

// SignedSnapshot is a snapshot message plus the watchtower's signature
type SignedSnapshot struct {
	Msg       SnapshotMessage
	Signature Signature
}

// SnapshotSignBytes returns the canonical bytes covered by the snapshot
// signature: epoch, log length, Merkle root, in that order.
func SnapshotSignBytes(msg *SnapshotMessage) []byte {
	buf := make([]byte, SnapshotFieldsSize)
	binary.BigEndian.PutUint64(buf[0:8], uint64(msg.Epoch))
	binary.BigEndian.PutUint64(buf[8:16], msg.LogLen)
	copy(buf[16:], msg.MerkleRoot.Data)
	return buf
}

// SignSnapshot signs a snapshot message with the watchtower key.
// The signature is Ed25519 over the SHA-256 of the sign bytes.
func SignSnapshot(priv ed25519.PrivateKey, msg *SnapshotMessage) (SignedSnapshot, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return SignedSnapshot{}, errors.New("invalid private key size")
	}
	if len(msg.MerkleRoot.Data) != HashSize {
		return SignedSnapshot{}, ErrInvalidSnapshot
	}
	digest := HashBytes(SnapshotSignBytes(msg))
	sig := ed25519.Sign(priv, digest.Data)
	return SignedSnapshot{
		Msg:       *msg,
		Signature: MustNewSignature(sig),
	}, nil
}

// VerifySnapshotSignature verifies the watchtower signature on a snapshot
func VerifySnapshotSignature(snap *SignedSnapshot, pubKey PublicKey) error {
	if snap == nil || len(snap.Msg.MerkleRoot.Data) != HashSize {
		return ErrInvalidSnapshot
	}
	if len(pubKey.Data) != ed25519.PublicKeySize {
		return errors.New("invalid public key size")
	}
	digest := HashBytes(SnapshotSignBytes(&snap.Msg))
	if !ed25519.Verify(pubKey.Data, digest.Data, snap.Signature.Data) {
		return ErrBadSnapshotSignature
	}
	return nil
}
