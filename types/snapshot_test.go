package types

import (
	"testing"
)

func TestSignAndVerifySnapshot(t *testing.T) {
	pub, priv := makeKeyPair(t)

	msg := SnapshotMessage{
		Epoch:      5,
		LogLen:     10,
		MerkleRoot: HashBytes([]byte("root")),
	}
	snap, err := SignSnapshot(priv, &msg)
	if err != nil {
		t.Fatalf("SignSnapshot failed: %v", err)
	}

	if err := VerifySnapshotSignature(&snap, pub); err != nil {
		t.Errorf("valid snapshot rejected: %v", err)
	}
}

func TestVerifySnapshotTampered(t *testing.T) {
	pub, priv := makeKeyPair(t)

	msg := SnapshotMessage{Epoch: 5, LogLen: 10, MerkleRoot: HashBytes([]byte("root"))}
	snap, err := SignSnapshot(priv, &msg)
	if err != nil {
		t.Fatalf("SignSnapshot failed: %v", err)
	}

	tampered := snap
	tampered.Msg.LogLen = 11
	if err := VerifySnapshotSignature(&tampered, pub); err == nil {
		t.Error("tampered log length should fail verification")
	}

	tampered = snap
	tampered.Msg.MerkleRoot = HashBytes([]byte("other"))
	if err := VerifySnapshotSignature(&tampered, pub); err == nil {
		t.Error("tampered root should fail verification")
	}
}

func TestVerifySnapshotWrongKey(t *testing.T) {
	_, priv := makeKeyPair(t)
	otherPub, _ := makeKeyPair(t)

	msg := SnapshotMessage{Epoch: 5, LogLen: 10, MerkleRoot: HashBytes([]byte("root"))}
	snap, err := SignSnapshot(priv, &msg)
	if err != nil {
		t.Fatalf("SignSnapshot failed: %v", err)
	}

	if err := VerifySnapshotSignature(&snap, otherPub); err == nil {
		t.Error("snapshot should not verify under another key")
	}
}

func TestSignSnapshotBadRoot(t *testing.T) {
	_, priv := makeKeyPair(t)

	msg := SnapshotMessage{Epoch: 5, LogLen: 10}
	if _, err := SignSnapshot(priv, &msg); err == nil {
		t.Error("expected error for missing merkle root")
	}
}
