package wire

import (
	"errors"
	"testing"

	"github.com/blockberries/watchberry/types"
)

func TestAckRoundTrip(t *testing.T) {
	ack := &types.Ack{
		Epoch:    3,
		Accepted: true,
		Reason:   types.RejectNone,
		Summary:  types.LivenessSummary{Alive: 4, Suspected: 1, Dead: 2},
	}

	got, err := DecodeAck(EncodeAck(ack))
	if err != nil {
		t.Fatalf("DecodeAck failed: %v", err)
	}
	if *got != *ack {
		t.Errorf("ack mismatch: got %+v, want %+v", got, ack)
	}
}

func TestAckRejection(t *testing.T) {
	ack := &types.Ack{
		Epoch:  3,
		Reason: types.RejectReplayedSequence,
	}

	got, err := DecodeAck(EncodeAck(ack))
	if err != nil {
		t.Fatalf("DecodeAck failed: %v", err)
	}
	if got.Accepted {
		t.Error("expected rejected ack")
	}
	if got.Reason != types.RejectReplayedSequence {
		t.Errorf("expected replayed_sequence reason, got %v", got.Reason)
	}
}

func TestDecodeAckMalformed(t *testing.T) {
	valid := EncodeAck(&types.Ack{Epoch: 1, Accepted: true})

	badFlag := append([]byte{}, valid...)
	badFlag[9] = 7

	badReason := append([]byte{}, valid...)
	badReason[10] = 200

	cases := []struct {
		name    string
		payload []byte
	}{
		{"short", valid[:5]},
		{"wrong type", append([]byte{byte(MsgHeartbeat)}, valid[1:]...)},
		{"bad accepted flag", badFlag},
		{"bad reason", badReason},
	}
	for _, tc := range cases {
		if _, err := DecodeAck(tc.payload); !errors.Is(err, ErrMalformedMessage) {
			t.Errorf("%s: expected ErrMalformedMessage, got %v", tc.name, err)
		}
	}
}

func TestSnapshotRequestRoundTrip(t *testing.T) {
	epoch, err := DecodeSnapshotRequest(EncodeSnapshotRequest(9))
	if err != nil {
		t.Fatalf("DecodeSnapshotRequest failed: %v", err)
	}
	if epoch != 9 {
		t.Errorf("expected epoch 9, got %d", epoch)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	_, priv := makeKeyPair(t)
	snap, err := types.SignSnapshot(priv, &types.SnapshotMessage{
		Epoch:      3,
		LogLen:     17,
		MerkleRoot: types.HashBytes([]byte("root")),
	})
	if err != nil {
		t.Fatalf("SignSnapshot failed: %v", err)
	}

	got, err := DecodeSnapshot(EncodeSnapshot(&snap))
	if err != nil {
		t.Fatalf("DecodeSnapshot failed: %v", err)
	}
	if got.Msg.Epoch != 3 || got.Msg.LogLen != 17 {
		t.Errorf("field mismatch: %+v", got.Msg)
	}
	if !types.HashEqual(got.Msg.MerkleRoot, snap.Msg.MerkleRoot) {
		t.Error("merkle root mismatch after round trip")
	}
}

func TestEntriesRequestRoundTrip(t *testing.T) {
	epoch, from, to, err := DecodeEntriesRequest(EncodeEntriesRequest(3, 1, 50))
	if err != nil {
		t.Fatalf("DecodeEntriesRequest failed: %v", err)
	}
	if epoch != 3 || from != 1 || to != 50 {
		t.Errorf("field mismatch: epoch=%d from=%d to=%d", epoch, from, to)
	}
}

func TestEntriesRoundTrip(t *testing.T) {
	_, priv := makeKeyPair(t)

	var entries []*types.Heartbeat
	for i := uint64(1); i <= 3; i++ {
		hb := &types.Heartbeat{PartyID: types.PartyID(i), Epoch: 3, Sequence: i, Timestamp: i * 100}
		if err := types.SignHeartbeat(priv, hb); err != nil {
			t.Fatalf("SignHeartbeat failed: %v", err)
		}
		entries = append(entries, hb)
	}

	encoded, err := EncodeEntries(entries)
	if err != nil {
		t.Fatalf("EncodeEntries failed: %v", err)
	}
	got, err := DecodeEntries(encoded)
	if err != nil {
		t.Fatalf("DecodeEntries failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	for i, hb := range got {
		if hb.Sequence != entries[i].Sequence || hb.PartyID != entries[i].PartyID {
			t.Errorf("entry %d mismatch: %+v", i, hb)
		}
	}
}

func TestEntriesEmpty(t *testing.T) {
	encoded, err := EncodeEntries(nil)
	if err != nil {
		t.Fatalf("EncodeEntries failed: %v", err)
	}
	got, err := DecodeEntries(encoded)
	if err != nil {
		t.Fatalf("DecodeEntries failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no entries, got %d", len(got))
	}
}

func TestDecodeEntriesCountMismatch(t *testing.T) {
	encoded, err := EncodeEntries(nil)
	if err != nil {
		t.Fatalf("EncodeEntries failed: %v", err)
	}
	// Claim one entry but carry no body
	encoded[4] = 1

	if _, err := DecodeEntries(encoded); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("expected ErrMalformedMessage, got %v", err)
	}
}

func TestFailRoundTrip(t *testing.T) {
	code, err := DecodeFail(EncodeFail(FailCodeInvalidRange))
	if err != nil {
		t.Fatalf("DecodeFail failed: %v", err)
	}
	if code != FailCodeInvalidRange {
		t.Errorf("expected code %d, got %d", FailCodeInvalidRange, code)
	}
}

func TestPayloadType(t *testing.T) {
	msgType, err := PayloadType(EncodeFail(FailCodeBadRequest))
	if err != nil {
		t.Fatalf("PayloadType failed: %v", err)
	}
	if msgType != MsgFail {
		t.Errorf("expected MsgFail, got %v", msgType)
	}

	if _, err := PayloadType(nil); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("expected ErrMalformedMessage for empty payload, got %v", err)
	}
}
