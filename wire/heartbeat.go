package wire

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"

	"github.com/blockberries/watchberry/types"
)

// MessageType identifies a payload on the wire
type MessageType uint8

const (
	MsgHeartbeat      MessageType = 0x01
	MsgAck            MessageType = 0x02
	MsgSnapshotReq    MessageType = 0x03
	MsgSnapshot       MessageType = 0x04
	MsgEntriesRequest MessageType = 0x05
	MsgEntries        MessageType = 0x06
	MsgFail           MessageType = 0x07
)

const (
	// heartbeatPayloadSize: type byte, canonical fields, signature
	heartbeatPayloadSize = 1 + types.HeartbeatFieldsSize + types.SignatureSize

	// heartbeatEntrySize is a heartbeat without the type byte, as stored
	// in the audit log and carried in Entries responses
	heartbeatEntrySize = types.HeartbeatFieldsSize + types.SignatureSize
)

// PublicKeyLookup resolves a party id to its registered public key.
// Implementations return an error for unregistered parties; the codec
// maps any lookup failure to ErrUnknownParty.
type PublicKeyLookup func(types.PartyID) (types.PublicKey, error)

// BuildHeartbeat serializes the heartbeat fields in canonical order, signs
// them and appends the signature, returning the complete payload.
func BuildHeartbeat(partyID types.PartyID, epoch types.Epoch, sequence, timestamp uint64, priv ed25519.PrivateKey) ([]byte, error) {
	hb := &types.Heartbeat{
		PartyID:   partyID,
		Epoch:     epoch,
		Sequence:  sequence,
		Timestamp: timestamp,
	}
	if err := types.SignHeartbeat(priv, hb); err != nil {
		return nil, err
	}
	return EncodeHeartbeat(hb), nil
}

// EncodeHeartbeat serializes an already-signed heartbeat
func EncodeHeartbeat(hb *types.Heartbeat) []byte {
	payload := make([]byte, 0, heartbeatPayloadSize)
	payload = append(payload, byte(MsgHeartbeat))
	payload = append(payload, types.HeartbeatSignBytes(hb)...)
	payload = append(payload, hb.Signature.Data...)
	return payload
}

// ParseHeartbeat performs the structural parse only. No epoch or
// signature checks happen here; callers that accept heartbeats must use
// ParseAndVerifyHeartbeat instead.
func ParseHeartbeat(payload []byte) (*types.Heartbeat, error) {
	if len(payload) != heartbeatPayloadSize {
		return nil, fmt.Errorf("%w: heartbeat payload must be %d bytes, got %d",
			ErrMalformedMessage, heartbeatPayloadSize, len(payload))
	}
	if MessageType(payload[0]) != MsgHeartbeat {
		return nil, fmt.Errorf("%w: unexpected message type 0x%02x", ErrMalformedMessage, payload[0])
	}

	fields := payload[1 : 1+types.HeartbeatFieldsSize]
	sig, err := types.NewSignature(payload[1+types.HeartbeatFieldsSize:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	return &types.Heartbeat{
		PartyID:   types.PartyID(binary.BigEndian.Uint64(fields[0:8])),
		Epoch:     types.Epoch(binary.BigEndian.Uint64(fields[8:16])),
		Sequence:  binary.BigEndian.Uint64(fields[16:24]),
		Timestamp: binary.BigEndian.Uint64(fields[24:32]),
		Signature: sig,
	}, nil
}

// ParseAndVerifyHeartbeat parses a heartbeat payload and authenticates it.
// Checks run cheapest-first: structure, epoch, key lookup, signature.
// Failures map to exactly one of ErrMalformedMessage, ErrEpochMismatch,
// ErrUnknownParty or ErrBadSignature.
func ParseAndVerifyHeartbeat(payload []byte, expectedEpoch types.Epoch, lookup PublicKeyLookup) (*types.Heartbeat, error) {
	hb, err := ParseHeartbeat(payload)
	if err != nil {
		return nil, err
	}

	if hb.Epoch != expectedEpoch {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrEpochMismatch, expectedEpoch, hb.Epoch)
	}

	pubKey, err := lookup(hb.PartyID)
	if err != nil {
		return nil, fmt.Errorf("%w: party %d", ErrUnknownParty, hb.PartyID)
	}

	if err := types.VerifyHeartbeatSignature(hb, pubKey); err != nil {
		return nil, fmt.Errorf("%w: party %d: %v", ErrBadSignature, hb.PartyID, err)
	}

	return hb, nil
}

// EncodeHeartbeatEntry serializes a heartbeat for the audit log and for
// Entries responses: canonical fields followed by the signature, no type
// byte. Entries are signed records, so they can be re-verified later.
func EncodeHeartbeatEntry(hb *types.Heartbeat) []byte {
	entry := make([]byte, 0, heartbeatEntrySize)
	entry = append(entry, types.HeartbeatSignBytes(hb)...)
	entry = append(entry, hb.Signature.Data...)
	return entry
}

// DecodeHeartbeatEntry parses a stored heartbeat entry
func DecodeHeartbeatEntry(entry []byte) (*types.Heartbeat, error) {
	if len(entry) != heartbeatEntrySize {
		return nil, fmt.Errorf("%w: entry must be %d bytes, got %d",
			ErrMalformedMessage, heartbeatEntrySize, len(entry))
	}
	sig, err := types.NewSignature(entry[types.HeartbeatFieldsSize:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return &types.Heartbeat{
		PartyID:   types.PartyID(binary.BigEndian.Uint64(entry[0:8])),
		Epoch:     types.Epoch(binary.BigEndian.Uint64(entry[8:16])),
		Sequence:  binary.BigEndian.Uint64(entry[16:24]),
		Timestamp: binary.BigEndian.Uint64(entry[24:32]),
		Signature: sig,
	}, nil
}
