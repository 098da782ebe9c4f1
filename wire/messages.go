package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/blockberries/watchberry/types"
)

const (
	ackPayloadSize        = 1 + 8 + 1 + 1 + 4 + 4 + 4
	snapshotReqSize       = 1 + 8
	snapshotPayloadSize   = 1 + 8 + 8 + types.HashSize + types.SignatureSize
	entriesRequestSize    = 1 + 8 + 8 + 8
	entriesHeaderSize     = 1 + 4
	maxEntriesPerResponse = (maxFrameSize - entriesHeaderSize) / heartbeatEntrySize
)

// EncodeAck serializes an acknowledgment
func EncodeAck(ack *types.Ack) []byte {
	payload := make([]byte, ackPayloadSize)
	payload[0] = byte(MsgAck)
	binary.BigEndian.PutUint64(payload[1:9], uint64(ack.Epoch))
	if ack.Accepted {
		payload[9] = 1
	}
	payload[10] = byte(ack.Reason)
	binary.BigEndian.PutUint32(payload[11:15], ack.Summary.Alive)
	binary.BigEndian.PutUint32(payload[15:19], ack.Summary.Suspected)
	binary.BigEndian.PutUint32(payload[19:23], ack.Summary.Dead)
	return payload
}

// DecodeAck parses an acknowledgment payload
func DecodeAck(payload []byte) (*types.Ack, error) {
	if len(payload) != ackPayloadSize {
		return nil, fmt.Errorf("%w: ack payload must be %d bytes, got %d",
			ErrMalformedMessage, ackPayloadSize, len(payload))
	}
	if MessageType(payload[0]) != MsgAck {
		return nil, fmt.Errorf("%w: unexpected message type 0x%02x", ErrMalformedMessage, payload[0])
	}
	if payload[9] > 1 {
		return nil, fmt.Errorf("%w: invalid accepted flag", ErrMalformedMessage)
	}
	reason := types.RejectReason(payload[10])
	if reason > types.RejectReplayedSequence {
		return nil, fmt.Errorf("%w: invalid reject reason %d", ErrMalformedMessage, reason)
	}

	return &types.Ack{
		Epoch:    types.Epoch(binary.BigEndian.Uint64(payload[1:9])),
		Accepted: payload[9] == 1,
		Reason:   reason,
		Summary: types.LivenessSummary{
			Alive:     binary.BigEndian.Uint32(payload[11:15]),
			Suspected: binary.BigEndian.Uint32(payload[15:19]),
			Dead:      binary.BigEndian.Uint32(payload[19:23]),
		},
	}, nil
}

// EncodeSnapshotRequest serializes a snapshot request for an epoch
func EncodeSnapshotRequest(epoch types.Epoch) []byte {
	payload := make([]byte, snapshotReqSize)
	payload[0] = byte(MsgSnapshotReq)
	binary.BigEndian.PutUint64(payload[1:9], uint64(epoch))
	return payload
}

// DecodeSnapshotRequest parses a snapshot request
func DecodeSnapshotRequest(payload []byte) (types.Epoch, error) {
	if len(payload) != snapshotReqSize || MessageType(payload[0]) != MsgSnapshotReq {
		return 0, fmt.Errorf("%w: bad snapshot request", ErrMalformedMessage)
	}
	return types.Epoch(binary.BigEndian.Uint64(payload[1:9])), nil
}

// EncodeSnapshot serializes a signed snapshot
func EncodeSnapshot(snap *types.SignedSnapshot) []byte {
	payload := make([]byte, 0, snapshotPayloadSize)
	payload = append(payload, byte(MsgSnapshot))
	payload = append(payload, types.SnapshotSignBytes(&snap.Msg)...)
	payload = append(payload, snap.Signature.Data...)
	return payload
}

// DecodeSnapshot parses a signed snapshot payload
func DecodeSnapshot(payload []byte) (*types.SignedSnapshot, error) {
	if len(payload) != snapshotPayloadSize || MessageType(payload[0]) != MsgSnapshot {
		return nil, fmt.Errorf("%w: bad snapshot payload", ErrMalformedMessage)
	}

	root, err := types.NewHash(payload[17 : 17+types.HashSize])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	sig, err := types.NewSignature(payload[17+types.HashSize:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	return &types.SignedSnapshot{
		Msg: types.SnapshotMessage{
			Epoch:      types.Epoch(binary.BigEndian.Uint64(payload[1:9])),
			LogLen:     binary.BigEndian.Uint64(payload[9:17]),
			MerkleRoot: root,
		},
		Signature: sig,
	}, nil
}

// EncodeEntriesRequest serializes a 1-indexed inclusive range request
// against the accepted-heartbeat log.
func EncodeEntriesRequest(epoch types.Epoch, from, to uint64) []byte {
	payload := make([]byte, entriesRequestSize)
	payload[0] = byte(MsgEntriesRequest)
	binary.BigEndian.PutUint64(payload[1:9], uint64(epoch))
	binary.BigEndian.PutUint64(payload[9:17], from)
	binary.BigEndian.PutUint64(payload[17:25], to)
	return payload
}

// DecodeEntriesRequest parses an entries request
func DecodeEntriesRequest(payload []byte) (epoch types.Epoch, from, to uint64, err error) {
	if len(payload) != entriesRequestSize || MessageType(payload[0]) != MsgEntriesRequest {
		return 0, 0, 0, fmt.Errorf("%w: bad entries request", ErrMalformedMessage)
	}
	epoch = types.Epoch(binary.BigEndian.Uint64(payload[1:9]))
	from = binary.BigEndian.Uint64(payload[9:17])
	to = binary.BigEndian.Uint64(payload[17:25])
	return epoch, from, to, nil
}

// EncodeEntries serializes a batch of accepted heartbeats
func EncodeEntries(entries []*types.Heartbeat) ([]byte, error) {
	if len(entries) > maxEntriesPerResponse {
		return nil, fmt.Errorf("%w: %d entries", ErrFrameTooLarge, len(entries))
	}
	payload := make([]byte, 0, entriesHeaderSize+len(entries)*heartbeatEntrySize)
	payload = append(payload, byte(MsgEntries))

	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(entries)))
	payload = append(payload, count[:]...)

	for _, hb := range entries {
		payload = append(payload, EncodeHeartbeatEntry(hb)...)
	}
	return payload, nil
}

// DecodeEntries parses a batch of accepted heartbeats
func DecodeEntries(payload []byte) ([]*types.Heartbeat, error) {
	if len(payload) < entriesHeaderSize || MessageType(payload[0]) != MsgEntries {
		return nil, fmt.Errorf("%w: bad entries payload", ErrMalformedMessage)
	}
	count := binary.BigEndian.Uint32(payload[1:5])
	body := payload[entriesHeaderSize:]
	if uint64(len(body)) != uint64(count)*heartbeatEntrySize {
		return nil, fmt.Errorf("%w: entries body length %d does not match count %d",
			ErrMalformedMessage, len(body), count)
	}

	entries := make([]*types.Heartbeat, 0, count)
	for i := uint32(0); i < count; i++ {
		hb, err := DecodeHeartbeatEntry(body[i*heartbeatEntrySize : (i+1)*heartbeatEntrySize])
		if err != nil {
			return nil, err
		}
		entries = append(entries, hb)
	}
	return entries, nil
}

// Failure codes carried on a MsgFail response
const (
	FailCodeBadRequest   uint16 = 1
	FailCodeInvalidRange uint16 = 2
	FailCodeUnavailable  uint16 = 3
)

const failPayloadSize = 1 + 2

// EncodeFail serializes a failure response for non-heartbeat requests.
// Heartbeats are never answered with MsgFail; they always get an Ack.
func EncodeFail(code uint16) []byte {
	payload := make([]byte, failPayloadSize)
	payload[0] = byte(MsgFail)
	binary.BigEndian.PutUint16(payload[1:3], code)
	return payload
}

// DecodeFail parses a failure response
func DecodeFail(payload []byte) (uint16, error) {
	if len(payload) != failPayloadSize || MessageType(payload[0]) != MsgFail {
		return 0, fmt.Errorf("%w: bad fail payload", ErrMalformedMessage)
	}
	return binary.BigEndian.Uint16(payload[1:3]), nil
}

// PayloadType returns the message type of a payload, or an error for an
// empty payload. Dispatchers use it before handing off to a decoder.
func PayloadType(payload []byte) (MessageType, error) {
	if len(payload) == 0 {
		return 0, fmt.Errorf("%w: empty payload", ErrMalformedMessage)
	}
	return MessageType(payload[0]), nil
}
