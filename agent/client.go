package agent

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/blockberries/watchberry/types"
	"github.com/blockberries/watchberry/wire"
)

// Errors
var (
	ErrRequestFailed  = errors.New("watchtower refused the request")
	ErrLogLenMismatch = errors.New("entry count does not match snapshot log length")
	ErrRootMismatch   = errors.New("recomputed merkle root does not match snapshot")
	ErrEntryEpoch     = errors.New("log entry from a different epoch")
	ErrEntrySignature = errors.New("log entry carries an invalid signature")
)

const defaultClientTimeout = 5 * time.Second

// Client queries the watchtower's audit surface: signed snapshots and
// ranges of the accepted-heartbeat log. Each request uses its own
// connection, mirroring the one-exchange-per-connection server.
type Client struct {
	addr    string
	timeout time.Duration
}

// NewClient creates an audit client for the watchtower at addr
func NewClient(addr string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	return &Client{addr: addr, timeout: timeout}
}

// roundTrip dials, sends one request payload and reads one response
func (c *Client) roundTrip(request []byte) ([]byte, error) {
	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, err
	}
	if err := wire.WriteFrame(conn, request); err != nil {
		return nil, err
	}
	response, err := wire.ReadFrame(conn)
	if err != nil {
		return nil, err
	}

	if msgType, err := wire.PayloadType(response); err == nil && msgType == wire.MsgFail {
		code, err := wire.DecodeFail(response)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: code %d", ErrRequestFailed, code)
	}
	return response, nil
}

// FetchSnapshot requests the watchtower's signed log commitment
func (c *Client) FetchSnapshot(epoch types.Epoch) (*types.SignedSnapshot, error) {
	response, err := c.roundTrip(wire.EncodeSnapshotRequest(epoch))
	if err != nil {
		return nil, err
	}
	return wire.DecodeSnapshot(response)
}

// FetchEntries requests accepted heartbeats [from..to], 1-indexed
func (c *Client) FetchEntries(epoch types.Epoch, from, to uint64) ([]*types.Heartbeat, error) {
	response, err := c.roundTrip(wire.EncodeEntriesRequest(epoch, from, to))
	if err != nil {
		return nil, err
	}
	return wire.DecodeEntries(response)
}

// VerifySnapshotAndLog checks a fetched log against a fetched snapshot:
// the watchtower's signature over the snapshot, the entry count against
// the committed log length, every entry's epoch and party signature, and
// finally the recomputed Merkle root against the committed root. The
// lookup resolves party public keys, normally a roster's Lookup.
func VerifySnapshotAndLog(wtPub types.PublicKey, snap *types.SignedSnapshot, entries []*types.Heartbeat, epoch types.Epoch, lookup wire.PublicKeyLookup) error {
	if err := types.VerifySnapshotSignature(snap, wtPub); err != nil {
		return err
	}
	if snap.Msg.Epoch != epoch {
		return fmt.Errorf("%w: snapshot is for epoch %d, wanted %d",
			ErrEntryEpoch, snap.Msg.Epoch, epoch)
	}
	if uint64(len(entries)) != snap.Msg.LogLen {
		return fmt.Errorf("%w: %d entries, snapshot commits to %d",
			ErrLogLenMismatch, len(entries), snap.Msg.LogLen)
	}

	leaves := make([]types.Hash, 0, len(entries))
	for i, hb := range entries {
		if hb.Epoch != epoch {
			return fmt.Errorf("%w: entry %d is for epoch %d", ErrEntryEpoch, i+1, hb.Epoch)
		}
		pubKey, err := lookup(hb.PartyID)
		if err != nil {
			return fmt.Errorf("entry %d: unknown party %d", i+1, hb.PartyID)
		}
		if err := types.VerifyHeartbeatSignature(hb, pubKey); err != nil {
			return fmt.Errorf("%w: entry %d party %d", ErrEntrySignature, i+1, hb.PartyID)
		}
		leaves = append(leaves, types.LeafHash(wire.EncodeHeartbeatEntry(hb)))
	}

	if root := types.MerkleRoot(leaves); !types.HashEqual(root, snap.Msg.MerkleRoot) {
		return ErrRootMismatch
	}
	return nil
}
