// Package wtdb stores the watchtower's append-only log of accepted
// heartbeats for the active epoch.
//
// Each accepted heartbeat is appended as a signed record, 1-indexed, and
// survives watchtower restarts. Snapshots commit to this log by Merkle
// root, and parties can fetch ranges back out to audit the watchtower.
package wtdb

import (
	"encoding/binary"
	"errors"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/blockberries/watchberry/types"
	"github.com/blockberries/watchberry/wire"
)

const dbFilePerm = 0600

// Errors
var (
	ErrInvalidRange    = errors.New("invalid entry range")
	ErrRangeOutOfBound = errors.New("entry range out of bounds")
)

// Log is an append-only heartbeat log scoped to one epoch
type Log struct {
	db    *bolt.DB
	epoch types.Epoch
}

// Open opens (creating if needed) the log database for an epoch
func Open(path string, epoch types.Epoch) (*Log, error) {
	db, err := bolt.Open(path, dbFilePerm, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open heartbeat log: %w", err)
	}

	l := &Log{db: db, epoch: epoch}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(l.bucketName())
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create log bucket: %w", err)
	}
	return l, nil
}

// Close closes the underlying database
func (l *Log) Close() error {
	return l.db.Close()
}

// bucketName returns the per-epoch bucket key
func (l *Log) bucketName() []byte {
	return []byte(fmt.Sprintf("heartbeats-%d", l.epoch))
}

// Append adds an accepted heartbeat to the log and returns its 1-indexed
// position.
func (l *Log) Append(hb *types.Heartbeat) (uint64, error) {
	var index uint64
	err := l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(l.bucketName())
		if b == nil {
			return errors.New("log bucket missing")
		}

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		index = seq

		var key [8]byte
		binary.BigEndian.PutUint64(key[:], index)
		return b.Put(key[:], wire.EncodeHeartbeatEntry(hb))
	})
	if err != nil {
		return 0, fmt.Errorf("failed to append heartbeat: %w", err)
	}
	return index, nil
}

// Len returns the number of entries in the log
func (l *Log) Len() (uint64, error) {
	var n uint64
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(l.bucketName())
		if b == nil {
			return errors.New("log bucket missing")
		}
		n = b.Sequence()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Entries returns log entries [from..to], 1-indexed and inclusive
func (l *Log) Entries(from, to uint64) ([]*types.Heartbeat, error) {
	if from == 0 || to == 0 || from > to {
		return nil, fmt.Errorf("%w: from=%d to=%d (must be 1-indexed, from<=to)",
			ErrInvalidRange, from, to)
	}

	var entries []*types.Heartbeat
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(l.bucketName())
		if b == nil {
			return errors.New("log bucket missing")
		}
		if to > b.Sequence() {
			return fmt.Errorf("%w: to=%d > log_len=%d", ErrRangeOutOfBound, to, b.Sequence())
		}

		entries = make([]*types.Heartbeat, 0, to-from+1)
		for i := from; i <= to; i++ {
			var key [8]byte
			binary.BigEndian.PutUint64(key[:], i)
			raw := b.Get(key[:])
			if raw == nil {
				return fmt.Errorf("missing log entry %d", i)
			}
			hb, err := wire.DecodeHeartbeatEntry(raw)
			if err != nil {
				return fmt.Errorf("log entry %d: %w", i, err)
			}
			entries = append(entries, hb)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// LeafHashes returns the Merkle leaf hashes of the whole log in order.
// Used to build snapshot commitments.
func (l *Log) LeafHashes() ([]types.Hash, error) {
	n, err := l.Len()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	entries, err := l.Entries(1, n)
	if err != nil {
		return nil, err
	}
	leaves := make([]types.Hash, 0, len(entries))
	for _, hb := range entries {
		leaves = append(leaves, types.LeafHash(wire.EncodeHeartbeatEntry(hb)))
	}
	return leaves, nil
}
