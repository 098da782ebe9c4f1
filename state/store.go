// Package state persists a party's last-acknowledged progress.
//
// The store holds one snapshot: {epoch, last_acknowledged_sequence,
// last_ack_timestamp}. Saves write a complete snapshot to a temporary
// file, fsync it, and atomically rename it into place, so a crash
// mid-write never leaves a torn record. Loads return the last complete
// snapshot or an explicit absent result on first run.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/blockberries/watchberry/types"
)

const (
	stateFilePerm = 0600
	stateDirPerm  = 0700
)

// Errors
var (
	ErrCorruptState = errors.New("corrupt state file")
)

// State is a party's durable progress record. LastAckedSequence only
// advances after a confirmed acknowledgment, never speculatively.
type State struct {
	Epoch            types.Epoch `json:"epoch"`
	LastAckedSequence uint64     `json:"last_acknowledged_sequence"`
	LastAckTimestamp  uint64     `json:"last_ack_timestamp"`
}

// Store reads and writes a party's state file
type Store struct {
	path string
}

// NewStore creates a store for the given state file path
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load returns the persisted state. The second return value is false on
// first run, when no state file exists yet.
func (s *Store) Load() (State, bool, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("failed to read state file: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, false, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	return st, true, nil
}

// Save durably replaces the persisted state. The snapshot is complete
// before it becomes visible: write to a temporary file in the same
// directory, fsync, then rename over the old file.
func (s *Store) Save(st State) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, stateDirPerm); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp state file: %w", err)
	}
	if err := tmp.Chmod(stateFilePerm); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// Path returns the state file location
func (s *Store) Path() string {
	return s.path
}
