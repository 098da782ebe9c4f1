package keystore

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/blockberries/watchberry/types"
)

// Roster maps party ids to their registered public keys. It is loaded
// once at startup and read-only afterwards, so lookups need no locking.
type Roster struct {
	keys map[types.PartyID]types.PublicKey
}

// rosterEntry is one party in the on-disk roster file
type rosterEntry struct {
	PartyID uint64 `json:"party_id"`
	PubKey  []byte `json:"pub_key"`
}

// rosterFile is the on-disk roster structure
type rosterFile struct {
	Parties []rosterEntry `json:"parties"`
}

// NewRoster builds a roster from an explicit key map, copying it
func NewRoster(keys map[types.PartyID]types.PublicKey) *Roster {
	copied := make(map[types.PartyID]types.PublicKey, len(keys))
	for id, pk := range keys {
		copied[id] = pk
	}
	return &Roster{keys: copied}
}

// LoadRoster reads a roster file. Duplicate party ids and malformed keys
// are rejected; a missing file is ErrKeyLoad like any other key material.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyLoad, err)
	}

	var rf rosterFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrKeyLoad, path, err)
	}

	keys := make(map[types.PartyID]types.PublicKey, len(rf.Parties))
	for _, e := range rf.Parties {
		id := types.PartyID(e.PartyID)
		if _, exists := keys[id]; exists {
			return nil, fmt.Errorf("%w: duplicate party id %d in roster", ErrKeyLoad, id)
		}
		if len(e.PubKey) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("%w: party %d: invalid public key size %d",
				ErrKeyLoad, id, len(e.PubKey))
		}
		keys[id] = types.MustNewPublicKey(e.PubKey)
	}

	return &Roster{keys: keys}, nil
}

// SaveRoster writes a roster file with entries sorted by party id
func SaveRoster(path string, r *Roster) error {
	ids := r.PartyIDs()
	rf := rosterFile{Parties: make([]rosterEntry, 0, len(ids))}
	for _, id := range ids {
		rf.Parties = append(rf.Parties, rosterEntry{
			PartyID: uint64(id),
			PubKey:  r.keys[id].Data,
		})
	}

	data, err := json.MarshalIndent(rf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal roster: %w", err)
	}
	if err := os.WriteFile(path, data, keyFilePerm); err != nil {
		return fmt.Errorf("failed to write roster file: %w", err)
	}
	return nil
}

// Lookup returns the public key registered for a party
func (r *Roster) Lookup(id types.PartyID) (types.PublicKey, error) {
	pk, ok := r.keys[id]
	if !ok {
		return types.PublicKey{}, fmt.Errorf("%w: party %d", ErrUnknownParty, id)
	}
	return pk, nil
}

// Size returns the number of registered parties
func (r *Roster) Size() int {
	return len(r.keys)
}

// PartyIDs returns all registered party ids in ascending order
func (r *Roster) PartyIDs() []types.PartyID {
	ids := make([]types.PartyID, 0, len(r.keys))
	for id := range r.keys {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
