package registry

import (
	"sync"

	"github.com/blockberries/watchberry/types"
)

// offenseBook tallies protocol rejections per offending party. The
// tallies are purely observational: they feed metrics and operator
// queries and never influence acceptance decisions.
type offenseBook struct {
	mu     sync.Mutex
	counts map[types.PartyID]map[types.RejectReason]uint64
}

func newOffenseBook() *offenseBook {
	return &offenseBook{
		counts: make(map[types.PartyID]map[types.RejectReason]uint64),
	}
}

// record tallies one rejection for a party
func (ob *offenseBook) record(id types.PartyID, reason types.RejectReason) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	byReason, ok := ob.counts[id]
	if !ok {
		byReason = make(map[types.RejectReason]uint64)
		ob.counts[id] = byReason
	}
	byReason[reason]++
}

// forParty returns a copy of one party's tallies
func (ob *offenseBook) forParty(id types.PartyID) map[types.RejectReason]uint64 {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	out := make(map[types.RejectReason]uint64, len(ob.counts[id]))
	for reason, n := range ob.counts[id] {
		out[reason] = n
	}
	return out
}

// total returns the total number of rejections recorded for a party
func (ob *offenseBook) total(id types.PartyID) uint64 {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	var n uint64
	for _, c := range ob.counts[id] {
		n += c
	}
	return n
}
