package registry

import (
	"maps"

	"github.com/roach88/s01l/internal/ir"
)

// State is the registry's authoritative storage.
type State struct {
	// Self is the registry's own address; created contract addresses
	// derive from it.
	Self ir.Address

	Owner   ir.Address
	Trusted map[ir.Address]bool

	S33DCounter   uint64
	SproutCounter uint64

	S33D    map[uint64]ir.Address
	Sprouts map[uint64]ir.Address
	Records map[ir.Address]ir.ContractRecord
	Parents map[ir.Address]ir.Address
}

// NewState returns the state of a freshly deployed registry.
func NewState(self, owner ir.Address) *State {
	return &State{
		Self:    self,
		Owner:   owner,
		Trusted: make(map[ir.Address]bool),
		S33D:    make(map[uint64]ir.Address),
		Sprouts: make(map[uint64]ir.Address),
		Records: make(map[ir.Address]ir.ContractRecord),
		Parents: make(map[ir.Address]ir.Address),
	}
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := *s
	c.Trusted = maps.Clone(s.Trusted)
	c.S33D = maps.Clone(s.S33D)
	c.Sprouts = maps.Clone(s.Sprouts)
	c.Records = maps.Clone(s.Records)
	c.Parents = maps.Clone(s.Parents)
	return &c
}

// nonce is the creation nonce the next created contract derives from.
func (s *State) nonce() uint64 {
	return s.S33DCounter + s.SproutCounter + 1
}

// LineageEdge maps a child contract to the contract that created it.
type LineageEdge struct {
	Child  ir.Address
	Parent ir.Address
}

// Delta is the complete set of writes one accepted call makes.
// A zero Delta writes nothing.
type Delta struct {
	Owner  *ir.Address
	Trust  map[ir.Address]bool
	Record *ir.ContractRecord
	Edge   *LineageEdge
}

// Apply commits every write in d. Deltas come from Transition against the
// same state, so Apply does no validation of its own.
func (s *State) Apply(d Delta) {
	if d.Owner != nil {
		s.Owner = *d.Owner
	}
	for addr, trusted := range d.Trust {
		if trusted {
			s.Trusted[addr] = true
		} else {
			delete(s.Trusted, addr)
		}
	}
	if r := d.Record; r != nil {
		switch r.Kind {
		case ir.ContractS33D:
			s.S33DCounter = r.ID
			s.S33D[r.ID] = r.Address
		case ir.ContractSprout:
			s.SproutCounter = r.ID
			s.Sprouts[r.ID] = r.Address
		}
		s.Records[r.Address] = *r
	}
	if e := d.Edge; e != nil {
		s.Parents[e.Child] = e.Parent
	}
}
