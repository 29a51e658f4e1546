package query

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/s01l/internal/ir"
	"github.com/roach88/s01l/internal/registry"
)

// Snapshot is registry state rebuilt from indexed history alone.
type Snapshot struct {
	Head          *Head                     `json:"head"`
	Owner         ir.Address                `json:"owner"`
	Trusted       []ir.Address              `json:"trusted"`
	S33DCounter   uint64                    `json:"s33d_counter"`
	SproutCounter uint64                    `json:"sprout_counter"`
	S33D          map[uint64]ir.Address     `json:"s33d"`
	Sprouts       map[uint64]ir.Address     `json:"sprouts"`
	Parents       map[ir.Address]ir.Address `json:"parents"`
}

// Reconstruct folds every indexed entity, in position order, into the
// registry state it implies. At a consistent checkpoint the result equals
// the registry's own state at that block.
func (s *Service) Reconstruct(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{
		S33D:    map[uint64]ir.Address{},
		Sprouts: map[uint64]ir.Address{},
		Parents: map[ir.Address]ir.Address{},
	}
	trusted := map[ir.Address]bool{}

	head, err := s.head(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Head = head

	err = s.each(ctx, ListParams{}, func(e ir.Entity) error {
		ev, err := e.Event()
		if err != nil {
			return fmt.Errorf("entity %s: %w", e.ID, err)
		}
		switch ev := ev.(type) {
		case ir.OwnershipTransferred:
			snap.Owner = ev.NewOwner
		case ir.TrustedContractAdded:
			trusted[ev.ContractAddress] = true
		case ir.TrustedContractRemoved:
			delete(trusted, ev.ContractAddress)
		case ir.S33DContractCreated:
			snap.S33D[ev.ContractID] = ev.ContractAddress
			snap.S33DCounter = max(snap.S33DCounter, ev.ContractID)
		case ir.SproutContractCreated:
			snap.Sprouts[ev.SproutID] = ev.ContractAddress
			snap.Parents[ev.ContractAddress] = ev.Parent
			snap.SproutCounter = max(snap.SproutCounter, ev.SproutID)
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("reconstruct: %w", err)
	}

	snap.Trusted = slices.SortedFunc(maps.Keys(trusted), func(a, b ir.Address) int {
		return slices.Compare(a[:], b[:])
	})
	return snap, nil
}

// Diff lists the ways snap disagrees with the registry's own state. An
// empty result means the index reproduces the registry exactly.
func (snap Snapshot) Diff(state *registry.State) []string {
	trusted := slices.SortedFunc(maps.Keys(state.Trusted), func(a, b ir.Address) int {
		return slices.Compare(a[:], b[:])
	})

	var diffs []string
	if snap.Owner != state.Owner {
		diffs = append(diffs, fmt.Sprintf("owner %s != %s", snap.Owner, state.Owner))
	}
	if snap.S33DCounter != state.S33DCounter || snap.SproutCounter != state.SproutCounter {
		diffs = append(diffs, fmt.Sprintf("counters %d/%d != %d/%d",
			snap.S33DCounter, snap.SproutCounter, state.S33DCounter, state.SproutCounter))
	}
	if !slices.Equal(snap.Trusted, trusted) {
		diffs = append(diffs, fmt.Sprintf("trusted set of %d != %d", len(snap.Trusted), len(trusted)))
	}
	if !maps.Equal(snap.S33D, state.S33D) || !maps.Equal(snap.Sprouts, state.Sprouts) {
		diffs = append(diffs, "contract ids differ")
	}
	if !maps.Equal(snap.Parents, state.Parents) {
		diffs = append(diffs, "lineage differs")
	}
	return diffs
}
