package query

import (
	"context"
	"fmt"
	"strconv"

	"github.com/roach88/s01l/internal/ir"
)

// Link is one parent edge, recorded when a Sprout was created.
type Link struct {
	Contract ir.Address  `json:"contract"`
	SproutID uint64      `json:"sprout_id"`
	Parent   ir.Address  `json:"parent"`
	Position ir.Position `json:"position"`
}

// Lineage is an address's place in the Sprout tree.
type Lineage struct {
	Address ir.Address `json:"address"`
	// Ancestors runs from Address's own creation edge up to the first
	// parent that is not itself a Sprout.
	Ancestors []Link `json:"ancestors"`
	// Children are the Sprouts whose parent is Address, in creation order.
	Children []Link `json:"children"`
}

// Root returns the origin of the chain: the parent of the last ancestor,
// or Address itself when it has no ancestors.
func (l Lineage) Root() ir.Address {
	if len(l.Ancestors) == 0 {
		return l.Address
	}
	return l.Ancestors[len(l.Ancestors)-1].Parent
}

// Lineage walks the parent chain of addr using SproutContractCreated
// entities and lists its direct children. An address that was never
// created as, or by, a Sprout returns ErrNotFound.
func (s *Service) Lineage(ctx context.Context, addr ir.Address) (Lineage, error) {
	out := Lineage{Address: addr, Ancestors: []Link{}, Children: []Link{}}

	seen := map[ir.Address]bool{}
	for cur := addr; !seen[cur]; {
		seen[cur] = true
		link, found, err := s.creation(ctx, cur)
		if err != nil {
			return Lineage{}, err
		}
		if !found {
			break
		}
		out.Ancestors = append(out.Ancestors, link)
		cur = link.Parent
	}

	err := s.each(ctx, ListParams{Kind: ir.KindSproutContractCreated, Parent: addr}, func(e ir.Entity) error {
		link, err := linkOf(e)
		if err != nil {
			return err
		}
		out.Children = append(out.Children, link)
		return nil
	})
	if err != nil {
		return Lineage{}, fmt.Errorf("lineage %s: %w", addr, err)
	}

	if len(out.Ancestors) == 0 && len(out.Children) == 0 {
		return Lineage{}, fmt.Errorf("lineage %s: %w", addr, ErrNotFound)
	}
	return out, nil
}

// creation finds the SproutContractCreated entity for addr.
func (s *Service) creation(ctx context.Context, addr ir.Address) (Link, bool, error) {
	page, err := s.List(ctx, ListParams{
		Kind:            ir.KindSproutContractCreated,
		ContractAddress: addr,
		Limit:           1,
	})
	if err != nil {
		return Link{}, false, fmt.Errorf("lineage %s: %w", addr, err)
	}
	if len(page.Entities) == 0 {
		return Link{}, false, nil
	}
	link, err := linkOf(page.Entities[0])
	return link, err == nil, err
}

func linkOf(e ir.Entity) (Link, error) {
	contract, err := ir.ParseAddress(e.Fields[ir.FieldContractAddress])
	if err != nil {
		return Link{}, fmt.Errorf("entity %s: %w", e.ID, err)
	}
	parent, err := ir.ParseAddress(e.Fields[ir.FieldParent])
	if err != nil {
		return Link{}, fmt.Errorf("entity %s: %w", e.ID, err)
	}
	id, err := strconv.ParseUint(e.Fields[ir.FieldSproutID], 10, 64)
	if err != nil {
		return Link{}, fmt.Errorf("entity %s: sprout id: %w", e.ID, err)
	}
	return Link{Contract: contract, SproutID: id, Parent: parent, Position: e.Position}, nil
}
