package registry

import (
	"unicode/utf8"

	"github.com/roach88/s01l/internal/ir"
)

// Transition validates call against s on behalf of caller and returns the
// writes and events it produces. s is not modified. On error the Delta is
// empty and no events are returned.
func Transition(s *State, caller ir.Address, call Call) (Delta, []ir.Event, error) {
	if call == nil {
		return Delta{}, nil, reject(CodeInvalidInput, "transition", caller, "nil call")
	}
	op := call.Method()
	if caller.IsZero() {
		return Delta{}, nil, reject(CodeInvalidAddress, op, caller, "caller is the zero address")
	}

	switch c := call.(type) {
	case Seed:
		return seed(s, caller, c)
	case CreateSprout:
		return createSprout(s, caller, c)
	case AddTrusted:
		if err := requireOwner(s, op, caller); err != nil {
			return Delta{}, nil, err
		}
		if c.Contract.IsZero() {
			return Delta{}, nil, reject(CodeInvalidAddress, op, caller, "contract is the zero address")
		}
		return Delta{Trust: map[ir.Address]bool{c.Contract: true}},
			[]ir.Event{ir.TrustedContractAdded{ContractAddress: c.Contract}}, nil
	case RemoveTrusted:
		if err := requireOwner(s, op, caller); err != nil {
			return Delta{}, nil, err
		}
		if c.Contract.IsZero() {
			return Delta{}, nil, reject(CodeInvalidAddress, op, caller, "contract is the zero address")
		}
		return Delta{Trust: map[ir.Address]bool{c.Contract: false}},
			[]ir.Event{ir.TrustedContractRemoved{ContractAddress: c.Contract}}, nil
	case TransferOwnership:
		if err := requireOwner(s, op, caller); err != nil {
			return Delta{}, nil, err
		}
		if c.NewOwner.IsZero() {
			return Delta{}, nil, reject(CodeInvalidAddress, op, caller, "new owner is the zero address")
		}
		return ownerDelta(s.Owner, c.NewOwner)
	case RenounceOwnership:
		if err := requireOwner(s, op, caller); err != nil {
			return Delta{}, nil, err
		}
		return ownerDelta(s.Owner, ir.ZeroAddress)
	default:
		return Delta{}, nil, reject(CodeInvalidInput, op, caller, "unsupported call %T", call)
	}
}

// requireOwner rejects callers other than the current owner. Once ownership
// is renounced the owner is zero and no caller can match it.
func requireOwner(s *State, op string, caller ir.Address) error {
	if s.Owner.IsZero() || caller != s.Owner {
		return reject(CodeUnauthorized, op, caller, "caller is not the owner")
	}
	return nil
}

func ownerDelta(prev, next ir.Address) (Delta, []ir.Event, error) {
	return Delta{Owner: &next},
		[]ir.Event{ir.OwnershipTransferred{PreviousOwner: prev, NewOwner: next}}, nil
}

func seed(s *State, caller ir.Address, c Seed) (Delta, []ir.Event, error) {
	if !utf8.ValidString(c.Name) || !utf8.ValidString(c.Symbol) {
		return Delta{}, nil, reject(CodeInvalidInput, MethodSeed, caller, "name and symbol must be valid UTF-8")
	}
	id := s.S33DCounter + 1
	addr := ir.ContractAddress(s.Self, s.nonce())
	if err := checkUnused(s, MethodSeed, caller, addr); err != nil {
		return Delta{}, nil, err
	}
	if _, taken := s.S33D[id]; taken {
		return Delta{}, nil, reject(CodeWriteOnce, MethodSeed, caller, "S33D id %d already assigned", id)
	}
	rec := ir.ContractRecord{
		Kind:      ir.ContractS33D,
		ID:        id,
		Address:   addr,
		Owner:     caller,
		Name:      c.Name,
		Symbol:    c.Symbol,
		CreatedBy: caller,
	}
	return Delta{Record: &rec},
		[]ir.Event{ir.S33DContractCreated{ContractAddress: addr, ContractID: id}}, nil
}

func createSprout(s *State, caller ir.Address, c CreateSprout) (Delta, []ir.Event, error) {
	op := MethodCreateSprout
	if caller != s.Owner && !s.Trusted[caller] {
		return Delta{}, nil, reject(CodeUnauthorized, op, caller, "caller is neither owner nor trusted")
	}
	if c.NewOwner.IsZero() {
		return Delta{}, nil, reject(CodeInvalidAddress, op, caller, "new owner is the zero address")
	}
	id := s.SproutCounter + 1
	addr := ir.ContractAddress(s.Self, s.nonce())
	if err := checkUnused(s, op, caller, addr); err != nil {
		return Delta{}, nil, err
	}
	if _, taken := s.Sprouts[id]; taken {
		return Delta{}, nil, reject(CodeWriteOnce, op, caller, "Sprout id %d already assigned", id)
	}
	if _, hasParent := s.Parents[addr]; hasParent {
		return Delta{}, nil, reject(CodeWriteOnce, op, caller, "lineage edge for %s already set", addr)
	}
	rec := ir.ContractRecord{
		Kind:      ir.ContractSprout,
		ID:        id,
		Address:   addr,
		Owner:     c.NewOwner,
		Parent:    caller,
		CreatedBy: caller,
	}
	return Delta{Record: &rec, Edge: &LineageEdge{Child: addr, Parent: caller}},
		[]ir.Event{ir.SproutContractCreated{ContractAddress: addr, SproutID: id, Parent: caller}}, nil
}

func checkUnused(s *State, op string, caller, addr ir.Address) error {
	if _, exists := s.Records[addr]; exists {
		return reject(CodeWriteOnce, op, caller, "contract %s already recorded", addr)
	}
	return nil
}
