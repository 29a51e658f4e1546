package registry

import (
	"sync"

	"github.com/roach88/s01l/internal/ir"
)

// Config describes a registry deployment.
type Config struct {
	// Address is the registry's own address.
	Address ir.Address
	// Deployer becomes the initial owner.
	Deployer ir.Address
	// Cost is reported by the cost accessor. It is informational; no call
	// is rejected for payment.
	Cost uint64
}

// Result is the outcome of an accepted call.
type Result struct {
	Events []ir.Event
	// Contract is the created contract for S0WS33D and createSprout,
	// zero otherwise.
	Contract ir.Address
}

// Registry serializes access to one State. Each Execute runs Transition
// and Apply under the lock, so calls never interleave.
//
// Thread-safety: safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	state *State
	cost  uint64
}

// New deploys a registry and returns it with the genesis events: the
// ownership transfer from the zero address to the deployer.
func New(cfg Config) (*Registry, []ir.Event, error) {
	if cfg.Deployer.IsZero() {
		return nil, nil, reject(CodeInvalidAddress, "deploy", cfg.Deployer, "deployer is the zero address")
	}
	r := &Registry{
		state: NewState(cfg.Address, cfg.Deployer),
		cost:  cfg.Cost,
	}
	genesis := []ir.Event{ir.OwnershipTransferred{PreviousOwner: ir.ZeroAddress, NewOwner: cfg.Deployer}}
	return r, genesis, nil
}

// Execute runs one call atomically. On rejection nothing changes.
func (r *Registry) Execute(caller ir.Address, call Call) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delta, events, err := Transition(r.state, caller, call)
	if err != nil {
		return Result{}, err
	}
	r.state.Apply(delta)

	res := Result{Events: events}
	if delta.Record != nil {
		res.Contract = delta.Record.Address
	}
	return res, nil
}

// Preview runs a call against a copy of the current state and reports what
// Execute would return, without committing.
func (r *Registry) Preview(caller ir.Address, call Call) (Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delta, events, err := Transition(r.state, caller, call)
	if err != nil {
		return Result{}, err
	}
	res := Result{Events: events}
	if delta.Record != nil {
		res.Contract = delta.Record.Address
	}
	return res, nil
}

// Snapshot returns a deep copy of the current state.
func (r *Registry) Snapshot() *State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Clone()
}

// Address returns the registry's own address.
func (r *Registry) Address() ir.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Self
}

// Cost returns the configured deployment cost.
func (r *Registry) Cost() uint64 {
	return r.cost
}

// Owner returns the current owner, zero after renounce.
func (r *Registry) Owner() ir.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Owner
}

// GetS33DContract returns the address of S33D id, or zero if unassigned.
func (r *Registry) GetS33DContract(id uint64) ir.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.S33D[id]
}

// GetSproutContract returns the address of Sprout id, or zero if unassigned.
func (r *Registry) GetSproutContract(id uint64) ir.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Sprouts[id]
}

// IsValidS33DContract reports whether addr was created by S0WS33D.
func (r *Registry) IsValidS33DContract(addr ir.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.state.Records[addr]
	return ok && rec.Kind == ir.ContractS33D
}

// GetLastS33DContract returns the most recently created S33D, or zero.
func (r *Registry) GetLastS33DContract() ir.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.S33D[r.state.S33DCounter]
}

// GetLastS33DContractID returns the S33D counter.
func (r *Registry) GetLastS33DContractID() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.S33DCounter
}

// GetLastSproutContract returns the most recently created Sprout, or zero.
func (r *Registry) GetLastSproutContract() ir.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Sprouts[r.state.SproutCounter]
}

// GetLastSproutID returns the Sprout counter.
func (r *Registry) GetLastSproutID() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.SproutCounter
}

// TrustedContracts reports whether addr is in the trusted set.
func (r *Registry) TrustedContracts(addr ir.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Trusted[addr]
}

// ParentChildRelationship returns the parent of child, or zero.
func (r *Registry) ParentChildRelationship(child ir.Address) ir.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Parents[child]
}

// Record returns the contract record for addr.
func (r *Registry) Record(addr ir.Address) (ir.ContractRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.state.Records[addr]
	return rec, ok
}
