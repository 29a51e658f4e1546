package registry

import (
	"fmt"
	"slices"

	"github.com/roach88/s01l/internal/ir"
)

// Method names as they appear on the call surface and in transactions.
const (
	MethodSeed              = "S0WS33D"
	MethodCreateSprout      = "createSprout"
	MethodAddTrusted        = "addTrustedContract"
	MethodRemoveTrusted     = "removeTrustedContract"
	MethodTransferOwnership = "transferOwnership"
	MethodRenounceOwnership = "renounceOwnership"
)

// Argument names.
const (
	ArgSeedName   = "seedName"
	ArgSeedSymbol = "seedSymbol"
	ArgNewOwner   = "newOwner"
	ArgContract   = "contractAddress"
)

// Call is a sealed interface over the registry's mutating calls.
type Call interface {
	Method() string
	// Args renders the arguments as strings keyed by argument name.
	Args() map[string]string
	sealedCall()
}

// Seed is S0WS33D: create a new S33D contract.
type Seed struct {
	Name   string
	Symbol string
}

// CreateSprout creates a Sprout contract owned by NewOwner, parented by the caller.
type CreateSprout struct {
	NewOwner ir.Address
}

// AddTrusted adds Contract to the trusted set.
type AddTrusted struct {
	Contract ir.Address
}

// RemoveTrusted removes Contract from the trusted set.
type RemoveTrusted struct {
	Contract ir.Address
}

// TransferOwnership hands ownership directly to NewOwner.
type TransferOwnership struct {
	NewOwner ir.Address
}

// RenounceOwnership clears the owner permanently.
type RenounceOwnership struct{}

func (Seed) Method() string              { return MethodSeed }
func (CreateSprout) Method() string      { return MethodCreateSprout }
func (AddTrusted) Method() string        { return MethodAddTrusted }
func (RemoveTrusted) Method() string     { return MethodRemoveTrusted }
func (TransferOwnership) Method() string { return MethodTransferOwnership }
func (RenounceOwnership) Method() string { return MethodRenounceOwnership }

func (c Seed) Args() map[string]string {
	return map[string]string{ArgSeedName: c.Name, ArgSeedSymbol: c.Symbol}
}
func (c CreateSprout) Args() map[string]string {
	return map[string]string{ArgNewOwner: c.NewOwner.String()}
}
func (c AddTrusted) Args() map[string]string {
	return map[string]string{ArgContract: c.Contract.String()}
}
func (c RemoveTrusted) Args() map[string]string {
	return map[string]string{ArgContract: c.Contract.String()}
}
func (c TransferOwnership) Args() map[string]string {
	return map[string]string{ArgNewOwner: c.NewOwner.String()}
}
func (RenounceOwnership) Args() map[string]string { return map[string]string{} }

func (Seed) sealedCall()              {}
func (CreateSprout) sealedCall()      {}
func (AddTrusted) sealedCall()        {}
func (RemoveTrusted) sealedCall()     {}
func (TransferOwnership) sealedCall() {}
func (RenounceOwnership) sealedCall() {}

// Methods lists every mutating method, sorted.
func Methods() []string {
	m := []string{
		MethodSeed, MethodCreateSprout, MethodAddTrusted,
		MethodRemoveTrusted, MethodTransferOwnership, MethodRenounceOwnership,
	}
	slices.Sort(m)
	return m
}

// ParseCall rebuilds a Call from its method name and string arguments.
// Address arguments are parsed but not checked for zero; that is a
// transition-time rejection, not a decoding error.
func ParseCall(method string, args map[string]string) (Call, error) {
	addr := func(name string) (ir.Address, error) {
		v, ok := args[name]
		if !ok {
			return ir.ZeroAddress, fmt.Errorf("%s: missing argument %q", method, name)
		}
		return ir.ParseAddress(v)
	}
	want := 1
	var call Call
	switch method {
	case MethodSeed:
		want = 2
		call = Seed{Name: args[ArgSeedName], Symbol: args[ArgSeedSymbol]}
	case MethodCreateSprout, MethodTransferOwnership:
		a, err := addr(ArgNewOwner)
		if err != nil {
			return nil, err
		}
		if method == MethodCreateSprout {
			call = CreateSprout{NewOwner: a}
		} else {
			call = TransferOwnership{NewOwner: a}
		}
	case MethodAddTrusted, MethodRemoveTrusted:
		a, err := addr(ArgContract)
		if err != nil {
			return nil, err
		}
		if method == MethodAddTrusted {
			call = AddTrusted{Contract: a}
		} else {
			call = RemoveTrusted{Contract: a}
		}
	case MethodRenounceOwnership:
		want = 0
		call = RenounceOwnership{}
	default:
		return nil, fmt.Errorf("unknown method %q", method)
	}
	if len(args) > want {
		return nil, fmt.Errorf("%s: unexpected arguments (got %d, want %d)", method, len(args), want)
	}
	return call, nil
}

// argsAny widens Args for canonical hashing.
func argsAny(c Call) map[string]any {
	out := make(map[string]any)
	for k, v := range c.Args() {
		out[k] = v
	}
	return out
}

// TxHash computes the transaction hash of a call at ledger sequence seq.
func TxHash(caller ir.Address, c Call, seq uint64) (ir.Hash, error) {
	return ir.TxHash(caller, c.Method(), argsAny(c), seq)
}
