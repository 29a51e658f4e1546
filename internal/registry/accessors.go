package registry

import (
	"slices"
	"strconv"

	"github.com/roach88/s01l/internal/ir"
)

type accessor struct {
	arg  string // "", "id", or "address"
	read func(r *Registry, id uint64, addr ir.Address) string
}

func addrString(a ir.Address) string { return a.String() }

// s33dContracts and sproutContracts are the public mappings behind
// getS33DContract and getSproutContract and resolve identically.
var accessors = map[string]accessor{
	"cost":  {read: func(r *Registry, _ uint64, _ ir.Address) string { return strconv.FormatUint(r.Cost(), 10) }},
	"owner": {read: func(r *Registry, _ uint64, _ ir.Address) string { return addrString(r.Owner()) }},
	"getS33DContract": {arg: "id", read: func(r *Registry, id uint64, _ ir.Address) string {
		return addrString(r.GetS33DContract(id))
	}},
	"s33dContracts": {arg: "id", read: func(r *Registry, id uint64, _ ir.Address) string {
		return addrString(r.GetS33DContract(id))
	}},
	"getSproutContract": {arg: "id", read: func(r *Registry, id uint64, _ ir.Address) string {
		return addrString(r.GetSproutContract(id))
	}},
	"sproutContracts": {arg: "id", read: func(r *Registry, id uint64, _ ir.Address) string {
		return addrString(r.GetSproutContract(id))
	}},
	"isValidS33DContract": {arg: "address", read: func(r *Registry, _ uint64, a ir.Address) string {
		return strconv.FormatBool(r.IsValidS33DContract(a))
	}},
	"getLastS33DContract": {read: func(r *Registry, _ uint64, _ ir.Address) string {
		return addrString(r.GetLastS33DContract())
	}},
	"getLastS33DContractId": {read: func(r *Registry, _ uint64, _ ir.Address) string {
		return strconv.FormatUint(r.GetLastS33DContractID(), 10)
	}},
	"getLastSproutContract": {read: func(r *Registry, _ uint64, _ ir.Address) string {
		return addrString(r.GetLastSproutContract())
	}},
	"getLastSproutId": {read: func(r *Registry, _ uint64, _ ir.Address) string {
		return strconv.FormatUint(r.GetLastSproutID(), 10)
	}},
	"trustedContracts": {arg: "address", read: func(r *Registry, _ uint64, a ir.Address) string {
		return strconv.FormatBool(r.TrustedContracts(a))
	}},
	"parentChildRelationship": {arg: "address", read: func(r *Registry, _ uint64, a ir.Address) string {
		return addrString(r.ParentChildRelationship(a))
	}},
}

// Accessors lists the read-only accessor names, sorted.
func Accessors() []string {
	names := make([]string, 0, len(accessors))
	for name := range accessors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Read evaluates a read-only accessor by name. args holds the single
// id or address argument where the accessor takes one. Only malformed
// arguments fail.
func (r *Registry) Read(name string, args ...string) (string, error) {
	acc, ok := accessors[name]
	if !ok {
		return "", reject(CodeInvalidInput, name, ir.ZeroAddress, "unknown accessor")
	}
	want := 0
	if acc.arg != "" {
		want = 1
	}
	if len(args) != want {
		return "", reject(CodeInvalidInput, name, ir.ZeroAddress, "want %d argument(s), got %d", want, len(args))
	}

	var (
		id   uint64
		addr ir.Address
		err  error
	)
	switch acc.arg {
	case "id":
		id, err = strconv.ParseUint(args[0], 10, 64)
	case "address":
		addr, err = ir.ParseAddress(args[0])
	}
	if err != nil {
		return "", reject(CodeInvalidInput, name, ir.ZeroAddress, "malformed %s: %v", acc.arg, err)
	}
	return acc.read(r, id, addr), nil
}
