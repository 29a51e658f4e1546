package ir

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// EventKind names one of the five registry events.
type EventKind string

const (
	KindOwnershipTransferred   EventKind = "OwnershipTransferred"
	KindS33DContractCreated    EventKind = "S33DContractCreated"
	KindSproutContractCreated  EventKind = "SproutContractCreated"
	KindTrustedContractAdded   EventKind = "TrustedContractAdded"
	KindTrustedContractRemoved EventKind = "TrustedContractRemoved"
)

// EventKinds lists every kind in declaration order.
var EventKinds = []EventKind{
	KindOwnershipTransferred,
	KindS33DContractCreated,
	KindSproutContractCreated,
	KindTrustedContractAdded,
	KindTrustedContractRemoved,
}

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	for _, known := range EventKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Payload field names, shared by events, entities, and query filters.
const (
	FieldPreviousOwner   = "previousOwner"
	FieldNewOwner        = "newOwner"
	FieldContractAddress = "contractAddress"
	FieldContractID      = "contractId"
	FieldSproutID        = "sproutId"
	FieldParent          = "parent"
)

// Event is a sealed interface over the registry's emitted events.
// Only the five event structs in this file implement it.
type Event interface {
	Kind() EventKind
	// Fields renders the payload as strings: addresses in lower-case hex,
	// ids in decimal.
	Fields() map[string]string
	sealedEvent()
}

// OwnershipTransferred records a change of owner. NewOwner is zero after renounce.
type OwnershipTransferred struct {
	PreviousOwner Address
	NewOwner      Address
}

func (OwnershipTransferred) Kind() EventKind { return KindOwnershipTransferred }
func (OwnershipTransferred) sealedEvent()    {}

func (e OwnershipTransferred) Fields() map[string]string {
	return map[string]string{
		FieldPreviousOwner: e.PreviousOwner.String(),
		FieldNewOwner:      e.NewOwner.String(),
	}
}

// S33DContractCreated records a new S33D contract.
type S33DContractCreated struct {
	ContractAddress Address
	ContractID      uint64
}

func (S33DContractCreated) Kind() EventKind { return KindS33DContractCreated }
func (S33DContractCreated) sealedEvent()    {}

func (e S33DContractCreated) Fields() map[string]string {
	return map[string]string{
		FieldContractAddress: e.ContractAddress.String(),
		FieldContractID:      strconv.FormatUint(e.ContractID, 10),
	}
}

// SproutContractCreated records a new Sprout contract and its parent.
type SproutContractCreated struct {
	ContractAddress Address
	SproutID        uint64
	Parent          Address
}

func (SproutContractCreated) Kind() EventKind { return KindSproutContractCreated }
func (SproutContractCreated) sealedEvent()    {}

func (e SproutContractCreated) Fields() map[string]string {
	return map[string]string{
		FieldContractAddress: e.ContractAddress.String(),
		FieldSproutID:        strconv.FormatUint(e.SproutID, 10),
		FieldParent:          e.Parent.String(),
	}
}

// TrustedContractAdded records an allowlist insertion.
type TrustedContractAdded struct {
	ContractAddress Address
}

func (TrustedContractAdded) Kind() EventKind { return KindTrustedContractAdded }
func (TrustedContractAdded) sealedEvent()    {}

func (e TrustedContractAdded) Fields() map[string]string {
	return map[string]string{FieldContractAddress: e.ContractAddress.String()}
}

// TrustedContractRemoved records an allowlist removal.
type TrustedContractRemoved struct {
	ContractAddress Address
}

func (TrustedContractRemoved) Kind() EventKind { return KindTrustedContractRemoved }
func (TrustedContractRemoved) sealedEvent()    {}

func (e TrustedContractRemoved) Fields() map[string]string {
	return map[string]string{FieldContractAddress: e.ContractAddress.String()}
}

// ParseEvent rebuilds an Event from its kind and string fields.
// Missing or malformed fields are errors; unknown extra fields are rejected.
func ParseEvent(kind EventKind, fields map[string]string) (Event, error) {
	r := fieldReader{fields: fields}
	var ev Event
	switch kind {
	case KindOwnershipTransferred:
		ev = OwnershipTransferred{
			PreviousOwner: r.address(FieldPreviousOwner),
			NewOwner:      r.address(FieldNewOwner),
		}
	case KindS33DContractCreated:
		ev = S33DContractCreated{
			ContractAddress: r.address(FieldContractAddress),
			ContractID:      r.uint(FieldContractID),
		}
	case KindSproutContractCreated:
		ev = SproutContractCreated{
			ContractAddress: r.address(FieldContractAddress),
			SproutID:        r.uint(FieldSproutID),
			Parent:          r.address(FieldParent),
		}
	case KindTrustedContractAdded:
		ev = TrustedContractAdded{ContractAddress: r.address(FieldContractAddress)}
	case KindTrustedContractRemoved:
		ev = TrustedContractRemoved{ContractAddress: r.address(FieldContractAddress)}
	default:
		return nil, fmt.Errorf("parse event: unknown kind %q", kind)
	}
	if r.err != nil {
		return nil, fmt.Errorf("parse event %s: %w", kind, r.err)
	}
	if r.used != len(fields) {
		return nil, fmt.Errorf("parse event %s: unexpected fields (got %d, want %d)", kind, len(fields), r.used)
	}
	return ev, nil
}

type fieldReader struct {
	fields map[string]string
	used   int
	err    error
}

func (r *fieldReader) lookup(name string) (string, bool) {
	if r.err != nil {
		return "", false
	}
	v, ok := r.fields[name]
	if !ok {
		r.err = fmt.Errorf("missing field %q", name)
		return "", false
	}
	r.used++
	return v, true
}

func (r *fieldReader) address(name string) Address {
	v, ok := r.lookup(name)
	if !ok {
		return ZeroAddress
	}
	a, err := ParseAddress(v)
	if err != nil {
		r.err = fmt.Errorf("field %q: %w", name, err)
	}
	return a
}

func (r *fieldReader) uint(name string) uint64 {
	v, ok := r.lookup(name)
	if !ok {
		return 0
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		r.err = fmt.Errorf("field %q: %w", name, err)
	}
	return n
}

// eventEnvelope is the wire form of an Event.
type eventEnvelope struct {
	Kind   EventKind         `json:"kind"`
	Fields map[string]string `json:"fields"`
}

// MarshalEvent encodes an Event as canonical JSON.
func MarshalEvent(e Event) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("marshal event: nil event")
	}
	return MarshalCanonical(map[string]any{
		"kind":   string(e.Kind()),
		"fields": e.Fields(),
	})
}

// UnmarshalEvent decodes the output of MarshalEvent.
func UnmarshalEvent(data []byte) (Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return ParseEvent(env.Kind, env.Fields)
}
