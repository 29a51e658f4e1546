package queryir

import "github.com/roach88/s01l/internal/ir"

// Filterable entity columns.
const (
	FieldID              = "id"
	FieldContractAddress = "contract_address"
	FieldParent          = "parent"
	FieldTransactionHash = "transaction_hash"
)

// Fields lists every filterable column.
var Fields = []string{FieldID, FieldContractAddress, FieldParent, FieldTransactionHash}

// DefaultLimit applies when ListQuery.Limit is 0.
const DefaultLimit = 100

// MaxLimit bounds ListQuery.Limit.
const MaxLimit = 1000

// Order is the direction of the position order.
type Order string

const (
	Ascending  Order = "asc"
	Descending Order = "desc"
)

// ListQuery selects entities in position order.
type ListQuery struct {
	// Kind restricts to one event kind; "" means every kind.
	Kind   ir.EventKind
	Filter Predicate // nil = no filter
	Order  Order     // "" means Ascending
	Limit  int       // 0 means DefaultLimit
}

// Predicate is a sealed filter condition.
//
// Predicate types:
//   - Equals: field = value
//   - After: position strictly after a cursor
//   - Before: position strictly before a cursor
//   - BlockRange: block number within [From, To]
//   - And: all predicates must hold
type Predicate interface {
	predicateNode()
}

// Equals matches entities whose field equals Value exactly.
type Equals struct {
	Field string
	Value string
}

// After matches entities positioned strictly after Position.
type After struct {
	Position ir.Position
}

// Before matches entities positioned strictly before Position.
type Before struct {
	Position ir.Position
}

// BlockRange matches entities from block From through block To inclusive.
type BlockRange struct {
	From uint64
	To   uint64
}

// And matches when every predicate matches.
type And struct {
	Predicates []Predicate
}

func (Equals) predicateNode()     {}
func (After) predicateNode()      {}
func (Before) predicateNode()     {}
func (BlockRange) predicateNode() {}
func (And) predicateNode()        {}

// EffectiveLimit resolves the zero value to DefaultLimit.
func (q ListQuery) EffectiveLimit() int {
	if q.Limit == 0 {
		return DefaultLimit
	}
	return q.Limit
}

// EffectiveOrder resolves the zero value to Ascending.
func (q ListQuery) EffectiveOrder() Order {
	if q.Order == "" {
		return Ascending
	}
	return q.Order
}
