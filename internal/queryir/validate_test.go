package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/s01l/internal/ir"
)

func TestValidate_Accepts(t *testing.T) {
	tests := map[string]ListQuery{
		"zero":   {},
		"kind":   {Kind: ir.KindS33DContractCreated, Order: Descending, Limit: MaxLimit},
		"equals": {Filter: Equals{Field: FieldParent, Value: "0xaaa"}},
		"nested": {Filter: And{Predicates: []Predicate{
			Equals{Field: FieldContractAddress, Value: "0x1"},
			And{Predicates: []Predicate{After{}, Before{Position: ir.Position{Block: 9}}}},
			BlockRange{From: 2, To: 2},
		}}},
	}
	for name, q := range tests {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, Validate(q))
		})
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := map[string]struct {
		q    ListQuery
		want string
	}{
		"kind":        {ListQuery{Kind: "Transfer"}, "unknown kind"},
		"order":       {ListQuery{Order: "sideways"}, "unknown order"},
		"negative":    {ListQuery{Limit: -1}, "out of range"},
		"too large":   {ListQuery{Limit: MaxLimit + 1}, "out of range"},
		"field":       {ListQuery{Filter: Equals{Field: "payload", Value: "x"}}, "not filterable"},
		"empty value": {ListQuery{Filter: Equals{Field: FieldID}}, "empty value"},
		"range":       {ListQuery{Filter: BlockRange{From: 3, To: 1}}, "is empty"},
		"empty and":   {ListQuery{Filter: And{}}, "empty And"},
		"nil child":   {ListQuery{Filter: And{Predicates: []Predicate{nil}}}, "nil predicate"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.ErrorContains(t, Validate(tt.q), tt.want)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	err := Validate(ListQuery{Kind: "x", Limit: -5})
	assert.ErrorContains(t, err, "unknown kind")
	assert.ErrorContains(t, err, "out of range")
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestEffectiveDefaults(t *testing.T) {
	assert.Equal(t, DefaultLimit, ListQuery{}.EffectiveLimit())
	assert.Equal(t, 7, ListQuery{Limit: 7}.EffectiveLimit())
	assert.Equal(t, Ascending, ListQuery{}.EffectiveOrder())
	assert.Equal(t, Descending, ListQuery{Order: Descending}.EffectiveOrder())
}
