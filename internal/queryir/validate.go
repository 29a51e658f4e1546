package queryir

import (
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidQuery matches every error Validate returns.
var ErrInvalidQuery = errors.New("invalid query")

// Validate reports every problem with q, joined. A nil result means q can
// be compiled.
func Validate(q ListQuery) error {
	v := &validator{}
	if q.Kind != "" && !q.Kind.Valid() {
		v.addf("unknown kind %q", q.Kind)
	}
	switch q.Order {
	case "", Ascending, Descending:
	default:
		v.addf("unknown order %q", q.Order)
	}
	if q.Limit < 0 || q.Limit > MaxLimit {
		v.addf("limit %d out of range [0, %d]", q.Limit, MaxLimit)
	}
	if q.Filter != nil {
		v.validatePredicate(q.Filter)
	}
	if len(v.errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidQuery, errors.Join(v.errs...))
}

type validator struct {
	errs []error
}

func (v *validator) addf(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
		v.addf("nil predicate")
	case Equals:
		if !slices.Contains(Fields, pred.Field) {
			v.addf("field %q is not filterable", pred.Field)
		}
		if pred.Value == "" {
			v.addf("empty value for field %q", pred.Field)
		}
	case After, Before:
	case BlockRange:
		if pred.From > pred.To {
			v.addf("block range %d..%d is empty", pred.From, pred.To)
		}
	case And:
		if len(pred.Predicates) == 0 {
			v.addf("empty And")
		}
		for _, child := range pred.Predicates {
			v.validatePredicate(child)
		}
	default:
		v.addf("unsupported predicate %T", p)
	}
}
