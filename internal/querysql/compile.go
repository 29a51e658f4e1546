// Package querysql compiles queryir list queries to parameterized SQLite.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/s01l/internal/ir"
	"github.com/roach88/s01l/internal/queryir"
	"github.com/roach88/s01l/internal/store"
)

// Compile converts q to SQL selecting store.EntityColumns plus its bound
// parameters. Every statement carries the full position ORDER BY and a
// LIMIT. Values are never interpolated.
func Compile(q queryir.ListQuery) (string, []any, error) {
	if err := queryir.Validate(q); err != nil {
		return "", nil, fmt.Errorf("compile: %w", err)
	}

	var conds []string
	var params []any
	if q.Kind != "" {
		conds = append(conds, "kind = ?")
		params = append(params, string(q.Kind))
	}
	if q.Filter != nil {
		sql, p, err := compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		conds = append(conds, sql)
		params = append(params, p...)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(store.EntityColumns)
	b.WriteString(" FROM entities")
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	b.WriteString(" ORDER BY ")
	if q.EffectiveOrder() == queryir.Descending {
		b.WriteString(store.EntityOrderDesc)
	} else {
		b.WriteString(store.EntityOrder)
	}
	b.WriteString(" LIMIT ?")
	params = append(params, q.EffectiveLimit())

	return b.String(), params, nil
}

// compilePredicate compiles one predicate. Column names come only from the
// whitelist in queryir.Fields, already checked by Validate.
func compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		return pred.Field + " = ?", []any{pred.Value}, nil

	case queryir.After:
		return "(block_number, tx_index, log_index) > (?, ?, ?)", positionParams(pred.Position), nil

	case queryir.Before:
		return "(block_number, tx_index, log_index) < (?, ?, ?)", positionParams(pred.Position), nil

	case queryir.BlockRange:
		return "block_number BETWEEN ? AND ?", []any{int64(pred.From), int64(pred.To)}, nil

	case queryir.And:
		parts := make([]string, 0, len(pred.Predicates))
		var params []any
		for i, child := range pred.Predicates {
			sql, p, err := compilePredicate(child)
			if err != nil {
				return "", nil, fmt.Errorf("and[%d]: %w", i, err)
			}
			parts = append(parts, sql)
			params = append(params, p...)
		}
		return "(" + strings.Join(parts, " AND ") + ")", params, nil

	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func positionParams(pos ir.Position) []any {
	return []any{int64(pos.Block), int64(pos.TxIndex), int64(pos.LogIndex)}
}
