package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/s01l/internal/ir"
	"github.com/roach88/s01l/internal/query"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("expected %s, got %s", e.Expected, e.Actual)
}

func (h *Harness) evaluate(ctx context.Context, a Assertion) error {
	switch a.Type {
	case AssertEntityCount:
		return h.assertEntityCount(ctx, a)
	case AssertEntityExists:
		return h.assertEntityExists(ctx, a)
	case AssertAccessor:
		return h.assertAccessor(a)
	case AssertLineage:
		return h.assertLineage(ctx, a)
	case AssertEventOrder:
		return h.assertEventOrder(ctx, a)
	case AssertStateMatches:
		return h.assertStateMatches(ctx)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func (h *Harness) assertEntityCount(ctx context.Context, a Assertion) error {
	n, err := h.store.CountEntities(ctx, ir.EventKind(a.Kind))
	if err != nil {
		return err
	}
	if n != int64(a.Count) {
		what := "entities"
		if a.Kind != "" {
			what = a.Kind + " entities"
		}
		return &AssertionError{
			Type:     AssertEntityCount,
			Expected: fmt.Sprintf("%d %s", a.Count, what),
			Actual:   fmt.Sprintf("%d", n),
		}
	}
	return nil
}

// assertEntityExists looks for an entity of the kind whose payload
// contains every expected field (subset match).
func (h *Harness) assertEntityExists(ctx context.Context, a Assertion) error {
	want := make(map[string]string, len(a.Fields))
	for k, v := range a.Fields {
		resolved, err := h.resolveValue(v)
		if err != nil {
			return err
		}
		want[k] = resolved
	}

	found := false
	var seen []string
	err := h.eachEntity(ctx, ir.EventKind(a.Kind), func(e ir.Entity) {
		if found {
			return
		}
		if matchFields(e.Fields, want) {
			found = true
			return
		}
		seen = append(seen, fmt.Sprint(h.symbolizeFields(e.Fields)))
	})
	if err != nil {
		return err
	}
	if !found {
		return &AssertionError{
			Type:     AssertEntityExists,
			Expected: fmt.Sprintf("%s with %v", a.Kind, h.symbolizeFields(want)),
			Actual:   fmt.Sprintf("[%s]", strings.Join(seen, ", ")),
		}
	}
	return nil
}

func matchFields(actual, want map[string]string) bool {
	for k, v := range want {
		if actual[k] != v {
			return false
		}
	}
	return true
}

func (h *Harness) assertAccessor(a Assertion) error {
	args := make([]string, len(a.Args))
	for i, arg := range a.Args {
		v, err := h.resolveValue(arg)
		if err != nil {
			return err
		}
		args[i] = v
	}
	want, err := h.resolveValue(a.Expect)
	if err != nil {
		return err
	}
	got, err := h.ledger.Read(a.Accessor, args...)
	if err != nil {
		return err
	}
	if got != want {
		return &AssertionError{
			Type:     AssertAccessor,
			Expected: fmt.Sprintf("%s(%s) = %s", a.Accessor, strings.Join(a.Args, ", "), a.Expect),
			Actual:   h.symbolizeValue(got),
		}
	}
	return nil
}

func (h *Harness) assertLineage(ctx context.Context, a Assertion) error {
	addr, err := h.resolve(a.Address)
	if err != nil {
		return err
	}
	root, err := h.resolve(a.Root)
	if err != nil {
		return err
	}
	l, err := h.query.Lineage(ctx, addr)
	if err != nil {
		return err
	}
	if l.Root() != root || len(l.Ancestors) != a.Depth {
		return &AssertionError{
			Type:     AssertLineage,
			Expected: fmt.Sprintf("root %s at depth %d", a.Root, a.Depth),
			Actual:   fmt.Sprintf("root %s at depth %d", h.symbol(l.Root()), len(l.Ancestors)),
		}
	}
	return nil
}

// assertEventOrder checks that the stored entity kinds contain a.Kinds as
// a subsequence.
func (h *Harness) assertEventOrder(ctx context.Context, a Assertion) error {
	var kinds []string
	if err := h.eachEntity(ctx, "", func(e ir.Entity) {
		kinds = append(kinds, string(e.Kind))
	}); err != nil {
		return err
	}

	next := 0
	for _, k := range kinds {
		if next < len(a.Kinds) && k == a.Kinds[next] {
			next++
		}
	}
	if next < len(a.Kinds) {
		return &AssertionError{
			Type:     AssertEventOrder,
			Expected: fmt.Sprintf("kinds in order %v", a.Kinds),
			Actual:   fmt.Sprintf("%v (missing %s)", kinds, a.Kinds[next]),
		}
	}
	return nil
}

// assertStateMatches rebuilds registry state from indexed entities and
// compares it with the registry's own state.
func (h *Harness) assertStateMatches(ctx context.Context) error {
	snap, err := h.query.Reconstruct(ctx)
	if err != nil {
		return err
	}
	diffs := snap.Diff(h.ledger.Snapshot())
	if len(diffs) > 0 {
		return &AssertionError{
			Type:     AssertStateMatches,
			Expected: "reconstructed state equal to registry state",
			Actual:   strings.Join(diffs, "; "),
		}
	}
	return nil
}

func (h *Harness) eachEntity(ctx context.Context, kind ir.EventKind, fn func(ir.Entity)) error {
	params := query.ListParams{Kind: kind, Limit: 1000}
	for {
		page, err := h.query.List(ctx, params)
		if err != nil {
			return err
		}
		for _, e := range page.Entities {
			fn(e)
		}
		if page.Next == nil {
			return nil
		}
		params.After = page.Next
	}
}

// resolveValue maps bound names and hex addresses to canonical address
// text and leaves other values alone.
func (h *Harness) resolveValue(v string) (string, error) {
	if !looksLikeAddress(v) {
		return v, nil
	}
	a, err := h.resolve(v)
	if err != nil {
		return "", err
	}
	return a.String(), nil
}

func (h *Harness) symbolizeValue(v string) string {
	if a, err := ir.ParseAddress(v); err == nil {
		return h.symbol(a)
	}
	return v
}
