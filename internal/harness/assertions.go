package harness

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/roach88/tally/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("expected %s, got %s", e.Expected, e.Actual)
}

// evaluate checks one assertion against the engine.
func (h *Harness) evaluate(ctx context.Context, a Assertion) error {
	switch a.Type {
	case AssertStats:
		st, err := h.engine.Stats(ctx, a.Stream)
		if err != nil {
			return err
		}
		return assertFields(a.Type, a.Expect, st)

	case AssertAggregate:
		agg, err := h.engine.Aggregate(ctx, a.Ledger, ir.Principal(a.Actor))
		if err != nil {
			return err
		}
		return assertFields(a.Type, a.Expect, agg)

	case AssertQuery:
		lim := uint32(math.MaxUint32)
		if a.Limit != nil {
			lim = *a.Limit
		}
		records, err := h.engine.Query(ctx, a.Stream, ir.Principal(a.Actor), lim)
		if err != nil {
			return err
		}
		ids := make([]uint64, len(records))
		for i, r := range records {
			ids[i] = r.ID
		}
		want := a.IDs
		if want == nil {
			want = []uint64{}
		}
		if !slices.Equal(ids, want) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("ids %v", want),
				Actual:   fmt.Sprintf("ids %v", ids),
			}
		}
		return nil
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// assertFields compares expect against the JSON form of actual as a
// subset.
func assertFields(typ string, expect map[string]interface{}, actual any) error {
	got, err := toValue(actual)
	if err != nil {
		return err
	}
	want, err := ir.FromGo(expect)
	if err != nil {
		return fmt.Errorf("invalid expect: %w", err)
	}
	if !matchValue(want, got) {
		return &AssertionError{Type: typ, Expected: render(want), Actual: render(got)}
	}
	return nil
}

// matchValue reports whether actual satisfies expected. Objects match
// when every expected field matches; everything else must be equal.
func matchValue(expected, actual ir.Value) bool {
	if eo, ok := expected.(ir.Object); ok {
		ao, ok := actual.(ir.Object)
		if !ok {
			return false
		}
		for k, ev := range eo {
			av, ok := ao[k]
			if !ok || !matchValue(ev, av) {
				return false
			}
		}
		return true
	}
	if el, ok := expected.(ir.List); ok {
		al, ok := actual.(ir.List)
		if !ok || len(el) != len(al) {
			return false
		}
		for i := range el {
			if !matchValue(el[i], al[i]) {
				return false
			}
		}
		return true
	}
	eq, err := ir.EqualCanonical(expected, actual)
	return err == nil && eq
}
