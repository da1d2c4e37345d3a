package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/graphstack/internal/entity"
	"github.com/roach88/graphstack/internal/query"
	"github.com/roach88/graphstack/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s -> %s\n", event.Step, event.Op, event.Ref, event.Outcome)
		}
	}

	return buf.String()
}

// assertTraceContains checks if the trace contains the op, on the labeled
// object when Ref is set.
func assertTraceContains(trace []TraceEvent, assertion Assertion, labels map[string]string) error {
	want := ""
	if assertion.Ref != "" {
		want = labels[assertion.Ref]
	}
	for _, event := range trace {
		if event.Op == assertion.Op && (want == "" || event.Ref == want) {
			return nil
		}
	}

	expected := fmt.Sprintf("op %s", assertion.Op)
	if assertion.Ref != "" {
		expected += fmt.Sprintf(" on %s (%s)", assertion.Ref, want)
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if ops appear in the specified order.
// Ops don't need to be consecutive (intervening steps are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	// Find first position of each expected op
	positions := make(map[string]int)
	for i, event := range trace {
		for _, op := range assertion.Ops {
			if event.Op == op && positions[op] == 0 {
				positions[op] = i + 1 // 1-indexed for readability
			}
		}
	}

	for _, op := range assertion.Ops {
		if positions[op] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all ops present: %v", assertion.Ops),
				Actual:   fmt.Sprintf("missing op: %s", op),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Ops); i++ {
		prev := assertion.Ops[i-1]
		curr := assertion.Ops[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("ops in order: %v", assertion.Ops),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks if the op appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Op == assertion.Op {
			count++
		}
	}

	if count != *assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", *assertion.Count, assertion.Op),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertFinalState checks committed entities of a kind. With Count it checks
// how many match Where; with Expect exactly one must match and carry the
// expected attributes (subset semantics).
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	preds, err := equalities(assertion.Where)
	if err != nil {
		return err
	}
	spec := query.BuildFetch(entity.Kind(assertion.Kind), conjunction(preds), 0)
	rows, err := st.Fetch(ctx, spec)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("fetch %s", spec),
			Actual:   fmt.Sprintf("fetch error: %v", err),
		}
	}

	if assertion.Count != nil && len(rows) != *assertion.Count {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%d rows of %s where %s", *assertion.Count, assertion.Kind, formatWhereClause(assertion.Where)),
			Actual:   fmt.Sprintf("%d rows", len(rows)),
		}
	}
	if len(assertion.Expect) == 0 {
		return nil
	}

	switch len(rows) {
	case 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row of %s where %s", assertion.Kind, formatWhereClause(assertion.Where)),
			Actual:   "row not found",
		}
	case 1:
	default:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row of %s where %s", assertion.Kind, formatWhereClause(assertion.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actual := rows[0].Attributes
	keys := make([]string, 0, len(assertion.Expect))
	for k := range assertion.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		want, err := entity.FromGo(assertion.Expect[key])
		if err != nil {
			return fmt.Errorf("final_state expect %s: %w", key, err)
		}
		got := actual.Get(key)
		if !entity.Equal(want, got) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s %s = %v", rows[0].Ref, key, entity.ToGo(want)),
				Actual:   fmt.Sprintf("%s %s = %v", rows[0].Ref, key, entity.ToGo(got)),
			}
		}
	}

	return nil
}

// formatWhereClause creates a human-readable description of equality conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	// Sort keys for deterministic output
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context

	// Labels maps scenario labels to entity refs.
	Labels map[string]string
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides store access for final_state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			var labels map[string]string
			if actx != nil {
				labels = actx.Labels
			}
			err = assertTraceContains(result.Trace, assertion, labels)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			if assertion.Count == nil {
				err = fmt.Errorf("assertion[%d]: trace_count requires count", i)
			} else {
				err = assertTraceCount(result.Trace, assertion)
			}
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires store context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
