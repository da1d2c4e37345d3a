package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/roach88/graphstack/internal/config"
	"github.com/roach88/graphstack/internal/entity"
	"github.com/roach88/graphstack/internal/predicate"
	"github.com/roach88/graphstack/internal/query"
	"github.com/roach88/graphstack/internal/stack"
	"github.com/roach88/graphstack/internal/store"
)

// errStepFailed is returned by units of work of steps marked fail.
var errStepFailed = errors.New("step marked to fail")

// Harness is the test execution engine.
// It runs scenario steps against a real Stack with deterministic IDs.
type Harness struct {
	stack  *stack.Stack
	store  *store.Store
	logger *slog.Logger

	// labels maps scenario labels to the instance the labeling step produced.
	labels map[string]*stack.Object
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Create fresh in-memory database and stack
// 2. Execute steps, checking each expect clause
// 3. Evaluate assertions against the trace and committed state
// 4. Return result with pass/fail, trace, and errors
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario, nil)
}

// RunContext is Run with a caller-supplied context and logger.
// A nil logger discards stack logs.
func RunContext(ctx context.Context, scenario *Scenario, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	prefix := scenario.IDPrefix
	if prefix == "" {
		prefix = "id"
	}
	s := stack.New(st, stackConfig(scenario),
		stack.WithLogger(logger),
		stack.WithIDGenerator(entity.NewSequenceGenerator(prefix)),
	)
	defer s.Close()

	h := &Harness{
		stack:  s,
		store:  st,
		logger: logger,
		labels: make(map[string]*stack.Object),
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		event, err := h.execute(ctx, i, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
		result.AddTrace(event)
		h.check(i, step, event, result)

		h.logger.Debug("scenario step completed",
			"step", i,
			"op", step.Op,
			"ref", event.Ref,
			"outcome", event.Outcome,
			"seq", event.Seq)
	}

	actx := &AssertionContext{
		Store:  st,
		Ctx:    ctx,
		Labels: h.refLabels(),
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

func stackConfig(scenario *Scenario) stack.Config {
	c := config.Default(scenario.Name, "")
	if sc := scenario.Config; sc != nil {
		if sc.MergePolicy != "" {
			c.MergePolicy = sc.MergePolicy
		}
		if sc.DeleteBatchSize > 0 {
			c.DeleteBatchSize = sc.DeleteBatchSize
		}
		if sc.StrictConfinement != nil {
			c.StrictConfinement = *sc.StrictConfinement
		}
	}
	return stack.ConfigFrom(c)
}

// execute runs one step. A returned error is a harness problem, not a step
// outcome: step outcomes are recorded in the event.
func (h *Harness) execute(ctx context.Context, i int, step Step) (TraceEvent, error) {
	event := TraceEvent{Step: i, Op: step.Op}

	var target *stack.Object
	if step.Ref != "" {
		target = h.labels[step.Ref]
		if target == nil {
			return event, fmt.Errorf("ref %q was never created", step.Ref)
		}
		event.Ref = target.Ref().String()
	}

	attrs, err := entity.AttributesFromGo(step.Attrs)
	if err != nil {
		return event, fmt.Errorf("attrs: %w", err)
	}

	var opErr error
	switch step.Op {
	case OpInsert:
		var obj *stack.Object
		opErr = h.save(ctx, step, func(c *stack.Context) error {
			o, err := c.Insert(entity.Kind(step.Kind), attrs)
			if err != nil {
				return err
			}
			obj = o
			return nil
		})
		if obj != nil {
			event.Ref = obj.Ref().String()
			if opErr == nil {
				h.labels[step.As] = obj
			}
		}

	case OpUpdate:
		ref := target.Ref()
		opErr = h.save(ctx, step, func(c *stack.Context) error {
			o, err := c.Object(ref)
			if err != nil {
				return err
			}
			return c.Update(o, attrs)
		})

	case OpEdit:
		ref := target.Ref()
		opErr = h.stack.OnMain(ctx, func(main *stack.Context) error {
			o, err := main.Object(ref)
			if err != nil {
				return err
			}
			return main.Update(o, attrs)
		})

	case OpSave:
		opErr = h.stack.SaveInMainContext(ctx, func(*stack.Context) error { return nil })

	case OpRollback:
		opErr = h.stack.OnMain(ctx, func(main *stack.Context) error {
			return main.Rollback()
		})

	case OpDelete:
		opErr = h.stack.Delete(ctx, target)

	case OpDeleteMain:
		opErr = h.stack.DeleteInMainContext(ctx, target)

	case OpDeleteAll:
		n, err := h.stack.DeleteAll(ctx, entity.Kind(step.Kind))
		opErr = err
		event.Count = &n

	case OpFind:
		spec, err := buildSpec(step)
		if err != nil {
			return event, err
		}
		var objs []*stack.Object
		opErr = h.stack.OnMain(ctx, func(main *stack.Context) error {
			var err error
			objs, err = h.stack.FindSpec(main.Ctx(), spec)
			return err
		})
		if opErr == nil {
			event.IDs = make([]string, len(objs))
			for j, o := range objs {
				event.IDs[j] = o.Ref().String()
			}
			n := len(objs)
			event.Count = &n
		}

	case OpCount:
		spec, err := buildSpec(step)
		if err != nil {
			return event, err
		}
		var n int
		opErr = h.stack.OnMain(ctx, func(main *stack.Context) error {
			var err error
			n, err = main.Count(spec)
			return err
		})
		if opErr == nil {
			event.Count = &n
		}

	default:
		return event, fmt.Errorf("unknown op %q", step.Op)
	}

	event.Outcome = classify(opErr)
	event.Seq = h.store.LastSeq()
	if opErr != nil {
		h.logger.Debug("scenario step failed", "step", i, "op", step.Op, "error", opErr)
	}
	return event, nil
}

// save runs work as a unit of work in the context the step selects.
func (h *Harness) save(ctx context.Context, step Step, work func(c *stack.Context) error) error {
	wrapped := func(c *stack.Context) error {
		if err := work(c); err != nil {
			return err
		}
		if step.Fail {
			return errStepFailed
		}
		return nil
	}
	if step.In == "main" {
		return h.stack.SaveInMainContext(ctx, wrapped)
	}
	return h.stack.SaveInBackground(ctx, wrapped)
}

// check compares an executed step against its expect clause.
func (h *Harness) check(i int, step Step, event TraceEvent, result *Result) {
	want := OutcomeOK
	if step.Expect != nil && step.Expect.Outcome != "" {
		want = step.Expect.Outcome
	}
	if event.Outcome != want {
		result.AddError(fmt.Sprintf("step %d (%s): expected outcome %s, got %s", i, step.Op, want, event.Outcome))
		return
	}
	if step.Expect == nil {
		return
	}

	if step.Expect.IDs != nil {
		want := make([]string, len(step.Expect.IDs))
		for j, label := range step.Expect.IDs {
			if obj := h.labels[label]; obj != nil {
				want[j] = obj.Ref().String()
			} else {
				want[j] = label
			}
		}
		if strings.Join(want, ",") != strings.Join(event.IDs, ",") {
			result.AddError(fmt.Sprintf("step %d (%s): expected ids %v, got %v", i, step.Op, want, event.IDs))
		}
	}

	if step.Expect.Count != nil {
		got := -1
		if event.Count != nil {
			got = *event.Count
		}
		if got != *step.Expect.Count {
			result.AddError(fmt.Sprintf("step %d (%s): expected count %d, got %d", i, step.Op, *step.Expect.Count, got))
		}
	}
}

func (h *Harness) refLabels() map[string]string {
	out := make(map[string]string, len(h.labels))
	for label, obj := range h.labels {
		out[label] = obj.Ref().String()
	}
	return out
}

// classify maps a step error to its trace outcome.
func classify(err error) string {
	var (
		violation *stack.ConfinementViolation
		commitErr *stack.CommitError
		workErr   *stack.WorkError
	)
	switch {
	case err == nil:
		return OutcomeOK
	case errors.As(err, &violation):
		return OutcomeViolation
	case errors.As(err, &commitErr):
		return OutcomeCommit
	case errors.As(err, &workErr):
		return OutcomeWork
	case errors.Is(err, store.ErrNotFound):
		return OutcomeNotFound
	default:
		return OutcomeError
	}
}

// buildSpec turns a find or count step into a fetch specification.
func buildSpec(step Step) (query.FetchSpec, error) {
	preds, err := equalities(step.Where)
	if err != nil {
		return query.FetchSpec{}, err
	}
	if step.Match != "" {
		e, err := predicate.NewExpr(step.Match)
		if err != nil {
			return query.FetchSpec{}, fmt.Errorf("match: %w", err)
		}
		preds = append(preds, e)
	}

	spec := query.BuildFetch(entity.Kind(step.Kind), conjunction(preds), step.Batch).WithLimit(step.Limit)
	for _, key := range step.Sort {
		fields := strings.Fields(key)
		if len(fields) == 0 || len(fields) > 2 || (len(fields) == 2 && fields[1] != "asc" && fields[1] != "desc") {
			return query.FetchSpec{}, fmt.Errorf("sort: want \"attr\" or \"attr desc\", got %q", key)
		}
		spec = spec.SortedBy(fields[0], len(fields) == 2 && fields[1] == "desc")
	}
	return spec, nil
}

// equalities builds one equality predicate per where entry, in key order.
func equalities(where map[string]any) ([]predicate.Predicate, error) {
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	preds := make([]predicate.Predicate, 0, len(keys))
	for _, k := range keys {
		v, err := entity.FromGo(where[k])
		if err != nil {
			return nil, fmt.Errorf("where %s: %w", k, err)
		}
		preds = append(preds, predicate.Eq(k, v))
	}
	return preds, nil
}

func conjunction(preds []predicate.Predicate) predicate.Predicate {
	switch len(preds) {
	case 0:
		return nil
	case 1:
		return preds[0]
	default:
		return predicate.All(preds...)
	}
}
