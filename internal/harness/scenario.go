package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/graphstack/internal/config"
	"github.com/roach88/graphstack/internal/predicate"
)

// Scenario defines a conformance test scenario: a sequence of stack
// operations with expected outcomes, then assertions over the trace and the
// final committed state.
type Scenario struct {
	// Name uniquely identifies this scenario. Also names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config overrides the default stack configuration.
	Config *ScenarioConfig `yaml:"config,omitempty"`

	// Steps run in order against one fresh stack.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_order, trace_count, final_state
	Assertions []Assertion `yaml:"assertions"`

	// IDPrefix prefixes generated entity IDs. Defaults to "id".
	IDPrefix string `yaml:"id_prefix,omitempty"`
}

// ScenarioConfig holds the stack settings a scenario may override.
type ScenarioConfig struct {
	MergePolicy       string `yaml:"merge_policy,omitempty"`
	DeleteBatchSize   int    `yaml:"delete_batch_size,omitempty"`
	StrictConfinement *bool  `yaml:"strict_confinement,omitempty"`
}

// Step is one operation against the stack.
type Step struct {
	// Op is the operation; see the Op* constants.
	Op string `yaml:"op"`

	// As labels the object an insert creates so later steps can refer to it.
	As string `yaml:"as,omitempty"`

	// Ref is the label of the object the step acts on.
	Ref string `yaml:"ref,omitempty"`

	// Kind is the entity kind for insert, find, count and delete_all.
	Kind string `yaml:"kind,omitempty"`

	// Attrs are the attributes written by insert, update and edit.
	Attrs map[string]any `yaml:"attrs,omitempty"`

	// In selects the context for insert and update: "background" (default)
	// or "main".
	In string `yaml:"in,omitempty"`

	// Fail makes the unit of work return an error after its changes.
	Fail bool `yaml:"fail,omitempty"`

	// Where filters find and count by attribute equality.
	Where map[string]any `yaml:"where,omitempty"`

	// Match filters find and count by an expression over attributes.
	Match string `yaml:"match,omitempty"`

	// Sort orders find results: "attr" or "attr desc".
	Sort []string `yaml:"sort,omitempty"`

	Limit int `yaml:"limit,omitempty"`
	Batch int `yaml:"batch,omitempty"`

	// Expect checks the step outcome. Nil expects success.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Outcome is the expected outcome name. Defaults to "ok".
	Outcome string `yaml:"outcome,omitempty"`

	// IDs lists the labels find must return, in order.
	IDs []string `yaml:"ids,omitempty"`

	// Count is the expected count for find, count and delete_all.
	Count *int `yaml:"count,omitempty"`
}

// Step operations.
const (
	OpInsert     = "insert"
	OpUpdate     = "update"
	OpEdit       = "edit"
	OpSave       = "save"
	OpRollback   = "rollback"
	OpDelete     = "delete"
	OpDeleteMain = "delete_main"
	OpDeleteAll  = "delete_all"
	OpFind       = "find"
	OpCount      = "count"
)

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": Check an op appears in the trace, optionally on ref
	// - "trace_order": Check ops appear in order
	// - "trace_count": Check an op appears exactly Count times
	// - "final_state": Check committed entities of Kind matching Where
	Type string `yaml:"type"`

	// Op is the operation (used by trace_contains, trace_count).
	Op string `yaml:"op,omitempty"`

	// Ref is an object label (used by trace_contains).
	Ref string `yaml:"ref,omitempty"`

	// Ops is the expected operation order (used by trace_order).
	Ops []string `yaml:"ops,omitempty"`

	// Kind is the entity kind (used by final_state).
	Kind string `yaml:"kind,omitempty"`

	// Where specifies equality filters (used by final_state).
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected attribute values of the single matching
	// entity (used by final_state). Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of occurrences (trace_count) or matching
	// entities (final_state).
	Count *int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if c := s.Config; c != nil {
		if c.MergePolicy != "" && c.MergePolicy != config.MergeStore && c.MergePolicy != config.MergeObject {
			return fmt.Errorf("config.merge_policy: unknown policy %q", c.MergePolicy)
		}
		if c.DeleteBatchSize < 0 {
			return fmt.Errorf("config.delete_batch_size must be positive")
		}
	}

	labels := make(map[string]bool)
	for i, step := range s.Steps {
		if err := validateStep(step, labels); err != nil {
			return fmt.Errorf("steps[%d] (%s): %w", i, step.Op, err)
		}
		if step.As != "" {
			labels[step.As] = true
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, labels); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step Step, labels map[string]bool) error {
	needRef := func() error {
		if step.Ref == "" {
			return fmt.Errorf("ref is required")
		}
		if !labels[step.Ref] {
			return fmt.Errorf("unknown ref %q", step.Ref)
		}
		return nil
	}

	switch step.Op {
	case OpInsert:
		if step.Kind == "" {
			return fmt.Errorf("kind is required")
		}
		if step.As == "" {
			return fmt.Errorf("as is required")
		}
		if labels[step.As] {
			return fmt.Errorf("label %q already used", step.As)
		}
	case OpUpdate, OpEdit:
		if err := needRef(); err != nil {
			return err
		}
		if len(step.Attrs) == 0 {
			return fmt.Errorf("attrs are required")
		}
	case OpDelete, OpDeleteMain:
		if err := needRef(); err != nil {
			return err
		}
	case OpDeleteAll, OpFind, OpCount:
		if step.Kind == "" {
			return fmt.Errorf("kind is required")
		}
	case OpSave, OpRollback:
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}

	switch step.In {
	case "", "background", "main":
	default:
		return fmt.Errorf("in must be \"background\" or \"main\", got %q", step.In)
	}
	if step.Match != "" {
		if _, err := predicate.NewExpr(step.Match); err != nil {
			return fmt.Errorf("match: %w", err)
		}
	}
	if step.Expect != nil {
		for _, id := range step.Expect.IDs {
			if !labels[id] {
				return fmt.Errorf("expect.ids: unknown ref %q", id)
			}
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, labels map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
		if a.Ref != "" && !labels[a.Ref] {
			return fmt.Errorf("assertions[%d]: unknown ref %q", index, a.Ref)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for final_state", index)
		}
		if len(a.Expect) == 0 && a.Count == nil {
			return fmt.Errorf("assertions[%d]: expect or count is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
