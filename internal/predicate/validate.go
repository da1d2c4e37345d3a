package predicate

import (
	"fmt"

	"github.com/roach88/graphstack/internal/entity"
)

// ValidationResult describes how a predicate will execute.
type ValidationResult struct {
	// Pushdown is true when the whole predicate compiles to SQL and no
	// in-memory filtering is needed.
	Pushdown bool

	// Warnings lists the parts that stay in memory or look suspicious.
	Warnings []string

	// Errors lists problems that make the predicate unusable.
	Errors []string
}

// Valid reports whether the predicate can be executed at all.
func (r ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Err returns the first validation error, or nil.
func (r ValidationResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return fmt.Errorf("invalid predicate: %s", r.Errors[0])
}

// Validate inspects a predicate without evaluating it.
//
// Validate is a pure function with no side effects.
func Validate(p Predicate) ValidationResult {
	v := &validator{}
	v.walk(p)
	return ValidationResult{
		Pushdown: len(v.warnings) == 0 && len(v.errors) == 0,
		Warnings: v.warnings,
		Errors:   v.errors,
	}
}

type validator struct {
	warnings []string
	errors   []string
}

func (v *validator) warn(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) fail(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) attr(name string) {
	if !ValidAttr(name) {
		v.fail("attribute name %q is not an identifier", name)
	}
}

func (v *validator) walk(p Predicate) {
	if p == nil {
		return
	}

	switch pred := deref(p).(type) {
	case Equals:
		v.attr(pred.Attr)
		if _, isList := pred.Value.(entity.List); isList {
			v.warn("equality on list attribute %q is evaluated in memory", pred.Attr)
		}
	case Compare:
		v.attr(pred.Attr)
		v.compare(pred)
	case In:
		v.attr(pred.Attr)
		if len(pred.Values) == 0 {
			v.warn("IN on %q with no values never matches", pred.Attr)
		}
		for _, val := range pred.Values {
			if _, isList := val.(entity.List); isList {
				v.warn("IN on %q with list value is evaluated in memory", pred.Attr)
				break
			}
		}
	case And:
		for _, child := range pred.Predicates {
			v.walk(child)
		}
	case Or:
		for _, child := range pred.Predicates {
			v.walk(child)
		}
	case Not:
		if pred.Predicate == nil {
			v.fail("NOT requires a child predicate")
			return
		}
		v.walk(pred.Predicate)
	case Expr:
		if pred.Source == "" {
			v.fail("empty expression")
			return
		}
		v.warn("expression %q is evaluated in memory", pred.Source)
	default:
		v.fail("unsupported predicate type: %T", p)
	}
}

func (v *validator) compare(c Compare) {
	switch c.Op {
	case OpNE:
		if _, isList := c.Value.(entity.List); isList {
			v.warn("inequality on list attribute %q is evaluated in memory", c.Attr)
		}
	case OpLT, OpLE, OpGT, OpGE:
		switch c.Value.(type) {
		case entity.String, entity.Int, entity.Bool:
		default:
			v.fail("operator %s on %q needs a string, int or bool value, got %T", c.Op, c.Attr, c.Value)
		}
	default:
		v.fail("unknown operator %q on %q", c.Op, c.Attr)
	}
}
