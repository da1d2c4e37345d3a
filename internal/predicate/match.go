package predicate

import (
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/roach88/graphstack/internal/entity"
)

// Match evaluates p against attrs in memory.
// A nil predicate matches everything.
func Match(p Predicate, attrs entity.Attributes) (bool, error) {
	if p == nil {
		return true, nil
	}

	switch pred := deref(p).(type) {
	case Equals:
		return entity.Equal(attrs.Get(pred.Attr), pred.Value), nil
	case Compare:
		return matchCompare(pred, attrs)
	case In:
		v := attrs.Get(pred.Attr)
		for _, candidate := range pred.Values {
			if entity.Equal(v, candidate) {
				return true, nil
			}
		}
		return false, nil
	case And:
		for _, child := range pred.Predicates {
			ok, err := Match(child, attrs)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case Or:
		for _, child := range pred.Predicates {
			ok, err := Match(child, attrs)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case Not:
		ok, err := Match(pred.Predicate, attrs)
		if err != nil {
			return false, err
		}
		return !ok, nil
	case Expr:
		return matchExpr(pred, attrs)
	default:
		return false, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func matchCompare(c Compare, attrs entity.Attributes) (bool, error) {
	v := attrs.Get(c.Attr)
	if c.Op == OpNE {
		return !entity.Equal(v, c.Value), nil
	}

	cmp, ok := entity.Compare(v, c.Value)
	if !ok {
		return false, nil
	}
	switch c.Op {
	case OpLT:
		return cmp < 0, nil
	case OpLE:
		return cmp <= 0, nil
	case OpGT:
		return cmp > 0, nil
	case OpGE:
		return cmp >= 0, nil
	default:
		return false, fmt.Errorf("unknown operator %q", c.Op)
	}
}

func matchExpr(e Expr, attrs entity.Attributes) (bool, error) {
	if e.program == nil {
		compiled, err := NewExpr(e.Source)
		if err != nil {
			return false, err
		}
		e = compiled
	}
	// A row the expression cannot be evaluated on, such as one where an
	// operand is unset, does not match. Same for a nil result.
	out, err := expr.Run(e.program, attrs.ToGoMap())
	if err != nil || out == nil {
		return false, nil
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q returned %T, want bool", e.Source, out)
	}
	return b, nil
}

// deref normalizes pointer predicates to their value form.
func deref(p Predicate) Predicate {
	switch pred := p.(type) {
	case *Equals:
		return *pred
	case *Compare:
		return *pred
	case *In:
		return *pred
	case *And:
		return *pred
	case *Or:
		return *pred
	case *Not:
		return *pred
	case *Expr:
		return *pred
	default:
		return p
	}
}
