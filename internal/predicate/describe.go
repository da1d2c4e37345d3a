package predicate

import (
	"fmt"
	"strings"

	"github.com/roach88/graphstack/internal/entity"
)

// Describe renders a predicate in a stable, human-readable form, used in logs
// and traces. A nil predicate renders as "true".
func Describe(p Predicate) string {
	if p == nil {
		return "true"
	}

	switch pred := deref(p).(type) {
	case Equals:
		return fmt.Sprintf("%s == %s", pred.Attr, describeValue(pred.Value))
	case Compare:
		return fmt.Sprintf("%s %s %s", pred.Attr, pred.Op, describeValue(pred.Value))
	case In:
		parts := make([]string, len(pred.Values))
		for i, v := range pred.Values {
			parts[i] = describeValue(v)
		}
		return fmt.Sprintf("%s in [%s]", pred.Attr, strings.Join(parts, ", "))
	case And:
		return join(pred.Predicates, " && ", "true")
	case Or:
		return join(pred.Predicates, " || ", "false")
	case Not:
		return "!(" + Describe(pred.Predicate) + ")"
	case Expr:
		return "(" + pred.Source + ")"
	default:
		return fmt.Sprintf("<%T>", p)
	}
}

func join(ps []Predicate, sep, empty string) string {
	if len(ps) == 0 {
		return empty
	}
	parts := make([]string, len(ps))
	for i, child := range ps {
		parts[i] = Describe(child)
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func describeValue(v entity.Value) string {
	data, err := entity.MarshalValue(v)
	if err != nil {
		return fmt.Sprintf("<%T>", v)
	}
	return string(data)
}
