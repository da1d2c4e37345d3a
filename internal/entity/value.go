package entity

import (
	"fmt"
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface over attribute value types.
// Only Null, String, Int, Bool and List implement it.
type Value interface {
	value()
}

// Null is an explicit absent value.
type Null struct{}

func (Null) value() {}

// String is a string attribute value.
type String string

func (String) value() {}

// Int is an integer attribute value. Always int64, never float.
type Int int64

func (Int) value() {}

// Bool is a boolean attribute value.
type Bool bool

func (Bool) value() {}

// List is an ordered list of values.
type List []Value

func (List) value() {}

// Attributes maps attribute names to values.
// Use SortedKeys for deterministic iteration.
type Attributes map[string]Value

// SortedKeys returns attribute names ordered by UTF-16 code units, the same
// order used by the canonical encoding.
func (a Attributes) SortedKeys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

// Get returns the value for name, or Null when it is unset.
func (a Attributes) Get(name string) Value {
	if v, ok := a[name]; ok && v != nil {
		return v
	}
	return Null{}
}

// Clone returns a deep copy. Contexts never share attribute maps.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return Attributes{}
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = cloneValue(v)
	}
	return out
}

// Merge returns a copy of a with every entry of b applied on top.
func (a Attributes) Merge(b Attributes) Attributes {
	out := a.Clone()
	for k, v := range b {
		out[k] = cloneValue(v)
	}
	return out
}

// Equal reports whether two attribute sets hold the same values.
// An unset attribute and an explicit Null are equal.
func (a Attributes) Equal(b Attributes) bool {
	for k, v := range a {
		if !Equal(v, b.Get(k)) {
			return false
		}
	}
	for k, v := range b {
		if _, ok := a[k]; !ok && !Equal(v, Null{}) {
			return false
		}
	}
	return true
}

// Diff returns the names whose values differ between a and b, sorted.
func (a Attributes) Diff(b Attributes) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var changed []string
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	for k := range seen {
		if !Equal(a.Get(k), b.Get(k)) {
			changed = append(changed, k)
		}
	}
	slices.SortFunc(changed, compareUTF16)
	return changed
}

func cloneValue(v Value) Value {
	if l, ok := v.(List); ok {
		out := make(List, len(l))
		for i, e := range l {
			out[i] = cloneValue(e)
		}
		return out
	}
	if v == nil {
		return Null{}
	}
	return v
}

// Equal reports deep equality of two values. A nil Value equals Null.
func Equal(a, b Value) bool {
	if a == nil {
		a = Null{}
	}
	if b == nil {
		b = Null{}
	}
	switch x := a.(type) {
	case List:
		y, ok := b.(List)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// Compare orders two scalar values of the same type.
// Returns ok=false when the values are not comparable (mixed types, lists, null).
func Compare(a, b Value) (cmp int, ok bool) {
	switch x := a.(type) {
	case String:
		y, isStr := b.(String)
		if !isStr {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case Int:
		y, isInt := b.(Int)
		if !isInt {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case Bool:
		y, isBool := b.(Bool)
		if !isBool {
			return 0, false
		}
		if x == y {
			return 0, true
		}
		if !x {
			return -1, true
		}
		return 1, true
	default:
		return 0, false
	}
}

// FromGo converts a plain Go value (as produced by YAML/JSON decoding or
// command-line parsing) into a Value. Floats are rejected unless integral.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint:
		return Int(val), nil
	case uint64:
		return Int(val), nil
	case float64:
		if val != float64(int64(val)) {
			return nil, fmt.Errorf("floats are not supported: %v", val)
		}
		return Int(int64(val)), nil
	case []any:
		out := make(List, len(val))
		for i, e := range val {
			ev, err := FromGo(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = ev
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported attribute type: %T", v)
	}
}

// AttributesFromGo converts a plain map into Attributes.
func AttributesFromGo(m map[string]any) (Attributes, error) {
	out := make(Attributes, len(m))
	for k, v := range m {
		val, err := FromGo(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		out[k] = val
	}
	return out, nil
}

// ToGo converts a Value back into a plain Go value.
func ToGo(v Value) any {
	switch val := v.(type) {
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Bool:
		return bool(val)
	case List:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = ToGo(e)
		}
		return out
	default:
		return nil
	}
}

// ToGoMap converts Attributes into a plain map, e.g. for expression
// environments or JSON output.
func (a Attributes) ToGoMap() map[string]any {
	out := make(map[string]any, len(a))
	for k, v := range a {
		out[k] = ToGo(v)
	}
	return out
}

// compareUTF16 orders strings by UTF-16 code units. Go's native string
// comparison uses UTF-8 bytes, which orders supplementary-plane characters
// differently.
func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}
