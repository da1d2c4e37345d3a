package predicate

import (
	"fmt"
	"regexp"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/roach88/graphstack/internal/entity"
)

// Predicate is a filter over entity attributes.
//
// This is a sealed interface: the marker method keeps implementations inside
// this package.
type Predicate interface {
	predicateNode()
}

// Op is a comparison operator for Compare.
type Op string

const (
	OpLT Op = "<"
	OpLE Op = "<="
	OpGT Op = ">"
	OpGE Op = ">="
	OpNE Op = "!="
)

// Equals matches when the attribute equals Value. Equals with entity.Null
// matches unset attributes too.
type Equals struct {
	Attr  string
	Value entity.Value
}

func (Equals) predicateNode() {}

// Compare matches when "attr Op value" holds. Ordering operators only hold
// between values of the same scalar type; a missing attribute never orders.
type Compare struct {
	Attr  string
	Op    Op
	Value entity.Value
}

func (Compare) predicateNode() {}

// In matches when the attribute equals any of Values.
type In struct {
	Attr   string
	Values []entity.Value
}

func (In) predicateNode() {}

// And matches when all predicates match. Empty And matches everything.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or matches when any predicate matches. Empty Or matches nothing.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// Not inverts its child.
type Not struct {
	Predicate Predicate
}

func (Not) predicateNode() {}

// Expr is an expr-lang boolean expression evaluated against the entity's
// attributes, e.g. `qty > 3 && name startsWith "bo"`. Unset attributes are nil,
// and a row the expression fails on (`qty > 3` with qty unset) does not match.
// Expr predicates are always evaluated in memory.
type Expr struct {
	Source  string
	program *vm.Program
}

func (Expr) predicateNode() {}

var attrName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidAttr reports whether name can be used as an attribute reference.
// Names are restricted to identifiers so they can be embedded in JSON paths.
func ValidAttr(name string) bool {
	return attrName.MatchString(name)
}

// Eq builds an Equals predicate.
func Eq(attr string, v entity.Value) Equals {
	return Equals{Attr: attr, Value: v}
}

// Ne builds a != comparison.
func Ne(attr string, v entity.Value) Compare {
	return Compare{Attr: attr, Op: OpNE, Value: v}
}

// Lt builds a < comparison.
func Lt(attr string, v entity.Value) Compare {
	return Compare{Attr: attr, Op: OpLT, Value: v}
}

// Le builds a <= comparison.
func Le(attr string, v entity.Value) Compare {
	return Compare{Attr: attr, Op: OpLE, Value: v}
}

// Gt builds a > comparison.
func Gt(attr string, v entity.Value) Compare {
	return Compare{Attr: attr, Op: OpGT, Value: v}
}

// Ge builds a >= comparison.
func Ge(attr string, v entity.Value) Compare {
	return Compare{Attr: attr, Op: OpGE, Value: v}
}

// OneOf builds an In predicate.
func OneOf(attr string, vs ...entity.Value) In {
	return In{Attr: attr, Values: vs}
}

// All builds an And predicate.
func All(ps ...Predicate) And {
	return And{Predicates: ps}
}

// Any builds an Or predicate.
func Any(ps ...Predicate) Or {
	return Or{Predicates: ps}
}

// Negate builds a Not predicate.
func Negate(p Predicate) Not {
	return Not{Predicate: p}
}

// NewExpr compiles an expr-lang expression. Compilation happens once; the
// resulting Expr is immutable and safe for concurrent use.
func NewExpr(source string) (Expr, error) {
	if source == "" {
		return Expr{}, fmt.Errorf("expression must not be empty")
	}
	program, err := expr.Compile(source, expr.AllowUndefinedVariables())
	if err != nil {
		return Expr{}, fmt.Errorf("compile expression %q: %w", source, err)
	}
	return Expr{Source: source, program: program}, nil
}

// MustExpr is NewExpr that panics on error. Intended for literals in code.
func MustExpr(source string) Expr {
	e, err := NewExpr(source)
	if err != nil {
		panic(err)
	}
	return e
}
