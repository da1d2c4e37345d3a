package querysql

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/graphstack/internal/entity"
	"github.com/roach88/graphstack/internal/predicate"
	"github.com/roach88/graphstack/internal/query"
)

// Table is the store table holding entity rows.
const Table = "objects"

// Statement is a compiled fetch.
//
// CRITICAL: all values are parameterized, never interpolated. Attribute names
// are embedded in JSON paths only after predicate.ValidAttr accepted them.
type Statement struct {
	// SQL selects id, attributes, version for matching rows, ordered.
	SQL string

	// Params are the positional parameters for SQL.
	Params []any

	// Residual is the part of the predicate that could not be pushed down and
	// must be applied in memory to every returned row. Nil when the SQL is exact.
	Residual predicate.Predicate

	where string
	sort  []query.SortKey
}

// Cursor marks the last row of a page: its id and the attributes it was
// sorted by.
type Cursor struct {
	ID         string
	Attributes entity.Attributes
}

// Exact reports whether the SQL alone selects exactly the matching rows.
func (s Statement) Exact() bool {
	return s.Residual == nil
}

// Page returns the statement restricted to at most limit rows that sort after
// the cursor. A nil cursor selects the first page.
//
// Paging is keyset based, so rows inserted or deleted before the cursor while
// a caller walks the pages never shift later pages.
func (s Statement) Page(limit int, after *Cursor) (string, []any) {
	params := make([]any, len(s.Params), len(s.Params)+2*len(s.sort)+2)
	copy(params, s.Params)

	var b strings.Builder
	b.WriteString(selectRows)
	b.WriteString(s.where)
	if after != nil {
		cond, condParams := keyset(s.sort, after)
		b.WriteString(" AND ")
		b.WriteString(cond)
		params = append(params, condParams...)
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(orderBy(s.sort))
	b.WriteString(" LIMIT ?")
	return b.String(), append(params, limit)
}

const selectRows = "SELECT id, attributes, version FROM " + Table + " WHERE "

// Compile converts a fetch specification to parameterized SQLite SQL.
//
// MANDATORY: every statement has an ORDER BY ending in "id COLLATE BINARY ASC"
// so paging and result order are deterministic.
func Compile(spec query.FetchSpec) (Statement, error) {
	if err := spec.Validate(); err != nil {
		return Statement{}, err
	}

	where, params, residual, err := compilePredicate(spec.Predicate)
	if err != nil {
		return Statement{}, fmt.Errorf("compile %s: %w", spec.Kind, err)
	}

	clause := "kind = ?"
	allParams := []any{string(spec.Kind)}
	if where != "" {
		clause += " AND " + where
		allParams = append(allParams, params...)
	}

	return Statement{
		SQL:      selectRows + clause + " ORDER BY " + orderBy(spec.Sort),
		Params:   allParams,
		Residual: residual,
		where:    clause,
		sort:     spec.Sort,
	}, nil
}

// CompileCount compiles a COUNT query. Only valid for predicates that push
// down completely; ok is false otherwise and the caller must count rows itself.
func CompileCount(spec query.FetchSpec) (sql string, params []any, ok bool, err error) {
	if err := spec.Validate(); err != nil {
		return "", nil, false, err
	}
	where, whereParams, residual, err := compilePredicate(spec.Predicate)
	if err != nil {
		return "", nil, false, fmt.Errorf("compile %s: %w", spec.Kind, err)
	}
	if residual != nil {
		return "", nil, false, nil
	}

	sql = fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE kind = ?", Table)
	params = []any{string(spec.Kind)}
	if where != "" {
		sql += " AND " + where
		params = append(params, whereParams...)
	}
	return sql, params, true, nil
}

// orderBy builds the ORDER BY list. The id tiebreaker is always last.
func orderBy(keys []query.SortKey) string {
	parts := make([]string, 0, len(keys)+1)
	for _, key := range keys {
		dir := "ASC"
		if key.Descending {
			dir = "DESC"
		}
		parts = append(parts, fmt.Sprintf("%s %s", extract(key.Attr), dir))
	}
	parts = append(parts, "id COLLATE BINARY ASC")
	return strings.Join(parts, ", ")
}

// keyset selects the rows that sort strictly after the cursor:
//
//	k1 > v1 OR (k1 IS v1 AND k2 > v2) OR ... OR (k1 IS v1 AND ... AND id > last)
//
// with NULLs first in ascending keys and last in descending ones, the way
// ORDER BY places them.
func keyset(keys []query.SortKey, after *Cursor) (string, []any) {
	var (
		disjuncts []string
		params    []any
		equal     []string
		equalArgs []any
	)
	for _, key := range keys {
		e := extract(key.Attr)
		v := sqlValue(after.Attributes.Get(key.Attr))

		if cond, args := beyond(e, v, key.Descending); cond != "" {
			disjuncts = append(disjuncts, conjoin(append(slices.Clone(equal), cond)))
			params = append(params, equalArgs...)
			params = append(params, args...)
		}
		equal = append(equal, e+" IS ?")
		equalArgs = append(equalArgs, v)
	}
	disjuncts = append(disjuncts, conjoin(append(equal, "id > ?")))
	params = append(params, equalArgs...)
	params = append(params, after.ID)

	return "(" + strings.Join(disjuncts, " OR ") + ")", params
}

// beyond is the condition for e sorting strictly after v in one direction.
// Empty when nothing can.
func beyond(e string, v any, descending bool) (string, []any) {
	switch {
	case v == nil && descending:
		return "", nil
	case v == nil:
		return e + " IS NOT NULL", nil
	case descending:
		return fmt.Sprintf("(%s < ? OR %s IS NULL)", e, e), []any{v}
	default:
		return e + " > ?", []any{v}
	}
}

func conjoin(parts []string) string {
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

// sqlValue is the value json_extract yields for v: booleans become 0/1 and
// lists their JSON text.
func sqlValue(v entity.Value) any {
	switch val := v.(type) {
	case entity.String:
		return string(val)
	case entity.Int:
		return int64(val)
	case entity.Bool:
		if val {
			return int64(1)
		}
		return int64(0)
	case entity.List:
		data, _ := entity.MarshalValue(val)
		return string(data)
	default:
		return nil
	}
}

func extract(attr string) string {
	return fmt.Sprintf("json_extract(attributes, '$.%s')", attr)
}

func jsonType(attr string) string {
	return fmt.Sprintf("json_type(attributes, '$.%s')", attr)
}

// compilePredicate returns the pushed-down SQL fragment (empty when nothing
// could be pushed down) and the residual predicate for in-memory evaluation.
//
// Every fragment is two-valued: json_type is tested with IS, so a missing
// attribute yields false rather than NULL and NOT agrees with predicate.Match.
func compilePredicate(p predicate.Predicate) (string, []any, predicate.Predicate, error) {
	if p == nil {
		return "", nil, nil, nil
	}

	switch pred := p.(type) {
	case predicate.Equals:
		return compileEquals(pred.Attr, pred.Value, p)
	case *predicate.Equals:
		return compileEquals(pred.Attr, pred.Value, p)
	case predicate.Compare:
		return compileCompare(pred, p)
	case *predicate.Compare:
		return compileCompare(*pred, p)
	case predicate.In:
		return compileIn(pred, p)
	case *predicate.In:
		return compileIn(*pred, p)
	case predicate.And:
		return compileAnd(pred.Predicates)
	case *predicate.And:
		return compileAnd(pred.Predicates)
	case predicate.Or:
		return compileOr(pred.Predicates, p)
	case *predicate.Or:
		return compileOr(pred.Predicates, p)
	case predicate.Not:
		return compileNot(pred.Predicate, p)
	case *predicate.Not:
		return compileNot(pred.Predicate, p)
	case predicate.Expr, *predicate.Expr:
		return "", nil, p, nil
	default:
		return "", nil, nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileEquals compiles attr = value with a json_type guard so values of
// other types never compare equal (an integer 1 is not the string "1").
func compileEquals(attr string, v entity.Value, orig predicate.Predicate) (string, []any, predicate.Predicate, error) {
	switch val := v.(type) {
	case nil, entity.Null:
		t := jsonType(attr)
		return fmt.Sprintf("(%s IS NULL OR %s IS 'null')", t, t), nil, nil, nil
	case entity.String:
		return fmt.Sprintf("(%s IS 'text' AND %s = ?)", jsonType(attr), extract(attr)), []any{string(val)}, nil, nil
	case entity.Int:
		return fmt.Sprintf("(%s IS 'integer' AND %s = ?)", jsonType(attr), extract(attr)), []any{int64(val)}, nil, nil
	case entity.Bool:
		return fmt.Sprintf("%s IS '%t'", jsonType(attr), bool(val)), nil, nil, nil
	case entity.List:
		return "", nil, orig, nil
	default:
		return "", nil, nil, fmt.Errorf("unsupported value type: %T", v)
	}
}

func compileCompare(c predicate.Compare, orig predicate.Predicate) (string, []any, predicate.Predicate, error) {
	if c.Op == predicate.OpNE {
		sql, params, residual, err := compileEquals(c.Attr, c.Value, orig)
		if err != nil || residual != nil {
			return "", nil, residual, err
		}
		return "NOT " + wrap(sql), params, nil, nil
	}

	switch c.Op {
	case predicate.OpLT, predicate.OpLE, predicate.OpGT, predicate.OpGE:
	default:
		return "", nil, nil, fmt.Errorf("unknown operator %q", c.Op)
	}

	switch val := c.Value.(type) {
	case entity.String:
		return fmt.Sprintf("(%s IS 'text' AND %s %s ?)", jsonType(c.Attr), extract(c.Attr), c.Op), []any{string(val)}, nil, nil
	case entity.Int:
		return fmt.Sprintf("(%s IS 'integer' AND %s %s ?)", jsonType(c.Attr), extract(c.Attr), c.Op), []any{int64(val)}, nil, nil
	case entity.Bool:
		// json_extract yields 0/1 for JSON booleans.
		n := int64(0)
		if val {
			n = 1
		}
		t := jsonType(c.Attr)
		return fmt.Sprintf("((%s IS 'true' OR %s IS 'false') AND %s %s ?)", t, t, extract(c.Attr), c.Op), []any{n}, nil, nil
	default:
		return "", nil, nil, fmt.Errorf("operator %s needs a string, int or bool value, got %T", c.Op, c.Value)
	}
}

func compileIn(in predicate.In, orig predicate.Predicate) (string, []any, predicate.Predicate, error) {
	if len(in.Values) == 0 {
		return "0 = 1", nil, nil, nil
	}
	parts := make([]string, 0, len(in.Values))
	var params []any
	for _, v := range in.Values {
		sql, p, residual, err := compileEquals(in.Attr, v, orig)
		if err != nil || residual != nil {
			return "", nil, residual, err
		}
		parts = append(parts, sql)
		params = append(params, p...)
	}
	return "(" + strings.Join(parts, " OR ") + ")", params, nil, nil
}

// compileAnd pushes down every child it can; children that stay in memory are
// collected into the residual. A conjunction is still correct when split.
func compileAnd(children []predicate.Predicate) (string, []any, predicate.Predicate, error) {
	if len(children) == 0 {
		return "1 = 1", nil, nil, nil
	}

	var parts []string
	var params []any
	var residuals []predicate.Predicate
	for _, child := range children {
		sql, p, residual, err := compilePredicate(child)
		if err != nil {
			return "", nil, nil, err
		}
		if sql != "" {
			parts = append(parts, wrap(sql))
			params = append(params, p...)
		}
		if residual != nil {
			residuals = append(residuals, residual)
		}
	}

	var residual predicate.Predicate
	switch len(residuals) {
	case 0:
	case 1:
		residual = residuals[0]
	default:
		residual = predicate.And{Predicates: residuals}
	}
	return strings.Join(parts, " AND "), params, residual, nil
}

// compileOr pushes down only when every child pushes down completely.
func compileOr(children []predicate.Predicate, orig predicate.Predicate) (string, []any, predicate.Predicate, error) {
	if len(children) == 0 {
		return "0 = 1", nil, nil, nil
	}

	parts := make([]string, 0, len(children))
	var params []any
	for _, child := range children {
		sql, p, residual, err := compilePredicate(child)
		if err != nil {
			return "", nil, nil, err
		}
		if residual != nil {
			return "", nil, orig, nil
		}
		if sql == "" {
			sql = "1 = 1"
		}
		parts = append(parts, wrap(sql))
		params = append(params, p...)
	}
	return "(" + strings.Join(parts, " OR ") + ")", params, nil, nil
}

func compileNot(child predicate.Predicate, orig predicate.Predicate) (string, []any, predicate.Predicate, error) {
	if child == nil {
		return "", nil, nil, fmt.Errorf("NOT requires a child predicate")
	}
	sql, params, residual, err := compilePredicate(child)
	if err != nil {
		return "", nil, nil, err
	}
	if residual != nil {
		return "", nil, orig, nil
	}
	if sql == "" {
		return "0 = 1", nil, nil, nil
	}
	return "NOT " + wrap(sql), params, nil, nil
}

// wrap parenthesizes a fragment unless it already is a single group.
func wrap(sql string) string {
	if strings.HasPrefix(sql, "(") && strings.HasSuffix(sql, ")") && balanced(sql[1:len(sql)-1]) {
		return sql
	}
	return "(" + sql + ")"
}

func balanced(s string) bool {
	depth := 0
	for _, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}
