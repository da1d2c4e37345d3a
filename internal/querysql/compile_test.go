package querysql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphstack/internal/entity"
	"github.com/roach88/graphstack/internal/predicate"
	"github.com/roach88/graphstack/internal/query"
)

func TestCompile_MatchAll(t *testing.T) {
	stmt, err := Compile(query.BuildFetch("Widget", nil, 0))
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT id, attributes, version FROM objects WHERE kind = ? ORDER BY id COLLATE BINARY ASC",
		stmt.SQL)
	assert.Equal(t, []any{"Widget"}, stmt.Params)
	assert.True(t, stmt.Exact())
}

func TestCompile_EqualsString(t *testing.T) {
	stmt, err := Compile(query.BuildFetch("Widget", predicate.Eq("name", entity.String("bolt")), 0))
	require.NoError(t, err)

	assert.Contains(t, stmt.SQL, "json_type(attributes, '$.name') IS 'text'")
	assert.Contains(t, stmt.SQL, "json_extract(attributes, '$.name') = ?")
	assert.NotContains(t, stmt.SQL, "bolt")
	assert.Equal(t, []any{"Widget", "bolt"}, stmt.Params)
	assert.True(t, stmt.Exact())
}

func TestCompile_PointerForms(t *testing.T) {
	eq := predicate.Eq("qty", entity.Int(3))
	stmt, err := Compile(query.BuildFetch("Widget", &eq, 0))
	require.NoError(t, err)

	assert.Contains(t, stmt.SQL, "json_type(attributes, '$.qty') IS 'integer'")
	assert.Equal(t, []any{"Widget", int64(3)}, stmt.Params)
}

func TestCompile_EqualsNull(t *testing.T) {
	stmt, err := Compile(query.BuildFetch("Widget", predicate.Eq("color", entity.Null{}), 0))
	require.NoError(t, err)

	assert.Contains(t, stmt.SQL, "json_type(attributes, '$.color') IS NULL OR json_type(attributes, '$.color') IS 'null'")
	assert.Equal(t, []any{"Widget"}, stmt.Params)
}

func TestCompile_EqualsBool(t *testing.T) {
	stmt, err := Compile(query.BuildFetch("Widget", predicate.Eq("active", entity.Bool(true)), 0))
	require.NoError(t, err)

	assert.Contains(t, stmt.SQL, "json_type(attributes, '$.active') IS 'true'")
	assert.Equal(t, []any{"Widget"}, stmt.Params)
}

func TestCompile_CompareOperators(t *testing.T) {
	testCases := []struct {
		name   string
		pred   predicate.Predicate
		want   string
		params []any
	}{
		{
			name:   "less than int",
			pred:   predicate.Lt("qty", entity.Int(5)),
			want:   "json_extract(attributes, '$.qty') < ?",
			params: []any{"Widget", int64(5)},
		},
		{
			name:   "greater or equal string",
			pred:   predicate.Ge("name", entity.String("m")),
			want:   "json_extract(attributes, '$.name') >= ?",
			params: []any{"Widget", "m"},
		},
		{
			name:   "bool ordering uses 0/1",
			pred:   predicate.Gt("active", entity.Bool(false)),
			want:   "(json_type(attributes, '$.active') IS 'true' OR json_type(attributes, '$.active') IS 'false')",
			params: []any{"Widget", int64(0)},
		},
		{
			name:   "not equal negates equality",
			pred:   predicate.Ne("name", entity.String("bolt")),
			want:   "NOT (json_type(attributes, '$.name') IS 'text' AND json_extract(attributes, '$.name') = ?)",
			params: []any{"Widget", "bolt"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			stmt, err := Compile(query.BuildFetch("Widget", tc.pred, 0))
			require.NoError(t, err)
			assert.Contains(t, stmt.SQL, tc.want)
			assert.Equal(t, tc.params, stmt.Params)
			assert.True(t, stmt.Exact())
		})
	}
}

func TestCompile_In(t *testing.T) {
	stmt, err := Compile(query.BuildFetch("Widget",
		predicate.OneOf("color", entity.String("red"), entity.Null{}), 0))
	require.NoError(t, err)

	assert.Contains(t, stmt.SQL, " OR ")
	assert.Equal(t, []any{"Widget", "red"}, stmt.Params)
}

func TestCompile_EmptyInMatchesNothing(t *testing.T) {
	stmt, err := Compile(query.BuildFetch("Widget", predicate.OneOf("color"), 0))
	require.NoError(t, err)

	assert.Contains(t, stmt.SQL, "0 = 1")
}

func TestCompile_EmptyConnectives(t *testing.T) {
	stmt, err := Compile(query.BuildFetch("Widget", predicate.All(), 0))
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "1 = 1")

	stmt, err = Compile(query.BuildFetch("Widget", predicate.Any(), 0))
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "0 = 1")
}

func TestCompile_ParamsFollowPlaceholderOrder(t *testing.T) {
	pred := predicate.All(
		predicate.Eq("name", entity.String("bolt")),
		predicate.Any(
			predicate.Gt("qty", entity.Int(3)),
			predicate.Negate(predicate.Eq("color", entity.String("red"))),
		),
	)
	stmt, err := Compile(query.BuildFetch("Widget", pred, 0))
	require.NoError(t, err)

	assert.Equal(t, []any{"Widget", "bolt", int64(3), "red"}, stmt.Params)
	assert.Equal(t, len(stmt.Params), countPlaceholders(stmt.SQL))
	assert.True(t, stmt.Exact())
}

func TestCompile_ExprBecomesResidual(t *testing.T) {
	expr := predicate.MustExpr("qty * 2 > 10")
	stmt, err := Compile(query.BuildFetch("Widget", expr, 0))
	require.NoError(t, err)

	assert.False(t, stmt.Exact())
	assert.Equal(t, []any{"Widget"}, stmt.Params)
	assert.NotContains(t, stmt.SQL, "qty")
}

func TestCompile_AndSplitsPushdownAndResidual(t *testing.T) {
	expr := predicate.MustExpr("qty * 2 > 10")
	pred := predicate.All(predicate.Eq("name", entity.String("bolt")), expr)

	stmt, err := Compile(query.BuildFetch("Widget", pred, 0))
	require.NoError(t, err)

	assert.Contains(t, stmt.SQL, "json_extract(attributes, '$.name') = ?")
	assert.Equal(t, []any{"Widget", "bolt"}, stmt.Params)
	require.NotNil(t, stmt.Residual)
	assert.IsType(t, predicate.Expr{}, stmt.Residual)
}

func TestCompile_OrWithResidualChildStaysInMemory(t *testing.T) {
	pred := predicate.Any(
		predicate.Eq("name", entity.String("bolt")),
		predicate.MustExpr("qty > 1"),
	)
	stmt, err := Compile(query.BuildFetch("Widget", pred, 0))
	require.NoError(t, err)

	assert.Equal(t, []any{"Widget"}, stmt.Params)
	assert.Equal(t, pred, stmt.Residual)
}

func TestCompile_ListEqualityIsResidual(t *testing.T) {
	pred := predicate.Eq("tags", entity.List{entity.String("a")})
	stmt, err := Compile(query.BuildFetch("Widget", pred, 0))
	require.NoError(t, err)

	assert.False(t, stmt.Exact())
}

func TestCompile_SortKeys(t *testing.T) {
	spec := query.BuildFetch("Widget", nil, 0).SortedBy("name", false).SortedBy("qty", true)
	stmt, err := Compile(spec)
	require.NoError(t, err)

	assert.Contains(t, stmt.SQL,
		"ORDER BY json_extract(attributes, '$.name') ASC, json_extract(attributes, '$.qty') DESC, id COLLATE BINARY ASC")
}

func TestCompile_RejectsInvalidSpec(t *testing.T) {
	_, err := Compile(query.BuildFetch("", nil, 0))
	require.Error(t, err)

	_, err = Compile(query.BuildFetch("Widget", predicate.Eq("bad name'; --", entity.Int(1)), 0))
	require.Error(t, err)

	_, err = Compile(query.BuildFetch("Widget", nil, 0).SortedBy("x')", false))
	require.Error(t, err)
}

func TestStatement_Page(t *testing.T) {
	stmt, err := Compile(query.BuildFetch("Widget", predicate.Eq("name", entity.String("bolt")), 0))
	require.NoError(t, err)

	sql, params := stmt.Page(50, nil)
	assert.True(t, strings.HasSuffix(sql, "ORDER BY id COLLATE BINARY ASC LIMIT ?"))
	assert.NotContains(t, sql, "OFFSET")
	assert.Equal(t, []any{"Widget", "bolt", 50}, params)

	sql, params = stmt.Page(50, &Cursor{ID: "w-0007"})
	assert.Contains(t, sql, "AND (id > ?) ORDER BY")
	assert.Equal(t, []any{"Widget", "bolt", "w-0007", 50}, params)
	assert.Equal(t, len(params), countPlaceholders(sql))

	// Paging does not mutate the compiled params.
	assert.Equal(t, []any{"Widget", "bolt"}, stmt.Params)
}

func TestStatement_PageAfterSortKeys(t *testing.T) {
	spec := query.BuildFetch("Widget", nil, 0).SortedBy("name", false).SortedBy("qty", true)
	stmt, err := Compile(spec)
	require.NoError(t, err)

	after := &Cursor{ID: "w-0003", Attributes: entity.Attributes{"name": entity.String("bolt"), "qty": entity.Int(4)}}
	sql, params := stmt.Page(10, after)

	name := "json_extract(attributes, '$.name')"
	qty := "json_extract(attributes, '$.qty')"
	assert.Contains(t, sql, "("+name+" > ? OR ("+name+" IS ? AND ("+qty+" < ? OR "+qty+" IS NULL)) OR ("+name+" IS ? AND "+qty+" IS ? AND id > ?))")
	assert.Equal(t, []any{"Widget", "bolt", "bolt", int64(4), "bolt", int64(4), "w-0003", 10}, params)
	assert.Equal(t, len(params), countPlaceholders(sql))
}

func TestStatement_PageAfterNullSortValue(t *testing.T) {
	asc, err := Compile(query.BuildFetch("Widget", nil, 0).SortedBy("color", false))
	require.NoError(t, err)
	sql, params := asc.Page(10, &Cursor{ID: "w-0001", Attributes: entity.Attributes{}})
	assert.Contains(t, sql, "json_extract(attributes, '$.color') IS NOT NULL OR")
	assert.Equal(t, []any{"Widget", nil, "w-0001", 10}, params)

	// Descending puts NULLs last, so only the id tiebreak can move past one.
	desc, err := Compile(query.BuildFetch("Widget", nil, 0).SortedBy("color", true))
	require.NoError(t, err)
	sql, params = desc.Page(10, &Cursor{ID: "w-0001", Attributes: entity.Attributes{}})
	assert.Contains(t, sql, "AND ((json_extract(attributes, '$.color') IS ? AND id > ?)) ORDER BY")
	assert.Equal(t, []any{"Widget", nil, "w-0001", 10}, params)
}

func TestCompileCount(t *testing.T) {
	sql, params, ok, err := CompileCount(query.BuildFetch("Widget", predicate.Gt("qty", entity.Int(1)), 0))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, sql, "SELECT COUNT(*) FROM objects WHERE kind = ?")
	assert.Equal(t, []any{"Widget", int64(1)}, params)

	_, _, ok, err = CompileCount(query.BuildFetch("Widget", predicate.MustExpr("qty > 1"), 0))
	require.NoError(t, err)
	assert.False(t, ok)
}

func countPlaceholders(sql string) int {
	n := 0
	for _, r := range sql {
		if r == '?' {
			n++
		}
	}
	return n
}
