package querysql

import (
	"strings"

	"github.com/roach88/graphstack/internal/entity"
	"github.com/roach88/graphstack/internal/query"
)

// CompareValues orders two attribute values the way SQLite orders the
// json_extract results that ORDER BY sees: NULL first, then integers and
// booleans (as 0/1) numerically, then text by bytes. Lists compare as their
// JSON text, since that is what json_extract returns for arrays.
//
// Contexts use it to sort unsaved objects into store-ordered results.
func CompareValues(a, b entity.Value) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch ra {
	case rankNull:
		return 0
	case rankNumber:
		na, nb := number(a), number(b)
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	default:
		return strings.Compare(text(a), text(b))
	}
}

// CompareRows orders two attribute sets by sort keys, then by id, matching
// the ORDER BY that Compile emits.
func CompareRows(keys []query.SortKey, idA string, a entity.Attributes, idB string, b entity.Attributes) int {
	for _, key := range keys {
		c := CompareValues(a.Get(key.Attr), b.Get(key.Attr))
		if key.Descending {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return strings.Compare(idA, idB)
}

const (
	rankNull = iota
	rankNumber
	rankText
)

func rank(v entity.Value) int {
	switch v.(type) {
	case entity.Int, entity.Bool:
		return rankNumber
	case entity.String, entity.List:
		return rankText
	default:
		return rankNull
	}
}

func number(v entity.Value) int64 {
	switch val := v.(type) {
	case entity.Int:
		return int64(val)
	case entity.Bool:
		if val {
			return 1
		}
	}
	return 0
}

func text(v entity.Value) string {
	if s, ok := v.(entity.String); ok {
		return string(s)
	}
	data, _ := entity.MarshalValue(v)
	return string(data)
}
