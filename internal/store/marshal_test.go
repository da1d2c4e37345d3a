package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphstack/internal/entity"
)

func TestMarshalAttributes_EmptyObject(t *testing.T) {
	s, err := marshalAttributes(entity.Attributes{})
	require.NoError(t, err)
	assert.Equal(t, "{}", s)
}

func TestMarshalAttributes_SortedKeys(t *testing.T) {
	s, err := marshalAttributes(entity.Attributes{
		"qty":  entity.Int(3),
		"name": entity.String("bolt"),
		"tags": entity.List{entity.String("a"), entity.Null{}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"name":"bolt","qty":3,"tags":["a",null]}`, s)
}

func TestUnmarshalAttributes_EmptyString(t *testing.T) {
	attrs, err := unmarshalAttributes("")
	require.NoError(t, err)
	assert.Empty(t, attrs)
}

func TestUnmarshalAttributes_LargeInteger(t *testing.T) {
	attrs, err := unmarshalAttributes(`{"n":9007199254740993}`)
	require.NoError(t, err)
	assert.Equal(t, entity.Int(9007199254740993), attrs["n"])
}

func TestUnmarshalAttributes_RejectsFloat(t *testing.T) {
	_, err := unmarshalAttributes(`{"n":1.5}`)
	assert.Error(t, err)
}

func TestUnmarshalAttributes_InvalidJSON(t *testing.T) {
	_, err := unmarshalAttributes(`{not json`)
	assert.Error(t, err)
}
