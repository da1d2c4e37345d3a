package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_CUEAndYAMLAgree(t *testing.T) {
	for _, file := range []string{"testdata/stacks.cue", "testdata/stacks.yaml"} {
		t.Run(filepath.Ext(file), func(t *testing.T) {
			all, err := LoadAll(file)
			require.NoError(t, err)
			assert.Equal(t, []string{"bulk", "default", "lenient"}, Names(all))

			def := all["default"]
			assert.Equal(t, Configuration{
				Name:              "default",
				Store:             filepath.Join("testdata", "data", "default.db"),
				SchemaVersion:     1,
				DeleteBatchSize:   100,
				MergePolicy:       MergeStore,
				StrictConfinement: true,
			}, def)

			bulk := all["bulk"]
			assert.Equal(t, "/var/lib/graphstack/bulk.db", bulk.Store, "absolute paths are kept")
			assert.Equal(t, 3, bulk.SchemaVersion)
			assert.Equal(t, 500, bulk.DeleteBatchSize)
			assert.Equal(t, MergeObject, bulk.MergePolicy)

			assert.False(t, all["lenient"].StrictConfinement)
		})
	}
}

func TestLoad_UnknownName(t *testing.T) {
	_, err := Load("testdata/stacks.cue", "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownConfiguration))
	assert.Contains(t, err.Error(), "bulk, default, lenient")
}

func TestLoad_CUEDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.cue"), "package stacks\n\nconfiguration: one: store: \"one.db\"\n")
	writeFile(t, filepath.Join(dir, "b.cue"), "package stacks\n\nconfiguration: two: {store: \"two.db\", delete_batch_size: 7}\n")

	all, err := LoadAll(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "one.db"), all["one"].Store)
	assert.Equal(t, 7, all["two"].DeleteBatchSize)
}

func TestLoad_CUESchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing store", `configuration: x: {}`},
		{"empty store", `configuration: x: store: ""`},
		{"bad batch size", `configuration: x: {store: "x.db", delete_batch_size: 0}`},
		{"bad merge policy", `configuration: x: {store: "x.db", merge_policy: "newest"}`},
		{"unknown field", `configuration: x: {store: "x.db", colour: "blue"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.cue")
			writeFile(t, path, tt.src)

			_, err := LoadAll(path)
			require.Error(t, err)
			var loadErr *LoadError
			assert.True(t, errors.As(err, &loadErr), "want *LoadError, got %T: %v", err, err)
		})
	}
}

func TestLoad_YAMLViolations(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing store", "configuration:\n  x:\n    delete_batch_size: 3\n"},
		{"bad batch size", "configuration:\n  x:\n    store: x.db\n    delete_batch_size: 0\n"},
		{"bad merge policy", "configuration:\n  x:\n    store: x.db\n    merge_policy: newest\n"},
		{"unknown field", "configuration:\n  x:\n    store: x.db\n    colour: blue\n"},
		{"empty file", "configuration: {}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			writeFile(t, path, tt.src)

			_, err := LoadAll(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stack.toml")
	writeFile(t, path, "")

	_, err := LoadAll(path)
	assert.ErrorContains(t, err, "unsupported file type")
}

func TestDefault(t *testing.T) {
	cfg := Default("scratch", "/tmp/x")
	assert.Equal(t, "/tmp/x/scratch.db", cfg.Store)
	assert.NoError(t, cfg.check())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFileResolver(t *testing.T) {
	cfg, err := FileResolver("", "/data")("scratch")
	require.NoError(t, err)
	assert.Equal(t, "/data/scratch.db", cfg.Store)

	cfg, err = FileResolver("testdata/stacks.yaml", "/ignored")("bulk")
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.DeleteBatchSize)

	_, err = FileResolver("testdata/stacks.yaml", "")("nope")
	assert.ErrorIs(t, err, ErrUnknownConfiguration)
}
