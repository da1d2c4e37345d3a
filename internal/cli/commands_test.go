package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphstack/internal/entity"
)

// run executes the root command with args against the store in dir.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append(args, "--data-dir", dir))
	err := cmd.Execute()
	return out.String(), err
}

func insertJSON(t *testing.T, dir string, args ...string) ObjectView {
	t.Helper()
	out, err := run(t, dir, append([]string{"insert", "--format", "json"}, args...)...)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   ObjectView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "init")
	require.NoError(t, err)
	assert.Contains(t, out, `Initialized "default"`)
	assert.Contains(t, out, "merge store")
	assert.FileExists(t, filepath.Join(dir, "default.db"))

	out, err = run(t, dir, "init", "--name", "inventory")
	require.NoError(t, err)
	assert.Contains(t, out, `Initialized "inventory"`)
	assert.FileExists(t, filepath.Join(dir, "inventory.db"))
}

func TestInitCommand_FromConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "stacks.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
configuration:
  inventory:
    store: data/inventory.db
    delete_batch_size: 7
    merge_policy: object
`), 0o644))

	out, err := run(t, dir, "init", "--config", cfgPath, "--name", "inventory", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data InitResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 7, resp.Data.DeleteBatchSize)
	assert.Equal(t, "object", resp.Data.MergePolicy)
	assert.FileExists(t, filepath.Join(dir, "data", "inventory.db"))
}

func TestInitCommand_SetupError(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "init", "--config", filepath.Join(dir, "missing.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E002]")
}

func TestInsertCommand(t *testing.T) {
	dir := t.TempDir()

	view := insertJSON(t, dir, "Widget", "name=bolt", "qty=3", "active=true", "tags=[m4, steel]")
	assert.True(t, strings.HasPrefix(view.Ref, "Widget#"))
	assert.Equal(t, int64(1), view.Version)
	assert.Equal(t, "bolt", view.Attributes["name"])
	assert.Equal(t, float64(3), view.Attributes["qty"])
	assert.Equal(t, true, view.Attributes["active"])
	assert.Equal(t, []any{"m4", "steel"}, view.Attributes["tags"])

	out, err := run(t, dir, "insert", "Gadget", "code='007'")
	require.NoError(t, err)
	assert.Regexp(t, `^Gadget#\S+ \{"code":"007"\}\n$`, out)
}

func TestInsertCommand_BadArguments(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing value", []string{"Widget", "qty"}},
		{"float", []string{"Widget", "qty=1.5"}},
		{"bad name", []string{"Widget", "1qty=1"}},
		{"duplicate", []string{"Widget", "qty=1", "qty=2"}},
		{"bad kind", []string{"Wid get", "qty=1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, t.TempDir(), append([]string{"insert"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error [E003]")
		})
	}
}

func TestFindCommand(t *testing.T) {
	dir := t.TempDir()
	bolt := insertJSON(t, dir, "Widget", "name=bolt", "qty=1")
	gear := insertJSON(t, dir, "Widget", "name=gear", "qty=9")
	nut := insertJSON(t, dir, "Widget", "name=nut", "qty=5")

	t.Run("all", func(t *testing.T) {
		out, err := run(t, dir, "find", "Widget")
		require.NoError(t, err)
		assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 3)
	})

	t.Run("equality", func(t *testing.T) {
		out, err := run(t, dir, "find", "Widget", "--eq", "name=bolt")
		require.NoError(t, err)
		assert.Equal(t, bolt.Ref+` {"name":"bolt","qty":1}`+"\n", out)
	})

	t.Run("expression sorted and limited", func(t *testing.T) {
		out, err := run(t, dir, "find", "Widget", "--where", "qty > 2", "--sort", "qty:desc", "--format", "json")
		require.NoError(t, err)

		var resp struct {
			Data ObjectList `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		require.Equal(t, 2, resp.Data.Count)
		assert.Equal(t, gear.Ref, resp.Data.Objects[0].Ref)
		assert.Equal(t, nut.Ref, resp.Data.Objects[1].Ref)
		assert.Equal(t, "Widget where (qty > 2) sort qty desc", resp.Data.Fetch)

		out, err = run(t, dir, "find", "Widget", "--sort", "name", "--limit", "1", "--batch", "1")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, bolt.Ref+" "))
		assert.Equal(t, 1, strings.Count(out, "\n"))
	})

	t.Run("no match", func(t *testing.T) {
		out, err := run(t, dir, "find", "Gadget")
		require.NoError(t, err)
		assert.Equal(t, "No Gadget found.\n", out)
	})

	t.Run("bad sort direction", func(t *testing.T) {
		out, err := run(t, dir, "find", "Widget", "--sort", "qty:down")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "Error [E003]")
	})

	t.Run("bad expression", func(t *testing.T) {
		_, err := run(t, dir, "find", "Widget", "--where", "qty >")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})
}

func TestDeleteCommand(t *testing.T) {
	dir := t.TempDir()
	bolt := insertJSON(t, dir, "Widget", "name=bolt")
	ref, err := entity.ParseRef(bolt.Ref)
	require.NoError(t, err)

	out, err := run(t, dir, "delete", "Widget", ref.ID)
	require.NoError(t, err)
	assert.Equal(t, "Deleted "+bolt.Ref+"\n", out)

	out, err = run(t, dir, "find", "Widget")
	require.NoError(t, err)
	assert.Equal(t, "No Widget found.\n", out)

	out, err = run(t, dir, "delete", "Widget", ref.ID, "--format", "json")
	require.NoError(t, err)
	var resp struct {
		Data DeleteResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.False(t, resp.Data.Deleted)
}

func TestDeleteAllCommand(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a", "b", "c"} {
		insertJSON(t, dir, "Widget", "name="+name)
	}
	insertJSON(t, dir, "Gadget", "name=keep")

	out, err := run(t, dir, "delete-all", "Widget")
	require.NoError(t, err)
	assert.Equal(t, "Deleted 3 Widget\n", out)

	out, err = run(t, dir, "find", "Gadget")
	require.NoError(t, err)
	assert.Contains(t, out, `{"name":"keep"}`)

	out, err = run(t, dir, "delete-all", "Widget")
	require.NoError(t, err)
	assert.Equal(t, "Deleted 0 Widget\n", out)
}

func TestParseAssignment(t *testing.T) {
	tests := []struct {
		arg  string
		name string
		want entity.Value
	}{
		{"qty=3", "qty", entity.Int(3)},
		{"qty=-3", "qty", entity.Int(-3)},
		{"active=false", "active", entity.Bool(false)},
		{"name=bolt", "name", entity.String("bolt")},
		{"code='007'", "code", entity.String("007")},
		{"note=", "note", entity.Null{}},
		{"eq=a=b", "eq", entity.String("a=b")},
		{"tags=[1, two]", "tags", entity.List{entity.Int(1), entity.String("two")}},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			name, value, err := parseAssignment(tt.arg)
			require.NoError(t, err)
			assert.Equal(t, tt.name, name)
			assert.True(t, entity.Equal(tt.want, value), "got %#v", value)
		})
	}
}
