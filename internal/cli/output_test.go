package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(ErrCodeCommit, "commit failed", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E004", resp.Error.Code)
	assert.Equal(t, "commit failed", resp.Error.Message)
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	details := map[string]string{"file": "stacks.cue", "line": "42"}
	err := formatter.Error(ErrCodeSetup, "invalid configuration", details)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("store initialized")
	require.NoError(t, err)
	assert.Equal(t, "store initialized\n", buf.String())
}

func TestOutputFormatter_TextLines(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success([]string{"Widget#w-1", "Widget#w-2"})
	require.NoError(t, err)
	assert.Equal(t, "Widget#w-1\nWidget#w-2\n", buf.String())
}

type renderedPayload struct{ n int }

func (p renderedPayload) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "rendered %d\n", p.n)
	return err
}

func TestOutputFormatter_TextRenderer(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	require.NoError(t, formatter.Success(renderedPayload{n: 3}))
	assert.Equal(t, "rendered 3\n", buf.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Error(ErrCodeNotFound, "Widget#w-9 not found", nil)
	require.NoError(t, err)
	assert.Equal(t, "Error [E005]: Widget#w-9 not found\n", buf.String())
}

func TestExitError(t *testing.T) {
	t.Run("message only", func(t *testing.T) {
		err := NewExitError(ExitCommandError, "bad flag")
		assert.Equal(t, "bad flag", err.Error())
		assert.Nil(t, errors.Unwrap(err))
	})

	t.Run("wrapped", func(t *testing.T) {
		cause := errors.New("disk full")
		err := WrapExitError(ExitFailure, "commit failed", cause)
		assert.Equal(t, "commit failed: disk full", err.Error())
		assert.ErrorIs(t, err, cause)
	})
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain error", errors.New("boom"), ExitFailure},
		{"exit error", NewExitError(ExitCommandError, "bad"), ExitCommandError},
		{"wrapped exit error", fmt.Errorf("run: %w", NewExitError(ExitCommandError, "bad")), ExitCommandError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}
