package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/graphstack/internal/config"
	"github.com/roach88/graphstack/internal/entity"
	"github.com/roach88/graphstack/internal/predicate"
	"github.com/roach88/graphstack/internal/stack"
	"github.com/roach88/graphstack/internal/store"
)

// newLogger builds the command logger: text on stderr, warnings only unless
// --verbose is set.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openStack initializes the stack for the configuration selected by the
// global flags. The caller closes it.
func openStack(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*stack.Stack, error) {
	logger := newLogger(opts, cmd.ErrOrStderr())
	manager := stack.NewManager(
		config.FileResolver(opts.Config, opts.DataDir),
		stack.WithLogger(logger),
	)
	return manager.Initialize(ctx, opts.Name)
}

// failure reports err through the formatter and converts it to an ExitError
// with the matching exit code.
func failure(f *OutputFormatter, err error) error {
	code, exit := ErrCodeGeneric, ExitFailure

	var (
		setupErr  *stack.SetupError
		commitErr *stack.CommitError
		exitErr   *ExitError
	)
	switch {
	case errors.As(err, &exitErr):
		return err
	case errors.As(err, &setupErr):
		code, exit = ErrCodeSetup, ExitCommandError
	case errors.As(err, &commitErr):
		code = ErrCodeCommit
	case errors.Is(err, store.ErrNotFound):
		code = ErrCodeNotFound
	}

	_ = f.Error(code, err.Error(), nil)
	return WrapExitError(exit, code, err)
}

// argsError reports a bad argument.
func argsError(f *OutputFormatter, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	_ = f.Error(ErrCodeArgs, msg, nil)
	return NewExitError(ExitCommandError, msg)
}

// parseKind checks a kind argument.
func parseKind(arg string) (entity.Kind, error) {
	if !predicate.ValidAttr(arg) {
		return "", fmt.Errorf("kind %q is not an identifier", arg)
	}
	return entity.Kind(arg), nil
}

// parseAssignment splits "name=value" and decodes value as a YAML scalar or
// flow list, so qty=3 is an integer, active=true a boolean and
// tags=[a, b] a list.
func parseAssignment(arg string) (string, entity.Value, error) {
	name, raw, ok := strings.Cut(arg, "=")
	if !ok {
		return "", nil, fmt.Errorf("%q: expected name=value", arg)
	}
	if !predicate.ValidAttr(name) {
		return "", nil, fmt.Errorf("%q: attribute name is not an identifier", arg)
	}

	var decoded any
	if err := yaml.Unmarshal([]byte(raw), &decoded); err != nil {
		return "", nil, fmt.Errorf("%q: %w", arg, err)
	}
	value, err := entity.FromGo(decoded)
	if err != nil {
		return "", nil, fmt.Errorf("%q: %w", arg, err)
	}
	return name, value, nil
}

// parseAssignments decodes a list of name=value arguments.
func parseAssignments(args []string) (entity.Attributes, error) {
	attrs := make(entity.Attributes, len(args))
	for _, arg := range args {
		name, value, err := parseAssignment(arg)
		if err != nil {
			return nil, err
		}
		if _, dup := attrs[name]; dup {
			return nil, fmt.Errorf("attribute %q given twice", name)
		}
		attrs[name] = value
	}
	return attrs, nil
}

// ObjectView is the printable form of an object.
type ObjectView struct {
	Ref        string         `json:"ref"`
	Version    int64          `json:"version"`
	Attributes map[string]any `json:"attributes"`

	canonical string
}

func viewOf(obj *stack.Object) (ObjectView, error) {
	attrs := obj.Attributes()
	data, err := entity.MarshalCanonical(attrs)
	if err != nil {
		return ObjectView{}, fmt.Errorf("%s: %w", obj.Ref(), err)
	}
	return ObjectView{
		Ref:        obj.Ref().String(),
		Version:    obj.Version(),
		Attributes: attrs.ToGoMap(),
		canonical:  string(data),
	}, nil
}

// RenderText prints "Kind#id {attributes}".
func (v ObjectView) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s %s\n", v.Ref, v.canonical)
	return err
}

// ObjectList is the result of a find.
type ObjectList struct {
	Kind    string       `json:"kind"`
	Fetch   string       `json:"fetch"`
	Count   int          `json:"count"`
	Objects []ObjectView `json:"objects"`
}

// RenderText prints one object per line.
func (l ObjectList) RenderText(w io.Writer) error {
	if len(l.Objects) == 0 {
		_, err := fmt.Fprintf(w, "No %s found.\n", l.Kind)
		return err
	}
	for _, v := range l.Objects {
		if err := v.RenderText(w); err != nil {
			return err
		}
	}
	return nil
}
