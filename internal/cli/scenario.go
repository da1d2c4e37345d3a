package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/graphstack/internal/harness"
)

// ScenarioOptions holds flags for the scenario command.
type ScenarioOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"` // "match", "updated" or "missing"
	Errors []string `json:"errors,omitempty"`
}

// ScenarioReport holds the overall result.
type ScenarioReport struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// RenderText prints one line per scenario and a summary.
func (r ScenarioReport) RenderText(w io.Writer) error {
	if r.Total == 0 {
		_, err := fmt.Fprintln(w, "No scenarios found.")
		return err
	}
	for _, s := range r.Scenarios {
		mark := "✓"
		if !s.Pass {
			mark = "✗"
		}
		suffix := ""
		if s.Golden == "updated" {
			suffix = " (golden updated)"
		}
		fmt.Fprintf(w, "%s %s%s\n", mark, s.Name, suffix)
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	fmt.Fprintln(w)
	_, err := fmt.Fprintf(w, "Scenario Summary: %d passed, %d failed, %d total\n", r.Passed, r.Failed, r.Total)
	return err
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScenarioOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scenario <file-or-dir>",
		Short: "Run conformance scenarios against an in-memory stack",
		Long: `Run YAML scenarios against a fresh in-memory stack each.

Every step's expectations and the scenario assertions are checked. When
golden/<name>.golden exists next to a scenario file, the recorded trace
must match it byte for byte; --update rewrites it instead.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  graphstack scenario ./testdata/scenarios
  graphstack scenario ./testdata/scenarios --filter "delete_*"
  graphstack scenario ./testdata/scenarios/widget_lifecycle.yaml --update`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runScenarios(opts *ScenarioOptions, path string, cmd *cobra.Command) error {
	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	files, err := findScenarioFiles(path, opts.Filter)
	if err != nil {
		_ = f.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "finding scenarios", err)
	}

	report := ScenarioReport{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}
	for _, file := range files {
		res := runScenarioFile(opts, file, cmd)
		if res.Pass {
			report.Passed++
		} else {
			report.Failed++
		}
		report.Scenarios = append(report.Scenarios, res)
	}

	if report.Failed == 0 {
		return f.Success(report)
	}

	if opts.Format == "json" {
		_ = f.writeJSON(CLIResponse{
			Status: "error",
			Data:   report,
			Error: &CLIError{
				Code:    ErrCodeScenarios,
				Message: fmt.Sprintf("%d scenario(s) failed", report.Failed),
			},
		})
	} else {
		_ = report.RenderText(f.Writer)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", report.Failed))
}

// findScenarioFiles returns path itself when it is a file, otherwise every
// .yaml/.yml file below it whose base name matches filter.
func findScenarioFiles(path, filter string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(p)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext))
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, p)
		return nil
	})
	return files, err
}

// runScenarioFile loads, runs and golden-checks one scenario.
func runScenarioFile(opts *ScenarioOptions, file string, cmd *cobra.Command) ScenarioResult {
	res := ScenarioResult{Name: filepath.Base(file), File: file}
	fail := func(format string, args ...any) ScenarioResult {
		res.Errors = append(res.Errors, fmt.Sprintf(format, args...))
		return res
	}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return fail("load: %v", err)
	}
	res.Name = scenario.Name

	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr()).With("scenario", scenario.Name)
	result, err := harness.RunContext(cmd.Context(), scenario, logger)
	if err != nil {
		return fail("execution: %v", err)
	}
	res.Errors = append(res.Errors, result.Errors...)

	trace, err := harness.MarshalTrace(scenario.Name, result.Trace)
	if err != nil {
		return fail("trace: %v", err)
	}

	goldenPath := goldenFilePath(file)
	switch {
	case opts.Update:
		if err := writeGolden(goldenPath, trace); err != nil {
			return fail("golden update: %v", err)
		}
		res.Golden = "updated"
	default:
		want, err := os.ReadFile(goldenPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			res.Golden = "missing"
		case err != nil:
			return fail("golden: %v", err)
		case !bytes.Equal(want, trace):
			res.Errors = append(res.Errors, "trace does not match golden file (run with --update to regenerate)")
		default:
			res.Golden = "match"
		}
	}

	res.Pass = result.Pass && len(res.Errors) == 0
	return res
}

// goldenFilePath returns golden/<name>.golden next to the scenario file.
func goldenFilePath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

func writeGolden(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create golden directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
