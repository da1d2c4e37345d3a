package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // configuration file (.cue, .yaml) or CUE package directory
	Name    string // configuration name
	DataDir string // where stores of undeclared configurations live
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the graphstack CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "graphstack",
		Short: "graphstack - object graph persistence stack",
		Long: `Inspect and modify a graphstack store from the command line.

Every command opens the stack for one named configuration, performs its
operation through the main and background contexts, and closes the stack.
Without --config, the configuration "<name>" uses the store
<data-dir>/<name>.db with default settings.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				msg := fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
				fmt.Fprintf(cmd.ErrOrStderr(), "Error [%s]: %s\n", ErrCodeArgs, msg)
				return NewExitError(ExitCommandError, msg)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "configuration file or CUE package directory")
	cmd.PersistentFlags().StringVarP(&opts.Name, "name", "n", "default", "configuration name")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", ".", "directory for stores of undeclared configurations")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewInsertCommand(opts))
	cmd.AddCommand(NewFindCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewDeleteAllCommand(opts))
	cmd.AddCommand(NewScenarioCommand(opts))

	return cmd
}
