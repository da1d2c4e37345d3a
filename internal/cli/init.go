package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// InitResult describes an opened store.
type InitResult struct {
	Name              string `json:"name"`
	Store             string `json:"store"`
	LastSeq           int64  `json:"last_seq"`
	MergePolicy       string `json:"merge_policy"`
	DeleteBatchSize   int    `json:"delete_batch_size"`
	StrictConfinement bool   `json:"strict_confinement"`
}

// RenderText prints the configuration summary.
func (r InitResult) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Initialized %q at %s (seq %d, merge %s, delete batch %d)\n",
		r.Name, r.Store, r.LastSeq, r.MergePolicy, r.DeleteBatchSize)
	return err
}

// NewInitCommand creates the init command.
func NewInitCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create or open the store of a configuration",
		Long: `Create or open the store of the selected configuration.

Opening applies the store schema and records the configuration's model
version. A store that already holds a newer model version is refused.

Examples:
  graphstack init
  graphstack init --config stacks.cue --name inventory`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

			s, err := openStack(cmd.Context(), opts, cmd)
			if err != nil {
				return failure(f, err)
			}
			defer s.Close()

			cfg := s.Config()
			return f.Success(InitResult{
				Name:              opts.Name,
				Store:             s.Store().Path(),
				LastSeq:           s.Store().LastSeq(),
				MergePolicy:       string(cfg.MergePolicy),
				DeleteBatchSize:   cfg.DeleteBatchSize,
				StrictConfinement: cfg.StrictConfinement,
			})
		},
	}
}
