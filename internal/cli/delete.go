package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/graphstack/internal/entity"
	"github.com/roach88/graphstack/internal/stack"
	"github.com/roach88/graphstack/internal/store"
)

// DeleteResult reports a delete.
type DeleteResult struct {
	Ref     string `json:"ref"`
	Deleted bool   `json:"deleted"`
}

// RenderText prints the outcome.
func (r DeleteResult) RenderText(w io.Writer) error {
	var err error
	if r.Deleted {
		_, err = fmt.Fprintf(w, "Deleted %s\n", r.Ref)
	} else {
		_, err = fmt.Fprintf(w, "%s does not exist, nothing deleted\n", r.Ref)
	}
	return err
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <kind> <id>",
		Short: "Delete one entity through the main context",
		Long: `Delete one entity and commit the main context.

Deleting an entity that does not exist succeeds without changes.

Example:
  graphstack delete Widget 0192f8a4-7c1e-7b4e-9f3a-2d5c8e1a6b70`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

			kind, err := parseKind(args[0])
			if err != nil {
				return argsError(f, "%v", err)
			}
			ref := entity.Ref{Kind: kind, ID: args[1]}

			s, err := openStack(cmd.Context(), opts, cmd)
			if err != nil {
				return failure(f, err)
			}
			defer s.Close()

			result := DeleteResult{Ref: ref.String()}
			err = s.OnMain(cmd.Context(), func(main *stack.Context) error {
				obj, err := main.Object(ref)
				if errors.Is(err, store.ErrNotFound) {
					return nil
				}
				if err != nil {
					return err
				}
				if err := s.Delete(main.Ctx(), obj); err != nil {
					return err
				}
				result.Deleted = true
				return nil
			})
			if err != nil {
				return failure(f, err)
			}
			return f.Success(result)
		},
	}
}

// DeleteAllResult reports a delete-all.
type DeleteAllResult struct {
	Kind    string `json:"kind"`
	Deleted int    `json:"deleted"`
}

// RenderText prints the count.
func (r DeleteAllResult) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Deleted %d %s\n", r.Deleted, r.Kind)
	return err
}

// NewDeleteAllCommand creates the delete-all command.
func NewDeleteAllCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-all <kind>",
		Short: "Delete every entity of a kind",
		Long: `Delete every entity of a kind in a background context.

Identities are read in pages of the configuration's delete_batch_size.
The deletion is not atomic: on failure, entities already committed as
deleted stay deleted.

Example:
  graphstack delete-all Widget`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

			kind, err := parseKind(args[0])
			if err != nil {
				return argsError(f, "%v", err)
			}

			s, err := openStack(cmd.Context(), opts, cmd)
			if err != nil {
				return failure(f, err)
			}
			defer s.Close()

			n, err := s.DeleteAll(cmd.Context(), kind)
			if err != nil {
				return failure(f, err)
			}
			return f.Success(DeleteAllResult{Kind: string(kind), Deleted: n})
		},
	}
}
