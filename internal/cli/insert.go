package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/graphstack/internal/entity"
	"github.com/roach88/graphstack/internal/stack"
)

// NewInsertCommand creates the insert command.
func NewInsertCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "insert <kind> [name=value...]",
		Short: "Insert an entity through a background save",
		Long: `Insert one entity of the given kind.

Values are read as YAML scalars or flow lists: qty=3 is an integer,
active=true a boolean, tags=[a, b] a list, name=bolt a string. Quote a
value to force a string (code='007'). Floats are rejected.

The insert runs in a background context, is committed there and merged
into the main context before the command prints the stored object.

Examples:
  graphstack insert Widget name=bolt qty=3
  graphstack insert Widget name=nut tags=[metric,steel] --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

			kind, err := parseKind(args[0])
			if err != nil {
				return argsError(f, "%v", err)
			}
			attrs, err := parseAssignments(args[1:])
			if err != nil {
				return argsError(f, "%v", err)
			}

			s, err := openStack(cmd.Context(), opts, cmd)
			if err != nil {
				return failure(f, err)
			}
			defer s.Close()

			var ref entity.Ref
			err = s.SaveInBackground(cmd.Context(), func(bg *stack.Context) error {
				obj, err := bg.Insert(kind, attrs)
				if err != nil {
					return err
				}
				ref = obj.Ref()
				return nil
			})
			if err != nil {
				return failure(f, err)
			}

			var view ObjectView
			err = s.OnMain(cmd.Context(), func(main *stack.Context) error {
				obj, err := main.Object(ref)
				if err != nil {
					return err
				}
				view, err = viewOf(obj)
				return err
			})
			if err != nil {
				return failure(f, err)
			}
			return f.Success(view)
		},
	}
}
