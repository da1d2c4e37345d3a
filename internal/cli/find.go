package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/graphstack/internal/predicate"
	"github.com/roach88/graphstack/internal/query"
	"github.com/roach88/graphstack/internal/stack"
)

// FindOptions holds flags for the find command.
type FindOptions struct {
	*RootOptions
	Where string   // expression predicate
	Eq    []string // name=value equalities
	Sort  []string // attr or attr:desc
	Limit int
	Batch int
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FindOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "find <kind>",
		Short: "Fetch entities through the main context",
		Long: `Build a fetch for the given kind and run it on the main context.

--eq filters compose with --where into one conjunction. Without filters
every entity of the kind matches. --batch reads the store in pages of
that size instead of eagerly.

Examples:
  graphstack find Widget
  graphstack find Widget --eq name=bolt
  graphstack find Widget --where 'qty > 2 && active' --sort qty:desc --limit 5`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFind(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Where, "where", "", "filter expression, e.g. 'qty > 2'")
	cmd.Flags().StringArrayVar(&opts.Eq, "eq", nil, "equality filter name=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Sort, "sort", nil, "sort key attr or attr:desc (repeatable)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of results (0 = no limit)")
	cmd.Flags().IntVar(&opts.Batch, "batch", 0, "store batch size (0 = fetch eagerly)")

	return cmd
}

func runFind(opts *FindOptions, kindArg string, cmd *cobra.Command) error {
	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	spec, err := opts.fetchSpec(kindArg)
	if err != nil {
		return argsError(f, "%v", err)
	}

	s, err := openStack(cmd.Context(), opts.RootOptions, cmd)
	if err != nil {
		return failure(f, err)
	}
	defer s.Close()

	result := ObjectList{Kind: string(spec.Kind), Fetch: spec.String(), Objects: []ObjectView{}}
	err = s.OnMain(cmd.Context(), func(main *stack.Context) error {
		objs, err := s.FindSpec(main.Ctx(), spec)
		if err != nil {
			return err
		}
		for _, obj := range objs {
			view, err := viewOf(obj)
			if err != nil {
				return err
			}
			result.Objects = append(result.Objects, view)
		}
		return nil
	})
	if err != nil {
		return failure(f, err)
	}
	result.Count = len(result.Objects)
	return f.Success(result)
}

// fetchSpec builds the fetch described by the flags.
func (opts *FindOptions) fetchSpec(kindArg string) (query.FetchSpec, error) {
	kind, err := parseKind(kindArg)
	if err != nil {
		return query.FetchSpec{}, err
	}

	var preds []predicate.Predicate
	for _, arg := range opts.Eq {
		name, value, err := parseAssignment(arg)
		if err != nil {
			return query.FetchSpec{}, err
		}
		preds = append(preds, predicate.Eq(name, value))
	}
	if opts.Where != "" {
		expr, err := predicate.NewExpr(opts.Where)
		if err != nil {
			return query.FetchSpec{}, err
		}
		preds = append(preds, expr)
	}

	var pred predicate.Predicate
	switch len(preds) {
	case 0:
	case 1:
		pred = preds[0]
	default:
		pred = predicate.All(preds...)
	}

	spec := query.BuildFetch(kind, pred, opts.Batch).WithLimit(opts.Limit)
	for _, key := range opts.Sort {
		attr, dir, _ := strings.Cut(key, ":")
		switch dir {
		case "", "asc":
			spec = spec.SortedBy(attr, false)
		case "desc":
			spec = spec.SortedBy(attr, true)
		default:
			return query.FetchSpec{}, fmt.Errorf("sort %q: direction must be asc or desc", key)
		}
	}
	if err := spec.Validate(); err != nil {
		return query.FetchSpec{}, err
	}
	return spec, nil
}
