package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tobyn/gaiaq/catalog"
)

// OpInfo is one catalog entry for output.
type OpInfo struct {
	Name        string   `json:"name"`
	SQLFunction string   `json:"sql_function"`
	Arity       int      `json:"arity"`
	Args        []string `json:"args"`
	Result      string   `json:"result"`
	IndexUsable bool     `json:"index_usable"`
	Negated     bool     `json:"negated,omitempty"`
}

// NewOpsCommand creates the ops command.
func NewOpsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ops",
		Short: "List the spatial operation catalog",
		Long: `List every operation a filter may name, the SpatiaLite function it
compiles to, its argument kinds and whether a spatial index can answer it.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOps(rootOpts, cmd)
		},
	}
}

func runOps(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	names := catalog.Names()
	ops := make([]OpInfo, 0, len(names))
	for _, name := range names {
		spec, err := catalog.Resolve(name)
		if err != nil {
			return outputError(formatter, err)
		}
		args := make([]string, len(spec.Args))
		for i, kind := range spec.Args {
			args[i] = kind.String()
		}
		ops = append(ops, OpInfo{
			Name:        spec.Name,
			SQLFunction: spec.SQLName,
			Arity:       spec.Arity,
			Args:        args,
			Result:      spec.Result.String(),
			IndexUsable: spec.IndexUsable,
			Negated:     spec.Negated,
		})
	}

	if formatter.Format == "json" {
		return formatter.Success(ops)
	}

	fmt.Fprintf(formatter.Writer, "✓ %d operation(s)\n\n", len(ops))
	for _, op := range ops {
		suffix := ""
		if op.IndexUsable {
			suffix = "  index-usable"
		}
		if op.Negated {
			suffix += "  negated"
		}
		fmt.Fprintf(formatter.Writer, "  %-14s %-14s arity=%d  %s%s\n",
			op.Name, op.SQLFunction, op.Arity, op.Result, suffix)
	}
	return nil
}
