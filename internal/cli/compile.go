package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tobyn/gaiaq/cql"
	"github.com/tobyn/gaiaq/filtersql"
	"github.com/tobyn/gaiaq/schema"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Schema string // schema declaration file
	Table  string // table the filter targets
	Bind   string // optional YAML file of named filter values
}

// CompileResult holds the compiled filter for output.
type CompileResult struct {
	Table       string `json:"table"`
	SQL         string `json:"sql"`
	Params      []any  `json:"params"`
	IndexUsable bool   `json:"index_usable"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <filter>",
		Short: "Compile a CQL filter to parameterized SQL",
		Long: `Compile a CQL filter expression against a declared schema.

The filter is parsed, checked against the schema's geometry columns and
printed as a SQL fragment with its bound parameters, geometry literals
hex-encoded behind GeomFromEWKB placeholders.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", "schema declaration file (CUE)")
	cmd.Flags().StringVar(&opts.Table, "table", "", "table the filter runs against")
	cmd.Flags().StringVar(&opts.Bind, "bind", "", "YAML file of named filter values")
	_ = cmd.MarkFlagRequired("schema")
	_ = cmd.MarkFlagRequired("table")

	return cmd
}

func runCompile(opts *CompileOptions, filter string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	set, err := schema.Load(opts.Schema)
	if err != nil {
		return outputError(formatter, err)
	}
	formatter.VerboseLog("Loaded schema from %s", opts.Schema)

	bound, err := bindFilter(filter, opts.Bind)
	if err != nil {
		return outputError(formatter, err)
	}

	pred, err := cql.Parse(bound)
	if err != nil {
		return outputError(formatter, err)
	}

	compiled, err := filtersql.NewCompiler(set, opts.Table).Compile(pred)
	if err != nil {
		return outputError(formatter, err)
	}

	return outputCompileSuccess(formatter, &CompileResult{
		Table:       opts.Table,
		SQL:         compiled.SQL,
		Params:      compiled.Params,
		IndexUsable: compiled.IndexUsable,
	})
}

// outputCompileSuccess outputs the compiled filter.
func outputCompileSuccess(formatter *OutputFormatter, result *CompileResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled filter for %s\n\n", result.Table)
	fmt.Fprintf(formatter.Writer, "  %s\n", result.SQL)
	if len(result.Params) > 0 {
		fmt.Fprintln(formatter.Writer)
		for i, p := range result.Params {
			fmt.Fprintf(formatter.Writer, "  ?%d = %v\n", i+1, p)
		}
	}
	fmt.Fprintf(formatter.Writer, "\n  index usable: %t\n", result.IndexUsable)
	return nil
}
