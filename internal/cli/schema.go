package cli

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tobyn/gaiaq/schema"
	"github.com/tobyn/gaiaq/spatialite"
)

// SchemaColumn is one declared geometry column for output.
type SchemaColumn struct {
	Table  string `json:"table"`
	Column string `json:"column"`
	Type   string `json:"type"`
	SRID   int32  `json:"srid"`
	Dims   string `json:"dims"`
	Index  bool   `json:"index"`
}

// ApplyResult holds the outcome of schema apply.
type ApplyResult struct {
	DB      string         `json:"db"`
	Columns []SchemaColumn `json:"columns"`
}

// NewSchemaCommand groups the schema subcommands.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Validate and apply schema declarations",
	}
	cmd.AddCommand(newSchemaValidateCommand(rootOpts))
	cmd.AddCommand(newSchemaApplyCommand(rootOpts))
	return cmd
}

func newSchemaValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file.cue>",
		Short: "Compile a schema declaration and report problems",
		Long: `Compile a CUE schema declaration. Field errors are reported with
their source positions; a valid file lists its geometry columns.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchemaValidate(rootOpts, args[0], cmd)
		},
	}
}

func runSchemaValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	set, err := schema.Load(path)
	if err != nil {
		return outputError(formatter, err)
	}

	cols := schemaColumns(set)
	if formatter.Format == "json" {
		return formatter.Success(cols)
	}

	fmt.Fprintf(formatter.Writer, "✓ %d table(s), %d geometry column(s)\n\n", len(set.Tables), len(cols))
	printSchemaColumns(formatter, cols)
	return nil
}

func newSchemaApplyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <file.cue>",
		Short: "Register declared geometry columns in a database",
		Long: `Register every geometry column the declaration names, creating
tables and spatial indexes as needed. Running apply again is a no-op.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchemaApply(rootOpts, args[0], cmd)
		},
	}
}

func runSchemaApply(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if opts.DB == "" {
		return outputError(formatter, errors.New("cli: --db is required"))
	}

	set, err := schema.Load(path)
	if err != nil {
		return outputError(formatter, err)
	}

	conn, err := spatialite.Open(opts.DB,
		spatialite.WithSchema(set),
		spatialite.WithLibrary(opts.SpatialiteLib),
		spatialite.WithLogger(zap.L()))
	if err != nil {
		return outputError(formatter, err)
	}
	defer conn.Close()

	if err := conn.ApplySchema(cmd.Context(), set); err != nil {
		return outputError(formatter, err)
	}

	cols := schemaColumns(set)
	if formatter.Format == "json" {
		return formatter.Success(&ApplyResult{DB: opts.DB, Columns: cols})
	}

	fmt.Fprintf(formatter.Writer, "✓ Applied %d geometry column(s) to %s\n\n", len(cols), opts.DB)
	printSchemaColumns(formatter, cols)
	return nil
}

func schemaColumns(set *schema.Set) []SchemaColumn {
	cols := set.Columns()
	sort.Slice(cols, func(i, j int) bool {
		if cols[i].Table != cols[j].Table {
			return cols[i].Table < cols[j].Table
		}
		return cols[i].Name < cols[j].Name
	})

	out := make([]SchemaColumn, len(cols))
	for i, col := range cols {
		out[i] = SchemaColumn{
			Table:  col.Table,
			Column: col.Name,
			Type:   col.Type.String(),
			SRID:   col.SRID,
			Dims:   col.Dims,
			Index:  col.Index,
		}
	}
	return out
}

func printSchemaColumns(formatter *OutputFormatter, cols []SchemaColumn) {
	for _, col := range cols {
		suffix := ""
		if col.Index {
			suffix = "  indexed"
		}
		fmt.Fprintf(formatter.Writer, "  %s.%s  %s srid=%d dims=%s%s\n",
			col.Table, col.Column, col.Type, col.SRID, col.Dims, suffix)
	}
}
