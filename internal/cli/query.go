package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tobyn/gaiaq/cql"
	"github.com/tobyn/gaiaq/filterir"
	"github.com/tobyn/gaiaq/geo"
	"github.com/tobyn/gaiaq/schema"
	"github.com/tobyn/gaiaq/spatialite"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Schema  string   // schema declaration file
	Table   string   // table to read
	Columns []string // columns to project
	Limit   int      // row cap, 0 for none
	Bind    string   // optional YAML file of named filter values
}

// QueryResult holds query rows for output, geometries rendered as WKT.
type QueryResult struct {
	Table string           `json:"table"`
	Count int              `json:"count"`
	Rows  []map[string]any `json:"rows"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query [filter]",
		Short: "Run a CQL filter against a SpatiaLite database",
		Long: `Compile a CQL filter and execute it against the database given by
--db. Geometry columns come back as WKT with an SRID prefix. Without a
filter every row of the table is listed.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := ""
			if len(args) == 1 {
				filter = args[0]
			}
			return runQuery(opts, filter, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", "schema declaration file (CUE)")
	cmd.Flags().StringVar(&opts.Table, "table", "", "table to query")
	cmd.Flags().StringSliceVar(&opts.Columns, "columns", nil, "columns to project (default: rowid plus geometry columns)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "cap the number of rows returned")
	cmd.Flags().StringVar(&opts.Bind, "bind", "", "YAML file of named filter values")
	_ = cmd.MarkFlagRequired("schema")
	_ = cmd.MarkFlagRequired("table")

	return cmd
}

func runQuery(opts *QueryOptions, filter string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if opts.DB == "" {
		return outputError(formatter, errors.New("cli: --db is required"))
	}

	set, err := schema.Load(opts.Schema)
	if err != nil {
		return outputError(formatter, err)
	}

	bound, err := bindFilter(filter, opts.Bind)
	if err != nil {
		return outputError(formatter, err)
	}

	var pred filterir.Predicate
	if bound != "" {
		pred, err = cql.Parse(bound)
		if err != nil {
			return outputError(formatter, err)
		}
	}

	conn, err := spatialite.Open(opts.DB,
		spatialite.WithSchema(set),
		spatialite.WithLibrary(opts.SpatialiteLib),
		spatialite.WithLogger(zap.L()))
	if err != nil {
		return outputError(formatter, err)
	}
	defer conn.Close()

	rows, err := conn.Select(cmd.Context(), spatialite.Query{
		Table:   opts.Table,
		Columns: opts.Columns,
		Filter:  pred,
		Limit:   opts.Limit,
	})
	if err != nil {
		return outputError(formatter, err)
	}

	result := &QueryResult{
		Table: opts.Table,
		Count: len(rows),
		Rows:  rowsForOutput(rows),
	}
	return outputQuerySuccess(formatter, result, columnOrder(set, opts.Table, opts.Columns))
}

// rowsForOutput converts scanned rows to their display form: geometries
// as WKT, text blobs as strings.
func rowsForOutput(rows []spatialite.Row) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		m := make(map[string]any, len(row))
		for name, v := range row {
			m[name] = outputValue(v)
		}
		out[i] = m
	}
	return out
}

func outputValue(v any) any {
	switch t := v.(type) {
	case geo.Geometry:
		return t.String()
	case []byte:
		return string(t)
	default:
		return v
	}
}

// columnOrder reproduces the projection order so text rows print their
// columns the way the statement selected them.
func columnOrder(set *schema.Set, table string, requested []string) []string {
	if len(requested) > 0 {
		return requested
	}
	order := []string{"rowid"}
	if t, ok := set.Table(table); ok {
		for _, col := range t.Geometry {
			order = append(order, col.Name)
		}
	}
	return order
}

// outputQuerySuccess outputs query rows.
func outputQuerySuccess(formatter *OutputFormatter, result *QueryResult, order []string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ %d row(s) from %s\n", result.Count, result.Table)
	if result.Count > 0 {
		fmt.Fprintln(formatter.Writer)
	}
	for _, row := range result.Rows {
		parts := make([]string, 0, len(order))
		for _, name := range order {
			if v, ok := row[name]; ok {
				parts = append(parts, fmt.Sprintf("%s=%v", name, v))
			}
		}
		fmt.Fprintf(formatter.Writer, "  %s\n", strings.Join(parts, "  "))
	}
	return nil
}
