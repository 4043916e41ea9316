package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	// DB is the SQLite database path for commands that touch one.
	DB string
	// SpatialiteLib names a specific shared library to load the
	// extension from, overriding the default candidates.
	SpatialiteLib string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the gaiaq CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "gaiaq",
		Short: "Spatial filters for SQLite",
		Long: `Compiles CQL filter expressions into parameterized SpatiaLite SQL
and runs them against geometry tables declared in CUE schema files.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}

			cfg, err := LoadConfig()
			if err != nil {
				return err
			}
			flags := cmd.Root().PersistentFlags()
			if !flags.Changed("db") && cfg.DB != "" {
				opts.DB = cfg.DB
			}
			if !flags.Changed("spatialite-lib") && cfg.SpatialiteLib != "" {
				opts.SpatialiteLib = cfg.SpatialiteLib
			}

			return InitLogger(opts.Verbose, cfg.Log.Level)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = zap.L().Sync()
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "path to the SQLite database")
	cmd.PersistentFlags().StringVar(&opts.SpatialiteLib, "spatialite-lib", "", "shared library to load the SpatiaLite extension from")

	// Add subcommands
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewOpsCommand(opts))
	cmd.AddCommand(NewSrsCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
