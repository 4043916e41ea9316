package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tobyn/gaiaq/spatialite"
)

// SrsInfo is one spatial_ref_sys row for output.
type SrsInfo struct {
	SRID     int32  `json:"srid"`
	AuthName string `json:"auth_name"`
	AuthSRID int32  `json:"auth_srid"`
	Name     string `json:"name"`
	Proj4    string `json:"proj4"`
}

// NewSrsCommand creates the srs command.
func NewSrsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "srs <srid>",
		Short: "Show a spatial reference system",
		Long: `Look up one spatial_ref_sys row by SRID in the database given by
--db, initializing spatial metadata first if the database is fresh.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSrs(rootOpts, args[0], cmd)
		},
	}
}

func runSrs(opts *RootOptions, arg string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if opts.DB == "" {
		return outputError(formatter, errors.New("cli: --db is required"))
	}
	srid, err := strconv.ParseInt(arg, 10, 32)
	if err != nil {
		return outputError(formatter, fmt.Errorf("cli: srid must be an integer, got %q", arg))
	}

	conn, err := spatialite.Open(opts.DB,
		spatialite.WithLibrary(opts.SpatialiteLib),
		spatialite.WithLogger(zap.L()))
	if err != nil {
		return outputError(formatter, err)
	}
	defer conn.Close()

	ref, err := conn.SpatialRef(cmd.Context(), int32(srid))
	if err != nil {
		return outputError(formatter, err)
	}

	info := &SrsInfo{
		SRID:     ref.SRID,
		AuthName: ref.AuthName,
		AuthSRID: ref.AuthSRID,
		Name:     ref.Name,
		Proj4:    ref.Proj4,
	}
	if formatter.Format == "json" {
		return formatter.Success(info)
	}

	fmt.Fprintf(formatter.Writer, "✓ srid %d (%s:%d)\n\n", info.SRID, info.AuthName, info.AuthSRID)
	fmt.Fprintf(formatter.Writer, "  name:  %s\n", info.Name)
	fmt.Fprintf(formatter.Writer, "  proj4: %s\n", info.Proj4)
	return nil
}
