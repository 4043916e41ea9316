package spatialite

import (
	"errors"
	"fmt"
	"strings"
)

// ExtensionLoadError reports that the SpatiaLite shared library could not
// be loaded on this connection. It is fatal for the Conn: EnsureReady
// returns the same error to every caller and never retries.
type ExtensionLoadError struct {
	// Candidates lists the library names tried, in order.
	Candidates []string
	Cause      error
}

// NewExtensionLoadError creates an ExtensionLoadError for the given
// candidate list.
func NewExtensionLoadError(candidates []string, cause error) *ExtensionLoadError {
	return &ExtensionLoadError{Candidates: candidates, Cause: cause}
}

func (e *ExtensionLoadError) Error() string {
	return fmt.Sprintf("spatialite extension not loaded (tried %s): %v",
		strings.Join(e.Candidates, ", "), e.Cause)
}

func (e *ExtensionLoadError) Unwrap() error { return e.Cause }

// IsExtensionLoadError reports whether err is an ExtensionLoadError.
func IsExtensionLoadError(err error) bool {
	var e *ExtensionLoadError
	return errors.As(err, &e)
}

// UnknownSridError reports a declared reference system that is missing
// from the database's spatial_ref_sys table.
type UnknownSridError struct {
	SRID int32
	// Column is the table.column whose declaration names the SRID.
	Column string
}

// NewUnknownSridError creates an UnknownSridError for a declared column.
func NewUnknownSridError(srid int32, column string) *UnknownSridError {
	return &UnknownSridError{SRID: srid, Column: column}
}

func (e *UnknownSridError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("srid %d is not in spatial_ref_sys", e.SRID)
	}
	return fmt.Sprintf("srid %d declared for %s is not in spatial_ref_sys", e.SRID, e.Column)
}

// IsUnknownSrid reports whether err is an UnknownSridError.
func IsUnknownSrid(err error) bool {
	var e *UnknownSridError
	return errors.As(err, &e)
}
