package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tobyn/gaiaq/catalog"
	"github.com/tobyn/gaiaq/cql"
	"github.com/tobyn/gaiaq/filtersql"
	"github.com/tobyn/gaiaq/geo"
	"github.com/tobyn/gaiaq/schema"
	"github.com/tobyn/gaiaq/spatialite"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Input rejected (bad filter, bad schema, SRID mismatch)
	ExitCommandError = 2 // Command error (missing files, database problems)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string      `json:"status"`          // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`  // success payload
	Error  *CLIError   `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"`              // "parse_error", "srid_mismatch", ...
	Message string      `json:"message"`           // human-readable message
	Details interface{} `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting
// JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// errorCode maps typed errors to the stable code strings JSON consumers
// switch on.
func errorCode(err error) string {
	var schemaErr *schema.CompileError
	switch {
	case geo.IsInvalidGeometry(err):
		return "invalid_geometry"
	case geo.IsMalformedGeometry(err):
		return "malformed_geometry"
	case catalog.IsUnsupportedOperation(err):
		return "unsupported_operation"
	case filtersql.IsSridMismatch(err):
		return "srid_mismatch"
	case spatialite.IsExtensionLoadError(err):
		return "extension_load"
	case spatialite.IsUnknownSrid(err):
		return "unknown_srid"
	case cql.IsParseError(err):
		return "parse_error"
	case errors.As(err, &schemaErr):
		return "schema_error"
	default:
		return "error"
	}
}

// exitCodeFor separates rejected input (exit 1) from command problems
// like missing files or database failures (exit 2).
func exitCodeFor(err error) int {
	var schemaErr *schema.CompileError
	switch {
	case cql.IsParseError(err),
		filtersql.IsSridMismatch(err),
		catalog.IsUnsupportedOperation(err),
		geo.IsInvalidGeometry(err),
		geo.IsMalformedGeometry(err),
		spatialite.IsUnknownSrid(err),
		errors.As(err, &schemaErr):
		return ExitFailure
	default:
		return ExitCommandError
	}
}

// outputError renders err in the configured format and returns an
// ExitError carrying the matching exit code.
func outputError(f *OutputFormatter, err error) error {
	code := errorCode(err)
	_ = f.Error(code, err.Error(), nil)
	return WrapExitError(exitCodeFor(err), fmt.Sprintf("%s: %s", code, err.Error()), nil)
}
