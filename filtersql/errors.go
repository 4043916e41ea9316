package filtersql

import (
	"errors"
	"fmt"
)

// SridMismatchError reports a filter comparing geometries from different
// reference systems without an intervening Transform.
type SridMismatchError struct {
	// Column is the geometry column on the declared side, when known.
	Column      string
	ColumnSRID  int32
	LiteralSRID int32
	// Operation is the spatial operation being compiled.
	Operation string
}

func (e *SridMismatchError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("srid mismatch in %s: column %q has srid %d, operand has srid %d (use transform to convert)",
			e.Operation, e.Column, e.ColumnSRID, e.LiteralSRID)
	}
	return fmt.Sprintf("srid mismatch in %s: srid %d vs %d (use transform to convert)",
		e.Operation, e.ColumnSRID, e.LiteralSRID)
}

// NewSridMismatchError creates a SridMismatchError for the given
// operation. Column may be empty when neither side is a declared column.
func NewSridMismatchError(operation, column string, columnSRID, literalSRID int32) *SridMismatchError {
	return &SridMismatchError{
		Operation:   operation,
		Column:      column,
		ColumnSRID:  columnSRID,
		LiteralSRID: literalSRID,
	}
}

// IsSridMismatch reports whether err is a SridMismatchError.
func IsSridMismatch(err error) bool {
	var e *SridMismatchError
	return errors.As(err, &e)
}
