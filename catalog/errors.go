package catalog

import (
	"errors"
	"fmt"
)

// UnsupportedOperationError reports an operation name with no registry
// entry.
type UnsupportedOperationError struct {
	Operation string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("unsupported spatial operation %q", e.Operation)
}

// NewUnsupportedOperationError creates an UnsupportedOperationError for
// the given name.
func NewUnsupportedOperationError(operation string) *UnsupportedOperationError {
	return &UnsupportedOperationError{Operation: operation}
}

// IsUnsupportedOperation reports whether err is an
// UnsupportedOperationError.
func IsUnsupportedOperation(err error) bool {
	var ue *UnsupportedOperationError
	return errors.As(err, &ue)
}
