package geo

import (
	"errors"
	"fmt"
)

// MalformedReason classifies why a binary geometry payload was rejected.
type MalformedReason string

const (
	// MalformedTruncated means the payload ended before a required field.
	MalformedTruncated MalformedReason = "TRUNCATED"
	// MalformedBadByteOrder means the byte-order flag was neither NDR nor XDR.
	MalformedBadByteOrder MalformedReason = "BAD_BYTE_ORDER"
	// MalformedUnknownType means the base geometry type code is not 1..7.
	MalformedUnknownType MalformedReason = "UNKNOWN_TYPE"
	// MalformedBadFlags means the type word carries flag bits this codec
	// does not define.
	MalformedBadFlags MalformedReason = "BAD_FLAGS"
	// MalformedDimensionMismatch means a member geometry declares a
	// different coordinate layout than its parent.
	MalformedDimensionMismatch MalformedReason = "DIMENSION_MISMATCH"
	// MalformedMemberType means a multi geometry contains a member of the
	// wrong type.
	MalformedMemberType MalformedReason = "MEMBER_TYPE"
	// MalformedTrailingBytes means input remained after a complete geometry.
	MalformedTrailingBytes MalformedReason = "TRAILING_BYTES"
	// MalformedStructure means the bytes decoded but describe a shape the
	// model rejects, such as a one-point linestring or an unclosed ring.
	MalformedStructure MalformedReason = "STRUCTURE"
)

// InvalidGeometryError reports a constructor argument that violates the
// structural rules of the geometry model.
type InvalidGeometryError struct {
	Type    Type
	Message string
}

func (e *InvalidGeometryError) Error() string {
	if e.Type == 0 {
		return fmt.Sprintf("invalid geometry: %s", e.Message)
	}
	return fmt.Sprintf("invalid geometry: %s: %s", e.Type, e.Message)
}

// MalformedGeometryError reports a binary payload the codec refused to
// decode. Offset is the byte position at which decoding failed.
type MalformedGeometryError struct {
	Reason  MalformedReason
	Offset  int
	Message string
}

func (e *MalformedGeometryError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("malformed geometry at byte %d: %s", e.Offset, e.Reason)
	}
	return fmt.Sprintf("malformed geometry at byte %d: %s: %s", e.Offset, e.Reason, e.Message)
}

// NewInvalidGeometryError creates an InvalidGeometryError for the given
// variant. A zero Type means the variant is not known yet.
func NewInvalidGeometryError(typ Type, message string) *InvalidGeometryError {
	return &InvalidGeometryError{Type: typ, Message: message}
}

// NewMalformedGeometryError creates a MalformedGeometryError at the given
// byte offset.
func NewMalformedGeometryError(reason MalformedReason, offset int, message string) *MalformedGeometryError {
	return &MalformedGeometryError{Reason: reason, Offset: offset, Message: message}
}

// IsInvalidGeometry reports whether err is an InvalidGeometryError.
func IsInvalidGeometry(err error) bool {
	var ge *InvalidGeometryError
	return errors.As(err, &ge)
}

// IsMalformedGeometry reports whether err is a MalformedGeometryError.
func IsMalformedGeometry(err error) bool {
	var me *MalformedGeometryError
	return errors.As(err, &me)
}

func invalidf(typ Type, format string, args ...any) *InvalidGeometryError {
	return &InvalidGeometryError{Type: typ, Message: fmt.Sprintf(format, args...)}
}

func malformedf(reason MalformedReason, offset int, format string, args ...any) *MalformedGeometryError {
	return &MalformedGeometryError{Reason: reason, Offset: offset, Message: fmt.Sprintf(format, args...)}
}
