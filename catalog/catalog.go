// Package catalog maps the operation names accepted in filter expressions
// to the SpatiaLite SQL functions that implement them. The registry is
// fixed; adding an operation means adding an entry here and is a deliberate
// API change. The registry is built once and is safe for concurrent reads.
package catalog

import (
	"sort"
	"strings"
)

// ArgKind describes one argument position of a spatial SQL function.
type ArgKind int

const (
	// ArgGeometry is a geometry value: a column reference or an encoded
	// geometry literal.
	ArgGeometry ArgKind = iota
	// ArgScalar is a plain number or string, bound as a parameter.
	ArgScalar
	// ArgSRID is a spatial reference identifier, bound as a parameter.
	ArgSRID
)

func (k ArgKind) String() string {
	switch k {
	case ArgGeometry:
		return "geometry"
	case ArgScalar:
		return "scalar"
	case ArgSRID:
		return "srid"
	default:
		return "unknown"
	}
}

// ResultKind describes what a spatial SQL function evaluates to.
type ResultKind int

const (
	ResultBoolean ResultKind = iota
	ResultNumeric
	ResultGeometry
)

func (k ResultKind) String() string {
	switch k {
	case ResultBoolean:
		return "boolean"
	case ResultNumeric:
		return "numeric"
	case ResultGeometry:
		return "geometry"
	default:
		return "unknown"
	}
}

// Spec describes how one operation compiles to SQL.
type Spec struct {
	// Name is the canonical operation name, always lower case.
	Name string
	// SQLName is the SpatiaLite function to call.
	SQLName string
	// Arity is the number of arguments, the leading geometry included.
	Arity int
	// Args gives the kind of each argument position.
	Args []ArgKind
	// Result is what the function call evaluates to.
	Result ResultKind
	// IndexUsable marks functions a spatial index can answer on its own,
	// which is only ever true for the MBR family. Consumers treat it as an
	// ordering hint, never as a correctness guarantee.
	IndexUsable bool
	// Negated marks operations whose SQL function computes the complement;
	// the compiler wraps the call in NOT.
	Negated bool
}

func gg(name, sqlName string, result ResultKind) Spec {
	return Spec{
		Name:    name,
		SQLName: sqlName,
		Arity:   2,
		Args:    []ArgKind{ArgGeometry, ArgGeometry},
		Result:  result,
	}
}

func mbr(name, sqlName string) Spec {
	s := gg(name, sqlName, ResultBoolean)
	s.IndexUsable = true
	return s
}

var registry = func() map[string]Spec {
	specs := []Spec{
		gg("equals", "Equals", ResultBoolean),
		gg("disjoint", "Disjoint", ResultBoolean),
		gg("intersects", "Intersects", ResultBoolean),
		gg("touches", "Touches", ResultBoolean),
		gg("crosses", "Crosses", ResultBoolean),
		gg("within", "Within", ResultBoolean),
		gg("contains", "Contains", ResultBoolean),
		gg("overlaps", "Overlaps", ResultBoolean),
		gg("covers", "Covers", ResultBoolean),
		gg("coveredby", "CoveredBy", ResultBoolean),
		gg("distance", "Distance", ResultNumeric),
		{
			Name:    "distance_lte",
			SQLName: "PtDistWithin",
			Arity:   3,
			Args:    []ArgKind{ArgGeometry, ArgGeometry, ArgScalar},
			Result:  ResultBoolean,
		},
		{
			Name:    "dwithin",
			SQLName: "PtDistWithin",
			Arity:   3,
			Args:    []ArgKind{ArgGeometry, ArgGeometry, ArgScalar},
			Result:  ResultBoolean,
		},
		{
			Name:    "beyond",
			SQLName: "PtDistWithin",
			Arity:   3,
			Args:    []ArgKind{ArgGeometry, ArgGeometry, ArgScalar},
			Result:  ResultBoolean,
			Negated: true,
		},
		{
			Name:    "relate",
			SQLName: "Relate",
			Arity:   3,
			Args:    []ArgKind{ArgGeometry, ArgGeometry, ArgScalar},
			Result:  ResultBoolean,
		},
		{
			Name:    "buffer",
			SQLName: "Buffer",
			Arity:   2,
			Args:    []ArgKind{ArgGeometry, ArgScalar},
			Result:  ResultGeometry,
		},
		{
			Name:    "transform",
			SQLName: "Transform",
			Arity:   2,
			Args:    []ArgKind{ArgGeometry, ArgSRID},
			Result:  ResultGeometry,
		},
		{
			Name:    "envelope",
			SQLName: "Envelope",
			Arity:   1,
			Args:    []ArgKind{ArgGeometry},
			Result:  ResultGeometry,
		},
		mbr("bbox", "MbrIntersects"),
		mbr("bbintersects", "MbrIntersects"),
		mbr("bbcontains", "MbrContains"),
		mbr("bbwithin", "MbrWithin"),
		mbr("bboverlaps", "MbrOverlaps"),
	}
	m := make(map[string]Spec, len(specs))
	for _, s := range specs {
		m[s.Name] = s
	}
	return m
}()

// Resolve looks up an operation by name, case-insensitively.
func Resolve(name string) (Spec, error) {
	spec, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Spec{}, NewUnsupportedOperationError(name)
	}
	return spec, nil
}

// Names returns every canonical operation name in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
