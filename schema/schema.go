// Package schema compiles CUE declarations of spatial tables into the
// column metadata the rest of the module consults: which columns hold
// geometry, of which variant, in which SRID and dimension layout, and
// whether a spatial index is wanted.
//
// A declaration file looks like:
//
//	tables: places: {
//		geometry: geom: {type: "POINT", srid: 4326, dims: "XY", index: true}
//	}
package schema

import (
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"

	"github.com/tobyn/gaiaq/geo"
)

// Column describes one declared geometry column.
type Column struct {
	Table string
	Name  string
	Type  geo.Type
	SRID  int32
	// Dims is the coordinate layout: XY, XYZ, XYM or XYZM.
	Dims string
	// Index requests an R*Tree spatial index on the column.
	Index bool
}

// Table groups the geometry columns declared for one table.
type Table struct {
	Name     string
	Geometry []Column
}

// Set is a compiled schema declaration.
type Set struct {
	Tables map[string]Table
}

var validDims = map[string]bool{"XY": true, "XYZ": true, "XYM": true, "XYZM": true}

// Load reads and compiles a declaration file.
func Load(path string) (*Set, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "schema: read file")
	}
	return Compile(src, path)
}

// Compile parses CUE source into a Set. Field problems come back as
// *CompileError with source positions.
func Compile(src []byte, filename string) (*Set, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	set := &Set{Tables: make(map[string]Table)}

	tablesVal := v.LookupPath(cue.ParsePath("tables"))
	if !tablesVal.Exists() {
		return nil, &CompileError{
			Field:   "tables",
			Message: "tables is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := tablesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		tableName := iter.Label()
		table, err := parseTable(tableName, iter.Value())
		if err != nil {
			return nil, err
		}
		set.Tables[Canonical(tableName)] = table
	}

	if len(set.Tables) == 0 {
		return nil, &CompileError{
			Field:   "tables",
			Message: "at least one table is required",
			Pos:     tablesVal.Pos(),
		}
	}
	return set, nil
}

func parseTable(name string, v cue.Value) (Table, error) {
	table := Table{Name: name}

	geomVal := v.LookupPath(cue.ParsePath("geometry"))
	if !geomVal.Exists() {
		return table, &CompileError{
			Field:   fmt.Sprintf("tables.%s.geometry", name),
			Message: "at least one geometry column is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := geomVal.Fields()
	if err != nil {
		return table, formatCUEError(err)
	}
	for iter.Next() {
		col, err := parseColumn(name, iter.Label(), iter.Value())
		if err != nil {
			return table, err
		}
		table.Geometry = append(table.Geometry, col)
	}
	if len(table.Geometry) == 0 {
		return table, &CompileError{
			Field:   fmt.Sprintf("tables.%s.geometry", name),
			Message: "at least one geometry column is required",
			Pos:     geomVal.Pos(),
		}
	}
	return table, nil
}

func parseColumn(table, name string, v cue.Value) (Column, error) {
	field := func(sub string) string {
		return fmt.Sprintf("tables.%s.geometry.%s.%s", table, name, sub)
	}
	col := Column{Table: table, Name: name, Dims: "XY"}

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return col, &CompileError{Field: field("type"), Message: "type is required", Pos: v.Pos()}
	}
	typeName, err := typeVal.String()
	if err != nil {
		return col, formatCUEError(err)
	}
	typ, ok := geo.TypeFromName(typeName)
	if !ok {
		return col, &CompileError{
			Field:   field("type"),
			Message: fmt.Sprintf("unknown geometry type %q", typeName),
			Pos:     typeVal.Pos(),
		}
	}
	col.Type = typ

	sridVal := v.LookupPath(cue.ParsePath("srid"))
	if !sridVal.Exists() {
		return col, &CompileError{Field: field("srid"), Message: "srid is required", Pos: v.Pos()}
	}
	srid, err := sridVal.Int64()
	if err != nil {
		return col, formatCUEError(err)
	}
	if srid < 0 || srid > 1<<31-1 {
		return col, &CompileError{
			Field:   field("srid"),
			Message: fmt.Sprintf("srid %d out of range", srid),
			Pos:     sridVal.Pos(),
		}
	}
	col.SRID = int32(srid)

	dimsVal := v.LookupPath(cue.ParsePath("dims"))
	if dimsVal.Exists() {
		dims, err := dimsVal.String()
		if err != nil {
			return col, formatCUEError(err)
		}
		dims = strings.ToUpper(dims)
		if !validDims[dims] {
			return col, &CompileError{
				Field:   field("dims"),
				Message: fmt.Sprintf("dims must be XY, XYZ, XYM or XYZM, got %q", dims),
				Pos:     dimsVal.Pos(),
			}
		}
		col.Dims = dims
	}

	indexVal := v.LookupPath(cue.ParsePath("index"))
	if indexVal.Exists() {
		index, err := indexVal.Bool()
		if err != nil {
			return col, formatCUEError(err)
		}
		col.Index = index
	}
	return col, nil
}

// Canonical normalizes an identifier for comparison: Unicode NFC plus
// ASCII lower-casing, matching how SQLite compares unquoted identifiers.
func Canonical(name string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(name)))
}

// Table returns the declared table, matching by canonical name.
func (s *Set) Table(name string) (Table, bool) {
	t, ok := s.Tables[Canonical(name)]
	return t, ok
}

// Column resolves a declared geometry column, matching both names
// canonically.
func (s *Set) Column(table, column string) (Column, bool) {
	t, ok := s.Table(table)
	if !ok {
		return Column{}, false
	}
	want := Canonical(column)
	for _, col := range t.Geometry {
		if Canonical(col.Name) == want {
			return col, true
		}
	}
	return Column{}, false
}

// Columns returns every declared geometry column across all tables, in no
// particular order.
func (s *Set) Columns() []Column {
	var cols []Column
	for _, t := range s.Tables {
		cols = append(cols, t.Geometry...)
	}
	return cols
}

// CompileError is a declaration problem with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	firstErr := errs[0]
	positions := cueerrors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
