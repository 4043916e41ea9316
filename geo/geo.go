// Package geo holds the geometry model shared by every other layer: an
// immutable Geometry value over the seven simple-feature variants, each
// tagged with a spatial reference identifier (SRID, 0 meaning undefined),
// plus the binary codec that moves geometries in and out of the database.
//
// Geometry wraps a github.com/twpayne/go-geom value. The wrapper validates
// once at construction and is never mutated afterwards; the SRID is carried
// as metadata only and never triggers reprojection.
package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"
)

// Type identifies a geometry variant. The numeric values are the base type
// codes of the binary encoding.
type Type uint32

const (
	TypePoint              Type = 1
	TypeLineString         Type = 2
	TypePolygon            Type = 3
	TypeMultiPoint         Type = 4
	TypeMultiLineString    Type = 5
	TypeMultiPolygon       Type = 6
	TypeGeometryCollection Type = 7
)

var typeNames = map[Type]string{
	TypePoint:              "POINT",
	TypeLineString:         "LINESTRING",
	TypePolygon:            "POLYGON",
	TypeMultiPoint:         "MULTIPOINT",
	TypeMultiLineString:    "MULTILINESTRING",
	TypeMultiPolygon:       "MULTIPOLYGON",
	TypeGeometryCollection: "GEOMETRYCOLLECTION",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TYPE(%d)", uint32(t))
}

// TypeFromName resolves an upper- or lower-case variant name.
func TypeFromName(name string) (Type, bool) {
	want := strings.ToUpper(strings.TrimSpace(name))
	for t, n := range typeNames {
		if n == want {
			return t, true
		}
	}
	return 0, false
}

// Geometry is an immutable spatial value: one of the seven variants plus an
// SRID. The zero Geometry is not a valid value; construct through the New*
// functions, FromGeomT, ParseWKT, or Decode.
type Geometry struct {
	t   geom.T
	typ Type
}

// Type returns the variant tag.
func (g Geometry) Type() Type { return g.typ }

// SRID returns the spatial reference identifier, 0 when undefined.
func (g Geometry) SRID() int32 {
	if g.t == nil {
		return 0
	}
	return int32(g.t.SRID())
}

// GeomT exposes the backing go-geom value. Callers must treat it as
// read-only; mutating it breaks the immutability the rest of the module
// relies on.
func (g Geometry) GeomT() geom.T { return g.t }

// Empty reports whether the geometry has no coordinates (an empty multi
// variant or collection).
func (g Geometry) Empty() bool {
	if g.t == nil {
		return true
	}
	if gc, ok := g.t.(*geom.GeometryCollection); ok {
		return gc.NumGeoms() == 0
	}
	return len(g.t.FlatCoords()) == 0
}

// Layout returns the coordinate layout (XY, XYZ, XYM or XYZM).
func (g Geometry) Layout() geom.Layout {
	if g.t == nil {
		return geom.NoLayout
	}
	if gc, ok := g.t.(*geom.GeometryCollection); ok {
		return collectionLayout(gc)
	}
	return g.t.Layout()
}

// String renders the geometry as WKT, prefixed with "SRID=n;" when the SRID
// is defined.
func (g Geometry) String() string {
	if g.t == nil {
		return "GEOMETRY EMPTY"
	}
	s, err := wkt.Marshal(g.t)
	if err != nil {
		return fmt.Sprintf("GEOMETRY(%s)", g.typ)
	}
	if srid := g.SRID(); srid != 0 {
		return fmt.Sprintf("SRID=%d;%s", srid, s)
	}
	return s
}

// NewPoint builds a point geometry.
func NewPoint(srid int32, x, y float64) (Geometry, error) {
	if err := checkSRID(srid); err != nil {
		return Geometry{}, err
	}
	if !finite(x) || !finite(y) {
		return Geometry{}, invalidf(TypePoint, "coordinate is not a finite number")
	}
	p := geom.NewPointFlat(geom.XY, []float64{x, y}).SetSRID(int(srid))
	return Geometry{t: p, typ: TypePoint}, nil
}

// NewLineString builds a linestring from at least two XY positions.
func NewLineString(srid int32, coords []geom.Coord) (Geometry, error) {
	if err := checkSRID(srid); err != nil {
		return Geometry{}, err
	}
	flat, err := flatten(TypeLineString, coords)
	if err != nil {
		return Geometry{}, err
	}
	if len(coords) < 2 {
		return Geometry{}, invalidf(TypeLineString, "need at least 2 points, got %d", len(coords))
	}
	ls := geom.NewLineStringFlat(geom.XY, flat).SetSRID(int(srid))
	return Geometry{t: ls, typ: TypeLineString}, nil
}

// NewPolygon builds a polygon from one outer ring and zero or more holes.
// Every ring must be closed (first position equal to the last) and contain
// at least four positions.
func NewPolygon(srid int32, rings [][]geom.Coord) (Geometry, error) {
	if err := checkSRID(srid); err != nil {
		return Geometry{}, err
	}
	if len(rings) == 0 {
		return Geometry{}, invalidf(TypePolygon, "need at least one ring")
	}
	var flat []float64
	ends := make([]int, 0, len(rings))
	for i, ring := range rings {
		if err := checkRing(TypePolygon, i, ring); err != nil {
			return Geometry{}, err
		}
		rf, err := flatten(TypePolygon, ring)
		if err != nil {
			return Geometry{}, err
		}
		flat = append(flat, rf...)
		ends = append(ends, len(flat))
	}
	poly := geom.NewPolygonFlat(geom.XY, flat, ends).SetSRID(int(srid))
	return Geometry{t: poly, typ: TypePolygon}, nil
}

// NewMultiPoint builds a multipoint. An empty member list yields the empty
// multipoint.
func NewMultiPoint(srid int32, points []geom.Coord) (Geometry, error) {
	if err := checkSRID(srid); err != nil {
		return Geometry{}, err
	}
	flat, err := flatten(TypeMultiPoint, points)
	if err != nil {
		return Geometry{}, err
	}
	mp := geom.NewMultiPointFlat(geom.XY, flat).SetSRID(int(srid))
	return Geometry{t: mp, typ: TypeMultiPoint}, nil
}

// NewMultiLineString builds a multilinestring. Each member follows the
// linestring rules.
func NewMultiLineString(srid int32, lines [][]geom.Coord) (Geometry, error) {
	if err := checkSRID(srid); err != nil {
		return Geometry{}, err
	}
	var flat []float64
	ends := make([]int, 0, len(lines))
	for i, line := range lines {
		if len(line) < 2 {
			return Geometry{}, invalidf(TypeMultiLineString, "member %d: need at least 2 points, got %d", i, len(line))
		}
		lf, err := flatten(TypeMultiLineString, line)
		if err != nil {
			return Geometry{}, err
		}
		flat = append(flat, lf...)
		ends = append(ends, len(flat))
	}
	mls := geom.NewMultiLineStringFlat(geom.XY, flat, ends).SetSRID(int(srid))
	return Geometry{t: mls, typ: TypeMultiLineString}, nil
}

// NewMultiPolygon builds a multipolygon. Each member follows the polygon
// rules.
func NewMultiPolygon(srid int32, polys [][][]geom.Coord) (Geometry, error) {
	if err := checkSRID(srid); err != nil {
		return Geometry{}, err
	}
	var flat []float64
	endss := make([][]int, 0, len(polys))
	for pi, rings := range polys {
		if len(rings) == 0 {
			return Geometry{}, invalidf(TypeMultiPolygon, "member %d: need at least one ring", pi)
		}
		ends := make([]int, 0, len(rings))
		for ri, ring := range rings {
			if err := checkRing(TypeMultiPolygon, ri, ring); err != nil {
				return Geometry{}, err
			}
			rf, err := flatten(TypeMultiPolygon, ring)
			if err != nil {
				return Geometry{}, err
			}
			flat = append(flat, rf...)
			ends = append(ends, len(flat))
		}
		endss = append(endss, ends)
	}
	mp := geom.NewMultiPolygonFlat(geom.XY, flat, endss).SetSRID(int(srid))
	return Geometry{t: mp, typ: TypeMultiPolygon}, nil
}

// NewCollection builds a geometry collection. Members are re-tagged with the
// collection's SRID; a member SRID never survives. All members must share
// one coordinate layout.
func NewCollection(srid int32, members []Geometry) (Geometry, error) {
	if err := checkSRID(srid); err != nil {
		return Geometry{}, err
	}
	gc := geom.NewGeometryCollection()
	layout := geom.NoLayout
	for i, m := range members {
		if m.t == nil {
			return Geometry{}, invalidf(TypeGeometryCollection, "member %d is the zero geometry", i)
		}
		ml := m.Layout()
		if layout == geom.NoLayout {
			layout = ml
		} else if ml != layout {
			return Geometry{}, invalidf(TypeGeometryCollection, "member %d layout %s differs from %s", i, ml, layout)
		}
		member, err := cloneGeomT(m.t)
		if err != nil {
			return Geometry{}, err
		}
		if err := gc.Push(member); err != nil {
			return Geometry{}, invalidf(TypeGeometryCollection, "member %d: %v", i, err)
		}
	}
	setSRID(gc, srid)
	return Geometry{t: gc, typ: TypeGeometryCollection}, nil
}

// FromGeomT adopts a go-geom value, validating it under the same rules as
// the constructors. The value is not copied; the caller gives up ownership.
func FromGeomT(t geom.T) (Geometry, error) {
	typ, err := typeOf(t)
	if err != nil {
		return Geometry{}, err
	}
	if err := validateGeomT(t); err != nil {
		return Geometry{}, err
	}
	setSRID(t, int32(t.SRID()))
	return Geometry{t: t, typ: typ}, nil
}

// ParseWKT parses well-known text with an optional "SRID=n;" prefix.
func ParseWKT(input string) (Geometry, error) {
	s := strings.TrimSpace(input)
	var srid int64
	if len(s) > 5 && strings.EqualFold(s[:5], "SRID=") {
		semi := strings.IndexByte(s, ';')
		if semi < 0 {
			return Geometry{}, invalidf(0, "SRID prefix without terminating semicolon")
		}
		var err error
		srid, err = strconv.ParseInt(s[5:semi], 10, 32)
		if err != nil {
			return Geometry{}, invalidf(0, "bad SRID prefix %q", s[:semi])
		}
		s = s[semi+1:]
	}
	t, err := wkt.Unmarshal(s)
	if err != nil {
		return Geometry{}, invalidf(0, "parse wkt: %v", err)
	}
	setSRID(t, int32(srid))
	return FromGeomT(t)
}

// WithSRID returns a copy of g tagged with a different SRID. Coordinates are
// untouched; this is a metadata change, not a reprojection.
func (g Geometry) WithSRID(srid int32) (Geometry, error) {
	if err := checkSRID(srid); err != nil {
		return Geometry{}, err
	}
	if g.t == nil {
		return Geometry{}, invalidf(0, "zero geometry")
	}
	t, err := cloneGeomT(g.t)
	if err != nil {
		return Geometry{}, err
	}
	setSRID(t, srid)
	return Geometry{t: t, typ: g.typ}, nil
}

// Equal reports structural equality: same variant, same SRID, same layout
// and coordinate values with no tolerance.
func Equal(a, b Geometry) bool {
	if a.typ != b.typ || a.SRID() != b.SRID() {
		return false
	}
	if a.t == nil || b.t == nil {
		return a.t == nil && b.t == nil
	}
	return geomTEqual(a.t, b.t)
}

func geomTEqual(a, b geom.T) bool {
	ga, aIsColl := a.(*geom.GeometryCollection)
	gb, bIsColl := b.(*geom.GeometryCollection)
	if aIsColl != bIsColl {
		return false
	}
	if aIsColl {
		if ga.NumGeoms() != gb.NumGeoms() {
			return false
		}
		for i := 0; i < ga.NumGeoms(); i++ {
			ta, err := typeOf(ga.Geom(i))
			if err != nil {
				return false
			}
			tb, err := typeOf(gb.Geom(i))
			if err != nil {
				return false
			}
			if ta != tb || !geomTEqual(ga.Geom(i), gb.Geom(i)) {
				return false
			}
		}
		return true
	}
	if a.Layout() != b.Layout() {
		return false
	}
	if !floatsEqual(a.FlatCoords(), b.FlatCoords()) {
		return false
	}
	if !intsEqual(a.Ends(), b.Ends()) {
		return false
	}
	ea, eb := a.Endss(), b.Endss()
	if len(ea) != len(eb) {
		return false
	}
	for i := range ea {
		if !intsEqual(ea[i], eb[i]) {
			return false
		}
	}
	return true
}

func floatsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func intsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func typeOf(t geom.T) (Type, error) {
	switch t.(type) {
	case *geom.Point:
		return TypePoint, nil
	case *geom.LineString:
		return TypeLineString, nil
	case *geom.Polygon:
		return TypePolygon, nil
	case *geom.MultiPoint:
		return TypeMultiPoint, nil
	case *geom.MultiLineString:
		return TypeMultiLineString, nil
	case *geom.MultiPolygon:
		return TypeMultiPolygon, nil
	case *geom.GeometryCollection:
		return TypeGeometryCollection, nil
	case nil:
		return 0, invalidf(0, "nil geometry")
	default:
		return 0, invalidf(0, "unsupported go-geom type %T", t)
	}
}

// setSRID stamps srid on t and, for collections, on every member. Members
// of a collection always share the parent SRID.
func setSRID(t geom.T, srid int32) {
	switch g := t.(type) {
	case *geom.Point:
		g.SetSRID(int(srid))
	case *geom.LineString:
		g.SetSRID(int(srid))
	case *geom.Polygon:
		g.SetSRID(int(srid))
	case *geom.MultiPoint:
		g.SetSRID(int(srid))
	case *geom.MultiLineString:
		g.SetSRID(int(srid))
	case *geom.MultiPolygon:
		g.SetSRID(int(srid))
	case *geom.GeometryCollection:
		g.SetSRID(int(srid))
		for _, member := range g.Geoms() {
			setSRID(member, srid)
		}
	}
}

func cloneGeomT(t geom.T) (geom.T, error) {
	switch g := t.(type) {
	case *geom.Point:
		return geom.NewPointFlat(g.Layout(), copyFloats(g.FlatCoords())).SetSRID(g.SRID()), nil
	case *geom.LineString:
		return geom.NewLineStringFlat(g.Layout(), copyFloats(g.FlatCoords())).SetSRID(g.SRID()), nil
	case *geom.Polygon:
		return geom.NewPolygonFlat(g.Layout(), copyFloats(g.FlatCoords()), copyInts(g.Ends())).SetSRID(g.SRID()), nil
	case *geom.MultiPoint:
		return geom.NewMultiPointFlat(g.Layout(), copyFloats(g.FlatCoords())).SetSRID(g.SRID()), nil
	case *geom.MultiLineString:
		return geom.NewMultiLineStringFlat(g.Layout(), copyFloats(g.FlatCoords()), copyInts(g.Ends())).SetSRID(g.SRID()), nil
	case *geom.MultiPolygon:
		return geom.NewMultiPolygonFlat(g.Layout(), copyFloats(g.FlatCoords()), copyIntss(g.Endss())).SetSRID(g.SRID()), nil
	case *geom.GeometryCollection:
		out := geom.NewGeometryCollection()
		for _, member := range g.Geoms() {
			mc, err := cloneGeomT(member)
			if err != nil {
				return nil, err
			}
			if err := out.Push(mc); err != nil {
				return nil, invalidf(TypeGeometryCollection, "%v", err)
			}
		}
		out.SetSRID(g.SRID())
		return out, nil
	default:
		return nil, invalidf(0, "unsupported go-geom type %T", t)
	}
}

func copyFloats(src []float64) []float64 {
	out := make([]float64, len(src))
	copy(out, src)
	return out
}

func copyInts(src []int) []int {
	out := make([]int, len(src))
	copy(out, src)
	return out
}

func copyIntss(src [][]int) [][]int {
	out := make([][]int, len(src))
	for i := range src {
		out[i] = copyInts(src[i])
	}
	return out
}

// validateGeomT enforces the structural rules: finite coordinates, at least
// two linestring points, closed rings of at least four points, consistent
// member layouts. Multi variants and collections may be empty.
func validateGeomT(t geom.T) error {
	typ, err := typeOf(t)
	if err != nil {
		return err
	}
	if gc, ok := t.(*geom.GeometryCollection); ok {
		layout := geom.NoLayout
		for i, member := range gc.Geoms() {
			if err := validateGeomT(member); err != nil {
				return err
			}
			ml := member.Layout()
			if layout == geom.NoLayout {
				layout = ml
			} else if ml != layout {
				return invalidf(TypeGeometryCollection, "member %d layout %s differs from %s", i, ml, layout)
			}
		}
		return nil
	}
	stride := t.Stride()
	if stride < 2 {
		return invalidf(typ, "layout %s has no XY plane", t.Layout())
	}
	for i, v := range t.FlatCoords() {
		if !finite(v) {
			return invalidf(typ, "coordinate %d is not a finite number", i)
		}
	}
	switch g := t.(type) {
	case *geom.Point:
		if len(g.FlatCoords()) == 0 {
			return invalidf(TypePoint, "empty point")
		}
	case *geom.LineString:
		if n := g.NumCoords(); n < 2 {
			return invalidf(TypeLineString, "need at least 2 points, got %d", n)
		}
	case *geom.Polygon:
		if g.NumLinearRings() == 0 {
			return invalidf(TypePolygon, "need at least one ring")
		}
		return validateRings(TypePolygon, g.FlatCoords(), g.Ends(), stride, 0)
	case *geom.MultiLineString:
		for i := 0; i < g.NumLineStrings(); i++ {
			if n := g.LineString(i).NumCoords(); n < 2 {
				return invalidf(TypeMultiLineString, "member %d: need at least 2 points, got %d", i, n)
			}
		}
	case *geom.MultiPolygon:
		start := 0
		for _, ends := range g.Endss() {
			if len(ends) == 0 {
				return invalidf(TypeMultiPolygon, "member polygon has no rings")
			}
			if err := validateRings(TypeMultiPolygon, g.FlatCoords(), ends, stride, start); err != nil {
				return err
			}
			if len(ends) > 0 {
				start = ends[len(ends)-1]
			}
		}
	}
	return nil
}

// validateRings checks closure and minimum length for each ring delimited by
// ends over flat.
func validateRings(typ Type, flat []float64, ends []int, stride, start int) error {
	prev := start
	for i, end := range ends {
		n := (end - prev) / stride
		if n < 4 {
			return invalidf(typ, "ring %d: need at least 4 points, got %d", i, n)
		}
		for d := 0; d < stride; d++ {
			if flat[prev+d] != flat[end-stride+d] {
				return invalidf(typ, "ring %d is not closed", i)
			}
		}
		prev = end
	}
	return nil
}

func checkRing(typ Type, idx int, ring []geom.Coord) error {
	if len(ring) < 4 {
		return invalidf(typ, "ring %d: need at least 4 points, got %d", idx, len(ring))
	}
	first, last := ring[0], ring[len(ring)-1]
	if len(first) < 2 || len(last) < 2 || first[0] != last[0] || first[1] != last[1] {
		return invalidf(typ, "ring %d is not closed", idx)
	}
	return nil
}

func flatten(typ Type, coords []geom.Coord) ([]float64, error) {
	flat := make([]float64, 0, len(coords)*2)
	for i, c := range coords {
		if len(c) != 2 {
			return nil, invalidf(typ, "position %d has %d ordinates, want 2", i, len(c))
		}
		if !finite(c[0]) || !finite(c[1]) {
			return nil, invalidf(typ, "position %d is not finite", i)
		}
		flat = append(flat, c[0], c[1])
	}
	return flat, nil
}

func collectionLayout(gc *geom.GeometryCollection) geom.Layout {
	if gc.NumGeoms() == 0 {
		return geom.XY
	}
	return gc.Geom(0).Layout()
}

func checkSRID(srid int32) error {
	if srid < 0 {
		return invalidf(0, "negative SRID %d", srid)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
