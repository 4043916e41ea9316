package geo

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/twpayne/go-geom"
)

// Wire format: 1 byte order flag, 4 byte type word (base code 1..7 OR'd
// with the dimension and SRID flags), 4 byte SRID when flagged, then counts
// and IEEE-754 float64 coordinates nested per variant. Multi variants and
// collections carry fully serialized member geometries; members never carry
// an SRID of their own on encode, and a member SRID found on decode is
// discarded in favor of the parent's.
const (
	wkbNDR byte = 1 // little-endian
	wkbXDR byte = 0 // big-endian

	ewkbZFlag    uint32 = 0x80000000
	ewkbMFlag    uint32 = 0x40000000
	ewkbSRIDFlag uint32 = 0x20000000
	ewkbTypeMask uint32 = 0x0fffffff

	// Collections nested deeper than this are rejected rather than decoded;
	// the depth of real data is tiny and the input may be hostile.
	maxNestingDepth = 64
)

// Encode serializes g into its binary form. Output is always little-endian
// and deterministic; the SRID field is present exactly when SRID != 0.
func Encode(g Geometry) ([]byte, error) {
	if g.t == nil {
		return nil, invalidf(0, "zero geometry")
	}
	e := ewkbEncoder{buf: make([]byte, 0, 16+8*len(g.t.FlatCoords()))}
	if err := e.geometry(g.t, true); err != nil {
		return nil, err
	}
	return e.buf, nil
}

// Decode parses a binary geometry. Both byte orders are accepted; malformed
// input fails with a MalformedGeometryError carrying the byte offset.
func Decode(data []byte) (Geometry, error) {
	d := ewkbDecoder{data: data}
	t, srid, err := d.geometry(0, geom.NoLayout)
	if err != nil {
		return Geometry{}, err
	}
	if d.pos != len(data) {
		return Geometry{}, malformedf(MalformedTrailingBytes, d.pos, "%d bytes after geometry", len(data)-d.pos)
	}
	setSRID(t, srid)
	if err := validateGeomT(t); err != nil {
		var inv *InvalidGeometryError
		if errors.As(err, &inv) {
			return Geometry{}, &MalformedGeometryError{Reason: MalformedStructure, Message: inv.Message}
		}
		return Geometry{}, err
	}
	typ, err := typeOf(t)
	if err != nil {
		return Geometry{}, err
	}
	return Geometry{t: t, typ: typ}, nil
}

type ewkbEncoder struct {
	buf []byte
}

func (e *ewkbEncoder) writeByte(b byte) {
	e.buf = append(e.buf, b)
}

func (e *ewkbEncoder) writeUint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *ewkbEncoder) writeFloats(fs []float64) {
	for _, f := range fs {
		e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(f))
	}
}

func (e *ewkbEncoder) geometry(t geom.T, top bool) error {
	typ, err := typeOf(t)
	if err != nil {
		return err
	}
	layout := t.Layout()
	if gc, ok := t.(*geom.GeometryCollection); ok {
		layout = collectionLayout(gc)
	}
	flags, err := layoutFlags(typ, layout)
	if err != nil {
		return err
	}
	word := uint32(typ) | flags
	srid := t.SRID()
	withSRID := top && srid != 0
	if withSRID {
		word |= ewkbSRIDFlag
	}
	e.writeByte(wkbNDR)
	e.writeUint32(word)
	if withSRID {
		e.writeUint32(uint32(srid))
	}
	switch g := t.(type) {
	case *geom.Point:
		e.writeFloats(g.FlatCoords())
	case *geom.LineString:
		e.writeUint32(uint32(g.NumCoords()))
		e.writeFloats(g.FlatCoords())
	case *geom.Polygon:
		e.rings(g.FlatCoords(), g.Ends(), g.Stride(), 0)
	case *geom.MultiPoint:
		e.writeUint32(uint32(g.NumPoints()))
		for i := 0; i < g.NumPoints(); i++ {
			if err := e.geometry(g.Point(i), false); err != nil {
				return err
			}
		}
	case *geom.MultiLineString:
		e.writeUint32(uint32(g.NumLineStrings()))
		for i := 0; i < g.NumLineStrings(); i++ {
			if err := e.geometry(g.LineString(i), false); err != nil {
				return err
			}
		}
	case *geom.MultiPolygon:
		e.writeUint32(uint32(g.NumPolygons()))
		for i := 0; i < g.NumPolygons(); i++ {
			if err := e.geometry(g.Polygon(i), false); err != nil {
				return err
			}
		}
	case *geom.GeometryCollection:
		e.writeUint32(uint32(g.NumGeoms()))
		for _, member := range g.Geoms() {
			if err := e.geometry(member, false); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *ewkbEncoder) rings(flat []float64, ends []int, stride, start int) {
	e.writeUint32(uint32(len(ends)))
	prev := start
	for _, end := range ends {
		e.writeUint32(uint32((end - prev) / stride))
		e.writeFloats(flat[prev:end])
		prev = end
	}
}

type ewkbDecoder struct {
	data []byte
	pos  int
}

func (d *ewkbDecoder) remaining() int {
	return len(d.data) - d.pos
}

func (d *ewkbDecoder) readByte() (byte, error) {
	if d.remaining() < 1 {
		return 0, malformedf(MalformedTruncated, d.pos, "need 1 byte, have 0")
	}
	b := d.data[d.pos]
	d.pos++
	return b, nil
}

func (d *ewkbDecoder) readUint32(bo binary.ByteOrder) (uint32, error) {
	if d.remaining() < 4 {
		return 0, malformedf(MalformedTruncated, d.pos, "need 4 bytes, have %d", d.remaining())
	}
	v := bo.Uint32(d.data[d.pos : d.pos+4])
	d.pos += 4
	return v, nil
}

// readCount reads an element count and rejects counts that could not
// possibly fit in the remaining input, so a corrupt count never drives a
// huge allocation.
func (d *ewkbDecoder) readCount(bo binary.ByteOrder, minElemBytes int) (int, error) {
	pos := d.pos
	n, err := d.readUint32(bo)
	if err != nil {
		return 0, err
	}
	if uint64(n)*uint64(minElemBytes) > uint64(d.remaining()) {
		return 0, malformedf(MalformedTruncated, pos, "count %d exceeds remaining %d bytes", n, d.remaining())
	}
	return int(n), nil
}

func (d *ewkbDecoder) readFloats(bo binary.ByteOrder, n int) ([]float64, error) {
	if d.remaining() < n*8 {
		return nil, malformedf(MalformedTruncated, d.pos, "need %d bytes of coordinates, have %d", n*8, d.remaining())
	}
	fs := make([]float64, n)
	for i := range fs {
		fs[i] = math.Float64frombits(bo.Uint64(d.data[d.pos : d.pos+8]))
		d.pos += 8
	}
	return fs, nil
}

// geometry decodes one geometry, returning its SRID field (0 when absent).
// parentLayout constrains member layouts; geom.NoLayout means unconstrained.
func (d *ewkbDecoder) geometry(depth int, parentLayout geom.Layout) (geom.T, int32, error) {
	if depth > maxNestingDepth {
		return nil, 0, malformedf(MalformedStructure, d.pos, "nesting deeper than %d", maxNestingDepth)
	}
	orderPos := d.pos
	orderByte, err := d.readByte()
	if err != nil {
		return nil, 0, err
	}
	var bo binary.ByteOrder
	switch orderByte {
	case wkbNDR:
		bo = binary.LittleEndian
	case wkbXDR:
		bo = binary.BigEndian
	default:
		return nil, 0, malformedf(MalformedBadByteOrder, orderPos, "flag 0x%02x", orderByte)
	}
	wordPos := d.pos
	word, err := d.readUint32(bo)
	if err != nil {
		return nil, 0, err
	}
	if unknown := word &^ (ewkbTypeMask | ewkbZFlag | ewkbMFlag | ewkbSRIDFlag); unknown != 0 {
		return nil, 0, malformedf(MalformedBadFlags, wordPos, "flag bits 0x%08x", unknown)
	}
	base := word & ewkbTypeMask
	if base < uint32(TypePoint) || base > uint32(TypeGeometryCollection) {
		return nil, 0, malformedf(MalformedUnknownType, wordPos, "type code %d", base)
	}
	layout := layoutFromFlags(word&ewkbZFlag != 0, word&ewkbMFlag != 0)
	if parentLayout != geom.NoLayout && layout != parentLayout {
		return nil, 0, malformedf(MalformedDimensionMismatch, wordPos, "member layout %s inside %s", layout, parentLayout)
	}
	var srid int32
	if word&ewkbSRIDFlag != 0 {
		sridPos := d.pos
		u, err := d.readUint32(bo)
		if err != nil {
			return nil, 0, err
		}
		if u > math.MaxInt32 {
			return nil, 0, malformedf(MalformedStructure, sridPos, "SRID %d out of range", u)
		}
		srid = int32(u)
	}
	stride := layout.Stride()
	switch Type(base) {
	case TypePoint:
		flat, err := d.readFloats(bo, stride)
		if err != nil {
			return nil, 0, err
		}
		return geom.NewPointFlat(layout, flat), srid, nil
	case TypeLineString:
		n, err := d.readCount(bo, stride*8)
		if err != nil {
			return nil, 0, err
		}
		flat, err := d.readFloats(bo, n*stride)
		if err != nil {
			return nil, 0, err
		}
		return geom.NewLineStringFlat(layout, flat), srid, nil
	case TypePolygon:
		flat, ends, err := d.rings(bo, stride)
		if err != nil {
			return nil, 0, err
		}
		return geom.NewPolygonFlat(layout, flat, ends), srid, nil
	case TypeMultiPoint:
		n, err := d.readCount(bo, 5)
		if err != nil {
			return nil, 0, err
		}
		flat := make([]float64, 0, n*stride)
		for i := 0; i < n; i++ {
			member, err := d.member(depth, layout, TypePoint, TypeMultiPoint)
			if err != nil {
				return nil, 0, err
			}
			flat = append(flat, member.FlatCoords()...)
		}
		return geom.NewMultiPointFlat(layout, flat), srid, nil
	case TypeMultiLineString:
		n, err := d.readCount(bo, 5)
		if err != nil {
			return nil, 0, err
		}
		var flat []float64
		ends := make([]int, 0, n)
		for i := 0; i < n; i++ {
			member, err := d.member(depth, layout, TypeLineString, TypeMultiLineString)
			if err != nil {
				return nil, 0, err
			}
			flat = append(flat, member.FlatCoords()...)
			ends = append(ends, len(flat))
		}
		return geom.NewMultiLineStringFlat(layout, flat, ends), srid, nil
	case TypeMultiPolygon:
		n, err := d.readCount(bo, 5)
		if err != nil {
			return nil, 0, err
		}
		var flat []float64
		endss := make([][]int, 0, n)
		for i := 0; i < n; i++ {
			member, err := d.member(depth, layout, TypePolygon, TypeMultiPolygon)
			if err != nil {
				return nil, 0, err
			}
			offset := len(flat)
			flat = append(flat, member.FlatCoords()...)
			memberEnds := member.Ends()
			ends := make([]int, len(memberEnds))
			for j, end := range memberEnds {
				ends[j] = end + offset
			}
			endss = append(endss, ends)
		}
		return geom.NewMultiPolygonFlat(layout, flat, endss), srid, nil
	default: // TypeGeometryCollection
		n, err := d.readCount(bo, 5)
		if err != nil {
			return nil, 0, err
		}
		gc := geom.NewGeometryCollection()
		for i := 0; i < n; i++ {
			memberPos := d.pos
			member, _, err := d.geometry(depth+1, layout)
			if err != nil {
				return nil, 0, err
			}
			if err := gc.Push(member); err != nil {
				return nil, 0, malformedf(MalformedStructure, memberPos, "%v", err)
			}
		}
		return gc, srid, nil
	}
}

// member decodes one nested geometry of an exact expected type, discarding
// any SRID field it carries.
func (d *ewkbDecoder) member(depth int, layout geom.Layout, want, container Type) (geom.T, error) {
	memberPos := d.pos
	t, _, err := d.geometry(depth+1, layout)
	if err != nil {
		return nil, err
	}
	got, err := typeOf(t)
	if err != nil {
		return nil, err
	}
	if got != want {
		return nil, malformedf(MalformedMemberType, memberPos, "%s member inside %s", got, container)
	}
	return t, nil
}

func (d *ewkbDecoder) rings(bo binary.ByteOrder, stride int) ([]float64, []int, error) {
	nr, err := d.readCount(bo, 4)
	if err != nil {
		return nil, nil, err
	}
	var flat []float64
	ends := make([]int, 0, nr)
	for i := 0; i < nr; i++ {
		n, err := d.readCount(bo, stride*8)
		if err != nil {
			return nil, nil, err
		}
		ringFlat, err := d.readFloats(bo, n*stride)
		if err != nil {
			return nil, nil, err
		}
		flat = append(flat, ringFlat...)
		ends = append(ends, len(flat))
	}
	return flat, ends, nil
}

func layoutFlags(typ Type, l geom.Layout) (uint32, error) {
	switch l {
	case geom.XY:
		return 0, nil
	case geom.XYZ:
		return ewkbZFlag, nil
	case geom.XYM:
		return ewkbMFlag, nil
	case geom.XYZM:
		return ewkbZFlag | ewkbMFlag, nil
	default:
		return 0, invalidf(typ, "layout %s is not encodable", l)
	}
}

func layoutFromFlags(z, m bool) geom.Layout {
	switch {
	case z && m:
		return geom.XYZM
	case z:
		return geom.XYZ
	case m:
		return geom.XYM
	default:
		return geom.XY
	}
}
