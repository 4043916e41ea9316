package geo

import (
	"github.com/golang/geo/r2"
	"github.com/twpayne/go-geom"
)

// Envelope returns the XY bounding rectangle. The second result is false
// for geometries with no coordinates.
func (g Geometry) Envelope() (r2.Rect, bool) {
	if g.t == nil {
		return r2.EmptyRect(), false
	}
	rect := envelopeOf(g.t)
	if rect.IsEmpty() {
		return r2.EmptyRect(), false
	}
	return rect, true
}

func envelopeOf(t geom.T) r2.Rect {
	rect := r2.EmptyRect()
	if gc, ok := t.(*geom.GeometryCollection); ok {
		for _, member := range gc.Geoms() {
			rect = rect.Union(envelopeOf(member))
		}
		return rect
	}
	flat := t.FlatCoords()
	stride := t.Stride()
	if stride < 2 {
		return rect
	}
	for i := 0; i+1 < len(flat); i += stride {
		rect = rect.AddPoint(r2.Point{X: flat[i], Y: flat[i+1]})
	}
	return rect
}
