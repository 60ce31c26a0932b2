// Package geometry holds the 2-D polygon model for parcel boundaries,
// WKT serialization, and reprojection from the source state-plane CRS to
// WGS84. Elevation/measure dimensions are never carried: a parcel
// boundary is strictly 2-D here.
package geometry

import (
	"fmt"
	"math"
	"strings"
)

// Point is a 2-D coordinate. After reprojection X is longitude and Y is
// latitude (WGS84).
type Point struct {
	X float64
	Y float64
}

// Ring is a closed sequence of points. Shapefile rings arrive closed
// (first == last); Close guarantees it either way.
type Ring []Point

// Close appends the first point if the ring is not already closed.
func (r Ring) Close() Ring {
	if len(r) == 0 {
		return r
	}
	if r[0] != r[len(r)-1] {
		return append(r, r[0])
	}
	return r
}

// Area returns the absolute shoelace area of the ring.
func (r Ring) Area() float64 {
	if len(r) < 4 {
		return 0
	}
	sum := 0.0
	for i := 0; i < len(r)-1; i++ {
		sum += r[i].X*r[i+1].Y - r[i+1].X*r[i].Y
	}
	return math.Abs(sum / 2)
}

// Polygon is a parcel boundary: one exterior ring plus any interior
// rings, all in the same coordinate space.
type Polygon struct {
	Rings []Ring
}

// Valid reports whether the polygon can be serialized as a real parcel
// boundary: at least one ring, the exterior ring has at least four
// points once closed, and its area is non-zero. Degenerate polygons are
// dropped from import, never stored with null geometry.
func (p *Polygon) Valid() bool {
	if p == nil || len(p.Rings) == 0 {
		return false
	}
	exterior := p.Rings[0].Close()
	if len(exterior) < 4 {
		return false
	}
	return exterior.Area() > 0
}

// WKT serializes the polygon as a POLYGON well-known-text literal.
// Returns an error for degenerate geometry so callers cannot persist an
// empty boundary by accident.
func (p *Polygon) WKT() (string, error) {
	if !p.Valid() {
		return "", fmt.Errorf("degenerate polygon: %d rings", len(p.ringsOrNil()))
	}

	var b strings.Builder
	b.WriteString("POLYGON (")
	for i, ring := range p.Rings {
		closed := ring.Close()
		if len(closed) < 4 {
			continue
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j, pt := range closed {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%.8f %.8f", pt.X, pt.Y)
		}
		b.WriteString(")")
	}
	b.WriteString(")")
	return b.String(), nil
}

func (p *Polygon) ringsOrNil() []Ring {
	if p == nil {
		return nil
	}
	return p.Rings
}
