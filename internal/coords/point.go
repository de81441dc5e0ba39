// Package coords converts between document space and screen space and holds
// the small geometry vocabulary shared by the annotation engine.
package coords

import (
	"math"

	"seehuhn.de/go/geom/rect"
	"seehuhn.de/go/geom/vec"
)

// Point is a location in document space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Vec() vec.Vec2 {
	return vec.Vec2{X: p.X, Y: p.Y}
}

func FromVec(v vec.Vec2) Point {
	return Point{X: v.X, Y: v.Y}
}

// Offset returns p shifted by (dx, dy).
func (p Point) Offset(dx, dy float64) Point {
	return Point{X: p.X + dx, Y: p.Y + dy}
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return b.Vec().Sub(a.Vec()).Length()
}

// SegmentDistance returns the distance from p to the segment ab.
func SegmentDistance(p, a, b Point) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	lengthSq := dx*dx + dy*dy
	if lengthSq == 0 {
		return Distance(p, a)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lengthSq
	t = math.Max(0, math.Min(1, t))
	return Distance(p, Point{X: a.X + t*dx, Y: a.Y + t*dy})
}

// InPolygon reports whether p lies inside the closed polygon using the
// even-odd rule.
func InPolygon(p Point, polygon []Point) bool {
	inside := false
	n := len(polygon)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := polygon[i], polygon[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			crossX := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < crossX {
				inside = !inside
			}
		}
	}
	return inside
}

// Rotate turns p around center by the given angle in degrees.
func Rotate(p, center Point, degrees float64) Point {
	if degrees == 0 {
		return p
	}
	rad := degrees * math.Pi / 180
	sin, cos := math.Sincos(rad)
	x := p.X - center.X
	y := p.Y - center.Y
	return Point{
		X: center.X + x*cos - y*sin,
		Y: center.Y + x*sin + y*cos,
	}
}

// BoundsOf returns the smallest rectangle containing all points.
func BoundsOf(points ...Point) rect.Rect {
	if len(points) == 0 {
		return rect.Rect{}
	}
	r := rect.Rect{LLx: points[0].X, LLy: points[0].Y, URx: points[0].X, URy: points[0].Y}
	for _, p := range points[1:] {
		r.LLx = math.Min(r.LLx, p.X)
		r.LLy = math.Min(r.LLy, p.Y)
		r.URx = math.Max(r.URx, p.X)
		r.URy = math.Max(r.URy, p.Y)
	}
	return r
}

// InBounds reports whether p lies within r grown by tolerance on every side.
func InBounds(r rect.Rect, p Point, tolerance float64) bool {
	return p.X >= r.LLx-tolerance && p.X <= r.URx+tolerance &&
		p.Y >= r.LLy-tolerance && p.Y <= r.URy+tolerance
}
