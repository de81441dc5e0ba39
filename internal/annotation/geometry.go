package annotation

import (
	"math"

	"seehuhn.de/go/geom/rect"

	"floorplan/api/internal/coords"
)

const (
	DefaultStampSize = 24.0
	DefaultFontSize  = 12.0
	// glyphAdvance approximates the average glyph width as a share of the
	// font size.
	glyphAdvance = 0.6
)

// Tolerance widens hit regions. Values are in document units.
type Tolerance struct {
	// PointRadius is the hit radius around equipment pins.
	PointRadius float64
	// Stroke is the distance accepted around outlines and lines.
	Stroke float64
}

// Box returns the unrotated rectangle of a sizable marker, using default
// dimensions for stamps and text that have none.
func (m Marker) Box() (rect.Rect, bool) {
	switch m.Kind {
	case KindNote, KindRectangle, KindEllipse, KindStamp, KindText:
		w, h, ok := m.Size()
		if !ok {
			w, h = m.defaultSize()
		}
		return rect.Rect{LLx: m.AnchorX, LLy: m.AnchorY, URx: m.AnchorX + w, URy: m.AnchorY + h}, true
	case KindEquipment, KindLine, KindPolyline, KindPolygon:
		return rect.Rect{}, false
	}
	return rect.Rect{}, false
}

func (m Marker) defaultSize() (float64, float64) {
	if m.Kind == KindStamp {
		return DefaultStampSize, DefaultStampSize
	}
	fontSize := m.FontSize
	if fontSize == 0 {
		fontSize = DefaultFontSize
	}
	runes := float64(len([]rune(m.TextContent)))
	return math.Max(runes, 1) * fontSize * glyphAdvance, fontSize
}

// Center of the marker's box, or its anchor for kinds without one.
func (m Marker) Center() coords.Point {
	if box, ok := m.Box(); ok {
		return coords.Point{X: (box.LLx + box.URx) / 2, Y: (box.LLy + box.URy) / 2}
	}
	return m.Anchor()
}

// Corners returns the four corners of the box after rotation, clockwise
// from the anchor corner.
func (m Marker) Corners() []coords.Point {
	box, ok := m.Box()
	if !ok {
		return nil
	}
	center := m.Center()
	corners := []coords.Point{
		{X: box.LLx, Y: box.LLy},
		{X: box.URx, Y: box.LLy},
		{X: box.URx, Y: box.URy},
		{X: box.LLx, Y: box.URy},
	}
	for i := range corners {
		corners[i] = coords.Rotate(corners[i], center, m.RotationDegrees)
	}
	return corners
}

// Bounds returns the axis-aligned bounding box in document space.
func (m Marker) Bounds() rect.Rect {
	switch m.Kind {
	case KindEquipment:
		return coords.BoundsOf(m.Anchor())
	case KindNote, KindRectangle, KindEllipse, KindStamp, KindText:
		return coords.BoundsOf(m.Corners()...)
	case KindLine:
		end, ok := m.End()
		if !ok {
			return coords.BoundsOf(m.Anchor())
		}
		return coords.BoundsOf(m.Anchor(), end)
	case KindPolyline, KindPolygon:
		if len(m.Points) == 0 {
			return coords.BoundsOf(m.Anchor())
		}
		return coords.BoundsOf(m.Points...)
	}
	return coords.BoundsOf(m.Anchor())
}

// Contains reports whether p hits the marker.
func (m Marker) Contains(p coords.Point, tol Tolerance) bool {
	stroke := math.Max(tol.Stroke, m.StrokeWidth/2)
	switch m.Kind {
	case KindEquipment:
		return coords.Distance(p, m.Anchor()) <= tol.PointRadius
	case KindNote, KindRectangle, KindStamp, KindText:
		box, _ := m.Box()
		local := coords.Rotate(p, m.Center(), -m.RotationDegrees)
		return coords.InBounds(box, local, stroke)
	case KindEllipse:
		box, _ := m.Box()
		center := m.Center()
		local := coords.Rotate(p, center, -m.RotationDegrees)
		rx := (box.URx-box.LLx)/2 + stroke
		ry := (box.URy-box.LLy)/2 + stroke
		dx := (local.X - center.X) / rx
		dy := (local.Y - center.Y) / ry
		return dx*dx+dy*dy <= 1
	case KindLine:
		end, ok := m.End()
		if !ok {
			return false
		}
		return coords.SegmentDistance(p, m.Anchor(), end) <= stroke
	case KindPolyline:
		return nearPath(p, m.Points, false, stroke)
	case KindPolygon:
		return coords.InPolygon(p, m.Points) || nearPath(p, m.Points, true, stroke)
	}
	return false
}

func nearPath(p coords.Point, points []coords.Point, closed bool, tolerance float64) bool {
	for i := 1; i < len(points); i++ {
		if coords.SegmentDistance(p, points[i-1], points[i]) <= tolerance {
			return true
		}
	}
	if closed && len(points) > 2 {
		return coords.SegmentDistance(p, points[len(points)-1], points[0]) <= tolerance
	}
	return false
}
