package annotation

import (
	"math"
	"strings"

	"floorplan/api/internal/coords"
)

// MinShapeSize is the smallest accepted width, height or line length in
// document units.
const MinShapeSize = 1.0

// Validate checks the kind rules. It does not look at layers.
func Validate(m Marker) error {
	if !m.Kind.Valid() {
		return invalid("kind", "unknown kind "+string(m.Kind))
	}
	if m.PageNumber < 1 {
		return invalid("pageNumber", "must be at least 1")
	}
	if !finite(m.AnchorX) || !finite(m.AnchorY) || !finite(m.RotationDegrees) {
		return invalid("anchor", "must be finite")
	}
	if !(m.Opacity >= 0 && m.Opacity <= 1) {
		return invalid("opacity", "must be within [0,1]")
	}
	if m.StrokeWidth < 0 || math.IsNaN(m.StrokeWidth) {
		return invalid("strokeWidth", "must not be negative")
	}
	if m.FontSize < 0 || math.IsNaN(m.FontSize) {
		return invalid("fontSize", "must not be negative")
	}
	if m.Kind != KindEquipment && m.EquipmentType != "" {
		return invalid("equipmentType", "only equipment markers carry an equipment type")
	}
	if m.Kind != KindLine && (m.EndX != nil || m.EndY != nil) {
		return invalid("end", "only lines carry an end point")
	}
	if !m.Kind.Sizable() && (m.Width != nil || m.Height != nil) {
		return invalid("size", string(m.Kind)+" markers carry no size")
	}
	if m.Kind.MinPoints() == 0 && len(m.Points) > 0 {
		return invalid("points", string(m.Kind)+" markers carry no points")
	}

	switch m.Kind {
	case KindEquipment:
		if !m.EquipmentType.Valid() {
			return invalid("equipmentType", "must be access-point, camera, elevator or intercom")
		}
	case KindNote, KindRectangle, KindEllipse:
		return validateSize(m, true)
	case KindStamp:
		return validateSize(m, false)
	case KindText:
		if strings.TrimSpace(m.TextContent) == "" {
			return invalid("textContent", "text markers need content")
		}
		return validateSize(m, false)
	case KindLine:
		end, ok := m.End()
		if !ok {
			return invalid("end", "lines need an end point")
		}
		if !finite(end.X) || !finite(end.Y) {
			return invalid("end", "must be finite")
		}
		if coords.Distance(m.Anchor(), end) < MinShapeSize {
			return &DegenerateShapeError{Kind: m.Kind, Width: end.X - m.AnchorX, Height: end.Y - m.AnchorY}
		}
	case KindPolyline, KindPolygon:
		if len(m.Points) < m.Kind.MinPoints() {
			return invalid("points", "too few points for "+string(m.Kind))
		}
		for _, p := range m.Points {
			if !finite(p.X) || !finite(p.Y) {
				return invalid("points", "must be finite")
			}
		}
		if m.Points[0] != m.Anchor() {
			return invalid("anchor", "must equal the first point")
		}
	}
	return nil
}

func validateSize(m Marker, required bool) error {
	if m.Width == nil && m.Height == nil && !required {
		return nil
	}
	w, h, ok := m.Size()
	if !ok {
		return invalid("size", "width and height go together")
	}
	if !finite(w) || !finite(h) {
		return invalid("size", "must be finite")
	}
	if w < MinShapeSize || h < MinShapeSize {
		return &DegenerateShapeError{Kind: m.Kind, Width: w, Height: h}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
