// Package annotation holds the marker model and the authoritative
// in-memory marker collection of a document.
package annotation

import (
	"slices"
	"time"

	"floorplan/api/internal/coords"
)

const (
	DefaultStrokeColor = "#1f6feb"
	DefaultStrokeWidth = 2.0
)

// Marker is a vector annotation in document space. Vertex kinds keep the
// anchor equal to their first point; sizable kinds anchor at the top-left
// corner.
type Marker struct {
	ID              string         `json:"id"`
	PageNumber      int            `json:"pageNumber"`
	LayerID         string         `json:"layerId,omitempty"`
	Kind            Kind           `json:"kind"`
	EquipmentType   EquipmentType  `json:"equipmentType,omitempty"`
	AnchorX         float64        `json:"anchorX"`
	AnchorY         float64        `json:"anchorY"`
	EndX            *float64       `json:"endX,omitempty"`
	EndY            *float64       `json:"endY,omitempty"`
	Width           *float64       `json:"width,omitempty"`
	Height          *float64       `json:"height,omitempty"`
	RotationDegrees float64        `json:"rotationDegrees,omitempty"`
	Points          []coords.Point `json:"points,omitempty"`
	StrokeColor     string         `json:"strokeColor"`
	FillColor       string         `json:"fillColor,omitempty"`
	Opacity         float64        `json:"opacity"`
	StrokeWidth     float64        `json:"strokeWidth"`
	Label           string         `json:"label,omitempty"`
	TextContent     string         `json:"textContent,omitempty"`
	FontSize        float64        `json:"fontSize,omitempty"`
	FontFamily      string         `json:"fontFamily,omitempty"`
	EquipmentRef    string         `json:"equipmentRef,omitempty"`
	Version         int            `json:"version"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`

	// Sequence is the store's creation counter, used for paint order.
	Sequence uint64 `json:"-"`
}

func Float(v float64) *float64 { return &v }

func String(v string) *string { return &v }

func (m Marker) Anchor() coords.Point {
	return coords.Point{X: m.AnchorX, Y: m.AnchorY}
}

// End returns the line end point, if any.
func (m Marker) End() (coords.Point, bool) {
	if m.EndX == nil || m.EndY == nil {
		return coords.Point{}, false
	}
	return coords.Point{X: *m.EndX, Y: *m.EndY}, true
}

// Size returns width and height, if the marker has them.
func (m Marker) Size() (float64, float64, bool) {
	if m.Width == nil || m.Height == nil {
		return 0, 0, false
	}
	return *m.Width, *m.Height, true
}

// Clone returns a copy that shares no memory with m.
func (m Marker) Clone() Marker {
	out := m
	out.EndX = clonePtr(m.EndX)
	out.EndY = clonePtr(m.EndY)
	out.Width = clonePtr(m.Width)
	out.Height = clonePtr(m.Height)
	if m.Points != nil {
		out.Points = slices.Clone(m.Points)
	}
	return out
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Translate shifts every coordinate of the marker by (dx, dy).
func (m Marker) Translate(dx, dy float64) Marker {
	out := m.Clone()
	out.AnchorX += dx
	out.AnchorY += dy
	if out.EndX != nil && out.EndY != nil {
		out.EndX = Float(*out.EndX + dx)
		out.EndY = Float(*out.EndY + dy)
	}
	for i := range out.Points {
		out.Points[i] = out.Points[i].Offset(dx, dy)
	}
	return out
}

// WithDefaults fills unset style fields.
func (m Marker) WithDefaults() Marker {
	if m.StrokeColor == "" {
		m.StrokeColor = DefaultStrokeColor
	}
	if m.Opacity == 0 {
		m.Opacity = 1
	}
	if m.StrokeWidth == 0 {
		m.StrokeWidth = DefaultStrokeWidth
	}
	return m
}

// Patch lists attribute changes. Nil fields stay unchanged. ClearSize and
// ClearEnd drop Width/Height and EndX/EndY before any new values apply.
type Patch struct {
	LayerID         *string        `json:"layerId,omitempty"`
	EquipmentType   *EquipmentType `json:"equipmentType,omitempty"`
	AnchorX         *float64       `json:"anchorX,omitempty"`
	AnchorY         *float64       `json:"anchorY,omitempty"`
	EndX            *float64       `json:"endX,omitempty"`
	EndY            *float64       `json:"endY,omitempty"`
	Width           *float64       `json:"width,omitempty"`
	Height          *float64       `json:"height,omitempty"`
	RotationDegrees *float64       `json:"rotationDegrees,omitempty"`
	Points          []coords.Point `json:"points,omitempty"`
	StrokeColor     *string        `json:"strokeColor,omitempty"`
	FillColor       *string        `json:"fillColor,omitempty"`
	Opacity         *float64       `json:"opacity,omitempty"`
	StrokeWidth     *float64       `json:"strokeWidth,omitempty"`
	Label           *string        `json:"label,omitempty"`
	TextContent     *string        `json:"textContent,omitempty"`
	FontSize        *float64       `json:"fontSize,omitempty"`
	FontFamily      *string        `json:"fontFamily,omitempty"`
	EquipmentRef    *string        `json:"equipmentRef,omitempty"`
	ClearSize       bool           `json:"clearSize,omitempty"`
	ClearEnd        bool           `json:"clearEnd,omitempty"`
}

func (p Patch) IsEmpty() bool {
	return p.LayerID == nil && p.EquipmentType == nil && p.AnchorX == nil && p.AnchorY == nil &&
		p.EndX == nil && p.EndY == nil && p.Width == nil && p.Height == nil &&
		p.RotationDegrees == nil && p.Points == nil && p.StrokeColor == nil && p.FillColor == nil &&
		p.Opacity == nil && p.StrokeWidth == nil && p.Label == nil && p.TextContent == nil &&
		p.FontSize == nil && p.FontFamily == nil && p.EquipmentRef == nil &&
		!p.ClearSize && !p.ClearEnd
}

// Apply returns m with the patch merged in.
func (p Patch) Apply(m Marker) Marker {
	out := m.Clone()
	set(&out.LayerID, p.LayerID)
	set(&out.EquipmentType, p.EquipmentType)
	set(&out.AnchorX, p.AnchorX)
	set(&out.AnchorY, p.AnchorY)
	if p.ClearEnd {
		out.EndX, out.EndY = nil, nil
	}
	if p.ClearSize {
		out.Width, out.Height = nil, nil
	}
	setPtr(&out.EndX, p.EndX)
	setPtr(&out.EndY, p.EndY)
	setPtr(&out.Width, p.Width)
	setPtr(&out.Height, p.Height)
	set(&out.RotationDegrees, p.RotationDegrees)
	if p.Points != nil {
		out.Points = slices.Clone(p.Points)
	}
	set(&out.StrokeColor, p.StrokeColor)
	set(&out.FillColor, p.FillColor)
	set(&out.Opacity, p.Opacity)
	set(&out.StrokeWidth, p.StrokeWidth)
	set(&out.Label, p.Label)
	set(&out.TextContent, p.TextContent)
	set(&out.FontSize, p.FontSize)
	set(&out.FontFamily, p.FontFamily)
	set(&out.EquipmentRef, p.EquipmentRef)
	return out
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setPtr[T any](dst **T, v *T) {
	if v != nil {
		c := *v
		*dst = &c
	}
}

// Diff returns the patch that turns before into after.
func Diff(before, after Marker) Patch {
	var p Patch
	p.LayerID = changed(before.LayerID, after.LayerID)
	p.EquipmentType = changed(before.EquipmentType, after.EquipmentType)
	p.AnchorX = changed(before.AnchorX, after.AnchorX)
	p.AnchorY = changed(before.AnchorY, after.AnchorY)
	p.EndX = changedPtr(before.EndX, after.EndX)
	p.EndY = changedPtr(before.EndY, after.EndY)
	p.Width = changedPtr(before.Width, after.Width)
	p.Height = changedPtr(before.Height, after.Height)
	if dropped(before.EndX, after.EndX) || dropped(before.EndY, after.EndY) {
		p.ClearEnd = true
		p.EndX, p.EndY = clonePtr(after.EndX), clonePtr(after.EndY)
	}
	if dropped(before.Width, after.Width) || dropped(before.Height, after.Height) {
		p.ClearSize = true
		p.Width, p.Height = clonePtr(after.Width), clonePtr(after.Height)
	}
	p.RotationDegrees = changed(before.RotationDegrees, after.RotationDegrees)
	if !slices.Equal(before.Points, after.Points) {
		p.Points = slices.Clone(after.Points)
	}
	p.StrokeColor = changed(before.StrokeColor, after.StrokeColor)
	p.FillColor = changed(before.FillColor, after.FillColor)
	p.Opacity = changed(before.Opacity, after.Opacity)
	p.StrokeWidth = changed(before.StrokeWidth, after.StrokeWidth)
	p.Label = changed(before.Label, after.Label)
	p.TextContent = changed(before.TextContent, after.TextContent)
	p.FontSize = changed(before.FontSize, after.FontSize)
	p.FontFamily = changed(before.FontFamily, after.FontFamily)
	p.EquipmentRef = changed(before.EquipmentRef, after.EquipmentRef)
	return p
}

func changed[T comparable](before, after T) *T {
	if before == after {
		return nil
	}
	return &after
}

func dropped[T any](before, after *T) bool {
	return before != nil && after == nil
}

func changedPtr[T comparable](before, after *T) *T {
	if after == nil {
		return nil
	}
	if before != nil && *before == *after {
		return nil
	}
	c := *after
	return &c
}
