// Package render turns visible markers into screen-space draw commands for
// whatever canvas sits on top. It does no pixel drawing.
package render

import (
	"floorplan/api/internal/annotation"
	"floorplan/api/internal/coords"
)

type Primitive string

const (
	PrimitiveCircle   Primitive = "circle"
	PrimitiveRect     Primitive = "rect"
	PrimitiveEllipse  Primitive = "ellipse"
	PrimitiveLine     Primitive = "line"
	PrimitivePolyline Primitive = "polyline"
	PrimitivePolygon  Primitive = "polygon"
	PrimitiveText     Primitive = "text"
	PrimitiveStamp    Primitive = "stamp"
)

// PinRadius is the screen radius of equipment pins; pins do not scale.
const PinRadius = 8.0

type Style struct {
	Stroke      string  `json:"stroke"`
	Fill        string  `json:"fill,omitempty"`
	Opacity     float64 `json:"opacity"`
	StrokeWidth float64 `json:"strokeWidth"`
	FontSize    float64 `json:"fontSize,omitempty"`
	FontFamily  string  `json:"fontFamily,omitempty"`
}

// Command draws one marker. Geometry is in screen pixels.
type Command struct {
	MarkerID        string                   `json:"markerId,omitempty"`
	Kind            annotation.Kind          `json:"kind"`
	EquipmentType   annotation.EquipmentType `json:"equipmentType,omitempty"`
	Primitive       Primitive                `json:"primitive"`
	X               float64                  `json:"x"`
	Y               float64                  `json:"y"`
	Width           float64                  `json:"width,omitempty"`
	Height          float64                  `json:"height,omitempty"`
	Radius          float64                  `json:"radius,omitempty"`
	RotationDegrees float64                  `json:"rotationDegrees,omitempty"`
	Points          []coords.Point           `json:"points,omitempty"`
	Text            string                   `json:"text,omitempty"`
	Style           Style                    `json:"style"`
	Selected        bool                     `json:"selected,omitempty"`
	Preview         bool                     `json:"preview,omitempty"`
	Handles         []coords.Point           `json:"handles,omitempty"`
}

// Input is everything Build needs for one frame.
type Input struct {
	// Markers must already be visible markers in paint order.
	Markers  []annotation.Marker
	Layers   annotation.Layers
	Viewport *coords.Viewport
	Selected string

	// Preview replaces the stored marker named by ReplacesID, or is drawn on
	// top when ReplacesID is empty.
	Preview    *annotation.Marker
	ReplacesID string

	InProgress     []coords.Point
	InProgressKind annotation.Kind
}

// Build returns one command per marker in paint order, then the preview and
// the in-progress vertex path.
func Build(in Input) []Command {
	commands := make([]Command, 0, len(in.Markers)+2)
	for _, m := range in.Markers {
		preview := false
		if in.Preview != nil && in.ReplacesID != "" && m.ID == in.ReplacesID {
			m = in.Preview.Clone()
			preview = true
		}
		cmd := build(m, in)
		cmd.Preview = preview
		commands = append(commands, cmd)
	}
	if in.Preview != nil && in.ReplacesID == "" {
		cmd := build(*in.Preview, in)
		cmd.Preview = true
		commands = append(commands, cmd)
	}
	if len(in.InProgress) > 0 {
		kind := in.InProgressKind
		if kind == "" {
			kind = annotation.KindPolyline
		}
		commands = append(commands, Command{
			Kind:      kind,
			Primitive: PrimitivePolyline,
			Points:    screenPoints(in.Viewport, in.InProgress),
			Style:     Style{Stroke: annotation.DefaultStrokeColor, Opacity: 1, StrokeWidth: 1},
			Preview:   true,
		})
	}
	return commands
}

func build(m annotation.Marker, in Input) Command {
	v := in.Viewport
	scale := v.Scale()
	anchor := v.ScreenPoint(m.Anchor())
	cmd := Command{
		MarkerID:        m.ID,
		Kind:            m.Kind,
		X:               anchor.X,
		Y:               anchor.Y,
		RotationDegrees: m.RotationDegrees,
		Style:           style(m, in.Layers, scale),
		Selected:        m.ID != "" && m.ID == in.Selected,
	}

	switch m.Kind {
	case annotation.KindEquipment:
		cmd.Primitive = PrimitiveCircle
		cmd.EquipmentType = m.EquipmentType
		cmd.Radius = PinRadius
		cmd.Text = m.Label
	case annotation.KindNote:
		cmd.Primitive = PrimitiveRect
		cmd.Text = m.TextContent
		sizeFromBox(&cmd, m, scale)
	case annotation.KindRectangle:
		cmd.Primitive = PrimitiveRect
		sizeFromBox(&cmd, m, scale)
	case annotation.KindEllipse:
		cmd.Primitive = PrimitiveEllipse
		sizeFromBox(&cmd, m, scale)
	case annotation.KindStamp:
		cmd.Primitive = PrimitiveStamp
		cmd.Text = m.Label
		sizeFromBox(&cmd, m, scale)
	case annotation.KindText:
		cmd.Primitive = PrimitiveText
		cmd.Text = m.TextContent
		sizeFromBox(&cmd, m, scale)
	case annotation.KindLine:
		cmd.Primitive = PrimitiveLine
		if end, ok := m.End(); ok {
			cmd.Points = []coords.Point{anchor, v.ScreenPoint(end)}
		}
	case annotation.KindPolyline:
		cmd.Primitive = PrimitivePolyline
		cmd.Points = screenPoints(v, m.Points)
	case annotation.KindPolygon:
		cmd.Primitive = PrimitivePolygon
		cmd.Points = screenPoints(v, m.Points)
	}

	if cmd.Selected && m.Kind.Sizable() && m.RotationDegrees == 0 {
		cmd.Handles = screenPoints(v, m.Corners())
	}
	return cmd
}

func sizeFromBox(cmd *Command, m annotation.Marker, scale float64) {
	box, ok := m.Box()
	if !ok {
		return
	}
	cmd.Width = (box.URx - box.LLx) * scale
	cmd.Height = (box.URy - box.LLy) * scale
}

func style(m annotation.Marker, layers annotation.Layers, scale float64) Style {
	opacity := m.Opacity
	if m.LayerID != "" && layers != nil {
		if l, ok := layers.Lookup(m.LayerID); ok {
			opacity *= l.Opacity
		}
	}
	fontSize := m.FontSize
	if fontSize == 0 && (m.Kind == annotation.KindText || m.Kind == annotation.KindNote) {
		fontSize = annotation.DefaultFontSize
	}
	return Style{
		Stroke:      m.StrokeColor,
		Fill:        m.FillColor,
		Opacity:     opacity,
		StrokeWidth: m.StrokeWidth * scale,
		FontSize:    fontSize * scale,
		FontFamily:  m.FontFamily,
	}
}

func screenPoints(v *coords.Viewport, points []coords.Point) []coords.Point {
	out := make([]coords.Point, len(points))
	for i, p := range points {
		out[i] = v.ScreenPoint(p)
	}
	return out
}
