package interaction

import (
	"errors"
	"fmt"

	"floorplan/api/internal/annotation"
)

type Tool string

const (
	ToolSelect     Tool = "select"
	ToolPan        Tool = "pan"
	ToolPlace      Tool = "place"
	ToolShape      Tool = "shape"
	ToolMultipoint Tool = "multipoint"
	ToolText       Tool = "text"
	ToolCalibrate  Tool = "calibrate"
)

var ErrUnknownTool = errors.New("unknown tool")

// KindMismatchError rejects a template whose kind the tool cannot create.
type KindMismatchError struct {
	Tool Tool
	Kind annotation.Kind
}

func (e *KindMismatchError) Error() string {
	return fmt.Sprintf("tool %s cannot create %s markers", e.Tool, e.Kind)
}

func (t Tool) Valid() bool {
	switch t {
	case ToolSelect, ToolPan, ToolPlace, ToolShape, ToolMultipoint, ToolText, ToolCalibrate:
		return true
	}
	return false
}

// accepts reports whether the tool creates markers of kind k.
func (t Tool) accepts(k annotation.Kind) bool {
	switch t {
	case ToolPlace:
		return k == annotation.KindEquipment || k == annotation.KindNote || k == annotation.KindStamp
	case ToolShape:
		return k == annotation.KindRectangle || k == annotation.KindEllipse || k == annotation.KindLine
	case ToolMultipoint:
		return k == annotation.KindPolyline || k == annotation.KindPolygon
	case ToolText:
		return k == annotation.KindText
	case ToolSelect, ToolPan, ToolCalibrate:
		return false
	}
	return false
}

// defaultKind is used when a creating tool is picked without a template.
func (t Tool) defaultKind() annotation.Kind {
	switch t {
	case ToolPlace:
		return annotation.KindEquipment
	case ToolShape:
		return annotation.KindRectangle
	case ToolMultipoint:
		return annotation.KindPolyline
	case ToolText:
		return annotation.KindText
	case ToolSelect, ToolPan, ToolCalibrate:
		return ""
	}
	return ""
}

// DefaultTemplate returns the starting attributes for new markers of a kind.
func DefaultTemplate(kind annotation.Kind) annotation.Marker {
	m := annotation.Marker{Kind: kind}
	switch kind {
	case annotation.KindEquipment:
		m.EquipmentType = annotation.EquipmentCamera
		m.StrokeColor = "#d1242f"
	case annotation.KindNote:
		m.Width = annotation.Float(120)
		m.Height = annotation.Float(80)
		m.FillColor = "#fff8c5"
		m.StrokeColor = "#9a6700"
		m.FontSize = 12
	case annotation.KindStamp:
		m.Label = "CHECKED"
		m.StrokeColor = "#1a7f37"
	case annotation.KindText:
		m.TextContent = "Text"
		m.FontSize = 14
		m.FontFamily = "Helvetica"
		m.StrokeColor = "#24292f"
	case annotation.KindRectangle, annotation.KindEllipse:
		m.FillColor = "#ddf4ff"
	case annotation.KindLine, annotation.KindPolyline:
	case annotation.KindPolygon:
		m.FillColor = "#ddf4ff"
	}
	return m.WithDefaults()
}
