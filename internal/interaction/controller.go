// Package interaction turns pointer and keyboard events into marker store
// mutations. Intermediate gesture states only ever touch the preview.
package interaction

import (
	"errors"
	"math"

	"floorplan/api/internal/annotation"
	"floorplan/api/internal/calibration"
	"floorplan/api/internal/coords"
)

// Thresholds in screen pixels, converted at the current zoom.
const (
	DragThreshold   = 5.0
	PointHitRadius  = 10.0
	StrokeTolerance = 4.0
	HandleHitRadius = 6.0
)

// Document-unit steps.
const (
	MinResizeSize   = 8.0
	DuplicateOffset = 10.0
	NudgeStep       = 1.0
	NudgeStepShift  = 10.0
)

const wheelZoomFactor = 1.1

type PointerEvent struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Shift bool    `json:"shift,omitempty"`
	Ctrl  bool    `json:"ctrl,omitempty"`
}

func (e PointerEvent) screen() coords.Point { return coords.Point{X: e.X, Y: e.Y} }

type KeyEvent struct {
	Key   string `json:"key"`
	Shift bool   `json:"shift,omitempty"`
	Ctrl  bool   `json:"ctrl,omitempty"`
	Meta  bool   `json:"meta,omitempty"`
}

type gestureKind int

const (
	gestureNone gestureKind = iota
	gestureShape
	gestureMove
	gestureResize
	gesturePan
)

func (g gestureKind) String() string {
	switch g {
	case gestureShape:
		return "shape"
	case gestureMove:
		return "move"
	case gestureResize:
		return "resize"
	case gesturePan:
		return "pan"
	case gestureNone:
		return "none"
	}
	return "none"
}

type gesture struct {
	kind        gestureKind
	start       coords.Point
	startScreen coords.Point
	startPanX   float64
	startPanY   float64
	original    annotation.Marker
	preview     *annotation.Marker
	handle      int
}

// Preview is transient state for the render layer. It is never persisted.
type Preview struct {
	// Marker is the live shape of a drag; ReplacesID names the stored marker
	// it stands in for, empty for a marker being created.
	Marker     *annotation.Marker `json:"marker,omitempty"`
	ReplacesID string             `json:"replacesId,omitempty"`

	// Points are the vertices of a polyline or polygon under construction.
	Points     []coords.Point  `json:"points,omitempty"`
	PointsKind annotation.Kind `json:"pointsKind,omitempty"`

	Calibration []coords.Point `json:"calibration,omitempty"`
}

// State summarizes the controller for clients.
type State struct {
	Tool     Tool            `json:"tool"`
	Kind     annotation.Kind `json:"kind,omitempty"`
	Page     int             `json:"page"`
	Layer    string          `json:"layerId,omitempty"`
	Selected string          `json:"selectedId,omitempty"`
	Gesture  string          `json:"gesture"`
}

// Controller is the per-document tool state machine.
type Controller struct {
	store       *annotation.Store
	viewport    *coords.Viewport
	calibration *calibration.Engine

	tool     Tool
	template annotation.Marker
	page     int
	layerID  string
	selected string
	gesture  gesture
	points   []coords.Point
}

func NewController(store *annotation.Store, viewport *coords.Viewport, engine *calibration.Engine) *Controller {
	return &Controller{
		store:       store,
		viewport:    viewport,
		calibration: engine,
		tool:        ToolSelect,
		page:        1,
	}
}

func (c *Controller) State() State {
	return State{
		Tool:     c.tool,
		Kind:     c.template.Kind,
		Page:     c.page,
		Layer:    c.layerID,
		Selected: c.selected,
		Gesture:  c.gesture.kind.String(),
	}
}

func (c *Controller) Tool() Tool { return c.tool }

func (c *Controller) Page() int { return c.page }

func (c *Controller) Selected() string { return c.selected }

// Select sets the single selection; an empty id clears it.
func (c *Controller) Select(id string) {
	c.selected = id
}

// SetActiveLayer picks the layer new markers go to.
func (c *Controller) SetActiveLayer(id string) {
	c.layerID = id
}

// RenameSelection follows a marker id that was replaced after persistence.
func (c *Controller) RenameSelection(localID, serverID string) {
	if c.selected == localID {
		c.selected = serverID
	}
	if c.gesture.original.ID == localID {
		c.gesture.original.ID = serverID
	}
}

// SetTool switches tools, discarding any gesture in progress. A zero
// template picks the tool's default kind.
func (c *Controller) SetTool(tool Tool, template annotation.Marker) error {
	if !tool.Valid() {
		return ErrUnknownTool
	}
	if template.Kind == "" {
		if kind := tool.defaultKind(); kind != "" {
			template = DefaultTemplate(kind)
		}
	} else if !tool.accepts(template.Kind) {
		return &KindMismatchError{Tool: tool, Kind: template.Kind}
	} else {
		template = template.WithDefaults()
	}
	c.Cancel()
	if c.tool == ToolCalibrate && tool != ToolCalibrate {
		c.calibration.Cancel()
	}
	c.tool = tool
	c.template = template
	if tool == ToolCalibrate {
		c.calibration.Begin(c.page)
	}
	return nil
}

// SetPage changes the page context. An active move or resize is committed
// with its last preview; creation previews are dropped.
func (c *Controller) SetPage(page int) error {
	var err error
	switch c.gesture.kind {
	case gestureMove, gestureResize:
		err = c.commitEdit()
	case gestureShape, gesturePan, gestureNone:
	}
	c.gesture = gesture{}
	c.points = nil
	c.selected = ""
	c.page = page
	if c.tool == ToolCalibrate {
		c.calibration.Begin(page)
	} else if c.calibration.State() != calibration.StateIdle {
		c.calibration.Cancel()
	}
	return err
}

// Cancel drops the gesture in progress without side effects.
func (c *Controller) Cancel() {
	c.gesture = gesture{}
	c.points = nil
}

func (c *Controller) Preview() Preview {
	var p Preview
	if c.gesture.preview != nil {
		m := c.gesture.preview.Clone()
		p.Marker = &m
		if c.gesture.kind == gestureMove || c.gesture.kind == gestureResize {
			p.ReplacesID = c.gesture.original.ID
		}
	}
	if len(c.points) > 0 {
		p.Points = append([]coords.Point(nil), c.points...)
		p.PointsKind = c.template.Kind
	}
	if c.tool == ToolCalibrate {
		p.Calibration = c.calibration.Pending()
	}
	return p
}

func (c *Controller) toDocument(e PointerEvent) coords.Point {
	return c.viewport.DocumentPoint(e.screen())
}

func (c *Controller) threshold() float64 {
	return c.viewport.ScreenToDocumentLength(DragThreshold)
}

func (c *Controller) tolerance() annotation.Tolerance {
	return annotation.Tolerance{
		PointRadius: c.viewport.ScreenToDocumentLength(PointHitRadius),
		Stroke:      c.viewport.ScreenToDocumentLength(StrokeTolerance),
	}
}

// HitTest returns the topmost visible marker under a screen point.
func (c *Controller) HitTest(screenX, screenY float64) (annotation.Marker, bool) {
	p := c.viewport.DocumentPoint(coords.Point{X: screenX, Y: screenY})
	tol := c.tolerance()
	visible := c.store.ListVisible(c.page)
	for i := len(visible) - 1; i >= 0; i-- {
		if visible[i].Contains(p, tol) {
			return visible[i], true
		}
	}
	return annotation.Marker{}, false
}

func (c *Controller) PointerDown(e PointerEvent) error {
	doc := c.toDocument(e)
	switch c.tool {
	case ToolSelect:
		return c.selectDown(e, doc)
	case ToolPan:
		c.gesture = gesture{
			kind:        gesturePan,
			startScreen: e.screen(),
			startPanX:   c.viewport.PanX,
			startPanY:   c.viewport.PanY,
		}
	case ToolPlace, ToolText:
		return c.place(doc)
	case ToolShape:
		preview := c.newMarker(doc)
		c.gesture = gesture{kind: gestureShape, start: doc, preview: &preview}
		c.updateShape(doc)
	case ToolMultipoint:
		c.appendPoint(doc)
	case ToolCalibrate:
		if c.calibration.State() == calibration.StateIdle {
			c.calibration.Begin(c.page)
		}
		_, err := c.calibration.Capture(doc)
		return err
	}
	return nil
}

func (c *Controller) PointerMove(e PointerEvent) error {
	doc := c.toDocument(e)
	switch c.gesture.kind {
	case gestureShape:
		c.updateShape(doc)
	case gestureMove:
		dx, dy := doc.X-c.gesture.start.X, doc.Y-c.gesture.start.Y
		moved := c.gesture.original.Translate(dx, dy)
		c.gesture.preview = &moved
	case gestureResize:
		resized := resize(c.gesture.original, c.gesture.handle, doc)
		c.gesture.preview = &resized
	case gesturePan:
		c.viewport.SetPan(
			c.gesture.startPanX+e.X-c.gesture.startScreen.X,
			c.gesture.startPanY+e.Y-c.gesture.startScreen.Y,
		)
	case gestureNone:
	}
	return nil
}

func (c *Controller) PointerUp(e PointerEvent) error {
	if err := c.PointerMove(e); err != nil {
		return err
	}
	switch c.gesture.kind {
	case gestureShape:
		return c.commitShape()
	case gestureMove, gestureResize:
		err := c.commitEdit()
		c.gesture = gesture{}
		return err
	case gesturePan, gestureNone:
	}
	c.gesture = gesture{}
	return nil
}

// DoubleClick finishes a polyline or polygon.
func (c *Controller) DoubleClick(e PointerEvent) error {
	if c.tool != ToolMultipoint {
		return nil
	}
	c.appendPoint(c.toDocument(e))
	return c.finishMultipoint()
}

// Wheel zooms around the cursor; negative deltaY zooms in.
func (c *Controller) Wheel(e PointerEvent, deltaY float64) float64 {
	switch {
	case deltaY < 0:
		return c.viewport.ZoomAt(e.X, e.Y, wheelZoomFactor)
	case deltaY > 0:
		return c.viewport.ZoomAt(e.X, e.Y, 1/wheelZoomFactor)
	}
	return c.viewport.ZoomScale
}

func (c *Controller) Key(e KeyEvent) error {
	switch e.Key {
	case "Delete", "Backspace":
		if c.selected == "" {
			return nil
		}
		if _, err := c.store.Remove(c.selected); err != nil {
			return err
		}
		c.selected = ""
		c.gesture = gesture{}
	case "Escape":
		c.Cancel()
		c.selected = ""
		if c.tool == ToolCalibrate {
			c.calibration.Cancel()
		}
	case "Enter":
		if c.tool == ToolMultipoint {
			return c.finishMultipoint()
		}
	case "d", "D":
		if (e.Ctrl || e.Meta) && c.selected != "" {
			dup, err := c.store.Duplicate(c.selected, DuplicateOffset, DuplicateOffset)
			if err != nil {
				return err
			}
			c.selected = dup.ID
		}
	case "ArrowUp", "ArrowDown", "ArrowLeft", "ArrowRight":
		return c.nudge(e)
	}
	return nil
}

func (c *Controller) nudge(e KeyEvent) error {
	if c.selected == "" || c.gesture.kind != gestureNone {
		return nil
	}
	step := NudgeStep
	if e.Shift {
		step = NudgeStepShift
	}
	var dx, dy float64
	switch e.Key {
	case "ArrowUp":
		dy = -step
	case "ArrowDown":
		dy = step
	case "ArrowLeft":
		dx = -step
	case "ArrowRight":
		dx = step
	}
	m, err := c.store.Get(c.selected)
	if err != nil {
		return err
	}
	_, err = c.store.Update(m.ID, movePatch(m.Translate(dx, dy)))
	return err
}

func (c *Controller) newMarker(at coords.Point) annotation.Marker {
	m := c.template.Clone()
	m.PageNumber = c.page
	if m.LayerID == "" {
		m.LayerID = c.layerID
	}
	m.AnchorX = at.X
	m.AnchorY = at.Y
	return m
}

func (c *Controller) selectDown(e PointerEvent, doc coords.Point) error {
	if c.selected != "" {
		if m, err := c.store.Get(c.selected); err == nil {
			if handle, ok := c.handleAt(m, e.screen()); ok {
				c.gesture = gesture{kind: gestureResize, start: doc, original: m, handle: handle}
				return nil
			}
		}
	}
	hit, ok := c.HitTest(e.X, e.Y)
	if !ok {
		c.selected = ""
		c.gesture = gesture{}
		return nil
	}
	c.selected = hit.ID
	c.gesture = gesture{kind: gestureMove, start: doc, original: hit}
	return nil
}

// Handles returns the resize handles of a marker in document space, or nil
// when it cannot be resized.
func Handles(m annotation.Marker) []coords.Point {
	if !m.Kind.Sizable() || m.RotationDegrees != 0 {
		return nil
	}
	return m.Corners()
}

func (c *Controller) handleAt(m annotation.Marker, screen coords.Point) (int, bool) {
	for i, corner := range Handles(m) {
		if coords.Distance(c.viewport.ScreenPoint(corner), screen) <= HandleHitRadius {
			return i, true
		}
	}
	return 0, false
}

// resize drags corner handle of m to p with the opposite corner fixed.
func resize(m annotation.Marker, handle int, p coords.Point) annotation.Marker {
	corners := m.Corners()
	if len(corners) != 4 {
		return m
	}
	opposite := corners[(handle+2)%4]
	var x0, x1, y0, y1 float64
	if handle == 1 || handle == 2 {
		x0, x1 = opposite.X, math.Max(p.X, opposite.X+MinResizeSize)
	} else {
		x0, x1 = math.Min(p.X, opposite.X-MinResizeSize), opposite.X
	}
	if handle == 2 || handle == 3 {
		y0, y1 = opposite.Y, math.Max(p.Y, opposite.Y+MinResizeSize)
	} else {
		y0, y1 = math.Min(p.Y, opposite.Y-MinResizeSize), opposite.Y
	}
	out := m.Clone()
	out.AnchorX = x0
	out.AnchorY = y0
	out.Width = annotation.Float(x1 - x0)
	out.Height = annotation.Float(y1 - y0)
	return out
}

func (c *Controller) place(doc coords.Point) error {
	m := c.newMarker(doc)
	added, err := c.store.Add(m)
	if err != nil {
		return err
	}
	c.selected = added.ID
	return nil
}

func (c *Controller) updateShape(doc coords.Point) {
	m := c.newMarker(c.gesture.start)
	switch m.Kind {
	case annotation.KindLine:
		m.EndX = annotation.Float(doc.X)
		m.EndY = annotation.Float(doc.Y)
	default:
		m.AnchorX = math.Min(c.gesture.start.X, doc.X)
		m.AnchorY = math.Min(c.gesture.start.Y, doc.Y)
		m.Width = annotation.Float(math.Abs(doc.X - c.gesture.start.X))
		m.Height = annotation.Float(math.Abs(doc.Y - c.gesture.start.Y))
	}
	c.gesture.preview = &m
}

func (c *Controller) commitShape() error {
	preview := c.gesture.preview
	c.gesture = gesture{}
	if preview == nil {
		return nil
	}
	limit := c.threshold()
	switch preview.Kind {
	case annotation.KindLine:
		end, _ := preview.End()
		if coords.Distance(preview.Anchor(), end) <= limit {
			return nil
		}
	default:
		w, h, _ := preview.Size()
		if w <= limit && h <= limit {
			return nil
		}
	}
	added, err := c.store.Add(*preview)
	var degenerate *annotation.DegenerateShapeError
	if errors.As(err, &degenerate) {
		return nil
	}
	if err != nil {
		return err
	}
	c.selected = added.ID
	return nil
}

// commitEdit issues the single update for a finished move or resize.
func (c *Controller) commitEdit() error {
	preview := c.gesture.preview
	original := c.gesture.original
	if preview == nil {
		return nil
	}
	var patch annotation.Patch
	if c.gesture.kind == gestureResize {
		patch = annotation.Patch{
			AnchorX: annotation.Float(preview.AnchorX),
			AnchorY: annotation.Float(preview.AnchorY),
			Width:   preview.Width,
			Height:  preview.Height,
		}
	} else {
		patch = movePatch(*preview)
	}
	if annotation.Diff(original, patch.Apply(original)).IsEmpty() {
		return nil
	}
	_, err := c.store.Update(original.ID, patch)
	return err
}

func movePatch(m annotation.Marker) annotation.Patch {
	p := annotation.Patch{
		AnchorX: annotation.Float(m.AnchorX),
		AnchorY: annotation.Float(m.AnchorY),
		EndX:    m.EndX,
		EndY:    m.EndY,
	}
	if len(m.Points) > 0 {
		p.Points = m.Points
	}
	return p
}

// appendPoint adds a vertex unless it repeats the previous one.
func (c *Controller) appendPoint(p coords.Point) {
	if n := len(c.points); n > 0 && coords.Distance(c.points[n-1], p) <= c.threshold() {
		return
	}
	c.points = append(c.points, p)
}

func (c *Controller) finishMultipoint() error {
	points := c.points
	c.points = nil
	if len(points) < c.template.Kind.MinPoints() || len(points) == 0 {
		return nil
	}
	m := c.newMarker(points[0])
	m.Points = points
	added, err := c.store.Add(m)
	var degenerate *annotation.DegenerateShapeError
	if errors.As(err, &degenerate) {
		return nil
	}
	if err != nil {
		return err
	}
	c.selected = added.ID
	return nil
}
