package interaction

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"floorplan/api/internal/annotation"
	"floorplan/api/internal/calibration"
	"floorplan/api/internal/coords"
	"floorplan/api/internal/history"
	"floorplan/api/internal/layer"
)

type fixture struct {
	layers     *layer.Manager
	store      *annotation.Store
	history    *history.Manager
	viewport   *coords.Viewport
	engine     *calibration.Engine
	controller *Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	layers := layer.NewManager()
	store := annotation.NewStore(layers)
	hist := history.NewManager(0)
	store.Subscribe(hist)
	viewport := coords.NewViewport(0.1, 10)
	engine := calibration.NewEngine()
	return &fixture{
		layers:     layers,
		store:      store,
		history:    hist,
		viewport:   viewport,
		engine:     engine,
		controller: NewController(store, viewport, engine),
	}
}

func (f *fixture) undoDepth() int {
	undo, _ := f.history.Depth()
	return undo
}

func at(x, y float64) PointerEvent { return PointerEvent{X: x, Y: y} }

func mustTool(t *testing.T, c *Controller, tool Tool, kind annotation.Kind) {
	t.Helper()
	var template annotation.Marker
	if kind != "" {
		template = DefaultTemplate(kind)
	}
	if err := c.SetTool(tool, template); err != nil {
		t.Fatalf("SetTool(%s): %v", tool, err)
	}
}

func TestDegenerateRectangleDragIsNoOp(t *testing.T) {
	f := newFixture(t)
	mustTool(t, f.controller, ToolShape, annotation.KindRectangle)

	if err := f.controller.PointerDown(at(100, 100)); err != nil {
		t.Fatalf("PointerDown: %v", err)
	}
	f.controller.PointerMove(at(101, 102))
	if err := f.controller.PointerUp(at(102, 103)); err != nil {
		t.Fatalf("PointerUp: %v", err)
	}

	if len(f.store.List(1)) != 0 {
		t.Fatal("degenerate drag must not add a marker")
	}
	if f.undoDepth() != 0 {
		t.Fatal("degenerate drag must not push history")
	}
}

func TestThinRectangleIsDiscardedSilently(t *testing.T) {
	f := newFixture(t)
	mustTool(t, f.controller, ToolShape, annotation.KindRectangle)
	f.viewport.SetZoom(4)

	f.controller.PointerDown(at(0, 0))
	if err := f.controller.PointerUp(at(200, 2)); err != nil {
		t.Fatalf("expected silent discard, got %v", err)
	}
	if len(f.store.List(1)) != 0 {
		t.Fatal("a 0.5-unit tall rectangle must be rejected")
	}
}

func TestRectangleDragCommitsNormalizedShape(t *testing.T) {
	f := newFixture(t)
	mustTool(t, f.controller, ToolShape, annotation.KindRectangle)
	f.viewport.SetZoom(2)

	f.controller.PointerDown(at(200, 100))
	f.controller.PointerMove(at(150, 150))
	if f.controller.Preview().Marker == nil {
		t.Fatal("expected a live preview")
	}
	if len(f.store.List(1)) != 0 {
		t.Fatal("moves must not touch the store")
	}
	if err := f.controller.PointerUp(at(100, 160)); err != nil {
		t.Fatalf("PointerUp: %v", err)
	}

	markers := f.store.List(1)
	if len(markers) != 1 {
		t.Fatalf("expected 1 marker, got %d", len(markers))
	}
	m := markers[0]
	w, h, _ := m.Size()
	if m.AnchorX != 50 || m.AnchorY != 50 || w != 50 || h != 30 {
		t.Fatalf("unexpected geometry anchor=(%v,%v) size=%vx%v", m.AnchorX, m.AnchorY, w, h)
	}
	if f.controller.Selected() != m.ID {
		t.Fatal("new shape should be selected")
	}
}

func TestPolygonCreationScenario(t *testing.T) {
	f := newFixture(t)
	mustTool(t, f.controller, ToolMultipoint, annotation.KindPolygon)

	for _, p := range []PointerEvent{at(10, 10), at(50, 10), at(50, 50)} {
		if err := f.controller.PointerDown(p); err != nil {
			t.Fatalf("PointerDown: %v", err)
		}
		f.controller.PointerUp(p)
	}
	if got := len(f.controller.Preview().Points); got != 3 {
		t.Fatalf("expected 3 preview points, got %d", got)
	}
	if err := f.controller.DoubleClick(at(10, 50)); err != nil {
		t.Fatalf("DoubleClick: %v", err)
	}

	markers := f.store.List(1)
	if len(markers) != 1 {
		t.Fatalf("expected one polygon, got %d markers", len(markers))
	}
	want := []coords.Point{{X: 10, Y: 10}, {X: 50, Y: 10}, {X: 50, Y: 50}, {X: 10, Y: 50}}
	if diff := cmp.Diff(want, markers[0].Points); diff != "" {
		t.Fatalf("points mismatch (-want +got):\n%s", diff)
	}
	if markers[0].Kind != annotation.KindPolygon {
		t.Fatalf("expected polygon, got %s", markers[0].Kind)
	}
}

func TestDoubleClickAfterOneClickDiscards(t *testing.T) {
	f := newFixture(t)
	mustTool(t, f.controller, ToolMultipoint, annotation.KindPolygon)

	f.controller.PointerDown(at(10, 10))
	f.controller.DoubleClick(at(10, 10))

	if len(f.store.List(1)) != 0 {
		t.Fatal("expected no marker")
	}
	if len(f.controller.Preview().Points) != 0 {
		t.Fatal("in-progress points must be discarded")
	}
}

func TestSwitchingToolDiscardsMultipoint(t *testing.T) {
	f := newFixture(t)
	mustTool(t, f.controller, ToolMultipoint, annotation.KindPolyline)
	f.controller.PointerDown(at(10, 10))
	f.controller.PointerDown(at(40, 10))

	mustTool(t, f.controller, ToolSelect, "")

	if len(f.controller.Preview().Points) != 0 || len(f.store.List(1)) != 0 || f.undoDepth() != 0 {
		t.Fatal("tool switch must discard the in-progress polyline without side effects")
	}
}

func TestEnterFinishesPolyline(t *testing.T) {
	f := newFixture(t)
	mustTool(t, f.controller, ToolMultipoint, annotation.KindPolyline)
	f.controller.PointerDown(at(10, 10))
	f.controller.PointerDown(at(11, 11))
	f.controller.PointerDown(at(60, 10))

	if err := f.controller.Key(KeyEvent{Key: "Enter"}); err != nil {
		t.Fatalf("Key: %v", err)
	}
	markers := f.store.List(1)
	if len(markers) != 1 || len(markers[0].Points) != 2 {
		t.Fatalf("expected a two-point polyline, got %+v", markers)
	}
}

func placeCamera(t *testing.T, f *fixture, x, y float64) annotation.Marker {
	t.Helper()
	mustTool(t, f.controller, ToolPlace, annotation.KindEquipment)
	if err := f.controller.PointerDown(at(x, y)); err != nil {
		t.Fatalf("place: %v", err)
	}
	f.controller.PointerUp(at(x, y))
	m, err := f.store.Get(f.controller.Selected())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return m
}

func TestDragMoveIssuesSingleUpdate(t *testing.T) {
	f := newFixture(t)
	m := placeCamera(t, f, 100, 100)
	mustTool(t, f.controller, ToolSelect, "")
	before := f.undoDepth()

	f.controller.PointerDown(at(100, 100))
	for i := 1; i <= 20; i++ {
		f.controller.PointerMove(at(100+float64(i)*5, 100))
		if got, _ := f.store.Get(m.ID); got.AnchorX != 100 {
			t.Fatalf("move %d touched the store", i)
		}
	}
	if err := f.controller.PointerUp(at(200, 120)); err != nil {
		t.Fatalf("PointerUp: %v", err)
	}

	got, _ := f.store.Get(m.ID)
	if got.AnchorX != 200 || got.AnchorY != 120 || got.Version != 2 {
		t.Fatalf("unexpected final marker %+v", got)
	}
	if f.undoDepth()-before != 1 {
		t.Fatalf("expected exactly one history entry, got %d", f.undoDepth()-before)
	}
}

func TestClickWithoutMoveOnlySelects(t *testing.T) {
	f := newFixture(t)
	m := placeCamera(t, f, 100, 100)
	mustTool(t, f.controller, ToolSelect, "")
	f.controller.Select("")
	before := f.undoDepth()

	f.controller.PointerDown(at(104, 97))
	f.controller.PointerUp(at(104, 97))

	if f.controller.Selected() != m.ID {
		t.Fatal("expected selection")
	}
	if f.undoDepth() != before {
		t.Fatal("a click must not record an update")
	}

	f.controller.PointerDown(at(400, 400))
	if f.controller.Selected() != "" {
		t.Fatal("click on empty canvas must clear selection")
	}
}

func TestHitTestPrefersTopmost(t *testing.T) {
	f := newFixture(t)
	lower := placeCamera(t, f, 100, 100)
	upper := placeCamera(t, f, 103, 100)

	hit, ok := f.controller.HitTest(101, 100)
	if !ok || hit.ID != upper.ID {
		t.Fatalf("expected topmost marker %s, got %s", upper.ID, hit.ID)
	}

	if _, err := f.store.Remove(upper.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	hit, ok = f.controller.HitTest(101, 100)
	if !ok || hit.ID != lower.ID {
		t.Fatalf("expected %s, got %s", lower.ID, hit.ID)
	}
}

func TestHiddenLayerIsNotHittable(t *testing.T) {
	f := newFixture(t)
	hidden, _ := f.layers.Create("Hidden", "#000")
	f.controller.SetActiveLayer(hidden.ID)
	placeCamera(t, f, 100, 100)
	f.layers.SetVisible(hidden.ID, false)

	if _, ok := f.controller.HitTest(100, 100); ok {
		t.Fatal("markers on hidden layers must not be hit")
	}
}

func TestResizeKeepsOppositeCornerAndMinimum(t *testing.T) {
	f := newFixture(t)
	mustTool(t, f.controller, ToolPlace, annotation.KindNote)
	f.controller.PointerDown(at(100, 100))
	note, _ := f.store.Get(f.controller.Selected())
	mustTool(t, f.controller, ToolSelect, "")
	f.controller.Select(note.ID)

	f.controller.PointerDown(at(220, 180))
	f.controller.PointerMove(at(300, 250))
	if err := f.controller.PointerUp(at(260, 230)); err != nil {
		t.Fatalf("PointerUp: %v", err)
	}
	got, _ := f.store.Get(note.ID)
	w, h, _ := got.Size()
	if got.AnchorX != 100 || got.AnchorY != 100 || w != 160 || h != 130 {
		t.Fatalf("unexpected resize result anchor=(%v,%v) %vx%v", got.AnchorX, got.AnchorY, w, h)
	}

	f.controller.PointerDown(at(260, 230))
	if err := f.controller.PointerUp(at(50, 50)); err != nil {
		t.Fatalf("PointerUp: %v", err)
	}
	got, _ = f.store.Get(note.ID)
	w, h, _ = got.Size()
	if got.AnchorX != 100 || got.AnchorY != 100 || w != MinResizeSize || h != MinResizeSize {
		t.Fatalf("expected minimum size at the fixed corner, got anchor=(%v,%v) %vx%v", got.AnchorX, got.AnchorY, w, h)
	}
}

func TestKeyboardShortcuts(t *testing.T) {
	f := newFixture(t)
	m := placeCamera(t, f, 100, 100)
	mustTool(t, f.controller, ToolSelect, "")
	f.controller.Select(m.ID)

	f.controller.Key(KeyEvent{Key: "ArrowRight", Shift: true})
	f.controller.Key(KeyEvent{Key: "ArrowUp"})
	got, _ := f.store.Get(m.ID)
	if got.AnchorX != 110 || got.AnchorY != 99 {
		t.Fatalf("unexpected nudge result (%v,%v)", got.AnchorX, got.AnchorY)
	}

	if err := f.controller.Key(KeyEvent{Key: "d", Ctrl: true}); err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	dup, _ := f.store.Get(f.controller.Selected())
	if dup.ID == m.ID || dup.AnchorX != 120 || dup.AnchorY != 109 {
		t.Fatalf("unexpected duplicate %+v", dup)
	}

	if err := f.controller.Key(KeyEvent{Key: "Delete"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(f.store.List(1)) != 1 || f.controller.Selected() != "" {
		t.Fatal("delete should remove the selected duplicate and clear selection")
	}
}

func TestLockedLayerSurfacesError(t *testing.T) {
	f := newFixture(t)
	l, _ := f.layers.Create("Doors", "#000")
	f.controller.SetActiveLayer(l.ID)
	m := placeCamera(t, f, 100, 100)
	f.layers.SetLocked(l.ID, true)
	mustTool(t, f.controller, ToolSelect, "")

	f.controller.PointerDown(at(100, 100))
	err := f.controller.PointerUp(at(150, 150))
	var locked *layer.LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected LockedError, got %v", err)
	}
	if got, _ := f.store.Get(m.ID); got.AnchorX != 100 {
		t.Fatal("locked marker moved")
	}
}

func TestSetPageCommitsActiveDrag(t *testing.T) {
	f := newFixture(t)
	m := placeCamera(t, f, 100, 100)
	mustTool(t, f.controller, ToolSelect, "")

	f.controller.PointerDown(at(100, 100))
	f.controller.PointerMove(at(130, 100))
	if err := f.controller.SetPage(2); err != nil {
		t.Fatalf("SetPage: %v", err)
	}

	got, _ := f.store.Get(m.ID)
	if got.AnchorX != 130 {
		t.Fatalf("expected the last preview to be committed, got %v", got.AnchorX)
	}
	if f.controller.Page() != 2 || f.controller.Preview().Marker != nil {
		t.Fatal("page change must leave no gesture behind")
	}
}

func TestPanAndWheel(t *testing.T) {
	f := newFixture(t)
	mustTool(t, f.controller, ToolPan, "")

	f.controller.PointerDown(at(10, 10))
	f.controller.PointerMove(at(40, 30))
	f.controller.PointerUp(at(50, 20))
	if f.viewport.PanX != 40 || f.viewport.PanY != 10 {
		t.Fatalf("unexpected pan (%v,%v)", f.viewport.PanX, f.viewport.PanY)
	}

	zoom := f.controller.Wheel(at(0, 0), -120)
	if zoom <= 1 {
		t.Fatalf("expected zoom in, got %v", zoom)
	}
}

func TestCalibrateToolCapturesPoints(t *testing.T) {
	f := newFixture(t)
	mustTool(t, f.controller, ToolCalibrate, "")
	f.controller.PointerDown(at(0, 0))
	f.controller.PointerDown(at(100, 0))

	if f.engine.State() != calibration.StateAwaitingDistance {
		t.Fatalf("expected awaiting distance, got %s", f.engine.State())
	}
	if got := len(f.controller.Preview().Calibration); got != 2 {
		t.Fatalf("expected 2 calibration points in preview, got %d", got)
	}
	if _, err := f.engine.Commit(50, calibration.Feet); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestSetToolRejectsMismatchedTemplate(t *testing.T) {
	f := newFixture(t)
	err := f.controller.SetTool(ToolShape, DefaultTemplate(annotation.KindPolygon))
	var mismatch *KindMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected KindMismatchError, got %v", err)
	}
}
