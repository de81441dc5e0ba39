package coords

import (
	"context"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
	"seehuhn.de/go/geom/matrix"
)

func near(a, b float64) bool {
	return scalar.EqualWithinAbsOrRel(a, b, 1e-9, 1e-9)
}

func TestRoundTripAcrossZoomAndPan(t *testing.T) {
	points := []Point{{0, 0}, {100, 0}, {-3.5, 812.25}, {612, 792}, {1e-4, 1e5}}
	zooms := []float64{0.1, 0.37, 1, 2.5, 10}
	pans := [][2]float64{{0, 0}, {-250.5, 40}, {1200, -987.125}}

	for _, zoom := range zooms {
		for _, pan := range pans {
			v := NewViewport(0.1, 10)
			if err := v.ApplyRender(PageRender{DocumentToRenderScale: 1.5}); err != nil {
				t.Fatalf("ApplyRender: %v", err)
			}
			v.SetOrigin(12, 34)
			v.SetZoom(zoom)
			v.SetPan(pan[0], pan[1])
			for _, p := range points {
				sx, sy := v.ToScreenSpace(p.X, p.Y)
				dx, dy := v.ToDocumentSpace(sx, sy)
				if !near(dx, p.X) || !near(dy, p.Y) {
					t.Fatalf("zoom=%v pan=%v: round trip %v -> (%v,%v)", zoom, pan, p, dx, dy)
				}
			}
		}
	}
}

func TestToDocumentSpaceFormula(t *testing.T) {
	v := NewViewport(0.1, 10)
	_ = v.ApplyRender(PageRender{DocumentToRenderScale: 2})
	v.SetOrigin(10, 20)
	v.SetPan(30, 40)
	v.SetZoom(2)

	x, y := v.ToDocumentSpace(240, 260)
	if !near(x, 50) || !near(y, 50) {
		t.Fatalf("expected (50,50), got (%v,%v)", x, y)
	}
}

func TestInverseMatrixUndoesMatrix(t *testing.T) {
	v := NewViewport(0.1, 10)
	_ = v.ApplyRender(PageRender{DocumentToRenderScale: 1.25})
	v.SetOrigin(-7, 19)
	v.SetPan(3.5, -44)
	v.SetZoom(3)

	m := v.Matrix().Mul(v.InverseMatrix())
	want := matrix.Identity
	for i := range m {
		if !near(m[i], want[i]) {
			t.Fatalf("matrix times inverse = %v, want identity", m)
		}
	}
	sx, sy := v.ToScreenSpace(10, 20)
	if !near(sx, -7+3.5+10*3.75) || !near(sy, 19-44+20*3.75) {
		t.Fatalf("unexpected screen point (%v,%v)", sx, sy)
	}
}

func TestSetZoomClamps(t *testing.T) {
	v := NewViewport(0.1, 10)
	if got := v.SetZoom(50); got != 10 {
		t.Fatalf("expected clamp to 10, got %v", got)
	}
	if got := v.SetZoom(0.01); got != 0.1 {
		t.Fatalf("expected clamp to 0.1, got %v", got)
	}
	if got := v.SetZoom(-1); got != 0.1 {
		t.Fatalf("non-positive zoom should be ignored, got %v", got)
	}
}

func TestZoomAtKeepsCursorPoint(t *testing.T) {
	v := NewViewport(0.1, 10)
	v.SetPan(15, -8)
	beforeX, beforeY := v.ToDocumentSpace(200, 150)

	v.ZoomAt(200, 150, 3)

	afterX, afterY := v.ToDocumentSpace(200, 150)
	if !near(beforeX, afterX) || !near(beforeY, afterY) {
		t.Fatalf("cursor point moved: (%v,%v) -> (%v,%v)", beforeX, beforeY, afterX, afterY)
	}
	if v.ZoomScale != 3 {
		t.Fatalf("expected zoom 3, got %v", v.ZoomScale)
	}
}

func TestScreenToDocumentLengthFollowsZoom(t *testing.T) {
	v := NewViewport(0.1, 10)
	v.SetZoom(2)
	if got := v.ScreenToDocumentLength(5); !near(got, 2.5) {
		t.Fatalf("expected 2.5, got %v", got)
	}
	v.SetZoom(0.5)
	if got := v.ScreenToDocumentLength(5); !near(got, 10) {
		t.Fatalf("expected 10, got %v", got)
	}
}

func TestApplyRenderRejectsZeroScale(t *testing.T) {
	v := NewViewport(0.1, 10)
	if err := v.ApplyRender(PageRender{}); err == nil {
		t.Fatal("expected error for zero scale")
	}
	if v.Scale() != 1 {
		t.Fatalf("scale should be unchanged, got %v", v.Scale())
	}
}

func TestStaticRendererRefresh(t *testing.T) {
	renderer := StaticRenderer{Pages: []PageSize{{Width: 612, Height: 792}}, DPI: 144}
	v := NewViewport(0.1, 10)
	v.SetZoom(2)
	if err := v.Refresh(context.Background(), renderer, 1); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if v.Render.DocumentToRenderScale != 2 {
		t.Fatalf("expected render scale 2, got %v", v.Render.DocumentToRenderScale)
	}
	if v.Render.RenderedWidth != 612*2*2 {
		t.Fatalf("unexpected rendered width %v", v.Render.RenderedWidth)
	}
	if err := v.Refresh(context.Background(), renderer, 2); err == nil {
		t.Fatal("expected out of range error")
	}
}

func TestInPolygonAndSegmentDistance(t *testing.T) {
	square := []Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	if !InPolygon(Point{5, 5}, square) {
		t.Fatal("center should be inside")
	}
	if InPolygon(Point{15, 5}, square) {
		t.Fatal("point outside reported inside")
	}
	if d := SegmentDistance(Point{5, 3}, Point{0, 0}, Point{10, 0}); !near(d, 3) {
		t.Fatalf("expected 3, got %v", d)
	}
	if d := SegmentDistance(Point{-4, 3}, Point{0, 0}, Point{10, 0}); !near(d, 5) {
		t.Fatalf("expected 5, got %v", d)
	}
}
