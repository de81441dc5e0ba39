package coords

import (
	"context"
	"fmt"
	"math"

	"seehuhn.de/go/geom/matrix"
)

const (
	DefaultMinZoom = 0.1
	DefaultMaxZoom = 10.0
)

// PageRender is what the external page renderer reports for a page at a
// given zoom.
type PageRender struct {
	RenderedWidth         float64 `json:"renderedWidth"`
	RenderedHeight        float64 `json:"renderedHeight"`
	DocumentToRenderScale float64 `json:"documentToRenderScale"`
}

// PageRenderer produces the pixel dimensions of a rendered page.
type PageRenderer interface {
	Render(ctx context.Context, page int, zoom float64) (PageRender, error)
}

// Viewport holds the pan/zoom state layered on top of the renderer output.
// Document-space values never change when the viewport does.
type Viewport struct {
	ZoomScale float64    `json:"zoomScale"`
	PanX      float64    `json:"panX"`
	PanY      float64    `json:"panY"`
	OriginX   float64    `json:"originX"`
	OriginY   float64    `json:"originY"`
	MinZoom   float64    `json:"minZoom"`
	MaxZoom   float64    `json:"maxZoom"`
	Render    PageRender `json:"render"`
}

func NewViewport(minZoom, maxZoom float64) *Viewport {
	if minZoom <= 0 {
		minZoom = DefaultMinZoom
	}
	if maxZoom < minZoom {
		maxZoom = DefaultMaxZoom
	}
	return &Viewport{
		ZoomScale: 1,
		MinZoom:   minZoom,
		MaxZoom:   maxZoom,
		Render:    PageRender{DocumentToRenderScale: 1},
	}
}

// Scale is the number of screen pixels per document unit.
func (v *Viewport) Scale() float64 {
	base := v.Render.DocumentToRenderScale
	if base <= 0 {
		base = 1
	}
	return base * v.ZoomScale
}

// Matrix maps document space to screen space.
func (v *Viewport) Matrix() matrix.Matrix {
	s := v.Scale()
	return matrix.Matrix{s, 0, 0, s, v.OriginX + v.PanX, v.OriginY + v.PanY}
}

// InverseMatrix maps screen space to document space.
func (v *Viewport) InverseMatrix() matrix.Matrix {
	return v.Matrix().Inv()
}

func (v *Viewport) ToScreenSpace(docX, docY float64) (float64, float64) {
	return v.Matrix().Apply(docX, docY)
}

func (v *Viewport) ToDocumentSpace(screenX, screenY float64) (float64, float64) {
	return v.InverseMatrix().Apply(screenX, screenY)
}

// ScreenPoint converts a document point into screen space.
func (v *Viewport) ScreenPoint(p Point) Point {
	x, y := v.ToScreenSpace(p.X, p.Y)
	return Point{X: x, Y: y}
}

// DocumentPoint converts a screen point into document space.
func (v *Viewport) DocumentPoint(p Point) Point {
	x, y := v.ToDocumentSpace(p.X, p.Y)
	return Point{X: x, Y: y}
}

// ScreenToDocumentLength converts a screen distance in pixels into document
// units at the current zoom.
func (v *Viewport) ScreenToDocumentLength(pixels float64) float64 {
	return pixels / v.Scale()
}

func (v *Viewport) DocumentToScreenLength(units float64) float64 {
	return units * v.Scale()
}

// SetZoom clamps zoom into [MinZoom, MaxZoom] and returns the applied value.
func (v *Viewport) SetZoom(zoom float64) float64 {
	if math.IsNaN(zoom) || zoom <= 0 {
		return v.ZoomScale
	}
	v.ZoomScale = math.Max(v.MinZoom, math.Min(v.MaxZoom, zoom))
	return v.ZoomScale
}

// ZoomAt multiplies the zoom by factor while keeping the document point
// under (screenX, screenY) in place.
func (v *Viewport) ZoomAt(screenX, screenY, factor float64) float64 {
	docX, docY := v.ToDocumentSpace(screenX, screenY)
	v.SetZoom(v.ZoomScale * factor)
	s := v.Scale()
	v.PanX = screenX - v.OriginX - docX*s
	v.PanY = screenY - v.OriginY - docY*s
	return v.ZoomScale
}

func (v *Viewport) SetPan(x, y float64) {
	v.PanX = x
	v.PanY = y
}

func (v *Viewport) PanBy(dx, dy float64) {
	v.PanX += dx
	v.PanY += dy
}

func (v *Viewport) SetOrigin(x, y float64) {
	v.OriginX = x
	v.OriginY = y
}

// ApplyRender installs new renderer output.
func (v *Viewport) ApplyRender(render PageRender) error {
	if render.DocumentToRenderScale <= 0 {
		return fmt.Errorf("invalid document-to-render scale %v", render.DocumentToRenderScale)
	}
	v.Render = render
	return nil
}

// Refresh asks the renderer for the page at the current zoom and applies it.
func (v *Viewport) Refresh(ctx context.Context, renderer PageRenderer, page int) error {
	if renderer == nil {
		return nil
	}
	render, err := renderer.Render(ctx, page, v.ZoomScale)
	if err != nil {
		return fmt.Errorf("render page %d: %w", page, err)
	}
	return v.ApplyRender(render)
}
