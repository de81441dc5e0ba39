package coords

import (
	"context"
	"fmt"
)

// PageSize is the size of a page in document units (PDF points).
type PageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// StaticRenderer reports render dimensions for pages of known size at a
// fixed resolution. It stands in for the real page rasterizer, which only
// needs to agree on the scale it used.
type StaticRenderer struct {
	Pages []PageSize
	// DPI is the render resolution at zoom 1. PDF points are 1/72 inch.
	DPI float64
}

func (r StaticRenderer) Render(_ context.Context, page int, zoom float64) (PageRender, error) {
	if page < 1 || page > len(r.Pages) {
		return PageRender{}, fmt.Errorf("page %d out of range [1,%d]", page, len(r.Pages))
	}
	if zoom <= 0 {
		return PageRender{}, fmt.Errorf("invalid zoom %v", zoom)
	}
	dpi := r.DPI
	if dpi <= 0 {
		dpi = 72
	}
	scale := dpi / 72
	size := r.Pages[page-1]
	return PageRender{
		RenderedWidth:         size.Width * scale * zoom,
		RenderedHeight:        size.Height * scale * zoom,
		DocumentToRenderScale: scale,
	}, nil
}
