package editor

import (
	"floorplan/api/internal/render"
)

// Frame is everything a canvas needs to draw the active page.
type Frame struct {
	Page     int              `json:"page"`
	Width    float64          `json:"width"`
	Height   float64          `json:"height"`
	Scale    float64          `json:"scale"`
	Commands []render.Command `json:"commands"`
}

// DrawCommands builds the draw list of the active page, including the
// gesture preview.
func (s *Session) DrawCommands() []render.Command {
	page := s.Page()
	preview := s.controller.Preview()
	return render.Build(render.Input{
		Markers:        s.markers.ListVisible(page),
		Layers:         s.layers,
		Viewport:       s.viewport,
		Selected:       s.controller.Selected(),
		Preview:        preview.Marker,
		ReplacesID:     preview.ReplacesID,
		InProgress:     preview.Points,
		InProgressKind: preview.PointsKind,
	})
}

func (s *Session) Frame() Frame {
	return Frame{
		Page:     s.Page(),
		Width:    s.viewport.Render.RenderedWidth,
		Height:   s.viewport.Render.RenderedHeight,
		Scale:    s.viewport.Scale(),
		Commands: s.DrawCommands(),
	}
}

// SVG renders the active page's overlay at the rendered page size.
func (s *Session) SVG() string {
	frame := s.Frame()
	return render.SVG(frame.Commands, frame.Width, frame.Height)
}
