// Package editor composes the annotation components into one editing
// session per document.
package editor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"floorplan/api/internal/annotation"
	"floorplan/api/internal/calibration"
	"floorplan/api/internal/checkpoint"
	"floorplan/api/internal/coords"
	"floorplan/api/internal/history"
	"floorplan/api/internal/interaction"
	"floorplan/api/internal/layer"
	"floorplan/api/internal/store"
	"floorplan/api/internal/syncer"
)

var (
	ErrPageOutOfRange      = errors.New("page out of range")
	ErrCheckpointsDisabled = errors.New("checkpoints are not configured")
)

// letter is used for documents that carry no page sizes.
var letter = coords.PageSize{Width: 612, Height: 792}

type Options struct {
	HistoryLimit int
	MinZoom      float64
	MaxZoom      float64
	// Renderer defaults to a StaticRenderer over the document's page sizes.
	Renderer    coords.PageRenderer
	Observers   []syncer.MarkerObserver
	Checkpoints *checkpoint.Service
}

// Session is the editing state of one document. It is not safe for
// concurrent use; the app serializes calls per session.
type Session struct {
	doc         store.Document
	backend     syncer.Backend
	renderer    coords.PageRenderer
	checkpoints *checkpoint.Service

	viewport    *coords.Viewport
	layers      *layer.Manager
	markers     *annotation.Store
	history     *history.Manager
	calibration *calibration.Engine
	controller  *interaction.Controller
	adapter     *syncer.Adapter

	notices  []Notice
	lastUsed time.Time
}

// Open loads the document's layers, markers and calibrations from the
// backend and shows the first page.
func Open(ctx context.Context, backend syncer.Backend, doc store.Document, opts Options) (*Session, error) {
	if len(doc.Pages) == 0 {
		doc.Pages = []coords.PageSize{letter}
	}
	renderer := opts.Renderer
	if renderer == nil {
		renderer = coords.StaticRenderer{Pages: doc.Pages, DPI: doc.DPI}
	}

	s := &Session{
		doc:         doc,
		backend:     backend,
		renderer:    renderer,
		checkpoints: opts.Checkpoints,
		viewport:    coords.NewViewport(opts.MinZoom, opts.MaxZoom),
		layers:      layer.NewManager(),
		history:     history.NewManager(opts.HistoryLimit),
		calibration: calibration.NewEngine(),
		lastUsed:    time.Now(),
	}
	s.markers = annotation.NewStore(s.layers)
	s.controller = interaction.NewController(s.markers, s.viewport, s.calibration)
	s.adapter = syncer.NewAdapter(doc.ID, backend, s)
	for _, o := range opts.Observers {
		s.adapter.Observe(o)
	}

	layers, err := backend.ListLayers(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("load layers: %w", err)
	}
	s.layers.Load(layers)
	for page := 1; page <= doc.PageCount(); page++ {
		if err := s.loadPage(ctx, page); err != nil {
			return nil, err
		}
	}

	// Subscribe after loading so persisted state is neither recorded nor
	// queued.
	s.markers.Subscribe(s.history)
	s.markers.Subscribe(s.adapter)
	s.layers.Subscribe(s.adapter)

	if err := s.viewport.Refresh(ctx, s.renderer, 1); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) loadPage(ctx context.Context, page int) error {
	markers, err := s.backend.ListMarkers(ctx, s.doc.ID, page)
	if err != nil {
		return fmt.Errorf("load markers of page %d: %w", page, err)
	}
	records, err := s.backend.ListCalibration(ctx, s.doc.ID, page)
	if err != nil {
		return fmt.Errorf("load calibration of page %d: %w", page, err)
	}
	s.markers.Load(page, markers)
	s.calibration.Load(page, records)
	return nil
}

func (s *Session) Document() store.Document { return s.doc }

func (s *Session) Touch(now time.Time) { s.lastUsed = now }

func (s *Session) LastUsed() time.Time { return s.lastUsed }

func (s *Session) Page() int { return s.controller.Page() }

func (s *Session) Viewport() coords.Viewport { return *s.viewport }

// View is the session summary handed to clients.
type View struct {
	DocumentID   string              `json:"documentId"`
	Title        string              `json:"title"`
	PageCount    int                 `json:"pageCount"`
	Page         int                 `json:"page"`
	Viewport     coords.Viewport     `json:"viewport"`
	Controller   interaction.State   `json:"controller"`
	Calibration  calibration.State   `json:"calibrationState"`
	ActiveRecord *calibration.Record `json:"activeCalibration,omitempty"`
	Layers       []layer.Layer       `json:"layers"`
	Preview      interaction.Preview `json:"preview"`
	CanUndo      bool                `json:"canUndo"`
	CanRedo      bool                `json:"canRedo"`
	PendingSync  int                 `json:"pendingSync"`
	Notices      []Notice            `json:"notices"`
}

func (s *Session) View() View {
	v := View{
		DocumentID:  s.doc.ID,
		Title:       s.doc.Title,
		PageCount:   s.doc.PageCount(),
		Page:        s.controller.Page(),
		Viewport:    *s.viewport,
		Controller:  s.controller.State(),
		Calibration: s.calibration.State(),
		Layers:      s.layers.List(),
		Preview:     s.controller.Preview(),
		CanUndo:     s.history.CanUndo(),
		CanRedo:     s.history.CanRedo(),
		PendingSync: s.adapter.Pending(),
		Notices:     s.Notices(),
	}
	if record, ok := s.calibration.Active(v.Page); ok {
		v.ActiveRecord = &record
	}
	return v
}

// GoToPage switches the active page and re-renders it at the current zoom.
func (s *Session) GoToPage(ctx context.Context, page int) error {
	if page < 1 || page > s.doc.PageCount() {
		return fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, page, s.doc.PageCount())
	}
	if err := s.controller.SetPage(page); err != nil {
		return err
	}
	return s.viewport.Refresh(ctx, s.renderer, page)
}

func (s *Session) SetZoom(ctx context.Context, zoom float64) (float64, error) {
	applied := s.viewport.SetZoom(zoom)
	return applied, s.viewport.Refresh(ctx, s.renderer, s.Page())
}

func (s *Session) SetPan(x, y float64) {
	s.viewport.SetPan(x, y)
}

// SetOrigin records where the rendered page sits inside its container.
func (s *Session) SetOrigin(x, y float64) {
	s.viewport.SetOrigin(x, y)
}

func (s *Session) Wheel(ctx context.Context, e interaction.PointerEvent, deltaY float64) (float64, error) {
	applied := s.controller.Wheel(e, deltaY)
	return applied, s.viewport.Refresh(ctx, s.renderer, s.Page())
}

func (s *Session) SetTool(tool interaction.Tool, template annotation.Marker) error {
	return s.controller.SetTool(tool, template)
}

func (s *Session) Select(id string) {
	if id != "" {
		id = s.markers.Resolve(id)
	}
	s.controller.Select(id)
}

func (s *Session) SetActiveLayer(id string) error {
	if id != "" {
		if _, ok := s.layers.Lookup(id); !ok {
			return layer.ErrNotFound
		}
	}
	s.controller.SetActiveLayer(id)
	return nil
}

func (s *Session) PointerDown(e interaction.PointerEvent) error { return s.controller.PointerDown(e) }

func (s *Session) PointerMove(e interaction.PointerEvent) error { return s.controller.PointerMove(e) }

func (s *Session) PointerUp(e interaction.PointerEvent) error { return s.controller.PointerUp(e) }

func (s *Session) DoubleClick(e interaction.PointerEvent) error { return s.controller.DoubleClick(e) }

// Key handles the undo and redo shortcuts and hands everything else to the
// controller.
func (s *Session) Key(e interaction.KeyEvent) error {
	mod := e.Ctrl || e.Meta
	switch {
	case mod && (e.Key == "z" || e.Key == "Z") && !e.Shift:
		s.Undo()
		return nil
	case mod && ((e.Key == "z" || e.Key == "Z") && e.Shift || e.Key == "y" || e.Key == "Y"):
		s.Redo()
		return nil
	}
	return s.controller.Key(e)
}

func (s *Session) Markers(page int) []annotation.Marker {
	return s.markers.List(page)
}

func (s *Session) VisibleMarkers(page int) []annotation.Marker {
	return s.markers.ListVisible(page)
}

func (s *Session) Marker(id string) (annotation.Marker, error) {
	return s.markers.Get(id)
}

// AddMarker creates a marker directly, on the active page unless the marker
// names one.
func (s *Session) AddMarker(m annotation.Marker) (annotation.Marker, error) {
	if m.PageNumber == 0 {
		m.PageNumber = s.Page()
	}
	if m.PageNumber < 1 || m.PageNumber > s.doc.PageCount() {
		return annotation.Marker{}, fmt.Errorf("%w: %d", ErrPageOutOfRange, m.PageNumber)
	}
	return s.markers.Add(m.WithDefaults())
}

func (s *Session) UpdateMarker(id string, patch annotation.Patch) (annotation.Marker, error) {
	return s.markers.Update(id, patch)
}

func (s *Session) DeleteMarker(id string) error {
	removed, err := s.markers.Remove(id)
	if err != nil {
		return err
	}
	if s.controller.Selected() == removed.ID {
		s.controller.Select("")
	}
	return nil
}

func (s *Session) DuplicateMarker(id string) (annotation.Marker, error) {
	dup, err := s.markers.Duplicate(id, interaction.DuplicateOffset, interaction.DuplicateOffset)
	if err != nil {
		return annotation.Marker{}, err
	}
	s.controller.Select(dup.ID)
	return dup, nil
}

// Undo restores the previous snapshot and queues the difference for sync.
func (s *Session) Undo() bool {
	_, changes, ok := s.history.Undo(s.markers)
	s.afterRestore(changes)
	return ok
}

func (s *Session) Redo() bool {
	_, changes, ok := s.history.Redo(s.markers)
	s.afterRestore(changes)
	return ok
}

func (s *Session) afterRestore(changes []annotation.Change) {
	for _, c := range changes {
		s.adapter.EnqueueMarker(c, "")
	}
	if selected := s.controller.Selected(); selected != "" {
		if _, err := s.markers.Get(selected); err != nil {
			s.controller.Select("")
		}
	}
	s.controller.Cancel()
}

func (s *Session) Layers() []layer.Layer { return s.layers.List() }

func (s *Session) CreateLayer(name, color string) (layer.Layer, error) {
	return s.layers.Create(name, color)
}

// LayerUpdate lists layer attribute changes. Nil fields stay unchanged.
type LayerUpdate struct {
	Name       *string  `json:"name,omitempty"`
	Color      *string  `json:"color,omitempty"`
	Visible    *bool    `json:"visible,omitempty"`
	Locked     *bool    `json:"locked,omitempty"`
	Opacity    *float64 `json:"opacity,omitempty"`
	OrderIndex *int     `json:"orderIndex,omitempty"`
}

func (s *Session) UpdateLayer(id string, u LayerUpdate) (layer.Layer, error) {
	if _, ok := s.layers.Lookup(id); !ok {
		return layer.Layer{}, layer.ErrNotFound
	}
	if u.Name != nil {
		if _, err := s.layers.Rename(id, *u.Name); err != nil {
			return layer.Layer{}, err
		}
	}
	if u.Color != nil {
		if _, err := s.layers.SetColor(id, *u.Color); err != nil {
			return layer.Layer{}, err
		}
	}
	if u.Opacity != nil {
		if _, err := s.layers.SetOpacity(id, *u.Opacity); err != nil {
			return layer.Layer{}, err
		}
	}
	if u.Visible != nil {
		if _, err := s.layers.SetVisible(id, *u.Visible); err != nil {
			return layer.Layer{}, err
		}
	}
	if u.Locked != nil {
		if _, err := s.layers.SetLocked(id, *u.Locked); err != nil {
			return layer.Layer{}, err
		}
	}
	if u.OrderIndex != nil {
		if _, err := s.layers.Reorder(id, *u.OrderIndex); err != nil {
			return layer.Layer{}, err
		}
	}
	l, _ := s.layers.Lookup(id)
	return l, nil
}

// DeleteLayer applies the orphan policy to the layer's markers as one
// undoable mutation, then removes the layer.
func (s *Session) DeleteLayer(id string, policy layer.Policy) error {
	if err := s.layers.Delete(id, policy, s.markers); err != nil {
		return err
	}
	if s.controller.State().Layer == id {
		s.controller.SetActiveLayer("")
	}
	return nil
}

// CommitCalibration finishes the two-point capture on the active page.
func (s *Session) CommitCalibration(realWorldDistance float64, unit calibration.Unit) (calibration.Record, error) {
	record, err := s.calibration.Commit(realWorldDistance, unit)
	if err != nil {
		return calibration.Record{}, err
	}
	s.adapter.QueueCalibration(record)
	return record, nil
}

func (s *Session) CancelCalibration() {
	s.calibration.Cancel()
}

func (s *Session) Calibrations(page int) []calibration.Record {
	return s.calibration.Records(page)
}

// Measure converts the document distance between two points with the
// page's active calibration.
func (s *Session) Measure(page int, a, b coords.Point, unit calibration.Unit) (float64, error) {
	record, ok := s.calibration.Active(page)
	if !ok {
		return 0, calibration.ErrNotCalibrated
	}
	if unit != "" && unit != record.Unit {
		converted, err := record.Convert(unit)
		if err != nil {
			return 0, err
		}
		record = converted
	}
	return record.Measure(a, b), nil
}

// RekeyMarker follows a marker id the backend assigned.
func (s *Session) RekeyMarker(localID, serverID string) {
	s.markers.Rekey(localID, serverID)
	s.history.Remap(localID, serverID)
	s.controller.RenameSelection(localID, serverID)
}

func (s *Session) RekeyLayer(localID, serverID string) {
	s.layers.Rekey(localID, serverID)
	s.markers.RenameLayer(localID, serverID)
	s.history.RemapLayer(localID, serverID)
	if s.controller.State().Layer == localID {
		s.controller.SetActiveLayer(serverID)
	}
}

func (s *Session) RekeyCalibration(localID, serverID string) {
	s.calibration.Rekey(localID, serverID)
}
