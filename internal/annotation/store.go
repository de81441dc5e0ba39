package annotation

import (
	"sort"
	"time"

	"floorplan/api/internal/layer"
	"floorplan/api/internal/util"
)

const (
	OpAdd                = "add"
	OpUpdate             = "update"
	OpRemove             = "remove"
	OpDuplicate          = "duplicate"
	OpReassignLayer      = "reassign-layer"
	OpRemoveLayerMarkers = "remove-layer-markers"
	OpReplacePage        = "replace-page"
)

// Change is one marker transition. Before is nil for a creation and After
// is nil for a removal.
type Change struct {
	Before *Marker
	After  *Marker
}

// MarkerID returns the id the change concerns.
func (c Change) MarkerID() string {
	if c.After != nil {
		return c.After.ID
	}
	if c.Before != nil {
		return c.Before.ID
	}
	return ""
}

// Mutation describes a recorded store operation. Snapshots holds the full
// pre-mutation collection of every page it touched.
type Mutation struct {
	ID        string
	Op        string
	Snapshots map[int][]Marker
	Changes   []Change
}

type Observer interface {
	MarkersChanged(m Mutation)
}

// Layers resolves the layer a marker points at.
type Layers interface {
	Lookup(id string) (layer.Layer, bool)
}

// Store is the authoritative marker collection of one document. It is not
// safe for concurrent use; callers serialize access.
type Store struct {
	markers   map[string]Marker
	aliases   map[string]string
	seq       uint64
	layers    Layers
	observers []Observer
	now       func() time.Time
}

func NewStore(layers Layers) *Store {
	return &Store{
		markers: map[string]Marker{},
		aliases: map[string]string{},
		layers:  layers,
		now:     time.Now,
	}
}

func (s *Store) Subscribe(o Observer) {
	s.observers = append(s.observers, o)
}

func (s *Store) record(op string, snapshots map[int][]Marker, changes []Change) Mutation {
	m := Mutation{ID: util.NewID("mut"), Op: op, Snapshots: snapshots, Changes: changes}
	for _, o := range s.observers {
		o.MarkersChanged(m)
	}
	return m
}

// Resolve follows local-to-server id remappings.
func (s *Store) Resolve(id string) string {
	for i := 0; i < 8; i++ {
		next, ok := s.aliases[id]
		if !ok {
			return id
		}
		id = next
	}
	return id
}

func (s *Store) Get(id string) (Marker, error) {
	m, ok := s.markers[s.Resolve(id)]
	if !ok {
		return Marker{}, &NotFoundError{ID: id}
	}
	return m.Clone(), nil
}

// List returns the page's markers in creation order, visible or not.
func (s *Store) List(page int) []Marker {
	out := []Marker{}
	for _, m := range s.markers {
		if m.PageNumber == page {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// ListLayer returns every marker of a layer across pages.
func (s *Store) ListLayer(layerID string) []Marker {
	out := []Marker{}
	for _, m := range s.markers {
		if m.LayerID == layerID {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PageNumber != out[j].PageNumber {
			return out[i].PageNumber < out[j].PageNumber
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out
}

// Snapshot is the page collection as stored by history.
func (s *Store) Snapshot(page int) []Marker {
	return s.List(page)
}

func (s *Store) Pages() []int {
	seen := map[int]bool{}
	for _, m := range s.markers {
		seen[m.PageNumber] = true
	}
	pages := make([]int, 0, len(seen))
	for page := range seen {
		pages = append(pages, page)
	}
	sort.Ints(pages)
	return pages
}

// ListVisible returns the page's markers in paint order: ascending layer
// order with markers without a layer first, then creation order. Markers of
// hidden layers are left out.
func (s *Store) ListVisible(page int) []Marker {
	type ranked struct {
		marker Marker
		order  int
	}
	items := []ranked{}
	for _, m := range s.List(page) {
		order := -1
		if m.LayerID != "" && s.layers != nil {
			l, ok := s.layers.Lookup(m.LayerID)
			if ok {
				if !l.Visible {
					continue
				}
				order = l.OrderIndex
			}
		}
		items = append(items, ranked{marker: m, order: order})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].order < items[j].order })
	out := make([]Marker, len(items))
	for i := range items {
		out[i] = items[i].marker
	}
	return out
}

func (s *Store) snapshots(pages ...int) map[int][]Marker {
	out := make(map[int][]Marker, len(pages))
	for _, page := range pages {
		if _, ok := out[page]; !ok {
			out[page] = s.Snapshot(page)
		}
	}
	return out
}

// checkLayer rejects unknown and locked target layers.
func (s *Store) checkLayer(layerID string) error {
	if layerID == "" || s.layers == nil {
		return nil
	}
	l, ok := s.layers.Lookup(layerID)
	if !ok {
		return invalid("layerId", "unknown layer "+layerID)
	}
	if l.Locked {
		return &layer.LockedError{LayerID: l.ID, Name: l.Name}
	}
	return nil
}

// checkUnlocked only rejects locked layers; markers may still point at a
// layer that is gone.
func (s *Store) checkUnlocked(layerID string) error {
	if layerID == "" || s.layers == nil {
		return nil
	}
	if l, ok := s.layers.Lookup(layerID); ok && l.Locked {
		return &layer.LockedError{LayerID: l.ID, Name: l.Name}
	}
	return nil
}

func (s *Store) Add(m Marker) (Marker, error) {
	return s.add(OpAdd, m)
}

func (s *Store) add(op string, m Marker) (Marker, error) {
	m = normalize(m.Clone())
	if err := Validate(m); err != nil {
		return Marker{}, err
	}
	if err := s.checkLayer(m.LayerID); err != nil {
		return Marker{}, err
	}
	snapshots := s.snapshots(m.PageNumber)
	now := s.now().UTC()
	s.seq++
	m.ID = util.NewLocalID()
	m.Version = 1
	m.CreatedAt = now
	m.UpdatedAt = now
	m.Sequence = s.seq
	s.markers[m.ID] = m

	after := m.Clone()
	s.record(op, snapshots, []Change{{After: &after}})
	return m.Clone(), nil
}

func (s *Store) Update(id string, patch Patch) (Marker, error) {
	id = s.Resolve(id)
	current, ok := s.markers[id]
	if !ok {
		return Marker{}, &NotFoundError{ID: id}
	}
	if err := s.checkUnlocked(current.LayerID); err != nil {
		return Marker{}, err
	}
	next := normalize(patch.Apply(current))
	if next.LayerID != current.LayerID {
		if err := s.checkLayer(next.LayerID); err != nil {
			return Marker{}, err
		}
	}
	if err := Validate(next); err != nil {
		return Marker{}, err
	}
	if Diff(current, next).IsEmpty() {
		return current.Clone(), nil
	}
	snapshots := s.snapshots(current.PageNumber)
	next.Version = current.Version + 1
	next.UpdatedAt = s.now().UTC()
	s.markers[id] = next

	before, after := current.Clone(), next.Clone()
	s.record(OpUpdate, snapshots, []Change{{Before: &before, After: &after}})
	return next.Clone(), nil
}

func (s *Store) Remove(id string) (Marker, error) {
	id = s.Resolve(id)
	current, ok := s.markers[id]
	if !ok {
		return Marker{}, &NotFoundError{ID: id}
	}
	if err := s.checkUnlocked(current.LayerID); err != nil {
		return Marker{}, err
	}
	snapshots := s.snapshots(current.PageNumber)
	delete(s.markers, id)

	before := current.Clone()
	s.record(OpRemove, snapshots, []Change{{Before: &before}})
	return current.Clone(), nil
}

// Duplicate copies a marker shifted by (dx, dy) document units. Coordinates
// are absolute, so the copy is not clamped to the page.
func (s *Store) Duplicate(id string, dx, dy float64) (Marker, error) {
	source, err := s.Get(id)
	if err != nil {
		return Marker{}, err
	}
	copied := source.Translate(dx, dy)
	copied.ID = ""
	copied.Version = 0
	copied.CreatedAt = time.Time{}
	copied.UpdatedAt = time.Time{}
	copied.Sequence = 0
	return s.add(OpDuplicate, copied)
}

// ReassignLayer moves every marker of from onto to as one mutation.
func (s *Store) ReassignLayer(from, to string) error {
	if err := s.checkUnlocked(from); err != nil {
		return err
	}
	if err := s.checkLayer(to); err != nil {
		return err
	}
	affected := s.ListLayer(from)
	if len(affected) == 0 {
		return nil
	}
	snapshots := s.snapshots(pagesOf(affected)...)
	now := s.now().UTC()
	changes := make([]Change, 0, len(affected))
	for _, m := range affected {
		next := m.Clone()
		next.LayerID = to
		next.Version++
		next.UpdatedAt = now
		s.markers[m.ID] = next
		before, after := m, next.Clone()
		changes = append(changes, Change{Before: &before, After: &after})
	}
	s.record(OpReassignLayer, snapshots, changes)
	return nil
}

// RemoveLayerMarkers deletes every marker of a layer as one mutation.
func (s *Store) RemoveLayerMarkers(layerID string) error {
	if err := s.checkUnlocked(layerID); err != nil {
		return err
	}
	affected := s.ListLayer(layerID)
	if len(affected) == 0 {
		return nil
	}
	snapshots := s.snapshots(pagesOf(affected)...)
	changes := make([]Change, 0, len(affected))
	for _, m := range affected {
		delete(s.markers, m.ID)
		before := m
		changes = append(changes, Change{Before: &before})
	}
	s.record(OpRemoveLayerMarkers, snapshots, changes)
	return nil
}

// ReplacePage swaps the whole collection of a page as a recorded mutation.
func (s *Store) ReplacePage(op string, page int, markers []Marker) (Mutation, error) {
	return s.ReplacePages(op, map[int][]Marker{page: markers})
}

// ReplacePages swaps several page collections as one recorded mutation.
// Nothing changes if any incoming marker is invalid.
func (s *Store) ReplacePages(op string, pages map[int][]Marker) (Mutation, error) {
	ordered := make([]int, 0, len(pages))
	for page := range pages {
		ordered = append(ordered, page)
	}
	sort.Ints(ordered)

	incoming := make(map[int][]Marker, len(pages))
	for _, page := range ordered {
		list := make([]Marker, 0, len(pages[page]))
		for _, m := range pages[page] {
			m = normalize(m.Clone())
			m.PageNumber = page
			if err := Validate(m); err != nil {
				return Mutation{}, err
			}
			if m.ID == "" {
				m.ID = util.NewLocalID()
			}
			list = append(list, m)
		}
		incoming[page] = list
	}
	snapshots := s.snapshots(ordered...)
	var changes []Change
	for _, page := range ordered {
		changes = append(changes, s.swapPage(page, incoming[page], true)...)
	}
	if len(changes) == 0 {
		return Mutation{}, nil
	}
	if op == "" {
		op = OpReplacePage
	}
	return s.record(op, snapshots, changes), nil
}

// Restore swaps a page collection without notifying observers and returns
// what changed. Undo and redo go through here.
func (s *Store) Restore(page int, snapshot []Marker) []Change {
	return s.swapPage(page, snapshot, false)
}

func (s *Store) swapPage(page int, incoming []Marker, bump bool) []Change {
	current := s.List(page)
	currentByID := make(map[string]Marker, len(current))
	for _, m := range current {
		currentByID[m.ID] = m
	}
	now := s.now().UTC()
	var changes []Change
	kept := map[string]bool{}
	for _, m := range incoming {
		m = m.Clone()
		m.ID = s.Resolve(m.ID)
		if m.Sequence == 0 {
			s.seq++
			m.Sequence = s.seq
		} else if m.Sequence > s.seq {
			s.seq = m.Sequence
		}
		prev, existed := currentByID[m.ID]
		if existed {
			kept[m.ID] = true
			same := Diff(prev, m).IsEmpty()
			if bump {
				if same {
					m.Version = prev.Version
					m.UpdatedAt = prev.UpdatedAt
				} else {
					m.Version = prev.Version + 1
					m.UpdatedAt = now
				}
			}
			if same && m.Version == prev.Version {
				s.markers[m.ID] = m
				continue
			}
			before, after := prev, m.Clone()
			changes = append(changes, Change{Before: &before, After: &after})
		} else {
			if bump {
				m.Version = 1
				m.CreatedAt = now
				m.UpdatedAt = now
			}
			after := m.Clone()
			changes = append(changes, Change{After: &after})
		}
		s.markers[m.ID] = m
	}
	for _, m := range current {
		if kept[m.ID] {
			continue
		}
		delete(s.markers, m.ID)
		before := m
		changes = append(changes, Change{Before: &before})
	}
	return changes
}

// Revert silently undoes one change. Used to roll back a failed save.
func (s *Store) Revert(c Change) {
	switch {
	case c.Before == nil && c.After != nil:
		delete(s.markers, s.Resolve(c.After.ID))
	case c.Before != nil:
		restored := c.Before.Clone()
		if c.After != nil {
			delete(s.markers, s.Resolve(c.After.ID))
		}
		restored.ID = s.Resolve(restored.ID)
		s.markers[restored.ID] = restored
	}
}

// Rekey swaps a local id for the persisted one and remembers the alias.
func (s *Store) Rekey(localID, serverID string) bool {
	m, ok := s.markers[localID]
	if !ok || localID == serverID {
		return false
	}
	delete(s.markers, localID)
	m.ID = serverID
	s.markers[serverID] = m
	s.aliases[localID] = serverID
	return true
}

// RenameLayer points markers of a local layer id at its persisted id
// without notifying observers.
func (s *Store) RenameLayer(localID, serverID string) int {
	n := 0
	for id, m := range s.markers {
		if m.LayerID == localID {
			m.LayerID = serverID
			s.markers[id] = m
			n++
		}
	}
	return n
}

// Load installs persisted markers for a page without notifying observers.
func (s *Store) Load(page int, markers []Marker) {
	for _, m := range s.List(page) {
		delete(s.markers, m.ID)
	}
	for _, m := range markers {
		m = m.Clone()
		m.PageNumber = page
		s.seq++
		m.Sequence = s.seq
		s.markers[m.ID] = m
	}
}

// normalize keeps the anchor of vertex kinds on the first point.
func normalize(m Marker) Marker {
	if (m.Kind == KindPolyline || m.Kind == KindPolygon) && len(m.Points) > 0 {
		m.AnchorX = m.Points[0].X
		m.AnchorY = m.Points[0].Y
	}
	return m
}

func pagesOf(markers []Marker) []int {
	seen := map[int]bool{}
	var pages []int
	for _, m := range markers {
		if !seen[m.PageNumber] {
			seen[m.PageNumber] = true
			pages = append(pages, m.PageNumber)
		}
	}
	sort.Ints(pages)
	return pages
}
