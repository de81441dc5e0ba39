package annotation

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"floorplan/api/internal/coords"
	"floorplan/api/internal/layer"
	"floorplan/api/internal/util"
)

type recordingObserver struct {
	mutations []Mutation
}

func (r *recordingObserver) MarkersChanged(m Mutation) {
	r.mutations = append(r.mutations, m)
}

func rectangle(page int, layerID string, x, y, w, h float64) Marker {
	return Marker{
		PageNumber: page,
		LayerID:    layerID,
		Kind:       KindRectangle,
		AnchorX:    x,
		AnchorY:    y,
		Width:      Float(w),
		Height:     Float(h),
	}.WithDefaults()
}

func camera(page int, layerID string, x, y float64) Marker {
	return Marker{
		PageNumber:    page,
		LayerID:       layerID,
		Kind:          KindEquipment,
		EquipmentType: EquipmentCamera,
		AnchorX:       x,
		AnchorY:       y,
	}.WithDefaults()
}

func ids(markers []Marker) []string {
	out := make([]string, 0, len(markers))
	for _, m := range markers {
		out = append(out, m.ID)
	}
	return out
}

func mustAdd(t *testing.T, s *Store, m Marker) Marker {
	t.Helper()
	added, err := s.Add(m)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	return added
}

func TestAddIssuesLocalID(t *testing.T) {
	s := NewStore(layer.NewManager())
	input := camera(1, "", 10, 20)
	input.ID = "caller-chosen"

	added := mustAdd(t, s, input)
	if !util.IsLocalID(added.ID) {
		t.Fatalf("expected local id, got %s", added.ID)
	}
	if added.Version != 1 || added.CreatedAt.IsZero() {
		t.Fatalf("unexpected bookkeeping: %+v", added)
	}
}

func TestAddRejectsDegenerateShape(t *testing.T) {
	s := NewStore(nil)
	obs := &recordingObserver{}
	s.Subscribe(obs)

	_, err := s.Add(rectangle(1, "", 0, 0, 0.5, 20))
	var degenerate *DegenerateShapeError
	if !errors.As(err, &degenerate) {
		t.Fatalf("expected DegenerateShapeError, got %v", err)
	}
	if len(s.List(1)) != 0 || len(obs.mutations) != 0 {
		t.Fatal("degenerate shape must leave no trace")
	}
}

func TestValidateKindRules(t *testing.T) {
	tests := []struct {
		name   string
		marker Marker
		ok     bool
	}{
		{"camera", camera(1, "", 1, 1), true},
		{"equipment without type", Marker{PageNumber: 1, Kind: KindEquipment, Opacity: 1}, false},
		{"unknown kind", Marker{PageNumber: 1, Kind: "blob", Opacity: 1}, false},
		{"line", Marker{PageNumber: 1, Kind: KindLine, EndX: Float(10), EndY: Float(0), Opacity: 1}, true},
		{"short line", Marker{PageNumber: 1, Kind: KindLine, EndX: Float(0.2), EndY: Float(0), Opacity: 1}, false},
		{"polyline one point", Marker{PageNumber: 1, Kind: KindPolyline, Points: []coords.Point{{X: 1, Y: 1}}, AnchorX: 1, AnchorY: 1, Opacity: 1}, false},
		{"polygon", Marker{PageNumber: 1, Kind: KindPolygon, Points: []coords.Point{{X: 0, Y: 0}, {X: 5, Y: 0}, {X: 5, Y: 5}}, Opacity: 1}, true},
		{"rect with points", Marker{PageNumber: 1, Kind: KindRectangle, Width: Float(5), Height: Float(5), Points: []coords.Point{{}}, Opacity: 1}, false},
		{"stamp without size", Marker{PageNumber: 1, Kind: KindStamp, Opacity: 1}, true},
		{"text without content", Marker{PageNumber: 1, Kind: KindText, Opacity: 1}, false},
		{"opacity out of range", Marker{PageNumber: 1, Kind: KindNote, Width: Float(5), Height: Float(5), Opacity: 2}, false},
		{"page zero", Marker{Kind: KindStamp, Opacity: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.marker)
			if tt.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestUpdateBumpsVersion(t *testing.T) {
	s := NewStore(nil)
	added := mustAdd(t, s, rectangle(1, "", 0, 0, 10, 10))

	updated, err := s.Update(added.ID, Patch{AnchorX: Float(40), Label: String("Lobby")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Version != 2 || updated.AnchorX != 40 || updated.Label != "Lobby" {
		t.Fatalf("unexpected update result %+v", updated)
	}
	if *updated.Width != 10 {
		t.Fatal("unpatched fields must survive")
	}

	if _, err := s.Update("missing", Patch{AnchorX: Float(1)}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLockedLayerRejectsMutations(t *testing.T) {
	layers := layer.NewManager()
	open, _ := layers.Create("Open", "#000")
	locked, _ := layers.Create("Locked", "#000")
	s := NewStore(layers)
	onLocked := mustAdd(t, s, camera(1, locked.ID, 1, 1))
	onOpen := mustAdd(t, s, camera(1, open.ID, 2, 2))
	if _, err := layers.SetLocked(locked.ID, true); err != nil {
		t.Fatalf("SetLocked: %v", err)
	}

	var lockedErr *layer.LockedError
	if _, err := s.Add(camera(1, locked.ID, 5, 5)); !errors.As(err, &lockedErr) {
		t.Fatalf("add: expected LockedError, got %v", err)
	}
	if _, err := s.Update(onLocked.ID, Patch{AnchorX: Float(9)}); !errors.As(err, &lockedErr) {
		t.Fatalf("move: expected LockedError, got %v", err)
	}
	if _, err := s.Remove(onLocked.ID); !errors.As(err, &lockedErr) {
		t.Fatalf("remove: expected LockedError, got %v", err)
	}
	if _, err := s.Update(onOpen.ID, Patch{LayerID: String(locked.ID)}); !errors.As(err, &lockedErr) {
		t.Fatalf("retarget: expected LockedError, got %v", err)
	}
	if got, _ := s.Get(onLocked.ID); got.AnchorX != 1 {
		t.Fatal("locked marker must be unchanged")
	}
}

func TestDuplicateShiftsEverything(t *testing.T) {
	s := NewStore(nil)
	line := mustAdd(t, s, Marker{PageNumber: 2, Kind: KindLine, AnchorX: 5, AnchorY: 5, EndX: Float(15), EndY: Float(5), Label: "run"}.WithDefaults())

	dup, err := s.Duplicate(line.ID, -10, 10)
	if err != nil {
		t.Fatalf("Duplicate: %v", err)
	}
	if dup.ID == line.ID || dup.Version != 1 {
		t.Fatalf("duplicate must be a new marker: %+v", dup)
	}
	end, _ := dup.End()
	if dup.AnchorX != -5 || dup.AnchorY != 15 || end != (coords.Point{X: 5, Y: 15}) {
		t.Fatalf("unexpected duplicate geometry %+v end=%v", dup, end)
	}
	if dup.Label != "run" {
		t.Fatal("duplicate must keep attributes")
	}
}

func TestListVisibleOrderAndToggle(t *testing.T) {
	layers := layer.NewManager()
	top, _ := layers.Create("Top", "#f00")
	bottom, _ := layers.Create("Bottom", "#0f0")
	if _, err := layers.Reorder(bottom.ID, 0); err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	s := NewStore(layers)

	a := mustAdd(t, s, camera(1, top.ID, 1, 1))
	b := mustAdd(t, s, camera(1, bottom.ID, 2, 2))
	c := mustAdd(t, s, camera(1, "", 3, 3))
	d := mustAdd(t, s, camera(1, bottom.ID, 4, 4))
	mustAdd(t, s, camera(2, top.ID, 5, 5))

	want := []string{c.ID, b.ID, d.ID, a.ID}
	first := s.ListVisible(1)
	if diff := cmp.Diff(want, ids(first)); diff != "" {
		t.Fatalf("paint order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(first, s.ListVisible(1)); diff != "" {
		t.Fatalf("ListVisible not idempotent:\n%s", diff)
	}

	if _, err := layers.SetVisible(bottom.ID, false); err != nil {
		t.Fatalf("SetVisible: %v", err)
	}
	if diff := cmp.Diff([]string{c.ID, a.ID}, ids(s.ListVisible(1))); diff != "" {
		t.Fatalf("hidden layer still listed (-want +got):\n%s", diff)
	}
	if _, err := layers.SetVisible(bottom.ID, true); err != nil {
		t.Fatalf("SetVisible: %v", err)
	}
	if diff := cmp.Diff(first, s.ListVisible(1)); diff != "" {
		t.Fatalf("toggle did not restore output:\n%s", diff)
	}
}

func TestRestoreIsSilentAndReportsChanges(t *testing.T) {
	s := NewStore(nil)
	obs := &recordingObserver{}
	s.Subscribe(obs)
	a := mustAdd(t, s, camera(1, "", 1, 1))
	snapshot := s.Snapshot(1)
	b := mustAdd(t, s, camera(1, "", 2, 2))
	if _, err := s.Update(a.ID, Patch{AnchorX: Float(7)}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	seen := len(obs.mutations)

	changes := s.Restore(1, snapshot)

	if len(obs.mutations) != seen {
		t.Fatal("Restore must not notify observers")
	}
	if diff := cmp.Diff(snapshot, s.Snapshot(1)); diff != "" {
		t.Fatalf("restore mismatch (-want +got):\n%s", diff)
	}
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(changes))
	}
	if changes[0].MarkerID() != a.ID || changes[1].After != nil || changes[1].Before.ID != b.ID {
		t.Fatalf("unexpected changes %+v", changes)
	}
}

func TestReassignAndRemoveLayerMarkersAreSingleMutations(t *testing.T) {
	layers := layer.NewManager()
	from, _ := layers.Create("From", "#000")
	to, _ := layers.Create("To", "#000")
	s := NewStore(layers)
	mustAdd(t, s, camera(1, from.ID, 1, 1))
	mustAdd(t, s, camera(3, from.ID, 1, 1))
	obs := &recordingObserver{}
	s.Subscribe(obs)

	if err := layers.Delete(from.ID, layer.ReassignTo(to.ID), s); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(obs.mutations) != 1 {
		t.Fatalf("expected one mutation, got %d", len(obs.mutations))
	}
	m := obs.mutations[0]
	if m.Op != OpReassignLayer || len(m.Snapshots) != 2 || len(m.Changes) != 2 {
		t.Fatalf("unexpected mutation %+v", m)
	}
	if len(s.ListLayer(to.ID)) != 2 {
		t.Fatal("markers were not reassigned")
	}

	if err := layers.Delete(to.ID, layer.DeleteMarkers(), s); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(s.Pages()) != 0 {
		t.Fatalf("expected every marker removed, pages=%v", s.Pages())
	}
}

func TestRekeyKeepsAliases(t *testing.T) {
	s := NewStore(nil)
	added := mustAdd(t, s, camera(1, "", 1, 1))

	if !s.Rekey(added.ID, "mk_1") {
		t.Fatal("expected rekey")
	}
	got, err := s.Get(added.ID)
	if err != nil {
		t.Fatalf("Get by local id: %v", err)
	}
	if got.ID != "mk_1" {
		t.Fatalf("expected server id, got %s", got.ID)
	}
	if _, err := s.Update(added.ID, Patch{AnchorY: Float(3)}); err != nil {
		t.Fatalf("Update by stale id: %v", err)
	}
}

func TestRevertUndoesOneChange(t *testing.T) {
	s := NewStore(nil)
	obs := &recordingObserver{}
	s.Subscribe(obs)
	added := mustAdd(t, s, camera(1, "", 1, 1))
	if _, err := s.Update(added.ID, Patch{AnchorX: Float(50)}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	s.Revert(obs.mutations[1].Changes[0])
	got, _ := s.Get(added.ID)
	if got.AnchorX != 1 || got.Version != 1 {
		t.Fatalf("expected original marker, got %+v", got)
	}

	s.Revert(obs.mutations[0].Changes[0])
	if len(s.List(1)) != 0 {
		t.Fatal("reverting a create must remove the marker")
	}
}

func TestContainsPerKind(t *testing.T) {
	tol := Tolerance{PointRadius: 10, Stroke: 4}
	tests := []struct {
		name   string
		marker Marker
		hit    coords.Point
		miss   coords.Point
	}{
		{"equipment", camera(1, "", 100, 100), coords.Point{X: 106, Y: 106}, coords.Point{X: 115, Y: 100}},
		{"rectangle", rectangle(1, "", 0, 0, 20, 10), coords.Point{X: 10, Y: 5}, coords.Point{X: 30, Y: 5}},
		{
			"rotated rectangle",
			Marker{PageNumber: 1, Kind: KindRectangle, Width: Float(40), Height: Float(4), RotationDegrees: 90, Opacity: 1},
			coords.Point{X: 20, Y: 18},
			coords.Point{X: 2, Y: 2},
		},
		{
			"ellipse",
			Marker{PageNumber: 1, Kind: KindEllipse, Width: Float(40), Height: Float(20), Opacity: 1},
			coords.Point{X: 20, Y: 10},
			coords.Point{X: -3, Y: -3},
		},
		{
			"line",
			Marker{PageNumber: 1, Kind: KindLine, EndX: Float(100), EndY: Float(0), Opacity: 1},
			coords.Point{X: 50, Y: 3},
			coords.Point{X: 50, Y: 8},
		},
		{
			"polygon",
			Marker{PageNumber: 1, Kind: KindPolygon, Points: []coords.Point{{X: 0, Y: 0}, {X: 50, Y: 0}, {X: 50, Y: 50}}, Opacity: 1},
			coords.Point{X: 40, Y: 10},
			coords.Point{X: 10, Y: 40},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.marker.Contains(tt.hit, tol) {
				t.Errorf("expected hit at %v", tt.hit)
			}
			if tt.marker.Contains(tt.miss, tol) {
				t.Errorf("unexpected hit at %v", tt.miss)
			}
		})
	}
}
