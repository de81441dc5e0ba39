package syncer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"floorplan/api/internal/annotation"
	"floorplan/api/internal/calibration"
	"floorplan/api/internal/coords"
	"floorplan/api/internal/layer"
)

type fakeBackend struct {
	markers map[string]annotation.Marker
	layers  map[string]layer.Layer
	calls   map[string]int
	next    int

	createMarkerFn func(m annotation.Marker) error
	updateMarkerFn func(id string, patch annotation.Patch) error
	deleteMarkerFn func(id string) error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		markers: map[string]annotation.Marker{},
		layers:  map[string]layer.Layer{},
		calls:   map[string]int{},
	}
}

func (f *fakeBackend) id(prefix string) string {
	f.next++
	return fmt.Sprintf("%s_%d", prefix, f.next)
}

func (f *fakeBackend) ListMarkers(_ context.Context, _ string, page int) ([]annotation.Marker, error) {
	f.calls["ListMarkers"]++
	var out []annotation.Marker
	for _, m := range f.markers {
		if m.PageNumber == page {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeBackend) CreateMarker(_ context.Context, _ string, m annotation.Marker) (annotation.Marker, error) {
	f.calls["CreateMarker"]++
	if f.createMarkerFn != nil {
		if err := f.createMarkerFn(m); err != nil {
			return annotation.Marker{}, err
		}
	}
	m.ID = f.id("mk")
	f.markers[m.ID] = m
	return m, nil
}

func (f *fakeBackend) UpdateMarker(_ context.Context, _ string, id string, patch annotation.Patch) (annotation.Marker, error) {
	f.calls["UpdateMarker"]++
	if f.updateMarkerFn != nil {
		if err := f.updateMarkerFn(id, patch); err != nil {
			return annotation.Marker{}, err
		}
	}
	m, ok := f.markers[id]
	if !ok {
		return annotation.Marker{}, &annotation.NotFoundError{ID: id}
	}
	m = patch.Apply(m)
	f.markers[id] = m
	return m, nil
}

func (f *fakeBackend) DeleteMarker(_ context.Context, _ string, id string) error {
	f.calls["DeleteMarker"]++
	if f.deleteMarkerFn != nil {
		if err := f.deleteMarkerFn(id); err != nil {
			return err
		}
	}
	if _, ok := f.markers[id]; !ok {
		return &annotation.NotFoundError{ID: id}
	}
	delete(f.markers, id)
	return nil
}

func (f *fakeBackend) ListLayers(context.Context, string) ([]layer.Layer, error) {
	f.calls["ListLayers"]++
	var out []layer.Layer
	for _, l := range f.layers {
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeBackend) CreateLayer(_ context.Context, _ string, l layer.Layer) (layer.Layer, error) {
	f.calls["CreateLayer"]++
	l.ID = f.id("ly")
	f.layers[l.ID] = l
	return l, nil
}

func (f *fakeBackend) UpdateLayer(_ context.Context, _ string, l layer.Layer) (layer.Layer, error) {
	f.calls["UpdateLayer"]++
	if _, ok := f.layers[l.ID]; !ok {
		return layer.Layer{}, layer.ErrNotFound
	}
	f.layers[l.ID] = l
	return l, nil
}

func (f *fakeBackend) DeleteLayer(_ context.Context, _ string, id string) error {
	f.calls["DeleteLayer"]++
	delete(f.layers, id)
	return nil
}

func (f *fakeBackend) SaveCalibration(_ context.Context, _ string, r calibration.Record) (calibration.Record, error) {
	f.calls["SaveCalibration"]++
	r.ID = f.id("cal")
	return r, nil
}

func (f *fakeBackend) ListCalibration(context.Context, string, int) ([]calibration.Record, error) {
	return nil, nil
}

type recordingReconciler struct {
	markers, layers, calibrations map[string]string
}

func newRecordingReconciler() *recordingReconciler {
	return &recordingReconciler{markers: map[string]string{}, layers: map[string]string{}, calibrations: map[string]string{}}
}

func (r *recordingReconciler) RekeyMarker(local, server string) { r.markers[local] = server }

func (r *recordingReconciler) RekeyLayer(local, server string) { r.layers[local] = server }

func (r *recordingReconciler) RekeyCalibration(local, server string) { r.calibrations[local] = server }

type countingObserver struct {
	saved, deleted int
}

func (o *countingObserver) MarkerSaved(context.Context, string, annotation.Marker) { o.saved++ }

func (o *countingObserver) MarkerDeleted(context.Context, string, string) { o.deleted++ }

func pin(x, y float64) annotation.Marker {
	return annotation.Marker{PageNumber: 1, Kind: annotation.KindEquipment,
		EquipmentType: annotation.EquipmentCamera, AnchorX: x, AnchorY: y}.WithDefaults()
}

func newFixture() (*annotation.Store, *Adapter, *fakeBackend, *recordingReconciler) {
	store := annotation.NewStore(nil)
	backend := newFakeBackend()
	reconciler := newRecordingReconciler()
	adapter := NewAdapter("doc_1", backend, reconciler)
	store.Subscribe(adapter)
	return store, adapter, backend, reconciler
}

func TestCreateFollowedByUpdatesFoldsIntoOneCreate(t *testing.T) {
	store, adapter, backend, reconciler := newFixture()
	m, err := store.Add(pin(1, 1))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := store.Update(m.ID, annotation.Patch{AnchorX: annotation.Float(float64(10 + i))}); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	if adapter.Pending() != 1 {
		t.Fatalf("expected one queued call, got %d", adapter.Pending())
	}

	result := adapter.Flush(context.Background())
	if len(result.Failures) != 0 || result.Applied != 1 {
		t.Fatalf("unexpected flush result %+v", result)
	}
	if backend.calls["CreateMarker"] != 1 || backend.calls["UpdateMarker"] != 0 {
		t.Fatalf("unexpected backend calls %v", backend.calls)
	}
	server, ok := reconciler.markers[m.ID]
	if !ok || result.Rekeyed[m.ID] != server {
		t.Fatalf("expected local id %s to be rekeyed, got %v", m.ID, reconciler.markers)
	}
	if got := backend.markers[server].AnchorX; got != 14 {
		t.Fatalf("expected final anchor 14 to be created, got %v", got)
	}
}

func TestUpdatesCoalesceIntoOneCall(t *testing.T) {
	store, adapter, backend, reconciler := newFixture()
	m, _ := store.Add(pin(1, 1))
	adapter.Flush(context.Background())
	store.Rekey(m.ID, reconciler.markers[m.ID])
	id := reconciler.markers[m.ID]

	for i := 1; i <= 20; i++ {
		if _, err := store.Update(id, annotation.Patch{AnchorY: annotation.Float(float64(i))}); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}
	result := adapter.Flush(context.Background())
	if backend.calls["UpdateMarker"] != 1 || result.Applied != 1 {
		t.Fatalf("expected exactly one UpdateMarker, got %v", backend.calls)
	}
	if got := backend.markers[id].AnchorY; got != 20 {
		t.Fatalf("expected anchorY 20, got %v", got)
	}
}

func TestCreateThenDeleteDropsBoth(t *testing.T) {
	store, adapter, backend, _ := newFixture()
	m, _ := store.Add(pin(1, 1))
	if _, err := store.Remove(m.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if adapter.Pending() != 0 {
		t.Fatalf("expected empty queue, got %d", adapter.Pending())
	}
	adapter.Flush(context.Background())
	if len(backend.calls) != 0 {
		t.Fatalf("expected no backend calls, got %v", backend.calls)
	}
}

func TestUpdateThenDeleteBecomesDelete(t *testing.T) {
	store, adapter, backend, reconciler := newFixture()
	observer := &countingObserver{}
	adapter.Observe(observer)
	m, _ := store.Add(pin(1, 1))
	adapter.Flush(context.Background())
	id := reconciler.markers[m.ID]
	store.Rekey(m.ID, id)

	store.Update(id, annotation.Patch{Label: annotation.String("Lobby cam")})
	store.Remove(id)
	adapter.Flush(context.Background())

	if backend.calls["UpdateMarker"] != 0 || backend.calls["DeleteMarker"] != 1 {
		t.Fatalf("unexpected backend calls %v", backend.calls)
	}
	if observer.saved != 1 || observer.deleted != 1 {
		t.Fatalf("unexpected observer counts %+v", observer)
	}
}

func TestFailureCarriesRollbackState(t *testing.T) {
	store, adapter, backend, _ := newFixture()
	backend.createMarkerFn = func(annotation.Marker) error { return errors.New("connection reset") }
	m, _ := store.Add(pin(1, 1))
	store.Update(m.ID, annotation.Patch{AnchorX: annotation.Float(3)})

	result := adapter.Flush(context.Background())
	if len(result.Failures) != 1 {
		t.Fatalf("expected one failure, got %+v", result)
	}
	failure := result.Failures[0]
	if failure.Op != OpCreate || failure.Entity != EntityMarker || !failure.Retryable {
		t.Fatalf("unexpected failure %+v", failure)
	}
	if failure.MarkerChange == nil || failure.MarkerChange.Before != nil || failure.MarkerChange.After.AnchorX != 3 {
		t.Fatalf("expected create change with latest state, got %+v", failure.MarkerChange)
	}
	if len(failure.MutationIDs) != 2 {
		t.Fatalf("expected both mutation ids, got %v", failure.MutationIDs)
	}
	var persistence *PersistenceError
	if !errors.As(error(failure), &persistence) {
		t.Fatal("expected PersistenceError")
	}
}

func TestNotFoundIsNotRetryable(t *testing.T) {
	_, adapter, _, _ := newFixture()
	before := pin(1, 1)
	before.ID = "mk_gone"
	after := before.Translate(5, 0)
	adapter.EnqueueMarker(annotation.Change{Before: &before, After: &after}, "")

	result := adapter.Flush(context.Background())
	if len(result.Failures) != 1 {
		t.Fatalf("expected one failure, got %+v", result)
	}
	if result.Failures[0].Retryable || !errors.Is(result.Failures[0], annotation.ErrNotFound) {
		t.Fatalf("expected non-retryable not-found failure, got %+v", result.Failures[0])
	}
}

func TestMarkerLayerIDIsTranslated(t *testing.T) {
	layers := layer.NewManager()
	store := annotation.NewStore(layers)
	backend := newFakeBackend()
	adapter := NewAdapter("doc_1", backend, nil)
	store.Subscribe(adapter)
	layers.Subscribe(adapter)

	l, _ := layers.Create("Security", "#f00")
	m := annotation.Marker{PageNumber: 1, LayerID: l.ID, Kind: annotation.KindPolygon,
		Points: []coords.Point{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}}}.WithDefaults()
	if _, err := store.Add(m); err != nil {
		t.Fatalf("add: %v", err)
	}
	result := adapter.Flush(context.Background())
	if len(result.Failures) != 0 {
		t.Fatalf("unexpected failures %+v", result.Failures)
	}
	serverLayer := result.Rekeyed[l.ID]
	if serverLayer == "" {
		t.Fatalf("expected layer to be rekeyed, got %v", result.Rekeyed)
	}
	for _, created := range backend.markers {
		if created.LayerID != serverLayer {
			t.Fatalf("expected marker on layer %s, got %s", serverLayer, created.LayerID)
		}
	}
}

func TestMarkerMovedOntoNewLayerFlushesAfterLayerCreate(t *testing.T) {
	layers := layer.NewManager()
	store := annotation.NewStore(layers)
	backend := newFakeBackend()
	adapter := NewAdapter("doc_1", backend, nil)
	store.Subscribe(adapter)
	layers.Subscribe(adapter)

	m, err := store.Add(pin(2, 2))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	l, err := layers.Create("Cameras", "#0af")
	if err != nil {
		t.Fatalf("create layer: %v", err)
	}
	if _, err := store.Update(m.ID, annotation.Patch{LayerID: annotation.String(l.ID)}); err != nil {
		t.Fatalf("move marker: %v", err)
	}

	result := adapter.Flush(context.Background())
	if len(result.Failures) != 0 {
		t.Fatalf("unexpected failures %+v", result.Failures)
	}
	serverLayer := result.Rekeyed[l.ID]
	if serverLayer == "" || serverLayer == l.ID {
		t.Fatalf("expected layer to be rekeyed, got %v", result.Rekeyed)
	}
	if len(backend.markers) != 1 {
		t.Fatalf("expected one persisted marker, got %v", backend.markers)
	}
	for id, created := range backend.markers {
		if created.LayerID != serverLayer {
			t.Fatalf("marker %s persisted with layer %q, want %q", id, created.LayerID, serverLayer)
		}
	}
}

func TestCalibrationIsSaved(t *testing.T) {
	_, adapter, backend, reconciler := newFixture()
	record, err := calibration.NewRecord(1, coords.Point{}, coords.Point{X: 10}, 5, calibration.Feet)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	record.ID = "tmp-cal"
	adapter.QueueCalibration(record)
	adapter.Flush(context.Background())
	if backend.calls["SaveCalibration"] != 1 || reconciler.calibrations["tmp-cal"] == "" {
		t.Fatalf("expected calibration to be saved and rekeyed, got %v %v", backend.calls, reconciler.calibrations)
	}
}
