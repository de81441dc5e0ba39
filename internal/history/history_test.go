package history

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"floorplan/api/internal/annotation"
)

func pin(page int, x, y float64) annotation.Marker {
	return annotation.Marker{
		PageNumber:    page,
		Kind:          annotation.KindEquipment,
		EquipmentType: annotation.EquipmentIntercom,
		AnchorX:       x,
		AnchorY:       y,
	}.WithDefaults()
}

func newStore(limit int) (*annotation.Store, *Manager) {
	store := annotation.NewStore(nil)
	history := NewManager(limit)
	store.Subscribe(history)
	return store, history
}

func state(s *annotation.Store) map[int][]annotation.Marker {
	out := map[int][]annotation.Marker{}
	for _, page := range []int{1, 2} {
		out[page] = s.List(page)
	}
	return out
}

func TestUndoRedoInverseLaw(t *testing.T) {
	store, history := newStore(100)
	seed, _ := store.Add(pin(1, 5, 5))
	history.undo = nil

	original := state(store)
	rng := rand.New(rand.NewSource(7))
	live := []string{seed.ID}
	const n = 25
	for i := 0; i < n; i++ {
		switch op := rng.Intn(4); {
		case op == 0 || len(live) == 0:
			m, err := store.Add(pin(1+rng.Intn(2), rng.Float64()*500, rng.Float64()*500))
			if err != nil {
				t.Fatalf("Add: %v", err)
			}
			live = append(live, m.ID)
		case op == 1:
			id := live[rng.Intn(len(live))]
			if _, err := store.Update(id, annotation.Patch{AnchorX: annotation.Float(rng.Float64() * 500)}); err != nil {
				t.Fatalf("Update: %v", err)
			}
		case op == 2:
			id := live[rng.Intn(len(live))]
			if _, err := store.Duplicate(id, 10, 10); err != nil {
				t.Fatalf("Duplicate: %v", err)
			}
		default:
			i := rng.Intn(len(live))
			if _, err := store.Remove(live[i]); err != nil {
				t.Fatalf("Remove: %v", err)
			}
			live = append(live[:i], live[i+1:]...)
		}
	}
	final := state(store)

	for i := 0; i < n; i++ {
		if _, _, ok := history.Undo(store); !ok {
			t.Fatalf("undo %d was a no-op", i)
		}
	}
	if diff := cmp.Diff(original, state(store)); diff != "" {
		t.Fatalf("undo did not restore the original state (-want +got):\n%s", diff)
	}

	for i := 0; i < n; i++ {
		if _, _, ok := history.Redo(store); !ok {
			t.Fatalf("redo %d was a no-op", i)
		}
	}
	if diff := cmp.Diff(final, state(store)); diff != "" {
		t.Fatalf("redo did not restore the final state (-want +got):\n%s", diff)
	}
}

func TestEmptyStacksAreNoOps(t *testing.T) {
	store, history := newStore(0)
	if _, changes, ok := history.Undo(store); ok || changes != nil {
		t.Fatal("undo on empty stack must be a no-op")
	}
	if _, changes, ok := history.Redo(store); ok || changes != nil {
		t.Fatal("redo on empty stack must be a no-op")
	}
}

func TestNewMutationClearsRedo(t *testing.T) {
	store, history := newStore(0)
	store.Add(pin(1, 1, 1))
	history.Undo(store)
	if !history.CanRedo() {
		t.Fatal("expected redo entry")
	}
	store.Add(pin(1, 2, 2))
	if history.CanRedo() {
		t.Fatal("new mutation must clear redo")
	}
}

func TestLimitDropsOldest(t *testing.T) {
	store, history := newStore(3)
	for i := 0; i < 5; i++ {
		store.Add(pin(1, float64(i), 0))
	}
	undo, _ := history.Depth()
	if undo != 3 {
		t.Fatalf("expected depth 3, got %d", undo)
	}
	for history.CanUndo() {
		history.Undo(store)
	}
	if got := len(store.List(1)); got != 2 {
		t.Fatalf("expected the two oldest adds to survive, got %d markers", got)
	}
}

func TestUndoReturnsChanges(t *testing.T) {
	store, history := newStore(0)
	added, _ := store.Add(pin(1, 1, 1))

	entry, changes, ok := history.Undo(store)
	if !ok || entry.Op != annotation.OpAdd {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if len(changes) != 1 || changes[0].Before == nil || changes[0].After != nil || changes[0].Before.ID != added.ID {
		t.Fatalf("expected a removal of %s, got %+v", added.ID, changes)
	}
}

type discardObserver struct{ last annotation.Mutation }

func (d *discardObserver) MarkersChanged(m annotation.Mutation) { d.last = m }

func TestDiscardAndRemap(t *testing.T) {
	store, history := newStore(0)
	obs := &discardObserver{}
	store.Subscribe(obs)

	first, _ := store.Add(pin(1, 1, 1))
	firstMutation := obs.last
	store.Update(first.ID, annotation.Patch{AnchorX: annotation.Float(9)})
	updateMutation := obs.last

	if !history.Discard(updateMutation.ID) {
		t.Fatal("expected the update entry to be discarded")
	}
	if undo, _ := history.Depth(); undo != 1 {
		t.Fatalf("expected one entry left, got %d", undo)
	}

	store.Rekey(first.ID, "mk_server")
	history.Remap(first.ID, "mk_server")
	store.Update("mk_server", annotation.Patch{AnchorY: annotation.Float(4)})
	history.Undo(store)

	got, err := store.Get("mk_server")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.AnchorY != 1 {
		t.Fatalf("expected undo to restore anchorY 1, got %v", got.AnchorY)
	}
	if firstMutation.Op != annotation.OpAdd {
		t.Fatalf("unexpected first op %s", firstMutation.Op)
	}
}
