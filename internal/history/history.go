// Package history keeps the undo and redo stacks of page snapshots.
package history

import (
	"sort"

	"floorplan/api/internal/annotation"
)

const DefaultLimit = 50

// Entry is the full pre-mutation marker collection of each page a mutation
// touched. Entries are never edited except to follow id remappings.
type Entry struct {
	ID        string
	Op        string
	Snapshots map[int][]annotation.Marker
}

// Pages returns the entry's pages in ascending order.
func (e Entry) Pages() []int {
	pages := make([]int, 0, len(e.Snapshots))
	for page := range e.Snapshots {
		pages = append(pages, page)
	}
	sort.Ints(pages)
	return pages
}

// Restorer swaps page collections without recording a mutation.
type Restorer interface {
	Snapshot(page int) []annotation.Marker
	Restore(page int, snapshot []annotation.Marker) []annotation.Change
}

type Manager struct {
	undo  []Entry
	redo  []Entry
	limit int
}

func NewManager(limit int) *Manager {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Manager{limit: limit}
}

// MarkersChanged records a store mutation and clears the redo stack.
func (m *Manager) MarkersChanged(mut annotation.Mutation) {
	if len(mut.Snapshots) == 0 {
		return
	}
	m.undo = append(m.undo, Entry{ID: mut.ID, Op: mut.Op, Snapshots: copySnapshots(mut.Snapshots)})
	if over := len(m.undo) - m.limit; over > 0 {
		m.undo = append([]Entry(nil), m.undo[over:]...)
	}
	m.redo = nil
}

func (m *Manager) CanUndo() bool { return len(m.undo) > 0 }

func (m *Manager) CanRedo() bool { return len(m.redo) > 0 }

// Depth returns the sizes of the undo and redo stacks.
func (m *Manager) Depth() (int, int) { return len(m.undo), len(m.redo) }

// Undo restores the most recent snapshot. The current collections move to
// the redo stack. It is a no-op on an empty stack.
func (m *Manager) Undo(target Restorer) (Entry, []annotation.Change, bool) {
	if len(m.undo) == 0 {
		return Entry{}, nil, false
	}
	entry := m.undo[len(m.undo)-1]
	m.undo = m.undo[:len(m.undo)-1]
	current, changes := swap(target, entry)
	m.redo = append(m.redo, current)
	return entry, changes, true
}

// Redo mirrors Undo.
func (m *Manager) Redo(target Restorer) (Entry, []annotation.Change, bool) {
	if len(m.redo) == 0 {
		return Entry{}, nil, false
	}
	entry := m.redo[len(m.redo)-1]
	m.redo = m.redo[:len(m.redo)-1]
	current, changes := swap(target, entry)
	m.undo = append(m.undo, current)
	return entry, changes, true
}

func swap(target Restorer, entry Entry) (Entry, []annotation.Change) {
	current := Entry{ID: entry.ID, Op: entry.Op, Snapshots: make(map[int][]annotation.Marker, len(entry.Snapshots))}
	var changes []annotation.Change
	for _, page := range entry.Pages() {
		current.Snapshots[page] = target.Snapshot(page)
		changes = append(changes, target.Restore(page, entry.Snapshots[page])...)
	}
	return current, changes
}

// Discard drops the entry of a mutation that was rolled back.
func (m *Manager) Discard(mutationID string) bool {
	var inUndo, inRedo bool
	m.undo, inUndo = without(m.undo, mutationID)
	m.redo, inRedo = without(m.redo, mutationID)
	return inUndo || inRedo
}

func without(entries []Entry, id string) ([]Entry, bool) {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].ID == id {
			return append(entries[:i:i], entries[i+1:]...), true
		}
	}
	return entries, false
}

// Remap rewrites a local marker id to the persisted one inside every stored
// snapshot.
func (m *Manager) Remap(localID, serverID string) {
	for _, stack := range [][]Entry{m.undo, m.redo} {
		for _, entry := range stack {
			for _, markers := range entry.Snapshots {
				for i := range markers {
					if markers[i].ID == localID {
						markers[i].ID = serverID
					}
				}
			}
		}
	}
}

// RemapLayer does the same for layer ids.
func (m *Manager) RemapLayer(localID, serverID string) {
	for _, stack := range [][]Entry{m.undo, m.redo} {
		for _, entry := range stack {
			for _, markers := range entry.Snapshots {
				for i := range markers {
					if markers[i].LayerID == localID {
						markers[i].LayerID = serverID
					}
				}
			}
		}
	}
}

func copySnapshots(in map[int][]annotation.Marker) map[int][]annotation.Marker {
	out := make(map[int][]annotation.Marker, len(in))
	for page, markers := range in {
		copied := make([]annotation.Marker, len(markers))
		for i := range markers {
			copied[i] = markers[i].Clone()
		}
		out[page] = copied
	}
	return out
}
