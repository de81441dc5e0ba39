// Package layer manages the ordered, toggleable groups that markers belong
// to.
package layer

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"floorplan/api/internal/util"
)

var (
	ErrNotFound             = errors.New("layer not found")
	ErrInvalidOpacity       = errors.New("layer opacity must be within [0,1]")
	ErrOrphanPolicyRequired = errors.New("deleting a layer requires an orphan policy")
	ErrInvalidTarget        = errors.New("reassign target must be another existing layer")
	ErrEmptyName            = errors.New("layer name is required")
)

// LockedError rejects a marker mutation that targets a locked layer.
type LockedError struct {
	LayerID string
	Name    string
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("layer %q is locked", e.Name)
}

type Layer struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Color      string  `json:"color"`
	Visible    bool    `json:"visible"`
	Locked     bool    `json:"locked"`
	OrderIndex int     `json:"orderIndex"`
	Opacity    float64 `json:"opacity"`
}

// Change describes a layer mutation for persistence.
type Change struct {
	Op     string
	Before *Layer
	After  *Layer
}

const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Observer receives layer changes. History never does.
type Observer interface {
	LayersChanged(changes []Change)
}

// Policy decides what happens to the markers of a deleted layer.
type Policy struct {
	kind   string
	target string
}

func ReassignTo(target string) Policy { return Policy{kind: "reassign", target: target} }

func DeleteMarkers() Policy { return Policy{kind: "delete"} }

// ParsePolicy reads the wire form "reassign:<id>" or "delete".
func ParsePolicy(value string) (Policy, error) {
	switch {
	case value == "delete":
		return DeleteMarkers(), nil
	case strings.HasPrefix(value, "reassign:") && len(value) > len("reassign:"):
		return ReassignTo(strings.TrimPrefix(value, "reassign:")), nil
	}
	return Policy{}, ErrOrphanPolicyRequired
}

func (p Policy) IsZero() bool { return p.kind == "" }

func (p Policy) Reassigns() bool { return p.kind == "reassign" }

func (p Policy) Target() string { return p.target }

func (p Policy) String() string {
	if p.kind == "reassign" {
		return "reassign:" + p.target
	}
	return p.kind
}

// OrphanHandler executes the orphan policy against the marker collection.
type OrphanHandler interface {
	ReassignLayer(from, to string) error
	RemoveLayerMarkers(layerID string) error
}

// Manager owns the document's layers. Not safe for concurrent use.
type Manager struct {
	layers    []Layer
	observers []Observer
}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) Subscribe(o Observer) {
	m.observers = append(m.observers, o)
}

func (m *Manager) notify(changes ...Change) {
	for _, o := range m.observers {
		o.LayersChanged(changes)
	}
}

// List returns the layers in paint order.
func (m *Manager) List() []Layer {
	out := make([]Layer, len(m.layers))
	copy(out, m.layers)
	return out
}

func (m *Manager) Lookup(id string) (Layer, bool) {
	i := m.index(id)
	if i < 0 {
		return Layer{}, false
	}
	return m.layers[i], true
}

func (m *Manager) index(id string) int {
	for i := range m.layers {
		if m.layers[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *Manager) Create(name, color string) (Layer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Layer{}, ErrEmptyName
	}
	order := 0
	if n := len(m.layers); n > 0 {
		order = m.layers[n-1].OrderIndex + 1
	}
	created := Layer{
		ID:         util.NewLocalID(),
		Name:       name,
		Color:      color,
		Visible:    true,
		OrderIndex: order,
		Opacity:    1,
	}
	m.layers = append(m.layers, created)
	m.notify(Change{Op: OpCreate, After: &created})
	return created, nil
}

func (m *Manager) update(id string, apply func(*Layer) error) (Layer, error) {
	i := m.index(id)
	if i < 0 {
		return Layer{}, ErrNotFound
	}
	before := m.layers[i]
	next := before
	if err := apply(&next); err != nil {
		return Layer{}, err
	}
	if next == before {
		return next, nil
	}
	m.layers[i] = next
	m.notify(Change{Op: OpUpdate, Before: &before, After: &next})
	return next, nil
}

func (m *Manager) SetVisible(id string, visible bool) (Layer, error) {
	return m.update(id, func(l *Layer) error {
		l.Visible = visible
		return nil
	})
}

func (m *Manager) SetLocked(id string, locked bool) (Layer, error) {
	return m.update(id, func(l *Layer) error {
		l.Locked = locked
		return nil
	})
}

func (m *Manager) SetOpacity(id string, opacity float64) (Layer, error) {
	if !(opacity >= 0 && opacity <= 1) {
		return Layer{}, ErrInvalidOpacity
	}
	return m.update(id, func(l *Layer) error {
		l.Opacity = opacity
		return nil
	})
}

func (m *Manager) Rename(id, name string) (Layer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Layer{}, ErrEmptyName
	}
	return m.update(id, func(l *Layer) error {
		l.Name = name
		return nil
	})
}

func (m *Manager) SetColor(id, color string) (Layer, error) {
	return m.update(id, func(l *Layer) error {
		l.Color = color
		return nil
	})
}

// Reorder moves a layer to newIndex (clamped) and renumbers every layer
// 0..n-1 in the resulting order.
func (m *Manager) Reorder(id string, newIndex int) ([]Layer, error) {
	i := m.index(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex > len(m.layers)-1 {
		newIndex = len(m.layers) - 1
	}
	moved := m.layers[i]
	rest := append(append([]Layer{}, m.layers[:i]...), m.layers[i+1:]...)
	ordered := make([]Layer, 0, len(m.layers))
	ordered = append(ordered, rest[:newIndex]...)
	ordered = append(ordered, moved)
	ordered = append(ordered, rest[newIndex:]...)

	var changes []Change
	for idx := range ordered {
		if ordered[idx].OrderIndex != idx {
			before := ordered[idx]
			ordered[idx].OrderIndex = idx
			after := ordered[idx]
			changes = append(changes, Change{Op: OpUpdate, Before: &before, After: &after})
		}
	}
	m.layers = ordered
	if len(changes) > 0 {
		m.notify(changes...)
	}
	return m.List(), nil
}

// Delete removes a layer after the handler has applied the orphan policy.
func (m *Manager) Delete(id string, policy Policy, handler OrphanHandler) error {
	i := m.index(id)
	if i < 0 {
		return ErrNotFound
	}
	if policy.IsZero() || handler == nil {
		return ErrOrphanPolicyRequired
	}
	if policy.Reassigns() {
		if policy.target == id || m.index(policy.target) < 0 {
			return ErrInvalidTarget
		}
		if err := handler.ReassignLayer(id, policy.target); err != nil {
			return fmt.Errorf("reassign markers of layer %s: %w", id, err)
		}
	} else {
		if err := handler.RemoveLayerMarkers(id); err != nil {
			return fmt.Errorf("delete markers of layer %s: %w", id, err)
		}
	}
	removed := m.layers[i]
	m.layers = append(m.layers[:i:i], m.layers[i+1:]...)
	m.notify(Change{Op: OpDelete, Before: &removed})
	return nil
}

// Load installs persisted layers in paint order, renumbering contiguously.
func (m *Manager) Load(layers []Layer) {
	out := make([]Layer, len(layers))
	copy(out, layers)
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	for i := range out {
		out[i].OrderIndex = i
	}
	m.layers = out
}

// Rekey swaps a local id for the persisted one.
func (m *Manager) Rekey(localID, serverID string) bool {
	i := m.index(localID)
	if i < 0 {
		return false
	}
	m.layers[i].ID = serverID
	return true
}

// Restore puts back a layer removed by a failed delete, or replaces one
// whose update failed.
func (m *Manager) Restore(l Layer) {
	if i := m.index(l.ID); i >= 0 {
		m.layers[i] = l
	} else {
		m.layers = append(m.layers, l)
	}
	sort.SliceStable(m.layers, func(i, j int) bool { return m.layers[i].OrderIndex < m.layers[j].OrderIndex })
}

// Drop removes a layer without notifying observers.
func (m *Manager) Drop(id string) {
	if i := m.index(id); i >= 0 {
		m.layers = append(m.layers[:i:i], m.layers[i+1:]...)
	}
}
