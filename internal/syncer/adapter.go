package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"

	"floorplan/api/internal/annotation"
	"floorplan/api/internal/calibration"
	"floorplan/api/internal/layer"
)

type item struct {
	entity      string
	id          string
	mutationIDs []string

	markerBefore *annotation.Marker
	markerAfter  *annotation.Marker
	layerBefore  *layer.Layer
	layerAfter   *layer.Layer
	record       *calibration.Record
}

func (it *item) op() string {
	switch it.entity {
	case EntityCalibration:
		return OpSave
	case EntityLayer:
		return opOf(it.layerBefore == nil, it.layerAfter == nil)
	}
	return opOf(it.markerBefore == nil, it.markerAfter == nil)
}

func opOf(noBefore, noAfter bool) string {
	switch {
	case noBefore && noAfter:
		return ""
	case noBefore:
		return OpCreate
	case noAfter:
		return OpDelete
	}
	return OpUpdate
}

// Result reports one flush.
type Result struct {
	Applied  int                 `json:"applied"`
	Failures []*PersistenceError `json:"-"`
	// Rekeyed maps local ids to the ids the backend assigned.
	Rekeyed map[string]string `json:"rekeyed,omitempty"`
}

// Adapter queues store and layer changes and replays them against the
// backend on Flush. Consecutive changes to one entity coalesce into one
// call. Not safe for concurrent use.
type Adapter struct {
	documentID string
	backend    Backend
	reconciler Reconciler
	observers  []MarkerObserver

	queue []*item
	// ids maps every local id ever confirmed to its server id.
	ids map[string]string
}

func NewAdapter(documentID string, backend Backend, reconciler Reconciler) *Adapter {
	return &Adapter{
		documentID: documentID,
		backend:    backend,
		reconciler: reconciler,
		ids:        map[string]string{},
	}
}

func (a *Adapter) Observe(o MarkerObserver) {
	a.observers = append(a.observers, o)
}

// Pending returns the number of queued calls.
func (a *Adapter) Pending() int { return len(a.queue) }

func (a *Adapter) resolve(id string) string {
	if server, ok := a.ids[id]; ok {
		return server
	}
	return id
}

func (a *Adapter) find(entity, id string) int {
	for i, it := range a.queue {
		if it.entity == entity && it.id == id {
			return i
		}
	}
	return -1
}

func (a *Adapter) drop(i int) {
	a.queue = append(a.queue[:i:i], a.queue[i+1:]...)
}

// MarkersChanged queues a recorded store mutation.
func (a *Adapter) MarkersChanged(m annotation.Mutation) {
	for _, c := range m.Changes {
		a.EnqueueMarker(c, m.ID)
	}
}

// EnqueueMarker queues one marker change. Undo and redo feed their changes
// through here since they bypass the store observers.
func (a *Adapter) EnqueueMarker(c annotation.Change, mutationID string) {
	id := a.resolve(c.MarkerID())
	if i := a.find(EntityMarker, id); i >= 0 {
		it := a.queue[i]
		it.markerAfter = cloneMarker(c.After)
		if mutationID != "" {
			it.mutationIDs = append(it.mutationIDs, mutationID)
		}
		// The folded item moves to the tail so it flushes after anything it
		// may now reference, such as a layer created since it was queued.
		a.drop(i)
		if it.op() != "" {
			a.queue = append(a.queue, it)
		}
		return
	}
	it := &item{
		entity:       EntityMarker,
		id:           id,
		markerBefore: cloneMarker(c.Before),
		markerAfter:  cloneMarker(c.After),
	}
	if mutationID != "" {
		it.mutationIDs = []string{mutationID}
	}
	if it.op() == "" {
		return
	}
	a.queue = append(a.queue, it)
}

// LayersChanged queues layer changes.
func (a *Adapter) LayersChanged(changes []layer.Change) {
	for _, c := range changes {
		var id string
		if c.After != nil {
			id = c.After.ID
		} else if c.Before != nil {
			id = c.Before.ID
		}
		id = a.resolve(id)
		if i := a.find(EntityLayer, id); i >= 0 {
			it := a.queue[i]
			it.layerAfter = cloneLayer(c.After)
			if it.op() == "" {
				a.drop(i)
			}
			continue
		}
		it := &item{entity: EntityLayer, id: id, layerBefore: cloneLayer(c.Before), layerAfter: cloneLayer(c.After)}
		if it.op() != "" {
			a.queue = append(a.queue, it)
		}
	}
}

// QueueCalibration queues a committed calibration record.
func (a *Adapter) QueueCalibration(r calibration.Record) {
	a.queue = append(a.queue, &item{entity: EntityCalibration, id: r.ID, record: &r})
}

// Flush replays the queue in order. Failed items come back as
// PersistenceErrors; the rest of the queue still runs.
func (a *Adapter) Flush(ctx context.Context) Result {
	queue := a.queue
	a.queue = nil
	result := Result{Rekeyed: map[string]string{}}
	for _, it := range queue {
		if err := ctx.Err(); err != nil {
			// Put back what did not run.
			a.queue = append(a.queue, it)
			continue
		}
		var err error
		switch it.entity {
		case EntityMarker:
			err = a.flushMarker(ctx, it, result.Rekeyed)
		case EntityLayer:
			err = a.flushLayer(ctx, it, result.Rekeyed)
		case EntityCalibration:
			err = a.flushCalibration(ctx, it, result.Rekeyed)
		}
		if err != nil {
			failure := a.failure(it, err)
			log.Printf("sync: %s %s %s failed for document %s: %v", failure.Op, failure.Entity, failure.ID, a.documentID, err)
			result.Failures = append(result.Failures, failure)
			continue
		}
		result.Applied++
	}
	return result
}

func (a *Adapter) failure(it *item, err error) *PersistenceError {
	retryable := !errors.Is(err, annotation.ErrNotFound) && !errors.Is(err, layer.ErrNotFound)
	var (
		invalid    *annotation.InvalidMarkerError
		degenerate *annotation.DegenerateShapeError
	)
	if errors.As(err, &invalid) || errors.As(err, &degenerate) {
		retryable = false
	}
	failure := &PersistenceError{
		Op:          it.op(),
		Entity:      it.entity,
		ID:          it.id,
		Err:         err,
		Retryable:   retryable,
		MutationIDs: it.mutationIDs,
		LayerBefore: it.layerBefore,
		LayerAfter:  it.layerAfter,
		Calibration: it.record,
	}
	if it.entity == EntityMarker {
		failure.MarkerChange = &annotation.Change{Before: it.markerBefore, After: it.markerAfter}
	}
	return failure
}

func (a *Adapter) outgoingMarker(m annotation.Marker) annotation.Marker {
	out := m.Clone()
	out.LayerID = a.resolve(out.LayerID)
	return out
}

func (a *Adapter) flushMarker(ctx context.Context, it *item, rekeyed map[string]string) error {
	switch it.op() {
	case OpCreate:
		created, err := a.backend.CreateMarker(ctx, a.documentID, a.outgoingMarker(*it.markerAfter))
		if err != nil {
			return err
		}
		if created.ID == "" {
			return fmt.Errorf("backend returned marker without id")
		}
		if created.ID != it.id {
			a.ids[it.id] = created.ID
			rekeyed[it.id] = created.ID
			if a.reconciler != nil {
				a.reconciler.RekeyMarker(it.id, created.ID)
			}
		}
		a.saved(ctx, created)
	case OpUpdate:
		patch := annotation.Diff(*it.markerBefore, *it.markerAfter)
		if patch.IsEmpty() {
			return nil
		}
		if patch.LayerID != nil {
			resolved := a.resolve(*patch.LayerID)
			patch.LayerID = &resolved
		}
		updated, err := a.backend.UpdateMarker(ctx, a.documentID, a.resolve(it.id), patch)
		if err != nil {
			return err
		}
		a.saved(ctx, updated)
	case OpDelete:
		id := a.resolve(it.id)
		if err := a.backend.DeleteMarker(ctx, a.documentID, id); err != nil {
			return err
		}
		for _, o := range a.observers {
			o.MarkerDeleted(ctx, a.documentID, id)
		}
	}
	return nil
}

func (a *Adapter) saved(ctx context.Context, m annotation.Marker) {
	for _, o := range a.observers {
		o.MarkerSaved(ctx, a.documentID, m)
	}
}

func (a *Adapter) flushLayer(ctx context.Context, it *item, rekeyed map[string]string) error {
	switch it.op() {
	case OpCreate:
		created, err := a.backend.CreateLayer(ctx, a.documentID, *it.layerAfter)
		if err != nil {
			return err
		}
		if created.ID != "" && created.ID != it.id {
			a.ids[it.id] = created.ID
			rekeyed[it.id] = created.ID
			if a.reconciler != nil {
				a.reconciler.RekeyLayer(it.id, created.ID)
			}
		}
	case OpUpdate:
		out := *it.layerAfter
		out.ID = a.resolve(it.id)
		if _, err := a.backend.UpdateLayer(ctx, a.documentID, out); err != nil {
			return err
		}
	case OpDelete:
		return a.backend.DeleteLayer(ctx, a.documentID, a.resolve(it.id))
	}
	return nil
}

func (a *Adapter) flushCalibration(ctx context.Context, it *item, rekeyed map[string]string) error {
	saved, err := a.backend.SaveCalibration(ctx, a.documentID, *it.record)
	if err != nil {
		return err
	}
	if saved.ID != "" && saved.ID != it.id {
		a.ids[it.id] = saved.ID
		rekeyed[it.id] = saved.ID
		if a.reconciler != nil {
			a.reconciler.RekeyCalibration(it.id, saved.ID)
		}
	}
	return nil
}

func cloneMarker(m *annotation.Marker) *annotation.Marker {
	if m == nil {
		return nil
	}
	c := m.Clone()
	return &c
}

func cloneLayer(l *layer.Layer) *layer.Layer {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}
