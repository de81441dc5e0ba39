package editor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"floorplan/api/internal/annotation"
	"floorplan/api/internal/layer"
	"floorplan/api/internal/syncer"
)

const maxNotices = 20

// Notice is a user-facing message about a failed or reverted operation.
type Notice struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	EntityID  string    `json:"entityId,omitempty"`
	Retryable bool      `json:"retryable"`
	At        time.Time `json:"at"`
}

const (
	NoticePersistenceFailed = "PERSISTENCE_FAILED"
	NoticeNotFound          = "NOT_FOUND"
)

func (s *Session) notify(n Notice) {
	n.At = time.Now().UTC()
	s.notices = append(s.notices, n)
	if over := len(s.notices) - maxNotices; over > 0 {
		s.notices = append([]Notice(nil), s.notices[over:]...)
	}
}

func (s *Session) Notices() []Notice {
	out := make([]Notice, len(s.notices))
	copy(out, s.notices)
	return out
}

// DismissNotices clears the notice list.
func (s *Session) DismissNotices() {
	s.notices = nil
}

// Pending returns the number of queued backend calls.
func (s *Session) Pending() int { return s.adapter.Pending() }

// Flush pushes queued changes to the backend. Failed changes are rolled
// back locally and reported as notices.
func (s *Session) Flush(ctx context.Context) syncer.Result {
	result := s.adapter.Flush(ctx)
	for _, failure := range result.Failures {
		s.rollback(ctx, failure)
	}
	return result
}

func (s *Session) rollback(ctx context.Context, f *syncer.PersistenceError) {
	switch f.Entity {
	case syncer.EntityMarker:
		if errors.Is(f.Err, annotation.ErrNotFound) {
			s.resync(ctx, f)
			return
		}
		if c := f.MarkerChange; c != nil && c.Before != nil && !s.layerExists(c.Before.LayerID) {
			s.keepOffDeletedLayer(f)
			return
		}
		if f.MarkerChange != nil {
			s.markers.Revert(*f.MarkerChange)
		}
		for _, id := range f.MutationIDs {
			s.history.Discard(id)
		}
		if selected := s.controller.Selected(); selected != "" {
			if _, err := s.markers.Get(selected); err != nil {
				s.controller.Select("")
			}
		}
	case syncer.EntityLayer:
		switch {
		case f.LayerBefore != nil:
			s.layers.Restore(*f.LayerBefore)
		case f.LayerAfter != nil:
			s.layers.Drop(f.LayerAfter.ID)
		}
		if errors.Is(f.Err, layer.ErrNotFound) {
			s.notify(Notice{Code: NoticeNotFound, Message: "layer no longer exists", EntityID: f.ID})
			return
		}
	case syncer.EntityCalibration:
		if f.Calibration != nil {
			s.calibration.Forget(f.Calibration.ID)
		}
	}
	s.notify(Notice{
		Code:      NoticePersistenceFailed,
		Message:   fmt.Sprintf("could not %s %s: %v", f.Op, f.Entity, f.Err),
		EntityID:  f.ID,
		Retryable: f.Retryable,
	})
}

func (s *Session) layerExists(id string) bool {
	if id == "" {
		return true
	}
	_, ok := s.layers.Lookup(id)
	return ok
}

// keepOffDeletedLayer handles a failed marker change whose previous state
// points at a layer that has since been deleted. Reverting would orphan the
// marker, so a retryable change keeps its local state and goes back on the
// queue. Otherwise the previous state is restored without the layer and that
// detachment is queued instead.
func (s *Session) keepOffDeletedLayer(f *syncer.PersistenceError) {
	c := *f.MarkerChange
	if f.Retryable && c.After != nil {
		if len(f.MutationIDs) == 0 {
			s.adapter.EnqueueMarker(c, "")
		}
		for _, id := range f.MutationIDs {
			s.adapter.EnqueueMarker(c, id)
		}
		s.notify(Notice{
			Code:      NoticePersistenceFailed,
			Message:   fmt.Sprintf("could not %s %s: %v; will retry", f.Op, f.Entity, f.Err),
			EntityID:  f.ID,
			Retryable: true,
		})
		return
	}
	detached := c.Before.Clone()
	detached.LayerID = ""
	s.markers.Revert(annotation.Change{Before: &detached, After: c.After})
	s.adapter.EnqueueMarker(annotation.Change{Before: c.Before, After: &detached}, "")
	for _, id := range f.MutationIDs {
		s.history.Discard(id)
	}
	s.notify(Notice{
		Code:      NoticePersistenceFailed,
		Message:   fmt.Sprintf("could not %s %s: %v", f.Op, f.Entity, f.Err),
		EntityID:  f.ID,
		Retryable: f.Retryable,
	})
}

// resync reloads the page of a marker the backend no longer knows.
func (s *Session) resync(ctx context.Context, f *syncer.PersistenceError) {
	for _, id := range f.MutationIDs {
		s.history.Discard(id)
	}
	page := 0
	if c := f.MarkerChange; c != nil {
		if c.After != nil {
			page = c.After.PageNumber
		} else if c.Before != nil {
			page = c.Before.PageNumber
		}
	}
	s.notify(Notice{Code: NoticeNotFound, Message: (&annotation.NotFoundError{ID: f.ID}).Error(), EntityID: f.ID})
	if page == 0 {
		return
	}
	markers, err := s.backend.ListMarkers(ctx, s.doc.ID, page)
	if err != nil {
		log.Printf("editor: resync page %d of document %s: %v", page, s.doc.ID, err)
		if f.MarkerChange != nil {
			s.markers.Revert(*f.MarkerChange)
		}
		return
	}
	s.markers.Load(page, markers)
	if selected := s.controller.Selected(); selected != "" {
		if _, err := s.markers.Get(selected); err != nil {
			s.controller.Select("")
		}
	}
}
