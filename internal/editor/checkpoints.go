package editor

import (
	"context"

	"floorplan/api/internal/annotation"
	"floorplan/api/internal/checkpoint"
)

// OpRestoreCheckpoint names the store mutation a checkpoint restore records.
const OpRestoreCheckpoint = "restore-checkpoint"

func (s *Session) snapshot() checkpoint.Snapshot {
	snap := checkpoint.Snapshot{}
	for page := 1; page <= s.doc.PageCount(); page++ {
		if markers := s.markers.List(page); len(markers) > 0 {
			snap[page] = markers
		}
	}
	return snap
}

// SaveCheckpoint flushes pending changes so the snapshot carries persisted
// ids, then commits every page.
func (s *Session) SaveCheckpoint(ctx context.Context, name, author string) (checkpoint.Info, error) {
	if s.checkpoints == nil {
		return checkpoint.Info{}, ErrCheckpointsDisabled
	}
	s.Flush(ctx)
	return s.checkpoints.Save(s.doc.ID, name, author, s.snapshot())
}

func (s *Session) Checkpoints(limit int) ([]checkpoint.Info, error) {
	if s.checkpoints == nil {
		return nil, ErrCheckpointsDisabled
	}
	return s.checkpoints.History(s.doc.ID, limit)
}

// CompareCheckpoint counts how the current markers differ from a checkpoint.
func (s *Session) CompareCheckpoint(hash string) ([]checkpoint.PageChange, error) {
	if s.checkpoints == nil {
		return nil, ErrCheckpointsDisabled
	}
	saved, _, err := s.checkpoints.Load(s.doc.ID, hash)
	if err != nil {
		return nil, err
	}
	return checkpoint.Compare(saved, s.snapshot()), nil
}

// RestoreCheckpoint replaces every page with the checkpoint's markers as a
// single undoable mutation.
func (s *Session) RestoreCheckpoint(hash string) (checkpoint.Info, error) {
	if s.checkpoints == nil {
		return checkpoint.Info{}, ErrCheckpointsDisabled
	}
	saved, info, err := s.checkpoints.Load(s.doc.ID, hash)
	if err != nil {
		return checkpoint.Info{}, err
	}
	pages := make(map[int][]annotation.Marker, s.doc.PageCount())
	for page := 1; page <= s.doc.PageCount(); page++ {
		pages[page] = saved[page]
	}
	if _, err := s.markers.ReplacePages(OpRestoreCheckpoint, pages); err != nil {
		return checkpoint.Info{}, err
	}
	s.controller.Select("")
	s.controller.Cancel()
	return info, nil
}
