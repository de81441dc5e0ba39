package search

import (
	"context"
	"log"

	"floorplan/api/internal/annotation"
)

// Service is the facade that tries Meilisearch first and falls back to the
// database searcher.
type Service struct {
	meili    *Meili
	fallback Searcher
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured, fallback may be nil when the backend is not relational.
func NewService(meili *Meili, fallback Searcher) *Service {
	return &Service{meili: meili, fallback: fallback}
}

// Healthy reports whether any searcher can answer.
func (s *Service) Healthy() bool {
	return (s.meili != nil && s.meili.Healthy()) || s.fallback != nil
}

// Search tries Meilisearch if healthy, otherwise falls back.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back: %v", err)
	}
	if s.fallback == nil {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}

	results, total, err := s.fallback.Search(q)
	if err != nil {
		log.Printf("search: fallback error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// MarkerSaved indexes a confirmed marker (fire-and-forget to Meilisearch).
func (s *Service) MarkerSaved(_ context.Context, documentID string, m annotation.Marker) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	record := RecordFromMarker(documentID, m)
	go func() {
		if err := s.meili.IndexMarker(record); err != nil {
			log.Printf("search: index marker %s: %v", record.ID, err)
		}
	}()
}

// MarkerDeleted removes a marker from the index (fire-and-forget).
func (s *Service) MarkerDeleted(_ context.Context, _ string, id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteMarker(id); err != nil {
			log.Printf("search: delete marker %s: %v", id, err)
		}
	}()
}

// ReindexAll pushes every record to Meilisearch. Called during bootstrap.
func (s *Service) ReindexAll(records []MarkerRecord) {
	if s.meili == nil || !s.meili.Healthy() || len(records) == 0 {
		return
	}
	if err := s.meili.IndexMarkers(records); err != nil {
		log.Printf("search: reindex markers: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
