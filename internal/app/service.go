package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"floorplan/api/internal/checkpoint"
	"floorplan/api/internal/config"
	"floorplan/api/internal/coords"
	"floorplan/api/internal/editor"
	"floorplan/api/internal/search"
	"floorplan/api/internal/store"
	"floorplan/api/internal/syncer"
)

// Backend is a persistence backend that also owns document metadata.
type Backend interface {
	syncer.Backend
	GetDocument(ctx context.Context, documentID string) (store.Document, error)
	SaveDocument(ctx context.Context, doc store.Document) (store.Document, error)
	Ping(ctx context.Context) error
}

type sessionEntry struct {
	mu      sync.Mutex
	session *editor.Session
	closed  bool
	// ready is guarded by Service.mu and set once session is open.
	ready bool
}

// Service keeps one editing session per open document and pushes their
// queued changes to the backend on a timer.
type Service struct {
	cfg         config.Config
	backend     Backend
	search      *search.Service
	checkpoints *checkpoint.Service
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

func New(cfg config.Config, backend Backend, searchService *search.Service, checkpoints *checkpoint.Service) *Service {
	return &Service{
		cfg:         cfg,
		backend:     backend,
		search:      searchService,
		checkpoints: checkpoints,
		now:         time.Now,
		sessions:    make(map[string]*sessionEntry),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

func (s *Service) SearchHealthy() bool {
	return s.search != nil && s.search.Healthy()
}

func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

// CreateDocument registers a floor plan. Pages default to a single letter
// page and DPI to the configured render resolution.
func (s *Service) CreateDocument(ctx context.Context, doc store.Document) (store.Document, error) {
	doc.Title = strings.TrimSpace(doc.Title)
	if doc.Title == "" {
		return store.Document{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	for i, page := range doc.Pages {
		if !(page.Width > 0) || !(page.Height > 0) {
			return store.Document{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("page %d needs a positive size", i+1), nil)
		}
	}
	if len(doc.Pages) == 0 {
		doc.Pages = []coords.PageSize{{Width: 612, Height: 792}}
	}
	if doc.DPI <= 0 {
		doc.DPI = s.cfg.DPI
	}
	return s.backend.SaveDocument(ctx, doc)
}

func (s *Service) GetDocument(ctx context.Context, documentID string) (store.Document, error) {
	return s.backend.GetDocument(ctx, documentID)
}

func (s *Service) sessionOptions() editor.Options {
	opts := editor.Options{
		HistoryLimit: s.cfg.HistoryDepth,
		MinZoom:      s.cfg.MinZoom,
		MaxZoom:      s.cfg.MaxZoom,
		Checkpoints:  s.checkpoints,
	}
	if s.search != nil {
		opts.Observers = append(opts.Observers, s.search)
	}
	return opts
}

// entry returns the document's session entry. A missing session is opened
// outside the registry lock; the entry is published first with its own
// mutex held so concurrent callers for the same document wait on it.
func (s *Service) entry(ctx context.Context, documentID string) (*sessionEntry, error) {
	s.mu.Lock()
	if e, ok := s.sessions[documentID]; ok {
		s.mu.Unlock()
		return e, nil
	}
	e := &sessionEntry{}
	e.mu.Lock()
	s.sessions[documentID] = e
	s.mu.Unlock()

	session, err := s.open(ctx, documentID)
	if err != nil {
		e.closed = true
		s.mu.Lock()
		if s.sessions[documentID] == e {
			delete(s.sessions, documentID)
		}
		s.mu.Unlock()
		e.mu.Unlock()
		return nil, err
	}
	e.session = session
	s.mu.Lock()
	e.ready = true
	s.mu.Unlock()
	e.mu.Unlock()
	log.Printf("app: opened session for document %s", documentID)
	return e, nil
}

func (s *Service) open(ctx context.Context, documentID string) (*editor.Session, error) {
	doc, err := s.backend.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	session, err := editor.Open(ctx, s.backend, doc, s.sessionOptions())
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	return session, nil
}

// WithSession runs fn with exclusive access to the document's session,
// opening it on first use.
func (s *Service) WithSession(ctx context.Context, documentID string, fn func(*editor.Session) error) error {
	for {
		e, err := s.entry(ctx, documentID)
		if err != nil {
			return err
		}
		e.mu.Lock()
		if e.closed {
			// Evicted or failed to open between lookup and lock.
			e.mu.Unlock()
			continue
		}
		e.session.Touch(s.now())
		err = fn(e.session)
		e.mu.Unlock()
		return err
	}
}

func (s *Service) entries() map[string]*sessionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*sessionEntry, len(s.sessions))
	for id, e := range s.sessions {
		if e.ready {
			out[id] = e
		}
	}
	return out
}

// FlushAll pushes every session's pending changes.
func (s *Service) FlushAll(ctx context.Context) {
	for documentID, e := range s.entries() {
		e.mu.Lock()
		if !e.closed && e.session.Pending() > 0 {
			result := e.session.Flush(ctx)
			if len(result.Failures) > 0 {
				log.Printf("app: flush of document %s applied %d, failed %d", documentID, result.Applied, len(result.Failures))
			}
		}
		e.mu.Unlock()
	}
}

// Evict closes sessions idle for longer than the TTL once their queue is
// empty. It returns the number of sessions closed.
func (s *Service) Evict(ctx context.Context) int {
	if s.cfg.SessionTTL <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.cfg.SessionTTL)
	closed := 0
	for documentID, e := range s.entries() {
		e.mu.Lock()
		if e.closed || e.session.LastUsed().After(cutoff) {
			e.mu.Unlock()
			continue
		}
		e.session.Flush(ctx)
		if e.session.Pending() == 0 {
			e.closed = true
			s.mu.Lock()
			delete(s.sessions, documentID)
			s.mu.Unlock()
			closed++
			log.Printf("app: closed idle session for document %s", documentID)
		}
		e.mu.Unlock()
	}
	return closed
}

// Run flushes sessions every sync interval until ctx is done, then flushes
// one last time.
func (s *Service) Run(ctx context.Context) {
	interval := s.cfg.SyncInterval
	if interval <= 0 {
		interval = 750 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			s.FlushAll(shutdownCtx)
			cancel()
			return
		case <-ticker.C:
			s.FlushAll(ctx)
			s.Evict(ctx)
		}
	}
}

// OpenSessions returns the number of documents with a live session.
func (s *Service) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.sessions {
		if e.ready {
			n++
		}
	}
	return n
}
