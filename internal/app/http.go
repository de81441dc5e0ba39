package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"floorplan/api/internal/annotation"
	"floorplan/api/internal/calibration"
	"floorplan/api/internal/coords"
	"floorplan/api/internal/editor"
	"floorplan/api/internal/interaction"
	"floorplan/api/internal/layer"
	"floorplan/api/internal/search"
	"floorplan/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		// Search degrades to the database fallback, so it never fails readiness.
		searchStatus := "ok"
		if !s.service.SearchHealthy() {
			searchStatus = "degraded"
		}
		checks["search"] = map[string]any{"status": searchStatus}

		writeJSON(w, statusCode, map[string]any{
			"ok":       status == "ready",
			"status":   status,
			"checks":   checks,
			"sessions": s.service.OpenSessions(),
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/documents" {
		var body struct {
			Title string            `json:"title"`
			Pages []coords.PageSize `json:"pages"`
			DPI   float64           `json:"dpi"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		doc, err := s.service.CreateDocument(r.Context(), store.Document{Title: body.Title, Pages: body.Pages, DPI: body.DPI})
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"document": doc})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "documents" {
		documentID := parts[2]
		if len(parts) == 3 && r.Method == http.MethodGet {
			doc, err := s.service.GetDocument(r.Context(), documentID)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"document": doc})
			return
		}
		s.handleDocument(w, r, documentID, parts[3:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := search.Query{
		Text:       strings.TrimSpace(query.Get("q")),
		DocumentID: strings.TrimSpace(query.Get("documentId")),
		Kind:       annotation.Kind(strings.TrimSpace(query.Get("kind"))),
		Page:       queryInt(r, "page", 0),
		Limit:      queryInt(r, "limit", 20),
		Offset:     queryInt(r, "offset", 0),
	}
	if q.Text == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "q is required", nil)
		return
	}
	writeJSON(w, http.StatusOK, s.service.Search(q))
}

// withSession runs fn against the document's session and writes either its
// result or the mapped error.
func (s *HTTPServer) withSession(w http.ResponseWriter, r *http.Request, documentID string, status int, fn func(*editor.Session) (any, error)) {
	var payload any
	err := s.service.WithSession(r.Context(), documentID, func(sess *editor.Session) error {
		var err error
		payload, err = fn(sess)
		return err
	})
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, status, payload)
}

func viewPayload(sess *editor.Session) map[string]any {
	return map[string]any{"session": sess.View()}
}

func (s *HTTPServer) handleDocument(w http.ResponseWriter, r *http.Request, documentID string, rest []string) {
	if len(rest) == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch rest[0] {
	case "session":
		if len(rest) == 1 && r.Method == http.MethodGet {
			s.withSession(w, r, documentID, http.StatusOK, func(sess *editor.Session) (any, error) {
				return viewPayload(sess), nil
			})
			return
		}

	case "page":
		if len(rest) == 1 && r.Method == http.MethodPost {
			var body struct {
				Page int `json:"page"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			s.withSession(w, r, documentID, http.StatusOK, func(sess *editor.Session) (any, error) {
				if err := sess.GoToPage(r.Context(), body.Page); err != nil {
					return nil, err
				}
				return viewPayload(sess), nil
			})
			return
		}

	case "viewport":
		if len(rest) == 1 && r.Method == http.MethodPost {
			var body struct {
				Zoom    *float64 `json:"zoom"`
				PanX    *float64 `json:"panX"`
				PanY    *float64 `json:"panY"`
				OriginX *float64 `json:"originX"`
				OriginY *float64 `json:"originY"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			s.withSession(w, r, documentID, http.StatusOK, func(sess *editor.Session) (any, error) {
				if body.OriginX != nil || body.OriginY != nil {
					current := sess.Viewport()
					sess.SetOrigin(valueOr(body.OriginX, current.OriginX), valueOr(body.OriginY, current.OriginY))
				}
				if body.Zoom != nil {
					if _, err := sess.SetZoom(r.Context(), *body.Zoom); err != nil {
						return nil, err
					}
				}
				if body.PanX != nil || body.PanY != nil {
					current := sess.Viewport()
					sess.SetPan(valueOr(body.PanX, current.PanX), valueOr(body.PanY, current.PanY))
				}
				return map[string]any{"viewport": sess.Viewport()}, nil
			})
			return
		}

	case "tool":
		if len(rest) == 1 && r.Method == http.MethodPost {
			var body struct {
				Tool     interaction.Tool   `json:"tool"`
				Kind     annotation.Kind    `json:"kind"`
				Template *annotation.Marker `json:"template"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			var template annotation.Marker
			switch {
			case body.Template != nil:
				template = *body.Template
			case body.Kind != "":
				template = interaction.DefaultTemplate(body.Kind)
			}
			s.withSession(w, r, documentID, http.StatusOK, func(sess *editor.Session) (any, error) {
				if err := sess.SetTool(body.Tool, template); err != nil {
					return nil, err
				}
				return viewPayload(sess), nil
			})
			return
		}

	case "select":
		if len(rest) == 1 && r.Method == http.MethodPost {
			var body struct {
				MarkerID string `json:"markerId"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			s.withSession(w, r, documentID, http.StatusOK, func(sess *editor.Session) (any, error) {
				if body.MarkerID != "" {
					if _, err := sess.Marker(body.MarkerID); err != nil {
						return nil, err
					}
				}
				sess.Select(body.MarkerID)
				return viewPayload(sess), nil
			})
			return
		}

	case "active-layer":
		if len(rest) == 1 && r.Method == http.MethodPost {
			var body struct {
				LayerID string `json:"layerId"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			s.withSession(w, r, documentID, http.StatusOK, func(sess *editor.Session) (any, error) {
				if err := sess.SetActiveLayer(body.LayerID); err != nil {
					return nil, err
				}
				return viewPayload(sess), nil
			})
			return
		}

	case "events":
		if len(rest) == 1 && r.Method == http.MethodPost {
			var body struct {
				Events []inputEvent `json:"events"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			s.withSession(w, r, documentID, http.StatusOK, func(sess *editor.Session) (any, error) {
				for i, event := range body.Events {
					if err := applyEvent(r.Context(), sess, event); err != nil {
						return nil, fmt.Errorf("event %d (%s): %w", i, event.Type, err)
					}
				}
				return viewPayload(sess), nil
			})
			return
		}

	case "markers":
		s.handleMarkers(w, r, documentID, rest[1:])
		return

	case "layers":
		s.handleLayers(w, r, documentID, rest[1:])
		return

	case "calibration":
		if len(rest) == 1 {
			s.handleCalibration(w, r, documentID)
			return
		}

	case "measure":
		if len(rest) == 1 && r.Method == http.MethodPost {
			var body struct {
				Page int          `json:"page"`
				From coords.Point `json:"from"`
				To   coords.Point `json:"to"`
				Unit string       `json:"unit"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			var unit calibration.Unit
			if body.Unit != "" {
				parsed, err := calibration.ParseUnit(body.Unit)
				if err != nil {
					writeMappedError(w, err)
					return
				}
				unit = parsed
			}
			s.withSession(w, r, documentID, http.StatusOK, func(sess *editor.Session) (any, error) {
				page := body.Page
				if page == 0 {
					page = sess.Page()
				}
				distance, err := sess.Measure(page, body.From, body.To, unit)
				if err != nil {
					return nil, err
				}
				if unit == "" {
					if records := sess.Calibrations(page); len(records) > 0 {
						unit = records[len(records)-1].Unit
					}
				}
				return map[string]any{"distance": distance, "unit": unit, "page": page}, nil
			})
			return
		}

	case "undo", "redo":
		if len(rest) == 1 && r.Method == http.MethodPost {
			s.withSession(w, r, documentID, http.StatusOK, func(sess *editor.Session) (any, error) {
				var applied bool
				if rest[0] == "undo" {
					applied = sess.Undo()
				} else {
					applied = sess.Redo()
				}
				return map[string]any{"applied": applied, "session": sess.View()}, nil
			})
			return
		}

	case "flush":
		if len(rest) == 1 && r.Method == http.MethodPost {
			s.withSession(w, r, documentID, http.StatusOK, func(sess *editor.Session) (any, error) {
				result := sess.Flush(r.Context())
				failures := make([]map[string]any, 0, len(result.Failures))
				for _, failure := range result.Failures {
					failures = append(failures, map[string]any{
						"op":        failure.Op,
						"entity":    failure.Entity,
						"id":        failure.ID,
						"error":     failure.Err.Error(),
						"retryable": failure.Retryable,
					})
				}
				return map[string]any{
					"applied":  result.Applied,
					"rekeyed":  result.Rekeyed,
					"failures": failures,
					"session":  sess.View(),
				}, nil
			})
			return
		}

	case "render":
		if len(rest) == 1 && r.Method == http.MethodGet {
			s.withSession(w, r, documentID, http.StatusOK, func(sess *editor.Session) (any, error) {
				return map[string]any{"frame": sess.Frame()}, nil
			})
			return
		}

	case "render.svg":
		if len(rest) == 1 && r.Method == http.MethodGet {
			var svg string
			err := s.service.WithSession(r.Context(), documentID, func(sess *editor.Session) error {
				svg = sess.SVG()
				return nil
			})
			if err != nil {
				writeMappedError(w, err)
				return
			}
			w.Header().Set("Content-Type", "image/svg+xml")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(svg))
			return
		}

	case "checkpoints":
		s.handleCheckpoints(w, r, documentID, rest[1:])
		return

	case "notices":
		if len(rest) == 1 && r.Method == http.MethodDelete {
			s.withSession(w, r, documentID, http.StatusOK, func(sess *editor.Session) (any, error) {
				sess.DismissNotices()
				return viewPayload(sess), nil
			})
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// inputEvent is one pointer, wheel or key event in an events batch.
type inputEvent struct {
	Type   string  `json:"type"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	DeltaY float64 `json:"deltaY"`
	Key    string  `json:"key"`
	Shift  bool    `json:"shift"`
	Ctrl   bool    `json:"ctrl"`
	Meta   bool    `json:"meta"`
}

func applyEvent(ctx context.Context, sess *editor.Session, e inputEvent) error {
	pointer := interaction.PointerEvent{X: e.X, Y: e.Y, Shift: e.Shift, Ctrl: e.Ctrl || e.Meta}
	switch e.Type {
	case "pointerdown":
		return sess.PointerDown(pointer)
	case "pointermove":
		return sess.PointerMove(pointer)
	case "pointerup":
		return sess.PointerUp(pointer)
	case "dblclick":
		return sess.DoubleClick(pointer)
	case "wheel":
		_, err := sess.Wheel(ctx, pointer, e.DeltaY)
		return err
	case "keydown":
		return sess.Key(interaction.KeyEvent{Key: e.Key, Shift: e.Shift, Ctrl: e.Ctrl, Meta: e.Meta})
	}
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("unknown event type %q", e.Type), nil)
}

func (s *HTTPServer) handleMarkers(w http.ResponseWriter, r *http.Request, documentID string, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			page := queryInt(r, "page", 0)
			visibleOnly := r.URL.Query().Get("visible") == "true"
			s.withSession(w, r, documentID, http.StatusOK, func(sess *editor.Session) (any, error) {
				if page == 0 {
					page = sess.Page()
				}
				if page < 1 || page > sess.Document().PageCount() {
					return nil, fmt.Errorf("%w: %d", editor.ErrPageOutOfRange, page)
				}
				markers := sess.Markers(page)
				if visibleOnly {
					markers = sess.VisibleMarkers(page)
				}
				return map[string]any{"page": page, "markers": markers}, nil
			})
			return
		case http.MethodPost:
			var body annotation.Marker
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			s.withSession(w, r, documentID, http.StatusCreated, func(sess *editor.Session) (any, error) {
				marker, err := sess.AddMarker(body)
				if err != nil {
					return nil, err
				}
				return map[string]any{"marker": marker}, nil
			})
			return
		}
	}

	if len(rest) == 1 {
		markerID := rest[0]
		switch r.Method {
		case http.MethodGet:
			s.withSession(w, r, documentID, http.StatusOK, func(sess *editor.Session) (any, error) {
				marker, err := sess.Marker(markerID)
				if err != nil {
					return nil, err
				}
				return map[string]any{"marker": marker}, nil
			})
			return
		case http.MethodPut:
			var patch annotation.Patch
			if err := decodeBody(r, &patch); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			s.withSession(w, r, documentID, http.StatusOK, func(sess *editor.Session) (any, error) {
				marker, err := sess.UpdateMarker(markerID, patch)
				if err != nil {
					return nil, err
				}
				return map[string]any{"marker": marker}, nil
			})
			return
		case http.MethodDelete:
			s.withSession(w, r, documentID, http.StatusOK, func(sess *editor.Session) (any, error) {
				if err := sess.DeleteMarker(markerID); err != nil {
					return nil, err
				}
				return map[string]any{"deleted": markerID}, nil
			})
			return
		}
	}

	if len(rest) == 2 && rest[1] == "duplicate" && r.Method == http.MethodPost {
		markerID := rest[0]
		s.withSession(w, r, documentID, http.StatusCreated, func(sess *editor.Session) (any, error) {
			marker, err := sess.DuplicateMarker(markerID)
			if err != nil {
				return nil, err
			}
			return map[string]any{"marker": marker}, nil
		})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleLayers(w http.ResponseWriter, r *http.Request, documentID string, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			s.withSession(w, r, documentID, http.StatusOK, func(sess *editor.Session) (any, error) {
				return map[string]any{"layers": sess.Layers()}, nil
			})
			return
		case http.MethodPost:
			var body struct {
				Name  string `json:"name"`
				Color string `json:"color"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			s.withSession(w, r, documentID, http.StatusCreated, func(sess *editor.Session) (any, error) {
				created, err := sess.CreateLayer(body.Name, body.Color)
				if err != nil {
					return nil, err
				}
				return map[string]any{"layer": created}, nil
			})
			return
		}
	}

	if len(rest) == 1 {
		layerID := rest[0]
		switch r.Method {
		case http.MethodPut:
			var body editor.LayerUpdate
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			s.withSession(w, r, documentID, http.StatusOK, func(sess *editor.Session) (any, error) {
				updated, err := sess.UpdateLayer(layerID, body)
				if err != nil {
					return nil, err
				}
				return map[string]any{"layer": updated, "layers": sess.Layers()}, nil
			})
			return
		case http.MethodDelete:
			policy, err := layer.ParsePolicy(r.URL.Query().Get("policy"))
			if err != nil {
				writeMappedError(w, err)
				return
			}
			s.withSession(w, r, documentID, http.StatusOK, func(sess *editor.Session) (any, error) {
				if err := sess.DeleteLayer(layerID, policy); err != nil {
					return nil, err
				}
				return map[string]any{"deleted": layerID, "layers": sess.Layers()}, nil
			})
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleCalibration(w http.ResponseWriter, r *http.Request, documentID string) {
	switch r.Method {
	case http.MethodGet:
		page := queryInt(r, "page", 0)
		s.withSession(w, r, documentID, http.StatusOK, func(sess *editor.Session) (any, error) {
			if page == 0 {
				page = sess.Page()
			}
			return map[string]any{"page": page, "records": sess.Calibrations(page)}, nil
		})
		return
	case http.MethodPost:
		var body struct {
			Distance float64 `json:"distance"`
			Unit     string  `json:"unit"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		unit, err := calibration.ParseUnit(body.Unit)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		s.withSession(w, r, documentID, http.StatusCreated, func(sess *editor.Session) (any, error) {
			record, err := sess.CommitCalibration(body.Distance, unit)
			if err != nil {
				return nil, err
			}
			return map[string]any{"calibration": record, "ratio": record.Ratio()}, nil
		})
		return
	case http.MethodDelete:
		s.withSession(w, r, documentID, http.StatusOK, func(sess *editor.Session) (any, error) {
			sess.CancelCalibration()
			return viewPayload(sess), nil
		})
		return
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleCheckpoints(w http.ResponseWriter, r *http.Request, documentID string, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			limit := queryInt(r, "limit", 50)
			s.withSession(w, r, documentID, http.StatusOK, func(sess *editor.Session) (any, error) {
				checkpoints, err := sess.Checkpoints(limit)
				if err != nil {
					return nil, err
				}
				return map[string]any{"checkpoints": checkpoints}, nil
			})
			return
		case http.MethodPost:
			var body struct {
				Name   string `json:"name"`
				Author string `json:"author"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if strings.TrimSpace(body.Name) == "" {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
				return
			}
			s.withSession(w, r, documentID, http.StatusCreated, func(sess *editor.Session) (any, error) {
				info, err := sess.SaveCheckpoint(r.Context(), body.Name, body.Author)
				if err != nil {
					return nil, err
				}
				return map[string]any{"checkpoint": info}, nil
			})
			return
		}
	}

	if len(rest) == 2 {
		hash := rest[0]
		switch {
		case rest[1] == "restore" && r.Method == http.MethodPost:
			s.withSession(w, r, documentID, http.StatusOK, func(sess *editor.Session) (any, error) {
				info, err := sess.RestoreCheckpoint(hash)
				if err != nil {
					return nil, err
				}
				return map[string]any{"checkpoint": info, "session": sess.View()}, nil
			})
			return
		case rest[1] == "diff" && r.Method == http.MethodGet:
			s.withSession(w, r, documentID, http.StatusOK, func(sess *editor.Session) (any, error) {
				changes, err := sess.CompareCheckpoint(hash)
				if err != nil {
					return nil, err
				}
				return map[string]any{"from": hash, "changes": changes}, nil
			})
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status == http.StatusInternalServerError {
		log.Printf("app: unhandled error: %v", err)
	}
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func valueOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
