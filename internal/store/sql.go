package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"floorplan/api/internal/annotation"
	"floorplan/api/internal/calibration"
	"floorplan/api/internal/coords"
	"floorplan/api/internal/layer"
	"floorplan/api/internal/syncer"
	"floorplan/api/internal/util"
)

var _ syncer.Backend = (*SQLStore)(nil)

// SQLStore is the relational backend. Queries use ? placeholders and are
// rebound for postgres.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, now: time.Now}
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, rebind(s.dialect, query), args...)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, rebind(s.dialect, query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, rebind(s.dialect, query), args...)
}

func (s *SQLStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	var (
		doc   Document
		pages string
	)
	err := s.queryRow(ctx, `SELECT id, title, pages, dpi, created_at, updated_at FROM documents WHERE id = ?`, documentID).
		Scan(&doc.ID, &doc.Title, &pages, &doc.DPI, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrDocumentNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	if err := json.Unmarshal([]byte(pages), &doc.Pages); err != nil {
		return Document{}, fmt.Errorf("decode document pages: %w", err)
	}
	return doc, nil
}

// SaveDocument inserts or replaces the document metadata.
func (s *SQLStore) SaveDocument(ctx context.Context, doc Document) (Document, error) {
	if doc.ID == "" {
		doc.ID = util.NewID("doc")
	}
	if doc.Pages == nil {
		doc.Pages = []coords.PageSize{}
	}
	pages, err := json.Marshal(doc.Pages)
	if err != nil {
		return Document{}, fmt.Errorf("encode document pages: %w", err)
	}
	now := s.now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	_, err = s.exec(ctx, `
		INSERT INTO documents (id, title, pages, dpi, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET title = excluded.title, pages = excluded.pages, dpi = excluded.dpi, updated_at = excluded.updated_at
	`, doc.ID, doc.Title, string(pages), doc.DPI, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return Document{}, fmt.Errorf("save document: %w", err)
	}
	return doc, nil
}

func (s *SQLStore) ListMarkers(ctx context.Context, documentID string, page int) ([]annotation.Marker, error) {
	rows, err := s.query(ctx, `
		SELECT payload FROM markers
		WHERE document_id = ? AND page_number = ?
		ORDER BY created_at ASC, id ASC
	`, documentID, page)
	if err != nil {
		return nil, fmt.Errorf("list markers: %w", err)
	}
	defer rows.Close()

	markers := make([]annotation.Marker, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan marker: %w", err)
		}
		var m annotation.Marker
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			return nil, fmt.Errorf("decode marker: %w", err)
		}
		markers = append(markers, m)
	}
	return markers, rows.Err()
}

// ListDocumentMarkers returns every marker of a document across pages.
func (s *SQLStore) ListDocumentMarkers(ctx context.Context, documentID string) ([]annotation.Marker, error) {
	rows, err := s.query(ctx, `
		SELECT payload FROM markers WHERE document_id = ? ORDER BY page_number ASC, created_at ASC, id ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list document markers: %w", err)
	}
	defer rows.Close()

	markers := make([]annotation.Marker, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan marker: %w", err)
		}
		var m annotation.Marker
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			return nil, fmt.Errorf("decode marker: %w", err)
		}
		markers = append(markers, m)
	}
	return markers, rows.Err()
}

func (s *SQLStore) CreateMarker(ctx context.Context, documentID string, m annotation.Marker) (annotation.Marker, error) {
	if err := annotation.Validate(m); err != nil {
		return annotation.Marker{}, err
	}
	now := s.now().UTC()
	m.ID = util.NewID("mk")
	m.Version = 1
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	if err := s.writeMarker(ctx, documentID, m, true); err != nil {
		return annotation.Marker{}, fmt.Errorf("insert marker: %w", err)
	}
	return m, nil
}

func (s *SQLStore) UpdateMarker(ctx context.Context, documentID, id string, patch annotation.Patch) (annotation.Marker, error) {
	var payload string
	err := s.queryRow(ctx, `SELECT payload FROM markers WHERE document_id = ? AND id = ?`, documentID, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return annotation.Marker{}, &annotation.NotFoundError{ID: id}
	}
	if err != nil {
		return annotation.Marker{}, fmt.Errorf("load marker: %w", err)
	}
	var current annotation.Marker
	if err := json.Unmarshal([]byte(payload), &current); err != nil {
		return annotation.Marker{}, fmt.Errorf("decode marker: %w", err)
	}

	next := patch.Apply(current)
	if err := annotation.Validate(next); err != nil {
		return annotation.Marker{}, err
	}
	next.Version = current.Version + 1
	next.UpdatedAt = s.now().UTC()
	if err := s.writeMarker(ctx, documentID, next, false); err != nil {
		return annotation.Marker{}, fmt.Errorf("update marker: %w", err)
	}
	return next, nil
}

func (s *SQLStore) writeMarker(ctx context.Context, documentID string, m annotation.Marker, insert bool) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode marker: %w", err)
	}
	var layerID any
	if m.LayerID != "" {
		layerID = m.LayerID
	}
	if insert {
		_, err = s.exec(ctx, `
			INSERT INTO markers (id, document_id, page_number, layer_id, kind, label, text_content, equipment_ref, payload, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, m.ID, documentID, m.PageNumber, layerID, string(m.Kind), m.Label, m.TextContent, m.EquipmentRef,
			string(payload), m.Version, m.CreatedAt, m.UpdatedAt)
		return err
	}
	result, err := s.exec(ctx, `
		UPDATE markers
		SET page_number = ?, layer_id = ?, kind = ?, label = ?, text_content = ?, equipment_ref = ?, payload = ?, version = ?, updated_at = ?
		WHERE document_id = ? AND id = ?
	`, m.PageNumber, layerID, string(m.Kind), m.Label, m.TextContent, m.EquipmentRef,
		string(payload), m.Version, m.UpdatedAt, documentID, m.ID)
	if err != nil {
		return err
	}
	return expectRow(result, &annotation.NotFoundError{ID: m.ID})
}

func (s *SQLStore) DeleteMarker(ctx context.Context, documentID, id string) error {
	result, err := s.exec(ctx, `DELETE FROM markers WHERE document_id = ? AND id = ?`, documentID, id)
	if err != nil {
		return fmt.Errorf("delete marker: %w", err)
	}
	return expectRow(result, &annotation.NotFoundError{ID: id})
}

func (s *SQLStore) ListLayers(ctx context.Context, documentID string) ([]layer.Layer, error) {
	rows, err := s.query(ctx, `
		SELECT id, name, color, visible, locked, order_index, opacity
		FROM layers
		WHERE document_id = ?
		ORDER BY order_index ASC, created_at ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list layers: %w", err)
	}
	defer rows.Close()

	layers := make([]layer.Layer, 0)
	for rows.Next() {
		var l layer.Layer
		if err := rows.Scan(&l.ID, &l.Name, &l.Color, &l.Visible, &l.Locked, &l.OrderIndex, &l.Opacity); err != nil {
			return nil, fmt.Errorf("scan layer: %w", err)
		}
		layers = append(layers, l)
	}
	return layers, rows.Err()
}

func (s *SQLStore) CreateLayer(ctx context.Context, documentID string, l layer.Layer) (layer.Layer, error) {
	l.ID = util.NewID("ly")
	_, err := s.exec(ctx, `
		INSERT INTO layers (id, document_id, name, color, visible, locked, order_index, opacity, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, l.ID, documentID, l.Name, l.Color, l.Visible, l.Locked, l.OrderIndex, l.Opacity, s.now().UTC())
	if err != nil {
		return layer.Layer{}, fmt.Errorf("insert layer: %w", err)
	}
	return l, nil
}

func (s *SQLStore) UpdateLayer(ctx context.Context, documentID string, l layer.Layer) (layer.Layer, error) {
	result, err := s.exec(ctx, `
		UPDATE layers
		SET name = ?, color = ?, visible = ?, locked = ?, order_index = ?, opacity = ?
		WHERE document_id = ? AND id = ?
	`, l.Name, l.Color, l.Visible, l.Locked, l.OrderIndex, l.Opacity, documentID, l.ID)
	if err != nil {
		return layer.Layer{}, fmt.Errorf("update layer: %w", err)
	}
	if err := expectRow(result, layer.ErrNotFound); err != nil {
		return layer.Layer{}, err
	}
	return l, nil
}

func (s *SQLStore) DeleteLayer(ctx context.Context, documentID, id string) error {
	result, err := s.exec(ctx, `DELETE FROM layers WHERE document_id = ? AND id = ?`, documentID, id)
	if err != nil {
		return fmt.Errorf("delete layer: %w", err)
	}
	return expectRow(result, layer.ErrNotFound)
}

func (s *SQLStore) SaveCalibration(ctx context.Context, documentID string, r calibration.Record) (calibration.Record, error) {
	r.ID = util.NewID("cal")
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	_, err := s.exec(ctx, `
		INSERT INTO calibrations (id, document_id, page_number, start_x, start_y, end_x, end_y, document_distance, real_world_distance, unit, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, documentID, r.PageNumber, r.Start.X, r.Start.Y, r.End.X, r.End.Y,
		r.DocumentDistance, r.RealWorldDistance, string(r.Unit), r.CreatedAt)
	if err != nil {
		return calibration.Record{}, fmt.Errorf("insert calibration: %w", err)
	}
	return r, nil
}

// ListCalibration returns the page's records, oldest first. The last one is
// the active calibration.
func (s *SQLStore) ListCalibration(ctx context.Context, documentID string, page int) ([]calibration.Record, error) {
	rows, err := s.query(ctx, `
		SELECT id, page_number, start_x, start_y, end_x, end_y, document_distance, real_world_distance, unit, created_at
		FROM calibrations
		WHERE document_id = ? AND page_number = ?
		ORDER BY created_at ASC, id ASC
	`, documentID, page)
	if err != nil {
		return nil, fmt.Errorf("list calibrations: %w", err)
	}
	defer rows.Close()

	records := make([]calibration.Record, 0)
	for rows.Next() {
		var (
			r    calibration.Record
			unit string
		)
		if err := rows.Scan(&r.ID, &r.PageNumber, &r.Start.X, &r.Start.Y, &r.End.X, &r.End.Y,
			&r.DocumentDistance, &r.RealWorldDistance, &unit, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan calibration: %w", err)
		}
		r.Unit = calibration.Unit(unit)
		records = append(records, r)
	}
	return records, rows.Err()
}

func expectRow(result sql.Result, missing error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return missing
	}
	return nil
}
