package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"floorplan/api/internal/annotation"
)

// PgFTS implements Searcher using PostgreSQL full-text search over the
// markers table.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; the search shares the database the app needs.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search ranks markers with plainto_tsquery and ts_rank, using ts_headline
// for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	limit, offset := bounds(q)

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	where := "m.fts @@ " + tsQuery
	if q.DocumentID != "" {
		args = append(args, q.DocumentID)
		where += fmt.Sprintf(" AND m.document_id = $%d", len(args))
	}
	if q.Kind != "" {
		args = append(args, string(q.Kind))
		where += fmt.Sprintf(" AND m.kind = $%d", len(args))
	}
	if q.Page > 0 {
		args = append(args, q.Page)
		where += fmt.Sprintf(" AND m.page_number = $%d", len(args))
	}

	var total int
	if err := p.db.QueryRowContext(context.Background(), "SELECT count(*) FROM markers m WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT m.id, m.document_id, m.page_number, coalesce(m.layer_id, ''), m.kind,
			coalesce(m.payload->>'equipmentType', ''), m.label, m.equipment_ref,
			ts_headline('english', m.text_content, %s, 'MaxFragments=1,MaxWords=30') AS snippet
		FROM markers m
		WHERE %s
		ORDER BY ts_rank(m.fts, %s) DESC
		LIMIT %d OFFSET %d`, tsQuery, where, tsQuery, limit, offset)

	rows, err := p.db.QueryContext(context.Background(), dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r          Result
			label, ref string
		)
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.PageNumber, &r.LayerID, &r.Kind, &r.EquipmentType, &label, &ref, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Title = title(label, ref, r.Kind)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every marker for full reindexing.
func LoadAllRecords(ctx context.Context, db *sql.DB) ([]MarkerRecord, error) {
	rows, err := db.QueryContext(ctx, `SELECT document_id, payload FROM markers`)
	if err != nil {
		return nil, fmt.Errorf("load markers: %w", err)
	}
	defer rows.Close()

	records := make([]MarkerRecord, 0)
	for rows.Next() {
		var documentID, payload string
		if err := rows.Scan(&documentID, &payload); err != nil {
			return nil, fmt.Errorf("scan marker: %w", err)
		}
		var m annotation.Marker
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			return nil, fmt.Errorf("decode marker: %w", err)
		}
		records = append(records, RecordFromMarker(documentID, m))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate markers: %w", err)
	}
	return records, nil
}

func bounds(q Query) (int, int) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
