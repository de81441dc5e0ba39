package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Like implements Searcher for SQLite, which has no tsvector. It matches
// substrings of the label, text and equipment reference.
type Like struct {
	db *sql.DB
}

func NewLike(db *sql.DB) *Like {
	return &Like{db: db}
}

func (l *Like) Healthy() bool {
	return true
}

func (l *Like) Search(q Query) ([]Result, int, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, 0, nil
	}
	limit, offset := bounds(q)

	pattern := "%" + strings.ToLower(text) + "%"
	where := "(lower(label) LIKE ? OR lower(text_content) LIKE ? OR lower(equipment_ref) LIKE ?)"
	args := []any{pattern, pattern, pattern}
	if q.DocumentID != "" {
		where += " AND document_id = ?"
		args = append(args, q.DocumentID)
	}
	if q.Kind != "" {
		where += " AND kind = ?"
		args = append(args, string(q.Kind))
	}
	if q.Page > 0 {
		where += " AND page_number = ?"
		args = append(args, q.Page)
	}

	ctx := context.Background()
	var total int
	if err := l.db.QueryRowContext(ctx, "SELECT count(*) FROM markers WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("like count: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, document_id, page_number, coalesce(layer_id, ''), kind,
			coalesce(json_extract(payload, '$.equipmentType'), ''), label, equipment_ref, text_content
		FROM markers
		WHERE %s
		ORDER BY page_number ASC, created_at ASC
		LIMIT %d OFFSET %d`, where, limit, offset), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("like query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r          Result
			label, ref string
		)
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.PageNumber, &r.LayerID, &r.Kind, &r.EquipmentType, &label, &ref, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("like scan: %w", err)
		}
		r.Title = title(label, ref, r.Kind)
		results = append(results, r)
	}
	return results, total, rows.Err()
}
