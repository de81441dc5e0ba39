package search

import "floorplan/api/internal/annotation"

// Result is a single marker hit returned to the caller.
type Result struct {
	ID            string `json:"id"`
	DocumentID    string `json:"documentId"`
	PageNumber    int    `json:"pageNumber"`
	LayerID       string `json:"layerId,omitempty"`
	Kind          string `json:"kind"`
	EquipmentType string `json:"equipmentType,omitempty"`
	Title         string `json:"title"`
	Snippet       string `json:"snippet"`
}

// Query describes a search request.
type Query struct {
	Text       string
	DocumentID string
	Kind       annotation.Kind // empty = all kinds
	Page       int             // 0 = all pages
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// MarkerRecord is the data we index for a marker.
type MarkerRecord struct {
	ID            string `json:"id"`
	DocumentID    string `json:"documentId"`
	PageNumber    int    `json:"pageNumber"`
	LayerID       string `json:"layerId"`
	Kind          string `json:"kind"`
	EquipmentType string `json:"equipmentType"`
	Label         string `json:"label"`
	TextContent   string `json:"textContent"`
	EquipmentRef  string `json:"equipmentRef"`
}

func RecordFromMarker(documentID string, m annotation.Marker) MarkerRecord {
	return MarkerRecord{
		ID:            m.ID,
		DocumentID:    documentID,
		PageNumber:    m.PageNumber,
		LayerID:       m.LayerID,
		Kind:          string(m.Kind),
		EquipmentType: string(m.EquipmentType),
		Label:         m.Label,
		TextContent:   m.TextContent,
		EquipmentRef:  m.EquipmentRef,
	}
}

// title picks the most descriptive field of a record.
func title(label, equipmentRef, kind string) string {
	return firstNonBlank(label, equipmentRef, kind)
}
