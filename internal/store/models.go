package store

import (
	"errors"
	"time"

	"floorplan/api/internal/coords"
)

var ErrDocumentNotFound = errors.New("document not found")

// Document is the floor plan a session edits. Pages holds the native size
// of each page in document units.
type Document struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Pages     []coords.PageSize `json:"pages"`
	DPI       float64           `json:"dpi"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// PageCount returns the number of pages, at least one.
func (d Document) PageCount() int {
	if len(d.Pages) == 0 {
		return 1
	}
	return len(d.Pages)
}
