// Package calibration derives a real-world distance per document unit from
// two picked points and a typed-in physical distance.
package calibration

import (
	"sort"
	"time"

	"floorplan/api/internal/coords"
	"floorplan/api/internal/util"
)

type State string

const (
	StateIdle             State = "idle"
	StateAwaitingStart    State = "awaiting-start"
	StateAwaitingEnd      State = "awaiting-end"
	StateAwaitingDistance State = "awaiting-distance-input"
)

// Engine runs the capture state machine and keeps committed records per
// page. It never touches marker coordinates.
type Engine struct {
	state   State
	page    int
	start   coords.Point
	end     coords.Point
	records map[int][]Record
	now     func() time.Time
}

func NewEngine() *Engine {
	return &Engine{
		state:   StateIdle,
		records: map[int][]Record{},
		now:     time.Now,
	}
}

func (e *Engine) State() State { return e.state }

// Pending returns the points captured so far for the current calibration.
func (e *Engine) Pending() []coords.Point {
	switch e.state {
	case StateAwaitingEnd:
		return []coords.Point{e.start}
	case StateAwaitingDistance:
		return []coords.Point{e.start, e.end}
	}
	return nil
}

func (e *Engine) Page() int { return e.page }

func (e *Engine) Begin(page int) State {
	e.page = page
	e.start = coords.Point{}
	e.end = coords.Point{}
	e.state = StateAwaitingStart
	return e.state
}

// Capture records the next document point.
func (e *Engine) Capture(p coords.Point) (State, error) {
	switch e.state {
	case StateAwaitingStart:
		e.start = p
		e.state = StateAwaitingEnd
	case StateAwaitingEnd:
		e.end = p
		e.state = StateAwaitingDistance
	default:
		return e.state, ErrUnexpectedCapture
	}
	return e.state, nil
}

// Commit turns the two captured points into a Record. Invalid input keeps
// the engine waiting for a distance; coincident points send it back to
// awaiting-start.
func (e *Engine) Commit(realWorldDistance float64, unit Unit) (Record, error) {
	if e.state != StateAwaitingDistance {
		return Record{}, ErrNotReady
	}
	record, err := NewRecord(e.page, e.start, e.end, realWorldDistance, unit)
	if err != nil {
		if _, ok := err.(*DegenerateError); ok {
			e.start = coords.Point{}
			e.end = coords.Point{}
			e.state = StateAwaitingStart
		}
		return Record{}, err
	}
	record.ID = util.NewLocalID()
	record.CreatedAt = e.now().UTC()
	e.records[record.PageNumber] = append(e.records[record.PageNumber], record)
	e.state = StateIdle
	return record, nil
}

// Cancel drops in-progress points. Stored records are untouched.
func (e *Engine) Cancel() {
	e.start = coords.Point{}
	e.end = coords.Point{}
	e.state = StateIdle
}

// Active returns the most recent record for the page.
func (e *Engine) Active(page int) (Record, bool) {
	records := e.records[page]
	if len(records) == 0 {
		return Record{}, false
	}
	return records[len(records)-1], true
}

func (e *Engine) Records(page int) []Record {
	out := make([]Record, len(e.records[page]))
	copy(out, e.records[page])
	return out
}

// Load installs persisted records for a page, oldest first.
func (e *Engine) Load(page int, records []Record) {
	out := make([]Record, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	e.records[page] = out
}

// Rekey replaces a local record id with the persisted one.
func (e *Engine) Rekey(localID, serverID string) bool {
	for page, records := range e.records {
		for i := range records {
			if records[i].ID == localID {
				e.records[page][i].ID = serverID
				return true
			}
		}
	}
	return false
}

// Forget removes a record whose save failed.
func (e *Engine) Forget(id string) bool {
	for page, records := range e.records {
		for i := range records {
			if records[i].ID == id {
				e.records[page] = append(records[:i:i], records[i+1:]...)
				return true
			}
		}
	}
	return false
}
