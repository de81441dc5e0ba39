package calibration

import (
	"fmt"
	"time"

	"seehuhn.de/go/pdf/measure"

	"floorplan/api/internal/coords"
)

// Record is a committed calibration for one page.
type Record struct {
	ID                string       `json:"id"`
	PageNumber        int          `json:"pageNumber"`
	Start             coords.Point `json:"startPoint"`
	End               coords.Point `json:"endPoint"`
	DocumentDistance  float64      `json:"documentDistance"`
	RealWorldDistance float64      `json:"realWorldDistance"`
	Unit              Unit         `json:"unit"`
	CreatedAt         time.Time    `json:"createdAt"`
}

// NewRecord derives the document distance from the two points.
func NewRecord(page int, start, end coords.Point, realWorldDistance float64, unit Unit) (Record, error) {
	if !unit.Valid() {
		return Record{}, ErrUnknownUnit
	}
	if !(realWorldDistance > 0) {
		return Record{}, ErrInvalidDistance
	}
	distance := coords.Distance(start, end)
	if distance == 0 {
		return Record{}, &DegenerateError{Page: page, Point: start}
	}
	return Record{
		PageNumber:        page,
		Start:             start,
		End:               end,
		DocumentDistance:  distance,
		RealWorldDistance: realWorldDistance,
		Unit:              unit,
	}, nil
}

// Ratio is the real-world distance per document unit.
func (r Record) Ratio() float64 {
	if r.DocumentDistance == 0 {
		return 0
	}
	return r.RealWorldDistance / r.DocumentDistance
}

// Convert returns the record expressed in another unit. Document geometry
// is unchanged.
func (r Record) Convert(unit Unit) (Record, error) {
	value, err := ConvertLength(r.RealWorldDistance, r.Unit, unit)
	if err != nil {
		return Record{}, err
	}
	out := r
	out.RealWorldDistance = value
	out.Unit = unit
	return out, nil
}

// Measure returns the real-world distance between two document points.
func (r Record) Measure(a, b coords.Point) float64 {
	return coords.Distance(a, b) * r.Ratio()
}

// Legend formats the real-world length of a document span, for a scale bar.
func (r Record) Legend(documentLength float64) (string, error) {
	if r.DocumentDistance == 0 {
		return "", &DegenerateError{Page: r.PageNumber, Point: r.Start}
	}
	formats := []*measure.NumberFormat{{
		Unit:             string(r.Unit),
		ConversionFactor: r.Ratio(),
		Precision:        100,
		FractionFormat:   measure.FractionDecimal,
		SuffixSpacing:    " ",
	}}
	label, err := measure.Format(documentLength, formats)
	if err != nil {
		return "", fmt.Errorf("format legend: %w", err)
	}
	return label, nil
}
