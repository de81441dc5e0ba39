package calibration

import (
	"errors"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"

	"floorplan/api/internal/coords"
)

func calibrate(t *testing.T, e *Engine, start, end coords.Point) {
	t.Helper()
	e.Begin(1)
	if _, err := e.Capture(start); err != nil {
		t.Fatalf("capture start: %v", err)
	}
	if _, err := e.Capture(end); err != nil {
		t.Fatalf("capture end: %v", err)
	}
}

func TestCommitDerivesRatio(t *testing.T) {
	e := NewEngine()
	calibrate(t, e, coords.Point{X: 0, Y: 0}, coords.Point{X: 100, Y: 0})

	record, err := e.Commit(50, Feet)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if record.DocumentDistance != 100 {
		t.Fatalf("expected document distance 100, got %v", record.DocumentDistance)
	}
	if record.Ratio() != 0.5 {
		t.Fatalf("expected ratio 0.5, got %v", record.Ratio())
	}
	if e.State() != StateIdle {
		t.Fatalf("expected idle after commit, got %s", e.State())
	}
	if active, ok := e.Active(1); !ok || active.ID != record.ID {
		t.Fatalf("expected committed record to be active")
	}
}

func TestDocumentDistanceIsOrderIndependent(t *testing.T) {
	forward := NewEngine()
	calibrate(t, forward, coords.Point{X: 0, Y: 0}, coords.Point{X: 100, Y: 0})
	a, err := forward.Commit(50, Feet)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	reverse := NewEngine()
	calibrate(t, reverse, coords.Point{X: 100, Y: 0}, coords.Point{X: 0, Y: 0})
	b, err := reverse.Commit(50, Feet)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if a.DocumentDistance != b.DocumentDistance {
		t.Fatalf("distance depends on order: %v vs %v", a.DocumentDistance, b.DocumentDistance)
	}
}

func TestCoincidentPointsResetToAwaitingStart(t *testing.T) {
	e := NewEngine()
	calibrate(t, e, coords.Point{X: 5, Y: 5}, coords.Point{X: 5, Y: 5})

	_, err := e.Commit(10, Meters)
	var degenerate *DegenerateError
	if !errors.As(err, &degenerate) {
		t.Fatalf("expected DegenerateError, got %v", err)
	}
	if e.State() != StateAwaitingStart {
		t.Fatalf("expected awaiting-start, got %s", e.State())
	}
	if len(e.Records(1)) != 0 {
		t.Fatal("degenerate calibration must not be stored")
	}
}

func TestInvalidInputKeepsState(t *testing.T) {
	e := NewEngine()
	calibrate(t, e, coords.Point{X: 0, Y: 0}, coords.Point{X: 10, Y: 0})

	if _, err := e.Commit(0, Feet); !errors.Is(err, ErrInvalidDistance) {
		t.Fatalf("expected ErrInvalidDistance, got %v", err)
	}
	if _, err := e.Commit(5, Unit("furlong")); !errors.Is(err, ErrUnknownUnit) {
		t.Fatalf("expected ErrUnknownUnit, got %v", err)
	}
	if e.State() != StateAwaitingDistance {
		t.Fatalf("expected to keep waiting for distance, got %s", e.State())
	}
}

func TestCancelKeepsStoredRecords(t *testing.T) {
	e := NewEngine()
	calibrate(t, e, coords.Point{X: 0, Y: 0}, coords.Point{X: 10, Y: 0})
	if _, err := e.Commit(1, Meters); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	e.Begin(1)
	if _, err := e.Capture(coords.Point{X: 3, Y: 4}); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	e.Cancel()

	if e.State() != StateIdle {
		t.Fatalf("expected idle, got %s", e.State())
	}
	if e.Pending() != nil {
		t.Fatalf("expected no pending points, got %v", e.Pending())
	}
	if len(e.Records(1)) != 1 {
		t.Fatalf("cancel must not touch stored records")
	}
}

func TestCaptureOutOfOrder(t *testing.T) {
	e := NewEngine()
	if _, err := e.Capture(coords.Point{}); !errors.Is(err, ErrUnexpectedCapture) {
		t.Fatalf("expected ErrUnexpectedCapture, got %v", err)
	}
}

func TestMeasureConvertAndLegend(t *testing.T) {
	record, err := NewRecord(1, coords.Point{X: 0, Y: 0}, coords.Point{X: 100, Y: 0}, 50, Feet)
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	if got := record.Measure(coords.Point{X: 0, Y: 0}, coords.Point{X: 30, Y: 40}); got != 25 {
		t.Fatalf("expected 25 ft, got %v", got)
	}

	inMeters, err := record.Convert(Meters)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !scalar.EqualWithinAbsOrRel(inMeters.RealWorldDistance, 15.24, 1e-9, 1e-9) {
		t.Fatalf("expected 15.24 m, got %v", inMeters.RealWorldDistance)
	}

	label, err := record.Legend(100)
	if err != nil {
		t.Fatalf("Legend: %v", err)
	}
	if label != "50 ft" {
		t.Fatalf("expected %q, got %q", "50 ft", label)
	}
	label, err = record.Legend(25)
	if err != nil {
		t.Fatalf("Legend: %v", err)
	}
	if label != "12.50 ft" {
		t.Fatalf("expected %q, got %q", "12.50 ft", label)
	}
}

func TestRekeyAndForget(t *testing.T) {
	e := NewEngine()
	calibrate(t, e, coords.Point{X: 0, Y: 0}, coords.Point{X: 10, Y: 0})
	record, _ := e.Commit(1, Meters)

	if !e.Rekey(record.ID, "cal_1") {
		t.Fatal("expected rekey to find the record")
	}
	if active, _ := e.Active(1); active.ID != "cal_1" {
		t.Fatalf("expected rekeyed id, got %s", active.ID)
	}
	if !e.Forget("cal_1") {
		t.Fatal("expected forget to remove the record")
	}
	if _, ok := e.Active(1); ok {
		t.Fatal("expected no active record")
	}
}
