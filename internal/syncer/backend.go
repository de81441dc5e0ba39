// Package syncer pushes optimistic local edits to the persistence backend
// and reconciles the ids it hands back.
package syncer

import (
	"context"
	"fmt"

	"floorplan/api/internal/annotation"
	"floorplan/api/internal/calibration"
	"floorplan/api/internal/layer"
)

// Backend is the persistence contract. Every call is scoped by document.
// Missing markers are reported as annotation.ErrNotFound and missing layers
// as layer.ErrNotFound.
type Backend interface {
	ListMarkers(ctx context.Context, documentID string, page int) ([]annotation.Marker, error)
	CreateMarker(ctx context.Context, documentID string, m annotation.Marker) (annotation.Marker, error)
	UpdateMarker(ctx context.Context, documentID, id string, patch annotation.Patch) (annotation.Marker, error)
	DeleteMarker(ctx context.Context, documentID, id string) error

	ListLayers(ctx context.Context, documentID string) ([]layer.Layer, error)
	CreateLayer(ctx context.Context, documentID string, l layer.Layer) (layer.Layer, error)
	UpdateLayer(ctx context.Context, documentID string, l layer.Layer) (layer.Layer, error)
	DeleteLayer(ctx context.Context, documentID, id string) error

	SaveCalibration(ctx context.Context, documentID string, r calibration.Record) (calibration.Record, error)
	ListCalibration(ctx context.Context, documentID string, page int) ([]calibration.Record, error)
}

// Reconciler applies server ids to local state.
type Reconciler interface {
	RekeyMarker(localID, serverID string)
	RekeyLayer(localID, serverID string)
	RekeyCalibration(localID, serverID string)
}

// MarkerObserver hears about confirmed saves, for indexing.
type MarkerObserver interface {
	MarkerSaved(ctx context.Context, documentID string, m annotation.Marker)
	MarkerDeleted(ctx context.Context, documentID, id string)
}

const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
	OpSave   = "save"
)

const (
	EntityMarker      = "marker"
	EntityLayer       = "layer"
	EntityCalibration = "calibration"
)

// PersistenceError is a failed backend call together with what is needed
// to roll the optimistic change back.
type PersistenceError struct {
	Op        string
	Entity    string
	ID        string
	Err       error
	Retryable bool

	// MarkerChange spans from the earliest unsaved state to the latest one.
	MarkerChange *annotation.Change
	MutationIDs  []string
	LayerBefore  *layer.Layer
	LayerAfter   *layer.Layer
	Calibration  *calibration.Record
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
