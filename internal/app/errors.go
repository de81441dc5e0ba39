package app

import (
	"errors"
	"fmt"
	"net/http"

	"floorplan/api/internal/annotation"
	"floorplan/api/internal/calibration"
	"floorplan/api/internal/checkpoint"
	"floorplan/api/internal/editor"
	"floorplan/api/internal/interaction"
	"floorplan/api/internal/layer"
	"floorplan/api/internal/store"
	"floorplan/api/internal/syncer"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func mapError(err error) (status int, code, message string, details any) {
	var (
		domainErr   *DomainError
		degenerate  *annotation.DegenerateShapeError
		calibErr    *calibration.DegenerateError
		invalid     *annotation.InvalidMarkerError
		locked      *layer.LockedError
		mismatch    *interaction.KindMismatchError
		persistence *syncer.PersistenceError
	)
	switch {
	case errors.As(err, &domainErr):
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	case errors.As(err, &degenerate):
		return http.StatusUnprocessableEntity, "DEGENERATE_SHAPE", degenerate.Error(), map[string]any{
			"kind":   degenerate.Kind,
			"width":  degenerate.Width,
			"height": degenerate.Height,
		}
	case errors.As(err, &calibErr):
		return http.StatusUnprocessableEntity, "DEGENERATE_CALIBRATION", calibErr.Error(), map[string]any{
			"page": calibErr.Page,
		}
	case errors.As(err, &invalid), errors.As(err, &mismatch):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.As(err, &locked):
		return http.StatusLocked, "LAYER_LOCKED", locked.Error(), map[string]any{"layerId": locked.LayerID}
	case errors.As(err, &persistence):
		return http.StatusBadGateway, "PERSISTENCE_FAILED", persistence.Error(), map[string]any{"retryable": persistence.Retryable}
	case errors.Is(err, annotation.ErrNotFound),
		errors.Is(err, layer.ErrNotFound),
		errors.Is(err, store.ErrDocumentNotFound),
		errors.Is(err, checkpoint.ErrNoCheckpoints),
		errors.Is(err, checkpoint.ErrCheckpointNotFound):
		return http.StatusNotFound, "NOT_FOUND", err.Error(), nil
	case errors.Is(err, layer.ErrOrphanPolicyRequired),
		errors.Is(err, layer.ErrInvalidTarget),
		errors.Is(err, layer.ErrEmptyName),
		errors.Is(err, layer.ErrInvalidOpacity),
		errors.Is(err, calibration.ErrInvalidDistance),
		errors.Is(err, calibration.ErrUnknownUnit),
		errors.Is(err, interaction.ErrUnknownTool),
		errors.Is(err, editor.ErrPageOutOfRange):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, calibration.ErrNotReady),
		errors.Is(err, calibration.ErrUnexpectedCapture),
		errors.Is(err, calibration.ErrNotCalibrated):
		return http.StatusConflict, "CALIBRATION_STATE", err.Error(), nil
	case errors.Is(err, editor.ErrCheckpointsDisabled):
		return http.StatusServiceUnavailable, "CHECKPOINTS_DISABLED", err.Error(), nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
