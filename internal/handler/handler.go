// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Shivanand-hulikatti/slot-registration/internal/model"
	"github.com/Shivanand-hulikatti/slot-registration/internal/service"
	"go.uber.org/zap"
)

// EventService is the event catalogue the handlers need.
type EventService interface {
	CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	DeleteEvent(ctx context.Context, id string) error
}

// SlotAdmin covers the admin slot operations.
type SlotAdmin interface {
	AddSlots(ctx context.Context, eventID string, times []time.Time) error
	DeleteSlot(ctx context.Context, eventID string, at time.Time) error
	UnassignSlot(ctx context.Context, eventID string, at time.Time) (string, error)
}

// EligibilityChecker answers pre-submit checks.
type EligibilityChecker interface {
	CheckUnlinkedRegistration(ctx context.Context, authorXid string, eventIDs []string, startTime time.Time) (model.Decision, error)
	CheckSlotRegistration(ctx context.Context, times []time.Time, eventID string) (model.Decision, error)
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// rejectionResponse carries a denied eligibility decision.
type rejectionResponse struct {
	Error    string         `json:"error"`
	Decision model.Decision `json:"decision"`
}

// writeServiceError maps service errors onto HTTP statuses. Anything not
// recognised is logged and reported as a 500 without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	var rej *service.RejectionError
	switch {
	case errors.As(err, &rej):
		writeJSON(w, http.StatusUnprocessableEntity, rejectionResponse{Error: rej.Decision.Reason, Decision: rej.Decision})
	case errors.Is(err, service.ErrEventNotFound), errors.Is(err, service.ErrVideoNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrNoSlotsRequested),
		errors.Is(err, service.ErrTooManySlots),
		errors.Is(err, service.ErrDuplicateSlot):
		writeError(w, http.StatusBadRequest, err.Error())
	case service.IsSlotConflict(err),
		errors.Is(err, service.ErrEventExists),
		errors.Is(err, service.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled):
		// client went away; nobody reads the body
		w.WriteHeader(http.StatusServiceUnavailable)
	default:
		log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
