package handler

import (
	"net/http"
	"time"

	"github.com/Shivanand-hulikatti/slot-registration/internal/model"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// EventHandler serves events, their slots and slot eligibility checks.
type EventHandler struct {
	events  EventService
	slots   SlotAdmin
	checker EligibilityChecker
	log     *zap.Logger
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(events EventService, slots SlotAdmin, checker EligibilityChecker, log *zap.Logger) *EventHandler {
	return &EventHandler{events: events, slots: slots, checker: checker, log: log}
}

// eventView adds derived fields to an event for display.
type eventView struct {
	*model.Event
	AvailableSlots int `json:"available_slots"`
}

// CreateEvent handles POST /events
// Creates an event and generates its slots.
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.events.CreateEvent(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, eventView{Event: event, AvailableSlots: event.AvailableCount()})
}

// ListEvents handles GET /events
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.ListEvents(r.Context())
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	// Return an empty array rather than null for better client compatibility.
	views := make([]eventView, 0, len(events))
	for i := range events {
		views = append(views, eventView{Event: &events[i], AvailableSlots: events[i].AvailableCount()})
	}

	writeJSON(w, http.StatusOK, views)
}

// GetEvent handles GET /events/{id}
// Returns the event with its full slot array.
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.events.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, eventView{Event: event, AvailableSlots: event.AvailableCount()})
}

// DeleteEvent handles DELETE /events/{id}
func (h *EventHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.events.DeleteEvent(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CheckSlots handles POST /events/{id}/slots/check
// Reports whether the selection could be reserved right now. A denial is a
// normal 200 response carrying the reason.
func (h *EventHandler) CheckSlots(w http.ResponseWriter, r *http.Request) {
	var req model.CheckSlotsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	decision, err := h.checker.CheckSlotRegistration(r.Context(), req.SlotDateTimes, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, decision)
}

// AddSlots handles POST /events/{id}/slots
func (h *EventHandler) AddSlots(w http.ResponseWriter, r *http.Request) {
	var req model.AddSlotsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.slots.AddSlots(r.Context(), id, req.DateTimes); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	h.respondWithEvent(w, r, id, http.StatusCreated)
}

// DeleteSlot handles DELETE /events/{id}/slots?date_time=RFC3339
// Only free slots can be removed.
func (h *EventHandler) DeleteSlot(w http.ResponseWriter, r *http.Request) {
	at, err := time.Parse(time.RFC3339, r.URL.Query().Get("date_time"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date_time must be an RFC 3339 timestamp")
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.slots.DeleteSlot(r.Context(), id, at); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	h.respondWithEvent(w, r, id, http.StatusOK)
}

// UnassignSlot handles POST /events/{id}/slots/unassign
// Frees a slot regardless of which video holds it.
func (h *EventHandler) UnassignSlot(w http.ResponseWriter, r *http.Request) {
	var req model.SlotRefRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.DateTime.IsZero() {
		writeError(w, http.StatusBadRequest, "date_time is required")
		return
	}

	previous, err := h.slots.UnassignSlot(r.Context(), chi.URLParam(r, "id"), req.DateTime)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"date_time":         req.DateTime,
		"previous_video_id": previous,
	})
}

func (h *EventHandler) respondWithEvent(w http.ResponseWriter, r *http.Request, id string, status int) {
	event, err := h.events.GetEvent(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, status, eventView{Event: event, AvailableSlots: event.AvailableCount()})
}
