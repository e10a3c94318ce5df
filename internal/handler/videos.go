package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/Shivanand-hulikatti/slot-registration/internal/identity"
	"github.com/Shivanand-hulikatti/slot-registration/internal/model"
	"github.com/Shivanand-hulikatti/slot-registration/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	defaultMemberLimit = 10
	maxMemberLimit     = 50
)

// RegistrationService manages registration records.
type RegistrationService interface {
	Register(ctx context.Context, caller identity.Identity, req model.RegisterVideoRequest) (*model.Video, error)
	Get(ctx context.Context, id string) (*model.Video, error)
	Delete(ctx context.Context, caller identity.Identity, id string) error
	Approve(ctx context.Context, caller identity.Identity, id string) (*model.Video, error)
	Update(ctx context.Context, caller identity.Identity, id string, req model.UpdateVideoRequest) (*model.Video, error)
	Restore(ctx context.Context, caller identity.Identity, id string) (*model.Video, error)
	Purge(ctx context.Context, caller identity.Identity, id string) error
}

// MemberDirectory suggests author ids.
type MemberDirectory interface {
	Suggest(ctx context.Context, prefix string, limit int) ([]string, error)
}

// VideoHandler serves registration records.
type VideoHandler struct {
	videos  RegistrationService
	checker EligibilityChecker
	members MemberDirectory
	log     *zap.Logger
}

// NewVideoHandler constructs a VideoHandler.
func NewVideoHandler(videos RegistrationService, checker EligibilityChecker, members MemberDirectory, log *zap.Logger) *VideoHandler {
	return &VideoHandler{videos: videos, checker: checker, members: members, log: log}
}

// caller returns the identity put in place by the auth middleware. Routes
// using it sit behind identity.RequireAuth.
func caller(r *http.Request) identity.Identity {
	id, _ := identity.FromContext(r.Context())
	return id
}

// CheckUnlinked handles POST /videos/check
// Reports whether an eventless registration would be accepted.
func (h *VideoHandler) CheckUnlinked(w http.ResponseWriter, r *http.Request) {
	var req model.CheckUnlinkedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.AuthorXid) == "" || req.StartTime.IsZero() {
		writeError(w, http.StatusBadRequest, "author_xid and start_time are required")
		return
	}
	if !caller(r).CanActFor(req.AuthorXid) {
		writeServiceError(w, r, h.log, service.ErrForbidden)
		return
	}

	decision, err := h.checker.CheckUnlinkedRegistration(r.Context(), req.AuthorXid, req.EventIDs, req.StartTime)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, decision)
}

// Register handles POST /videos
// Slot registrations are created unapproved; eventless ones are approved
// immediately.
func (h *VideoHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterVideoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	video, err := h.videos.Register(r.Context(), caller(r), req)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, video)
}

// GetVideo handles GET /videos/{id}
// Soft-deleted records are only visible to admins.
func (h *VideoHandler) GetVideo(w http.ResponseWriter, r *http.Request) {
	video, err := h.videos.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	if video.IsDeleted && !caller(r).IsAdmin() {
		writeServiceError(w, r, h.log, service.ErrVideoNotFound)
		return
	}

	writeJSON(w, http.StatusOK, video)
}

// DeleteVideo handles DELETE /videos/{id}
func (h *VideoHandler) DeleteVideo(w http.ResponseWriter, r *http.Request) {
	if err := h.videos.Delete(r.Context(), caller(r), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApproveVideo handles POST /videos/{id}/approve
func (h *VideoHandler) ApproveVideo(w http.ResponseWriter, r *http.Request) {
	video, err := h.videos.Approve(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, video)
}

// UpdateVideo handles PATCH /videos/{id}
func (h *VideoHandler) UpdateVideo(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateVideoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	video, err := h.videos.Update(r.Context(), caller(r), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, video)
}

// RestoreVideo handles POST /videos/{id}/restore
func (h *VideoHandler) RestoreVideo(w http.ResponseWriter, r *http.Request) {
	video, err := h.videos.Restore(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, video)
}

// PurgeVideo handles DELETE /videos/{id}/purge
func (h *VideoHandler) PurgeVideo(w http.ResponseWriter, r *http.Request) {
	if err := h.videos.Purge(r.Context(), caller(r), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SuggestMembers handles GET /members?q=prefix&limit=n
func (h *VideoHandler) SuggestMembers(w http.ResponseWriter, r *http.Request) {
	limit := defaultMemberLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxMemberLimit)
	}

	xids, err := h.members.Suggest(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]string{"members": xids})
}
