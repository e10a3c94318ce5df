package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/slot-registration/internal/audit"
	"github.com/Shivanand-hulikatti/slot-registration/internal/identity"
	"github.com/Shivanand-hulikatti/slot-registration/internal/model"
	"github.com/Shivanand-hulikatti/slot-registration/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const auditEntity = "video"

// RegistrationService creates and manages registration records, keeping the
// slot array consistent with them.
type RegistrationService struct {
	videos  VideoStore
	checker *Checker
	slots   *SlotService
	audit   audit.Recorder
	members *MemberDirectory
	log     *zap.Logger
	newID   func() string
}

// NewRegistrationService constructs a RegistrationService. members may be nil.
func NewRegistrationService(
	videos VideoStore,
	checker *Checker,
	slots *SlotService,
	recorder audit.Recorder,
	members *MemberDirectory,
	log *zap.Logger,
) *RegistrationService {
	return &RegistrationService{
		videos:  videos,
		checker: checker,
		slots:   slots,
		audit:   recorder,
		members: members,
		log:     log,
		newID:   func() string { return uuid.New().String() },
	}
}

// Register creates a registration for req.AuthorXid on behalf of caller.
//
// Slot path: the eligibility check gives early feedback, then ReserveSlots
// claims the slots under a pre-generated video id and only then is the record
// written. A reservation that loses a race leaves no record behind. If the
// record cannot be written the slots are released again.
//
// Unlinked path: the check (including the per-author quota) is followed by a
// plain insert.
func (s *RegistrationService) Register(ctx context.Context, caller identity.Identity, req model.RegisterVideoRequest) (*model.Video, error) {
	req.AuthorXid = strings.TrimSpace(req.AuthorXid)
	req.Title = strings.TrimSpace(req.Title)
	req.SlotEventID = strings.TrimSpace(req.SlotEventID)
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if !caller.CanActFor(req.AuthorXid) {
		return nil, ErrForbidden
	}

	var (
		video *model.Video
		err   error
	)
	if req.UsesSlots() {
		video, err = s.registerWithSlots(ctx, req)
	} else {
		video, err = s.registerUnlinked(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	s.invalidateMembers()
	s.audit.Record(ctx, audit.Entry{
		Action: audit.ActionCreate, Entity: auditEntity, EntityID: video.ID,
		Actor: caller.Actor(), After: video,
	})
	return video, nil
}

func (s *RegistrationService) registerWithSlots(ctx context.Context, req model.RegisterVideoRequest) (*model.Video, error) {
	decision, err := s.checker.CheckSlotRegistration(ctx, req.SlotDateTimes, req.SlotEventID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, &RejectionError{Decision: decision}
	}

	videoID := s.newID()
	if err := s.slots.ReserveSlots(ctx, req.SlotEventID, req.SlotDateTimes, videoID); err != nil {
		return nil, err
	}

	eventID := req.SlotEventID
	video := &model.Video{
		ID:          videoID,
		Title:       req.Title,
		Description: req.Description,
		VideoURL:    req.VideoURL,
		AuthorXid:   req.AuthorXid,
		EventIDs:    compactIDs(append([]string{eventID}, req.EventIDs...)),
		SlotID:      &eventID,
		StartTime:   model.SortedTimes(req.SlotDateTimes)[0].UTC(),
		IsApproved:  !decision.RequiresApproval,
	}
	if err := s.videos.Create(ctx, video); err != nil {
		if relErr := s.slots.ReleaseSlots(ctx, eventID, videoID); relErr != nil {
			s.log.Error("compensating release failed; slots stay held until reconciled",
				zap.String("event_id", eventID),
				zap.String("video_id", videoID),
				zap.Error(relErr),
			)
		}
		return nil, fmt.Errorf("create video: %w", err)
	}
	return video, nil
}

func (s *RegistrationService) registerUnlinked(ctx context.Context, req model.RegisterVideoRequest) (*model.Video, error) {
	if len(req.SlotDateTimes) > 0 {
		return nil, fmt.Errorf("%w: slot_date_times requires slot_event_id", ErrInvalidInput)
	}
	if req.StartTime == nil || req.StartTime.IsZero() {
		return nil, fmt.Errorf("%w: start_time is required without a slot", ErrInvalidInput)
	}

	eventIDs := compactIDs(req.EventIDs)
	decision, err := s.checker.CheckUnlinkedRegistration(ctx, req.AuthorXid, eventIDs, *req.StartTime)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, &RejectionError{Decision: decision}
	}

	video := &model.Video{
		ID:          s.newID(),
		Title:       req.Title,
		Description: req.Description,
		VideoURL:    req.VideoURL,
		AuthorXid:   req.AuthorXid,
		EventIDs:    eventIDs,
		StartTime:   req.StartTime.UTC(),
		IsApproved:  true,
	}
	if err := s.videos.Create(ctx, video); err != nil {
		return nil, fmt.Errorf("create video: %w", err)
	}
	return video, nil
}

// Get returns a record by id.
func (s *RegistrationService) Get(ctx context.Context, id string) (*model.Video, error) {
	v, err := s.videos.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrVideoNotFound
		}
		return nil, fmt.Errorf("get video: %w", err)
	}
	return v, nil
}

// Delete soft-deletes a record. Slots are released first: if the release
// fails the record stays live and the caller can retry, rather than leaving
// a deleted record holding slots. Deleting an already deleted record is a
// no-op.
func (s *RegistrationService) Delete(ctx context.Context, caller identity.Identity, id string) error {
	before, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !caller.CanActFor(before.AuthorXid) {
		return ErrForbidden
	}

	if before.IsSlotLinked() {
		if err := s.slots.ReleaseSlots(ctx, *before.SlotID, before.ID); err != nil {
			return fmt.Errorf("release slots: %w", err)
		}
	}
	if before.IsDeleted {
		return nil
	}

	if err := s.videos.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("delete video: %w", err)
	}

	s.invalidateMembers()
	after := *before
	after.IsDeleted = true
	s.audit.Record(ctx, audit.Entry{
		Action: audit.ActionDelete, Entity: auditEntity, EntityID: id,
		Actor: caller.Actor(), Before: before, After: &after,
	})
	return nil
}

// Approve marks a slot-linked registration approved. Admin only.
func (s *RegistrationService) Approve(ctx context.Context, caller identity.Identity, id string) (*model.Video, error) {
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	before, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if before.IsDeleted {
		return nil, ErrInvalidState
	}
	if before.IsApproved {
		return before, nil
	}
	if err := s.videos.Approve(ctx, id); err != nil {
		return nil, s.stateErr(err, "approve video")
	}

	after := *before
	after.IsApproved = true
	s.audit.Record(ctx, audit.Entry{
		Action: audit.ActionApprove, Entity: auditEntity, EntityID: id,
		Actor: caller.Actor(), Before: before, After: &after,
	})
	return &after, nil
}

// Update edits descriptive fields. Admin only; scheduling fields are not
// editable here.
func (s *RegistrationService) Update(ctx context.Context, caller identity.Identity, id string, req model.UpdateVideoRequest) (*model.Video, error) {
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	before, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if before.IsDeleted {
		return nil, ErrInvalidState
	}

	after := *before
	if req.Title != nil {
		after.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		after.Description = *req.Description
	}
	if req.VideoURL != nil {
		after.VideoURL = *req.VideoURL
	}
	if err := s.videos.UpdateDetails(ctx, &after); err != nil {
		return nil, s.stateErr(err, "update video")
	}

	s.audit.Record(ctx, audit.Entry{
		Action: audit.ActionUpdate, Entity: auditEntity, EntityID: id,
		Actor: caller.Actor(), Before: before, After: &after,
	})
	return &after, nil
}

// Restore brings a soft-deleted unlinked record back with its prior
// approval state. Slot-linked records gave up their slots at deletion and
// cannot be restored; the author registers again instead.
func (s *RegistrationService) Restore(ctx context.Context, caller identity.Identity, id string) (*model.Video, error) {
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	before, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !before.IsDeleted {
		return nil, ErrInvalidState
	}
	if before.SlotID != nil {
		return nil, fmt.Errorf("%w: slot registrations cannot be restored", ErrInvalidState)
	}
	if err := s.videos.Restore(ctx, id); err != nil {
		return nil, s.stateErr(err, "restore video")
	}

	s.invalidateMembers()
	after := *before
	after.IsDeleted = false
	after.DeletedAt = nil
	s.audit.Record(ctx, audit.Entry{
		Action: audit.ActionRestore, Entity: auditEntity, EntityID: id,
		Actor: caller.Actor(), Before: before, After: &after,
	})
	return &after, nil
}

// Purge permanently removes a soft-deleted record. Admin only.
func (s *RegistrationService) Purge(ctx context.Context, caller identity.Identity, id string) error {
	if !caller.IsAdmin() {
		return ErrForbidden
	}
	before, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !before.IsDeleted {
		return ErrInvalidState
	}
	return s.purge(ctx, caller.Actor(), before)
}

// PurgeExpired removes up to limit records soft-deleted before cutoff.
func (s *RegistrationService) PurgeExpired(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	ids, err := s.videos.ListPurgeable(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}
	purged := 0
	for _, id := range ids {
		before, err := s.Get(ctx, id)
		if errors.Is(err, ErrVideoNotFound) {
			continue
		}
		if err != nil {
			return purged, err
		}
		if err := s.purge(ctx, identity.SystemActor, before); err != nil {
			if errors.Is(err, ErrInvalidState) {
				continue
			}
			return purged, err
		}
		purged++
	}
	return purged, nil
}

func (s *RegistrationService) purge(ctx context.Context, actor string, before *model.Video) error {
	// Normally a no-op: slots were released at deletion.
	if before.IsSlotLinked() {
		if err := s.slots.ReleaseSlots(ctx, *before.SlotID, before.ID); err != nil {
			return fmt.Errorf("release slots: %w", err)
		}
	}
	if err := s.videos.Purge(ctx, before.ID); err != nil {
		return s.stateErr(err, "purge video")
	}
	s.audit.Record(ctx, audit.Entry{
		Action: audit.ActionPurge, Entity: auditEntity, EntityID: before.ID,
		Actor: actor, Before: before,
	})
	return nil
}

// stateErr maps a zero-row write (the record changed state underneath us)
// to ErrInvalidState.
func (s *RegistrationService) stateErr(err error, op string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInvalidState
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *RegistrationService) invalidateMembers() {
	if s.members != nil {
		s.members.Invalidate()
	}
}
