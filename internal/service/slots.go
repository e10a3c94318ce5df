package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/Shivanand-hulikatti/slot-registration/internal/metrics"
	"github.com/Shivanand-hulikatti/slot-registration/internal/model"
	"github.com/Shivanand-hulikatti/slot-registration/internal/repository"
	"github.com/Shivanand-hulikatti/slot-registration/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SlotService owns every mutation of an event's slot array. All of them run
// through EventStore.UpdateSlots, so the event row is the unit of mutual
// exclusion and concurrent writers on one event are serialised.
type SlotService struct {
	events EventStore
	cache  EventViewCache
	log    *zap.Logger
}

// NewSlotService constructs a SlotService. cache may be nil.
func NewSlotService(events EventStore, cache EventViewCache, log *zap.Logger) *SlotService {
	if cache == nil {
		cache = nopEventCache{}
	}
	return &SlotService{events: events, cache: cache, log: log}
}

// ReserveSlots atomically assigns the slots at times to videoID.
//
// The availability check is repeated inside the transaction against the
// freshly locked slot array; this, not any earlier eligibility check, is what
// prevents double booking. Either every requested slot is assigned or none
// is.
func (s *SlotService) ReserveSlots(ctx context.Context, eventID string, times []time.Time, videoID string) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.slots.reserve",
		attribute.String("event_id", eventID),
		attribute.String("video_id", videoID),
		attribute.Int("slot_count", len(times)),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	err = s.events.UpdateSlots(ctx, eventID, func(slots []model.Slot) ([]model.Slot, bool, error) {
		out, err := claimSlots(slots, times, videoID)
		if err != nil {
			return nil, false, err
		}
		return out, true, nil
	})

	switch {
	case err == nil:
		metrics.SlotReservations.WithLabelValues("success").Inc()
		s.cache.Invalidate(ctx, eventID)
		s.log.Info("slots reserved",
			zap.String("event_id", eventID),
			zap.String("video_id", videoID),
			zap.Int("slot_count", len(times)),
		)
		return nil
	case errors.Is(err, repository.ErrNotFound):
		metrics.SlotReservations.WithLabelValues("not_found").Inc()
		return ErrEventNotFound
	case IsSlotConflict(err) || errors.Is(err, ErrInvalidInput):
		metrics.SlotReservations.WithLabelValues("conflict").Inc()
		return err
	default:
		metrics.SlotReservations.WithLabelValues("error").Inc()
		return err
	}
}

// ReleaseSlots frees every slot of eventID held by videoID. Having nothing
// to release, including a missing event, is not an error.
func (s *SlotService) ReleaseSlots(ctx context.Context, eventID, videoID string) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.slots.release",
		attribute.String("event_id", eventID),
		attribute.String("video_id", videoID),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	released := 0
	err = s.events.UpdateSlots(ctx, eventID, func(slots []model.Slot) ([]model.Slot, bool, error) {
		out, n := releaseSlots(slots, videoID)
		released = n
		return out, n > 0, nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		s.log.Warn("release skipped: event not found",
			zap.String("event_id", eventID),
			zap.String("video_id", videoID),
		)
		metrics.SlotReleases.WithLabelValues("noop").Inc()
		return nil
	}
	if err != nil {
		metrics.SlotReleases.WithLabelValues("error").Inc()
		return err
	}

	if released == 0 {
		metrics.SlotReleases.WithLabelValues("noop").Inc()
		return nil
	}
	metrics.SlotReleases.WithLabelValues("released").Inc()
	s.cache.Invalidate(ctx, eventID)
	s.log.Info("slots released",
		zap.String("event_id", eventID),
		zap.String("video_id", videoID),
		zap.Int("released", released),
	)
	return nil
}

// AddSlots inserts new free slots, keeping the array in chronological order.
func (s *SlotService) AddSlots(ctx context.Context, eventID string, times []time.Time) error {
	if len(times) == 0 {
		return ErrNoSlotsRequested
	}
	err := s.events.UpdateSlots(ctx, eventID, func(slots []model.Slot) ([]model.Slot, bool, error) {
		out := model.CloneSlots(slots)
		for _, t := range times {
			if model.IndexOf(out, t) >= 0 {
				return nil, false, &SlotError{Err: ErrSlotExists, DateTime: t}
			}
			out = append(out, model.Slot{DateTime: t.UTC()})
		}
		sortSlots(out)
		return out, true, nil
	})
	return s.afterAdminMutation(ctx, eventID, err)
}

// DeleteSlot removes a free slot. Assigned slots cannot be deleted.
func (s *SlotService) DeleteSlot(ctx context.Context, eventID string, at time.Time) error {
	err := s.events.UpdateSlots(ctx, eventID, func(slots []model.Slot) ([]model.Slot, bool, error) {
		idx := model.IndexOf(slots, at)
		if idx < 0 {
			return nil, false, &SlotError{Err: ErrSlotNotFound, DateTime: at}
		}
		if !slots[idx].IsAvailable() {
			return nil, false, &SlotError{Err: ErrSlotAlreadyAssigned, DateTime: at}
		}
		out := model.CloneSlots(slots)
		return append(out[:idx], out[idx+1:]...), true, nil
	})
	return s.afterAdminMutation(ctx, eventID, err)
}

// UnassignSlot clears a slot's assignment by explicit admin action and
// returns the video that held it, or "" if it was already free.
func (s *SlotService) UnassignSlot(ctx context.Context, eventID string, at time.Time) (string, error) {
	var previous string
	err := s.events.UpdateSlots(ctx, eventID, func(slots []model.Slot) ([]model.Slot, bool, error) {
		idx := model.IndexOf(slots, at)
		if idx < 0 {
			return nil, false, &SlotError{Err: ErrSlotNotFound, DateTime: at}
		}
		if slots[idx].IsAvailable() {
			return slots, false, nil
		}
		previous = *slots[idx].AssignedVideoID
		out := model.CloneSlots(slots)
		out[idx].AssignedVideoID = nil
		return out, true, nil
	})
	if err := s.afterAdminMutation(ctx, eventID, err); err != nil {
		return "", err
	}
	if previous != "" {
		s.log.Info("slot unassigned by admin",
			zap.String("event_id", eventID),
			zap.Time("date_time", at),
			zap.String("video_id", previous),
		)
	}
	return previous, nil
}

// ReleaseOrphans frees slots of eventID whose holder is in orphans. The
// assignment is re-read inside the transaction, so a slot re-claimed since
// the caller looked is left alone.
func (s *SlotService) ReleaseOrphans(ctx context.Context, eventID string, orphans map[string]bool) (int, error) {
	if len(orphans) == 0 {
		return 0, nil
	}
	cleared := 0
	err := s.events.UpdateSlots(ctx, eventID, func(slots []model.Slot) ([]model.Slot, bool, error) {
		out := model.CloneSlots(slots)
		cleared = 0
		for i := range out {
			if out[i].AssignedVideoID != nil && orphans[*out[i].AssignedVideoID] {
				out[i].AssignedVideoID = nil
				cleared++
			}
		}
		return out, cleared > 0, nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if cleared > 0 {
		s.cache.Invalidate(ctx, eventID)
	}
	return cleared, nil
}

func (s *SlotService) afterAdminMutation(ctx context.Context, eventID string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrEventNotFound
	}
	if err != nil {
		return err
	}
	s.cache.Invalidate(ctx, eventID)
	return nil
}

// GenerateSlots builds count free slots starting at first, interval apart.
func GenerateSlots(first time.Time, interval time.Duration, count int) []model.Slot {
	slots := make([]model.Slot, 0, count)
	for i := 0; i < count; i++ {
		slots = append(slots, model.Slot{DateTime: first.Add(time.Duration(i) * interval).UTC()})
	}
	return slots
}

// claimSlots returns a copy of slots with the requested instants assigned to
// videoID, or an error and no copy if any requested slot cannot be taken.
func claimSlots(slots []model.Slot, times []time.Time, videoID string) ([]model.Slot, error) {
	if len(times) == 0 {
		return nil, ErrNoSlotsRequested
	}
	if len(times) > model.MaxSlotsPerVideo {
		return nil, ErrTooManySlots
	}
	if videoID == "" {
		return nil, ErrInvalidInput
	}

	indexes := make([]int, 0, len(times))
	seen := make(map[int]bool, len(times))
	for _, t := range times {
		idx := model.IndexOf(slots, t)
		if idx < 0 {
			return nil, &SlotError{Err: ErrSlotNotFound, DateTime: t}
		}
		if seen[idx] {
			return nil, &SlotError{Err: ErrDuplicateSlot, DateTime: t}
		}
		if !slots[idx].IsAvailable() {
			return nil, &SlotError{Err: ErrSlotAlreadyAssigned, DateTime: t}
		}
		seen[idx] = true
		indexes = append(indexes, idx)
	}
	if !consecutive(slots, times) {
		return nil, ErrSlotsNotConsecutive
	}

	out := model.CloneSlots(slots)
	for _, idx := range indexes {
		id := videoID
		out[idx].AssignedVideoID = &id
	}
	return out, nil
}

// releaseSlots returns a copy of slots with every assignment to videoID
// cleared, and how many were cleared.
func releaseSlots(slots []model.Slot, videoID string) ([]model.Slot, int) {
	out := model.CloneSlots(slots)
	n := 0
	for i := range out {
		if out[i].AssignedTo(videoID) {
			out[i].AssignedVideoID = nil
			n++
		}
	}
	return out, n
}

// consecutive reports whether the requested instants, sorted ascending,
// sit at strictly increasing adjacent positions of the slot array.
// Positions are array indexes, not wall-clock distances.
func consecutive(slots []model.Slot, times []time.Time) bool {
	prev := -1
	for i, t := range model.SortedTimes(times) {
		idx := model.IndexOf(slots, t)
		if idx < 0 || (i > 0 && idx != prev+1) {
			return false
		}
		prev = idx
	}
	return true
}

func sortSlots(slots []model.Slot) {
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].DateTime.Before(slots[j].DateTime) })
}
