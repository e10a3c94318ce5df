// Package service implements the registration business logic: eligibility
// checks, slot reservation and release, and orchestration between the HTTP
// handlers and the repository layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/slot-registration/internal/model"
	"github.com/Shivanand-hulikatti/slot-registration/internal/repository"
	"github.com/google/uuid"
)

// EventService orchestrates event-related business operations.
type EventService struct {
	events EventStore
	cache  EventViewCache
}

// NewEventService constructs an EventService. cache may be nil.
func NewEventService(events EventStore, cache EventViewCache) *EventService {
	if cache == nil {
		cache = nopEventCache{}
	}
	return &EventService{events: events, cache: cache}
}

// CreateEvent validates the request, generates the slot array and stores
// the event.
func (s *EventService) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.ID = strings.TrimSpace(req.ID)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}
	event := &model.Event{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Slots:       GenerateSlots(req.FirstSlot, time.Duration(req.IntervalMinutes)*time.Minute, req.SlotCount),
	}
	if err := s.events.Create(ctx, event); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, ErrEventExists
		}
		return nil, fmt.Errorf("create event: %w", err)
	}
	return event, nil
}

// ListEvents returns all visible events.
func (s *EventService) ListEvents(ctx context.Context) ([]model.Event, error) {
	return s.events.List(ctx)
}

// GetEvent returns a single event by ID, served from the view cache when
// possible.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: event id is required", ErrInvalidInput)
	}
	e, gen, ok := s.cache.Get(ctx, id)
	if ok {
		return e, nil
	}
	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	s.cache.Set(ctx, event, gen)
	return event, nil
}

// DeleteEvent hides an event.
func (s *EventService) DeleteEvent(ctx context.Context, id string) error {
	if err := s.events.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrEventNotFound
		}
		return fmt.Errorf("delete event: %w", err)
	}
	s.cache.Invalidate(ctx, id)
	return nil
}
