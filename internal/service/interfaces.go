package service

import (
	"context"
	"time"

	"github.com/Shivanand-hulikatti/slot-registration/internal/model"
	"github.com/Shivanand-hulikatti/slot-registration/internal/repository"
)

// EventStore is the event-slot store. UpdateSlots is its transaction
// primitive: every slot mutation goes through it.
type EventStore interface {
	Create(ctx context.Context, e *model.Event) error
	GetByID(ctx context.Context, id string) (*model.Event, error)
	List(ctx context.Context) ([]model.Event, error)
	ListIDs(ctx context.Context) ([]string, error)
	SoftDelete(ctx context.Context, id string) error
	UpdateSlots(ctx context.Context, eventID string, fn repository.SlotMutation) error
}

// VideoStore persists registration records.
type VideoStore interface {
	Create(ctx context.Context, v *model.Video) error
	GetByID(ctx context.Context, id string) (*model.Video, error)
	ListUnlinkedByAuthor(ctx context.Context, authorLower string) ([]model.Video, error)
	UpdateDetails(ctx context.Context, v *model.Video) error
	Approve(ctx context.Context, id string) error
	SoftDelete(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error
	Purge(ctx context.Context, id string) error
	ListPurgeable(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	ListAuthorXids(ctx context.Context) ([]string, error)
	StatusByIDs(ctx context.Context, ids []string) (map[string]model.VideoStatus, error)
}

// EventViewCache is a best-effort read cache for event views. Misses and
// backend failures are invisible to callers.
//
// Get reports the invalidation generation seen with the lookup. Set only
// stores e if no Invalidate ran since that generation was read, so a view
// loaded before a slot mutation can never overwrite the invalidation.
type EventViewCache interface {
	Get(ctx context.Context, id string) (e *model.Event, gen int64, ok bool)
	Set(ctx context.Context, e *model.Event, gen int64)
	Invalidate(ctx context.Context, id string)
}

type nopEventCache struct{}

func (nopEventCache) Get(context.Context, string) (*model.Event, int64, bool) { return nil, 0, false }
func (nopEventCache) Set(context.Context, *model.Event, int64)              {}
func (nopEventCache) Invalidate(context.Context, string)                    {}
