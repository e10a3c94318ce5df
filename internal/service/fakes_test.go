package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/slot-registration/internal/audit"
	"github.com/Shivanand-hulikatti/slot-registration/internal/model"
	"github.com/Shivanand-hulikatti/slot-registration/internal/repository"
)

// memEvents is an in-memory EventStore. UpdateSlots holds a single mutex for
// the whole read-modify-write, standing in for the row lock.
type memEvents struct {
	mu       sync.Mutex
	events   map[string]*model.Event
	writes   int
	writeErr error
}

func newMemEvents(events ...*model.Event) *memEvents {
	m := &memEvents{events: make(map[string]*model.Event)}
	for _, e := range events {
		m.events[e.ID] = e
	}
	return m
}

func (m *memEvents) Create(_ context.Context, e *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[e.ID]; ok {
		return repository.ErrAlreadyExists
	}
	cp := *e
	cp.Slots = model.CloneSlots(e.Slots)
	m.events[e.ID] = &cp
	return nil
}

func (m *memEvents) GetByID(_ context.Context, id string) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok || e.IsDeleted {
		return nil, repository.ErrNotFound
	}
	cp := *e
	cp.Slots = model.CloneSlots(e.Slots)
	return &cp, nil
}

func (m *memEvents) List(_ context.Context) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Event, 0, len(m.events))
	for _, e := range m.events {
		if !e.IsDeleted {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memEvents) ListIDs(ctx context.Context) ([]string, error) {
	events, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	return ids, nil
}

func (m *memEvents) SoftDelete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok || e.IsDeleted {
		return repository.ErrNotFound
	}
	e.IsDeleted = true
	return nil
}

func (m *memEvents) UpdateSlots(_ context.Context, eventID string, fn repository.SlotMutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[eventID]
	if !ok || e.IsDeleted {
		return repository.ErrNotFound
	}
	out, changed, err := fn(model.CloneSlots(e.Slots))
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if m.writeErr != nil {
		return m.writeErr
	}
	e.Slots = out
	m.writes++
	return nil
}

func (m *memEvents) slots(id string) []model.Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return model.CloneSlots(m.events[id].Slots)
}

func (m *memEvents) assign(eventID string, at time.Time, videoID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.events[eventID]
	idx := model.IndexOf(e.Slots, at)
	id := videoID
	e.Slots[idx].AssignedVideoID = &id
}

// memVideos is an in-memory VideoStore.
type memVideos struct {
	mu        sync.Mutex
	videos    map[string]*model.Video
	order     []string
	createErr error
	listErr   error
	now       func() time.Time
}

func newMemVideos(videos ...*model.Video) *memVideos {
	m := &memVideos{
		videos: make(map[string]*model.Video),
		now:    func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) },
	}
	for _, v := range videos {
		m.videos[v.ID] = v
		m.order = append(m.order, v.ID)
	}
	return m
}

func (m *memVideos) Create(_ context.Context, v *model.Video) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.videos[v.ID]; ok {
		return repository.ErrAlreadyExists
	}
	cp := *v
	m.videos[v.ID] = &cp
	m.order = append(m.order, v.ID)
	return nil
}

func (m *memVideos) GetByID(_ context.Context, id string) (*model.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.videos[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *memVideos) ListUnlinkedByAuthor(_ context.Context, authorLower string) ([]model.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []model.Video
	for _, id := range m.order {
		v := m.videos[id]
		if strings.ToLower(v.AuthorXid) == authorLower && v.SlotID == nil && !v.IsDeleted {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (m *memVideos) UpdateDetails(_ context.Context, v *model.Video) error {
	return m.mutate(v.ID, func(cur *model.Video) bool {
		if cur.IsDeleted {
			return false
		}
		cur.Title, cur.Description, cur.VideoURL = v.Title, v.Description, v.VideoURL
		return true
	})
}

func (m *memVideos) Approve(_ context.Context, id string) error {
	return m.mutate(id, func(cur *model.Video) bool {
		if cur.IsDeleted {
			return false
		}
		cur.IsApproved = true
		return true
	})
}

func (m *memVideos) SoftDelete(_ context.Context, id string) error {
	return m.mutate(id, func(cur *model.Video) bool {
		if cur.IsDeleted {
			return false
		}
		now := m.now()
		cur.IsDeleted, cur.DeletedAt = true, &now
		return true
	})
}

func (m *memVideos) Restore(_ context.Context, id string) error {
	return m.mutate(id, func(cur *model.Video) bool {
		if !cur.IsDeleted {
			return false
		}
		cur.IsDeleted, cur.DeletedAt = false, nil
		return true
	})
}

func (m *memVideos) Purge(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.videos[id]
	if !ok || !v.IsDeleted {
		return repository.ErrNotFound
	}
	delete(m.videos, id)
	return nil
}

func (m *memVideos) ListPurgeable(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, id := range m.order {
		v, ok := m.videos[id]
		if ok && v.IsDeleted && v.DeletedAt != nil && v.DeletedAt.Before(cutoff) && len(out) < limit {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *memVideos) ListAuthorXids(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, id := range m.order {
		v, ok := m.videos[id]
		if ok && !v.IsDeleted && !seen[v.AuthorXid] {
			seen[v.AuthorXid] = true
			out = append(out, v.AuthorXid)
		}
	}
	return out, nil
}

func (m *memVideos) StatusByIDs(_ context.Context, ids []string) (map[string]model.VideoStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]model.VideoStatus, len(ids))
	for _, id := range ids {
		if v, ok := m.videos[id]; ok {
			out[id] = model.VideoStatus{ID: id, IsDeleted: v.IsDeleted}
		}
	}
	return out, nil
}

func (m *memVideos) mutate(id string, fn func(*model.Video) bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.videos[id]
	if !ok || !fn(v) {
		return repository.ErrNotFound
	}
	return nil
}

// recorder captures audit entries synchronously.
type recorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recorder) Record(_ context.Context, e audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recorder) actions() []audit.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audit.Action, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

// countingCache records invalidations and honours generations the way the
// Redis cache does.
type countingCache struct {
	mu          sync.Mutex
	stored      map[string]*model.Event
	gens        map[string]int64
	invalidated []string
}

func newCountingCache() *countingCache {
	return &countingCache{stored: map[string]*model.Event{}, gens: map[string]int64{}}
}

func (c *countingCache) Get(_ context.Context, id string) (*model.Event, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.stored[id]
	return e, c.gens[id], ok
}

func (c *countingCache) Set(_ context.Context, e *model.Event, gen int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[e.ID] != gen {
		return
	}
	c.stored[e.ID] = e
}

func (c *countingCache) Invalidate(_ context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.stored, id)
	c.gens[id]++
	c.invalidated = append(c.invalidated, id)
}

var errBoom = errors.New("boom")

// base is 21:00 UTC on the fixture day.
var base = time.Date(2026, 6, 1, 21, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return base.Add(time.Duration(minutes) * time.Minute)
}

// newEvent builds an event with n free slots six minutes apart from base.
func newEvent(id string, n int) *model.Event {
	return &model.Event{ID: id, Name: id, Slots: GenerateSlots(base, 6*time.Minute, n)}
}

func strPtr(s string) *string { return &s }
