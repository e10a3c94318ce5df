package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/slot-registration/internal/model"
	"github.com/Shivanand-hulikatti/slot-registration/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeEvents struct {
	events map[string]*model.Event
	getErr map[string]error
}

func (f *fakeEvents) ListIDs(context.Context) ([]string, error) {
	ids := make([]string, 0, len(f.events))
	for id := range f.events {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeEvents) GetByID(_ context.Context, id string) (*model.Event, error) {
	if err := f.getErr[id]; err != nil {
		return nil, err
	}
	e, ok := f.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return e, nil
}

type fakeStatuses map[string]model.VideoStatus

func (f fakeStatuses) StatusByIDs(_ context.Context, ids []string) (map[string]model.VideoStatus, error) {
	out := make(map[string]model.VideoStatus)
	for _, id := range ids {
		if st, ok := f[id]; ok {
			out[id] = st
		}
	}
	return out, nil
}

// fakeReleaser applies releases to the fakeEvents slot arrays.
type fakeReleaser struct {
	events *fakeEvents
	calls  []map[string]bool
}

func (f *fakeReleaser) ReleaseOrphans(_ context.Context, eventID string, orphans map[string]bool) (int, error) {
	f.calls = append(f.calls, orphans)
	n := 0
	for i, s := range f.events.events[eventID].Slots {
		if s.AssignedVideoID != nil && orphans[*s.AssignedVideoID] {
			f.events.events[eventID].Slots[i].AssignedVideoID = nil
			n++
		}
	}
	return n, nil
}

func held(ids ...string) []model.Slot {
	base := time.Date(2026, 6, 1, 21, 0, 0, 0, time.UTC)
	out := make([]model.Slot, len(ids))
	for i, id := range ids {
		out[i].DateTime = base.Add(time.Duration(i) * 6 * time.Minute)
		if id != "" {
			v := id
			out[i].AssignedVideoID = &v
		}
	}
	return out
}

func TestSlotReconciler_Sweep(t *testing.T) {
	ctx := context.Background()
	events := &fakeEvents{events: map[string]*model.Event{
		"E1": {ID: "E1", Slots: held("live", "live", "deleted", "missing", "")},
	}}
	statuses := fakeStatuses{
		"live":    {ID: "live"},
		"deleted": {ID: "deleted", IsDeleted: true},
	}
	releaser := &fakeReleaser{events: events}
	r := NewSlotReconciler(events, statuses, releaser, time.Minute, zap.NewNop())

	n, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "first sweep frees only the deleted holder")
	slots := events.events["E1"].Slots
	assert.True(t, slots[0].AssignedTo("live"))
	assert.True(t, slots[2].IsAvailable())
	assert.True(t, slots[3].AssignedTo("missing"))

	n, err = r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "second sweep frees the holder missing twice")
	assert.True(t, events.events["E1"].Slots[3].IsAvailable())
	assert.True(t, events.events["E1"].Slots[1].AssignedTo("live"))
	assert.Empty(t, r.suspects)
}

func TestSlotReconciler_InFlightRegistrationSurvives(t *testing.T) {
	ctx := context.Background()
	events := &fakeEvents{events: map[string]*model.Event{"E1": {ID: "E1", Slots: held("pending")}}}
	statuses := fakeStatuses{}
	r := NewSlotReconciler(events, statuses, &fakeReleaser{events: events}, time.Minute, zap.NewNop())

	n, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// The record lands before the next sweep.
	statuses["pending"] = model.VideoStatus{ID: "pending"}
	n, err = r.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, events.events["E1"].Slots[0].AssignedTo("pending"))
	assert.Empty(t, r.suspects)
}

func TestSlotReconciler_EventFailureDoesNotStopSweep(t *testing.T) {
	ctx := context.Background()
	events := &fakeEvents{
		events: map[string]*model.Event{
			"bad":  {ID: "bad"},
			"good": {ID: "good", Slots: held("deleted")},
		},
		getErr: map[string]error{"bad": errors.New("db down")},
	}
	statuses := fakeStatuses{"deleted": {ID: "deleted", IsDeleted: true}}
	r := NewSlotReconciler(events, statuses, &fakeReleaser{events: events}, time.Minute, zap.NewNop())

	n, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

type fakePurger struct {
	batches []int
	cutoffs []time.Time
	err     error
}

func (f *fakePurger) PurgeExpired(_ context.Context, cutoff time.Time, limit int) (int, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	if len(f.batches) == 0 {
		return 0, f.err
	}
	n := f.batches[0]
	f.batches = f.batches[1:]
	if n > limit {
		n = limit
	}
	return n, nil
}

func TestPurgeWorker_PurgeOnce(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	p := &fakePurger{batches: []int{purgeBatchSize, purgeBatchSize, 7}}
	w := NewPurgeWorker(p, time.Hour, 30*24*time.Hour, zap.NewNop())
	w.now = func() time.Time { return now }

	n, err := w.PurgeOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2*purgeBatchSize+7, n)
	require.Len(t, p.cutoffs, 3)
	assert.Equal(t, now.Add(-30*24*time.Hour), p.cutoffs[0])
}

func TestPurgeWorker_Error(t *testing.T) {
	p := &fakePurger{err: errors.New("db down")}
	w := NewPurgeWorker(p, time.Hour, time.Hour, zap.NewNop())

	_, err := w.PurgeOnce(context.Background())
	assert.Error(t, err)
}

func TestRunEvery_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ticks := make(chan struct{}, 10)
	done := make(chan struct{})
	go func() {
		runEvery(ctx, time.Millisecond, zap.NewNop(), "test", func(context.Context) error {
			select {
			case ticks <- struct{}{}:
			default:
			}
			return nil
		})
		close(done)
	}()

	<-ticks
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runEvery did not stop")
	}
}
