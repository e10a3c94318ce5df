package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/slot-registration/internal/metrics"
	"github.com/Shivanand-hulikatti/slot-registration/internal/model"
	"github.com/Shivanand-hulikatti/slot-registration/internal/repository"
	"go.uber.org/zap"
)

// EventSource lists events and loads their slot arrays.
type EventSource interface {
	ListIDs(ctx context.Context) ([]string, error)
	GetByID(ctx context.Context, id string) (*model.Event, error)
}

// StatusSource reports whether registration records exist and are live.
type StatusSource interface {
	StatusByIDs(ctx context.Context, ids []string) (map[string]model.VideoStatus, error)
}

// OrphanReleaser clears assignments held by the given videos.
type OrphanReleaser interface {
	ReleaseOrphans(ctx context.Context, eventID string, orphans map[string]bool) (int, error)
}

// SlotReconciler frees slots whose holder is soft-deleted or gone.
//
// A holder that is soft-deleted is cleared on the first sweep. A holder with
// no record at all is only cleared once it has been missing for two
// consecutive sweeps: registration reserves slots before it inserts the
// record, so a single miss may be a registration in flight.
type SlotReconciler struct {
	events   EventSource
	videos   StatusSource
	slots    OrphanReleaser
	interval time.Duration
	log      *zap.Logger

	mu       sync.Mutex
	suspects map[string]map[string]bool // event id -> missing video ids
}

// NewSlotReconciler constructs a SlotReconciler.
func NewSlotReconciler(events EventSource, videos StatusSource, slots OrphanReleaser, interval time.Duration, log *zap.Logger) *SlotReconciler {
	return &SlotReconciler{
		events:   events,
		videos:   videos,
		slots:    slots,
		interval: interval,
		log:      log.Named("reconciler"),
		suspects: make(map[string]map[string]bool),
	}
}

// Run sweeps every interval until ctx is cancelled.
func (r *SlotReconciler) Run(ctx context.Context) {
	runEvery(ctx, r.interval, r.log, "slot_reconciler", func(ctx context.Context) error {
		_, err := r.Sweep(ctx)
		return err
	})
}

// Sweep checks every event once and returns how many slots it freed.
// A failure on one event is logged and does not stop the others.
func (r *SlotReconciler) Sweep(ctx context.Context) (int, error) {
	ids, err := r.events.ListIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list events: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	live := make(map[string]bool, len(ids))
	total := 0
	for _, id := range ids {
		live[id] = true
		n, err := r.sweepEvent(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			r.log.Warn("reconcile event failed", zap.String("event_id", id), zap.Error(err))
			continue
		}
		total += n
	}
	for id := range r.suspects {
		if !live[id] {
			delete(r.suspects, id)
		}
	}

	if total > 0 {
		metrics.OrphanSlotsCleared.Add(float64(total))
		r.log.Info("orphan slots cleared", zap.Int("count", total))
	}
	return total, nil
}

func (r *SlotReconciler) sweepEvent(ctx context.Context, eventID string) (int, error) {
	event, err := r.events.GetByID(ctx, eventID)
	if errors.Is(err, repository.ErrNotFound) {
		delete(r.suspects, eventID)
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	holders := assignedVideoIDs(event.Slots)
	if len(holders) == 0 {
		delete(r.suspects, eventID)
		return 0, nil
	}
	statuses, err := r.videos.StatusByIDs(ctx, holders)
	if err != nil {
		return 0, err
	}

	prev := r.suspects[eventID]
	missing := make(map[string]bool)
	orphans := make(map[string]bool)
	for _, id := range holders {
		st, ok := statuses[id]
		switch {
		case ok && st.IsDeleted:
			orphans[id] = true
		case !ok && prev[id]:
			orphans[id] = true
		case !ok:
			missing[id] = true
		}
	}
	if len(missing) > 0 {
		r.suspects[eventID] = missing
	} else {
		delete(r.suspects, eventID)
	}

	n, err := r.slots.ReleaseOrphans(ctx, eventID, orphans)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.log.Info("released orphan slots",
			zap.String("event_id", eventID),
			zap.Int("count", n),
			zap.Int("holders", len(orphans)),
		)
	}
	return n, nil
}

func assignedVideoIDs(slots []model.Slot) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range slots {
		if s.AssignedVideoID == nil || seen[*s.AssignedVideoID] {
			continue
		}
		seen[*s.AssignedVideoID] = true
		out = append(out, *s.AssignedVideoID)
	}
	return out
}
