package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/slot-registration/internal/metrics"
	"github.com/Shivanand-hulikatti/slot-registration/internal/model"
	"github.com/Shivanand-hulikatti/slot-registration/internal/repository"
)

const slotTimeLayout = "2006-01-02 15:04 MST"

// EventReader loads a single event.
type EventReader interface {
	GetByID(ctx context.Context, id string) (*model.Event, error)
}

// Checker decides whether a registration attempt may proceed. It only reads.
//
// Its answers are advisory: state can change between a check and the write
// that follows. Slot reservation re-checks inside its transaction; the
// unlinked quota does not.
type Checker struct {
	events EventReader
	quota  *QuotaCounter
	loc    *time.Location
	now    func() time.Time
}

// NewChecker constructs a Checker. loc is used for times shown in reasons.
func NewChecker(events EventReader, quota *QuotaCounter, loc *time.Location) *Checker {
	if loc == nil {
		loc = time.UTC
	}
	return &Checker{events: events, quota: quota, loc: loc, now: time.Now}
}

// CheckUnlinkedRegistration decides an attempt to register a video with a
// manually supplied start time and no slot.
func (c *Checker) CheckUnlinkedRegistration(ctx context.Context, authorXid string, eventIDs []string, startTime time.Time) (model.Decision, error) {
	if startTime.After(c.now()) {
		return c.deny("unlinked", "start time must be in the past", false), nil
	}

	// Records tied to a past event carry no quota.
	if len(compactIDs(eventIDs)) > 0 {
		return model.Allow(false), nil
	}

	count, err := c.quota.CountUnlinked(ctx, authorXid)
	if err != nil {
		return model.Decision{}, err
	}
	if count >= model.MaxUnlinkedPerAuthor {
		return c.deny("unlinked", fmt.Sprintf(
			"registration limit reached: %s already has %d registrations without an event (maximum %d)",
			authorXid, count, model.MaxUnlinkedPerAuthor,
		), false), nil
	}
	return model.Allow(false), nil
}

// CheckSlotRegistration decides whether the slots at times in eventID could
// be reserved right now. Slot registrations always require approval.
func (c *Checker) CheckSlotRegistration(ctx context.Context, times []time.Time, eventID string) (model.Decision, error) {
	if len(times) == 0 {
		return c.deny("slot", "select at least one slot", true), nil
	}
	if len(times) > model.MaxSlotsPerVideo {
		return c.deny("slot", fmt.Sprintf("maximum %d slots per registration", model.MaxSlotsPerVideo), true), nil
	}

	event, err := c.events.GetByID(ctx, eventID)
	if errors.Is(err, repository.ErrNotFound) {
		return c.deny("slot", "event not found", true), nil
	}
	if err != nil {
		return model.Decision{}, fmt.Errorf("load event: %w", err)
	}

	seen := make(map[int]bool, len(times))
	for _, t := range times {
		idx := event.SlotIndex(t)
		if idx < 0 {
			return c.deny("slot", fmt.Sprintf("slot %s does not exist", c.format(t)), true), nil
		}
		if seen[idx] {
			return c.deny("slot", fmt.Sprintf("slot %s was selected more than once", c.format(t)), true), nil
		}
		if !event.Slots[idx].IsAvailable() {
			return c.deny("slot", fmt.Sprintf("slot %s is already assigned", c.format(t)), true), nil
		}
		seen[idx] = true
	}

	if len(times) > 1 && !consecutive(event.Slots, times) {
		return c.deny("slot", "selected slots must be consecutive", true), nil
	}
	return model.Allow(true), nil
}

func (c *Checker) deny(path, reason string, requiresApproval bool) model.Decision {
	metrics.EligibilityRejections.WithLabelValues(path).Inc()
	return model.Deny(reason, requiresApproval)
}

func (c *Checker) format(t time.Time) string {
	return t.In(c.loc).Format(slotTimeLayout)
}

func compactIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
