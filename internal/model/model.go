// Package model defines the core domain types for the slot registration system.
package model

import (
	"sort"
	"time"
)

const (
	// MaxSlotsPerVideo is the most slots a single video may claim.
	MaxSlotsPerVideo = 3
	// MaxUnlinkedPerAuthor caps outstanding eventless registrations per author.
	MaxUnlinkedPerAuthor = 3
)

// Slot is one reservable instant inside an event.
type Slot struct {
	DateTime        time.Time `json:"date_time"`
	AssignedVideoID *string   `json:"assigned_video_id"`
}

// IsAvailable reports whether no video holds the slot.
func (s Slot) IsAvailable() bool {
	return s.AssignedVideoID == nil
}

// AssignedTo reports whether the slot is held by videoID.
func (s Slot) AssignedTo(videoID string) bool {
	return s.AssignedVideoID != nil && *s.AssignedVideoID == videoID
}

// Event is a submission window holding an ordered slot array.
// Index order is chronological order.
type Event struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Slots       []Slot    `json:"slots"`
	IsDeleted   bool      `json:"is_deleted"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SlotIndex returns the position of the slot at t, or -1.
func (e *Event) SlotIndex(t time.Time) int {
	return IndexOf(e.Slots, t)
}

// AvailableCount returns the number of free slots.
func (e *Event) AvailableCount() int {
	n := 0
	for _, s := range e.Slots {
		if s.IsAvailable() {
			n++
		}
	}
	return n
}

// IndexOf finds the slot whose instant equals t.
func IndexOf(slots []Slot, t time.Time) int {
	for i := range slots {
		if slots[i].DateTime.Equal(t) {
			return i
		}
	}
	return -1
}

// CloneSlots returns a deep copy of slots so callers can mutate freely.
func CloneSlots(slots []Slot) []Slot {
	out := make([]Slot, len(slots))
	for i, s := range slots {
		out[i] = Slot{DateTime: s.DateTime}
		if s.AssignedVideoID != nil {
			id := *s.AssignedVideoID
			out[i].AssignedVideoID = &id
		}
	}
	return out
}

// SortedTimes returns an ascending copy of ts.
func SortedTimes(ts []time.Time) []time.Time {
	out := append([]time.Time(nil), ts...)
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Video is a registration record. Only the fields the slot logic and the
// admin screens need are modelled.
type Video struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	VideoURL    string     `json:"video_url"`
	AuthorXid   string     `json:"author_xid"`
	EventIDs    []string   `json:"event_ids"`
	SlotID      *string    `json:"slot_id"`
	StartTime   time.Time  `json:"start_time"`
	IsApproved  bool       `json:"is_approved"`
	IsDeleted   bool       `json:"is_deleted"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsSlotLinked reports whether the record was scheduled through slots.
func (v *Video) IsSlotLinked() bool {
	return v.SlotID != nil && *v.SlotID != ""
}

// Decision is the outcome of an eligibility check. Business-rule
// rejections are expressed here rather than as errors.
type Decision struct {
	Allowed          bool   `json:"allowed"`
	Reason           string `json:"reason,omitempty"`
	RequiresApproval bool   `json:"requires_approval"`
}

// Allow returns a positive decision.
func Allow(requiresApproval bool) Decision {
	return Decision{Allowed: true, RequiresApproval: requiresApproval}
}

// Deny returns a negative decision carrying reason.
func Deny(reason string, requiresApproval bool) Decision {
	return Decision{Allowed: false, Reason: reason, RequiresApproval: requiresApproval}
}

// VideoStatus is the minimal view the slot reconciler needs.
type VideoStatus struct {
	ID        string
	IsDeleted bool
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
