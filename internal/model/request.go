package model

import "time"

// RegisterVideoRequest is the payload for creating a registration.
// Either SlotEventID with SlotDateTimes, or StartTime, drives scheduling.
type RegisterVideoRequest struct {
	Title         string      `json:"title" validate:"required,max=200"`
	Description   string      `json:"description" validate:"max=5000"`
	VideoURL      string      `json:"video_url" validate:"omitempty,url"`
	AuthorXid     string      `json:"author_xid" validate:"required,max=64"`
	EventIDs      []string    `json:"event_ids" validate:"omitempty,dive,required"`
	SlotEventID   string      `json:"slot_event_id"`
	SlotDateTimes []time.Time `json:"slot_date_times"`
	StartTime     *time.Time  `json:"start_time"`
}

// UsesSlots reports whether the request goes down the slot path.
func (r *RegisterVideoRequest) UsesSlots() bool {
	return r.SlotEventID != ""
}

// CheckSlotsRequest asks whether a slot selection could be reserved.
type CheckSlotsRequest struct {
	SlotDateTimes []time.Time `json:"slot_date_times"`
}

// CheckUnlinkedRequest asks whether an unlinked registration is allowed.
type CheckUnlinkedRequest struct {
	AuthorXid string    `json:"author_xid" validate:"required"`
	EventIDs  []string  `json:"event_ids"`
	StartTime time.Time `json:"start_time" validate:"required"`
}

// UpdateVideoRequest carries admin edits. Nil fields are left unchanged.
type UpdateVideoRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
	VideoURL    *string `json:"video_url" validate:"omitempty,url"`
}

// CreateEventRequest creates an event and generates its slots in bulk.
type CreateEventRequest struct {
	ID              string    `json:"id" validate:"omitempty,max=64"`
	Name            string    `json:"name" validate:"required,max=200"`
	Description     string    `json:"description" validate:"max=5000"`
	FirstSlot       time.Time `json:"first_slot" validate:"required"`
	IntervalMinutes int       `json:"interval_minutes" validate:"required,min=1,max=1440"`
	SlotCount       int       `json:"slot_count" validate:"min=0,max=1000"`
}

// AddSlotsRequest appends slots to an existing event.
type AddSlotsRequest struct {
	DateTimes []time.Time `json:"date_times" validate:"required,min=1,max=1000"`
}

// SlotRefRequest addresses a single slot by its instant.
type SlotRefRequest struct {
	DateTime time.Time `json:"date_time" validate:"required"`
}
