package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/slot-registration/internal/model"
	"github.com/jackc/pgx/v5"
)

// SlotMutation transforms an event's slot array inside a transaction.
// Returning changed=false skips the write. Returning an error aborts the
// transaction and the error is passed through to the caller unchanged.
type SlotMutation func(slots []model.Slot) (updated []model.Slot, changed bool, err error)

// EventRepository handles persistence for events and their embedded slots.
type EventRepository struct {
	db  DB
	now func() time.Time
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db DB) *EventRepository {
	return &EventRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const eventColumns = `id, name, description, slots, is_deleted, created_at, updated_at`

func scanEvent(row scanner) (*model.Event, error) {
	var (
		e   model.Event
		raw []byte
	)
	if err := row.Scan(&e.ID, &e.Name, &e.Description, &raw, &e.IsDeleted, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	slots, err := decodeSlots(raw)
	if err != nil {
		return nil, err
	}
	e.Slots = slots
	return &e, nil
}

func decodeSlots(raw []byte) ([]model.Slot, error) {
	slots := []model.Slot{}
	if len(raw) == 0 {
		return slots, nil
	}
	if err := json.Unmarshal(raw, &slots); err != nil {
		return nil, fmt.Errorf("decode slots: %w", err)
	}
	return slots, nil
}

// Create inserts a new event together with its initial slots.
func (r *EventRepository) Create(ctx context.Context, e *model.Event) error {
	raw, err := json.Marshal(e.Slots)
	if err != nil {
		return fmt.Errorf("encode slots: %w", err)
	}
	now := r.now()
	e.CreatedAt, e.UpdatedAt = now, now

	_, err = r.db.Exec(ctx,
		`INSERT INTO events (id, name, description, slots, is_deleted, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, FALSE, $5, $6)`,
		e.ID, e.Name, e.Description, raw, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetByID returns a visible event or ErrNotFound.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(r.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 AND is_deleted = FALSE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// List returns all visible events ordered by creation time descending.
func (r *EventRepository) List(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+eventColumns+` FROM events WHERE is_deleted = FALSE ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// ListIDs returns the ids of all visible events.
func (r *EventRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM events WHERE is_deleted = FALSE ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list event ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan event id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SoftDelete hides an event. Its slots are kept untouched.
func (r *EventRepository) SoftDelete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE events SET is_deleted = TRUE, updated_at = $2 WHERE id = $1 AND is_deleted = FALSE`,
		id, r.now(),
	)
	if err != nil {
		return fmt.Errorf("soft delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSlots runs fn against the event's slot array as one read-modify-write
// transaction.
//
// The event row is read with SELECT … FOR UPDATE, so a concurrent UpdateSlots
// on the same event blocks until this one commits or rolls back and then
// sees the committed array. fn therefore always decides on fresh state, never
// on a copy read before the transaction began. Different events never
// contend. A failure anywhere leaves the stored array untouched.
func (r *EventRepository) UpdateSlots(ctx context.Context, eventID string, fn SlotMutation) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	var raw []byte
	err = tx.QueryRow(ctx,
		`SELECT slots FROM events WHERE id = $1 AND is_deleted = FALSE FOR UPDATE`,
		eventID,
	).Scan(&raw)
	if err != nil {
		_ = tx.Rollback(ctx)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lock event row: %w", err)
	}

	slots, err := decodeSlots(raw)
	if err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	updated, changed, err := fn(slots)
	if err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if !changed {
		_ = tx.Rollback(ctx)
		return nil
	}

	out, err := json.Marshal(updated)
	if err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("encode slots: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE events SET slots = $2, updated_at = $3 WHERE id = $1`,
		eventID, out, r.now(),
	); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("write slots: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
