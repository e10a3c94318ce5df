package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/slot-registration/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

const lockSlotsSQL = `SELECT slots FROM events WHERE id = \$1 AND is_deleted = FALSE FOR UPDATE`

func newEventRepo(t *testing.T) (*EventRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	repo := NewEventRepository(mock)
	repo.now = func() time.Time { return fixedNow }
	return repo, mock
}

func encodedSlots(t *testing.T, slots []model.Slot) []byte {
	t.Helper()
	raw, err := json.Marshal(slots)
	require.NoError(t, err)
	return raw
}

// slotsArg matches a JSON-encoded slot array against a predicate.
type slotsArg struct {
	check func([]model.Slot) bool
}

func (a slotsArg) Match(v interface{}) bool {
	raw, ok := v.([]byte)
	if !ok {
		return false
	}
	var slots []model.Slot
	if err := json.Unmarshal(raw, &slots); err != nil {
		return false
	}
	return a.check(slots)
}

func TestUpdateSlots_WritesAndCommits(t *testing.T) {
	repo, mock := newEventRepo(t)
	at := time.Date(2026, 5, 1, 21, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(lockSlotsSQL).
		WithArgs("e1").
		WillReturnRows(pgxmock.NewRows([]string{"slots"}).AddRow(encodedSlots(t, []model.Slot{{DateTime: at}})))
	mock.ExpectExec(`UPDATE events SET slots = \$2`).
		WithArgs("e1", slotsArg{check: func(s []model.Slot) bool {
			return len(s) == 1 && s[0].AssignedTo("v1")
		}}, fixedNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := repo.UpdateSlots(context.Background(), "e1", func(slots []model.Slot) ([]model.Slot, bool, error) {
		require.Len(t, slots, 1)
		assert.True(t, slots[0].DateTime.Equal(at))
		id := "v1"
		slots[0].AssignedVideoID = &id
		return slots, true, nil
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSlots_MutationErrorRollsBack(t *testing.T) {
	repo, mock := newEventRepo(t)
	boom := errors.New("slot already assigned")

	mock.ExpectBegin()
	mock.ExpectQuery(lockSlotsSQL).
		WithArgs("e1").
		WillReturnRows(pgxmock.NewRows([]string{"slots"}).AddRow([]byte(`[]`)))
	mock.ExpectRollback()

	err := repo.UpdateSlots(context.Background(), "e1", func(slots []model.Slot) ([]model.Slot, bool, error) {
		return nil, false, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSlots_UnchangedSkipsWrite(t *testing.T) {
	repo, mock := newEventRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockSlotsSQL).
		WithArgs("e1").
		WillReturnRows(pgxmock.NewRows([]string{"slots"}).AddRow([]byte(`[]`)))
	mock.ExpectRollback()

	err := repo.UpdateSlots(context.Background(), "e1", func(slots []model.Slot) ([]model.Slot, bool, error) {
		return slots, false, nil
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSlots_MissingEvent(t *testing.T) {
	repo, mock := newEventRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockSlotsSQL).WithArgs("nope").WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := repo.UpdateSlots(context.Background(), "nope", func(slots []model.Slot) ([]model.Slot, bool, error) {
		t.Fatal("mutation must not run for a missing event")
		return nil, false, nil
	})

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSlots_WriteFailureRollsBack(t *testing.T) {
	repo, mock := newEventRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockSlotsSQL).
		WithArgs("e1").
		WillReturnRows(pgxmock.NewRows([]string{"slots"}).AddRow([]byte(`[]`)))
	mock.ExpectExec(`UPDATE events SET slots`).
		WithArgs("e1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.UpdateSlots(context.Background(), "e1", func(slots []model.Slot) ([]model.Slot, bool, error) {
		return slots, true, nil
	})

	assert.ErrorContains(t, err, "write slots")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventCreate_DuplicateID(t *testing.T) {
	repo, mock := newEventRepo(t)

	mock.ExpectExec(`INSERT INTO events`).
		WithArgs("e1", "Spring", "", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), &model.Event{ID: "e1", Name: "Spring"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventSoftDelete_NotFound(t *testing.T) {
	repo, mock := newEventRepo(t)

	mock.ExpectExec(`UPDATE events SET is_deleted = TRUE`).
		WithArgs("e1", fixedNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	assert.ErrorIs(t, repo.SoftDelete(context.Background(), "e1"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventListIDs(t *testing.T) {
	repo, mock := newEventRepo(t)

	mock.ExpectQuery(`SELECT id FROM events`).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("a").AddRow("b"))

	ids, err := repo.ListIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestDecodeSlots(t *testing.T) {
	slots, err := decodeSlots(nil)
	require.NoError(t, err)
	assert.Empty(t, slots)

	_, err = decodeSlots([]byte(`{not json`))
	assert.Error(t, err)
}
