package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/slot-registration/internal/model"
	"github.com/jackc/pgx/v5"
)

// VideoRepository handles persistence for registration records.
type VideoRepository struct {
	db  DB
	now func() time.Time
}

// NewVideoRepository constructs a VideoRepository.
func NewVideoRepository(db DB) *VideoRepository {
	return &VideoRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const videoColumns = `id, title, description, video_url, author_xid, event_ids, slot_id,
	start_time, is_approved, is_deleted, deleted_at, created_at, updated_at`

func scanVideo(row scanner) (*model.Video, error) {
	var v model.Video
	err := row.Scan(
		&v.ID, &v.Title, &v.Description, &v.VideoURL, &v.AuthorXid, &v.EventIDs, &v.SlotID,
		&v.StartTime, &v.IsApproved, &v.IsDeleted, &v.DeletedAt, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if v.EventIDs == nil {
		v.EventIDs = []string{}
	}
	return &v, nil
}

// Create inserts a registration record. The lowercased author id is stored
// alongside the display value so quota lookups can use an equality match.
func (r *VideoRepository) Create(ctx context.Context, v *model.Video) error {
	now := r.now()
	v.CreatedAt, v.UpdatedAt = now, now
	if v.EventIDs == nil {
		v.EventIDs = []string{}
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO videos (id, title, description, video_url, author_xid, author_xid_lower,
		                     event_ids, slot_id, start_time, is_approved, is_deleted, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, $11, $12)`,
		v.ID, v.Title, v.Description, v.VideoURL, v.AuthorXid, strings.ToLower(v.AuthorXid),
		v.EventIDs, v.SlotID, v.StartTime, v.IsApproved, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert video: %w", err)
	}
	return nil
}

// GetByID returns a record, soft-deleted or not, or ErrNotFound.
func (r *VideoRepository) GetByID(ctx context.Context, id string) (*model.Video, error) {
	v, err := scanVideo(r.db.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get video: %w", err)
	}
	return v, nil
}

// ListUnlinkedByAuthor returns live records of authorLower with no slot
// linkage. Whether event_ids is empty is left to the caller.
func (r *VideoRepository) ListUnlinkedByAuthor(ctx context.Context, authorLower string) ([]model.Video, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+videoColumns+` FROM videos
		 WHERE author_xid_lower = $1 AND slot_id IS NULL AND is_deleted = FALSE`,
		authorLower,
	)
	if err != nil {
		return nil, fmt.Errorf("list videos by author: %w", err)
	}
	defer rows.Close()

	var videos []model.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, *v)
	}
	return videos, rows.Err()
}

// UpdateDetails persists the editable descriptive fields of v.
func (r *VideoRepository) UpdateDetails(ctx context.Context, v *model.Video) error {
	v.UpdatedAt = r.now()
	tag, err := r.db.Exec(ctx,
		`UPDATE videos SET title = $2, description = $3, video_url = $4, updated_at = $5
		 WHERE id = $1 AND is_deleted = FALSE`,
		v.ID, v.Title, v.Description, v.VideoURL, v.UpdatedAt,
	)
	return affectedOne(tag.RowsAffected(), err, "update video")
}

// Approve marks a live record approved.
func (r *VideoRepository) Approve(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE videos SET is_approved = TRUE, updated_at = $2 WHERE id = $1 AND is_deleted = FALSE`,
		id, r.now(),
	)
	return affectedOne(tag.RowsAffected(), err, "approve video")
}

// SoftDelete flags a live record deleted.
func (r *VideoRepository) SoftDelete(ctx context.Context, id string) error {
	now := r.now()
	tag, err := r.db.Exec(ctx,
		`UPDATE videos SET is_deleted = TRUE, deleted_at = $2, updated_at = $2
		 WHERE id = $1 AND is_deleted = FALSE`,
		id, now,
	)
	return affectedOne(tag.RowsAffected(), err, "soft delete video")
}

// Restore clears the deleted flag. Approval state is left as it was.
func (r *VideoRepository) Restore(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE videos SET is_deleted = FALSE, deleted_at = NULL, updated_at = $2
		 WHERE id = $1 AND is_deleted = TRUE`,
		id, r.now(),
	)
	return affectedOne(tag.RowsAffected(), err, "restore video")
}

// Purge permanently removes a soft-deleted record.
func (r *VideoRepository) Purge(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM videos WHERE id = $1 AND is_deleted = TRUE`, id)
	return affectedOne(tag.RowsAffected(), err, "purge video")
}

// ListPurgeable returns ids of records soft-deleted before cutoff.
func (r *VideoRepository) ListPurgeable(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id FROM videos WHERE is_deleted = TRUE AND deleted_at < $1
		 ORDER BY deleted_at ASC LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list purgeable videos: %w", err)
	}
	return collectStrings(rows)
}

// ListAuthorXids returns the distinct author ids of live records.
func (r *VideoRepository) ListAuthorXids(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT author_xid FROM videos WHERE is_deleted = FALSE ORDER BY author_xid`)
	if err != nil {
		return nil, fmt.Errorf("list author ids: %w", err)
	}
	return collectStrings(rows)
}

// StatusByIDs reports which of ids exist and whether they are deleted.
// Ids with no row are absent from the result.
func (r *VideoRepository) StatusByIDs(ctx context.Context, ids []string) (map[string]model.VideoStatus, error) {
	out := make(map[string]model.VideoStatus, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `SELECT id, is_deleted FROM videos WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("video status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s model.VideoStatus
		if err := rows.Scan(&s.ID, &s.IsDeleted); err != nil {
			return nil, fmt.Errorf("scan video status: %w", err)
		}
		out[s.ID] = s
	}
	return out, rows.Err()
}

func collectStrings(rows pgx.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func affectedOne(n int64, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
