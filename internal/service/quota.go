package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Shivanand-hulikatti/slot-registration/internal/model"
)

// UnlinkedLister fetches an author's live records without slot linkage.
type UnlinkedLister interface {
	ListUnlinkedByAuthor(ctx context.Context, authorLower string) ([]model.Video, error)
}

// QuotaCounter counts outstanding eventless registrations per author.
//
// The count is a plain read with no lock. Two concurrent submissions can
// both observe count=2 and both be created, so the limit can be exceeded by
// the number of racing writers.
type QuotaCounter struct {
	videos UnlinkedLister
}

// NewQuotaCounter constructs a QuotaCounter.
func NewQuotaCounter(videos UnlinkedLister) *QuotaCounter {
	return &QuotaCounter{videos: videos}
}

// CountUnlinked returns how many live registrations authorXid holds that are
// linked to neither a slot nor any event.
func (q *QuotaCounter) CountUnlinked(ctx context.Context, authorXid string) (int, error) {
	videos, err := q.videos.ListUnlinkedByAuthor(ctx, NormalizeXid(authorXid))
	if err != nil {
		return 0, fmt.Errorf("count unlinked registrations: %w", err)
	}

	// event_ids emptiness is not filterable server-side, so it is checked here.
	n := 0
	for i := range videos {
		v := &videos[i]
		if v.IsDeleted || v.IsSlotLinked() || len(v.EventIDs) > 0 {
			continue
		}
		n++
	}
	return n, nil
}

// NormalizeXid returns the comparison form of an author identifier.
func NormalizeXid(xid string) string {
	return strings.ToLower(strings.TrimSpace(xid))
}
