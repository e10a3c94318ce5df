package service

import (
	"context"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/slot-registration/internal/cache"
)

// AuthorLister returns the distinct author ids of live records.
type AuthorLister interface {
	ListAuthorXids(ctx context.Context) ([]string, error)
}

// MemberDirectory answers author-id suggestions from a cached list.
type MemberDirectory struct {
	authors *cache.TTL[[]string]
}

// NewMemberDirectory constructs a MemberDirectory. now may be nil.
func NewMemberDirectory(videos AuthorLister, ttl time.Duration, now func() time.Time) *MemberDirectory {
	return &MemberDirectory{authors: cache.NewTTL(ttl, videos.ListAuthorXids, now)}
}

// Suggest returns up to limit author ids starting with prefix, ignoring case.
func (d *MemberDirectory) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	all, err := d.authors.Get(ctx)
	if err != nil {
		return nil, err
	}
	p := NormalizeXid(prefix)
	out := make([]string, 0, limit)
	for _, xid := range all {
		if len(out) >= limit {
			break
		}
		if strings.HasPrefix(strings.ToLower(xid), p) {
			out = append(out, xid)
		}
	}
	return out, nil
}

// Invalidate drops the cached author list.
func (d *MemberDirectory) Invalidate() {
	d.authors.Invalidate()
}
