package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/slot-registration/internal/model"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTTL_CachesUntilExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	loads := 0
	c := NewTTL(time.Minute, func(context.Context) (int, error) {
		loads++
		return loads, nil
	}, clock.Now)

	v, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	clock.Advance(30 * time.Second)
	v, _ = c.Get(context.Background())
	assert.Equal(t, 1, v)

	clock.Advance(31 * time.Second)
	v, _ = c.Get(context.Background())
	assert.Equal(t, 2, v)
}

func TestTTL_Invalidate(t *testing.T) {
	loads := 0
	c := NewTTL(time.Hour, func(context.Context) (int, error) {
		loads++
		return loads, nil
	}, nil)

	_, _ = c.Get(context.Background())
	c.Invalidate()
	v, _ := c.Get(context.Background())
	assert.Equal(t, 2, v)
}

func TestTTL_LoadErrorNotCached(t *testing.T) {
	fail := true
	c := NewTTL(time.Hour, func(context.Context) (string, error) {
		if fail {
			return "", errors.New("db down")
		}
		return "ok", nil
	}, nil)

	_, err := c.Get(context.Background())
	assert.Error(t, err)

	fail = false
	v, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func newTestEventCache(t *testing.T) (*EventCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewEventCache(client, time.Minute, zap.NewNop()), mr
}

func TestEventCache_RoundTrip(t *testing.T) {
	c, mr := newTestEventCache(t)
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 21, 0, 0, 0, time.UTC)
	vid := "v1"

	_, gen, ok := c.Get(ctx, "e1")
	assert.False(t, ok)
	assert.Equal(t, int64(0), gen)

	c.Set(ctx, &model.Event{ID: "e1", Name: "Spring", Slots: []model.Slot{{DateTime: at, AssignedVideoID: &vid}}}, gen)
	assert.True(t, mr.Exists("event:{e1}:view"))
	assert.Equal(t, time.Minute, mr.TTL("event:{e1}:view"))

	got, _, ok := c.Get(ctx, "e1")
	require.True(t, ok)
	assert.Equal(t, "Spring", got.Name)
	require.Len(t, got.Slots, 1)
	assert.True(t, got.Slots[0].DateTime.Equal(at))
	assert.True(t, got.Slots[0].AssignedTo("v1"))

	c.Invalidate(ctx, "e1")
	_, gen, ok = c.Get(ctx, "e1")
	assert.False(t, ok)
	assert.Equal(t, int64(1), gen)
}

func TestEventCache_SetAfterInvalidateIsDropped(t *testing.T) {
	c, mr := newTestEventCache(t)
	ctx := context.Background()

	_, gen, ok := c.Get(ctx, "e1")
	require.False(t, ok)

	// A reservation commits while the miss is being loaded.
	c.Invalidate(ctx, "e1")

	c.Set(ctx, &model.Event{ID: "e1", Name: "stale"}, gen)
	assert.False(t, mr.Exists("event:{e1}:view"))

	_, gen, _ = c.Get(ctx, "e1")
	c.Set(ctx, &model.Event{ID: "e1", Name: "fresh"}, gen)
	got, _, ok := c.Get(ctx, "e1")
	require.True(t, ok)
	assert.Equal(t, "fresh", got.Name)
}

func TestEventCache_CorruptEntryIsMiss(t *testing.T) {
	c, mr := newTestEventCache(t)
	require.NoError(t, mr.Set("event:{e1}:view", "{broken"))

	_, _, ok := c.Get(context.Background(), "e1")
	assert.False(t, ok)
}

func TestEventCache_BackendDownIsMiss(t *testing.T) {
	c, mr := newTestEventCache(t)
	mr.Close()

	_, gen, ok := c.Get(context.Background(), "e1")
	assert.False(t, ok)
	assert.Equal(t, int64(-1), gen)
	c.Set(context.Background(), &model.Event{ID: "e1"}, gen)
	c.Invalidate(context.Background(), "e1")
}
