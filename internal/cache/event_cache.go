package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/slot-registration/internal/config"
	"github.com/Shivanand-hulikatti/slot-registration/internal/model"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// EventCache stores rendered event views in Redis. It is only a read
// cache: the slot store stays authoritative and every slot mutation
// invalidates the entry.
//
// Each event also carries a generation counter that Invalidate bumps. A
// view is only written back if the generation is unchanged since the miss
// that triggered the load, so a slow reader cannot resurrect a view that a
// concurrent reservation already invalidated.
type EventCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewEventCache constructs an EventCache.
func NewEventCache(client *redis.Client, ttl time.Duration, log *zap.Logger) *EventCache {
	return &EventCache{client: client, ttl: ttl, log: log}
}

// generationTTL keeps the counter well past any in-flight load.
const generationTTL = 24 * time.Hour

// Both keys share a hash tag so the guarded write stays on one cluster slot.
func viewKey(id string) string { return "event:{" + id + "}:view" }
func genKey(id string) string  { return "event:{" + id + "}:gen" }

// setIfGeneration writes the view only while the generation still matches.
var setIfGeneration = redis.NewScript(`
local cur = redis.call('GET', KEYS[2]) or '0'
if cur ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// Get returns the cached event and the current generation. A miss still
// reports the generation; a backend failure reports -1 so the caller's Set
// is skipped.
func (c *EventCache) Get(ctx context.Context, id string) (*model.Event, int64, bool) {
	pipe := c.client.Pipeline()
	viewCmd := pipe.Get(ctx, viewKey(id))
	genCmd := pipe.Get(ctx, genKey(id))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		c.log.Warn("event cache read failed", zap.String("event_id", id), zap.Error(err))
		return nil, -1, false
	}

	gen, err := genCmd.Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.log.Warn("event cache generation corrupt", zap.String("event_id", id), zap.Error(err))
		return nil, -1, false
	}

	raw, err := viewCmd.Bytes()
	if err != nil {
		return nil, gen, false
	}
	var e model.Event
	if err := json.Unmarshal(raw, &e); err != nil {
		c.log.Warn("event cache entry corrupt", zap.String("event_id", id), zap.Error(err))
		return nil, gen, false
	}
	return &e, gen, true
}

// Set stores e for the configured TTL unless the event was invalidated
// after gen was read.
func (c *EventCache) Set(ctx context.Context, e *model.Event, gen int64) {
	if gen < 0 {
		return
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return
	}
	err = setIfGeneration.Run(ctx, c.client,
		[]string{viewKey(e.ID), genKey(e.ID)},
		gen, raw, c.ttl.Milliseconds(),
	).Err()
	if err != nil {
		c.log.Warn("event cache write failed", zap.String("event_id", e.ID), zap.Error(err))
	}
}

// Invalidate bumps the generation of id and drops its cached view.
func (c *EventCache) Invalidate(ctx context.Context, id string) {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey(id))
		pipe.Expire(ctx, genKey(id), generationTTL)
		pipe.Del(ctx, viewKey(id))
		return nil
	})
	if err != nil {
		c.log.Warn("event cache invalidate failed", zap.String("event_id", id), zap.Error(err))
	}
}
