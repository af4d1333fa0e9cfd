package billing

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers processed webhook event ids so at-least-once deliveries
// are applied once. Ids are marked only after the transition is durably
// applied; a delivery that failed mid-write stays unmarked so the gateway's
// retry is reprocessed. The guard is best-effort: on backend failure the
// engine logs a warning and processes the event anyway, relying on the
// transition table's overwrite semantics for correctness.
type Deduper interface {
	// Seen reports whether the event id was already marked as processed.
	Seen(ctx context.Context, eventID string) (bool, error)

	// Mark records the event id as processed.
	Mark(ctx context.Context, eventID string) error
}

type redisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper builds a Deduper on a shared Redis client. The TTL bounds
// memory; it should comfortably exceed the gateway's webhook retry window.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) Deduper {
	return &redisDeduper{client: client, ttl: ttl}
}

func (d *redisDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := d.client.Exists(ctx, dedupeKey(eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *redisDeduper) Mark(ctx context.Context, eventID string) error {
	return d.client.Set(ctx, dedupeKey(eventID), 1, d.ttl).Err()
}

func dedupeKey(eventID string) string {
	return "billing:webhook:" + eventID
}
