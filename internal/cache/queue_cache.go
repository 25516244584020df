package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/barber-queue/internal/events"
)

const boardTTL = 5 * time.Minute

// QueueCache keeps the latest computed queue board per shop in Redis so the
// polling read path does not touch postgres. Entries expire on their own;
// a miss falls back to a live recompute.
type QueueCache struct {
	client *redis.Client
}

// NewQueueCache constructs the cache.
func NewQueueCache(client *redis.Client) *QueueCache {
	return &QueueCache{client: client}
}

// SetBoard stores the board for a shop.
func (c *QueueCache) SetBoard(ctx context.Context, shopID string, entries []events.QueueEntry) error {
	if c == nil || c.client == nil {
		return nil
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, boardKey(shopID), payload, boardTTL).Err()
}

// GetBoard returns the cached board and whether it was present.
func (c *QueueCache) GetBoard(ctx context.Context, shopID string) ([]events.QueueEntry, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, nil
	}
	raw, err := c.client.Get(ctx, boardKey(shopID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	var entries []events.QueueEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false, err
	}
	return entries, true, nil
}

func boardKey(shopID string) string {
	return "queue:board:" + shopID
}
