package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/fulfillment/services/catalog/internal/domain"
)

// storeIfNewer writes the entry unless the cache already holds the same or
// a later version, so a slow read-through cannot replace a fresher write.
var storeIfNewer = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if current and tonumber(current) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// ItemCache keeps item snapshots in Redis hashes keyed by item id,
// alongside the version they were read at.
type ItemCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewItemCache(client *redis.Client, ttl time.Duration) *ItemCache {
	return &ItemCache{client: client, ttl: ttl}
}

func itemKey(id uuid.UUID) string {
	return "item:" + id.String()
}

// Get returns redis.Nil on a miss.
func (c *ItemCache) Get(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	data, err := c.client.HGet(ctx, itemKey(id), "data").Bytes()
	if err != nil {
		return nil, err
	}

	var snapshot domain.ItemSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("error decoding cached item: %w", err)
	}

	return domain.RehydrateItem(snapshot)
}

// Store reports whether the entry was written.
func (c *ItemCache) Store(ctx context.Context, item *domain.Item) (bool, error) {
	data, err := json.Marshal(item.Snapshot())
	if err != nil {
		return false, fmt.Errorf("error encoding item: %w", err)
	}

	written, err := storeIfNewer.Run(
		ctx,
		c.client,
		[]string{itemKey(item.ID())},
		item.Version(),
		data,
		c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}

	return written == 1, nil
}

func (c *ItemCache) Invalidate(ctx context.Context, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, itemKey(id))
	}

	return c.client.Del(ctx, keys...).Err()
}

func isCacheMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}
