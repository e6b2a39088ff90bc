/*
Package redisclient wraps a go-redis client used to cache a Camera's
installed json-table-id→Table mapping (§5: "Caches ... invalidated on
crop-JSON update"). Generalized from the teacher gateway's bare
connectivity check (redisclient/redis.go) into a small typed cache with
an explicit invalidation operation.
*/
package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alfred-ops/restaurant-core/internal/config"
	"github.com/alfred-ops/restaurant-core/internal/domain"
)

// Client wraps a redis.Client with the camera-mapping cache operations
// the dispatcher and camera worker need.
type Client struct {
	c *redis.Client
}

// New creates a Redis client from the provided config. Returns an error
// if the Redis URL cannot be parsed.
func New(cfg *config.Config) (*Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return &Client{c: redis.NewClient(opt)}, nil
}

// Ping verifies connectivity.
func (r *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.c.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (r *Client) Close() error {
	return r.c.Close()
}

func mappingKey(cameraID domain.ID) string {
	return "camera:" + cameraID.String() + ":table_mapping"
}

// CacheTableMapping caches the json-table-id→Table.ID mapping installed
// on a Camera's most recent crop-JSON, per §5's cache policy.
func (r *Client) CacheTableMapping(ctx context.Context, cameraID domain.ID, mapping map[string]domain.ID) error {
	raw := make(map[string]string, len(mapping))
	for jsonTableID, tableID := range mapping {
		raw[jsonTableID] = tableID.String()
	}
	payload, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal table mapping: %w", err)
	}
	return r.c.Set(ctx, mappingKey(cameraID), payload, 0).Err()
}

// TableMapping returns the cached mapping for a camera, or (nil, false)
// on a cache miss.
func (r *Client) TableMapping(ctx context.Context, cameraID domain.ID) (map[string]domain.ID, bool) {
	payload, err := r.c.Get(ctx, mappingKey(cameraID)).Bytes()
	if err != nil {
		return nil, false
	}
	var raw map[string]string
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, false
	}
	mapping := make(map[string]domain.ID, len(raw))
	for jsonTableID, idStr := range raw {
		id, err := domain.ParseID(idStr)
		if err != nil {
			continue
		}
		mapping[jsonTableID] = id
	}
	return mapping, true
}

// InvalidateTableMapping drops the cached mapping, forcing callers back
// to the Camera's authoritative crop-JSON. Nothing in this module calls
// it: Store.UpdateCameraCropJSON does not invalidate the cache, and a
// cached mapping is kept until this is called.
func (r *Client) InvalidateTableMapping(ctx context.Context, cameraID domain.ID) error {
	return r.c.Del(ctx, mappingKey(cameraID)).Err()
}
