// README: Redis read-through cache in front of a directory.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gigmarket/internal/modules/order"
	"gigmarket/internal/types"
)

const (
	gigKeyPrefix  = "directory:gig:%s"
	userKeyPrefix = "directory:user:%s"
	// DefaultCacheTTL bounds how stale a price or display name can be.
	DefaultCacheTTL = 10 * time.Minute
)

// cachedGig keeps the packages that GigSummary leaves out of its JSON form.
type cachedGig struct {
	*order.GigSummary
	Packages map[string]order.PackageTerms `json:"packages"`
}

type Cache struct {
	inner  order.Directory
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCache(inner order.Directory, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{inner: inner, redis: rdb, ttl: ttl, logger: logger}
}

func (c *Cache) GigSummary(ctx context.Context, id types.ID) (*order.GigSummary, error) {
	key := gigKey(id)
	var hit cachedGig
	if c.load(ctx, key, &hit) && hit.GigSummary != nil {
		hit.GigSummary.Packages = hit.Packages
		return hit.GigSummary, nil
	}
	g, err := c.inner.GigSummary(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, cachedGig{GigSummary: g, Packages: g.Packages})
	return g, nil
}

func (c *Cache) PartySummary(ctx context.Context, id types.ID) (*order.PartySummary, error) {
	key := userKey(id)
	var hit order.PartySummary
	if c.load(ctx, key, &hit) {
		return &hit, nil
	}
	u, err := c.inner.PartySummary(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, u)
	return u, nil
}

// Invalidate drops cached entries, e.g. after a gig edit.
func (c *Cache) Invalidate(ctx context.Context, gigIDs, userIDs []types.ID) error {
	keys := make([]string, 0, len(gigIDs)+len(userIDs))
	for _, id := range gigIDs {
		keys = append(keys, gigKey(id))
	}
	for _, id := range userIDs {
		keys = append(keys, userKey(id))
	}
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...).Err()
}

// load reports a usable hit; cache faults fall through to the directory.
func (c *Cache) load(ctx context.Context, key string, out any) bool {
	val, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.logger.Warn("directory cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(val, out); err != nil {
		c.logger.Warn("directory cache entry unreadable", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("directory cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.redis.Set(ctx, key, b, c.ttl).Err(); err != nil {
		c.logger.Warn("directory cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func gigKey(id types.ID) string  { return fmt.Sprintf(gigKeyPrefix, string(id)) }
func userKey(id types.ID) string { return fmt.Sprintf(userKeyPrefix, string(id)) }
