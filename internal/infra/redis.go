// README: Redis client initialization and the lease lock used by background sweeps.
package infra

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"gigmarket/internal/types"
)

func NewRedis(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker hands out short leases so a single replica runs a periodic job.
type RedisLocker struct {
	client *redis.Client
	owner  string
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, owner: string(types.NewID())}
}

// TryLock acquires key for ttl. ok is false when another owner holds it.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error) {
	ok, err = l.client.SetNX(ctx, key, l.owner, ttl).Result()
	if err != nil || !ok {
		return func() {}, false, err
	}
	release = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{key}, l.owner).Err()
	}
	return release, true, nil
}
