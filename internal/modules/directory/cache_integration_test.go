//go:build integration

package directory

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"gigmarket/internal/modules/order"
	"gigmarket/internal/types"
)

type countingDirectory struct {
	*MemoryDirectory
	gigCalls atomic.Int32
}

func (c *countingDirectory) GigSummary(ctx context.Context, id types.ID) (*order.GigSummary, error) {
	c.gigCalls.Add(1)
	return c.MemoryDirectory.GigSummary(ctx, id)
}

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestCacheReadThrough(t *testing.T) {
	rdb := setupRedis(t)
	ctx := context.Background()

	inner := &countingDirectory{MemoryDirectory: NewMemoryDirectory()}
	inner.PutGig(&order.GigSummary{
		ID: "gig-1", Title: "Logo", FreelancerID: "f1",
		Packages: map[string]order.PackageTerms{
			"premium": {Price: types.NewMoney(5000, "BRL"), DeliveryDays: 3, Revisions: order.Unlimited()},
		},
	})
	cache := NewCache(inner, rdb, time.Minute, nil)

	first, err := cache.GigSummary(ctx, "gig-1")
	require.NoError(t, err)
	second, err := cache.GigSummary(ctx, "gig-1")
	require.NoError(t, err)

	assert.Equal(t, int32(1), inner.gigCalls.Load())
	assert.Equal(t, first.Title, second.Title)
	require.Contains(t, second.Packages, "premium")
	assert.True(t, second.Packages["premium"].Revisions.IsUnlimited())
	assert.Equal(t, int64(5000), second.Packages["premium"].Price.Amount)

	ttl, err := rdb.TTL(ctx, "directory:gig:gig-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, cache.Invalidate(ctx, []types.ID{"gig-1"}, nil))
	_, err = cache.GigSummary(ctx, "gig-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.gigCalls.Load())

	_, err = cache.GigSummary(ctx, "gig-404")
	assert.ErrorIs(t, err, order.ErrNotFound)
	n, err := rdb.Exists(ctx, "directory:gig:gig-404").Result()
	require.NoError(t, err)
	assert.Zero(t, n, "misses are not cached")
}
