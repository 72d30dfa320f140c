package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID     string
	Status string
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "test", time.Minute, nil), mr
}

func TestEntityInvalidationChangesKey(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	before, err := c.EntityKey(ctx, NamespaceLeads, "lead-1")
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, before, record{ID: "lead-1", Status: "active"}))

	require.NoError(t, c.InvalidateLead(ctx, "lead-1"))

	after, err := c.EntityKey(ctx, NamespaceLeads, "lead-1")
	require.NoError(t, err)
	assert.NotEqual(t, before, after)

	var got record
	hit, err := c.Get(ctx, after, &got)
	require.NoError(t, err)
	assert.False(t, hit)

	other, err := c.EntityKey(ctx, NamespaceLeads, "lead-2")
	require.NoError(t, err)
	assert.Contains(t, other, ":g0")
}

func TestNamespaceInvalidationRetiresListings(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)
	query := map[string]any{"status": "active", "page": 1}

	leadsBefore, err := c.ListKey(ctx, NamespaceLeads, query)
	require.NoError(t, err)
	clientsBefore, err := c.ListKey(ctx, NamespaceClients, query)
	require.NoError(t, err)

	again, err := c.ListKey(ctx, NamespaceLeads, query)
	require.NoError(t, err)
	assert.Equal(t, leadsBefore, again)

	require.NoError(t, c.InvalidateLeadListings(ctx))

	leadsAfter, err := c.ListKey(ctx, NamespaceLeads, query)
	require.NoError(t, err)
	clientsAfter, err := c.ListKey(ctx, NamespaceClients, query)
	require.NoError(t, err)
	assert.NotEqual(t, leadsBefore, leadsAfter)
	assert.Equal(t, clientsBefore, clientsAfter)

	require.NoError(t, c.InvalidateClientListings(ctx))
	clientsAfter, err = c.ListKey(ctx, NamespaceClients, query)
	require.NoError(t, err)
	assert.NotEqual(t, clientsBefore, clientsAfter)
}

func TestFetchReadsThrough(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)
	key, err := c.EntityKey(ctx, NamespaceLeads, "lead-1")
	require.NoError(t, err)

	var loads int32
	load := func(context.Context) (record, error) {
		atomic.AddInt32(&loads, 1)
		return record{ID: "lead-1", Status: "qualified"}, nil
	}

	first, err := Fetch(ctx, c, key, load)
	require.NoError(t, err)
	second, err := Fetch(ctx, c, key, load)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))
}

func TestFetchSharesConcurrentLoads(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	var loads int32
	release := make(chan struct{})
	load := func(context.Context) (record, error) {
		atomic.AddInt32(&loads, 1)
		<-release
		return record{ID: "x"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = Fetch(ctx, c, "test:shared", load)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&loads), int32(5))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&loads), int32(1))
}

func TestFetchDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	_, err := Fetch(ctx, c, "test:broken", func(context.Context) (record, error) {
		return record{}, errors.New("db down")
	})
	assert.Error(t, err)
	assert.False(t, mr.Exists("test:broken"))
}

func TestFetchFallsBackWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)
	mr.Close()

	got, err := Fetch(ctx, c, "test:down", func(context.Context) (record, error) {
		return record{ID: "from-db"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "from-db", got.ID)
	assert.Error(t, c.InvalidateLeadListings(ctx))
}

func TestNilCacheIsNoop(t *testing.T) {
	ctx := context.Background()
	var c *Cache

	assert.NoError(t, c.InvalidateLead(ctx, "x"))
	assert.NoError(t, c.InvalidateClientListings(ctx))
	key, err := c.ListKey(ctx, NamespaceLeads, nil)
	require.NoError(t, err)
	assert.Empty(t, key)

	got, err := Fetch(ctx, c, "", func(context.Context) (record, error) {
		return record{ID: "direct"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "direct", got.ID)
}
