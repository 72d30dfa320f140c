// Package cache is the Redis-backed read-through cache for leads and clients.
//
// Keys are generation-stamped. An entity entry lives under "<prefix>:<ns>:item:<id>:g<n>"
// where n is the entity's generation counter; a listing entry lives under
// "<prefix>:<ns>:list:v<n>:<hash>" where n is the namespace version. Invalidation is an
// INCR of the relevant counter, so a reader that loaded from the database before a write
// can only ever fill a key that no later reader will look up. Retired entries age out
// through their TTL.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Namespace groups keys that are invalidated together.
type Namespace string

const (
	NamespaceLeads   Namespace = "leads"
	NamespaceClients Namespace = "clients"
)

// Cache wraps a Redis client. A Cache built with a nil client is a no-op.
type Cache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	logger *zap.Logger
	group  singleflight.Group
}

// New builds a cache over client.
func New(client redis.Cmdable, prefix string, ttl time.Duration, logger *zap.Logger) *Cache {
	if prefix == "" {
		prefix = "crm"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

func (c *Cache) generationKey(ns Namespace, id string) string {
	return fmt.Sprintf("%s:%s:item:%s:gen", c.prefix, ns, id)
}

func (c *Cache) versionKey(ns Namespace) string {
	return fmt.Sprintf("%s:%s:version", c.prefix, ns)
}

func (c *Cache) counter(ctx context.Context, key string) (int64, error) {
	value, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return value, err
}

// EntityKey returns the key of a single record under its current generation. A disabled
// cache returns an empty key, which Fetch treats as a bypass.
func (c *Cache) EntityKey(ctx context.Context, ns Namespace, id string) (string, error) {
	if !c.enabled() {
		return "", nil
	}
	generation, err := c.counter(ctx, c.generationKey(ns, id))
	if err != nil {
		return "", fmt.Errorf("read entity generation: %w", err)
	}
	return fmt.Sprintf("%s:%s:item:%s:g%d", c.prefix, ns, id, generation), nil
}

// ListKey returns the listing key for query under the namespace's current version.
func (c *Cache) ListKey(ctx context.Context, ns Namespace, query any) (string, error) {
	if !c.enabled() {
		return "", nil
	}
	version, err := c.counter(ctx, c.versionKey(ns))
	if err != nil {
		return "", fmt.Errorf("read namespace version: %w", err)
	}
	raw, err := json.Marshal(query)
	if err != nil {
		return "", fmt.Errorf("encode list query: %w", err)
	}
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("%s:%s:list:v%d:%s", c.prefix, ns, version, hex.EncodeToString(sum[:12])), nil
}

// Get decodes the value at key into dest. The boolean reports a hit.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.enabled() {
		return false, nil
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("decode cached value: %w", err)
	}
	return true, nil
}

// Set stores value at key with the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, value any) error {
	if !c.enabled() {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// InvalidateEntity retires a single record's entry by bumping its generation. The
// generation counter outlives any entry written under it.
func (c *Cache) InvalidateEntity(ctx context.Context, ns Namespace, id string) error {
	if !c.enabled() {
		return nil
	}
	key := c.generationKey(ns, id)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, 2*c.ttl)
		return nil
	})
	return err
}

// InvalidateNamespace retires every listing of ns by bumping its version.
func (c *Cache) InvalidateNamespace(ctx context.Context, ns Namespace) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Incr(ctx, c.versionKey(ns)).Err()
}

// InvalidateLead retires the cached lead record.
func (c *Cache) InvalidateLead(ctx context.Context, leadID string) error {
	return c.InvalidateEntity(ctx, NamespaceLeads, leadID)
}

// InvalidateLeadListings retires every cached lead listing.
func (c *Cache) InvalidateLeadListings(ctx context.Context) error {
	return c.InvalidateNamespace(ctx, NamespaceLeads)
}

// InvalidateClient retires the cached client record.
func (c *Cache) InvalidateClient(ctx context.Context, clientID string) error {
	return c.InvalidateEntity(ctx, NamespaceClients, clientID)
}

// InvalidateClientListings retires every cached client listing.
func (c *Cache) InvalidateClientListings(ctx context.Context) error {
	return c.InvalidateNamespace(ctx, NamespaceClients)
}

// Fetch reads key through the cache, calling load on a miss. Concurrent misses for the same
// key share one load. Cache errors are logged and fall through to load.
func Fetch[T any](ctx context.Context, c *Cache, key string, load func(context.Context) (T, error)) (T, error) {
	if !c.enabled() || key == "" {
		return load(ctx)
	}

	var cached T
	hit, err := c.Get(ctx, key, &cached)
	if err != nil {
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}
	if hit {
		return cached, nil
	}

	value, err, _ := c.group.Do(key, func() (any, error) {
		loaded, err := load(ctx)
		if err != nil {
			return loaded, err
		}
		if err := c.Set(ctx, key, loaded); err != nil {
			c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
		return loaded, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return value.(T), nil
}
