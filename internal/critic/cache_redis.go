package critic

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisEntailmentCache is an alternate entailment-score cache backend
// for multi-process deployments, adapted from the teacher's
// agent/cache_redis.go RedisCache: same key-prefixing idiom, re-keyed
// for (premise, hypothesis, variant) hashes instead of arbitrary LLM
// response keys. Hit/miss counters are kept in process memory, not in
// Redis. Eviction is handled
// by Redis TTL rather than the in-memory cache's FIFO policy — across
// a single run this is immaterial since keys are written once and read
// many times within the run's lifetime, well under the TTL.
type RedisEntailmentCache struct {
	client     redis.UniversalClient
	prefix     string
	defaultTTL time.Duration
	statsLock  sync.RWMutex
	localStats CacheStats
}

// NewRedisEntailmentCache connects to addr and verifies the connection
// with a bounded ping, mirroring RedisCache's constructor.
func NewRedisEntailmentCache(addr, runID string, defaultTTL time.Duration) (*RedisEntailmentCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("critic: connect to redis: %w", err)
	}

	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	return &RedisEntailmentCache{
		client:     client,
		prefix:     "hdrp:verifier:" + runID,
		defaultTTL: defaultTTL,
	}, nil
}

func (c *RedisEntailmentCache) makeKey(key string) string {
	return c.prefix + ":" + key
}

func (c *RedisEntailmentCache) Get(key string) (Relation, bool) {
	ctx := context.Background()
	val, err := c.client.Get(ctx, c.makeKey(key)).Result()
	if err == redis.Nil || err != nil {
		c.statsLock.Lock()
		c.localStats.Misses++
		c.statsLock.Unlock()
		return Relation{}, false
	}

	var rel Relation
	if err := json.Unmarshal([]byte(val), &rel); err != nil {
		return Relation{}, false
	}

	c.statsLock.Lock()
	c.localStats.Hits++
	c.statsLock.Unlock()
	return rel, true
}

func (c *RedisEntailmentCache) Set(key string, rel Relation) {
	data, err := json.Marshal(rel)
	if err != nil {
		return
	}
	ctx := context.Background()
	_ = c.client.Set(ctx, c.makeKey(key), data, c.defaultTTL).Err()
}

func (c *RedisEntailmentCache) Stats() CacheStats {
	c.statsLock.RLock()
	defer c.statsLock.RUnlock()
	return c.localStats
}

func (c *RedisEntailmentCache) Close() error {
	return c.client.Close()
}
