package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/rueidis"
	"go.uber.org/zap"

	"github.com/candlelight-ai/lyceum/config"
	"github.com/candlelight-ai/lyceum/schema"
)

const redisKeyPrefix = "lyceum:result:"

// redisCache persists expansion results in Redis so multiple replicas share
// one result cache. Values are JSON-encoded *schema.ExpansionResult; other
// value types are not supported and are ignored on Set.
type redisCache struct {
	client rueidis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedis creates a Redis-backed result cache.
func NewRedis(cfg config.RedisConfig, ttl time.Duration, logger *zap.Logger) (Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, err
	}
	return &redisCache{client: client, ttl: ttl, logger: logger}, nil
}

func (c *redisCache) Get(key string) (any, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	data, err := c.client.Do(ctx, c.client.B().Get().Key(redisKeyPrefix+key).Build()).AsBytes()
	if err != nil {
		if !rueidis.IsRedisNil(err) {
			c.logger.Warn("redis cache get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var result schema.ExpansionResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Warn("redis cache entry unreadable", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &result, true
}

func (c *redisCache) Set(key string, value any, ttl time.Duration) {
	result, ok := value.(*schema.ExpansionResult)
	if !ok {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if ttl <= 0 {
		ttl = c.ttl
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	cmd := c.client.B().Set().Key(redisKeyPrefix + key).Value(string(data)).Ex(ttl).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		c.logger.Warn("redis cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *redisCache) Purge() {
	// Shared store: per-instance purge only drops the connection-local state.
	// Keys expire via TTL.
}
