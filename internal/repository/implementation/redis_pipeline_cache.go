package implementation

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"ai-answer-engine-be/pkg/pipeline/executor"
	"ai-answer-engine-be/pkg/pipeline/state"

	"github.com/redis/go-redis/v9"
)

// RedisPipelineCache stores quick-mode results in Redis. Every backend or
// decode failure reads as a miss; the pipeline recomputes instead of failing.
type RedisPipelineCache struct {
	client *redis.Client
	logger *log.Logger
}

var _ executor.Cache = &RedisPipelineCache{}

func NewRedisPipelineCache(client *redis.Client, logger *log.Logger) *RedisPipelineCache {
	if logger == nil {
		logger = log.Default()
	}
	return &RedisPipelineCache{client: client, logger: logger}
}

func cacheKey(key string) string {
	return "result:" + key
}

func (c *RedisPipelineCache) Get(ctx context.Context, key string) (*state.PipelineResult, bool) {
	raw, err := c.client.Get(ctx, cacheKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Printf("[CACHE] redis read failed, treating as miss: %v", err)
		return nil, false
	}

	var result state.PipelineResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		c.logger.Printf("[CACHE] corrupt cached result, treating as miss: %v", err)
		return nil, false
	}
	return &result, true
}

func (c *RedisPipelineCache) Set(ctx context.Context, key string, result *state.PipelineResult, ttl time.Duration) {
	raw, err := json.Marshal(result)
	if err != nil {
		c.logger.Printf("[CACHE] result encode failed, not caching: %v", err)
		return
	}
	if err := c.client.Set(ctx, cacheKey(key), raw, ttl).Err(); err != nil {
		c.logger.Printf("[CACHE] redis write failed: %v", err)
	}
}
