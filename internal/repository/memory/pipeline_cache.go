package memory

import (
	"context"
	"time"

	"ai-answer-engine-be/pkg/pipeline/executor"
	"ai-answer-engine-be/pkg/pipeline/state"

	"github.com/patrickmn/go-cache"
)

// PipelineCache stores completed quick-mode results in process.
type PipelineCache struct {
	cache *cache.Cache
}

var _ executor.Cache = &PipelineCache{}

func NewPipelineCache(defaultTTL, sweepInterval time.Duration) *PipelineCache {
	return &PipelineCache{cache: cache.New(defaultTTL, sweepInterval)}
}

func (c *PipelineCache) Get(_ context.Context, key string) (*state.PipelineResult, bool) {
	if x, found := c.cache.Get(key); found {
		return x.(*state.PipelineResult), true
	}
	return nil, false
}

func (c *PipelineCache) Set(_ context.Context, key string, result *state.PipelineResult, ttl time.Duration) {
	if ttl <= 0 {
		ttl = cache.DefaultExpiration
	}
	c.cache.Set(key, result, ttl)
}
