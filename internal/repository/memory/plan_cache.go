package memory

import (
	"context"
	"time"

	"ai-answer-engine-be/pkg/pipeline/normalize"

	"github.com/patrickmn/go-cache"
)

// PlanCache stores normalization outcomes so repeated phrasings skip their
// small-model calls.
type PlanCache struct {
	cache *cache.Cache
}

var _ normalize.PlanCache = &PlanCache{}

func NewPlanCache(ttl, sweepInterval time.Duration) *PlanCache {
	return &PlanCache{cache: cache.New(ttl, sweepInterval)}
}

func (c *PlanCache) Get(_ context.Context, key string) (*normalize.Outcome, bool) {
	if x, found := c.cache.Get(key); found {
		return x.(*normalize.Outcome), true
	}
	return nil, false
}

func (c *PlanCache) Set(_ context.Context, key string, outcome *normalize.Outcome) {
	c.cache.Set(key, outcome, cache.DefaultExpiration)
}
