package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"ai-answer-engine-be/internal/dto"
	"ai-answer-engine-be/internal/entity"
	"ai-answer-engine-be/internal/repository/contract"
	"ai-answer-engine-be/pkg/pipeline/route"
	"ai-answer-engine-be/pkg/pipeline/state"
)

const (
	recommendationSeeds   = 3
	recommendationPerSeed = 4
	recommendationLimit   = 8
)

type IRecommendationService interface {
	Recommend(ctx context.Context, sessionId string) (*dto.RecommendationResponse, error)
}

// recommendationService turns past product searches into fresh suggestions.
// The personalization score blends seed recency with result rank.
type recommendationService struct {
	historyRepo      contract.QueryHistoryRepository
	productRetriever route.Retriever
}

func NewRecommendationService(historyRepo contract.QueryHistoryRepository, productRetriever route.Retriever) IRecommendationService {
	return &recommendationService{
		historyRepo:      historyRepo,
		productRetriever: productRetriever,
	}
}

func (c *recommendationService) Recommend(ctx context.Context, sessionId string) (*dto.RecommendationResponse, error) {
	seeds, err := c.seedQueries(ctx, sessionId)
	if err != nil {
		return nil, err
	}

	resp := &dto.RecommendationResponse{
		Items:       []dto.RecommendationItem{},
		SeedQueries: seeds,
		GeneratedAt: time.Now(),
	}
	if len(seeds) == 0 || c.productRetriever == nil {
		return resp, nil
	}

	best := make(map[string]dto.RecommendationItem)
	for i, seed := range seeds {
		payload, err := c.productRetriever.Search(ctx, seed, state.ExtractedFilters{})
		if err != nil {
			log.Printf("[WARN] Recommendation search failed for %q: %v", seed, err)
			continue
		}

		seedWeight := 1.0 - 0.2*float64(i)
		for j, p := range payload.Products {
			if j >= recommendationPerSeed {
				break
			}
			item := dto.RecommendationItem{
				Title:                p.Title,
				Price:                p.Price,
				Link:                 p.Link,
				Source:               p.Source,
				Thumbnail:            p.Thumbnail,
				Reason:               fmt.Sprintf("Because you searched for %q", seed),
				PersonalizationScore: seedWeight * (1.0 - 0.1*float64(j)),
			}
			key := strings.ToLower(p.Title) + "|" + p.Link
			if prev, ok := best[key]; !ok || item.PersonalizationScore > prev.PersonalizationScore {
				best[key] = item
			}
		}
	}

	for _, item := range best {
		resp.Items = append(resp.Items, item)
	}
	sort.Slice(resp.Items, func(i, j int) bool {
		if resp.Items[i].PersonalizationScore != resp.Items[j].PersonalizationScore {
			return resp.Items[i].PersonalizationScore > resp.Items[j].PersonalizationScore
		}
		return resp.Items[i].Title < resp.Items[j].Title
	})
	if len(resp.Items) > recommendationLimit {
		resp.Items = resp.Items[:recommendationLimit]
	}

	return resp, nil
}

// seedQueries picks distinct recent product searches, preferring the
// caller's own session and falling back to global history.
func (c *recommendationService) seedQueries(ctx context.Context, sessionId string) ([]string, error) {
	if c.historyRepo == nil {
		return nil, nil
	}

	records, err := c.fetchRecords(ctx, sessionId)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var seeds []string
	for _, r := range records {
		if r == nil || r.Vertical != string(state.VerticalProduct) {
			continue
		}
		q := strings.TrimSpace(r.Message)
		norm := strings.ToLower(q)
		if q == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		seeds = append(seeds, q)
		if len(seeds) >= recommendationSeeds {
			break
		}
	}
	return seeds, nil
}

func (c *recommendationService) fetchRecords(ctx context.Context, sessionId string) ([]*entity.QueryRecord, error) {
	if sessionId != "" {
		records, err := c.historyRepo.FindRecentBySession(ctx, sessionId, 20)
		if err != nil {
			log.Printf("[WARN] Session history lookup failed: %v", err)
		} else if len(records) > 0 {
			return records, nil
		}
	}
	return c.historyRepo.FindRecent(ctx, 20)
}
