package vertical

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	"ai-answer-engine-be/pkg/pipeline/route"
	"ai-answer-engine-be/pkg/pipeline/state"
	"ai-answer-engine-be/pkg/serpapi"
)

const productMaxItems = 20

// ProductRetriever serves the product vertical from Google Shopping.
type ProductRetriever struct {
	client *serpapi.Client
	logger *log.Logger
}

var _ route.Retriever = &ProductRetriever{}

func NewProductRetriever(client *serpapi.Client, logger *log.Logger) *ProductRetriever {
	if logger == nil {
		logger = log.Default()
	}
	return &ProductRetriever{client: client, logger: logger}
}

type shoppingResponse struct {
	ShoppingResults []struct {
		Title             string  `json:"title"`
		Price             string  `json:"price"`
		ExtractedPrice    float64 `json:"extracted_price"`
		ExtractedPriceOld float64 `json:"extracted_price_old"`
		OldPrice          string  `json:"old_price"`
		Link              string  `json:"link"`
		ProductLink       string  `json:"product_link"`
		Source            string  `json:"source"`
		Thumbnail         string  `json:"thumbnail"`
		Tag               string  `json:"tag"`
		Delivery          string  `json:"delivery"`
		Rating            float64 `json:"rating"`
		Reviews           int     `json:"reviews"`
	} `json:"shopping_results"`
}

func (r *ProductRetriever) Search(ctx context.Context, query string, filters state.ExtractedFilters) (*state.RetrievalPayload, error) {
	q := query
	if filters.Product != nil && filters.Product.Query != "" {
		q = filters.Product.Query
	}

	params := url.Values{}
	params.Set("q", q)

	var resp shoppingResponse
	if err := r.client.Search(ctx, "google_shopping", params, &resp); err != nil {
		return nil, err
	}

	payload := &state.RetrievalPayload{MaxItemsHint: productMaxItems}
	for i, raw := range resp.ShoppingResults {
		link := raw.Link
		if link == "" {
			link = raw.ProductLink
		}
		item := state.ProductItem{
			Title:          raw.Title,
			Price:          raw.Price,
			ExtractedPrice: raw.ExtractedPrice,
			OldPrice:       raw.OldPrice,
			Link:           link,
			Source:         raw.Source,
			Thumbnail:      raw.Thumbnail,
			Tag:            raw.Tag,
			Delivery:       raw.Delivery,
			Rating:         raw.Rating,
			Reviews:        raw.Reviews,
		}
		if item.OldPrice == "" && raw.ExtractedPriceOld > 0 {
			item.OldPrice = fmt.Sprintf("%.2f", raw.ExtractedPriceOld)
		}
		if filters.Product != nil && filters.Product.BudgetMax > 0 && item.ExtractedPrice > filters.Product.BudgetMax {
			continue
		}

		payload.Products = append(payload.Products, item)
		payload.Chunks = append(payload.Chunks, state.RetrievedChunk{
			ID:       fmt.Sprintf("product-%d", i+1),
			URL:      link,
			Title:    raw.Title,
			Text:     productEvidence(item),
			Vertical: state.VerticalProduct,
			Score:    rankScore(i),
		})
	}

	r.logger.Printf("[VERTICAL] product search %q returned %d items", q, len(payload.Products))
	return payload, nil
}

func productEvidence(item state.ProductItem) string {
	var b strings.Builder
	if item.Price != "" {
		b.WriteString(item.Price)
	}
	if item.Source != "" {
		b.WriteString(" from " + item.Source)
	}
	if item.Rating > 0 {
		b.WriteString(fmt.Sprintf(", rated %.1f (%d reviews)", item.Rating, item.Reviews))
	}
	if item.Tag != "" {
		b.WriteString(", " + item.Tag)
	}
	if item.Delivery != "" {
		b.WriteString(", " + item.Delivery)
	}
	return strings.TrimPrefix(b.String(), ", ")
}

// rankScore converts result position into a relevance score; providers
// return best matches first.
func rankScore(position int) float64 {
	score := 1.0 - 0.05*float64(position)
	if score < 0.3 {
		return 0.3
	}
	return score
}
