package vertical

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	"ai-answer-engine-be/pkg/pipeline/aggregate"
	"ai-answer-engine-be/pkg/pipeline/route"
	"ai-answer-engine-be/pkg/pipeline/state"
	"ai-answer-engine-be/pkg/serpapi"
)

const webMaxItems = 10

// WebRetriever serves the catch-all vertical from Google organic results.
// The same search backs two roles: general evidence retrieval and the
// web-overview call used by the weak-retrieval fallback.
type WebRetriever struct {
	client *serpapi.Client
	logger *log.Logger
}

var (
	_ route.Retriever            = &WebRetriever{}
	_ aggregate.OverviewProvider = &WebRetriever{}
)

func NewWebRetriever(client *serpapi.Client, logger *log.Logger) *WebRetriever {
	if logger == nil {
		logger = log.Default()
	}
	return &WebRetriever{client: client, logger: logger}
}

type webResponse struct {
	AnswerBox struct {
		Answer  string `json:"answer"`
		Snippet string `json:"snippet"`
		Title   string `json:"title"`
		Link    string `json:"link"`
	} `json:"answer_box"`
	OrganicResults []struct {
		Position int    `json:"position"`
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
		Date     string `json:"date"`
	} `json:"organic_results"`
}

func (r *WebRetriever) Search(ctx context.Context, query string, _ state.ExtractedFilters) (*state.RetrievalPayload, error) {
	resp, err := r.fetch(ctx, query)
	if err != nil {
		return nil, err
	}

	payload := &state.RetrievalPayload{MaxItemsHint: webMaxItems}
	if resp.AnswerBox.Answer != "" || resp.AnswerBox.Snippet != "" {
		text := resp.AnswerBox.Answer
		if text == "" {
			text = resp.AnswerBox.Snippet
		}
		payload.Chunks = append(payload.Chunks, state.RetrievedChunk{
			ID:       "web-answer",
			URL:      resp.AnswerBox.Link,
			Title:    firstNonEmpty(resp.AnswerBox.Title, "Featured answer"),
			Text:     text,
			Vertical: state.VerticalOther,
			Score:    1.0,
		})
	}
	for i, raw := range resp.OrganicResults {
		if len(payload.Chunks) >= webMaxItems {
			break
		}
		payload.Chunks = append(payload.Chunks, state.RetrievedChunk{
			ID:       fmt.Sprintf("web-%d", i+1),
			URL:      raw.Link,
			Title:    raw.Title,
			Text:     raw.Snippet,
			Vertical: state.VerticalOther,
			Score:    rankScore(i),
		})
	}

	r.logger.Printf("[VERTICAL] web search %q returned %d results", query, len(payload.Chunks))
	return payload, nil
}

// Overview condenses one web search into a short summary plus citations.
func (r *WebRetriever) Overview(ctx context.Context, query string) (*state.WebOverview, error) {
	resp, err := r.fetch(ctx, query)
	if err != nil {
		return nil, err
	}

	overview := &state.WebOverview{}
	if resp.AnswerBox.Answer != "" {
		overview.Summary = resp.AnswerBox.Answer
	} else if resp.AnswerBox.Snippet != "" {
		overview.Summary = resp.AnswerBox.Snippet
	}

	var snippets []string
	for i, raw := range resp.OrganicResults {
		if i >= 5 {
			break
		}
		overview.Citations = append(overview.Citations, state.Citation{
			ID:        i + 1,
			URL:       raw.Link,
			Title:     raw.Title,
			Snippet:   raw.Snippet,
			Freshness: raw.Date,
		})
		if raw.Snippet != "" && len(snippets) < 3 {
			snippets = append(snippets, raw.Snippet)
		}
	}
	if overview.Summary == "" {
		overview.Summary = strings.Join(snippets, " ")
	}

	if overview.Summary == "" && len(overview.Citations) == 0 {
		return nil, fmt.Errorf("no web results for %q", query)
	}
	return overview, nil
}

func (r *WebRetriever) fetch(ctx context.Context, query string) (*webResponse, error) {
	params := url.Values{}
	params.Set("q", query)

	var resp webResponse
	if err := r.client.Search(ctx, "google", params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
