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

const movieMaxItems = 10

// MovieRetriever serves the movie vertical: showtimes surfaced by a Google
// search for the movie plus location.
type MovieRetriever struct {
	client *serpapi.Client
	logger *log.Logger
}

var _ route.Retriever = &MovieRetriever{}

func NewMovieRetriever(client *serpapi.Client, logger *log.Logger) *MovieRetriever {
	if logger == nil {
		logger = log.Default()
	}
	return &MovieRetriever{client: client, logger: logger}
}

type showtimesResponse struct {
	Showtimes []struct {
		Day      string `json:"day"`
		Theaters []struct {
			Name    string `json:"name"`
			Address string `json:"address"`
			Link    string `json:"link"`
			Showing []struct {
				Time []string `json:"time"`
				Type string   `json:"type"`
			} `json:"showing"`
		} `json:"theaters"`
	} `json:"showtimes"`
}

func (r *MovieRetriever) Search(ctx context.Context, query string, filters state.ExtractedFilters) (*state.RetrievalPayload, error) {
	mf := filters.Movie

	q := query
	if !strings.Contains(strings.ToLower(q), "showtime") {
		q += " showtimes"
	}
	if mf != nil && mf.City != "" && !strings.Contains(strings.ToLower(q), strings.ToLower(mf.City)) {
		q += " " + mf.City
	}

	params := url.Values{}
	params.Set("q", q)

	var resp showtimesResponse
	if err := r.client.Search(ctx, "google", params, &resp); err != nil {
		return nil, err
	}

	payload := &state.RetrievalPayload{MaxItemsHint: movieMaxItems}
	if len(resp.Showtimes) == 0 {
		r.logger.Printf("[VERTICAL] movie search %q returned no showtimes", q)
		return payload, nil
	}

	// First day block is the requested (or nearest) date.
	day := resp.Showtimes[0]
	for i, theater := range day.Theaters {
		if len(payload.Showtimes) >= movieMaxItems {
			break
		}

		item := state.ShowtimeItem{
			Theater: theater.Name,
			Address: theater.Address,
			Link:    theater.Link,
		}
		if mf != nil {
			item.Movie = mf.Title
		}
		for _, showing := range theater.Showing {
			if mf != nil && mf.Format != "" && !strings.EqualFold(showing.Type, mf.Format) {
				continue
			}
			if item.Format == "" {
				item.Format = showing.Type
			}
			item.Showtimes = append(item.Showtimes, showing.Time...)
		}
		if len(item.Showtimes) == 0 {
			continue
		}

		payload.Showtimes = append(payload.Showtimes, item)
		payload.Chunks = append(payload.Chunks, state.RetrievedChunk{
			ID:       fmt.Sprintf("showtime-%d", i+1),
			URL:      theater.Link,
			Title:    theater.Name,
			Text:     showtimeEvidence(item, day.Day),
			Vertical: state.VerticalMovie,
			Score:    rankScore(i),
		})
	}

	r.logger.Printf("[VERTICAL] movie search %q returned %d theaters", q, len(payload.Showtimes))
	return payload, nil
}

func showtimeEvidence(item state.ShowtimeItem, day string) string {
	var b strings.Builder
	if day != "" {
		b.WriteString(day + ": ")
	}
	b.WriteString(strings.Join(item.Showtimes, ", "))
	if item.Format != "" {
		b.WriteString(" (" + item.Format + ")")
	}
	if item.Address != "" {
		b.WriteString(" at " + item.Address)
	}
	return b.String()
}
