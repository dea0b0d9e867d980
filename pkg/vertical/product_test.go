package vertical

import (
	"context"
	"io"
	"log"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"ai-answer-engine-be/pkg/pipeline/state"
	"ai-answer-engine-be/pkg/serpapi"
)

type requestLog struct {
	mu      sync.Mutex
	queries []url.Values
}

func (rl *requestLog) count() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.queries)
}

func (rl *requestLog) last() url.Values {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.queries) == 0 {
		return url.Values{}
	}
	return rl.queries[len(rl.queries)-1]
}

// stubClient points a serpapi client at a server that always answers body.
func stubClient(t *testing.T, body string) (*serpapi.Client, *requestLog) {
	t.Helper()
	rl := &requestLog{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rl.mu.Lock()
		rl.queries = append(rl.queries, r.URL.Query())
		rl.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return serpapi.NewClientWithBaseURL("test-key", server.URL), rl
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func closeTo(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

const shoppingBody = `{
	"shopping_results": [
		{"title": "Laptop X", "price": "$999.00", "extracted_price": 999.0, "link": "https://shop/a", "source": "ShopA", "rating": 4.5, "reviews": 1200},
		{"title": "Laptop Y", "price": "$1,899.00", "extracted_price": 1899.0, "product_link": "https://shop/b", "source": "ShopB", "extracted_price_old": 2099.0},
		{"title": "Laptop Z", "price": "$649.00", "extracted_price": 649.0, "link": "https://shop/c", "source": "ShopC", "tag": "SALE", "delivery": "Free delivery"}
	]
}`

func TestProductSearch(t *testing.T) {
	client, rl := stubClient(t, shoppingBody)
	r := NewProductRetriever(client, quietLogger())

	payload, err := r.Search(context.Background(), "gaming laptop", state.ExtractedFilters{})
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}

	if len(payload.Products) != 3 {
		t.Fatalf("products = %d, want 3", len(payload.Products))
	}
	if payload.MaxItemsHint != productMaxItems {
		t.Errorf("MaxItemsHint = %d, want %d", payload.MaxItemsHint, productMaxItems)
	}
	if rl.last().Get("q") != "gaming laptop" {
		t.Errorf("q = %q", rl.last().Get("q"))
	}

	// Link falls back to product_link, old price is rendered from the
	// extracted value.
	second := payload.Products[1]
	if second.Link != "https://shop/b" {
		t.Errorf("link = %q, want product_link fallback", second.Link)
	}
	if second.OldPrice != "2099.00" {
		t.Errorf("old price = %q", second.OldPrice)
	}

	if len(payload.Chunks) != 3 {
		t.Fatalf("chunks = %d, want one per product", len(payload.Chunks))
	}
	if payload.Chunks[0].Vertical != state.VerticalProduct {
		t.Errorf("chunk vertical = %s", payload.Chunks[0].Vertical)
	}
	if !closeTo(payload.Chunks[0].Score, 1.0) || !closeTo(payload.Chunks[1].Score, 0.95) {
		t.Errorf("chunk scores = %v, %v, want position decay", payload.Chunks[0].Score, payload.Chunks[1].Score)
	}
	if payload.Chunks[0].Text == "" {
		t.Error("evidence text empty")
	}
}

func TestProductSearchBudgetFilter(t *testing.T) {
	client, _ := stubClient(t, shoppingBody)
	r := NewProductRetriever(client, quietLogger())

	payload, err := r.Search(context.Background(), "gaming laptop", state.ExtractedFilters{
		Product: &state.ProductFilters{BudgetMax: 1000},
	})
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}

	if len(payload.Products) != 2 {
		t.Fatalf("products = %d, want 2 under budget", len(payload.Products))
	}
	for _, item := range payload.Products {
		if item.ExtractedPrice > 1000 {
			t.Errorf("item %q over budget at %.0f", item.Title, item.ExtractedPrice)
		}
	}
}

func TestProductSearchFilterQueryWins(t *testing.T) {
	client, rl := stubClient(t, `{"shopping_results": []}`)
	r := NewProductRetriever(client, quietLogger())

	_, err := r.Search(context.Background(), "the raw sub-query", state.ExtractedFilters{
		Product: &state.ProductFilters{Query: "anc headphones"},
	})
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if rl.last().Get("q") != "anc headphones" {
		t.Errorf("q = %q, want the extracted product query", rl.last().Get("q"))
	}
}

func TestRankScore(t *testing.T) {
	tests := []struct {
		position int
		want     float64
	}{
		{0, 1.0},
		{1, 0.95},
		{5, 0.75},
		{13, 0.35},
		{14, 0.3},
		{50, 0.3},
	}
	for _, tt := range tests {
		if got := rankScore(tt.position); !closeTo(got, tt.want) {
			t.Errorf("rankScore(%d) = %v, want %v", tt.position, got, tt.want)
		}
	}
}
