package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"ai-answer-engine-be/internal/repository/memory"
	"ai-answer-engine-be/pkg/llm"
	"ai-answer-engine-be/pkg/pipeline/executor"
	"ai-answer-engine-be/pkg/pipeline/route"
	"ai-answer-engine-be/pkg/pipeline/state"

	"github.com/fatih/color"
)

// Offline pipeline run with stub providers: no API keys, no network. Useful
// for eyeballing the full PipelineResult shape and the stage trace.
//
// Usage: go run ./cmd/askpipe ["your query"]
//        ASKPIPE_MODE=deep go run ./cmd/askpipe ["your query"]

func main() {
	query := "best wireless headphones under $200"
	if len(os.Args) > 1 {
		query = strings.Join(os.Args[1:], " ")
	}

	mode := state.ModeQuick
	if strings.EqualFold(os.Getenv("ASKPIPE_MODE"), "deep") {
		mode = state.ModeDeep
	}

	color.Cyan("🚀 Ask Pipe (stub providers, mode=%s)", mode)

	logger := log.New(os.Stdout, "", log.Ltime)

	deps := executor.Deps{
		MainLLM:  &stubLLM{},
		SmallLLM: &stubLLM{},
		Retrievers: map[state.Vertical]route.Retriever{
			state.VerticalProduct: &stubRetriever{vertical: state.VerticalProduct},
			state.VerticalHotel:   &stubRetriever{vertical: state.VerticalHotel},
			state.VerticalFlight:  &stubRetriever{vertical: state.VerticalFlight},
			state.VerticalMovie:   &stubRetriever{vertical: state.VerticalMovie},
			state.VerticalOther:   &stubRetriever{vertical: state.VerticalOther},
		},
		WebOverview: &stubOverview{},
		Cache:       memory.NewPipelineCache(5*time.Minute, time.Minute),
		Sessions:    memory.NewSessionStore(5*time.Minute, time.Minute, 20),
	}

	exec := executor.New(deps, executor.DefaultConfig(), logger)

	qc := state.QueryContext{
		Message:   query,
		Mode:      mode,
		SessionID: "askpipe-local",
	}

	color.Yellow("\n[RUN 1] %s", query)
	run(exec, qc)

	if mode == state.ModeQuick {
		color.Yellow("\n[RUN 2] same query again (expect cache hit)")
		run(exec, qc)
	}
}

func run(exec *executor.Executor, qc state.QueryContext) {
	start := time.Now()
	result, err := exec.Run(context.Background(), qc)
	if err != nil {
		color.Red("pipeline failed: %v", err)
		os.Exit(1)
	}
	elapsed := time.Since(start)

	color.Green("\ndone in %v (cache_hit=%t)", elapsed, result.Debug.CacheHit)
	fmt.Printf("vertical=%s quality=%s items=%d citations=%d\n",
		result.Vertical, result.RetrievalStats.Quality, result.RetrievalStats.ItemCount, len(result.Citations))
	fmt.Printf("layout=%s\n\n", result.UIHints.Layout)

	fmt.Println("SUMMARY:")
	fmt.Println(indent(result.Summary, "  "))

	if len(result.Debug.SubQueries) > 0 {
		fmt.Printf("\nsub-queries: %v\n", result.Debug.SubQueries)
	}
	if result.Debug.Routing != nil {
		fmt.Printf("routing: primary=%s sources=%v\n", result.Debug.Routing.Primary, result.Debug.Routing.SourcesUsed)
	}
	fmt.Printf("stage latencies (ms): %v\n", result.Debug.StageLatenciesMs)

	if b, err := json.MarshalIndent(result.Citations, "", "  "); err == nil && len(result.Citations) > 0 {
		fmt.Printf("\ncitations:\n%s\n", string(b))
	}
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = prefix + lines[i]
	}
	return strings.Join(lines, "\n")
}

// --- Stub providers ---

// stubLLM answers each pipeline prompt with a plausible canned response,
// dispatching on markers in the prompt text.
type stubLLM struct{}

func (s *stubLLM) Chat(_ context.Context, history []llm.Message, _ ...llm.Option) (string, error) {
	if len(history) == 0 {
		return "", nil
	}
	return s.respond(history[len(history)-1].Content), nil
}

func (s *stubLLM) Generate(_ context.Context, prompt string, _ ...llm.Option) (string, error) {
	return s.respond(prompt), nil
}

func (s *stubLLM) respond(prompt string) string {
	switch {
	case strings.Contains(prompt, `"rewritten_prompt"`):
		msg := between(prompt, "<message>\n", "\n</message>")
		reply, _ := json.Marshal(map[string]interface{}{
			"rewritten_prompt": msg,
			"confidence":       0.92,
			"alternatives":     []string{},
		})
		return string(reply)

	case strings.Contains(prompt, "Extract structured search parameters"):
		return "{}"

	case strings.Contains(prompt, `"needs_grounding"`):
		return `{"needs_grounding": true, "reason": "stub always retrieves"}`

	case strings.Contains(prompt, "independent atomic search queries"):
		req := between(prompt, "<request>\n", "\n</request>")
		reply, _ := json.Marshal([]string{req})
		return string(reply)

	case strings.Contains(prompt, `"needs_replan"`):
		return `{"needs_replan": false, "confidence": 0.9, "reason": "stub accepts the first pass"}`

	default:
		return "Based on the listed sources, here is a short stub answer. The top result looks strongest [1], with a close runner-up [2]."
	}
}

func between(s, opening, closing string) string {
	i := strings.Index(s, opening)
	if i < 0 {
		return s
	}
	rest := s[i+len(opening):]
	j := strings.Index(rest, closing)
	if j < 0 {
		return rest
	}
	return rest[:j]
}

// stubRetriever returns two canned items for its vertical.
type stubRetriever struct {
	vertical state.Vertical
}

func (r *stubRetriever) Search(_ context.Context, query string, _ state.ExtractedFilters) (*state.RetrievalPayload, error) {
	payload := &state.RetrievalPayload{MaxItemsHint: 20}
	for i := 1; i <= 2; i++ {
		payload.Chunks = append(payload.Chunks, state.RetrievedChunk{
			ID:       fmt.Sprintf("%s-%d", r.vertical, i),
			URL:      fmt.Sprintf("https://example.com/%s/%d", r.vertical, i),
			Title:    fmt.Sprintf("Stub %s result %d for %q", r.vertical, i, query),
			Text:     fmt.Sprintf("Canned evidence text %d from the %s backend.", i, r.vertical),
			Vertical: r.vertical,
			Score:    1.0 - 0.1*float64(i),
		})
	}

	switch r.vertical {
	case state.VerticalProduct:
		payload.Products = []state.ProductItem{
			{Title: "Stub Headphones A", Price: "$149", ExtractedPrice: 149, Rating: 4.6, Reviews: 1200},
			{Title: "Stub Headphones B", Price: "$189", ExtractedPrice: 189, Rating: 4.4, Reviews: 640},
		}
	case state.VerticalHotel:
		payload.Hotels = []state.HotelItem{
			{Name: "Stub Hotel One", PricePerNight: "$210", OverallRating: 4.5, Area: "Downtown"},
			{Name: "Stub Hotel Two", PricePerNight: "$175", OverallRating: 4.2, Area: "Back Bay"},
		}
	case state.VerticalFlight:
		payload.Flights = []state.FlightItem{
			{Airline: "Stub Air", DepartureAirport: "JFK", ArrivalAirport: "LAX", Price: "$320", Stops: 0},
			{Airline: "Canned Jet", DepartureAirport: "JFK", ArrivalAirport: "LAX", Price: "$280", Stops: 1},
		}
	case state.VerticalMovie:
		payload.Showtimes = []state.ShowtimeItem{
			{Theater: "Stub Cinema 12", Movie: "Example Movie", Showtimes: []string{"18:30", "21:00"}},
		}
	}
	return payload, nil
}

type stubOverview struct{}

func (o *stubOverview) Overview(_ context.Context, query string) (*state.WebOverview, error) {
	return &state.WebOverview{
		Summary: fmt.Sprintf("Stub web overview for %q.", query),
		Citations: []state.Citation{{
			ID:    1,
			URL:   "https://example.com/overview",
			Title: "Stub overview source",
		}},
	}, nil
}
