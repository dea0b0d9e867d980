package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"ai-answer-engine-be/pkg/pipeline/route"
	"ai-answer-engine-be/pkg/pipeline/state"

	"github.com/fatih/color"
)

// Offline routing probe: scores queries keyword-only (no embedder, no API
// keys) and shows which verticals the selection rule would admit.
//
// Usage: go run ./cmd/routeprobe ["your query" ...]

var defaultQueries = []string{
	"best laptops under $1000",
	"hotels in boston near fenway park",
	"book a flight from JFK to LAX",
	"dune showtimes tonight",
	"what caused the 2008 financial crisis",
	"flight to paris and a hotel near the louvre",
}

func main() {
	queries := os.Args[1:]
	if len(queries) == 0 {
		queries = defaultQueries
	}

	color.Cyan("🔍 Route Probe (keyword-only scoring, no embedder)")

	scorer := route.NewScorer(nil, route.DefaultScorerConfig(), log.New(os.Stderr, "", 0))
	cfg := route.DefaultConfig()

	for _, q := range queries {
		probe(scorer, cfg, q)
	}
}

func probe(scorer *route.Scorer, cfg route.Config, query string) {
	color.Yellow("\nQUERY: %s", query)

	intent := route.ClassifyIntent(query)
	fmt.Printf("  intent: %s (confidence %.2f)\n", intent.Intent, intent.Confidence)

	candidates := scorer.Score(context.Background(), query, state.ExtractedFilters{})
	primary, selected, narrowed := route.SelectVerticals(candidates, cfg)

	admitted := make(map[state.Vertical]bool, len(selected))
	for _, cand := range selected {
		admitted[cand.Vertical] = true
	}

	sorted := make([]state.PlanCandidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	fmt.Println("  " + strings.Repeat("─", 44))
	for _, cand := range sorted {
		line := fmt.Sprintf("  %-8s %.3f %s", cand.Vertical, cand.Score, bar(cand.Score))
		switch {
		case cand.Vertical == primary.Vertical:
			color.Green("%s  ◀ PRIMARY", line)
		case admitted[cand.Vertical]:
			color.Green("%s  ◀ secondary", line)
		default:
			fmt.Println(line)
		}
	}
	fmt.Println("  " + strings.Repeat("─", 44))

	fmt.Printf("  admitted %d/%d (margin %.2f, floor %.2f)\n",
		len(selected), len(candidates), cfg.SecondaryMargin, cfg.SecondaryFloor)
	if narrowed {
		color.Magenta("  📌 intent pin overrode the raw top scorer")
	}
}

func bar(score float64) string {
	n := int(score * 20)
	if n < 0 {
		n = 0
	}
	if n > 20 {
		n = 20
	}
	return strings.Repeat("█", n) + strings.Repeat("░", 20-n)
}
