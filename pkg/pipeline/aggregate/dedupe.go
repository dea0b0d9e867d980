package aggregate

import (
	"fmt"
	"strings"

	"ai-answer-engine-be/pkg/pipeline/state"
)

// DedupeChunks removes duplicate evidence by natural key, first seen wins.
// Branch order from the router is deterministic, so this is stable.
func DedupeChunks(chunks []state.RetrievedChunk) []state.RetrievedChunk {
	if len(chunks) <= 1 {
		return chunks
	}
	seen := make(map[string]struct{}, len(chunks))
	out := make([]state.RetrievedChunk, 0, len(chunks))
	for _, c := range chunks {
		key := string(c.Vertical) + "|" + strings.ToLower(strings.TrimSpace(c.Title)) + "|" + c.URL
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// DedupeItems removes duplicate structured items from a payload in place,
// using the natural key of each vertical.
func DedupeItems(v state.Vertical, payload *state.RetrievalPayload) {
	if payload == nil {
		return
	}
	switch v {
	case state.VerticalProduct:
		payload.Products = dedupeProducts(payload.Products)
	case state.VerticalHotel:
		payload.Hotels = dedupeHotels(payload.Hotels)
	case state.VerticalFlight:
		payload.Flights = dedupeFlights(payload.Flights)
	case state.VerticalMovie:
		payload.Showtimes = dedupeShowtimes(payload.Showtimes)
	case state.VerticalOther:
		payload.Chunks = DedupeChunks(payload.Chunks)
	default:
		panic(fmt.Sprintf("aggregate: unhandled vertical %q", v))
	}
}

func dedupeProducts(items []state.ProductItem) []state.ProductItem {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, it := range items {
		key := strings.ToLower(it.Title) + "|" + fmt.Sprintf("%.2f", it.ExtractedPrice) + "|" + it.Link
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it)
	}
	return out
}

func dedupeHotels(items []state.HotelItem) []state.HotelItem {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, it := range items {
		key := strings.ToLower(it.Name) + "|" + strings.ToLower(it.Address)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it)
	}
	return out
}

func dedupeFlights(items []state.FlightItem) []state.FlightItem {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, it := range items {
		key := strings.ToLower(it.Airline) + "|" + it.FlightNumber + "|" + it.DepartureTime
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it)
	}
	return out
}

func dedupeShowtimes(items []state.ShowtimeItem) []state.ShowtimeItem {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, it := range items {
		key := strings.ToLower(it.Theater) + "|" + strings.ToLower(it.Movie)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it)
	}
	return out
}
