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

const hotelMaxItems = 20

// HotelRetriever serves the hotel vertical from Google Hotels.
type HotelRetriever struct {
	client *serpapi.Client
	logger *log.Logger
}

var _ route.Retriever = &HotelRetriever{}

func NewHotelRetriever(client *serpapi.Client, logger *log.Logger) *HotelRetriever {
	if logger == nil {
		logger = log.Default()
	}
	return &HotelRetriever{client: client, logger: logger}
}

type hotelsResponse struct {
	Properties []struct {
		Name         string `json:"name"`
		Description  string `json:"description"`
		Link         string `json:"link"`
		CheckInTime  string `json:"check_in_time"`
		CheckOutTime string `json:"check_out_time"`
		RatePerNight struct {
			Lowest          string  `json:"lowest"`
			ExtractedLowest float64 `json:"extracted_lowest"`
		} `json:"rate_per_night"`
		OverallRating float64  `json:"overall_rating"`
		Reviews       int      `json:"reviews"`
		Amenities     []string `json:"amenities"`
		NearbyPlaces  []struct {
			Name string `json:"name"`
		} `json:"nearby_places"`
	} `json:"properties"`
}

func (r *HotelRetriever) Search(ctx context.Context, query string, filters state.ExtractedFilters) (*state.RetrievalPayload, error) {
	hf := filters.Hotel

	q := query
	if hf != nil && hf.Destination != "" {
		q = hf.Destination + " hotels"
		if hf.Area != "" {
			q = hf.Area + " " + q
		}
	}

	params := url.Values{}
	params.Set("q", q)
	if hf != nil {
		if hf.CheckIn != "" {
			params.Set("check_in_date", hf.CheckIn)
		}
		if hf.CheckOut != "" {
			params.Set("check_out_date", hf.CheckOut)
		}
		if hf.Guests > 0 {
			params.Set("adults", fmt.Sprintf("%d", hf.Guests))
		}
	}

	var resp hotelsResponse
	if err := r.client.Search(ctx, "google_hotels", params, &resp); err != nil {
		return nil, err
	}

	payload := &state.RetrievalPayload{MaxItemsHint: hotelMaxItems}
	for i, raw := range resp.Properties {
		area := ""
		if len(raw.NearbyPlaces) > 0 {
			area = raw.NearbyPlaces[0].Name
		}
		if area == "" && hf != nil {
			area = hf.Area
		}

		item := state.HotelItem{
			Name:           raw.Name,
			PricePerNight:  raw.RatePerNight.Lowest,
			ExtractedPrice: raw.RatePerNight.ExtractedLowest,
			OverallRating:  raw.OverallRating,
			Reviews:        raw.Reviews,
			Amenities:      raw.Amenities,
			BookingLink:    raw.Link,
			CheckIn:        raw.CheckInTime,
			CheckOut:       raw.CheckOutTime,
			Area:           area,
			Description:    raw.Description,
		}
		if hf != nil && hf.BudgetMax > 0 && item.ExtractedPrice > hf.BudgetMax {
			continue
		}
		if hf != nil && len(hf.Amenities) > 0 && !hasAmenities(item.Amenities, hf.Amenities) {
			continue
		}

		payload.Hotels = append(payload.Hotels, item)
		payload.Chunks = append(payload.Chunks, state.RetrievedChunk{
			ID:       fmt.Sprintf("hotel-%d", i+1),
			URL:      raw.Link,
			Title:    raw.Name,
			Text:     hotelEvidence(item),
			Vertical: state.VerticalHotel,
			Score:    rankScore(i),
		})
	}

	r.logger.Printf("[VERTICAL] hotel search %q returned %d properties", q, len(payload.Hotels))
	return payload, nil
}

func hotelEvidence(item state.HotelItem) string {
	parts := make([]string, 0, 4)
	if item.PricePerNight != "" {
		parts = append(parts, item.PricePerNight+" per night")
	}
	if item.OverallRating > 0 {
		parts = append(parts, fmt.Sprintf("rated %.1f (%d reviews)", item.OverallRating, item.Reviews))
	}
	if item.Area != "" {
		parts = append(parts, "near "+item.Area)
	}
	if len(item.Amenities) > 0 {
		limit := len(item.Amenities)
		if limit > 4 {
			limit = 4
		}
		parts = append(parts, strings.Join(item.Amenities[:limit], ", "))
	}
	if item.Description != "" {
		parts = append(parts, item.Description)
	}
	return strings.Join(parts, ". ")
}

func hasAmenities(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if strings.Contains(strings.ToLower(h), strings.ToLower(w)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
