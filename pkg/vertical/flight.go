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

const flightMaxItems = 10

// FlightRetriever serves the flight vertical from Google Flights. The engine
// needs airport codes; without origin and destination filters it degrades to
// an empty payload rather than guessing routes.
type FlightRetriever struct {
	client *serpapi.Client
	logger *log.Logger
}

var _ route.Retriever = &FlightRetriever{}

func NewFlightRetriever(client *serpapi.Client, logger *log.Logger) *FlightRetriever {
	if logger == nil {
		logger = log.Default()
	}
	return &FlightRetriever{client: client, logger: logger}
}

type flightLeg struct {
	DepartureAirport struct {
		Name string `json:"name"`
		ID   string `json:"id"`
		Time string `json:"time"`
	} `json:"departure_airport"`
	ArrivalAirport struct {
		Name string `json:"name"`
		ID   string `json:"id"`
		Time string `json:"time"`
	} `json:"arrival_airport"`
	Airline      string `json:"airline"`
	FlightNumber string `json:"flight_number"`
	Duration     int    `json:"duration"`
}

type flightOption struct {
	Flights       []flightLeg `json:"flights"`
	TotalDuration int         `json:"total_duration"`
	Price         float64     `json:"price"`
}

type flightsResponse struct {
	BestFlights  []flightOption `json:"best_flights"`
	OtherFlights []flightOption `json:"other_flights"`
}

func (r *FlightRetriever) Search(ctx context.Context, query string, filters state.ExtractedFilters) (*state.RetrievalPayload, error) {
	ff := filters.Flight
	if ff == nil || ff.Origin == "" || ff.Destination == "" {
		r.logger.Printf("[VERTICAL] flight search %q skipped, no origin/destination filters", query)
		return &state.RetrievalPayload{MaxItemsHint: flightMaxItems}, nil
	}

	params := url.Values{}
	params.Set("departure_id", strings.ToUpper(ff.Origin))
	params.Set("arrival_id", strings.ToUpper(ff.Destination))
	if ff.DepartDate != "" {
		params.Set("outbound_date", ff.DepartDate)
	}
	if ff.ReturnDate != "" {
		params.Set("return_date", ff.ReturnDate)
	} else {
		params.Set("type", "2") // one way
	}
	if ff.Adults > 0 {
		params.Set("adults", fmt.Sprintf("%d", ff.Adults))
	}

	var resp flightsResponse
	if err := r.client.Search(ctx, "google_flights", params, &resp); err != nil {
		return nil, err
	}

	options := append(resp.BestFlights, resp.OtherFlights...)
	payload := &state.RetrievalPayload{MaxItemsHint: flightMaxItems}
	for i, opt := range options {
		if len(opt.Flights) == 0 {
			continue
		}
		if len(payload.Flights) >= flightMaxItems {
			break
		}

		first, last := opt.Flights[0], opt.Flights[len(opt.Flights)-1]
		item := state.FlightItem{
			Airline:          first.Airline,
			FlightNumber:     first.FlightNumber,
			DepartureAirport: first.DepartureAirport.ID,
			DepartureTime:    first.DepartureAirport.Time,
			ArrivalAirport:   last.ArrivalAirport.ID,
			ArrivalTime:      last.ArrivalAirport.Time,
			Duration:         formatDuration(opt.TotalDuration),
			Stops:            len(opt.Flights) - 1,
			ExtractedPrice:   opt.Price,
		}
		if opt.Price > 0 {
			item.Price = fmt.Sprintf("$%.0f", opt.Price)
		}

		payload.Flights = append(payload.Flights, item)
		payload.Chunks = append(payload.Chunks, state.RetrievedChunk{
			ID:       fmt.Sprintf("flight-%d", i+1),
			Title:    fmt.Sprintf("%s %s to %s", item.Airline, item.DepartureAirport, item.ArrivalAirport),
			Text:     flightEvidence(item),
			Vertical: state.VerticalFlight,
			Score:    rankScore(i),
		})
	}

	r.logger.Printf("[VERTICAL] flight search %s->%s returned %d options", ff.Origin, ff.Destination, len(payload.Flights))
	return payload, nil
}

func flightEvidence(item state.FlightItem) string {
	stops := "non-stop"
	if item.Stops == 1 {
		stops = "1 stop"
	} else if item.Stops > 1 {
		stops = fmt.Sprintf("%d stops", item.Stops)
	}
	return fmt.Sprintf("departs %s, arrives %s, %s, %s, %s",
		item.DepartureTime, item.ArrivalTime, item.Duration, stops, item.Price)
}

func formatDuration(minutes int) string {
	if minutes <= 0 {
		return ""
	}
	h, m := minutes/60, minutes%60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}
