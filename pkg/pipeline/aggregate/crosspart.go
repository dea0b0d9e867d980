package aggregate

import (
	"fmt"
	"strings"

	"ai-answer-engine-be/pkg/pipeline/state"
)

// CheckCrossPart inspects structured results that belong to the same trip and
// reports obvious inconsistencies, currently flight arrival vs hotel location.
// Returns nil when the parts agree or there is not enough data to compare.
func CheckCrossPart(payloads map[state.Vertical]*state.RetrievalPayload) *state.CrossPartHint {
	flights := payloads[state.VerticalFlight]
	hotels := payloads[state.VerticalHotel]
	if flights == nil || hotels == nil || len(flights.Flights) == 0 || len(hotels.Hotels) == 0 {
		return nil
	}

	arrival := strings.TrimSpace(flights.Flights[0].ArrivalAirport)
	area := strings.TrimSpace(hotels.Hotels[0].Area)
	if area == "" {
		area = strings.TrimSpace(hotels.Hotels[0].Address)
	}
	if arrival == "" || area == "" {
		return nil
	}

	if placesAgree(arrival, area) {
		return nil
	}

	return &state.CrossPartHint{
		Conflict:   fmt.Sprintf("flight arrives at %s but the hotel area is %s", arrival, area),
		Suggestion: fmt.Sprintf("consider hotels near %s or a flight into %s", arrival, area),
	}
}

// placesAgree is a containment heuristic: "JFK" agrees with "near JFK airport"
// but not with "LGA". Airport-to-neighborhood geography is out of scope.
func placesAgree(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	return strings.Contains(la, lb) || strings.Contains(lb, la)
}
