package state

// Typed result items, one shape per structured vertical. Field sets mirror
// what the backing search engines actually return.

type ProductItem struct {
	Title          string  `json:"title"`
	Price          string  `json:"price,omitempty"`
	ExtractedPrice float64 `json:"extracted_price,omitempty"`
	OldPrice       string  `json:"old_price,omitempty"`
	Link           string  `json:"link,omitempty"`
	Source         string  `json:"source,omitempty"`
	Thumbnail      string  `json:"thumbnail,omitempty"`
	Tag            string  `json:"tag,omitempty"`
	Delivery       string  `json:"delivery,omitempty"`
	Rating         float64 `json:"rating,omitempty"`
	Reviews        int     `json:"reviews,omitempty"`
}

type HotelItem struct {
	Name           string   `json:"name"`
	Address        string   `json:"address,omitempty"`
	PricePerNight  string   `json:"price_per_night,omitempty"`
	ExtractedPrice float64  `json:"extracted_price,omitempty"`
	OverallRating  float64  `json:"overall_rating,omitempty"`
	Reviews        int      `json:"reviews,omitempty"`
	Amenities      []string `json:"amenities,omitempty"`
	BookingLink    string   `json:"booking_link,omitempty"`
	BookingSite    string   `json:"booking_site,omitempty"`
	CheckIn        string   `json:"check_in,omitempty"`
	CheckOut       string   `json:"check_out,omitempty"`
	Area           string   `json:"area,omitempty"`
	Description    string   `json:"description,omitempty"`
}

type FlightItem struct {
	Airline          string  `json:"airline"`
	FlightNumber     string  `json:"flight_number,omitempty"`
	DepartureAirport string  `json:"departure_airport,omitempty"`
	DepartureTime    string  `json:"departure_time,omitempty"`
	ArrivalAirport   string  `json:"arrival_airport,omitempty"`
	ArrivalTime      string  `json:"arrival_time,omitempty"`
	Duration         string  `json:"duration,omitempty"`
	Stops            int     `json:"stops"`
	Price            string  `json:"price,omitempty"`
	ExtractedPrice   float64 `json:"extracted_price,omitempty"`
	Link             string  `json:"link,omitempty"`
}

type ShowtimeItem struct {
	Theater   string   `json:"theater"`
	Address   string   `json:"address,omitempty"`
	Movie     string   `json:"movie,omitempty"`
	Showtimes []string `json:"showtimes,omitempty"`
	Format    string   `json:"format,omitempty"`
	Link      string   `json:"link,omitempty"`
}

// RetrievalPayload is what one vertical retriever returns: evidence chunks
// for synthesis plus the typed items for rendering. MaxItemsHint is the
// provider's expected page size, used for the quality hit-rate.
type RetrievalPayload struct {
	Chunks       []RetrievedChunk `json:"chunks"`
	Products     []ProductItem    `json:"products,omitempty"`
	Hotels       []HotelItem      `json:"hotels,omitempty"`
	Flights      []FlightItem     `json:"flights,omitempty"`
	Showtimes    []ShowtimeItem   `json:"showtimes,omitempty"`
	MaxItemsHint int              `json:"max_items_hint,omitempty"`
}

// ItemCount returns the number of typed items carried by the payload.
func (p *RetrievalPayload) ItemCount() int {
	return len(p.Products) + len(p.Hotels) + len(p.Flights) + len(p.Showtimes)
}

// UIHints tell the client how to lay out the result. The pipeline only
// emits the hint; rendering decisions stay client-side.
type UIHints struct {
	Layout          string `json:"layout"` // product_grid, hotel_list, flight_table, showtime_list, text
	ShowMap         bool   `json:"show_map,omitempty"`
	ShowComparisons bool   `json:"show_comparisons,omitempty"`
}

// HintsForVertical maps each vertical to its default layout hint.
func HintsForVertical(v Vertical) UIHints {
	switch v {
	case VerticalProduct:
		return UIHints{Layout: "product_grid", ShowComparisons: true}
	case VerticalHotel:
		return UIHints{Layout: "hotel_list", ShowMap: true}
	case VerticalFlight:
		return UIHints{Layout: "flight_table", ShowComparisons: true}
	case VerticalMovie:
		return UIHints{Layout: "showtime_list", ShowMap: true}
	case VerticalOther:
		return UIHints{Layout: "text"}
	}
	return UIHints{Layout: "text"}
}
