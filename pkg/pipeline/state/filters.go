package state

// Per-vertical filter payloads. A sub-object is present only when that
// vertical's parameters were actually detected in the query.

type HotelFilters struct {
	Destination string   `json:"destination,omitempty"`
	CheckIn     string   `json:"check_in,omitempty"`
	CheckOut    string   `json:"check_out,omitempty"`
	Guests      int      `json:"guests,omitempty"`
	Area        string   `json:"area,omitempty"`
	Amenities   []string `json:"amenities,omitempty"`
	BudgetMax   float64  `json:"budget_max,omitempty"`
}

type FlightFilters struct {
	Origin      string `json:"origin,omitempty"`
	Destination string `json:"destination,omitempty"`
	DepartDate  string `json:"depart_date,omitempty"`
	ReturnDate  string `json:"return_date,omitempty"`
	Adults      int    `json:"adults,omitempty"`
	Cabin       string `json:"cabin,omitempty"`
}

type ProductFilters struct {
	Query     string   `json:"query,omitempty"`
	Category  string   `json:"category,omitempty"`
	BudgetMax float64  `json:"budget_max,omitempty"`
	Brands    []string `json:"brands,omitempty"`
}

type MovieFilters struct {
	Title   string `json:"title,omitempty"`
	City    string `json:"city,omitempty"`
	Date    string `json:"date,omitempty"`
	Tickets int    `json:"tickets,omitempty"`
	Format  string `json:"format,omitempty"`
}

type ExtractedFilters struct {
	Hotel   *HotelFilters   `json:"hotel,omitempty"`
	Flight  *FlightFilters  `json:"flight,omitempty"`
	Product *ProductFilters `json:"product,omitempty"`
	Movie   *MovieFilters   `json:"movie,omitempty"`
}

// Has reports whether filters were detected for the given vertical.
func (f ExtractedFilters) Has(v Vertical) bool {
	switch v {
	case VerticalHotel:
		return f.Hotel != nil
	case VerticalFlight:
		return f.Flight != nil
	case VerticalProduct:
		return f.Product != nil
	case VerticalMovie:
		return f.Movie != nil
	case VerticalOther:
		return false
	}
	return false
}

// Empty reports whether nothing was extracted at all.
func (f ExtractedFilters) Empty() bool {
	return f.Hotel == nil && f.Flight == nil && f.Product == nil && f.Movie == nil
}

// MergeFrom fills gaps in f from a previous turn's filters (slot memory).
// Freshly extracted values always win; only absent sub-objects are inherited.
func (f *ExtractedFilters) MergeFrom(prev ExtractedFilters) {
	if f.Hotel == nil && prev.Hotel != nil {
		hotelCopy := *prev.Hotel
		f.Hotel = &hotelCopy
	}
	if f.Flight == nil && prev.Flight != nil {
		flightCopy := *prev.Flight
		f.Flight = &flightCopy
	}
	if f.Product == nil && prev.Product != nil {
		productCopy := *prev.Product
		f.Product = &productCopy
	}
	if f.Movie == nil && prev.Movie != nil {
		movieCopy := *prev.Movie
		f.Movie = &movieCopy
	}
}
