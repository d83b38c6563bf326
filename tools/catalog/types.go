package catalog

// Position is a WGS84 coordinate.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// MenuItem is one priced dish.
type MenuItem struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Restaurant is one entry of the restaurant catalog.
type Restaurant struct {
	Title        string   `json:"title"`
	Address      string   `json:"address"`
	Position     Position `json:"position"`
	FoodTypes    []string `json:"foodTypes"`
	PriceSummary struct {
		PriceRangeLevel string `json:"priceRangeLevel"`
	} `json:"priceSummary"`
	ContactInfo struct {
		PhoneNumber string `json:"phoneNumber"`
		Email       string `json:"email"`
		Website     string `json:"website"`
	} `json:"contactInfo"`
	Menu struct {
		Items []MenuItem `json:"items"`
	} `json:"menu"`
}

// ParkingLot is one entry of the parking catalog.
type ParkingLot struct {
	Title        string `json:"title"`
	Address      string `json:"address"`
	Distance     string `json:"distance_from_current_location"`
	Duration     string `json:"duration_from_current_location"`
	PriceSummary struct {
		PriceSummaryText string `json:"priceSummaryText"`
	} `json:"priceSummary"`
	Parking struct {
		FreeSpotsNumber int `json:"freeSpotsNumber"`
		SpotsNumber     int `json:"spotsNumber"`
	} `json:"parking"`
	BusinessHours struct {
		CurrentStatus    string `json:"currentStatus"`
		NextStatusChange string `json:"nextStatusChange"`
	} `json:"businessHours"`
}

// LotSummary is the reduced view returned by parking queries.
type LotSummary struct {
	Title            string  `json:"title"`
	Address          string  `json:"address"`
	Distance         string  `json:"distance,omitempty"`
	Duration         string  `json:"duration,omitempty"`
	PriceSummary     string  `json:"price_summary,omitempty"`
	FreeSpots        int     `json:"free_spots"`
	TotalSpots       int     `json:"total_spots"`
	Availability     float64 `json:"availability_percentage,omitempty"`
	NextStatusChange string  `json:"next_status_change,omitempty"`
}

// OrderItem is one line of an order.
type OrderItem struct {
	Name     string `json:"name" jsonschema:"dish name, e.g. Salmon Sushi"`
	Quantity int    `json:"quantity" jsonschema:"how many"`
}

// Order is a placed order.
type Order struct {
	OrderID      int         `json:"order_id"`
	Restaurant   string      `json:"restaurant"`
	Items        []OrderItem `json:"items"`
	CustomerName string      `json:"customer_name"`
	Status       string      `json:"status"`
}
