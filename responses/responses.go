package responses

// Record - what is stored for an item
type Record struct {
	Text string `json:"text"`
	// data url, empty when no image is attached
	Image string `json:"image"`
}

// Load - result of reading an item
type Load struct {
	Item   string `json:"item"`
	Status string `json:"status"`
	Record Record `json:"record"`
	// diagnostic for corrupt or unreadable records
	Error string `json:"error,omitempty"`
}

// Save - the record as it was written
type Save struct {
	Item   string `json:"item"`
	Record Record `json:"record"`
}

// Keys - items with a saved record
type Keys struct {
	Keys []string `json:"keys"`
}
