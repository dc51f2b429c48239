package domain

// Order is a raw order document as returned by the Shopify Admin API.
// Orders are read-only here: the export engine flattens whatever fields the
// API returned without reinterpreting them, so they stay a generic mapping.
// Numeric values are json.Number so they render back out verbatim.
type Order map[string]interface{}

// RecurringCharge represents a recurring application charge on Shopify.
type RecurringCharge struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	Price           float64 `json:"price"`
	Status          string  `json:"status"`
	ReturnURL       string  `json:"return_url"`
	ConfirmationURL string  `json:"confirmation_url"`
}

// ChargeStatusActive is the only status that unlocks the export surface.
const ChargeStatusActive = "active"
