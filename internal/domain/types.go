package domain

// CartLine is a single purchasable item as seen by the pricing and shipping
// engines. Amounts are expressed in currency minor units, weights in grams.
// The engines never mutate a line; callers own the slice.
type CartLine struct {
	ID          string
	Name        string
	Quantity    int
	UnitPrice   int64
	WeightGrams int
	Dimensions  *Dimensions
	Color       string
	Variant     string
}

// Dimensions captures optional physical dimensions in centimetres.
type Dimensions struct {
	LengthCM int
	WidthCM  int
	HeightCM int
}

// Destination identifies where a cart should be shipped. Only the country is
// used for zone resolution; the postal code must be present but is not parsed.
type Destination struct {
	Country    string
	PostalCode string
	State      string
	City       string
}

// Address is the shipping address collected during checkout.
type Address struct {
	FirstName  string
	LastName   string
	Email      string
	Address    string
	City       string
	PostalCode string
	Country    string
}

// CartSummary aggregates item count and value for a cart snapshot.
type CartSummary struct {
	ItemCount int
	Total     int64
}
