package domain

// PriceTick is a single observed price for an instrument.
type PriceTick struct {
	Epoch       int64   // unix seconds
	Price       float64 // quoted price
	DisplayTime string  // human-readable time from the feed, may be empty
}
