package model

import "time"

// Store is a retailer whose listings are collected.
type Store struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Website *string `json:"website,omitempty"`
}

// Manufacturer is the producer named on a listing.
type Manufacturer struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Website *string `json:"website,omitempty"`
}

// Product is keyed by its EAN. IsFollowed is cleared by the coherence audit
// to keep noisy products out of extraction without deleting their history.
type Product struct {
	EAN            int64  `json:"ean"`
	ManufacturerID string `json:"manufacturer_id"`
	IsFollowed     bool   `json:"is_followed"`
}

// PriceObservation is an append-only price point, unique per product, store and day.
type PriceObservation struct {
	ID         string    `json:"id"`
	ProductEAN int64     `json:"product_ean"`
	StoreID    string    `json:"store_id"`
	Value      float64   `json:"value"` // PLN
	Date       time.Time `json:"date"`
}

// DateOnly truncates t to the UTC calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
