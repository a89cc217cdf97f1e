package model

import "time"

// WeightNotFound marks a weight the snapshot source could not read.
const WeightNotFound = -1

// ScrapRecord is one version of the scraped facts for a (product, store)
// pair. ValidTo is nil while the record is live.
type ScrapRecord struct {
	ID                    string     `json:"id"`
	ProductEAN            int64      `json:"product_ean"`
	StoreID               string     `json:"store_id"`
	ManufacturerID        string     `json:"manufacturer_id"`
	ProductName           string     `json:"product_name"`
	Weight                int        `json:"weight"`
	Flavour               string     `json:"flavour"`
	FoodType              string     `json:"food_type"`
	AgeGroup              string     `json:"age_group"`
	Composition           string     `json:"composition"`
	AnalyticalComposition *string    `json:"analytical_composition,omitempty"`
	DietarySupplements    *string    `json:"dietary_supplements,omitempty"`
	ValidFrom             time.Time  `json:"valid_from"`
	ValidTo               *time.Time `json:"valid_to,omitempty"`
}

// IsValid reports whether the record is the live one for its pair.
func (r ScrapRecord) IsValid() bool {
	return r.ValidTo == nil
}

// SameContent reports whether the three content texts of the record equal
// the snapshot's. Descriptive fields (weight, flavour, type, age group) do
// not take part.
func (r ScrapRecord) SameContent(s Snapshot) bool {
	return r.Composition == s.Composition &&
		sameOptionalText(r.AnalyticalComposition, s.AnalyticalComposition) &&
		sameOptionalText(r.DietarySupplements, s.DietarySupplements)
}

func sameOptionalText(stored *string, scraped string) bool {
	if stored == nil {
		return scraped == NotFound
	}
	return *stored == scraped
}

// OptionalText maps the not-found sentinel to nil.
func OptionalText(s string) *string {
	if s == NotFound {
		return nil
	}
	return &s
}
