package model

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// NotFound is the sentinel a snapshot source uses for a field it could not read.
const NotFound = "not found"

// Snapshot is one product as parsed from a single collection run.
type Snapshot struct {
	EAN                   string   `json:"ean" yaml:"ean"`
	Manufacturer          string   `json:"manufacturer" yaml:"manufacturer"`
	Name                  string   `json:"name" yaml:"name"`
	Weight                int      `json:"weight" yaml:"weight"`
	Flavour               string   `json:"flavour" yaml:"flavour"`
	FoodType              string   `json:"food_type" yaml:"food_type"`
	AgeGroup              string   `json:"age_group" yaml:"age_group"`
	Composition           string   `json:"composition" yaml:"composition"`
	AnalyticalComposition string   `json:"analytical_composition" yaml:"analytical_composition"`
	DietarySupplements    string   `json:"dietary_supplements" yaml:"dietary_supplements"`
	Price                 *float64 `json:"price,omitempty" yaml:"price,omitempty"`

	// Origin identifies where the snapshot came from (file path, URL) for logs.
	Origin string `json:"origin,omitempty" yaml:"-"`
}

// ParseEAN returns the snapshot's EAN as a positive integer.
func (s Snapshot) ParseEAN() (int64, error) {
	raw := strings.TrimSpace(s.EAN)
	if raw == "" || raw == NotFound {
		return 0, eris.New("snapshot: ean not found")
	}
	ean, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "snapshot: malformed ean %q", raw)
	}
	if ean <= 0 {
		return 0, eris.Errorf("snapshot: non-positive ean %d", ean)
	}
	return ean, nil
}

// HasPrice reports whether the snapshot carries a usable price.
func (s Snapshot) HasPrice() bool {
	return s.Price != nil && !math.IsNaN(*s.Price) && !math.IsInf(*s.Price, 0) && *s.Price >= 0
}

// Normalize fills empty text fields with the not-found sentinel and maps a
// zero weight to WeightNotFound.
func (s Snapshot) Normalize() Snapshot {
	for _, f := range []*string{
		&s.Manufacturer, &s.Name, &s.Flavour, &s.FoodType, &s.AgeGroup,
		&s.Composition, &s.AnalyticalComposition, &s.DietarySupplements,
	} {
		if strings.TrimSpace(*f) == "" {
			*f = NotFound
		}
	}
	if s.Weight <= 0 {
		s.Weight = WeightNotFound
	}
	return s
}
