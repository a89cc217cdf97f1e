package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// ComponentKind selects which free-text field is sent for structured extraction.
type ComponentKind string

const (
	KindAnalytical ComponentKind = "analytical"
	KindDietary    ComponentKind = "dietary"
)

// AllComponentKinds returns the kinds in dispatch order.
func AllComponentKinds() []ComponentKind {
	return []ComponentKind{KindAnalytical, KindDietary}
}

// ParseComponentKind validates a kind name.
func ParseComponentKind(s string) (ComponentKind, error) {
	k := ComponentKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindAnalytical, KindDietary:
		return k, nil
	}
	return "", eris.Errorf("unknown component kind %q", s)
}

// SourceText returns the record text the kind is extracted from, or nil.
func (k ComponentKind) SourceText(r ScrapRecord) *string {
	switch k {
	case KindAnalytical:
		return r.AnalyticalComposition
	case KindDietary:
		return r.DietarySupplements
	}
	return nil
}

// AnalyticalType is the canonical constituent an analytical reading maps to.
type AnalyticalType string

const (
	AnalyticalCalcium    AnalyticalType = "calcium"
	AnalyticalPhosphorus AnalyticalType = "phosphorus"
	AnalyticalProtein    AnalyticalType = "protein"
	AnalyticalFat        AnalyticalType = "fat"
	AnalyticalCrudeFiber AnalyticalType = "crude_fiber"
	AnalyticalCrudeAsh   AnalyticalType = "crude_ash"
	AnalyticalMoisture   AnalyticalType = "moisture"
	AnalyticalOther      AnalyticalType = "other"
)

// AllAnalyticalTypes lists the canonical analytical types.
func AllAnalyticalTypes() []AnalyticalType {
	return []AnalyticalType{
		AnalyticalCalcium, AnalyticalPhosphorus, AnalyticalProtein, AnalyticalFat,
		AnalyticalCrudeFiber, AnalyticalCrudeAsh, AnalyticalMoisture, AnalyticalOther,
	}
}

// ExtractedComponent is one structured item returned by the extraction service.
type ExtractedComponent struct {
	Name         string         `json:"name"`
	Type         AnalyticalType `json:"type,omitempty"`
	Value        *float64       `json:"value"`
	Unit         *string        `json:"unit"`
	ChemicalForm *string        `json:"chemical_form"`
}

// AnalyticalComponent is a percentage reading derived from a record's
// analytical composition text.
type AnalyticalComponent struct {
	ID       string  `json:"id"`
	RecordID string  `json:"record_id"`
	Name     string  `json:"name"`
	Value    float64 `json:"value"` // %
}

// DietaryComponent is a supplement derived from a record's dietary text.
type DietaryComponent struct {
	ID           string   `json:"id"`
	RecordID     string   `json:"record_id"`
	Name         string   `json:"name"`
	Value        *float64 `json:"value,omitempty"`
	Unit         *string  `json:"unit,omitempty"`
	ChemicalForm *string  `json:"chemical_form,omitempty"`
}
