package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/shelf-cli/internal/model"
	"github.com/sells-group/shelf-cli/internal/store"
)

// kindHandler binds a component kind to its extraction schema and to the
// routine that writes its component rows.
type kindHandler interface {
	kind() model.ComponentKind
	// dataContext names what is extracted, for the prompt.
	dataContext() string
	// schema describes one JSON item of the expected answer.
	schema() string
	// insert writes items for every record and returns the row count.
	insert(ctx context.Context, q store.Queries, records []model.ScrapRecord, items []model.ExtractedComponent) (int, error)
}

func handlerFor(kind model.ComponentKind) (kindHandler, error) {
	switch kind {
	case model.KindAnalytical:
		return analyticalHandler{}, nil
	case model.KindDietary:
		return dietaryHandler{}, nil
	}
	return nil, eris.Errorf("extract: unknown component kind %q", kind)
}

type analyticalHandler struct{}

func (analyticalHandler) kind() model.ComponentKind { return model.KindAnalytical }

func (analyticalHandler) dataContext() string { return "składnikach analitycznych" }

func (analyticalHandler) schema() string {
	types := make([]string, 0, len(model.AllAnalyticalTypes()))
	for _, t := range model.AllAnalyticalTypes() {
		types = append(types, string(t))
	}
	return fmt.Sprintf(`{"name": "<odczytana nazwa składnika>", "type": "<jeden z: %s>", "value": <odczytana wartość w procentach>}`,
		strings.Join(types, ", "))
}

// insert stores the canonical type name for known constituents and the read
// name for "other". Items without a value carry no reading and are dropped.
func (analyticalHandler) insert(ctx context.Context, q store.Queries, records []model.ScrapRecord, items []model.ExtractedComponent) (int, error) {
	var comps []model.AnalyticalComponent
	for _, rec := range records {
		for _, it := range items {
			if it.Value == nil {
				continue
			}
			comps = append(comps, model.AnalyticalComponent{
				RecordID: rec.ID,
				Name:     analyticalName(it),
				Value:    *it.Value,
			})
		}
	}
	if len(comps) == 0 {
		return 0, nil
	}
	return len(comps), q.InsertAnalyticalComponents(ctx, comps)
}

func analyticalName(it model.ExtractedComponent) string {
	t := model.AnalyticalType(strings.ToLower(strings.TrimSpace(string(it.Type))))
	for _, known := range model.AllAnalyticalTypes() {
		if t == known && t != model.AnalyticalOther {
			return string(t)
		}
	}
	return strings.TrimSpace(it.Name)
}

type dietaryHandler struct{}

func (dietaryHandler) kind() model.ComponentKind { return model.KindDietary }

func (dietaryHandler) dataContext() string { return "dodatkach dietetycznych" }

func (dietaryHandler) schema() string {
	return `{"name": "<odczytana nazwa dodatku>", "value": <wartość lub null>, "unit": "<jednostka lub null>", "chemical_form": "<forma chemiczna np. jednowodny siarczan manganu(II) lub null>"}`
}

func (dietaryHandler) insert(ctx context.Context, q store.Queries, records []model.ScrapRecord, items []model.ExtractedComponent) (int, error) {
	var comps []model.DietaryComponent
	for _, rec := range records {
		for _, it := range items {
			name := strings.TrimSpace(it.Name)
			if name == "" {
				continue
			}
			comps = append(comps, model.DietaryComponent{
				RecordID:     rec.ID,
				Name:         name,
				Value:        it.Value,
				Unit:         it.Unit,
				ChemicalForm: it.ChemicalForm,
			})
		}
	}
	if len(comps) == 0 {
		return 0, nil
	}
	return len(comps), q.InsertDietaryComponents(ctx, comps)
}
