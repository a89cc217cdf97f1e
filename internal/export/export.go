// Package export writes the dataset to an Excel workbook.
package export

import (
	"context"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/shelf-cli/internal/store"
)

// Sheet names.
const (
	SheetRecords = "records"
	SheetPrices  = "prices"
)

const dateLayout = "2006-01-02"

var (
	recordHeader = []string{
		"store", "ean", "product_name", "weight", "flavour", "food_type", "age_group",
		"composition", "analytical_composition", "dietary_supplements", "valid_from", "is_followed",
	}
	priceHeader = []string{"store", "ean", "date", "price_pln"}
)

// Summary counts the exported rows.
type Summary struct {
	Records int `json:"records"`
	Prices  int `json:"prices"`
}

// Build assembles a workbook with every live record and the full price
// history of every product.
func Build(ctx context.Context, q store.Queries) (*xlsx.File, *Summary, error) {
	stores, err := q.ListStores(ctx)
	if err != nil {
		return nil, nil, eris.Wrap(err, "export: list stores")
	}
	storeNames := make(map[string]string, len(stores))
	for _, st := range stores {
		storeNames[st.ID] = st.Name
	}

	products, err := q.ListProducts(ctx)
	if err != nil {
		return nil, nil, eris.Wrap(err, "export: list products")
	}
	followed := make(map[int64]bool, len(products))
	for _, p := range products {
		followed[p.EAN] = p.IsFollowed
	}

	records, err := q.ListLiveRecords(ctx)
	if err != nil {
		return nil, nil, eris.Wrap(err, "export: list live records")
	}

	f := xlsx.NewFile()
	sum := &Summary{}

	recSheet, err := f.AddSheet(SheetRecords)
	if err != nil {
		return nil, nil, eris.Wrap(err, "export: add records sheet")
	}
	addStrings(recSheet.AddRow(), recordHeader...)
	for _, r := range records {
		row := recSheet.AddRow()
		addStrings(row, storeNames[r.StoreID], eanString(r.ProductEAN), r.ProductName)
		row.AddCell().SetInt(r.Weight)
		addStrings(row, r.Flavour, r.FoodType, r.AgeGroup, r.Composition,
			optional(r.AnalyticalComposition), optional(r.DietarySupplements),
			r.ValidFrom.Format(dateLayout))
		row.AddCell().SetBool(followed[r.ProductEAN])
		sum.Records++
	}

	priceSheet, err := f.AddSheet(SheetPrices)
	if err != nil {
		return nil, nil, eris.Wrap(err, "export: add prices sheet")
	}
	addStrings(priceSheet.AddRow(), priceHeader...)
	for _, p := range products {
		if err := ctx.Err(); err != nil {
			return nil, nil, eris.Wrap(err, "export: prices")
		}
		prices, err := q.ListPrices(ctx, p.EAN)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "export: list prices of %d", p.EAN)
		}
		for _, obs := range prices {
			row := priceSheet.AddRow()
			addStrings(row, storeNames[obs.StoreID], eanString(obs.ProductEAN), obs.Date.Format(dateLayout))
			row.AddCell().SetFloat(obs.Value)
			sum.Prices++
		}
	}

	return f, sum, nil
}

// Write streams the workbook to w.
func Write(ctx context.Context, q store.Queries, w io.Writer) (*Summary, error) {
	f, sum, err := Build(ctx, q)
	if err != nil {
		return nil, err
	}
	if err := f.Write(w); err != nil {
		return nil, eris.Wrap(err, "export: write workbook")
	}
	return sum, nil
}

// WriteFile saves the workbook at path.
func WriteFile(ctx context.Context, q store.Queries, path string) (*Summary, error) {
	f, sum, err := Build(ctx, q)
	if err != nil {
		return nil, err
	}
	if err := f.Save(path); err != nil {
		return nil, eris.Wrapf(err, "export: save %s", path)
	}
	zap.L().Info("exported workbook",
		zap.String("path", path),
		zap.Int("records", sum.Records),
		zap.Int("prices", sum.Prices),
	)
	return sum, nil
}

func addStrings(row *xlsx.Row, values ...string) {
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

// eanString keeps the 13 digits intact; a numeric cell would be shown in
// scientific notation.
func eanString(ean int64) string {
	return strconv.FormatInt(ean, 10)
}

func optional(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
