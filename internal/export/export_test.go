package export

import (
	"bytes"
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/shelf-cli/internal/model"
	"github.com/sells-group/shelf-cli/internal/reconcile"
	"github.com/sells-group/shelf-cli/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func price(v float64) *float64 { return &v }

func seedDataset(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()
	eng := reconcile.NewEngine(st)

	snap := model.Snapshot{
		EAN:                   "4017721837194",
		Manufacturer:          "Animonda",
		Name:                  "Animonda - Carny Wołowina 400g",
		Weight:                400,
		Composition:           "wołowina 70%",
		AnalyticalComposition: "białko 10,5%",
		Price:                 price(12.99),
	}
	for i, p := range []float64{12.99, 13.49} {
		snap.Price = price(p)
		_, err := eng.Reconcile(ctx, "Kocie Figle", snap, time.Date(2024, 3, 1+i, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
	}
}

func rows(sheet *xlsx.Sheet) [][]string {
	out := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		out = append(out, cells)
	}
	return out
}

func TestWriteFile(t *testing.T) {
	st := newTestStore(t)
	seedDataset(t, st)

	path := filepath.Join(t.TempDir(), "dataset.xlsx")
	sum, err := WriteFile(context.Background(), st, path)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Records)
	assert.Equal(t, 2, sum.Prices)

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)

	recs := rows(f.Sheet[SheetRecords])
	require.Len(t, recs, 2)
	assert.Equal(t, recordHeader, recs[0])
	assert.Equal(t, "Kocie Figle", recs[1][0])
	assert.Equal(t, "4017721837194", recs[1][1])
	assert.Equal(t, "400", recs[1][3])
	assert.Equal(t, "not found", recs[1][4])
	assert.Equal(t, "białko 10,5%", recs[1][8])
	assert.Equal(t, "", recs[1][9], "missing dietary text exported empty")
	assert.Equal(t, "2024-03-01", recs[1][10])

	prices := rows(f.Sheet[SheetPrices])
	require.Len(t, prices, 3)
	assert.Equal(t, priceHeader, prices[0])
	assert.Equal(t, []string{"Kocie Figle", "4017721837194", "2024-03-01"}, prices[1][:3])
	v, err := strconv.ParseFloat(prices[1][3], 64)
	require.NoError(t, err)
	assert.InDelta(t, 12.99, v, 1e-9)
	assert.Equal(t, "2024-03-02", prices[2][2])
}

func TestWrite_EmptyDataset(t *testing.T) {
	st := newTestStore(t)

	var buf bytes.Buffer
	sum, err := Write(context.Background(), st, &buf)
	require.NoError(t, err)
	assert.Zero(t, sum.Records)
	assert.Zero(t, sum.Prices)
	assert.NotZero(t, buf.Len())
}

func TestBuild_CancelledContext(t *testing.T) {
	st := newTestStore(t)
	seedDataset(t, st)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Build(ctx, st)
	assert.Error(t, err)
}
