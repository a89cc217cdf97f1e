package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/shelf-cli/internal/model"
	"github.com/sells-group/shelf-cli/internal/store"
)

const testEAN = 1111111111111

var runTime = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	return NewEngine(st, WithClock(func() time.Time { return runTime })), st
}

func date(s string) time.Time {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return d
}

func price(v float64) *float64 { return &v }

func snapshot(composition string) model.Snapshot {
	return model.Snapshot{
		EAN:                   "1111111111111",
		Manufacturer:          "Acme Foods",
		Name:                  "Acme Foods - Chicken 500g",
		Weight:                500,
		Flavour:               "chicken",
		FoodType:              "dry",
		AgeGroup:              "adult",
		Composition:           composition,
		AnalyticalComposition: "protein 30%",
		DietarySupplements:    model.NotFound,
	}
}

func history(t *testing.T, st store.Store) []model.ScrapRecord {
	t.Helper()
	recs, err := st.ListRecordHistory(context.Background(), testEAN)
	require.NoError(t, err)
	return recs
}

func liveCount(recs []model.ScrapRecord) int {
	n := 0
	for _, r := range recs {
		if r.IsValid() {
			n++
		}
	}
	return n
}

func TestReconcile_ExampleScenario(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	r1, err := e.Reconcile(ctx, "Acme", snapshot("Chicken, Rice"), date("2024-03-01"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, r1.Outcome)

	r2, err := e.Reconcile(ctx, "Acme", snapshot("Chicken, Rice"), date("2024-03-02"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, r2.Outcome)
	assert.Equal(t, r1.RecordID, r2.RecordID)

	r3, err := e.Reconcile(ctx, "Acme", snapshot("Chicken, Rice, Peas"), date("2024-03-03"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuperseded, r3.Outcome)

	recs := history(t, st)
	require.Len(t, recs, 2)
	assert.Equal(t, 1, liveCount(recs))

	old, cur := recs[0], recs[1]
	assert.Equal(t, r1.RecordID, old.ID)
	assert.False(t, old.IsValid())
	require.NotNil(t, old.ValidTo)
	assert.True(t, runTime.Equal(*old.ValidTo))

	assert.Equal(t, r3.RecordID, cur.ID)
	assert.True(t, cur.IsValid())
	assert.Equal(t, "Chicken, Rice, Peas", cur.Composition)
	assert.True(t, date("2024-03-03").Equal(cur.ValidFrom))
}

func TestReconcile_UnchangedIsIdempotent(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Reconcile(ctx, "Acme", snapshot("A"), date("2024-03-01"))
	require.NoError(t, err)
	before := history(t, st)

	for _, d := range []string{"2024-03-01", "2024-03-05", "2024-03-05"} {
		res, err := e.Reconcile(ctx, "Acme", snapshot("A"), date(d))
		require.NoError(t, err)
		assert.Equal(t, OutcomeUnchanged, res.Outcome)
	}

	assert.Equal(t, before, history(t, st))
}

func TestReconcile_Reinstatement(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	first, err := e.Reconcile(ctx, "Acme", snapshot("A"), date("2024-06-01"))
	require.NoError(t, err)

	res, err := e.Reconcile(ctx, "Acme", snapshot("A"), date("2024-05-01"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeReinstated, res.Outcome)
	assert.Equal(t, first.RecordID, res.RecordID)

	recs := history(t, st)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].IsValid())
	assert.True(t, date("2024-05-01").Equal(recs[0].ValidFrom))
}

func TestReconcile_AnyContentFieldSupersedes(t *testing.T) {
	tests := []struct {
		name   string
		change func(*model.Snapshot)
	}{
		{"composition", func(s *model.Snapshot) { s.Composition = "B" }},
		{"analytical", func(s *model.Snapshot) { s.AnalyticalComposition = "protein 31%" }},
		{"analytical lost", func(s *model.Snapshot) { s.AnalyticalComposition = model.NotFound }},
		{"dietary appears", func(s *model.Snapshot) { s.DietarySupplements = "taurine 500 mg" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, st := newTestEngine(t)
			ctx := context.Background()

			_, err := e.Reconcile(ctx, "Acme", snapshot("A"), date("2024-03-01"))
			require.NoError(t, err)

			changed := snapshot("A")
			tt.change(&changed)
			res, err := e.Reconcile(ctx, "Acme", changed, date("2024-03-02"))
			require.NoError(t, err)
			assert.Equal(t, OutcomeSuperseded, res.Outcome)

			recs := history(t, st)
			assert.Len(t, recs, 2)
			assert.Equal(t, 1, liveCount(recs))
		})
	}
}

func TestReconcile_DescriptiveFieldsDoNotSupersede(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Reconcile(ctx, "Acme", snapshot("A"), date("2024-03-01"))
	require.NoError(t, err)

	changed := snapshot("A")
	changed.Weight = 400
	changed.Flavour = "beef"
	changed.Name = "Acme Foods - Beef 400g"
	res, err := e.Reconcile(ctx, "Acme", changed, date("2024-03-02"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, res.Outcome)

	recs := history(t, st)
	require.Len(t, recs, 1)
	assert.Equal(t, 500, recs[0].Weight)
}

func TestReconcile_NotFoundTextsStoredAsNull(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	snap := snapshot("A")
	snap.AnalyticalComposition = ""
	snap.Weight = 0
	_, err := e.Reconcile(ctx, "Acme", snap, date("2024-03-01"))
	require.NoError(t, err)

	recs := history(t, st)
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].AnalyticalComposition)
	assert.Nil(t, recs[0].DietarySupplements)
	assert.Equal(t, model.WeightNotFound, recs[0].Weight)

	snap.AnalyticalComposition = model.NotFound
	res, err := e.Reconcile(ctx, "Acme", snap, date("2024-03-02"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, res.Outcome)
}

func TestReconcile_PriceAppendOnly(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	snap := snapshot("A")
	snap.Price = price(12.99)
	res, err := e.Reconcile(ctx, "Acme", snap, date("2024-03-01"))
	require.NoError(t, err)
	assert.True(t, res.PriceInserted)

	res, err = e.Reconcile(ctx, "Acme", snap, date("2024-03-01"))
	require.NoError(t, err)
	assert.False(t, res.PriceInserted)

	snap.Price = price(10.49)
	res, err = e.Reconcile(ctx, "Acme", snap, date("2024-03-01"))
	require.NoError(t, err)
	assert.False(t, res.PriceInserted)

	prices, err := st.ListPrices(ctx, testEAN)
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.InDelta(t, 12.99, prices[0].Value, 1e-9)
}

func TestReconcile_MissingPriceSkipsObservation(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	res, err := e.Reconcile(ctx, "Acme", snapshot("A"), date("2024-03-01"))
	require.NoError(t, err)
	assert.False(t, res.PriceInserted)

	prices, err := st.ListPrices(ctx, testEAN)
	require.NoError(t, err)
	assert.Empty(t, prices)
}

func TestReconcile_InvalidEAN(t *testing.T) {
	e, _ := newTestEngine(t)

	snap := snapshot("A")
	snap.EAN = model.NotFound
	_, err := e.Reconcile(context.Background(), "Acme", snap, date("2024-03-01"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ean not found")
}

func TestReconcile_SingleLiveUnderArbitrarySequence(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	steps := []struct {
		composition string
		day         string
	}{
		{"A", "2024-03-10"},
		{"A", "2024-03-05"},
		{"B", "2024-03-01"},
		{"A", "2024-03-12"},
		{"A", "2024-03-11"},
		{"C", "2024-03-20"},
		{"C", "2024-03-02"},
		{"B", "2024-03-21"},
	}

	for _, s := range steps {
		_, err := e.Reconcile(ctx, "Acme", snapshot(s.composition), date(s.day))
		require.NoError(t, err)
		assert.Equal(t, 1, liveCount(history(t, st)))
	}

	recs := history(t, st)
	assert.Len(t, recs, 5)
	for _, r := range recs {
		if !r.IsValid() {
			require.NotNil(t, r.ValidTo)
			assert.True(t, runTime.Equal(*r.ValidTo))
		}
	}
}

func TestReconcile_StoresAreIndependent(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Reconcile(ctx, "Acme", snapshot("A"), date("2024-03-01"))
	require.NoError(t, err)
	_, err = e.Reconcile(ctx, "Zooplus", snapshot("B"), date("2024-03-01"))
	require.NoError(t, err)

	recs := history(t, st)
	assert.Len(t, recs, 2)
	assert.Equal(t, 2, liveCount(recs))
}

// failingInsertStore runs transactions on the wrapped store but fails every
// InsertRecord, after the rest of the transaction has already written.
type failingInsertStore struct {
	store.Store
}

func (s failingInsertStore) InTx(ctx context.Context, fn func(q store.Queries) error) error {
	return s.Store.InTx(ctx, func(q store.Queries) error {
		return fn(failingInsertQueries{Queries: q})
	})
}

type failingInsertQueries struct {
	store.Queries
}

func (failingInsertQueries) InsertRecord(context.Context, *model.ScrapRecord) error {
	return errors.New("insert record: disk full")
}

func TestReconcile_FailedSupersessionRollsBack(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Reconcile(ctx, "Acme", snapshot("A"), date("2024-03-01"))
	require.NoError(t, err)

	failing := NewEngine(failingInsertStore{Store: st}, WithClock(func() time.Time { return runTime }))
	changed := snapshot("B")
	changed.Price = price(12.5)
	_, err = failing.Reconcile(ctx, "Acme", changed, date("2024-03-02"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	recs := history(t, st)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].IsValid(), "supersession is rolled back with the failed insert")
	assert.Equal(t, "A", recs[0].Composition)
	assert.Nil(t, recs[0].ValidTo)

	prices, err := st.ListPrices(ctx, testEAN)
	require.NoError(t, err)
	assert.Empty(t, prices)
}
