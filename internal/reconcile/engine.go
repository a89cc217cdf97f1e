// Package reconcile keeps the scrap-record history of every (product, store)
// pair temporally versioned: each snapshot either continues, reinstates or
// supersedes the live record.
package reconcile

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/shelf-cli/internal/identity"
	"github.com/sells-group/shelf-cli/internal/model"
	"github.com/sells-group/shelf-cli/internal/store"
)

// Outcome describes what a reconcile call did to the live record.
type Outcome string

const (
	OutcomeCreated    Outcome = "created"
	OutcomeSuperseded Outcome = "superseded"
	OutcomeReinstated Outcome = "reinstated"
	OutcomeUnchanged  Outcome = "unchanged"
)

// Result is the outcome of reconciling one snapshot.
type Result struct {
	EAN           int64
	Outcome       Outcome
	RecordID      string // live record after the call
	PriceInserted bool
}

// Engine applies snapshots to the store.
type Engine struct {
	store    store.Store
	resolver *identity.Resolver
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used for supersession timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine over st.
func NewEngine(st store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    st,
		resolver: identity.NewResolver(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Reconcile applies one snapshot observed at date in a single transaction:
// identity resolution, the record decision and the price insert commit or
// roll back together.
func (e *Engine) Reconcile(ctx context.Context, storeName string, snap model.Snapshot, date time.Time) (*Result, error) {
	snap = snap.Normalize()
	ean, err := snap.ParseEAN()
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: parse snapshot")
	}

	res := &Result{EAN: ean}
	err = e.store.InTx(ctx, func(q store.Queries) error {
		id, err := e.resolver.Resolve(ctx, q, storeName, snap.Manufacturer, ean)
		if err != nil {
			return err
		}
		if err := e.applyRecord(ctx, q, id, snap, date, res); err != nil {
			return err
		}
		if snap.HasPrice() {
			inserted, err := q.InsertPrice(ctx, &model.PriceObservation{
				ProductEAN: ean,
				StoreID:    id.Store.ID,
				Value:      *snap.Price,
				Date:       date,
			})
			if err != nil {
				return err
			}
			res.PriceInserted = inserted
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "reconcile: ean %d", ean)
	}
	return res, nil
}

func (e *Engine) applyRecord(ctx context.Context, q store.Queries, id *identity.Identity, snap model.Snapshot, date time.Time, res *Result) error {
	live, err := q.GetLiveRecord(ctx, id.Product.EAN, id.Store.ID)
	if err != nil {
		return err
	}

	if live == nil {
		rec := newRecord(id, snap, date)
		if err := q.InsertRecord(ctx, rec); err != nil {
			return err
		}
		res.Outcome, res.RecordID = OutcomeCreated, rec.ID
		return nil
	}

	if live.SameContent(snap) {
		res.RecordID = live.ID
		if date.Before(live.ValidFrom) {
			if err := q.ExtendRecordValidity(ctx, live.ID, date); err != nil {
				return err
			}
			res.Outcome = OutcomeReinstated
			return nil
		}
		res.Outcome = OutcomeUnchanged
		return nil
	}

	if err := q.SupersedeRecord(ctx, live.ID, e.now().UTC()); err != nil {
		return err
	}
	rec := newRecord(id, snap, date)
	if err := q.InsertRecord(ctx, rec); err != nil {
		return err
	}
	res.Outcome, res.RecordID = OutcomeSuperseded, rec.ID
	return nil
}

// newRecord builds a live record from a normalized snapshot. Weight, flavour,
// food type and age group are copied but never trigger supersession.
func newRecord(id *identity.Identity, snap model.Snapshot, date time.Time) *model.ScrapRecord {
	return &model.ScrapRecord{
		ProductEAN:            id.Product.EAN,
		StoreID:               id.Store.ID,
		ManufacturerID:        id.Manufacturer.ID,
		ProductName:           snap.Name,
		Weight:                snap.Weight,
		Flavour:               snap.Flavour,
		FoodType:              snap.FoodType,
		AgeGroup:              snap.AgeGroup,
		Composition:           snap.Composition,
		AnalyticalComposition: model.OptionalText(snap.AnalyticalComposition),
		DietarySupplements:    model.OptionalText(snap.DietarySupplements),
		ValidFrom:             date,
	}
}

func logResult(log *zap.Logger, r *Result) {
	log.Debug("reconciled",
		zap.Int64("ean", r.EAN),
		zap.String("outcome", string(r.Outcome)),
		zap.Bool("price_inserted", r.PriceInserted),
	)
}
