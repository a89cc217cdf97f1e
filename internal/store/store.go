package store

import (
	"context"
	"errors"
	"time"

	"github.com/sells-group/shelf-cli/internal/model"
)

var (
	// ErrNotFound is returned when an addressed row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrLocked is returned when a run lock is held by another run.
	ErrLocked = errors.New("store: run lock held")
)

// Queries are the row-level operations available both on the store and
// inside a transaction opened with InTx.
type Queries interface {
	// Identity
	GetOrCreateStore(ctx context.Context, name string) (*model.Store, error)
	GetOrCreateManufacturer(ctx context.Context, name string) (*model.Manufacturer, error)
	GetOrCreateProduct(ctx context.Context, ean int64, manufacturerID string) (*model.Product, error)
	GetStoreByName(ctx context.Context, name string) (*model.Store, error)
	ListStores(ctx context.Context) ([]model.Store, error)
	DeleteManufacturer(ctx context.Context, id string) error

	// Scrap records
	GetLiveRecord(ctx context.Context, ean int64, storeID string) (*model.ScrapRecord, error)
	InsertRecord(ctx context.Context, rec *model.ScrapRecord) error
	SupersedeRecord(ctx context.Context, id string, at time.Time) error
	ExtendRecordValidity(ctx context.Context, id string, from time.Time) error
	ListLiveRecords(ctx context.Context) ([]model.ScrapRecord, error)
	ListRecordHistory(ctx context.Context, ean int64) ([]model.ScrapRecord, error)

	// Prices
	InsertPrice(ctx context.Context, p *model.PriceObservation) (bool, error)
	ListPrices(ctx context.Context, ean int64) ([]model.PriceObservation, error)

	// Products
	ListProducts(ctx context.Context) ([]model.Product, error)
	SetFollowed(ctx context.Context, ean int64, followed bool) error

	// Extraction
	PendingTexts(ctx context.Context, kind model.ComponentKind) ([]string, error)
	RecordsAwaitingExtraction(ctx context.Context, kind model.ComponentKind, text string) ([]model.ScrapRecord, error)
	InsertAnalyticalComponents(ctx context.Context, comps []model.AnalyticalComponent) error
	InsertDietaryComponents(ctx context.Context, comps []model.DietaryComponent) error
	ListAnalyticalComponents(ctx context.Context, recordID string) ([]model.AnalyticalComponent, error)
	ListDietaryComponents(ctx context.Context, recordID string) ([]model.DietaryComponent, error)
}

// Store defines the persistence interface for the listing dataset.
type Store interface {
	Queries

	// InTx runs fn inside a single transaction. The transaction commits when
	// fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(q Queries) error) error

	// AcquireRunLock takes a named lock that expires after ttl. It returns
	// ErrLocked when another holder owns an unexpired lock.
	AcquireRunLock(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, err error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// kindTables maps a component kind to its source text column and component table.
func kindTables(kind model.ComponentKind) (textCol, table string, ok bool) {
	switch kind {
	case model.KindAnalytical:
		return "analytical_composition", "analytical_components", true
	case model.KindDietary:
		return "dietary_supplements", "dietary_components", true
	}
	return "", "", false
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
