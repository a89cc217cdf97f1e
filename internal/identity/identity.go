// Package identity maps snapshot names and EANs to stable store,
// manufacturer and product rows, creating them on first sight.
package identity

import (
	"context"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/shelf-cli/internal/model"
	"github.com/sells-group/shelf-cli/internal/store"
)

// Identity is the resolved triple for one snapshot.
type Identity struct {
	Store        *model.Store
	Manufacturer *model.Manufacturer
	Product      *model.Product
}

// Resolver performs get-or-create lookups against the store. Uniqueness is
// enforced by the storage constraints, so concurrent resolvers never create
// duplicates.
type Resolver struct{}

// NewResolver creates a Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve returns the store, manufacturer and product for a snapshot. It runs
// on q so callers can keep it inside their own transaction.
func (r *Resolver) Resolve(ctx context.Context, q store.Queries, storeName, manufacturerName string, ean int64) (*Identity, error) {
	if ean <= 0 {
		return nil, eris.Errorf("identity: invalid ean %d", ean)
	}
	storeKey := NormalizeName(storeName)
	if storeKey == "" {
		return nil, eris.New("identity: empty store name")
	}
	manufacturerKey := NormalizeName(manufacturerName)
	if manufacturerKey == "" {
		return nil, eris.Errorf("identity: empty manufacturer name for ean %d", ean)
	}

	st, err := q.GetOrCreateStore(ctx, storeKey)
	if err != nil {
		return nil, eris.Wrap(err, "identity: resolve store")
	}
	m, err := q.GetOrCreateManufacturer(ctx, manufacturerKey)
	if err != nil {
		return nil, eris.Wrap(err, "identity: resolve manufacturer")
	}
	p, err := q.GetOrCreateProduct(ctx, ean, m.ID)
	if err != nil {
		return nil, eris.Wrap(err, "identity: resolve product")
	}
	return &Identity{Store: st, Manufacturer: m, Product: p}, nil
}

// NormalizeName returns the lookup key for a store or manufacturer name:
// NFC-composed, trimmed, with internal whitespace runs collapsed to one space.
// Case is preserved.
func NormalizeName(name string) string {
	return strings.Join(strings.FieldsFunc(norm.NFC.String(name), unicode.IsSpace), " ")
}
