package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/shelf-cli/internal/model"
)

// DateLayout names the per-day directories under a store.
const DateLayout = "2006-01-02"

const (
	productsDir    = "products"
	collectionsDir = "collections"
)

// Layout resolves paths in the downloaded page tree:
// <root>/<store>/<YYYY-MM-DD>/{collections,products}/*.html.
type Layout struct {
	Root string
}

// ProductsDir returns the product page directory of one store and day.
func (l Layout) ProductsDir(storeName string, date time.Time) string {
	return filepath.Join(l.Root, storeName, date.Format(DateLayout), productsDir)
}

// CollectionsDir returns the collection page directory of one store and day.
func (l Layout) CollectionsDir(storeName string, date time.Time) string {
	return filepath.Join(l.Root, storeName, date.Format(DateLayout), collectionsDir)
}

// Dates lists the days downloaded for a store in ascending order.
func (l Layout) Dates(storeName string) ([]time.Time, error) {
	entries, err := os.ReadDir(filepath.Join(l.Root, storeName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "snapshot: list dates of %s", storeName)
	}

	var dates []time.Time
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		d, err := time.Parse(DateLayout, e.Name())
		if err != nil {
			continue
		}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// DirSource reads snapshots from downloaded product pages.
type DirSource struct {
	layout Layout
}

// NewDirSource creates a source over the page tree rooted at root.
func NewDirSource(root string) *DirSource {
	return &DirSource{layout: Layout{Root: root}}
}

// ListSnapshots parses every product page of one store and day. Pages that
// fail to parse are logged and skipped.
func (s *DirSource) ListSnapshots(ctx context.Context, storeName string, date time.Time) ([]model.Snapshot, error) {
	dir := s.layout.ProductsDir(storeName, date)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "snapshot: read products of %s on %s", storeName, date.Format(DateLayout))
	}

	log := zap.L().With(zap.String("store", storeName), zap.String("dir", dir))
	snaps := make([]model.Snapshot, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "snapshot: list snapshots")
		}
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".html") {
			continue
		}

		path := filepath.Join(dir, e.Name())
		snap, err := parseFile(path)
		if err != nil {
			log.Warn("skipping unreadable product page", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		snaps = append(snaps, snap)
	}

	log.Info("read product pages", zap.Int("snapshots", len(snaps)))
	return snaps, nil
}

func parseFile(path string) (model.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Snapshot{}, eris.Wrap(err, "snapshot: open page")
	}
	defer f.Close() //nolint:errcheck

	snap, err := ParseProduct(f)
	if err != nil {
		return model.Snapshot{}, err
	}
	snap.Origin = path
	return snap, nil
}
