// Package audit flags followed products whose scraped data looks broken so
// they are left out of extraction.
package audit

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/shelf-cli/internal/model"
	"github.com/sells-group/shelf-cli/internal/store"
)

// Reason names the rule that unfollowed a product.
type Reason string

const (
	ReasonNoLiveRecords   Reason = "no_live_records"
	ReasonWeightNotFound  Reason = "weight_not_found"
	ReasonExcludedVariant Reason = "excluded_variant"
)

// Config selects the store-specific naming rule.
type Config struct {
	ReferenceStore string `yaml:"reference_store" mapstructure:"reference_store"`
	ExcludedMarker string `yaml:"excluded_marker" mapstructure:"excluded_marker"`
}

// Flag is one product unfollowed by a pass.
type Flag struct {
	EAN    int64  `json:"ean"`
	Reason Reason `json:"reason"`
}

// Report summarizes one pass.
type Report struct {
	Checked    int    `json:"checked"`
	Unfollowed []Flag `json:"unfollowed"`
}

// Auditor runs the coherence pass. Passes must not overlap; callers hold the
// run lock.
type Auditor struct {
	store store.Store
	cfg   Config
}

// New creates an Auditor.
func New(st store.Store, cfg Config) *Auditor {
	return &Auditor{store: st, cfg: cfg}
}

// Run checks every followed product against its live records and unfollows
// the unhealthy ones. No data is deleted.
func (a *Auditor) Run(ctx context.Context) (*Report, error) {
	log := zap.L().With(zap.String("component", "audit"))

	products, err := a.store.ListProducts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "audit: list products")
	}
	live, err := a.store.ListLiveRecords(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "audit: list live records")
	}

	byProduct := make(map[int64][]model.ScrapRecord, len(products))
	for _, r := range live {
		byProduct[r.ProductEAN] = append(byProduct[r.ProductEAN], r)
	}

	refStoreID, err := a.referenceStoreID(ctx)
	if err != nil {
		return nil, err
	}
	if refStoreID == "" && a.cfg.ReferenceStore != "" {
		log.Warn("reference store not found, skipping naming rule", zap.String("reference_store", a.cfg.ReferenceStore))
	}

	report := &Report{}
	for _, p := range products {
		if !p.IsFollowed {
			continue
		}
		report.Checked++

		reason, ok := a.check(log, p.EAN, byProduct[p.EAN], refStoreID)
		if !ok {
			continue
		}
		if err := a.store.SetFollowed(ctx, p.EAN, false); err != nil {
			return report, eris.Wrapf(err, "audit: unfollow %d", p.EAN)
		}
		report.Unfollowed = append(report.Unfollowed, Flag{EAN: p.EAN, Reason: reason})
		log.Info("product unfollowed", zap.Int64("ean", p.EAN), zap.String("reason", string(reason)))
	}

	log.Info("audit complete",
		zap.Int("checked", report.Checked),
		zap.Int("unfollowed", len(report.Unfollowed)),
	)
	return report, nil
}

// check returns the first rule the product breaks.
func (a *Auditor) check(log *zap.Logger, ean int64, records []model.ScrapRecord, refStoreID string) (Reason, bool) {
	if len(records) == 0 {
		return ReasonNoLiveRecords, true
	}

	allMissing := true
	for _, r := range records {
		if r.Weight != model.WeightNotFound {
			allMissing = false
			break
		}
	}
	if allMissing {
		return ReasonWeightNotFound, true
	}

	if refStoreID == "" || a.cfg.ExcludedMarker == "" {
		return "", false
	}
	for _, r := range records {
		if r.StoreID == refStoreID {
			if HasExcludedMarker(r.ProductName, a.cfg.ExcludedMarker) {
				return ReasonExcludedVariant, true
			}
			return "", false
		}
	}
	log.Debug("no reference store record, naming rule skipped", zap.Int64("ean", ean))
	return "", false
}

func (a *Auditor) referenceStoreID(ctx context.Context) (string, error) {
	if a.cfg.ReferenceStore == "" {
		return "", nil
	}
	st, err := a.store.GetStoreByName(ctx, a.cfg.ReferenceStore)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrap(err, "audit: reference store")
	}
	return st.ID, nil
}

// HasExcludedMarker reports whether the last "-"-delimited token of name
// contains marker. Multipack listings such as "Carny - 6x400g" carry it.
func HasExcludedMarker(name, marker string) bool {
	if marker == "" {
		return false
	}
	idx := strings.LastIndex(name, "-")
	return strings.Contains(name[idx+1:], marker)
}
