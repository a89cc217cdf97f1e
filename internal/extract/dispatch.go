// Package extract turns the free-text analytical and dietary fields of live
// records into structured component rows, calling the extraction service
// once per distinct text.
package extract

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/shelf-cli/internal/model"
	"github.com/sells-group/shelf-cli/internal/store"
)

// ErrNoResult is returned by an Extractor that produced no components.
var ErrNoResult = errors.New("extract: no result")

// Extractor is the structured-extraction service.
type Extractor interface {
	Extract(ctx context.Context, kind model.ComponentKind, text string) ([]model.ExtractedComponent, error)
}

// Report counts what one dispatch did.
type Report struct {
	Kind               model.ComponentKind `json:"kind"`
	Blobs              int                 `json:"blobs"`
	Calls              int                 `json:"calls"`
	Failed             int                 `json:"failed"`
	RecordsUpdated     int                 `json:"records_updated"`
	ComponentsInserted int                 `json:"components_inserted"`
}

// Dispatcher fans extraction results out to every record sharing a text.
type Dispatcher struct {
	store     store.Store
	extractor Extractor
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(st store.Store, ex Extractor) *Dispatcher {
	return &Dispatcher{store: st, extractor: ex}
}

// Dispatch extracts every pending text of kind. Records that already have
// components of kind are never selected, so repeated calls only retry texts
// whose earlier extraction failed.
func (d *Dispatcher) Dispatch(ctx context.Context, kind model.ComponentKind) (*Report, error) {
	h, err := handlerFor(kind)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("kind", string(kind)))

	texts, err := d.store.PendingTexts(ctx, kind)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: pending %s texts", kind)
	}

	report := &Report{Kind: kind, Blobs: len(texts)}
	log.Info("extraction started", zap.Int("blobs", len(texts)))

	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			return report, eris.Wrap(err, "extract: dispatch cancelled")
		}

		report.Calls++
		items, err := d.extractor.Extract(ctx, kind, text)
		if err == nil && len(items) == 0 {
			err = ErrNoResult
		}
		if err != nil {
			report.Failed++
			log.Warn("extraction failed, skipping text", zap.Int("text_len", len(text)), zap.Error(err))
			continue
		}

		records, inserted, err := d.fanOut(ctx, h, text, items)
		if err != nil {
			report.Failed++
			log.Warn("storing components failed, skipping text", zap.Error(err))
			continue
		}
		if inserted == 0 {
			report.Failed++
			log.Warn("extraction yielded no usable components", zap.Int("items", len(items)))
			continue
		}
		report.RecordsUpdated += records
		report.ComponentsInserted += inserted
	}

	log.Info("extraction complete",
		zap.Int("blobs", report.Blobs),
		zap.Int("calls", report.Calls),
		zap.Int("failed", report.Failed),
		zap.Int("records_updated", report.RecordsUpdated),
		zap.Int("components_inserted", report.ComponentsInserted),
	)
	return report, nil
}

// DispatchAll runs Dispatch for each kind in order.
func (d *Dispatcher) DispatchAll(ctx context.Context, kinds ...model.ComponentKind) ([]*Report, error) {
	if len(kinds) == 0 {
		kinds = model.AllComponentKinds()
	}
	reports := make([]*Report, 0, len(kinds))
	for _, k := range kinds {
		r, err := d.Dispatch(ctx, k)
		if err != nil {
			return reports, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// withSourceText keeps the records whose kind text is exactly text.
func withSourceText(recs []model.ScrapRecord, kind model.ComponentKind, text string) []model.ScrapRecord {
	out := recs[:0]
	for _, r := range recs {
		if src := kind.SourceText(r); src != nil && *src == text {
			out = append(out, r)
		}
	}
	return out
}

// fanOut writes items to every live record with text that still has no
// components of the kind, in one transaction.
func (d *Dispatcher) fanOut(ctx context.Context, h kindHandler, text string, items []model.ExtractedComponent) (records, inserted int, err error) {
	err = d.store.InTx(ctx, func(q store.Queries) error {
		awaiting, err := q.RecordsAwaitingExtraction(ctx, h.kind(), text)
		if err != nil {
			return err
		}
		recs := withSourceText(awaiting, h.kind(), text)
		n, err := h.insert(ctx, q, recs, items)
		if err != nil {
			return err
		}
		if n > 0 {
			records = len(recs)
		}
		inserted = n
		return nil
	})
	if err != nil {
		return 0, 0, eris.Wrap(err, "extract: fan out")
	}
	return records, inserted, nil
}
