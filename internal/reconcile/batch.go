package reconcile

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/shelf-cli/internal/model"
)

// Source supplies the snapshots of one store for one collection date.
type Source interface {
	ListSnapshots(ctx context.Context, storeName string, date time.Time) ([]model.Snapshot, error)
}

// Report counts what a batch did.
type Report struct {
	Store          string    `json:"store"`
	Date           time.Time `json:"date"`
	Processed      int       `json:"processed"`
	Created        int       `json:"created"`
	Superseded     int       `json:"superseded"`
	Reinstated     int       `json:"reinstated"`
	Unchanged      int       `json:"unchanged"`
	Duplicates     int       `json:"duplicates"`
	Skipped        int       `json:"skipped"`
	PricesInserted int       `json:"prices_inserted"`
}

func (r *Report) add(res *Result) {
	switch res.Outcome {
	case OutcomeCreated:
		r.Created++
	case OutcomeSuperseded:
		r.Superseded++
	case OutcomeReinstated:
		r.Reinstated++
	case OutcomeUnchanged:
		r.Unchanged++
	}
	if res.PriceInserted {
		r.PricesInserted++
	}
}

// RunBatch reconciles every snapshot src yields for storeName on date, in
// source order. A failing snapshot is logged and skipped; the batch aborts
// only when the context ends or the storage connection is gone.
func (e *Engine) RunBatch(ctx context.Context, src Source, storeName string, date time.Time) (*Report, error) {
	snaps, err := src.ListSnapshots(ctx, storeName, model.DateOnly(date))
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: list snapshots")
	}
	return e.Apply(ctx, storeName, date, snaps)
}

// Apply reconciles an already loaded set of snapshots observed on date.
func (e *Engine) Apply(ctx context.Context, storeName string, date time.Time, snaps []model.Snapshot) (*Report, error) {
	date = model.DateOnly(date)
	log := zap.L().With(zap.String("store", storeName), zap.String("date", date.Format(time.DateOnly)))
	report := &Report{Store: storeName, Date: date}
	seen := NewSeenSet()

	log.Info("reconcile batch started", zap.Int("snapshots", len(snaps)))

	for _, snap := range snaps {
		if err := ctx.Err(); err != nil {
			return report, eris.Wrap(err, "reconcile: batch cancelled")
		}
		report.Processed++

		ean, err := snap.Normalize().ParseEAN()
		if err != nil {
			report.Skipped++
			log.Warn("skipping snapshot", zap.String("origin", snap.Origin), zap.Error(err))
			continue
		}
		if seen.Seen(ean) {
			report.Duplicates++
			log.Debug("duplicate ean in batch", zap.Int64("ean", ean), zap.String("origin", snap.Origin))
			continue
		}

		res, err := e.Reconcile(ctx, storeName, snap, date)
		if err != nil {
			if isFatal(err) {
				return report, eris.Wrap(err, "reconcile: storage unavailable")
			}
			report.Skipped++
			log.Warn("reconcile failed, skipping",
				zap.Int64("ean", ean),
				zap.String("origin", snap.Origin),
				zap.Error(err),
			)
			continue
		}
		seen.Mark(ean)
		report.add(res)
		logResult(log, res)
	}

	log.Info("reconcile batch complete",
		zap.Int("processed", report.Processed),
		zap.Int("distinct_eans", seen.Len()),
		zap.Int("created", report.Created),
		zap.Int("superseded", report.Superseded),
		zap.Int("reinstated", report.Reinstated),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("skipped", report.Skipped),
		zap.Int("prices_inserted", report.PricesInserted),
	)
	return report, nil
}

// isFatal reports errors that will fail every remaining item as well.
func isFatal(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, driver.ErrBadConn)
}
