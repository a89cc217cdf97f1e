package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/shelf-cli/internal/audit"
	"github.com/sells-group/shelf-cli/internal/extract"
	"github.com/sells-group/shelf-cli/internal/fetcher"
	"github.com/sells-group/shelf-cli/internal/model"
	"github.com/sells-group/shelf-cli/internal/reconcile"
	"github.com/sells-group/shelf-cli/internal/snapshot"
	"github.com/sells-group/shelf-cli/internal/store"
	"github.com/sells-group/shelf-cli/pkg/anthropic"
)

// parseDate reads a --date flag value. Empty means today (UTC).
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return model.DateOnly(time.Now()), nil
	}
	d, err := time.Parse(snapshot.DateLayout, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "invalid date %q (want YYYY-MM-DD)", s)
	}
	return d, nil
}

func newDownloader() *fetcher.Downloader {
	timeout := time.Duration(cfg.Download.TimeoutSecs) * time.Second
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent: cfg.Download.UserAgent,
		Timeout:   timeout,
		Delay:     cfg.Download.Delay(),
	})

	var robots *fetcher.Robots
	if cfg.Download.RespectRobots {
		robots = fetcher.NewRobots(&http.Client{Timeout: timeout}, cfg.Download.UserAgent)
	}

	return fetcher.NewDownloader(f, robots, snapshot.Layout{Root: cfg.Snapshot.HTMLsDir}, fetcher.DownloaderConfig{
		StoreName:   cfg.Snapshot.StoreName,
		StartURL:    cfg.Snapshot.StartURL,
		BaseURL:     cfg.Snapshot.BaseURL,
		Concurrency: cfg.Download.Concurrency,
	})
}

func newDispatcher(st store.Store) *extract.Dispatcher {
	client := anthropic.NewClient(cfg.Anthropic.Key, cfg.Anthropic.BaseURL)
	ex := extract.NewLLMExtractor(client, extract.LLMConfig{
		Model:       cfg.Anthropic.Model,
		MaxTokens:   cfg.Anthropic.MaxTokens,
		MaxAttempts: cfg.Extract.MaxAttempts,
	})
	return extract.NewDispatcher(st, ex)
}

// ingestDirectory reconciles the downloaded pages of the configured store.
func ingestDirectory(ctx context.Context, st store.Store, date time.Time) (*reconcile.Report, error) {
	src := snapshot.NewDirSource(cfg.Snapshot.HTMLsDir)
	return reconcile.NewEngine(st).RunBatch(ctx, src, cfg.Snapshot.StoreName, date)
}

// ingestAllDates reconciles every downloaded day of the configured store in
// ascending date order.
func ingestAllDates(ctx context.Context, st store.Store) ([]*reconcile.Report, error) {
	layout := snapshot.Layout{Root: cfg.Snapshot.HTMLsDir}
	dates, err := layout.Dates(cfg.Snapshot.StoreName)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		zap.L().Warn("no downloaded dates found",
			zap.String("store", cfg.Snapshot.StoreName),
			zap.String("htmls_dir", cfg.Snapshot.HTMLsDir),
		)
		return nil, nil
	}

	reports := make([]*reconcile.Report, 0, len(dates))
	for _, d := range dates {
		rep, err := ingestDirectory(ctx, st, d)
		if err != nil {
			return reports, eris.Wrapf(err, "ingest %s", d.Format(snapshot.DateLayout))
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

// ingestYAML reconciles a backfill file. With a zero date every batch in the
// file is applied in file order; otherwise only the batches of that date.
func ingestYAML(ctx context.Context, st store.Store, path string, date time.Time) ([]*reconcile.Report, error) {
	src, err := snapshot.LoadYAML(path)
	if err != nil {
		return nil, err
	}

	eng := reconcile.NewEngine(st)
	var reports []*reconcile.Report
	for _, b := range src.Batches() {
		if !date.IsZero() && !b.Day().Equal(date) {
			continue
		}
		rep, err := eng.Apply(ctx, b.Store, b.Day(), b.Snapshots)
		if err != nil {
			return reports, err
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

func runAudit(ctx context.Context, st store.Store) (*audit.Report, error) {
	return audit.New(st, cfg.Audit).Run(ctx)
}

// pipelineReport is what `run` prints.
type pipelineReport struct {
	Download  *fetcher.DownloadReport `json:"download"`
	Reconcile *reconcile.Report       `json:"reconcile"`
	Audit     *audit.Report           `json:"audit"`
	Extract   []*extract.Report       `json:"extract"`
}

// runLockName is shared by every command that writes the dataset.
const runLockName = "pipeline"

// withRunLock runs fn while holding the run lock. It fails fast with
// store.ErrLocked when another run holds it.
func withRunLock(ctx context.Context, st store.Store, fn func() error) error {
	release, err := st.AcquireRunLock(ctx, runLockName, cfg.RunLock.TTL())
	if err != nil {
		return eris.Wrap(err, "acquire run lock")
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			zap.L().Warn("release run lock", zap.Error(err))
		}
	}()
	return fn()
}

// runPipeline downloads the day's pages, reconciles them, audits and
// extracts, all under one run lock.
func runPipeline(ctx context.Context, st store.Store, dl *fetcher.Downloader, d *extract.Dispatcher, date time.Time) (*pipelineReport, error) {
	rep := &pipelineReport{}
	err := withRunLock(ctx, st, func() error {
		var err error
		if rep.Download, err = dl.Run(ctx, date); err != nil {
			return eris.Wrap(err, "run: download")
		}
		if rep.Reconcile, err = ingestDirectory(ctx, st, date); err != nil {
			return eris.Wrap(err, "run: reconcile")
		}
		if rep.Audit, err = runAudit(ctx, st); err != nil {
			return eris.Wrap(err, "run: audit")
		}
		if rep.Extract, err = d.DispatchAll(ctx); err != nil {
			return eris.Wrap(err, "run: extract")
		}
		return nil
	})
	return rep, err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
