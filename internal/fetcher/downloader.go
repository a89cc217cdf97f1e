package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/shelf-cli/internal/snapshot"
)

// ErrDisallowed is returned when robots.txt forbids crawling the start URL.
var ErrDisallowed = eris.New("fetcher: crawling disallowed by robots.txt")

// DownloaderConfig describes one store's catalogue.
type DownloaderConfig struct {
	StoreName   string
	StartURL    string
	BaseURL     string
	Concurrency int
}

// DownloadReport counts what a download run did.
type DownloadReport struct {
	CollectionPages int `json:"collection_pages"`
	ProductLinks    int `json:"product_links"`
	Downloaded      int `json:"downloaded"`
	Existing        int `json:"existing"`
	Failed          int `json:"failed"`
}

// Downloader saves a store's collection and product pages under the dated
// page layout.
type Downloader struct {
	fetcher Fetcher
	robots  *Robots
	layout  snapshot.Layout
	cfg     DownloaderConfig
}

// NewDownloader creates a downloader. A nil robots skips the robots.txt check.
func NewDownloader(f Fetcher, robots *Robots, layout snapshot.Layout, cfg DownloaderConfig) *Downloader {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Downloader{fetcher: f, robots: robots, layout: layout, cfg: cfg}
}

// Run downloads the collection pages reachable from the start URL and then
// every product page they link to. Files already on disk are kept.
func (d *Downloader) Run(ctx context.Context, date time.Time) (*DownloadReport, error) {
	log := zap.L().With(zap.String("store", d.cfg.StoreName), zap.String("date", date.Format(snapshot.DateLayout)))

	if d.robots != nil {
		allowed, err := d.robots.Allowed(ctx, d.cfg.StartURL)
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: check robots.txt")
		}
		if !allowed {
			return nil, ErrDisallowed
		}
	}

	report := &DownloadReport{}
	links, err := d.collections(ctx, date, report)
	if err != nil {
		return report, err
	}
	if err := d.products(ctx, date, links, report); err != nil {
		return report, err
	}

	log.Info("download complete",
		zap.Int("collection_pages", report.CollectionPages),
		zap.Int("product_links", report.ProductLinks),
		zap.Int("downloaded", report.Downloaded),
		zap.Int("existing", report.Existing),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// collections follows the pagination chain and returns the product links
// found on every page, deduplicated in order of appearance.
func (d *Downloader) collections(ctx context.Context, date time.Time, report *DownloadReport) ([]string, error) {
	dir := d.layout.CollectionsDir(d.cfg.StoreName, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "fetcher: create collections dir")
	}

	base, err := url.Parse(d.cfg.BaseURL)
	if err != nil || d.cfg.BaseURL == "" {
		base, err = url.Parse(d.cfg.StartURL)
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: parse start url")
		}
	}

	var links []string
	seenLinks := make(map[string]bool)
	visited := make(map[string]bool)
	for next, n := d.cfg.StartURL, 1; next != "" && !visited[next]; n++ {
		visited[next] = true
		p := filepath.Join(dir, fmt.Sprintf("collection_%d.html", n))
		if _, err := d.fetchOnce(ctx, next, p); err != nil {
			return links, eris.Wrapf(err, "fetcher: collection page %d", n)
		}
		report.CollectionPages++

		page, err := parseCollectionFile(p, base)
		if err != nil {
			return links, err
		}
		for _, l := range page.Products {
			if !seenLinks[l] {
				seenLinks[l] = true
				links = append(links, l)
			}
		}
		next = page.Next
	}
	report.ProductLinks = len(links)
	return links, nil
}

func (d *Downloader) products(ctx context.Context, date time.Time, links []string, report *DownloadReport) error {
	dir := d.layout.ProductsDir(d.cfg.StoreName, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "fetcher: create products dir")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Concurrency)

	var downloaded, existing, failed atomic.Int64
	for _, link := range links {
		name, err := ProductFileName(link)
		if err != nil {
			failed.Add(1)
			zap.L().Warn("skipping product link", zap.String("url", link), zap.Error(err))
			continue
		}
		p := filepath.Join(dir, name)

		g.Go(func() error {
			fetched, err := d.fetchOnce(gctx, link, p)
			switch {
			case err != nil && gctx.Err() != nil:
				return gctx.Err()
			case err != nil:
				failed.Add(1)
				zap.L().Warn("product download failed", zap.String("url", link), zap.Error(err))
			case fetched:
				downloaded.Add(1)
			default:
				existing.Add(1)
			}
			return nil
		})
	}

	err := g.Wait()
	report.Downloaded = int(downloaded.Load())
	report.Existing = int(existing.Load())
	report.Failed = int(failed.Load())
	if err != nil {
		return eris.Wrap(err, "fetcher: download products")
	}
	return nil
}

// fetchOnce downloads rawURL to p unless p already exists.
func (d *Downloader) fetchOnce(ctx context.Context, rawURL, p string) (bool, error) {
	if _, err := os.Stat(p); err == nil {
		zap.L().Debug("file already exists", zap.String("path", p))
		return false, nil
	}
	if _, err := d.fetcher.DownloadToFile(ctx, rawURL, p); err != nil {
		return false, err
	}
	zap.L().Debug("downloaded", zap.String("url", rawURL), zap.String("path", p))
	return true, nil
}

func parseCollectionFile(p string, base *url.URL) (*snapshot.CollectionPage, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: open collection page")
	}
	defer f.Close() //nolint:errcheck
	return snapshot.ParseCollection(f, base)
}

// ProductFileName names a product page file after the last segment of its
// URL path.
func ProductFileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: parse %s", rawURL)
	}
	name := path.Base(strings.TrimSuffix(u.Path, "/"))
	if name == "" || name == "." || name == "/" {
		return "", eris.Errorf("fetcher: no page name in %s", rawURL)
	}
	if !strings.HasSuffix(strings.ToLower(name), ".html") {
		name += ".html"
	}
	return name, nil
}
