package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/shelf-cli/internal/snapshot"
)

func collectionPage(next string, products ...string) string {
	html := `<html><body><div class="col-sm-9">`
	for _, p := range products {
		html += fmt.Sprintf(`<figure class="product-tile"><a href="%s">p</a></figure>`, p)
	}
	html += `</div><div class="pagination">`
	if next != "" {
		html += fmt.Sprintf(`<a href="%s"><i class="fa fa-chevron-right"></i></a>`, next)
	}
	return html + `</div></body></html>`
}

type fakeShop struct {
	srv      *httptest.Server
	requests atomic.Int32
}

func newFakeShop(t *testing.T, robots string) *fakeShop {
	t.Helper()
	shop := &fakeShop{}
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(robots))
	})
	mux.HandleFunc("/Karmy-Mokre", func(w http.ResponseWriter, r *http.Request) {
		shop.requests.Add(1)
		if r.URL.Query().Get("page") == "2" {
			w.Write([]byte(collectionPage("", "/Bozita-Kurczak", "/Animonda-Carny")))
			return
		}
		w.Write([]byte(collectionPage("/Karmy-Mokre?page=2", "/Animonda-Carny", "/Miamor-Tuna")))
	})
	mux.HandleFunc("/Miamor-Tuna", func(w http.ResponseWriter, r *http.Request) {
		shop.requests.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})
	for _, p := range []string{"/Animonda-Carny", "/Bozita-Kurczak"} {
		mux.HandleFunc(p, func(w http.ResponseWriter, r *http.Request) {
			shop.requests.Add(1)
			w.Write([]byte("<html><body><h1 class=\"title\">" + r.URL.Path + "</h1></body></html>"))
		})
	}
	shop.srv = httptest.NewServer(mux)
	t.Cleanup(shop.srv.Close)
	return shop
}

func (s *fakeShop) downloader(root string, robots bool) *Downloader {
	var r *Robots
	if robots {
		r = NewRobots(s.srv.Client(), "shelf-cli/1.0")
	}
	return NewDownloader(newTestFetcher(), r, snapshot.Layout{Root: root}, DownloaderConfig{
		StoreName:   "Kocie Figle",
		StartURL:    s.srv.URL + "/Karmy-Mokre",
		BaseURL:     s.srv.URL,
		Concurrency: 2,
	})
}

func TestDownloader_Run(t *testing.T) {
	shop := newFakeShop(t, "User-agent: *\nDisallow: /koszyk\n")
	root := t.TempDir()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	report, err := shop.downloader(root, true).Run(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 2, report.CollectionPages)
	assert.Equal(t, 3, report.ProductLinks)
	assert.Equal(t, 2, report.Downloaded)
	assert.Equal(t, 1, report.Failed)

	layout := snapshot.Layout{Root: root}
	for _, name := range []string{"Animonda-Carny.html", "Bozita-Kurczak.html"} {
		_, err := os.Stat(filepath.Join(layout.ProductsDir("Kocie Figle", day), name))
		assert.NoError(t, err, name)
	}
	_, err = os.Stat(filepath.Join(layout.CollectionsDir("Kocie Figle", day), "collection_2.html"))
	assert.NoError(t, err)

	before := shop.requests.Load()
	again, err := shop.downloader(root, true).Run(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Existing)
	assert.Equal(t, 0, again.Downloaded)
	assert.Equal(t, before+1, shop.requests.Load(), "only the missing page is requested again")
}

func TestDownloader_Disallowed(t *testing.T) {
	shop := newFakeShop(t, "User-agent: *\nDisallow: /\n")

	_, err := shop.downloader(t.TempDir(), true).Run(context.Background(), time.Now())
	assert.ErrorIs(t, err, ErrDisallowed)
	assert.Zero(t, shop.requests.Load())
}

func TestDownloader_WithoutRobots(t *testing.T) {
	shop := newFakeShop(t, "User-agent: *\nDisallow: /\n")

	report, err := shop.downloader(t.TempDir(), false).Run(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Downloaded)
}

func TestProductFileName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://kociefigle.pl/Animonda-Carny-400g", "Animonda-Carny-400g.html", false},
		{"https://kociefigle.pl/karmy/Bozita/", "Bozita.html", false},
		{"https://kociefigle.pl/page.html?x=1", "page.html", false},
		{"https://kociefigle.pl/", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ProductFileName(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
