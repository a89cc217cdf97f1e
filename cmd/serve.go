package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/shelf-cli/internal/model"
	"github.com/sells-group/shelf-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dataset over a read-only HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		cfg.Server.Port = port
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(st),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// productView is a product with its live records.
type productView struct {
	model.Product
	Live []model.ScrapRecord `json:"live"`
}

func buildRouter(q store.Queries) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/products", func(w http.ResponseWriter, r *http.Request) {
		var followed *bool
		if v := r.URL.Query().Get("followed"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid followed filter")
				return
			}
			followed = &b
		}
		products, err := listProducts(r.Context(), q, followed)
		if err != nil {
			serverError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, products)
	})

	r.Route("/products/{ean}", func(r chi.Router) {
		r.Get("/history", func(w http.ResponseWriter, r *http.Request) {
			ean, ok := eanParam(w, r)
			if !ok {
				return
			}
			h, err := loadHistory(r.Context(), q, ean)
			if err != nil {
				serverError(w, r, err)
				return
			}
			if len(h.Records) == 0 {
				writeError(w, http.StatusNotFound, "product not found")
				return
			}
			writeJSON(w, http.StatusOK, h)
		})

		r.Get("/prices", func(w http.ResponseWriter, r *http.Request) {
			ean, ok := eanParam(w, r)
			if !ok {
				return
			}
			prices, err := q.ListPrices(r.Context(), ean)
			if err != nil {
				serverError(w, r, err)
				return
			}
			if prices == nil {
				prices = []model.PriceObservation{}
			}
			writeJSON(w, http.StatusOK, prices)
		})
	})

	return r
}

// listProducts joins products with their live records. A non-nil want
// keeps only products whose follow flag matches.
func listProducts(ctx context.Context, q store.Queries, want *bool) ([]productView, error) {
	products, err := q.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	live, err := q.ListLiveRecords(ctx)
	if err != nil {
		return nil, err
	}
	byEAN := make(map[int64][]model.ScrapRecord)
	for _, rec := range live {
		byEAN[rec.ProductEAN] = append(byEAN[rec.ProductEAN], rec)
	}

	out := make([]productView, 0, len(products))
	for _, p := range products {
		if want != nil && p.IsFollowed != *want {
			continue
		}
		recs := byEAN[p.EAN]
		if recs == nil {
			recs = []model.ScrapRecord{}
		}
		out = append(out, productView{Product: p, Live: recs})
	}
	return out, nil
}

func eanParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	ean, err := strconv.ParseInt(chi.URLParam(r, "ean"), 10, 64)
	if err != nil || ean <= 0 {
		writeError(w, http.StatusBadRequest, "invalid ean")
		return 0, false
	}
	return ean, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func serverError(w http.ResponseWriter, r *http.Request, err error) {
	zap.L().Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
