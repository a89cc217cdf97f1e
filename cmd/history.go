package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/shelf-cli/internal/model"
	"github.com/sells-group/shelf-cli/internal/store"
)

// productHistory is every record version and price point of one product.
type productHistory struct {
	EAN     int64                    `json:"ean"`
	Records []model.ScrapRecord      `json:"records"`
	Prices  []model.PriceObservation `json:"prices"`
}

var historyCmd = &cobra.Command{
	Use:   "history <ean>",
	Short: "Show the record history and prices of a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		ean, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || ean <= 0 {
			return eris.Errorf("history: invalid ean %q", args[0])
		}
		if err := cfg.Validate("history"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		h, err := loadHistory(ctx, st, ean)
		if err != nil {
			return err
		}
		if len(h.Records) == 0 && len(h.Prices) == 0 {
			fmt.Fprintln(os.Stderr, "No history found.")
			return nil
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(os.Stdout, h)
		}
		stores, err := storeNames(ctx, st)
		if err != nil {
			return err
		}
		formatHistory(os.Stdout, h, stores)
		return nil
	},
}

func loadHistory(ctx context.Context, q store.Queries, ean int64) (*productHistory, error) {
	records, err := q.ListRecordHistory(ctx, ean)
	if err != nil {
		return nil, eris.Wrap(err, "history: records")
	}
	prices, err := q.ListPrices(ctx, ean)
	if err != nil {
		return nil, eris.Wrap(err, "history: prices")
	}
	return &productHistory{EAN: ean, Records: records, Prices: prices}, nil
}

func storeNames(ctx context.Context, q store.Queries) (map[string]string, error) {
	stores, err := q.ListStores(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "list stores")
	}
	names := make(map[string]string, len(stores))
	for _, s := range stores {
		names[s.ID] = s.Name
	}
	return names, nil
}

func formatHistory(out io.Writer, h *productHistory, stores map[string]string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "EAN %d\n\n", h.EAN)
	_, _ = fmt.Fprintln(w, "STORE\tVALID_FROM\tVALID_TO\tNAME\tCOMPOSITION")
	_, _ = fmt.Fprintln(w, "-----\t----------\t--------\t----\t-----------")
	for _, r := range h.Records {
		validTo := "live"
		if r.ValidTo != nil {
			validTo = r.ValidTo.Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			stores[r.StoreID],
			r.ValidFrom.Format("2006-01-02"),
			validTo,
			r.ProductName,
			truncate(r.Composition, 40),
		)
	}
	_ = w.Flush()

	if len(h.Prices) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STORE\tDATE\tPRICE_PLN")
	_, _ = fmt.Fprintln(w, "-----\t----\t---------")
	for _, p := range h.Prices {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.2f\n", stores[p.StoreID], p.Date.Format("2006-01-02"), p.Value)
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	historyCmd.Flags().Bool("json", false, "print JSON instead of a table")
	rootCmd.AddCommand(historyCmd)
}
