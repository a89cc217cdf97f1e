package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/shelf-cli/internal/reconcile"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Reconcile snapshots into the listing history",
	Long: "Reads the product pages downloaded for --date (default today) and reconciles them. " +
		"With --file, reads a YAML backfill file instead; every batch in it is applied unless --date is given. " +
		"With --all-dates, reconciles every downloaded day in ascending order.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("ingest"); err != nil {
			return err
		}
		dateFlag, _ := cmd.Flags().GetString("date")
		file, _ := cmd.Flags().GetString("file")
		allDates, _ := cmd.Flags().GetBool("all-dates")
		if allDates && (file != "" || dateFlag != "") {
			return eris.New("ingest: --all-dates cannot be combined with --date or --file")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var reports []*reconcile.Report
		err = withRunLock(ctx, st, func() error {
			if allDates {
				reports, err = ingestAllDates(ctx, st)
				return err
			}
			if file != "" {
				var date time.Time
				if dateFlag != "" {
					if date, err = parseDate(dateFlag); err != nil {
						return err
					}
				}
				reports, err = ingestYAML(ctx, st, file, date)
				return err
			}

			date, err := parseDate(dateFlag)
			if err != nil {
				return err
			}
			rep, err := ingestDirectory(ctx, st, date)
			if err != nil {
				return err
			}
			reports = append(reports, rep)
			return nil
		})
		if err != nil {
			return eris.Wrap(err, "ingest")
		}
		return printJSON(os.Stdout, reports)
	},
}

func init() {
	ingestCmd.Flags().String("date", "", "collection date YYYY-MM-DD (default today)")
	ingestCmd.Flags().String("file", "", "YAML backfill file to ingest instead of downloaded pages")
	ingestCmd.Flags().Bool("all-dates", false, "ingest every downloaded date, oldest first")
	rootCmd.AddCommand(ingestCmd)
}
