package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Download, reconcile, audit and extract in one locked run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("run"); err != nil {
			return err
		}
		dateFlag, _ := cmd.Flags().GetString("date")
		date, err := parseDate(dateFlag)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		report, err := runPipeline(ctx, st, newDownloader(), newDispatcher(st), date)
		if report != nil {
			_ = printJSON(os.Stdout, report)
		}
		return err
	},
}

func init() {
	runCmd.Flags().String("date", "", "collection date YYYY-MM-DD (default today)")
	rootCmd.AddCommand(runCmd)
}
