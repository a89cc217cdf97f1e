package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download collection and product pages of the configured store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("download"); err != nil {
			return err
		}
		dateFlag, _ := cmd.Flags().GetString("date")
		date, err := parseDate(dateFlag)
		if err != nil {
			return err
		}

		report, err := newDownloader().Run(ctx, date)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, report)
	},
}

func init() {
	downloadCmd.Flags().String("date", "", "collection date YYYY-MM-DD (default today)")
	rootCmd.AddCommand(downloadCmd)
}
