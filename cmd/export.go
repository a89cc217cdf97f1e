package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/shelf-cli/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write live records and price history to an Excel workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("export"); err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		summary, err := export.WriteFile(ctx, st, out)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, summary)
	},
}

func init() {
	exportCmd.Flags().String("out", "shelf.xlsx", "output workbook path")
	rootCmd.AddCommand(exportCmd)
}
