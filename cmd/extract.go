package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/shelf-cli/internal/extract"
	"github.com/sells-group/shelf-cli/internal/model"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract structured components from composition texts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("extract"); err != nil {
			return err
		}
		kindFlags, _ := cmd.Flags().GetStringSlice("kind")
		kinds := make([]model.ComponentKind, 0, len(kindFlags))
		for _, k := range kindFlags {
			kind, err := model.ParseComponentKind(k)
			if err != nil {
				return err
			}
			kinds = append(kinds, kind)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var reports []*extract.Report
		err = withRunLock(ctx, st, func() error {
			reports, err = newDispatcher(st).DispatchAll(ctx, kinds...)
			return err
		})
		if err != nil {
			return eris.Wrap(err, "extract")
		}
		return printJSON(os.Stdout, reports)
	},
}

func init() {
	extractCmd.Flags().StringSlice("kind", nil, "component kinds to extract: analytical, dietary (default all)")
	rootCmd.AddCommand(extractCmd)
}
