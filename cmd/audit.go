package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/shelf-cli/internal/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Unfollow products whose listings are incoherent",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("audit"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var report *audit.Report
		err = withRunLock(ctx, st, func() error {
			report, err = runAudit(ctx, st)
			return err
		})
		if err != nil {
			return eris.Wrap(err, "audit")
		}
		return printJSON(os.Stdout, report)
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
}
