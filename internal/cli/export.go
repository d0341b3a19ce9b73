package cli

import (
	"time"

	"github.com/spf13/cobra"

	"finboard/internal/core"
)

func newExportCmd(r *runner) *cobra.Command {
	var summaryOnly bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export transactions and the monthly summary to Google Sheets",
		RunE: r.run(func(cmd *cobra.Command, args []string) error {
			exp, err := r.exporter(cmd.Context())
			if err != nil {
				return err
			}
			snap, err := r.app.loadData(cmd.Context())
			if err != nil {
				return err
			}

			if !summaryOnly {
				rng, err := exp.ExportTransactions(cmd.Context(), snap.Transactions)
				if err != nil {
					return err
				}
				printf(cmd, "Exported %d transactions to %s\n", len(snap.Transactions), rng)
			}

			series := core.MonthlySeries(snap.Transactions, time.Now(), r.app.cfg.SeriesMonths)
			rng, err := exp.ExportSummary(cmd.Context(), series)
			if err != nil {
				return err
			}
			printf(cmd, "Exported %d months to %s\n", len(series), rng)
			return nil
		}),
	}

	cmd.Flags().BoolVar(&summaryOnly, "summary-only", false, "only append the monthly summary")
	return cmd
}
