package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"finboard/internal/core"
)

func newWalletsCmd(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "wallets",
		Short: "List wallets and balances",
		RunE: r.run(func(cmd *cobra.Command, args []string) error {
			snap, err := r.app.loadData(cmd.Context())
			if err != nil {
				return err
			}
			if len(snap.Wallets) == 0 {
				printf(cmd, "No wallets yet.\n")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTYPE\tBALANCE\tCURRENCY")
			currencies := map[string]bool{}
			for _, wl := range snap.Wallets {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", wl.ID, wl.Name, wl.Type, wl.Balance, wl.Currency)
				currencies[wl.Currency] = true
			}
			w.Flush()

			codes := make([]string, 0, len(currencies))
			for c := range currencies {
				codes = append(codes, c)
			}
			sort.Strings(codes)
			for _, c := range codes {
				printf(cmd, "Total %s: %s\n", c, core.WalletsTotal(snap.Wallets, c))
			}
			return nil
		}),
	}
}

func newTransactionsCmd(r *runner) *cobra.Command {
	var txType string

	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "List transactions",
		RunE: r.run(func(cmd *cobra.Command, args []string) error {
			filter := core.TransactionType(txType)
			if txType != "" && !filter.Valid() {
				return fmt.Errorf("invalid --type %q: must be income, expense or transfer", txType)
			}

			snap, err := r.app.loadData(cmd.Context())
			if err != nil {
				return err
			}
			txs := snap.Transactions
			if txType != "" {
				txs = core.FilterByType(txs, filter)
			}
			if len(txs) == 0 {
				printf(cmd, "No transactions.\n")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "DATE\tNAME\tCATEGORY\tTYPE\tAMOUNT")
			for _, tx := range txs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", tx.Date, tx.Name, tx.Category, tx.Type, tx.Amount)
			}
			return w.Flush()
		}),
	}

	cmd.Flags().StringVar(&txType, "type", "", "only show income, expense or transfer")
	return cmd
}

func newStatsCmd(r *runner) *cobra.Command {
	var month string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show monthly totals, budget usage and category breakdown",
		RunE: r.run(func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if month != "" {
				t, err := time.Parse("2006-01", month)
				if err != nil {
					return fmt.Errorf("invalid --month %q: expected YYYY-MM", month)
				}
				now = t
			}

			snap, err := r.app.loadData(cmd.Context())
			if err != nil {
				return err
			}
			user := r.app.session.State().User
			var income float64
			var currency string
			if user != nil {
				income = user.Income()
				currency = user.Currency
			}

			ov := core.Overview(snap.Transactions, now.Year(), now.Month(), income)
			printf(cmd, "%s %d\n", ov.Month, ov.Year)
			printf(cmd, "Income:  %s %s\n", ov.Income, currency)
			printf(cmd, "Expense: %s %s\n", ov.Expense, currency)
			if income > 0 {
				alert := ""
				if ov.BudgetAlert {
					alert = " (alert)"
				}
				printf(cmd, "Budget used: %d%%%s\n", ov.BudgetUsed, alert)
			}

			if len(ov.ByCategory) > 0 {
				printf(cmd, "\nTop expense categories:\n")
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
				for _, c := range core.TopCategories(ov.ByCategory, 5) {
					fmt.Fprintf(w, "  %s\t%s\t%d%%\n", c.Name, c.Amount, c.Percent)
				}
				w.Flush()
			}

			months := r.app.cfg.SeriesMonths
			printf(cmd, "\nLast %d months:\n", months)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "  MONTH\tINCOME\tEXPENSE")
			for _, m := range core.MonthlySeries(snap.Transactions, now, months) {
				fmt.Fprintf(w, "  %04d-%02d\t%s\t%s\n", m.Year, int(m.Month), m.Income, m.Expense)
			}
			w.Flush()
			printf(cmd, "Average monthly income: %s %s\n", core.AverageMonthlyIncome(snap.Transactions, months), currency)
			return nil
		}),
	}

	cmd.Flags().StringVar(&month, "month", "", "month to summarize as YYYY-MM (default: current month)")
	return cmd
}
