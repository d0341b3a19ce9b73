package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"finboard/internal/amqp"
	"finboard/internal/core"
	"finboard/internal/log"
)

func newAddCmd(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create wallets and transactions",
	}
	cmd.AddCommand(newAddWalletCmd(r), newAddTransactionCmd(r))
	return cmd
}

func newAddWalletCmd(r *runner) *cobra.Command {
	var (
		w       core.NewWallet
		balance string
	)

	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Create a wallet",
		Long: `Create a wallet.

Examples:
  finboard add wallet --name Cash --currency XOF --balance 15000 --type cash`,
		RunE: r.run(func(cmd *cobra.Command, args []string) error {
			amount, err := core.ParseAmount(balance)
			if err != nil {
				return fmt.Errorf("invalid --balance %q: %w", balance, err)
			}
			w.Balance = amount
			if err := w.Validate(); err != nil {
				return err
			}

			st, err := r.app.requireSession(cmd.Context())
			if err != nil {
				return err
			}
			created, err := r.app.client.CreateWallet(cmd.Context(), w)
			if err != nil {
				return fmt.Errorf("create wallet: %w", err)
			}
			printf(cmd, "Created wallet %d (%s)\n", created.ID, created.Name)

			r.afterMutation(cmd.Context(), amqp.ResourceWallets, st.User.ID)
			return nil
		}),
	}

	cmd.Flags().StringVar(&w.Name, "name", "", "wallet name")
	cmd.Flags().StringVar(&w.Currency, "currency", "", "currency code, e.g. XOF")
	cmd.Flags().StringVar(&balance, "balance", "0", "opening balance")
	cmd.Flags().StringVar(&w.Type, "type", "checking", "wallet type, e.g. checking, savings, cash")
	cmd.Flags().StringVar(&w.Color, "color", "", "display color")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("currency")
	return cmd
}

func newAddTransactionCmd(r *runner) *cobra.Command {
	var (
		t      core.NewTransaction
		txType string
		amount string
	)

	cmd := &cobra.Command{
		Use:   "transaction",
		Short: "Record a transaction",
		Long: `Record an income, expense or transfer.

Examples:
  finboard add transaction --type expense --amount 2500 --category Food --name Lunch
  finboard add transaction --type income --amount 300000 --category Salary --name "March salary" --date 2025-03-01`,
		RunE: r.run(func(cmd *cobra.Command, args []string) error {
			a, err := core.ParseAmount(amount)
			if err != nil {
				return fmt.Errorf("invalid --amount %q: %w", amount, err)
			}
			t.Amount = a
			t.Type = core.TransactionType(txType)
			if t.Date == "" {
				t.Date = time.Now().Format(core.DateLayout)
			}
			if err := t.Validate(); err != nil {
				return err
			}

			st, err := r.app.requireSession(cmd.Context())
			if err != nil {
				return err
			}
			created, err := r.app.client.CreateTransaction(cmd.Context(), t)
			if err != nil {
				return fmt.Errorf("create transaction: %w", err)
			}
			printf(cmd, "Recorded %s %s on %s (%s)\n", created.Type, created.Amount, created.Date, created.Name)

			r.afterMutation(cmd.Context(), amqp.ResourceTransactions, st.User.ID)
			return nil
		}),
	}

	cmd.Flags().StringVar(&txType, "type", string(core.Expense), "income, expense or transfer")
	cmd.Flags().StringVar(&amount, "amount", "", "positive amount")
	cmd.Flags().StringVar(&t.Category, "category", "", "category name")
	cmd.Flags().StringVar(&t.Name, "name", "", "description")
	cmd.Flags().StringVar(&t.Date, "date", "", "date as YYYY-MM-DD (default: today)")
	cmd.Flags().Int64Var(&t.WalletID, "wallet", 0, "wallet ID")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

// afterMutation refreshes the local cache and tells other processes the
// resource changed. Neither step fails the command.
func (r *runner) afterMutation(ctx context.Context, resource string, userID int64) {
	logger := r.app.logger
	if err := r.app.cache.RefreshData(ctx); err != nil {
		logger.Warn("Failed to refresh data", log.FieldError, err.Error())
	}

	pub, err := r.publisher()
	if err != nil {
		logger.Warn("Refresh signals unavailable", log.FieldError, err.Error())
		return
	}
	if pub == nil {
		return
	}
	if err := pub.PublishRefresh(ctx, amqp.NewRefreshSignal(resource, amqp.ActionCreated, userID)); err != nil {
		logger.Warn("Failed to publish refresh signal",
			log.FieldOperation, log.OpPublish,
			log.FieldError, err.Error())
	}
}
