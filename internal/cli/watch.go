package cli

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron"
	"github.com/spf13/cobra"

	"finboard/internal/amqp"
	"finboard/internal/log"
)

const shutdownTimeout = 10 * time.Second

func newWatchCmd(r *runner) *cobra.Command {
	var schedule string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the data fresh until interrupted",
		Long: `Restore the session and keep wallets and transactions up to date.

Data is refetched on the refresh schedule (FINBOARD_REFRESH_SCHEDULE, default
"@every 5m") and, when AMQP_URL is set, whenever another finboard process
announces a change. Stops on SIGINT or SIGTERM.`,
		RunE: r.run(func(cmd *cobra.Command, args []string) error {
			app := r.app
			if schedule == "" {
				schedule = app.cfg.RefreshSchedule
			}

			if _, err := cron.Parse(schedule); err != nil {
				return fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
			}
			if _, err := app.requireSession(cmd.Context()); err != nil {
				return err
			}

			runCtx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			refresh := func(reason string) {
				if err := app.cache.RefreshData(runCtx); err != nil {
					return
				}
				snap := app.cache.Snapshot()
				app.logger.Info("Data refreshed",
					"reason", reason,
					log.FieldWallets, len(snap.Wallets),
					log.FieldTxCount, len(snap.Transactions),
					log.FieldError, snap.Error)
			}

			c := cron.New()
			if err := c.AddFunc(schedule, func() { refresh("schedule") }); err != nil {
				app.logger.Error("Failed to schedule refresh", log.FieldError, err.Error())
			}
			// The scheduler must be running before the shutdown goroutine can stop it.
			c.Start()
			ctx, done := GracefulShutdown(runCtx, app.logger, shutdownTimeout, func() {
				c.Stop()
				cancel()
			})

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = app.cache.Run(ctx)
			}()

			consumer, err := app.amqpClient()
			if err != nil {
				app.logger.Warn("Refresh signals unavailable", log.FieldError, err.Error())
			}
			if consumer != nil {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_ = consumer.ConsumeRefresh(ctx, func(ctx context.Context, sig *amqp.RefreshSignal) error {
						refresh("signal:" + sig.Resource)
						return nil
					})
				}()
			}

			printf(cmd, "Watching for changes (schedule %s). Press Ctrl+C to stop.\n", schedule)

			<-ctx.Done()
			wg.Wait()
			<-done

			snap := app.cache.Snapshot()
			printf(cmd, "Stopped with %d wallets and %d transactions cached.\n", len(snap.Wallets), len(snap.Transactions))
			return nil
		}),
	}

	cmd.Flags().StringVar(&schedule, "schedule", "", "cron schedule overriding FINBOARD_REFRESH_SCHEDULE")
	return cmd
}
