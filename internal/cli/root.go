package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"finboard/internal/config"
	"finboard/internal/export"
	"finboard/internal/log"
)

// Options override what the commands would otherwise build from the
// environment. The zero value is what the binary uses.
type Options struct {
	Config    *config.Config
	Logger    *log.Logger
	Stdin     io.Reader
	Exporter  export.Exporter
	Publisher RefreshPublisher
}

// runner carries the per-invocation state shared by all commands.
type runner struct {
	opts     Options
	apiURL   string
	logLevel string

	app *App
}

// NewRootCmd builds the finboard command tree.
func NewRootCmd(opts Options) *cobra.Command {
	r := &runner{opts: opts}
	if r.opts.Stdin == nil {
		r.opts.Stdin = os.Stdin
	}

	root := &cobra.Command{
		Use:   "finboard",
		Short: "Personal finance dashboard for the terminal",
		Long: `finboard signs in to the personal-finance API, keeps your session between
runs and prints your wallets, transactions and monthly statistics.`,
		SilenceUsage:      true,
		PersistentPreRunE: r.setup,
	}

	root.PersistentFlags().StringVar(&r.apiURL, "api-url", "", "API base URL (overrides FINBOARD_API_URL)")
	root.PersistentFlags().StringVar(&r.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")

	root.AddCommand(
		newLoginCmd(r),
		newLogoutCmd(r),
		newWhoamiCmd(r),
		newWalletsCmd(r),
		newTransactionsCmd(r),
		newStatsCmd(r),
		newAddCmd(r),
		newWatchCmd(r),
		newExportCmd(r),
	)
	return root
}

// Execute runs the root command with the process environment.
func Execute(ctx context.Context) error {
	LoadEnvFile()
	return NewRootCmd(Options{}).ExecuteContext(ctx)
}

func (r *runner) setup(cmd *cobra.Command, args []string) error {
	cfg := r.opts.Config
	if cfg == nil {
		cfg = config.Load()
	}
	if r.apiURL != "" {
		cfg.APIURL = r.apiURL
	}
	if r.logLevel != "" {
		cfg.LogLevel = r.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := r.opts.Logger
	if logger == nil {
		logger = SetupLogger(cfg.LogLevel, cmd.ErrOrStderr())
	}

	app, err := NewApp(cfg, logger)
	if err != nil {
		return err
	}
	r.app = app
	logger.Debug("Command started", "command", cmd.Name(), log.FieldOperation, log.OpStartup)
	return nil
}

// run wraps a command body so the app is closed whether or not it fails.
func (r *runner) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer r.teardown()
		return fn(cmd, args)
	}
}

func (r *runner) teardown() {
	if r.app != nil {
		r.app.Close()
		r.app = nil
	}
}

func (r *runner) publisher() (RefreshPublisher, error) {
	if r.opts.Publisher != nil {
		return r.opts.Publisher, nil
	}
	return r.app.publisher()
}

func (r *runner) exporter(ctx context.Context) (export.Exporter, error) {
	if r.opts.Exporter != nil {
		return r.opts.Exporter, nil
	}
	return r.app.exporter(ctx)
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
