package cli

import (
	"context"
	"errors"
	"fmt"

	"finboard/internal/amqp"
	"finboard/internal/api"
	"finboard/internal/cache"
	"finboard/internal/config"
	"finboard/internal/export"
	"finboard/internal/log"
	"finboard/internal/session"
	"finboard/internal/tokenstore/sqlite"
)

// ErrNotLoggedIn is returned by commands that need a resolved session.
var ErrNotLoggedIn = errors.New("not logged in: run 'finboard login' first")

// RefreshPublisher announces remote data changes to other processes.
type RefreshPublisher interface {
	PublishRefresh(ctx context.Context, sig *amqp.RefreshSignal) error
}

// App holds the components a command works with.
type App struct {
	cfg     *config.Config
	logger  *log.Logger
	client  *api.Client
	store   *sqlite.Store
	session *session.Manager
	cache   *cache.DataCache

	amqp *amqp.Client
}

// NewApp builds the API client, token store, session manager and data cache
// described by cfg. AMQP is connected lazily by the commands that use it.
func NewApp(cfg *config.Config, logger *log.Logger) (*App, error) {
	store, err := sqlite.New(cfg.TokenDBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open token store: %w", err)
	}

	credential := api.NewCredential()
	client := api.NewClient(cfg.APIURL, credential,
		api.WithTimeout(cfg.HTTPTimeout),
		api.WithLogger(logger))

	mgr := session.New(client, credential, store,
		session.WithProfileTimeout(cfg.ProfileTimeout),
		session.WithSafetyTimeout(cfg.SafetyTimeout),
		session.WithLogger(logger))

	return &App{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		store:   store,
		session: mgr,
		cache:   cache.New(client, mgr, logger),
	}, nil
}

func (a *App) Close() {
	a.session.Close()
	if a.amqp != nil {
		if err := a.amqp.Close(); err != nil {
			a.logger.Warn("Failed to close AMQP client", log.FieldError, err.Error())
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close token store", log.FieldError, err.Error())
	}
}

// requireSession restores the persisted session and fails unless a user was
// resolved.
func (a *App) requireSession(ctx context.Context) (session.State, error) {
	if err := a.session.Initialize(ctx); err != nil {
		return session.State{}, err
	}
	st := a.session.State()
	if !st.Authenticated() {
		return st, ErrNotLoggedIn
	}
	return st, nil
}

// loadData restores the session and fetches both collections.
func (a *App) loadData(ctx context.Context) (cache.Snapshot, error) {
	if _, err := a.requireSession(ctx); err != nil {
		return cache.Snapshot{}, err
	}
	if err := a.cache.FetchData(ctx); err != nil {
		return cache.Snapshot{}, err
	}
	snap := a.cache.Snapshot()
	if snap.Error != "" {
		return snap, errors.New(snap.Error)
	}
	return snap, nil
}

// publisher returns the AMQP client when refresh signals are configured.
func (a *App) publisher() (RefreshPublisher, error) {
	c, err := a.amqpClient()
	if c == nil || err != nil {
		return nil, err
	}
	return c, nil
}

func (a *App) amqpClient() (*amqp.Client, error) {
	if !a.cfg.AMQPEnabled() {
		return nil, nil
	}
	if a.amqp != nil {
		return a.amqp, nil
	}
	c, err := amqp.NewClient(a.cfg.AMQPURL, a.cfg.AMQPExchange, a.cfg.AMQPRoutingKey, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect AMQP: %w", err)
	}
	a.amqp = c
	return c, nil
}

func (a *App) exporter(ctx context.Context) (export.Exporter, error) {
	if !a.cfg.ExportEnabled() {
		return nil, errors.New("export is not configured: set GOOGLE_SPREADSHEET_ID")
	}
	return export.NewSheetsExporter(ctx, export.Config{
		SpreadsheetID:   a.cfg.GoogleSpreadsheetID,
		SheetName:       a.cfg.GoogleSheetName,
		CredentialsJSON: a.cfg.GoogleServiceAccountJSON,
		CredentialsFile: a.cfg.GoogleServiceAccountFile,
	}, a.logger)
}
