// Package cache holds the in-memory snapshot of the user's wallets and
// transactions, fetched in bulk once the session has resolved a user.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"finboard/internal/core"
	"finboard/internal/log"
	"finboard/internal/session"
)

// FetchErrorMessage is the single error surfaced to views when either
// collection fails to load.
const FetchErrorMessage = "Failed to load financial data."

type (
	// Fetcher loads the two collections from the API.
	Fetcher interface {
		Wallets(ctx context.Context) ([]core.Wallet, error)
		Transactions(ctx context.Context) ([]core.Transaction, error)
	}

	// SessionSource is the part of the session manager the cache observes.
	SessionSource interface {
		State() session.State
		Subscribe(ctx context.Context) <-chan session.State
	}
)

// Snapshot is a copy of the cached data.
type Snapshot struct {
	Wallets      []core.Wallet
	Transactions []core.Transaction
	Loading      bool
	Error        string
	UpdatedAt    time.Time
}

type fetch struct {
	cancel context.CancelFunc
}

type DataCache struct {
	fetcher Fetcher
	session SessionSource
	logger  *log.Logger

	mu       sync.Mutex
	snap     Snapshot
	inflight *fetch
}

func New(fetcher Fetcher, src SessionSource, logger *log.Logger) *DataCache {
	if logger == nil {
		logger = log.Discard()
	}
	return &DataCache{
		fetcher: fetcher,
		session: src,
		logger:  logger.WithComponent(log.ComponentCache),
	}
}

// FetchData loads wallets and transactions concurrently and replaces both
// collections when both succeed. Without a token and a user it does nothing.
// On failure the previous collections are kept and Snapshot().Error is set.
// A newer call cancels an older one still in flight; the older result is
// dropped. The only error returned is ctx's.
func (c *DataCache) FetchData(ctx context.Context) error {
	if !c.session.State().Authenticated() {
		return nil
	}

	fctx, cancel := context.WithCancel(ctx)
	defer cancel()
	h := &fetch{cancel: cancel}

	c.mu.Lock()
	prev := c.inflight
	c.inflight = h
	c.snap.Loading = true
	c.snap.Error = ""
	c.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}

	var (
		wallets      []core.Wallet
		transactions []core.Transaction
	)
	g, gctx := errgroup.WithContext(fctx)
	g.Go(func() error {
		w, err := c.fetcher.Wallets(gctx)
		if err != nil {
			return fmt.Errorf("fetch wallets: %w", err)
		}
		wallets = w
		return nil
	})
	g.Go(func() error {
		t, err := c.fetcher.Transactions(gctx)
		if err != nil {
			return fmt.Errorf("fetch transactions: %w", err)
		}
		transactions = t
		return nil
	})
	err := g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inflight != h {
		c.logger.DebugContext(ctx, "Discarding superseded fetch", log.FieldOperation, log.OpFetch)
		return nil
	}
	c.inflight = nil
	c.snap.Loading = false

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		c.snap.Error = FetchErrorMessage
		c.logger.ErrorContext(ctx, "Failed to fetch data",
			log.FieldOperation, log.OpFetch,
			log.FieldError, err.Error())
		return nil
	}

	c.snap.Wallets = wallets
	c.snap.Transactions = transactions
	c.snap.UpdatedAt = time.Now()
	c.logger.DebugContext(ctx, "Data refreshed",
		log.FieldWallets, len(wallets),
		log.FieldTxCount, len(transactions))
	return nil
}

// RefreshData refetches both collections, typically after a mutation.
func (c *DataCache) RefreshData(ctx context.Context) error {
	return c.FetchData(ctx)
}

// Run fetches once for every new resolved (token, user) pair the session
// publishes, until ctx ends.
func (c *DataCache) Run(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		last uint64
		seen bool
	)
	defer wg.Wait()

	for st := range c.session.Subscribe(ctx) {
		if !st.Authenticated() || st.Loading {
			continue
		}
		if seen && st.Revision == last {
			continue
		}
		seen, last = true, st.Revision
		c.logger.DebugContext(ctx, "Session resolved, fetching data", log.FieldRevision, st.Revision)

		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.FetchData(ctx)
		}()
	}
	return ctx.Err()
}

// Snapshot returns a copy of the cached state.
func (c *DataCache) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.snap
	s.Wallets = append([]core.Wallet(nil), c.snap.Wallets...)
	s.Transactions = append([]core.Transaction(nil), c.snap.Transactions...)
	return s
}

// Reset drops the cached collections and abandons any fetch in flight. The
// cache does not do this on logout by itself.
func (c *DataCache) Reset() {
	c.mu.Lock()
	prev := c.inflight
	c.inflight = nil
	c.snap = Snapshot{}
	c.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}
}
