// Package session owns the authentication lifecycle: the token pair, the
// resolved user profile and the loading flag.
//
// A profile resolution runs the profile request under a per-request timeout
// and races it against a longer safety timer. At most one resolution is in
// flight; each one is represented by a handle that a newer login or a logout
// cancels and replaces.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dario.cat/mergo"

	"finboard/internal/core"
	"finboard/internal/log"
	"finboard/internal/tokenstore"
)

const (
	DefaultProfileTimeout = 7 * time.Second
	DefaultSafetyTimeout  = 8 * time.Second
)

// ErrEmptyToken is returned by Login when either token is empty.
var ErrEmptyToken = errors.New("access and refresh tokens must not be empty")

// resolution is the handle of one in-flight profile resolution.
type resolution struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

type Manager struct {
	fetcher    ProfileFetcher
	credential Credential
	store      tokenstore.Store
	logger     *log.Logger

	profileTimeout time.Duration
	safetyTimeout  time.Duration

	mu        sync.Mutex
	state     State
	persisted tokenstore.Tokens
	inflight  *resolution
	subs      map[chan State]struct{}
	closed    bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithProfileTimeout bounds each profile request.
func WithProfileTimeout(d time.Duration) Option {
	return func(m *Manager) { m.profileTimeout = d }
}

// WithSafetyTimeout sets the backstop that ends loading if a profile request
// never settles.
func WithSafetyTimeout(d time.Duration) Option {
	return func(m *Manager) { m.safetyTimeout = d }
}

func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.logger = l.WithComponent(log.ComponentSession) }
}

// New creates a manager in the loading state. Call Initialize once to read
// the persisted tokens.
func New(fetcher ProfileFetcher, credential Credential, store tokenstore.Store, opts ...Option) *Manager {
	m := &Manager{
		fetcher:        fetcher,
		credential:     credential,
		store:          store,
		logger:         log.Discard().WithComponent(log.ComponentSession),
		profileTimeout: DefaultProfileTimeout,
		safetyTimeout:  DefaultSafetyTimeout,
		state:          State{Loading: true},
		subs:           make(map[chan State]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize reads the persisted tokens. Without an access token the session
// settles logged out; otherwise the token is applied and Initialize returns
// once the resulting profile resolution settles.
func (m *Manager) Initialize(ctx context.Context) error {
	tokens, loadErr := m.store.Load(ctx)
	if loadErr != nil {
		m.logger.ErrorContext(ctx, "Failed to read persisted tokens",
			log.FieldOperation, log.OpStartup,
			log.FieldError, loadErr.Error())
		tokens = tokenstore.Tokens{}
	}

	m.mu.Lock()
	if tokens.Empty() {
		m.state.Loading = false
		m.notifyLocked()
		m.mu.Unlock()
		if loadErr != nil {
			return fmt.Errorf("load tokens: %w", loadErr)
		}
		return nil
	}
	m.persisted = tokens
	h := m.applyTokenLocked(ctx, tokens)
	m.mu.Unlock()

	if h == nil {
		return nil
	}
	go m.resolve(h)
	return m.wait(ctx, h)
}

// Login persists both tokens, installs the access token as the request
// credential and resolves the profile. It returns once the resolution
// settles; the outcome is observed through State. The only errors are
// ErrEmptyToken and the caller's context ending before the resolution does.
func (m *Manager) Login(ctx context.Context, access, refresh string) error {
	if access == "" || refresh == "" {
		return ErrEmptyToken
	}

	h := m.newResolution(ctx)

	m.mu.Lock()
	prev := m.inflight
	m.inflight = h
	m.state.Loading = true
	// The handle is already registered, so the reactive path does not start
	// a second resolution for the same token.
	m.applyTokenLocked(ctx, tokenstore.Tokens{Access: access, Refresh: refresh})
	m.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}

	m.logger.InfoContext(ctx, "Login started", log.FieldOperation, log.OpLogin)
	go m.resolve(h)
	return m.wait(ctx, h)
}

// Logout clears the user and both tokens from memory, storage and the request
// credential, and abandons any in-flight resolution. It is idempotent.
func (m *Manager) Logout() {
	m.mu.Lock()
	prev := m.inflight
	m.inflight = nil
	m.clearSessionLocked(context.Background())
	m.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}
	m.logger.Info("Logged out", log.FieldOperation, log.OpLogout)
}

// UpdateUser merges the non-zero fields of patch into the current user.
// Optional fields given as non-nil pointers replace the current value even
// when they point to a zero value. It does nothing when no user is resolved
// and never contacts the network.
func (m *Manager) UpdateUser(patch core.UserProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.User == nil {
		return
	}
	merged := m.state.User.Clone()
	if err := mergo.Merge(merged, patch.Clone(), mergo.WithOverride, mergo.WithoutDereference); err != nil {
		m.logger.Error("Failed to merge user update", log.FieldError, err.Error())
		return
	}
	m.state.User = merged
	m.state.Revision++
	m.notifyLocked()
}

// State returns a snapshot of the session.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Subscribe returns a channel that yields the current state and then the
// latest state after every change. Intermediate states may be skipped by a
// slow reader. The channel is closed when ctx ends or the manager is closed.
func (m *Manager) Subscribe(ctx context.Context) <-chan State {
	ch := make(chan State, 1)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		close(ch)
		return ch
	}
	ch <- m.snapshotLocked()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subs[ch]; ok {
			delete(m.subs, ch)
			close(ch)
		}
	}()
	return ch
}

// Close abandons any in-flight resolution and closes all subscriptions. The
// persisted tokens are left as they are.
func (m *Manager) Close() {
	m.mu.Lock()
	prev := m.inflight
	m.inflight = nil
	m.closed = true
	for ch := range m.subs {
		delete(m.subs, ch)
		close(ch)
	}
	m.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}
}

func (m *Manager) newResolution(ctx context.Context) *resolution {
	rctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &resolution{
		ctx:    rctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// applyTokenLocked keeps the credential and the store in step with tokens and
// starts a resolution when a token is present and none is in flight. The
// returned handle, if any, must be run by the caller after unlocking.
func (m *Manager) applyTokenLocked(ctx context.Context, tokens tokenstore.Tokens) *resolution {
	if tokens.Empty() {
		m.clearSessionLocked(ctx)
		return nil
	}

	if m.state.AccessToken != tokens.Access || m.state.RefreshToken != tokens.Refresh {
		m.state.AccessToken = tokens.Access
		m.state.RefreshToken = tokens.Refresh
		m.state.Revision++
	}
	m.credential.Set(tokens.Access)
	if m.persisted != tokens {
		if err := m.store.Save(ctx, tokens); err != nil {
			m.logger.ErrorContext(ctx, "Failed to persist tokens", log.FieldError, err.Error())
		} else {
			m.persisted = tokens
		}
	}

	var started *resolution
	if m.inflight == nil {
		started = m.newResolution(ctx)
		m.inflight = started
		m.state.Loading = true
	}
	m.notifyLocked()
	return started
}

// clearSessionLocked drops user and tokens everywhere. The store is written
// under the lock so that a concurrent login cannot interleave with it.
func (m *Manager) clearSessionLocked(ctx context.Context) {
	if m.state.AccessToken != "" || m.state.RefreshToken != "" || m.state.User != nil {
		m.state.Revision++
	}
	m.state.AccessToken = ""
	m.state.RefreshToken = ""
	m.state.User = nil
	m.state.Loading = false
	m.credential.Clear()
	if err := m.store.Clear(ctx); err != nil {
		m.logger.ErrorContext(ctx, "Failed to remove persisted tokens", log.FieldError, err.Error())
	} else {
		m.persisted = tokenstore.Tokens{}
	}
	m.notifyLocked()
}

// resolve runs the profile request for h and applies its outcome unless h has
// been superseded in the meantime.
func (m *Manager) resolve(h *resolution) {
	defer h.cancel()
	defer close(h.done)

	reqCtx, cancelReq := context.WithTimeout(h.ctx, m.profileTimeout)
	defer cancelReq()

	type result struct {
		user *core.UserProfile
		err  error
	}
	results := make(chan result, 1)
	go func() {
		user, err := m.fetcher.Profile(reqCtx)
		if err == nil && user == nil {
			err = errors.New("empty profile response")
		}
		results <- result{user: user, err: err}
	}()

	safety := time.NewTimer(m.safetyTimeout)
	defer safety.Stop()

	select {
	case r := <-results:
		m.finish(h, r.user, r.err)
	case <-safety.C:
		m.expire(h)
	case <-h.ctx.Done():
		// superseded by a newer login or a logout
	}
}

func (m *Manager) finish(h *resolution, user *core.UserProfile, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inflight != h {
		m.logger.Debug("Discarding stale profile result", log.FieldOperation, log.OpResolve)
		return
	}
	m.inflight = nil

	if err != nil {
		m.logger.Warn("Profile resolution failed, clearing session",
			log.FieldOperation, log.OpResolve,
			log.FieldError, err.Error())
		m.clearSessionLocked(h.ctx)
		return
	}

	m.state.User = user.Clone()
	m.state.Loading = false
	m.state.Revision++
	m.logger.Info("Profile resolved",
		log.FieldOperation, log.OpResolve,
		log.FieldUserID, user.ID)
	m.notifyLocked()
}

// expire ends loading when the safety timer fires first. Tokens stay as they
// are, unlike a failed resolution.
func (m *Manager) expire(h *resolution) {
	m.mu.Lock()
	if m.inflight != h {
		m.mu.Unlock()
		return
	}
	m.inflight = nil
	m.state.Loading = false
	m.notifyLocked()
	m.mu.Unlock()

	h.cancel()
	m.logger.Warn("Profile resolution timed out, keeping tokens",
		log.FieldOperation, log.OpResolve,
		log.FieldErrorType, log.ErrorTypeTimeout)
}

func (m *Manager) wait(ctx context.Context, h *resolution) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) snapshotLocked() State {
	s := m.state
	s.User = m.state.User.Clone()
	return s
}

func (m *Manager) notifyLocked() {
	snapshot := m.snapshotLocked()
	for ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}
