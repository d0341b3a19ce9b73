package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finboard/internal/amqp"
	"finboard/internal/config"
	"finboard/internal/core"
	"finboard/internal/log"
)

const validToken = "access-1"

// fakeAPI is a minimal finance API: one user, one wallet, mutable
// transactions.
type fakeAPI struct {
	mu           sync.Mutex
	transactions []core.Transaction
	profileCalls int
}

func (f *fakeAPI) handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.URL.Path == "/api/auth/login/" {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Email != "ada@example.com" || body.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"No active account found with the given credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access":"` + validToken + `","refresh":"refresh-1"}`))
		return
	}

	if r.Header.Get("Authorization") != "Bearer "+validToken {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Given token not valid for any token type"}`))
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == "/api/auth/profile/":
		f.profileCalls++
		_, _ = w.Write([]byte(`{"id":1,"email":"ada@example.com","name":"Ada","username":"ada","currency":"XOF","language":"fr","monthly_income":100000,"income_frequency":"monthly"}`))
	case r.URL.Path == "/api/wallets/wallets/":
		_, _ = w.Write([]byte(`[{"id":1,"name":"Cash","balance":"1500.00","currency":"XOF","type":"cash"},{"id":2,"name":"Bank","balance":"500.50","currency":"XOF","type":"checking"}]`))
	case r.URL.Path == "/api/transactions/transactions/" && r.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode(map[string]any{"count": len(f.transactions), "results": f.transactions})
	case r.URL.Path == "/api/transactions/transactions/" && r.Method == http.MethodPost:
		var tx core.Transaction
		if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		tx.ID = int64(len(f.transactions) + 1)
		f.transactions = append(f.transactions, tx)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(tx)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeAPI) profileRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profileCalls
}

type fakePublisher struct {
	mu      sync.Mutex
	signals []*amqp.RefreshSignal
}

func (p *fakePublisher) PublishRefresh(_ context.Context, sig *amqp.RefreshSignal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals = append(p.signals, sig)
	return nil
}

type fakeExporter struct {
	txs    []core.Transaction
	series []core.MonthTotals
}

func (e *fakeExporter) ExportTransactions(_ context.Context, txs []core.Transaction) (string, error) {
	e.txs = txs
	return "Transactions!A1:F3", nil
}

func (e *fakeExporter) ExportSummary(_ context.Context, series []core.MonthTotals) (string, error) {
	e.series = series
	return "Summary!A2:D7", nil
}

type harness struct {
	t    *testing.T
	api  *fakeAPI
	cfg  *config.Config
	opts Options
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	now := time.Now()
	api := &fakeAPI{transactions: []core.Transaction{
		{ID: 1, Amount: 10000000, Type: core.Income, Category: "Salary", Date: now.Format(core.DateLayout), Name: "Salary"},
		{ID: 2, Amount: 7000000, Type: core.Expense, Category: "Rent", Date: now.Format(core.DateLayout), Name: "Rent"},
	}}
	srv := httptest.NewServer(http.HandlerFunc(api.handler))
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		APIURL:          srv.URL + "/api",
		HTTPTimeout:     5 * time.Second,
		ProfileTimeout:  2 * time.Second,
		SafetyTimeout:   3 * time.Second,
		TokenDBPath:     filepath.Join(t.TempDir(), "finboard.db"),
		RefreshSchedule: "@every 1h",
		SeriesMonths:    6,
		LogLevel:        "info",
	}
	return &harness{t: t, api: api, cfg: cfg, opts: Options{Config: cfg, Logger: log.Discard()}}
}

func (h *harness) run(args ...string) (string, error) {
	return h.runWithContext(context.Background(), args...)
}

func (h *harness) runWithContext(ctx context.Context, args ...string) (string, error) {
	h.t.Helper()
	cmd := NewRootCmd(h.opts)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func (h *harness) login() {
	h.t.Helper()
	_, err := h.run("login", "--access", validToken, "--refresh", "refresh-1")
	require.NoError(h.t, err)
}

func TestLoginWithTokens(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("login", "--access", validToken, "--refresh", "refresh-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as Ada")
	assert.Equal(t, 1, h.api.profileRequests())

	// the session survives into the next invocation
	out, err = h.run("whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Email:    ada@example.com")
	assert.Contains(t, out, "Income:   100000.00 XOF (monthly)")
}

func TestLoginWithPassword(t *testing.T) {
	h := newHarness(t)
	h.opts.Stdin = strings.NewReader("secret\n")

	out, err := h.run("login", "--email", "ada@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as Ada")

	h.opts.Stdin = strings.NewReader("wrong\n")
	_, err = h.run("login", "--email", "ada@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No active account found")
}

func TestLoginWithRejectedToken(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("login", "--access", "bogus", "--refresh", "r")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token was rejected")

	_, err = h.run("whoami")
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestLoginRequiresEmailOrTokens(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("login")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--email is required")
}

func TestCommandsRequireLogin(t *testing.T) {
	for _, args := range [][]string{{"whoami"}, {"wallets"}, {"transactions"}, {"stats"}} {
		t.Run(args[0], func(t *testing.T) {
			h := newHarness(t)
			_, err := h.run(args...)
			assert.ErrorIs(t, err, ErrNotLoggedIn)
		})
	}
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	h.login()

	out, err := h.run("logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")

	_, err = h.run("whoami")
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	// logging out twice is fine
	_, err = h.run("logout")
	assert.NoError(t, err)
}

func TestWallets(t *testing.T) {
	h := newHarness(t)
	h.login()

	out, err := h.run("wallets")
	require.NoError(t, err)
	assert.Contains(t, out, "Cash")
	assert.Contains(t, out, "1500.00")
	assert.Contains(t, out, "Total XOF: 2000.50")
}

func TestTransactions(t *testing.T) {
	h := newHarness(t)
	h.login()

	out, err := h.run("transactions", "--type", "expense")
	require.NoError(t, err)
	assert.Contains(t, out, "Rent")
	assert.NotContains(t, out, "Salary")

	_, err = h.run("transactions", "--type", "gift")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --type")
}

func TestStats(t *testing.T) {
	h := newHarness(t)
	h.login()

	out, err := h.run("stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Income:  100000.00 XOF")
	assert.Contains(t, out, "Expense: 70000.00 XOF")
	assert.Contains(t, out, "Budget used: 70% (alert)")
	assert.Contains(t, out, "Rent")
	assert.Contains(t, out, "Last 6 months:")

	_, err = h.run("stats", "--month", "March")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected YYYY-MM")
}

func TestAddTransactionRefreshesAndPublishes(t *testing.T) {
	h := newHarness(t)
	pub := &fakePublisher{}
	h.opts.Publisher = pub
	h.login()

	out, err := h.run("add", "transaction",
		"--type", "expense", "--amount", "2500,50", "--category", "Food", "--name", "Lunch", "--date", "2025-03-02")
	require.NoError(t, err)
	assert.Contains(t, out, "Recorded expense 2500.50 on 2025-03-02 (Lunch)")

	require.Len(t, pub.signals, 1)
	assert.Equal(t, amqp.ResourceTransactions, pub.signals[0].Resource)
	assert.Equal(t, int64(1), pub.signals[0].UserID)

	out, err = h.run("transactions")
	require.NoError(t, err)
	assert.Contains(t, out, "Lunch")
}

func TestAddTransactionValidatesLocally(t *testing.T) {
	h := newHarness(t)
	h.login()

	_, err := h.run("add", "transaction", "--amount", "10", "--name", "Lunch")
	assert.ErrorIs(t, err, core.ErrEmptyCategory)

	_, err = h.run("add", "transaction", "--amount", "abc", "--name", "Lunch", "--category", "Food")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --amount")
}

func TestExport(t *testing.T) {
	h := newHarness(t)
	exp := &fakeExporter{}
	h.opts.Exporter = exp
	h.login()

	out, err := h.run("export")
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 2 transactions to Transactions!A1:F3")
	assert.Contains(t, out, "Exported 6 months")
	assert.Len(t, exp.txs, 2)
	assert.Len(t, exp.series, 6)
}

func TestExportNotConfigured(t *testing.T) {
	h := newHarness(t)
	h.login()

	_, err := h.run("export")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export is not configured")
}

func TestWatchStopsWithContext(t *testing.T) {
	h := newHarness(t)
	h.login()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	out, err := h.runWithContext(ctx, "watch")
	require.NoError(t, err)
	assert.Contains(t, out, "Watching for changes (schedule @every 1h)")
	assert.Contains(t, out, "Stopped with 2 wallets and 2 transactions cached.")
}

func TestWatchRejectsBadSchedule(t *testing.T) {
	h := newHarness(t)
	h.login()

	_, err := h.run("watch", "--schedule", "whenever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid refresh schedule")
}

func TestInvalidConfig(t *testing.T) {
	h := newHarness(t)
	h.cfg.SeriesMonths = 0

	_, err := h.run("whoami")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid series months")
}
