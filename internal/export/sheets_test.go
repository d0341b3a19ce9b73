package export

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"

	"finboard/internal/core"
)

type recordedCall struct {
	method string
	path   string
	query  string
	values [][]any
}

type fakeSheets struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (f *fakeSheets) handler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Values [][]any `json:"values"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, values: body.Values})
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, ":clear"):
		_, _ = w.Write([]byte(`{"spreadsheetId":"sheet-1","clearedRange":"Transactions!A1:F10"}`))
	case strings.HasSuffix(r.URL.Path, ":append"):
		_, _ = w.Write([]byte(`{"spreadsheetId":"sheet-1","updates":{"updatedRange":"Summary!A2:D3","updatedRows":2}}`))
	case r.Method == http.MethodPut:
		_, _ = w.Write([]byte(`{"spreadsheetId":"sheet-1","updatedRange":"Transactions!A1:F3","updatedRows":3}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestExporter(t *testing.T) (*SheetsExporter, *fakeSheets) {
	t.Helper()
	fake := &fakeSheets{}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	t.Cleanup(srv.Close)

	exp, err := NewSheetsExporter(context.Background(), Config{SpreadsheetID: "sheet-1"}, nil,
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return exp, fake
}

func TestNewSheetsExporter_Validation(t *testing.T) {
	_, err := NewSheetsExporter(context.Background(), Config{}, nil)
	assert.ErrorContains(t, err, "missing spreadsheet ID")

	_, err = NewSheetsExporter(context.Background(), Config{SpreadsheetID: "x"}, nil)
	assert.ErrorContains(t, err, "missing service account credentials")

	_, err = NewSheetsExporter(context.Background(), Config{SpreadsheetID: "x", CredentialsFile: "/non/existent.json"}, nil)
	assert.ErrorContains(t, err, "read service account file")
}

func TestExportTransactions(t *testing.T) {
	exp, fake := newTestExporter(t)

	txs := []core.Transaction{
		{ID: 1, Amount: 1250, Type: core.Expense, Category: "Food", Date: "2025-03-02", Name: "Lunch"},
		{ID: 2, Amount: 100000, Type: core.Income, Category: "Salary", Date: "2025-03-01", Name: "Pay", Status: "done"},
	}

	rng, err := exp.ExportTransactions(context.Background(), txs)
	require.NoError(t, err)
	assert.Equal(t, "Transactions!A1:F3", rng)

	require.Len(t, fake.calls, 2)
	assert.Equal(t, http.MethodPost, fake.calls[0].method)
	assert.True(t, strings.HasSuffix(fake.calls[0].path, ":clear"))

	update := fake.calls[1]
	assert.Equal(t, http.MethodPut, update.method)
	assert.Contains(t, update.path, "/v4/spreadsheets/sheet-1/values/")
	assert.Contains(t, update.query, "valueInputOption=RAW")
	require.Len(t, update.values, 3)
	assert.Equal(t, "Date", update.values[0][0])
	assert.Equal(t, "Lunch", update.values[1][1])
	assert.Equal(t, 12.5, update.values[1][4])
	assert.Equal(t, "income", update.values[2][3])
}

func TestExportSummary(t *testing.T) {
	exp, fake := newTestExporter(t)

	series := []core.MonthTotals{
		{Year: 2025, Month: time.February, Income: 10000, Expense: 4000},
		{Year: 2025, Month: time.March, Income: 30000, Expense: 7500},
	}

	rng, err := exp.ExportSummary(context.Background(), series)
	require.NoError(t, err)
	assert.Equal(t, "Summary!A2:D3", rng)

	require.Len(t, fake.calls, 1)
	call := fake.calls[0]
	assert.True(t, strings.HasSuffix(call.path, ":append"))
	assert.Contains(t, call.query, "insertDataOption=INSERT_ROWS")
	require.Len(t, call.values, 2)
	assert.Equal(t, []any{"2025-02", 100.0, 40.0, 60.0}, call.values[0])
}

func TestExportSummary_EmptySeries(t *testing.T) {
	exp, fake := newTestExporter(t)

	rng, err := exp.ExportSummary(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, rng)
	assert.Empty(t, fake.calls)
}
