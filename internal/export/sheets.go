// Package export writes cached finance data to Google Sheets.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"finboard/internal/core"
	"finboard/internal/log"
)

// Exporter is implemented by export targets.
type Exporter interface {
	ExportTransactions(ctx context.Context, txs []core.Transaction) (string, error)
	ExportSummary(ctx context.Context, series []core.MonthTotals) (string, error)
}

var _ Exporter = (*SheetsExporter)(nil)

type Config struct {
	SpreadsheetID   string
	SheetName       string
	SummarySheet    string
	CredentialsJSON string
	CredentialsFile string
}

var transactionHeader = []any{"Date", "Name", "Category", "Type", "Amount", "Status"}

type SheetsExporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	summarySheet  string
	logger        *log.Logger
}

// NewSheetsExporter creates an exporter authenticated with the service
// account in cfg. Extra client options are appended after the credentials.
func NewSheetsExporter(ctx context.Context, cfg Config, logger *log.Logger, opts ...goption.ClientOption) (*SheetsExporter, error) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentExport)

	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet ID")
	}
	sheetName := strings.TrimSpace(cfg.SheetName)
	if sheetName == "" {
		sheetName = "Transactions"
	}
	summarySheet := strings.TrimSpace(cfg.SummarySheet)
	if summarySheet == "" {
		summarySheet = "Summary"
	}

	credentialsJSON, err := readCredentials(cfg)
	if err != nil {
		return nil, err
	}

	var clientOpts []goption.ClientOption
	if credentialsJSON != nil {
		logger.DebugContext(ctx, "Using service account credentials", "credentials_size", len(credentialsJSON))
		clientOpts = append(clientOpts,
			goption.WithCredentialsJSON(credentialsJSON),
			goption.WithScopes(gsheet.SpreadsheetsScope))
	} else if len(opts) == 0 {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := gsheet.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &SheetsExporter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		summarySheet:  summarySheet,
		logger:        logger,
	}, nil
}

func readCredentials(cfg Config) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []byte(cfg.CredentialsJSON), nil
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, nil
	}
}

// ExportTransactions replaces the transactions sheet with a header row and
// one row per transaction. It returns the updated range.
func (e *SheetsExporter) ExportTransactions(ctx context.Context, txs []core.Transaction) (string, error) {
	clearRange := fmt.Sprintf("%s!A:F", e.sheetName)
	if _, err := e.svc.Spreadsheets.Values.Clear(e.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear sheet %s: %w", e.sheetName, err)
	}

	rows := make([][]any, 0, len(txs)+1)
	rows = append(rows, transactionHeader)
	for _, tx := range txs {
		rows = append(rows, transactionRow(tx))
	}

	rng := fmt.Sprintf("%s!A1", e.sheetName)
	resp, err := e.svc.Spreadsheets.Values.Update(e.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update sheet %s: %w", e.sheetName, err)
	}

	e.logger.InfoContext(ctx, "Exported transactions",
		log.FieldOperation, log.OpExport,
		log.FieldTxCount, len(txs),
		"range", resp.UpdatedRange)
	return resp.UpdatedRange, nil
}

// ExportSummary appends one row per month to the summary sheet.
func (e *SheetsExporter) ExportSummary(ctx context.Context, series []core.MonthTotals) (string, error) {
	if len(series) == 0 {
		return "", nil
	}
	rows := make([][]any, 0, len(series))
	for _, m := range series {
		rows = append(rows, []any{
			fmt.Sprintf("%04d-%02d", m.Year, int(m.Month)),
			m.Income.Float64(),
			m.Expense.Float64(),
			(m.Income - m.Expense).Float64(),
		})
	}

	rng := fmt.Sprintf("%s!A:D", e.summarySheet)
	resp, err := e.svc.Spreadsheets.Values.Append(e.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", e.summarySheet, err)
	}

	var updated string
	if resp.Updates != nil {
		updated = resp.Updates.UpdatedRange
	}
	e.logger.InfoContext(ctx, "Exported monthly summary",
		log.FieldOperation, log.OpExport,
		"months", len(series),
		"range", updated)
	return updated, nil
}

func transactionRow(tx core.Transaction) []any {
	return []any{tx.Date, tx.Name, tx.Category, string(tx.Type), tx.Amount.Float64(), tx.Status}
}
