// Package google backs the sync endpoint's tables with a Google Sheets
// spreadsheet: one sheet per table, one record per row.
//
// The spreadsheet is expected to exist with a header row on each sheet.
// Values are written RAW so rows read back exactly as stored.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"tally/internal/core"
	"tally/internal/tables"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	txSheet       string
	todoSheet     string

	mu       sync.Mutex
	sheetIDs map[string]int64
}

var _ tables.Tables = (*Client)(nil)

// New creates a Sheets-backed table store. Credentials come from the
// environment: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE,
// GOOGLE_APPLICATION_CREDENTIALS, or a user token minted by tally-authorize.
func New(ctx context.Context, spreadsheetID, txSheet, todoSheet string) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if strings.TrimSpace(txSheet) == "" || strings.TrimSpace(todoSheet) == "" {
		return nil, errors.New("missing sheet names")
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		txSheet:       txSheet,
		todoSheet:     todoSheet,
		sheetIDs:      make(map[string]int64),
	}, nil
}

// newSheetsService initializes a Sheets Service. Service account credentials
// take precedence; a user token minted by tally-authorize is the fallback.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))

	// Also check the standard Google Cloud environment variable
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		// No service account configured; fall back to a user token from
		// the tally-authorize flow.
		return newUserTokenService(ctx)
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "google sheets service created", "scope", gsheet.SpreadsheetsScope)
	return service, nil
}

func (c *Client) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	rng := fmt.Sprintf("%s!A2:F", c.txSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseTransactionRows(resp.Values), nil
}

// parseTransactionRows turns raw sheet rows into transactions, skipping rows
// that do not look like records (blanks, leftovers, manual edits gone wrong).
func parseTransactionRows(values [][]interface{}) []core.Transaction {
	var out []core.Transaction
	for _, row := range values {
		cols := toStrings(row)
		if len(cols) < 5 || cols[0] == "" {
			continue
		}
		date, err := core.ParseDate(cols[1])
		if err != nil || date.IsEmpty() {
			continue
		}
		cents, ok := parseAmountCents(cols[4])
		if !ok {
			continue
		}
		tx := core.Transaction{
			ID:       cols[0],
			Date:     date,
			Type:     core.TxType(cols[2]),
			Category: cols[3],
			Amount:   core.Money{Cents: cents},
		}
		if len(cols) >= 6 {
			tx.Note = cols[5]
		}
		out = append(out, tx)
	}
	return out
}

func (c *Client) AppendTransaction(ctx context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	row := []any{tx.ID, tx.Date.String(), string(tx.Type), tx.Category, tx.Amount.Decimal(), tx.Note}
	if err := c.appendRow(ctx, c.txSheet, "F", row); err != nil {
		return err
	}

	slog.InfoContext(ctx, "transaction saved to sheet",
		"id", tx.ID,
		"sheet", c.txSheet,
		"amount", tx.Amount.Decimal())
	return nil
}

func (c *Client) DeleteTransaction(ctx context.Context, id string) error {
	return c.deleteRowByID(ctx, c.txSheet, id, "transaction")
}

func (c *Client) ListTodos(ctx context.Context) ([]core.Todo, error) {
	rng := fmt.Sprintf("%s!A2:E", c.todoSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseTodoRows(resp.Values), nil
}

// parseTodoRows turns raw sheet rows into todos in row order.
func parseTodoRows(values [][]interface{}) []core.Todo {
	var out []core.Todo
	for _, row := range values {
		cols := toStrings(row)
		if len(cols) < 2 || cols[0] == "" {
			continue
		}
		td := core.Todo{ID: cols[0], Text: cols[1]}
		if len(cols) >= 3 {
			td.Done = parseDone(cols[2])
		}
		if len(cols) >= 4 && cols[3] != "" {
			if created, err := time.Parse(time.RFC3339, cols[3]); err == nil {
				td.CreatedAt = created
			}
		}
		if len(cols) >= 5 {
			if due, err := core.ParseDate(cols[4]); err == nil {
				td.Due = due
			}
		}
		out = append(out, td)
	}
	return out
}

func (c *Client) AppendTodo(ctx context.Context, td core.Todo) error {
	if err := td.Validate(); err != nil {
		return err
	}

	row := []any{td.ID, td.Text, formatDone(td.Done), formatCreated(td.CreatedAt), td.Due.String()}
	if err := c.appendRow(ctx, c.todoSheet, "E", row); err != nil {
		return err
	}

	slog.InfoContext(ctx, "todo saved to sheet", "id", td.ID, "sheet", c.todoSheet)
	return nil
}

func (c *Client) SetTodoDone(ctx context.Context, id string, done bool) error {
	rowIdx, err := c.findRowByID(ctx, c.todoSheet, id)
	if err != nil {
		return err
	}
	if rowIdx < 0 {
		return fmt.Errorf("todo %s: %w", id, core.ErrNotFound)
	}

	// Done lives in column C; sheet rows are 1-based with a header row.
	rng := fmt.Sprintf("%s!C%d", c.todoSheet, rowIdx+2)
	vr := &gsheet.ValueRange{Values: [][]any{{formatDone(done)}}}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

func (c *Client) DeleteTodo(ctx context.Context, id string) error {
	return c.deleteRowByID(ctx, c.todoSheet, id, "todo")
}

func (c *Client) ReplaceTodos(ctx context.Context, todos []core.Todo) error {
	for _, td := range todos {
		if err := td.Validate(); err != nil {
			return err
		}
	}

	clearRng := fmt.Sprintf("%s!A2:E", c.todoSheet)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", clearRng, err)
	}
	if len(todos) == 0 {
		return nil
	}

	values := make([][]any, 0, len(todos))
	for _, td := range todos {
		values = append(values, []any{td.ID, td.Text, formatDone(td.Done), formatCreated(td.CreatedAt), td.Due.String()})
	}
	rng := fmt.Sprintf("%s!A2:E%d", c.todoSheet, len(todos)+1)
	vr := &gsheet.ValueRange{Values: values}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write %s: %w", rng, err)
	}

	slog.InfoContext(ctx, "todos replaced in sheet", "sheet", c.todoSheet, "count", len(todos))
	return nil
}

// appendRow writes a row right after the last occupied one. lastCol is the
// letter of the final column in the sheet's layout.
func (c *Client) appendRow(ctx context.Context, sheet, lastCol string, row []any) error {
	rng := fmt.Sprintf("%s!A:A", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get sheet dimensions for %s: %w", sheet, err)
	}

	nextRow := len(resp.Values) + 1
	if nextRow < 2 {
		// Never write into the header row.
		nextRow = 2
	}

	dataRange := fmt.Sprintf("%s!A%d:%s%d", sheet, nextRow, lastCol, nextRow)
	vr := &gsheet.ValueRange{Values: [][]any{row}}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, dataRange, vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to update %s: %w", dataRange, err)
	}
	return nil
}

// findRowByID returns the 0-based data row index of the record with this id,
// or -1 when the sheet has no such row.
func (c *Client) findRowByID(ctx context.Context, sheet, id string) (int, error) {
	rng := fmt.Sprintf("%s!A2:A", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return -1, fmt.Errorf("read %s: %w", rng, err)
	}
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == id {
			return i, nil
		}
	}
	return -1, nil
}

func (c *Client) deleteRowByID(ctx context.Context, sheet, id, kind string) error {
	rowIdx, err := c.findRowByID(ctx, sheet, id)
	if err != nil {
		return err
	}
	if rowIdx < 0 {
		return fmt.Errorf("%s %s: %w", kind, id, core.ErrNotFound)
	}

	sheetID, err := c.sheetID(ctx, sheet)
	if err != nil {
		return err
	}

	// DeleteDimension uses 0-based row indexes; the header occupies index 0.
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(rowIdx + 1),
					EndIndex:   int64(rowIdx + 2),
				},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete row in %s: %w", sheet, err)
	}

	slog.InfoContext(ctx, "row deleted from sheet", "sheet", sheet, "id", id)
	return nil
}

// sheetID resolves a sheet title to its numeric id, caching the result.
func (c *Client) sheetID(ctx context.Context, title string) (int64, error) {
	c.mu.Lock()
	if id, ok := c.sheetIDs[title]; ok {
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	resp, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("get spreadsheet: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sh := range resp.Sheets {
		if sh.Properties != nil {
			c.sheetIDs[sh.Properties.Title] = sh.Properties.SheetId
		}
	}
	id, ok := c.sheetIDs[title]
	if !ok {
		return 0, fmt.Errorf("sheet %q not found in spreadsheet", title)
	}
	return id, nil
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func parseAmountCents(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	// Normalize decimal comma
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	cents := int64((f * 100.0) + 0.5)
	return cents, true
}

func parseDone(s string) bool {
	return strings.EqualFold(s, "true") || s == "1"
}

func formatDone(done bool) string {
	if done {
		return "TRUE"
	}
	return "FALSE"
}

func formatCreated(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
