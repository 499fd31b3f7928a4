// Package google exports dashboard reports to a Google Sheets spreadsheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"finos/internal/core"
	"finos/internal/sheets"
)

var _ sheets.DashboardExporter = (*Client)(nil)

// Config selects the spreadsheet and the service account used to write it.
type Config struct {
	SpreadsheetID string
	// SheetName is the tab the report is written to (default "Finos Export").
	SheetName string
	// CredentialsJSON takes precedence over CredentialsFile.
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	conv          *core.Converter
}

// New creates a client authenticated with the configured service account.
func New(ctx context.Context, cfg Config, conv *core.Converter) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}

	creds, err := credentials(cfg)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets exporter ready", "spreadsheet_id", cfg.SpreadsheetID)
	return NewWithService(svc, cfg.SpreadsheetID, cfg.SheetName, conv), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetName string, conv *core.Converter) *Client {
	if strings.TrimSpace(sheetName) == "" {
		sheetName = "Finos Export"
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		conv:          conv,
	}
}

func credentials(cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.CredentialsJSON)
	file := strings.TrimSpace(cfg.CredentialsFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// Export replaces the content of the export sheet with the report and
// returns the updated range.
func (c *Client) Export(ctx context.Context, r sheets.Report) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	clearRange := fmt.Sprintf("%s!A:Z", c.sheetName)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear sheet %s: %w", c.sheetName, err)
	}

	vr := &gsheet.ValueRange{Values: sheets.Rows(r, c.conv)}
	resp, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, c.sheetName+"!A1", vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("write sheet %s: %w", c.sheetName, err)
	}

	slog.InfoContext(ctx, "Dashboard exported",
		"account", r.Account,
		"range", resp.UpdatedRange,
		"rows", resp.UpdatedRows)
	return resp.UpdatedRange, nil
}
