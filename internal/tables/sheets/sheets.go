// Package sheets reads the reference tables from a Google Sheets spreadsheet
// instead of local workbook files.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

type Config struct {
	SpreadsheetID   string
	EmployeesRange  string
	ToolsRange      string
	CredentialsJSON string
	CredentialsFile string
}

type Source struct {
	values         *sheets.SpreadsheetsValuesService
	spreadsheetID  string
	employeesRange string
	toolsRange     string
}

func New(ctx context.Context, cfg Config) (*Source, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("spreadsheet id is required")
	}

	credentialsJSON := []byte(cfg.CredentialsJSON)
	if len(credentialsJSON) == 0 {
		if cfg.CredentialsFile == "" {
			return nil, errors.New("google credentials are required")
		}
		slog.Info("using google credentials file", "path", cfg.CredentialsFile)
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read google credentials: %w", err)
		}
		credentialsJSON = b
	}

	credentials, err := google.CredentialsFromJSON(ctx, credentialsJSON, sheets.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("load google credentials: %w", err)
	}

	client := oauth2.NewClient(ctx, credentials.TokenSource)
	service, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}

	return &Source{
		values:         service.Spreadsheets.Values,
		spreadsheetID:  cfg.SpreadsheetID,
		employeesRange: cfg.EmployeesRange,
		toolsRange:     cfg.ToolsRange,
	}, nil
}

func (s *Source) EmployeeRows(ctx context.Context) ([][]string, error) {
	return s.read(ctx, s.employeesRange)
}

func (s *Source) ToolRows(ctx context.Context) ([][]string, error) {
	return s.read(ctx, s.toolsRange)
}

func (s *Source) read(ctx context.Context, readRange string) ([][]string, error) {
	resp, err := s.values.Get(s.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read range %s: %w", readRange, err)
	}
	if len(resp.Values) == 0 {
		return nil, fmt.Errorf("range %s is empty", readRange)
	}
	return toRows(resp.Values), nil
}

func toRows(values [][]interface{}) [][]string {
	rows := make([][]string, 0, len(values))
	for _, raw := range values {
		row := make([]string, len(raw))
		for i, cell := range raw {
			row[i] = toString(cell)
		}
		rows = append(rows, row)
	}
	return rows
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}
