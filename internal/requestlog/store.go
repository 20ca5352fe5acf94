// Package requestlog persists the request log as a single-sheet workbook.
// Every save overwrites the file with the full log.
package requestlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/phillip-england/toolform/internal/intake"
	"github.com/phillip-england/toolform/internal/tables"
	"github.com/xuri/excelize/v2"
)

const (
	SheetName   = "Requests"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type Store struct {
	path   string
	backup bool
	mu     sync.Mutex
}

func NewStore(path string, backup bool) *Store {
	return &Store{path: path, backup: backup}
}

func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted log. A missing file is an empty log.
func (s *Store) Load(_ context.Context) ([]intake.RequestRecord, error) {
	rows, err := tables.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []intake.RequestRecord{}, nil
		}
		return []intake.RequestRecord{}, err
	}
	records, err := tables.ParseRequestLog(rows)
	if err != nil {
		return []intake.RequestRecord{}, err
	}
	return records, nil
}

// Save replaces the persisted log with records. Writes are serialized so
// concurrent sessions never interleave partial files; the last writer wins.
func (s *Store) Save(ctx context.Context, records []intake.RequestRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
	}
	if s.backup {
		if err := writeBackup(s.path, backupPath(s.path)); err != nil {
			slog.Warn("request log backup failed", "path", backupPath(s.path), "error", err)
		}
	}

	tmpPath := s.path + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temporary log: %w", err)
	}
	if err := WriteWorkbook(file, records); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write request log: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temporary log: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("install request log: %w", err)
	}
	return nil
}

// WriteWorkbook serializes records as an xlsx workbook with a header row.
func WriteWorkbook(w io.Writer, records []intake.RequestRecord) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}

	header := make([]interface{}, len(tables.RequestColumns))
	for i, col := range tables.RequestColumns {
		header[i] = col
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return err
	}

	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			rec.EmployeeNumber,
			rec.Name,
			rec.Designation,
			rec.Cluster,
			rec.AOC,
			rec.ToolName,
			rec.Quantity,
			rec.Timestamp,
			rec.Status,
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return err
		}
	}

	_, err := f.WriteTo(w)
	return err
}
