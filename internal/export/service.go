// Package export renders an object's audit trail as a downloadable
// spreadsheet or CSV.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/auditq/internal/domain"
	"github.com/rpattn/auditq/internal/repository"
)

const sheetName = "Audit Trail"

var columns = []string{"Timestamp", "Entry ID", "Action", "Actor", "Changes"}

// Service pages through an object's trail and writes it in the requested
// format.
type Service struct {
	entries  repository.LogEntryRepository
	pageSize int
}

// Option customizes the export service.
type Option func(*Service)

// WithPageSize sets how many entries are fetched per repository query.
func WithPageSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// NewService wires an export service over a log entry repository.
func NewService(entries repository.LogEntryRepository, opts ...Option) *Service {
	service := &Service{
		entries:  entries,
		pageSize: 500,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// WriteXLSX streams ref's full trail, newest first, as an XLSX workbook.
func (s *Service) WriteXLSX(ctx context.Context, ref domain.ObjectRef, w io.Writer) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to remove default sheet: %w", err)
	}

	header := make([]any, len(columns))
	for i, column := range columns {
		header[i] = column
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}

	rowIndex := 2
	err = s.eachEntry(ctx, ref, func(entry domain.LogEntry) error {
		row := entryRow(entry)
		values := make([]any, len(row))
		for i, value := range row {
			values[i] = value
		}
		cell, err := excelize.CoordinatesToCellName(1, rowIndex)
		if err != nil {
			return fmt.Errorf("failed to compute cell name: %w", err)
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", rowIndex, err)
		}
		rowIndex++
		return nil
	})
	if err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// WriteCSV streams ref's full trail, newest first, as CSV.
func (s *Service) WriteCSV(ctx context.Context, ref domain.ObjectRef, w io.Writer) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(columns); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}

	err := s.eachEntry(ctx, ref, func(entry domain.LogEntry) error {
		if err := writer.Write(entryRow(entry)); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

// FileName suggests a download name for ref's trail in the given format.
func FileName(ref domain.ObjectRef, format string) string {
	return fmt.Sprintf("audit-%s-%s.%s", ref.ObjectType, ref.ObjectID, format)
}

func (s *Service) eachEntry(ctx context.Context, ref domain.ObjectRef, fn func(domain.LogEntry) error) error {
	offset := 0
	for {
		page, err := s.entries.ListForObject(ctx, ref, s.pageSize, offset)
		if err != nil {
			return fmt.Errorf("failed to page log entries at offset %d: %w", offset, err)
		}
		for _, entry := range page {
			if err := fn(entry); err != nil {
				return err
			}
		}
		if len(page) < s.pageSize {
			return nil
		}
		offset += s.pageSize
	}
}

func entryRow(entry domain.LogEntry) []string {
	return []string{
		entry.Timestamp.Format(time.RFC3339Nano),
		entry.ID.String(),
		entry.Action,
		entry.Actor,
		string(entry.Changes),
	}
}
