// Package export renders the registry as an XLSX workbook.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/rxverify/internal/entity"
)

// SheetName is the worksheet holding registry rows.
const SheetName = "Registry"

// EntryLister is satisfied by every registry backend.
type EntryLister interface {
	Entries(ctx context.Context) ([]entity.RegistryEntry, error)
}

// Service is a small façade that turns registry entries into XLSX bytes.
type Service struct {
	registry EntryLister
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(registry EntryLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{registry: registry, logger: logger, now: time.Now}
}

// ExportRegistryXLSX returns a workbook of entries whose prescription date
// falls in the window, oldest registration first.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> every entry.
func (s *Service) ExportRegistryXLSX(ctx context.Context, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	var fromDate, toDate *time.Time
	if from != nil {
		f := dateOnly(*from)
		fromDate = &f
	}
	if to != nil {
		t := dateOnly(*to)
		toDate = &t
	}
	if fromDate != nil && toDate == nil {
		t := dateOnly(s.now())
		toDate = &t
	}

	all, err := s.registry.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list registry: %w", err)
	}
	entries := make([]entity.RegistryEntry, 0, len(all))
	for _, e := range all {
		d := dateOnly(e.PrescriptionDate)
		if fromDate != nil && d.Before(*fromDate) {
			continue
		}
		if toDate != nil && d.After(*toDate) {
			continue
		}
		entries = append(entries, e)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	// rename the default sheet rather than leaving an empty "Sheet1" behind
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, err
	}

	headers := []string{
		"Fingerprint",
		"Doctor",
		"Patient",
		"Prescription Date",
		"Registered At",
		"Valid",
		"Entry ID",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetName, cell, h)
	}

	for i, e := range entries {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(SheetName, cell, v)
		}
		write(1, e.Fingerprint)
		write(2, e.DoctorName)
		write(3, e.PatientName)
		write(4, e.PrescriptionDate.Format("2006-01-02"))
		write(5, e.RegisteredAt.UTC().Format(time.RFC3339))
		write(6, e.Valid)
		write(7, e.ID.String())
	}

	_ = f.SetColWidth(SheetName, "A", "A", 68) // fingerprint
	_ = f.SetColWidth(SheetName, "B", "C", 28)
	_ = f.SetColWidth(SheetName, "D", "D", 16)
	_ = f.SetColWidth(SheetName, "E", "E", 24)
	_ = f.SetColWidth(SheetName, "G", "G", 38)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("registry export written",
		"rows", len(entries),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
