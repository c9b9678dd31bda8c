package member

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// Searcher streams every member matching filters, in filter order.
type Searcher interface {
	SearchAll(ctx context.Context, filters Filters, fn func(Member) error) error
}

// ExportService renders member listings as CSV or XLSX downloads. Rows are
// streamed from the store so large registries never sit in memory whole.
type ExportService struct {
	members Searcher
}

// NewExportService creates an export service.
func NewExportService(members Searcher) *ExportService {
	return &ExportService{members: members}
}

var exportHeader = []string{"Registration Date", "Name", "Email", "Phone", "Age", "Place"}

func exportRow(m Member) []string {
	return []string{
		m.RegistrationDate.Format("2006-01-02"),
		m.Name,
		m.Email,
		m.PhoneNumber,
		strconv.Itoa(m.Age),
		m.Place,
	}
}

// ExportCSV writes the filtered member list to w as CSV with a header row.
func (s *ExportService) ExportCSV(ctx context.Context, filters Filters, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("member: export csv header: %w", err)
	}
	if err := s.members.SearchAll(ctx, filters, func(m Member) error {
		return cw.Write(exportRow(m))
	}); err != nil {
		return fmt.Errorf("member: export csv: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("member: export csv flush: %w", err)
	}
	return nil
}

// ExportXLSX writes the filtered member list to w as a single-sheet workbook.
func (s *ExportService) ExportXLSX(ctx context.Context, filters Filters, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Members"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("member: export xlsx sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("member: export xlsx: %w", err)
	}

	header := make([]any, len(exportHeader))
	for i, h := range exportHeader {
		header[i] = h
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("member: export xlsx header: %w", err)
	}

	row := 2
	if err := s.members.SearchAll(ctx, filters, func(m Member) error {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		values := []any{
			m.RegistrationDate.Format("2006-01-02"),
			m.Name,
			m.Email,
			m.PhoneNumber,
			m.Age,
			m.Place,
		}
		if err := sw.SetRow(cell, values); err != nil {
			return err
		}
		row++
		return nil
	}); err != nil {
		return fmt.Errorf("member: export xlsx: %w", err)
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("member: export xlsx flush: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("member: export xlsx write: %w", err)
	}
	return nil
}
