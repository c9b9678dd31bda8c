package member

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

type fakeSearcher struct {
	members []Member
}

func (f *fakeSearcher) SearchAll(ctx context.Context, filters Filters, fn func(Member) error) error {
	for _, m := range f.members {
		if err := fn(m); err != nil {
			return err
		}
	}
	return nil
}

func exportFixture() []Member {
	return []Member{
		{
			Name:             "Alice Doe",
			Email:            "alice@example.com",
			PhoneNumber:      "1112223333",
			Age:              20,
			Place:            "Pune",
			RegistrationDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			Name:             "Bob Ray",
			Email:            "bob@example.com",
			PhoneNumber:      "9627713570",
			Age:              34,
			Place:            "Mumbai",
			RegistrationDate: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestExportCSV(t *testing.T) {
	svc := NewExportService(&fakeSearcher{members: exportFixture()})

	var buf bytes.Buffer
	if err := svc.ExportCSV(context.Background(), Filters{}, &buf); err != nil {
		t.Fatalf("export csv: unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "Registration Date,Name,Email,Phone,Age,Place" {
		t.Errorf("unexpected header: %q", lines[0])
	}
	if lines[1] != "2024-01-15,Alice Doe,alice@example.com,1112223333,20,Pune" {
		t.Errorf("unexpected first row: %q", lines[1])
	}
	if lines[2] != "2024-03-02,Bob Ray,bob@example.com,9627713570,34,Mumbai" {
		t.Errorf("unexpected second row: %q", lines[2])
	}
}

func TestExportXLSX(t *testing.T) {
	svc := NewExportService(&fakeSearcher{members: exportFixture()})

	var buf bytes.Buffer
	if err := svc.ExportXLSX(context.Background(), Filters{}, &buf); err != nil {
		t.Fatalf("export xlsx: unexpected error: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Members")
	if err != nil {
		t.Fatalf("read sheet: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][1] != "Name" || rows[0][4] != "Age" {
		t.Errorf("unexpected header row: %v", rows[0])
	}
	if rows[1][2] != "alice@example.com" {
		t.Errorf("unexpected first row: %v", rows[1])
	}
	if rows[2][4] != "34" {
		t.Errorf("unexpected age cell: %v", rows[2])
	}
}
