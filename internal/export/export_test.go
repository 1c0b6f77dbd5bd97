package export

import (
	"bytes"
	"strings"
	"testing"

	"kharcha/internal/core"

	"github.com/xuri/excelize/v2"
)

func sampleExpenses() []core.Expense {
	return []core.Expense{
		{
			ID: 1, UserID: 1,
			Amount:   core.Money{Cents: 8050},
			Purpose:  "weekly groceries, market",
			Category: "Food & Dining",
			Date:     core.NewDate(2025, 5, 1),
		},
		{
			ID: 2, UserID: 2,
			Amount:   core.Money{Cents: 199},
			Purpose:  `snack "on the go"`,
			Category: "Transportation",
			Date:     core.NewDate(2025, 5, 3),
		},
	}
}

func TestCSVRoundTrip(t *testing.T) {
	expenses := sampleExpenses()

	var buf bytes.Buffer
	if err := WriteCSV(&buf, expenses); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	parsed, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}

	if len(parsed) != len(expenses) {
		t.Fatalf("parsed %d expenses, want %d", len(parsed), len(expenses))
	}
	for i, e := range expenses {
		got := parsed[i]
		if got.Amount != e.Amount {
			t.Errorf("row %d: amount = %v, want %v", i, got.Amount, e.Amount)
		}
		if got.Purpose != e.Purpose {
			t.Errorf("row %d: purpose = %q, want %q", i, got.Purpose, e.Purpose)
		}
		if got.Category != e.Category {
			t.Errorf("row %d: category = %q, want %q", i, got.Category, e.Category)
		}
		if got.Date.String() != e.Date.String() {
			t.Errorf("row %d: date = %s, want %s", i, got.Date, e.Date)
		}
	}
}

func TestWriteCSVHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, nil); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "amount,purpose,category,date" {
		t.Errorf("empty export = %q, want header only", got)
	}
}

func TestReadCSVRejectsBadData(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"wrong header", "a,b,c,d\n"},
		{"bad amount", "amount,purpose,category,date\nabc,lunch,Food & Dining,2025-05-01\n"},
		{"bad date", "amount,purpose,category,date\n10.00,lunch,Food & Dining,yesterday\n"},
		{"unknown category", "amount,purpose,category,date\n10.00,lunch,Yachts,2025-05-01\n"},
		{"negative amount", "amount,purpose,category,date\n-10.00,lunch,Food & Dining,2025-05-01\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadCSV(strings.NewReader(tt.in)); err == nil {
				t.Errorf("ReadCSV() accepted %q", tt.in)
			}
		})
	}
}

func TestWriteXLSX(t *testing.T) {
	names := map[int64]string{1: "Alice"}

	var buf bytes.Buffer
	if err := WriteXLSX(&buf, sampleExpenses(), names); err != nil {
		t.Fatalf("WriteXLSX() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(xlsxSheet)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}

	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	if rows[1][0] != "Alice" {
		t.Errorf("owner cell = %q, want Alice", rows[1][0])
	}
	// UserID 2 has no name entry, rows survive with a placeholder.
	if rows[2][0] != "Deleted user" {
		t.Errorf("owner cell = %q, want placeholder", rows[2][0])
	}
	if rows[1][3] != "Food & Dining" {
		t.Errorf("category cell = %q", rows[1][3])
	}
}
