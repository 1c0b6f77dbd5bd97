// Package export renders expenses as CSV and XLSX downloads. The CSV form
// round-trips: parsing an exported file yields the same expense tuples.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"kharcha/internal/core"
)

var csvHeader = []string{"amount", "purpose", "category", "date"}

// WriteCSV writes one row per expense under a fixed header.
func WriteCSV(w io.Writer, expenses []core.Expense) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, e := range expenses {
		record := []string{
			e.Amount.Decimal(),
			e.Purpose,
			e.Category,
			e.Date.String(),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// ReadCSV parses a file in the WriteCSV format back into expenses. IDs and
// owners are not part of the format and come back zero.
func ReadCSV(r io.Reader) ([]core.Expense, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(csvHeader)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, name := range csvHeader {
		if header[i] != name {
			return nil, fmt.Errorf("unexpected header column %q, want %q", header[i], name)
		}
	}

	var expenses []core.Expense
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}

		amount, err := core.ParseDecimalToCents(record[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		date, err := core.ParseDate(record[3])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		e := core.Expense{
			Amount:   core.Money{Cents: amount},
			Purpose:  record[1],
			Category: record[2],
			Date:     date,
		}
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		expenses = append(expenses, e)
	}

	return expenses, nil
}

const xlsxSheet = "Expenses"

// WriteXLSX writes an Excel workbook with the CSV columns plus the owner's
// name, for combined household exports. Names come from the names map; rows
// of deleted users fall back to a placeholder.
func WriteXLSX(w io.Writer, expenses []core.Expense, names map[int64]string) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(xlsxSheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{"User", "Amount", "Purpose", "Category", "Date"}
	for i, h := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(xlsxSheet, cell, h)
	}

	for idx, e := range expenses {
		row := idx + 2

		name, ok := names[e.UserID]
		if !ok {
			name = "Deleted user"
		}

		amount, _ := strconv.ParseFloat(e.Amount.Decimal(), 64)

		f.SetCellValue(xlsxSheet, fmt.Sprintf("A%d", row), name)
		f.SetCellValue(xlsxSheet, fmt.Sprintf("B%d", row), amount)
		f.SetCellValue(xlsxSheet, fmt.Sprintf("C%d", row), e.Purpose)
		f.SetCellValue(xlsxSheet, fmt.Sprintf("D%d", row), e.Category)
		f.SetCellValue(xlsxSheet, fmt.Sprintf("E%d", row), e.Date.String())
	}

	f.SetColWidth(xlsxSheet, "A", "A", 15)
	f.SetColWidth(xlsxSheet, "B", "B", 12)
	f.SetColWidth(xlsxSheet, "C", "C", 30)
	f.SetColWidth(xlsxSheet, "D", "D", 18)
	f.SetColWidth(xlsxSheet, "E", "E", 12)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
