// Package sheet wraps xlsx workbook I/O behind a tab-and-rows model. The
// legacy reader and the exporters work entirely in terms of Sheet values;
// only this package touches the spreadsheet library.
package sheet

import (
	"bytes"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// Sheet is one workbook tab: a name and its rows as strings. Row zero is the
// header for tabular tabs; transposed tabs carry their own conventions.
type Sheet struct {
	Name string
	Rows [][]string
}

// Header returns the first row, or nil for an empty sheet.
func (s Sheet) Header() []string {
	if len(s.Rows) == 0 {
		return nil
	}
	return s.Rows[0]
}

// Workbook is an ordered collection of sheets.
type Workbook struct {
	Sheets []Sheet
}

// TabNames returns the sheet names in workbook order.
func (w Workbook) TabNames() []string {
	names := make([]string, len(w.Sheets))
	for i, s := range w.Sheets {
		names[i] = s.Name
	}
	return names
}

// Find returns the sheet with the given name.
func (w Workbook) Find(name string) (Sheet, bool) {
	for _, s := range w.Sheets {
		if s.Name == name {
			return s, true
		}
	}
	return Sheet{}, false
}

// Open reads a workbook from disk.
func Open(path string) (Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return Workbook{}, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return fromFile(f)
}

// Read reads a workbook from a reader.
func Read(r io.Reader) (Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Workbook{}, fmt.Errorf("read workbook: %w", err)
	}
	defer func() { _ = f.Close() }()
	return fromFile(f)
}

func fromFile(f *excelize.File) (Workbook, error) {
	var wb Workbook
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return Workbook{}, fmt.Errorf("read sheet %s: %w", name, err)
		}
		wb.Sheets = append(wb.Sheets, Sheet{Name: name, Rows: rows})
	}
	return wb, nil
}

// Encode serializes the workbook to xlsx bytes.
func Encode(wb Workbook) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	for i, s := range wb.Sheets {
		if i == 0 {
			// Reuse the default sheet for the first tab.
			if err := f.SetSheetName(f.GetSheetName(0), s.Name); err != nil {
				return nil, fmt.Errorf("name sheet %s: %w", s.Name, err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			return nil, fmt.Errorf("add sheet %s: %w", s.Name, err)
		}
		for rowIdx, row := range s.Rows {
			cell, err := excelize.CoordinatesToCellName(1, rowIdx+1)
			if err != nil {
				return nil, err
			}
			values := make([]any, len(row))
			for i, v := range row {
				values[i] = v
			}
			if err := f.SetSheetRow(s.Name, cell, &values); err != nil {
				return nil, fmt.Errorf("write row %d of %s: %w", rowIdx+1, s.Name, err)
			}
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// Write serializes the workbook to a file on disk.
func Write(path string, wb Workbook) error {
	data, err := Encode(wb)
	if err != nil {
		return err
	}
	f := bytes.NewReader(data)
	x, err := excelize.OpenReader(f)
	if err != nil {
		return err
	}
	defer func() { _ = x.Close() }()
	return x.SaveAs(path)
}

// PadRow returns row extended with empty cells to width. Spreadsheet readers
// drop trailing empty cells, so short rows are expected.
func PadRow(row []string, width int) []string {
	if len(row) >= width {
		return row
	}
	padded := make([]string, width)
	copy(padded, row)
	return padded
}
